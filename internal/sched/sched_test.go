package sched

import (
	"testing"

	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/internal/passes"
	"github.com/gogpu/rg/types"
)

func declareBuf(m *ir.Module, name string) ir.Ref {
	tc := m.Types()
	args := make([]ir.Ref, len(tc.Buffer.Members))
	for i := range args {
		args[i] = m.NewPlaceholder(tc.Buffer.Members[i].Type)
	}
	r, err := m.NewConstruct(tc.Buffer, types.Buffer{Size: 16, MemoryUsage: types.MemoryUsageGPUOnly}, args)
	if err != nil {
		panic(err)
	}
	r.Node.Name = name
	return r
}

func passOn(m *ir.Module, name string, domain types.Domain, access types.Access) *ir.Type {
	tc := m.Types()
	fn, err := tc.MakeOpaqueFn(name,
		[]*ir.Type{tc.MakeImbued(tc.Buffer, access)},
		[]*ir.Type{tc.MakeImbued(tc.MakeAliased(tc.Buffer, 0), access)},
		domain,
		func(cb ir.CommandSink, args []any) ([]any, error) { return nil, nil })
	if err != nil {
		panic(err)
	}
	return fn
}

func analyze(t *testing.T, m *ir.Module, roots ...ir.Ref) *passes.Analysis {
	t.Helper()
	order := passes.CollectScope(m, roots)
	if err := passes.Reify(m, order); err != nil {
		t.Fatalf("Reify: %v", err)
	}
	a, err := passes.BuildLinks(m, order)
	if err != nil {
		t.Fatalf("BuildLinks: %v", err)
	}
	return a
}

func TestDomainInferenceFromUpstream(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b")

	w := passOn(m, "w", types.DomainTransferQueue|types.DomainTransferOperation, types.AccessTransferWrite)
	anyP := passOn(m, "any", types.DomainAny, types.AccessTransferWrite)

	c1, _ := m.NewCall(w, "w", []ir.Ref{decl})
	c2, _ := m.NewCall(anyP, "any", []ir.Ref{c1.Result(0)})

	a := analyze(t, m, c2.Result(0))
	p, err := Schedule(a)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if c1.ScheduledDomain != types.DomainTransferQueue {
		t.Errorf("explicit domain = %v", c1.ScheduledDomain)
	}
	if c2.ScheduledDomain != types.DomainTransferQueue {
		t.Errorf("inferred domain = %v, want upstream transfer", c2.ScheduledDomain)
	}
	if len(p.Batches) != 1 {
		t.Errorf("batches = %d, want 1 (same domain)", len(p.Batches))
	}
}

func TestDomainDefaultsToGraphics(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b")
	anyP := passOn(m, "any", types.DomainAny, types.AccessTransferWrite)
	c1, _ := m.NewCall(anyP, "any", []ir.Ref{decl})

	a := analyze(t, m, c1.Result(0))
	if _, err := Schedule(a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if c1.ScheduledDomain != types.DomainGraphicsQueue {
		t.Errorf("default domain = %v, want graphics", c1.ScheduledDomain)
	}
}

func TestRasterizationDemotesOffTransfer(t *testing.T) {
	m := ir.NewModule()
	tc := m.Types()
	args := make([]ir.Ref, len(tc.ImageAttachment.Members))
	for i := range args {
		args[i] = m.NewPlaceholder(tc.ImageAttachment.Members[i].Type)
	}
	img, err := m.NewConstruct(tc.ImageAttachment, types.ImageAttachment{
		Extent: types.Extent3D{Width: 4, Height: 4, Depth: 1},
		Format: 1, SampleCount: types.Samples1, LevelCount: 1, LayerCount: 1,
	}, args)
	if err != nil {
		t.Fatal(err)
	}

	fn, err := tc.MakeOpaqueFn("draw",
		[]*ir.Type{tc.MakeImbued(tc.ImageAttachment, types.AccessColorWrite)},
		[]*ir.Type{tc.MakeImbued(tc.MakeAliased(tc.ImageAttachment, 0), types.AccessColorWrite)},
		types.DomainTransferQueue|types.DomainTransferOperation,
		func(cb ir.CommandSink, a []any) ([]any, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}
	c1, err := m.NewCall(fn, "draw", []ir.Ref{img})
	if err != nil {
		t.Fatal(err)
	}

	a := analyze(t, m, c1.Result(0))
	if _, err := Schedule(a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if c1.ScheduledDomain != types.DomainGraphicsQueue {
		t.Errorf("rasterization on %v, want demotion to graphics", c1.ScheduledDomain)
	}
}

func TestCrossDomainSplice(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b")

	w := passOn(m, "w", types.DomainTransferQueue|types.DomainTransferOperation, types.AccessTransferWrite)
	r := passOn(m, "r", types.DomainGraphicsQueue|types.DomainGraphicsOperation, types.AccessTransferRead)

	c1, _ := m.NewCall(w, "w", []ir.Ref{decl})
	c2, _ := m.NewCall(r, "r", []ir.Ref{c1.Result(0)})

	a := analyze(t, m, c2.Result(0))
	p, err := Schedule(a)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(p.Batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(p.Batches))
	}
	producer, consumer := p.Batches[0], p.Batches[1]
	if producer.Domain != types.DomainTransferQueue || consumer.Domain != types.DomainGraphicsQueue {
		t.Fatalf("batch domains = %v, %v", producer.Domain, consumer.Domain)
	}
	if !producer.Signaled {
		t.Error("producer batch not marked for semaphore signal")
	}
	if len(consumer.Waits) != 1 {
		t.Fatalf("consumer waits = %d, want 1", len(consumer.Waits))
	}
	wait := consumer.Waits[0]
	if wait.Domain != types.DomainTransferQueue || wait.Visibility != producer.Signal {
		t.Errorf("wait = %+v, want producer's sync point", wait)
	}
}

func TestBarrierTuples(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b")

	w := passOn(m, "w", types.DomainAny, types.AccessTransferWrite)
	r := passOn(m, "r", types.DomainAny, types.AccessTransferRead)

	c1, _ := m.NewCall(w, "w", []ir.Ref{decl})
	c2, _ := m.NewCall(r, "r", []ir.Ref{c1.Result(0)})

	a := analyze(t, m, c2.Result(0))
	p, err := Schedule(a)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d", len(p.Steps))
	}
	readStep := p.Steps[1]
	if len(readStep.PreBarriers) != 1 {
		t.Fatalf("read-after-write barriers = %d, want 1", len(readStep.PreBarriers))
	}
	b := readStep.PreBarriers[0].Barrier
	if !b.Src.IsWrite() {
		t.Error("barrier source lost the write access")
	}
	if !b.Dst.IsRead() || b.Dst.IsWrite() {
		t.Error("barrier destination is not a pure read")
	}
	if b.Src.Stages&types.StageTransfer == 0 || b.Dst.Stages&types.StageTransfer == 0 {
		t.Error("barrier stages do not cover the transfer stage")
	}
}

func TestReadAfterReadNeedsNoBufferBarrier(t *testing.T) {
	m := ir.NewModule()
	tc := m.Types()
	buf := types.Buffer{Size: 16, Mapped: make([]byte, 16)}
	acq := m.NewAcquire(tc.Buffer, "b", buf, types.AccessTransferRead)

	r := passOn(m, "r", types.DomainAny, types.AccessTransferRead)
	c1, _ := m.NewCall(r, "r", []ir.Ref{acq})
	c2, _ := m.NewCall(r, "r", []ir.Ref{c1.Result(0)})

	a := analyze(t, m, c2.Result(0))
	p, err := Schedule(a)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if n := len(p.Steps[1].PreBarriers); n != 0 {
		t.Errorf("read-after-read emitted %d barriers", n)
	}
}
