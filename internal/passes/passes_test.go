package passes

import (
	"errors"
	"testing"

	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/types"
)

// declareBuf builds a managed buffer construct the way the value
// façade does: a base aggregate plus one ref per member.
func declareBuf(m *ir.Module, name string, base types.Buffer) ir.Ref {
	tc := m.Types()
	args := make([]ir.Ref, len(tc.Buffer.Members))
	for i := range args {
		args[i] = m.NewPlaceholder(tc.Buffer.Members[i].Type)
	}
	r, err := m.NewConstruct(tc.Buffer, base, args)
	if err != nil {
		panic(err)
	}
	r.Node.Name = name
	return r
}

func unaryFn(m *ir.Module, access types.Access) *ir.Type {
	tc := m.Types()
	fn, err := tc.MakeOpaqueFn("p",
		[]*ir.Type{tc.MakeImbued(tc.Buffer, access)},
		[]*ir.Type{tc.MakeImbued(tc.MakeAliased(tc.Buffer, 0), access)},
		types.DomainAny,
		func(cb ir.CommandSink, args []any) ([]any, error) { return nil, nil })
	if err != nil {
		panic(err)
	}
	return fn
}

func callOn(t *testing.T, m *ir.Module, fn *ir.Type, arg ir.Ref) *ir.Node {
	t.Helper()
	n, err := m.NewCall(fn, fn.Name, []ir.Ref{arg})
	if err != nil {
		t.Fatalf("NewCall: %v", err)
	}
	return n
}

func TestUseChainThreading(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b", types.Buffer{Size: 16, MemoryUsage: types.MemoryUsageGPUOnly})

	w := unaryFn(m, types.AccessTransferWrite)
	r := unaryFn(m, types.AccessTransferRead)

	c1 := callOn(t, m, w, decl)
	c2 := callOn(t, m, r, c1.Result(0))
	c3 := callOn(t, m, r, c1.Result(0))
	c4 := callOn(t, m, w, c1.Result(0))

	order := CollectScope(m, []ir.Ref{c4.Result(0), c2.Result(0), c3.Result(0)})
	if err := Reify(m, order); err != nil {
		t.Fatalf("Reify: %v", err)
	}
	a, err := BuildLinks(m, order)
	if err != nil {
		t.Fatalf("BuildLinks: %v", err)
	}

	head := a.Chains[decl]
	if head == nil {
		t.Fatal("no chain for declaration")
	}
	// def -> w ends link one.
	if head.Undef.Node != c1 {
		t.Fatalf("first undef = %v, want first write", head.Undef)
	}
	second := head.Next
	if second == nil {
		t.Fatal("no second link")
	}
	if len(second.Reads) != 2 {
		t.Errorf("reads between writes = %d, want 2", len(second.Reads))
	}
	if second.Undef.Node != c4 {
		t.Errorf("second undef = %v, want final write", second.Undef)
	}
	if second.Prev != head {
		t.Error("prev pointer broken")
	}
	if second.URDef != decl {
		t.Error("urdef does not point at the declaration")
	}

	orderOf := func(n *ir.Node) int { return n.ID() }
	if !a.ChainOrderConsistent(orderOf) {
		t.Error("chain order inconsistent with creation order")
	}
}

func TestUseBeforeInitDetected(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b", types.Buffer{Size: 16})
	r := unaryFn(m, types.AccessTransferRead)
	c1 := callOn(t, m, r, decl)

	order := CollectScope(m, []ir.Ref{c1.Result(0)})
	if _, err := BuildLinks(m, order); !errors.Is(err, types.ErrUseBeforeInit) {
		t.Errorf("BuildLinks = %v, want ErrUseBeforeInit", err)
	}
}

func TestAcquireWithAccessIsInitialized(t *testing.T) {
	m := ir.NewModule()
	tc := m.Types()
	buf := types.Buffer{Size: 16, Mapped: make([]byte, 16)}
	acq := m.NewAcquire(tc.Buffer, "b", buf, types.AccessHostWrite)

	r := unaryFn(m, types.AccessTransferRead)
	c1 := callOn(t, m, r, acq)

	order := CollectScope(m, []ir.Ref{c1.Result(0)})
	if _, err := BuildLinks(m, order); err != nil {
		t.Errorf("BuildLinks = %v, want nil", err)
	}
}

func TestDiscardReadFirstFails(t *testing.T) {
	m := ir.NewModule()
	tc := m.Types()
	buf := types.Buffer{Size: 16, Mapped: make([]byte, 16)}
	acq := m.NewAcquire(tc.Buffer, "b", buf, types.AccessNone)
	acq.Node.Discard = true

	r := unaryFn(m, types.AccessTransferRead)
	c1 := callOn(t, m, r, acq)

	order := CollectScope(m, []ir.Ref{c1.Result(0)})
	if _, err := BuildLinks(m, order); !errors.Is(err, types.ErrUseBeforeInit) {
		t.Errorf("BuildLinks = %v, want ErrUseBeforeInit", err)
	}
}

func TestResourceRootFollowsAliases(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b", types.Buffer{Size: 16, MemoryUsage: types.MemoryUsageGPUOnly})
	w := unaryFn(m, types.AccessTransferWrite)
	c1 := callOn(t, m, w, decl)
	c2 := callOn(t, m, w, c1.Result(0))

	if got := ResourceRoot(c2.Result(0)); got != decl {
		t.Errorf("root through two aliased calls = %v, want declaration", got)
	}
}

func TestCollectScopeSkipsExecuted(t *testing.T) {
	m := ir.NewModule()
	decl := declareBuf(m, "b", types.Buffer{Size: 16, MemoryUsage: types.MemoryUsageGPUOnly})
	w := unaryFn(m, types.AccessTransferWrite)
	c1 := callOn(t, m, w, decl)
	c1.Executed = true
	c1.ExecValues = []any{types.Buffer{Size: 16}}
	c2 := callOn(t, m, w, c1.Result(0))

	order := CollectScope(m, []ir.Ref{c2.Result(0)})
	for _, n := range order {
		if n == c1 {
			t.Error("executed call re-collected")
		}
	}
	found := false
	for _, n := range order {
		if n == c2 {
			found = true
		}
	}
	if !found {
		t.Error("live call missing from scope")
	}
}
