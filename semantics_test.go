package rg_test

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rg"
	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

// The trace-pass helpers mirror the shape of the passes the graph
// semantics are usually probed with: unary writers, unary readers and
// a binary read/write computation, each appending its name to a
// shared trace when it actually executes.

func unaryWriter(name string, trace *string) *rg.Pass {
	return rg.MakePass(name, types.DomainAny,
		rg.Params(rg.BufArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			*trace += name
			return nil, nil
		})
}

func unaryReader(name string, trace *string) *rg.Pass {
	return rg.MakePass(name, types.DomainAny,
		rg.Params(rg.BufArg(types.AccessTransferRead)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			*trace += name
			return nil, nil
		})
}

func binaryComputation(name string, trace *string) *rg.Pass {
	return rg.MakePass(name, types.DomainAny,
		rg.Params(rg.BufArg(types.AccessTransferRead), rg.BufArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			*trace += name
			return nil, nil
		})
}

func declBuf(m *rg.Module, name string) rg.Value[types.Buffer] {
	return rg.DeclareBufOn(m, name, types.Buffer{Size: 16, MemoryUsage: types.MemoryUsageGPUOnly})
}

// Sequential uses of one declared buffer convert to a single ordered
// chain: submitting the declaration executes every recorded use in
// order.
func TestConversionToSSA(t *testing.T) {
	m, c, _ := newTestCompiler(t)
	trace := ""

	decl := declBuf(m, "_a")
	if err := rg.CallVoid(unaryWriter("a", &trace), decl); err != nil {
		t.Fatalf("call a: %v", err)
	}
	if err := rg.CallVoid(unaryWriter("b", &trace), decl); err != nil {
		t.Fatalf("call b: %v", err)
	}
	if err := rg.CallVoid(unaryReader("c", &trace), decl); err != nil {
		t.Fatalf("call c: %v", err)
	}

	if err := decl.Wait(c, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if trace != "abc" {
		t.Errorf("trace = %q, want %q", trace, "abc")
	}
}

// Submitting one value executes only its dependency closure: work on
// unrelated values stays unexecuted.
func TestMinimalGraphIsSubmitted(t *testing.T) {
	m, c, _ := newTestCompiler(t)
	trace := ""

	a := rg.Call1[types.Buffer](unaryWriter("a", &trace), declBuf(m, "_a"))
	b := rg.Call1[types.Buffer](unaryWriter("b", &trace), declBuf(m, "_b"))
	_, _ = rg.Call2[types.Buffer, types.Buffer](binaryComputation("d", &trace), a, b)
	e := rg.Call1[types.Buffer](unaryWriter("e", &trace), a)

	if err := e.Wait(c, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if trace != "ae" {
		t.Errorf("trace = %q, want %q", trace, "ae")
	}
}

// A node already executed by an earlier submission is spliced in, not
// re-run.
func TestComputationIsNeverDuplicated(t *testing.T) {
	m, c, _ := newTestCompiler(t)
	trace := ""

	a := rg.Call1[types.Buffer](unaryWriter("a", &trace), declBuf(m, "_a"))
	b := rg.Call1[types.Buffer](unaryWriter("b", &trace), declBuf(m, "_b"))
	d, _ := rg.Call2[types.Buffer, types.Buffer](binaryComputation("d", &trace), a, b)
	e := rg.Call1[types.Buffer](unaryWriter("e", &trace), a)

	if err := e.Wait(c, 0); err != nil {
		t.Fatalf("Wait e: %v", err)
	}
	if err := d.Wait(c, 0); err != nil {
		t.Fatalf("Wait d: %v", err)
	}
	if trace != "aebd" {
		t.Errorf("trace = %q, want %q", trace, "aebd")
	}
}

// After submission and collection, the arena holds only nodes still
// reachable from live values.
func TestGraphIsCleanedUpAfterSubmit(t *testing.T) {
	m, c, _ := newTestCompiler(t)
	trace := ""

	a := rg.Call1[types.Buffer](unaryWriter("a", &trace), declBuf(m, "_a"))
	e := rg.Call1[types.Buffer](unaryWriter("e", &trace), a)

	if err := e.Wait(c, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	before := m.NodeCount()

	// Dropping the intermediate and collecting frees its subtree; the
	// still-held e keeps its own chain alive.
	a.Drop()
	m.Collect()
	after := m.NodeCount()
	if after > before {
		t.Errorf("node count grew from %d to %d after collect", before, after)
	}
	if after == 0 {
		t.Error("live value's chain was collected")
	}
}

// Chain ordering invariant: every read of a resource precedes the
// write that ends its link, in scheduled order.
func TestChainOrderConsistency(t *testing.T) {
	m, c, _ := newTestCompiler(t)
	trace := ""

	decl := declBuf(m, "_a")
	if err := rg.CallVoid(unaryWriter("w1", &trace), decl); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := rg.CallVoid(unaryReader("r1", &trace), decl); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := rg.CallVoid(unaryReader("r2", &trace), decl); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := rg.CallVoid(unaryWriter("w2", &trace), decl); err != nil {
		t.Fatalf("call: %v", err)
	}

	if err := decl.Wait(c, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if trace != "w1r1r2w2" {
		t.Errorf("trace = %q, want w1r1r2w2", trace)
	}
}

// Scalar expression evaluation through the lazy value API.
func TestScalarExpressions(t *testing.T) {
	m, c, _ := newTestCompiler(t)

	a := rg.Constant[uint64](m, 6)
	b := rg.Constant[uint64](m, 7)
	prod := rg.Mul(a, b)
	sum := rg.Add(prod, rg.Constant[uint64](m, 8))

	got, err := sum.Get(c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 50 {
		t.Errorf("6*7+8 = %d, want 50", got)
	}
}

// SameSize resolves a declared buffer's size from another value's
// creation info.
func TestSameSizeInference(t *testing.T) {
	m, c, _ := newTestCompiler(t)

	src := declBuf(m, "_src")
	filled := rg.FillBuffer(src, 1)
	down := rg.DownloadBuffer(filled)

	res, err := down.Get(c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Size != 16 {
		t.Errorf("inferred size = %d, want 16", res.Size)
	}
}

// Composite round-trip: a field projection recovers the member that
// went into the construct.
func TestCompositeFieldRoundTrip(t *testing.T) {
	m, c, _ := newTestCompiler(t)

	type blurCfg struct {
		Radius   uint32
		Strength uint32
	}
	err := rg.RegisterComposite[blurCfg](m, "blur_cfg", []rg.CompositeMember{
		{Name: "radius", Offset: 0, Type: rg.MemberU32},
		{Name: "strength", Offset: 4, Type: rg.MemberU32},
	}, rg.CompositeAdaptor[blurCfg]{
		Construct: func(base blurCfg, members []any) blurCfg {
			out := base
			if len(members) > 0 && members[0] != nil {
				out.Radius = members[0].(uint32)
			}
			if len(members) > 1 && members[1] != nil {
				out.Strength = members[1].(uint32)
			}
			return out
		},
		Get: func(v blurCfg, i int) any {
			if i == 0 {
				return v.Radius
			}
			return v.Strength
		},
		IsDefault: func(v blurCfg, i int) bool { return false },
	})
	if err != nil {
		t.Fatalf("RegisterComposite: %v", err)
	}

	v := rg.Constant(m, blurCfg{Radius: 3, Strength: 9})
	radius, err := rg.Field[uint32](v, 0).Get(c)
	if err != nil {
		t.Fatalf("Get radius: %v", err)
	}
	if radius != 3 {
		t.Errorf("radius = %d, want 3", radius)
	}
	strength, err := rg.Field[uint32](v, 1).Get(c)
	if err != nil {
		t.Fatalf("Get strength: %v", err)
	}
	if strength != 9 {
		t.Errorf("strength = %d, want 9", strength)
	}
}

// Disjoint mip slices written independently reconverge: a whole-image
// download after the slice writes observes the write to mip 0, the
// level DownloadImage copies.
func TestReconvergenceAfterDisjointMipWrites(t *testing.T) {
	m, c, _ := newTestCompiler(t)

	img := declImage2Mips(m)
	_ = rg.ClearImage(img.Mip(0), types.ClearColorUint(7, 0, 0, 0))
	_ = rg.ClearImage(img.Mip(1), types.ClearColorUint(9, 0, 0, 0))

	// The whole-image download reconverges both slices; submitting
	// the declaration executes every recorded use in order.
	down := rg.DownloadImage(img, 16)
	if err := img.Wait(c, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	res, err := down.Get(c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	words := u32sOf(t, res.Mapped)
	for i := 0; i < 4; i++ {
		if words[i] != 7 {
			t.Errorf("mip 0 texel %d = %d, want 7", i, words[i])
		}
	}
}

func declImage2Mips(m *rg.Module) rg.Value[types.ImageAttachment] {
	return rg.DeclareIAOn(m, "img", types.ImageAttachment{
		Extent: types.Extent3D{Width: 2, Height: 2, Depth: 1},
		Format: gputypes.TextureFormatRGBA8Unorm, SampleCount: types.Samples1,
		LevelCount: 2, LayerCount: 1,
	})
}
