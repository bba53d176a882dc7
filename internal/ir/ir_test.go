package ir

import (
	"errors"
	"testing"

	"github.com/gogpu/rg/types"
)

func TestTypeInternerDeduplicates(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	if tc.MakeScalar(false, 32) != tc.U32 {
		t.Error("u32 not deduplicated")
	}
	p1 := tc.MakePointer(tc.U32)
	p2 := tc.MakePointer(tc.U32)
	if p1 != p2 {
		t.Error("pointer types not deduplicated")
	}
	a1, err := tc.MakeArray(tc.U32, 4)
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := tc.MakeArray(tc.U32, 4)
	if a1 != a2 {
		t.Error("array types not deduplicated")
	}
	a3, _ := tc.MakeArray(tc.U32, 8)
	if a1 == a3 {
		t.Error("arrays of distinct counts alias")
	}
}

func TestEnumIdentityHash(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	e1 := tc.MakeEnum("filter", 111, nil)
	e2 := tc.MakeEnum("wrap", 222, nil)
	if e1 == e2 {
		t.Error("distinct enums alias")
	}
	if tc.MakeEnum("filter", 111, nil) != e1 {
		t.Error("same enum tag not deduplicated")
	}
	ev, err := tc.MakeEnumValue(e1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if ev.EnumValue != 3 || ev.EnumType != e1 {
		t.Error("enum value type malformed")
	}
	if _, err := tc.MakeEnumValue(tc.U32, 1); !errors.Is(err, types.ErrInvalidType) {
		t.Errorf("enum value of scalar = %v, want ErrInvalidType", err)
	}
}

func TestStrippedPeelsWrappers(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	w := tc.MakeImbued(tc.MakeAliased(tc.Buffer, 2), types.AccessTransferWrite)
	if Stripped(w) != tc.Buffer {
		t.Error("stripped did not reach the base type")
	}
	if ImbuedAccess(w) != types.AccessTransferWrite {
		t.Error("imbued access lost")
	}
	inner := tc.MakeAliased(tc.MakeImbued(tc.Buffer, types.AccessTransferRead), 1)
	if AliasedIndex(inner) != 1 {
		t.Error("aliased index lost")
	}
	if AliasedIndex(tc.Buffer) != -1 {
		t.Error("plain type reports aliasing")
	}
}

func TestInvalidTypeErrors(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	if _, err := tc.MakeArray(tc.U32, -5); !errors.Is(err, types.ErrInvalidType) {
		t.Errorf("negative array count = %v", err)
	}
	if _, err := tc.MakeOpaqueFn("f", nil, nil, types.DomainAny, nil); !errors.Is(err, types.ErrInvalidType) {
		t.Errorf("nil callback = %v", err)
	}
	_, err := tc.MakeComposite("bad", 4, []Member{{Name: "x", Offset: 8, Type: tc.U32}}, 1, CompositeHooks{})
	if !errors.Is(err, types.ErrInvalidType) {
		t.Errorf("out-of-bounds member offset = %v", err)
	}
}

func TestConstantEvalBinop(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	a := m.NewConstant(tc.U64, uint64(10))
	b := m.NewConstant(tc.U64, uint64(4))
	tests := []struct {
		op   BinOp
		want uint64
	}{
		{OpAdd, 14}, {OpSub, 6}, {OpMul, 40}, {OpDiv, 2}, {OpMod, 2},
	}
	for _, tt := range tests {
		got, err := EvalUint(m.NewMathBinary(tt.op, a, b))
		if err != nil {
			t.Fatalf("%v: %v", tt.op, err)
		}
		if got != tt.want {
			t.Errorf("10 %v 4 = %d, want %d", tt.op, got, tt.want)
		}
	}
	zero := m.NewConstant(tc.U64, uint64(0))
	if _, err := EvalUint(m.NewMathBinary(OpDiv, a, zero)); err == nil {
		t.Error("division by zero evaluated")
	}
}

func TestEvalSliceImage(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	ia := types.ImageAttachment{
		Extent:     types.Extent3D{Width: 8, Height: 8, Depth: 1},
		LevelCount: 4, LayerCount: 2,
	}
	src := m.NewConstant(tc.ImageAttachment, ia)
	start := m.NewConstant(tc.U64, uint64(1))
	count := m.NewConstant(tc.I64, int64(2))
	sliced := m.NewSlice(src, AxisMip, start, count, tc.ImageAttachment)

	v, err := Eval(sliced)
	if err != nil {
		t.Fatal(err)
	}
	got := v.(types.ImageAttachment)
	if got.BaseLevel != 1 || got.LevelCount != 2 {
		t.Errorf("mip slice = base %d count %d", got.BaseLevel, got.LevelCount)
	}

	rem := m.NewConstant(tc.I64, CountRemaining)
	layered := m.NewSlice(src, AxisLayer, start, rem, tc.ImageAttachment)
	v, err = Eval(layered)
	if err != nil {
		t.Fatal(err)
	}
	got = v.(types.ImageAttachment)
	if got.BaseLayer != 1 || got.LayerCount != 1 {
		t.Errorf("remaining layer slice = base %d count %d", got.BaseLayer, got.LayerCount)
	}
}

func TestEvalSliceBufferRange(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	buf := types.Buffer{Size: 64, Mapped: make([]byte, 64)}
	src := m.NewConstant(tc.Buffer, buf)
	off := m.NewConstant(tc.U64, uint64(16))
	size := m.NewConstant(tc.I64, int64(8))
	v, err := Eval(m.NewSlice(src, AxisRange, off, size, tc.Buffer))
	if err != nil {
		t.Fatal(err)
	}
	got := v.(types.Buffer)
	if got.Offset != 16 || got.Size != 8 {
		t.Errorf("range slice = +%d %dB", got.Offset, got.Size)
	}

	past := m.NewConstant(tc.U64, uint64(60))
	big := m.NewConstant(tc.I64, int64(16))
	if _, err := Eval(m.NewSlice(src, AxisRange, past, big, tc.Buffer)); !errors.Is(err, types.ErrInvalidSlice) {
		t.Errorf("out-of-bounds range = %v", err)
	}
}

func TestEvalAliasedCallDereference(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	buf := types.Buffer{Size: 32, Mapped: make([]byte, 32)}
	decl := m.NewAcquire(tc.Buffer, "b", buf, types.AccessNone)

	argTy := tc.MakeImbued(tc.Buffer, types.AccessTransferWrite)
	resTy := tc.MakeImbued(tc.MakeAliased(tc.Buffer, 0), types.AccessTransferWrite)
	fn, err := tc.MakeOpaqueFn("w", []*Type{argTy}, []*Type{resTy}, types.DomainAny,
		func(cb CommandSink, args []any) ([]any, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}
	call, err := m.NewCall(fn, "w", []Ref{decl})
	if err != nil {
		t.Fatal(err)
	}

	// Before execution the aliased result exposes the argument view.
	v, err := Eval(call.Result(0))
	if err != nil {
		t.Fatal(err)
	}
	if v.(types.Buffer).Size != 32 {
		t.Errorf("pre-execution view size = %d", v.(types.Buffer).Size)
	}

	call.Executed = true
	call.ExecValues = []any{types.Buffer{Size: 99}}
	v, err = Eval(call.Result(0))
	if err != nil {
		t.Fatal(err)
	}
	if v.(types.Buffer).Size != 99 {
		t.Error("executed call did not expose its results")
	}
}

func TestCallTypeChecking(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	fnTy, err := tc.MakeOpaqueFn("f",
		[]*Type{tc.MakeImbued(tc.Buffer, types.AccessTransferWrite)},
		nil, types.DomainAny,
		func(cb CommandSink, args []any) ([]any, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}

	img := m.NewConstant(tc.ImageAttachment, types.ImageAttachment{})
	if _, err := m.NewCall(fnTy, "f", []Ref{img}); !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("image where buffer expected = %v", err)
	}
	if _, err := m.NewCall(fnTy, "f", nil); !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("argument count mismatch = %v", err)
	}
}

func TestCollectFreesOrphans(t *testing.T) {
	m := NewModule()
	tc := m.Types()

	kept := m.NewConstant(tc.U32, uint32(1))
	kept.Node.Retain()
	orphan := m.NewConstant(tc.U32, uint32(2))
	dep := m.NewMathBinary(OpAdd, orphan, orphan)
	_ = dep

	m.Collect()
	if m.NodeCount() != 1 {
		t.Errorf("node count after collect = %d, want 1", m.NodeCount())
	}
	if orphan.Node.Kind != OpGarbage {
		t.Error("orphan not garbage-collected")
	}
	if kept.Node.Kind != OpConstant {
		t.Error("retained node collected")
	}
}
