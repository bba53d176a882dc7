package rg

import (
	"time"

	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/internal/passes"
	"github.com/gogpu/rg/types"
)

// AnyValue is the type-erased view of a [Value], used where values of
// mixed element types travel together (pass calls, arrays).
type AnyValue interface {
	valueRef() ir.Ref
	valueModule() *Module
	valueErr() error
}

// Value is a typed handle to one lazy result in the graph. Values are
// cheap to copy; copies share the underlying node. Operations record
// IR and never execute anything; errors accumulate on the value and
// surface at compile time.
type Value[T any] struct {
	head ir.Ref
	mod  *Module
	err  error
}

func (v Value[T]) valueRef() ir.Ref      { return v.head }
func (v Value[T]) valueModule() *Module  { return v.mod }
func (v Value[T]) valueErr() error       { return v.err }

// wrap retains the node and produces a façade value.
func wrap[T any](m *Module, r ir.Ref) Value[T] {
	if !r.IsZero() {
		r.Node.Retain()
	}
	return Value[T]{head: r, mod: m}
}

func errValue[T any](m *Module, err error) Value[T] {
	return Value[T]{mod: m, err: err}
}

// Err returns the first error recorded while building this value.
func (v Value[T]) Err() error { return v.err }

// Drop releases the value's reference on its node subtree; the next
// collection frees nodes no live value reaches. Using v after Drop is
// invalid.
func (v Value[T]) Drop() {
	if !v.head.IsZero() {
		v.head.Node.Release()
	}
}

// Def arms the value: it attaches the signal that later submissions
// raise. Submit and Wait arm implicitly.
func (v Value[T]) Def() Value[T] {
	if v.err == nil && !v.head.IsZero() && v.head.Node.RelAcq == nil {
		v.head.Node.RelAcq = types.NewAcquireRelease()
	}
	return v
}

// Signal returns the value's signal, arming first if needed.
func (v Value[T]) Signal() *types.Signal {
	if v.head.IsZero() {
		return nil
	}
	v.Def()
	return &v.head.Node.RelAcq.Signal
}

// ----------------------------------------------------------------------------
// Fluent configuration
// ----------------------------------------------------------------------------

// constructNode resolves the declaring CONSTRUCT of the value, for
// installing inference expressions.
func (v Value[T]) constructNode() *ir.Node {
	root := passes.ResourceRoot(v.head)
	if !root.IsZero() && root.Node.Kind == ir.OpConstruct {
		return root.Node
	}
	return nil
}

// SameSize marks this buffer's unspecified size equal to the size of
// o, resolved by inference at compile time.
func (v Value[T]) SameSize(o AnyValue) Value[T] {
	if v.err != nil {
		return v
	}
	c := v.constructNode()
	if c == nil {
		v.err = &types.GraphError{Kind: types.ErrUnattachedResource, Detail: "SameSize on a non-declared value"}
		return v
	}
	tc := v.mod.ir.Types()
	ci := v.mod.ir.NewGetCI(o.valueRef(), tc.Buffer)
	sz := v.mod.ir.NewSlice(ci, ir.AxisField,
		v.mod.ir.NewConstant(tc.U64, uint64(ir.BufSize)),
		v.mod.ir.NewConstant(tc.U64, uint64(1)),
		tc.U64)
	c.Args[ir.BufSize] = sz
	return v
}

// SetSize installs an arithmetic expression as this buffer's size.
func (v Value[T]) SetSize(expr Value[uint64]) Value[T] {
	if v.err != nil {
		return v
	}
	if expr.err != nil {
		v.err = expr.err
		return v
	}
	c := v.constructNode()
	if c == nil {
		v.err = &types.GraphError{Kind: types.ErrUnattachedResource, Detail: "SetSize on a non-declared value"}
		return v
	}
	c.Args[ir.BufSize] = expr.head
	return v
}

// GetSize projects the buffer's size as a lazy scalar.
func (v Value[T]) GetSize() Value[uint64] {
	if v.err != nil {
		return errValue[uint64](v.mod, v.err)
	}
	tc := v.mod.ir.Types()
	ci := v.mod.ir.NewGetCI(v.head, tc.Buffer)
	sz := v.mod.ir.NewSlice(ci, ir.AxisField,
		v.mod.ir.NewConstant(tc.U64, uint64(ir.BufSize)),
		v.mod.ir.NewConstant(tc.U64, uint64(1)),
		tc.U64)
	return wrap[uint64](v.mod, sz)
}

// GetWidth and GetHeight project an image's extent as lazy scalars,
// resolved once inference has run.
func (v Value[T]) GetWidth() Value[uint32]  { return v.iaMember(ir.IAExtentWidth) }
func (v Value[T]) GetHeight() Value[uint32] { return v.iaMember(ir.IAExtentHeight) }

func (v Value[T]) iaMember(member int) Value[uint32] {
	if v.err != nil {
		return errValue[uint32](v.mod, v.err)
	}
	tc := v.mod.ir.Types()
	ci := v.mod.ir.NewGetCI(v.head, tc.ImageAttachment)
	r := v.mod.ir.NewSlice(ci, ir.AxisField,
		v.mod.ir.NewConstant(tc.U64, uint64(member)),
		v.mod.ir.NewConstant(tc.U64, uint64(1)),
		tc.U32)
	return wrap[uint32](v.mod, r)
}

// Mip selects a single mip level of an image.
func (v Value[T]) Mip(n uint32) Value[T] { return v.slice(ir.AxisMip, uint64(n), 1, false) }

// MipRange selects mip levels [start, start+count). A negative count
// selects the remaining levels.
func (v Value[T]) MipRange(start uint32, count int64) Value[T] {
	return v.slice(ir.AxisMip, uint64(start), count, count < 0)
}

// Layer selects a single array layer of an image.
func (v Value[T]) Layer(n uint32) Value[T] { return v.slice(ir.AxisLayer, uint64(n), 1, false) }

// LayerRange selects layers [start, start+count). A negative count
// selects the remaining layers.
func (v Value[T]) LayerRange(start uint32, count int64) Value[T] {
	return v.slice(ir.AxisLayer, uint64(start), count, count < 0)
}

// Subrange selects the byte range [off, off+size) of a buffer.
// Sub-slices compose additively.
func (v Value[T]) Subrange(off, size uint64) Value[T] {
	return v.slice(ir.AxisRange, off, int64(size), false)
}

func (v Value[T]) slice(axis ir.SliceAxis, start uint64, count int64, remaining bool) Value[T] {
	if v.err != nil {
		return v
	}
	tc := v.mod.ir.Types()
	st := ir.Stripped(v.head.Type())
	switch axis {
	case ir.AxisMip, ir.AxisLayer:
		if st != tc.ImageAttachment && st.Kind != ir.TypeImageView {
			return errValue[T](v.mod, &types.GraphError{Kind: types.ErrInvalidSlice,
				Detail: axis.String() + " slice of non-image value"})
		}
	case ir.AxisRange:
		if st != tc.Buffer {
			return errValue[T](v.mod, &types.GraphError{Kind: types.ErrInvalidSlice,
				Detail: "range slice of non-buffer value"})
		}
	}
	countRef := v.mod.ir.NewConstant(tc.I64, count)
	if remaining {
		countRef = v.mod.ir.NewConstant(tc.I64, ir.CountRemaining)
	}
	r := v.mod.ir.NewSlice(v.head,
		axis,
		v.mod.ir.NewConstant(tc.U64, start),
		countRef,
		v.head.Type())
	return wrap[T](v.mod, r)
}

// ImplicitView wraps a pointer-typed value in its natural view type;
// buffer and image values are already views and pass through.
func (v Value[T]) ImplicitView() Value[T] { return v }

// Field projects the i-th member of a composite value.
func Field[R any, T any](v Value[T], i int) Value[R] {
	if v.err != nil {
		return errValue[R](v.mod, v.err)
	}
	st := ir.Stripped(v.head.Type())
	if st == nil || (st.Kind != ir.TypeComposite && st.Kind != ir.TypeArray) {
		return errValue[R](v.mod, &types.GraphError{Kind: types.ErrInvalidSlice,
			Detail: "field projection of non-composite value"})
	}
	var resultTy *ir.Type
	if st.Kind == ir.TypeComposite {
		if i < 0 || i >= len(st.Members) {
			return errValue[R](v.mod, &types.GraphError{Kind: types.ErrInvalidSlice,
				Detail: "member index out of range"})
		}
		resultTy = st.Members[i].Type
	} else {
		resultTy = st.Elem
	}
	tc := v.mod.ir.Types()
	r := v.mod.ir.NewSlice(v.head, ir.AxisField,
		v.mod.ir.NewConstant(tc.U64, uint64(i)),
		v.mod.ir.NewConstant(tc.U64, uint64(1)),
		resultTy)
	return wrap[R](v.mod, r)
}

// ----------------------------------------------------------------------------
// Scalar expressions
// ----------------------------------------------------------------------------

// Constant lifts a host value into the graph.
func Constant[T any](m *Module, v T) Value[T] {
	ty := irTypeOf[T](m)
	if ty == nil {
		return errValue[T](m, &types.GraphError{Kind: types.ErrInvalidType, Detail: "unrepresentable constant type"})
	}
	return wrap[T](m, m.ir.NewConstant(ty, v))
}

// Add, Sub, Mul, Div and Mod combine scalar values lazily.
func Add[T ~uint32 | ~uint64](a, b Value[T]) Value[T] { return binop(ir.OpAdd, a, b) }
func Sub[T ~uint32 | ~uint64](a, b Value[T]) Value[T] { return binop(ir.OpSub, a, b) }
func Mul[T ~uint32 | ~uint64](a, b Value[T]) Value[T] { return binop(ir.OpMul, a, b) }
func Div[T ~uint32 | ~uint64](a, b Value[T]) Value[T] { return binop(ir.OpDiv, a, b) }
func Mod[T ~uint32 | ~uint64](a, b Value[T]) Value[T] { return binop(ir.OpMod, a, b) }

func binop[T ~uint32 | ~uint64](op ir.BinOp, a, b Value[T]) Value[T] {
	if a.err != nil {
		return a
	}
	if b.err != nil {
		return b
	}
	return wrap[T](a.mod, a.mod.ir.NewMathBinary(op, a.head, b.head))
}

// ----------------------------------------------------------------------------
// Submission
// ----------------------------------------------------------------------------

// Submit compiles and submits everything the value depends on,
// without waiting. It returns the armed signal.
func (v Value[T]) Submit(c *Compiler) (*types.Signal, error) {
	if v.err != nil {
		return nil, v.err
	}
	if v.head.IsZero() {
		return nil, &types.GraphError{Kind: types.ErrValueAlreadyConsumed}
	}
	v.Def()
	if err := c.submit(v.mod, []ir.Ref{v.head}); err != nil {
		return nil, err
	}
	return &v.head.Node.RelAcq.Signal, nil
}

// Wait submits if needed and blocks until the value's result is host
// observable or the timeout elapses. A zero timeout waits forever; on
// timeout the signal stays pending and Wait may be called again.
func (v Value[T]) Wait(c *Compiler, timeout time.Duration) error {
	sig, err := v.Submit(c)
	if err != nil {
		return err
	}
	return c.waitSignal(sig, timeout)
}

// Poll reports whether the value's result is host observable, without
// blocking.
func (v Value[T]) Poll(c *Compiler) bool {
	if v.err != nil || v.head.IsZero() || v.head.Node.RelAcq == nil {
		return false
	}
	c.pollSignal(&v.head.Node.RelAcq.Signal)
	return v.head.Node.RelAcq.Signal.Poll()
}

// Get waits for the value and returns its host representation.
func (v Value[T]) Get(c *Compiler) (T, error) {
	var zero T
	if err := v.Wait(c, 0); err != nil {
		return zero, err
	}
	res, err := ir.Eval(v.head)
	if err != nil {
		return zero, err
	}
	t, ok := res.(T)
	if !ok {
		return zero, &types.GraphError{Kind: types.ErrTypeMismatch, Detail: "result type does not match value type"}
	}
	return t, nil
}
