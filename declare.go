package rg

import (
	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/types"
)

// DeclareBuf declares a buffer in the graph on the default module.
// Unspecified properties (a zero size, an inferred memory usage) stay
// open for inference; the executor allocates backing when none is
// given. Contents are undefined until first written.
func DeclareBuf(name string, buf types.Buffer) Value[types.Buffer] {
	return DeclareBufOn(CurrentModule(), name, buf)
}

// DeclareBufOn is DeclareBuf on an explicit module.
func DeclareBufOn(m *Module, name string, buf types.Buffer) Value[types.Buffer] {
	tc := m.ir.Types()
	args := make([]ir.Ref, len(tc.Buffer.Members))
	for i := range args {
		args[i] = m.ir.NewPlaceholder(tc.Buffer.Members[i].Type)
	}
	r, err := m.ir.NewConstruct(tc.Buffer, buf, args)
	if err != nil {
		return errValue[types.Buffer](m, err)
	}
	r.Node.Name = name
	return wrap[types.Buffer](m, r)
}

// DeclareIA declares an image attachment in the graph on the default
// module. Unspecified axes (extent, samples, counts) stay open for
// framebuffer inference.
func DeclareIA(name string, ia types.ImageAttachment) Value[types.ImageAttachment] {
	return DeclareIAOn(CurrentModule(), name, ia)
}

// DeclareIAOn is DeclareIA on an explicit module.
func DeclareIAOn(m *Module, name string, ia types.ImageAttachment) Value[types.ImageAttachment] {
	tc := m.ir.Types()
	args := make([]ir.Ref, len(tc.ImageAttachment.Members))
	for i := range args {
		args[i] = m.ir.NewPlaceholder(tc.ImageAttachment.Members[i].Type)
	}
	r, err := m.ir.NewConstruct(tc.ImageAttachment, ia, args)
	if err != nil {
		return errValue[types.ImageAttachment](m, err)
	}
	r.Node.Name = name
	return wrap[types.ImageAttachment](m, r)
}

// AcquireBuf binds a host-owned buffer into the graph. The initial
// access describes how the resource was last used outside the graph;
// release on every exit path is guaranteed by the submission machinery.
func AcquireBuf(name string, buf types.Buffer, initial types.Access) Value[types.Buffer] {
	return AcquireBufOn(CurrentModule(), name, buf, initial)
}

// AcquireBufOn is AcquireBuf on an explicit module.
func AcquireBufOn(m *Module, name string, buf types.Buffer, initial types.Access) Value[types.Buffer] {
	r := m.ir.NewAcquire(m.ir.Types().Buffer, name, buf, initial)
	return wrap[types.Buffer](m, r)
}

// AcquireIA binds a host-owned image attachment into the graph under
// the given initial access.
func AcquireIA(name string, ia types.ImageAttachment, initial types.Access) Value[types.ImageAttachment] {
	return AcquireIAOn(CurrentModule(), name, ia, initial)
}

// AcquireIAOn is AcquireIA on an explicit module.
func AcquireIAOn(m *Module, name string, ia types.ImageAttachment, initial types.Access) Value[types.ImageAttachment] {
	r := m.ir.NewAcquire(m.ir.Types().ImageAttachment, name, ia, initial)
	return wrap[types.ImageAttachment](m, r)
}

// DiscardBuf binds a host-owned buffer whose current contents are
// don't-care: the first graph use may be any write; reading first is
// a use-before-init error.
func DiscardBuf(name string, buf types.Buffer) Value[types.Buffer] {
	return DiscardBufOn(CurrentModule(), name, buf)
}

// DiscardBufOn is DiscardBuf on an explicit module.
func DiscardBufOn(m *Module, name string, buf types.Buffer) Value[types.Buffer] {
	r := m.ir.NewAcquire(m.ir.Types().Buffer, name, buf, types.AccessNone)
	r.Node.Discard = true
	return wrap[types.Buffer](m, r)
}

// DiscardIA binds a host-owned image whose current contents are
// don't-care.
func DiscardIA(name string, ia types.ImageAttachment) Value[types.ImageAttachment] {
	return DiscardIAOn(CurrentModule(), name, ia)
}

// DiscardIAOn is DiscardIA on an explicit module.
func DiscardIAOn(m *Module, name string, ia types.ImageAttachment) Value[types.ImageAttachment] {
	r := m.ir.NewAcquire(m.ir.Types().ImageAttachment, name, ia, types.AccessNone)
	r.Node.Discard = true
	return wrap[types.ImageAttachment](m, r)
}

// Array collects homogeneous values into one lazy array value.
func Array[T any](vs ...Value[T]) Value[[]T] {
	if len(vs) == 0 {
		return errValue[[]T](CurrentModule(), &types.GraphError{Kind: types.ErrInvalidType, Detail: "empty array"})
	}
	m := vs[0].mod
	for _, v := range vs {
		if v.err != nil {
			return errValue[[]T](m, v.err)
		}
	}
	elemTy := ir.Stripped(vs[0].head.Type())
	arrTy, err := m.ir.Types().MakeArray(elemTy, int64(len(vs)))
	if err != nil {
		return errValue[[]T](m, err)
	}
	args := make([]ir.Ref, len(vs))
	for i, v := range vs {
		args[i] = v.head
	}
	r, err := m.ir.NewConstruct(arrTy, nil, args)
	if err != nil {
		return errValue[[]T](m, err)
	}
	return wrap[[]T](m, r)
}

// ArrayIndex projects element i of an array value.
func ArrayIndex[T any](v Value[[]T], i int) Value[T] {
	return Field[T](v, i)
}

// GetArray waits for an array value and returns its elements.
func GetArray[T any](v Value[[]T], c *Compiler) ([]T, error) {
	if err := v.Wait(c, 0); err != nil {
		return nil, err
	}
	res, err := ir.Eval(v.head)
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]any)
	if !ok {
		return nil, &types.GraphError{Kind: types.ErrTypeMismatch, Detail: "result is not an array"}
	}
	out := make([]T, len(raw))
	for i, e := range raw {
		t, ok := e.(T)
		if !ok {
			return nil, &types.GraphError{Kind: types.ErrTypeMismatch, Detail: "array element type mismatch"}
		}
		out[i] = t
	}
	return out, nil
}
