// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ir

import (
	"github.com/gogpu/rg/types"
)

// Eval constant-evaluates a reference. It understands constants,
// acquires, constructs, slices, get-ci projections and binary math;
// anything else (notably placeholders) cannot be evaluated yet and
// returns ErrCannotBeConstantEvaluated. Inference and scheduling call
// it repeatedly as placeholders resolve.
func Eval(r Ref) (any, error) {
	if r.IsZero() {
		return nil, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Detail: "nil ref"}
	}
	n := r.Node
	switch n.Kind {
	case OpConstant, OpAcquire, OpAcquireNextImage:
		return n.Value, nil

	case OpConstruct:
		return evalConstruct(n)

	case OpSlice:
		return evalSlice(n)

	case OpGetCI:
		// Creation info of a resource value is the value itself; the
		// construct carries the CI members.
		return Eval(n.Args[0])

	case OpMathBinary:
		return evalBinop(n)

	case OpSplice, OpRelease:
		return Eval(n.Args[0])

	case OpCall:
		// An executed call's results are host-known. Before execution
		// a write-back result still exposes its argument's view: the
		// creation info passes through aliasing unchanged, which is
		// what inference and materialization ask for.
		if n.Executed && r.Index < len(n.ExecValues) {
			return n.ExecValues[r.Index], nil
		}
		if idx := AliasedIndex(r.Type()); idx >= 0 && idx < len(n.Args) {
			return Eval(n.Args[idx])
		}
		return nil, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Node: n.String()}

	default:
		return nil, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Node: n.String()}
	}
}

// EvalUint evaluates a reference to an unsigned integer.
func EvalUint(r Ref) (uint64, error) {
	v, err := Eval(r)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint32:
		return uint64(x), nil
	case int64:
		return uint64(x), nil
	case int32:
		return uint64(x), nil
	case int:
		return uint64(x), nil
	}
	return 0, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Detail: "not an integer"}
}

func evalConstruct(n *Node) (any, error) {
	ty := Stripped(n.Type[0])
	switch ty.Kind {
	case TypeArray:
		elems := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return elems, nil

	case TypeComposite:
		args := make([]any, len(n.Args)+1)
		args[0] = n.Value
		for i, a := range n.Args {
			v, err := Eval(a)
			if err != nil {
				// A still-unresolved member blocks evaluation unless
				// the base aggregate provides it.
				if n.Value != nil && a.Node.Kind == OpPlaceholder {
					args[i+1] = nil
					continue
				}
				return nil, err
			}
			args[i+1] = v
		}
		if ty.Hooks.Construct == nil {
			return nil, &types.GraphError{Kind: types.ErrIncompleteConstruct, Detail: ty.Name + " has no construct hook"}
		}
		return ty.Hooks.Construct(args), nil

	default:
		if len(n.Args) == 1 {
			return Eval(n.Args[0])
		}
		return nil, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Node: n.String()}
	}
}

func evalSlice(n *Node) (any, error) {
	src, err := Eval(n.Args[0])
	if err != nil {
		return nil, err
	}
	start, err := EvalUint(n.Args[1])
	if err != nil {
		return nil, err
	}
	count := uint64(0)
	remaining := false
	if cv, err := Eval(n.Args[2]); err != nil {
		return nil, err
	} else if c, ok := cv.(int64); ok && c == CountRemaining {
		remaining = true
	} else if c, err := EvalUint(n.Args[2]); err == nil {
		count = c
	} else {
		return nil, err
	}

	srcTy := Stripped(n.Args[0].Type())
	switch n.Axis {
	case AxisField:
		switch srcTy.Kind {
		case TypeComposite:
			if int(start) >= len(srcTy.Members) || srcTy.Hooks.Get == nil {
				return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String()}
			}
			return srcTy.Hooks.Get(src, int(start)), nil
		case TypeArray:
			arr, ok := src.([]any)
			if !ok || int(start) >= len(arr) {
				return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String()}
			}
			return arr[start], nil
		}
		return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String()}

	case AxisMip:
		ia, ok := src.(types.ImageAttachment)
		if !ok {
			return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String(), Detail: "mip slice of non-image"}
		}
		ia.BaseLevel += uint32(start)
		if !remaining {
			ia.LevelCount = uint32(count)
		} else if ia.LevelCount != types.RemainingMips {
			ia.LevelCount -= uint32(start)
		}
		return ia, nil

	case AxisLayer:
		ia, ok := src.(types.ImageAttachment)
		if !ok {
			return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String(), Detail: "layer slice of non-image"}
		}
		ia.BaseLayer += uint32(start)
		if !remaining {
			ia.LayerCount = uint32(count)
		} else if ia.LayerCount != types.RemainingLayers {
			ia.LayerCount -= uint32(start)
		}
		return ia, nil

	case AxisRange:
		buf, ok := src.(types.Buffer)
		if !ok {
			return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String(), Detail: "range slice of non-buffer"}
		}
		size := buf.Size - start
		if !remaining {
			size = count
		}
		if start+size > buf.Size {
			return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String(), Detail: "range out of bounds"}
		}
		return buf.Subrange(start, size), nil
	}
	return nil, &types.GraphError{Kind: types.ErrInvalidSlice, Node: n.String()}
}

func evalBinop(n *Node) (any, error) {
	av, err := EvalUint(n.Args[0])
	if err != nil {
		return nil, err
	}
	bv, err := EvalUint(n.Args[1])
	if err != nil {
		return nil, err
	}
	var c uint64
	switch n.Op {
	case OpAdd:
		c = av + bv
	case OpSub:
		c = av - bv
	case OpMul:
		c = av * bv
	case OpDiv:
		if bv == 0 {
			return nil, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Detail: "division by zero"}
		}
		c = av / bv
	case OpMod:
		if bv == 0 {
			return nil, &types.GraphError{Kind: types.ErrCannotBeConstantEvaluated, Detail: "division by zero"}
		}
		c = av % bv
	}
	ty := Stripped(n.Type[0])
	if ty != nil && ty.Bits == 32 {
		return uint32(c), nil
	}
	return c, nil
}

// ReifyPlaceholder turns a placeholder into a constant in place. It is
// the only sanctioned node mutation outside construction; the reify
// pass drives it to a fixed point.
func ReifyPlaceholder(r Ref, value any) bool {
	if r.IsZero() || r.Node.Kind != OpPlaceholder {
		return false
	}
	r.Node.Kind = OpConstant
	r.Node.Value = value
	return true
}
