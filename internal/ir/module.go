// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ir

import (
	"sync"

	"github.com/gogpu/rg/types"
)

// Module owns a node arena and a type interner. Graph construction is
// single-writer per module; the module mutex makes the arena and the
// interner safe when multiple goroutines build disjoint graphs on one
// module.
//
// Nodes live until Collect observes them unreachable from any retained
// reference; they are never reused afterwards.
type Module struct {
	mu    sync.Mutex
	types *TypeContext
	nodes []*Node
	nextID int
}

// NewModule returns an empty module with interned builtin types.
func NewModule() *Module {
	return &Module{types: newTypeContext()}
}

// Types returns the module's type interner. The interner carries its
// own lock; builtin type fields are immutable after construction.
func (m *Module) Types() *TypeContext {
	return m.types
}

// Lock serializes type interning and node creation for callers that
// batch several operations.
func (m *Module) Lock()   { m.mu.Lock() }
func (m *Module) Unlock() { m.mu.Unlock() }

// NodeCount returns the number of live nodes in the arena.
func (m *Module) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Nodes calls fn for every live node in creation order.
func (m *Module) Nodes(fn func(*Node) bool) {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()
	for _, n := range nodes {
		if !fn(n) {
			return
		}
	}
}

func (m *Module) emplace(n *Node) *Node {
	m.mu.Lock()
	n.id = m.nextID
	m.nextID++
	n.ScheduledOrder = -1
	m.nodes = append(m.nodes, n)
	m.mu.Unlock()
	return n
}

// NewConstant appends a CONSTANT node holding value.
func (m *Module) NewConstant(ty *Type, value any) Ref {
	n := m.emplace(&Node{Kind: OpConstant, Type: []*Type{ty}, Value: value})
	return n.Result(0)
}

// NewPlaceholder appends a PLACEHOLDER node of the given type. Reify
// inference turns placeholders into constants.
func (m *Module) NewPlaceholder(ty *Type) Ref {
	n := m.emplace(&Node{Kind: OpPlaceholder, Type: []*Type{ty}})
	return n.Result(0)
}

// NewConstruct appends a CONSTRUCT of a composite type. base is the
// caller-provided aggregate (may be nil); args carries exactly one ref
// per member, placeholders included.
func (m *Module) NewConstruct(ty *Type, base any, args []Ref) (Ref, error) {
	st := Stripped(ty)
	if st.Kind == TypeComposite && len(args) != len(st.Members) {
		return Zero, &types.GraphError{Kind: types.ErrIncompleteConstruct,
			Detail: st.Name}
	}
	if st.Kind == TypeArray && st.Count >= 0 && int64(len(args)) != st.Count {
		return Zero, &types.GraphError{Kind: types.ErrIncompleteConstruct,
			Detail: st.String()}
	}
	n := m.emplace(&Node{Kind: OpConstruct, Type: []*Type{ty}, Value: base, Args: args})
	return n.Result(0), nil
}

// NewCall appends a CALL of the given opaque function. The argument
// count and each argument's stripped type must match the declaration.
func (m *Module) NewCall(fn *Type, name string, args []Ref) (*Node, error) {
	if fn.Kind != TypeOpaqueFn {
		return nil, &types.GraphError{Kind: types.ErrTypeMismatch, Node: name, Detail: "call target is not a function"}
	}
	if len(args) != len(fn.ArgTypes) {
		return nil, &types.GraphError{Kind: types.ErrTypeMismatch, Node: name,
			Detail: "argument count mismatch"}
	}
	for i, a := range args {
		if a.IsZero() || a.Index >= len(a.Node.Type) {
			return nil, &types.GraphError{Kind: types.ErrUnattachedResource, Node: name}
		}
		want := Stripped(fn.ArgTypes[i])
		got := Stripped(a.Type())
		if want != got && !arrayCompatible(want, got) {
			return nil, &types.GraphError{Kind: types.ErrTypeMismatch, Node: name,
				Detail: "argument " + got.String() + " where " + want.String() + " expected"}
		}
	}
	n := m.emplace(&Node{Kind: OpCall, Type: fn.ResultTypes, Args: args, Fn: fn, Name: name})
	return n, nil
}

// arrayCompatible accepts an array of any length where a
// remaining-count array of the same element type is declared.
func arrayCompatible(want, got *Type) bool {
	if want == nil || got == nil || want.Kind != TypeArray || got.Kind != TypeArray {
		return false
	}
	if want.Elem != got.Elem {
		return false
	}
	return want.Count == CountRemaining || got.Count == CountRemaining || want.Count == got.Count
}

// NewSlice appends a SLICE dividing one axis of src. start and count
// must be constant-evaluable before execution.
func (m *Module) NewSlice(src Ref, axis SliceAxis, start, count Ref, resultTy *Type) Ref {
	n := m.emplace(&Node{Kind: OpSlice, Type: []*Type{resultTy}, Args: []Ref{src, start, count}, Axis: axis})
	return n.Result(0)
}

// NewGetCI appends a GET_CI projecting the creation info of src.
func (m *Module) NewGetCI(src Ref, resultTy *Type) Ref {
	n := m.emplace(&Node{Kind: OpGetCI, Type: []*Type{resultTy}, Args: []Ref{src}})
	return n.Result(0)
}

// NewMathBinary appends a MATH_BINARY combining a and b.
func (m *Module) NewMathBinary(op BinOp, a, b Ref) Ref {
	n := m.emplace(&Node{Kind: OpMathBinary, Type: []*Type{Stripped(a.Type())}, Args: []Ref{a, b}, Op: op})
	return n.Result(0)
}

// NewAcquire appends an ACQUIRE binding a host-owned value into the
// graph under the given initial access.
func (m *Module) NewAcquire(ty *Type, name string, value any, access types.Access) Ref {
	n := m.emplace(&Node{Kind: OpAcquire, Type: []*Type{ty}, Value: value, Name: name, Access: access,
		RelAcq: types.NewAcquireRelease()})
	return n.Result(0)
}

// NewRelease appends a RELEASE ending the graph's ownership of src
// under the given final access.
func (m *Module) NewRelease(src Ref, access types.Access) Ref {
	n := m.emplace(&Node{Kind: OpRelease, Type: []*Type{src.Type()}, Args: []Ref{src}, Access: access,
		RelAcq: types.NewAcquireRelease()})
	return n.Result(0)
}

// NewSplice appends a SPLICE carrying src across a domain boundary.
func (m *Module) NewSplice(src Ref) Ref {
	n := m.emplace(&Node{Kind: OpSplice, Type: []*Type{src.Type()}, Args: []Ref{src},
		RelAcq: types.NewAcquireRelease()})
	return n.Result(0)
}

// NewAcquireNextImage appends an ACQUIRE_NEXT_IMAGE on a swapchain.
func (m *Module) NewAcquireNextImage(swp Ref, resultTy *Type) Ref {
	n := m.emplace(&Node{Kind: OpAcquireNextImage, Type: []*Type{resultTy}, Args: []Ref{swp},
		RelAcq: types.NewAcquireRelease()})
	return n.Result(0)
}

// InternRef canonicalizes a reference for equality testing in passes.
// Splices and releases are transparent: the canonical ref is the
// underlying producer.
func InternRef(r Ref) Ref {
	for !r.IsZero() {
		switch r.Node.Kind {
		case OpSplice, OpRelease:
			r = r.Node.Args[0]
		default:
			return r
		}
	}
	return r
}

// Collect frees orphaned subtrees: nodes unreachable from any retained
// node become GARBAGE and leave the arena. The compiler runs it at the
// end of each submission.
func (m *Module) Collect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	marked := make(map[*Node]bool, len(m.nodes))
	var mark func(n *Node)
	mark = func(n *Node) {
		if n == nil || marked[n] {
			return
		}
		marked[n] = true
		for _, a := range n.Args {
			mark(a.Node)
		}
	}
	for _, n := range m.nodes {
		if n.refs > 0 {
			mark(n)
		}
	}

	live := m.nodes[:0]
	for _, n := range m.nodes {
		if marked[n] {
			live = append(live, n)
		} else {
			n.Kind = OpGarbage
			n.Args = nil
			n.Value = nil
			n.Links = nil
			n.ExecValues = nil
		}
	}
	m.nodes = live
}
