// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package passes implements the IR passes run between graph
// construction and scheduling: reify inference, the use-chain (link)
// builder, slice resolution and reconvergence.
package passes

import (
	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/types"
)

// Window identifies one slice subrange of a resource by value: two
// slices selecting the same axis range address the same subresource.
type Window struct {
	Axis         ir.SliceAxis
	Start, Count uint64
}

// Use is one recorded use of a resource: which node consumed it, at
// which argument slot, under which access, and through which slice
// window.
type Use struct {
	Node   *ir.Node
	Arg    int
	Access types.Access

	// Window is the slice window the use went through; HasWindow
	// distinguishes whole-resource uses.
	Window    Window
	HasWindow bool

	// WindowNode is the slice node of this use, for chain defs.
	WindowNode *ir.Node
}

// Analysis is the linked view of one compile scope. The scheduler and
// the executor consume it.
type Analysis struct {
	Module *ir.Module

	// Order is the compile scope in creation order; creation order is
	// topological because nodes never reference future nodes.
	Order []*ir.Node

	// Chains maps each resource declaration ref to the head of its use
	// chain.
	Chains map[ir.Ref]*ir.ChainLink

	// Uses maps each resource declaration ref to its uses in time
	// order.
	Uses map[ir.Ref][]Use

	// Roots maps every ref in the scope to its resource declaration.
	Roots map[ir.Ref]ir.Ref
}

// CollectScope gathers the nodes reachable from root in creation
// order, skipping nodes already executed by a previous submission:
// their results splice in as acquired values.
func CollectScope(m *ir.Module, roots []ir.Ref) []*ir.Node {
	seen := map[*ir.Node]bool{}
	var visit func(r ir.Ref)
	visit = func(r ir.Ref) {
		if r.IsZero() || seen[r.Node] || r.Node.Executed {
			return
		}
		seen[r.Node] = true
		for _, a := range r.Node.Args {
			visit(a)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	var order []*ir.Node
	m.Nodes(func(n *ir.Node) bool {
		if seen[n] {
			order = append(order, n)
		}
		return true
	})
	return order
}

// ResourceRoot resolves a reference to the declaration of the resource
// flowing through it, following slices, splices, releases and aliased
// call results. A non-resource ref resolves to itself.
func ResourceRoot(r ir.Ref) ir.Ref {
	for !r.IsZero() {
		n := r.Node
		switch n.Kind {
		case ir.OpSlice, ir.OpSplice, ir.OpRelease:
			r = n.Args[0]
		case ir.OpCall:
			idx := ir.AliasedIndex(r.Type())
			if idx < 0 || idx >= len(n.Args) {
				return r
			}
			r = n.Args[idx]
		default:
			return r
		}
	}
	return r
}

// isResourceType reports whether a stripped type flows a trackable
// resource: a buffer, an image attachment, or an array of either.
func isResourceType(tc *ir.TypeContext, t *ir.Type) bool {
	t = ir.Stripped(t)
	if t == nil {
		return false
	}
	if t.Kind == ir.TypeArray {
		return isResourceType(tc, t.Elem)
	}
	return t == tc.Buffer || t == tc.ImageAttachment || t.Kind == ir.TypeImageView
}

// SliceWindowOf evaluates the window a use went through. The node
// result is nil for whole-resource uses.
func SliceWindowOf(r ir.Ref) (*ir.Node, Window, error) {
	for !r.IsZero() {
		n := r.Node
		switch n.Kind {
		case ir.OpSlice:
			if n.Axis == ir.AxisField {
				// Field projections carve a separate resource, not a
				// subrange window.
				return nil, Window{}, nil
			}
			start, err := ir.EvalUint(n.Args[1])
			if err != nil {
				return nil, Window{}, err
			}
			count := uint64(0)
			if cv, cerr := ir.Eval(n.Args[2]); cerr == nil {
				if c, ok := cv.(int64); ok && c == ir.CountRemaining {
					count = ^uint64(0)
				} else if c, uerr := ir.EvalUint(n.Args[2]); uerr == nil {
					count = c
				}
			} else {
				return nil, Window{}, cerr
			}
			// Slicing through an aliased result whose source is itself
			// sliced is not modeled; reject it rather than guess.
			// Direct nested slices (buffer subranges) stay legal and
			// compose additively.
			if err := rejectAliasedSliceSource(n.Args[0]); err != nil {
				return nil, Window{}, err
			}
			return n, Window{Axis: n.Axis, Start: start, Count: count}, nil
		case ir.OpSplice, ir.OpRelease:
			r = n.Args[0]
		case ir.OpCall:
			idx := ir.AliasedIndex(r.Type())
			if idx < 0 {
				return nil, Window{}, nil
			}
			r = n.Args[idx]
		default:
			return nil, Window{}, nil
		}
	}
	return nil, Window{}, nil
}

// rejectAliasedSliceSource walks below a slice and errors when an
// aliased call result backed by another slice is found.
func rejectAliasedSliceSource(r ir.Ref) error {
	crossedCall := false
	for !r.IsZero() {
		n := r.Node
		switch n.Kind {
		case ir.OpSlice:
			if crossedCall && n.Axis != ir.AxisField {
				return &types.GraphError{Kind: types.ErrInvalidSlice, Pass: "link",
					Node: n.String(), Detail: "slice of an already-sliced aliased source"}
			}
			r = n.Args[0]
		case ir.OpSplice, ir.OpRelease:
			r = n.Args[0]
		case ir.OpCall:
			idx := ir.AliasedIndex(r.Type())
			if idx < 0 {
				return nil
			}
			crossedCall = true
			r = n.Args[idx]
		default:
			return nil
		}
	}
	return nil
}

// BuildLinks runs the use-chain builder over the scope: for every
// resource declaration it produces the def -> reads* -> undef chain,
// with child chains per slice window and reconvergence bookkeeping.
func BuildLinks(m *ir.Module, order []*ir.Node) (*Analysis, error) {
	a := &Analysis{
		Module: m,
		Order:  order,
		Chains: map[ir.Ref]*ir.ChainLink{},
		Uses:   map[ir.Ref][]Use{},
		Roots:  map[ir.Ref]ir.Ref{},
	}
	tc := m.Types()

	// Pass 1: record declarations and uses in creation order.
	for _, n := range order {
		switch n.Kind {
		case ir.OpAcquire, ir.OpConstruct, ir.OpAcquireNextImage:
			if len(n.Type) > 0 && isResourceType(tc, n.Type[0]) {
				root := n.Result(0)
				if _, dup := a.Chains[root]; !dup {
					a.Chains[root] = &ir.ChainLink{Def: root, URDef: root}
					if len(n.Links) == 0 {
						n.Links = make([]*ir.ChainLink, len(n.Type))
					}
					n.Links[0] = a.Chains[root]
				}
			}
		case ir.OpCall:
			for i, arg := range n.Args {
				argTy := n.Fn.ArgTypes[i]
				if !isResourceType(tc, argTy) {
					continue
				}
				root := ResourceRoot(arg)
				if _, ok := a.Chains[root]; !ok {
					// Resource flows in from outside the scope (an
					// executed call); chain it from an implicit def.
					a.Chains[root] = &ir.ChainLink{Def: root, URDef: root}
				}
				wnode, win, err := SliceWindowOf(arg)
				if err != nil {
					return nil, err
				}
				a.Roots[arg] = root
				a.Uses[root] = append(a.Uses[root], Use{Node: n, Arg: i, Access: ir.ImbuedAccess(argTy),
					Window: win, HasWindow: wnode != nil, WindowNode: wnode})
			}
		case ir.OpRelease:
			root := ResourceRoot(n.Args[0])
			if _, ok := a.Chains[root]; ok {
				acc := n.Access
				if acc == types.AccessNone {
					acc = types.AccessMemoryRead
				}
				a.Uses[root] = append(a.Uses[root], Use{Node: n, Arg: 0, Access: acc})
			}
		}
	}

	// Pass 2: thread chains.
	for root, uses := range a.Uses {
		if err := a.threadChain(root, uses); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// threadChain converts the time-ordered use list of one resource into
// linked def -> reads* -> undef steps, handling slice divergence and
// reconvergence.
func (a *Analysis) threadChain(root ir.Ref, uses []Use) error {
	head := a.Chains[root]
	cur := head
	initialized := declarationInitialized(root)

	// Child chains per window value within the current divergence
	// epoch; a whole-resource use reconverges and seals the epoch.
	children := map[Window]*ir.ChainLink{}
	convergedAt := -1

	for _, u := range uses {
		write := u.Access.IsWrite()
		read := u.Access.IsRead()

		if u.HasWindow {
			// A slice value minted before the last reconvergence point
			// observes pre-convergence state: time travel.
			if convergedAt >= 0 && u.WindowNode != nil && u.WindowNode.ID() < convergedAt {
				return &types.GraphError{Kind: types.ErrTimeTravel, Pass: "link",
					Node: u.Node.String(), Detail: "slice used after its reconvergence point"}
			}
			child, ok := children[u.Window]
			if !ok {
				def := root
				if u.WindowNode != nil {
					def = u.WindowNode.Result(0)
				}
				child = &ir.ChainLink{Def: def, URDef: root}
				children[u.Window] = child
				cur.Children = append(cur.Children, child)
			}
			children[u.Window] = appendUse(child, u)
			continue
		}

		// Whole-resource use: any live children reconverge here and
		// the divergence epoch ends.
		if len(children) > 0 {
			children = map[Window]*ir.ChainLink{}
			convergedAt = u.Node.ID()
			cur.Converged = true
			initialized = true
		}

		if read && !write && !initialized {
			return &types.GraphError{Kind: types.ErrUseBeforeInit, Pass: "link",
				Node: u.Node.String(), Detail: root.Node.Name}
		}

		switch {
		case write:
			// A write ends the current link and roots a new one at the
			// produced value (the aliased result when present).
			cur.Undef = useRef(u)
			next := &ir.ChainLink{Def: resultRefOf(u), URDef: root, Prev: cur}
			cur.Next = next
			attachLink(u.Node, next)
			cur = next
			initialized = true
		case read:
			cur.Reads = append(cur.Reads, useRef(u))
		}
	}
	return nil
}

// appendUse threads one use onto a chain tail and returns the link
// subsequent uses continue on.
func appendUse(l *ir.ChainLink, u Use) *ir.ChainLink {
	if u.Access.IsWrite() {
		l.Undef = useRef(u)
		next := &ir.ChainLink{Def: resultRefOf(u), URDef: l.URDef, Prev: l}
		l.Next = next
		attachLink(u.Node, next)
		return next
	}
	if u.Access.IsRead() {
		l.Reads = append(l.Reads, useRef(u))
	}
	return l
}

func useRef(u Use) ir.Ref {
	return ir.Ref{Node: u.Node, Index: u.Arg}
}

// resultRefOf returns the ref downstream consumers continue from after
// a writing use: the aliased call result when one exists, otherwise
// the argument ref itself.
func resultRefOf(u Use) ir.Ref {
	if u.Node.Kind == ir.OpCall {
		for ri, rt := range u.Node.Type {
			if ir.AliasedIndex(rt) == u.Arg {
				return u.Node.Result(ri)
			}
		}
	}
	return useRef(u)
}

func attachLink(n *ir.Node, l *ir.ChainLink) {
	if len(n.Links) == 0 {
		n.Links = make([]*ir.ChainLink, len(n.Type))
	}
	for ri, rt := range n.Type {
		if ir.AliasedIndex(rt) == l.Def.Index || (l.Def.Node == n && l.Def.Index == ri) {
			n.Links[ri] = l
			return
		}
	}
	if len(n.Links) > 0 {
		n.Links[0] = l
	}
}

// declarationInitialized reports whether the declaring node provides
// defined contents: an acquire of a live resource does, a managed
// construct or a discard does not.
func declarationInitialized(root ir.Ref) bool {
	n := root.Node
	switch n.Kind {
	case ir.OpAcquire:
		if n.Discard {
			return false
		}
		return n.Access != types.AccessNone || hasBacking(n.Value)
	case ir.OpAcquireNextImage:
		return true
	case ir.OpConstruct:
		return false
	}
	return true
}

func hasBacking(v any) bool {
	switch x := v.(type) {
	case types.ImageAttachment:
		return !x.Image.IsZero()
	case types.Buffer:
		return !x.IsZero()
	}
	return v != nil
}

// ChainOrderConsistent verifies that the scheduled order of uses is
// consistent with every def -> reads* -> undef chain: every read of a
// link precedes that link's undef. The order of a def against its
// reads is not checked. It is the checkable form of the linker's
// ordering invariant.
func (a *Analysis) ChainOrderConsistent(orderOf func(*ir.Node) int) bool {
	for _, head := range a.Chains {
		for l := head; l != nil; l = l.Next {
			end := int(^uint(0) >> 1)
			if !l.Undef.IsZero() {
				end = orderOf(l.Undef.Node)
			}
			for _, r := range l.Reads {
				if orderOf(r.Node) > end {
					return false
				}
			}
		}
	}
	return true
}
