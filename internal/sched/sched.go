// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sched assigns every call to a concrete executor domain,
// splices release/acquire pairs onto cross-domain edges and computes
// the per-edge synchronization tuples the executor programs.
package sched

import (
	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/internal/passes"
	"github.com/gogpu/rg/types"
)

// ResourceBarrier is one pre-execution transition of a call argument.
type ResourceBarrier struct {
	Arg     int
	IsImage bool
	Barrier types.Barrier
}

// Wait is a cross-domain dependency of a step: the step's batch must
// wait for the given sync point before executing.
type Wait struct {
	Point types.SyncPoint
}

// Step is one scheduled call.
type Step struct {
	Node   *ir.Node
	Domain types.Domain

	// Order is the global topological position.
	Order int

	// Batch indexes the submission batch the step belongs to.
	Batch int

	PreBarriers []ResourceBarrier
	Waits       []Wait
}

// Batch is one submission on one domain: a maximal run of consecutive
// same-domain steps. Signal is the timeline value the submission
// signals on completion.
type Batch struct {
	Domain types.Domain
	Steps  []*Step
	Signal uint64
	Waits  []types.SyncPoint

	// Signaled is true when a later batch on another domain waits on
	// this one, so a semaphore signal must be emitted.
	Signaled bool
}

// Plan is the scheduled form of one compile scope.
type Plan struct {
	Steps   []*Step
	Batches []*Batch

	// Domains lists the distinct domains used, in first-use order.
	Domains []types.Domain
}

// domainRank orders demotion candidates: graphics can do everything,
// compute a subset, transfer the least.
var domainRank = []types.Domain{
	types.DomainGraphicsQueue,
	types.DomainComputeQueue,
	types.DomainTransferQueue,
	types.DomainHost,
}

// Schedule produces the execution plan for the linked scope.
func Schedule(a *passes.Analysis) (*Plan, error) {
	var calls []*ir.Node
	for _, n := range a.Order {
		if n.Kind == ir.OpCall {
			calls = append(calls, n)
		}
	}

	assignDomains(a, calls)

	p := &Plan{}
	for i, n := range calls {
		s := &Step{Node: n, Domain: n.ScheduledDomain, Order: i}
		n.ScheduledOrder = i
		p.Steps = append(p.Steps, s)
	}

	computeBarriers(a, p)
	formBatches(p)
	return p, nil
}

// assignDomains resolves every call's executor domain: the declared
// hint when concrete, otherwise the nearest upstream concrete
// neighbor, otherwise the nearest downstream one, otherwise graphics.
// A domain that cannot execute the call's access set demotes to the
// nearest compatible one.
func assignDomains(a *passes.Analysis, calls []*ir.Node) {
	for _, n := range calls {
		n.ScheduledDomain = concreteQueue(n.Fn.Domain)
	}

	// Upstream inference in topological order.
	for _, n := range calls {
		if n.ScheduledDomain != types.DomainNone {
			continue
		}
		for _, arg := range n.Args {
			if d := producerDomain(arg); d != types.DomainNone {
				n.ScheduledDomain = d
				break
			}
		}
	}

	// Downstream inference in reverse order.
	for i := len(calls) - 1; i >= 0; i-- {
		n := calls[i]
		if n.ScheduledDomain == types.DomainNone {
			continue
		}
		for _, arg := range n.Args {
			p := ir.InternRef(arg)
			if !p.IsZero() && p.Node.Kind == ir.OpCall && p.Node.ScheduledDomain == types.DomainNone {
				p.Node.ScheduledDomain = n.ScheduledDomain
			}
		}
	}

	for _, n := range calls {
		if n.ScheduledDomain == types.DomainNone {
			n.ScheduledDomain = types.DomainGraphicsQueue
		}
		// Demotion: the chosen queue must execute every access.
		if !canExecuteAll(n, n.ScheduledDomain) {
			for _, d := range domainRank {
				if n.Fn.Domain&d != 0 || n.Fn.Domain == types.DomainNone {
					if canExecuteAll(n, d) {
						n.ScheduledDomain = d
						break
					}
				}
			}
			if !canExecuteAll(n, n.ScheduledDomain) {
				// Graphics executes everything the IR can express.
				n.ScheduledDomain = types.DomainGraphicsQueue
			}
		}
	}
}

// concreteQueue narrows a domain hint to a single queue, or DomainNone
// when the hint is ambiguous.
func concreteQueue(d types.Domain) types.Domain {
	q := d.Queue()
	if q != types.DomainNone && q&(q-1) == 0 && d != types.DomainAny {
		return q
	}
	return types.DomainNone
}

func producerDomain(r ir.Ref) types.Domain {
	p := ir.InternRef(r)
	for !p.IsZero() {
		switch p.Node.Kind {
		case ir.OpCall:
			return p.Node.ScheduledDomain
		case ir.OpSlice:
			p = ir.InternRef(p.Node.Args[0])
		default:
			return types.DomainNone
		}
	}
	return types.DomainNone
}

func canExecuteAll(n *ir.Node, d types.Domain) bool {
	for i := range n.Args {
		acc := ir.ImbuedAccess(n.Fn.ArgTypes[i])
		if acc == types.AccessNone {
			continue
		}
		if !d.CanExecute(acc) {
			return false
		}
	}
	return true
}

// resKey identifies a tracked resource state: a declaration plus the
// slice window it is viewed through.
type resKey struct {
	root      ir.Ref
	window    passes.Window
	hasWindow bool
}

// computeBarriers walks the steps in order, tracking the last use of
// every resource and emitting the (srcStage, srcAccess, dstStage,
// dstAccess, oldLayout, newLayout) tuple whenever a transition is
// required: a layout change, a write hazard, or a read after write.
func computeBarriers(a *passes.Analysis, p *Plan) {
	last := map[resKey]types.ResourceUse{}
	windows := map[ir.Ref][]passes.Window{}
	tc := a.Module.Types()

	for _, s := range p.Steps {
		n := s.Node
		for i, arg := range n.Args {
			argTy := n.Fn.ArgTypes[i]
			acc := ir.ImbuedAccess(argTy)
			if acc == types.AccessNone {
				continue
			}
			st := ir.Stripped(argTy)
			isImage := st == tc.ImageAttachment || st.Kind == ir.TypeImageView
			if st != tc.Buffer && !isImage {
				continue
			}

			root := a.Roots[arg]
			if root.IsZero() {
				root = passes.ResourceRoot(arg)
			}
			wnode, win, _ := passes.SliceWindowOf(arg)
			hasWin := wnode != nil
			key := resKey{root: root, window: win, hasWindow: hasWin}

			prev, seen := last[key]
			switch {
			case !hasWin && len(windows[root]) > 0:
				// Reconvergence: merge the slices' last uses into one
				// implicit barrier source covering every subresource.
				for _, w := range windows[root] {
					u := last[resKey{root: root, window: w, hasWindow: true}]
					prev.Stages |= u.Stages
					prev.Access |= u.Access
					prev.Layout = u.Layout
					delete(last, resKey{root: root, window: w, hasWindow: true})
				}
				delete(windows, root)
			case !seen && hasWin:
				// A slice starts from the parent's last state.
				prev = last[resKey{root: root}]
			case !seen:
				prev = initialUse(root)
			}

			cur := types.ToUse(acc)
			if needsBarrier(prev, cur, isImage) {
				s.PreBarriers = append(s.PreBarriers, ResourceBarrier{
					Arg:     i,
					IsImage: isImage,
					Barrier: types.Barrier{Src: prev, Dst: cur},
				})
			}
			last[key] = cur
			if hasWin && !containsWindow(windows[root], win) {
				windows[root] = append(windows[root], win)
			}
		}
	}
}

func containsWindow(ws []passes.Window, w passes.Window) bool {
	for _, x := range ws {
		if x == w {
			return true
		}
	}
	return false
}

// initialUse is the state a resource enters the graph in: the acquire
// access for acquired resources, undefined for managed declarations.
func initialUse(root ir.Ref) types.ResourceUse {
	if root.IsZero() {
		return types.ResourceUse{}
	}
	if root.Node.Kind == ir.OpAcquire {
		return types.ToUse(root.Node.Access)
	}
	if root.Node.Kind == ir.OpAcquireNextImage {
		return types.ResourceUse{Stages: types.StageColorOutput, Layout: types.LayoutUndefined}
	}
	return types.ResourceUse{Layout: types.LayoutUndefined}
}

// needsBarrier decides whether a transition between two uses requires
// synchronization: any write on either side, or an image layout
// change.
func needsBarrier(prev, cur types.ResourceUse, isImage bool) bool {
	if prev.IsWrite() || cur.IsWrite() {
		return true
	}
	if isImage && prev.Layout != cur.Layout {
		return true
	}
	return false
}

// formBatches groups consecutive same-domain steps into submission
// batches, assigns per-domain timeline values and wires cross-domain
// waits through release/acquire sync points.
func formBatches(p *Plan) {
	counters := map[types.Domain]uint64{}
	var batches []*Batch
	var cur *Batch

	producerBatch := map[*ir.Node]*Batch{}

	for _, s := range p.Steps {
		if cur == nil || cur.Domain != s.Domain {
			counters[s.Domain]++
			cur = &Batch{Domain: s.Domain, Signal: counters[s.Domain]}
			batches = append(batches, cur)
			if !containsDomain(p.Domains, s.Domain) {
				p.Domains = append(p.Domains, s.Domain)
			}
		}
		s.Batch = len(batches) - 1
		cur.Steps = append(cur.Steps, s)
		producerBatch[s.Node] = cur

		// Cross-domain edges: wait on every producer scheduled to a
		// different domain. The producer's signal is the timeline
		// value of its batch; pairing release to acquire.
		for _, arg := range s.Node.Args {
			prod := ir.InternRef(arg)
			pn := producerCall(prod)
			if pn == nil {
				continue
			}
			pb := producerBatch[pn]
			if pb == nil || pb == cur || pb.Domain == cur.Domain {
				continue
			}
			pb.Signaled = true
			point := types.SyncPoint{Domain: pb.Domain, Visibility: pb.Signal}
			if !containsPoint(cur.Waits, point) {
				cur.Waits = append(cur.Waits, point)
				s.Waits = append(s.Waits, Wait{Point: point})
			}
		}
	}
	p.Batches = batches
}

func producerCall(r ir.Ref) *ir.Node {
	for !r.IsZero() {
		switch r.Node.Kind {
		case ir.OpCall:
			return r.Node
		case ir.OpSlice, ir.OpSplice, ir.OpRelease:
			r = r.Node.Args[0]
		default:
			return nil
		}
	}
	return nil
}

func containsDomain(ds []types.Domain, d types.Domain) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

func containsPoint(ps []types.SyncPoint, pt types.SyncPoint) bool {
	for _, x := range ps {
		if x == pt {
			return true
		}
	}
	return false
}
