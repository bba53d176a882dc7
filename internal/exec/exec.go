// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package exec walks a scheduled plan in order: it materializes
// transient resources through the allocator, builds renderpasses and
// framebuffers on demand, programs barriers and semaphores, invokes the
// user callbacks with a scope-bound command buffer, and emits one
// submission per batch.
package exec

import (
	"fmt"
	"hash/fnv"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/cache"
	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/internal/passes"
	"github.com/gogpu/rg/internal/sched"
	"github.com/gogpu/rg/types"
)

// Executor drives the execution of scheduled plans on one backend. It
// caches renderpasses and framebuffers across submissions; the
// allocator owns their storage.
type Executor struct {
	backend backend.Backend
	alloc   backend.Allocator

	domains map[types.Domain]*domainState

	// cacheKey salts the device-object cache keys so submissions
	// compiled under different graph-cache keys never share entries.
	cacheKey uint64

	renderPasses *cache.Cache[uint64, any]
	framebuffers *cache.Cache[uint64, any]
}

type domainState struct {
	exec backend.Executor
	cb   backend.CommandBuffer
}

// New returns an executor over the given backend. cacheKey
// discriminates device-object caches between graph-cache domains.
func New(b backend.Backend, cacheKey uint64) *Executor {
	return &Executor{
		backend:      b,
		alloc:        b.Allocator(),
		domains:      map[types.Domain]*domainState{},
		cacheKey:     cacheKey,
		renderPasses: cache.New[uint64, any](64),
		framebuffers: cache.New[uint64, any](128),
	}
}

// Allocator returns the allocator executions draw from.
func (e *Executor) Allocator() backend.Allocator { return e.alloc }

func (e *Executor) domain(d types.Domain) (*domainState, error) {
	if ds, ok := e.domains[d]; ok {
		return ds, nil
	}
	ex, cb, err := e.backend.NewExecutor(d)
	if err != nil {
		return nil, err
	}
	ds := &domainState{exec: ex, cb: cb}
	e.domains[d] = ds
	return ds, nil
}

// Run executes the plan. On success every observable node's signal is
// raised to Synchronizable with its submission sync point; callers
// observing completion through WaitSyncPoints raise them to
// HostAvailable. On a callback or submission failure no further
// batches are submitted and no semaphores are signaled for the failed
// batch.
func (e *Executor) Run(a *passes.Analysis, p *sched.Plan) error {
	if err := e.materialize(a); err != nil {
		return err
	}

	for _, b := range p.Batches {
		ds, err := e.domain(b.Domain)
		if err != nil {
			return err
		}
		for _, s := range b.Steps {
			if err := e.runStep(a, ds, s); err != nil {
				return err
			}
		}
		point, err := ds.exec.Submit(b.Signal, b.Waits)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrSubmitFailed, err)
		}
		for _, s := range b.Steps {
			if s.Node.RelAcq != nil {
				s.Node.RelAcq.Advance(types.SignalSynchronizable, point)
			}
			s.Node.Executed = true
		}
		e.advanceObservers(a, b, point)
	}
	return nil
}

// advanceObservers raises the signals of non-call observable nodes
// whose producers live in the just-submitted batch.
func (e *Executor) advanceObservers(a *passes.Analysis, b *sched.Batch, point types.SyncPoint) {
	inBatch := map[*ir.Node]bool{}
	for _, s := range b.Steps {
		inBatch[s.Node] = true
	}
	for _, n := range a.Order {
		if n.RelAcq == nil || n.Kind == ir.OpCall {
			continue
		}
		switch n.Kind {
		case ir.OpRelease, ir.OpSplice:
			if p := producer(n.Args[0]); p != nil && inBatch[p] {
				n.RelAcq.LastUse = lastUses(a, n.Args[0])
				n.RelAcq.Advance(types.SignalSynchronizable, point)
			}
		}
	}
}

func producer(r ir.Ref) *ir.Node {
	p := ir.InternRef(r)
	if p.IsZero() {
		return nil
	}
	return p.Node
}

func lastUses(a *passes.Analysis, r ir.Ref) []types.ResourceUse {
	root := passes.ResourceRoot(r)
	uses := a.Uses[root]
	if len(uses) == 0 {
		return nil
	}
	return []types.ResourceUse{types.ToUse(uses[len(uses)-1].Access)}
}

// materialize backs every declared-in-graph resource: constructs
// without a backing handle receive allocations sized by their inferred
// creation info, and the construct collapses to a constant so later
// evaluation sees the live resource.
func (e *Executor) materialize(a *passes.Analysis) error {
	tc := a.Module.Types()
	for _, n := range a.Order {
		if n.Kind != ir.OpConstruct {
			continue
		}
		st := ir.Stripped(n.Type[0])
		switch st {
		case tc.Buffer:
			v, err := passes.ResolveConstruct(n)
			if err != nil {
				return err
			}
			buf := v.(types.Buffer)
			if buf.IsZero() {
				if buf.Size == 0 {
					return &types.GraphError{Kind: types.ErrUnattachedResource,
						Pass: "exec", Node: n.String(), Detail: "buffer size never inferred"}
				}
				dst := make([]types.Buffer, 1)
				ci := types.BufferCreateInfo{MemoryUsage: buf.MemoryUsage, Size: buf.Size, Alignment: 4}
				if ci.MemoryUsage == types.MemoryUsageInfer {
					ci.MemoryUsage = types.MemoryUsageGPUOnly
				}
				if err := e.alloc.AllocateBuffers(dst, []types.BufferCreateInfo{ci}); err != nil {
					return err
				}
				buf = dst[0]
			}
			collapse(n, buf)

		case tc.ImageAttachment:
			v, err := passes.ResolveConstruct(n)
			if err != nil {
				return err
			}
			ia := v.(types.ImageAttachment)
			if ia.Image.IsZero() {
				if !ia.IsComplete() {
					return &types.GraphError{Kind: types.ErrUnattachedResource,
						Pass: "exec", Node: n.String(), Detail: "image properties never inferred: " + ia.String()}
				}
				imgs := make([]types.Image, 1)
				ici := types.ImageCreateInfo{
					Extent: ia.Extent, Format: ia.Format, SampleCount: ia.SampleCount,
					Levels: ia.BaseLevel + ia.LevelCount, Layers: ia.BaseLayer + ia.LayerCount,
				}
				if err := e.alloc.AllocateImages(imgs, []types.ImageCreateInfo{ici}); err != nil {
					return err
				}
				ia.Image = imgs[0]
				views := make([]types.ImageView, 1)
				vci := types.ImageViewCreateInfo{
					Image: ia.Image, Format: ia.Format,
					BaseLevel: ia.BaseLevel, LevelCount: ia.LevelCount,
					BaseLayer: ia.BaseLayer, LayerCount: ia.LayerCount,
				}
				if err := e.alloc.AllocateImageViews(views, []types.ImageViewCreateInfo{vci}); err != nil {
					return err
				}
				ia.ImageView = views[0]
			}
			collapse(n, ia)
		}
	}
	return nil
}

// collapse rewrites a construct into the constant it evaluated to.
func collapse(n *ir.Node, v any) {
	n.Kind = ir.OpConstant
	n.Value = v
	n.Args = nil
}

// runStep emits barriers, begins a renderpass when the call has
// framebuffer attachments, and invokes the callback inside a scoped
// command buffer.
func (e *Executor) runStep(a *passes.Analysis, ds *domainState, s *sched.Step) error {
	n := s.Node

	args := make([]any, len(n.Args))
	for i, arg := range n.Args {
		v, err := ir.Eval(arg)
		if err != nil {
			if ir.ImbuedAccess(n.Fn.ArgTypes[i]) == types.AccessNone {
				args[i] = nil
				continue
			}
			return err
		}
		args[i] = v
	}

	for _, rb := range s.PreBarriers {
		if rb.IsImage {
			ia, ok := args[rb.Arg].(types.ImageAttachment)
			if !ok {
				continue
			}
			ds.exec.Barrier(rb.Barrier, &ia, nil)
		} else {
			buf, ok := args[rb.Arg].(types.Buffer)
			if !ok {
				continue
			}
			ds.exec.Barrier(rb.Barrier, nil, &buf)
		}
	}

	rp, err := e.beginRenderPass(a, ds, s, args)
	if err != nil {
		return err
	}

	scope := &scopedCommandBuffer{inner: ds.cb, args: args, domain: s.Domain}
	results, err := n.Fn.Callback(scope, args)
	if rp {
		ds.exec.EndRenderPass()
	}
	if err != nil {
		return err
	}

	// Results: explicit callback returns win; write-back arguments
	// fall back to their (possibly mutated) argument values. Every
	// output is tracked regardless of downstream use.
	n.ExecValues = make([]any, len(n.Type))
	for ri, rt := range n.Type {
		if results != nil && ri < len(results) && results[ri] != nil {
			n.ExecValues[ri] = results[ri]
			continue
		}
		if ai := ir.AliasedIndex(rt); ai >= 0 && ai < len(args) {
			n.ExecValues[ri] = args[ai]
		}
	}
	return nil
}

// beginRenderPass builds (or fetches from cache) the renderpass and
// framebuffer for a call with framebuffer attachments. It reports
// whether a renderpass was begun.
func (e *Executor) beginRenderPass(a *passes.Analysis, ds *domainState, s *sched.Step, args []any) (bool, error) {
	n := s.Node
	var colors []types.AttachmentDescription
	var depth *types.AttachmentDescription
	var colorViews, depthViews []types.ImageView
	var colorClears, depthClears []types.Clear
	var extent types.Extent3D
	layers := uint32(1)

	for i := range n.Args {
		acc := ir.ImbuedAccess(n.Fn.ArgTypes[i])
		if !acc.IsFramebufferAttachment() {
			continue
		}
		ia, ok := args[i].(types.ImageAttachment)
		if !ok {
			continue
		}
		first := isFirstUse(a, n, ir.Ref{Node: n, Index: i})
		desc := types.AttachmentDescription{
			Format:      ia.Format,
			SampleCount: ia.SampleCount,
			Clear:       first,
			ClearValue:  ia.ClearValue,
			FinalLayout: types.ToUse(acc).Layout,
		}
		switch acc {
		case types.AccessDepthStencilRW, types.AccessDepthStencilRead:
			d := desc
			depth = &d
			depthViews = append(depthViews, ia.ImageView)
			depthClears = append(depthClears, ia.ClearValue)
		default:
			colors = append(colors, desc)
			colorViews = append(colorViews, ia.ImageView)
			colorClears = append(colorClears, ia.ClearValue)
		}
		extent = ia.Extent
		if ia.LayerCount > 0 && ia.LayerCount != types.RemainingLayers {
			layers = ia.LayerCount
		}
	}
	// Attachment slots order colors first, depth last, matching the
	// render pass description regardless of argument order.
	views := append(colorViews, depthViews...)
	clears := append(colorClears, depthClears...)
	if len(views) == 0 {
		return false, nil
	}

	rpKey := hashRenderPass(colors, depth) ^ e.cacheKey
	rpv, err := e.renderPasses.GetOrCreateErr(rpKey, func() (any, error) {
		dst := make([]any, 1)
		ci := types.RenderPassCreateInfo{ColorAttachments: colors, DepthStencil: depth}
		if err := e.alloc.AllocateRenderPasses(dst, []types.RenderPassCreateInfo{ci}); err != nil {
			return nil, err
		}
		return dst[0], nil
	})
	if err != nil {
		return false, err
	}

	fbKey := hashFramebuffer(rpKey, views, extent, layers)
	fbv, err := e.framebuffers.GetOrCreateErr(fbKey, func() (any, error) {
		dst := make([]any, 1)
		ci := types.FramebufferCreateInfo{RenderPass: rpv, Attachments: views, Extent: extent, Layers: layers}
		if err := e.alloc.AllocateFramebuffers(dst, []types.FramebufferCreateInfo{ci}); err != nil {
			return nil, err
		}
		return dst[0], nil
	})
	if err != nil {
		return false, err
	}

	begin := backend.RenderPassBegin{
		RenderPass:  rpv,
		Framebuffer: fbv,
		Area:        backend.RenderArea{Width: extent.Width, Height: extent.Height},
		Clears:      clears,
	}
	if err := ds.exec.BeginRenderPass(begin); err != nil {
		return false, err
	}
	return true, nil
}

func isFirstUse(a *passes.Analysis, n *ir.Node, use ir.Ref) bool {
	root := a.Roots[n.Args[use.Index]]
	uses := a.Uses[root]
	return len(uses) > 0 && uses[0].Node == n && uses[0].Arg == use.Index
}

func hashRenderPass(colors []types.AttachmentDescription, depth *types.AttachmentDescription) uint64 {
	h := fnv.New64a()
	for _, c := range colors {
		fmt.Fprintf(h, "c%v%v%v%v;", c.Format, c.SampleCount, c.Clear, c.FinalLayout)
	}
	if depth != nil {
		fmt.Fprintf(h, "d%v%v%v;", depth.Format, depth.SampleCount, depth.Clear)
	}
	return h.Sum64()
}

func hashFramebuffer(rp uint64, views []types.ImageView, extent types.Extent3D, layers uint32) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%x:%v:%d", rp, extent, layers)
	for _, v := range views {
		fmt.Fprintf(h, ":%p", v.Handle)
	}
	return h.Sum64()
}
