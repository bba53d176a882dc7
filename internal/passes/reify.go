// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"fmt"

	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/types"
)

// Reify runs placeholder inference to a fixed point: construct
// reification copies known aggregate fields into placeholder member
// slots, and framebuffer inference propagates extent, sample count and
// layer count between images co-attached to one call. It stops when an
// iteration makes no progress.
func Reify(m *ir.Module, order []*ir.Node) error {
	tc := m.Types()
	for {
		progress := false

		// Construct reification: non-default fields of the base
		// aggregate become constants in the member slots.
		for _, n := range order {
			if n.Kind != ir.OpConstruct || n.Value == nil {
				continue
			}
			ty := ir.Stripped(n.Type[0])
			if ty.Kind != ir.TypeComposite || ty.Hooks.IsDefault == nil {
				continue
			}
			for i, arg := range n.Args {
				if arg.IsZero() || arg.Node.Kind != ir.OpPlaceholder {
					continue
				}
				if !ty.Hooks.IsDefault(n.Value, i) {
					if ir.ReifyPlaceholder(arg, ty.Hooks.Get(n.Value, i)) {
						progress = true
					}
				}
			}
		}

		// Framebuffer inference across co-attached images.
		for _, n := range order {
			if n.Kind != ir.OpCall {
				continue
			}
			p, err := attachmentProps(n)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			changed, err := applyAttachmentProps(tc, n, p)
			if err != nil {
				return err
			}
			progress = progress || changed
		}

		if !progress {
			break
		}
	}

	// Defaults for axes nothing constrained.
	for _, n := range order {
		if n.Kind == ir.OpConstruct {
			applyImageDefaults(tc, n)
		}
	}
	return nil
}

// attachmentFacts are the properties all framebuffer attachments of
// one call must agree on.
type attachmentFacts struct {
	extent     types.Extent3D
	samples    types.Samples
	layerCount uint32
}

// attachmentProps collects the known properties over the call's
// framebuffer attachments, failing when two attachments disagree on a
// known axis.
func attachmentProps(n *ir.Node) (*attachmentFacts, error) {
	var facts *attachmentFacts
	for i, arg := range n.Args {
		access := ir.ImbuedAccess(n.Fn.ArgTypes[i])
		if !access.IsFramebufferAttachment() {
			continue
		}
		if facts == nil {
			facts = &attachmentFacts{}
		}
		v, err := ir.Eval(arg)
		if err != nil {
			continue
		}
		ia, ok := v.(types.ImageAttachment)
		if !ok {
			continue
		}
		if ia.Extent.Width > 0 {
			if facts.extent.Width > 0 && facts.extent.Width != ia.Extent.Width {
				return nil, inconsistent(n, "width", facts.extent.Width, ia.Extent.Width)
			}
			facts.extent.Width = ia.Extent.Width
		}
		if ia.Extent.Height > 0 {
			if facts.extent.Height > 0 && facts.extent.Height != ia.Extent.Height {
				return nil, inconsistent(n, "height", facts.extent.Height, ia.Extent.Height)
			}
			facts.extent.Height = ia.Extent.Height
		}
		if ia.SampleCount != types.SamplesInfer {
			if facts.samples != types.SamplesInfer && facts.samples != ia.SampleCount {
				return nil, inconsistent(n, "sample count", facts.samples, ia.SampleCount)
			}
			facts.samples = ia.SampleCount
		}
		if ia.LayerCount != 0 && ia.LayerCount != types.RemainingLayers {
			if facts.layerCount != 0 && facts.layerCount != ia.LayerCount {
				return nil, inconsistent(n, "layer count", facts.layerCount, ia.LayerCount)
			}
			facts.layerCount = ia.LayerCount
		}
	}
	return facts, nil
}

func inconsistent(n *ir.Node, axis string, a, b any) error {
	return &types.GraphError{Kind: types.ErrAttachmentInconsistency, Pass: "reify",
		Node: n.String(), Detail: fmt.Sprintf("%s %v vs %v", axis, a, b)}
}

// applyAttachmentProps writes the agreed facts into the placeholder
// slots of every attachment's construct.
func applyAttachmentProps(tc *ir.TypeContext, n *ir.Node, facts *attachmentFacts) (bool, error) {
	progress := false
	for i, arg := range n.Args {
		access := ir.ImbuedAccess(n.Fn.ArgTypes[i])
		if !access.IsFramebufferAttachment() {
			continue
		}
		c := constructOf(arg)
		if c == nil || ir.Stripped(c.Type[0]) != tc.ImageAttachment {
			continue
		}
		set := func(member int, v uint32) {
			if v == 0 {
				return
			}
			if ir.ReifyPlaceholder(c.Args[member], v) {
				progress = true
			}
		}
		set(ir.IAExtentWidth, facts.extent.Width)
		set(ir.IAExtentHeight, facts.extent.Height)
		set(ir.IASampleCount, uint32(facts.samples))
		set(ir.IALayerCount, facts.layerCount)
	}
	return progress, nil
}

// applyImageDefaults installs the documented defaults on any axis
// inference left open for an image construct: depth 1, level count 1,
// sample count 1, layer count 1, base level and base layer 0 when the
// image has no backing handle.
func applyImageDefaults(tc *ir.TypeContext, c *ir.Node) {
	if ir.Stripped(c.Type[0]) != tc.ImageAttachment {
		return
	}
	def := func(member int, v uint32) {
		ir.ReifyPlaceholder(c.Args[member], v)
	}
	def(ir.IAExtentDepth, 1)
	def(ir.IALevelCount, 1)
	def(ir.IASampleCount, 1)
	def(ir.IALayerCount, 1)
	def(ir.IABaseLevel, 0)
	def(ir.IABaseLayer, 0)
}

// constructOf walks a ref back to the CONSTRUCT that declared the
// resource, if the resource was declared in-graph.
func constructOf(r ir.Ref) *ir.Node {
	root := ResourceRoot(r)
	if !root.IsZero() && root.Node.Kind == ir.OpConstruct {
		return root.Node
	}
	return nil
}

// ResolveConstruct finalizes a construct into its host value after
// inference; unresolved members of a base-less construct are an
// IncompleteConstruct error.
func ResolveConstruct(n *ir.Node) (any, error) {
	v, err := ir.Eval(n.Result(0))
	if err != nil {
		return nil, &types.GraphError{Kind: types.ErrIncompleteConstruct, Pass: "reify",
			Node: n.String(), Detail: err.Error()}
	}
	return v, nil
}
