// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

// executor records one domain's command stream on the shared HAL
// queue. Cross-domain waits become fence-value waits; WebGPU queues
// are internally ordered, so a wait on an earlier fence value is
// satisfied by submission order.
type executor struct {
	backend *Backend
	domain  types.Domain

	encoder    hal.CommandEncoder
	renderPass hal.RenderPassEncoder

	// fenceBase offsets this executor's timeline window on the shared
	// fence so per-domain visibilities stay monotonic.
	fenceBase uint64
	visible   uint64

	// readbacks flush device->host after submission.
	readbacks []readback
}

type readback struct {
	res    *bufferResource
	offset uint64
}

var _ backend.Executor = (*executor)(nil)

func (e *executor) Domain() types.Domain { return e.domain }

// ensureEncoder lazily begins a command encoder for the in-flight
// batch.
func (e *executor) ensureEncoder() (hal.CommandEncoder, error) {
	if e.encoder != nil {
		return e.encoder, nil
	}
	enc, err := e.backend.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rg-encoder"})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSubmitFailed, err)
	}
	if err := enc.BeginEncoding("rg-batch"); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSubmitFailed, err)
	}
	e.encoder = enc
	return enc, nil
}

// bufferUse maps a render-graph use onto the HAL buffer usage the
// barrier machinery transitions between.
func bufferUse(u types.ResourceUse) gputypes.BufferUsage {
	switch {
	case u.Access&types.AccessMaskTransferRead != 0:
		return gputypes.BufferUsageCopySrc
	case u.Access&types.AccessMaskTransferWrite != 0:
		return gputypes.BufferUsageCopyDst
	case u.Access&types.AccessMaskUniformRead != 0:
		return gputypes.BufferUsageUniform
	default:
		return gputypes.BufferUsageStorage
	}
}

func textureUse(u types.ResourceUse) gputypes.TextureUsage {
	switch u.Layout {
	case types.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case types.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	case types.LayoutColorAttachment, types.LayoutDepthStencilAttachment:
		return gputypes.TextureUsageRenderAttachment
	case types.LayoutShaderRead:
		return gputypes.TextureUsageTextureBinding
	default:
		return gputypes.TextureUsageStorageBinding
	}
}

// Barrier records the transition on the current encoder.
func (e *executor) Barrier(b types.Barrier, ia *types.ImageAttachment, buf *types.Buffer) {
	enc, err := e.ensureEncoder()
	if err != nil {
		return
	}
	switch {
	case ia != nil:
		res, ok := ia.Image.Handle.(*textureResource)
		if !ok {
			return
		}
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: res.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: textureUse(b.Src),
				NewUsage: textureUse(b.Dst),
			},
		}})
	case buf != nil:
		res, ok := buf.Handle.(*bufferResource)
		if !ok {
			return
		}
		enc.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: res.buf,
			Usage: hal.BufferUsageTransition{
				OldUsage: bufferUse(b.Src),
				NewUsage: bufferUse(b.Dst),
			},
		}})
	}
}

// BeginRenderPass translates the graph's renderpass/framebuffer pair
// into a HAL render pass begin.
func (e *executor) BeginRenderPass(begin backend.RenderPassBegin) error {
	rp, okRP := begin.RenderPass.(*renderPassInfo)
	fb, okFB := begin.Framebuffer.(*framebufferInfo)
	if !okRP || !okFB {
		return types.ErrSubmitFailed
	}
	enc, err := e.ensureEncoder()
	if err != nil {
		return err
	}

	desc := &hal.RenderPassDescriptor{Label: "rg-pass"}
	viewAt := 0
	for _, att := range rp.ci.ColorAttachments {
		if viewAt >= len(fb.ci.Attachments) {
			break
		}
		vres, _ := fb.ci.Attachments[viewAt].Handle.(*viewResource)
		viewAt++
		if vres == nil {
			continue
		}
		load := gputypes.LoadOpLoad
		var clear gputypes.Color
		if att.Clear {
			load = gputypes.LoadOpClear
			clear = gputypes.Color{
				R: float64(att.ClearValue.Color[0]),
				G: float64(att.ClearValue.Color[1]),
				B: float64(att.ClearValue.Color[2]),
				A: float64(att.ClearValue.Color[3]),
			}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       vres.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clear,
		})
	}
	if rp.ci.DepthStencil != nil && viewAt < len(fb.ci.Attachments) {
		if vres, ok := fb.ci.Attachments[viewAt].Handle.(*viewResource); ok {
			dload := gputypes.LoadOpLoad
			if rp.ci.DepthStencil.Clear {
				dload = gputypes.LoadOpClear
			}
			desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
				View:            vres.view,
				DepthLoadOp:     dload,
				DepthStoreOp:    gputypes.StoreOpStore,
				DepthClearValue: rp.ci.DepthStencil.ClearValue.Depth,
				StencilLoadOp:   dload,
				StencilStoreOp:  gputypes.StoreOpStore,
			}
		}
	}
	e.renderPass = enc.BeginRenderPass(desc)
	return nil
}

func (e *executor) EndRenderPass() {
	if e.renderPass != nil {
		e.renderPass.End()
		e.renderPass = nil
	}
}

// Submit ends the batch encoder, submits on the shared queue with the
// executor's fence window, and flushes pending readbacks.
func (e *executor) Submit(signal uint64, waits []types.SyncPoint) (types.SyncPoint, error) {
	// The shared queue is totally ordered; waits on other domains are
	// satisfied by the fence values those batches already signaled.
	for _, w := range waits {
		if err := e.backend.waitVisibility(w.Domain, w.Visibility, 0); err != nil {
			return types.SyncPoint{}, err
		}
	}

	point := types.SyncPoint{Domain: e.domain, Visibility: signal}
	if e.encoder == nil {
		e.visible = signal
		return point, nil
	}

	cmd, err := e.encoder.EndEncoding()
	e.encoder = nil
	if err != nil {
		return types.SyncPoint{}, fmt.Errorf("%w: %w", types.ErrSubmitFailed, err)
	}
	if err := e.backend.queue.Submit([]hal.CommandBuffer{cmd}, e.backend.fence, e.fenceBase+signal); err != nil {
		return types.SyncPoint{}, fmt.Errorf("%w: %w", types.ErrSubmitFailed, err)
	}
	e.visible = signal

	for _, rb := range e.readbacks {
		if err := e.backend.queue.ReadBuffer(rb.res.buf, rb.offset, rb.res.shadow); err != nil {
			return point, fmt.Errorf("%w: %w", types.ErrDeviceLost, err)
		}
	}
	e.readbacks = e.readbacks[:0]
	return point, nil
}

func (e *executor) Visibility() uint64 { return e.visible }
