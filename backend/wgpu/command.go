// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/pipeline"
	"github.com/gogpu/rg/types"
)

// commandBuffer records pass-callback commands onto the executor's
// encoder. Host-visible sources flush through the queue's write path;
// readbacks register with the executor and complete at submit.
type commandBuffer struct {
	exec *executor

	computePipeline *pipeline.BaseInfo
	halPipeline     hal.ComputePipeline
}

var _ backend.CommandBuffer = (*commandBuffer)(nil)

func (cb *commandBuffer) GetResourceImageAttachment(arg int) (types.ImageAttachment, error) {
	return types.ImageAttachment{}, backend.ErrNotInitialized
}

func (cb *commandBuffer) GetScheduledDomain() types.Domain { return cb.exec.domain }

func (cb *commandBuffer) SetViewport(x, y, w, h, minDepth, maxDepth float32)           {}
func (cb *commandBuffer) SetScissor(x, y int32, w, h uint32)                           {}
func (cb *commandBuffer) SetRasterization(r backend.Rasterization)                     {}
func (cb *commandBuffer) SetColorBlend(attachment int, b backend.ColorBlend)           {}
func (cb *commandBuffer) BroadcastColorBlend(b backend.ColorBlend)                     {}
func (cb *commandBuffer) SetDepthStencil(ds backend.DepthStencil)                      {}
func (cb *commandBuffer) SetDynamicState(state any)                                    {}
func (cb *commandBuffer) SetAttachmentlessFramebuffer(extent types.Extent3D, l uint32) {}

func (cb *commandBuffer) BindGraphicsPipeline(p any) error {
	rp, ok := p.(hal.RenderPipeline)
	if !ok {
		return types.ErrShaderUnsupported
	}
	if cb.exec.renderPass != nil {
		cb.exec.renderPass.SetPipeline(rp)
	}
	return nil
}

// BindComputePipeline instantiates (once) and remembers the HAL
// compute pipeline for the next dispatch.
func (cb *commandBuffer) BindComputePipeline(p any) error {
	pbi, ok := p.(*pipeline.BaseInfo)
	if !ok {
		return types.ErrShaderUnsupported
	}
	cb.computePipeline = pbi
	if hp, ok := pbi.Handle.(hal.ComputePipeline); ok {
		cb.halPipeline = hp
		return nil
	}
	module, err := cb.exec.backend.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  pbi.Name,
		Source: hal.ShaderSource{SPIRV: pbi.SPIRV},
	})
	if err != nil {
		return types.ErrShaderLink
	}
	hp, err := cb.exec.backend.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   pbi.Name,
		Compute: hal.ComputeState{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return types.ErrShaderLink
	}
	pbi.Handle = hp
	cb.halPipeline = hp
	return nil
}

func (cb *commandBuffer) BindVertexBuffer(binding uint32, buf types.Buffer)  {}
func (cb *commandBuffer) BindIndexBuffer(buf types.Buffer, indexSize uint32) {}

func (cb *commandBuffer) BindBuffer(set, binding uint32, buf types.Buffer)           {}
func (cb *commandBuffer) BindImage(set, binding uint32, ia types.ImageAttachment)    {}
func (cb *commandBuffer) BindSampler(set, binding uint32, sampler any)               {}
func (cb *commandBuffer) BindPersistent(set uint32, descriptorSet any)               {}
func (cb *commandBuffer) PushConstants(offset uint32, data []byte)                   {}

func (cb *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb.exec.renderPass != nil {
		cb.exec.renderPass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (cb *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb.exec.renderPass != nil {
		cb.exec.renderPass.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (cb *commandBuffer) Dispatch(x, y, z uint32) {
	if cb.halPipeline == nil {
		return
	}
	enc, err := cb.exec.ensureEncoder()
	if err != nil {
		return
	}
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{})
	pass.SetPipeline(cb.halPipeline)
	pass.Dispatch(x, y, z)
	pass.End()
}

func (cb *commandBuffer) DispatchInvocationsPerPixel(ia types.ImageAttachment) {
	e := ia.MipExtent(ia.BaseLevel)
	cb.Dispatch(e.Width, e.Height, max(e.Depth, 1))
}

func (cb *commandBuffer) CopyBuffer(src, dst types.Buffer) error {
	sres, sok := src.Handle.(*bufferResource)
	dres, dok := dst.Handle.(*bufferResource)
	if !sok || !dok {
		return types.ErrResourceExhausted
	}
	// Host-visible sources flush their shadow first.
	if sres.shadow != nil {
		cb.exec.backend.queue.WriteBuffer(sres.buf, 0, sres.shadow)
	}
	enc, err := cb.exec.ensureEncoder()
	if err != nil {
		return err
	}
	size := min(src.Size, dst.Size)
	enc.CopyBufferToBuffer(sres.buf, dres.buf, []hal.BufferCopy{
		{SrcOffset: src.Offset, DstOffset: dst.Offset, Size: size},
	})
	// Readback destinations complete after submit.
	if dres.usage == types.MemoryUsageGPUToCPU {
		cb.exec.readbacks = append(cb.exec.readbacks, readback{res: dres, offset: dst.Offset})
	}
	return nil
}

func (cb *commandBuffer) CopyBufferToImage(src types.Buffer, dst types.ImageAttachment, region backend.BufferImageCopy) error {
	sres, sok := src.Handle.(*bufferResource)
	dres, dok := dst.Image.Handle.(*textureResource)
	if !sok || !dok {
		return types.ErrResourceExhausted
	}
	if sres.shadow != nil {
		cb.exec.backend.queue.WriteBuffer(sres.buf, 0, sres.shadow)
	}
	enc, err := cb.exec.ensureEncoder()
	if err != nil {
		return err
	}
	enc.CopyBufferToTexture(sres.buf, dres.tex, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: region.BufferOffset, BytesPerRow: region.BufferRowLength, RowsPerImage: region.ImageExtent.Height},
		TextureBase:  hal.ImageCopyTexture{Texture: dres.tex, MipLevel: region.MipLevel},
		Size: hal.Extent3D{
			Width:              region.ImageExtent.Width,
			Height:             region.ImageExtent.Height,
			DepthOrArrayLayers: max(region.LayerCount, 1),
		},
	}})
	return nil
}

func (cb *commandBuffer) CopyImageToBuffer(src types.ImageAttachment, dst types.Buffer, region backend.BufferImageCopy) error {
	sres, sok := src.Image.Handle.(*textureResource)
	dres, dok := dst.Handle.(*bufferResource)
	if !sok || !dok {
		return types.ErrResourceExhausted
	}
	enc, err := cb.exec.ensureEncoder()
	if err != nil {
		return err
	}
	enc.CopyTextureToBuffer(sres.tex, dres.buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: region.BufferOffset, BytesPerRow: region.BufferRowLength, RowsPerImage: region.ImageExtent.Height},
		TextureBase:  hal.ImageCopyTexture{Texture: sres.tex, MipLevel: region.MipLevel},
		Size: hal.Extent3D{
			Width:              region.ImageExtent.Width,
			Height:             region.ImageExtent.Height,
			DepthOrArrayLayers: max(region.LayerCount, 1),
		},
	}})
	if dres.usage == types.MemoryUsageGPUToCPU {
		cb.exec.readbacks = append(cb.exec.readbacks, readback{res: dres, offset: dst.Offset})
	}
	return nil
}

// ClearImage routes through a render pass clear for color formats;
// WebGPU has no direct image clear.
func (cb *commandBuffer) ClearImage(dst types.ImageAttachment, clear types.Clear) error {
	vres, ok := dst.ImageView.Handle.(*viewResource)
	if !ok {
		return types.ErrResourceExhausted
	}
	enc, err := cb.exec.ensureEncoder()
	if err != nil {
		return err
	}
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "rg-clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    vres.view,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(clear.Color[0]), G: float64(clear.Color[1]),
				B: float64(clear.Color[2]), A: float64(clear.Color[3]),
			},
		}},
	})
	rp.End()
	return nil
}

func (cb *commandBuffer) BlitImage(src, dst types.ImageAttachment, region backend.ImageBlit) error {
	sres, sok := src.Image.Handle.(*textureResource)
	dres, dok := dst.Image.Handle.(*textureResource)
	if !sok || !dok {
		return types.ErrResourceExhausted
	}
	enc, err := cb.exec.ensureEncoder()
	if err != nil {
		return err
	}
	// HAL exposes unscaled texture-to-texture copies only: this copies
	// a region the size of the destination rectangle from the source
	// level and does not rescale.
	enc.CopyTextureToTexture(sres.tex, dres.tex, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: sres.tex, MipLevel: region.SrcLevel},
		DstBase: hal.ImageCopyTexture{Texture: dres.tex, MipLevel: region.DstLevel},
		Size: hal.Extent3D{
			Width:              uint32(region.DstOffset[1][0]),
			Height:             uint32(region.DstOffset[1][1]),
			DepthOrArrayLayers: 1,
		},
	}})
	return nil
}

func (cb *commandBuffer) ResolveImage(src, dst types.ImageAttachment) error {
	// Resolves ride the render pass ResolveTarget slot; a standalone
	// resolve copies.
	return cb.BlitImage(src, dst, backend.ImageBlit{
		DstOffset: [2][3]int32{{0, 0, 0}, {int32(dst.Extent.Width), int32(dst.Extent.Height), 1}},
	})
}

func (cb *commandBuffer) FillBuffer(dst types.Buffer, value uint32) error {
	dres, ok := dst.Handle.(*bufferResource)
	if !ok {
		return types.ErrResourceExhausted
	}
	if value == 0 {
		enc, err := cb.exec.ensureEncoder()
		if err != nil {
			return err
		}
		enc.ClearBuffer(dres.buf, dst.Offset, dst.Size)
		return nil
	}
	// Non-zero fills stage the pattern through the queue write path.
	data := make([]byte, dst.Size)
	for off := 0; off+4 <= len(data); off += 4 {
		data[off] = byte(value)
		data[off+1] = byte(value >> 8)
		data[off+2] = byte(value >> 16)
		data[off+3] = byte(value >> 24)
	}
	cb.exec.backend.queue.WriteBuffer(dres.buf, dst.Offset, data)
	if dres.shadow != nil {
		copy(dres.shadow, data)
	}
	return nil
}

func (cb *commandBuffer) UpdateBuffer(dst types.Buffer, data []byte) error {
	dres, ok := dst.Handle.(*bufferResource)
	if !ok {
		return types.ErrResourceExhausted
	}
	cb.exec.backend.queue.WriteBuffer(dres.buf, dst.Offset, data)
	if dres.shadow != nil {
		copy(dres.shadow, data)
	}
	return nil
}
