// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package exec

import (
	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

// scopedCommandBuffer binds a backend command buffer to the scope of
// one scheduled call: resource queries answer from the call's resolved
// arguments, everything else delegates to the backend recorder.
type scopedCommandBuffer struct {
	inner  backend.CommandBuffer
	args   []any
	domain types.Domain
}

var _ backend.CommandBuffer = (*scopedCommandBuffer)(nil)

func (s *scopedCommandBuffer) GetResourceImageAttachment(arg int) (types.ImageAttachment, error) {
	if arg < 0 || arg >= len(s.args) {
		return types.ImageAttachment{}, &types.GraphError{Kind: types.ErrUnattachedResource, Pass: "exec"}
	}
	ia, ok := s.args[arg].(types.ImageAttachment)
	if !ok {
		return types.ImageAttachment{}, &types.GraphError{Kind: types.ErrTypeMismatch, Pass: "exec",
			Detail: "argument is not an image attachment"}
	}
	return ia, nil
}

func (s *scopedCommandBuffer) GetScheduledDomain() types.Domain { return s.domain }

func (s *scopedCommandBuffer) SetViewport(x, y, w, h, minDepth, maxDepth float32) {
	s.inner.SetViewport(x, y, w, h, minDepth, maxDepth)
}

func (s *scopedCommandBuffer) SetScissor(x, y int32, w, h uint32) {
	s.inner.SetScissor(x, y, w, h)
}

func (s *scopedCommandBuffer) SetRasterization(r backend.Rasterization) {
	s.inner.SetRasterization(r)
}

func (s *scopedCommandBuffer) SetColorBlend(attachment int, b backend.ColorBlend) {
	s.inner.SetColorBlend(attachment, b)
}

func (s *scopedCommandBuffer) BroadcastColorBlend(b backend.ColorBlend) {
	s.inner.BroadcastColorBlend(b)
}

func (s *scopedCommandBuffer) SetDepthStencil(ds backend.DepthStencil) {
	s.inner.SetDepthStencil(ds)
}

func (s *scopedCommandBuffer) SetDynamicState(state any) {
	s.inner.SetDynamicState(state)
}

func (s *scopedCommandBuffer) SetAttachmentlessFramebuffer(extent types.Extent3D, layers uint32) {
	s.inner.SetAttachmentlessFramebuffer(extent, layers)
}

func (s *scopedCommandBuffer) BindGraphicsPipeline(pipeline any) error {
	return s.inner.BindGraphicsPipeline(pipeline)
}

func (s *scopedCommandBuffer) BindComputePipeline(pipeline any) error {
	return s.inner.BindComputePipeline(pipeline)
}

func (s *scopedCommandBuffer) BindVertexBuffer(binding uint32, buf types.Buffer) {
	s.inner.BindVertexBuffer(binding, buf)
}

func (s *scopedCommandBuffer) BindIndexBuffer(buf types.Buffer, indexSize uint32) {
	s.inner.BindIndexBuffer(buf, indexSize)
}

func (s *scopedCommandBuffer) BindBuffer(set, binding uint32, buf types.Buffer) {
	s.inner.BindBuffer(set, binding, buf)
}

func (s *scopedCommandBuffer) BindImage(set, binding uint32, ia types.ImageAttachment) {
	s.inner.BindImage(set, binding, ia)
}

func (s *scopedCommandBuffer) BindSampler(set, binding uint32, sampler any) {
	s.inner.BindSampler(set, binding, sampler)
}

func (s *scopedCommandBuffer) BindPersistent(set uint32, descriptorSet any) {
	s.inner.BindPersistent(set, descriptorSet)
}

func (s *scopedCommandBuffer) PushConstants(offset uint32, data []byte) {
	s.inner.PushConstants(offset, data)
}

func (s *scopedCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	s.inner.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (s *scopedCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	s.inner.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (s *scopedCommandBuffer) Dispatch(x, y, z uint32) {
	s.inner.Dispatch(x, y, z)
}

func (s *scopedCommandBuffer) DispatchInvocationsPerPixel(ia types.ImageAttachment) {
	s.inner.DispatchInvocationsPerPixel(ia)
}

func (s *scopedCommandBuffer) CopyBuffer(src, dst types.Buffer) error {
	return s.inner.CopyBuffer(src, dst)
}

func (s *scopedCommandBuffer) CopyBufferToImage(src types.Buffer, dst types.ImageAttachment, region backend.BufferImageCopy) error {
	return s.inner.CopyBufferToImage(src, dst, region)
}

func (s *scopedCommandBuffer) CopyImageToBuffer(src types.ImageAttachment, dst types.Buffer, region backend.BufferImageCopy) error {
	return s.inner.CopyImageToBuffer(src, dst, region)
}

func (s *scopedCommandBuffer) ClearImage(dst types.ImageAttachment, clear types.Clear) error {
	return s.inner.ClearImage(dst, clear)
}

func (s *scopedCommandBuffer) BlitImage(src, dst types.ImageAttachment, region backend.ImageBlit) error {
	return s.inner.BlitImage(src, dst, region)
}

func (s *scopedCommandBuffer) ResolveImage(src, dst types.ImageAttachment) error {
	return s.inner.ResolveImage(src, dst)
}

func (s *scopedCommandBuffer) FillBuffer(dst types.Buffer, value uint32) error {
	return s.inner.FillBuffer(dst, value)
}

func (s *scopedCommandBuffer) UpdateBuffer(dst types.Buffer, data []byte) error {
	return s.inner.UpdateBuffer(dst, data)
}
