// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/pipeline"
	"github.com/gogpu/rg/types"
)

// commandBuffer executes commands eagerly against host storage.
type commandBuffer struct {
	exec *executor

	computePipeline *pipeline.BaseInfo
	bound           []any
}

var _ backend.CommandBuffer = (*commandBuffer)(nil)

// bufBytes exposes the addressed range of a native buffer.
func bufBytes(b types.Buffer) []byte {
	if st, ok := b.Handle.(*bufferStorage); ok {
		end := b.Offset + b.Size
		if end > uint64(len(st.data)) {
			end = uint64(len(st.data))
		}
		return st.data[b.Offset:end]
	}
	return b.Mapped
}

// viewOf resolves the subresource window an attachment addresses. The
// attachment's base/count fields are authoritative — slices narrow
// them without re-creating the backing view — so the handles only
// locate the storage.
func viewOf(ia types.ImageAttachment) *viewStorage {
	var img *imageStorage
	switch h := ia.ImageView.Handle.(type) {
	case *viewStorage:
		img = h.img
	default:
		is, ok := ia.Image.Handle.(*imageStorage)
		if !ok {
			return nil
		}
		img = is
	}
	levels := ia.LevelCount
	if levels == 0 || levels == types.RemainingMips {
		levels = img.levels - ia.BaseLevel
	}
	layers := ia.LayerCount
	if layers == 0 || layers == types.RemainingLayers {
		layers = img.layers - ia.BaseLayer
	}
	return &viewStorage{img: img, baseLevel: ia.BaseLevel, levelCount: levels,
		baseLayer: ia.BaseLayer, layerCount: layers}
}

// clearTexel encodes a clear value as one texel of the format.
func clearTexel(f gputypes.TextureFormat, c types.Clear) []byte {
	ts := texelSize(f)
	texel := make([]byte, ts)
	if !c.IsColor {
		binary.LittleEndian.PutUint32(texel, uint32(c.Depth*float32(1<<24)))
		return texel
	}
	uintClear := c.ColorUint != [4]uint32{}
	for ch := uint64(0); ch < ts && ch < 4; ch++ {
		if uintClear {
			texel[ch] = byte(c.ColorUint[ch])
		} else {
			texel[ch] = byte(c.Color[ch] * 255)
		}
	}
	return texel
}

// clearViewStorage fills every subresource of the view with the clear
// value.
func clearViewStorage(vs *viewStorage, c types.Clear) {
	texel := clearTexel(vs.img.format, c)
	ts := uint64(len(texel))
	for level := vs.baseLevel; level < vs.baseLevel+vs.levelCount; level++ {
		for layer := vs.baseLayer; layer < vs.baseLayer+vs.layerCount; layer++ {
			data := vs.img.subresource(level, layer)
			for off := uint64(0); off+ts <= uint64(len(data)); off += ts {
				copy(data[off:off+ts], texel)
			}
		}
	}
}

// ----------------------------------------------------------------------------
// Scope queries: answered by the executor's scope wrapper; reaching
// these directly is a wiring error.
// ----------------------------------------------------------------------------

func (cb *commandBuffer) GetResourceImageAttachment(arg int) (types.ImageAttachment, error) {
	return types.ImageAttachment{}, backend.ErrNotInitialized
}

func (cb *commandBuffer) GetScheduledDomain() types.Domain { return cb.exec.domain }

// ----------------------------------------------------------------------------
// Fixed-function state: the host has no rasterizer; state settles into
// defaults and is accepted silently, like the software paths elsewhere
// in the stack.
// ----------------------------------------------------------------------------

func (cb *commandBuffer) SetViewport(x, y, w, h, minDepth, maxDepth float32)            {}
func (cb *commandBuffer) SetScissor(x, y int32, w, h uint32)                            {}
func (cb *commandBuffer) SetRasterization(r backend.Rasterization)                      {}
func (cb *commandBuffer) SetColorBlend(attachment int, b backend.ColorBlend)            {}
func (cb *commandBuffer) BroadcastColorBlend(b backend.ColorBlend)                      {}
func (cb *commandBuffer) SetDepthStencil(ds backend.DepthStencil)                       {}
func (cb *commandBuffer) SetDynamicState(state any)                                     {}
func (cb *commandBuffer) SetAttachmentlessFramebuffer(extent types.Extent3D, l uint32)  {}

// ----------------------------------------------------------------------------
// Binding
// ----------------------------------------------------------------------------

func (cb *commandBuffer) BindGraphicsPipeline(p any) error { return nil }

func (cb *commandBuffer) BindComputePipeline(p any) error {
	pbi, ok := p.(*pipeline.BaseInfo)
	if !ok {
		return types.ErrShaderUnsupported
	}
	cb.computePipeline = pbi
	cb.bound = cb.bound[:0]
	return nil
}

func (cb *commandBuffer) BindVertexBuffer(binding uint32, buf types.Buffer) {}
func (cb *commandBuffer) BindIndexBuffer(buf types.Buffer, indexSize uint32) {}

func (cb *commandBuffer) BindBuffer(set, binding uint32, buf types.Buffer) {
	cb.bound = append(cb.bound, buf)
}

func (cb *commandBuffer) BindImage(set, binding uint32, ia types.ImageAttachment) {
	cb.bound = append(cb.bound, ia)
}

func (cb *commandBuffer) BindSampler(set, binding uint32, sampler any) {
	cb.bound = append(cb.bound, sampler)
}

func (cb *commandBuffer) BindPersistent(set uint32, descriptorSet any) {}

func (cb *commandBuffer) PushConstants(offset uint32, data []byte) {}

// ----------------------------------------------------------------------------
// Work
// ----------------------------------------------------------------------------

func (cb *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {}

func (cb *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
}

// Dispatch runs the bound pipeline's host fallback. A pipeline
// without one dispatches into nothing, like a draw without a
// rasterizer.
func (cb *commandBuffer) Dispatch(x, y, z uint32) {
	if cb.computePipeline == nil || cb.computePipeline.HostFallback == nil {
		return
	}
	_ = cb.computePipeline.HostFallback(x, y, z, cb.bound)
}

func (cb *commandBuffer) DispatchInvocationsPerPixel(ia types.ImageAttachment) {
	e := ia.MipExtent(ia.BaseLevel)
	cb.Dispatch(e.Width, e.Height, max(e.Depth, 1))
}

// ----------------------------------------------------------------------------
// Transfers
// ----------------------------------------------------------------------------

func (cb *commandBuffer) CopyBuffer(src, dst types.Buffer) error {
	s, d := bufBytes(src), bufBytes(dst)
	if s == nil || d == nil {
		return types.ErrResourceExhausted
	}
	copy(d, s)
	return nil
}

func (cb *commandBuffer) CopyBufferToImage(src types.Buffer, dst types.ImageAttachment, region backend.BufferImageCopy) error {
	vs := viewOf(dst)
	s := bufBytes(src)
	if vs == nil || s == nil {
		return types.ErrResourceExhausted
	}
	for layer := region.BaseLayer; layer < region.BaseLayer+max(region.LayerCount, 1); layer++ {
		data := vs.img.subresource(region.MipLevel, layer)
		if data == nil {
			return types.ErrResourceExhausted
		}
		copy(data, s[region.BufferOffset:])
	}
	return nil
}

func (cb *commandBuffer) CopyImageToBuffer(src types.ImageAttachment, dst types.Buffer, region backend.BufferImageCopy) error {
	vs := viewOf(src)
	d := bufBytes(dst)
	if vs == nil || d == nil {
		return types.ErrResourceExhausted
	}
	data := vs.img.subresource(region.MipLevel, region.BaseLayer)
	if data == nil {
		return types.ErrResourceExhausted
	}
	copy(d[region.BufferOffset:], data)
	return nil
}

func (cb *commandBuffer) ClearImage(dst types.ImageAttachment, clear types.Clear) error {
	vs := viewOf(dst)
	if vs == nil {
		return types.ErrResourceExhausted
	}
	clearViewStorage(vs, clear)
	return nil
}

// BlitImage copies or rescales one subresource into another. Equal
// extents copy directly; RGBA8Unorm on both sides rescales through
// x/image/draw; every other format uses a nearest-neighbor loop.
func (cb *commandBuffer) BlitImage(src, dst types.ImageAttachment, region backend.ImageBlit) error {
	sv, dv := viewOf(src), viewOf(dst)
	if sv == nil || dv == nil {
		return types.ErrResourceExhausted
	}
	sdata := sv.img.subresource(region.SrcLevel, sv.baseLayer)
	ddata := dv.img.subresource(region.DstLevel, dv.baseLayer)
	if sdata == nil || ddata == nil {
		return types.ErrResourceExhausted
	}
	se := sv.img.levelExtent(region.SrcLevel)
	de := dv.img.levelExtent(region.DstLevel)

	if se == de {
		copy(ddata, sdata)
		return nil
	}

	if sv.img.format == gputypes.TextureFormatRGBA8Unorm && dv.img.format == gputypes.TextureFormatRGBA8Unorm {
		simg := &image.RGBA{Pix: sdata, Stride: int(se.Width) * 4,
			Rect: image.Rect(0, 0, int(se.Width), int(se.Height))}
		dimg := &image.RGBA{Pix: ddata, Stride: int(de.Width) * 4,
			Rect: image.Rect(0, 0, int(de.Width), int(de.Height))}
		draw.ApproxBiLinear.Scale(dimg, dimg.Rect, simg, simg.Rect, draw.Src, nil)
		return nil
	}

	// Nearest-neighbor for every other format.
	ts := texelSize(sv.img.format)
	for y := uint32(0); y < de.Height; y++ {
		sy := y * se.Height / de.Height
		for x := uint32(0); x < de.Width; x++ {
			sx := x * se.Width / de.Width
			so := (uint64(sy)*uint64(se.Width) + uint64(sx)) * ts
			do := (uint64(y)*uint64(de.Width) + uint64(x)) * ts
			if so+ts <= uint64(len(sdata)) && do+ts <= uint64(len(ddata)) {
				copy(ddata[do:do+ts], sdata[so:so+ts])
			}
		}
	}
	return nil
}

// ResolveImage collapses a multisampled attachment into a
// single-sample one; host storage keeps one sample, so resolve is a
// copy.
func (cb *commandBuffer) ResolveImage(src, dst types.ImageAttachment) error {
	sv, dv := viewOf(src), viewOf(dst)
	if sv == nil || dv == nil {
		return types.ErrResourceExhausted
	}
	s := sv.img.subresource(sv.baseLevel, sv.baseLayer)
	d := dv.img.subresource(dv.baseLevel, dv.baseLayer)
	if s == nil || d == nil {
		return types.ErrResourceExhausted
	}
	copy(d, s)
	return nil
}

func (cb *commandBuffer) FillBuffer(dst types.Buffer, value uint32) error {
	d := bufBytes(dst)
	if d == nil {
		return types.ErrResourceExhausted
	}
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], value)
	for off := 0; off+4 <= len(d); off += 4 {
		copy(d[off:off+4], word[:])
	}
	return nil
}

func (cb *commandBuffer) UpdateBuffer(dst types.Buffer, data []byte) error {
	d := bufBytes(dst)
	if d == nil {
		return types.ErrResourceExhausted
	}
	copy(d, data)
	return nil
}

// rgbaAt is a debugging helper reading one texel as color.
func rgbaAt(vs *viewStorage, level, x, y uint32) color.RGBA {
	data := vs.img.subresource(level, vs.baseLayer)
	e := vs.img.levelExtent(level)
	off := (uint64(y)*uint64(e.Width) + uint64(x)) * texelSize(vs.img.format)
	if data == nil || off+4 > uint64(len(data)) {
		return color.RGBA{}
	}
	return color.RGBA{R: data[off], G: data[off+1], B: data[off+2], A: data[off+3]}
}
