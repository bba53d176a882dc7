package rg

import (
	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

// Partials: small prebuilt passes for the common host<->device moves.
// They are ordinary passes built on the public API; nothing here is
// privileged.

// HostDataToBuffer fills dst with host data. Host-visible destinations
// are written directly and acquired; device-local ones go through a
// staging buffer and a copy pass whose domain the scheduler infers.
func HostDataToBuffer(c *Compiler, m *Module, dst types.Buffer, data []byte) Value[types.Buffer] {
	if dst.Mapped != nil {
		copy(dst.Mapped, data)
		return AcquireBufOn(m, "_dst", dst, types.AccessNone)
	}

	staging := make([]types.Buffer, 1)
	ci := types.BufferCreateInfo{MemoryUsage: types.MemoryUsageCPUOnly, Size: uint64(len(data)), Alignment: 4}
	if err := c.Allocator().AllocateBuffers(staging, []types.BufferCreateInfo{ci}); err != nil {
		return errValue[types.Buffer](m, err)
	}
	copy(staging[0].Mapped, data)

	src := DeclareBufOn(m, "_src", staging[0])
	dstV := DeclareBufOn(m, "_dst", dst)
	upload := MakePass("upload buffer", types.DomainAny,
		Params(BufArg(types.AccessTransferRead), BufArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			return nil, cb.CopyBuffer(args[0].(types.Buffer), args[1].(types.Buffer))
		})
	_, out := Call2[types.Buffer, types.Buffer](upload, src, dstV)
	return out
}

// DownloadBuffer copies a buffer into readback memory and returns the
// host-visible result value.
func DownloadBuffer(src Value[types.Buffer]) Value[types.Buffer] {
	m := src.mod
	if m == nil {
		m = CurrentModule()
	}
	dst := DeclareBufOn(m, "dst", types.Buffer{MemoryUsage: types.MemoryUsageGPUToCPU}).SameSize(src)
	download := MakePass("download buffer", types.DomainAny,
		Params(BufArg(types.AccessTransferRead), BufArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			return nil, cb.CopyBuffer(args[0].(types.Buffer), args[1].(types.Buffer))
		})
	_, out := Call2[types.Buffer, types.Buffer](download, src, dst)
	return out
}

// HostDataToImage fills an image through a staging buffer and a
// buffer-to-image copy pass.
func HostDataToImage(c *Compiler, m *Module, image types.ImageAttachment, data []byte) Value[types.ImageAttachment] {
	staging := make([]types.Buffer, 1)
	ci := types.BufferCreateInfo{MemoryUsage: types.MemoryUsageCPUOnly, Size: uint64(len(data)), Alignment: 16}
	if err := c.Allocator().AllocateBuffers(staging, []types.BufferCreateInfo{ci}); err != nil {
		return errValue[types.ImageAttachment](m, err)
	}
	copy(staging[0].Mapped, data)

	region := backend.BufferImageCopy{
		ImageExtent: image.Extent,
		MipLevel:    image.BaseLevel,
		BaseLayer:   image.BaseLayer,
		LayerCount:  max(image.LayerCount, 1),
	}
	src := DeclareBufOn(m, "src", staging[0])
	dst := DeclareIAOn(m, "dst", image)
	upload := MakePass("image upload", types.DomainAny,
		Params(BufArg(types.AccessTransferRead), ImgArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			return nil, cb.CopyBufferToImage(args[0].(types.Buffer), args[1].(types.ImageAttachment), region)
		})
	_, out := Call2[types.Buffer, types.ImageAttachment](upload, src, dst)
	return out
}

// DownloadImage copies one mip level of an image into readback memory
// sized by the caller.
func DownloadImage(src Value[types.ImageAttachment], size uint64) Value[types.Buffer] {
	m := src.mod
	if m == nil {
		m = CurrentModule()
	}
	dst := DeclareBufOn(m, "dst", types.Buffer{MemoryUsage: types.MemoryUsageGPUToCPU, Size: size})
	download := MakePass("download image", types.DomainAny,
		Params(ImgArg(types.AccessTransferRead), BufArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			ia := args[0].(types.ImageAttachment)
			region := backend.BufferImageCopy{
				ImageExtent: ia.MipExtent(ia.BaseLevel),
				MipLevel:    ia.BaseLevel,
				BaseLayer:   ia.BaseLayer,
				LayerCount:  max(ia.LayerCount, 1),
			}
			return nil, cb.CopyImageToBuffer(ia, args[1].(types.Buffer), region)
		})
	_, out := Call2[types.ImageAttachment, types.Buffer](download, src, dst)
	return out
}

// ClearImage records a transfer-stage clear of an image value; the
// scheduler infers the pass's domain.
func ClearImage(img Value[types.ImageAttachment], clear types.Clear) Value[types.ImageAttachment] {
	pass := MakePass("clear image", types.DomainAny,
		Params(ImgArg(types.AccessTransferClear)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			return nil, cb.ClearImage(args[0].(types.ImageAttachment), clear)
		})
	return Call1[types.ImageAttachment](pass, img)
}

// FillBuffer records a fill of a buffer value with a 32-bit pattern.
func FillBuffer(buf Value[types.Buffer], pattern uint32) Value[types.Buffer] {
	pass := MakePass("fill buffer", types.DomainAny,
		Params(BufArg(types.AccessTransferWrite)),
		func(cb backend.CommandBuffer, args []any) ([]any, error) {
			return nil, cb.FillBuffer(args[0].(types.Buffer), pattern)
		})
	return Call1[types.Buffer](pass, buf)
}

// GenerateMips blits each mip level from the previous one, starting
// at baseMip, producing numMips-1 blits over disjoint mip slices. The
// returned value reconverges the slices on next whole-image use.
func GenerateMips(img Value[types.ImageAttachment], baseMip, numMips uint32) Value[types.ImageAttachment] {
	cur := img
	for level := baseMip + 1; level < baseMip+numMips; level++ {
		srcSlice := cur.Mip(level - 1)
		dstSlice := cur.Mip(level)
		dl := level
		blit := MakePass("mip blit", types.DomainGraphicsQueue,
			Params(ImgArg(types.AccessTransferRead), ImgArg(types.AccessTransferWrite)),
			func(cb backend.CommandBuffer, args []any) ([]any, error) {
				src := args[0].(types.ImageAttachment)
				dst := args[1].(types.ImageAttachment)
				se := src.MipExtent(src.BaseLevel)
				de := dst.MipExtent(dst.BaseLevel)
				region := backend.ImageBlit{
					SrcLevel:  dl - 1,
					SrcOffset: [2][3]int32{{0, 0, 0}, {int32(se.Width), int32(se.Height), int32(max(se.Depth, 1))}},
					DstLevel:  dl,
					DstOffset: [2][3]int32{{0, 0, 0}, {int32(de.Width), int32(de.Height), int32(max(de.Depth, 1))}},
				}
				return nil, cb.BlitImage(src, dst, region)
			})
		if err := CallVoid(blit, srcSlice, dstSlice); err != nil {
			return errValue[types.ImageAttachment](cur.mod, err)
		}
	}
	return cur
}
