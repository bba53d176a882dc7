package native

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

func newBackend(t *testing.T) (*Backend, backend.Executor, backend.CommandBuffer) {
	t.Helper()
	b := New()
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ex, cb, err := b.NewExecutor(types.DomainGraphicsQueue)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return b, ex, cb
}

func allocBuffer(t *testing.T, b *Backend, usage types.MemoryUsage, size uint64) types.Buffer {
	t.Helper()
	dst := make([]types.Buffer, 1)
	err := b.Allocator().AllocateBuffers(dst, []types.BufferCreateInfo{{MemoryUsage: usage, Size: size, Alignment: 4}})
	if err != nil {
		t.Fatalf("AllocateBuffers: %v", err)
	}
	return dst[0]
}

func allocImage(t *testing.T, b *Backend, w, h, levels uint32) types.ImageAttachment {
	t.Helper()
	imgs := make([]types.Image, 1)
	err := b.Allocator().AllocateImages(imgs, []types.ImageCreateInfo{{
		Extent: types.Extent3D{Width: w, Height: h, Depth: 1},
		Format: gputypes.TextureFormatRGBA8Unorm, SampleCount: types.Samples1,
		Levels: levels, Layers: 1,
	}})
	if err != nil {
		t.Fatalf("AllocateImages: %v", err)
	}
	return types.ImageAttachment{
		Image:  imgs[0],
		Extent: types.Extent3D{Width: w, Height: h, Depth: 1},
		Format: gputypes.TextureFormatRGBA8Unorm, SampleCount: types.Samples1,
		BaseLevel: 0, LevelCount: levels, BaseLayer: 0, LayerCount: 1,
	}
}

func TestFillAndCopyBuffer(t *testing.T) {
	b, _, cb := newBackend(t)

	src := allocBuffer(t, b, types.MemoryUsageGPUOnly, 16)
	dst := allocBuffer(t, b, types.MemoryUsageGPUToCPU, 16)

	if err := cb.FillBuffer(src, 0xdeadbeef); err != nil {
		t.Fatalf("FillBuffer: %v", err)
	}
	if err := cb.CopyBuffer(src, dst); err != nil {
		t.Fatalf("CopyBuffer: %v", err)
	}
	for i := 0; i < 4; i++ {
		if got := binary.LittleEndian.Uint32(dst.Mapped[i*4:]); got != 0xdeadbeef {
			t.Errorf("word %d = %#x", i, got)
		}
	}
}

func TestUpdateBufferAndSubrange(t *testing.T) {
	b, _, cb := newBackend(t)
	buf := allocBuffer(t, b, types.MemoryUsageCPUToGPU, 16)

	if err := cb.UpdateBuffer(buf.Subrange(8, 4), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("UpdateBuffer: %v", err)
	}
	if buf.Mapped[8] != 1 || buf.Mapped[11] != 4 {
		t.Error("subrange update wrote to the wrong window")
	}
	if buf.Mapped[0] != 0 {
		t.Error("subrange update leaked outside the window")
	}
}

func TestClearImageUintTexels(t *testing.T) {
	b, _, cb := newBackend(t)
	ia := allocImage(t, b, 2, 2, 1)

	if err := cb.ClearImage(ia, types.ClearColorUint(5, 0, 0, 0)); err != nil {
		t.Fatalf("ClearImage: %v", err)
	}
	buf := allocBuffer(t, b, types.MemoryUsageGPUToCPU, 16)
	if err := cb.CopyImageToBuffer(ia, buf, backend.BufferImageCopy{
		ImageExtent: ia.Extent, MipLevel: 0, LayerCount: 1,
	}); err != nil {
		t.Fatalf("CopyImageToBuffer: %v", err)
	}
	for i := 0; i < 4; i++ {
		if got := binary.LittleEndian.Uint32(buf.Mapped[i*4:]); got != 5 {
			t.Errorf("texel %d = %#x, want 5", i, got)
		}
	}
}

func TestClearSlicedMipOnly(t *testing.T) {
	b, _, cb := newBackend(t)
	ia := allocImage(t, b, 2, 2, 2)

	mip1 := ia
	mip1.BaseLevel, mip1.LevelCount = 1, 1
	if err := cb.ClearImage(mip1, types.ClearColorUint(7, 0, 0, 0)); err != nil {
		t.Fatalf("ClearImage: %v", err)
	}

	st := ia.Image.Handle.(*imageStorage)
	if st.subresource(0, 0)[0] != 0 {
		t.Error("mip 0 touched by sliced clear")
	}
	if st.subresource(1, 0)[0] != 7 {
		t.Error("mip 1 not cleared")
	}
}

func TestBlitDownscales(t *testing.T) {
	b, _, cb := newBackend(t)
	ia := allocImage(t, b, 2, 2, 2)

	if err := cb.ClearImage(ia, types.ClearColorUint(5, 5, 5, 5)); err != nil {
		t.Fatalf("ClearImage: %v", err)
	}
	err := cb.BlitImage(ia, ia, backend.ImageBlit{
		SrcLevel:  0,
		SrcOffset: [2][3]int32{{0, 0, 0}, {2, 2, 1}},
		DstLevel:  1,
		DstOffset: [2][3]int32{{0, 0, 0}, {1, 1, 1}},
	})
	if err != nil {
		t.Fatalf("BlitImage: %v", err)
	}
	got := rgbaAt(viewOf(ia), 1, 0, 0)
	if got.R != 5 || got.G != 5 || got.B != 5 || got.A != 5 {
		t.Errorf("mip 1 texel = %v, want uniform 5", got)
	}
}

func TestExecutorTimelineAndWaits(t *testing.T) {
	b, ex, _ := newBackend(t)

	point, err := ex.Submit(1, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if point.Visibility != 1 || ex.Visibility() != 1 {
		t.Errorf("visibility = %d", ex.Visibility())
	}
	if err := b.Allocator().WaitSyncPoints([]types.SyncPoint{point}); err != nil {
		t.Errorf("WaitSyncPoints reached = %v", err)
	}
	future := types.SyncPoint{Domain: types.DomainGraphicsQueue, Visibility: 5}
	if err := b.Allocator().WaitSyncPoints([]types.SyncPoint{future}); err == nil {
		t.Error("waiting on a future point succeeded")
	}

	// A cross-queue wait on a reached point counts one semaphore wait.
	ex2, _, err := b.NewExecutor(types.DomainTransferQueue)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex2.Submit(1, []types.SyncPoint{point}); err != nil {
		t.Fatalf("Submit with wait: %v", err)
	}
	if got := b.SemaphoreWaits(); got != 1 {
		t.Errorf("semaphore waits = %d, want 1", got)
	}
}

func TestAllocationAccounting(t *testing.T) {
	b, _, _ := newBackend(t)
	alloc := b.Allocator().(*allocator)
	base := alloc.Allocations()

	buf := allocBuffer(t, b, types.MemoryUsageGPUOnly, 16)
	if alloc.Allocations() != base+1 {
		t.Errorf("allocations = %d, want %d", alloc.Allocations(), base+1)
	}
	alloc.DeallocateBuffers([]types.Buffer{buf})
	if alloc.Allocations() != base {
		t.Errorf("allocations after free = %d, want %d", alloc.Allocations(), base)
	}
}

func TestRenderPassClearOnLoad(t *testing.T) {
	b, ex, _ := newBackend(t)
	ia := allocImage(t, b, 2, 2, 1)

	views := make([]types.ImageView, 1)
	if err := b.Allocator().AllocateImageViews(views, []types.ImageViewCreateInfo{{
		Image: ia.Image, Format: ia.Format, BaseLevel: 0, LevelCount: 1, BaseLayer: 0, LayerCount: 1,
	}}); err != nil {
		t.Fatalf("AllocateImageViews: %v", err)
	}

	rps := make([]any, 1)
	if err := b.Allocator().AllocateRenderPasses(rps, []types.RenderPassCreateInfo{{
		ColorAttachments: []types.AttachmentDescription{{
			Format: ia.Format, SampleCount: types.Samples1, Clear: true,
		}},
	}}); err != nil {
		t.Fatalf("AllocateRenderPasses: %v", err)
	}
	fbs := make([]any, 1)
	if err := b.Allocator().AllocateFramebuffers(fbs, []types.FramebufferCreateInfo{{
		RenderPass: rps[0], Attachments: views, Extent: ia.Extent, Layers: 1,
	}}); err != nil {
		t.Fatalf("AllocateFramebuffers: %v", err)
	}

	err := ex.BeginRenderPass(backend.RenderPassBegin{
		RenderPass:  rps[0],
		Framebuffer: fbs[0],
		Area:        backend.RenderArea{Width: 2, Height: 2},
		Clears:      []types.Clear{types.ClearColorUint(9, 0, 0, 0)},
	})
	if err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	ex.EndRenderPass()

	st := ia.Image.Handle.(*imageStorage)
	if st.subresource(0, 0)[0] != 9 {
		t.Error("load-op clear did not reach the attachment")
	}
}
