// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native is the host backend: every resource lives in host
// memory and every command executes synchronously on the CPU as the
// executor records it; submission only settles the timeline. It exists to make render-graph semantics fully
// observable without a device, and it is the backend the package
// tests run on.
//
// Compute dispatches run the pipeline's host fallback when one is
// provided (see pipeline.BaseInfo.HostFallback), mirroring the CPU
// fallback path the rest of the gogpu stack keeps for GPU-less
// environments.
package native

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

func init() {
	backend.Register(New())
}

// Backend is the host backend. The zero value is not usable; use
// [New].
type Backend struct {
	alloc *allocator

	mu        sync.Mutex
	executors map[types.Domain]*executor

	initialized bool
}

// New returns a fresh, unregistered host backend. The package init
// registers one under the name "native"; tests that need isolated
// allocation counters create their own.
func New() *Backend {
	b := &Backend{executors: map[types.Domain]*executor{}}
	b.alloc = &allocator{backend: b}
	return b
}

// Name returns "native".
func (b *Backend) Name() string { return "native" }

// Init prepares the backend.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// Close drops all executors.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executors = map[types.Domain]*executor{}
	b.initialized = false
}

// Allocator returns the backing allocator.
func (b *Backend) Allocator() backend.Allocator { return b.alloc }

// NewExecutor returns the executor serving a concrete domain,
// creating it on first use.
func (b *Backend) NewExecutor(domain types.Domain) (backend.Executor, backend.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, nil, backend.ErrNotInitialized
	}
	ex, ok := b.executors[domain]
	if !ok {
		ex = &executor{domain: domain, backend: b}
		b.executors[domain] = ex
	}
	return ex, &commandBuffer{exec: ex}, nil
}

// SemaphoreWaits returns the number of cross-queue semaphore waits
// observed across all executors. Tests assert on it.
func (b *Backend) SemaphoreWaits() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n uint64
	for _, ex := range b.executors {
		n += ex.semWaits.Load()
	}
	return n
}

// visibility reports the executor timeline value of a domain.
func (b *Backend) visibility(d types.Domain) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ex, ok := b.executors[d.Queue()]; ok {
		return ex.visibility.Load()
	}
	return 0
}

// ----------------------------------------------------------------------------
// Storage
// ----------------------------------------------------------------------------

// bufferStorage is the host memory behind a native buffer.
type bufferStorage struct {
	data []byte
}

// imageStorage is the host memory behind a native image: one byte
// slice per (level, layer), sized per mip extent.
type imageStorage struct {
	extent  types.Extent3D
	format  gputypes.TextureFormat
	levels  uint32
	layers  uint32
	samples types.Samples

	// data[level*layers+layer] holds that subresource's texels.
	data [][]byte
}

func (s *imageStorage) levelExtent(level uint32) types.Extent3D {
	e := s.extent
	for i := uint32(0); i < level; i++ {
		e.Width = max(e.Width>>1, 1)
		e.Height = max(e.Height>>1, 1)
		e.Depth = max(e.Depth>>1, 1)
	}
	return e
}

func (s *imageStorage) subresource(level, layer uint32) []byte {
	idx := level*s.layers + layer
	if int(idx) >= len(s.data) {
		return nil
	}
	return s.data[idx]
}

// viewStorage selects a subresource window of an image.
type viewStorage struct {
	img        *imageStorage
	baseLevel  uint32
	levelCount uint32
	baseLayer  uint32
	layerCount uint32
}

// texelSize returns the byte size of one texel of a format. Formats
// outside the set the tests exercise fall back to four bytes.
func texelSize(f gputypes.TextureFormat) uint64 {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatDepth24PlusStencil8:
		return 4
	default:
		return 4
	}
}

// ----------------------------------------------------------------------------
// Allocator
// ----------------------------------------------------------------------------

// allocator implements backend.Allocator over host memory. It counts
// live allocations so tests can observe side effects.
type allocator struct {
	backend *Backend

	bufferAllocs atomic.Int64
	imageAllocs  atomic.Int64
	otherAllocs  atomic.Int64
}

// Allocations returns the number of allocations currently live across
// all resource kinds: each allocated resource counts one, and each
// deallocated resource lowers the count by one.
func (a *allocator) Allocations() int64 {
	return a.bufferAllocs.Load() + a.imageAllocs.Load() + a.otherAllocs.Load()
}

func (a *allocator) AllocateBuffers(dst []types.Buffer, infos []types.BufferCreateInfo) error {
	for i, ci := range infos {
		if ci.Size == 0 {
			return types.ErrResourceExhausted
		}
		st := &bufferStorage{data: make([]byte, ci.Size)}
		buf := types.Buffer{Handle: st, Size: ci.Size, MemoryUsage: ci.MemoryUsage}
		// Every native buffer is host memory; expose the mapping only
		// for usages that promise it.
		if ci.MemoryUsage.HostVisible() {
			buf.Mapped = st.data
		}
		dst[i] = buf
		a.bufferAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateBuffers(src []types.Buffer) {
	a.bufferAllocs.Add(-int64(len(src)))
}

func (a *allocator) AllocateImages(dst []types.Image, infos []types.ImageCreateInfo) error {
	for i, ci := range infos {
		if !ci.Extent.IsComplete() || ci.Levels == 0 || ci.Layers == 0 {
			return types.ErrResourceExhausted
		}
		st := &imageStorage{
			extent: ci.Extent, format: ci.Format,
			levels: ci.Levels, layers: ci.Layers, samples: ci.SampleCount,
		}
		ts := texelSize(ci.Format)
		for level := uint32(0); level < ci.Levels; level++ {
			e := st.levelExtent(level)
			for layer := uint32(0); layer < ci.Layers; layer++ {
				st.data = append(st.data, make([]byte, uint64(e.Width)*uint64(e.Height)*uint64(e.Depth)*ts))
			}
		}
		dst[i] = types.Image{Handle: st}
		a.imageAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateImages(src []types.Image) {
	a.imageAllocs.Add(-int64(len(src)))
}

func (a *allocator) AllocateImageViews(dst []types.ImageView, infos []types.ImageViewCreateInfo) error {
	for i, ci := range infos {
		img, ok := ci.Image.Handle.(*imageStorage)
		if !ok {
			return types.ErrResourceExhausted
		}
		dst[i] = types.ImageView{Handle: &viewStorage{
			img:       img,
			baseLevel: ci.BaseLevel, levelCount: ci.LevelCount,
			baseLayer: ci.BaseLayer, layerCount: ci.LayerCount,
		}}
		a.otherAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateImageViews(src []types.ImageView) {
	a.otherAllocs.Add(-int64(len(src)))
}

// token is the opaque handle for resources the host backend only
// tracks by identity.
type token struct{ kind string }

func (a *allocator) allocTokens(dst []any, kind string) error {
	for i := range dst {
		dst[i] = &token{kind: kind}
		a.otherAllocs.Add(1)
	}
	return nil
}

// renderPass retains its creation info so load-op clears apply only
// where declared.
type renderPass struct {
	ci types.RenderPassCreateInfo
}

func (a *allocator) AllocateRenderPasses(dst []any, infos []types.RenderPassCreateInfo) error {
	for i, ci := range infos {
		dst[i] = &renderPass{ci: ci}
		a.otherAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateRenderPasses(src []any) { a.otherAllocs.Add(-int64(len(src))) }

// framebuffer retains its attachment views so renderpass load-op
// clears can reach the storage.
type framebuffer struct {
	ci types.FramebufferCreateInfo
}

func (a *allocator) AllocateFramebuffers(dst []any, infos []types.FramebufferCreateInfo) error {
	for i, ci := range infos {
		dst[i] = &framebuffer{ci: ci}
		a.otherAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateFramebuffers(src []any) { a.otherAllocs.Add(-int64(len(src))) }

func (a *allocator) AllocateCommandBuffers(dst []backend.CommandBuffer, infos []types.CommandBufferCreateInfo) error {
	for i, ci := range infos {
		_, cb, err := a.backend.NewExecutor(ci.Domain)
		if err != nil {
			return err
		}
		dst[i] = cb
		a.otherAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateCommandBuffers(src []backend.CommandBuffer) {
	a.otherAllocs.Add(-int64(len(src)))
}

func (a *allocator) AllocateDescriptorSets(dst []any, infos []types.DescriptorSetCreateInfo) error {
	return a.allocTokens(dst, "descriptorset")
}

func (a *allocator) DeallocateDescriptorSets(src []any) { a.otherAllocs.Add(-int64(len(src))) }

func (a *allocator) AllocatePersistentDescriptorSets(dst []any, infos []types.DescriptorSetCreateInfo) error {
	return a.allocTokens(dst, "persistentdescriptorset")
}

func (a *allocator) DeallocatePersistentDescriptorSets(src []any) { a.otherAllocs.Add(-int64(len(src))) }

func (a *allocator) AllocateTimestampQueries(dst []any, count int) error {
	return a.allocTokens(dst, "timestampquery")
}

func (a *allocator) DeallocateTimestampQueries(src []any) { a.otherAllocs.Add(-int64(len(src))) }

func (a *allocator) AllocateSemaphores(dst []any, infos []types.SemaphoreCreateInfo) error {
	return a.allocTokens(dst, "semaphore")
}

func (a *allocator) DeallocateSemaphores(src []any) { a.otherAllocs.Add(-int64(len(src))) }

func (a *allocator) AllocateFences(dst []any, count int) error {
	return a.allocTokens(dst, "fence")
}

func (a *allocator) DeallocateFences(src []any) { a.otherAllocs.Add(-int64(len(src))) }

// addressSpace is a trivial bump allocator over a virtual range.
type addressSpace struct {
	size uint64
	next uint64
}

func (a *allocator) AllocateVirtualAddressSpaces(dst []any, sizes []uint64) error {
	for i, sz := range sizes {
		dst[i] = &addressSpace{size: sz}
		a.otherAllocs.Add(1)
	}
	return nil
}

func (a *allocator) DeallocateVirtualAddressSpaces(src []any) {
	a.otherAllocs.Add(-int64(len(src)))
}

func (a *allocator) AllocateVirtualAllocations(dst []uint64, space any, sizes []uint64) error {
	sp, ok := space.(*addressSpace)
	if !ok {
		return types.ErrResourceExhausted
	}
	for i, sz := range sizes {
		if sp.next+sz > sp.size {
			return types.ErrFragmentation
		}
		dst[i] = sp.next
		sp.next += sz
	}
	return nil
}

func (a *allocator) DeallocateVirtualAllocations(space any, src []uint64) {}

// WaitSyncPoints blocks until every point is reached. Native
// executors complete synchronously inside Submit, so a recorded point
// is reached by the time anyone waits on it; an unknown executor is a
// timeout.
func (a *allocator) WaitSyncPoints(points []types.SyncPoint) error {
	for _, p := range points {
		if p.Domain == types.DomainHost && p.Visibility == 0 {
			continue
		}
		if a.backend.visibility(p.Domain) < p.Visibility {
			return types.ErrTimeout
		}
	}
	return nil
}
