// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the interfaces the render-graph core consumes
// from a device backend: the [Allocator] that owns GPU resources and
// the [CommandBuffer] recording surface handed to pass callbacks.
//
// Backends register themselves via [Register] and are selected by name,
// mirroring the backend registry of the wider gogpu stack. The core
// never creates devices; the host application owns the device and hands
// it to the backend (see backend/wgpu).
package backend

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogpu/rg/types"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is
	// not registered or cannot run on this system.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before
	// the backend is initialized.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Allocator owns the device resources the executor needs: buffers,
// images, views, render passes, framebuffers, command buffers,
// descriptor sets, queries and synchronization primitives.
//
// Allocation calls fill dst[i] for each infos[i] or return an error
// carrying one of the allocation sentinels from package types. The
// executor releases transient resources back after the frame's signals
// fire; the allocator is free to recycle them.
type Allocator interface {
	AllocateBuffers(dst []types.Buffer, infos []types.BufferCreateInfo) error
	DeallocateBuffers(src []types.Buffer)

	AllocateImages(dst []types.Image, infos []types.ImageCreateInfo) error
	DeallocateImages(src []types.Image)

	AllocateImageViews(dst []types.ImageView, infos []types.ImageViewCreateInfo) error
	DeallocateImageViews(src []types.ImageView)

	AllocateRenderPasses(dst []any, infos []types.RenderPassCreateInfo) error
	DeallocateRenderPasses(src []any)

	AllocateFramebuffers(dst []any, infos []types.FramebufferCreateInfo) error
	DeallocateFramebuffers(src []any)

	AllocateCommandBuffers(dst []CommandBuffer, infos []types.CommandBufferCreateInfo) error
	DeallocateCommandBuffers(src []CommandBuffer)

	AllocateDescriptorSets(dst []any, infos []types.DescriptorSetCreateInfo) error
	DeallocateDescriptorSets(src []any)

	AllocatePersistentDescriptorSets(dst []any, infos []types.DescriptorSetCreateInfo) error
	DeallocatePersistentDescriptorSets(src []any)

	AllocateTimestampQueries(dst []any, count int) error
	DeallocateTimestampQueries(src []any)

	AllocateSemaphores(dst []any, infos []types.SemaphoreCreateInfo) error
	DeallocateSemaphores(src []any)

	AllocateFences(dst []any, count int) error
	DeallocateFences(src []any)

	// Virtual address spaces back sparse and pointer-addressed
	// resources; allocations carve ranges out of a space.
	AllocateVirtualAddressSpaces(dst []any, sizes []uint64) error
	DeallocateVirtualAddressSpaces(src []any)
	AllocateVirtualAllocations(dst []uint64, space any, sizes []uint64) error
	DeallocateVirtualAllocations(space any, src []uint64)

	// WaitSyncPoints blocks until every given sync point is reached on
	// its executor timeline.
	WaitSyncPoints(points []types.SyncPoint) error
}

// RenderArea is the framebuffer region a render pass instance covers.
type RenderArea struct {
	X, Y          int32
	Width, Height uint32
}

// RenderPassBegin carries everything a backend needs to begin a render
// pass instance built by the executor.
type RenderPassBegin struct {
	RenderPass  any
	Framebuffer any
	Area        RenderArea
	Clears      []types.Clear
}

// Rasterization mirrors the dynamic rasterization state a pass callback
// may override; the executor installs defaults when it does not.
type Rasterization struct {
	CullBack  bool
	CullFront bool
	FrontCCW  bool
	LineWidth float32
}

// ColorBlend is per-attachment blend state.
type ColorBlend struct {
	Enable   bool
	AlphaOne bool
}

// DepthStencil is the depth/stencil test state.
type DepthStencil struct {
	DepthTest  bool
	DepthWrite bool
}

// BufferImageCopy describes one buffer<->image copy region.
type BufferImageCopy struct {
	BufferOffset    uint64
	BufferRowLength uint32
	ImageExtent     types.Extent3D
	MipLevel        uint32
	BaseLayer       uint32
	LayerCount      uint32
}

// ImageBlit describes one image-to-image blit region with independent
// source and destination windows.
type ImageBlit struct {
	SrcLevel  uint32
	SrcLayers [2]uint32
	SrcOffset [2][3]int32
	DstLevel  uint32
	DstLayers [2]uint32
	DstOffset [2][3]int32
}

// CommandBuffer is the recording surface handed to pass callbacks. It
// is bound to the scope of one scheduled call: resource queries resolve
// against that call's arguments, and recorded commands execute on the
// call's scheduled domain.
//
// Backends implement it over their native encoder; the executor wraps
// it with scope management.
type CommandBuffer interface {
	// GetResourceImageAttachment returns the resolved attachment bound
	// to the given argument slot of the current call.
	GetResourceImageAttachment(arg int) (types.ImageAttachment, error)

	// GetScheduledDomain returns the domain the current call was
	// scheduled onto.
	GetScheduledDomain() types.Domain

	// Fixed-function state.

	SetViewport(x, y, w, h, minDepth, maxDepth float32)
	SetScissor(x, y int32, w, h uint32)
	SetRasterization(r Rasterization)
	SetColorBlend(attachment int, b ColorBlend)
	BroadcastColorBlend(b ColorBlend)
	SetDepthStencil(ds DepthStencil)
	SetDynamicState(state any)
	SetAttachmentlessFramebuffer(extent types.Extent3D, layers uint32)

	// Binding.

	BindGraphicsPipeline(pipeline any) error
	BindComputePipeline(pipeline any) error
	BindVertexBuffer(binding uint32, buf types.Buffer)
	BindIndexBuffer(buf types.Buffer, indexSize uint32)
	BindBuffer(set, binding uint32, buf types.Buffer)
	BindImage(set, binding uint32, ia types.ImageAttachment)
	BindSampler(set, binding uint32, sampler any)
	BindPersistent(set uint32, descriptorSet any)
	PushConstants(offset uint32, data []byte)

	// Work.

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	DispatchInvocationsPerPixel(ia types.ImageAttachment)

	// Transfers.

	CopyBuffer(src, dst types.Buffer) error
	CopyBufferToImage(src types.Buffer, dst types.ImageAttachment, region BufferImageCopy) error
	CopyImageToBuffer(src types.ImageAttachment, dst types.Buffer, region BufferImageCopy) error
	ClearImage(dst types.ImageAttachment, clear types.Clear) error
	BlitImage(src, dst types.ImageAttachment, region ImageBlit) error
	ResolveImage(src, dst types.ImageAttachment) error
	FillBuffer(dst types.Buffer, value uint32) error
	UpdateBuffer(dst types.Buffer, data []byte) error
}

// Executor drives one domain: it records barriers, renderpass begin/end
// and submissions, and advances its timeline. The scheduler produces
// work in submission order per executor.
type Executor interface {
	// Domain returns the single concrete domain this executor serves.
	Domain() types.Domain

	// Barrier records a synchronization edge on the current command
	// stream for the given resource transition. Exactly one of ia and
	// buf is non-nil.
	Barrier(b types.Barrier, ia *types.ImageAttachment, buf *types.Buffer)

	// BeginRenderPass and EndRenderPass bracket rasterization calls.
	BeginRenderPass(begin RenderPassBegin) error
	EndRenderPass()

	// Submit flushes recorded work, waiting for the given sync points
	// first and signaling the given timeline value when done. It
	// returns the sync point that completes this submission.
	Submit(signal uint64, waits []types.SyncPoint) (types.SyncPoint, error)

	// Visibility returns the last timeline value observed complete.
	Visibility() uint64
}

// Backend produces the pieces above for one device.
type Backend interface {
	// Name returns the backend identifier (e.g. "native", "wgpu").
	Name() string

	// Init prepares the backend for use.
	Init() error

	// Close releases all backend resources.
	Close()

	// Allocator returns the backend's resource allocator.
	Allocator() Allocator

	// NewExecutor returns an executor for the given concrete domain
	// with its recording command buffer.
	NewExecutor(domain types.Domain) (Executor, CommandBuffer, error)
}

// ----------------------------------------------------------------------------
// Registry
// ----------------------------------------------------------------------------

var (
	registryMu  sync.RWMutex
	registry    = map[string]Backend{}
	defaultName string
)

// Register makes a backend selectable by name. The first registered
// backend becomes the default. Register panics on a duplicate name;
// backends register from init functions where a duplicate is a
// programming error.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name := b.Name()
	if _, dup := registry[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	registry[name] = b
	if defaultName == "" {
		defaultName = name
	}
}

// Get returns the backend registered under name.
func Get(name string) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if b, ok := registry[name]; ok {
		return b, nil
	}
	return nil, ErrBackendNotAvailable
}

// Default returns the default backend, preferring an explicitly set
// default and falling back to the first registration.
func Default() (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if defaultName == "" {
		return nil, ErrBackendNotAvailable
	}
	return registry[defaultName], nil
}

// SetDefault selects the default backend by name.
func SetDefault(name string) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; !ok {
		return ErrBackendNotAvailable
	}
	defaultName = name
	return nil
}

// List returns the registered backend names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
