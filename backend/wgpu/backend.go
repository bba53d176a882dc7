// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu backs the render graph with a gogpu/wgpu HAL device.
// The host application owns the device and queue — this package
// receives them, it never creates them (the gpucontext convention
// across the gogpu stack).
//
// WebGPU-class queues do not surface separate transfer/compute
// hardware queues, so every domain maps onto the one HAL queue; the
// render graph's cross-domain semaphores become fence-value waits on
// that queue's timeline.
package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

// Backend implements backend.Backend over a HAL device.
type Backend struct {
	device hal.Device
	queue  hal.Queue

	alloc *allocator

	mu          sync.Mutex
	executors   map[types.Domain]*executor
	fence       hal.Fence
	initialized bool
}

// New wraps an explicit HAL device and queue.
func New(device hal.Device, queue hal.Queue) *Backend {
	b := &Backend{device: device, queue: queue, executors: map[types.Domain]*executor{}}
	b.alloc = &allocator{backend: b}
	return b
}

// FromProvider wraps the device a gpucontext host hands out.
// The provider's device must be a HAL device.
func FromProvider(p gpucontext.DeviceProvider) (*Backend, error) {
	dev, ok := any(p.Device()).(hal.Device)
	if !ok {
		return nil, fmt.Errorf("wgpu: %w: provider device is not a hal.Device", backend.ErrBackendNotAvailable)
	}
	q, ok := any(p.Queue()).(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("wgpu: %w: provider queue is not a hal.Queue", backend.ErrBackendNotAvailable)
	}
	return New(dev, q), nil
}

// Name returns "wgpu".
func (b *Backend) Name() string { return "wgpu" }

// Init creates the shared timeline fence.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	b.fence = fence
	b.initialized = true
	return nil
}

// Close destroys executors and the fence.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fence != nil {
		b.device.DestroyFence(b.fence)
		b.fence = nil
	}
	b.executors = map[types.Domain]*executor{}
	b.initialized = false
}

// Allocator returns the HAL-backed allocator.
func (b *Backend) Allocator() backend.Allocator { return b.alloc }

// NewExecutor returns the executor serving a domain. All domains share
// the HAL queue; each keeps its own timeline window on the shared
// fence.
func (b *Backend) NewExecutor(domain types.Domain) (backend.Executor, backend.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, nil, backend.ErrNotInitialized
	}
	ex, ok := b.executors[domain]
	if !ok {
		// Each domain gets its own value window on the shared fence so
		// per-domain timelines never collide.
		ex = &executor{backend: b, domain: domain, fenceBase: uint64(len(b.executors)) << 32}
		b.executors[domain] = ex
	}
	return ex, &commandBuffer{exec: ex}, nil
}

// visibility reports the executor timeline of a domain.
func (b *Backend) visibility(d types.Domain) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ex, ok := b.executors[d.Queue()]; ok {
		return ex.visible
	}
	return 0
}

// waitVisibility blocks until a domain timeline reaches value.
func (b *Backend) waitVisibility(d types.Domain, value uint64, timeout time.Duration) error {
	b.mu.Lock()
	ex, ok := b.executors[d.Queue()]
	fence := b.fence
	b.mu.Unlock()
	if !ok {
		return types.ErrTimeout
	}
	if ex.visible >= value {
		return nil
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	reached, err := b.device.Wait(fence, ex.fenceBase+value, timeout)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrDeviceLost, err)
	}
	if !reached {
		return types.ErrTimeout
	}
	b.mu.Lock()
	if value > ex.visible {
		ex.visible = value
	}
	b.mu.Unlock()
	return nil
}

// bufferResource is the HAL buffer plus the shadow mapping used for
// host-visible usages.
type bufferResource struct {
	buf    hal.Buffer
	size   uint64
	shadow []byte
	usage  types.MemoryUsage
}

// textureResource is the HAL texture plus its creation shape.
type textureResource struct {
	tex    hal.Texture
	extent types.Extent3D
	format gputypes.TextureFormat
	levels uint32
	layers uint32
}

// viewResource pairs a HAL view with its subresource window.
type viewResource struct {
	view hal.TextureView
	tex  *textureResource

	baseLevel, levelCount uint32
	baseLayer, layerCount uint32
}
