// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

import "fmt"

// MemoryUsage selects which heap a buffer lives in.
type MemoryUsage uint8

const (
	// MemoryUsageInfer lets the allocator pick based on first use.
	MemoryUsageInfer MemoryUsage = iota

	// MemoryUsageGPUOnly is device-local memory, not host-visible.
	MemoryUsageGPUOnly

	// MemoryUsageCPUToGPU is host-visible upload memory.
	MemoryUsageCPUToGPU

	// MemoryUsageGPUToCPU is host-visible readback memory.
	MemoryUsageGPUToCPU

	// MemoryUsageCPUOnly is host memory, device-accessible at a cost.
	MemoryUsageCPUOnly
)

var memoryUsageNames = [...]string{
	MemoryUsageInfer:    "Infer",
	MemoryUsageGPUOnly:  "GPUOnly",
	MemoryUsageCPUToGPU: "CPUtoGPU",
	MemoryUsageGPUToCPU: "GPUtoCPU",
	MemoryUsageCPUOnly:  "CPUOnly",
}

func (m MemoryUsage) String() string {
	if int(m) < len(memoryUsageNames) {
		return memoryUsageNames[m]
	}
	return "Unknown"
}

// HostVisible reports whether buffers of this usage are mapped on the
// host.
func (m MemoryUsage) HostVisible() bool {
	return m == MemoryUsageCPUToGPU || m == MemoryUsageGPUToCPU || m == MemoryUsageCPUOnly
}

// Buffer is a contiguous range of GPU-addressable memory. A zero Size
// means the size is unspecified and subject to inference (SameSize /
// SetSize on the value). Mapped is non-nil for host-visible buffers.
type Buffer struct {
	Handle any

	Offset uint64
	Size   uint64

	MemoryUsage MemoryUsage

	// Mapped aliases the buffer contents when host-visible.
	Mapped []byte
}

// IsZero reports whether the buffer has no backing allocation yet.
func (b Buffer) IsZero() bool { return b.Handle == nil && b.Mapped == nil }

// Subrange returns the buffer narrowed to [off, off+size). Sub-slices
// compose additively; the allocator aligned the root allocation.
func (b Buffer) Subrange(off, size uint64) Buffer {
	s := b
	s.Offset += off
	s.Size = size
	if s.Mapped != nil {
		s.Mapped = s.Mapped[off : off+size]
	}
	return s
}

func (b Buffer) String() string {
	return fmt.Sprintf("buf{%s +%d %dB}", b.MemoryUsage, b.Offset, b.Size)
}

// BufferCreateInfo describes a buffer allocation request.
type BufferCreateInfo struct {
	MemoryUsage MemoryUsage
	Size        uint64
	Alignment   uint64
}
