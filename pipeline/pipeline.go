// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline holds the compiled-pipeline handles the render
// graph consumes. Shader compilation itself is external: WGSL sources
// compile through github.com/gogpu/naga, SPIR-V blobs pass through
// untouched, and reflection arrives as a prefilled [Program].
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/naga"
)

// ErrEmptyShader is returned when a pipeline is created without code.
var ErrEmptyShader = errors.New("pipeline: empty shader source")

// BindingKind is the descriptor kind of one reflected binding.
type BindingKind uint8

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingSampledImage
	BindingStorageImage
	BindingSampler
	BindingCombinedImageSampler
)

var bindingKindNames = [...]string{
	BindingUniformBuffer:        "UniformBuffer",
	BindingStorageBuffer:        "StorageBuffer",
	BindingSampledImage:         "SampledImage",
	BindingStorageImage:         "StorageImage",
	BindingSampler:              "Sampler",
	BindingCombinedImageSampler: "CombinedImageSampler",
}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "Unknown"
}

// Binding is one reflected descriptor binding.
type Binding struct {
	Set     uint32
	Binding uint32
	Kind    BindingKind
	Name    string
	Count   uint32
}

// PushConstantRange is one reflected push-constant window.
type PushConstantRange struct {
	Offset uint32
	Size   uint32
}

// SpecConstant is one reflected specialization constant.
type SpecConstant struct {
	ID   uint32
	Name string
}

// Program is the reflection of a compiled shader program: descriptor
// bindings by (set, binding), push-constant ranges and specialization
// constants. Reflection is produced outside the core and consumed
// as-is.
type Program struct {
	Bindings      []Binding
	PushConstants []PushConstantRange
	SpecConstants []SpecConstant

	// WorkgroupSize is the compute local size, when applicable.
	WorkgroupSize [3]uint32
}

// BindingsInOrder returns the bindings sorted by (set, binding); the
// lifted-compute dispatcher binds resources in this order. Sampled
// images and samplers sharing a name combine into one slot.
func (p *Program) BindingsInOrder() []Binding {
	ordered := make([]Binding, 0, len(p.Bindings))
	for _, b := range p.Bindings {
		if b.Kind == BindingSampler {
			// A sampler pairing a sampled image of the same name
			// shares that image's slot.
			paired := false
			for _, o := range p.Bindings {
				if o.Kind == BindingSampledImage && o.Name == b.Name && b.Name != "" {
					paired = true
					break
				}
			}
			if paired {
				continue
			}
		}
		ordered = append(ordered, b)
	}
	// Insertion sort keeps this dependency-free; binding lists are
	// small.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			a, b := ordered[j-1], ordered[j]
			if a.Set > b.Set || (a.Set == b.Set && a.Binding > b.Binding) {
				ordered[j-1], ordered[j] = b, a
			} else {
				break
			}
		}
	}
	return ordered
}

// BaseInfo is an opaque compiled-pipeline handle: the SPIR-V it was
// built from, its reflection, and the backend object once a backend
// instantiated it.
type BaseInfo struct {
	Name    string
	SPIRV   []uint32
	Program Program

	// Handle is the backend pipeline object, filled lazily by the
	// executor's backend.
	Handle any

	// HostFallback, when set, executes the pipeline's effect on host
	// memory; GPU-less backends dispatch through it. Resources arrive
	// in binding order.
	HostFallback func(x, y, z uint32, resources []any) error
}

// CompileComputeWGSL compiles WGSL compute source to SPIR-V through
// naga and pairs it with the caller-provided reflection.
func CompileComputeWGSL(name, source string, program Program) (*BaseInfo, error) {
	if source == "" {
		return nil, ErrEmptyShader
	}
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to compile %s: %w", name, err)
	}
	return &BaseInfo{Name: name, SPIRV: bytesToWords(spirvBytes), Program: program}, nil
}

// FromSPIRV wraps an already-compiled SPIR-V blob.
func FromSPIRV(name string, spirv []uint32, program Program) (*BaseInfo, error) {
	if len(spirv) == 0 {
		return nil, ErrEmptyShader
	}
	return &BaseInfo{Name: name, SPIRV: spirv, Program: program}, nil
}

// bytesToWords reassembles little-endian SPIR-V words.
func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}

// Cache is the optional persisted pipeline cache: an opaque byte blob
// loaded before first pipeline creation and saved on shutdown. No
// other state persists.
type Cache struct {
	mu   sync.Mutex
	blob []byte
}

// Load installs a previously saved blob. Call before the first
// pipeline is created.
func (c *Cache) Load(blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blob = append([]byte(nil), blob...)
}

// Save returns the current blob for persisting.
func (c *Cache) Save() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.blob...)
}

// Update replaces the blob; backends call it after building pipelines.
func (c *Cache) Update(blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blob = append([]byte(nil), blob...)
}
