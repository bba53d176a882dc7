// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Sentinels marking image attachment axes as "not yet specified". The
// reify-inference pass replaces them with concrete values propagated
// from co-attached images, or leaves the documented defaults.
const (
	// RemainingMips selects all mip levels from the base level on.
	RemainingMips = ^uint32(0)

	// RemainingLayers selects all array layers from the base layer on.
	RemainingLayers = ^uint32(0)
)

// Extent3D is the pixel extent of an image. A zero width, height or
// depth means the axis is unspecified and subject to inference.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// IsZero reports whether no axis of the extent is known.
func (e Extent3D) IsZero() bool { return e.Width == 0 && e.Height == 0 && e.Depth == 0 }

// IsComplete reports whether every axis of the extent is known.
func (e Extent3D) IsComplete() bool { return e.Width > 0 && e.Height > 0 && e.Depth > 0 }

func (e Extent3D) String() string {
	return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
}

// Samples is a multisampling count. The zero value means "infer from
// co-attached images".
type Samples uint8

const (
	SamplesInfer Samples = 0
	Samples1     Samples = 1
	Samples2     Samples = 2
	Samples4     Samples = 4
	Samples8     Samples = 8
	Samples16    Samples = 16
)

// Clear is a clear value for an image: either a color or a
// depth/stencil pair.
type Clear struct {
	IsColor bool

	// Color is valid when IsColor. Formats narrower than four channels
	// take a prefix. Integer formats reinterpret the bits via the
	// Uint32 accessors.
	Color [4]float32

	// ColorUint carries integer clear values for integer formats.
	ColorUint [4]uint32

	Depth   float32
	Stencil uint32
}

// ClearColor returns a floating-point color clear value.
func ClearColor(r, g, b, a float32) Clear {
	return Clear{IsColor: true, Color: [4]float32{r, g, b, a}}
}

// ClearColorUint returns an integer color clear value.
func ClearColorUint(r, g, b, a uint32) Clear {
	return Clear{IsColor: true, ColorUint: [4]uint32{r, g, b, a}}
}

// ClearDepthStencil returns a depth/stencil clear value.
func ClearDepthStencil(depth float32, stencil uint32) Clear {
	return Clear{Depth: depth, Stencil: stencil}
}

// Image is an opaque handle to a backend image resource. The Handle
// field is interpreted only by the allocator that produced it (a
// hal.Texture for the wgpu backend, host storage for the native one).
type Image struct {
	Handle any
}

// IsZero reports whether the image has no backing resource yet.
func (im Image) IsZero() bool { return im.Handle == nil }

// ImageView is an opaque handle to a view over an image subresource
// range.
type ImageView struct {
	Handle any
}

// IsZero reports whether the view has no backing resource yet.
func (iv ImageView) IsZero() bool { return iv.Handle == nil }

// ImageAttachment is a view into an image plus the properties the
// render graph needs to attach, transition and infer it: format,
// extent, sample count and the selected mip/layer window. It is the
// unit of image flow through the graph.
type ImageAttachment struct {
	Image     Image
	ImageView ImageView

	Extent      Extent3D
	Format      gputypes.TextureFormat
	SampleCount Samples

	BaseLevel  uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32

	ClearValue Clear
}

// IsComplete reports whether every property needed to allocate the
// attachment is known.
func (ia ImageAttachment) IsComplete() bool {
	return ia.Extent.IsComplete() &&
		ia.Format != 0 &&
		ia.SampleCount != SamplesInfer &&
		ia.LevelCount != RemainingMips && ia.LevelCount > 0 &&
		ia.LayerCount != RemainingLayers && ia.LayerCount > 0
}

// MipExtent returns the extent of mip level relative to the attachment
// base level, halving each axis per level with a floor of one.
func (ia ImageAttachment) MipExtent(level uint32) Extent3D {
	e := ia.Extent
	for i := uint32(0); i < level; i++ {
		e.Width = max(e.Width>>1, 1)
		e.Height = max(e.Height>>1, 1)
		e.Depth = max(e.Depth>>1, 1)
	}
	return e
}

func (ia ImageAttachment) String() string {
	return fmt.Sprintf("ia{%s %v mips[%d,%d) layers[%d,%d)}",
		ia.Extent, ia.Format, ia.BaseLevel, ia.BaseLevel+ia.LevelCount, ia.BaseLayer, ia.BaseLayer+ia.LayerCount)
}

// ImageCreateInfo describes an image allocation request.
type ImageCreateInfo struct {
	Extent      Extent3D
	Format      gputypes.TextureFormat
	SampleCount Samples
	Levels      uint32
	Layers      uint32
}

// ImageViewCreateInfo describes an image view allocation request.
type ImageViewCreateInfo struct {
	Image      Image
	Format     gputypes.TextureFormat
	BaseLevel  uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32
}
