// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

import "github.com/gogpu/gputypes"

// Swapchain is the presentation surface handle the render graph can
// acquire images from and present into. Its images rotate; the graph
// sees one per acquire.
type Swapchain struct {
	Handle any

	Extent Extent3D
	Format gputypes.TextureFormat

	// Images are the swapchain's rotating attachments.
	Images []ImageAttachment
}

// RenderPassCreateInfo describes a render pass allocation request: the
// attachments it transitions and their load/store behavior.
type RenderPassCreateInfo struct {
	ColorAttachments []AttachmentDescription
	DepthStencil     *AttachmentDescription
	SampleCount      Samples
}

// AttachmentDescription describes one attachment slot of a render pass.
type AttachmentDescription struct {
	Format        gputypes.TextureFormat
	SampleCount   Samples
	Clear         bool
	ClearValue    Clear
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// FramebufferCreateInfo describes a framebuffer allocation request.
type FramebufferCreateInfo struct {
	RenderPass  any
	Attachments []ImageView
	Extent      Extent3D
	Layers      uint32
}

// DescriptorSetCreateInfo describes a descriptor set allocation.
type DescriptorSetCreateInfo struct {
	Layout any
}

// SemaphoreCreateInfo describes a timeline semaphore allocation.
type SemaphoreCreateInfo struct {
	InitialValue uint64
}

// CommandBufferCreateInfo describes a command buffer allocation.
type CommandBufferCreateInfo struct {
	Domain Domain
}
