// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

// PipelineStages is a bitmask of pipeline stages, the coarse position of
// a use inside the GPU pipeline.
type PipelineStages uint32

const (
	StageNone          PipelineStages = 0
	StageTopOfPipe     PipelineStages = 1 << 0
	StageDrawIndirect  PipelineStages = 1 << 1
	StageVertexInput   PipelineStages = 1 << 2
	StageVertexShader  PipelineStages = 1 << 3
	StageFragmentShader PipelineStages = 1 << 4
	StageEarlyFragment PipelineStages = 1 << 5
	StageLateFragment  PipelineStages = 1 << 6
	StageColorOutput   PipelineStages = 1 << 7
	StageComputeShader PipelineStages = 1 << 8
	StageTransfer      PipelineStages = 1 << 9
	StageBottomOfPipe  PipelineStages = 1 << 10
	StageHost          PipelineStages = 1 << 11
	StageAllGraphics   PipelineStages = 1 << 12
	StageAllCommands   PipelineStages = 1 << 13
)

// AccessMask is a bitmask of memory access kinds used for barrier
// source/destination scopes.
type AccessMask uint32

const (
	AccessMaskNone                 AccessMask = 0
	AccessMaskIndirectRead         AccessMask = 1 << 0
	AccessMaskIndexRead            AccessMask = 1 << 1
	AccessMaskVertexAttributeRead  AccessMask = 1 << 2
	AccessMaskUniformRead          AccessMask = 1 << 3
	AccessMaskInputAttachmentRead  AccessMask = 1 << 4
	AccessMaskShaderRead           AccessMask = 1 << 5
	AccessMaskShaderWrite          AccessMask = 1 << 6
	AccessMaskColorRead            AccessMask = 1 << 7
	AccessMaskColorWrite           AccessMask = 1 << 8
	AccessMaskDepthStencilRead     AccessMask = 1 << 9
	AccessMaskDepthStencilWrite    AccessMask = 1 << 10
	AccessMaskTransferRead         AccessMask = 1 << 11
	AccessMaskTransferWrite        AccessMask = 1 << 12
	AccessMaskHostRead             AccessMask = 1 << 13
	AccessMaskHostWrite            AccessMask = 1 << 14
	AccessMaskMemoryRead           AccessMask = 1 << 15
	AccessMaskMemoryWrite          AccessMask = 1 << 16
)

const (
	readAccessMask = AccessMaskIndirectRead | AccessMaskIndexRead |
		AccessMaskVertexAttributeRead | AccessMaskUniformRead |
		AccessMaskInputAttachmentRead | AccessMaskShaderRead |
		AccessMaskColorRead | AccessMaskDepthStencilRead |
		AccessMaskTransferRead | AccessMaskHostRead | AccessMaskMemoryRead

	writeAccessMask = AccessMaskShaderWrite | AccessMaskColorWrite |
		AccessMaskDepthStencilWrite | AccessMaskTransferWrite |
		AccessMaskHostWrite | AccessMaskMemoryWrite
)

// ImageLayout is the layout an image subresource must be in for a use.
// Buffers ignore it.
type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilRead
	LayoutShaderRead
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = [...]string{
	LayoutUndefined:              "Undefined",
	LayoutGeneral:                "General",
	LayoutColorAttachment:        "ColorAttachment",
	LayoutDepthStencilAttachment: "DepthStencilAttachment",
	LayoutDepthStencilRead:       "DepthStencilRead",
	LayoutShaderRead:             "ShaderRead",
	LayoutTransferSrc:            "TransferSrc",
	LayoutTransferDst:            "TransferDst",
	LayoutPresentSrc:             "PresentSrc",
}

func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "Unknown"
}

// ResourceUse is the concrete synchronization footprint of one use of a
// resource: the stages it runs on, the memory accesses it performs and
// the image layout it requires.
type ResourceUse struct {
	Stages PipelineStages
	Access AccessMask
	Layout ImageLayout
}

// IsRead reports whether the use contains any read access.
func (u ResourceUse) IsRead() bool { return u.Access&readAccessMask != 0 }

// IsWrite reports whether the use contains any write access.
func (u ResourceUse) IsWrite() bool { return u.Access&writeAccessMask != 0 }

var accessUses = [accessCount]ResourceUse{
	AccessNone:          {StageNone, AccessMaskNone, LayoutUndefined},
	AccessInfer:         {StageNone, AccessMaskNone, LayoutUndefined},
	AccessConsume:       {StageNone, AccessMaskNone, LayoutUndefined},
	AccessConverge:      {StageNone, AccessMaskNone, LayoutUndefined},
	AccessManual:        {StageNone, AccessMaskNone, LayoutUndefined},
	AccessClear:         {StageTransfer, AccessMaskTransferWrite, LayoutTransferDst},
	AccessTransferClear: {StageTransfer, AccessMaskTransferWrite, LayoutTransferDst},

	AccessColorRW:           {StageColorOutput, AccessMaskColorRead | AccessMaskColorWrite, LayoutColorAttachment},
	AccessColorWrite:        {StageColorOutput, AccessMaskColorWrite, LayoutColorAttachment},
	AccessColorRead:         {StageColorOutput, AccessMaskColorRead, LayoutColorAttachment},
	AccessColorResolveRead:  {StageColorOutput, AccessMaskColorRead, LayoutColorAttachment},
	AccessColorResolveWrite: {StageColorOutput, AccessMaskColorWrite, LayoutColorAttachment},

	AccessDepthStencilRW:   {StageEarlyFragment | StageLateFragment, AccessMaskDepthStencilRead | AccessMaskDepthStencilWrite, LayoutDepthStencilAttachment},
	AccessDepthStencilRead: {StageEarlyFragment | StageLateFragment, AccessMaskDepthStencilRead, LayoutDepthStencilRead},
	AccessInputRead:        {StageFragmentShader, AccessMaskInputAttachmentRead, LayoutShaderRead},

	AccessVertexSampled: {StageVertexShader, AccessMaskShaderRead, LayoutShaderRead},
	AccessVertexRead:    {StageVertexShader, AccessMaskShaderRead, LayoutShaderRead},
	AccessAttributeRead: {StageVertexInput, AccessMaskVertexAttributeRead, LayoutUndefined},
	AccessIndexRead:     {StageVertexInput, AccessMaskIndexRead, LayoutUndefined},
	AccessIndirectRead:  {StageDrawIndirect, AccessMaskIndirectRead, LayoutUndefined},

	AccessFragmentSampled: {StageFragmentShader, AccessMaskShaderRead, LayoutShaderRead},
	AccessFragmentRead:    {StageFragmentShader, AccessMaskShaderRead, LayoutShaderRead},
	AccessFragmentWrite:   {StageFragmentShader, AccessMaskShaderWrite, LayoutGeneral},
	AccessFragmentRW:      {StageFragmentShader, AccessMaskShaderRead | AccessMaskShaderWrite, LayoutGeneral},

	AccessTransferRead:  {StageTransfer, AccessMaskTransferRead, LayoutTransferSrc},
	AccessTransferWrite: {StageTransfer, AccessMaskTransferWrite, LayoutTransferDst},

	AccessComputeRead:    {StageComputeShader, AccessMaskShaderRead, LayoutShaderRead},
	AccessComputeWrite:   {StageComputeShader, AccessMaskShaderWrite, LayoutGeneral},
	AccessComputeRW:      {StageComputeShader, AccessMaskShaderRead | AccessMaskShaderWrite, LayoutGeneral},
	AccessComputeSampled: {StageComputeShader, AccessMaskShaderRead, LayoutShaderRead},

	AccessHostRead:  {StageHost, AccessMaskHostRead, LayoutGeneral},
	AccessHostWrite: {StageHost, AccessMaskHostWrite, LayoutGeneral},
	AccessHostRW:    {StageHost, AccessMaskHostRead | AccessMaskHostWrite, LayoutGeneral},

	AccessMemoryRead:  {StageAllCommands, AccessMaskMemoryRead, LayoutGeneral},
	AccessMemoryWrite: {StageAllCommands, AccessMaskMemoryWrite, LayoutGeneral},
	AccessMemoryRW:    {StageAllCommands, AccessMaskMemoryRead | AccessMaskMemoryWrite, LayoutGeneral},

	AccessRelease:             {StageAllCommands, AccessMaskMemoryRead | AccessMaskMemoryWrite, LayoutGeneral},
	AccessReleaseToGraphics:   {StageAllCommands, AccessMaskMemoryRead | AccessMaskMemoryWrite, LayoutGeneral},
	AccessReleaseToCompute:    {StageAllCommands, AccessMaskMemoryRead | AccessMaskMemoryWrite, LayoutGeneral},
	AccessReleaseToTransfer:   {StageAllCommands, AccessMaskMemoryRead | AccessMaskMemoryWrite, LayoutGeneral},
	AccessAcquire:             {StageTopOfPipe, AccessMaskNone, LayoutUndefined},
	AccessAcquireFromGraphics: {StageTopOfPipe, AccessMaskNone, LayoutUndefined},
	AccessAcquireFromCompute:  {StageTopOfPipe, AccessMaskNone, LayoutUndefined},
	AccessAcquireFromTransfer: {StageTopOfPipe, AccessMaskNone, LayoutUndefined},
}

// ToUse maps a symbolic access to its synchronization footprint.
func ToUse(a Access) ResourceUse {
	return a.toUse()
}

func (a Access) toUse() ResourceUse {
	if int(a) < len(accessUses) {
		return accessUses[a]
	}
	return ResourceUse{}
}

// Barrier is the per-edge synchronization tuple computed by the scheduler
// for a transition between two uses of one resource.
type Barrier struct {
	Src ResourceUse
	Dst ResourceUse
}
