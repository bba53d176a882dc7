// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

// Access is a symbolic read/write permission attached to a pass argument
// or result. Accesses drive barrier generation: every Access maps to a
// concrete (stage, access mask, image layout) triple via [ToUse].
type Access uint8

const (
	// AccessNone means: as an initial use, the resource is available
	// without synchronization; as a final use, it needs no synchronizing.
	AccessNone Access = iota

	// AccessInfer is a final use that must be overwritten by inference
	// before compiling (internal).
	AccessInfer

	// AccessConsume marks an access that consumes its value (internal).
	AccessConsume

	// AccessConverge merges previously diverged subresource uses (internal).
	AccessConverge

	// AccessManual is a use provided explicitly by the caller (internal).
	AccessManual

	// AccessClear is a general clearing write.
	AccessClear

	// AccessTransferClear is a clear performed on the transfer stage.
	AccessTransferClear

	AccessColorRW
	AccessColorWrite
	AccessColorRead
	AccessColorResolveRead
	AccessColorResolveWrite
	AccessDepthStencilRW
	AccessDepthStencilRead
	AccessInputRead
	AccessVertexSampled
	AccessVertexRead
	AccessAttributeRead
	AccessIndexRead
	AccessIndirectRead
	AccessFragmentSampled
	AccessFragmentRead
	AccessFragmentWrite
	AccessFragmentRW
	AccessTransferRead
	AccessTransferWrite
	AccessComputeRead
	AccessComputeWrite
	AccessComputeRW
	AccessComputeSampled
	AccessHostRead
	AccessHostWrite
	AccessHostRW
	AccessMemoryRead
	AccessMemoryWrite
	AccessMemoryRW

	// Release/acquire accesses mark ownership handoffs. The scheduler
	// does not synthesize them; callers record releases explicitly
	// (rg.Release, and rg.EnqueuePresentation with ReleaseToGraphics).
	AccessRelease
	AccessReleaseToGraphics
	AccessReleaseToCompute
	AccessReleaseToTransfer
	AccessAcquire
	AccessAcquireFromGraphics
	AccessAcquireFromCompute
	AccessAcquireFromTransfer

	accessCount
)

var accessNames = [...]string{
	AccessNone:                "None",
	AccessInfer:               "Infer",
	AccessConsume:             "Consume",
	AccessConverge:            "Converge",
	AccessManual:              "Manual",
	AccessClear:               "Clear",
	AccessTransferClear:       "TransferClear",
	AccessColorRW:             "ColorRW",
	AccessColorWrite:          "ColorWrite",
	AccessColorRead:           "ColorRead",
	AccessColorResolveRead:    "ColorResolveRead",
	AccessColorResolveWrite:   "ColorResolveWrite",
	AccessDepthStencilRW:      "DepthStencilRW",
	AccessDepthStencilRead:    "DepthStencilRead",
	AccessInputRead:           "InputRead",
	AccessVertexSampled:       "VertexSampled",
	AccessVertexRead:          "VertexRead",
	AccessAttributeRead:       "AttributeRead",
	AccessIndexRead:           "IndexRead",
	AccessIndirectRead:        "IndirectRead",
	AccessFragmentSampled:     "FragmentSampled",
	AccessFragmentRead:        "FragmentRead",
	AccessFragmentWrite:       "FragmentWrite",
	AccessFragmentRW:          "FragmentRW",
	AccessTransferRead:        "TransferRead",
	AccessTransferWrite:       "TransferWrite",
	AccessComputeRead:         "ComputeRead",
	AccessComputeWrite:        "ComputeWrite",
	AccessComputeRW:           "ComputeRW",
	AccessComputeSampled:      "ComputeSampled",
	AccessHostRead:            "HostRead",
	AccessHostWrite:           "HostWrite",
	AccessHostRW:              "HostRW",
	AccessMemoryRead:          "MemoryRead",
	AccessMemoryWrite:         "MemoryWrite",
	AccessMemoryRW:            "MemoryRW",
	AccessRelease:             "Release",
	AccessReleaseToGraphics:   "ReleaseToGraphics",
	AccessReleaseToCompute:    "ReleaseToCompute",
	AccessReleaseToTransfer:   "ReleaseToTransfer",
	AccessAcquire:             "Acquire",
	AccessAcquireFromGraphics: "AcquireFromGraphics",
	AccessAcquireFromCompute:  "AcquireFromCompute",
	AccessAcquireFromTransfer: "AcquireFromTransfer",
}

// String returns the symbolic name of the access.
func (a Access) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return "Unknown"
}

// IsRead reports whether the access contains any read bit.
func (a Access) IsRead() bool {
	return a.toUse().Access&readAccessMask != 0
}

// IsWrite reports whether the access contains any write bit. A resource
// under a write access is exclusive in its use chain.
func (a Access) IsWrite() bool {
	return a.toUse().Access&writeAccessMask != 0
}

// IsReadOnly reports whether the access reads without writing.
func (a Access) IsReadOnly() bool { return a.IsRead() && !a.IsWrite() }

// IsFramebufferAttachment reports whether the access binds an image as a
// renderpass attachment (color, resolve, depth/stencil or input). Such
// arguments participate in framebuffer inference: all attachments of one
// call must agree on extent, sample count and layer count.
func (a Access) IsFramebufferAttachment() bool {
	switch a {
	case AccessColorRW, AccessColorWrite, AccessColorRead,
		AccessColorResolveRead, AccessColorResolveWrite,
		AccessDepthStencilRW, AccessDepthStencilRead, AccessInputRead:
		return true
	}
	return false
}

// IsInternal reports whether the access is synthesized by the compiler
// rather than supplied on a pass argument.
func (a Access) IsInternal() bool {
	switch a {
	case AccessInfer, AccessConsume, AccessConverge, AccessManual:
		return true
	}
	return a >= AccessRelease && a <= AccessAcquireFromTransfer
}
