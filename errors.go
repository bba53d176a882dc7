package rg

import "github.com/gogpu/rg/types"

// Error sentinels, re-exported from package types so callers matching
// with errors.Is need only import rg.
var (
	ErrOutOfDeviceMemory = types.ErrOutOfDeviceMemory
	ErrOutOfHostMemory   = types.ErrOutOfHostMemory
	ErrFragmentation     = types.ErrFragmentation
	ErrResourceExhausted = types.ErrResourceExhausted

	ErrShaderSyntax      = types.ErrShaderSyntax
	ErrShaderLink        = types.ErrShaderLink
	ErrShaderUnsupported = types.ErrShaderUnsupported

	ErrUnattachedResource      = types.ErrUnattachedResource
	ErrTypeMismatch            = types.ErrTypeMismatch
	ErrAttachmentInconsistency = types.ErrAttachmentInconsistency
	ErrUseBeforeInit           = types.ErrUseBeforeInit
	ErrCyclicDependency        = types.ErrCyclicDependency
	ErrTimeTravel              = types.ErrTimeTravel
	ErrInvalidSlice            = types.ErrInvalidSlice
	ErrIncompleteConstruct     = types.ErrIncompleteConstruct

	ErrSubmitFailed     = types.ErrSubmitFailed
	ErrDeviceLost       = types.ErrDeviceLost
	ErrTimeout          = types.ErrTimeout
	ErrPresentOutOfDate = types.ErrPresentOutOfDate

	ErrDoubleSubmit         = types.ErrDoubleSubmit
	ErrValueAlreadyConsumed = types.ErrValueAlreadyConsumed
)
