// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

import (
	"errors"
	"fmt"
)

// Allocation errors, returned verbatim from the allocator call that
// triggered them.
var (
	ErrOutOfDeviceMemory = errors.New("rg: out of device memory")
	ErrOutOfHostMemory   = errors.New("rg: out of host memory")
	ErrFragmentation     = errors.New("rg: allocation failed due to fragmentation")
	ErrResourceExhausted = errors.New("rg: resource exhausted")
)

// Shader compilation errors, surfaced by the pipeline front end.
var (
	ErrShaderSyntax      = errors.New("rg: shader syntax error")
	ErrShaderLink        = errors.New("rg: shader link error")
	ErrShaderUnsupported = errors.New("rg: shader uses unsupported feature")
)

// Graph errors, detected during the link and reify passes and returned
// from compile, submit, wait and get.
var (
	ErrUnattachedResource      = errors.New("rg: resource is not attached")
	ErrTypeMismatch            = errors.New("rg: argument type mismatch")
	ErrAttachmentInconsistency = errors.New("rg: attachments disagree on framebuffer properties")
	ErrUseBeforeInit           = errors.New("rg: resource read before initialization")
	ErrCyclicDependency        = errors.New("rg: cyclic dependency")
	ErrTimeTravel              = errors.New("rg: use of converged resource before its slices reconverge")
	ErrInvalidSlice            = errors.New("rg: invalid slice")
	ErrIncompleteConstruct     = errors.New("rg: construct has missing members")
	ErrInvalidType             = errors.New("rg: invalid type")
	ErrCannotBeConstantEvaluated = errors.New("rg: expression cannot be constant evaluated")
)

// Runtime errors, observed via signals.
var (
	ErrSubmitFailed     = errors.New("rg: submission failed")
	ErrDeviceLost       = errors.New("rg: device lost")
	ErrTimeout          = errors.New("rg: wait timed out")
	ErrPresentOutOfDate = errors.New("rg: presentation surface out of date")
)

// Invalid-state errors.
var (
	ErrDoubleSubmit         = errors.New("rg: value submitted twice")
	ErrValueAlreadyConsumed = errors.New("rg: value already consumed")
)

// GraphError decorates a graph-analysis error with the pass and node
// that detected it. It unwraps to one of the graph sentinel errors so
// callers can match with errors.Is.
type GraphError struct {
	// Kind is the sentinel this error specializes.
	Kind error

	// Pass names the IR pass that detected the error.
	Pass string

	// Node names the offending node, if one is known.
	Node string

	// Detail is a human-readable explanation.
	Detail string
}

func (e *GraphError) Error() string {
	msg := e.Kind.Error()
	if e.Pass != "" {
		msg = fmt.Sprintf("%s (in %s)", msg, e.Pass)
	}
	if e.Node != "" {
		msg = fmt.Sprintf("%s at %s", msg, e.Node)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *GraphError) Unwrap() error { return e.Kind }
