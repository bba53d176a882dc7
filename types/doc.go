// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package types holds the value and synchronization types shared by the
// render-graph compiler, its backends and its callers: symbolic accesses,
// executor domains, image attachments, buffers, resource uses and signals.
//
// The package is a leaf: it imports nothing from the rest of the module,
// so backends and user code can depend on it without pulling in the
// compiler. Image formats come from github.com/gogpu/gputypes, keeping
// rg interoperable with the rest of the gogpu stack.
package types
