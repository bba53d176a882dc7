// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rg is a render-graph compiler and executor for Vulkan-class
// GPU APIs. Callers declare GPU work as a lazy dataflow of values
// (buffers, images, arrays, composites) flowing through named passes;
// rg compiles that dataflow into a correctly synchronized,
// queue-scheduled command stream and submits it to the backend's
// executors.
//
// The core of the package is the middle end: an interned-type IR, use
// chain analysis over every resource, inference of unspecified
// attachment properties, a cross-queue synchronization planner, and
// the lazy [Value] API that produces the IR. Everything device-facing
// is behind the backend interfaces: resource ownership behind
// [github.com/gogpu/rg/backend.Allocator], command recording behind
// [github.com/gogpu/rg/backend.CommandBuffer]. Pipeline compilation
// and reflection live in github.com/gogpu/rg/pipeline.
//
// # Building graphs
//
// Values are lazy: constructing them records IR, nothing executes.
//
//	buf := rg.DeclareBuf("counts", types.Buffer{Size: 16, MemoryUsage: types.MemoryUsageGPUOnly})
//	fill := rg.MakePass("fill", types.DomainAny,
//		rg.Params(rg.BufArg(types.AccessTransferWrite)),
//		func(cb backend.CommandBuffer, args []any) ([]any, error) {
//			return nil, cb.FillBuffer(args[0].(types.Buffer), 0xfe)
//		})
//	out := rg.Call1[types.Buffer](fill, buf)
//	data, err := out.Get(compiler)
//
// Compilation, scheduling and submission happen when a value is
// submitted, waited on or fetched. Signals report progress: Disarmed
// until linked, Synchronizable once submitted, HostAvailable once the
// host observes completion.
package rg
