// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"sync/atomic"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/types"
)

// executor serves one domain. Native commands execute eagerly while
// recording, so Submit only settles the timeline and accounts for
// semaphore traffic.
type executor struct {
	domain  types.Domain
	backend *Backend

	visibility atomic.Uint64
	semWaits   atomic.Uint64

	inRenderPass bool
}

var _ backend.Executor = (*executor)(nil)

func (e *executor) Domain() types.Domain { return e.domain }

// Barrier is a no-op on the host: host memory is coherent and
// execution is serial per executor.
func (e *executor) Barrier(b types.Barrier, ia *types.ImageAttachment, buf *types.Buffer) {}

func (e *executor) BeginRenderPass(begin backend.RenderPassBegin) error {
	e.inRenderPass = true
	// Load-op clears execute here; the host has no rasterizer but
	// attachment contents must match what a device would produce.
	fb, okFB := begin.Framebuffer.(*framebuffer)
	rp, okRP := begin.RenderPass.(*renderPass)
	if !okFB || !okRP {
		return nil
	}
	descs := append([]types.AttachmentDescription(nil), rp.ci.ColorAttachments...)
	if rp.ci.DepthStencil != nil {
		descs = append(descs, *rp.ci.DepthStencil)
	}
	for i, view := range fb.ci.Attachments {
		if i >= len(begin.Clears) || i >= len(descs) || !descs[i].Clear {
			continue
		}
		vs, ok := view.Handle.(*viewStorage)
		if !ok {
			continue
		}
		clearViewStorage(vs, begin.Clears[i])
	}
	return nil
}

func (e *executor) EndRenderPass() { e.inRenderPass = false }

// Submit waits for the given sync points (accounting each as a
// semaphore wait), then advances the timeline to signal. Work already
// ran during recording.
func (e *executor) Submit(signal uint64, waits []types.SyncPoint) (types.SyncPoint, error) {
	for _, w := range waits {
		e.semWaits.Add(1)
		if e.backend.visibility(w.Domain) < w.Visibility {
			return types.SyncPoint{}, types.ErrSubmitFailed
		}
	}
	if signal > e.visibility.Load() {
		e.visibility.Store(signal)
	}
	return types.SyncPoint{Domain: e.domain, Visibility: signal}, nil
}

func (e *executor) Visibility() uint64 { return e.visibility.Load() }
