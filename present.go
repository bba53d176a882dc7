package rg

import (
	"github.com/gogpu/rg/types"
)

// AcquireNextImage acquires the next presentable image of a swapchain
// as a lazy attachment value. The executor pairs the acquisition with
// the swapchain's synchronization when the value's graph is submitted.
func AcquireNextImage(m *Module, swp types.Swapchain) Value[types.ImageAttachment] {
	tc := m.ir.Types()
	swpRef := m.ir.NewConstant(tc.Swapchain, swp)
	r := m.ir.NewAcquireNextImage(swpRef, tc.ImageAttachment)
	var ia types.ImageAttachment
	if len(swp.Images) > 0 {
		ia = swp.Images[0]
	}
	ia.Extent = swp.Extent
	ia.Format = swp.Format
	r.Node.Value = ia
	return wrap[types.ImageAttachment](m, r)
}

// EnqueuePresentation consumes an image value and schedules its
// presentation after the image's last use; the returned value submits
// the whole chain. Actual surface queuing is backend glue built on the
// release this records.
func EnqueuePresentation(img Value[types.ImageAttachment]) Value[types.ImageAttachment] {
	if img.err != nil {
		return img
	}
	r := img.mod.ir.NewRelease(img.head, types.AccessReleaseToGraphics)
	r.Node.Name = "present"
	return wrap[types.ImageAttachment](img.mod, r)
}

// Release ends the graph's ownership of a value under the given final
// access, so a later graph (or the host) can acquire it with correct
// synchronization carried on the release's signal.
func Release[T any](v Value[T], final types.Access) Value[T] {
	if v.err != nil {
		return v
	}
	r := v.mod.ir.NewRelease(v.head, final)
	return wrap[T](v.mod, r)
}

// SpliceAcross moves a value across a domain boundary explicitly.
// The scheduler does not insert SPLICE nodes itself: it synchronizes
// cross-domain edges by making the consumer's batch wait on the
// producer batch's timeline value. This form is for callers staging
// handoffs themselves.
func SpliceAcross[T any](v Value[T]) Value[T] {
	if v.err != nil {
		return v
	}
	r := v.mod.ir.NewSplice(v.head)
	return wrap[T](v.mod, r)
}
