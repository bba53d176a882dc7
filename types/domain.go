// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

import "strings"

// Domain is a bitmask selecting the executors a pass may run on: the
// host or one of the device queues, optionally refined by the kind of
// operation performed there.
type Domain uint32

const (
	DomainNone Domain = 0

	DomainHost          Domain = 1 << 0
	DomainGraphicsQueue Domain = 1 << 1
	DomainComputeQueue  Domain = 1 << 2
	DomainTransferQueue Domain = 1 << 3

	DomainGraphicsOperation Domain = 1 << 4
	DomainComputeOperation  Domain = 1 << 5
	DomainTransferOperation Domain = 1 << 6

	// DomainQueueMask selects the queue bits of a domain.
	DomainQueueMask Domain = DomainGraphicsQueue | DomainComputeQueue | DomainTransferQueue

	// DomainOperationMask selects the operation bits of a domain.
	DomainOperationMask Domain = DomainGraphicsOperation | DomainComputeOperation | DomainTransferOperation

	DomainGraphicsOnGraphics Domain = DomainGraphicsQueue | DomainGraphicsOperation
	DomainComputeOnGraphics  Domain = DomainGraphicsQueue | DomainComputeOperation
	DomainTransferOnGraphics Domain = DomainGraphicsQueue | DomainTransferOperation
	DomainComputeOnCompute   Domain = DomainComputeQueue | DomainComputeOperation
	DomainTransferOnCompute  Domain = DomainComputeQueue | DomainTransferOperation
	DomainTransferOnTransfer Domain = DomainTransferQueue | DomainTransferOperation

	// DomainDevice is any device queue.
	DomainDevice Domain = DomainQueueMask

	// DomainAny lets the scheduler infer the executor from neighbors.
	DomainAny Domain = DomainDevice | DomainHost
)

// Queue returns only the queue bits of the domain.
func (d Domain) Queue() Domain { return d & (DomainQueueMask | DomainHost) }

// IsConcrete reports whether the domain names exactly one executor.
func (d Domain) IsConcrete() bool {
	q := d.Queue()
	return q != 0 && q&(q-1) == 0
}

// Contains reports whether every bit of o is present in d.
func (d Domain) Contains(o Domain) bool { return d&o == o }

// CanExecute reports whether a queue of this domain can execute work
// under the given access: rasterization requires the graphics queue,
// compute requires graphics or compute, transfers run anywhere.
func (d Domain) CanExecute(a Access) bool {
	q := d.Queue()
	u := a.toUse()
	switch {
	case a.IsFramebufferAttachment() ||
		u.Stages&(StageVertexInput|StageVertexShader|StageFragmentShader|
			StageEarlyFragment|StageLateFragment|StageColorOutput|StageDrawIndirect) != 0:
		return q&DomainGraphicsQueue != 0
	case u.Stages&StageComputeShader != 0:
		return q&(DomainGraphicsQueue|DomainComputeQueue) != 0
	case u.Stages&StageHost != 0:
		return q&DomainHost != 0 || q&DomainQueueMask != 0
	default:
		return q != 0
	}
}

var domainNames = []struct {
	bit  Domain
	name string
}{
	{DomainHost, "Host"},
	{DomainGraphicsQueue, "GraphicsQueue"},
	{DomainComputeQueue, "ComputeQueue"},
	{DomainTransferQueue, "TransferQueue"},
	{DomainGraphicsOperation, "GraphicsOp"},
	{DomainComputeOperation, "ComputeOp"},
	{DomainTransferOperation, "TransferOp"},
}

// String returns a "|"-joined list of the set domain bits.
func (d Domain) String() string {
	if d == DomainAny {
		return "Any"
	}
	if d == DomainNone {
		return "None"
	}
	var parts []string
	for _, dn := range domainNames {
		if d&dn.bit != 0 {
			parts = append(parts, dn.name)
		}
	}
	return strings.Join(parts, "|")
}
