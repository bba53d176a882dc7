package types

import "testing"

func TestAccessPredicates(t *testing.T) {
	tests := []struct {
		access  Access
		read    bool
		write   bool
		attach  bool
	}{
		{AccessNone, false, false, false},
		{AccessClear, false, true, false},
		{AccessColorWrite, false, true, true},
		{AccessColorRW, true, true, true},
		{AccessDepthStencilRead, true, false, true},
		{AccessFragmentSampled, true, false, false},
		{AccessTransferRead, true, false, false},
		{AccessTransferWrite, false, true, false},
		{AccessComputeRW, true, true, false},
		{AccessHostRead, true, false, false},
		{AccessMemoryRW, true, true, false},
		{AccessInputRead, true, false, true},
	}
	for _, tt := range tests {
		if got := tt.access.IsRead(); got != tt.read {
			t.Errorf("%v.IsRead() = %v, want %v", tt.access, got, tt.read)
		}
		if got := tt.access.IsWrite(); got != tt.write {
			t.Errorf("%v.IsWrite() = %v, want %v", tt.access, got, tt.write)
		}
		if got := tt.access.IsFramebufferAttachment(); got != tt.attach {
			t.Errorf("%v.IsFramebufferAttachment() = %v, want %v", tt.access, got, tt.attach)
		}
	}
}

func TestToUseLayouts(t *testing.T) {
	tests := []struct {
		access Access
		layout ImageLayout
	}{
		{AccessColorWrite, LayoutColorAttachment},
		{AccessDepthStencilRW, LayoutDepthStencilAttachment},
		{AccessFragmentSampled, LayoutShaderRead},
		{AccessTransferRead, LayoutTransferSrc},
		{AccessTransferWrite, LayoutTransferDst},
		{AccessComputeRW, LayoutGeneral},
	}
	for _, tt := range tests {
		if got := ToUse(tt.access).Layout; got != tt.layout {
			t.Errorf("ToUse(%v).Layout = %v, want %v", tt.access, got, tt.layout)
		}
	}
}

func TestDomainCanExecute(t *testing.T) {
	if DomainTransferQueue.CanExecute(AccessColorWrite) {
		t.Error("transfer queue must not rasterize")
	}
	if DomainTransferQueue.CanExecute(AccessComputeRW) {
		t.Error("transfer queue must not dispatch compute")
	}
	if !DomainComputeQueue.CanExecute(AccessComputeRW) {
		t.Error("compute queue must dispatch compute")
	}
	if !DomainGraphicsQueue.CanExecute(AccessColorWrite) {
		t.Error("graphics queue must rasterize")
	}
	if !DomainGraphicsQueue.CanExecute(AccessTransferWrite) {
		t.Error("graphics queue must transfer")
	}
	if !DomainTransferQueue.CanExecute(AccessTransferRead) {
		t.Error("transfer queue must transfer")
	}
}

func TestDomainQueueBits(t *testing.T) {
	if !DomainGraphicsOnGraphics.IsConcrete() {
		t.Error("graphics-on-graphics names one executor")
	}
	if DomainAny.IsConcrete() {
		t.Error("any is not concrete")
	}
	if got := DomainComputeOnGraphics.Queue(); got != DomainGraphicsQueue {
		t.Errorf("queue of compute-on-graphics = %v", got)
	}
}

func TestAccessString(t *testing.T) {
	if AccessColorWrite.String() != "ColorWrite" {
		t.Errorf("got %q", AccessColorWrite.String())
	}
	if Access(200).String() != "Unknown" {
		t.Errorf("got %q", Access(200).String())
	}
}
