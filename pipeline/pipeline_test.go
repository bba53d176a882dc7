package pipeline

import (
	"bytes"
	"errors"
	"testing"
)

func TestFromSPIRV(t *testing.T) {
	p, err := FromSPIRV("p", []uint32{0x07230203}, Program{})
	if err != nil {
		t.Fatalf("FromSPIRV: %v", err)
	}
	if p.Name != "p" || len(p.SPIRV) != 1 {
		t.Errorf("unexpected base info: %+v", p)
	}
	if _, err := FromSPIRV("empty", nil, Program{}); !errors.Is(err, ErrEmptyShader) {
		t.Errorf("empty blob = %v, want ErrEmptyShader", err)
	}
}

func TestCompileEmptySource(t *testing.T) {
	if _, err := CompileComputeWGSL("p", "", Program{}); !errors.Is(err, ErrEmptyShader) {
		t.Errorf("empty source = %v, want ErrEmptyShader", err)
	}
}

func TestBindingsInOrder(t *testing.T) {
	p := Program{Bindings: []Binding{
		{Set: 1, Binding: 0, Kind: BindingStorageBuffer, Name: "out"},
		{Set: 0, Binding: 1, Kind: BindingSampledImage, Name: "tex"},
		{Set: 0, Binding: 0, Kind: BindingUniformBuffer, Name: "cfg"},
	}}
	ordered := p.BindingsInOrder()
	want := []string{"cfg", "tex", "out"}
	if len(ordered) != len(want) {
		t.Fatalf("ordered = %d bindings, want %d", len(ordered), len(want))
	}
	for i, b := range ordered {
		if b.Name != want[i] {
			t.Errorf("slot %d = %q, want %q", i, b.Name, want[i])
		}
	}
}

func TestSamplerCombinesWithMatchingImage(t *testing.T) {
	p := Program{Bindings: []Binding{
		{Set: 0, Binding: 0, Kind: BindingSampledImage, Name: "albedo"},
		{Set: 0, Binding: 1, Kind: BindingSampler, Name: "albedo"},
		{Set: 0, Binding: 2, Kind: BindingSampler, Name: "shadow"},
	}}
	ordered := p.BindingsInOrder()
	// The matching sampler folds into the image's slot; the unmatched
	// one keeps its own.
	if len(ordered) != 2 {
		t.Fatalf("ordered = %d bindings, want 2", len(ordered))
	}
	if ordered[0].Name != "albedo" || ordered[0].Kind != BindingSampledImage {
		t.Errorf("slot 0 = %+v", ordered[0])
	}
	if ordered[1].Name != "shadow" || ordered[1].Kind != BindingSampler {
		t.Errorf("slot 1 = %+v", ordered[1])
	}
}

func TestCacheBlobRoundTrip(t *testing.T) {
	var c Cache
	if got := c.Save(); len(got) != 0 {
		t.Errorf("fresh cache blob = %d bytes", len(got))
	}
	blob := []byte{1, 2, 3, 4}
	c.Load(blob)
	got := c.Save()
	if !bytes.Equal(got, blob) {
		t.Errorf("round trip = %v", got)
	}
	// Save copies; mutating the result must not corrupt the cache.
	got[0] = 0xff
	if bytes.Equal(c.Save(), got) {
		t.Error("Save aliases internal storage")
	}
	c.Update([]byte{9})
	if !bytes.Equal(c.Save(), []byte{9}) {
		t.Error("Update did not replace the blob")
	}
}
