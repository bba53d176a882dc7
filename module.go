package rg

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/types"
)

// Module wraps the IR arena and type interner one graph lives in.
// Multiple independent modules can coexist; building and compiling
// disjoint graphs on separate modules never contends.
type Module struct {
	ir *ir.Module

	mu         sync.Mutex
	composites map[reflect.Type]*ir.Type
}

// NewModule returns a fresh module.
func NewModule() *Module {
	return &Module{ir: ir.NewModule(), composites: map[reflect.Type]*ir.Type{}}
}

// defaultModule is the process-wide module values use when none is
// given explicitly, stored atomically like the package logger.
var defaultModule atomic.Pointer[Module]

func init() {
	defaultModule.Store(NewModule())
}

// CurrentModule returns the process-wide default module.
func CurrentModule() *Module {
	return defaultModule.Load()
}

// ResetModule installs a fresh default module and returns it,
// discarding the previous arena. Call between independent workloads;
// in-flight values of the old module stay valid against it.
func ResetModule() *Module {
	m := NewModule()
	defaultModule.Store(m)
	return m
}

// NodeCount reports the number of live nodes in the arena, after the
// most recent collection.
func (m *Module) NodeCount() int { return m.ir.NodeCount() }

// Collect frees orphaned subtrees; it runs automatically at the end of
// each submission. Compile without submission does not collect.
func (m *Module) Collect() { m.ir.Collect() }

// CompositeMember describes one member of a registered user aggregate.
type CompositeMember struct {
	Name   string
	Offset uint64
	Type   AnyValueType
}

// AnyValueType names an IR-representable member type.
type AnyValueType uint8

const (
	MemberU32 AnyValueType = iota
	MemberU64
	MemberF32
	MemberBuffer
	MemberImage
)

// CompositeAdaptor is the generated-glue record that lets the IR
// construct, project and print values of a user aggregate without
// reflection at runtime.
type CompositeAdaptor[T any] struct {
	// Construct builds a T from member values; nil members take the
	// base value's member.
	Construct func(base T, members []any) T

	// Get returns member i.
	Get func(v T, i int) any

	// IsDefault reports whether member i of v should be taken from an
	// aliased source.
	IsDefault func(v T, i int) bool

	// Format renders v for diagnostics. Optional.
	Format func(v T) string
}

// RegisterComposite interns the IR type of a user-defined aggregate on
// the module. Values of T can then flow through the graph, be
// constructed, and be projected with [Field].
func RegisterComposite[T any](m *Module, name string, members []CompositeMember, ad CompositeAdaptor[T]) error {
	tc := m.ir.Types()
	irMembers := make([]ir.Member, len(members))
	var size uint64
	for i, mem := range members {
		var mt *ir.Type
		switch mem.Type {
		case MemberU32:
			mt = tc.U32
		case MemberU64:
			mt = tc.U64
		case MemberF32:
			mt = tc.F32
		case MemberBuffer:
			mt = tc.Buffer
		case MemberImage:
			mt = tc.ImageAttachment
		default:
			return &types.GraphError{Kind: types.ErrInvalidType, Detail: "unknown member type in " + name}
		}
		irMembers[i] = ir.Member{Name: mem.Name, Offset: mem.Offset, Type: mt}
		if end := mem.Offset + mt.Size; end > size {
			size = end
		}
	}
	hooks := ir.CompositeHooks{
		Construct: func(args []any) any {
			var base T
			if len(args) > 0 && args[0] != nil {
				base = args[0].(T)
			}
			return ad.Construct(base, args[1:])
		},
		Get:       func(v any, i int) any { return ad.Get(v.(T), i) },
		IsDefault: func(v any, i int) bool { return ad.IsDefault(v.(T), i) },
	}
	if ad.Format != nil {
		hooks.Format = func(v any) string { return ad.Format(v.(T)) }
	}
	var probe T
	rt := reflect.TypeOf(&probe).Elem()
	m.ir.Lock()
	defer m.ir.Unlock()
	ty, err := tc.MakeComposite(name, size, irMembers, hashTag(name), hooks)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.composites[rt] = ty
	m.mu.Unlock()
	return nil
}

func hashTag(name string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return h
}

// irTypeOf maps a Go value type to its interned IR descriptor.
func irTypeOf[T any](m *Module) *ir.Type {
	tc := m.ir.Types()
	var z T
	switch any(z).(type) {
	case types.Buffer:
		return tc.Buffer
	case types.ImageAttachment:
		return tc.ImageAttachment
	case types.Swapchain:
		return tc.Swapchain
	case uint8:
		return tc.U8
	case uint32:
		return tc.U32
	case uint64, uint, int:
		return tc.U64
	case int32:
		return tc.I32
	case int64:
		return tc.I64
	case float32:
		return tc.F32
	case float64:
		return tc.F64
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ty, ok := m.composites[reflect.TypeOf(&z).Elem()]; ok {
		return ty
	}
	return nil
}
