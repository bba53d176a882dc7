// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ir

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rg/types"
)

// TypeKind discriminates the interned type descriptors.
type TypeKind uint8

const (
	TypeInvalid TypeKind = iota
	TypeScalar
	TypeEnum
	TypeEnumValue
	TypePointer
	TypeImageView
	TypeArray
	TypeComposite
	TypeAliased
	TypeImbued
	TypeOpaqueFn
)

var typeKindNames = [...]string{
	TypeInvalid:   "invalid",
	TypeScalar:    "scalar",
	TypeEnum:      "enum",
	TypeEnumValue: "enumvalue",
	TypePointer:   "pointer",
	TypeImageView: "imageview",
	TypeArray:     "array",
	TypeComposite: "composite",
	TypeAliased:   "aliased",
	TypeImbued:    "imbued",
	TypeOpaqueFn:  "fn",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return "unknown"
}

// CountRemaining marks an array or slice count as "up to the end".
const CountRemaining = int64(-1)

// Member is one named field of a composite type.
type Member struct {
	Name   string
	Offset uint64
	Type   *Type
}

// CompositeHooks let the IR construct, project and print values of a
// user-defined aggregate without knowing its host representation.
// IsDefault reporting true for a member means "take this member from
// the aliased source"; false means the member is explicit and
// overrides.
type CompositeHooks struct {
	Construct func(args []any) any
	Get       func(v any, i int) any
	IsDefault func(v any, i int) bool
	Destroy   func(v any)
	Format    func(v any) string
}

// Body is the type-erased execution callback of an opaque function. It
// receives the command buffer bound to the call's scope and the
// resolved argument values, and returns the result values in result
// order.
type Body func(cb CommandSink, args []any) ([]any, error)

// CommandSink is the call-scope recording surface a Body receives. It
// is backend.CommandBuffer; the indirection keeps package ir free of a
// backend dependency so the type layer stays a leaf.
type CommandSink any

// Type is an interned type descriptor. Identical content (including
// the identity tag for enums and composites) maps to one shared *Type;
// pointer equality is type equality after interning.
type Type struct {
	Kind TypeKind
	Size uint64
	Name string

	// hash is the interning key, filled by the TypeContext.
	hash uint64

	// Scalar
	Float bool
	Bits  int

	// Enum / EnumValue
	EnumTag   uint64
	EnumType  *Type
	EnumValue uint64

	// Pointer / Array
	Elem   *Type
	Count  int64
	Stride uint64

	// Composite
	Members []Member
	Tag     uint64
	Hooks   CompositeHooks

	// Aliased / Imbued
	Inner  *Type
	RefIdx int
	Access types.Access

	// OpaqueFn
	ArgTypes    []*Type
	ResultTypes []*Type
	Domain      types.Domain
	Callback    Body
}

// Hash returns the interning hash of the type.
func (t *Type) Hash() uint64 { return t.hash }

// Stripped peels aliased and imbued layers without copying.
func Stripped(t *Type) *Type {
	for t != nil && (t.Kind == TypeAliased || t.Kind == TypeImbued) {
		t = t.Inner
	}
	return t
}

// ImbuedAccess returns the access of the outermost imbued layer, or
// AccessNone when the type carries none.
func ImbuedAccess(t *Type) types.Access {
	for t != nil {
		switch t.Kind {
		case TypeImbued:
			return t.Access
		case TypeAliased:
			t = t.Inner
		default:
			return types.AccessNone
		}
	}
	return types.AccessNone
}

// AliasedIndex returns the aliased argument index of the outermost
// aliased layer, or -1 when the type carries none.
func AliasedIndex(t *Type) int {
	for t != nil {
		switch t.Kind {
		case TypeAliased:
			return t.RefIdx
		case TypeImbued:
			t = t.Inner
		default:
			return -1
		}
	}
	return -1
}

func (t *Type) String() string {
	switch t.Kind {
	case TypeScalar:
		switch {
		case t.Float:
			return fmt.Sprintf("f%d", t.Bits)
		case t.Name == "i":
			return fmt.Sprintf("i%d", t.Bits)
		default:
			return fmt.Sprintf("u%d", t.Bits)
		}
	case TypeEnum:
		return "enum:" + t.Name
	case TypeEnumValue:
		return fmt.Sprintf("%s=%d", t.EnumType, t.EnumValue)
	case TypePointer:
		return "*" + t.Elem.String()
	case TypeImageView:
		return "imageview"
	case TypeArray:
		if t.Count == CountRemaining {
			return fmt.Sprintf("[]%s", t.Elem)
		}
		return fmt.Sprintf("[%d]%s", t.Count, t.Elem)
	case TypeComposite:
		if t.Name != "" {
			return t.Name
		}
		return "composite"
	case TypeAliased:
		return fmt.Sprintf("alias(%d)%s", t.RefIdx, t.Inner)
	case TypeImbued:
		return fmt.Sprintf("%s:%s", t.Inner, t.Access)
	case TypeOpaqueFn:
		return fmt.Sprintf("fn/%d->%d", len(t.ArgTypes), len(t.ResultTypes))
	}
	return t.Kind.String()
}

// TypeContext interns type descriptors for one module. All methods are
// safe for concurrent use; graphs built on separate modules never
// contend.
type TypeContext struct {
	mu     sync.Mutex
	byHash map[uint64][]*Type

	// Builtin types, interned at context creation.
	U8, U32, U64, I32, I64, F32, F64 *Type
	ImageAttachment                  *Type
	Buffer                           *Type
	Swapchain                        *Type
}

func newTypeContext() *TypeContext {
	tc := &TypeContext{byHash: map[uint64][]*Type{}}
	tc.U8 = tc.MakeScalar(false, 8)
	tc.U32 = tc.MakeScalar(false, 32)
	tc.U64 = tc.MakeScalar(false, 64)
	tc.I32 = tc.makeSigned(32)
	tc.I64 = tc.makeSigned(64)
	tc.F32 = tc.MakeScalar(true, 32)
	tc.F64 = tc.MakeScalar(true, 64)
	tc.ImageAttachment = tc.makeImageAttachmentType()
	tc.Buffer = tc.makeBufferType()
	tc.Swapchain = tc.Emplace(&Type{Kind: TypeComposite, Name: "swapchain", Tag: hashString("rg.swapchain")})
	return tc
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func hashMix(h uint64, vs ...uint64) uint64 {
	const prime = 1099511628211
	for _, v := range vs {
		h ^= v
		h *= prime
	}
	return h
}

func (tc *TypeContext) hashType(t *Type) uint64 {
	h := hashMix(1469598103934665603, uint64(t.Kind), t.Size)
	switch t.Kind {
	case TypeScalar:
		b := uint64(0)
		if t.Float {
			b = 1
		}
		h = hashMix(h, b, uint64(t.Bits))
	case TypeEnum:
		h = hashMix(h, t.EnumTag)
	case TypeEnumValue:
		h = hashMix(h, t.EnumType.hash, t.EnumValue)
	case TypePointer:
		h = hashMix(h, t.Elem.hash)
	case TypeImageView:
	case TypeArray:
		h = hashMix(h, t.Elem.hash, uint64(t.Count))
	case TypeComposite:
		h = hashMix(h, t.Tag)
		for _, m := range t.Members {
			h = hashMix(h, hashString(m.Name), m.Offset, m.Type.hash)
		}
	case TypeAliased:
		h = hashMix(h, t.Inner.hash, uint64(t.RefIdx))
	case TypeImbued:
		h = hashMix(h, t.Inner.hash, uint64(t.Access))
	case TypeOpaqueFn:
		for _, a := range t.ArgTypes {
			h = hashMix(h, a.hash)
		}
		h = hashMix(h, 0xf1)
		for _, r := range t.ResultTypes {
			h = hashMix(h, r.hash)
		}
		h = hashMix(h, uint64(t.Domain))
	}
	return h
}

func (tc *TypeContext) equal(a, b *Type) bool {
	if a.Kind != b.Kind || a.Size != b.Size {
		return false
	}
	switch a.Kind {
	case TypeScalar:
		return a.Float == b.Float && a.Bits == b.Bits
	case TypeEnum:
		return a.EnumTag == b.EnumTag
	case TypeEnumValue:
		return a.EnumType == b.EnumType && a.EnumValue == b.EnumValue
	case TypePointer:
		return a.Elem == b.Elem
	case TypeImageView:
		return true
	case TypeArray:
		return a.Elem == b.Elem && a.Count == b.Count
	case TypeComposite:
		if a.Tag != b.Tag || len(a.Members) != len(b.Members) {
			return false
		}
		for i := range a.Members {
			if a.Members[i] != b.Members[i] {
				return false
			}
		}
		return true
	case TypeAliased:
		return a.Inner == b.Inner && a.RefIdx == b.RefIdx
	case TypeImbued:
		return a.Inner == b.Inner && a.Access == b.Access
	case TypeOpaqueFn:
		// Opaque functions are identified by their callback, never
		// deduplicated.
		return false
	}
	return false
}

// Emplace interns t, returning the canonical descriptor for its
// content.
func (tc *TypeContext) Emplace(t *Type) *Type {
	t.hash = tc.hashType(t)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for _, c := range tc.byHash[t.hash] {
		if tc.equal(c, t) {
			return c
		}
	}
	tc.byHash[t.hash] = append(tc.byHash[t.hash], t)
	return t
}

// MakeScalar interns an unsigned integer or float scalar type.
func (tc *TypeContext) MakeScalar(float bool, bits int) *Type {
	return tc.Emplace(&Type{Kind: TypeScalar, Size: uint64(bits / 8), Float: float, Bits: bits})
}

func (tc *TypeContext) makeSigned(bits int) *Type {
	// Signedness is not tracked separately; the constant evaluator
	// operates on the host representation.
	return tc.Emplace(&Type{Kind: TypeScalar, Size: uint64(bits / 8), Float: false, Bits: bits, Name: "i"})
}

// MakeEnum interns an enum type. The tag is a runtime identity hash so
// distinct enums never alias even when structurally identical.
func (tc *TypeContext) MakeEnum(name string, tag uint64, format func(uint64) string) *Type {
	t := &Type{Kind: TypeEnum, Size: 8, Name: name, EnumTag: tag}
	if format != nil {
		t.Hooks.Format = func(v any) string { return format(v.(uint64)) }
	}
	return tc.Emplace(t)
}

// MakeEnumValue interns the type of one concrete enum value, so
// constant specializations are representable as types.
func (tc *TypeContext) MakeEnumValue(enum *Type, value uint64) (*Type, error) {
	if enum == nil || enum.Kind != TypeEnum {
		return nil, &types.GraphError{Kind: types.ErrInvalidType, Detail: "enum value of non-enum type"}
	}
	return tc.Emplace(&Type{Kind: TypeEnumValue, Size: enum.Size, EnumType: enum, EnumValue: value}), nil
}

// MakePointer interns a pointer type addressing a value of inner type.
func (tc *TypeContext) MakePointer(inner *Type) *Type {
	return tc.Emplace(&Type{Kind: TypePointer, Size: 8, Elem: inner})
}

// MakeImageView interns the opaque image view type.
func (tc *TypeContext) MakeImageView() *Type {
	return tc.Emplace(&Type{Kind: TypeImageView, Size: 8})
}

// MakeArray interns an array type. count may be CountRemaining.
func (tc *TypeContext) MakeArray(inner *Type, count int64) (*Type, error) {
	if count < 0 && count != CountRemaining {
		return nil, &types.GraphError{Kind: types.ErrInvalidType, Detail: "negative array count"}
	}
	size := uint64(0)
	if count > 0 {
		size = inner.Size * uint64(count)
	}
	return tc.Emplace(&Type{Kind: TypeArray, Size: size, Elem: inner, Count: count, Stride: inner.Size}), nil
}

// MakeComposite interns a user-defined aggregate. Member offsets must
// be non-decreasing and inside the declared size.
func (tc *TypeContext) MakeComposite(name string, size uint64, members []Member, tag uint64, hooks CompositeHooks) (*Type, error) {
	var last uint64
	for _, m := range members {
		if m.Offset < last || m.Offset+m.Type.Size > size {
			return nil, &types.GraphError{Kind: types.ErrInvalidType, Detail: "mismatched member offset table in " + name}
		}
		last = m.Offset
	}
	return tc.Emplace(&Type{Kind: TypeComposite, Size: size, Name: name, Members: members, Tag: tag, Hooks: hooks}), nil
}

// MakeImbued wraps inner with an access annotation.
func (tc *TypeContext) MakeImbued(inner *Type, access types.Access) *Type {
	return tc.Emplace(&Type{Kind: TypeImbued, Size: inner.Size, Inner: inner, Access: access})
}

// MakeAliased wraps a result type, recording that argument refIdx of
// the call aliases this result.
func (tc *TypeContext) MakeAliased(inner *Type, refIdx int) *Type {
	return tc.Emplace(&Type{Kind: TypeAliased, Size: inner.Size, Inner: inner, RefIdx: refIdx})
}

// MakeOpaqueFn interns an opaque function type with its execution
// callback and intended domain. Opaque functions are never
// deduplicated; every MakeOpaqueFn call yields a distinct identity.
func (tc *TypeContext) MakeOpaqueFn(name string, args, results []*Type, domain types.Domain, body Body) (*Type, error) {
	if body == nil {
		return nil, &types.GraphError{Kind: types.ErrInvalidType, Detail: "opaque fn " + name + " has nil callback"}
	}
	return tc.Emplace(&Type{Kind: TypeOpaqueFn, Name: name, ArgTypes: args, ResultTypes: results, Domain: domain, Callback: body}), nil
}

// imageAttachmentMembers mirror types.ImageAttachment in declaration
// order; reify inference addresses them by these indices.
const (
	IAExtentWidth = iota
	IAExtentHeight
	IAExtentDepth
	IAFormat
	IASampleCount
	IABaseLayer
	IALayerCount
	IABaseLevel
	IALevelCount
	iaMemberCount
)

func (tc *TypeContext) makeImageAttachmentType() *Type {
	u32 := tc.U32
	members := []Member{
		{Name: "width", Offset: 0, Type: u32},
		{Name: "height", Offset: 4, Type: u32},
		{Name: "depth", Offset: 8, Type: u32},
		{Name: "format", Offset: 12, Type: u32},
		{Name: "sample_count", Offset: 16, Type: u32},
		{Name: "base_layer", Offset: 20, Type: u32},
		{Name: "layer_count", Offset: 24, Type: u32},
		{Name: "base_level", Offset: 28, Type: u32},
		{Name: "level_count", Offset: 32, Type: u32},
	}
	hooks := CompositeHooks{
		Construct: constructImageAttachment,
		Get:       getImageAttachmentMember,
		IsDefault: imageAttachmentMemberIsDefault,
		Format:    func(v any) string { return v.(types.ImageAttachment).String() },
	}
	t, _ := tc.MakeComposite("image_attachment", 36, members, hashString("rg.image_attachment"), hooks)
	return t
}

// bufferMembers mirror types.Buffer.
const (
	BufOffset = iota
	BufSize
	BufMemoryUsage
	bufMemberCount
)

func (tc *TypeContext) makeBufferType() *Type {
	members := []Member{
		{Name: "offset", Offset: 0, Type: tc.U64},
		{Name: "size", Offset: 8, Type: tc.U64},
		{Name: "memory_usage", Offset: 16, Type: tc.U32},
	}
	hooks := CompositeHooks{
		Construct: constructBuffer,
		Get:       getBufferMember,
		IsDefault: bufferMemberIsDefault,
		Format:    func(v any) string { return v.(types.Buffer).String() },
	}
	t, _ := tc.MakeComposite("buffer", 20, members, hashString("rg.buffer"), hooks)
	return t
}

func constructImageAttachment(args []any) any {
	ia := types.ImageAttachment{}
	if len(args) > 0 && args[0] != nil {
		ia = args[0].(types.ImageAttachment)
	}
	for i := 1; i < len(args); i++ {
		if args[i] == nil {
			continue
		}
		v := args[i].(uint32)
		switch i - 1 {
		case IAExtentWidth:
			ia.Extent.Width = v
		case IAExtentHeight:
			ia.Extent.Height = v
		case IAExtentDepth:
			ia.Extent.Depth = v
		case IAFormat:
			ia.Format = gputypes.TextureFormat(v)
		case IASampleCount:
			ia.SampleCount = types.Samples(v)
		case IABaseLayer:
			ia.BaseLayer = v
		case IALayerCount:
			ia.LayerCount = v
		case IABaseLevel:
			ia.BaseLevel = v
		case IALevelCount:
			ia.LevelCount = v
		}
	}
	return ia
}

func getImageAttachmentMember(v any, i int) any {
	ia := v.(types.ImageAttachment)
	switch i {
	case IAExtentWidth:
		return ia.Extent.Width
	case IAExtentHeight:
		return ia.Extent.Height
	case IAExtentDepth:
		return ia.Extent.Depth
	case IAFormat:
		return uint32(ia.Format)
	case IASampleCount:
		return uint32(ia.SampleCount)
	case IABaseLayer:
		return ia.BaseLayer
	case IALayerCount:
		return ia.LayerCount
	case IABaseLevel:
		return ia.BaseLevel
	case IALevelCount:
		return ia.LevelCount
	}
	return nil
}

func imageAttachmentMemberIsDefault(v any, i int) bool {
	ia := v.(types.ImageAttachment)
	switch i {
	case IAExtentWidth:
		return ia.Extent.Width == 0
	case IAExtentHeight:
		return ia.Extent.Height == 0
	case IAExtentDepth:
		return ia.Extent.Depth == 0
	case IAFormat:
		return ia.Format == 0
	case IASampleCount:
		return ia.SampleCount == types.SamplesInfer
	case IABaseLayer:
		return false
	case IALayerCount:
		return ia.LayerCount == types.RemainingLayers || ia.LayerCount == 0
	case IABaseLevel:
		return false
	case IALevelCount:
		return ia.LevelCount == types.RemainingMips || ia.LevelCount == 0
	}
	return true
}

func constructBuffer(args []any) any {
	b := types.Buffer{}
	if len(args) > 0 && args[0] != nil {
		b = args[0].(types.Buffer)
	}
	for i := 1; i < len(args); i++ {
		if args[i] == nil {
			continue
		}
		switch i - 1 {
		case BufOffset:
			b.Offset = args[i].(uint64)
		case BufSize:
			b.Size = args[i].(uint64)
		case BufMemoryUsage:
			b.MemoryUsage = types.MemoryUsage(args[i].(uint32))
		}
	}
	return b
}

func getBufferMember(v any, i int) any {
	b := v.(types.Buffer)
	switch i {
	case BufOffset:
		return b.Offset
	case BufSize:
		return b.Size
	case BufMemoryUsage:
		return uint32(b.MemoryUsage)
	}
	return nil
}

func bufferMemberIsDefault(v any, i int) bool {
	b := v.(types.Buffer)
	switch i {
	case BufOffset:
		return false
	case BufSize:
		return b.Size == 0
	case BufMemoryUsage:
		return b.MemoryUsage == types.MemoryUsageInfer
	}
	return true
}
