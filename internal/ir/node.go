// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ir

import (
	"fmt"

	"github.com/gogpu/rg/types"
)

// Kind discriminates IR nodes.
type Kind uint8

const (
	OpConstant Kind = iota
	OpPlaceholder
	OpConstruct
	OpAcquire
	OpRelease
	OpSplice
	OpCall
	OpSlice
	OpGetCI
	OpMathBinary
	OpAcquireNextImage
	OpGarbage
)

var kindNames = [...]string{
	OpConstant:         "CONSTANT",
	OpPlaceholder:      "PLACEHOLDER",
	OpConstruct:        "CONSTRUCT",
	OpAcquire:          "ACQUIRE",
	OpRelease:          "RELEASE",
	OpSplice:           "SPLICE",
	OpCall:             "CALL",
	OpSlice:            "SLICE",
	OpGetCI:            "GET_CI",
	OpMathBinary:       "MATH_BINARY",
	OpAcquireNextImage: "ACQUIRE_NEXT_IMAGE",
	OpGarbage:          "GARBAGE",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// SliceAxis selects the dimension a SLICE node divides. A slice divides
// exactly one axis at a time.
type SliceAxis uint8

const (
	// AxisMip selects a contiguous range of mip levels of an image.
	AxisMip SliceAxis = iota

	// AxisLayer selects a contiguous range of array layers of an image.
	AxisLayer

	// AxisField projects to one composite member or array element.
	AxisField

	// AxisRange selects a byte range of a buffer.
	AxisRange
)

var axisNames = [...]string{
	AxisMip:   "mip",
	AxisLayer: "layer",
	AxisField: "field",
	AxisRange: "range",
}

func (a SliceAxis) String() string {
	if int(a) < len(axisNames) {
		return axisNames[a]
	}
	return "unknown"
}

// BinOp is the operator of a MATH_BINARY node.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

var binOpNames = [...]string{OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%"}

func (o BinOp) String() string {
	if int(o) < len(binOpNames) {
		return binOpNames[o]
	}
	return "?"
}

// Ref addresses one result of a node.
type Ref struct {
	Node  *Node
	Index int
}

// Zero is the null reference.
var Zero = Ref{}

// IsZero reports whether the reference addresses nothing.
func (r Ref) IsZero() bool { return r.Node == nil }

// Type returns the result type the reference addresses.
func (r Ref) Type() *Type {
	if r.Node == nil || r.Index >= len(r.Node.Type) {
		return nil
	}
	return r.Node.Type[r.Index]
}

func (r Ref) String() string {
	if r.Node == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d.%d", r.Node.Kind, r.Node.id, r.Index)
}

// ChainLink is one step of a resource use chain: the defining write,
// the reads sharing it, and the write-like use that ends the share.
// Prev/Next chain compatible uses through time; child links track
// diverged subresource slices until they reconverge.
type ChainLink struct {
	// Def produced the value this link covers.
	Def Ref

	// Reads are the read-only uses between Def and Undef.
	Reads []Ref

	// Undef is the write-like use ending this link, if any.
	Undef Ref

	// Prev and Next connect links of one resource through time. The
	// chain is acyclic: a value is never its own predecessor.
	Prev, Next *ChainLink

	// URDef points at the ultimate declaration of the resource.
	URDef Ref

	// Children are subchains created by slicing; a pending
	// reconvergence point merges them at the next whole-resource use.
	Children []*ChainLink

	// Converged is set once children have been merged back.
	Converged bool
}

// LastUse returns the final use reference of the link: the undef if
// present, otherwise the last read, otherwise the def.
func (l *ChainLink) LastUse() Ref {
	if !l.Undef.IsZero() {
		return l.Undef
	}
	if n := len(l.Reads); n > 0 {
		return l.Reads[n-1]
	}
	return l.Def
}

// Node is one IR operation in the module arena.
type Node struct {
	Kind Kind

	// Type lists the result types; each result gets its own imbued or
	// aliased wrapper.
	Type []*Type

	// Args are the input references. Their meaning is per kind:
	// CONSTRUCT: one per composite member (placeholders allowed);
	// CALL: one per opaque-fn argument; SLICE: src, start, count;
	// MATH_BINARY: a, b; GET_CI/RELEASE/SPLICE: src.
	Args []Ref

	// Value carries the kind-specific payload: the constant value, the
	// acquired user value, or the CONSTRUCT base aggregate.
	Value any

	// Name is the debug name given at declaration.
	Name string

	// Axis and Op refine SLICE and MATH_BINARY nodes.
	Axis SliceAxis
	Op   BinOp

	// Fn is the called opaque function type of a CALL.
	Fn *Type

	// Access is the initial access of an ACQUIRE or the final access
	// of a RELEASE.
	Access types.Access

	// Discard marks an ACQUIRE whose initial contents are don't-care:
	// the first use may be any write, reads before a write are
	// use-before-init.
	Discard bool

	// RelAcq is the signal for externally observable completions. The
	// acquire side's weak back-reference to its releaser lives here,
	// never in Args, so the graph stays acyclic by construction.
	RelAcq *types.AcquireRelease

	// Links holds the use-chain entry per result, filled by the link
	// builder.
	Links []*ChainLink

	// Scheduling and execution state.
	ScheduledDomain types.Domain
	ScheduledOrder  int
	Executed        bool
	ExecValues      []any

	refs int32
	id   int
}

// ID returns the arena identity of the node, for diagnostics.
func (n *Node) ID() int { return n.id }

// Result returns the ref addressing result i.
func (n *Node) Result(i int) Ref { return Ref{Node: n, Index: i} }

// Retain marks an external Value reference on the node, keeping its
// subtree alive across collections.
func (n *Node) Retain() { n.refs++ }

// Release drops an external reference.
func (n *Node) Release() {
	if n.refs > 0 {
		n.refs--
	}
}

func (n *Node) String() string {
	s := fmt.Sprintf("%s#%d", n.Kind, n.id)
	if n.Name != "" {
		s += "(" + n.Name + ")"
	}
	return s
}
