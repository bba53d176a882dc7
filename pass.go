package rg

import (
	"sync"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/types"
)

// PassBody is the execution callback of a pass. It runs at execution
// time on the pass's scheduled domain, with the command buffer bound
// to the call's scope and the resolved argument values in declaration
// order. The returned slice overrides the call's results positionally;
// returning nil keeps the write-back defaults (each resource argument
// passes through as its own result).
type PassBody func(cb backend.CommandBuffer, args []any) ([]any, error)

// paramKind names the IR type of one pass parameter.
type paramKind uint8

const (
	paramBuffer paramKind = iota
	paramImage
	paramSwapchain
	paramU32
	paramU64
	paramArrayOfBuffers
	paramArrayOfImages
)

// Param describes one pass parameter: its IR type and the access the
// pass performs on it. Resource parameters (buffers, images) also
// appear in the call's result list, aliased to their argument, so a
// pass's effect on a resource is visible to the use-chain analysis.
type Param struct {
	kind   paramKind
	access types.Access
}

// BufArg declares a buffer parameter with the given access.
func BufArg(access types.Access) Param { return Param{kind: paramBuffer, access: access} }

// ImgArg declares an image attachment parameter with the given access.
func ImgArg(access types.Access) Param { return Param{kind: paramImage, access: access} }

// SwapchainArg declares a swapchain parameter.
func SwapchainArg() Param { return Param{kind: paramSwapchain} }

// U32Arg and U64Arg declare plain data parameters; they carry no
// access and produce no result.
func U32Arg() Param { return Param{kind: paramU32} }
func U64Arg() Param { return Param{kind: paramU64} }

// BufArrayArg declares a parameter taking an array of buffers.
func BufArrayArg(access types.Access) Param { return Param{kind: paramArrayOfBuffers, access: access} }

// ImgArrayArg declares a parameter taking an array of images.
func ImgArrayArg(access types.Access) Param { return Param{kind: paramArrayOfImages, access: access} }

func (p Param) isResource() bool {
	switch p.kind {
	case paramBuffer, paramImage, paramArrayOfBuffers, paramArrayOfImages:
		return true
	}
	return false
}

// Pass is a recorded pass template: a name, an executor-domain hint,
// the parameter accesses, and the type-erased callback. Calling the
// template against actual values appends a CALL node.
type Pass struct {
	name   string
	domain types.Domain
	params []Param
	body   PassBody

	mu  sync.Mutex
	fns map[*Module]*ir.Type
}

// MakePass records a pass template. The domain hint propagates to the
// scheduler; [types.DomainAny] lets the scheduler infer the executor
// from neighbors.
func MakePass(name string, domain types.Domain, params []Param, body PassBody) *Pass {
	return &Pass{name: name, domain: domain, params: params, body: body,
		fns: map[*Module]*ir.Type{}}
}

// Params is a readability helper for pass parameter lists.
func Params(ps ...Param) []Param { return ps }

func (p *Pass) paramType(tc *ir.TypeContext, prm Param) (*ir.Type, error) {
	var base *ir.Type
	switch prm.kind {
	case paramBuffer:
		base = tc.Buffer
	case paramImage:
		base = tc.ImageAttachment
	case paramSwapchain:
		base = tc.Swapchain
	case paramU32:
		return tc.U32, nil
	case paramU64:
		return tc.U64, nil
	case paramArrayOfBuffers:
		arr, err := tc.MakeArray(tc.Buffer, ir.CountRemaining)
		if err != nil {
			return nil, err
		}
		base = arr
	case paramArrayOfImages:
		arr, err := tc.MakeArray(tc.ImageAttachment, ir.CountRemaining)
		if err != nil {
			return nil, err
		}
		base = arr
	default:
		return nil, &types.GraphError{Kind: types.ErrInvalidType, Detail: "unknown parameter kind"}
	}
	return tc.MakeImbued(base, prm.access), nil
}

// fnType builds (once per module) the opaque function type of the
// pass: arguments in declaration order, one aliased result per
// resource argument, and the execution callback.
func (p *Pass) fnType(m *Module) (*ir.Type, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn, ok := p.fns[m]; ok {
		return fn, nil
	}
	tc := m.ir.Types()
	args := make([]*ir.Type, len(p.params))
	var results []*ir.Type
	for i, prm := range p.params {
		at, err := p.paramType(tc, prm)
		if err != nil {
			return nil, err
		}
		args[i] = at
		if prm.isResource() {
			inner := ir.Stripped(at)
			results = append(results, tc.MakeImbued(tc.MakeAliased(inner, i), prm.access))
		}
	}
	body := p.body
	fn, err := tc.MakeOpaqueFn(p.name, args, results, p.domain, func(cb ir.CommandSink, vals []any) ([]any, error) {
		return body(cb.(backend.CommandBuffer), vals)
	})
	if err != nil {
		return nil, err
	}
	p.fns[m] = fn
	return fn, nil
}

// Name returns the pass name.
func (p *Pass) Name() string { return p.name }

// Call instantiates the pass against actual values, appending a CALL
// node. It returns one type-erased value per result (one per resource
// parameter, in declaration order).
func (p *Pass) Call(vals ...AnyValue) ([]AnyValue, error) {
	m := CurrentModule()
	for _, v := range vals {
		if v != nil && v.valueModule() != nil {
			m = v.valueModule()
			break
		}
	}
	for _, v := range vals {
		if v != nil && v.valueErr() != nil {
			return nil, v.valueErr()
		}
	}
	fn, err := p.fnType(m)
	if err != nil {
		return nil, err
	}
	args := make([]ir.Ref, len(vals))
	for i, v := range vals {
		if v == nil {
			return nil, &types.GraphError{Kind: types.ErrUnattachedResource, Node: p.name}
		}
		args[i] = v.valueRef()
	}
	call, err := m.ir.NewCall(fn, p.name, args)
	if err != nil {
		return nil, err
	}
	out := make([]AnyValue, len(call.Type))
	for ri := range call.Type {
		out[ri] = wrap[any](m, call.Result(ri))
	}
	return out, nil
}

// Call1 instantiates the pass and returns its first result, typed.
func Call1[R any](p *Pass, vals ...AnyValue) Value[R] {
	m := moduleOf(vals)
	out, err := p.Call(vals...)
	if err != nil {
		return errValue[R](m, err)
	}
	if len(out) < 1 {
		return errValue[R](m, &types.GraphError{Kind: types.ErrTypeMismatch, Node: p.name,
			Detail: "pass has no results"})
	}
	return retype[R](out[0])
}

// Call2 instantiates the pass and returns its first two results,
// typed.
func Call2[R1, R2 any](p *Pass, vals ...AnyValue) (Value[R1], Value[R2]) {
	m := moduleOf(vals)
	out, err := p.Call(vals...)
	if err != nil {
		return errValue[R1](m, err), errValue[R2](m, err)
	}
	if len(out) < 2 {
		err := &types.GraphError{Kind: types.ErrTypeMismatch, Node: p.name, Detail: "pass has fewer than two results"}
		return errValue[R1](m, err), errValue[R2](m, err)
	}
	return retype[R1](out[0]), retype[R2](out[1])
}

// CallVoid instantiates a pass whose results the caller does not
// consume; the linker still tracks every output.
func CallVoid(p *Pass, vals ...AnyValue) error {
	_, err := p.Call(vals...)
	return err
}

func moduleOf(vals []AnyValue) *Module {
	for _, v := range vals {
		if v != nil && v.valueModule() != nil {
			return v.valueModule()
		}
	}
	return CurrentModule()
}

// retype narrows a type-erased value to its concrete element type.
func retype[R any](v AnyValue) Value[R] {
	return Value[R]{head: v.valueRef(), mod: v.valueModule(), err: v.valueErr()}
}
