package rg

import (
	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/pipeline"
	"github.com/gogpu/rg/types"
)

// LiftCompute builds a pass from a compiled compute pipeline: calling
// it with (x, y, z, resources...) binds the resources to descriptors
// in the program's declared binding order and dispatches (x, y, z)
// workgroups on the compute domain.
//
// Descriptor binding slots follow the order of the non-count
// arguments; sampled images and samplers with matching names combine
// into a single slot (see [pipeline.Program.BindingsInOrder]).
func LiftCompute(pbi *pipeline.BaseInfo, resources ...Param) *Pass {
	bindings := pbi.Program.BindingsInOrder()
	params := append([]Param{U32Arg(), U32Arg(), U32Arg()}, resources...)

	body := func(cb backend.CommandBuffer, args []any) ([]any, error) {
		if err := cb.BindComputePipeline(pbi); err != nil {
			return nil, err
		}
		for i, arg := range args[3:] {
			set, binding := uint32(0), uint32(i)
			if i < len(bindings) {
				set, binding = bindings[i].Set, bindings[i].Binding
			}
			switch r := arg.(type) {
			case types.Buffer:
				cb.BindBuffer(set, binding, r)
			case types.ImageAttachment:
				cb.BindImage(set, binding, r)
			default:
				return nil, &types.GraphError{Kind: types.ErrTypeMismatch, Node: pbi.Name,
					Detail: "unbindable lifted-compute argument"}
			}
		}
		x, _ := args[0].(uint32)
		y, _ := args[1].(uint32)
		z, _ := args[2].(uint32)
		cb.Dispatch(x, y, z)
		return nil, nil
	}
	return MakePass(pbi.Name, types.DomainComputeQueue|types.DomainComputeOperation, params, body)
}

// Dispatch instantiates a lifted compute pass with workgroup counts
// and resource values, returning the pass's first resource result.
func Dispatch[R any](p *Pass, m *Module, x, y, z uint32, resources ...AnyValue) Value[R] {
	vals := make([]AnyValue, 0, 3+len(resources))
	vals = append(vals, Constant(m, x), Constant(m, y), Constant(m, z))
	vals = append(vals, resources...)
	return Call1[R](p, vals...)
}
