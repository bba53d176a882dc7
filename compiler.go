package rg

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/rg/backend"
	"github.com/gogpu/rg/internal/exec"
	"github.com/gogpu/rg/internal/ir"
	"github.com/gogpu/rg/internal/passes"
	"github.com/gogpu/rg/internal/sched"
	"github.com/gogpu/rg/types"
)

// CompileOptions are the opaque compile parameters chosen at
// submission time.
type CompileOptions struct {
	// Backend selects the device backend by registered name; empty
	// uses the default registration.
	Backend string

	// DebugDump logs the linked IR and the schedule at debug level.
	DebugDump bool

	// FailFast is accepted for forward compatibility; graph analysis
	// currently stops at the first error either way.
	FailFast bool

	// GraphCacheKey keys executor-side caches between submissions of
	// structurally identical graphs.
	GraphCacheKey uint64
}

// Compiler compiles and submits value graphs. One compiler drives one
// backend; it is safe for concurrent use, serializing compilation of
// graphs on the same module.
type Compiler struct {
	opts CompileOptions
	b    backend.Backend
	exec *exec.Executor

	mu sync.Mutex
}

// NewCompiler resolves the backend and returns a compiler over it.
func NewCompiler(opts CompileOptions) (*Compiler, error) {
	var b backend.Backend
	var err error
	if opts.Backend != "" {
		b, err = backend.Get(opts.Backend)
	} else {
		b, err = backend.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := b.Init(); err != nil {
		return nil, err
	}
	return &Compiler{opts: opts, b: b, exec: exec.New(b, opts.GraphCacheKey)}, nil
}

// NewCompilerOn wraps an explicit backend instance.
func NewCompilerOn(b backend.Backend, opts CompileOptions) (*Compiler, error) {
	if err := b.Init(); err != nil {
		return nil, err
	}
	return &Compiler{opts: opts, b: b, exec: exec.New(b, opts.GraphCacheKey)}, nil
}

// Backend returns the backend this compiler submits to.
func (c *Compiler) Backend() backend.Backend { return c.b }

// Allocator returns the allocator executions draw from.
func (c *Compiler) Allocator() backend.Allocator { return c.b.Allocator() }

// Compile runs the IR passes and the scheduler over the value's
// dependency closure without submitting anything. On failure the
// partial IR analysis is discarded. Reify inference rewrites resolved
// placeholders into constants in the arena, and those stay resolved
// whether or not compilation succeeds.
func (c *Compiler) Compile(v AnyValue) error {
	if err := v.valueErr(); err != nil {
		return err
	}
	m := v.valueModule()
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _, err := c.compile(m, []ir.Ref{v.valueRef()})
	return err
}

// compile collects the scope, runs reify inference, builds use chains
// and schedules. The caller holds c.mu.
func (c *Compiler) compile(m *Module, roots []ir.Ref) (*passes.Analysis, *sched.Plan, error) {
	order := collectSubmissionScope(m, roots)
	if err := passes.Reify(m.ir, order); err != nil {
		return nil, nil, err
	}
	a, err := passes.BuildLinks(m.ir, order)
	if err != nil {
		return nil, nil, err
	}
	p, err := sched.Schedule(a)
	if err != nil {
		return nil, nil, err
	}
	if c.opts.DebugDump {
		c.dump(a, p)
	}
	return a, p, nil
}

// submit compiles and executes the graphs rooted at roots. A failed
// compilation submits nothing: no semaphores are signaled and the
// partial analysis is discarded.
func (c *Compiler) submit(m *Module, roots []ir.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, p, err := c.compile(m, roots)
	if err != nil {
		return err
	}
	if err := c.exec.Run(a, p); err != nil {
		for _, r := range roots {
			if r.Node.RelAcq != nil {
				r.Node.RelAcq.Fail(err)
			}
		}
		return err
	}

	// Roots that are not calls (declarations, slices) become host
	// observable together with the last submission touching them.
	point := lastPoint(p)
	for _, r := range roots {
		if r.Node.RelAcq != nil {
			r.Node.RelAcq.Advance(types.SignalSynchronizable, point)
		}
	}
	m.ir.Collect()
	return nil
}

func lastPoint(p *sched.Plan) types.SyncPoint {
	if len(p.Batches) == 0 {
		return types.SyncPoint{Domain: types.DomainHost}
	}
	b := p.Batches[len(p.Batches)-1]
	return types.SyncPoint{Domain: b.Domain, Visibility: b.Signal}
}

// waitSignal blocks until the signal's sync point is reached on its
// executor, then raises it to HostAvailable.
func (c *Compiler) waitSignal(sig *types.Signal, timeout time.Duration) error {
	if sig.Status() == types.SignalHostAvailable {
		return sig.Err
	}
	if sig.Status() == types.SignalDisarmed {
		return &types.GraphError{Kind: types.ErrUnattachedResource, Detail: "wait on disarmed signal"}
	}
	done := make(chan error, 1)
	go func() {
		done <- c.b.Allocator().WaitSyncPoints([]types.SyncPoint{sig.Source})
	}()
	if timeout > 0 {
		select {
		case err := <-done:
			if err != nil {
				sig.Fail(err)
				return err
			}
		case <-time.After(timeout):
			return types.ErrTimeout
		}
	} else if err := <-done; err != nil {
		sig.Fail(err)
		return err
	}
	sig.Advance(types.SignalHostAvailable, sig.Source)
	return nil
}

// pollSignal promotes a synchronizable signal whose sync point has
// already been reached.
func (c *Compiler) pollSignal(sig *types.Signal) {
	if sig.Status() != types.SignalSynchronizable {
		return
	}
	// A zero-visibility host point is immediately available.
	if sig.Source.Visibility == 0 && sig.Source.Domain == types.DomainHost {
		sig.Advance(types.SignalHostAvailable, sig.Source)
	}
	// Cheap check through the allocator: waiting on an already-reached
	// point returns immediately; anything else leaves the signal
	// pending. Backends expose visibility through their executors, so
	// this stays non-blocking on the native backend used for host
	// readbacks.
	if c.b.Allocator().WaitSyncPoints([]types.SyncPoint{sig.Source}) == nil {
		sig.Advance(types.SignalHostAvailable, sig.Source)
	}
}

func (c *Compiler) dump(a *passes.Analysis, p *sched.Plan) {
	log := Logger()
	for _, n := range a.Order {
		log.Debug("ir node", slog.String("node", n.String()), slog.String("kind", n.Kind.String()))
	}
	for _, s := range p.Steps {
		log.Debug("scheduled", slog.String("node", s.Node.String()),
			slog.String("domain", s.Domain.String()),
			slog.Int("order", s.Order), slog.Int("batch", s.Batch),
			slog.Int("barriers", len(s.PreBarriers)))
	}
}

// collectSubmissionScope gathers the nodes a submission must execute:
// the producer closure of every root, widened for declaration-rooted
// values to the full use chain of the declared resource, so that
// submitting a declared value materializes its final state.
func collectSubmissionScope(m *Module, roots []ir.Ref) []*ir.Node {
	expanded := append([]ir.Ref(nil), roots...)
	for _, r := range roots {
		root := passes.ResourceRoot(r)
		if root.IsZero() {
			continue
		}
		switch root.Node.Kind {
		case ir.OpConstruct, ir.OpAcquire, ir.OpAcquireNextImage:
			if root == ir.InternRef(r) {
				// The submitted value is the declaration itself: pull
				// in every recorded use of the resource.
				m.ir.Nodes(func(n *ir.Node) bool {
					if n.Kind == ir.OpCall && !n.Executed {
						for _, a := range n.Args {
							if passes.ResourceRoot(a) == root {
								expanded = append(expanded, n.Result(0))
								break
							}
						}
					}
					return true
				})
			}
		}
	}
	return passes.CollectScope(m.ir, expanded)
}
