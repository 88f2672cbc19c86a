// Package pass runs ordered pipelines of analyses and transforms over one
// function at a time. Transforms declare the analyses they require and the
// analyses they invalidate; the framework computes requirements lazily,
// caches them per function, and discards stale results after a mutating
// transform, so no pass ever observes an analysis computed from an older
// version of the IR.
package pass

import (
	"fmt"

	"github.com/greenhat/miden-ir/analysis"
	"github.com/greenhat/miden-ir/hir"
)

// PassError reports a failed pass. It aborts compilation of the current
// function only; other functions in the module still compile.
type PassError struct {
	Pass string
	Func string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %s failed on %s: %v", e.Pass, e.Func, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Analysis is a pure, cacheable computation over a function.
type Analysis interface {
	Name() string
	Compute(ctx *Context, fn *hir.Function) (any, error)
}

// Transform is a rewriting pass. Requires lists analyses the transform
// will query; Invalidates lists analyses its mutations make stale. A
// transform returning changed=false must not have mutated the IR.
type Transform interface {
	Name() string
	Requires() []string
	Invalidates() []string
	Run(ctx *Context, fn *hir.Function) (bool, error)
}

// Names of the built-in analyses.
const (
	AnalysisCFG      = "cfg"
	AnalysisDomTree  = "domtree"
	AnalysisLiveness = "liveness"
)

// Context gives a running pass access to cached analyses of its function.
type Context struct {
	mgr   *Manager
	fn    *hir.Function
	cache map[string]any
}

// Get returns the named analysis result, computing it if absent or
// previously invalidated.
func (c *Context) Get(name string) (any, error) {
	if r, ok := c.cache[name]; ok {
		return r, nil
	}
	a, ok := c.mgr.analyses[name]
	if !ok {
		return nil, fmt.Errorf("unknown analysis %q", name)
	}
	r, err := a.Compute(c, c.fn)
	if err != nil {
		return nil, err
	}
	c.cache[name] = r
	return r, nil
}

// Invalidate discards cached results by name, or every cached result when
// called with no arguments. Analyses computed from an invalidated analysis
// are discarded with it.
func (c *Context) Invalidate(names ...string) {
	if len(names) == 0 {
		clear(c.cache)
		return
	}
	for _, n := range names {
		delete(c.cache, n)
	}
	// Cascade until stable: a cached analysis whose dependency is gone is
	// itself stale.
	for changed := true; changed; {
		changed = false
		for name := range c.cache {
			a := c.mgr.analyses[name]
			dep, ok := a.(interface{ DependsOn() []string })
			if !ok {
				continue
			}
			for _, d := range dep.DependsOn() {
				if _, cached := c.cache[d]; !cached {
					delete(c.cache, name)
					changed = true
					break
				}
			}
		}
	}
}

// CFG returns the cached control-flow graph.
func CFG(c *Context) (*analysis.CFG, error) {
	r, err := c.Get(AnalysisCFG)
	if err != nil {
		return nil, err
	}
	return r.(*analysis.CFG), nil
}

// DomTree returns the cached dominator tree.
func DomTree(c *Context) (*analysis.DomTree, error) {
	r, err := c.Get(AnalysisDomTree)
	if err != nil {
		return nil, err
	}
	return r.(*analysis.DomTree), nil
}

// Liveness returns the cached liveness result.
func Liveness(c *Context) (*analysis.Liveness, error) {
	r, err := c.Get(AnalysisLiveness)
	if err != nil {
		return nil, err
	}
	return r.(*analysis.Liveness), nil
}

// Manager owns the analysis registry and an ordered transform pipeline.
// Run processes exactly one function; independent functions may be handled
// by concurrent Run calls on separate Contexts since the manager itself is
// read-only while running.
type Manager struct {
	analyses map[string]Analysis
	pipeline []Transform
}

// NewManager creates a manager with the built-in analyses registered.
func NewManager() *Manager {
	m := &Manager{analyses: make(map[string]Analysis)}
	m.MustRegister(cfgAnalysis{})
	m.MustRegister(domTreeAnalysis{})
	m.MustRegister(livenessAnalysis{})
	return m
}

// Register adds an analysis to the registry.
func (m *Manager) Register(a Analysis) error {
	if _, ok := m.analyses[a.Name()]; ok {
		return fmt.Errorf("analysis %q already registered", a.Name())
	}
	m.analyses[a.Name()] = a
	return nil
}

// MustRegister is Register for static registrations.
func (m *Manager) MustRegister(a Analysis) {
	if err := m.Register(a); err != nil {
		panic(err)
	}
}

// Add appends a transform to the pipeline.
func (m *Manager) Add(t Transform) { m.pipeline = append(m.pipeline, t) }

// Run executes the pipeline on fn in declared order. Requirements are
// (re)computed lazily before each transform; declared invalidations are
// applied after a transform reports a change. A transform that reports a
// change but declares no invalidations gets the conservative treatment:
// every cached analysis is discarded.
//
// Returns whether any transform changed the IR. On failure the returned
// *PassError aborts this function's compilation; the caller must discard
// the (possibly partially mutated) function.
func (m *Manager) Run(fn *hir.Function) (bool, error) {
	ctx := &Context{mgr: m, fn: fn, cache: make(map[string]any)}
	anyChanged := false
	for _, t := range m.pipeline {
		for _, req := range t.Requires() {
			if _, err := ctx.Get(req); err != nil {
				return anyChanged, &PassError{Pass: t.Name(), Func: fn.Name(), Err: err}
			}
		}
		changed, err := t.Run(ctx, fn)
		if err != nil {
			return anyChanged, &PassError{Pass: t.Name(), Func: fn.Name(), Err: err}
		}
		if changed {
			anyChanged = true
			if inv := t.Invalidates(); len(inv) > 0 {
				ctx.Invalidate(inv...)
			} else {
				ctx.Invalidate()
			}
		}
	}
	return anyChanged, nil
}

// RunToFixpoint re-runs the pipeline until no transform reports a change,
// bounded by maxIters to guard against oscillating rewrites.
func (m *Manager) RunToFixpoint(fn *hir.Function, maxIters int) (bool, error) {
	anyChanged := false
	for n := 0; n < maxIters; n++ {
		changed, err := m.Run(fn)
		if err != nil {
			return anyChanged, err
		}
		if !changed {
			return anyChanged, nil
		}
		anyChanged = true
	}
	return anyChanged, nil
}

type cfgAnalysis struct{}

func (cfgAnalysis) Name() string { return AnalysisCFG }
func (cfgAnalysis) Compute(_ *Context, fn *hir.Function) (any, error) {
	return analysis.ComputeCFG(fn), nil
}

type domTreeAnalysis struct{}

func (domTreeAnalysis) Name() string        { return AnalysisDomTree }
func (domTreeAnalysis) DependsOn() []string { return []string{AnalysisCFG} }
func (domTreeAnalysis) Compute(ctx *Context, fn *hir.Function) (any, error) {
	cfg, err := CFG(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.ComputeDomTreeCFG(fn, cfg), nil
}

type livenessAnalysis struct{}

func (livenessAnalysis) Name() string        { return AnalysisLiveness }
func (livenessAnalysis) DependsOn() []string { return []string{AnalysisCFG} }
func (livenessAnalysis) Compute(ctx *Context, fn *hir.Function) (any, error) {
	cfg, err := CFG(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.ComputeLivenessCFG(fn, cfg), nil
}
