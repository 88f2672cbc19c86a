package pass

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenhat/miden-ir/hir"
)

func passFunc(t *testing.T) *hir.Function {
	t.Helper()
	mod := hir.NewModule("t")
	i32, _ := mod.Types().Int(32)
	fn, err := mod.NewFunction("f", hir.Signature{Params: []hir.Type{i32}, Results: []hir.Type{i32}})
	require.NoError(t, err)
	b := hir.NewBuilder(fn)
	entry, params, _ := b.CreateEntryBlock()
	one, _ := b.Const(entry, i32, 1)
	sum, _ := b.Binary(entry, hir.OpAdd, params[0], one)
	require.NoError(t, b.Ret(entry, sum))
	require.NoError(t, fn.Validate())
	return fn
}

// probe records how the framework drives it.
type probe struct {
	name        string
	requires    []string
	invalidates []string
	run         func(ctx *Context, fn *hir.Function) (bool, error)
	runs        int
}

func (p *probe) Name() string          { return p.name }
func (p *probe) Requires() []string    { return p.requires }
func (p *probe) Invalidates() []string { return p.invalidates }
func (p *probe) Run(ctx *Context, fn *hir.Function) (bool, error) {
	p.runs++
	if p.run != nil {
		return p.run(ctx, fn)
	}
	return false, nil
}

func TestAnalysesAreCached(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()

	var first, second any
	mgr.Add(&probe{name: "a", requires: []string{AnalysisDomTree}, run: func(ctx *Context, _ *hir.Function) (bool, error) {
		r, err := ctx.Get(AnalysisDomTree)
		require.NoError(t, err)
		first = r
		return false, nil
	}})
	mgr.Add(&probe{name: "b", requires: []string{AnalysisDomTree}, run: func(ctx *Context, _ *hir.Function) (bool, error) {
		r, err := ctx.Get(AnalysisDomTree)
		require.NoError(t, err)
		second = r
		return false, nil
	}})

	changed, err := mgr.Run(fn)
	require.NoError(t, err)
	require.False(t, changed)
	require.Same(t, first, second, "no change between passes, same cached result")
}

func TestDeclaredInvalidation(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()

	var before, between struct{ dom, live any }
	mgr.Add(&probe{
		name:        "mutator",
		requires:    []string{AnalysisDomTree, AnalysisLiveness},
		invalidates: []string{AnalysisLiveness},
		run: func(ctx *Context, _ *hir.Function) (bool, error) {
			before.dom, _ = ctx.Get(AnalysisDomTree)
			before.live, _ = ctx.Get(AnalysisLiveness)
			return true, nil
		},
	})
	mgr.Add(&probe{name: "observer", run: func(ctx *Context, _ *hir.Function) (bool, error) {
		between.dom, _ = ctx.Get(AnalysisDomTree)
		between.live, _ = ctx.Get(AnalysisLiveness)
		return false, nil
	}})

	changed, err := mgr.Run(fn)
	require.NoError(t, err)
	require.True(t, changed)
	require.Same(t, before.dom, between.dom, "domtree was not invalidated")
	require.NotSame(t, before.live, between.live, "liveness was declared stale")
}

func TestConservativeInvalidation(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()

	var before, after any
	mgr.Add(&probe{name: "grab", requires: []string{AnalysisCFG}, run: func(ctx *Context, _ *hir.Function) (bool, error) {
		before, _ = ctx.Get(AnalysisCFG)
		return true, nil // change with no declared invalidations
	}})
	mgr.Add(&probe{name: "grab2", run: func(ctx *Context, _ *hir.Function) (bool, error) {
		after, _ = ctx.Get(AnalysisCFG)
		return false, nil
	}})

	_, err := mgr.Run(fn)
	require.NoError(t, err)
	require.NotSame(t, before, after, "undeclared change must clear everything")
}

func TestInvalidationCascades(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()

	var domBefore, domAfter any
	mgr.Add(&probe{
		name:        "cfgmut",
		requires:    []string{AnalysisDomTree},
		invalidates: []string{AnalysisCFG},
		run: func(ctx *Context, _ *hir.Function) (bool, error) {
			domBefore, _ = ctx.Get(AnalysisDomTree)
			return true, nil
		},
	})
	mgr.Add(&probe{name: "look", run: func(ctx *Context, _ *hir.Function) (bool, error) {
		domAfter, _ = ctx.Get(AnalysisDomTree)
		return false, nil
	}})

	_, err := mgr.Run(fn)
	require.NoError(t, err)
	require.NotSame(t, domBefore, domAfter, "domtree depends on the invalidated cfg")
}

func TestPassErrorWrapping(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()
	sentinel := errors.New("boom")
	mgr.Add(&probe{name: "bad", run: func(*Context, *hir.Function) (bool, error) {
		return false, sentinel
	}})

	_, err := mgr.Run(fn)
	var pe *PassError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "bad", pe.Pass)
	require.Equal(t, "f", pe.Func)
	require.ErrorIs(t, err, sentinel)
}

func TestUnknownAnalysis(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()
	mgr.Add(&probe{name: "needy", requires: []string{"nonesuch"}})
	_, err := mgr.Run(fn)
	var pe *PassError
	require.ErrorAs(t, err, &pe)
}

func TestRunToFixpoint(t *testing.T) {
	fn := passFunc(t)
	mgr := NewManager()
	p := &probe{name: "twice"}
	remaining := 2
	p.run = func(*Context, *hir.Function) (bool, error) {
		remaining--
		return remaining > 0, nil
	}
	mgr.Add(p)

	changed, err := mgr.RunToFixpoint(fn, 10)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 2, p.runs, "one changing run plus the quiescent run")
}
