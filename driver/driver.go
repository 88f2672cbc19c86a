// Package driver compiles whole modules: it runs the transform pipeline
// and the backend over every function, in parallel, isolating failures so
// one bad function never blocks the rest of the module.
package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/greenhat/miden-ir/codegen"
	"github.com/greenhat/miden-ir/hir"
	"github.com/greenhat/miden-ir/masm"
	"github.com/greenhat/miden-ir/pass"
	"github.com/greenhat/miden-ir/pass/transform"
)

var log = commonlog.GetLogger("midenc.driver")

// FuncError ties a compilation failure to the function it occurred in.
type FuncError struct {
	Func string
	Err  error
}

func (e *FuncError) Error() string { return fmt.Sprintf("%s: %v", e.Func, e.Err) }

func (e *FuncError) Unwrap() error { return e.Err }

// Result is the outcome of compiling a module: the functions that
// succeeded plus one error per function that did not.
type Result struct {
	Module *masm.Module
	Errors []*FuncError
}

// Ok reports whether every function compiled.
func (r *Result) Ok() bool { return len(r.Errors) == 0 }

// knownTransforms maps config pass names to their constructors.
var knownTransforms = map[string]func() pass.Transform{
	"dce":       func() pass.Transform { return transform.DCE{} },
	"constfold": func() pass.Transform { return transform.ConstFold{} },
	"verify":    func() pass.Transform { return transform.Verify{} },
}

// buildManager assembles the pipeline named by cfg.Passes.
func buildManager(cfg Config) (*pass.Manager, error) {
	mgr := pass.NewManager()
	for _, name := range cfg.Passes {
		mk, ok := knownTransforms[name]
		if !ok {
			return nil, fmt.Errorf("unknown pass %q", name)
		}
		mgr.Add(mk())
	}
	return mgr, nil
}

// CompileModule compiles every function of mod. Functions are independent
// once built (the type table is safe for concurrent interning), so they
// compile in parallel up to cfg.Parallelism. A failing function lands in
// Result.Errors; the module-level error is reserved for bad configuration
// or a cancelled context.
func CompileModule(ctx context.Context, mod *hir.Module, cfg Config) (*Result, error) {
	cfg = cfg.normalize()
	mgr, err := buildManager(cfg)
	if err != nil {
		return nil, err
	}

	fns := mod.Functions()
	log.Infof("compiling module %s: %d functions, parallelism %d",
		mod.Name(), len(fns), cfg.Parallelism)

	var mu sync.Mutex
	out := &Result{Module: &masm.Module{Name: mod.Name()}}
	compiled := make(map[string]*masm.Function)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mf, err := compileFunc(fn, mgr, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Errorf("%s: %v", fn.Name(), err)
				out.Errors = append(out.Errors, &FuncError{Func: fn.Name(), Err: err})
				return nil
			}
			compiled[fn.Name()] = mf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic output order regardless of scheduling.
	names := make([]string, 0, len(compiled))
	for name := range compiled {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Module.Add(compiled[name])
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Func < out.Errors[j].Func })
	log.Infof("module %s: %d compiled, %d failed", mod.Name(), len(names), len(out.Errors))
	return out, nil
}

func compileFunc(fn *hir.Function, mgr *pass.Manager, cfg Config) (*masm.Function, error) {
	if err := fn.Validate(); err != nil {
		return nil, err
	}
	changed, err := mgr.RunToFixpoint(fn, cfg.FixpointIters)
	if err != nil {
		return nil, err
	}
	if changed {
		log.Debugf("%s: pipeline changed the IR", fn.Name())
	}
	mf, err := codegen.Lower(fn, cfg.MaxLocals)
	if err != nil {
		return nil, err
	}
	log.Debugf("%s: %d instructions, %d locals", fn.Name(), len(mf.Code), mf.NumLocals)
	return mf, nil
}
