package gossa

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/greenhat/miden-ir/codegen"
	"github.com/greenhat/miden-ir/hir"
)

func buildSSA(t *testing.T, src string, names ...string) []*ssa.Function {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err)

	pkg := types.NewPackage("p", "")
	ssapkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()},
		fset, pkg, []*ast.File{file}, ssa.SanityCheckFunctions)
	require.NoError(t, err)

	fns := make([]*ssa.Function, 0, len(names))
	for _, name := range names {
		fn := ssapkg.Func(name)
		require.NotNil(t, fn, "function %s not found", name)
		fns = append(fns, fn)
	}
	return fns
}

func TestTranslateStraightLine(t *testing.T) {
	src := `package p
func addmul(a, b int) int {
	return (a + b) * (a - b)
}`
	mod := hir.NewModule("p")
	require.NoError(t, Translate(mod, buildSSA(t, src, "addmul")))

	fn := mod.Function("addmul")
	require.NotNil(t, fn)
	require.NoError(t, fn.Validate())
	require.Len(t, fn.Blocks(), 1)

	mf, err := codegen.Lower(fn, 0)
	require.NoError(t, err)
	require.NoError(t, mf.CheckBalanced())
	require.Equal(t, 2, mf.NumParams)
	require.Equal(t, 1, mf.NumResults)
}

func TestTranslateLoopPhisBecomeParams(t *testing.T) {
	src := `package p
func sum(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}`
	mod := hir.NewModule("p")
	require.NoError(t, Translate(mod, buildSSA(t, src, "sum")))

	fn := mod.Function("sum")
	require.NoError(t, fn.Validate())

	// The loop-carried variables surface as parameters of some block, and
	// no instruction models a phi.
	carried := 0
	for _, b := range fn.Blocks() {
		if b == fn.Entry() {
			continue
		}
		carried += len(fn.BlockParams(b))
	}
	require.GreaterOrEqual(t, carried, 2, "i and s are loop-carried")

	mf, err := codegen.Lower(fn, 0)
	require.NoError(t, err)
	require.NoError(t, mf.CheckBalanced())
}

func TestTranslateBranches(t *testing.T) {
	src := `package p
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}`
	mod := hir.NewModule("p")
	require.NoError(t, Translate(mod, buildSSA(t, src, "max")))

	fn := mod.Function("max")
	require.NoError(t, fn.Validate())
	term := fn.Terminator(fn.Entry())
	require.Equal(t, hir.OpCondBr, fn.InstOp(term))

	_, err := codegen.Lower(fn, 0)
	require.NoError(t, err)
}

func TestTranslateCalls(t *testing.T) {
	src := `package p
func double(x int) int { return x * 2 }
func quad(x int) int   { return double(double(x)) }`
	mod := hir.NewModule("p")
	require.NoError(t, Translate(mod, buildSSA(t, src, "double", "quad")))

	fn := mod.Function("quad")
	require.NoError(t, fn.Validate())
	calls := 0
	for _, b := range fn.Blocks() {
		for _, i := range fn.BlockInsts(b) {
			if fn.InstOp(i) == hir.OpCall {
				calls++
				require.Equal(t, "double", fn.InstCallee(i))
			}
		}
	}
	require.Equal(t, 2, calls)
}

func TestTranslateRejectsUnsupported(t *testing.T) {
	src := `package p
func greet(s string) string { return s + "!" }`
	mod := hir.NewModule("p")
	err := Translate(mod, buildSSA(t, src, "greet"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported type")
}
