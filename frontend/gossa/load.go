package gossa

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"sort"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/greenhat/miden-ir/hir"
)

// TranslateFiles parses and type-checks Go source files as one package,
// builds SSA form, and translates every package-level function into mod.
// Synthetic functions and package initializers are skipped.
func TranslateFiles(mod *hir.Module, filenames []string, sources [][]byte) error {
	if len(filenames) != len(sources) {
		return fmt.Errorf("got %d filenames for %d sources", len(filenames), len(sources))
	}
	fset := token.NewFileSet()
	files := make([]*ast.File, 0, len(filenames))
	for n, name := range filenames {
		f, err := parser.ParseFile(fset, name, sources[n], 0)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files")
	}

	pkg := types.NewPackage(files[0].Name.Name, "")
	ssapkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()},
		fset, pkg, files, ssa.SanityCheckFunctions)
	if err != nil {
		return err
	}

	var fns []*ssa.Function
	for _, m := range ssapkg.Members {
		fn, ok := m.(*ssa.Function)
		if !ok || fn.Synthetic != "" || fn.Name() == "init" {
			continue
		}
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })
	return Translate(mod, fns)
}
