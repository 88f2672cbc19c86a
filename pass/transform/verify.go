package transform

import (
	"github.com/greenhat/miden-ir/hir"
	"github.com/greenhat/miden-ir/pass"
)

// Verify re-checks the function's structural invariants mid-pipeline. It
// never mutates, so it can be inserted between transforms to localize
// which one broke the IR.
type Verify struct{}

func (Verify) Name() string { return "verify" }

func (Verify) Requires() []string { return nil }

func (Verify) Invalidates() []string { return nil }

func (Verify) Run(_ *pass.Context, fn *hir.Function) (bool, error) {
	return false, fn.Validate()
}
