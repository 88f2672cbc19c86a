// Package transform holds the concrete rewriting passes shipped with the
// framework. Each is an ordinary pass.Transform client; the set is open
// for extension.
package transform

import (
	"github.com/greenhat/miden-ir/hir"
	"github.com/greenhat/miden-ir/pass"
)

// DCE removes instructions whose results are unused and whose opcodes have
// no side effects. Detached instructions leave tombstones in the arena;
// their handles are never reused.
type DCE struct{}

func (DCE) Name() string { return "dce" }

func (DCE) Requires() []string { return nil }

// DCE never adds, reorders, or re-targets blocks, so the dominator tree
// stays valid; liveness does not.
func (DCE) Invalidates() []string { return []string{pass.AnalysisLiveness} }

func (DCE) Run(_ *pass.Context, fn *hir.Function) (bool, error) {
	uses := make(map[hir.Value]int)
	for _, b := range fn.Blocks() {
		for _, i := range fn.BlockInsts(b) {
			for _, a := range fn.InstArgs(i) {
				uses[a]++
			}
			_, thenArgs, _, elsArgs := fn.InstEdges(i)
			for _, a := range thenArgs {
				uses[a]++
			}
			for _, a := range elsArgs {
				uses[a]++
			}
		}
	}

	isDead := func(i hir.Inst) bool {
		if fn.InstOp(i).HasSideEffects() {
			return false
		}
		for _, r := range fn.InstResults(i) {
			if uses[r] > 0 {
				return false
			}
		}
		return true
	}

	changed := false
	// Sweep to fixpoint: removing one instruction can make its operands'
	// definitions dead in turn.
	for again := true; again; {
		again = false
		for _, b := range fn.Blocks() {
			// Copy the handles: DetachInst edits the block's list in place.
			insts := append([]hir.Inst(nil), fn.BlockInsts(b)...)
			for n := len(insts) - 1; n >= 0; n-- {
				i := insts[n]
				if !fn.InstBlock(i).IsValid() {
					continue // already detached this sweep
				}
				if !isDead(i) {
					continue
				}
				for _, a := range fn.InstArgs(i) {
					uses[a]--
				}
				if err := fn.DetachInst(i); err != nil {
					return changed, err
				}
				changed = true
				again = true
			}
		}
	}
	return changed, nil
}
