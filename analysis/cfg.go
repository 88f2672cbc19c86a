// Package analysis provides the dataflow analyses required by the pass
// framework and the code generator: control-flow graph orderings, the
// dominator tree with dominance frontiers, and per-value liveness. All
// results are pure functions of the IR they were computed from; any
// transform that mutates the IR must invalidate them before the next query.
package analysis

import (
	"fmt"

	"github.com/greenhat/miden-ir/hir"
)

// UnreachableBlockError reports a dominance query against a block that is
// not reachable from the function's entry block.
type UnreachableBlockError struct {
	Func  string
	Block hir.Block
}

func (e *UnreachableBlockError) Error() string {
	return fmt.Sprintf("%s: block%d is not reachable from entry", e.Func, e.Block)
}

// CFG caches predecessor edges and the reverse postorder of a function's
// block graph.
type CFG struct {
	fn    *hir.Function
	preds map[hir.Block][]hir.Block
	rpo   []hir.Block
	rpoIx map[hir.Block]int
}

// ComputeCFG walks the block graph from the entry block.
func ComputeCFG(fn *hir.Function) *CFG {
	c := &CFG{
		fn:    fn,
		preds: make(map[hir.Block][]hir.Block),
		rpoIx: make(map[hir.Block]int),
	}
	seen := make(map[hir.Block]bool)
	var post []hir.Block
	var visit func(b hir.Block)
	visit = func(b hir.Block) {
		seen[b] = true
		for _, s := range fn.Succs(b) {
			c.preds[s] = append(c.preds[s], b)
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	if entry := fn.Entry(); entry.IsValid() {
		visit(entry)
	}
	c.rpo = make([]hir.Block, len(post))
	for n := range post {
		c.rpo[n] = post[len(post)-1-n]
		c.rpoIx[c.rpo[n]] = n
	}
	return c
}

// ReversePostorder returns the reachable blocks in reverse postorder,
// entry first. The slice must not be mutated.
func (c *CFG) ReversePostorder() []hir.Block { return c.rpo }

// RPOIndex returns b's reverse-postorder index. The second result is false
// for unreachable blocks.
func (c *CFG) RPOIndex(b hir.Block) (int, bool) {
	ix, ok := c.rpoIx[b]
	return ix, ok
}

// Reachable reports whether b is reachable from entry.
func (c *CFG) Reachable(b hir.Block) bool {
	_, ok := c.rpoIx[b]
	return ok
}

// Preds returns b's predecessors in edge-discovery order. Only edges from
// reachable blocks are present.
func (c *CFG) Preds(b hir.Block) []hir.Block { return c.preds[b] }
