package analysis

import (
	"github.com/greenhat/miden-ir/hir"
)

// DomTree is the dominator tree of a function's block graph, computed with
// the Cooper–Harvey–Kennedy iterative algorithm. Dominance queries are
// answered in constant time from a DFS numbering of the tree.
type DomTree struct {
	fn   *hir.Function
	cfg  *CFG
	idom map[hir.Block]hir.Block

	children map[hir.Block][]hir.Block
	pre      map[hir.Block]int
	post     map[hir.Block]int

	frontier map[hir.Block][]hir.Block
}

// ComputeDomTree builds the dominator tree for fn.
func ComputeDomTree(fn *hir.Function) *DomTree {
	return ComputeDomTreeCFG(fn, ComputeCFG(fn))
}

// ComputeDomTreeCFG builds the dominator tree reusing an existing CFG.
func ComputeDomTreeCFG(fn *hir.Function, cfg *CFG) *DomTree {
	t := &DomTree{
		fn:       fn,
		cfg:      cfg,
		idom:     make(map[hir.Block]hir.Block),
		children: make(map[hir.Block][]hir.Block),
		pre:      make(map[hir.Block]int),
		post:     make(map[hir.Block]int),
	}
	rpo := cfg.ReversePostorder()
	if len(rpo) == 0 {
		return t
	}
	entry := rpo[0]
	t.idom[entry] = entry
	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom hir.Block
			for _, p := range cfg.Preds(b) {
				if _, ok := t.idom[p]; !ok {
					continue // not yet processed
				}
				if !newIdom.IsValid() {
					newIdom = p
				} else {
					newIdom = t.intersect(p, newIdom)
				}
			}
			if newIdom.IsValid() && t.idom[b] != newIdom {
				t.idom[b] = newIdom
				changed = true
			}
		}
	}

	// Tree DFS numbering for O(1) ancestry queries.
	for _, b := range rpo[1:] {
		p := t.idom[b]
		t.children[p] = append(t.children[p], b)
	}
	clock := 0
	var number func(b hir.Block)
	number = func(b hir.Block) {
		clock++
		t.pre[b] = clock
		for _, c := range t.children[b] {
			number(c)
		}
		clock++
		t.post[b] = clock
	}
	number(entry)
	return t
}

// intersect walks two blocks up the partially built tree to their common
// dominator, comparing by reverse-postorder index.
func (t *DomTree) intersect(a, b hir.Block) hir.Block {
	ixa, _ := t.cfg.RPOIndex(a)
	ixb, _ := t.cfg.RPOIndex(b)
	for ixa != ixb {
		for ixa > ixb {
			a = t.idom[a]
			ixa, _ = t.cfg.RPOIndex(a)
		}
		for ixb > ixa {
			b = t.idom[b]
			ixb, _ = t.cfg.RPOIndex(b)
		}
	}
	return a
}

// CFG returns the control-flow graph the tree was computed from.
func (t *DomTree) CFG() *CFG { return t.cfg }

// IDom returns the immediate dominator of b. The entry block is its own
// immediate dominator. Fails for blocks not reachable from entry.
func (t *DomTree) IDom(b hir.Block) (hir.Block, error) {
	id, ok := t.idom[b]
	if !ok {
		return hir.NoBlock, &UnreachableBlockError{Func: t.fn.Name(), Block: b}
	}
	return id, nil
}

// Dominates reports whether a dominates b (reflexively). Fails if either
// block is unreachable from entry.
func (t *DomTree) Dominates(a, b hir.Block) (bool, error) {
	if _, ok := t.idom[a]; !ok {
		return false, &UnreachableBlockError{Func: t.fn.Name(), Block: a}
	}
	if _, ok := t.idom[b]; !ok {
		return false, &UnreachableBlockError{Func: t.fn.Name(), Block: b}
	}
	return t.pre[a] <= t.pre[b] && t.post[b] <= t.post[a], nil
}

// StrictlyDominates reports whether a dominates b and a != b.
func (t *DomTree) StrictlyDominates(a, b hir.Block) (bool, error) {
	dom, err := t.Dominates(a, b)
	return dom && a != b, err
}

// Children returns the dominator-tree children of b.
func (t *DomTree) Children(b hir.Block) []hir.Block { return t.children[b] }

// Frontier returns the dominance frontier of b: the blocks v such that b
// dominates a predecessor of v but does not strictly dominate v. Frontiers
// for the whole function are computed on first use.
func (t *DomTree) Frontier(b hir.Block) []hir.Block {
	if t.frontier == nil {
		t.computeFrontiers()
	}
	return t.frontier[b]
}

// computeFrontiers uses the Cooper et al. walk, per edge: from each edge
// source, climb the dominator tree adding the edge target to frontiers
// until reaching a strict dominator of the target.
func (t *DomTree) computeFrontiers() {
	t.frontier = make(map[hir.Block][]hir.Block)
	for _, b := range t.cfg.ReversePostorder() {
		for _, s := range t.fn.Succs(b) {
			if !t.cfg.Reachable(s) {
				continue
			}
			runner := b
			for {
				if sdom, _ := t.StrictlyDominates(runner, s); sdom {
					break
				}
				if !containsBlock(t.frontier[runner], s) {
					t.frontier[runner] = append(t.frontier[runner], s)
				}
				if runner == t.idom[runner] {
					break
				}
				runner = t.idom[runner]
			}
		}
	}
}

func containsBlock(bs []hir.Block, b hir.Block) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
