package analysis

import (
	"sort"

	"github.com/greenhat/miden-ir/hir"
)

// Liveness holds per-block live-in/live-out sets and per-value use counts,
// computed by backward fixpoint over the block graph. In SSA with block
// arguments there is no phi special case: a branch argument is a use in
// the predecessor, a block parameter is a definition in the successor.
type Liveness struct {
	fn      *hir.Function
	cfg     *CFG
	liveIn  map[hir.Block]map[hir.Value]bool
	liveOut map[hir.Block]map[hir.Value]bool
	uses    map[hir.Value]int
}

// ComputeLiveness computes liveness for fn.
func ComputeLiveness(fn *hir.Function) *Liveness {
	return ComputeLivenessCFG(fn, ComputeCFG(fn))
}

// ComputeLivenessCFG computes liveness reusing an existing CFG.
func ComputeLivenessCFG(fn *hir.Function, cfg *CFG) *Liveness {
	lv := &Liveness{
		fn:      fn,
		cfg:     cfg,
		liveIn:  make(map[hir.Block]map[hir.Value]bool),
		liveOut: make(map[hir.Block]map[hir.Value]bool),
		uses:    make(map[hir.Value]int),
	}

	rpo := cfg.ReversePostorder()
	upward := make(map[hir.Block]map[hir.Value]bool) // uses of values defined elsewhere
	defs := make(map[hir.Block]map[hir.Value]bool)
	for _, b := range rpo {
		u := make(map[hir.Value]bool)
		d := make(map[hir.Value]bool)
		for _, p := range fn.BlockParams(b) {
			d[p] = true
		}
		use := func(v hir.Value) {
			lv.uses[v]++
			if !d[v] {
				u[v] = true
			}
		}
		for _, i := range fn.BlockInsts(b) {
			for _, a := range fn.InstArgs(i) {
				use(a)
			}
			_, thenArgs, _, elsArgs := fn.InstEdges(i)
			for _, a := range thenArgs {
				use(a)
			}
			for _, a := range elsArgs {
				use(a)
			}
			for _, r := range fn.InstResults(i) {
				d[r] = true
			}
		}
		upward[b] = u
		defs[b] = d
		lv.liveIn[b] = make(map[hir.Value]bool)
		lv.liveOut[b] = make(map[hir.Value]bool)
	}

	// Backward fixpoint in postorder (reverse of rpo) converges quickly.
	for changed := true; changed; {
		changed = false
		for n := len(rpo) - 1; n >= 0; n-- {
			b := rpo[n]
			out := lv.liveOut[b]
			for _, s := range fn.Succs(b) {
				for v := range lv.liveIn[s] {
					if !out[v] {
						out[v] = true
						changed = true
					}
				}
			}
			in := lv.liveIn[b]
			for v := range upward[b] {
				if !in[v] {
					in[v] = true
					changed = true
				}
			}
			for v := range out {
				if !defs[b][v] && !in[v] {
					in[v] = true
					changed = true
				}
			}
		}
	}
	return lv
}

// IsLiveIn reports whether v is live on entry to b.
func (lv *Liveness) IsLiveIn(v hir.Value, b hir.Block) bool { return lv.liveIn[b][v] }

// IsLiveOut reports whether v is live on exit from b.
func (lv *Liveness) IsLiveOut(v hir.Value, b hir.Block) bool { return lv.liveOut[b][v] }

// UseCount returns the total number of uses of v: instruction operands
// plus branch arguments.
func (lv *Liveness) UseCount(v hir.Value) int { return lv.uses[v] }

// LiveBlocks returns v's live range as the sorted set of blocks between
// its definition and its last use: the defining block plus every block
// where v is live on entry.
func (lv *Liveness) LiveBlocks(v hir.Value) []hir.Block {
	var out []hir.Block
	if lv.uses[v] > 0 || lv.fn.IsBlockParam(v) || lv.fn.ValueDefInst(v).IsValid() {
		out = append(out, lv.fn.ValueDefBlock(v))
	}
	for b, in := range lv.liveIn {
		if in[v] && (len(out) == 0 || b != out[0]) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return dedupBlocks(out)
}

func dedupBlocks(bs []hir.Block) []hir.Block {
	if len(bs) < 2 {
		return bs
	}
	out := bs[:1]
	for _, b := range bs[1:] {
		if b != out[len(out)-1] {
			out = append(out, b)
		}
	}
	return out
}
