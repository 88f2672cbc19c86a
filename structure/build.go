package structure

import (
	"github.com/greenhat/miden-ir/analysis"
	"github.com/greenhat/miden-ir/hir"
)

// Build decomposes fn's block graph into a region tree. The graph must be
// reducible: every loop is a natural loop entered only through its header,
// every conditional converges at a single merge block, and when several
// merge candidates exist the one with the smallest reverse-postorder index
// (closest to the branch) is chosen. Shapes matching neither the if/else
// nor the loop pattern fail with *IrreducibleCfgError.
func Build(fn *hir.Function, dt *analysis.DomTree) (*Region, error) {
	b := &builder{
		fn:    fn,
		dt:    dt,
		cfg:   dt.CFG(),
		loops: make(map[hir.Block]*loopInfo),
	}
	if err := b.findLoops(); err != nil {
		return nil, err
	}
	return b.walk(fn.Entry(), hir.NoBlock)
}

type builder struct {
	fn     *hir.Function
	dt     *analysis.DomTree
	cfg    *analysis.CFG
	loops  map[hir.Block]*loopInfo
	active []*loopInfo
}

type loopInfo struct {
	header   hir.Block
	body     map[hir.Block]bool
	follow   hir.Block // NoBlock for loops with no exit edge
	emitting bool
}

// findLoops identifies natural loops from back edges (edges whose target
// dominates their source), gathers each loop's body, and fixes its single
// follow block.
func (b *builder) findLoops() error {
	rpo := b.cfg.ReversePostorder()
	for _, u := range rpo {
		for _, h := range b.fn.Succs(u) {
			if !b.cfg.Reachable(h) {
				continue
			}
			back, err := b.dt.Dominates(h, u)
			if err != nil {
				return err
			}
			if !back {
				continue
			}
			li := b.loops[h]
			if li == nil {
				li = &loopInfo{header: h, body: map[hir.Block]bool{h: true}}
				b.loops[h] = li
			}
			// Backward walk from the latch gathers the natural loop body.
			stack := []hir.Block{u}
			for len(stack) > 0 {
				n := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if li.body[n] {
					continue
				}
				li.body[n] = true
				stack = append(stack, b.cfg.Preds(n)...)
			}
		}
	}

	for _, h := range rpo {
		li := b.loops[h]
		if li == nil {
			continue
		}
		var exits []hir.Block
		for _, u := range rpo {
			if !li.body[u] {
				continue
			}
			for _, s := range b.fn.Succs(u) {
				if !li.body[s] && !containsBlock(exits, s) {
					exits = append(exits, s)
				}
			}
		}
		switch len(exits) {
		case 0:
			li.follow = hir.NoBlock
		case 1:
			li.follow = exits[0]
		default:
			// The target's break construct exits to one point; a loop
			// leaking to several blocks matches no structured pattern.
			return &IrreducibleCfgError{
				Func:   b.fn.Name(),
				Blocks: append([]hir.Block{h}, exits...),
			}
		}
	}
	return nil
}

// walk emits the region sequence starting at cur and ending when control
// reaches stop (the enclosing construct's merge block), returns, or
// transfers to an enclosing loop's header/follow.
func (b *builder) walk(cur, stop hir.Block) (*Region, error) {
	var parts []*Region
	for cur.IsValid() && cur != stop {
		if li := b.loops[cur]; li != nil && !li.emitting {
			li.emitting = true
			b.active = append(b.active, li)
			body, err := b.walk(cur, hir.NoBlock)
			b.active = b.active[:len(b.active)-1]
			if err != nil {
				return nil, err
			}
			parts = append(parts, &Region{Kind: KindLoop, Header: cur, Body: body})
			next := li.follow
			if !next.IsValid() {
				cur = hir.NoBlock
				break
			}
			marker, done := b.classify(next, stop)
			if marker != nil {
				parts = append(parts, marker)
			}
			if done {
				cur = hir.NoBlock
				break
			}
			if err := b.checkEntry(li.header, next); err != nil {
				return nil, err
			}
			cur = next
			continue
		}

		parts = append(parts, &Region{Kind: KindBlock, Block: cur})
		term := b.fn.Terminator(cur)
		switch b.fn.InstOp(term) {
		case hir.OpRet, hir.OpUnreachable:
			cur = hir.NoBlock
		case hir.OpBr:
			t, _, _, _ := b.fn.InstEdges(term)
			marker, done := b.classify(t, stop)
			if marker != nil {
				marker.Src = cur
				parts = append(parts, marker)
			}
			if done {
				cur = hir.NoBlock
				break
			}
			if err := b.checkEntry(cur, t); err != nil {
				return nil, err
			}
			cur = t
		case hir.OpCondBr:
			regions, next, err := b.condBr(cur, term, stop)
			if err != nil {
				return nil, err
			}
			parts = append(parts, regions...)
			if !next.IsValid() {
				cur = hir.NoBlock
				break
			}
			marker, done := b.classify(next, stop)
			if marker != nil {
				parts = append(parts, marker)
			}
			if done {
				cur = hir.NoBlock
				break
			}
			if err := b.checkEntry(cur, next); err != nil {
				return nil, err
			}
			cur = next
		}
	}
	return seqOf(parts), nil
}

// condBr structures one conditional branch. It returns the regions to
// append and the block at which the walk continues (NoBlock if all paths
// terminate or transfer out of the current construct).
func (b *builder) condBr(src hir.Block, term hir.Inst, stop hir.Block) ([]*Region, hir.Block, error) {
	cond := b.fn.InstArgs(term)[0]
	t, tArgs, f, fArgs := b.fn.InstEdges(term)
	mt := b.markerFor(t)
	mf := b.markerFor(f)

	// Marker fast paths keep loop tests out of If regions: a branch whose
	// taken edge just exits or restarts the loop (carrying no block
	// arguments) becomes a conditional break/continue, and control falls
	// through to the other successor.
	switch {
	case mt != nil && len(tArgs) == 0 && mf == nil:
		mt.Src, mt.Cond = src, cond
		return []*Region{mt}, f, nil
	case mf != nil && len(fArgs) == 0 && mt == nil:
		mf.Src, mf.Cond, mf.WhenFalse = src, cond, true
		return []*Region{mf}, t, nil
	case mt != nil && mf != nil && len(tArgs) == 0:
		mt.Src, mt.Cond = src, cond
		mf.Src = src
		return []*Region{mt, mf}, hir.NoBlock, nil
	case mt != nil && mf != nil && len(fArgs) == 0:
		mf.Src, mf.Cond, mf.WhenFalse = src, cond, true
		mt.Src = src
		return []*Region{mf, mt}, hir.NoBlock, nil
	}

	merge := b.findMerge(t, f)
	thenR, err := b.arm(src, t, merge)
	if err != nil {
		return nil, hir.NoBlock, err
	}
	elseR, err := b.arm(src, f, merge)
	if err != nil {
		return nil, hir.NoBlock, err
	}
	ifR := &Region{
		Kind:       KindIf,
		Src:        src,
		Cond:       cond,
		ThenTarget: t,
		ElseTarget: f,
		Then:       thenR,
		Else:       elseR,
	}
	return []*Region{ifR}, merge, nil
}

// arm builds one arm of an if/else, ending at the shared merge block.
func (b *builder) arm(src, s, merge hir.Block) (*Region, error) {
	if marker := b.markerFor(s); marker != nil {
		marker.Src = src
		return marker, nil
	}
	if s == merge {
		return nil, nil // empty arm: the edge goes straight to the merge
	}
	if err := b.checkEntry(src, s); err != nil {
		return nil, err
	}
	return b.walk(s, merge)
}

// classify resolves a continuation block against the enclosing construct:
// the stop block ends the walk silently, the innermost loop's header and
// follow become continue/break markers.
func (b *builder) classify(next, stop hir.Block) (*Region, bool) {
	if next == stop {
		return nil, true
	}
	if m := b.markerFor(next); m != nil {
		return m, true
	}
	return nil, false
}

// markerFor returns a break/continue marker if next targets the innermost
// active loop's header or follow.
func (b *builder) markerFor(next hir.Block) *Region {
	if len(b.active) == 0 {
		return nil
	}
	top := b.active[len(b.active)-1]
	if next == top.header {
		return &Region{Kind: KindContinue, Target: next}
	}
	if top.follow.IsValid() && next == top.follow {
		return &Region{Kind: KindBreak, Target: next}
	}
	return nil
}

// checkEntry enforces single-entry continuation: control may only proceed
// into a block dominated by the construct it extends. A violation means
// the block is entered from elsewhere too, which no structured pattern
// can express.
func (b *builder) checkEntry(from, to hir.Block) error {
	dom, err := b.dt.Dominates(from, to)
	if err != nil {
		return err
	}
	if !dom {
		return &IrreducibleCfgError{
			Func:   b.fn.Name(),
			Blocks: []hir.Block{from, to},
			Loc:    b.fn.InstLoc(b.fn.Terminator(from)),
		}
	}
	return nil
}

// findMerge picks the merge block of a conditional: the smallest
// reverse-postorder member of both arms' extended dominance frontiers.
// Returns NoBlock when the arms never converge (both terminate).
func (b *builder) findMerge(t, f hir.Block) hir.Block {
	tc := b.mergeCandidates(t)
	best := hir.NoBlock
	bestIx := 0
	for y := range b.mergeCandidates(f) {
		if !tc[y] {
			continue
		}
		ix, _ := b.cfg.RPOIndex(y)
		if !best.IsValid() || ix < bestIx {
			best, bestIx = y, ix
		}
	}
	return best
}

func (b *builder) mergeCandidates(s hir.Block) map[hir.Block]bool {
	out := map[hir.Block]bool{s: true}
	for _, x := range b.dt.Frontier(s) {
		out[x] = true
	}
	// The innermost loop's header and follow classify as continue/break
	// markers, never as merges.
	if len(b.active) > 0 {
		top := b.active[len(b.active)-1]
		delete(out, top.header)
		if top.follow.IsValid() {
			delete(out, top.follow)
		}
	}
	return out
}

func seqOf(parts []*Region) *Region {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return &Region{Kind: KindSeq, Left: parts[0], Right: seqOf(parts[1:])}
}

func containsBlock(bs []hir.Block, b hir.Block) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
