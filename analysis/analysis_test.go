package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenhat/miden-ir/hir"
)

// diamond builds:
//
//	entry -> then -> merge(p)
//	entry -> else -> merge(p)
func diamond(t *testing.T) (*hir.Function, []hir.Block) {
	t.Helper()
	mod := hir.NewModule("t")
	i32, _ := mod.Types().Int(32)
	fn, err := mod.NewFunction("diamond", hir.Signature{Params: []hir.Type{i32}, Results: []hir.Type{i32}})
	require.NoError(t, err)

	b := hir.NewBuilder(fn)
	entry, params, _ := b.CreateEntryBlock()
	then := b.CreateBlock()
	els := b.CreateBlock()
	merge := b.CreateBlock()
	p, _ := b.AddBlockParam(merge, i32)

	zero, _ := b.Const(entry, i32, 0)
	cond, _ := b.Compare(entry, hir.OpGt, params[0], zero)
	require.NoError(t, b.CondBr(entry, cond, then, nil, els, nil))

	two, _ := b.Const(then, i32, 2)
	dbl, _ := b.Binary(then, hir.OpMul, params[0], two)
	require.NoError(t, b.Br(then, merge, dbl))

	one, _ := b.Const(els, i32, 1)
	dec, _ := b.Binary(els, hir.OpSub, params[0], one)
	require.NoError(t, b.Br(els, merge, dec))

	require.NoError(t, b.Ret(merge, p))
	require.NoError(t, fn.Validate())
	return fn, []hir.Block{entry, then, els, merge}
}

// countLoop builds:
//
//	entry -> header(i, acc)
//	header: cond = i < n; condbr cond, body, exit
//	body: i' = i+1; acc' = acc+i; br header(i', acc')
//	exit: ret acc
func countLoop(t *testing.T) (*hir.Function, []hir.Block, []hir.Value) {
	t.Helper()
	mod := hir.NewModule("t")
	i32, _ := mod.Types().Int(32)
	fn, err := mod.NewFunction("count", hir.Signature{Params: []hir.Type{i32}, Results: []hir.Type{i32}})
	require.NoError(t, err)

	b := hir.NewBuilder(fn)
	entry, params, _ := b.CreateEntryBlock()
	n := params[0]
	header := b.CreateBlock()
	body := b.CreateBlock()
	exit := b.CreateBlock()
	i, _ := b.AddBlockParam(header, i32)
	acc, _ := b.AddBlockParam(header, i32)

	zero, _ := b.Const(entry, i32, 0)
	require.NoError(t, b.Br(entry, header, zero, zero))

	cond, _ := b.Compare(header, hir.OpLt, i, n)
	require.NoError(t, b.CondBr(header, cond, body, nil, exit, nil))

	one, _ := b.Const(body, i32, 1)
	iNext, _ := b.Binary(body, hir.OpAdd, i, one)
	accNext, _ := b.Binary(body, hir.OpAdd, acc, i)
	require.NoError(t, b.Br(body, header, iNext, accNext))

	require.NoError(t, b.Ret(exit, acc))
	require.NoError(t, fn.Validate())
	return fn, []hir.Block{entry, header, body, exit}, []hir.Value{n, i, acc}
}

func TestCFGDiamond(t *testing.T) {
	fn, blocks := diamond(t)
	entry, then, els, merge := blocks[0], blocks[1], blocks[2], blocks[3]

	cfg := ComputeCFG(fn)
	require.Equal(t, []hir.Block{then, els}, fn.Succs(entry))
	require.ElementsMatch(t, []hir.Block{then, els}, cfg.Preds(merge))

	rpo := cfg.ReversePostorder()
	require.Len(t, rpo, 4)
	require.Equal(t, entry, rpo[0])
	ixMerge, ok := cfg.RPOIndex(merge)
	require.True(t, ok)
	require.Equal(t, 3, ixMerge, "merge comes after both arms")
}

func TestCFGUnreachable(t *testing.T) {
	mod := hir.NewModule("t")
	i32, _ := mod.Types().Int(32)
	fn, _ := mod.NewFunction("dead", hir.Signature{Results: []hir.Type{i32}})
	b := hir.NewBuilder(fn)
	entry, _, _ := b.CreateEntryBlock()
	dead := b.CreateBlock()
	c, _ := b.Const(entry, i32, 7)
	require.NoError(t, b.Ret(entry, c))
	cd, _ := b.Const(dead, i32, 9)
	require.NoError(t, b.Ret(dead, cd))

	cfg := ComputeCFG(fn)
	require.True(t, cfg.Reachable(entry))
	require.False(t, cfg.Reachable(dead))

	dt := ComputeDomTreeCFG(fn, cfg)
	_, err := dt.IDom(dead)
	var ue *UnreachableBlockError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, dead, ue.Block)

	_, err = dt.Dominates(entry, dead)
	require.ErrorAs(t, err, &ue)
}

func TestDomTreeDiamond(t *testing.T) {
	fn, blocks := diamond(t)
	entry, then, els, merge := blocks[0], blocks[1], blocks[2], blocks[3]
	dt := ComputeDomTree(fn)

	for _, b := range []hir.Block{then, els, merge} {
		id, err := dt.IDom(b)
		require.NoError(t, err)
		require.Equal(t, entry, id, "entry immediately dominates block%d", b)
	}

	dom, err := dt.Dominates(entry, merge)
	require.NoError(t, err)
	require.True(t, dom)

	dom, err = dt.Dominates(then, merge)
	require.NoError(t, err)
	require.False(t, dom, "merge is reachable around then")

	sdom, err := dt.StrictlyDominates(entry, entry)
	require.NoError(t, err)
	require.False(t, sdom)

	require.ElementsMatch(t, []hir.Block{merge}, dt.Frontier(then))
	require.ElementsMatch(t, []hir.Block{merge}, dt.Frontier(els))
	require.Empty(t, dt.Frontier(merge))
}

func TestDomTreeLoop(t *testing.T) {
	fn, blocks, _ := countLoop(t)
	entry, header, body, exit := blocks[0], blocks[1], blocks[2], blocks[3]
	dt := ComputeDomTree(fn)

	id, _ := dt.IDom(header)
	require.Equal(t, entry, id)
	id, _ = dt.IDom(body)
	require.Equal(t, header, id)
	id, _ = dt.IDom(exit)
	require.Equal(t, header, id)

	// The back edge puts the header in its own frontier.
	require.ElementsMatch(t, []hir.Block{header}, dt.Frontier(body))
	require.ElementsMatch(t, []hir.Block{header}, dt.Frontier(header))
}

func TestDomTreeIdempotent(t *testing.T) {
	fn, blocks, _ := countLoop(t)
	a := ComputeDomTree(fn)
	b := ComputeDomTree(fn)
	for _, blk := range blocks {
		ia, err := a.IDom(blk)
		require.NoError(t, err)
		ib, err := b.IDom(blk)
		require.NoError(t, err)
		require.Equal(t, ia, ib)
	}
}
