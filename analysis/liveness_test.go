package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLivenessDiamond(t *testing.T) {
	fn, blocks := diamond(t)
	entry, then, els, merge := blocks[0], blocks[1], blocks[2], blocks[3]
	lv := ComputeLiveness(fn)

	x := fn.BlockParams(entry)[0]
	p := fn.BlockParams(merge)[0]

	// The function parameter feeds both arms.
	require.True(t, lv.IsLiveOut(x, entry))
	require.True(t, lv.IsLiveIn(x, then))
	require.True(t, lv.IsLiveIn(x, els))
	require.False(t, lv.IsLiveIn(x, merge), "x dies at the arms")

	// The merge parameter is defined at merge, not live into it.
	require.False(t, lv.IsLiveIn(p, merge))
	require.Equal(t, 1, lv.UseCount(p))

	// A branch argument counts as a use in the predecessor.
	thenTerm := fn.Terminator(then)
	arg := fn.EdgeArgs(thenTerm, merge)[0]
	require.Equal(t, 1, lv.UseCount(arg))
	require.False(t, lv.IsLiveOut(arg, then), "consumed by the edge itself")
}

func TestLivenessLoop(t *testing.T) {
	fn, blocks, vals := countLoop(t)
	entry, header, body, exit := blocks[0], blocks[1], blocks[2], blocks[3]
	n, i, acc := vals[0], vals[1], vals[2]
	lv := ComputeLiveness(fn)

	// n is read by the header condition every iteration, so the back edge
	// keeps it live through the body.
	require.True(t, lv.IsLiveOut(n, entry))
	require.True(t, lv.IsLiveIn(n, header))
	require.True(t, lv.IsLiveIn(n, body))
	require.True(t, lv.IsLiveOut(n, body))
	require.False(t, lv.IsLiveIn(n, exit))

	// Header parameters are definitions in the header.
	require.False(t, lv.IsLiveIn(i, header))
	require.True(t, lv.IsLiveIn(i, body))

	// acc flows into the exit.
	require.True(t, lv.IsLiveIn(acc, exit))

	// i: the condition plus two uses in the body.
	require.Equal(t, 3, lv.UseCount(i))
	// acc: one body use plus the return.
	require.Equal(t, 2, lv.UseCount(acc))

	live := lv.LiveBlocks(n)
	require.Contains(t, live, entry)
	require.Contains(t, live, header)
	require.Contains(t, live, body)
	require.NotContains(t, live, exit)
}
