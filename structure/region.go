// Package structure rewrites a reducible control-flow graph into a tree of
// structured regions (sequences, if/else, loops with break/continue
// markers) suitable for a stack-machine target that has no arbitrary
// jumps. Irreducible graphs are rejected: the target cannot express them.
package structure

import (
	"fmt"
	"strings"

	"github.com/greenhat/miden-ir/hir"
)

// Kind discriminates region tree nodes.
type Kind uint8

const (
	// KindBlock is a leaf: the body instructions of one basic block. The
	// block's terminator contributes edge-argument stores (and ret/
	// unreachable), but its control transfer is expressed by the
	// surrounding tree.
	KindBlock Kind = iota
	// KindSeq composes two regions in order.
	KindSeq
	// KindIf branches on Cond into Then and optionally Else, converging
	// at the region's end.
	KindIf
	// KindLoop repeats Body; falling off the end of Body exits the loop.
	KindLoop
	// KindBreak exits the innermost enclosing loop. With a valid Cond it
	// is conditional.
	KindBreak
	// KindContinue restarts the innermost enclosing loop.
	KindContinue
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindSeq:
		return "seq"
	case KindIf:
		return "if"
	case KindLoop:
		return "loop"
	case KindBreak:
		return "break"
	case KindContinue:
		return "continue"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Region is one node of the structured-control-flow tree.
type Region struct {
	Kind Kind

	// KindBlock: the basic block this leaf renders.
	Block hir.Block

	// KindIf and conditional markers: the block whose conditional branch
	// introduced this node, and its condition value.
	Src  hir.Block
	Cond hir.Value
	// WhenFalse marks a conditional break/continue taken on a false
	// condition (the marker stands in for the branch's else edge).
	WhenFalse bool

	// Markers: the branch target (loop header for continue, loop follow
	// for break), used to locate edge arguments.
	Target hir.Block

	// KindIf: arm entry blocks (for edge-argument lookup) and subtrees.
	// Else may be nil; ThenTarget/ElseTarget stay valid regardless.
	ThenTarget hir.Block
	ElseTarget hir.Block
	Then       *Region
	Else       *Region

	// KindLoop: the loop header and body subtree.
	Header hir.Block
	Body   *Region

	// KindSeq.
	Left  *Region
	Right *Region
}

// String renders the tree in a compact s-expression form for debugging and
// golden tests.
func (r *Region) String() string {
	var sb strings.Builder
	r.write(&sb)
	return sb.String()
}

func (r *Region) write(sb *strings.Builder) {
	if r == nil {
		sb.WriteString("()")
		return
	}
	switch r.Kind {
	case KindBlock:
		fmt.Fprintf(sb, "block%d", r.Block)
	case KindSeq:
		sb.WriteString("(seq ")
		r.Left.write(sb)
		sb.WriteByte(' ')
		r.Right.write(sb)
		sb.WriteByte(')')
	case KindIf:
		fmt.Fprintf(sb, "(if v%d ", r.Cond)
		r.Then.write(sb)
		sb.WriteByte(' ')
		r.Else.write(sb)
		sb.WriteByte(')')
	case KindLoop:
		fmt.Fprintf(sb, "(loop block%d ", r.Header)
		r.Body.write(sb)
		sb.WriteByte(')')
	case KindBreak, KindContinue:
		sb.WriteByte('(')
		sb.WriteString(r.Kind.String())
		if r.Cond.IsValid() {
			fmt.Fprintf(sb, " v%d", r.Cond)
			if r.WhenFalse {
				sb.WriteString(" !")
			}
		}
		sb.WriteByte(')')
	}
}

// Count returns the number of nodes of the given kind in the tree.
func (r *Region) Count(k Kind) int {
	if r == nil {
		return 0
	}
	n := 0
	if r.Kind == k {
		n = 1
	}
	return n + r.Left.Count(k) + r.Right.Count(k) +
		r.Then.Count(k) + r.Else.Count(k) + r.Body.Count(k)
}

// IrreducibleCfgError reports a control-flow shape the structurer cannot
// express on the target: typically a loop with multiple entry blocks. The
// offending blocks are listed for diagnostics.
type IrreducibleCfgError struct {
	Func   string
	Blocks []hir.Block
	Loc    hir.SourceLoc
}

func (e *IrreducibleCfgError) Error() string {
	parts := make([]string, len(e.Blocks))
	for n, b := range e.Blocks {
		parts[n] = fmt.Sprintf("block%d", b)
	}
	s := fmt.Sprintf("%s: irreducible control flow involving %s", e.Func, strings.Join(parts, ", "))
	if e.Loc.IsKnown() {
		s += " at " + e.Loc.String()
	}
	return s
}
