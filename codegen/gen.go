// Package codegen lowers structured SSA functions to stack-machine code.
// Values live in local slots by default; a value stays on the operand
// stack only when its single use is the immediately following instruction,
// so the stack never holds more than the current instruction's operands
// plus at most one carried result.
package codegen

import (
	"fmt"

	"github.com/greenhat/miden-ir/analysis"
	"github.com/greenhat/miden-ir/hir"
	"github.com/greenhat/miden-ir/masm"
	"github.com/greenhat/miden-ir/structure"
)

// Lower runs the backend pipeline for one function: control-flow
// structuring followed by stackification. maxLocals bounds the frame
// size (0 means unlimited).
func Lower(fn *hir.Function, maxLocals int) (*masm.Function, error) {
	cfg := analysis.ComputeCFG(fn)
	dt := analysis.ComputeDomTreeCFG(fn, cfg)
	tree, err := structure.Build(fn, dt)
	if err != nil {
		return nil, err
	}
	live := analysis.ComputeLivenessCFG(fn, cfg)
	return Compile(fn, tree, live, maxLocals)
}

// Compile lowers fn along its region tree into stack-machine code.
func Compile(fn *hir.Function, tree *structure.Region, live *analysis.Liveness, maxLocals int) (*masm.Function, error) {
	g := &gen{
		fn:        fn,
		live:      live,
		fr:        newFrame(fn.Name(), maxLocals),
		remaining: make(map[hir.Value]int),
	}
	for v := 1; v <= fn.NumValues(); v++ {
		g.remaining[hir.Value(v)] = live.UseCount(hir.Value(v))
	}
	// Arguments arrive in slots 0..NumParams-1.
	for _, p := range fn.BlockParams(fn.Entry()) {
		if _, err := g.fr.ensure(p, 0); err != nil {
			return nil, err
		}
	}
	if err := g.emitRegion(tree); err != nil {
		return nil, err
	}
	sig := fn.Signature()
	return &masm.Function{
		Name:       fn.Name(),
		NumParams:  len(sig.Params),
		NumResults: len(sig.Results),
		NumLocals:  g.fr.next,
		Code:       g.code,
	}, nil
}

type gen struct {
	fn   *hir.Function
	live *analysis.Liveness
	fr   *frame
	code []masm.Inst

	// resident is the one value currently carried on the operand stack
	// between instructions, or NoValue.
	resident  hir.Value
	remaining map[hir.Value]int
	depth     int // loop nesting depth
}

func (g *gen) emit(i masm.Inst) { g.code = append(g.code, i) }

func (g *gen) emitRegion(r *structure.Region) error {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case structure.KindBlock:
		return g.emitBlock(r.Block)
	case structure.KindSeq:
		if err := g.emitRegion(r.Left); err != nil {
			return err
		}
		return g.emitRegion(r.Right)
	case structure.KindIf:
		return g.emitIf(r)
	case structure.KindLoop:
		g.depth++
		g.emit(masm.Bare(masm.OLoop))
		if err := g.emitRegion(r.Body); err != nil {
			return err
		}
		g.emit(masm.Bare(masm.OEnd))
		g.depth--
		g.fr.leaveLoop(g.depth)
		return nil
	case structure.KindBreak, structure.KindContinue:
		return g.emitMarker(r)
	}
	return fmt.Errorf("%s: unknown region kind %s", g.fn.Name(), r.Kind)
}

// emitIf lowers an if/else region. The condition is already on the stack,
// pushed by the leaf that ended in the conditional branch. Branch
// arguments are stored inside the arm they belong to, so they take effect
// only on the taken edge.
func (g *gen) emitIf(r *structure.Region) error {
	term := g.fn.Terminator(r.Src)
	g.emit(masm.Bare(masm.OIf))
	if !isMarker(r.Then) {
		if err := g.emitEdgeStores(term, r.ThenTarget); err != nil {
			return err
		}
	}
	if err := g.emitRegion(r.Then); err != nil {
		return err
	}
	if r.Else != nil || len(g.fn.EdgeArgs(term, r.ElseTarget)) > 0 {
		g.emit(masm.Bare(masm.OElse))
		if !isMarker(r.Else) {
			if err := g.emitEdgeStores(term, r.ElseTarget); err != nil {
				return err
			}
		}
		if err := g.emitRegion(r.Else); err != nil {
			return err
		}
	}
	g.emit(masm.Bare(masm.OEnd))
	return nil
}

// isMarker reports whether an if arm is a bare break/continue, which
// stores its own edge arguments in emitMarker.
func isMarker(r *structure.Region) bool {
	return r != nil && (r.Kind == structure.KindBreak || r.Kind == structure.KindContinue)
}

// emitMarker lowers a break/continue. Conditional markers consume the
// condition left on the stack by their source leaf and carry no branch
// arguments; unconditional markers store theirs first.
func (g *gen) emitMarker(r *structure.Region) error {
	if r.Cond.IsValid() {
		op := masm.OBreakIf
		switch {
		case r.Kind == structure.KindBreak && r.WhenFalse:
			op = masm.OBreakIfZ
		case r.Kind == structure.KindContinue && !r.WhenFalse:
			op = masm.OContinueIf
		case r.Kind == structure.KindContinue && r.WhenFalse:
			op = masm.OContinueIfZ
		}
		g.emit(masm.Bare(op))
		return nil
	}
	if r.Src.IsValid() {
		term := g.fn.Terminator(r.Src)
		// An unconditional-branch leaf already stored its edge arguments
		// in emitBlock; storing them again would re-read released slots.
		if g.fn.InstOp(term) != hir.OpBr {
			if err := g.emitEdgeStores(term, r.Target); err != nil {
				return err
			}
		}
	}
	if r.Kind == structure.KindBreak {
		g.emit(masm.Bare(masm.OBreak))
	} else {
		g.emit(masm.Bare(masm.OContinue))
	}
	return nil
}

func (g *gen) emitBlock(b hir.Block) error {
	insts := g.fn.BlockInsts(b)
	for n, i := range insts {
		next := hir.NoInst
		if n+1 < len(insts) {
			next = insts[n+1]
		}
		op := g.fn.InstOp(i)
		switch {
		case op == hir.OpConst:
			if err := g.spillResident(); err != nil {
				return err
			}
			g.emit(masm.Push(g.fn.InstImm(i)))
			if err := g.settle(g.fn.InstResults(i), next); err != nil {
				return err
			}
		case op.IsBinary() || op.IsUnary() || op.IsCompare():
			if err := g.pushArgs(g.fn.InstArgs(i)); err != nil {
				return err
			}
			mop, ok := aluOps[op]
			if !ok {
				return &UnsupportedOpcodeError{Func: g.fn.Name(), Op: op, Loc: g.fn.InstLoc(i)}
			}
			g.emit(masm.Bare(mop))
			if err := g.settle(g.fn.InstResults(i), next); err != nil {
				return err
			}
		case op == hir.OpLoad:
			if err := g.pushArgs(g.fn.InstArgs(i)); err != nil {
				return err
			}
			g.emit(masm.Bare(masm.OLoad))
			if err := g.settle(g.fn.InstResults(i), next); err != nil {
				return err
			}
		case op == hir.OpStore:
			if err := g.pushArgs(g.fn.InstArgs(i)); err != nil {
				return err
			}
			g.emit(masm.Bare(masm.OStore))
		case op == hir.OpCall:
			if err := g.pushArgs(g.fn.InstArgs(i)); err != nil {
				return err
			}
			g.emit(masm.Call(g.fn.InstCallee(i)))
			if err := g.settle(g.fn.InstResults(i), next); err != nil {
				return err
			}
		case op == hir.OpBr:
			then, _, _, _ := g.fn.InstEdges(i)
			if err := g.emitEdgeStores(i, then); err != nil {
				return err
			}
		case op == hir.OpCondBr:
			// Push the condition and leave it for the enclosing if or
			// conditional break/continue.
			if err := g.pushArgs(g.fn.InstArgs(i)); err != nil {
				return err
			}
		case op == hir.OpRet:
			if err := g.pushArgs(g.fn.InstArgs(i)); err != nil {
				return err
			}
			g.emit(masm.Bare(masm.ORet))
		case op == hir.OpUnreachable:
			g.emit(masm.Bare(masm.OUnreachable))
		default:
			return &UnsupportedOpcodeError{Func: g.fn.Name(), Op: op, Loc: g.fn.InstLoc(i)}
		}
	}
	return nil
}

// pushArgs materializes an instruction's operands on the stack in order.
// A resident value already on the stack is reused when it is the first
// operand, or swapped into place when it is the second of two; any other
// position forces a spill.
func (g *gen) pushArgs(args []hir.Value) error {
	if g.resident.IsValid() {
		pos := -1
		for n, a := range args {
			if a == g.resident {
				pos = n
				break
			}
		}
		switch {
		case pos == 0:
			v := g.resident
			g.resident = hir.NoValue
			g.dec(v)
			for _, a := range args[1:] {
				if err := g.pushValue(a); err != nil {
					return err
				}
			}
			return nil
		case pos == 1 && len(args) == 2:
			v := g.resident
			g.resident = hir.NoValue
			if err := g.pushValue(args[0]); err != nil {
				return err
			}
			g.emit(masm.Bare(masm.OSwap))
			g.dec(v)
			return nil
		default:
			if err := g.spillResident(); err != nil {
				return err
			}
		}
	}
	for _, a := range args {
		if err := g.pushValue(a); err != nil {
			return err
		}
	}
	return nil
}

func (g *gen) pushValue(v hir.Value) error {
	slot, ok := g.fr.lookup(v)
	if !ok {
		return fmt.Errorf("%s: v%d used before it was materialized", g.fn.Name(), v)
	}
	g.emit(masm.LocLoad(slot))
	g.dec(v)
	return nil
}

// dec burns one use of v, returning its slot to the free list when none
// remain.
func (g *gen) dec(v hir.Value) {
	g.remaining[v]--
	if g.remaining[v] <= 0 {
		g.fr.release(v, g.depth)
	}
}

func (g *gen) spillResident() error {
	if !g.resident.IsValid() {
		return nil
	}
	slot, err := g.fr.ensure(g.resident, g.depth)
	if err != nil {
		return err
	}
	g.emit(masm.LocStore(slot))
	g.resident = hir.NoValue
	return nil
}

// settle disposes of an instruction's results, left on the stack in
// definition order. The first result may stay resident when its single
// use is the very next instruction; everything else is stored to a slot,
// or dropped when unused.
func (g *gen) settle(results []hir.Value, next hir.Inst) error {
	if len(results) == 0 {
		return nil
	}
	for k := len(results) - 1; k >= 1; k-- {
		if err := g.storeOrDrop(results[k]); err != nil {
			return err
		}
	}
	r := results[0]
	if g.eligible(r, next) {
		g.resident = r
		return nil
	}
	return g.storeOrDrop(r)
}

func (g *gen) storeOrDrop(r hir.Value) error {
	if g.remaining[r] <= 0 {
		g.emit(masm.Bare(masm.ODrop))
		return nil
	}
	slot, err := g.fr.ensure(r, g.depth)
	if err != nil {
		return err
	}
	g.emit(masm.LocStore(slot))
	return nil
}

// eligible reports whether r can stay on the stack: exactly one use, and
// that use is an operand of the immediately following instruction.
func (g *gen) eligible(r hir.Value, next hir.Inst) bool {
	if !next.IsValid() || g.remaining[r] != 1 {
		return false
	}
	for _, a := range g.fn.InstArgs(next) {
		if a == r {
			return true
		}
	}
	return false
}

// emitEdgeStores transfers branch arguments into the target's parameter
// slots. All arguments are pushed before any parameter is written, so an
// edge may permute values that already live in the parameter slots (the
// back edge of a loop typically does).
func (g *gen) emitEdgeStores(term hir.Inst, target hir.Block) error {
	args := g.fn.EdgeArgs(term, target)
	if len(args) == 0 {
		return nil
	}
	params := g.fn.BlockParams(target)
	if err := g.pushArgs(args); err != nil {
		return err
	}
	for k := len(params) - 1; k >= 0; k-- {
		slot, err := g.fr.ensure(params[k], g.depth)
		if err != nil {
			return err
		}
		g.emit(masm.LocStore(slot))
	}
	return nil
}

// aluOps maps arithmetic, bitwise and comparison opcodes to their
// stack-machine equivalents.
var aluOps = map[hir.Opcode]masm.Op{
	hir.OpAdd: masm.OAdd,
	hir.OpSub: masm.OSub,
	hir.OpMul: masm.OMul,
	hir.OpDiv: masm.ODiv,
	hir.OpMod: masm.OMod,
	hir.OpNeg: masm.ONeg,
	hir.OpAnd: masm.OAnd,
	hir.OpOr:  masm.OOr,
	hir.OpXor: masm.OXor,
	hir.OpNot: masm.ONot,
	hir.OpShl: masm.OShl,
	hir.OpShr: masm.OShr,
	hir.OpEq:  masm.OEq,
	hir.OpNeq: masm.ONeq,
	hir.OpLt:  masm.OLt,
	hir.OpLte: masm.OLte,
	hir.OpGt:  masm.OGt,
	hir.OpGte: masm.OGte,
}
