// Package gossa translates functions from golang.org/x/tools go/ssa form
// into the compiler's IR. Phi nodes become block parameters with the
// matching branch arguments on each predecessor edge. Only the integer and
// pointer subset the backend can lower is accepted; anything else fails
// with a descriptive error rather than miscompiling.
package gossa

import (
	"fmt"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/greenhat/miden-ir/hir"
)

// Translate declares and translates the given functions into mod. All
// functions are declared first so calls between them resolve regardless
// of order.
func Translate(mod *hir.Module, fns []*ssa.Function) error {
	tr := &translator{mod: mod, decls: make(map[*ssa.Function]*hir.Function)}
	for _, fn := range fns {
		if err := tr.declare(fn); err != nil {
			return err
		}
	}
	for _, fn := range fns {
		if err := tr.translate(fn); err != nil {
			return err
		}
	}
	return nil
}

type translator struct {
	mod   *hir.Module
	decls map[*ssa.Function]*hir.Function
}

func (tr *translator) declare(fn *ssa.Function) error {
	sig, err := tr.signature(fn)
	if err != nil {
		return err
	}
	hfn, err := tr.mod.NewFunction(fn.Name(), sig)
	if err != nil {
		return err
	}
	tr.decls[fn] = hfn
	return nil
}

func (tr *translator) signature(fn *ssa.Function) (hir.Signature, error) {
	var sig hir.Signature
	for _, p := range fn.Params {
		t, err := tr.typeOf(fn, p.Type())
		if err != nil {
			return sig, err
		}
		sig.Params = append(sig.Params, t)
	}
	res := fn.Signature.Results()
	for n := 0; n < res.Len(); n++ {
		t, err := tr.typeOf(fn, res.At(n).Type())
		if err != nil {
			return sig, err
		}
		sig.Results = append(sig.Results, t)
	}
	return sig, nil
}

// typeOf maps a Go type onto the IR's type system. Word-sized types follow
// the target's 32-bit pointer model.
func (tr *translator) typeOf(fn *ssa.Function, t types.Type) (hir.Type, error) {
	tt := tr.mod.Types()
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch u.Kind() {
		case types.Bool, types.UntypedBool:
			return tt.Int(1)
		case types.Int8, types.Uint8:
			return tt.Int(8)
		case types.Int16, types.Uint16:
			return tt.Int(16)
		case types.Int32, types.Uint32, types.Int, types.Uint, types.Uintptr, types.UntypedInt:
			return tt.Int(32)
		case types.Int64, types.Uint64:
			return tt.Int(64)
		}
	case *types.Pointer:
		elem, err := tr.typeOf(fn, u.Elem())
		if err != nil {
			return hir.NoType, err
		}
		return tt.Pointer(elem)
	}
	return hir.NoType, fmt.Errorf("%s: unsupported type %s", fn.Name(), t)
}

// fnState carries the per-function translation context.
type fnState struct {
	tr     *translator
	src    *ssa.Function
	b      *hir.Builder
	blocks map[*ssa.BasicBlock]hir.Block
	values map[ssa.Value]hir.Value
}

func (tr *translator) translate(fn *ssa.Function) error {
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("%s: external function has no body", fn.Name())
	}
	hfn := tr.decls[fn]
	st := &fnState{
		tr:     tr,
		src:    fn,
		b:      hir.NewBuilder(hfn),
		blocks: make(map[*ssa.BasicBlock]hir.Block),
		values: make(map[ssa.Value]hir.Value),
	}

	entry, params, err := st.b.CreateEntryBlock()
	if err != nil {
		return err
	}
	st.blocks[fn.Blocks[0]] = entry
	for n, p := range fn.Params {
		st.values[p] = params[n]
	}
	for _, sb := range fn.Blocks[1:] {
		st.blocks[sb] = st.b.CreateBlock()
	}

	// Phi nodes become block parameters, declared before any body is
	// translated so branch edges can be checked as they are built.
	for _, sb := range fn.Blocks {
		for _, in := range sb.Instrs {
			phi, ok := in.(*ssa.Phi)
			if !ok {
				break // phis lead the block
			}
			t, err := tr.typeOf(fn, phi.Type())
			if err != nil {
				return err
			}
			v, err := st.b.AddBlockParam(st.blocks[sb], t)
			if err != nil {
				return err
			}
			st.values[phi] = v
		}
	}

	for _, sb := range fn.Blocks {
		if err := st.block(sb); err != nil {
			return err
		}
	}
	return hfn.Validate()
}

func (st *fnState) block(sb *ssa.BasicBlock) error {
	blk := st.blocks[sb]
	for _, in := range sb.Instrs {
		st.b.SetLoc(st.loc(in))
		if err := st.instr(blk, sb, in); err != nil {
			return err
		}
	}
	return nil
}

func (st *fnState) instr(blk hir.Block, sb *ssa.BasicBlock, in ssa.Instruction) error {
	switch in := in.(type) {
	case *ssa.Phi:
		return nil // declared up front
	case *ssa.BinOp:
		return st.binOp(blk, in)
	case *ssa.UnOp:
		return st.unOp(blk, in)
	case *ssa.Store:
		ptr, err := st.value(blk, in.Addr)
		if err != nil {
			return err
		}
		val, err := st.value(blk, in.Val)
		if err != nil {
			return err
		}
		return st.b.Store(blk, ptr, val)
	case *ssa.Call:
		return st.call(blk, in)
	case *ssa.Jump:
		succ := sb.Succs[0]
		args, err := st.edgeArgs(blk, sb, succ)
		if err != nil {
			return err
		}
		return st.b.Br(blk, st.blocks[succ], args...)
	case *ssa.If:
		cond, err := st.value(blk, in.Cond)
		if err != nil {
			return err
		}
		then, els := sb.Succs[0], sb.Succs[1]
		thenArgs, err := st.edgeArgs(blk, sb, then)
		if err != nil {
			return err
		}
		elsArgs, err := st.edgeArgs(blk, sb, els)
		if err != nil {
			return err
		}
		return st.b.CondBr(blk, cond, st.blocks[then], thenArgs, st.blocks[els], elsArgs)
	case *ssa.Return:
		args := make([]hir.Value, 0, len(in.Results))
		for _, r := range in.Results {
			v, err := st.value(blk, r)
			if err != nil {
				return err
			}
			args = append(args, v)
		}
		return st.b.Ret(blk, args...)
	case *ssa.Panic:
		return st.b.Unreachable(blk)
	default:
		return fmt.Errorf("%s: unsupported construct %T", st.src.Name(), in)
	}
}

var binOps = map[token.Token]hir.Opcode{
	token.ADD: hir.OpAdd,
	token.SUB: hir.OpSub,
	token.MUL: hir.OpMul,
	token.QUO: hir.OpDiv,
	token.REM: hir.OpMod,
	token.AND: hir.OpAnd,
	token.OR:  hir.OpOr,
	token.XOR: hir.OpXor,
	token.SHL: hir.OpShl,
	token.SHR: hir.OpShr,
}

var cmpOps = map[token.Token]hir.Opcode{
	token.EQL: hir.OpEq,
	token.NEQ: hir.OpNeq,
	token.LSS: hir.OpLt,
	token.LEQ: hir.OpLte,
	token.GTR: hir.OpGt,
	token.GEQ: hir.OpGte,
}

func (st *fnState) binOp(blk hir.Block, in *ssa.BinOp) error {
	x, err := st.value(blk, in.X)
	if err != nil {
		return err
	}
	y, err := st.value(blk, in.Y)
	if err != nil {
		return err
	}
	if op, ok := cmpOps[in.Op]; ok {
		v, err := st.b.Compare(blk, op, x, y)
		if err != nil {
			return err
		}
		st.values[in] = v
		return nil
	}
	op, ok := binOps[in.Op]
	if !ok {
		return fmt.Errorf("%s: unsupported operator %s", st.src.Name(), in.Op)
	}
	v, err := st.b.Binary(blk, op, x, y)
	if err != nil {
		return err
	}
	st.values[in] = v
	return nil
}

func (st *fnState) unOp(blk hir.Block, in *ssa.UnOp) error {
	x, err := st.value(blk, in.X)
	if err != nil {
		return err
	}
	var v hir.Value
	switch in.Op {
	case token.SUB:
		v, err = st.b.Unary(blk, hir.OpNeg, x)
	case token.NOT, token.XOR:
		v, err = st.b.Unary(blk, hir.OpNot, x)
	case token.MUL:
		v, err = st.b.Load(blk, x)
	default:
		return fmt.Errorf("%s: unsupported operator %s", st.src.Name(), in.Op)
	}
	if err != nil {
		return err
	}
	st.values[in] = v
	return nil
}

func (st *fnState) call(blk hir.Block, in *ssa.Call) error {
	callee := in.Common().StaticCallee()
	if callee == nil {
		return fmt.Errorf("%s: unsupported indirect call", st.src.Name())
	}
	if _, ok := st.tr.decls[callee]; !ok {
		return fmt.Errorf("%s: call of untranslated function %s", st.src.Name(), callee.Name())
	}
	args := make([]hir.Value, 0, len(in.Common().Args))
	for _, a := range in.Common().Args {
		v, err := st.value(blk, a)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	results, err := st.b.Call(blk, callee.Name(), args...)
	if err != nil {
		return err
	}
	if len(results) == 1 {
		st.values[in] = results[0]
	} else if len(results) > 1 {
		return fmt.Errorf("%s: unsupported multi-result call of %s", st.src.Name(), callee.Name())
	}
	return nil
}

// edgeArgs collects the branch arguments owed to succ's phi parameters
// along the edge from sb.
func (st *fnState) edgeArgs(blk hir.Block, sb, succ *ssa.BasicBlock) ([]hir.Value, error) {
	predIx := -1
	for n, p := range succ.Preds {
		if p == sb {
			predIx = n
			break
		}
	}
	var args []hir.Value
	for _, in := range succ.Instrs {
		phi, ok := in.(*ssa.Phi)
		if !ok {
			break
		}
		v, err := st.value(blk, phi.Edges[predIx])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// value resolves an ssa.Value, materializing constants at the use site.
func (st *fnState) value(blk hir.Block, v ssa.Value) (hir.Value, error) {
	if hv, ok := st.values[v]; ok {
		return hv, nil
	}
	c, ok := v.(*ssa.Const)
	if !ok {
		return hir.NoValue, fmt.Errorf("%s: unsupported value %T", st.src.Name(), v)
	}
	t, err := st.tr.typeOf(st.src, c.Type())
	if err != nil {
		return hir.NoValue, err
	}
	var imm int64
	if c.Value != nil {
		if basic, ok := c.Type().Underlying().(*types.Basic); ok && basic.Info()&types.IsBoolean != 0 {
			if constBool(c) {
				imm = 1
			}
		} else {
			imm = c.Int64()
		}
	}
	return st.b.Const(blk, t, imm)
}

func constBool(c *ssa.Const) bool {
	return c.Value.String() == "true"
}

func (st *fnState) loc(in ssa.Instruction) hir.SourceLoc {
	pos := in.Pos()
	if !pos.IsValid() || st.src.Prog == nil {
		return hir.SourceLoc{}
	}
	p := st.src.Prog.Fset.Position(pos)
	return hir.SourceLoc{File: p.Filename, Line: p.Line, Col: p.Column}
}
