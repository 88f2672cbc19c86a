package transform

import (
	"github.com/greenhat/miden-ir/hir"
	"github.com/greenhat/miden-ir/pass"
)

// ConstFold evaluates arithmetic, bitwise and comparison instructions whose
// operands are all constants, rewriting each in place into an OpConst so
// the result value handle is preserved. Division and shifts that would
// trap or depend on out-of-range shift amounts are left alone.
type ConstFold struct{}

func (ConstFold) Name() string { return "constfold" }

func (ConstFold) Requires() []string { return nil }

// Folding preserves the CFG and every value definition site; only liveness
// (use sets of the folded operands) goes stale.
func (ConstFold) Invalidates() []string { return []string{pass.AnalysisLiveness} }

func (ConstFold) Run(_ *pass.Context, fn *hir.Function) (bool, error) {
	tt := fn.Types()
	constOf := func(v hir.Value) (int64, bool) {
		def := fn.ValueDefInst(v)
		if !def.IsValid() || fn.InstOp(def) != hir.OpConst {
			return 0, false
		}
		return fn.InstImm(def), true
	}

	changed := false
	for _, b := range fn.Blocks() {
		for _, i := range fn.BlockInsts(b) {
			op := fn.InstOp(i)
			if !op.IsBinary() && !op.IsUnary() && !op.IsCompare() {
				continue
			}
			args := fn.InstArgs(i)
			imms := make([]int64, len(args))
			allConst := true
			for n, a := range args {
				imm, ok := constOf(a)
				if !ok {
					allConst = false
					break
				}
				imms[n] = imm
			}
			if !allConst {
				continue
			}
			desc, _ := tt.Desc(fn.ValueType(args[0]))
			folded, ok := evalConst(op, imms, desc.Bits)
			if !ok {
				continue
			}
			if err := fn.FoldToConst(i, folded); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	return changed, nil
}

// evalConst evaluates op over signed two's-complement values of the given
// bit width, truncating the result back to that width. Comparisons yield
// 0 or 1.
func evalConst(op hir.Opcode, imms []int64, bits int) (int64, bool) {
	x := imms[0]
	var y int64
	if len(imms) > 1 {
		y = imms[1]
	}
	var r int64
	switch op {
	case hir.OpAdd:
		r = x + y
	case hir.OpSub:
		r = x - y
	case hir.OpMul:
		r = x * y
	case hir.OpDiv, hir.OpMod:
		if y == 0 {
			return 0, false // runtime trap, not a compile-time value
		}
		if op == hir.OpDiv {
			r = x / y
		} else {
			r = x % y
		}
	case hir.OpNeg:
		r = -x
	case hir.OpAnd:
		r = x & y
	case hir.OpOr:
		r = x | y
	case hir.OpXor:
		r = x ^ y
	case hir.OpNot:
		if bits == 1 {
			r = 1 - (x & 1)
		} else {
			r = ^x
		}
	case hir.OpShl, hir.OpShr:
		if y < 0 || y >= int64(bits) {
			return 0, false
		}
		if op == hir.OpShl {
			r = x << uint(y)
		} else {
			r = x >> uint(y)
		}
	case hir.OpEq:
		r = boolImm(x == y)
	case hir.OpNeq:
		r = boolImm(x != y)
	case hir.OpLt:
		r = boolImm(x < y)
	case hir.OpLte:
		r = boolImm(x <= y)
	case hir.OpGt:
		r = boolImm(x > y)
	case hir.OpGte:
		r = boolImm(x >= y)
	default:
		return 0, false
	}
	if op.IsCompare() {
		return r, true
	}
	return truncate(r, bits), true
}

func boolImm(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// truncate reduces v to the signed range of the given bit width.
func truncate(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	shift := uint(64 - bits)
	return v << shift >> shift
}
