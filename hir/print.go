package hir

import (
	"fmt"
	"strings"
)

// String renders the function in a readable SSA form, one block per
// paragraph, e.g.:
//
//	fn add(i32, i32) -> i32 {
//	block1(v1: i32, v2: i32):
//	  v3 = add v1, v2
//	  ret v3
//	}
func (f *Function) String() string {
	tt := f.mod.Types()
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s(%s) -> %s {\n", f.name, typeList(tt, f.sig.Params), typeList(tt, f.sig.Results))
	for _, blk := range f.layout {
		bd := f.mustBlock(blk)
		fmt.Fprintf(&sb, "block%d", blk)
		if len(bd.params) > 0 {
			sb.WriteByte('(')
			for n, p := range bd.params {
				if n > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "v%d: %s", p, tt.String(f.mustValue(p).typ))
			}
			sb.WriteByte(')')
		}
		sb.WriteString(":\n")
		for _, i := range bd.insts {
			sb.WriteString("  ")
			sb.WriteString(f.instString(i))
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (f *Function) instString(i Inst) string {
	id := f.mustInst(i)
	var sb strings.Builder
	if len(id.results) > 0 {
		for n, r := range id.results {
			if n > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "v%d", r)
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(id.op.String())
	switch id.op {
	case OpConst:
		fmt.Fprintf(&sb, " %d", id.imm)
	case OpCall:
		fmt.Fprintf(&sb, " %s(%s)", id.callee, valueList(id.args))
	case OpBr:
		fmt.Fprintf(&sb, " block%d%s", id.then, argList(id.thenArgs))
	case OpCondBr:
		fmt.Fprintf(&sb, " v%d, block%d%s, block%d%s",
			id.args[0], id.then, argList(id.thenArgs), id.els, argList(id.elsArgs))
	default:
		if len(id.args) > 0 {
			sb.WriteByte(' ')
			sb.WriteString(valueList(id.args))
		}
	}
	return sb.String()
}

func valueList(vs []Value) string {
	parts := make([]string, len(vs))
	for n, v := range vs {
		parts[n] = fmt.Sprintf("v%d", v)
	}
	return strings.Join(parts, ", ")
}

func argList(vs []Value) string {
	if len(vs) == 0 {
		return ""
	}
	return "(" + valueList(vs) + ")"
}

func typeList(tt *TypeTable, ts []Type) string {
	parts := make([]string, len(ts))
	for n, t := range ts {
		parts[n] = tt.String(t)
	}
	return strings.Join(parts, ", ")
}
