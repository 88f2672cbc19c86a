package masm

import (
	"fmt"
	"strings"
)

// Function is one compiled stack-machine procedure. Slots 0..NumParams-1
// hold the arguments on entry; the remaining slots up to NumLocals are
// scratch locals owned by the code generator.
type Function struct {
	Name       string
	NumParams  int
	NumResults int
	NumLocals  int
	Code       []Inst
}

// Module is an ordered collection of compiled functions.
type Module struct {
	Name  string
	Funcs []*Function
}

// Add appends fn to the module.
func (m *Module) Add(fn *Function) { m.Funcs = append(m.Funcs, fn) }

// Function returns the named function, or nil.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// String renders the function as indented assembly text.
func (fn *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "proc %s params=%d results=%d locals=%d\n",
		fn.Name, fn.NumParams, fn.NumResults, fn.NumLocals)
	depth := 1
	for _, i := range fn.Code {
		if i.Op == OEnd || i.Op == OElse {
			depth--
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(i.String())
		sb.WriteByte('\n')
		if i.Op.Opens() || i.Op == OElse {
			depth++
		}
	}
	sb.WriteString("end\n")
	return sb.String()
}

func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s\n", m.Name)
	for _, fn := range m.Funcs {
		sb.WriteByte('\n')
		sb.WriteString(fn.String())
	}
	return sb.String()
}

// CheckBalanced verifies the structural well-formedness of the code:
// every OIf/OLoop has a matching OEnd, OElse appears at most once directly
// inside an OIf, and break/continue forms occur only within a loop.
func (fn *Function) CheckBalanced() error {
	type frame struct {
		op      Op
		sawElse bool
	}
	var stack []frame
	loops := 0
	for n, i := range fn.Code {
		switch {
		case i.Op.Opens():
			stack = append(stack, frame{op: i.Op})
			if i.Op == OLoop {
				loops++
			}
		case i.Op == OElse:
			if len(stack) == 0 || stack[len(stack)-1].op != OIf {
				return fmt.Errorf("%s: else outside if at %d", fn.Name, n)
			}
			if stack[len(stack)-1].sawElse {
				return fmt.Errorf("%s: second else at %d", fn.Name, n)
			}
			stack[len(stack)-1].sawElse = true
		case i.Op == OEnd:
			if len(stack) == 0 {
				return fmt.Errorf("%s: unmatched end at %d", fn.Name, n)
			}
			if stack[len(stack)-1].op == OLoop {
				loops--
			}
			stack = stack[:len(stack)-1]
		case i.Op.IsBreak() || i.Op.IsContinue():
			if loops == 0 {
				return fmt.Errorf("%s: %s outside loop at %d", fn.Name, i.Op, n)
			}
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("%s: %d unclosed constructs", fn.Name, len(stack))
	}
	return nil
}
