package codegen

import (
	"fmt"

	"github.com/greenhat/miden-ir/hir"
)

// UnsupportedOpcodeError reports an instruction the stack-machine lowering
// has no translation for.
type UnsupportedOpcodeError struct {
	Func string
	Op   hir.Opcode
	Loc  hir.SourceLoc
}

func (e *UnsupportedOpcodeError) Error() string {
	s := fmt.Sprintf("%s: unsupported opcode %s", e.Func, e.Op)
	if e.Loc.IsKnown() {
		s += " at " + e.Loc.String()
	}
	return s
}

// SlotExhaustionError reports that a function needs more local slots than
// the target allows.
type SlotExhaustionError struct {
	Func  string
	Limit int
}

func (e *SlotExhaustionError) Error() string {
	return fmt.Sprintf("%s: out of local slots (limit %d)", e.Func, e.Limit)
}
