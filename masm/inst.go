package masm

import "fmt"

// Inst is a single stack-machine instruction. At most one of the operand
// fields is meaningful, determined by the opcode: Imm for OPush, Slot for
// the local-slot ops, Sym for OCall.
type Inst struct {
	Op   Op
	Imm  int64
	Slot int
	Sym  string
}

// Push builds a push-immediate instruction.
func Push(imm int64) Inst { return Inst{Op: OPush, Imm: imm} }

// LocLoad builds a load from the given local slot.
func LocLoad(slot int) Inst { return Inst{Op: OLocLoad, Slot: slot} }

// LocStore builds a store into the given local slot.
func LocStore(slot int) Inst { return Inst{Op: OLocStore, Slot: slot} }

// Call builds a call to the named function.
func Call(sym string) Inst { return Inst{Op: OCall, Sym: sym} }

// Bare builds an instruction with no operand.
func Bare(op Op) Inst { return Inst{Op: op} }

func (i Inst) String() string {
	switch i.Op {
	case OPush:
		return fmt.Sprintf("push %d", i.Imm)
	case OLocLoad, OLocStore:
		return fmt.Sprintf("%s %d", i.Op, i.Slot)
	case OCall:
		return fmt.Sprintf("call %s", i.Sym)
	default:
		return i.Op.String()
	}
}
