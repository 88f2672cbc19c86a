package hir

import "fmt"

// Opcode identifies an operation. The set is closed: the builder rejects
// anything it has no signature rule for, and the code generator rejects
// anything it has no lowering rule for.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Constants.
	OpConst // imm -> int result

	// Integer arithmetic. Both operands and the result share one type.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg // unary

	// Bitwise/logical. OpNot on i1 is logical negation.
	OpAnd
	OpOr
	OpXor
	OpNot // unary
	OpShl
	OpShr

	// Comparisons. Operands share one integer type; the result is i1.
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte

	// Memory. OpLoad: (*T) -> T. OpStore: (*T, T) -> ().
	OpLoad
	OpStore

	// Call of a function in the same module by symbol.
	OpCall

	// Terminators.
	OpBr
	OpCondBr
	OpRet
	OpUnreachable
)

var opcodeNames = [...]string{
	OpInvalid:     "invalid",
	OpConst:       "const",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpDiv:         "div",
	OpMod:         "mod",
	OpNeg:         "neg",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpNot:         "not",
	OpShl:         "shl",
	OpShr:         "shr",
	OpEq:          "eq",
	OpNeq:         "neq",
	OpLt:          "lt",
	OpLte:         "lte",
	OpGt:          "gt",
	OpGte:         "gte",
	OpLoad:        "load",
	OpStore:       "store",
	OpCall:        "call",
	OpBr:          "br",
	OpCondBr:      "condbr",
	OpRet:         "ret",
	OpUnreachable: "unreachable",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpBr, OpCondBr, OpRet, OpUnreachable:
		return true
	}
	return false
}

// IsBinary reports whether op takes two like-typed integer operands.
func (op Opcode) IsBinary() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr:
		return true
	}
	return false
}

// IsUnary reports whether op takes one integer operand.
func (op Opcode) IsUnary() bool {
	return op == OpNeg || op == OpNot
}

// IsCompare reports whether op is a comparison producing i1.
func (op Opcode) IsCompare() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// HasSideEffects reports whether the instruction must be preserved even if
// its results are unused.
func (op Opcode) HasSideEffects() bool {
	switch op {
	case OpStore, OpCall, OpBr, OpCondBr, OpRet, OpUnreachable:
		return true
	}
	return false
}

// instData is the arena payload for one instruction. An instruction is
// owned by exactly one block; detaching it (dead-code elimination) clears
// the block reference but keeps the arena slot as a tombstone.
type instData struct {
	op      Opcode
	block   Block
	args    []Value
	results []Value
	loc     SourceLoc

	imm    int64  // OpConst
	callee string // OpCall: symbol of the callee

	// Terminator edges. OpBr uses then/thenArgs; OpCondBr uses all four
	// (args holds the condition).
	then     Block
	thenArgs []Value
	els      Block
	elsArgs  []Value
}
