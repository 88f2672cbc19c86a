// Package masm defines the stack-machine assembly the code generator
// targets: a structured instruction set with no jumps, operating on an
// implicit operand stack plus per-activation local slots.
package masm

// Op is a stack-machine opcode.
type Op uint8

const (
	ONop Op = iota

	// Stack manipulation.
	OPush // push immediate
	ODup  // duplicate the top of stack
	OSwap // exchange the top two stack entries
	ODrop // discard the top of stack

	// Local slots.
	OLocLoad  // push the value held in local slot Slot
	OLocStore // pop the top of stack into local slot Slot

	// Arithmetic and bitwise, operating on the top one or two entries.
	OAdd
	OSub
	OMul
	ODiv
	OMod
	ONeg
	OAnd
	OOr
	OXor
	ONot
	OShl
	OShr

	// Comparisons; push 1 or 0.
	OEq
	ONeq
	OLt
	OLte
	OGt
	OGte

	// Memory, address on top of stack (store pops value then address).
	OLoad
	OStore

	// Calls and termination.
	OCall        // pops arguments, pushes results
	ORet         // pops the function's results
	OUnreachable // traps

	// Structured control. Every IIf/ILoop is closed by a matching OEnd;
	// OElse may appear once between an OIf and its OEnd.
	OIf   // pops the condition; enters the true arm when nonzero
	OElse // separates the false arm
	OLoop // enters a repeatable body
	OEnd  // closes the innermost OIf or OLoop

	// Loop transfers, valid only inside an OLoop body. The *If forms pop
	// a condition and transfer only when it matches.
	OBreak      // exit the innermost loop
	OBreakIf    // exit when popped condition is nonzero
	OBreakIfZ   // exit when popped condition is zero
	OContinue   // restart the innermost loop
	OContinueIf // restart when popped condition is nonzero
	OContinueIfZ
)

var opNames = [...]string{
	ONop:         "nop",
	OPush:        "push",
	ODup:         "dup",
	OSwap:        "swap",
	ODrop:        "drop",
	OLocLoad:     "loc.load",
	OLocStore:    "loc.store",
	OAdd:         "add",
	OSub:         "sub",
	OMul:         "mul",
	ODiv:         "div",
	OMod:         "mod",
	ONeg:         "neg",
	OAnd:         "and",
	OOr:          "or",
	OXor:         "xor",
	ONot:         "not",
	OShl:         "shl",
	OShr:         "shr",
	OEq:          "eq",
	ONeq:         "neq",
	OLt:          "lt",
	OLte:         "lte",
	OGt:          "gt",
	OGte:         "gte",
	OLoad:        "load",
	OStore:       "store",
	OCall:        "call",
	ORet:         "ret",
	OUnreachable: "unreachable",
	OIf:          "if",
	OElse:        "else",
	OLoop:        "loop",
	OEnd:         "end",
	OBreak:       "break",
	OBreakIf:     "break.if",
	OBreakIfZ:    "break.ifz",
	OContinue:    "continue",
	OContinueIf:  "continue.if",
	OContinueIfZ: "continue.ifz",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// Opens reports whether op begins a nested construct closed by OEnd.
func (op Op) Opens() bool { return op == OIf || op == OLoop }

// IsBreak reports whether op is one of the break forms.
func (op Op) IsBreak() bool {
	return op == OBreak || op == OBreakIf || op == OBreakIfZ
}

// IsContinue reports whether op is one of the continue forms.
func (op Op) IsContinue() bool {
	return op == OContinue || op == OContinueIf || op == OContinueIfZ
}
