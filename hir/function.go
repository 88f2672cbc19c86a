package hir

import "fmt"

// Signature is a function's ordered parameter and result types.
type Signature struct {
	Params  []Type
	Results []Type
}

// valueKind discriminates the two definition sites a Value can have.
type valueKind uint8

const (
	valueParam  valueKind = iota // block parameter
	valueResult                  // instruction result
)

// valueData is the arena payload for one SSA value.
type valueData struct {
	kind  valueKind
	typ   Type
	inst  Inst   // valueResult: defining instruction
	block Block  // valueParam: owning block
	num   uint16 // index among the instruction's results / block's params
}

// blockData is the arena payload for one basic block.
type blockData struct {
	params   []Value
	insts    []Inst // body instructions followed, once sealed, by the terminator
	sealed   bool
	detached bool
}

// Function is an ordered sequence of basic blocks in SSA form with block
// parameters. It owns all of its blocks, instructions and values; every
// cross-reference is an arena handle.
type Function struct {
	mod  *Module
	name string
	sig  Signature

	blocks arena[Block, blockData]
	insts  arena[Inst, instData]
	values arena[Value, valueData]

	layout []Block // block order; layout[0] is the entry block
}

// Name returns the function's symbol identity.
func (f *Function) Name() string { return f.name }

// Signature returns the function's signature.
func (f *Function) Signature() Signature { return f.sig }

// Module returns the owning module.
func (f *Function) Module() *Module { return f.mod }

// Types returns the module's interned type table.
func (f *Function) Types() *TypeTable { return f.mod.Types() }

// Entry returns the designated entry block, or NoBlock if the function has
// no blocks yet.
func (f *Function) Entry() Block {
	if len(f.layout) == 0 {
		return NoBlock
	}
	return f.layout[0]
}

// Blocks returns the blocks in layout order. The slice is owned by the
// function and must not be mutated.
func (f *Function) Blocks() []Block { return f.layout }

// NumValues returns the number of allocated values. Value handles are
// dense: 1..NumValues.
func (f *Function) NumValues() int { return f.values.len() }

// NumInsts returns the number of allocated instructions, tombstones
// included. Inst handles are dense: 1..NumInsts.
func (f *Function) NumInsts() int { return f.insts.len() }

// BlockParams returns the ordered parameters of b.
func (f *Function) BlockParams(b Block) []Value {
	return f.mustBlock(b).params
}

// BlockInsts returns the ordered instructions of b, terminator last once
// the block is sealed.
func (f *Function) BlockInsts(b Block) []Inst {
	return f.mustBlock(b).insts
}

// IsSealed reports whether b has its terminator set.
func (f *Function) IsSealed(b Block) bool {
	return f.mustBlock(b).sealed
}

// Terminator returns b's terminator instruction, or NoInst if the block is
// not sealed yet.
func (f *Function) Terminator(b Block) Inst {
	bd := f.mustBlock(b)
	if !bd.sealed || len(bd.insts) == 0 {
		return NoInst
	}
	return bd.insts[len(bd.insts)-1]
}

// Succs returns b's successor blocks in edge order (then before else).
func (f *Function) Succs(b Block) []Block {
	term := f.Terminator(b)
	if !term.IsValid() {
		return nil
	}
	id := f.mustInst(term)
	switch id.op {
	case OpBr:
		return []Block{id.then}
	case OpCondBr:
		return []Block{id.then, id.els}
	}
	return nil
}

// InstOp returns the opcode of i.
func (f *Function) InstOp(i Inst) Opcode { return f.mustInst(i).op }

// InstBlock returns the block owning i, or NoBlock if i was detached.
func (f *Function) InstBlock(i Inst) Block { return f.mustInst(i).block }

// InstArgs returns the ordered operand values of i. For OpCondBr this is
// the single condition; branch arguments are reported by InstEdges.
func (f *Function) InstArgs(i Inst) []Value { return f.mustInst(i).args }

// InstResults returns the ordered result values of i.
func (f *Function) InstResults(i Inst) []Value { return f.mustInst(i).results }

// InstLoc returns the source location metadata attached to i.
func (f *Function) InstLoc(i Inst) SourceLoc { return f.mustInst(i).loc }

// InstImm returns the immediate of an OpConst instruction.
func (f *Function) InstImm(i Inst) int64 { return f.mustInst(i).imm }

// InstCallee returns the callee symbol of an OpCall instruction.
func (f *Function) InstCallee(i Inst) string { return f.mustInst(i).callee }

// InstEdges returns the branch edges of a terminator: the then/else target
// blocks and their branch arguments. For OpBr only the then edge is set.
func (f *Function) InstEdges(i Inst) (then Block, thenArgs []Value, els Block, elsArgs []Value) {
	id := f.mustInst(i)
	return id.then, id.thenArgs, id.els, id.elsArgs
}

// EdgeArgs returns the branch arguments i passes along its edge to target.
func (f *Function) EdgeArgs(i Inst, target Block) []Value {
	id := f.mustInst(i)
	if id.then == target {
		return id.thenArgs
	}
	if id.els == target {
		return id.elsArgs
	}
	return nil
}

// ValueType returns the type of v.
func (f *Function) ValueType(v Value) Type { return f.mustValue(v).typ }

// ValueDefInst returns the instruction defining v, or NoInst if v is a
// block parameter.
func (f *Function) ValueDefInst(v Value) Inst {
	vd := f.mustValue(v)
	if vd.kind == valueResult {
		return vd.inst
	}
	return NoInst
}

// ValueDefBlock returns the block in which v is defined: the owning block
// for a parameter, the containing block for an instruction result.
func (f *Function) ValueDefBlock(v Value) Block {
	vd := f.mustValue(v)
	if vd.kind == valueParam {
		return vd.block
	}
	return f.mustInst(vd.inst).block
}

// IsBlockParam reports whether v is a block parameter.
func (f *Function) IsBlockParam(v Value) bool {
	return f.mustValue(v).kind == valueParam
}

// DetachInst removes i from its owning block, leaving a tombstone in the
// instruction arena. The handle stays allocated and resolvable; it is
// never reused. Terminators cannot be detached.
func (f *Function) DetachInst(i Inst) error {
	id := f.mustInst(i)
	if id.op.IsTerminator() {
		return fmt.Errorf("cannot detach terminator %s of %s", id.op, f.name)
	}
	if !id.block.IsValid() {
		return nil // already detached
	}
	bd := f.mustBlock(id.block)
	for n, bi := range bd.insts {
		if bi == i {
			bd.insts = append(bd.insts[:n], bd.insts[n+1:]...)
			break
		}
	}
	id.block = NoBlock
	return nil
}

// FoldToConst rewrites i in place into an OpConst with the given
// immediate. The instruction must have exactly one result, whose handle
// and type are preserved, so no uses need rewriting.
func (f *Function) FoldToConst(i Inst, imm int64) error {
	id := f.mustInst(i)
	if id.op.IsTerminator() {
		return fmt.Errorf("%s: cannot fold terminator %s", f.name, id.op)
	}
	if len(id.results) != 1 {
		return fmt.Errorf("%s: cannot fold %s with %d results", f.name, id.op, len(id.results))
	}
	if !f.mod.Types().IsInt(f.mustValue(id.results[0]).typ) {
		return fmt.Errorf("%s: cannot fold %s to a non-integer constant", f.name, id.op)
	}
	id.op = OpConst
	id.imm = imm
	id.args = nil
	return nil
}

// ReplaceAllUses rewrites every use of old (operands and branch arguments
// of attached instructions) to new. Definitions are untouched.
func (f *Function) ReplaceAllUses(old, new Value) {
	for n := 1; n <= f.insts.len(); n++ {
		id := f.insts.get(Inst(n))
		if !id.block.IsValid() {
			continue
		}
		replaceValue(id.args, old, new)
		replaceValue(id.thenArgs, old, new)
		replaceValue(id.elsArgs, old, new)
	}
}

func replaceValue(vs []Value, old, new Value) {
	for n, v := range vs {
		if v == old {
			vs[n] = new
		}
	}
}

func (f *Function) mustBlock(b Block) *blockData {
	bd := f.blocks.get(b)
	if bd == nil {
		panic(fmt.Sprintf("hir: function %s: invalid block handle %d", f.name, b))
	}
	return bd
}

func (f *Function) mustInst(i Inst) *instData {
	id := f.insts.get(i)
	if id == nil {
		panic(fmt.Sprintf("hir: function %s: invalid instruction handle %d", f.name, i))
	}
	return id
}

func (f *Function) mustValue(v Value) *valueData {
	vd := f.values.get(v)
	if vd == nil {
		panic(fmt.Sprintf("hir: function %s: invalid value handle %d", f.name, v))
	}
	return vd
}
