package hir

import "fmt"

// Builder constructs a function's IR with append-only operations. All
// operands are type-checked against the opcode's signature at build time;
// a block accepts instructions only until its terminator is set, after
// which it is sealed.
type Builder struct {
	fn  *Function
	loc SourceLoc
}

// NewBuilder creates a builder for fn.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// Func returns the function under construction.
func (b *Builder) Func() *Function { return b.fn }

// SetLoc sets the source location attached to subsequently appended
// instructions.
func (b *Builder) SetLoc(loc SourceLoc) { b.loc = loc }

// CreateBlock appends a new empty block to the function layout. The first
// block created is the entry block.
func (b *Builder) CreateBlock() Block {
	blk := b.fn.blocks.alloc(blockData{})
	b.fn.layout = append(b.fn.layout, blk)
	return blk
}

// CreateEntryBlock creates the entry block with one parameter per function
// signature parameter and returns the block and its parameter values.
func (b *Builder) CreateEntryBlock() (Block, []Value, error) {
	if len(b.fn.layout) != 0 {
		return NoBlock, nil, b.errf(NoBlock, "entry block already exists")
	}
	blk := b.CreateBlock()
	params := make([]Value, 0, len(b.fn.sig.Params))
	for _, t := range b.fn.sig.Params {
		v, err := b.AddBlockParam(blk, t)
		if err != nil {
			return NoBlock, nil, err
		}
		params = append(params, v)
	}
	return blk, params, nil
}

// AddBlockParam appends a parameter of type t to blk and returns its
// value. Parameters may be added to sealed blocks: structuring and
// transform passes adjust merge-point parameters after construction.
func (b *Builder) AddBlockParam(blk Block, t Type) (Value, error) {
	bd := b.fn.blocks.get(blk)
	if bd == nil {
		return NoValue, b.errf(blk, "unknown block")
	}
	if !b.types().contains(t) {
		return NoValue, b.errf(blk, "block parameter type %d is not interned", t)
	}
	v := b.fn.values.alloc(valueData{
		kind:  valueParam,
		typ:   t,
		block: blk,
		num:   uint16(len(bd.params)),
	})
	bd.params = append(bd.params, v)
	return v, nil
}

// Const appends an integer constant of type t.
func (b *Builder) Const(blk Block, t Type, imm int64) (Value, error) {
	if !b.types().IsInt(t) {
		return NoValue, b.errf(blk, "const requires an integer type, got %s", b.types().String(t))
	}
	results, err := b.append(blk, instData{op: OpConst, imm: imm}, t)
	if err != nil {
		return NoValue, err
	}
	return results[0], nil
}

// Binary appends a two-operand arithmetic/bitwise instruction. Both
// operands must share one integer type, which is also the result type.
func (b *Builder) Binary(blk Block, op Opcode, x, y Value) (Value, error) {
	if !op.IsBinary() {
		return NoValue, b.errf(blk, "%s is not a binary opcode", op)
	}
	tx, ty, err := b.operandTypes(blk, x, y)
	if err != nil {
		return NoValue, err
	}
	if tx != ty {
		return NoValue, b.errf(blk, "%s operand types differ: %s vs %s",
			op, b.types().String(tx), b.types().String(ty))
	}
	if !b.types().IsInt(tx) {
		return NoValue, b.errf(blk, "%s requires integer operands, got %s", op, b.types().String(tx))
	}
	results, err := b.append(blk, instData{op: op, args: []Value{x, y}}, tx)
	if err != nil {
		return NoValue, err
	}
	return results[0], nil
}

// Unary appends a one-operand instruction (neg, not).
func (b *Builder) Unary(blk Block, op Opcode, x Value) (Value, error) {
	if !op.IsUnary() {
		return NoValue, b.errf(blk, "%s is not a unary opcode", op)
	}
	tx, err := b.operandType(blk, x)
	if err != nil {
		return NoValue, err
	}
	if !b.types().IsInt(tx) {
		return NoValue, b.errf(blk, "%s requires an integer operand, got %s", op, b.types().String(tx))
	}
	results, err := b.append(blk, instData{op: op, args: []Value{x}}, tx)
	if err != nil {
		return NoValue, err
	}
	return results[0], nil
}

// Compare appends a comparison producing an i1 result.
func (b *Builder) Compare(blk Block, op Opcode, x, y Value) (Value, error) {
	if !op.IsCompare() {
		return NoValue, b.errf(blk, "%s is not a comparison opcode", op)
	}
	tx, ty, err := b.operandTypes(blk, x, y)
	if err != nil {
		return NoValue, err
	}
	if tx != ty {
		return NoValue, b.errf(blk, "%s operand types differ: %s vs %s",
			op, b.types().String(tx), b.types().String(ty))
	}
	if !b.types().IsInt(tx) {
		return NoValue, b.errf(blk, "%s requires integer operands, got %s", op, b.types().String(tx))
	}
	i1, err := b.types().Int(1)
	if err != nil {
		return NoValue, err
	}
	results, err := b.append(blk, instData{op: op, args: []Value{x, y}}, i1)
	if err != nil {
		return NoValue, err
	}
	return results[0], nil
}

// Load appends a load through ptr, producing the pointee.
func (b *Builder) Load(blk Block, ptr Value) (Value, error) {
	tp, err := b.operandType(blk, ptr)
	if err != nil {
		return NoValue, err
	}
	desc, ok := b.types().Desc(tp)
	if !ok || desc.Kind != TypePointer {
		return NoValue, b.errf(blk, "load requires a pointer operand, got %s", b.types().String(tp))
	}
	results, err := b.append(blk, instData{op: OpLoad, args: []Value{ptr}}, desc.Elem)
	if err != nil {
		return NoValue, err
	}
	return results[0], nil
}

// Store appends a store of val through ptr.
func (b *Builder) Store(blk Block, ptr, val Value) error {
	tp, tv, err := b.operandTypes(blk, ptr, val)
	if err != nil {
		return err
	}
	desc, ok := b.types().Desc(tp)
	if !ok || desc.Kind != TypePointer {
		return b.errf(blk, "store requires a pointer operand, got %s", b.types().String(tp))
	}
	if !b.types().IsAssignable(tv, desc.Elem) {
		return b.errf(blk, "store of %s through %s", b.types().String(tv), b.types().String(tp))
	}
	_, err = b.append(blk, instData{op: OpStore, args: []Value{ptr, val}})
	return err
}

// Call appends a call to another function in the same module, identified
// by symbol. The callee must already be declared so its signature can be
// checked.
func (b *Builder) Call(blk Block, callee string, args ...Value) ([]Value, error) {
	target := b.fn.mod.Function(callee)
	if target == nil {
		return nil, b.errf(blk, "call of undeclared function %q", callee)
	}
	sig := target.Signature()
	if len(args) != len(sig.Params) {
		return nil, b.errf(blk, "call of %q: %d arguments for %d parameters",
			callee, len(args), len(sig.Params))
	}
	for n, arg := range args {
		ta, err := b.operandType(blk, arg)
		if err != nil {
			return nil, err
		}
		if !b.types().IsAssignable(ta, sig.Params[n]) {
			return nil, b.errf(blk, "call of %q: argument %d is %s, want %s",
				callee, n, b.types().String(ta), b.types().String(sig.Params[n]))
		}
	}
	return b.append(blk, instData{op: OpCall, args: args, callee: callee}, sig.Results...)
}

// Br seals blk with an unconditional branch to target, passing args as the
// target's block arguments.
func (b *Builder) Br(blk, target Block, args ...Value) error {
	if err := b.checkEdge(blk, target, args); err != nil {
		return err
	}
	return b.terminate(blk, instData{op: OpBr, then: target, thenArgs: args})
}

// CondBr seals blk with a conditional branch on cond (an i1 value).
func (b *Builder) CondBr(blk Block, cond Value, then Block, thenArgs []Value, els Block, elsArgs []Value) error {
	tc, err := b.operandType(blk, cond)
	if err != nil {
		return err
	}
	i1, err := b.types().Int(1)
	if err != nil {
		return err
	}
	if tc != i1 {
		return b.errf(blk, "condbr condition is %s, want i1", b.types().String(tc))
	}
	if then == els {
		return b.errf(blk, "condbr successors must be distinct blocks")
	}
	if err := b.checkEdge(blk, then, thenArgs); err != nil {
		return err
	}
	if err := b.checkEdge(blk, els, elsArgs); err != nil {
		return err
	}
	return b.terminate(blk, instData{
		op:       OpCondBr,
		args:     []Value{cond},
		then:     then,
		thenArgs: thenArgs,
		els:      els,
		elsArgs:  elsArgs,
	})
}

// Ret seals blk with a return of args, which must match the function's
// result types.
func (b *Builder) Ret(blk Block, args ...Value) error {
	if len(args) != len(b.fn.sig.Results) {
		return b.errf(blk, "ret with %d values for %d results", len(args), len(b.fn.sig.Results))
	}
	for n, arg := range args {
		ta, err := b.operandType(blk, arg)
		if err != nil {
			return err
		}
		if !b.types().IsAssignable(ta, b.fn.sig.Results[n]) {
			return b.errf(blk, "ret value %d is %s, want %s",
				n, b.types().String(ta), b.types().String(b.fn.sig.Results[n]))
		}
	}
	return b.terminate(blk, instData{op: OpRet, args: args})
}

// Unreachable seals blk with an unreachable terminator.
func (b *Builder) Unreachable(blk Block) error {
	return b.terminate(blk, instData{op: OpUnreachable})
}

// checkEdge verifies branch arguments against the target's parameters.
// Targets gain parameters only through AddBlockParam, which may happen
// after this edge is built; Validate re-checks all edges afterwards.
func (b *Builder) checkEdge(blk, target Block, args []Value) error {
	td := b.fn.blocks.get(target)
	if td == nil {
		return b.errf(blk, "branch to unknown block %d", target)
	}
	if len(td.params) == 0 && len(args) == 0 {
		return nil
	}
	if len(args) != len(td.params) {
		return b.errf(blk, "branch to block%d with %d arguments for %d parameters",
			target, len(args), len(td.params))
	}
	for n, arg := range args {
		ta, err := b.operandType(blk, arg)
		if err != nil {
			return err
		}
		tp := b.fn.mustValue(td.params[n]).typ
		if !b.types().IsAssignable(ta, tp) {
			return b.errf(blk, "branch argument %d is %s, want %s",
				n, b.types().String(ta), b.types().String(tp))
		}
	}
	return nil
}

// append allocates an instruction and its result values inside blk.
func (b *Builder) append(blk Block, data instData, resultTypes ...Type) ([]Value, error) {
	bd := b.fn.blocks.get(blk)
	if bd == nil {
		return nil, b.errf(blk, "unknown block")
	}
	if bd.sealed {
		return nil, b.errf(blk, "append to sealed block")
	}
	data.block = blk
	data.loc = b.loc
	i := b.fn.insts.alloc(data)
	id := b.fn.insts.get(i)
	for n, t := range resultTypes {
		v := b.fn.values.alloc(valueData{
			kind: valueResult,
			typ:  t,
			inst: i,
			num:  uint16(n),
		})
		id.results = append(id.results, v)
	}
	bd.insts = append(bd.insts, i)
	return id.results, nil
}

// terminate appends the terminator and seals the block.
func (b *Builder) terminate(blk Block, data instData) error {
	if _, err := b.append(blk, data); err != nil {
		return err
	}
	b.fn.blocks.get(blk).sealed = true
	return nil
}

func (b *Builder) operandType(blk Block, v Value) (Type, error) {
	vd := b.fn.values.get(v)
	if vd == nil {
		return NoType, b.errf(blk, "operand references unknown value %d", v)
	}
	return vd.typ, nil
}

func (b *Builder) operandTypes(blk Block, x, y Value) (Type, Type, error) {
	tx, err := b.operandType(blk, x)
	if err != nil {
		return NoType, NoType, err
	}
	ty, err := b.operandType(blk, y)
	if err != nil {
		return NoType, NoType, err
	}
	return tx, ty, nil
}

func (b *Builder) types() *TypeTable { return b.fn.mod.Types() }

func (b *Builder) errf(blk Block, format string, args ...any) error {
	return &BuilderError{
		Func:  b.fn.name,
		Block: blk,
		Loc:   b.loc,
		Msg:   fmt.Sprintf(format, args...),
	}
}

// Validate checks the structural invariants of a fully built function:
// every block is sealed and every predecessor edge supplies exactly one
// type-matched argument per block parameter.
func (f *Function) Validate() error {
	if len(f.layout) == 0 {
		return &BuilderError{Func: f.name, Msg: "function has no blocks"}
	}
	tt := f.mod.Types()
	for _, blk := range f.layout {
		bd := f.mustBlock(blk)
		if !bd.sealed {
			return &BuilderError{Func: f.name, Block: blk, Msg: "block has no terminator"}
		}
		term := bd.insts[len(bd.insts)-1]
		id := f.mustInst(term)
		edges := [][2]any{{id.then, id.thenArgs}, {id.els, id.elsArgs}}
		for _, e := range edges {
			target := e[0].(Block)
			if !target.IsValid() {
				continue
			}
			args := e[1].([]Value)
			params := f.mustBlock(target).params
			if len(args) != len(params) {
				return &BuilderError{
					Func: f.name, Block: blk, Loc: id.loc,
					Msg: fmt.Sprintf("edge to block%d supplies %d arguments for %d parameters",
						target, len(args), len(params)),
				}
			}
			for n := range args {
				ta := f.mustValue(args[n]).typ
				tp := f.mustValue(params[n]).typ
				if !tt.IsAssignable(ta, tp) {
					return &BuilderError{
						Func: f.name, Block: blk, Loc: id.loc,
						Msg: fmt.Sprintf("edge to block%d argument %d is %s, want %s",
							target, n, tt.String(ta), tt.String(tp)),
					}
				}
			}
		}
	}
	return nil
}
