package wasm

import (
	"github.com/wasmlite/wasmlite/util"
)

// BranchTarget is the resolved destination of a br/br_if instruction (or
// one arm of a br_table): where in the function body execution resumes,
// how many values are carried across the branch, and the operand-stack
// height those values must land on.
type BranchTarget struct {
	Offset      int
	Arity       int
	StackHeight int
}

// CompiledFunc is the validated, execution-ready form of one function
// body. The validator resolves every branch's target up front so the
// interpreter never has to re-scan bytecode to find a matching `end`.
type CompiledFunc struct {
	Type       FuncType
	LocalTypes []ValueType // declared locals only, run-length expanded

	Body []byte

	MaxStackHeight int

	// Branches maps the byte offset of a br or br_if instruction (the
	// offset of the opcode itself) to its resolved target.
	Branches map[int]BranchTarget

	// BrTables maps the byte offset of a br_table instruction to the
	// resolved targets for its vector of labels, default target last.
	BrTables map[int][]BranchTarget

	// ElseTargets maps the byte offset of an `if` instruction to the
	// offset execution should jump to when the condition is false: the
	// matching `else`'s first instruction, or the matching `end` if the
	// if has no else.
	ElseTargets map[int]int

	// SkipElseTargets maps the byte offset of an `else` instruction to
	// the offset just past its matching `end`, for when execution falls
	// through into the else marker having taken the `if` branch (the
	// else's body must not run in that case).
	SkipElseTargets map[int]int
}

// blockKind distinguishes the three structured control instructions.
type blockKind int

const (
	blockPlain blockKind = iota
	blockLoop
	blockIf
)

// ctrlFrame is one entry of the control-frame stack maintained while
// validating a function body, mirroring the algorithm in the
// WebAssembly specification's validation appendix.
type ctrlFrame struct {
	kind        blockKind
	blockType   int64 // BlockTypeEmpty, or a ValueType widened to int64
	startHeight int   // operand-stack height at frame entry
	unreachable bool

	startOffset int // offset of the block/loop/if opcode itself
	elseSeen    bool
	elseOffset  int // offset of the matching else opcode, if elseSeen

	// pending collects offsets of br/br_if instructions (and, for
	// br_table, (offset,armIndex) pairs) that branch to this frame and
	// are awaiting the frame's end offset to resolve their target.
	pending []pendingBranch
}

type pendingBranch struct {
	offset int
	arm    int // index into BrTables[offset], or -1 for br/br_if
}

func (f *ctrlFrame) arity() int {
	if f.kind == blockLoop {
		return 0
	}
	if f.blockType == BlockTypeEmpty {
		return 0
	}
	return 1
}

func (f *ctrlFrame) resultType() (ValueType, bool) {
	if f.blockType == BlockTypeEmpty {
		return 0, false
	}
	return ValueType(f.blockType), true
}

// validator holds the mutable state threaded through one function
// body's validation pass.
type validator struct {
	m        *Module
	funcType FuncType
	locals   []ValueType // params followed by declared locals, full index space

	opStack  []ValueType
	ctrl     []ctrlFrame

	height    int
	maxHeight int

	compiled CompiledFunc
}

// validateConstExpr enforces the constant-expression grammar used by
// global initializers and element/data segment offsets: a global.get
// operand must name an imported, immutable global. A locally defined
// global isn't valid here because its own initializer may not have run
// yet, and a mutable global isn't valid because its value could later
// change independently of the expression that captured it.
func validateConstExpr(m *Module, ce ConstExpr) error {
	if ce.Kind != ConstGlobalGet {
		return nil
	}
	if int(ce.GlobalIndex) >= m.NumImportedGlobals() {
		return invalid("constant expression: global.get %d does not reference an imported global", ce.GlobalIndex)
	}
	gt, _ := importedGlobalType(m, ce.GlobalIndex)
	if gt.Mutable {
		return invalid("constant expression: global.get %d references a mutable global", ce.GlobalIndex)
	}
	return nil
}

func importedGlobalType(m *Module, idx uint32) (GlobalType, bool) {
	n := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != ExternalGlobal {
			continue
		}
		if n == idx {
			return imp.Desc.GlobalType, true
		}
		n++
	}
	return GlobalType{}, false
}

// Validate statically verifies every locally defined function body in m
// and populates m.Compiled. It must be called after Parse and before the
// module is handed to runtime.Instantiate.
func Validate(m *Module) error {
	for _, g := range m.Globals {
		if err := validateConstExpr(m, g.Init); err != nil {
			return err
		}
	}
	for _, seg := range m.Elements {
		if err := validateConstExpr(m, seg.Offset); err != nil {
			return err
		}
	}
	for _, seg := range m.Data {
		if err := validateConstExpr(m, seg.Offset); err != nil {
			return err
		}
	}

	m.Compiled = make([]CompiledFunc, len(m.Code))
	for i, code := range m.Code {
		ft := m.Types[m.FuncTypeIndices[i]]
		locals := append(append([]ValueType{}, ft.Params...), expandLocals(code.Locals)...)

		v := &validator{
			m:        m,
			funcType: ft,
			locals:   locals,
			compiled: CompiledFunc{
				Type:            ft,
				LocalTypes:      expandLocals(code.Locals),
				Body:            code.Body,
				Branches:        map[int]BranchTarget{},
				BrTables:        map[int][]BranchTarget{},
				ElseTargets:     map[int]int{},
				SkipElseTargets: map[int]int{},
			},
		}
		if err := v.run(); err != nil {
			return err
		}
		v.compiled.MaxStackHeight = v.maxHeight
		m.Compiled[i] = v.compiled
	}
	return nil
}

func expandLocals(decls []Local) []ValueType {
	var out []ValueType
	for _, d := range decls {
		for i := uint32(0); i < d.Count; i++ {
			out = append(out, d.Type)
		}
	}
	return out
}

func (v *validator) pushVal(t ValueType) {
	v.opStack = append(v.opStack, t)
	v.height++
	if v.height > v.maxHeight {
		v.maxHeight = v.height
	}
}

// markUnreachable marks the stack as polymorphic for the remainder of the
// current frame: after `unreachable`, any sequence of pops/pushes is
// permitted because the code can never actually execute.
func (v *validator) markUnreachable() {
	top := &v.ctrl[len(v.ctrl)-1]
	v.opStack = v.opStack[:top.startHeight]
	v.height = top.startHeight
	top.unreachable = true
}

// popVal pops one value, requiring it match want unless want is the
// zero-value sentinel (unconstrained); it tolerates underflow only
// while the current frame is marked unreachable (polymorphic stack).
func (v *validator) popVal(want ValueType) (ValueType, error) {
	top := &v.ctrl[len(v.ctrl)-1]
	if v.height == top.startHeight {
		if top.unreachable {
			return want, nil
		}
		return 0, invalid("operand stack underflow")
	}
	got := v.opStack[len(v.opStack)-1]
	v.opStack = v.opStack[:len(v.opStack)-1]
	v.height--
	if want != 0 && got != want {
		return 0, invalid("type mismatch: expected %s, got %s", want, got)
	}
	return got, nil
}

func (v *validator) popExpect(types ...ValueType) error {
	for i := len(types) - 1; i >= 0; i-- {
		if _, err := v.popVal(types[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) pushFrame(kind blockKind, blockType int64, startOffset int) {
	v.ctrl = append(v.ctrl, ctrlFrame{
		kind:        kind,
		blockType:   blockType,
		startHeight: v.height,
		startOffset: startOffset,
	})
}

// popFrame closes the current control frame, checking its declared
// result (if any) is present on the stack, and resolves every pending
// branch that targeted it.
func (v *validator) popFrame(endOffset int) (ctrlFrame, error) {
	top := v.ctrl[len(v.ctrl)-1]
	if rt, ok := top.resultType(); ok {
		if _, err := v.popVal(rt); err != nil {
			return top, err
		}
	}
	if v.height != top.startHeight {
		return top, invalid("block exits with unbalanced operand stack")
	}
	v.ctrl = v.ctrl[:len(v.ctrl)-1]

	target := BranchTarget{
		Offset:      endOffset,
		Arity:       top.arity(),
		StackHeight: top.startHeight,
	}
	for _, p := range top.pending {
		if p.arm < 0 {
			v.compiled.Branches[p.offset] = target
		} else {
			v.compiled.BrTables[p.offset][p.arm] = target
		}
	}
	return top, nil
}

// labelTarget resolves (or, for forward references, registers a pending
// resolution for) the branch target `depth` labels out from the current
// instruction position.
func (v *validator) labelTarget(depth int, offset, arm int) (BranchTarget, bool) {
	if depth >= len(v.ctrl) {
		return BranchTarget{}, false
	}
	frame := &v.ctrl[len(v.ctrl)-1-depth]
	if frame.kind == blockLoop {
		return BranchTarget{
			Offset:      frame.startOffset,
			Arity:       0,
			StackHeight: frame.startHeight,
		}, true
	}
	frame.pending = append(frame.pending, pendingBranch{offset: offset, arm: arm})
	return BranchTarget{}, false
}

func (v *validator) labelArity(depth int) (int, error) {
	if depth >= len(v.ctrl) {
		return 0, invalid("branch depth %d out of range", depth)
	}
	return v.ctrl[len(v.ctrl)-1-depth].arity(), nil
}

// run executes the validation algorithm over the whole function body.
func (v *validator) run() error {
	v.pushFrame(blockPlain, blockTypeOf(v.funcType), -1)

	r := util.NewByteReader(v.compiled.Body)
	for r.Len() > 0 {
		offset := r.Pos()
		opByte, err := r.ReadByte()
		if err != nil {
			return malformed("truncated instruction")
		}
		op := Op(opByte)

		switch op {
		case OpUnreachable:
			v.markUnreachable()

		case OpNop:

		case OpBlock, OpLoop, OpIf:
			bt, err := readBlockType(r)
			if err != nil {
				return err
			}
			if op == OpIf {
				if err := v.popExpect(I32); err != nil {
					return err
				}
			}
			kind := blockPlain
			if op == OpLoop {
				kind = blockLoop
			} else if op == OpIf {
				kind = blockIf
			}
			v.pushFrame(kind, bt, offset)

		case OpElse:
			top := &v.ctrl[len(v.ctrl)-1]
			if top.kind != blockIf {
				return invalid("else without matching if")
			}
			if rt, ok := top.resultType(); ok {
				if _, err := v.popVal(rt); err != nil {
					return err
				}
			}
			if v.height != top.startHeight {
				return invalid("if branch exits with unbalanced operand stack")
			}
			v.compiled.ElseTargets[top.startOffset] = offset + 1
			top.elseSeen = true
			top.elseOffset = offset
			top.unreachable = false
			v.opStack = v.opStack[:top.startHeight]
			v.height = top.startHeight

		case OpEnd:
			top := v.ctrl[len(v.ctrl)-1]
			if top.kind == blockIf && !top.elseSeen {
				if top.blockType != BlockTypeEmpty {
					return invalid("if without else must not produce a value")
				}
				v.compiled.ElseTargets[top.startOffset] = offset
			}
			if top.kind == blockIf && top.elseSeen {
				v.compiled.SkipElseTargets[top.elseOffset] = offset + 1
			}
			closed, err := v.popFrame(offset + 1)
			if err != nil {
				return err
			}
			if len(v.ctrl) == 0 {
				if r.Len() != 0 {
					return malformed("code after function end")
				}
				return nil
			}
			if rt, ok := closed.resultType(); ok {
				v.pushVal(rt)
			}

		case OpBr:
			depth, err := r.ReadU32()
			if err != nil {
				return malformed("truncated br label")
			}
			arity, err := v.labelArity(int(depth))
			if err != nil {
				return err
			}
			if err := v.popArity(arity); err != nil {
				return err
			}
			v.resolveBranch(int(depth), offset, -1)
			v.markUnreachable()

		case OpBrIf:
			depth, err := r.ReadU32()
			if err != nil {
				return malformed("truncated br_if label")
			}
			if err := v.popExpect(I32); err != nil {
				return err
			}
			arity, err := v.labelArity(int(depth))
			if err != nil {
				return err
			}
			vals, err := v.popArityPeek(arity)
			if err != nil {
				return err
			}
			v.resolveBranch(int(depth), offset, -1)
			v.pushVals(vals)

		case OpBrTable:
			n, err := r.ReadU32()
			if err != nil {
				return malformed("truncated br_table count")
			}
			depths := make([]uint32, n+1)
			for i := range depths {
				if depths[i], err = r.ReadU32(); err != nil {
					return malformed("truncated br_table label")
				}
			}
			defaultArity, err := v.labelArity(int(depths[n]))
			if err != nil {
				return err
			}
			for _, d := range depths[:n] {
				a, err := v.labelArity(int(d))
				if err != nil {
					return err
				}
				if a != defaultArity {
					return invalid("br_table labels have inconsistent arity")
				}
			}
			if err := v.popExpect(I32); err != nil {
				return err
			}
			if err := v.popArity(defaultArity); err != nil {
				return err
			}
			targets := make([]BranchTarget, len(depths))
			v.compiled.BrTables[offset] = targets
			for i, d := range depths {
				v.resolveBranch(int(d), offset, i)
			}
			v.markUnreachable()

		case OpReturn:
			if err := v.popArity(len(v.funcType.Results)); err != nil {
				return err
			}
			v.markUnreachable()

		case OpCall:
			idx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated call index")
			}
			ft, ok := v.m.FuncTypeOf(idx)
			if !ok {
				return invalid("call: function index %d out of range", idx)
			}
			if err := v.popExpect(ft.Params...); err != nil {
				return err
			}
			v.pushVals(ft.Results)

		case OpCallIndirect:
			typeIdx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated call_indirect type index")
			}
			if int(typeIdx) >= len(v.m.Types) {
				return invalid("call_indirect: type index %d out of range", typeIdx)
			}
			tableByte, err := r.ReadByte()
			if err != nil || tableByte != 0 {
				return malformed("call_indirect: reserved table index must be 0")
			}
			if v.m.Table == nil && v.m.ImportedTableIndex < 0 {
				return invalid("call_indirect requires a table")
			}
			if err := v.popExpect(I32); err != nil {
				return err
			}
			ft := v.m.Types[typeIdx]
			if err := v.popExpect(ft.Params...); err != nil {
				return err
			}
			v.pushVals(ft.Results)

		case OpDrop:
			if _, err := v.popVal(0); err != nil {
				return err
			}

		case OpSelect:
			if err := v.popExpect(I32); err != nil {
				return err
			}
			b, err := v.popVal(0)
			if err != nil {
				return err
			}
			if _, err := v.popVal(b); err != nil {
				return err
			}
			v.pushVal(b)

		case OpLocalGet:
			idx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated local index")
			}
			t, err := v.localType(idx)
			if err != nil {
				return err
			}
			v.pushVal(t)

		case OpLocalSet, OpLocalTee:
			idx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated local index")
			}
			t, err := v.localType(idx)
			if err != nil {
				return err
			}
			if _, err := v.popVal(t); err != nil {
				return err
			}
			if op == OpLocalTee {
				v.pushVal(t)
			}

		case OpGlobalGet:
			idx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated global index")
			}
			gt, err := v.globalType(idx)
			if err != nil {
				return err
			}
			v.pushVal(gt.Type)

		case OpGlobalSet:
			idx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated global index")
			}
			gt, err := v.globalType(idx)
			if err != nil {
				return err
			}
			if !gt.Mutable {
				return invalid("global.set on immutable global %d", idx)
			}
			if _, err := v.popVal(gt.Type); err != nil {
				return err
			}

		case OpMemorySize, OpMemoryGrow:
			if err := v.requireMemory(); err != nil {
				return err
			}
			b, err := r.ReadByte()
			if err != nil || b != 0 {
				return malformed("reserved memory byte must be 0")
			}
			if op == OpMemoryGrow {
				if err := v.popExpect(I32); err != nil {
					return err
				}
			}
			v.pushVal(I32)

		case OpI32Const:
			if _, err := r.ReadI32(); err != nil {
				return malformed("truncated i32.const")
			}
			v.pushVal(I32)
		case OpI64Const:
			if _, err := r.ReadI64(); err != nil {
				return malformed("truncated i64.const")
			}
			v.pushVal(I64)
		case OpF32Const:
			if _, err := r.ReadN(4); err != nil {
				return malformed("truncated f32.const")
			}
			v.pushVal(F32)
		case OpF64Const:
			if _, err := r.ReadN(8); err != nil {
				return malformed("truncated f64.const")
			}
			v.pushVal(F64)

		default:
			if err := v.validateSimple(op, r, offset); err != nil {
				return err
			}
		}
	}
	return invalid("function body missing end")
}

func (v *validator) popArity(n int) error {
	for i := 0; i < n; i++ {
		if _, err := v.popVal(0); err != nil {
			return err
		}
	}
	return nil
}

// popArityPeek pops n values (checking none, since br_if's carried
// values are untyped at this generic layer) and returns them so they
// can be pushed back, since br_if does not unconditionally exit the
// block.
func (v *validator) popArityPeek(n int) ([]ValueType, error) {
	vals := make([]ValueType, n)
	for i := n - 1; i >= 0; i-- {
		t, err := v.popVal(0)
		if err != nil {
			return nil, err
		}
		vals[i] = t
	}
	return vals, nil
}

func (v *validator) pushVals(ts []ValueType) {
	for _, t := range ts {
		v.pushVal(t)
	}
}

func (v *validator) resolveBranch(depth, offset, arm int) {
	if arm >= 0 {
		if target, ok := v.labelTarget(depth, offset, arm); ok {
			v.compiled.BrTables[offset][arm] = target
		}
		return
	}
	if target, ok := v.labelTarget(depth, offset, -1); ok {
		v.compiled.Branches[offset] = target
	}
}

func (v *validator) localType(idx uint32) (ValueType, error) {
	if int(idx) >= len(v.locals) {
		return 0, invalid("local index %d out of range", idx)
	}
	return v.locals[idx], nil
}

func (v *validator) globalType(idx uint32) (GlobalType, error) {
	n := 0
	for _, imp := range v.m.Imports {
		if imp.Desc.Kind != ExternalGlobal {
			continue
		}
		if n == int(idx) {
			return imp.Desc.GlobalType, nil
		}
		n++
	}
	local := int(idx) - n
	if local < 0 || local >= len(v.m.Globals) {
		return GlobalType{}, invalid("global index %d out of range", idx)
	}
	return v.m.Globals[local].Type, nil
}

func (v *validator) requireMemory() error {
	if v.m.Memory == nil && v.m.ImportedMemoryIndex < 0 {
		return invalid("instruction requires a memory")
	}
	return nil
}

// loadStoreOperand reads a memarg (align, offset) and enforces the
// alignment-bound-by-natural-size rule.
func (v *validator) loadStoreOperand(r *util.ByteReader, naturalAlign uint32) error {
	if err := v.requireMemory(); err != nil {
		return err
	}
	align, err := r.ReadU32()
	if err != nil {
		return malformed("truncated memarg align")
	}
	if align > naturalAlign {
		return invalid("alignment must not exceed natural alignment")
	}
	if _, err := r.ReadU32(); err != nil {
		return malformed("truncated memarg offset")
	}
	return nil
}

// validateSimple handles every numeric/memory opcode whose stack effect
// is a fixed (pop..., push...) signature with no control-flow or
// immediate-index side effects beyond an optional memarg.
func (v *validator) validateSimple(op Op, r *util.ByteReader, offset int) error {
	switch op {
	case OpI32Load:
		if err := v.loadStoreOperand(r, 2); err != nil {
			return err
		}
		return v.unaryLoad(I32, I32)
	case OpI64Load:
		if err := v.loadStoreOperand(r, 3); err != nil {
			return err
		}
		return v.unaryLoad(I32, I64)
	case OpF32Load:
		if err := v.loadStoreOperand(r, 2); err != nil {
			return err
		}
		return v.unaryLoad(I32, F32)
	case OpF64Load:
		if err := v.loadStoreOperand(r, 3); err != nil {
			return err
		}
		return v.unaryLoad(I32, F64)
	case OpI32Load8S, OpI32Load8U:
		if err := v.loadStoreOperand(r, 0); err != nil {
			return err
		}
		return v.unaryLoad(I32, I32)
	case OpI32Load16S, OpI32Load16U:
		if err := v.loadStoreOperand(r, 1); err != nil {
			return err
		}
		return v.unaryLoad(I32, I32)
	case OpI64Load8S, OpI64Load8U:
		if err := v.loadStoreOperand(r, 0); err != nil {
			return err
		}
		return v.unaryLoad(I32, I64)
	case OpI64Load16S, OpI64Load16U:
		if err := v.loadStoreOperand(r, 1); err != nil {
			return err
		}
		return v.unaryLoad(I32, I64)
	case OpI64Load32S, OpI64Load32U:
		if err := v.loadStoreOperand(r, 2); err != nil {
			return err
		}
		return v.unaryLoad(I32, I64)

	case OpI32Store:
		if err := v.loadStoreOperand(r, 2); err != nil {
			return err
		}
		return v.store(I32, I32)
	case OpI64Store:
		if err := v.loadStoreOperand(r, 3); err != nil {
			return err
		}
		return v.store(I32, I64)
	case OpF32Store:
		if err := v.loadStoreOperand(r, 2); err != nil {
			return err
		}
		return v.store(I32, F32)
	case OpF64Store:
		if err := v.loadStoreOperand(r, 3); err != nil {
			return err
		}
		return v.store(I32, F64)
	case OpI32Store8:
		if err := v.loadStoreOperand(r, 0); err != nil {
			return err
		}
		return v.store(I32, I32)
	case OpI32Store16:
		if err := v.loadStoreOperand(r, 1); err != nil {
			return err
		}
		return v.store(I32, I32)
	case OpI64Store8:
		if err := v.loadStoreOperand(r, 0); err != nil {
			return err
		}
		return v.store(I32, I64)
	case OpI64Store16:
		if err := v.loadStoreOperand(r, 1); err != nil {
			return err
		}
		return v.store(I32, I64)
	case OpI64Store32:
		if err := v.loadStoreOperand(r, 2); err != nil {
			return err
		}
		return v.store(I32, I64)

	case OpI32Eqz:
		return v.unary(I32, I32)
	case OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU:
		return v.binary(I32, I32, I32)
	case OpI64Eqz:
		return v.unary(I64, I32)
	case OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU:
		return v.binary(I64, I64, I32)
	case OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge:
		return v.binary(F32, F32, I32)
	case OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge:
		return v.binary(F64, F64, I32)

	case OpI32Clz, OpI32Ctz, OpI32Popcnt:
		return v.unary(I32, I32)
	case OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr:
		return v.binary(I32, I32, I32)

	case OpI64Clz, OpI64Ctz, OpI64Popcnt:
		return v.unary(I64, I64)
	case OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr:
		return v.binary(I64, I64, I64)

	case OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt:
		return v.unary(F32, F32)
	case OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign:
		return v.binary(F32, F32, F32)

	case OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt:
		return v.unary(F64, F64)
	case OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign:
		return v.binary(F64, F64, F64)

	case OpI32WrapI64:
		return v.unary(I64, I32)
	case OpI32TruncF32S, OpI32TruncF32U:
		return v.unary(F32, I32)
	case OpI32TruncF64S, OpI32TruncF64U:
		return v.unary(F64, I32)
	case OpI64ExtendI32S, OpI64ExtendI32U:
		return v.unary(I32, I64)
	case OpI64TruncF32S, OpI64TruncF32U:
		return v.unary(F32, I64)
	case OpI64TruncF64S, OpI64TruncF64U:
		return v.unary(F64, I64)
	case OpF32ConvertI32S, OpF32ConvertI32U:
		return v.unary(I32, F32)
	case OpF32ConvertI64S, OpF32ConvertI64U:
		return v.unary(I64, F32)
	case OpF32DemoteF64:
		return v.unary(F64, F32)
	case OpF64ConvertI32S, OpF64ConvertI32U:
		return v.unary(I32, F64)
	case OpF64ConvertI64S, OpF64ConvertI64U:
		return v.unary(I64, F64)
	case OpF64PromoteF32:
		return v.unary(F32, F64)
	case OpI32ReinterpretF32:
		return v.unary(F32, I32)
	case OpI64ReinterpretF64:
		return v.unary(F64, I64)
	case OpF32ReinterpretI32:
		return v.unary(I32, F32)
	case OpF64ReinterpretI64:
		return v.unary(I64, F64)

	default:
		return invalid("unknown opcode 0x%x at offset %d", byte(op), offset)
	}
}

func (v *validator) unary(in, out ValueType) error {
	if err := v.popExpect(in); err != nil {
		return err
	}
	v.pushVal(out)
	return nil
}

func (v *validator) unaryLoad(addr, out ValueType) error {
	if err := v.popExpect(addr); err != nil {
		return err
	}
	v.pushVal(out)
	return nil
}

func (v *validator) store(addr, val ValueType) error {
	return v.popExpect(addr, val)
}

func (v *validator) binary(a, b, out ValueType) error {
	if err := v.popExpect(a, b); err != nil {
		return err
	}
	v.pushVal(out)
	return nil
}

func blockTypeOf(ft FuncType) int64 {
	if len(ft.Results) == 0 {
		return BlockTypeEmpty
	}
	return int64(ft.Results[0])
}

// readBlockType decodes a blocktype immediate. Per the binary format, a
// blocktype is a signed LEB128 value: the value type bytes (0x7F, 0x7E,
// 0x7D, 0x7C) and the empty marker (0x40) are themselves valid one-byte
// signed LEB128 encodings of small negative numbers (-1, -2, -3, -4,
// -0x40 respectively), so decoding as a plain signed integer and
// mapping those five values recovers the blocktype without a special
// case in the LEB128 reader itself.
func readBlockType(r *util.ByteReader) (int64, error) {
	v, err := r.ReadI32()
	if err != nil {
		return 0, malformed("truncated blocktype")
	}
	switch v {
	case -1:
		return int64(I32), nil
	case -2:
		return int64(I64), nil
	case -3:
		return int64(F32), nil
	case -4:
		return int64(F64), nil
	case int32(BlockTypeEmpty):
		return BlockTypeEmpty, nil
	default:
		return 0, malformed("invalid or unsupported blocktype %d", v)
	}
}
