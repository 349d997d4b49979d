package runtime

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/chewxy/math32"

	"github.com/wasmlite/wasmlite/fp"
	"github.com/wasmlite/wasmlite/leb128"
	"github.com/wasmlite/wasmlite/wasm"
)

// frame is one activation record of a local (non-host) function call.
// The operand stack is shared across all frames; stackBase is the
// height it stood at when this frame was entered, which doubles as the
// absolute-height origin for every branch target recorded by the
// validator (those are relative to the function's own entry height).
type frame struct {
	fn        *funcInstance
	locals    []uint64
	ip        int
	stackBase int
}

// engine is the mutable state of one Execute call: the shared operand
// stack and the call-frame stack.
type engine struct {
	inst   *Instance
	ctx    *ExecutionContext
	stack  []uint64
	frames []frame
}

// Execute runs the exported or internal function at funcIdx in inst's
// combined import+local function index space, with the given raw
// argument bit patterns. ctx may be nil, in which case execution starts
// at depth 0, DefaultMaxCallDepth applies, and there is no tick budget.
//
// The three return paths are distinct: err is non-nil only for a
// caller mistake (bad funcIdx or argument count); trap is non-nil when
// the wasm code itself hit a trapping condition; otherwise results
// holds the function's return values (zero or one, per WebAssembly
// 1.0).
func Execute(inst *Instance, funcIdx int, args []uint64, ctx *ExecutionContext) (results []uint64, trap *Trap, err error) {
	if funcIdx < 0 || funcIdx >= len(inst.Funcs) {
		return nil, nil, errorf("function index %d out of range", funcIdx)
	}
	fn := &inst.Funcs[funcIdx]
	if len(args) != len(fn.Type.Params) {
		return nil, nil, errorf("expected %d arguments, got %d", len(fn.Type.Params), len(args))
	}

	if ctx == nil {
		ctx = CreateExecutionContext(0)
	}
	e := &engine{inst: inst, ctx: ctx}

	defer func() {
		trap = recoverTrap()
	}()

	results = e.call(fn, args)
	return results, nil, nil
}

// call invokes fn (host or local) with args already validated against
// its signature. The execution context's depth/ticks budget is only
// charged by the wasm-level call sites (doCall, doCallIndirect) that
// route through here, not by this outermost dispatch itself.
func (e *engine) call(fn *funcInstance, args []uint64) []uint64 {
	if fn.host != nil {
		v, trap := fn.host(e.inst, args)
		if trap != nil {
			panic(trap)
		}
		if len(fn.Type.Results) == 0 {
			return nil
		}
		return []uint64{v}
	}
	return e.callLocal(fn, args)
}

func (e *engine) callLocal(fn *funcInstance, args []uint64) []uint64 {
	cf := fn.local
	locals := make([]uint64, len(args)+len(cf.LocalTypes))
	copy(locals, args)

	base := len(e.stack)
	e.frames = append(e.frames, frame{fn: fn, locals: locals, ip: 0, stackBase: base})
	e.run()

	fr := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]

	nres := len(fn.Type.Results)
	results := append([]uint64(nil), e.stack[len(e.stack)-nres:]...)
	e.stack = e.stack[:fr.stackBase]
	return results
}

func (e *engine) top() *frame { return &e.frames[len(e.frames)-1] }

func (e *engine) push(v uint64)  { e.stack = append(e.stack, v) }
func (e *engine) pop() uint64 {
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v
}

func (e *engine) truncateTo(height int, keep int) {
	if keep == 0 {
		e.stack = e.stack[:height]
		return
	}
	top := e.stack[len(e.stack)-keep:]
	kept := append([]uint64(nil), top...)
	e.stack = append(e.stack[:height], kept...)
}

// run executes instructions in the top frame until it returns, via a
// normal function-end, a `return`, or a branch to depth "outside the
// function" (which cannot happen post-validation).
func (e *engine) run() {
	for {
		fr := e.top()
		body := fr.fn.local.Body
		if fr.ip >= len(body) {
			return
		}
		offset := fr.ip
		op := wasm.Op(body[fr.ip])
		fr.ip++

		switch op {
		case wasm.OpUnreachable:
			throw(TrapUnreachable)

		case wasm.OpNop:

		case wasm.OpBlock, wasm.OpLoop:
			fr.ip += leb128SkipI32(body[fr.ip:])

		case wasm.OpIf:
			fr.ip += leb128SkipI32(body[fr.ip:])
			cond := e.pop()
			if cond == 0 {
				target := fr.fn.local.ElseTargets[offset]
				fr.ip = target
			}

		case wasm.OpElse:
			fr.ip = fr.fn.local.SkipElseTargets[offset]

		case wasm.OpEnd:
			if offset == len(body)-1 {
				return
			}

		case wasm.OpBr:
			_, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			e.branch(fr, offset)

		case wasm.OpBrIf:
			_, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			cond := e.pop()
			if cond != 0 {
				e.branch(fr, offset)
			}

		case wasm.OpBrTable:
			count, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			for i := uint32(0); i <= count; i++ {
				_, n := leb128.DecodeU32Unchecked(body[fr.ip:])
				fr.ip += n
			}
			idx := uint32(e.pop())
			targets := fr.fn.local.BrTables[offset]
			if idx >= count {
				idx = count
			}
			e.branchTo(fr, targets[idx])

		case wasm.OpReturn:
			e.doReturn(fr)
			return

		case wasm.OpCall:
			idx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			e.doCall(int(idx))

		case wasm.OpCallIndirect:
			typeIdx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			_, n2 := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n2
			e.doCallIndirect(int(typeIdx))

		case wasm.OpDrop:
			e.pop()

		case wasm.OpSelect:
			cond := e.pop()
			b := e.pop()
			a := e.pop()
			if cond != 0 {
				e.push(a)
			} else {
				e.push(b)
			}

		case wasm.OpLocalGet:
			idx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			e.push(fr.locals[idx])

		case wasm.OpLocalSet:
			idx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			fr.locals[idx] = e.pop()

		case wasm.OpLocalTee:
			idx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			fr.locals[idx] = e.stack[len(e.stack)-1]

		case wasm.OpGlobalGet:
			idx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			e.push(e.inst.Globals[idx])

		case wasm.OpGlobalSet:
			idx, n := leb128.DecodeU32Unchecked(body[fr.ip:])
			fr.ip += n
			e.inst.Globals[idx] = e.pop()

		case wasm.OpMemorySize:
			fr.ip++ // reserved byte
			e.push(uint64(e.inst.Memory.Pages()))

		case wasm.OpMemoryGrow:
			fr.ip++ // reserved byte
			delta := uint32(e.pop())
			prev := e.inst.Memory.Grow(delta, e.inst.hostMemCeiling)
			e.push(uint64(uint32(prev)))

		case wasm.OpI32Const:
			v, n := leb128.DecodeI32Unchecked(body[fr.ip:])
			fr.ip += n
			e.push(uint64(uint32(v)))

		case wasm.OpI64Const:
			v, n := leb128.DecodeI64Unchecked(body[fr.ip:])
			fr.ip += n
			e.push(uint64(v))

		case wasm.OpF32Const:
			e.push(uint64(le32(body[fr.ip : fr.ip+4])))
			fr.ip += 4

		case wasm.OpF64Const:
			e.push(le64(body[fr.ip : fr.ip+8]))
			fr.ip += 8

		default:
			e.execSimple(op, fr, body)
		}
	}
}

// branch resolves the br/br_if at offset via the validator's
// precomputed table and jumps.
func (e *engine) branch(fr *frame, offset int) {
	e.branchTo(fr, fr.fn.local.Branches[offset])
}

func (e *engine) branchTo(fr *frame, target wasm.BranchTarget) {
	e.truncateTo(fr.stackBase+target.StackHeight, target.Arity)
	fr.ip = target.Offset
}

func (e *engine) doReturn(fr *frame) {
	nres := len(fr.fn.Type.Results)
	e.truncateTo(fr.stackBase, nres)
}

func (e *engine) doCall(idx int) {
	fn := &e.inst.Funcs[idx]
	args := e.popArgs(len(fn.Type.Params))
	e.ctx.enter()
	defer e.ctx.leave()
	results := e.call(fn, args)
	for _, r := range results {
		e.push(r)
	}
}

func (e *engine) doCallIndirect(typeIdx int) {
	want := e.inst.Module.Types[typeIdx]
	tableIdx := uint32(e.pop())
	table := e.inst.Table
	if table == nil || tableIdx >= table.Size() {
		throw(TrapOutOfBoundsTableAccess)
	}
	elem := table.Elements[tableIdx]
	if !elem.Valid {
		throw(TrapUninitializedTableElement)
	}
	fn := &elem.Owner.Funcs[elem.FuncIndex]
	if !fn.Type.Equal(want) {
		throw(TrapIndirectCallTypeMismatch)
	}
	args := e.popArgs(len(fn.Type.Params))
	e.ctx.enter()
	defer e.ctx.leave()
	results := e.callOnOwner(elem.Owner, fn, args)
	for _, r := range results {
		e.push(r)
	}
}

// callOnOwner invokes fn using the shared engine stack but against the
// Instance that actually owns fn's function index space: an imported
// table can hold functions belonging to a different module instance
// than the one performing the call_indirect.
func (e *engine) callOnOwner(owner *Instance, fn *funcInstance, args []uint64) []uint64 {
	saved := e.inst
	e.inst = owner
	results := e.call(fn, args)
	e.inst = saved
	return results
}

func (e *engine) popArgs(n int) []uint64 {
	args := append([]uint64(nil), e.stack[len(e.stack)-n:]...)
	e.stack = e.stack[:len(e.stack)-n]
	return args
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leb128SkipI32(b []byte) int {
	_, n := leb128.DecodeI32Unchecked(b)
	return n
}

// memarg reads a load/store instruction's (align, offset) immediate.
// Alignment was already checked during validation and has no effect on
// the result, only on performance on real hardware; this interpreter
// does not model that, so only the offset is used.
func memarg(body []byte, ip *int) uint32 {
	_, n := leb128.DecodeU32Unchecked(body[*ip:])
	*ip += n
	off, n := leb128.DecodeU32Unchecked(body[*ip:])
	*ip += n
	return off
}

func (e *engine) effectiveAddr(body []byte, fr *frame, size int) int {
	base := uint32(e.pop())
	off := memarg(body, &fr.ip)
	addr := uint64(base) + uint64(off)
	if addr+uint64(size) > uint64(len(e.inst.Memory.Data)) {
		throw(TrapOutOfBoundsMemoryAccess)
	}
	return int(addr)
}

// execSimple dispatches every instruction whose effect is a fixed
// pop/push signature: memory loads and stores, and the numeric
// opcodes. These never touch control flow or the call stack.
func (e *engine) execSimple(op wasm.Op, fr *frame, body []byte) {
	switch op {
	case wasm.OpI32Load:
		addr := e.effectiveAddr(body, fr, 4)
		e.push(uint64(le32(e.inst.Memory.Data[addr:])))
	case wasm.OpI64Load:
		addr := e.effectiveAddr(body, fr, 8)
		e.push(le64(e.inst.Memory.Data[addr:]))
	case wasm.OpF32Load:
		addr := e.effectiveAddr(body, fr, 4)
		e.push(uint64(le32(e.inst.Memory.Data[addr:])))
	case wasm.OpF64Load:
		addr := e.effectiveAddr(body, fr, 8)
		e.push(le64(e.inst.Memory.Data[addr:]))
	case wasm.OpI32Load8S:
		addr := e.effectiveAddr(body, fr, 1)
		e.push(uint64(uint32(int32(int8(e.inst.Memory.Data[addr])))))
	case wasm.OpI32Load8U:
		addr := e.effectiveAddr(body, fr, 1)
		e.push(uint64(e.inst.Memory.Data[addr]))
	case wasm.OpI32Load16S:
		addr := e.effectiveAddr(body, fr, 2)
		e.push(uint64(uint32(int32(int16(le16(e.inst.Memory.Data[addr:]))))))
	case wasm.OpI32Load16U:
		addr := e.effectiveAddr(body, fr, 2)
		e.push(uint64(le16(e.inst.Memory.Data[addr:])))
	case wasm.OpI64Load8S:
		addr := e.effectiveAddr(body, fr, 1)
		e.push(uint64(int64(int8(e.inst.Memory.Data[addr]))))
	case wasm.OpI64Load8U:
		addr := e.effectiveAddr(body, fr, 1)
		e.push(uint64(e.inst.Memory.Data[addr]))
	case wasm.OpI64Load16S:
		addr := e.effectiveAddr(body, fr, 2)
		e.push(uint64(int64(int16(le16(e.inst.Memory.Data[addr:])))))
	case wasm.OpI64Load16U:
		addr := e.effectiveAddr(body, fr, 2)
		e.push(uint64(le16(e.inst.Memory.Data[addr:])))
	case wasm.OpI64Load32S:
		addr := e.effectiveAddr(body, fr, 4)
		e.push(uint64(int64(int32(le32(e.inst.Memory.Data[addr:])))))
	case wasm.OpI64Load32U:
		addr := e.effectiveAddr(body, fr, 4)
		e.push(uint64(le32(e.inst.Memory.Data[addr:])))

	case wasm.OpI32Store:
		v := uint32(e.pop())
		addr := e.effectiveAddrStore(body, fr, 4)
		putLE32(e.inst.Memory.Data[addr:], v)
	case wasm.OpI64Store:
		v := e.pop()
		addr := e.effectiveAddrStore(body, fr, 8)
		putLE64(e.inst.Memory.Data[addr:], v)
	case wasm.OpF32Store:
		v := uint32(e.pop())
		addr := e.effectiveAddrStore(body, fr, 4)
		putLE32(e.inst.Memory.Data[addr:], v)
	case wasm.OpF64Store:
		v := e.pop()
		addr := e.effectiveAddrStore(body, fr, 8)
		putLE64(e.inst.Memory.Data[addr:], v)
	case wasm.OpI32Store8:
		v := byte(e.pop())
		addr := e.effectiveAddrStore(body, fr, 1)
		e.inst.Memory.Data[addr] = v
	case wasm.OpI32Store16:
		v := uint16(e.pop())
		addr := e.effectiveAddrStore(body, fr, 2)
		putLE16(e.inst.Memory.Data[addr:], v)
	case wasm.OpI64Store8:
		v := byte(e.pop())
		addr := e.effectiveAddrStore(body, fr, 1)
		e.inst.Memory.Data[addr] = v
	case wasm.OpI64Store16:
		v := uint16(e.pop())
		addr := e.effectiveAddrStore(body, fr, 2)
		putLE16(e.inst.Memory.Data[addr:], v)
	case wasm.OpI64Store32:
		v := uint32(e.pop())
		addr := e.effectiveAddrStore(body, fr, 4)
		putLE32(e.inst.Memory.Data[addr:], v)

	case wasm.OpI32Eqz:
		e.push(b2u(uint32(e.pop()) == 0))
	case wasm.OpI32Eq:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(b2u(a == b))
	case wasm.OpI32Ne:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(b2u(a != b))
	case wasm.OpI32LtS:
		b, a := int32(e.pop()), int32(e.pop())
		e.push(b2u(a < b))
	case wasm.OpI32LtU:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(b2u(a < b))
	case wasm.OpI32GtS:
		b, a := int32(e.pop()), int32(e.pop())
		e.push(b2u(a > b))
	case wasm.OpI32GtU:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(b2u(a > b))
	case wasm.OpI32LeS:
		b, a := int32(e.pop()), int32(e.pop())
		e.push(b2u(a <= b))
	case wasm.OpI32LeU:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(b2u(a <= b))
	case wasm.OpI32GeS:
		b, a := int32(e.pop()), int32(e.pop())
		e.push(b2u(a >= b))
	case wasm.OpI32GeU:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(b2u(a >= b))

	case wasm.OpI64Eqz:
		e.push(b2u(e.pop() == 0))
	case wasm.OpI64Eq:
		b, a := e.pop(), e.pop()
		e.push(b2u(a == b))
	case wasm.OpI64Ne:
		b, a := e.pop(), e.pop()
		e.push(b2u(a != b))
	case wasm.OpI64LtS:
		b, a := int64(e.pop()), int64(e.pop())
		e.push(b2u(a < b))
	case wasm.OpI64LtU:
		b, a := e.pop(), e.pop()
		e.push(b2u(a < b))
	case wasm.OpI64GtS:
		b, a := int64(e.pop()), int64(e.pop())
		e.push(b2u(a > b))
	case wasm.OpI64GtU:
		b, a := e.pop(), e.pop()
		e.push(b2u(a > b))
	case wasm.OpI64LeS:
		b, a := int64(e.pop()), int64(e.pop())
		e.push(b2u(a <= b))
	case wasm.OpI64LeU:
		b, a := e.pop(), e.pop()
		e.push(b2u(a <= b))
	case wasm.OpI64GeS:
		b, a := int64(e.pop()), int64(e.pop())
		e.push(b2u(a >= b))
	case wasm.OpI64GeU:
		b, a := e.pop(), e.pop()
		e.push(b2u(a >= b))

	case wasm.OpF32Eq:
		b, a := e.popF32(), e.popF32()
		e.push(b2u(a == b))
	case wasm.OpF32Ne:
		b, a := e.popF32(), e.popF32()
		e.push(b2u(a != b))
	case wasm.OpF32Lt:
		b, a := e.popF32(), e.popF32()
		e.push(b2u(a < b))
	case wasm.OpF32Gt:
		b, a := e.popF32(), e.popF32()
		e.push(b2u(a > b))
	case wasm.OpF32Le:
		b, a := e.popF32(), e.popF32()
		e.push(b2u(a <= b))
	case wasm.OpF32Ge:
		b, a := e.popF32(), e.popF32()
		e.push(b2u(a >= b))

	case wasm.OpF64Eq:
		b, a := e.popF64(), e.popF64()
		e.push(b2u(a == b))
	case wasm.OpF64Ne:
		b, a := e.popF64(), e.popF64()
		e.push(b2u(a != b))
	case wasm.OpF64Lt:
		b, a := e.popF64(), e.popF64()
		e.push(b2u(a < b))
	case wasm.OpF64Gt:
		b, a := e.popF64(), e.popF64()
		e.push(b2u(a > b))
	case wasm.OpF64Le:
		b, a := e.popF64(), e.popF64()
		e.push(b2u(a <= b))
	case wasm.OpF64Ge:
		b, a := e.popF64(), e.popF64()
		e.push(b2u(a >= b))

	case wasm.OpI32Clz:
		e.push(uint64(bits.LeadingZeros32(uint32(e.pop()))))
	case wasm.OpI32Ctz:
		e.push(uint64(bits.TrailingZeros32(uint32(e.pop()))))
	case wasm.OpI32Popcnt:
		e.push(uint64(bits.OnesCount32(uint32(e.pop()))))
	case wasm.OpI32Add:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a + b))
	case wasm.OpI32Sub:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a - b))
	case wasm.OpI32Mul:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a * b))
	case wasm.OpI32DivS:
		b, a := int32(e.pop()), int32(e.pop())
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		if a == math.MinInt32 && b == -1 {
			throw(TrapIntegerOverflow)
		}
		e.push(uint64(uint32(a / b)))
	case wasm.OpI32DivU:
		b, a := uint32(e.pop()), uint32(e.pop())
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		e.push(uint64(a / b))
	case wasm.OpI32RemS:
		b, a := int32(e.pop()), int32(e.pop())
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		if a == math.MinInt32 && b == -1 {
			e.push(0)
		} else {
			e.push(uint64(uint32(a % b)))
		}
	case wasm.OpI32RemU:
		b, a := uint32(e.pop()), uint32(e.pop())
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		e.push(uint64(a % b))
	case wasm.OpI32And:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a & b))
	case wasm.OpI32Or:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a | b))
	case wasm.OpI32Xor:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a ^ b))
	case wasm.OpI32Shl:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a << (b & 31)))
	case wasm.OpI32ShrS:
		b, a := uint32(e.pop()), int32(e.pop())
		e.push(uint64(uint32(a >> (b & 31))))
	case wasm.OpI32ShrU:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(a >> (b & 31)))
	case wasm.OpI32Rotl:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(bits.RotateLeft32(a, int(b))))
	case wasm.OpI32Rotr:
		b, a := uint32(e.pop()), uint32(e.pop())
		e.push(uint64(bits.RotateLeft32(a, -int(b))))

	case wasm.OpI64Clz:
		e.push(uint64(bits.LeadingZeros64(e.pop())))
	case wasm.OpI64Ctz:
		e.push(uint64(bits.TrailingZeros64(e.pop())))
	case wasm.OpI64Popcnt:
		e.push(uint64(bits.OnesCount64(e.pop())))
	case wasm.OpI64Add:
		b, a := e.pop(), e.pop()
		e.push(a + b)
	case wasm.OpI64Sub:
		b, a := e.pop(), e.pop()
		e.push(a - b)
	case wasm.OpI64Mul:
		b, a := e.pop(), e.pop()
		e.push(a * b)
	case wasm.OpI64DivS:
		b, a := int64(e.pop()), int64(e.pop())
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		if a == math.MinInt64 && b == -1 {
			throw(TrapIntegerOverflow)
		}
		e.push(uint64(a / b))
	case wasm.OpI64DivU:
		b, a := e.pop(), e.pop()
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		e.push(a / b)
	case wasm.OpI64RemS:
		b, a := int64(e.pop()), int64(e.pop())
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		if a == math.MinInt64 && b == -1 {
			e.push(0)
		} else {
			e.push(uint64(a % b))
		}
	case wasm.OpI64RemU:
		b, a := e.pop(), e.pop()
		if b == 0 {
			throw(TrapIntegerDivideByZero)
		}
		e.push(a % b)
	case wasm.OpI64And:
		b, a := e.pop(), e.pop()
		e.push(a & b)
	case wasm.OpI64Or:
		b, a := e.pop(), e.pop()
		e.push(a | b)
	case wasm.OpI64Xor:
		b, a := e.pop(), e.pop()
		e.push(a ^ b)
	case wasm.OpI64Shl:
		b, a := e.pop(), e.pop()
		e.push(a << (b & 63))
	case wasm.OpI64ShrS:
		b, a := e.pop(), int64(e.pop())
		e.push(uint64(a >> (b & 63)))
	case wasm.OpI64ShrU:
		b, a := e.pop(), e.pop()
		e.push(a >> (b & 63))
	case wasm.OpI64Rotl:
		b, a := e.pop(), e.pop()
		e.push(bits.RotateLeft64(a, int(b)))
	case wasm.OpI64Rotr:
		b, a := e.pop(), e.pop()
		e.push(bits.RotateLeft64(a, -int(b)))

	case wasm.OpF32Abs:
		e.pushF32(fp.AbsF32(e.popF32()))
	case wasm.OpF32Neg:
		e.pushF32(fp.NegF32(e.popF32()))
	case wasm.OpF32Ceil:
		e.pushF32(fp.CeilF32(e.popF32()))
	case wasm.OpF32Floor:
		e.pushF32(fp.FloorF32(e.popF32()))
	case wasm.OpF32Trunc:
		e.pushF32(fp.TruncF32(e.popF32()))
	case wasm.OpF32Nearest:
		e.pushF32(fp.NearestF32(e.popF32()))
	case wasm.OpF32Sqrt:
		e.pushF32(fp.SqrtF32(e.popF32()))
	case wasm.OpF32Add:
		b, a := e.popF32(), e.popF32()
		e.pushF32(a + b)
	case wasm.OpF32Sub:
		b, a := e.popF32(), e.popF32()
		e.pushF32(a - b)
	case wasm.OpF32Mul:
		b, a := e.popF32(), e.popF32()
		e.pushF32(a * b)
	case wasm.OpF32Div:
		b, a := e.popF32(), e.popF32()
		e.pushF32(a / b)
	case wasm.OpF32Min:
		b, a := e.popF32(), e.popF32()
		e.pushF32(fp.MinF32(a, b))
	case wasm.OpF32Max:
		b, a := e.popF32(), e.popF32()
		e.pushF32(fp.MaxF32(a, b))
	case wasm.OpF32Copysign:
		b, a := e.popF32(), e.popF32()
		e.pushF32(fp.CopysignF32(a, b))

	case wasm.OpF64Abs:
		e.pushF64(fp.AbsF64(e.popF64()))
	case wasm.OpF64Neg:
		e.pushF64(fp.NegF64(e.popF64()))
	case wasm.OpF64Ceil:
		e.pushF64(fp.CeilF64(e.popF64()))
	case wasm.OpF64Floor:
		e.pushF64(fp.FloorF64(e.popF64()))
	case wasm.OpF64Trunc:
		e.pushF64(fp.TruncF64(e.popF64()))
	case wasm.OpF64Nearest:
		e.pushF64(fp.NearestF64(e.popF64()))
	case wasm.OpF64Sqrt:
		e.pushF64(fp.SqrtF64(e.popF64()))
	case wasm.OpF64Add:
		b, a := e.popF64(), e.popF64()
		e.pushF64(a + b)
	case wasm.OpF64Sub:
		b, a := e.popF64(), e.popF64()
		e.pushF64(a - b)
	case wasm.OpF64Mul:
		b, a := e.popF64(), e.popF64()
		e.pushF64(a * b)
	case wasm.OpF64Div:
		b, a := e.popF64(), e.popF64()
		e.pushF64(a / b)
	case wasm.OpF64Min:
		b, a := e.popF64(), e.popF64()
		e.pushF64(fp.MinF64(a, b))
	case wasm.OpF64Max:
		b, a := e.popF64(), e.popF64()
		e.pushF64(fp.MaxF64(a, b))
	case wasm.OpF64Copysign:
		b, a := e.popF64(), e.popF64()
		e.pushF64(fp.CopysignF64(a, b))

	case wasm.OpI32WrapI64:
		e.push(uint64(uint32(e.pop())))
	case wasm.OpI32TruncF32S:
		v, r := fp.TruncF32ToI32(e.popF32())
		e.checkConvert(r)
		e.push(uint64(uint32(v)))
	case wasm.OpI32TruncF32U:
		v, r := fp.TruncF32ToU32(e.popF32())
		e.checkConvert(r)
		e.push(uint64(v))
	case wasm.OpI32TruncF64S:
		v, r := fp.TruncF64ToI32(e.popF64())
		e.checkConvert(r)
		e.push(uint64(uint32(v)))
	case wasm.OpI32TruncF64U:
		v, r := fp.TruncF64ToU32(e.popF64())
		e.checkConvert(r)
		e.push(uint64(v))
	case wasm.OpI64ExtendI32S:
		e.push(uint64(int64(int32(e.pop()))))
	case wasm.OpI64ExtendI32U:
		e.push(uint64(uint32(e.pop())))
	case wasm.OpI64TruncF32S:
		v, r := fp.TruncF32ToI64(e.popF32())
		e.checkConvert(r)
		e.push(uint64(v))
	case wasm.OpI64TruncF32U:
		v, r := fp.TruncF32ToU64(e.popF32())
		e.checkConvert(r)
		e.push(v)
	case wasm.OpI64TruncF64S:
		v, r := fp.TruncF64ToI64(e.popF64())
		e.checkConvert(r)
		e.push(uint64(v))
	case wasm.OpI64TruncF64U:
		v, r := fp.TruncF64ToU64(e.popF64())
		e.checkConvert(r)
		e.push(v)
	case wasm.OpF32ConvertI32S:
		e.pushF32(fp.ConvertI32ToF32(int32(e.pop())))
	case wasm.OpF32ConvertI32U:
		e.pushF32(fp.ConvertU32ToF32(uint32(e.pop())))
	case wasm.OpF32ConvertI64S:
		e.pushF32(fp.ConvertI64ToF32(int64(e.pop())))
	case wasm.OpF32ConvertI64U:
		e.pushF32(fp.ConvertU64ToF32(e.pop()))
	case wasm.OpF32DemoteF64:
		e.pushF32(fp.DemoteF64ToF32(e.popF64()))
	case wasm.OpF64ConvertI32S:
		e.pushF64(fp.ConvertI32ToF64(int32(e.pop())))
	case wasm.OpF64ConvertI32U:
		e.pushF64(fp.ConvertU32ToF64(uint32(e.pop())))
	case wasm.OpF64ConvertI64S:
		e.pushF64(fp.ConvertI64ToF64(int64(e.pop())))
	case wasm.OpF64ConvertI64U:
		e.pushF64(fp.ConvertU64ToF64(e.pop()))
	case wasm.OpF64PromoteF32:
		e.pushF64(fp.PromoteF32ToF64(e.popF32()))
	case wasm.OpI32ReinterpretF32:
		e.push(uint64(uint32(fp.ReinterpretF32AsI32(e.popF32()))))
	case wasm.OpI64ReinterpretF64:
		e.push(uint64(fp.ReinterpretF64AsI64(e.popF64())))
	case wasm.OpF32ReinterpretI32:
		e.pushF32(fp.ReinterpretI32AsF32(int32(e.pop())))
	case wasm.OpF64ReinterpretI64:
		e.pushF64(fp.ReinterpretI64AsF64(int64(e.pop())))

	default:
		panic(fmt.Sprintf("runtime: unimplemented opcode 0x%x", byte(op)))
	}
}

func (e *engine) effectiveAddrStore(body []byte, fr *frame, size int) int {
	off := memarg(body, &fr.ip)
	// the value was already popped by the caller; the address operand
	// is the next one down.
	base := uint32(e.pop())
	addr := uint64(base) + uint64(off)
	if addr+uint64(size) > uint64(len(e.inst.Memory.Data)) {
		throw(TrapOutOfBoundsMemoryAccess)
	}
	return int(addr)
}

func (e *engine) checkConvert(r fp.TrapReason) {
	switch r {
	case fp.InvalidConversion:
		throw(TrapInvalidConversionToInteger)
	case fp.IntegerOverflow:
		throw(TrapIntegerOverflow)
	}
}

func (e *engine) pushF32(v float32) { e.push(uint64(math32.Float32bits(v))) }
func (e *engine) popF32() float32   { return math32.Float32frombits(uint32(e.pop())) }

func (e *engine) pushF64(v float64) { e.push(math.Float64bits(v)) }
func (e *engine) popF64() float64   { return math.Float64frombits(e.pop()) }

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func errorf(format string, args ...interface{}) error {
	return &wasm.ModuleError{Kind: wasm.Validation, Message: fmt.Sprintf(format, args...)}
}
