package runtime

import "github.com/wasmlite/wasmlite/wasm"

// pageSize is the fixed linear memory page granularity: 64KiB.
const pageSize = 65536

// MemoryInstance is a module's linear memory. It is always grown in
// whole pages and never shrinks.
type MemoryInstance struct {
	Data   []byte
	Max    uint32 // page count; only meaningful if HasMax
	HasMax bool
}

// Pages reports the current size in 64KiB pages.
func (m *MemoryInstance) Pages() uint32 {
	return uint32(len(m.Data) / pageSize)
}

// Grow extends the memory by delta pages, returning the previous page
// count, or -1 if growth would exceed its declared maximum or the host
// page ceiling supplied at instantiation.
func (m *MemoryInstance) Grow(delta uint32, hostCeiling uint32) int32 {
	cur := m.Pages()
	next := uint64(cur) + uint64(delta)
	if m.HasMax && next > uint64(m.Max) {
		return -1
	}
	if next > uint64(hostCeiling) {
		return -1
	}
	grown := make([]byte, next*pageSize)
	copy(grown, m.Data)
	m.Data = grown
	return int32(cur)
}

// TableElement is one slot of a table: the function it refers to, and
// the Instance whose function index space FuncIndex is relative to.
// A table can be imported and shared across module instances, so two
// slots written by different instantiations can legitimately point at
// two different owning instances; Valid is false for a never-written
// (trap-on-call) slot.
type TableElement struct {
	Valid     bool
	FuncIndex uint32
	Owner     *Instance
}

// TableInstance is a module's table of funcref elements.
type TableInstance struct {
	Elements []TableElement
	Max      uint32
	HasMax   bool
}

func (t *TableInstance) Size() uint32 { return uint32(len(t.Elements)) }

// Grow extends the table by delta elements, returning the previous
// size, or -1 if growth would exceed its declared maximum.
func (t *TableInstance) Grow(delta uint32) int32 {
	cur := t.Size()
	next := uint64(cur) + uint64(delta)
	if t.HasMax && next > uint64(t.Max) {
		return -1
	}
	grown := make([]TableElement, next)
	copy(grown, t.Elements)
	t.Elements = grown
	return int32(cur)
}

// funcInstance is one entry of an Instance's function index space,
// either a host import or a local, validated function.
type funcInstance struct {
	Type wasm.FuncType

	// exactly one of the two is set
	host  HostFunction
	local *wasm.CompiledFunc
}

// Instance is the runtime state produced by Instantiate: resolved
// imports, owned or borrowed memory/table, initialized globals, and
// the combined (imported + local) function index space.
type Instance struct {
	Module *wasm.Module

	Funcs []funcInstance

	// Memory/Table are nil if the module declares neither an import nor
	// a local definition for that kind. memOwned/tableOwned record
	// whether this Instance allocated them (and so is responsible for
	// growth bookkeeping) versus borrowing another instance's via
	// import, in which case the pointer is simply shared.
	Memory     *MemoryInstance
	Table      *TableInstance
	memOwned   bool
	tableOwned bool

	Globals     []uint64
	globalTypes []wasm.GlobalType

	hostMemCeiling uint32
}

// FindExportedFunction resolves an export by name to its index in
// Funcs, for use with Execute.
func (inst *Instance) FindExportedFunction(name string) (int, bool) {
	exp, ok := inst.Module.ExportByName[name]
	if !ok || exp.Kind != wasm.ExternalFunction {
		return 0, false
	}
	return int(exp.Index), true
}

// FindExportedMemory resolves a memory export by name.
func (inst *Instance) FindExportedMemory(name string) (*MemoryInstance, bool) {
	exp, ok := inst.Module.ExportByName[name]
	if !ok || exp.Kind != wasm.ExternalMemory {
		return nil, false
	}
	return inst.Memory, true
}

// FindExportedTable resolves a table export by name.
func (inst *Instance) FindExportedTable(name string) (*TableInstance, bool) {
	exp, ok := inst.Module.ExportByName[name]
	if !ok || exp.Kind != wasm.ExternalTable {
		return nil, false
	}
	return inst.Table, true
}

// FindExportedGlobal resolves a global export by name to its current
// raw bit-pattern value.
func (inst *Instance) FindExportedGlobal(name string) (uint64, bool) {
	exp, ok := inst.Module.ExportByName[name]
	if !ok || exp.Kind != wasm.ExternalGlobal {
		return 0, false
	}
	return inst.Globals[exp.Index], true
}

// MemSize returns the current memory size in bytes, or 0 if the
// instance has no memory.
func (inst *Instance) MemSize() int {
	if inst.Memory == nil {
		return 0
	}
	return len(inst.Memory.Data)
}

// MemRead copies into dst starting at offset, returning the number of
// bytes actually copied (short of len(dst) if offset+len(dst) runs
// past the end of memory).
func (inst *Instance) MemRead(dst []byte, offset int) int {
	if inst.Memory == nil || offset < 0 || offset > len(inst.Memory.Data) {
		return 0
	}
	return copy(dst, inst.Memory.Data[offset:])
}

// MemWrite copies src into memory starting at offset, returning the
// number of bytes actually copied (short if it would run past the end
// of memory).
func (inst *Instance) MemWrite(src []byte, offset int) int {
	if inst.Memory == nil || offset < 0 || offset > len(inst.Memory.Data) {
		return 0
	}
	return copy(inst.Memory.Data[offset:], src)
}
