package runtime

import (
	"github.com/pkg/errors"
	"github.com/wasmlite/wasmlite/wasm"
)

// instErr wraps a message as an Instantiation-kind wasm.ModuleError; it
// is the error kind every failure in this file reports (per the
// embedding boundary's three-kind error scheme).
func instErr(format string, args ...interface{}) error {
	return &wasm.ModuleError{Kind: wasm.Instantiation, Message: errors.Errorf(format, args...).Error()}
}

// Instantiate resolves m's imports against resolver, allocates its
// memory and table (bounded by hostPageCeiling pages), evaluates its
// globals, writes its element and data segments, and finally invokes
// its start function if it has one.
//
// If the start function traps, Instantiate returns (nil, error)
// wrapping the trap, but the Instance value itself survives as long as
// anything still references it: if its element segments had already
// been written into a table imported from another instance, that table's
// elements keep their Owner pointer into this Instance, so an
// indirect call dispatched through the exporting instance's table
// still reaches the right function index space even though
// instantiation overall failed.
func Instantiate(m *wasm.Module, resolver Resolver, hostPageCeiling uint32) (_ *Instance, retErr error) {
	if resolver == nil {
		resolver = NopResolver{}
	}

	inst := &Instance{Module: m, hostMemCeiling: hostPageCeiling}

	if err := resolveImportedFuncs(inst, m, resolver); err != nil {
		return nil, err
	}
	if err := resolveImportedGlobals(inst, m, resolver); err != nil {
		return nil, err
	}
	if err := resolveImportedMemory(inst, m, resolver); err != nil {
		return nil, err
	}
	if err := resolveImportedTable(inst, m, resolver); err != nil {
		return nil, err
	}

	appendLocalFuncs(inst, m)

	if m.Memory != nil {
		if m.Memory.Limits.Min > hostPageCeiling {
			return nil, instErr("memory minimum %d pages exceeds host ceiling of %d", m.Memory.Limits.Min, hostPageCeiling)
		}
		inst.Memory = &MemoryInstance{
			Data:   make([]byte, uint64(m.Memory.Limits.Min)*pageSize),
			Max:    m.Memory.Limits.Max,
			HasMax: m.Memory.Limits.HasMax,
		}
		inst.memOwned = true
	}
	if m.Table != nil {
		inst.Table = &TableInstance{
			Elements: make([]TableElement, m.Table.Limits.Min),
			Max:      m.Table.Limits.Max,
			HasMax:   m.Table.Limits.HasMax,
		}
		inst.tableOwned = true
	}

	if err := evalGlobals(inst, m); err != nil {
		return nil, err
	}

	// Data segments are bounds-checked before any element segment is
	// written, so no segment is written unless every segment fits.
	for _, seg := range m.Data {
		off, err := constOffset(inst, seg.Offset)
		if err != nil {
			return nil, err
		}
		if uint64(off)+uint64(len(seg.Init)) > uint64(len(inst.Memory.Data)) {
			return nil, instErr("data segment out of bounds")
		}
	}

	if err := checkAndWriteElements(inst, m); err != nil {
		return nil, err
	}
	if err := checkAndWriteData(inst, m); err != nil {
		return nil, err
	}

	if m.HasStart {
		if trap := runStart(inst, m); trap != nil {
			return nil, instErr("start function trapped: %s", trap.Error())
		}
	}

	return inst, nil
}

func resolveImportedFuncs(inst *Instance, m *wasm.Module, resolver Resolver) error {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.ExternalFunction {
			continue
		}
		fn, ok := resolver.ResolveFunc(imp.Module, imp.Name)
		if !ok {
			return instErr("unresolved function import %s.%s", imp.Module, imp.Name)
		}
		inst.Funcs = append(inst.Funcs, funcInstance{Type: m.Types[imp.Desc.TypeIndex], host: fn})
	}
	return nil
}

func resolveImportedGlobals(inst *Instance, m *wasm.Module, resolver Resolver) error {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.ExternalGlobal {
			continue
		}
		v, ok := resolver.ResolveGlobal(imp.Module, imp.Name)
		if !ok {
			return instErr("unresolved global import %s.%s", imp.Module, imp.Name)
		}
		inst.Globals = append(inst.Globals, v)
		inst.globalTypes = append(inst.globalTypes, imp.Desc.GlobalType)
	}
	return nil
}

func resolveImportedMemory(inst *Instance, m *wasm.Module, resolver Resolver) error {
	if m.ImportedMemoryIndex < 0 {
		return nil
	}
	imp := m.Imports[m.ImportedMemoryIndex]
	mem, ok := resolver.ResolveMemory(imp.Module, imp.Name)
	if !ok {
		return instErr("unresolved memory import %s.%s", imp.Module, imp.Name)
	}
	want := imp.Desc.Memory.Limits
	if mem.Pages() < want.Min {
		return instErr("imported memory %s.%s too small", imp.Module, imp.Name)
	}
	if want.HasMax && (!mem.HasMax || mem.Max > want.Max) {
		return instErr("imported memory %s.%s exceeds the import's declared maximum", imp.Module, imp.Name)
	}
	inst.Memory = mem
	return nil
}

func resolveImportedTable(inst *Instance, m *wasm.Module, resolver Resolver) error {
	if m.ImportedTableIndex < 0 {
		return nil
	}
	imp := m.Imports[m.ImportedTableIndex]
	tbl, ok := resolver.ResolveTable(imp.Module, imp.Name)
	if !ok {
		return instErr("unresolved table import %s.%s", imp.Module, imp.Name)
	}
	want := imp.Desc.Table.Limits
	if tbl.Size() < want.Min {
		return instErr("imported table %s.%s too small", imp.Module, imp.Name)
	}
	if want.HasMax && (!tbl.HasMax || tbl.Max > want.Max) {
		return instErr("imported table %s.%s exceeds the import's declared maximum", imp.Module, imp.Name)
	}
	inst.Table = tbl
	return nil
}

func appendLocalFuncs(inst *Instance, m *wasm.Module) {
	for i, typeIdx := range m.FuncTypeIndices {
		inst.Funcs = append(inst.Funcs, funcInstance{
			Type:  m.Types[typeIdx],
			local: &m.Compiled[i],
		})
	}
}

// evalGlobals evaluates every locally defined global's restricted
// constant-expression initializer: either a typed literal or a
// global.get of an already-resolved (necessarily imported, necessarily
// immutable) global.
func evalGlobals(inst *Instance, m *wasm.Module) error {
	for _, g := range m.Globals {
		var v uint64
		switch g.Init.Kind {
		case wasm.ConstLiteral:
			v = g.Init.Bits
		case wasm.ConstGlobalGet:
			if int(g.Init.GlobalIndex) >= len(inst.Globals) {
				return instErr("global initializer references out-of-range global %d", g.Init.GlobalIndex)
			}
			v = inst.Globals[g.Init.GlobalIndex]
		}
		inst.Globals = append(inst.Globals, v)
		inst.globalTypes = append(inst.globalTypes, g.Type)
	}
	return nil
}

func constOffset(inst *Instance, ce wasm.ConstExpr) (uint32, error) {
	switch ce.Kind {
	case wasm.ConstLiteral:
		return uint32(ce.Bits), nil
	case wasm.ConstGlobalGet:
		if int(ce.GlobalIndex) >= len(inst.Globals) {
			return 0, instErr("offset expression references out-of-range global %d", ce.GlobalIndex)
		}
		return uint32(inst.Globals[ce.GlobalIndex]), nil
	default:
		return 0, instErr("invalid offset expression")
	}
}

// checkAndWriteElements validates every element segment fits within the
// table's current size before writing any of them: instantiation is
// all-or-nothing, so a later segment's out-of-bounds offset must not
// leave an earlier segment's writes in effect.
func checkAndWriteElements(inst *Instance, m *wasm.Module) error {
	if len(m.Elements) == 0 {
		return nil
	}
	type pending struct {
		offset uint32
		seg    wasm.ElementSegment
	}
	var plan []pending
	for _, seg := range m.Elements {
		off, err := constOffset(inst, seg.Offset)
		if err != nil {
			return err
		}
		end := uint64(off) + uint64(len(seg.Init))
		if end > uint64(inst.Table.Size()) {
			return instErr("element segment out of bounds")
		}
		plan = append(plan, pending{offset: off, seg: seg})
	}
	for _, p := range plan {
		for i, fidx := range p.seg.Init {
			inst.Table.Elements[int(p.offset)+i] = TableElement{Valid: true, FuncIndex: fidx, Owner: inst}
		}
	}
	return nil
}

// checkAndWriteData mirrors checkAndWriteElements for linear memory.
func checkAndWriteData(inst *Instance, m *wasm.Module) error {
	if len(m.Data) == 0 {
		return nil
	}
	type pending struct {
		offset uint32
		seg    wasm.DataSegment
	}
	var plan []pending
	for _, seg := range m.Data {
		off, err := constOffset(inst, seg.Offset)
		if err != nil {
			return err
		}
		end := uint64(off) + uint64(len(seg.Init))
		if end > uint64(len(inst.Memory.Data)) {
			return instErr("data segment out of bounds")
		}
		plan = append(plan, pending{offset: off, seg: seg})
	}
	for _, p := range plan {
		copy(inst.Memory.Data[p.offset:], p.seg.Init)
	}
	return nil
}

func runStart(inst *Instance, m *wasm.Module) *Trap {
	_, trap, err := Execute(inst, int(m.Start), nil, nil)
	if err != nil {
		// a well-validated start function with signature () -> () cannot
		// itself raise a non-trap error; this would indicate a bug.
		panic(err)
	}
	return trap
}
