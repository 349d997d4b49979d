package wasm

import (
	"github.com/pkg/errors"
	"github.com/wasmlite/wasmlite/utf8"
	"github.com/wasmlite/wasmlite/util"
)

// magic is the 4-byte '\0asm' preamble, and version is the only binary
// format version this subset accepts.
var magic = [4]byte{0x00, 0x61, 0x73, 0x6D}

const version uint32 = 1

// maxDeclaredPages is the parse-time sanity ceiling on a module's
// declared memory page counts, independent of any host-imposed runtime
// ceiling applied at instantiation.
const maxDeclaredPages = 65536

type sectionID byte

const (
	secCustom sectionID = 0
	secType   sectionID = 1
	secImport sectionID = 2
	secFunc   sectionID = 3
	secTable  sectionID = 4
	secMemory sectionID = 5
	secGlobal sectionID = 6
	secExport sectionID = 7
	secStart  sectionID = 8
	secElem   sectionID = 9
	secCode   sectionID = 10
	secData   sectionID = 11
)

// Parse decodes b into a Module. It performs only the checks available
// without inspecting function bodies (§4.2); Validate performs the
// per-function static analysis.
func Parse(b []byte) (*Module, error) {
	r := util.NewByteReader(b)

	magicBytes, err := r.ReadN(4)
	if err != nil || string(magicBytes) != string(magic[:]) {
		return nil, malformed("invalid wasm module prefix")
	}
	verBytes, err := r.ReadN(4)
	if err != nil {
		return nil, malformed("truncated version field")
	}
	ver := uint32(verBytes[0]) | uint32(verBytes[1])<<8 | uint32(verBytes[2])<<16 | uint32(verBytes[3])<<24
	if ver != version {
		return nil, malformed("unsupported wasm version %d", ver)
	}

	m := &Module{
		ImportedTableIndex:  -1,
		ImportedMemoryIndex: -1,
		ExportByName:        map[string]Export{},
	}

	lastID := sectionID(0)
	seenNonCustom := false
	for r.Len() > 0 {
		idByte, err := r.ReadByte()
		if err != nil {
			return nil, malformed("truncated section header")
		}
		id := sectionID(idByte)

		size, err := r.ReadU32()
		if err != nil {
			return nil, malformed("truncated section size")
		}
		if int(size) > r.Len() {
			return nil, malformed("section size exceeds remaining input")
		}
		payload, _ := r.ReadN(int(size))

		if id != secCustom {
			if seenNonCustom && id <= lastID {
				return nil, malformed("sections out of order: id %d after %d", id, lastID)
			}
			lastID = id
			seenNonCustom = true
		}

		pr := util.NewByteReader(payload)
		if err := parseSection(m, id, pr); err != nil {
			return nil, err
		}
		if pr.Len() != 0 {
			return nil, malformed("section %d has trailing bytes", id)
		}
	}

	if err := checkStructure(m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseSection(m *Module, id sectionID, r *util.ByteReader) error {
	switch id {
	case secCustom:
		name, err := readName(r)
		if err != nil {
			return errors.Wrap(err, "custom section name")
		}
		_ = name
		// remaining bytes are arbitrary payload; skip without interpreting.
	case secType:
		return parseTypeSection(m, r)
	case secImport:
		return parseImportSection(m, r)
	case secFunc:
		return parseFunctionSection(m, r)
	case secTable:
		return parseTableSection(m, r)
	case secMemory:
		return parseMemorySection(m, r)
	case secGlobal:
		return parseGlobalSection(m, r)
	case secExport:
		return parseExportSection(m, r)
	case secStart:
		return parseStartSection(m, r)
	case secElem:
		return parseElementSection(m, r)
	case secCode:
		return parseCodeSection(m, r)
	case secData:
		return parseDataSection(m, r)
	default:
		return malformed("unknown section id %d", id)
	}
	return nil
}

func readName(r *util.ByteReader) (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", malformed("truncated name length")
	}
	b, err := r.ReadN(int(n))
	if err != nil {
		return "", malformed("truncated name")
	}
	if !utf8.Valid(b) {
		return "", malformed("invalid utf-8 in name")
	}
	return string(b), nil
}

func readValueType(r *util.ByteReader) (ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, malformed("truncated value type")
	}
	switch ValueType(b) {
	case I32, I64, F32, F64:
		return ValueType(b), nil
	default:
		return 0, malformed("invalid value type 0x%x", b)
	}
}

func readLimits(r *util.ByteReader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, malformed("truncated limits flag")
	}
	var l Limits
	switch flag {
	case 0x00:
		min, err := r.ReadU32()
		if err != nil {
			return Limits{}, malformed("truncated limits min")
		}
		l.Min = min
	case 0x01:
		min, err := r.ReadU32()
		if err != nil {
			return Limits{}, malformed("truncated limits min")
		}
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, malformed("truncated limits max")
		}
		l.Min, l.Max, l.HasMax = min, max, true
	default:
		return Limits{}, malformed("invalid limits flag 0x%x", flag)
	}
	if l.HasMax && l.Min > l.Max {
		return Limits{}, invalid("limits min %d exceeds max %d", l.Min, l.Max)
	}
	return l, nil
}

func readGlobalType(r *util.ByteReader) (GlobalType, error) {
	vt, err := readValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mb, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, malformed("truncated mutability flag")
	}
	if mb != 0x00 && mb != 0x01 {
		return GlobalType{}, malformed("invalid mutability flag 0x%x", mb)
	}
	return GlobalType{Type: vt, Mutable: mb == 0x01}, nil
}

func parseTypeSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated type section count")
	}
	m.Types = make([]FuncType, count)
	for i := range m.Types {
		form, err := r.ReadByte()
		if err != nil {
			return malformed("truncated functype form")
		}
		if form != FuncTypeForm {
			return malformed("invalid functype form 0x%x", form)
		}
		pCount, err := r.ReadU32()
		if err != nil {
			return malformed("truncated param count")
		}
		params := make([]ValueType, pCount)
		for j := range params {
			if params[j], err = readValueType(r); err != nil {
				return err
			}
		}
		rCount, err := r.ReadU32()
		if err != nil {
			return malformed("truncated result count")
		}
		results := make([]ValueType, rCount)
		for j := range results {
			if results[j], err = readValueType(r); err != nil {
				return err
			}
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func parseImportSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated import section count")
	}
	m.Imports = make([]Import, count)
	for i := range m.Imports {
		modName, err := readName(r)
		if err != nil {
			return err
		}
		fieldName, err := readName(r)
		if err != nil {
			return err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return malformed("truncated import kind")
		}
		var desc ImportDesc
		switch ExternalKind(kindByte) {
		case ExternalFunction:
			idx, err := r.ReadU32()
			if err != nil {
				return malformed("truncated import type index")
			}
			desc = ImportDesc{Kind: ExternalFunction, TypeIndex: idx}
		case ExternalTable:
			elemType, err := r.ReadByte()
			if err != nil {
				return malformed("truncated table elem type")
			}
			if elemType != FuncRefType {
				return malformed("unsupported table element type 0x%x", elemType)
			}
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			desc = ImportDesc{Kind: ExternalTable, Table: Table{Limits: lim}}
		case ExternalMemory:
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			if lim.Min > maxDeclaredPages || (lim.HasMax && lim.Max > maxDeclaredPages) {
				return invalid("imported memory limits exceed %d pages", maxDeclaredPages)
			}
			desc = ImportDesc{Kind: ExternalMemory, Memory: Memory{Limits: lim}}
		case ExternalGlobal:
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			desc = ImportDesc{Kind: ExternalGlobal, GlobalType: gt}
		default:
			return malformed("invalid import kind 0x%x", kindByte)
		}
		m.Imports[i] = Import{Module: modName, Name: fieldName, Desc: desc}
	}
	return nil
}

func parseFunctionSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated function section count")
	}
	m.FuncTypeIndices = make([]uint32, count)
	for i := range m.FuncTypeIndices {
		if m.FuncTypeIndices[i], err = r.ReadU32(); err != nil {
			return malformed("truncated function type index")
		}
	}
	return nil
}

func parseTableSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated table section count")
	}
	if count > 1 {
		return malformed("more than one table section entry")
	}
	for i := uint32(0); i < count; i++ {
		elemType, err := r.ReadByte()
		if err != nil {
			return malformed("truncated table elem type")
		}
		if elemType != FuncRefType {
			return malformed("unsupported table element type 0x%x", elemType)
		}
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Table = &Table{Limits: lim}
	}
	return nil
}

func parseMemorySection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated memory section count")
	}
	if count > 1 {
		return malformed("more than one memory section entry")
	}
	for i := uint32(0); i < count; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		if lim.Min > maxDeclaredPages || (lim.HasMax && lim.Max > maxDeclaredPages) {
			return invalid("memory limits exceed %d pages", maxDeclaredPages)
		}
		m.Memory = &Memory{Limits: lim}
	}
	return nil
}

func readConstExpr(m *Module, r *util.ByteReader) (ConstExpr, error) {
	opByte, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, malformed("truncated const expr opcode")
	}
	var ce ConstExpr
	switch Op(opByte) {
	case OpI32Const:
		v, err := r.ReadI32()
		if err != nil {
			return ConstExpr{}, malformed("truncated i32.const")
		}
		ce = ConstExpr{Kind: ConstLiteral, Type: I32, Bits: uint64(uint32(v))}
	case OpI64Const:
		v, err := r.ReadI64()
		if err != nil {
			return ConstExpr{}, malformed("truncated i64.const")
		}
		ce = ConstExpr{Kind: ConstLiteral, Type: I64, Bits: uint64(v)}
	case OpF32Const:
		bits, err := r.ReadN(4)
		if err != nil {
			return ConstExpr{}, malformed("truncated f32.const")
		}
		ce = ConstExpr{Kind: ConstLiteral, Type: F32, Bits: uint64(le32(bits))}
	case OpF64Const:
		bits, err := r.ReadN(8)
		if err != nil {
			return ConstExpr{}, malformed("truncated f64.const")
		}
		ce = ConstExpr{Kind: ConstLiteral, Type: F64, Bits: le64(bits)}
	case OpGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return ConstExpr{}, malformed("truncated global.get index")
		}
		ce = ConstExpr{Kind: ConstGlobalGet, GlobalIndex: idx}
	default:
		return ConstExpr{}, invalid("invalid constant expression opcode 0x%x", opByte)
	}
	endByte, err := r.ReadByte()
	if err != nil || Op(endByte) != OpEnd {
		return ConstExpr{}, malformed("constant expression missing end")
	}
	return ce, nil
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

func parseGlobalSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated global section count")
	}
	m.Globals = make([]Global, count)
	for i := range m.Globals {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		ce, err := readConstExpr(m, r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: gt, Init: ce}
	}
	return nil
}

func parseExportSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated export section count")
	}
	m.Exports = make([]Export, count)
	for i := range m.Exports {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return malformed("truncated export kind")
		}
		switch ExternalKind(kindByte) {
		case ExternalFunction, ExternalTable, ExternalMemory, ExternalGlobal:
		default:
			return malformed("invalid export kind 0x%x", kindByte)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return malformed("truncated export index")
		}
		if _, dup := m.ExportByName[name]; dup {
			return invalid("duplicate export name %q", name)
		}
		exp := Export{Name: name, Kind: ExternalKind(kindByte), Index: idx}
		m.Exports[i] = exp
		m.ExportByName[name] = exp
	}
	return nil
}

func parseStartSection(m *Module, r *util.ByteReader) error {
	idx, err := r.ReadU32()
	if err != nil {
		return malformed("truncated start function index")
	}
	m.HasStart = true
	m.Start = idx
	return nil
}

func parseElementSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated element section count")
	}
	m.Elements = make([]ElementSegment, count)
	for i := range m.Elements {
		tableIdx, err := r.ReadU32()
		if err != nil {
			return malformed("truncated element table index")
		}
		if tableIdx != 0 {
			return malformed("element segment table index must be 0")
		}
		offset, err := readConstExpr(m, r)
		if err != nil {
			return err
		}
		n, err := r.ReadU32()
		if err != nil {
			return malformed("truncated element init count")
		}
		init := make([]uint32, n)
		for j := range init {
			if init[j], err = r.ReadU32(); err != nil {
				return malformed("truncated element func index")
			}
		}
		m.Elements[i] = ElementSegment{Offset: offset, Init: init}
	}
	return nil
}

func parseCodeSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated code section count")
	}
	m.Code = make([]Code, count)
	for i := range m.Code {
		size, err := r.ReadU32()
		if err != nil {
			return malformed("truncated code entry size")
		}
		body, err := r.ReadN(int(size))
		if err != nil {
			return malformed("truncated code entry body")
		}
		br := util.NewByteReader(body)

		localCount, err := br.ReadU32()
		if err != nil {
			return malformed("truncated local decl count")
		}
		var totalLocals uint64
		locals := make([]Local, localCount)
		for j := range locals {
			c, err := br.ReadU32()
			if err != nil {
				return malformed("truncated local decl count entry")
			}
			t, err := readValueType(br)
			if err != nil {
				return err
			}
			locals[j] = Local{Count: c, Type: t}
			totalLocals += uint64(c)
		}
		if totalLocals > 1<<32 {
			return malformed("too many locals declared")
		}
		m.Code[i] = Code{Locals: locals, Body: br.Remaining()}
	}
	return nil
}

func parseDataSection(m *Module, r *util.ByteReader) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed("truncated data section count")
	}
	m.Data = make([]DataSegment, count)
	for i := range m.Data {
		memIdx, err := r.ReadU32()
		if err != nil {
			return malformed("truncated data memory index")
		}
		if memIdx != 0 {
			return malformed("data segment memory index must be 0")
		}
		offset, err := readConstExpr(m, r)
		if err != nil {
			return err
		}
		n, err := r.ReadU32()
		if err != nil {
			return malformed("truncated data byte count")
		}
		init, err := r.ReadN(int(n))
		if err != nil {
			return malformed("truncated data bytes")
		}
		cp := make([]byte, len(init))
		copy(cp, init)
		m.Data[i] = DataSegment{Offset: offset, Init: cp}
	}
	return nil
}

// checkStructure runs the post-parse, pre-validate structural checks of
// §4.2: section cardinalities, cross-references in range, and the start
// function's nullary signature. Export-name uniqueness is checked earlier,
// in parseExportSection.
func checkStructure(m *Module) error {
	importedTables, importedMemories := 0, 0
	for i, imp := range m.Imports {
		switch imp.Desc.Kind {
		case ExternalFunction:
			if int(imp.Desc.TypeIndex) >= len(m.Types) {
				return invalid("import %d: type index out of range", i)
			}
		case ExternalTable:
			importedTables++
			if importedTables > 1 {
				return invalid("more than one imported table")
			}
			m.ImportedTableIndex = i
		case ExternalMemory:
			importedMemories++
			if importedMemories > 1 {
				return invalid("more than one imported memory")
			}
			m.ImportedMemoryIndex = i
		}
	}
	if importedTables > 0 && m.Table != nil {
		return invalid("module both imports and defines a table")
	}
	if importedMemories > 0 && m.Memory != nil {
		return invalid("module both imports and defines a memory")
	}

	if len(m.FuncTypeIndices) != len(m.Code) {
		return invalid("function section count %d does not match code section count %d",
			len(m.FuncTypeIndices), len(m.Code))
	}
	for i, t := range m.FuncTypeIndices {
		if int(t) >= len(m.Types) {
			return invalid("function %d: type index out of range", i)
		}
	}

	hasTable := m.Table != nil || importedTables > 0
	hasMemory := m.Memory != nil || importedMemories > 0
	if len(m.Elements) > 0 && !hasTable {
		return invalid("element section present without a table")
	}
	if len(m.Data) > 0 && !hasMemory {
		return invalid("data section present without a memory")
	}

	nFuncs := m.NumImportedFuncs() + len(m.FuncTypeIndices)
	for i, exp := range m.Exports {
		switch exp.Kind {
		case ExternalFunction:
			if int(exp.Index) >= nFuncs {
				return invalid("export %d: function index out of range", i)
			}
		case ExternalTable:
			if !hasTable || exp.Index != 0 {
				return invalid("export %d: table index out of range", i)
			}
		case ExternalMemory:
			if !hasMemory || exp.Index != 0 {
				return invalid("export %d: memory index out of range", i)
			}
		case ExternalGlobal:
			if int(exp.Index) >= m.NumImportedGlobals()+len(m.Globals) {
				return invalid("export %d: global index out of range", i)
			}
		}
	}

	if m.HasStart {
		if int(m.Start) >= nFuncs {
			return invalid("start function index out of range")
		}
		ft, ok := m.FuncTypeOf(m.Start)
		if !ok || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return invalid("start function must have signature () -> ()")
		}
	}

	return nil
}
