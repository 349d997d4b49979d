// Package wasm implements the WebAssembly 1.0 binary format: decoding a
// byte stream into a typed Module and statically validating every
// function body before it is handed to the runtime package for
// instantiation and execution.
package wasm

import "fmt"

// ValueType is one of the four WebAssembly 1.0 value types.
type ValueType byte

// The four WebAssembly 1.0 value types, encoded as in the binary format.
// https://webassembly.github.io/spec/core/binary/types.html#binary-valtype
const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valtype(0x%x)", byte(t))
	}
}

// FuncRefType is the single reference type this subset supports.
// https://webassembly.github.io/spec/core/binary/types.html#table-types
const FuncRefType byte = 0x70

// FuncTypeForm is the leading byte of every encoded FuncType.
const FuncTypeForm byte = 0x60

// ExternalKind identifies what an import or export refers to.
type ExternalKind byte

const (
	ExternalFunction ExternalKind = 0x00
	ExternalTable    ExternalKind = 0x01
	ExternalMemory   ExternalKind = 0x02
	ExternalGlobal   ExternalKind = 0x03
)

func (k ExternalKind) String() string {
	switch k {
	case ExternalFunction:
		return "func"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(0x%x)", byte(k))
	}
}

// FuncType is the signature of a function: an ordered list of parameter
// types and an ordered list of result types, the latter of length 0 or 1
// in this subset. https://webassembly.github.io/spec/core/binary/types.html#function-types
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports structural equality between two function signatures.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i, t := range f.Params {
		if o.Params[i] != t {
			return false
		}
	}
	for i, t := range f.Results {
		if o.Results[i] != t {
			return false
		}
	}
	return true
}

func (f FuncType) String() string {
	return fmt.Sprintf("%v -> %v", f.Params, f.Results)
}

// Limits bounds the size of a table or memory.
// https://webassembly.github.io/spec/core/binary/types.html#limits
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Table describes a table of funcref elements.
type Table struct {
	Limits Limits
}

// Memory describes linear memory, sized in 64KiB pages.
type Memory struct {
	Limits Limits
}

// GlobalType is a value type plus mutability.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

// ConstExprKind distinguishes the two legal forms of a constant
// initializer expression.
type ConstExprKind byte

const (
	ConstLiteral ConstExprKind = iota
	ConstGlobalGet
)

// ConstExpr is a restricted initializer used for global initial values
// and segment offsets: either a typed literal, or a global.get of an
// imported immutable global. https://webassembly.github.io/spec/core/valid/instructions.html#constant-expressions
type ConstExpr struct {
	Kind ConstExprKind

	// valid when Kind == ConstLiteral
	Type ValueType
	Bits uint64 // raw bit pattern; float bits via math.Float{32,64}bits

	// valid when Kind == ConstGlobalGet
	GlobalIndex uint32
}

// Global is a module-defined global variable declaration.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// ImportDesc is the tagged descriptor of one import.
type ImportDesc struct {
	Kind       ExternalKind
	TypeIndex  uint32 // Kind == ExternalFunction
	Table      Table  // Kind == ExternalTable
	Memory     Memory // Kind == ExternalMemory
	GlobalType GlobalType
}

// Import names an external item a module requires to be instantiated.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// Export names a module-local item made available to the host or to
// other modules after instantiation.
type Export struct {
	Name  string
	Kind  ExternalKind
	Index uint32
}

// ElementSegment initializes a contiguous run of table slots with
// function indices. The table index is always 0 in this subset.
type ElementSegment struct {
	Offset ConstExpr
	Init   []uint32 // FuncIdx values
}

// DataSegment initializes a contiguous run of memory with bytes. The
// memory index is always 0 in this subset.
type DataSegment struct {
	Offset ConstExpr
	Init   []byte
}

// Local is one run-length encoded group of local variable declarations.
type Local struct {
	Count uint32
	Type  ValueType
}

// Code is the per-function payload of the code section: its local
// declarations and its (unvalidated, as parsed) instruction bytes. The
// validator turns this into a CompiledFunc.
type Code struct {
	Locals []Local
	Body   []byte // instructions, including the trailing 0x0B end byte
}

// Module is the immutable result of parsing and validating a WebAssembly
// binary. It owns no runtime state; runtime.Instantiate builds mutable
// state from it.
type Module struct {
	Types   []FuncType
	Imports []Import

	// FuncTypeIndices has one TypeIdx per *locally defined* function, in
	// declaration order (imported functions are not repeated here).
	FuncTypeIndices []uint32
	Code            []Code // parallel to FuncTypeIndices

	// Table/Memory are non-nil when the module declares (as opposed
	// to imports) a table/memory; at most one of each, combining
	// imported+declared, is ever present (checked at parse time).
	Table               *Table
	Memory              *Memory
	ImportedTableIndex  int // -1 if the table, if any, is locally defined
	ImportedMemoryIndex int // -1 if the memory, if any, is locally defined

	Globals []Global // locally defined globals only

	Exports      []Export
	ExportByName map[string]Export

	HasStart bool
	Start    uint32

	Elements []ElementSegment
	Data     []DataSegment

	// Compiled is populated by Validate; nil on a freshly parsed, not yet
	// validated Module.
	Compiled []CompiledFunc
}

// NumImportedFuncs returns how many of the module's function imports
// precede its locally defined functions in the function index space.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == ExternalFunction {
			n++
		}
	}
	return n
}

// NumImportedGlobals returns how many of the module's global imports
// precede its locally defined globals in the global index space.
func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == ExternalGlobal {
			n++
		}
	}
	return n
}

// FuncTypeOf returns the signature of the function at the given index in
// the whole (imports + locals) function index space.
func (m *Module) FuncTypeOf(funcIdx uint32) (FuncType, bool) {
	nImported := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind != ExternalFunction {
			continue
		}
		if uint32(nImported) == funcIdx {
			return m.Types[imp.Desc.TypeIndex], true
		}
		nImported++
	}
	localIdx := int(funcIdx) - nImported
	if localIdx < 0 || localIdx >= len(m.FuncTypeIndices) {
		return FuncType{}, false
	}
	return m.Types[m.FuncTypeIndices[localIdx]], true
}
