// Package wasmtest assembles minimal WebAssembly binaries by hand for
// use in other packages' tests, standing in for the fixture .wasm files
// the teacher's test suite loaded from disk.
package wasmtest

import "github.com/wasmlite/wasmlite/leb128"

func u32(v uint32) []byte { return leb128.EncodeU32(v) }

func vec(elems ...[]byte) []byte {
	out := u32(uint32(len(elems)))
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return append([]byte{id}, append(u32(uint32(len(payload))), payload...)...)
}

func name(s string) []byte {
	return append(u32(uint32(len(s))), []byte(s)...)
}

// FuncType encodes one entry of the type section: form 0x60 followed
// by parameter and result value-type vectors.
func FuncType(params, results []byte) []byte {
	out := append([]byte{0x60}, vec(byteElems(params)...)...)
	return append(out, vec(byteElems(results)...)...)
}

func byteElems(bs []byte) [][]byte {
	out := make([][]byte, len(bs))
	for i, b := range bs {
		out[i] = []byte{b}
	}
	return out
}

// Builder assembles a module's sections in the fixed binary-format
// order and renders the final byte stream with Bytes.
type Builder struct {
	types     [][]byte
	funcs     []uint32
	exports   []exportEntry
	code      [][]byte
	memory    *[2]uint32 // [min,max], nil if absent
	memHasMax bool
	start     *uint32
}

type exportEntry struct {
	name string
	kind byte
	idx  uint32
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) AddType(ft []byte) uint32 {
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// AddFunc declares a function of typeIdx with the given local
// declarations ((count,type) pairs, already byte-encoded) and body
// bytes (not including the trailing 0x0B end, which is appended here).
func (b *Builder) AddFunc(typeIdx uint32, localDecls [][]byte, body []byte) uint32 {
	b.funcs = append(b.funcs, typeIdx)
	code := vec(localDecls...)
	code = append(code, body...)
	code = append(code, 0x0B)
	entry := append(u32(uint32(len(code))), code...)
	b.code = append(b.code, entry)
	return uint32(len(b.funcs) - 1)
}

func (b *Builder) ExportFunc(name string, idx uint32) {
	b.exports = append(b.exports, exportEntry{name, 0x00, idx})
}

func (b *Builder) SetMemory(min uint32, max uint32, hasMax bool) {
	b.memory = &[2]uint32{min, max}
	b.memHasMax = hasMax
}

func (b *Builder) SetStart(idx uint32) { b.start = &idx }

// Bytes renders the complete module, preamble included.
func (b *Builder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		out = append(out, section(1, vec(b.types...))...)
	}
	if len(b.funcs) > 0 {
		elems := make([][]byte, len(b.funcs))
		for i, t := range b.funcs {
			elems[i] = u32(t)
		}
		out = append(out, section(3, vec(elems...))...)
	}
	if b.memory != nil {
		var limits []byte
		if b.memHasMax {
			limits = append([]byte{0x01}, append(u32(b.memory[0]), u32(b.memory[1])...)...)
		} else {
			limits = append([]byte{0x00}, u32(b.memory[0])...)
		}
		out = append(out, section(5, vec(limits))...)
	}
	if len(b.exports) > 0 {
		elems := make([][]byte, len(b.exports))
		for i, e := range b.exports {
			entry := append(name(e.name), e.kind)
			entry = append(entry, u32(e.idx)...)
			elems[i] = entry
		}
		out = append(out, section(7, vec(elems...))...)
	}
	if b.start != nil {
		out = append(out, section(8, u32(*b.start))...)
	}
	if len(b.code) > 0 {
		out = append(out, section(10, vec(b.code...))...)
	}
	return out
}

// LocalDecl encodes one (count, type) run-length local declaration.
func LocalDecl(count uint32, valueType byte) []byte {
	return append(u32(count), valueType)
}
