// Package conformance cross-checks wasmlite's interpreter against
// go-interpreter/wagon, an independent WebAssembly implementation, on a
// small corpus of hand-authored modules. This keeps wagon in the
// dependency graph doing real work (differential testing) rather than
// coupling the production parser/interpreter to a second module
// representation, generalizing the teacher's own disabled TestVM2
// scratch comparison into a permanent regression test.
package conformance

import (
	"bytes"
	"testing"

	"github.com/go-interpreter/wagon/exec"
	wagonwasm "github.com/go-interpreter/wagon/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmlite/wasmlite/runtime"
	"github.com/wasmlite/wasmlite/wasm"
	"github.com/wasmlite/wasmlite/wasmtest"
)

func wasmliteResult(t *testing.T, b []byte, fn string, args ...uint64) uint64 {
	t.Helper()
	m, err := wasm.Parse(b)
	require.NoError(t, err)
	require.NoError(t, wasm.Validate(m))
	inst, err := runtime.Instantiate(m, runtime.NopResolver{}, 65536)
	require.NoError(t, err)
	idx, ok := inst.FindExportedFunction(fn)
	require.True(t, ok)
	results, trap, err := runtime.Execute(inst, idx, args, nil)
	require.NoError(t, err)
	require.Nil(t, trap)
	require.Len(t, results, 1)
	return results[0]
}

func wagonResult(t *testing.T, b []byte, fn string, args ...uint64) uint64 {
	t.Helper()
	m, err := wagonwasm.ReadModule(bytes.NewReader(b), nil)
	require.NoError(t, err)
	vm, err := exec.NewVM(m)
	require.NoError(t, err)
	entry, ok := m.Export.Entries[fn]
	require.True(t, ok)
	ret, err := vm.ExecCode(int64(entry.Index), args...)
	require.NoError(t, err)
	return uint64(ret.(uint32)) // every sample function here returns i32
}

func addModuleBytes() []byte {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType([]byte{byte(wasm.I32), byte(wasm.I32)}, []byte{byte(wasm.I32)}))
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6A} // local.get 0; local.get 1; i32.add
	fn := b.AddFunc(ft, nil, body)
	b.ExportFunc("add", fn)
	return b.Bytes()
}

func TestAddAgreesWithWagon(t *testing.T) {
	bytecode := addModuleBytes()
	for _, pair := range [][2]uint32{{2, 3}, {0, 0}, {1 << 31, 1}} {
		a, bv := uint64(pair[0]), uint64(pair[1])
		want := uint64(uint32(wagonResult(t, bytecode, "add", a, bv)))
		got := wasmliteResult(t, bytecode, "add", a, bv)
		assert.Equal(t, want, got)
	}
}

func divModuleBytes() []byte {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType([]byte{byte(wasm.I32), byte(wasm.I32)}, []byte{byte(wasm.I32)}))
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6E} // local.get 0; local.get 1; i32.div_u
	fn := b.AddFunc(ft, nil, body)
	b.ExportFunc("divu", fn)
	return b.Bytes()
}

func TestDivUAgreesWithWagon(t *testing.T) {
	bytecode := divModuleBytes()
	want := uint64(uint32(wagonResult(t, bytecode, "divu", 17, 5)))
	got := wasmliteResult(t, bytecode, "divu", 17, 5)
	assert.Equal(t, want, got)
}
