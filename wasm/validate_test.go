package wasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmlite/wasmlite/wasm"
	"github.com/wasmlite/wasmlite/wasmtest"
)

func buildAdd(t *testing.T) *wasm.Module {
	t.Helper()
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType([]byte{byte(wasm.I32), byte(wasm.I32)}, []byte{byte(wasm.I32)}))
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6A} // local.get 0; local.get 1; i32.add
	fn := b.AddFunc(ft, nil, body)
	b.ExportFunc("add", fn)

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	return m
}

func TestParseAndValidateAdd(t *testing.T) {
	m := buildAdd(t)
	require.NoError(t, wasm.Validate(m))
	require.Len(t, m.Compiled, 1)
	assert.Equal(t, 2, m.Compiled[0].MaxStackHeight)
}

func TestValidateRejectsTypeMismatch(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType([]byte{byte(wasm.I32)}, []byte{byte(wasm.I32)}))
	// local.get 0 pushes i32, then f32.neg expects f32: a type error.
	body := []byte{0x20, 0x00, 0x8C}
	b.AddFunc(ft, nil, body)

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	err = wasm.Validate(m)
	assert.Error(t, err)
}

func TestValidateBlockAndBranch(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType(nil, []byte{byte(wasm.I32)}))
	// block (result i32) i32.const 1 br 0 end
	body := []byte{
		0x02, byte(wasm.I32), // block (result i32)
		0x41, 0x01, // i32.const 1
		0x0C, 0x00, // br 0
		0x0B, // end
	}
	b.AddFunc(ft, nil, body)

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	assert.NoError(t, wasm.Validate(m))
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := wasm.Parse([]byte{0x00, 0x61, 0x73, 0x00})
	assert.Error(t, err)
	var modErr *wasm.ModuleError
	assert.ErrorAs(t, err, &modErr)
	assert.Equal(t, wasm.Malformed, modErr.Kind)
}
