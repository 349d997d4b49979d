package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmlite/wasmlite/runtime"
	"github.com/wasmlite/wasmlite/wasm"
	"github.com/wasmlite/wasmlite/wasmtest"
)

func loadAndInstantiate(t *testing.T, b *wasmtest.Builder) *runtime.Instance {
	t.Helper()
	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	require.NoError(t, wasm.Validate(m))
	inst, err := runtime.Instantiate(m, runtime.NopResolver{}, 65536)
	require.NoError(t, err)
	return inst
}

func addModule() *wasmtest.Builder {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType([]byte{byte(wasm.I32), byte(wasm.I32)}, []byte{byte(wasm.I32)}))
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6A} // local.get 0; local.get 1; i32.add
	fn := b.AddFunc(ft, nil, body)
	b.ExportFunc("add", fn)
	return b
}

func TestExecuteAdd(t *testing.T) {
	inst := loadAndInstantiate(t, addModule())
	idx, ok := inst.FindExportedFunction("add")
	require.True(t, ok)

	results, trap, err := runtime.Execute(inst, idx, []uint64{2, 3}, nil)
	require.NoError(t, err)
	require.Nil(t, trap)
	assert.Equal(t, []uint64{5}, results)
}

func TestExecuteUnreachableTraps(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType(nil, nil))
	fn := b.AddFunc(ft, nil, []byte{0x00}) // unreachable
	b.ExportFunc("boom", fn)

	inst := loadAndInstantiate(t, b)
	idx, _ := inst.FindExportedFunction("boom")
	_, trap, err := runtime.Execute(inst, idx, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, trap)
	assert.Equal(t, runtime.TrapUnreachable, trap.Reason)
}

func TestExecuteDivideByZeroTraps(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType([]byte{byte(wasm.I32), byte(wasm.I32)}, []byte{byte(wasm.I32)}))
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6D} // local.get 0; local.get 1; i32.div_s
	fn := b.AddFunc(ft, nil, body)
	b.ExportFunc("divs", fn)

	inst := loadAndInstantiate(t, b)
	idx, _ := inst.FindExportedFunction("divs")
	_, trap, err := runtime.Execute(inst, idx, []uint64{10, 0}, nil)
	require.NoError(t, err)
	require.NotNil(t, trap)
	assert.Equal(t, runtime.TrapIntegerDivideByZero, trap.Reason)
}

func TestMemReadWriteShortCopy(t *testing.T) {
	b := wasmtest.NewBuilder()
	b.SetMemory(1, 0, false)
	inst := loadAndInstantiate(t, b)

	sample := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	offset := inst.MemSize() - len(sample)

	n := inst.MemWrite(sample, offset)
	assert.Equal(t, len(sample), n)

	readBuf := make([]byte, 15)
	n = inst.MemRead(readBuf, offset)
	assert.Equal(t, len(sample), n)
	assert.Equal(t, sample, readBuf[:n])
}

func TestMemoryGrowRespectsHostCeiling(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType(nil, []byte{byte(wasm.I32)}))
	body := []byte{0x41, 0x01, 0x40, 0x00} // i32.const 1; memory.grow
	fn := b.AddFunc(ft, nil, body)
	b.ExportFunc("grow", fn)
	b.SetMemory(1, 0, false)

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	require.NoError(t, wasm.Validate(m))
	inst, err := runtime.Instantiate(m, runtime.NopResolver{}, 1) // ceiling == current size
	require.NoError(t, err)

	idx, _ := inst.FindExportedFunction("grow")
	results, trap, err := runtime.Execute(inst, idx, nil, nil)
	require.NoError(t, err)
	require.Nil(t, trap)
	assert.Equal(t, []uint64{uint64(uint32(int32(-1)))}, results)
}

func TestCallStackExhaustedTraps(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType(nil, nil))
	// a function that calls itself: call 0
	fn := b.AddFunc(ft, nil, []byte{0x10, 0x00})
	b.ExportFunc("loop", fn)

	inst := loadAndInstantiate(t, b)
	idx, _ := inst.FindExportedFunction("loop")
	// Pre-set depth one below the ceiling: the function's own self-call
	// lands exactly at the limit (allowed), and its next self-call
	// exceeds it and traps, without looping thousands of times.
	ctx := runtime.CreateExecutionContext(runtime.DefaultMaxCallDepth - 1)
	_, trap, err := runtime.Execute(inst, idx, nil, ctx)
	require.NoError(t, err)
	require.NotNil(t, trap)
	assert.Equal(t, runtime.TrapCallStackExhausted, trap.Reason)
}

func TestCallDepthBoundary(t *testing.T) {
	b := wasmtest.NewBuilder()
	ft := b.AddType(wasmtest.FuncType(nil, []byte{byte(wasm.I32)}))
	f0 := b.AddFunc(ft, nil, []byte{0x41, 0x2A}) // i32.const 42
	f1 := b.AddFunc(ft, nil, []byte{0x10, byte(f0)})
	b.ExportFunc("callsF0", f1)

	inst := loadAndInstantiate(t, b)
	idx, _ := inst.FindExportedFunction("callsF0")

	// Depth pre-set to one below the ceiling: the nested call to f0
	// lands exactly at DefaultMaxCallDepth, which is in range.
	ctx := runtime.CreateExecutionContext(runtime.DefaultMaxCallDepth - 1)
	results, trap, err := runtime.Execute(inst, idx, nil, ctx)
	require.NoError(t, err)
	require.Nil(t, trap)
	assert.Equal(t, []uint64{42}, results)

	// Depth pre-set to the ceiling itself: the same nested call now
	// exceeds it.
	ctx = runtime.CreateExecutionContext(runtime.DefaultMaxCallDepth)
	_, trap, err = runtime.Execute(inst, idx, nil, ctx)
	require.NoError(t, err)
	require.NotNil(t, trap)
	assert.Equal(t, runtime.TrapCallStackExhausted, trap.Reason)
}
