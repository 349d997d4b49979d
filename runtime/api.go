package runtime

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/wasmlite/wasmlite/wasm"
)

// Runtime is the top-level embedding handle: it owns a logger and the
// default execution limits new instances inherit. The zero value is
// usable — it logs nowhere and applies DefaultMaxCallDepth.
type Runtime struct {
	Log             logrus.FieldLogger
	HostPageCeiling uint32
	MaxCallDepth    int
	MeteredTicks    int64 // 0 means unmetered
}

// defaultHostPageCeiling is generous enough for ordinary embedding use
// without requiring every caller to pick a number; 4GiB of pages.
const defaultHostPageCeiling = 65536

// NewRuntime returns a Runtime that logs nothing and applies
// DefaultMaxCallDepth with no tick metering.
func NewRuntime() *Runtime {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Runtime{
		Log:             log,
		HostPageCeiling: defaultHostPageCeiling,
		MaxCallDepth:    DefaultMaxCallDepth,
	}
}

// LoadModule parses and validates wasm bytecode in one step, the
// combination nearly every embedder wants: a module is never
// instantiated without first being validated.
func (rt *Runtime) LoadModule(b []byte) (*wasm.Module, error) {
	m, err := wasm.Parse(b)
	if err != nil {
		rt.logger().WithError(err).Warn("module parse failed")
		return nil, err
	}
	if err := wasm.Validate(m); err != nil {
		rt.logger().WithError(err).Warn("module validation failed")
		return nil, err
	}
	return m, nil
}

// Instantiate resolves m's imports against resolver and runs its start
// function, using rt's configured host page ceiling.
func (rt *Runtime) Instantiate(m *wasm.Module, resolver Resolver) (*Instance, error) {
	inst, err := Instantiate(m, resolver, rt.HostPageCeiling)
	if err != nil {
		rt.logger().WithError(err).Warn("instantiation failed")
		return nil, err
	}
	return inst, nil
}

// Call resolves name as an exported function on inst and executes it
// with args, applying rt's configured call-depth and tick limits.
func (rt *Runtime) Call(inst *Instance, name string, args ...uint64) ([]uint64, *Trap, error) {
	idx, ok := inst.FindExportedFunction(name)
	if !ok {
		return nil, nil, errorf("no exported function named %q", name)
	}
	ctx := rt.newExecutionContext()
	results, trap, err := Execute(inst, idx, args, ctx)
	if trap != nil {
		rt.logger().WithField("function", name).WithField("trap", trap.Reason.String()).Info("execution trapped")
	}
	return results, trap, err
}

// newExecutionContext starts a fresh call (depth 0) bounded by rt's
// configured ceiling, which may tighten DefaultMaxCallDepth but never
// loosen it.
func (rt *Runtime) newExecutionContext() *ExecutionContext {
	maxDepth := rt.MaxCallDepth
	if maxDepth <= 0 || maxDepth > DefaultMaxCallDepth {
		maxDepth = DefaultMaxCallDepth
	}
	return newExecutionContextWithCeiling(0, maxDepth, rt.MeteredTicks > 0, rt.MeteredTicks)
}

func (rt *Runtime) logger() logrus.FieldLogger {
	if rt.Log == nil {
		log := logrus.New()
		log.SetOutput(io.Discard)
		return log
	}
	return rt.Log
}
