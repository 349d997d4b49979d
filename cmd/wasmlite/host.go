package main

import (
	"github.com/sirupsen/logrus"

	"github.com/wasmlite/wasmlite/runtime"
)

// envResolver supplies the minimal "env" host module every plain
// wasmlite-run module can import from: a byte-slice logger and an
// abort hook, in place of the teacher's blockchain-storage functions
// (set_storage/get_storage), which belong to a host-function layer
// this interpreter deliberately leaves to the embedder.
type envResolver struct {
	log logrus.FieldLogger
}

func (r envResolver) ResolveFunc(module, name string) (runtime.HostFunction, bool) {
	if module != "env" {
		return nil, false
	}
	switch name {
	case "log":
		return r.logBytes, true
	case "abort":
		return r.abort, true
	default:
		return nil, false
	}
}

func (r envResolver) ResolveGlobal(module, name string) (uint64, bool) { return 0, false }
func (r envResolver) ResolveTable(module, name string) (*runtime.TableInstance, bool) {
	return nil, false
}
func (r envResolver) ResolveMemory(module, name string) (*runtime.MemoryInstance, bool) {
	return nil, false
}

// logBytes implements env.log(ptr, len): reads len bytes at ptr out of
// the calling instance's memory and logs them as a string.
func (r envResolver) logBytes(inst *runtime.Instance, args []uint64) (uint64, *runtime.Trap) {
	ptr := int(uint32(args[0]))
	size := int(uint32(args[1]))
	buf := make([]byte, size)
	n := inst.MemRead(buf, ptr)
	r.log.WithField("bytes", n).Info(string(buf[:n]))
	return 0, nil
}

// abort implements env.abort(code): a module-initiated early exit,
// surfaced as a trap rather than a process exit so the embedding
// caller decides what to do next.
func (r envResolver) abort(inst *runtime.Instance, args []uint64) (uint64, *runtime.Trap) {
	r.log.WithField("code", args[0]).Warn("module called env.abort")
	return 0, &runtime.Trap{Reason: runtime.TrapUnreachable}
}
