package runtime

// HostFunction is a function supplied by the embedder to satisfy a
// module's function import. args is sized to the import's parameter
// count; the return value is ignored by the caller when the import's
// signature has zero results.
type HostFunction func(inst *Instance, args []uint64) (uint64, *Trap)

// Resolver lets an embedder satisfy a module's imports. A nil return
// (false ok) for any Resolve method fails instantiation with an
// Instantiation-kind error.
type Resolver interface {
	ResolveFunc(module, name string) (HostFunction, bool)
	ResolveGlobal(module, name string) (uint64, bool)
	ResolveTable(module, name string) (*TableInstance, bool)
	ResolveMemory(module, name string) (*MemoryInstance, bool)
}

// NopResolver satisfies Resolver for modules with no imports; every
// Resolve call fails.
type NopResolver struct{}

func (NopResolver) ResolveFunc(module, name string) (HostFunction, bool)      { return nil, false }
func (NopResolver) ResolveGlobal(module, name string) (uint64, bool)          { return 0, false }
func (NopResolver) ResolveTable(module, name string) (*TableInstance, bool)   { return nil, false }
func (NopResolver) ResolveMemory(module, name string) (*MemoryInstance, bool) { return nil, false }
