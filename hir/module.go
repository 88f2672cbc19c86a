package hir

import (
	"fmt"
	"sync"
)

// Module is the top-level owner of functions and the interned type table
// for one compilation unit. Functions are independent of each other except
// for the type table, which is safe for concurrent interning, so separate
// functions may be compiled in parallel.
type Module struct {
	name  string
	types *TypeTable

	mu    sync.Mutex
	funcs []*Function
	index map[string]*Function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		name:  name,
		types: NewTypeTable(),
		index: make(map[string]*Function),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Types returns the module's type intern table.
func (m *Module) Types() *TypeTable { return m.types }

// NewFunction creates an empty function with the given symbol and
// signature, owned by this module. The symbol must be unique.
func (m *Module) NewFunction(name string, sig Signature) (*Function, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[name]; ok {
		return nil, fmt.Errorf("module %s: duplicate function symbol %q", m.name, name)
	}
	f := &Function{mod: m, name: name, sig: sig}
	m.funcs = append(m.funcs, f)
	m.index[name] = f
	return f, nil
}

// Function returns the function with the given symbol, or nil.
func (m *Module) Function(name string) *Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index[name]
}

// Functions returns all functions in creation order.
func (m *Module) Functions() []*Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Function(nil), m.funcs...)
}
