package hir

// Entity handles are typed integer references into per-function (or
// per-module, for types) arenas. A handle of zero is invalid; the first
// allocated entity gets handle 1. Handles are never reused: removal of an
// entity (e.g. dead-code elimination detaching an instruction) leaves a
// tombstone in the arena, so a stale handle held by older code resolves to
// the detached entity rather than aliasing new data.

// Block identifies a basic block within a Function.
type Block uint32

// Inst identifies an instruction within a Function.
type Inst uint32

// Value identifies an SSA value within a Function.
type Value uint32

// Type identifies an interned type descriptor within a Module.
type Type uint32

// Invalid handle sentinels.
const (
	NoBlock Block = 0
	NoInst  Inst  = 0
	NoValue Value = 0
	NoType  Type  = 0
)

// IsValid reports whether the handle refers to an allocated entity.
func (b Block) IsValid() bool { return b != NoBlock }

// IsValid reports whether the handle refers to an allocated entity.
func (i Inst) IsValid() bool { return i != NoInst }

// IsValid reports whether the handle refers to an allocated entity.
func (v Value) IsValid() bool { return v != NoValue }

// IsValid reports whether the handle refers to an allocated entity.
func (t Type) IsValid() bool { return t != NoType }

// arena is an append-only store of T addressed by 1-based handles.
type arena[H ~uint32, T any] struct {
	items []T
}

// alloc stores v and returns its fresh handle.
func (a *arena[H, T]) alloc(v T) H {
	a.items = append(a.items, v)
	return H(len(a.items))
}

// get returns a pointer to the entity for h, or nil if h was never
// allocated in this arena.
func (a *arena[H, T]) get(h H) *T {
	if h == 0 || int(h) > len(a.items) {
		return nil
	}
	return &a.items[h-1]
}

// len returns the number of allocated entities.
func (a *arena[H, T]) len() int {
	return len(a.items)
}
