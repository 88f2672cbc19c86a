package hir

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// TypeKind discriminates type descriptors.
type TypeKind uint8

const (
	TypeInt TypeKind = iota
	TypePointer
	TypeArray
	TypeStruct
)

// Target layout parameters. The target is word-addressed with a 32-bit
// address space; pointers occupy one word.
const (
	PointerSize  = 4
	AddressRange = uint64(1) << 32
)

// IntWidths is the closed set of supported integer bit widths.
// Width 1 is the boolean/flag type produced by comparisons.
var IntWidths = [...]int{1, 8, 16, 32, 64}

// Field is one named member of a struct type.
type Field struct {
	Name string
	Type Type
}

// TypeDesc describes a type to be interned. Only the fields relevant to
// Kind are consulted.
type TypeDesc struct {
	Kind   TypeKind
	Bits   int     // TypeInt: bit width
	Elem   Type    // TypePointer, TypeArray: referenced/element type
	Len    uint64  // TypeArray: element count
	Fields []Field // TypeStruct: ordered members
}

// typeData is the canonical, interned form of a descriptor plus its
// computed layout.
type typeData struct {
	desc  TypeDesc
	size  uint64
	align uint64
}

// TypeTable interns type descriptors so structurally equal descriptors
// share one handle. It is the only mutable state shared between functions
// compiling in parallel, so all access is lock-protected; interning the
// same descriptor from two goroutines yields the same handle.
type TypeTable struct {
	mu    sync.RWMutex
	types arena[Type, typeData]
	index map[string]Type
}

// NewTypeTable creates an empty intern table.
func NewTypeTable() *TypeTable {
	return &TypeTable{index: make(map[string]Type)}
}

// Intern returns the canonical handle for desc, allocating one if this is
// the first time the descriptor is seen. Component types of composite
// descriptors must already be interned in this table, which also makes
// value-type containment cycles unrepresentable. Returns a *TypeError if
// the descriptor is malformed or its computed size exceeds the target's
// addressable range.
func (tt *TypeTable) Intern(desc TypeDesc) (Type, error) {
	key, err := tt.canonKey(desc)
	if err != nil {
		return NoType, err
	}

	tt.mu.RLock()
	t, ok := tt.index[key]
	tt.mu.RUnlock()
	if ok {
		return t, nil
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()
	// Another goroutine may have interned it between the two lock regions.
	if t, ok := tt.index[key]; ok {
		return t, nil
	}
	size, align, err := tt.layoutLocked(desc)
	if err != nil {
		return NoType, err
	}
	// Copy the field slice so callers cannot mutate interned state.
	if desc.Kind == TypeStruct {
		desc.Fields = append([]Field(nil), desc.Fields...)
	}
	t = tt.types.alloc(typeData{desc: desc, size: size, align: align})
	tt.index[key] = t
	return t, nil
}

// Int returns the interned integer type of the given bit width.
func (tt *TypeTable) Int(bits int) (Type, error) {
	return tt.Intern(TypeDesc{Kind: TypeInt, Bits: bits})
}

// Pointer returns the interned pointer-to-elem type.
func (tt *TypeTable) Pointer(elem Type) (Type, error) {
	return tt.Intern(TypeDesc{Kind: TypePointer, Elem: elem})
}

// Array returns the interned array type of n elements of elem.
func (tt *TypeTable) Array(elem Type, n uint64) (Type, error) {
	return tt.Intern(TypeDesc{Kind: TypeArray, Elem: elem, Len: n})
}

// Struct returns the interned struct type with the given ordered fields.
func (tt *TypeTable) Struct(fields ...Field) (Type, error) {
	return tt.Intern(TypeDesc{Kind: TypeStruct, Fields: fields})
}

// Desc returns the descriptor for t. The returned fields slice must not be
// mutated.
func (tt *TypeTable) Desc(t Type) (TypeDesc, bool) {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	td := tt.types.get(t)
	if td == nil {
		return TypeDesc{}, false
	}
	return td.desc, true
}

// Kind returns the kind of t. It panics on an invalid handle; handles are
// only produced by Intern, so an invalid handle is a programming error.
func (tt *TypeTable) Kind(t Type) TypeKind {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.mustGet(t).desc.Kind
}

// SizeOf returns the size of t in bytes under the target's layout rules.
func (tt *TypeTable) SizeOf(t Type) uint64 {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.mustGet(t).size
}

// AlignOf returns the alignment of t in bytes.
func (tt *TypeTable) AlignOf(t Type) uint64 {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.mustGet(t).align
}

// IsAssignable reports whether a value of type src may be used where dst is
// expected. There is no implicit widening: interned handles are equal
// exactly when the types are structurally equal.
func (tt *TypeTable) IsAssignable(src, dst Type) bool {
	return src == dst && src.IsValid()
}

// IsInt reports whether t is an integer type (of any width).
func (tt *TypeTable) IsInt(t Type) bool {
	desc, ok := tt.Desc(t)
	return ok && desc.Kind == TypeInt
}

// IsPointer reports whether t is a pointer type.
func (tt *TypeTable) IsPointer(t Type) bool {
	desc, ok := tt.Desc(t)
	return ok && desc.Kind == TypePointer
}

// String renders t in a compact textual form, e.g. "i32", "*i8",
// "[4]i64", "{x: i32, y: i32}".
func (tt *TypeTable) String(t Type) string {
	desc, ok := tt.Desc(t)
	if !ok {
		return fmt.Sprintf("type(%d)", t)
	}
	switch desc.Kind {
	case TypeInt:
		return fmt.Sprintf("i%d", desc.Bits)
	case TypePointer:
		return "*" + tt.String(desc.Elem)
	case TypeArray:
		return fmt.Sprintf("[%d]%s", desc.Len, tt.String(desc.Elem))
	case TypeStruct:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, f := range desc.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			sb.WriteString(tt.String(f.Type))
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

func (tt *TypeTable) mustGet(t Type) *typeData {
	td := tt.types.get(t)
	if td == nil {
		panic(fmt.Sprintf("hir: invalid type handle %d", t))
	}
	return td
}

// canonKey builds the canonical intern key for a descriptor and validates
// its shape. Component handles are embedded in the key, so structural
// equality of descriptors is exactly key equality.
func (tt *TypeTable) canonKey(desc TypeDesc) (string, error) {
	switch desc.Kind {
	case TypeInt:
		ok := false
		for _, w := range IntWidths {
			if desc.Bits == w {
				ok = true
				break
			}
		}
		if !ok {
			return "", &TypeError{Msg: fmt.Sprintf("unsupported integer width %d", desc.Bits)}
		}
		return fmt.Sprintf("i%d", desc.Bits), nil
	case TypePointer:
		if !tt.contains(desc.Elem) {
			return "", &TypeError{Msg: "pointer element type is not interned in this table"}
		}
		return fmt.Sprintf("p%d", desc.Elem), nil
	case TypeArray:
		if !tt.contains(desc.Elem) {
			return "", &TypeError{Msg: "array element type is not interned in this table"}
		}
		return fmt.Sprintf("a%d:%d", desc.Elem, desc.Len), nil
	case TypeStruct:
		var sb strings.Builder
		sb.WriteByte('s')
		for _, f := range desc.Fields {
			if !tt.contains(f.Type) {
				return "", &TypeError{Msg: fmt.Sprintf("struct field %q type is not interned in this table", f.Name)}
			}
			fmt.Fprintf(&sb, "%s:%d;", f.Name, f.Type)
		}
		return sb.String(), nil
	default:
		return "", &TypeError{Msg: fmt.Sprintf("unknown type kind %d", desc.Kind)}
	}
}

func (tt *TypeTable) contains(t Type) bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.types.get(t) != nil
}

// layoutLocked computes size and alignment for desc. Caller holds tt.mu.
func (tt *TypeTable) layoutLocked(desc TypeDesc) (size, align uint64, err error) {
	switch desc.Kind {
	case TypeInt:
		switch desc.Bits {
		case 1, 8:
			return 1, 1, nil
		case 16:
			return 2, 2, nil
		case 32:
			return 4, 4, nil
		case 64:
			return 8, 8, nil
		}
		return 0, 0, &TypeError{Msg: fmt.Sprintf("unsupported integer width %d", desc.Bits)}
	case TypePointer:
		return PointerSize, PointerSize, nil
	case TypeArray:
		elem := tt.types.get(desc.Elem)
		elemSize := alignUp(elem.size, elem.align)
		if desc.Len != 0 && elemSize > math.MaxUint64/desc.Len {
			return 0, 0, &TypeError{Msg: "array size overflows the addressable range"}
		}
		size = elemSize * desc.Len
		if size >= AddressRange {
			return 0, 0, &TypeError{Msg: "array size overflows the addressable range"}
		}
		return size, elem.align, nil
	case TypeStruct:
		align = 1
		for _, f := range desc.Fields {
			fd := tt.types.get(f.Type)
			size = alignUp(size, fd.align) + fd.size
			if fd.align > align {
				align = fd.align
			}
			if size >= AddressRange {
				return 0, 0, &TypeError{Msg: "struct size overflows the addressable range"}
			}
		}
		size = alignUp(size, align)
		if size >= AddressRange {
			return 0, 0, &TypeError{Msg: "struct size overflows the addressable range"}
		}
		return size, align, nil
	}
	return 0, 0, &TypeError{Msg: fmt.Sprintf("unknown type kind %d", desc.Kind)}
}

func alignUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
