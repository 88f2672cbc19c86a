package hir

import "fmt"

// SourceLoc is opaque per-instruction source metadata, passed through from
// the front end for diagnostics. The zero value means "unknown".
type SourceLoc struct {
	File string
	Line int
	Col  int
}

// IsKnown reports whether the location carries real position data.
func (l SourceLoc) IsKnown() bool { return l.File != "" || l.Line != 0 }

func (l SourceLoc) String() string {
	if !l.IsKnown() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// TypeError reports a type-system contract violation: a malformed
// descriptor or a composite whose size exceeds the target's addressable
// range.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string {
	return "type error: " + e.Msg
}

// BuilderError reports malformed IR construction: an operand/type mismatch
// or an append to a sealed block.
type BuilderError struct {
	Func  string
	Block Block
	Loc   SourceLoc
	Msg   string
}

func (e *BuilderError) Error() string {
	s := fmt.Sprintf("builder error in %s", e.Func)
	if e.Block.IsValid() {
		s += fmt.Sprintf(" (block%d)", e.Block)
	}
	if e.Loc.IsKnown() {
		s += " at " + e.Loc.String()
	}
	return s + ": " + e.Msg
}
