package ast

// TypeMap is the "type map" collaborator of spec.md §6: a mapping from
// expression nodes to inferred types, supplied by an upstream type checker.
// It drives typed-array fast paths and dispatch optimizations but nothing in
// this package requires it to be populated.
type TypeMap interface {
	TypeOf(e Expr) (name string, ok bool)
}

// EmptyTypeMap is a TypeMap that knows nothing; used when no type checker
// output is available (e.g. ad hoc single-file compiles in tests).
type EmptyTypeMap struct{}

func (EmptyTypeMap) TypeOf(Expr) (string, bool) { return "", false }

// DeadCodeInfo is the "dead-code info" collaborator of spec.md §6: the set
// of declarations known to be unreachable. The driver stores the value it
// is given but never consults it: every declaration is compiled, including
// ones reported dead here.
type DeadCodeInfo interface {
	IsDead(declName string) bool
}

// NoDeadCode reports every declaration as live.
type NoDeadCode struct{}

func (NoDeadCode) IsDead(string) bool { return false }
