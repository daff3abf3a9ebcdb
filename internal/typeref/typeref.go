// Package typeref is the Type Mapper (component A, spec.md §2/§4 table):
// it maps surface type names from the upstream type-checker's type map
// (ast.TypeMap, spec.md §6) onto the handful of target-representation kinds
// the rest of the pipeline cares about, and resolves generic-parameter
// references against the generic environment active at a call site.
//
// The target representation distinguishes far fewer kinds than the surface
// language: everything that is not one of the three boxed primitives or
// void/null is just "object" at the IL level (spec.md §4.5's box/unbox
// discipline), matching the teacher's internal/types package, whose Type
// interface exposes only String()/TypeKind() and a small closed set of
// primitive constants (INTEGER, FLOAT, STRING, BOOLEAN, NIL, VOID, VARIANT).
package typeref

import "github.com/tsilgen/tsilc/internal/il"

// Kind is the target-representation classification of a surface type.
type Kind int

const (
	KindObject Kind = iota // the universal boxed-object slot; the default
	KindNumber
	KindBoolean
	KindString
	KindVoid
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindVoid:
		return "Void"
	case KindNull:
		return "Null"
	default:
		return "Object"
	}
}

// PrimitiveKind reports the il.PrimitiveKind a Kind boxes/unboxes as, and
// whether it is a primitive at all (KindObject, KindVoid, KindNull are not).
func (k Kind) PrimitiveKind() (il.PrimitiveKind, bool) {
	switch k {
	case KindNumber:
		return il.PrimNumber, true
	case KindBoolean:
		return il.PrimBool, true
	case KindString:
		return il.PrimString, true
	default:
		return 0, false
	}
}

// surfaceToKind is the fixed mapping from the surface type-checker's
// primitive type names to target Kinds. Anything absent from this table —
// class names, interface names, array/tuple/union types, `any` — maps to
// KindObject: codegen does not need a finer-grained target type for those,
// since class instances are always references and ad hoc shapes travel
// through the property bag (spec.md §4.5).
var surfaceToKind = map[string]Kind{
	"number":    KindNumber,
	"boolean":   KindBoolean,
	"string":    KindString,
	"void":      KindVoid,
	"undefined": KindVoid,
	"null":      KindNull,
}

// Map resolves surface type names to target Kinds, substituting generic
// type parameters against an active environment.
type Map struct {
	// genericEnv binds a type parameter name (e.g. "T") to the concrete
	// surface type name it was instantiated with at the current call site.
	// The driver pushes/pops bindings as it enters/leaves generic
	// functions and classes; Resolve consults the innermost binding.
	genericEnv []map[string]string
}

// New creates an empty Map with no active generic bindings.
func New() *Map {
	return &Map{}
}

// PushGenericEnv enters a new generic instantiation scope.
func (m *Map) PushGenericEnv(bindings map[string]string) {
	m.genericEnv = append(m.genericEnv, bindings)
}

// PopGenericEnv leaves the innermost generic instantiation scope.
func (m *Map) PopGenericEnv() {
	if len(m.genericEnv) > 0 {
		m.genericEnv = m.genericEnv[:len(m.genericEnv)-1]
	}
}

// resolveGeneric follows name through the active generic environment,
// innermost scope first, until it finds a non-type-parameter name or runs
// out of bindings (at which point name is returned unchanged — it was
// never a type parameter, or it is an unresolved one, which is not this
// package's problem to flag; the upstream type-checker owns that).
func (m *Map) resolveGeneric(name string) string {
	for i := len(m.genericEnv) - 1; i >= 0; i-- {
		if bound, ok := m.genericEnv[i][name]; ok {
			name = bound
			continue
		}
	}
	return name
}

// Kind maps a surface type name (after generic-parameter resolution) to its
// target Kind.
func (m *Map) Kind(surfaceName string) Kind {
	resolved := m.resolveGeneric(surfaceName)
	if k, ok := surfaceToKind[resolved]; ok {
		return k
	}
	return KindObject
}
