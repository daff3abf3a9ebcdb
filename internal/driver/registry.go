package driver

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/sid"
	"github.com/tsilgen/tsilc/internal/statemachine"
)

// EnumKind classifies a const-enum's member value domain (spec.md §3's
// enum_kind registry).
type EnumKind int

const (
	EnumNumeric EnumKind = iota
	EnumString
	EnumHeterogeneous
)

// FunctionRest records a function's rest-parameter shape (spec.md §3's
// function_rest registry): the index of its `...name` parameter, if any,
// and the count of regular (non-rest) parameters ahead of it.
type FunctionRest struct {
	Index        int
	RegularCount int
}

// registries is every cross-cutting map spec.md §3's registry table names,
// all owned by the Driver for the lifetime of one compilation run. Keys
// that must track AST node identity (arrows) go through arrowID, a
// map[*ast.Arrow]sid.ID translation layer, rather than a
// map[*ast.Arrow]T registry keyed directly on the pointer — see
// DESIGN.md's note on sid.Arena replacing pointer-identity maps.
type registries struct {
	classTypes map[string]*il.TypeDef
	classSuper map[string]string

	staticFields    map[string]map[string]*il.FieldDef
	staticMethods   map[string]map[string]*il.MethodDef
	instanceMethods map[string]map[string]*il.MethodDef
	instanceGetters map[string]map[string]*il.MethodDef
	instanceSetters map[string]map[string]*il.MethodDef
	classCtors      map[string]*il.MethodDef
	// instanceFieldBag is the per-instance property-bag field handle each
	// class carries for its dynamically-added fields (the "Property bag"
	// of the GLOSSARY); declared instance fields are initialized into it
	// rather than getting individual field registry entries, since class
	// instances in the surface language accept ad hoc properties at any
	// time.
	instanceFieldBag map[string]*il.FieldDef

	functions    map[string]*il.MethodDef
	functionRest map[string]FunctionRest

	enumMembers map[string]map[string]interface{} // enum -> member -> float64|string
	enumReverse map[string]map[float64]string
	enumKind    map[string]EnumKind

	arena   *sid.Arena
	arrowID map[*ast.Arrow]sid.ID

	arrowMethod   map[sid.ID]*il.MethodDef // arrows with no captures
	displayClass  map[sid.ID]*il.TypeDef   // arrows with captures
	displayFields map[sid.ID]map[string]*il.FieldDef
	displayCtor   map[sid.ID]*il.MethodDef

	// asyncSM keys by a qualified name ("" + funcName for top-level,
	// "Class.method" for methods) since async functions/methods are named
	// declarations, unlike arrows which key by identity.
	asyncSM      map[string]*statemachine.Descriptor
	asyncArrowSM map[sid.ID]*statemachine.Descriptor

	// Nested-scope linking (spec.md §4.4): asyncArrowParent records the
	// nearest enclosing ASYNC ARROW for an async arrow discovered while
	// analyzing some enclosing async function/method/arrow (absent if its
	// nearest async ancestor is that function/method itself, not another
	// arrow); asyncArrowTopDesc then gives that direct case's descriptor.
	// resolveAsyncOuter (async.go) resolves the rest of the chain from these
	// two maps on demand, once the parent arrow's own descriptor exists in
	// asyncArrowSM (always true by then, since d.closures.Order is
	// pre-order).
	asyncArrowParent  map[sid.ID]*ast.Arrow
	asyncArrowTopDesc map[sid.ID]*statemachine.Descriptor

	moduleType    map[string]*il.TypeDef
	moduleExports map[string]map[string]*il.FieldDef
	moduleInit    map[string]*il.MethodDef
}

func newRegistries() *registries {
	return &registries{
		classTypes:        make(map[string]*il.TypeDef),
		classSuper:        make(map[string]string),
		staticFields:      make(map[string]map[string]*il.FieldDef),
		staticMethods:     make(map[string]map[string]*il.MethodDef),
		instanceMethods:   make(map[string]map[string]*il.MethodDef),
		instanceGetters:   make(map[string]map[string]*il.MethodDef),
		instanceSetters:   make(map[string]map[string]*il.MethodDef),
		classCtors:        make(map[string]*il.MethodDef),
		instanceFieldBag:  make(map[string]*il.FieldDef),
		functions:         make(map[string]*il.MethodDef),
		functionRest:      make(map[string]FunctionRest),
		enumMembers:       make(map[string]map[string]interface{}),
		enumReverse:       make(map[string]map[float64]string),
		enumKind:          make(map[string]EnumKind),
		arena:             sid.NewArena(),
		arrowID:           make(map[*ast.Arrow]sid.ID),
		arrowMethod:       make(map[sid.ID]*il.MethodDef),
		displayClass:      make(map[sid.ID]*il.TypeDef),
		displayFields:     make(map[sid.ID]map[string]*il.FieldDef),
		displayCtor:       make(map[sid.ID]*il.MethodDef),
		asyncSM:           make(map[string]*statemachine.Descriptor),
		asyncArrowSM:      make(map[sid.ID]*statemachine.Descriptor),
		asyncArrowParent:  make(map[sid.ID]*ast.Arrow),
		asyncArrowTopDesc: make(map[sid.ID]*statemachine.Descriptor),
		moduleType:        make(map[string]*il.TypeDef),
		moduleExports:     make(map[string]map[string]*il.FieldDef),
		moduleInit:        make(map[string]*il.MethodDef),
	}
}

// idOf returns arrow's stable sid.ID, assigning one on first use.
func (r *registries) idOf(arrow *ast.Arrow) sid.ID {
	if id, ok := r.arrowID[arrow]; ok {
		return id
	}
	id := r.arena.Assign()
	r.arrowID[arrow] = id
	return id
}

func classKey(className, methodName string) string { return className + "." + methodName }
