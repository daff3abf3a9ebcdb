// Package moduleemit is the Module Emitter (component I, spec.md §4.7): for
// every compiled module it synthesizes a sealed type carrying one static
// field per export and an "$Initialize" method that populates them, mirroring
// the way internal/driver already turns a top-level function or class into a
// callable stub before its body exists (define first, fill later).
//
// Module path segments are not guaranteed to be valid identifiers — a source
// path can contain slashes, dots, and Unicode normalization variants of the
// same logical name (e.g. "café" written with a combining acute vs. the
// precomposed codepoint) — so the synthesized type name runs the path
// through golang.org/x/text/unicode/norm's NFC form before sanitizing it,
// the same normalize-then-compare discipline the teacher's own resolver
// applies to import specifiers.
package moduleemit

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tsilgen/tsilc/internal/il"
)

// Module is one source file's synthesized export surface: a sealed type,
// one static field per export name, and the $Initialize method that fills
// them in.
type Module struct {
	Path       string
	Type       *il.TypeDef
	Exports    map[string]*il.FieldDef
	ExportOrder []string
	Initialize *il.MethodDef
}

// SanitizeName derives a valid, stable type-name fragment from a module
// path: NFC-normalize first (so two byte-distinct but canonically-equal
// paths collide, rather than silently producing two different module
// types for "the same" module), then replace every rune outside
// [A-Za-z0-9_] with an underscore.
func SanitizeName(path string) string {
	normalized := norm.NFC.String(path)
	var b strings.Builder
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// Define defines path's module type and one static field per export name
// (in exportNames order, recorded in ExportOrder for FillInitialize and any
// other later pass that must visit them deterministically — spec.md §8
// property 12), plus the $Initialize stub. Both Type and Initialize are
// callable/referenceable immediately; Initialize's body is filled in later
// by FillInitialize, once the driver knows what each export resolves to.
func Define(asm *il.Assembly, path string, exportNames []string) *Module {
	t := asm.DefineType("$Module_"+SanitizeName(path), il.KindSealed)
	m := &Module{
		Path:        path,
		Type:        t,
		Exports:     make(map[string]*il.FieldDef, len(exportNames)),
		ExportOrder: append([]string(nil), exportNames...),
	}
	for _, name := range exportNames {
		m.Exports[name] = asm.DefineField(t, name, true, "Object")
	}
	m.Initialize = asm.DefineMethod(t, "$Initialize", true, false, 0)
	return m
}

// Bindings tells FillInitialize what each of a module's exported names
// resolves to, once the rest of the pipeline has defined it: a class
// (stored as a type-token value, usable with `instanceof`/`new`), a
// function (wrapped as a callable $TSFunction value, matching
// internal/emit's own emitArrowReference lowering for an uncaptured
// arrow), or neither (an export whose binding isn't yet resolvable to a
// single token — a re-exported or mutable top-level binding — left as a
// documented simplification; see DESIGN.md).
type Bindings struct {
	Classes        map[string]il.TypeToken
	Functions      map[string]il.MethodToken
	TSFunctionType il.TypeToken
}

// FillInitialize fills m.Initialize's body: for each export in
// m.ExportOrder, store its resolved class or function value into the
// matching static field. An export present in neither map is skipped
// (its field stays at its zero value).
func FillInitialize(m *Module, b Bindings) {
	body := &il.Body{}
	for _, name := range m.ExportOrder {
		field := m.Exports[name]
		if tok, ok := b.Classes[name]; ok {
			body.Emit(il.WithA(il.OpLoadTypeToken, uint32(tok), 0))
			body.Emit(il.WithA(il.OpStoreField, uint32(field.Token), 0))
			continue
		}
		if tok, ok := b.Functions[name]; ok {
			body.Emit(il.WithAB(il.OpNewObj, uint32(b.TSFunctionType), uint32(tok), 0))
			body.Emit(il.WithA(il.OpStoreField, uint32(field.Token), 0))
		}
	}
	body.Emit(il.Simple(il.OpReturnVoid, 0))
	m.Initialize.Body = body
	m.Initialize.LocalCount = 0
}

// ExportNames collects the flat set of locally-exported names a module
// declares via `export { a, b as c }` specs (spec.md §4.7); `export *`
// and path-qualified re-exports are resolved by the caller (they name
// another module's own export surface, not a binding local to this file)
// and are not this function's concern.
func ExportNames(specs []ExportSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		local := s.As
		if local == "" {
			local = s.Name
		}
		names = append(names, local)
	}
	return names
}

// ExportSpec mirrors ast.ExportSpec's shape without importing the ast
// package, so callers can feed either ast.ExportSpec values or synthetic
// ones (e.g. a default export) through the same path.
type ExportSpec struct {
	Name string
	As   string
}
