// Package driver continued: Driver itself and the top-level Compile/
// CompileModules entry points implementing the fixed 11-phase pipeline of
// spec.md §4.1:
//
//  1. install runtime support types
//  2. closure analysis over every statement, across all modules, pre-merged
//  3. define $Program (and, for multi-module compiles, one type per module)
//  4. define classes/functions/enums
//  5. collect and define arrow functions (static method or display class)
//  6. emit non-async arrow bodies
//  6.3. pre-define class method/getter/setter/constructor stubs
//  6.5. build and emit async state machines
//  7. emit remaining (non-async) bodies
//  8. emit the entry point
//  9. finalize types and verify
//
// Every phase after the first is implemented by a method in a sibling file
// in this package (classes.go, arrows.go, async.go, bodies.go, entry.go);
// driver.go only owns the Driver's state and phase sequencing, mirroring
// how the teacher's internal/bytecode.Compiler drives a fixed compile
// pipeline (parse -> resolve -> emit) from one method while delegating each
// stage's real work to file-scoped helpers.
package driver

import (
	"sort"

	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/closure"
	"github.com/tsilgen/tsilc/internal/emit"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/moduleemit"
	"github.com/tsilgen/tsilc/internal/resolveriface"
	"github.com/tsilgen/tsilc/internal/runtimeiface"
	"github.com/tsilgen/tsilc/internal/typeref"
)

// Driver owns every piece of state the 11-phase pipeline shares: the
// assembly under construction, the cross-cutting registries (spec.md §3),
// the shared emitter, and the merged statement list being compiled.
type Driver struct {
	cfg Config

	asm     *il.Assembly
	reg     *registries
	rt      runtimeiface.Runtime
	runtime runtimeiface.Handle
	types   *typeref.Map
	emitter *emit.Emitter

	program *il.TypeDef // $Program, the home for top-level functions and arrows

	stmts   []ast.Stmt
	typeMap ast.TypeMap
	dead    ast.DeadCodeInfo

	closures *closure.Result

	// moduleOrder, when compiling multiple modules, is the dependency order
	// phase 8 calls $Initialize in (spec.md §4.7). Empty for single-module
	// compiles.
	moduleOrder []string

	// cctors collects every class's synthesized static-field initializer
	// method (phase 7), in the declaration order bodies.go visits classes
	// in, for phase 8 to call before the entry point's own body runs. Not
	// part of the registries table (spec.md §3): nothing ever looks one up
	// by class name, it is only ever walked in full.
	cctors []*il.MethodDef
}

// New creates a Driver configured by cfg, using the stub runtime
// (runtimeiface.NewStub) unless a real one is wired in by a future caller.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg, rt: runtimeiface.NewStub()}
}

// WithRuntime overrides the Runtime collaborator phase 1 installs (spec.md
// §6); tests substitute a smaller stub, a real deployment would substitute
// the actual runtime-library emitter.
func (d *Driver) WithRuntime(rt runtimeiface.Runtime) *Driver {
	d.rt = rt
	return d
}

// Compile runs the full pipeline over a single pre-merged statement list —
// one module, or several modules' statements already merged by the caller
// with no module-boundary bookkeeping (the common case for a single-file
// script, spec.md §2's "simplest target": no imports/exports at all).
func (d *Driver) Compile(stmts []ast.Stmt, typeMap ast.TypeMap, dead ast.DeadCodeInfo) (*il.Assembly, error) {
	d.asm = il.NewAssembly("tsilc")
	d.reg = newRegistries()
	d.types = typeref.New()
	d.stmts = stmts
	d.typeMap = typeMap
	d.dead = dead

	// Phase 1.
	d.runtime = d.rt.Install(d.asm)

	// Phase 2.
	d.closures = closure.Analyze(stmts)

	// Phase 3.
	d.program = d.asm.DefineType("$Program", il.KindSealed)

	d.emitter = emit.New(d.asm, d.reg.classTypes, d.reg.functions, d.runtime, d.types, typeMap)
	d.emitter.Resolve = d.resolveMethod
	d.emitter.Field = d.resolveField
	d.emitter.ArrowRef = d.resolveArrow
	d.emitter.EnumRef = d.resolveEnum
	d.emitter.ArrowCaptureHook = d.wireOuterCapture

	// Phase 4.
	if err := d.defineClassesFunctionsEnums(stmts); err != nil {
		return nil, err
	}

	// Phase 5.
	if err := d.collectAndDefineArrows(); err != nil {
		return nil, err
	}

	// Phase 6.
	if err := d.emitArrowBodies(); err != nil {
		return nil, err
	}

	// Phase 6.3.
	if err := d.predefineClassMemberStubs(); err != nil {
		return nil, err
	}

	// Phase 6.5.
	if err := d.buildAsyncStateMachines(); err != nil {
		return nil, err
	}

	// Phase 7.
	if err := d.emitRemainingBodies(); err != nil {
		return nil, err
	}

	// Phase 8.
	if err := d.emitEntryPoint(); err != nil {
		return nil, err
	}

	// Phase 9.
	return d.finalize()
}

// CompileModules compiles several modules together (spec.md §4.7): imports
// are resolved via resolver into a dependency graph, modules are merged in
// topological order so import cycles surface as MOD001, and each module
// gets its own synthesized type (internal/moduleemit) instead of folding
// everything into a single $Program. The phases that follow phase 3 run
// exactly as Compile's do, over the concatenation of every module's
// statements in dependency order — the merge spec.md §4.1 phase 2 calls
// for happens here, once, rather than per module.
func (d *Driver) CompileModules(modules []*ast.File, resolver resolveriface.Resolver, typeMap ast.TypeMap, dead ast.DeadCodeInfo) (*il.Assembly, error) {
	order, err := topoSortModules(modules, resolver)
	if err != nil {
		return nil, err
	}
	d.moduleOrder = order

	byPath := make(map[string]*ast.File, len(modules))
	for _, m := range modules {
		byPath[m.Path] = m
	}

	var merged []ast.Stmt
	for _, path := range order {
		merged = append(merged, byPath[path].Stmts...)
	}

	asm, err := d.Compile(merged, typeMap, dead)
	if err != nil {
		return nil, err
	}

	// Every module's statements were compiled into the single shared
	// $Program/class namespace above (phases 1-9 don't distinguish which
	// module a declaration came from); synthesize each module's own export
	// surface (component I) as a thin view over that shared namespace —
	// one sealed type per module, with $Initialize copying each exported
	// class or function's already-defined token into a static field.
	for _, path := range order {
		file := byPath[path]
		names := moduleemit.ExportNames(localExportSpecs(file))
		mod := moduleemit.Define(d.asm, path, names)

		bindings := moduleemit.Bindings{TSFunctionType: d.runtime.TSFunction}
		if len(names) > 0 {
			bindings.Classes = make(map[string]il.TypeToken, len(names))
			bindings.Functions = make(map[string]il.MethodToken, len(names))
			for _, name := range names {
				if t, ok := d.reg.classTypes[name]; ok {
					bindings.Classes[name] = t.Token
				}
				if fn, ok := d.reg.functions[name]; ok {
					bindings.Functions[name] = fn.Token
				}
			}
		}
		moduleemit.FillInitialize(mod, bindings)

		d.reg.moduleType[path] = mod.Type
		d.reg.moduleExports[path] = mod.Exports
		d.reg.moduleInit[path] = mod.Initialize
	}

	// $Main's body was already finalized against an empty moduleInit
	// registry (module types don't exist until the loop above runs, since
	// synthesizing them needs the class/function tokens phases 4-7 define);
	// splice each module's $Initialize call onto the front now, in
	// dependency order, ahead of the cctor/entry-function calls phase 8
	// already emitted.
	main := d.reg.functions["$Main"]
	var prefix []il.Instruction
	for _, path := range order {
		prefix = append(prefix, il.WithA(il.OpCallStatic, uint32(d.reg.moduleInit[path].Token), 0))
	}
	main.Body.Code = append(prefix, main.Body.Code...)

	if err := d.asm.Verify(); err != nil {
		return nil, errors.New(errors.IMG001, ast.Pos{}, "%s", err.Error())
	}
	return asm, nil
}

// localExportSpecs flattens file's locally-named export declarations
// (`export { a, b as c }`) into moduleemit.ExportSpec values; `export *
// from "..."` and path-qualified re-exports name another module's export
// surface rather than a binding local to this file, so they are not
// collected here — a documented simplification (see DESIGN.md) until a
// re-export indirection is wired through moduleemit.Bindings.
func localExportSpecs(file *ast.File) []moduleemit.ExportSpec {
	var specs []moduleemit.ExportSpec
	for _, ed := range file.Exports {
		if ed.Path != "" || ed.Star {
			continue
		}
		for _, s := range ed.Specs {
			specs = append(specs, moduleemit.ExportSpec{Name: s.Name, As: s.As})
		}
	}
	return specs
}

// topoSortModules orders modules so every module appears after everything
// it imports, detecting cycles as MOD001 (spec.md §4.7, §7).
func topoSortModules(modules []*ast.File, resolver resolveriface.Resolver) ([]string, error) {
	byPath := make(map[string]*ast.File, len(modules))
	for _, m := range modules {
		byPath[m.Path] = m
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(modules))
	var order []string

	var visit func(path string) error
	visit = func(path string) error {
		switch color[path] {
		case black:
			return nil
		case gray:
			return errors.New(errors.MOD001, ast.Pos{}, "import cycle detected at module %q", path)
		}
		color[path] = gray
		file := byPath[path]
		if file != nil {
			for _, imp := range file.Imports {
				resolved, err := resolver.Resolve(path, imp.Path)
				if err != nil {
					return err
				}
				if _, ok := byPath[resolved]; !ok {
					continue // external/untracked module: nothing to order
				}
				if err := visit(resolved); err != nil {
					return err
				}
			}
		}
		color[path] = black
		order = append(order, path)
		return nil
	}

	paths := make([]string, 0, len(modules))
	for _, m := range modules {
		paths = append(paths, m.Path)
	}
	sort.Strings(paths) // deterministic iteration order for reproducible output (spec.md §8 property 12)
	for _, p := range paths {
		if err := visit(p); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// resolveMethod implements emit.MethodResolver against the class registries.
func (d *Driver) resolveMethod(className, methodName string) (il.MethodToken, bool) {
	if methods, ok := d.reg.instanceMethods[className]; ok {
		if m, ok := methods[methodName]; ok {
			return m.Token, true
		}
	}
	if methods, ok := d.reg.staticMethods[className]; ok {
		if m, ok := methods[methodName]; ok {
			return m.Token, true
		}
	}
	if className != "" {
		if super, ok := d.reg.classSuper[className]; ok && super != "" {
			return d.resolveMethod(super, methodName)
		}
	}
	return 0, false
}

// resolveField implements emit.FieldResolver against the static-field
// registry; declared instance fields live in the per-instance property bag
// (see registries.instanceFieldBag's doc comment) so only static fields
// resolve to a direct token here.
func (d *Driver) resolveField(className, fieldName string) (il.FieldToken, bool) {
	if fields, ok := d.reg.staticFields[className]; ok {
		if f, ok := fields[fieldName]; ok {
			return f.Token, true
		}
	}
	return 0, false
}

// resolveArrow implements emit.ArrowResolver against the driver's
// arrow/display-class registries, populated by phase 5.
func (d *Driver) resolveArrow(arrow *ast.Arrow) emit.ArrowRef {
	id := d.reg.idOf(arrow)
	if t, ok := d.reg.displayClass[id]; ok {
		fields := d.reg.displayFields[id]
		names := d.ctorParamNames(arrow)
		captures := make([]emit.ArrowCapture, len(names))
		for i, name := range names {
			captures[i] = emit.ArrowCapture{Name: name, Field: fields[name]}
		}
		return emit.ArrowRef{
			Token:     uint32(t.Token),
			Ctor:      uint32(d.reg.displayCtor[id].Token),
			Captures:  captures,
			IsDisplay: true,
		}
	}
	if m, ok := d.reg.arrowMethod[id]; ok {
		return emit.ArrowRef{Token: uint32(m.Token)}
	}
	return emit.ArrowRef{}
}

// resolveEnum implements emit.EnumResolver against the enum-member
// registry populated by phase 4's const-expression evaluator.
func (d *Driver) resolveEnum(enumName, memberName string) (interface{}, bool) {
	members, ok := d.reg.enumMembers[enumName]
	if !ok {
		return nil, false
	}
	v, ok := members[memberName]
	return v, ok
}
