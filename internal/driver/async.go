package driver

import (
	"fmt"

	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/asyncflow"
	"github.com/tsilgen/tsilc/internal/asyncmove"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/sid"
	"github.com/tsilgen/tsilc/internal/statemachine"
)

// predefineClassMemberStubs is phase 6.3: define every class's static
// field cctor aside, method/getter/setter/constructor stub — static and
// instance alike, in one pass. The literal registry split in spec.md §3
// distinguishes a later point for static methods; this driver defines
// every member's stub here regardless of static-ness, a simplification
// that holds since a single-assembly compile has no
// use for the finer-grained timing and every stub still exists, fully
// callable, before any body (including an async one) is emitted.
func (d *Driver) predefineClassMemberStubs() error {
	for _, s := range d.stmts {
		c, ok := s.(*ast.ClassDecl)
		if !ok {
			continue
		}
		t := d.reg.classTypes[c.Name]
		d.reg.staticMethods[c.Name] = make(map[string]*il.MethodDef)
		d.reg.instanceMethods[c.Name] = make(map[string]*il.MethodDef)
		d.reg.instanceGetters[c.Name] = make(map[string]*il.MethodDef)
		d.reg.instanceSetters[c.Name] = make(map[string]*il.MethodDef)

		// Every class gets a constructor stub, declared or not: instance
		// field initializers (phase 7) need somewhere to run even for a
		// class with no explicit constructor method.
		ctorParamCount := 1
		for i := range c.Methods {
			if c.Methods[i].Kind == ast.MethodConstructor {
				ctorParamCount = len(c.Methods[i].Params) + 1
			}
		}
		d.reg.classCtors[c.Name] = d.asm.DefineMethod(t, "constructor", false, false, ctorParamCount)

		for i := range c.Methods {
			m := &c.Methods[i]
			switch m.Kind {
			case ast.MethodConstructor:
				// stub already defined above.
			case ast.MethodGetter:
				g := d.asm.DefineMethod(t, "get_"+m.Name, false, true, 1)
				d.reg.instanceGetters[c.Name][m.Name] = g
			case ast.MethodSetter:
				st := d.asm.DefineMethod(t, "set_"+m.Name, false, true, 2)
				d.reg.instanceSetters[c.Name][m.Name] = st
			default:
				if m.Static {
					d.reg.staticMethods[c.Name][m.Name] = d.asm.DefineMethod(t, m.Name, true, false, len(m.Params))
				} else {
					d.reg.instanceMethods[c.Name][m.Name] = d.asm.DefineMethod(t, m.Name, false, true, len(m.Params)+1)
				}
			}
		}
	}
	return nil
}

// paramNames extracts plain parameter names in declaration order, for the
// statemachine/asyncmove APIs that take them independent of ast.Param.
func paramNames(params []ast.Param) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

// buildAsyncStateMachines is phase 6.5: for every async function, method,
// and arrow (at any nesting depth — closure analysis already discovered
// every arrow regardless of depth in collectAndDefineArrows), run the
// Async State Analyzer, build a state-machine descriptor, lower its body
// via the Async MoveNext Emitter, and fill the already-defined entry stub
// (phase 4 for functions, 6.3 for methods, phase 5 for arrows) in place —
// never minting a second token for something forward references already
// resolved against.
func (d *Driver) buildAsyncStateMachines() error {
	for _, s := range d.stmts {
		switch n := s.(type) {
		case *ast.FuncDecl:
			if n.Async && n.Body != nil {
				if err := d.processAsyncFunction(n); err != nil {
					return err
				}
			}
		case *ast.ClassDecl:
			for i := range n.Methods {
				m := &n.Methods[i]
				if m.Async && m.Body != nil {
					if err := d.processAsyncMethod(n.Name, m); err != nil {
						return err
					}
				}
			}
		}
	}

	for _, arrow := range d.closures.Order {
		if arrow.Async {
			if err := d.processAsyncArrow(arrow); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerAsyncArrowAncestry records, for every async arrow asyncflow found
// while analyzing a top-level async function/method/arrow (at any nesting
// depth — walkNestedArrow recurses through every level in one Analyze
// call), which machine it is directly nested in: desc itself, when nothing
// async encloses it but this function/method, or the nearest enclosing
// async arrow otherwise. processAsyncArrow resolves the rest of the chain
// from these two maps once that enclosing arrow's own descriptor exists
// (always true by then, since d.closures.Order visits outer arrows before
// the arrows nested inside them).
func (d *Driver) registerAsyncArrowAncestry(arrows []asyncflow.ArrowInfo, desc *statemachine.Descriptor) {
	for _, info := range arrows {
		id := d.reg.idOf(info.Node)
		if info.Parent == nil {
			d.reg.asyncArrowTopDesc[id] = desc
		} else {
			d.reg.asyncArrowParent[id] = info.Parent
		}
	}
}

// resolveAsyncOuter returns the descriptor of the machine id's async arrow
// is directly nested in — the enclosing function/method's machine, the
// enclosing async arrow's machine, or nil if id has no async ancestor at
// all (a top-level async arrow, or one nested only inside synchronous
// code) — per the nested-scope linking protocol spec.md §4.4 describes.
func (d *Driver) resolveAsyncOuter(id sid.ID) *statemachine.Descriptor {
	if parent, ok := d.reg.asyncArrowParent[id]; ok {
		return d.reg.asyncArrowSM[d.reg.idOf(parent)]
	}
	if desc, ok := d.reg.asyncArrowTopDesc[id]; ok {
		return desc
	}
	return nil
}

func (d *Driver) processAsyncFunction(fd *ast.FuncDecl) error {
	analysis := asyncflow.Analyze(fd.Params, fd.Body)
	pnames := paramNames(fd.Params)
	desc := statemachine.Build(d.asm, analysis, statemachine.Options{
		Name:                fd.Name,
		ContainsAsyncArrows: len(analysis.AsyncArrows) > 0,
		ParamNames:          pnames,
	})
	d.registerAsyncArrowAncestry(analysis.AsyncArrows, desc)
	if err := asyncmove.Build(d.emitter, asyncmove.Options{Desc: desc, Analysis: analysis, Body: fd.Body}); err != nil {
		return err
	}
	statemachine.FillEntryStub(d.reg.functions[fd.Name], desc, false, pnames)
	d.reg.asyncSM[fd.Name] = desc
	return nil
}

func (d *Driver) processAsyncMethod(className string, m *ast.Method) error {
	analysis := asyncflow.Analyze(m.Params, m.Body)
	pnames := paramNames(m.Params)
	desc := statemachine.Build(d.asm, analysis, statemachine.Options{
		Name:                className + "_" + m.Name,
		IsInstanceMethod:    !m.Static,
		ContainsAsyncArrows: len(analysis.AsyncArrows) > 0,
		ParamNames:          pnames,
	})
	d.registerAsyncArrowAncestry(analysis.AsyncArrows, desc)
	if err := asyncmove.Build(d.emitter, asyncmove.Options{Desc: desc, Analysis: analysis, Body: m.Body}); err != nil {
		return err
	}

	var stub *il.MethodDef
	switch m.Kind {
	case ast.MethodConstructor:
		stub = d.reg.classCtors[className]
	case ast.MethodGetter:
		stub = d.reg.instanceGetters[className][m.Name]
	case ast.MethodSetter:
		stub = d.reg.instanceSetters[className][m.Name]
	default:
		if m.Static {
			stub = d.reg.staticMethods[className][m.Name]
		} else {
			stub = d.reg.instanceMethods[className][m.Name]
		}
	}
	statemachine.FillEntryStub(stub, desc, !m.Static, pnames)
	d.reg.asyncSM[classKey(className, m.Name)] = desc
	return nil
}

// processAsyncArrow builds the state machine for one async arrow. A
// captured name (from closure.Result, computed once in phase 2 regardless
// of sync/async) either belongs to this arrow's own machine — when no
// async scope encloses it, or the enclosing async machine doesn't itself
// own the name either, the legacy fallback below — or is relayed through
// the outer/self_boxed pointer chain spec.md §4.4/§4.6 mandate: when
// resolveAsyncOuter finds the machine this arrow is directly nested in
// and that machine already owns the name as one of its own ParamFields/
// LocalFields, the name is read and written live through OuterField
// instead of a private snapshot, so a mutation from either side of the
// nesting is visible to the other (spec.md §8 testable property 3).
func (d *Driver) processAsyncArrow(arrow *ast.Arrow) error {
	blk := toBlock(arrow.Body)
	analysis := asyncflow.Analyze(arrow.Params, blk)
	if analysis.HoistedLocals == nil {
		analysis.HoistedLocals = make(map[string]bool)
	}

	id := d.reg.idOf(arrow)
	outerDesc := d.resolveAsyncOuter(id)

	captureNames := sortedNames(d.closures.CapturedNames(arrow))
	relay := make(map[string]*il.FieldDef)
	var ownNames []string
	for _, name := range captureNames {
		if outerDesc != nil {
			if f, ok := outerDesc.LocalFields[name]; ok {
				relay[name] = f
				continue
			}
			if f, ok := outerDesc.ParamFields[name]; ok {
				relay[name] = f
				continue
			}
		}
		analysis.HoistedLocals[name] = true
		ownNames = append(ownNames, name)
	}

	pnames := paramNames(arrow.Params)
	desc := statemachine.Build(d.asm, analysis, statemachine.Options{
		Name:                fmt.Sprintf("Arrow_%d", id),
		IsArrow:             outerDesc != nil,
		ContainsAsyncArrows: len(analysis.AsyncArrows) > 0,
		ParamNames:          pnames,
	})
	for name, f := range relay {
		desc.RelayFields[name] = statemachine.RelayField{Host: desc.OuterField, Field: f}
	}

	if err := asyncmove.Build(d.emitter, asyncmove.Options{Desc: desc, Analysis: analysis, Body: blk}); err != nil {
		return err
	}

	if t, ok := d.reg.displayClass[id]; ok {
		invoke := d.findInvoke(t)
		fillArrowEntryStub(invoke, desc, pnames, d.reg.displayFields[id], ownNames, d.reg.displayFields[id]["$outer"])
	} else {
		statemachine.FillEntryStub(d.reg.arrowMethod[id], desc, false, pnames)
	}
	d.reg.asyncArrowSM[id] = desc
	return nil
}

// wireOuterCapture is Emitter.ArrowCaptureHook: right after emitArrowReference
// builds a display-class instance for an async arrow with a live async
// outer (e.SelfBoxed set — the currently-lowering machine contains nested
// async arrows, spec.md §4.6), it stores that machine's own boxed
// self-reference into the new instance's $outer capture field, so
// fillArrowEntryStub can copy it into the new machine's OuterField.
func (d *Driver) wireOuterCapture(body *il.Body, arrow *ast.Arrow, line int) {
	if !arrow.Async || d.emitter.SelfBoxed == nil {
		return
	}
	id := d.reg.idOf(arrow)
	outerCap, ok := d.reg.displayFields[id]["$outer"]
	if !ok {
		return
	}
	cellSlot := d.emitter.AnonLocal()
	body.Emit(il.Simple(il.OpDup, line))
	body.Emit(il.WithA(il.OpStoreLocal, cellSlot, line))
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpLoadFieldOn, uint32(d.emitter.SelfBoxed.Token), line))
	body.Emit(il.WithA(il.OpLoadLocal, cellSlot, line))
	body.Emit(il.WithA(il.OpStoreFieldOn, uint32(outerCap.Token), line))
}

// fillArrowEntryStub is statemachine.FillEntryStub plus two arrow-specific
// steps: arg 0 is the arrow's own display-class instance, not the state
// machine, so each of ownCaptureNames (the captures this arrow's machine
// owns directly, not relayed through an outer machine) is copied out of
// the display instance into the new machine's corresponding field; and,
// when outerCapField is non-nil (an async outer populated it via
// wireOuterCapture at the point the arrow literal was evaluated), its
// value is copied into d.OuterField so MoveNext's relayed reads/writes
// have somewhere to resolve through.
func fillArrowEntryStub(stub *il.MethodDef, d *statemachine.Descriptor, paramNames []string, displayFields map[string]*il.FieldDef, ownCaptureNames []string, outerCapField *il.FieldDef) {
	const argBase = uint32(1)
	var code []il.Instruction
	line := 0

	code = append(code, il.WithA(il.OpNewObj, uint32(d.Type.Token), line))
	code = append(code, il.WithA(il.OpStoreLocal, 0, line))

	for i, pname := range paramNames {
		field, ok := d.ParamFields[pname]
		if !ok {
			continue
		}
		code = append(code, il.WithA(il.OpLoadArg, argBase+uint32(i), line))
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(field.Token), line))
	}

	for _, name := range ownCaptureNames {
		src, ok := displayFields[name]
		if !ok {
			continue
		}
		dst, ok := d.LocalFields[name]
		if !ok {
			continue
		}
		code = append(code, il.WithA(il.OpLoadArg, 0, line))
		code = append(code, il.WithA(il.OpLoadFieldOn, uint32(src.Token), line))
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(dst.Token), line))
	}

	if outerCapField != nil && d.OuterField != nil {
		code = append(code, il.WithA(il.OpLoadArg, 0, line))
		code = append(code, il.WithA(il.OpLoadFieldOn, uint32(outerCapField.Token), line))
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(d.OuterField.Token), line))
	}

	if d.SelfBoxedField != nil {
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.Simple(il.OpBoxStateMachine, line))
		code = append(code, il.WithA(il.OpStoreLocal, 1, line))
		code = append(code, il.WithA(il.OpLoadLocal, 1, line))
		code = append(code, il.WithA(il.OpLoadLocal, 1, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(d.SelfBoxedField.Token), line))
		code = append(code, il.WithA(il.OpLoadLocal, 1, line))
		code = append(code, il.Simple(il.OpStartBuilder, line))
	} else {
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.Simple(il.OpStartBuilder, line))
	}

	code = append(code, il.Simple(il.OpReturn, line))
	stub.Body = &il.Body{Code: code}
	stub.LocalCount = 2
}
