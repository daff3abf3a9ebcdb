package driver

import (
	"fmt"

	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/il"
)

// collectAndDefineArrows is phase 5: for every arrow discovered by phase
// 2's closure analysis, in discovery order, define either a bare static
// delegate method (no captures) or a display-class type with one field per
// captured name plus a constructor (captures present) — spec.md §4.2's
// "arrows with an empty capture set lower to a plain static method;
// anything else gets a display class". Async arrows get a stub here too
// (same shape), so forward references to them resolve before phase 6.5
// fills their entry body in place, exactly like top-level async functions.
func (d *Driver) collectAndDefineArrows() error {
	for i, arrow := range d.closures.Order {
		id := d.reg.idOf(arrow)
		captures := d.closures.CapturedNames(arrow)
		if len(captures) == 0 {
			m := d.asm.DefineMethod(d.program, fmt.Sprintf("$Arrow_%d", i), true, false, len(arrow.Params))
			d.reg.arrowMethod[id] = m
			continue
		}

		t := d.asm.DefineType(fmt.Sprintf("$Display_%d", i), il.KindSealed)
		d.reg.displayClass[id] = t
		fields := make(map[string]*il.FieldDef, len(captures))
		names := sortedNames(captures)
		for _, name := range names {
			fields[name] = d.asm.DefineField(t, "cap_"+name, false, "Object")
		}
		if arrow.Async {
			fields["$outer"] = d.asm.DefineField(t, "cap_$outer", false, "Object")
		}
		d.reg.displayFields[id] = fields
		ctor := d.asm.DefineMethod(t, "constructor", false, false, len(names))
		d.reg.displayCtor[id] = ctor

		invoke := d.asm.DefineMethod(t, "Invoke", false, true, len(arrow.Params))
		_ = invoke // body filled in emitArrowBodies/async phase by name lookup below
	}
	return nil
}

// sortedNames returns the keys of a capture set in a fixed, deterministic
// order (spec.md §8 property 12: identical source compiles to an
// identical image byte-for-byte), since Go map iteration order is random.
func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// findInvoke looks up the Invoke method already defined on arrow's display
// class (collectAndDefineArrows always defines it last among that type's
// methods).
func (d *Driver) findInvoke(t *il.TypeDef) *il.MethodDef {
	for _, m := range t.Methods {
		if m.Name == "Invoke" {
			return m
		}
	}
	return nil
}

// ctorParamNames returns capture names in the exact order displayCtor's
// parameters were defined in (collectAndDefineArrows's sortedNames order),
// needed to fill both the constructor body and call sites consistently.
func (d *Driver) ctorParamNames(arrow *ast.Arrow) []string {
	return sortedNames(d.closures.CapturedNames(arrow))
}

// toBlock normalizes an arrow's body (a Block wrapped in BlockExpr for
// block-bodied arrows, or a bare expression for concise-bodied ones) into
// a *ast.Block, synthesizing a single `return expr;` for the concise form
// so the rest of the pipeline only ever deals with statement lists.
func toBlock(body ast.Expr) *ast.Block {
	if be, ok := body.(*ast.BlockExpr); ok {
		return be.Block
	}
	return &ast.Block{Stmts: []ast.Stmt{&ast.Return{Value: body}}}
}

// emitArrowBodies is phase 6: emit the body of every non-async arrow
// (async arrows are handled by phase 6.5, which builds a state machine
// instead of a direct body). A captures-bearing arrow also gets its
// display class's constructor body emitted here: assign each argument,
// in ctorParamNames order, into the matching capture field.
func (d *Driver) emitArrowBodies() error {
	for _, arrow := range d.closures.Order {
		id := d.reg.idOf(arrow)

		if t, ok := d.reg.displayClass[id]; ok {
			if err := d.emitDisplayCtor(arrow, t); err != nil {
				return err
			}
			if arrow.Async {
				// MoveNext/entry-stub body is built later by phase 6.5
				// (asyncmove.Build/fillArrowEntryStub); only the ctor — the
				// display instance's own fields — belongs here.
				continue
			}
			invoke := d.findInvoke(t)
			d.emitter.BeginMethod(arrow.Params, true, "")
			for name, f := range d.reg.displayFields[id] {
				d.emitter.BindCaptured(name, f)
			}
			body := &il.Body{}
			if err := d.emitter.EmitDefaultParams(body, arrow.Params, true); err != nil {
				return err
			}
			for _, s := range toBlock(arrow.Body).Stmts {
				if err := d.emitter.Stmt(body, s); err != nil {
					return err
				}
			}
			body.Emit(il.Simple(il.OpLoadNull, 0))
			body.Emit(il.Simple(il.OpReturn, 0))
			invoke.Body = body
			invoke.LocalCount = int(d.emitter.LocalCount())
			continue
		}

		if arrow.Async {
			continue
		}
		m := d.reg.arrowMethod[id]
		d.emitter.BeginMethod(arrow.Params, false, "")
		body := &il.Body{}
		if err := d.emitter.EmitDefaultParams(body, arrow.Params, false); err != nil {
			return err
		}
		blk := toBlock(arrow.Body)
		for _, s := range blk.Stmts {
			if err := d.emitter.Stmt(body, s); err != nil {
				return err
			}
		}
		body.Emit(il.Simple(il.OpLoadNull, 0))
		body.Emit(il.Simple(il.OpReturn, 0))
		m.Body = body
		m.LocalCount = int(d.emitter.LocalCount())
	}
	return nil
}

// emitDisplayCtor fills arrow's display-class constructor: copy each
// argument, in ctorParamNames order, into its matching capture field.
func (d *Driver) emitDisplayCtor(arrow *ast.Arrow, t *il.TypeDef) error {
	id := d.reg.idOf(arrow)
	ctor := d.reg.displayCtor[id]
	fields := d.reg.displayFields[id]
	names := d.ctorParamNames(arrow)

	body := &il.Body{}
	for i, name := range names {
		f := fields[name]
		body.Emit(il.WithA(il.OpLoadArg, uint32(i+1), 0)) // arg 0 is `this`
		body.Emit(il.WithA(il.OpLoadArg, 0, 0))
		body.Emit(il.WithA(il.OpStoreFieldOn, uint32(f.Token), 0))
	}
	body.Emit(il.Simple(il.OpReturnVoid, 0))
	ctor.Body = body
	ctor.LocalCount = 0
	return nil
}
