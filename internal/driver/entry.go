package driver

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
)

// emitEntryPoint is phase 8: define "$Program.Main", a static, zero-
// parameter method that calls every class's static-field initializer
// (d.cctors, in the order bodies.go built them) and then the configured
// entry function (cfg.EntryPoint, spec.md §2's top-level script body, or a
// designated `main`-like function). For a multi-module compile,
// CompileModules splices a call to every module's "$Initialize" onto the
// front of this body afterward, once component I has synthesized those
// methods (it needs the class/function tokens this phase's own callers —
// phases 4-7 — define first, so it necessarily runs after Compile
// returns): module-level side effects (spec.md §4.7) still end up running
// before the cctors and the entry function, just spliced in later rather
// than interleaved here.
func (d *Driver) emitEntryPoint() error {
	main := d.asm.DefineMethod(d.program, "Main", true, false, 0)
	body := &il.Body{}

	for _, cctor := range d.cctors {
		body.Emit(il.WithA(il.OpCallStatic, uint32(cctor.Token), 0))
	}

	if fn, ok := d.reg.functions[d.cfg.EntryPoint]; ok {
		body.Emit(il.WithA(il.OpCallStatic, uint32(fn.Token), 0))
		body.Emit(il.Simple(il.OpPop, 0))
	}

	body.Emit(il.Simple(il.OpReturnVoid, 0))
	main.Body = body
	main.LocalCount = 0
	d.reg.functions["$Main"] = main
	return nil
}

// finalize is phase 9: point the assembly's entry point at $Program.Main
// and verify every invariant spec.md §3 requires (every type's Super
// resolves to an earlier type, every defined method has a body) before
// handing the assembly to the Image Writer. A verification failure is
// wrapped as IMG001; d.asm.EntryPoint is always set before Verify runs, so
// a missing entry point can only come from a bug in this driver itself,
// not a user-facing compile error, and it is reported as IMG001 too
// (nothing here raises IMG002).
func (d *Driver) finalize() (*il.Assembly, error) {
	main := d.reg.functions["$Main"]
	d.asm.EntryPoint = main.Token

	if err := d.asm.Verify(); err != nil {
		return nil, errors.New(errors.IMG001, ast.Pos{}, "%s", err.Error())
	}
	return d.asm, nil
}
