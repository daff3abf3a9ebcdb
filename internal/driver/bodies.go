package driver

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/il"
)

// emitRemainingBodies is phase 7: everything not already emitted by phase
// 6 (non-async arrows) or phase 6.5 (async state machines) — non-async
// top-level function bodies, non-async class method/getter/setter bodies,
// every class's constructor (instance field initializers into the
// property bag, then the declared constructor's own statements, or just
// the initializers for a class with no declared constructor), and a
// synthesized static initializer ("$cctor") for classes whose static
// fields carry an initializer, collected into d.cctors so phase 8 can call
// them before anything else runs.
func (d *Driver) emitRemainingBodies() error {
	for _, s := range d.stmts {
		switch n := s.(type) {
		case *ast.FuncDecl:
			if n.Async || n.Body == nil {
				continue
			}
			if err := d.emitFunctionBody(n); err != nil {
				return err
			}
		case *ast.ClassDecl:
			if err := d.emitClassBodies(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) emitFunctionBody(fd *ast.FuncDecl) error {
	m := d.reg.functions[fd.Name]
	d.emitter.BeginMethod(fd.Params, false, "")
	body := &il.Body{}
	if err := d.emitter.EmitDefaultParams(body, fd.Params, false); err != nil {
		return err
	}
	for _, s := range fd.Body.Stmts {
		if err := d.emitter.Stmt(body, s); err != nil {
			return err
		}
	}
	body.Emit(il.Simple(il.OpLoadNull, 0))
	body.Emit(il.Simple(il.OpReturn, 0))
	m.Body = body
	m.LocalCount = int(d.emitter.LocalCount())
	return nil
}

func (d *Driver) emitClassBodies(c *ast.ClassDecl) error {
	var userCtor *ast.Method
	for i := range c.Methods {
		m := &c.Methods[i]
		if m.Async || m.Body == nil {
			continue
		}
		switch m.Kind {
		case ast.MethodConstructor:
			userCtor = m
		case ast.MethodGetter:
			if err := d.emitMethodBody(c.Name, d.reg.instanceGetters[c.Name][m.Name], m); err != nil {
				return err
			}
		case ast.MethodSetter:
			if err := d.emitMethodBody(c.Name, d.reg.instanceSetters[c.Name][m.Name], m); err != nil {
				return err
			}
		default:
			var stub *il.MethodDef
			if m.Static {
				stub = d.reg.staticMethods[c.Name][m.Name]
			} else {
				stub = d.reg.instanceMethods[c.Name][m.Name]
			}
			if err := d.emitMethodBody(c.Name, stub, m); err != nil {
				return err
			}
		}
	}

	if err := d.emitConstructorBody(c, userCtor); err != nil {
		return err
	}
	return d.emitStaticInitializer(c)
}

func (d *Driver) emitMethodBody(className string, stub *il.MethodDef, m *ast.Method) error {
	isInstance := !m.Static
	d.emitter.BeginMethod(m.Params, isInstance, className)
	body := &il.Body{}
	if err := d.emitter.EmitDefaultParams(body, m.Params, isInstance); err != nil {
		return err
	}
	for _, s := range m.Body.Stmts {
		if err := d.emitter.Stmt(body, s); err != nil {
			return err
		}
	}
	body.Emit(il.Simple(il.OpLoadNull, 0))
	body.Emit(il.Simple(il.OpReturn, 0))
	stub.Body = body
	stub.LocalCount = int(d.emitter.LocalCount())
	return nil
}

// emitConstructorBody fills in the per-class constructor stub phase 6.3
// always defines: every non-static field's initializer (or a null default)
// is stored into the instance's property bag before userCtor's own
// statements (if any) run, matching field-initializer-before-constructor-
// body ordering.
func (d *Driver) emitConstructorBody(c *ast.ClassDecl, userCtor *ast.Method) error {
	stub := d.reg.classCtors[c.Name]
	var params []ast.Param
	if userCtor != nil {
		params = userCtor.Params
	}
	d.emitter.BeginMethod(params, true, c.Name)
	body := &il.Body{}
	if userCtor != nil {
		if err := d.emitter.EmitDefaultParams(body, params, true); err != nil {
			return err
		}
	}

	bag := d.reg.instanceFieldBag[c.Name]
	for _, f := range c.Fields {
		if f.Static {
			continue
		}
		body.Emit(il.WithA(il.OpLoadArg, 0, 0))
		body.Emit(il.WithA(il.OpLoadFieldOn, uint32(bag.Token), 0))
		body.Emit(il.WithA(il.OpLoadConst, d.emitter.Constant(f.Name), 0))
		if f.Init != nil {
			if err := d.emitter.Expr(body, f.Init); err != nil {
				return err
			}
		} else {
			body.Emit(il.Simple(il.OpLoadNull, 0))
		}
		body.Emit(il.Simple(il.OpBagSet, 0))
	}

	if userCtor != nil {
		for _, s := range userCtor.Body.Stmts {
			if err := d.emitter.Stmt(body, s); err != nil {
				return err
			}
		}
	}
	body.Emit(il.Simple(il.OpReturnVoid, 0))
	stub.Body = body
	stub.LocalCount = int(d.emitter.LocalCount())
	return nil
}

// emitStaticInitializer defines and fills a "$cctor" static method for c
// when any static field carries an initializer, queuing it in d.cctors so
// phase 8 calls every class's static initializer, in declaration order,
// before the program's own entry point body runs.
func (d *Driver) emitStaticInitializer(c *ast.ClassDecl) error {
	var inits []ast.Field
	for _, f := range c.Fields {
		if f.Static && f.Init != nil {
			inits = append(inits, f)
		}
	}
	if len(inits) == 0 {
		return nil
	}

	t := d.reg.classTypes[c.Name]
	cctor := d.asm.DefineMethod(t, "$cctor", true, false, 0)
	d.emitter.BeginMethod(nil, false, c.Name)
	body := &il.Body{}
	for _, f := range inits {
		if err := d.emitter.Expr(body, f.Init); err != nil {
			return err
		}
		body.Emit(il.WithA(il.OpStoreField, uint32(d.reg.staticFields[c.Name][f.Name].Token), 0))
	}
	body.Emit(il.Simple(il.OpReturnVoid, 0))
	cctor.Body = body
	cctor.LocalCount = int(d.emitter.LocalCount())
	d.cctors = append(d.cctors, cctor)
	return nil
}
