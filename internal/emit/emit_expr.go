package emit

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
)

// Expr lowers one expression, leaving exactly one value on the stack. Per
// spec.md §4.5's box/unbox discipline, the caller decides whether that
// value needs boxing for its destination (assignment to a bag field,
// return value, argument passing); Expr itself emits primitives unboxed
// whenever the AST shape makes that cheap. This package has no boxing
// helper and emits no box step at such a boundary itself.
func (e *Emitter) Expr(body *il.Body, ex ast.Expr) error {
	line := ex.Position().Line
	switch n := ex.(type) {
	case *ast.Literal:
		return e.emitLiteral(body, n, line)
	case *ast.Identifier:
		return e.emitIdentifierLoad(body, n.Name, line)
	case *ast.ThisExpr:
		return e.emitIdentifierLoad(body, "this", line)
	case *ast.BinOp:
		return e.emitBinOp(body, n, line)
	case *ast.UnaryOp:
		return e.emitUnaryOp(body, n, line)
	case *ast.IncDec:
		return e.emitIncDec(body, n, line)
	case *ast.Ternary:
		return e.emitTernary(body, n, line)
	case *ast.Grouping:
		return e.Expr(body, n.Inner)
	case *ast.Call:
		return e.emitCall(body, n, line)
	case *ast.New:
		return e.emitNew(body, n, line)
	case *ast.GetProp:
		return e.emitGetProp(body, n, line)
	case *ast.GetIndex:
		if err := e.Expr(body, n.Object); err != nil {
			return err
		}
		if err := e.Expr(body, n.Index); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpBagGet, line))
		return nil
	case *ast.NonNullAssert:
		return e.Expr(body, n.Inner)
	case *ast.TypeAssertion:
		return e.Expr(body, n.Inner)
	case *ast.Satisfies:
		return e.Expr(body, n.Inner)
	case *ast.AssignOp:
		return e.emitAssignOp(body, n, line)
	case *ast.Spread:
		return e.Expr(body, n.Inner)
	case *ast.TemplateLiteral:
		return e.emitTemplateLiteral(body, n, line)
	case *ast.ArrayLit:
		return e.emitArrayLit(body, n, line)
	case *ast.RecordLit:
		return e.emitRecordLit(body, n, line)
	case *ast.DynamicImport:
		return e.Expr(body, n.Path)
	case *ast.ImportMeta:
		body.Emit(il.Simple(il.OpLoadNull, line))
		return nil
	case *ast.Arrow:
		return e.emitArrowReference(body, n, line)
	case *ast.Await:
		if e.AwaitHook == nil {
			return malformed(errors.AST001, ex.Position(), "expression", ex)
		}
		return e.AwaitHook(body, n, line)
	default:
		return malformed(errors.AST001, ex.Position(), "expression", ex)
	}
}

func (e *Emitter) emitLiteral(body *il.Body, lit *ast.Literal, line int) error {
	switch lit.Kind {
	case ast.LitNull, ast.LitUndefined:
		body.Emit(il.Simple(il.OpLoadNull, line))
	case ast.LitBool:
		if lit.Value.(bool) {
			body.Emit(il.Simple(il.OpLoadTrue, line))
		} else {
			body.Emit(il.Simple(il.OpLoadFalse, line))
		}
	default:
		body.Emit(il.WithA(il.OpLoadConst, e.constant(lit.Value), line))
	}
	return nil
}

func (e *Emitter) emitIdentifierLoad(body *il.Body, name string, line int) error {
	sym := e.resolve(name)
	switch sym.kind {
	case symParam:
		body.Emit(il.WithA(il.OpLoadArg, sym.slot, line))
	case symLocal:
		body.Emit(il.WithA(il.OpLoadLocal, sym.slot, line))
	case symCaptured, symHoisted:
		e.emitCaptureHost(body, sym, line)
		body.Emit(il.WithA(il.OpLoadFieldOn, uint32(sym.field.Token), line))
	case symClass:
		body.Emit(il.WithA(il.OpLoadTypeToken, uint32(sym.typ.Token), line))
	case symFunction:
		body.Emit(il.WithAB(il.OpNewObj, uint32(e.Runtime.TSFunction), uint32(sym.fn.Token), line))
	default:
		body.Emit(il.Simple(il.OpLoadNull, line))
	}
	return nil
}

var binOpcodes = map[string]il.OpCode{
	"+": il.OpAdd, "-": il.OpSub, "*": il.OpMul, "/": il.OpDiv, "%": il.OpMod,
	"==": il.OpEq, "===": il.OpEq, "!=": il.OpNotEq, "!==": il.OpNotEq,
	"<": il.OpLt, "<=": il.OpLtEq, ">": il.OpGt, ">=": il.OpGtEq,
}

func (e *Emitter) emitBinOp(body *il.Body, n *ast.BinOp, line int) error {
	switch n.Op {
	case "&&":
		return e.emitShortCircuit(body, n, line, il.OpJumpIfFalse)
	case "||":
		return e.emitShortCircuit(body, n, line, il.OpJumpIfTrue)
	case "??":
		return e.emitNullish(body, n, line)
	}
	if op, ok := binOpcodes[n.Op]; ok {
		if err := e.Expr(body, n.Left); err != nil {
			return err
		}
		if err := e.Expr(body, n.Right); err != nil {
			return err
		}
		body.Emit(il.Simple(op, line))
		return nil
	}
	return malformed(errors.AST001, n.Position(), "binary operator", n.Op)
}

// emitShortCircuit lowers "&&"/"||": evaluate left, duplicate it, test it,
// and only evaluate right if the test doesn't already decide the result.
func (e *Emitter) emitShortCircuit(body *il.Body, n *ast.BinOp, line int, testOp il.OpCode) error {
	if err := e.Expr(body, n.Left); err != nil {
		return err
	}
	body.Emit(il.Simple(il.OpDup, line))
	shortCircuit := body.EmitJump(testOp, line)
	body.Emit(il.Simple(il.OpPop, line))
	if err := e.Expr(body, n.Right); err != nil {
		return err
	}
	body.PatchJump(shortCircuit)
	return nil
}

func (e *Emitter) emitNullish(body *il.Body, n *ast.BinOp, line int) error {
	if err := e.Expr(body, n.Left); err != nil {
		return err
	}
	body.Emit(il.Simple(il.OpDup, line))
	body.Emit(il.Simple(il.OpLoadNull, line))
	body.Emit(il.Simple(il.OpEq, line))
	useRight := body.EmitJump(il.OpJumpIfTrue, line)
	skip := body.EmitJump(il.OpJump, line)
	body.PatchJump(useRight)
	body.Emit(il.Simple(il.OpPop, line))
	if err := e.Expr(body, n.Right); err != nil {
		return err
	}
	body.PatchJump(skip)
	return nil
}

func (e *Emitter) emitUnaryOp(body *il.Body, n *ast.UnaryOp, line int) error {
	switch n.Op {
	case "-":
		if err := e.Expr(body, n.Operand); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpNeg, line))
	case "+":
		return e.Expr(body, n.Operand)
	case "!":
		if err := e.Expr(body, n.Operand); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpNot, line))
	case "void":
		if err := e.Expr(body, n.Operand); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpPop, line))
		body.Emit(il.Simple(il.OpLoadNull, line))
	default:
		return malformed(errors.AST001, n.Position(), "unary operator", n.Op)
	}
	return nil
}

func (e *Emitter) emitIncDec(body *il.Body, n *ast.IncDec, line int) error {
	id, ok := n.Target.(*ast.Identifier)
	if !ok {
		return malformed(errors.AST001, n.Position(), "inc/dec target", n.Target)
	}
	op := il.OpAdd
	if n.Op == "--" {
		op = il.OpSub
	}
	if err := e.emitIdentifierLoad(body, id.Name, line); err != nil {
		return err
	}
	if n.Postfix {
		body.Emit(il.Simple(il.OpDup, line))
	}
	body.Emit(il.WithA(il.OpLoadConst, e.constant(1.0), line))
	body.Emit(il.Simple(op, line))
	if !n.Postfix {
		body.Emit(il.Simple(il.OpDup, line))
	}
	return e.emitIdentifierStore(body, id.Name, line)
}

func (e *Emitter) emitTernary(body *il.Body, n *ast.Ternary, line int) error {
	if err := e.Expr(body, n.Cond); err != nil {
		return err
	}
	elseJump := body.EmitJump(il.OpJumpIfFalse, line)
	if err := e.Expr(body, n.Then); err != nil {
		return err
	}
	endJump := body.EmitJump(il.OpJump, line)
	body.PatchJump(elseJump)
	if err := e.Expr(body, n.Else); err != nil {
		return err
	}
	body.PatchJump(endJump)
	return nil
}

func (e *Emitter) emitCall(body *il.Body, n *ast.Call, line int) error {
	if prop, ok := n.Callee.(*ast.GetProp); ok {
		if err := e.Expr(body, prop.Object); err != nil {
			return err
		}
		if className, ok := e.staticClassOf(prop.Object); ok && e.Resolve != nil {
			if token, ok := e.Resolve(className, prop.Name); ok {
				for _, arg := range n.Args {
					if err := e.Expr(body, arg); err != nil {
						return err
					}
				}
				body.Emit(il.WithA(il.OpCallVirt, uint32(token), line))
				return nil
			}
		}
		// Unresolved receiver type: fetch the member out of the property
		// bag and invoke it as a boxed delegate (the bag-backed fallback
		// dispatch path from spec.md §4.5).
		body.Emit(il.WithA(il.OpLoadConst, e.constant(prop.Name), line))
		body.Emit(il.Simple(il.OpBagGet, line))
		for _, arg := range n.Args {
			if err := e.Expr(body, arg); err != nil {
				return err
			}
		}
		body.Emit(il.WithA(il.OpCallDelegate, uint32(len(n.Args)), line))
		return nil
	}

	if id, ok := n.Callee.(*ast.Identifier); ok {
		if fn, ok := e.Functions[id.Name]; ok {
			for _, arg := range n.Args {
				if err := e.Expr(body, arg); err != nil {
					return err
				}
			}
			body.Emit(il.WithA(il.OpCallStatic, uint32(fn.Token), line))
			return nil
		}
	}

	if err := e.Expr(body, n.Callee); err != nil {
		return err
	}
	for _, arg := range n.Args {
		if err := e.Expr(body, arg); err != nil {
			return err
		}
	}
	body.Emit(il.WithA(il.OpCallDelegate, uint32(len(n.Args)), line))
	return nil
}

// staticClassOf reports the statically-known class name of obj via the
// type map, enabling direct virtual dispatch (spec.md §4.5).
func (e *Emitter) staticClassOf(obj ast.Expr) (string, bool) {
	return e.TypeMap.TypeOf(obj)
}

func (e *Emitter) emitNew(body *il.Body, n *ast.New, line int) error {
	id, ok := n.Callee.(*ast.Identifier)
	if !ok {
		return malformed(errors.AST001, n.Position(), "new callee", n.Callee)
	}
	t, ok := e.Classes[id.Name]
	if !ok {
		body.Emit(il.Simple(il.OpLoadNull, line))
		return nil
	}
	for _, arg := range n.Args {
		if err := e.Expr(body, arg); err != nil {
			return err
		}
	}
	var ctor il.MethodToken
	for _, m := range t.Methods {
		if m.Name == "constructor" {
			ctor = m.Token
		}
	}
	body.Emit(il.WithAB(il.OpNewObj, uint32(t.Token), uint32(ctor), line))
	return nil
}

func (e *Emitter) emitGetProp(body *il.Body, n *ast.GetProp, line int) error {
	// Const-enum member access folds to a literal at compile time (spec.md
	// §4.5, §8 property 8) and never touches the object on the stack, so
	// this check happens before anything is pushed for n.Object.
	if id, ok := n.Object.(*ast.Identifier); ok && e.EnumRef != nil {
		if value, ok := e.EnumRef(id.Name, n.Name); ok {
			return e.emitLiteral(body, &ast.Literal{Value: value, Kind: literalKindOf(value)}, line)
		}
	}

	if err := e.Expr(body, n.Object); err != nil {
		return err
	}
	if className, ok := e.staticClassOf(n.Object); ok && e.Field != nil {
		if token, ok := e.Field(className, n.Name); ok {
			body.Emit(il.WithA(il.OpLoadFieldOn, uint32(token), line))
			return nil
		}
	}
	body.Emit(il.WithA(il.OpLoadConst, e.constant(n.Name), line))
	body.Emit(il.Simple(il.OpBagGet, line))
	return nil
}

// literalKindOf classifies a const-evaluated enum member value (always a
// float64 or string, per internal/driver's const-enum evaluator) for
// emitLiteral, which only inspects Kind, never Value's Go type directly.
func literalKindOf(value interface{}) ast.LitKind {
	if _, ok := value.(string); ok {
		return ast.LitString
	}
	return ast.LitNumber
}

func (e *Emitter) emitAssignOp(body *il.Body, n *ast.AssignOp, line int) error {
	if n.Op != "=" {
		base := n.Op[:len(n.Op)-1]
		synthetic := &ast.AssignOp{Op: "=", Target: n.Target, Value: &ast.BinOp{Op: base, Left: targetAsExpr(n.Target), Right: n.Value}}
		return e.emitAssignOp(body, synthetic, line)
	}

	if err := e.Expr(body, n.Value); err != nil {
		return err
	}
	body.Emit(il.Simple(il.OpDup, line))

	switch target := n.Target.(type) {
	case *ast.Identifier:
		return e.emitIdentifierStore(body, target.Name, line)
	case *ast.SetProp:
		if err := e.Expr(body, target.Object); err != nil {
			return err
		}
		body.Emit(il.WithA(il.OpLoadConst, e.constant(target.Name), line))
		body.Emit(il.Simple(il.OpBagSet, line))
		return nil
	case *ast.SetIndex:
		if err := e.Expr(body, target.Object); err != nil {
			return err
		}
		if err := e.Expr(body, target.Index); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpBagSet, line))
		return nil
	default:
		return malformed(errors.AST001, n.Position(), "assignment target", n.Target)
	}
}

// targetAsExpr reinterprets an assignment target as a read expression, for
// compound-assignment desugaring ("x += y" -> "x = x + y").
func targetAsExpr(target ast.Expr) ast.Expr {
	switch t := target.(type) {
	case *ast.Identifier:
		return t
	case *ast.SetProp:
		return &ast.GetProp{Object: t.Object, Name: t.Name}
	case *ast.SetIndex:
		return &ast.GetIndex{Object: t.Object, Index: t.Index}
	default:
		return target
	}
}

func (e *Emitter) emitIdentifierStore(body *il.Body, name string, line int) error {
	sym := e.resolve(name)
	switch sym.kind {
	case symParam:
		body.Emit(il.WithA(il.OpStoreArg, sym.slot, line))
	case symLocal:
		body.Emit(il.WithA(il.OpStoreLocal, sym.slot, line))
	case symCaptured, symHoisted:
		e.emitCaptureHost(body, sym, line)
		body.Emit(il.WithA(il.OpStoreFieldOn, uint32(sym.field.Token), line))
	default:
		body.Emit(il.Simple(il.OpPop, line))
	}
	return nil
}

// emitCaptureHost pushes the object a symCaptured/symHoisted field is
// reached through: the shared display-class instance held in a local slot
// (an enclosing scope aliasing an arrow's capture, see BindCapturedCell),
// one further field hop off arg 0 (an inner async machine relaying to its
// outer one, see BeginAsyncMethod's relay parameter and
// statemachine.RelayField), or arg 0 itself — today's original, and still
// the common, case.
func (e *Emitter) emitCaptureHost(body *il.Body, sym symbol, line int) {
	switch {
	case sym.hasHostSlot:
		body.Emit(il.WithA(il.OpLoadLocal, sym.hostSlot, line))
	case sym.hostField != nil:
		body.Emit(il.WithA(il.OpLoadArg, 0, line))
		body.Emit(il.WithA(il.OpLoadFieldOn, uint32(sym.hostField.Token), line))
	default:
		body.Emit(il.WithA(il.OpLoadArg, 0, line))
	}
}

func (e *Emitter) emitTemplateLiteral(body *il.Body, n *ast.TemplateLiteral, line int) error {
	body.Emit(il.WithA(il.OpLoadConst, e.constant(n.Quasis[0]), line))
	for i, ex := range n.Exprs {
		if err := e.Expr(body, ex); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpConcat, line))
		body.Emit(il.WithA(il.OpLoadConst, e.constant(n.Quasis[i+1]), line))
		body.Emit(il.Simple(il.OpConcat, line))
	}
	return nil
}

func (e *Emitter) emitArrayLit(body *il.Body, n *ast.ArrayLit, line int) error {
	body.Emit(il.Simple(il.OpLoadNull, line))
	for i, elem := range n.Elements {
		body.Emit(il.Simple(il.OpDup, line))
		body.Emit(il.WithA(il.OpLoadConst, e.constant(float64(i)), line))
		if err := e.Expr(body, elem); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpBagSet, line))
	}
	return nil
}

func (e *Emitter) emitRecordLit(body *il.Body, n *ast.RecordLit, line int) error {
	body.Emit(il.Simple(il.OpLoadNull, line))
	for _, f := range n.Fields {
		if f.Key == "" {
			continue // spread entries: a full implementation merges bag keys at runtime
		}
		body.Emit(il.Simple(il.OpDup, line))
		body.Emit(il.WithA(il.OpLoadConst, e.constant(f.Key), line))
		if err := e.Expr(body, f.Value); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpBagSet, line))
	}
	return nil
}

// emitArrowReference lowers one arrow literal to the value its use sites
// (assignment, call, argument) see. A captures-bearing arrow becomes a
// display-class instance, built exactly the way emitNew builds any other
// object: push each constructor argument, then OpNewObj(type, ctor) — the
// arguments here are the current values of the names this arrow captures,
// read off the enclosing scope in the same declaration order the display
// class's constructor parameters were defined in (arrows.go's
// ctorParamNames/sortedNames). Once built, the enclosing scope's own
// future references to each captured name are rebound (via
// BindCapturedCell) to read and write that same instance's fields instead
// of their original plain locals, so a mutation on either side of the
// closure is visible to the other (spec.md §8 testable property 1).
func (e *Emitter) emitArrowReference(body *il.Body, arrow *ast.Arrow, line int) error {
	if e.ArrowRef == nil {
		body.Emit(il.Simple(il.OpLoadNull, line))
		return nil
	}
	ref := e.ArrowRef(arrow)
	if !ref.IsDisplay {
		// No captures: wrap the bare static method as a $TSFunction value.
		body.Emit(il.WithAB(il.OpNewObj, uint32(e.Runtime.TSFunction), ref.Token, line))
		return nil
	}

	for _, cap := range ref.Captures {
		if err := e.emitIdentifierLoad(body, cap.Name, line); err != nil {
			return err
		}
	}
	body.Emit(il.WithAB(il.OpNewObj, ref.Token, ref.Ctor, line))

	if e.ArrowCaptureHook != nil {
		e.ArrowCaptureHook(body, arrow, line)
	}

	if len(ref.Captures) > 0 {
		cellSlot := e.anonLocal()
		body.Emit(il.Simple(il.OpDup, line))
		body.Emit(il.WithA(il.OpStoreLocal, cellSlot, line))
		for _, cap := range ref.Captures {
			e.BindCapturedCell(cap.Name, cap.Field, cellSlot)
		}
	}
	return nil
}
