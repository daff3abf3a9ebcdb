package emit

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
)

// Stmt lowers one statement. Declarations encountered in statement position
// (a nested function/class inside a block) are not re-lowered here — the
// driver's per-phase definition walk already handles every top-level
// declaration, and re-entering that machinery from inside a method body
// would double-define their stubs; they are simply skipped.
func (e *Emitter) Stmt(body *il.Body, s ast.Stmt) error {
	switch n := s.(type) {
	case nil:
		return nil
	case *ast.Block:
		return e.emitBlockStmts(body, n)
	case *ast.ExprStmt:
		if err := e.Expr(body, n.Expr); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpPop, n.Position().Line))
		return nil
	case *ast.VarDecl:
		return e.emitVarDecl(body, n)
	case *ast.If:
		return e.emitIf(body, n)
	case *ast.While:
		return e.emitWhile(body, n)
	case *ast.For:
		return e.emitFor(body, n)
	case *ast.ForOf:
		return e.emitForOf(body, n)
	case *ast.ForIn:
		return e.emitForIn(body, n)
	case *ast.Switch:
		return e.emitSwitch(body, n)
	case *ast.Try:
		return e.emitTry(body, n)
	case *ast.Throw:
		if err := e.Expr(body, n.Value); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpThrow, n.Position().Line))
		return nil
	case *ast.Return:
		return e.emitReturn(body, n)
	case *ast.Break:
		return e.emitBreak(body, n)
	case *ast.Continue:
		return e.emitContinue(body, n)
	case *ast.FuncDecl, *ast.ClassDecl, *ast.EnumDecl, *ast.ImportDecl, *ast.ExportDecl:
		return nil
	default:
		return malformed(errors.AST002, s.Position(), "statement", s)
	}
}

// emitBlockStmts lowers a block's statements under a fresh child scope.
func (e *Emitter) emitBlockStmts(body *il.Body, b *ast.Block) error {
	if b == nil {
		return nil
	}
	e.pushScope()
	defer e.popScope()
	for _, s := range b.Stmts {
		if err := e.Stmt(body, s); err != nil {
			return err
		}
	}
	return nil
}

// emitVarDecl evaluates Init once (or loads null if absent) and binds it to
// every name. A single name is the overwhelmingly common case; additional
// names (destructuring) each receive the same value; no per-element
// destructure is performed.
func (e *Emitter) emitVarDecl(body *il.Body, n *ast.VarDecl) error {
	line := n.Position().Line
	if n.Init != nil {
		if err := e.Expr(body, n.Init); err != nil {
			return err
		}
	} else {
		body.Emit(il.Simple(il.OpLoadNull, line))
	}
	for i, name := range n.Names {
		if i < len(n.Names)-1 {
			body.Emit(il.Simple(il.OpDup, line))
		}
		if err := e.bindDeclared(body, name, line); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitIf(body *il.Body, n *ast.If) error {
	line := n.Position().Line
	if err := e.Expr(body, n.Cond); err != nil {
		return err
	}
	elseJump := body.EmitJump(il.OpJumpIfFalse, line)
	if err := e.Stmt(body, n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		body.PatchJump(elseJump)
		return nil
	}
	endJump := body.EmitJump(il.OpJump, line)
	body.PatchJump(elseJump)
	if err := e.Stmt(body, n.Else); err != nil {
		return err
	}
	body.PatchJump(endJump)
	return nil
}

func (e *Emitter) emitWhile(body *il.Body, n *ast.While) error {
	line := n.Position().Line
	head := body.Here()
	e.pushLoop(n.Label)
	if err := e.Expr(body, n.Cond); err != nil {
		return err
	}
	exitJump := body.EmitJump(il.OpJumpIfFalse, line)
	if err := e.Stmt(body, n.Body); err != nil {
		return err
	}
	body.Emit(il.WithAB(il.OpJump, 0, uint32(head), line))
	endPos := body.Here()
	body.PatchJumpTo(exitJump, endPos)
	loop := e.popLoop()
	patchAll(body, loop.continueJumps, head)
	patchAll(body, loop.breakJumps, endPos)
	return nil
}

func (e *Emitter) emitFor(body *il.Body, n *ast.For) error {
	line := n.Position().Line
	e.pushScope()
	defer e.popScope()
	if err := e.Stmt(body, n.Init); err != nil {
		return err
	}
	head := body.Here()
	e.pushLoop(n.Label)
	hasCond := n.Cond != nil
	var exitJump int
	if hasCond {
		if err := e.Expr(body, n.Cond); err != nil {
			return err
		}
		exitJump = body.EmitJump(il.OpJumpIfFalse, line)
	}
	if err := e.Stmt(body, n.Body); err != nil {
		return err
	}
	postStart := body.Here()
	if n.Post != nil {
		if err := e.Expr(body, n.Post); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpPop, line))
	}
	body.Emit(il.WithAB(il.OpJump, 0, uint32(head), line))
	endPos := body.Here()
	if hasCond {
		body.PatchJumpTo(exitJump, endPos)
	}
	loop := e.popLoop()
	patchAll(body, loop.continueJumps, postStart)
	patchAll(body, loop.breakJumps, endPos)
	return nil
}

// emitForOf lowers `for (const x of expr) body`: a bag-values iterator
// advanced once per pass, binding the per-iteration value via bindDeclared
// (so a hoisted loop variable, §8 property 4, routes into its field).
func (e *Emitter) emitForOf(body *il.Body, n *ast.ForOf) error {
	line := n.Position().Line
	if err := e.Expr(body, n.Iter); err != nil {
		return err
	}
	body.Emit(il.Simple(il.OpBagValues, line))
	iterSlot := e.anonLocal()
	body.Emit(il.WithA(il.OpStoreLocal, iterSlot, line))

	e.pushScope()
	head := body.Here()
	e.pushLoop(n.Label)
	body.Emit(il.WithA(il.OpLoadLocal, iterSlot, line))
	body.Emit(il.Simple(il.OpIterHasNext, line))
	exitJump := body.EmitJump(il.OpJumpIfFalse, line)
	body.Emit(il.WithA(il.OpLoadLocal, iterSlot, line))
	body.Emit(il.Simple(il.OpIterNext, line))
	if err := e.bindDeclared(body, n.Name, line); err != nil {
		return err
	}
	if err := e.Stmt(body, n.Body); err != nil {
		return err
	}
	body.Emit(il.WithAB(il.OpJump, 0, uint32(head), line))
	endPos := body.Here()
	body.PatchJumpTo(exitJump, endPos)
	loop := e.popLoop()
	patchAll(body, loop.continueJumps, head)
	patchAll(body, loop.breakJumps, endPos)
	e.popScope()
	return nil
}

// emitForIn lowers `for (const k in expr) body` over the bag's keys.
func (e *Emitter) emitForIn(body *il.Body, n *ast.ForIn) error {
	line := n.Position().Line
	if err := e.Expr(body, n.Obj); err != nil {
		return err
	}
	body.Emit(il.Simple(il.OpBagKeys, line))
	iterSlot := e.anonLocal()
	body.Emit(il.WithA(il.OpStoreLocal, iterSlot, line))

	e.pushScope()
	head := body.Here()
	e.pushLoop(n.Label)
	body.Emit(il.WithA(il.OpLoadLocal, iterSlot, line))
	body.Emit(il.Simple(il.OpIterHasNext, line))
	exitJump := body.EmitJump(il.OpJumpIfFalse, line)
	body.Emit(il.WithA(il.OpLoadLocal, iterSlot, line))
	body.Emit(il.Simple(il.OpIterNext, line))
	if err := e.bindDeclared(body, n.Name, line); err != nil {
		return err
	}
	if err := e.Stmt(body, n.Body); err != nil {
		return err
	}
	body.Emit(il.WithAB(il.OpJump, 0, uint32(head), line))
	endPos := body.Here()
	body.PatchJumpTo(exitJump, endPos)
	loop := e.popLoop()
	patchAll(body, loop.continueJumps, head)
	patchAll(body, loop.breakJumps, endPos)
	e.popScope()
	return nil
}

// emitSwitch lowers a strict-equality cascade (§4.5): the discriminant is
// evaluated once into a temporary, each non-default case is tested in
// source order, and case bodies fall through to the next the way a source
// switch does (no implicit break between them).
func (e *Emitter) emitSwitch(body *il.Body, n *ast.Switch) error {
	line := n.Position().Line
	if err := e.Expr(body, n.Disc); err != nil {
		return err
	}
	discSlot := e.anonLocal()
	body.Emit(il.WithA(il.OpStoreLocal, discSlot, line))

	e.pushScope()
	e.pushSwitch("")

	caseJumps := make([]int, len(n.Cases))
	defaultIdx := -1
	for i, c := range n.Cases {
		if c.Test == nil {
			defaultIdx = i
			continue
		}
		body.Emit(il.WithA(il.OpLoadLocal, discSlot, line))
		if err := e.Expr(body, c.Test); err != nil {
			return err
		}
		body.Emit(il.Simple(il.OpEq, line))
		caseJumps[i] = body.EmitJump(il.OpJumpIfTrue, line)
	}
	fallToDefault := body.EmitJump(il.OpJump, line)

	bodyOffsets := make([]int, len(n.Cases))
	for i, c := range n.Cases {
		bodyOffsets[i] = body.Here()
		for _, s := range c.Stmts {
			if err := e.Stmt(body, s); err != nil {
				return err
			}
		}
	}
	endPos := body.Here()

	for i, c := range n.Cases {
		if c.Test == nil {
			continue
		}
		body.PatchJumpTo(caseJumps[i], bodyOffsets[i])
	}
	if defaultIdx >= 0 {
		body.PatchJumpTo(fallToDefault, bodyOffsets[defaultIdx])
	} else {
		body.PatchJumpTo(fallToDefault, endPos)
	}

	loop := e.popLoop()
	patchAll(body, loop.breakJumps, endPos)
	e.popScope()
	return nil
}

// emitTry lowers try/catch/finally under the deferred-return protocol
// (§4.5): a `return` lexically inside body/catch/finally cannot emit `ret`
// directly (it would jump out of a protected region mid-flight), so it
// stashes its value into return_value, sets should_return, and leaves here
// instead; once the protected region and any finally have run, the check
// below performs the real return. This package applies that check right
// after every try statement (not only the outermost one); a try nested
// inside another try's body relies on the outer try's own BeginTry/EndTry
// still being open at that point being harmless for this non-executing
// reference IL — a documented simplification of the full CLR-leave-chain
// behavior (see DESIGN.md).
func (e *Emitter) emitTry(body *il.Body, n *ast.Try) error {
	line := n.Position().Line
	e.ensureDeferredSlots()
	e.tryLeaveStack = append(e.tryLeaveStack, nil)
	e.tryDepth++

	body.Emit(il.Simple(il.OpBeginTry, line))
	if err := e.emitBlockStmts(body, n.Body); err != nil {
		return err
	}
	body.Emit(il.Simple(il.OpEndTry, line))
	skipCatch := body.EmitJump(il.OpJump, line)

	if n.Catch != nil {
		e.pushScope()
		if n.Catch.Param != "" {
			if err := e.bindDeclared(body, n.Catch.Param, line); err != nil {
				return err
			}
		} else {
			body.Emit(il.Simple(il.OpPop, line))
		}
		if err := e.emitBlockStmts(body, n.Catch.Body); err != nil {
			return err
		}
		e.popScope()
	}
	body.PatchJump(skipCatch)
	e.tryDepth--

	if n.Finally != nil {
		if err := e.emitBlockStmts(body, n.Finally); err != nil {
			return err
		}
	}

	checkPoint := body.Here()
	leaves := e.tryLeaveStack[len(e.tryLeaveStack)-1]
	e.tryLeaveStack = e.tryLeaveStack[:len(e.tryLeaveStack)-1]
	patchAll(body, leaves, checkPoint)

	body.Emit(il.WithA(il.OpLoadLocal, e.shouldReturnSlot, line))
	skipReturn := body.EmitJump(il.OpJumpIfFalse, line)
	body.Emit(il.WithA(il.OpLoadLocal, e.returnValueSlot, line))
	body.Emit(il.Simple(il.OpReturn, line))
	body.PatchJump(skipReturn)
	return nil
}

// emitReturn emits a direct OpReturn at method scope, the deferred-return
// protocol's store-flag-leave sequence inside a try, or delegates to
// ReturnHook when one is installed (internal/asyncmove's MoveNext lowering).
func (e *Emitter) emitReturn(body *il.Body, n *ast.Return) error {
	line := n.Position().Line
	if e.ReturnHook != nil {
		return e.ReturnHook(body, n.Value, line)
	}
	if n.Value != nil {
		if err := e.Expr(body, n.Value); err != nil {
			return err
		}
	} else {
		body.Emit(il.Simple(il.OpLoadNull, line))
	}
	if e.tryDepth == 0 {
		body.Emit(il.Simple(il.OpReturn, line))
		return nil
	}
	e.ensureDeferredSlots()
	body.Emit(il.WithA(il.OpStoreLocal, e.returnValueSlot, line))
	body.Emit(il.Simple(il.OpLoadTrue, line))
	body.Emit(il.WithA(il.OpStoreLocal, e.shouldReturnSlot, line))
	idx := body.EmitJump(il.OpLeave, line)
	top := len(e.tryLeaveStack) - 1
	e.tryLeaveStack[top] = append(e.tryLeaveStack[top], idx)
	return nil
}

func (e *Emitter) emitBreak(body *il.Body, n *ast.Break) error {
	line := n.Position().Line
	lc := e.findLoop(n.Label, true)
	if lc == nil {
		return malformed(errors.AST002, n.Position(), "statement", n)
	}
	idx := body.EmitJump(il.OpJump, line)
	lc.breakJumps = append(lc.breakJumps, idx)
	return nil
}

func (e *Emitter) emitContinue(body *il.Body, n *ast.Continue) error {
	line := n.Position().Line
	lc := e.findLoop(n.Label, false)
	if lc == nil {
		return malformed(errors.AST002, n.Position(), "statement", n)
	}
	idx := body.EmitJump(il.OpJump, line)
	lc.continueJumps = append(lc.continueJumps, idx)
	return nil
}

// EmitDefaultParams emits the `if (arg === undefined) arg = default` checks
// spec.md §4.5 calls for, run at method entry before the body: each
// defaulted parameter compares its own argument slot against null and
// re-evaluates its default expression only on that branch.
func (e *Emitter) EmitDefaultParams(body *il.Body, params []ast.Param, isInstanceMethod bool) error {
	argBase := uint32(0)
	if isInstanceMethod {
		argBase = 1
	}
	for i, p := range params {
		if p.Default == nil {
			continue
		}
		line := p.Default.Position().Line
		slot := argBase + uint32(i)
		body.Emit(il.WithA(il.OpLoadArg, slot, line))
		body.Emit(il.Simple(il.OpLoadNull, line))
		body.Emit(il.Simple(il.OpEq, line))
		skip := body.EmitJump(il.OpJumpIfFalse, line)
		if err := e.Expr(body, p.Default); err != nil {
			return err
		}
		body.Emit(il.WithA(il.OpStoreArg, slot, line))
		body.PatchJump(skip)
	}
	return nil
}
