package asyncmove

import (
	"testing"

	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/asyncflow"
	"github.com/tsilgen/tsilc/internal/emit"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/runtimeiface"
	"github.com/tsilgen/tsilc/internal/statemachine"
)

func newEmitter(asm *il.Assembly) *emit.Emitter {
	return emit.New(asm, map[string]*il.TypeDef{}, map[string]*il.MethodDef{}, runtimeiface.Handle{}, nil, nil)
}

func TestBuildEmitsDispatchForEachAwait(t *testing.T) {
	asm := il.NewAssembly("test")
	analysis := &asyncflow.Analysis{AwaitCount: 2}
	d := statemachine.Build(asm, analysis, statemachine.Options{Name: "f"})

	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Identifier{Name: "p"}}},
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Identifier{Name: "p"}}},
		&ast.Return{Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
	}}

	e := newEmitter(asm)
	if err := Build(e, Options{Desc: d, Analysis: analysis, Body: body}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if d.MoveNext.Body == nil {
		t.Fatal("expected MoveNext body to be filled in")
	}

	var jumpIfTrue, awaitOnCompleted, leave int
	for _, ins := range d.MoveNext.Body.Code {
		switch ins.Op {
		case il.OpJumpIfTrue:
			jumpIfTrue++
		case il.OpAwaitOnCompleted:
			awaitOnCompleted++
		case il.OpLeave:
			leave++
		}
	}
	if jumpIfTrue != analysis.AwaitCount*2 {
		// one dispatch-header compare per await, plus one IsCompleted check
		// per await site.
		t.Fatalf("OpJumpIfTrue count = %d, want %d", jumpIfTrue, analysis.AwaitCount*2)
	}
	if awaitOnCompleted != analysis.AwaitCount {
		t.Fatalf("OpAwaitOnCompleted count = %d, want %d", awaitOnCompleted, analysis.AwaitCount)
	}
	// one OpLeave per suspend point, plus one for the explicit return.
	if leave != analysis.AwaitCount+1 {
		t.Fatalf("OpLeave count = %d, want %d", leave, analysis.AwaitCount+1)
	}
}

func TestBuildPatchesDispatchJumpsToResumeOffsets(t *testing.T) {
	asm := il.NewAssembly("test")
	analysis := &asyncflow.Analysis{AwaitCount: 1}
	d := statemachine.Build(asm, analysis, statemachine.Options{Name: "g"})

	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Identifier{Name: "p"}}},
	}}

	e := newEmitter(asm)
	if err := Build(e, Options{Desc: d, Analysis: analysis, Body: body}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	code := d.MoveNext.Body.Code
	var dispatchJump *il.Instruction
	for i := range code {
		if code[i].Op == il.OpJumpIfTrue {
			dispatchJump = &code[i]
			break
		}
	}
	if dispatchJump == nil {
		t.Fatal("expected a dispatch-header OpJumpIfTrue")
	}
	target := int(dispatchJump.B)
	if target <= 0 || target >= len(code) {
		t.Fatalf("dispatch jump target %d out of range [0, %d)", target, len(code))
	}
	// The resume offset must land on the reset-to-running-state sequence
	// (OpLoadConst for state -1), not back at the dispatch header itself.
	if code[target].Op != il.OpLoadConst {
		t.Fatalf("expected resume offset to land on OpLoadConst, got %s", code[target].Op)
	}
}

func TestBuildFallOffEndSetsResultAndState(t *testing.T) {
	asm := il.NewAssembly("test")
	analysis := &asyncflow.Analysis{}
	d := statemachine.Build(asm, analysis, statemachine.Options{Name: "h"})

	e := newEmitter(asm)
	if err := Build(e, Options{Desc: d, Analysis: analysis, Body: &ast.Block{}}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	var sawSetResult, sawSetException bool
	for _, ins := range d.MoveNext.Body.Code {
		if ins.Op == il.OpSetResult {
			sawSetResult = true
		}
		if ins.Op == il.OpSetException {
			sawSetException = true
		}
	}
	if !sawSetResult {
		t.Fatal("expected fall-off-end completion to call SetResult")
	}
	if !sawSetException {
		t.Fatal("expected the catch handler to call SetException")
	}

	// emitSetState's shape: LoadConst(-2), LoadArg 0, StoreFieldOn(state).
	var sawDoneState bool
	code := d.MoveNext.Body.Code
	for i := 2; i < len(code); i++ {
		if code[i].Op == il.OpStoreFieldOn && il.FieldToken(code[i].A) == d.StateField.Token &&
			code[i-2].Op == il.OpLoadConst && asm.Constants[code[i-2].A] == float64(-2) {
			sawDoneState = true
		}
	}
	if !sawDoneState {
		t.Fatal("expected fall-off-end completion to store state -2")
	}
}

func TestBuildResetsHooksAfterReturning(t *testing.T) {
	asm := il.NewAssembly("test")
	analysis := &asyncflow.Analysis{}
	d := statemachine.Build(asm, analysis, statemachine.Options{Name: "i"})

	e := newEmitter(asm)
	if err := Build(e, Options{Desc: d, Analysis: analysis, Body: &ast.Block{}}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if e.AwaitHook != nil || e.ReturnHook != nil {
		t.Fatal("expected Build to clear AwaitHook/ReturnHook before returning")
	}
}
