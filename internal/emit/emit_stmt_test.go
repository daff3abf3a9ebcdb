package emit

import (
	"testing"

	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/il"
)

func countOps(code []il.Instruction, op il.OpCode) int {
	n := 0
	for _, ins := range code {
		if ins.Op == op {
			n++
		}
	}
	return n
}

func TestIfEmitsBothBranches(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	stmt := &ast.If{
		Cond: lit(1),
		Then: &ast.ExprStmt{Expr: lit(2)},
		Else: &ast.ExprStmt{Expr: lit(3)},
	}
	if err := e.Stmt(body, stmt); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	if countOps(body.Code, il.OpJumpIfFalse) != 1 {
		t.Fatalf("expected one JumpIfFalse, got %v", body.Code)
	}
	if countOps(body.Code, il.OpJump) != 1 {
		t.Fatalf("expected one unconditional Jump past the else branch, got %v", body.Code)
	}
}

func TestWhileBreakAndContinueTargetTheLoop(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	stmt := &ast.While{
		Cond: lit(1),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.If{Cond: ident("a"), Then: &ast.Break{}},
			&ast.If{Cond: ident("b"), Then: &ast.Continue{}},
		}},
	}
	if err := e.Stmt(body, stmt); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	// Both break and continue lower to an unpatched-then-patched Jump; by
	// the time Stmt returns every jump target must be in range.
	for i, ins := range body.Code {
		if ins.Op == il.OpJump || ins.Op == il.OpJumpIfFalse || ins.Op == il.OpJumpIfTrue {
			if int(ins.B) > len(body.Code) {
				t.Fatalf("instruction %d jump target %d exceeds body length %d", i, ins.B, len(body.Code))
			}
		}
	}
}

func TestLabeledBreakTargetsNamedLoop(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	inner := &ast.While{Cond: lit(1), Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Expr: lit(1)},
	}}}
	outer := &ast.While{
		Cond:  lit(1),
		Label: "outer",
		Body: &ast.Block{Stmts: []ast.Stmt{
			inner,
			&ast.Break{Label: "outer"},
		}},
	}
	if err := e.Stmt(body, outer); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	// The outer loop ends at the end of the emitted body; the labeled
	// break is the one unconditional Jump that targets it.
	var toOuterEnd int
	for _, ins := range body.Code {
		if ins.Op == il.OpJump && int(ins.B) == len(body.Code) {
			toOuterEnd++
		}
	}
	if toOuterEnd != 1 {
		t.Fatalf("expected one Jump to the outer loop's end (%d), got %v", len(body.Code), body.Code)
	}
}

func TestBreakInsideSwitchDoesNotEscapeToEnclosingLoop(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	loop := &ast.While{
		Cond: lit(1),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Switch{
				Disc: ident("x"),
				Cases: []ast.SwitchCase{
					{Test: lit(1), Stmts: []ast.Stmt{&ast.Break{}}},
				},
			},
		}},
	}
	if err := e.Stmt(body, loop); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	// The loop ends at the end of the emitted body; a break that left the
	// switch only must not jump there.
	for i, ins := range body.Code {
		if ins.Op == il.OpJump && int(ins.B) == len(body.Code) {
			t.Fatalf("instruction %d jumps to the loop's end: %v", i, body.Code)
		}
	}
}

func TestContinueInsideSwitchSkipsToEnclosingLoop(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	loop := &ast.While{
		Cond: lit(1),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Switch{
				Disc: ident("x"),
				Cases: []ast.SwitchCase{
					{Test: lit(1), Stmts: []ast.Stmt{&ast.Continue{}}},
				},
			},
		}},
	}
	if err := e.Stmt(body, loop); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	// The loop head is offset 0: the continue and the loop's own back-edge
	// both jump there.
	var toHead int
	for _, ins := range body.Code {
		if ins.Op == il.OpJump && ins.B == 0 {
			toHead++
		}
	}
	if toHead != 2 {
		t.Fatalf("expected 2 Jumps to the loop head (continue + back-edge), got %d in %v", toHead, body.Code)
	}
}

func TestContinueWithNoEnclosingLoopIsMalformed(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	err := e.Stmt(body, &ast.Switch{
		Disc: ident("x"),
		Cases: []ast.SwitchCase{
			{Test: lit(1), Stmts: []ast.Stmt{&ast.Continue{}}},
		},
	})
	if err == nil {
		t.Fatal("expected continue with no enclosing loop (only a switch) to be malformed")
	}
}

func TestSwitchFallsThroughBetweenCases(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	stmt := &ast.Switch{
		Disc: ident("x"),
		Cases: []ast.SwitchCase{
			{Test: lit(1), Stmts: []ast.Stmt{&ast.ExprStmt{Expr: lit(10)}}},
			{Test: lit(2), Stmts: []ast.Stmt{&ast.ExprStmt{Expr: lit(20)}}},
			{Stmts: []ast.Stmt{&ast.ExprStmt{Expr: lit(30)}}}, // default
		},
	}
	if err := e.Stmt(body, stmt); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	// No break statements were written, so there must be no extra Jump
	// between case bodies beyond the dispatch cascade itself.
	if countOps(body.Code, il.OpEq) != 2 {
		t.Fatalf("expected one Eq per non-default case, got %v", body.Code)
	}
	if countOps(body.Code, il.OpJump) != 1 {
		t.Fatalf("expected only the cascade's fall-to-default Jump, got %v", body.Code)
	}
}

func TestForOfIteratesBagValues(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	stmt := &ast.ForOf{
		Kind: "const",
		Name: "v",
		Iter: ident("xs"),
		Body: &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{Expr: ident("v")}}},
	}
	if err := e.Stmt(body, stmt); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	if countOps(body.Code, il.OpBagValues) != 1 {
		t.Fatal("expected exactly one OpBagValues")
	}
	if countOps(body.Code, il.OpIterHasNext) != 1 || countOps(body.Code, il.OpIterNext) != 1 {
		t.Fatal("expected exactly one IterHasNext/IterNext pair")
	}
}

func TestForInIteratesBagKeys(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	stmt := &ast.ForIn{
		Kind: "const",
		Name: "k",
		Obj:  ident("obj"),
		Body: &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{Expr: ident("k")}}},
	}
	if err := e.Stmt(body, stmt); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	if countOps(body.Code, il.OpBagKeys) != 1 {
		t.Fatal("expected exactly one OpBagKeys")
	}
}

func TestTryCatchFinallyRunsBothHandlers(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod(nil, false, "")

	body := &il.Body{}
	stmt := &ast.Try{
		Body:    &ast.Block{Stmts: []ast.Stmt{&ast.Throw{Value: lit(1)}}},
		Catch:   &ast.CatchClause{Param: "e", Body: &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{Expr: ident("e")}}}},
		Finally: &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{Expr: lit(0)}}},
	}
	if err := e.Stmt(body, stmt); err != nil {
		t.Fatalf("Stmt: %v", err)
	}
	if countOps(body.Code, il.OpBeginTry) != 1 || countOps(body.Code, il.OpEndTry) != 1 {
		t.Fatal("expected a single BeginTry/EndTry pair")
	}
}

func TestEmitDefaultParamsOnlyForDefaultedParams(t *testing.T) {
	asm := il.NewAssembly("test")
	e := newTestEmitter(asm)
	e.BeginMethod([]ast.Param{{Name: "a"}, {Name: "b", Default: lit(5)}}, false, "")

	body := &il.Body{}
	if err := e.EmitDefaultParams(body, []ast.Param{{Name: "a"}, {Name: "b", Default: lit(5)}}, false); err != nil {
		t.Fatalf("EmitDefaultParams: %v", err)
	}
	if countOps(body.Code, il.OpStoreArg) != 1 {
		t.Fatalf("expected exactly one conditional StoreArg (for b), got %v", body.Code)
	}
}
