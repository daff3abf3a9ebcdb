package asyncflow

import (
	"testing"

	"github.com/tsilgen/tsilc/internal/ast"
)

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

func lit(n float64) *ast.Literal { return &ast.Literal{Kind: ast.LitNumber, Value: n} }

func awaitTick() *ast.Await { return &ast.Await{Inner: &ast.Call{Callee: ident("tick")}} }

// TestHoistsLocalAcrossAwait models spec.md §8 property 2:
// async function f() { let x = 1; await tick(); x = x + 1; await tick(); return x }
func TestHoistsLocalAcrossAwait(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Kind: "let", Names: []string{"x"}, Init: lit(1)},
		&ast.ExprStmt{Expr: awaitTick()},
		&ast.ExprStmt{Expr: &ast.AssignOp{Op: "=", Target: ident("x"), Value: &ast.BinOp{Op: "+", Left: ident("x"), Right: lit(1)}}},
		&ast.ExprStmt{Expr: awaitTick()},
		&ast.Return{Value: ident("x")},
	}}

	a := Analyze(nil, body)
	if a.AwaitCount != 2 {
		t.Fatalf("AwaitCount = %d, want 2", a.AwaitCount)
	}
	if !a.HoistedLocals["x"] {
		t.Fatalf("expected %q to be hoisted, got %v", "x", a.HoistedLocals)
	}
}

// TestForOfHoistsLoopVariable models spec.md §8 property 4.
func TestForOfHoistsLoopVariable(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Kind: "let", Names: []string{"sum"}, Init: lit(0)},
		&ast.ForOf{
			Kind: "const", Name: "x",
			Iter: &ast.ArrayLit{Elements: []ast.Expr{lit(1), lit(2), lit(3)}},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.ExprStmt{Expr: awaitTick()},
				&ast.ExprStmt{Expr: &ast.AssignOp{Op: "=", Target: ident("sum"), Value: &ast.BinOp{Op: "+", Left: ident("sum"), Right: ident("x")}}},
			}},
		},
		&ast.Return{Value: ident("sum")},
	}}

	a := Analyze(nil, body)
	if !a.HoistedLocals["x"] {
		t.Fatalf("expected for-of loop variable %q to hoist, got %v", "x", a.HoistedLocals)
	}
}

// TestParameterHoistsWhenUsedAfterAwait covers the "used after await"
// criterion for parameters (spec.md §4.3).
func TestParameterHoistsWhenUsedAfterAwait(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Expr: awaitTick()},
		&ast.Return{Value: ident("p")},
	}}
	a := Analyze([]ast.Param{{Name: "p"}}, body)
	if !a.HoistedParameters["p"] {
		t.Fatalf("expected parameter %q to hoist, got %v", "p", a.HoistedParameters)
	}
}

// TestParameterNotHoistedWhenOnlyUsedBeforeAwait ensures the criterion is
// one-directional: a param used only before the first await does not hoist.
func TestParameterNotHoistedWhenOnlyUsedBeforeAwait(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Expr: &ast.Call{Callee: ident("log"), Args: []ast.Expr{ident("p")}}},
		&ast.ExprStmt{Expr: awaitTick()},
		&ast.Return{Value: lit(0)},
	}}
	a := Analyze([]ast.Param{{Name: "p"}}, body)
	if a.HoistedParameters["p"] {
		t.Fatalf("did not expect %q to hoist", "p")
	}
}

// TestNestedAsyncArrowDiscovery models spec.md §8 property 3's shape:
// async function outer(){ let v = 0; const inner = async () => { v = v + 10; await tick(); v = v + 10; }; await inner(); await inner(); return v }
func TestNestedAsyncArrowDiscovery(t *testing.T) {
	inner := &ast.Arrow{
		Async: true,
		Body: &ast.BlockExpr{Block: &ast.Block{Stmts: []ast.Stmt{
			&ast.ExprStmt{Expr: &ast.AssignOp{Op: "=", Target: ident("v"), Value: &ast.BinOp{Op: "+", Left: ident("v"), Right: lit(10)}}},
			&ast.ExprStmt{Expr: awaitTick()},
			&ast.ExprStmt{Expr: &ast.AssignOp{Op: "=", Target: ident("v"), Value: &ast.BinOp{Op: "+", Left: ident("v"), Right: lit(10)}}},
		}}},
	}
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Kind: "let", Names: []string{"v"}, Init: lit(0)},
		&ast.VarDecl{Kind: "const", Names: []string{"inner"}, Init: inner},
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("inner")}}},
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("inner")}}},
		&ast.Return{Value: ident("v")},
	}}

	a := Analyze(nil, body)
	if len(a.AsyncArrows) != 1 {
		t.Fatalf("expected 1 nested async arrow, got %d", len(a.AsyncArrows))
	}
	info := a.AsyncArrows[0]
	if info.Node != inner {
		t.Fatalf("discovered arrow does not match inner")
	}
	if info.Parent != nil {
		t.Fatalf("expected inner's parent to be nil (direct child of outer function), got %v", info.Parent)
	}
	if info.NestingLevel != 1 {
		t.Fatalf("NestingLevel = %d, want 1", info.NestingLevel)
	}
	// The outer function's own state machine must hoist "v": inner
	// mutates it across a suspension boundary of its own.
	if !a.HoistedLocals["v"] {
		t.Fatalf("expected outer to hoist %q because inner references it, got %v", "v", a.HoistedLocals)
	}
}
