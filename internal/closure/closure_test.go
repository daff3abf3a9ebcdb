package closure

import (
	"testing"

	"github.com/tsilgen/tsilc/internal/ast"
)

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

// TestSimpleCapture models: let n = 0; const inc = () => { n = n + 1; };
// (spec.md §8 property 1, closure soundness) — inc must capture "n".
func TestSimpleCapture(t *testing.T) {
	arrow := &ast.Arrow{
		Body: &ast.BlockExpr{Block: &ast.Block{Stmts: []ast.Stmt{
			&ast.ExprStmt{Expr: &ast.AssignOp{
				Op:     "=",
				Target: ident("n"),
				Value:  &ast.BinOp{Op: "+", Left: ident("n"), Right: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			}},
		}}},
	}

	stmts := []ast.Stmt{
		&ast.VarDecl{Kind: "let", Names: []string{"n"}, Init: &ast.Literal{Kind: ast.LitNumber, Value: 0.0}},
		&ast.VarDecl{Kind: "const", Names: []string{"inc"}, Init: arrow},
	}

	result := Analyze(stmts)
	captures := result.CapturedNames(arrow)
	if !captures["n"] {
		t.Fatalf("expected inc to capture %q, got %v", "n", captures)
	}
	if len(captures) != 1 {
		t.Fatalf("expected exactly one capture, got %v", captures)
	}
}

// TestParamShadowsOuter verifies a parameter of the same name as an outer
// binding shadows it and is not captured.
func TestParamShadowsOuter(t *testing.T) {
	arrow := &ast.Arrow{
		Params: []ast.Param{{Name: "n"}},
		Body:   ident("n"),
	}
	stmts := []ast.Stmt{
		&ast.VarDecl{Kind: "let", Names: []string{"n"}},
		&ast.ExprStmt{Expr: arrow},
	}

	result := Analyze(stmts)
	if captures := result.CapturedNames(arrow); len(captures) != 0 {
		t.Fatalf("expected no captures (param shadows outer), got %v", captures)
	}
}

// TestNestedArrowPropagatesCapture models the nested-async-arrow sharing
// shape of spec.md §8 property 3: an inner arrow's captured name must also
// propagate to the enclosing outer arrow when only the inner arrow
// references it directly.
func TestNestedArrowPropagatesCapture(t *testing.T) {
	inner := &ast.Arrow{Body: ident("v")}
	outer := &ast.Arrow{
		Body: &ast.BlockExpr{Block: &ast.Block{Stmts: []ast.Stmt{
			&ast.ExprStmt{Expr: inner},
		}}},
	}
	stmts := []ast.Stmt{
		&ast.VarDecl{Kind: "let", Names: []string{"v"}},
		&ast.ExprStmt{Expr: outer},
	}

	result := Analyze(stmts)
	if !result.CapturedNames(inner)["v"] {
		t.Fatalf("expected inner arrow to capture %q", "v")
	}
	if !result.CapturedNames(outer)["v"] {
		t.Fatalf("expected outer arrow to also capture %q (propagation)", "v")
	}
}

// TestNoCaptureForSelfContainedArrow verifies an arrow that only uses its
// own parameters and locals captures nothing, driving the driver's
// static-method-vs-display-class choice in phase 5.
func TestNoCaptureForSelfContainedArrow(t *testing.T) {
	arrow := &ast.Arrow{
		Params: []ast.Param{{Name: "x"}},
		Body:   &ast.BinOp{Op: "+", Left: ident("x"), Right: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
	}
	result := Analyze([]ast.Stmt{&ast.ExprStmt{Expr: arrow}})
	if captures := result.CapturedNames(arrow); len(captures) != 0 {
		t.Fatalf("expected no captures, got %v", captures)
	}
}

func TestThisIsCapturedLikeAnIdentifier(t *testing.T) {
	arrow := &ast.Arrow{Body: &ast.ThisExpr{}}
	result := Analyze([]ast.Stmt{&ast.ExprStmt{Expr: arrow}})
	if !result.CapturedNames(arrow)["this"] {
		t.Fatalf("expected arrow to capture %q, got %v", "this", result.CapturedNames(arrow))
	}
}
