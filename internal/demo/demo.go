// Package demo builds small, hand-constructed typed-AST programs that
// exercise the pipeline end to end. A real deployment hands internal/driver
// an AST built by the upstream parser/type-checker (out of core scope, see
// spec.md §1); with no front end in this repo, this package gives
// cmd/tsilc and internal/driver's own tests a fixed set of named programs
// to compile instead, each one grounded on one of spec.md §8's testable
// properties.
package demo

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/resolveriface"
)

// Program is one named, compilable demo: a statement list plus the entry
// function driver.Config.EntryPoint should be pointed at.
type Program struct {
	Name       string
	EntryPoint string
	Stmts      []ast.Stmt
}

func block(stmts ...ast.Stmt) *ast.Block { return &ast.Block{Stmts: stmts} }

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

func num(v float64) *ast.Literal { return &ast.Literal{Kind: ast.LitNumber, Value: v} }

// Programs returns every named demo program, keyed by Program.Name.
func Programs() map[string]*Program {
	list := []*Program{closureProgram(), hoistProgram(), nestedAsyncProgram(), forOfAwaitProgram(), tryFinallyProgram()}
	out := make(map[string]*Program, len(list))
	for _, p := range list {
		out[p.Name] = p
	}
	return out
}

// closureProgram grounds spec.md §8 property 1: a captured local mutated
// from inside an arrow is observed by the enclosing scope after the arrow
// returns.
//
//	function main() {
//	  let n = 0;
//	  const inc = () => { n = n + 1; };
//	  inc();
//	  inc();
//	  return n;
//	}
func closureProgram() *Program {
	incBody := block(&ast.ExprStmt{Expr: &ast.AssignOp{
		Op:     "=",
		Target: ident("n"),
		Value:  &ast.BinOp{Op: "+", Left: ident("n"), Right: num(1)},
	}})
	incArrow := &ast.Arrow{Body: &ast.BlockExpr{Block: incBody}}

	main := &ast.FuncDecl{
		Name: "main",
		Body: block(
			&ast.VarDecl{Kind: "let", Names: []string{"n"}, Init: num(0)},
			&ast.VarDecl{Kind: "const", Names: []string{"inc"}, Init: incArrow},
			&ast.ExprStmt{Expr: &ast.Call{Callee: ident("inc")}},
			&ast.ExprStmt{Expr: &ast.Call{Callee: ident("inc")}},
			&ast.Return{Value: ident("n")},
		),
	}
	return &Program{Name: "closure", EntryPoint: "main", Stmts: []ast.Stmt{main}}
}

// hoistProgram grounds spec.md §8 property 2: a local declared before the
// first await and used after it must be hoisted onto the state machine.
//
//	async function main() {
//	  let x = 1;
//	  await tick();
//	  x = x + 1;
//	  await tick();
//	  return x;
//	}
func hoistProgram() *Program {
	main := &ast.FuncDecl{
		Name:  "main",
		Async: true,
		Body: block(
			&ast.VarDecl{Kind: "let", Names: []string{"x"}, Init: num(1)},
			&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("tick")}}},
			&ast.ExprStmt{Expr: &ast.AssignOp{
				Op:     "=",
				Target: ident("x"),
				Value:  &ast.BinOp{Op: "+", Left: ident("x"), Right: num(1)},
			}},
			&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("tick")}}},
			&ast.Return{Value: ident("x")},
		),
	}
	return &Program{Name: "hoist", EntryPoint: "main", Stmts: []ast.Stmt{main}}
}

// nestedAsyncProgram grounds spec.md §8 property 3: a nested async arrow
// mutating an outer hoisted local must be seen by the outer function after
// each await, via the self-boxed outer state machine (§4.6).
//
//	async function main() {
//	  let v = 0;
//	  const inner = async () => {
//	    v = v + 10;
//	    await tick();
//	    v = v + 10;
//	  };
//	  await inner();
//	  await inner();
//	  return v;
//	}
func nestedAsyncProgram() *Program {
	bump := func() ast.Stmt {
		return &ast.ExprStmt{Expr: &ast.AssignOp{
			Op:     "=",
			Target: ident("v"),
			Value:  &ast.BinOp{Op: "+", Left: ident("v"), Right: num(10)},
		}}
	}
	innerBody := block(
		bump(),
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("tick")}}},
		bump(),
	)
	inner := &ast.Arrow{Async: true, Body: &ast.BlockExpr{Block: innerBody}}

	main := &ast.FuncDecl{
		Name:  "main",
		Async: true,
		Body: block(
			&ast.VarDecl{Kind: "let", Names: []string{"v"}, Init: num(0)},
			&ast.VarDecl{Kind: "const", Names: []string{"inner"}, Init: inner},
			&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("inner")}}},
			&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("inner")}}},
			&ast.Return{Value: ident("v")},
		),
	}
	return &Program{Name: "nested-async", EntryPoint: "main", Stmts: []ast.Stmt{main}}
}

// forOfAwaitProgram grounds spec.md §8 property 4: the for-of loop
// variable is hoisted onto the state machine because it is read (via the
// running sum) after the loop body's await.
//
//	async function main() {
//	  let sum = 0;
//	  for (const x of [1, 2, 3]) {
//	    await tick();
//	    sum = sum + x;
//	  }
//	  return sum;
//	}
func forOfAwaitProgram() *Program {
	loopBody := block(
		&ast.ExprStmt{Expr: &ast.Await{Inner: &ast.Call{Callee: ident("tick")}}},
		&ast.ExprStmt{Expr: &ast.AssignOp{
			Op:     "=",
			Target: ident("sum"),
			Value:  &ast.BinOp{Op: "+", Left: ident("sum"), Right: ident("x")},
		}},
	)
	main := &ast.FuncDecl{
		Name:  "main",
		Async: true,
		Body: block(
			&ast.VarDecl{Kind: "let", Names: []string{"sum"}, Init: num(0)},
			&ast.ForOf{Kind: "const", Name: "x", Iter: &ast.ArrayLit{Elements: []ast.Expr{num(1), num(2), num(3)}}, Body: loopBody},
			&ast.Return{Value: ident("sum")},
		),
	}
	return &Program{Name: "for-of-await", EntryPoint: "main", Stmts: []ast.Stmt{main}}
}

// Modules grounds spec.md §8 property 6: module B imports module A and
// calls its sole export; module init order (and the dependency-ordered
// $Initialize splice CompileModules performs) is what makes the call
// resolve to a defined function. Returns the files in declaration order
// (not dependency order — that is CompileModules's job) plus a resolver
// wired with the one import edge.
func Modules() ([]*ast.File, resolveriface.Resolver) {
	moduleA := &ast.File{
		Path: "./a",
		Exports: []*ast.ExportDecl{
			{Specs: []ast.ExportSpec{{Name: "getAnswer"}}},
		},
		Stmts: []ast.Stmt{
			&ast.FuncDecl{Name: "getAnswer", Exported: true, Body: block(
				&ast.Return{Value: num(42)},
			)},
		},
	}
	moduleB := &ast.File{
		Path: "./b",
		Imports: []*ast.ImportDecl{
			{Path: "./a", Specs: []ast.ImportSpec{{Name: "getAnswer", Local: "getAnswer"}}},
		},
		Stmts: []ast.Stmt{
			&ast.FuncDecl{Name: "main", Body: block(
				&ast.Return{Value: &ast.Call{Callee: ident("getAnswer")}},
			)},
		},
	}

	resolver := resolveriface.NewStatic()
	resolver.Add("./b", "./a", "./a")

	return []*ast.File{moduleA, moduleB}, resolver
}

// tryFinallyProgram grounds spec.md §8 property 5: a try/finally inside an
// async body must run the finally block on the deferred-return path.
//
//	async function main() {
//	  try {
//	    return 1;
//	  } finally {
//	    sideEffect();
//	  }
//	}
func tryFinallyProgram() *Program {
	main := &ast.FuncDecl{
		Name:  "main",
		Async: true,
		Body: block(&ast.Try{
			Body:    block(&ast.Return{Value: num(1)}),
			Finally: block(&ast.ExprStmt{Expr: &ast.Call{Callee: ident("sideEffect")}}),
		}),
	}
	return &Program{Name: "try-finally", EntryPoint: "main", Stmts: []ast.Stmt{main}}
}
