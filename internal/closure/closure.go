// Package closure is the Closure Analyzer (component B, spec.md §4.2): a
// single AST walk that computes, for every arrow function, the set of free
// variable names its body references but does not bind itself. Names
// captured by an inner arrow propagate to every enclosing arrow that also
// fails to bind them — exactly the "captured name... propagated upward"
// rule spec.md §4.2 describes.
//
// The walker shape (a stack of scope frames, push on block/loop/arrow
// entry, pop on exit) is the same technique the teacher's bytecode
// compiler uses to resolve locals vs. upvalues per enclosing function
// (internal/bytecode/compiler_core.go's enclosing-compiler chain); this
// package generalizes it to a pure analysis pass that runs once, ahead of
// emission, rather than interleaving resolution with code generation.
package closure

import "github.com/tsilgen/tsilc/internal/ast"

// Result is the output of Analyze: the capture set for every arrow
// encountered, plus the arrows in discovery order (the order phase 5,
// "collect and define arrow functions", processes them in).
type Result struct {
	Captures map[*ast.Arrow]map[string]bool
	Order    []*ast.Arrow
}

// CapturedNames returns the capture set for arrow (an unordered set), or
// nil if arrow captures nothing (a case the driver treats specially: no
// captures means the arrow lowers to a static method, not a display class).
func (r *Result) CapturedNames(arrow *ast.Arrow) map[string]bool {
	return r.Captures[arrow]
}

type scopeFrame struct {
	names      map[string]bool
	arrowDepth int // 0 = not inside any arrow; N = inside N nested arrows
}

type analyzer struct {
	scopes     []scopeFrame
	arrowStack []*ast.Arrow
	result     *Result
}

// Analyze walks stmts (the merged top-level statements of one or more
// modules, per spec.md §4.1 phase 2: "closure analysis over all statements,
// across all modules, pre-merged") and returns the per-arrow capture sets.
func Analyze(stmts []ast.Stmt) *Result {
	a := &analyzer{result: &Result{Captures: make(map[*ast.Arrow]map[string]bool)}}
	a.pushScope(0)
	// `this` is an ordinary name bound outside every arrow, so an arrow
	// that uses it captures it like any other outer identifier.
	a.bind("this")
	for _, s := range stmts {
		a.walkStmt(s)
	}
	a.popScope()
	return a.result
}

func (a *analyzer) pushScope(arrowDepth int) {
	a.scopes = append(a.scopes, scopeFrame{names: make(map[string]bool), arrowDepth: arrowDepth})
}

func (a *analyzer) popScope() {
	a.scopes = a.scopes[:len(a.scopes)-1]
}

func (a *analyzer) bind(name string) {
	if name == "" {
		return
	}
	a.scopes[len(a.scopes)-1].names[name] = true
}

// reference resolves name, marking every arrow strictly deeper than the
// binding site as capturing it. An unresolved name (not bound anywhere in
// scope) is left alone: per spec.md §7 that is the "unresolved name" kind,
// lowered to a null push by the emitter, not a capture.
func (a *analyzer) reference(name string) {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		frame := a.scopes[i]
		if !frame.names[name] {
			continue
		}
		for depth := len(a.arrowStack); depth > frame.arrowDepth; depth-- {
			arrow := a.arrowStack[depth-1]
			captures := a.result.Captures[arrow]
			if captures == nil {
				captures = make(map[string]bool)
				a.result.Captures[arrow] = captures
			}
			captures[name] = true
		}
		return
	}
}

func (a *analyzer) walkArrow(arrow *ast.Arrow) {
	if _, seen := a.result.Captures[arrow]; !seen {
		a.result.Order = append(a.result.Order, arrow)
	}
	a.arrowStack = append(a.arrowStack, arrow)
	a.pushScope(len(a.arrowStack))
	for _, p := range arrow.Params {
		a.bind(p.Name)
		if p.Default != nil {
			a.walkExpr(p.Default)
		}
	}
	a.walkExpr(arrow.Body)
	a.popScope()
	a.arrowStack = a.arrowStack[:len(a.arrowStack)-1]
}

func (a *analyzer) arrowDepth() int { return len(a.arrowStack) }

func (a *analyzer) walkBlock(b *ast.Block) {
	a.pushScope(a.arrowDepth())
	for _, s := range b.Stmts {
		a.walkStmt(s)
	}
	a.popScope()
}

func (a *analyzer) walkStmt(s ast.Stmt) {
	switch n := s.(type) {
	case nil:
		return
	case *ast.Block:
		a.walkBlock(n)
	case *ast.ExprStmt:
		a.walkExpr(n.Expr)
	case *ast.VarDecl:
		if n.Init != nil {
			a.walkExpr(n.Init)
		}
		for _, name := range n.Names {
			a.bind(name)
		}
	case *ast.If:
		a.walkExpr(n.Cond)
		a.walkStmt(n.Then)
		a.walkStmt(n.Else)
	case *ast.While:
		a.walkExpr(n.Cond)
		a.walkStmt(n.Body)
	case *ast.For:
		a.pushScope(a.arrowDepth())
		a.walkStmt(n.Init)
		a.walkExpr(n.Cond)
		a.walkExpr(n.Post)
		a.walkStmt(n.Body)
		a.popScope()
	case *ast.ForOf:
		a.walkExpr(n.Iter)
		a.pushScope(a.arrowDepth())
		a.bind(n.Name)
		a.walkStmt(n.Body)
		a.popScope()
	case *ast.ForIn:
		a.walkExpr(n.Obj)
		a.pushScope(a.arrowDepth())
		a.bind(n.Name)
		a.walkStmt(n.Body)
		a.popScope()
	case *ast.Switch:
		a.walkExpr(n.Disc)
		a.pushScope(a.arrowDepth())
		for _, c := range n.Cases {
			a.walkExpr(c.Test)
			for _, cs := range c.Stmts {
				a.walkStmt(cs)
			}
		}
		a.popScope()
	case *ast.Try:
		a.walkBlock(n.Body)
		if n.Catch != nil {
			a.pushScope(a.arrowDepth())
			a.bind(n.Catch.Param)
			for _, cs := range n.Catch.Body.Stmts {
				a.walkStmt(cs)
			}
			a.popScope()
		}
		if n.Finally != nil {
			a.walkBlock(n.Finally)
		}
	case *ast.Throw:
		a.walkExpr(n.Value)
	case *ast.Return:
		a.walkExpr(n.Value)
	case *ast.Break, *ast.Continue:
		// no expressions
	case *ast.FuncDecl:
		a.bind(n.Name)
		// Non-arrow functions are their own `this`/scope boundary and out
		// of core scope (spec.md §4.2): we still bind the name (so arrows
		// referencing it don't spuriously capture a global) but do not
		// descend into params/body as part of the enclosing arrow chain.
	case *ast.ClassDecl:
		a.bind(n.Name)
		for _, f := range n.Fields {
			a.walkExpr(f.Init)
		}
	case *ast.EnumDecl:
		a.bind(n.Name)
		for _, m := range n.Members {
			a.walkExpr(m.InitExpr)
		}
	case *ast.ImportDecl:
		if n.Default != "" {
			a.bind(n.Default)
		}
		for _, spec := range n.Specs {
			local := spec.Local
			if local == "" {
				local = spec.Name
			}
			a.bind(local)
		}
	case *ast.ExportDecl:
		// export declarations reference already-bound names; nothing to
		// walk here beyond what the referenced declaration itself does.
	default:
		// Unrecognized statement variants are an emitter-time error
		// (spec.md §7, AST-malformed); the closure analyzer runs before
		// that check and simply ignores anything it doesn't model, since
		// it can only ever widen (never shrink) a correct capture set.
	}
}

func (a *analyzer) walkExpr(e ast.Expr) {
	switch n := e.(type) {
	case nil:
		return
	case *ast.Literal:
	case *ast.Identifier:
		a.reference(n.Name)
	case *ast.ThisExpr:
		a.reference("this")
	case *ast.BinOp:
		a.walkExpr(n.Left)
		a.walkExpr(n.Right)
	case *ast.UnaryOp:
		a.walkExpr(n.Operand)
	case *ast.IncDec:
		a.walkExpr(n.Target)
	case *ast.Ternary:
		a.walkExpr(n.Cond)
		a.walkExpr(n.Then)
		a.walkExpr(n.Else)
	case *ast.Grouping:
		a.walkExpr(n.Inner)
	case *ast.Call:
		a.walkExpr(n.Callee)
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.New:
		a.walkExpr(n.Callee)
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.GetProp:
		a.walkExpr(n.Object)
	case *ast.SetProp:
		a.walkExpr(n.Object)
	case *ast.GetIndex:
		a.walkExpr(n.Object)
		a.walkExpr(n.Index)
	case *ast.SetIndex:
		a.walkExpr(n.Object)
		a.walkExpr(n.Index)
	case *ast.NonNullAssert:
		a.walkExpr(n.Inner)
	case *ast.TypeAssertion:
		a.walkExpr(n.Inner)
	case *ast.Satisfies:
		a.walkExpr(n.Inner)
	case *ast.AssignOp:
		a.walkExpr(n.Target)
		a.walkExpr(n.Value)
	case *ast.Spread:
		a.walkExpr(n.Inner)
	case *ast.TemplateLiteral:
		for _, e := range n.Exprs {
			a.walkExpr(e)
		}
		a.walkExpr(n.Tag)
	case *ast.ArrayLit:
		for _, e := range n.Elements {
			a.walkExpr(e)
		}
	case *ast.RecordLit:
		for _, f := range n.Fields {
			a.walkExpr(f.Value)
		}
	case *ast.Arrow:
		a.walkArrow(n)
	case *ast.Await:
		a.walkExpr(n.Inner)
	case *ast.Yield:
		a.walkExpr(n.Inner)
	case *ast.DynamicImport:
		a.walkExpr(n.Path)
	case *ast.ImportMeta:
	case *ast.ClassExpr:
		a.walkStmt(n.Decl)
	case *ast.BlockExpr:
		a.walkBlock(n.Block)
	default:
		// see walkStmt's default case rationale.
	}
}
