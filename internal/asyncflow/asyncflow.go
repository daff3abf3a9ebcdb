// Package asyncflow is the Async State Analyzer (component C, spec.md
// §2/§4.3): given one async function or method body, it counts await
// points, determines which parameters and locals must be hoisted onto the
// eventual state machine (component D, internal/statemachine), and
// discovers every async arrow lexically nested inside, in discovery order,
// with its parent arrow (if any) and nesting depth.
//
// There is no precedent for await/async analysis anywhere in the example
// pack (neither teacher repo models coroutines); the two-pass hoisting
// walk below is original work, shaped like the teacher's own two-pass
// patterns elsewhere — e.g. internal/semantic/passes' declaration-then-body
// split — applied to the narrower "before/after await" axis spec.md §4.3
// specifies instead of a declare/use axis.
package asyncflow

import "github.com/tsilgen/tsilc/internal/ast"

// ArrowInfo describes one async arrow discovered while analyzing an
// enclosing function or another async arrow.
type ArrowInfo struct {
	Node         *ast.Arrow
	Parent       *ast.Arrow // nil if nested directly in the function being analyzed
	NestingLevel int        // 1 for a direct child, 2 for a grandchild, etc.
}

// Analysis is the per-function/method/arrow result spec.md §4.3 describes.
type Analysis struct {
	AwaitCount        int
	HoistedParameters map[string]bool
	HoistedLocals     map[string]bool
	UsesThis          bool
	HasTryCatch       bool // true if any try-block (body or catch) contains an await
	AsyncArrows       []ArrowInfo
}

type analyzer struct {
	seenAwait           bool
	awaitCount          int
	declaredBeforeAwait map[string]bool
	usedAfterAwait      map[string]bool
	assignedParams      map[string]bool // parameters assigned to anywhere; forces hoist if after an await
	paramNames          map[string]bool
	usesThis            bool
	hasTryCatch         bool
	inTry               int // >0 while walking inside a try/catch region
	tryHasAwait         bool
	arrows              []ArrowInfo
}

// Analyze runs the two-pass hoisting walk over one async function/method
// body (params plus its Block), per spec.md §4.3.
func Analyze(params []ast.Param, body *ast.Block) *Analysis {
	a := &analyzer{
		declaredBeforeAwait: make(map[string]bool),
		usedAfterAwait:      make(map[string]bool),
		assignedParams:      make(map[string]bool),
		paramNames:          make(map[string]bool),
	}
	for _, p := range params {
		a.paramNames[p.Name] = true
	}
	for _, s := range body.Stmts {
		a.walkStmt(s, nil, 0)
	}

	hoistedLocals := make(map[string]bool)
	for name := range a.declaredBeforeAwait {
		if a.usedAfterAwait[name] {
			hoistedLocals[name] = true
		}
	}
	hoistedParams := make(map[string]bool)
	for name := range a.paramNames {
		if a.usedAfterAwait[name] || a.assignedParams[name] {
			hoistedParams[name] = true
		}
	}

	return &Analysis{
		AwaitCount:        a.awaitCount,
		HoistedParameters: hoistedParams,
		HoistedLocals:     hoistedLocals,
		UsesThis:          a.usesThis,
		HasTryCatch:       a.hasTryCatch,
		AsyncArrows:       a.arrows,
	}
}

// reference records a name use, marking it used-after-await if an await has
// already been seen in this function, or if the reference is occurring
// inside a nested async arrow (forceHoist) — a nested arrow always runs in
// a separately-suspendable frame, so any outer name it touches must live
// behind a field reachable through the outer/self_boxed chain (§4.4),
// regardless of where the textual await sits relative to it.
func (a *analyzer) reference(name string, forceHoist bool) {
	if name == "this" {
		a.usesThis = true
		return
	}
	if a.seenAwait || forceHoist {
		a.usedAfterAwait[name] = true
	}
}

func (a *analyzer) assign(name string, forceHoist bool) {
	if a.paramNames[name] && (a.seenAwait || forceHoist) {
		a.assignedParams[name] = true
	}
	a.reference(name, forceHoist)
}

func (a *analyzer) declare(name string) {
	if name == "" {
		return
	}
	if !a.seenAwait {
		a.declaredBeforeAwait[name] = true
	}
}

func (a *analyzer) walkBlock(b *ast.Block, parent *ast.Arrow, level int) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		a.walkStmt(s, parent, level)
	}
}

func (a *analyzer) walkStmt(s ast.Stmt, parent *ast.Arrow, level int) {
	switch n := s.(type) {
	case nil:
		return
	case *ast.Block:
		a.walkBlock(n, parent, level)
	case *ast.ExprStmt:
		a.walkExpr(n.Expr, parent, level, false)
	case *ast.VarDecl:
		a.walkExpr(n.Init, parent, level, false)
		for _, name := range n.Names {
			a.declare(name)
		}
	case *ast.If:
		a.walkExpr(n.Cond, parent, level, false)
		a.walkStmt(n.Then, parent, level)
		a.walkStmt(n.Else, parent, level)
	case *ast.While:
		a.walkExpr(n.Cond, parent, level, false)
		a.walkStmt(n.Body, parent, level)
	case *ast.For:
		a.walkStmt(n.Init, parent, level)
		a.walkExpr(n.Cond, parent, level, false)
		a.walkExpr(n.Post, parent, level, false)
		a.walkStmt(n.Body, parent, level)
	case *ast.ForOf:
		// The loop variable is declared fresh each iteration; if the body
		// contains an await, later iterations reference it post-await, so
		// it hoists just like any other pre-await local (spec.md §4.3
		// edge case: "for (const x of ...) ... hoists if the loop
		// contains an await").
		a.walkExpr(n.Iter, parent, level, false)
		a.declare(n.Name)
		a.walkStmt(n.Body, parent, level)
		if a.seenAwait {
			a.usedAfterAwait[n.Name] = true
		}
	case *ast.ForIn:
		a.walkExpr(n.Obj, parent, level, false)
		a.declare(n.Name)
		a.walkStmt(n.Body, parent, level)
		if a.seenAwait {
			a.usedAfterAwait[n.Name] = true
		}
	case *ast.Switch:
		a.walkExpr(n.Disc, parent, level, false)
		for _, c := range n.Cases {
			a.walkExpr(c.Test, parent, level, false)
			for _, cs := range c.Stmts {
				a.walkStmt(cs, parent, level)
			}
		}
	case *ast.Try:
		a.inTry++
		beforeAwait := a.tryHasAwait
		a.tryHasAwait = false
		a.walkBlock(n.Body, parent, level)
		if n.Catch != nil {
			a.declare(n.Catch.Param)
			for _, cs := range n.Catch.Body.Stmts {
				a.walkStmt(cs, parent, level)
			}
			if a.seenAwait {
				a.usedAfterAwait[n.Catch.Param] = true
			}
		}
		if a.tryHasAwait {
			a.hasTryCatch = true
		}
		a.tryHasAwait = beforeAwait || a.tryHasAwait
		a.inTry--
		if n.Finally != nil {
			a.walkBlock(n.Finally, parent, level)
		}
	case *ast.Throw:
		a.walkExpr(n.Value, parent, level, false)
	case *ast.Return:
		a.walkExpr(n.Value, parent, level, false)
	case *ast.Break, *ast.Continue, *ast.FuncDecl, *ast.ClassDecl, *ast.EnumDecl,
		*ast.ImportDecl, *ast.ExportDecl:
		// No await-relevant content; declarations inside these are their
		// own scope and out of this function's hoisting concern.
	default:
		// see closure.analyzer's rationale: ignore anything unmodeled here,
		// the emitter's exhaustive switch is the authority on AST-malformed.
	}
}

func (a *analyzer) walkExpr(e ast.Expr, parent *ast.Arrow, level int, forceHoist bool) {
	switch n := e.(type) {
	case nil:
		return
	case *ast.Literal:
	case *ast.Identifier:
		a.reference(n.Name, forceHoist)
	case *ast.ThisExpr:
		a.usesThis = true
	case *ast.BinOp:
		a.walkExpr(n.Left, parent, level, forceHoist)
		a.walkExpr(n.Right, parent, level, forceHoist)
	case *ast.UnaryOp:
		a.walkExpr(n.Operand, parent, level, forceHoist)
	case *ast.IncDec:
		a.walkTarget(n.Target, parent, level, forceHoist)
	case *ast.Ternary:
		a.walkExpr(n.Cond, parent, level, forceHoist)
		a.walkExpr(n.Then, parent, level, forceHoist)
		a.walkExpr(n.Else, parent, level, forceHoist)
	case *ast.Grouping:
		a.walkExpr(n.Inner, parent, level, forceHoist)
	case *ast.Call:
		a.walkExpr(n.Callee, parent, level, forceHoist)
		for _, arg := range n.Args {
			a.walkExpr(arg, parent, level, forceHoist)
		}
	case *ast.New:
		a.walkExpr(n.Callee, parent, level, forceHoist)
		for _, arg := range n.Args {
			a.walkExpr(arg, parent, level, forceHoist)
		}
	case *ast.GetProp:
		a.walkExpr(n.Object, parent, level, forceHoist)
	case *ast.SetProp:
		a.walkExpr(n.Object, parent, level, forceHoist)
	case *ast.GetIndex:
		a.walkExpr(n.Object, parent, level, forceHoist)
		a.walkExpr(n.Index, parent, level, forceHoist)
	case *ast.SetIndex:
		a.walkExpr(n.Object, parent, level, forceHoist)
		a.walkExpr(n.Index, parent, level, forceHoist)
	case *ast.NonNullAssert:
		a.walkExpr(n.Inner, parent, level, forceHoist)
	case *ast.TypeAssertion:
		a.walkExpr(n.Inner, parent, level, forceHoist)
	case *ast.Satisfies:
		a.walkExpr(n.Inner, parent, level, forceHoist)
	case *ast.AssignOp:
		a.walkExpr(n.Value, parent, level, forceHoist)
		a.walkTarget(n.Target, parent, level, forceHoist)
	case *ast.Spread:
		a.walkExpr(n.Inner, parent, level, forceHoist)
	case *ast.TemplateLiteral:
		for _, e := range n.Exprs {
			a.walkExpr(e, parent, level, forceHoist)
		}
	case *ast.ArrayLit:
		for _, e := range n.Elements {
			a.walkExpr(e, parent, level, forceHoist)
		}
	case *ast.RecordLit:
		for _, f := range n.Fields {
			a.walkExpr(f.Value, parent, level, forceHoist)
		}
	case *ast.Await:
		a.walkExpr(n.Inner, parent, level, forceHoist)
		if !forceHoist {
			idx := a.awaitCount
			a.awaitCount = idx + 1
			a.seenAwait = true
			if a.inTry > 0 {
				a.tryHasAwait = true
			}
		}
	case *ast.Yield:
		a.walkExpr(n.Inner, parent, level, forceHoist)
	case *ast.DynamicImport:
		a.walkExpr(n.Path, parent, level, forceHoist)
	case *ast.ImportMeta:
	case *ast.Arrow:
		a.walkNestedArrow(n, parent, level)
	case *ast.ClassExpr:
	case *ast.BlockExpr:
		a.walkBlock(n.Block, parent, level)
	default:
	}
}

func (a *analyzer) walkTarget(target ast.Expr, parent *ast.Arrow, level int, forceHoist bool) {
	if id, ok := target.(*ast.Identifier); ok {
		a.assign(id.Name, forceHoist)
		return
	}
	a.walkExpr(target, parent, level, forceHoist)
}

// walkNestedArrow records every arrow (async or not) encountered so the
// driver can match this analysis against the Closure Analyzer's captures;
// only async arrows get their own recursive asyncflow.Analyze call (at
// driver level, once the arrow's own body is handed to this package
// again) — but any reference inside *any* nested arrow to a name from this
// function's own scope must still force-hoist it here, since both
// display-class fields and async arrow capture fields are populated at
// construction time from whatever the outer frame currently holds.
func (a *analyzer) walkNestedArrow(arrow *ast.Arrow, parent *ast.Arrow, level int) {
	info := ArrowInfo{Node: arrow, Parent: parent, NestingLevel: level + 1}
	if arrow.Async {
		a.arrows = append(a.arrows, info)
	}

	nextParent := parent
	nextLevel := level
	if arrow.Async {
		nextParent = arrow
		nextLevel = level + 1
	}

	bound := make(map[string]bool, len(arrow.Params))
	for _, p := range arrow.Params {
		bound[p.Name] = true
	}

	// seenAwait starts true so every name the arrow references lands in
	// sub.usedAfterAwait and is force-hoisted in this analysis below.
	sub := &analyzer{
		seenAwait:           true,
		declaredBeforeAwait: make(map[string]bool),
		usedAfterAwait:      make(map[string]bool),
		assignedParams:      make(map[string]bool),
		paramNames:          bound,
	}
	switch body := arrow.Body.(type) {
	case *ast.BlockExpr:
		for _, s := range body.Block.Stmts {
			sub.walkStmt(s, nextParent, nextLevel)
		}
	default:
		sub.walkExpr(arrow.Body, nextParent, nextLevel, false)
	}
	sub.arrows = append([]ArrowInfo{}, sub.arrows...)
	a.arrows = append(a.arrows, sub.arrows...)

	for name := range sub.usedAfterAwait {
		if bound[name] {
			continue
		}
		a.reference(name, true)
	}
	for name := range sub.assignedParams {
		if bound[name] {
			continue
		}
		a.assign(name, true)
	}
	if sub.usesThis {
		a.usesThis = true
	}
}
