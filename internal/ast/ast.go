// Package ast defines the typed-AST data model consumed by the code
// generator. Per spec this AST is produced by an upstream parser and type
// checker that are out of scope here: this package only declares the node
// variants the emitter is contractually given, each carrying a source
// Pos used solely for diagnostics.
//
// Identity (not structural) equality matters for Arrow nodes: the driver's
// registries key on node identity via sid.ID (see internal/sid), assigned
// the first time a registry needs to remember something about a specific
// arrow.
package ast

import "fmt"

// Pos is a source position, carried on every node for diagnostics only.
type Pos struct {
	Line   int
	Column int
	File   string
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Node is the base for every Expr and Stmt variant.
type Node interface {
	Position() Pos
	String() string
}

// Expr is any node that produces a value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is any node that performs an action.
type Stmt interface {
	Node
	stmtNode()
}

// baseNode is embedded by every concrete node to supply Position().
type baseNode struct {
	Pos Pos
}

func (b baseNode) Position() Pos { return b.Pos }

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// LitKind tags the kind of value a Literal carries.
type LitKind int

const (
	LitNumber LitKind = iota
	LitString
	LitBool
	LitNull
	LitUndefined
	LitRegex
)

// Literal is a literal value: number, string, boolean, null, undefined, regex.
type Literal struct {
	baseNode
	Kind  LitKind
	Value interface{} // float64, string, bool, nil, or RegexLiteral
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return fmt.Sprintf("%v", l.Value) }

// RegexLiteral is the Value payload of a Literal with Kind == LitRegex.
type RegexLiteral struct {
	Pattern string
	Flags   string
}

// Identifier is a bare name reference: a parameter, local, capture, class,
// function, enum, or (if unresolved) a runtime global.
type Identifier struct {
	baseNode
	Name string
}

func (*Identifier) exprNode()        {}
func (i *Identifier) String() string { return i.Name }

// ThisExpr is the `this` keyword, treated as an identifier by the closure
// analyzer (arrows capture it, never rebind it).
type ThisExpr struct{ baseNode }

func (*ThisExpr) exprNode()        {}
func (*ThisExpr) String() string   { return "this" }

// BinOp is a binary, logical, or nullish-coalescing expression.
type BinOp struct {
	baseNode
	Op          string // "+", "&&", "??", "instanceof", etc.
	Left, Right Expr
}

func (*BinOp) exprNode()        {}
func (b *BinOp) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }

// UnaryOp is a prefix unary operator: "!", "-", "+", "typeof", "void", "~".
type UnaryOp struct {
	baseNode
	Op      string
	Operand Expr
}

func (*UnaryOp) exprNode()        {}
func (u *UnaryOp) String() string { return fmt.Sprintf("%s%s", u.Op, u.Operand) }

// IncDec is a prefix or postfix increment/decrement.
type IncDec struct {
	baseNode
	Op      string // "++" or "--"
	Target  Expr
	Postfix bool
}

func (*IncDec) exprNode() {}
func (i *IncDec) String() string {
	if i.Postfix {
		return fmt.Sprintf("%s%s", i.Target, i.Op)
	}
	return fmt.Sprintf("%s%s", i.Op, i.Target)
}

// Ternary is `cond ? then : else`.
type Ternary struct {
	baseNode
	Cond, Then, Else Expr
}

func (*Ternary) exprNode() {}
func (t *Ternary) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", t.Cond, t.Then, t.Else)
}

// Grouping is a parenthesized expression, kept distinct so the emitter can
// preserve source fidelity in diagnostics; it lowers transparently.
type Grouping struct {
	baseNode
	Inner Expr
}

func (*Grouping) exprNode()        {}
func (g *Grouping) String() string { return fmt.Sprintf("(%s)", g.Inner) }

// Call is a function/method invocation, optionally optional-chained.
type Call struct {
	baseNode
	Callee   Expr
	Args     []Expr
	Spread   []bool // Spread[i] true if Args[i] is preceded by "..."
	Optional bool   // true for `?.()`
}

func (*Call) exprNode()        {}
func (c *Call) String() string { return fmt.Sprintf("%s(%v)", c.Callee, c.Args) }

// New is a `new Class(args)` expression.
type New struct {
	baseNode
	Callee Expr
	Args   []Expr
}

func (*New) exprNode()        {}
func (n *New) String() string { return fmt.Sprintf("new %s(%v)", n.Callee, n.Args) }

// GetProp is dotted property access, `obj.name`, optionally optional-chained.
type GetProp struct {
	baseNode
	Object   Expr
	Name     string
	Optional bool
}

func (*GetProp) exprNode()        {}
func (g *GetProp) String() string { return fmt.Sprintf("%s.%s", g.Object, g.Name) }

// SetProp is a dotted-property assignment target used by Assign.
type SetProp struct {
	baseNode
	Object Expr
	Name   string
}

func (*SetProp) exprNode()        {}
func (s *SetProp) String() string { return fmt.Sprintf("%s.%s", s.Object, s.Name) }

// GetIndex is indexed access, `obj[key]`.
type GetIndex struct {
	baseNode
	Object, Index Expr
	Optional      bool
}

func (*GetIndex) exprNode()        {}
func (g *GetIndex) String() string { return fmt.Sprintf("%s[%s]", g.Object, g.Index) }

// SetIndex is an indexed assignment target used by Assign.
type SetIndex struct {
	baseNode
	Object, Index Expr
}

func (*SetIndex) exprNode()        {}
func (s *SetIndex) String() string { return fmt.Sprintf("%s[%s]", s.Object, s.Index) }

// NonNullAssert is the postfix `!` non-null assertion; erased at lowering.
type NonNullAssert struct {
	baseNode
	Inner Expr
}

func (*NonNullAssert) exprNode()        {}
func (n *NonNullAssert) String() string { return fmt.Sprintf("%s!", n.Inner) }

// TypeAssertion is `expr as Type`; erased at lowering except where it drives
// a typed-array fast path via the type map.
type TypeAssertion struct {
	baseNode
	Inner    Expr
	TypeName string
}

func (*TypeAssertion) exprNode() {}
func (t *TypeAssertion) String() string {
	return fmt.Sprintf("(%s as %s)", t.Inner, t.TypeName)
}

// Satisfies is `expr satisfies Type`; purely a type-checker hint, erased.
type Satisfies struct {
	baseNode
	Inner    Expr
	TypeName string
}

func (*Satisfies) exprNode() {}
func (s *Satisfies) String() string {
	return fmt.Sprintf("(%s satisfies %s)", s.Inner, s.TypeName)
}

// AssignOp is a simple or compound assignment: "=", "+=", "&&=", "??=", etc.
type AssignOp struct {
	baseNode
	Op     string
	Target Expr // Identifier, SetProp, or SetIndex
	Value  Expr
}

func (*AssignOp) exprNode() {}
func (a *AssignOp) String() string {
	return fmt.Sprintf("%s %s %s", a.Target, a.Op, a.Value)
}

// Spread is a `...expr` used inside call arguments or array/record literals.
type Spread struct {
	baseNode
	Inner Expr
}

func (*Spread) exprNode()        {}
func (s *Spread) String() string { return fmt.Sprintf("...%s", s.Inner) }

// TemplateLiteral is a (possibly tagged) template string.
type TemplateLiteral struct {
	baseNode
	Quasis []string // Quasis[i] is the raw text before Exprs[i]; len = len(Exprs)+1
	Exprs  []Expr
	Tag    Expr // non-nil for tagged templates
}

func (*TemplateLiteral) exprNode()        {}
func (t *TemplateLiteral) String() string { return "`template`" }

// ArrayLit is an array literal; elements may include Spread.
type ArrayLit struct {
	baseNode
	Elements []Expr
}

func (*ArrayLit) exprNode()        {}
func (a *ArrayLit) String() string { return fmt.Sprintf("[%v]", a.Elements) }

// RecordField is one `key: value` entry of a RecordLit.
type RecordField struct {
	Key   string
	Value Expr
}

// RecordLit is an object/record literal; fields may be computed via Spread
// entries (Key == "").
type RecordLit struct {
	baseNode
	Fields []RecordField
}

func (*RecordLit) exprNode()        {}
func (r *RecordLit) String() string { return fmt.Sprintf("{%v}", r.Fields) }

// Param is one formal parameter: a name, optional default, and flags.
type Param struct {
	Name      string
	Default   Expr // nil if no default
	Rest      bool // true if this is `...name`
	TypeName  string
}

// Arrow is an arrow function. Identity equality matters: the same *Arrow
// pointer must be used as the key into every arrow-keyed registry.
type Arrow struct {
	baseNode
	Params      []Param
	Body        Expr // Block (as an Expr via BlockExpr) or a single expression
	Async       bool
	Generator   bool
	HasOwnThis  bool // false for arrows (they never have their own `this`)
}

func (*Arrow) exprNode()        {}
func (a *Arrow) String() string { return fmt.Sprintf("(%v) => ...", a.Params) }

// Await is an await expression; numbered in source order by the async
// analyzer, not by this node itself.
type Await struct {
	baseNode
	Inner Expr
}

func (*Await) exprNode()        {}
func (a *Await) String() string { return fmt.Sprintf("await %s", a.Inner) }

// Yield is a yield/yield* expression (generators; out of core scope beyond
// being a recognized-but-unsupported variant, see driver error handling).
type Yield struct {
	baseNode
	Inner    Expr
	Delegate bool
}

func (*Yield) exprNode()        {}
func (y *Yield) String() string { return fmt.Sprintf("yield %s", y.Inner) }

// DynamicImport is `import(path)`.
type DynamicImport struct {
	baseNode
	Path Expr
}

func (*DynamicImport) exprNode()        {}
func (d *DynamicImport) String() string { return fmt.Sprintf("import(%s)", d.Path) }

// ImportMeta is `import.meta`.
type ImportMeta struct{ baseNode }

func (*ImportMeta) exprNode()        {}
func (*ImportMeta) String() string   { return "import.meta" }

// ClassExpr is a class expression (as opposed to a ClassDecl statement).
type ClassExpr struct {
	baseNode
	Decl *ClassDecl
}

func (*ClassExpr) exprNode()        {}
func (c *ClassExpr) String() string { return fmt.Sprintf("class %s", c.Decl.Name) }

// BlockExpr wraps a Block so it can appear wherever an Expr is expected
// (concise-body arrows use a bare Expr body; block-body arrows use this).
type BlockExpr struct {
	baseNode
	Block *Block
}

func (*BlockExpr) exprNode()        {}
func (b *BlockExpr) String() string { return b.Block.String() }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Block is `{ stmts... }`.
type Block struct {
	baseNode
	Stmts []Stmt
}

func (*Block) stmtNode()        {}
func (b *Block) String() string { return fmt.Sprintf("{ %d stmts }", len(b.Stmts)) }

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	baseNode
	Expr Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return e.Expr.String() }

// VarDecl is a `var`/`let`/`const` declaration, possibly multi-name via
// destructuring (Names has >1 entry).
type VarDecl struct {
	baseNode
	Kind  string // "var", "let", "const"
	Names []string
	Init  Expr // may be nil
}

func (*VarDecl) stmtNode()        {}
func (v *VarDecl) String() string { return fmt.Sprintf("%s %v = %s", v.Kind, v.Names, v.Init) }

// If is an if/else statement.
type If struct {
	baseNode
	Cond       Expr
	Then, Else Stmt // Else may be nil
}

func (*If) stmtNode()        {}
func (i *If) String() string { return fmt.Sprintf("if (%s) ...", i.Cond) }

// While is a while loop.
type While struct {
	baseNode
	Cond Expr
	Body Stmt
	Label string
}

func (*While) stmtNode()        {}
func (w *While) String() string { return fmt.Sprintf("while (%s) ...", w.Cond) }

// For is a classic C-style for loop; any clause may be nil.
type For struct {
	baseNode
	Init  Stmt
	Cond  Expr
	Post  Expr
	Body  Stmt
	Label string
}

func (*For) stmtNode()        {}
func (f *For) String() string { return "for (...) ..." }

// ForOf is `for (const x of expr) body`; the loop variable is Name and is
// declared fresh in the loop scope (relevant for await-hoisting, §4.3).
type ForOf struct {
	baseNode
	Kind  string // "const", "let", "var"
	Name  string
	Iter  Expr
	Body  Stmt
	Label string
}

func (*ForOf) stmtNode()        {}
func (f *ForOf) String() string { return fmt.Sprintf("for (%s %s of %s) ...", f.Kind, f.Name, f.Iter) }

// ForIn is `for (const k in expr) body`, iterating the property bag's keys.
type ForIn struct {
	baseNode
	Kind  string
	Name  string
	Obj   Expr
	Body  Stmt
	Label string
}

func (*ForIn) stmtNode()        {}
func (f *ForIn) String() string { return fmt.Sprintf("for (%s %s in %s) ...", f.Kind, f.Name, f.Obj) }

// SwitchCase is one `case expr:`/`default:` arm of a Switch.
type SwitchCase struct {
	Test  Expr // nil for default
	Stmts []Stmt
}

// Switch lowers to a strict-equality cascade (§4.5).
type Switch struct {
	baseNode
	Disc  Expr
	Cases []SwitchCase
}

func (*Switch) stmtNode()        {}
func (s *Switch) String() string { return fmt.Sprintf("switch (%s) { %d cases }", s.Disc, len(s.Cases)) }

// CatchClause is the `catch (e) { ... }` part of a Try.
type CatchClause struct {
	Param string // may be ""
	Body  *Block
}

// Try is try/catch/finally; any of Catch/Finally may be nil/absent.
type Try struct {
	baseNode
	Body    *Block
	Catch   *CatchClause
	Finally *Block
}

func (*Try) stmtNode()        {}
func (t *Try) String() string { return "try { ... }" }

// Throw is `throw expr;`.
type Throw struct {
	baseNode
	Value Expr
}

func (*Throw) stmtNode()        {}
func (t *Throw) String() string { return fmt.Sprintf("throw %s", t.Value) }

// Return is `return expr;` (expr may be nil).
type Return struct {
	baseNode
	Value Expr
}

func (*Return) stmtNode()        {}
func (r *Return) String() string { return fmt.Sprintf("return %s", r.Value) }

// Break is `break;` or `break label;`.
type Break struct {
	baseNode
	Label string
}

func (*Break) stmtNode()        {}
func (b *Break) String() string { return "break" }

// Continue is `continue;` or `continue label;`.
type Continue struct {
	baseNode
	Label string
}

func (*Continue) stmtNode()        {}
func (c *Continue) String() string { return "continue" }

// FuncDecl is a top-level `function name(...) { ... }` declaration. A
// function with a nil Body is an overload signature (§7: tolerated only if
// another FuncDecl with the same Name has a body).
type FuncDecl struct {
	baseNode
	Name      string
	Params    []Param
	Body      *Block // nil for overload-signature-only declarations
	Async     bool
	Generator bool
	Exported  bool
	Default   bool // `export default function ...`
}

func (*FuncDecl) stmtNode()        {}
func (f *FuncDecl) String() string { return fmt.Sprintf("function %s(...)", f.Name) }

// Field is one field of a ClassDecl.
type Field struct {
	Name    string
	Init    Expr // nil if uninitialized
	Static  bool
}

// Method is one method/getter/setter/constructor of a ClassDecl.
type MethodKind int

const (
	MethodNormal MethodKind = iota
	MethodGetter
	MethodSetter
	MethodConstructor
)

type Method struct {
	Name      string
	Params    []Param
	Body      *Block
	Kind      MethodKind
	Static    bool
	Async     bool
	Override  bool
}

// ClassDecl is a class declaration with optional single inheritance.
type ClassDecl struct {
	baseNode
	Name       string
	Super      string // "" if none
	Fields     []Field
	Methods    []Method
	TypeParams []string // generic parameters, resolved via the Type Mapper
	Exported   bool
	Default    bool
}

func (*ClassDecl) stmtNode()        {}
func (c *ClassDecl) String() string { return fmt.Sprintf("class %s", c.Name) }

// EnumMember is one `Name = initExpr` member of an EnumDecl. For a const
// enum, InitExpr must be const-evaluable (§7, ENM-class errors).
type EnumMember struct {
	Name     string
	InitExpr Expr // nil -> auto-increment from previous numeric member
}

// EnumDecl is an `enum`/`const enum` declaration.
type EnumDecl struct {
	baseNode
	Name     string
	Const    bool
	Members  []EnumMember
	Exported bool
}

func (*EnumDecl) stmtNode()        {}
func (e *EnumDecl) String() string { return fmt.Sprintf("enum %s", e.Name) }

// ImportSpec is one imported binding: `import { Name as Local } from Path`.
type ImportSpec struct {
	Name  string
	Local string
}

// ImportDecl is an ES-style import statement.
type ImportDecl struct {
	baseNode
	Path    string
	Specs   []ImportSpec
	Default string // local name bound to the default export, "" if none
}

func (*ImportDecl) stmtNode()        {}
func (i *ImportDecl) String() string { return fmt.Sprintf("import ... from %q", i.Path) }

// ExportSpec is one re-exported binding in `export { a, b as c } from "./x"`
// or a local `export { a, b as c }` (Path == "" for the latter).
type ExportSpec struct {
	Name  string
	As    string
}

// ExportDecl covers `export { ... } [from "path"]` and `export * from "path"`.
type ExportDecl struct {
	baseNode
	Path  string // "" for a local named re-export
	Specs []ExportSpec
	Star  bool // `export * from "path"`
}

func (*ExportDecl) stmtNode()        {}
func (e *ExportDecl) String() string { return "export { ... }" }

// File is one source module.
type File struct {
	Path    string
	Imports []*ImportDecl
	Exports []*ExportDecl
	Stmts   []Stmt
}
