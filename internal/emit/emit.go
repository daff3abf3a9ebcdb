// Package emit is the IL Emitter (component E, spec.md §2/§4.5): the
// largest component, responsible for lowering every expression and
// statement variant of the typed AST into il.Instruction streams, applying
// the box/unbox discipline at every type-erasing boundary, and running the
// deferred-return protocol inside try/catch/finally.
//
// The switch-per-variant shape with an explicit default raising an
// AST-malformed error mirrors the teacher's compileExpression/
// compileStatement dispatch in internal/bytecode/compiler.go — an
// exhaustive match with a panic-on-unknown-variant fallback, so adding an
// AST variant upstream is caught here rather than silently mis-lowered.
package emit

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/runtimeiface"
	"github.com/tsilgen/tsilc/internal/statemachine"
	"github.com/tsilgen/tsilc/internal/typeref"
)

// MethodResolver looks up the virtual-method token for a method on a known
// class, enabling direct CallVirt dispatch (spec.md §4.5's "virtual
// dispatch inside async state machines" requirement, which depends on
// phase 6.3 having pre-defined every method stub).
type MethodResolver func(className, methodName string) (il.MethodToken, bool)

// AwaitHook lowers one `await` expression, leaving its resolved value on the
// stack. Expr delegates here instead of handling ast.Await itself because
// an await site only makes sense inside a state machine's MoveNext body
// (internal/asyncmove is the only caller that installs one); outside that
// context an await is AST-malformed, matching the rest of Expr's exhaustive
// switch discipline.
type AwaitHook func(body *il.Body, n *ast.Await, line int) error

// ReturnHook lowers one `return` statement when set, overriding Stmt's
// default direct-or-deferred OpReturn emission. internal/asyncmove installs
// one so a `return` inside MoveNext always routes through the state
// machine's common-return path (state = -2, builder.SetResult, leave) per
// spec.md §4.6, instead of the deferred-return protocol meant for ordinary
// try/finally bodies.
type ReturnHook func(body *il.Body, value ast.Expr, line int) error

// FieldResolver looks up a known class field, enabling direct
// LoadFieldOn/StoreFieldOn instead of the property-bag fallback.
type FieldResolver func(className, fieldName string) (il.FieldToken, bool)

// ArrowCapture names one captured value a display-class constructor takes,
// in the declared parameter order, paired with the instance field it ends
// up stored in (the same field BindCapturedCell later rebinds the
// enclosing scope's own reference to).
type ArrowCapture struct {
	Name  string
	Field *il.FieldDef
}

// ArrowRef is what ArrowResolver returns for one arrow literal: either a
// captures-bearing display class (IsDisplay true, in which case Ctor and
// Captures describe how to build one — exactly like emitNew builds any
// other object) or a bare static delegate method (IsDisplay false, Token
// names it directly).
type ArrowRef struct {
	Token     uint32 // display-class type token, or the bare delegate method token
	Ctor      uint32 // display-class constructor token; only meaningful if IsDisplay
	Captures  []ArrowCapture
	IsDisplay bool
}

// ArrowResolver looks up the synthesized display-class (or bare delegate
// method) token standing in for one arrow literal, per component B's
// output (internal/closure) and the driver's display_class/arrow_method
// registries (SPEC_FULL.md §3).
type ArrowResolver func(arrow *ast.Arrow) ArrowRef

// EnumResolver looks up a const-enum member's compile-time value, enabling
// `EnumName.Member` to fold straight to a literal (spec.md §8 testable
// property 8: "no enum type is emitted at runtime") instead of the
// property-bag fallback a plain GetProp would otherwise take.
type EnumResolver func(enumName, memberName string) (value interface{}, ok bool)

// symbolKind classifies how an identifier resolves inside the method
// currently being emitted.
type symbolKind int

const (
	symUnresolved symbolKind = iota
	symParam
	symLocal
	symCaptured // a display-class field, reached via arg 0 (`this`)
	symHoisted  // a state-machine field, reached via arg 0 (`this`)
	symClass
	symFunction
)

type symbol struct {
	kind  symbolKind
	slot  uint32       // arg or local slot, for symParam/symLocal
	field *il.FieldDef // for symCaptured/symHoisted
	typ   *il.TypeDef  // for symClass
	fn    *il.MethodDef

	// host controls how a symCaptured/symHoisted field is reached, beyond
	// the default of loading it straight off arg 0 (`this`):
	//   - hostSlot, when non-zero-valued (hasHostSlot true), names a local
	//     slot holding the shared display-class instance itself — for an
	//     enclosing scope's own references to a name some arrow captures,
	//     which is not an instance method of that display class and so has
	//     no `this` of its own to load it through (see BindCapturedCell).
	//   - hostField, when non-nil, is loaded off arg 0 first to reach a
	//     further object (another state machine through its OuterField)
	//     before field is loaded/stored on that (see BeginAsyncMethod's relay
	//     parameter and statemachine.RelayField).
	// At most one of these is set; neither set means "field lives directly
	// on arg 0", today's original behavior.
	hasHostSlot bool
	hostSlot    uint32
	hostField   *il.FieldDef
}

// Scope is a chain of block scopes inside the method currently being
// emitted, tracking local-slot assignment the way the teacher's Compiler
// tracks `locals []local` with a scope depth.
type Scope struct {
	parent *Scope
	names  map[string]symbol
}

func newScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]symbol)}
}

func (s *Scope) lookup(name string) (symbol, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.names[name]; ok {
			return sym, true
		}
	}
	return symbol{}, false
}

// Emitter lowers AST to il.Instruction streams for one method body at a
// time. A fresh Emitter (or at least a fresh method-scoped state via
// BeginMethod) is used per method, mirroring the teacher's
// newChildCompiler-per-function pattern.
type Emitter struct {
	Asm       *il.Assembly
	Classes   map[string]*il.TypeDef
	Functions map[string]*il.MethodDef
	Runtime   runtimeiface.Handle
	Types     *typeref.Map
	TypeMap   ast.TypeMap
	Resolve   MethodResolver
	Field     FieldResolver
	ArrowRef  ArrowResolver
	EnumRef   EnumResolver

	scope     *Scope
	nextLocal uint32
	hasThis   bool
	className string // "" if not lowering an instance method
	// thisField, when non-nil, overrides resolve("this"): MoveNext bodies
	// run as a method of the state-machine type, not of the user's class,
	// so the real `this` lives in a captured field rather than arg 0.
	thisField *il.FieldDef

	// Deferred-return protocol state (spec.md §4.5), scoped to one method.
	// A `return` lexically inside a try block cannot jump straight out
	// (CLR-style protected regions only allow `leave`), so it stores its
	// value/flag and leaves; the enclosing try statement re-raises the
	// deferred return once its own catch/finally has run.
	tryDepth         int
	hasDeferredSlots bool
	shouldReturnSlot uint32
	returnValueSlot  uint32
	// tryLeaveStack[i] collects the OpLeave jump indices emitted by
	// `return` statements lexically inside the i-th enclosing try, so
	// emitTry can patch them all to the point right after its own
	// catch/finally, where the deferred-return check lives.
	tryLeaveStack [][]int

	loopStack []*loopContext

	// AwaitHook and ReturnHook let internal/asyncmove install async-aware
	// lowering for `await` expressions and `return` statements without
	// internal/emit knowing anything about async state machines itself.
	AwaitHook  AwaitHook
	ReturnHook ReturnHook

	// SelfBoxed, when set by BeginAsyncMethod, is the current MoveNext
	// body's own self_boxed field (spec.md §4.6) — non-nil exactly when
	// this machine contains nested async arrows. emitArrowReference reads
	// it to wire a nested async arrow's outer-machine pointer (§4.4) at the
	// point the arrow literal is evaluated.
	SelfBoxed *il.FieldDef

	// ArrowCaptureHook, when set, runs immediately after emitArrowReference
	// constructs a display-class instance for a captures-bearing arrow,
	// with that instance left on top of the stack. It may push further
	// values and store them into additional capture fields — internal/
	// driver uses this to wire a nested async arrow's outer-machine
	// reference (spec.md §4.4) — as long as it leaves the same single
	// instance on top when it returns.
	ArrowCaptureHook func(body *il.Body, arrow *ast.Arrow, line int)
}

// loopContext tracks one enclosing loop's (or switch's) break/continue
// targets, for label resolution. isSwitch is true for a switch statement's
// frame: it accepts `break` but never `continue` (a continue inside a
// switch targets the nearest enclosing real loop, skipping switch frames).
type loopContext struct {
	label         string
	isSwitch      bool
	continueJumps []int
	breakJumps    []int
}

// New creates an Emitter sharing the driver's registries and the assembly
// its constant pool and type/method tokens are drawn from.
func New(asm *il.Assembly, classes map[string]*il.TypeDef, functions map[string]*il.MethodDef, rt runtimeiface.Handle, types *typeref.Map, tm ast.TypeMap) *Emitter {
	if tm == nil {
		tm = ast.EmptyTypeMap{}
	}
	return &Emitter{Asm: asm, Classes: classes, Functions: functions, Runtime: rt, Types: types, TypeMap: tm}
}

// constant interns v into the assembly's shared constant pool and returns
// its index, for OpLoadConst operands.
func (e *Emitter) constant(v interface{}) uint32 {
	return e.Asm.AddConstant(v)
}

// Constant is the exported form of constant, for collaborators (internal/
// asyncmove) that emit into a method body this Emitter owns but outside
// the Expr/Stmt dispatch itself.
func (e *Emitter) Constant(v interface{}) uint32 { return e.constant(v) }

// AnonLocal is the exported form of anonLocal, for the same reason.
func (e *Emitter) AnonLocal() uint32 { return e.anonLocal() }

// LocalCount reports how many local slots have been allocated in the
// method currently being emitted, for setting il.MethodDef.LocalCount once
// emission finishes.
func (e *Emitter) LocalCount() uint32 { return e.nextLocal }

// BeginMethod resets per-method state: a fresh top scope, hoisted
// parameter slots 0..n-1 (plus arg 0 = `this` for instance methods), and a
// clear deferred-return flag.
func (e *Emitter) BeginMethod(params []ast.Param, isInstanceMethod bool, className string) {
	e.scope = newScope(nil)
	e.hasThis = isInstanceMethod
	e.className = className
	e.thisField = nil
	e.SelfBoxed = nil
	e.tryDepth = 0
	e.hasDeferredSlots = false
	e.loopStack = nil
	e.tryLeaveStack = nil

	argBase := uint32(0)
	if isInstanceMethod {
		argBase = 1 // arg 0 is `this`
	}
	for i, p := range params {
		e.scope.names[p.Name] = symbol{kind: symParam, slot: argBase + uint32(i)}
	}
	e.nextLocal = 0
}

// BeginAsyncMethod resets per-method state for a MoveNext body (spec.md
// §4.6): arg 0 is the state machine itself, so every hoisted
// parameter/local is pre-bound in the root scope as a symHoisted field
// reached through it, `this` resolves through thisField when the source
// was an instance method, and anything declared mid-body that was not
// hoisted still falls back to a normal IL local via declareLocal/
// bindDeclared. relay binds names this machine does not own itself but
// shares live with its enclosing machine through OuterField (§4.4);
// selfBoxed, when non-nil, is this machine's own self_boxed field, read by
// emitArrowReference when a nested async arrow captured inside this body
// needs to wire its own outer pointer back to this machine.
func (e *Emitter) BeginAsyncMethod(hoisted map[string]*il.FieldDef, relay map[string]statemachine.RelayField, thisField, selfBoxed *il.FieldDef) {
	e.scope = newScope(nil)
	e.hasThis = false
	e.className = ""
	e.thisField = thisField
	e.SelfBoxed = selfBoxed
	e.tryDepth = 0
	e.hasDeferredSlots = false
	e.loopStack = nil
	e.tryLeaveStack = nil
	e.nextLocal = 0
	for name, f := range hoisted {
		e.scope.names[name] = symbol{kind: symHoisted, field: f}
	}
	for name, rf := range relay {
		e.scope.names[name] = symbol{kind: symHoisted, field: rf.Field, hostField: rf.Host}
	}
}

// BindCaptured registers name as resolving through a display-class capture
// field, reached via arg 0 (`this`) the same way a state-machine hoisted
// field is — for internal/driver's display-class Invoke bodies, which are
// ordinary instance methods (not state machines) that still need their
// captures to resolve through fields rather than IL locals.
func (e *Emitter) BindCaptured(name string, f *il.FieldDef) {
	e.scope.names[name] = symbol{kind: symCaptured, field: f}
}

// BindCapturedCell registers name as resolving through field f on the
// display-class instance held in local slot cellSlot — for an enclosing
// function/method/constructor body (not itself an instance method of the
// display class) whose own subsequent reads/writes of a captured name must
// alias the same heap cell the arrow's Invoke body reads and writes
// through arg 0, rather than a separate IL local (spec.md §8 testable
// property 1, "closure soundness").
func (e *Emitter) BindCapturedCell(name string, f *il.FieldDef, cellSlot uint32) {
	e.scope.names[name] = symbol{kind: symCaptured, field: f, hasHostSlot: true, hostSlot: cellSlot}
}

func (e *Emitter) pushScope() { e.scope = newScope(e.scope) }
func (e *Emitter) popScope()  { e.scope = e.scope.parent }

func (e *Emitter) declareLocal(name string) uint32 {
	slot := e.nextLocal
	e.nextLocal++
	e.scope.names[name] = symbol{kind: symLocal, slot: slot}
	return slot
}

// anonLocal allocates a fresh local slot with no name binding, for
// compiler-introduced temporaries (switch discriminants, deferred-return
// slots, loop iteration state).
func (e *Emitter) anonLocal() uint32 {
	slot := e.nextLocal
	e.nextLocal++
	return slot
}

// ensureDeferredSlots lazily allocates the should_return/return_value
// locals the deferred-return protocol needs (spec.md §4.5), the first time
// a method enters a try statement; a method with no try never pays for
// these slots.
func (e *Emitter) ensureDeferredSlots() {
	if e.hasDeferredSlots {
		return
	}
	e.shouldReturnSlot = e.anonLocal()
	e.returnValueSlot = e.anonLocal()
	e.hasDeferredSlots = true
}

func patchAll(body *il.Body, jumps []int, target int) {
	for _, idx := range jumps {
		body.PatchJumpTo(idx, target)
	}
}

func (e *Emitter) pushLoop(label string) {
	e.loopStack = append(e.loopStack, &loopContext{label: label})
}

func (e *Emitter) pushSwitch(label string) {
	e.loopStack = append(e.loopStack, &loopContext{label: label, isSwitch: true})
}

func (e *Emitter) popLoop() *loopContext {
	n := len(e.loopStack)
	lc := e.loopStack[n-1]
	e.loopStack = e.loopStack[:n-1]
	return lc
}

// findLoop resolves a break/continue target: unlabeled break/continue
// targets the innermost frame (allowSwitch lets break land on a switch;
// continue never does, since a switch has no loop-back point of its own).
func (e *Emitter) findLoop(label string, allowSwitch bool) *loopContext {
	for i := len(e.loopStack) - 1; i >= 0; i-- {
		lc := e.loopStack[i]
		if !allowSwitch && lc.isSwitch {
			continue
		}
		if label == "" || lc.label == label {
			return lc
		}
	}
	return nil
}

// bindDeclared stores the value already on top of the stack into name,
// routing through an already-hoisted field (rehydration in an async body)
// when one exists in scope, or declaring a fresh IL local otherwise. Used
// by both VarDecl and for-of/for-in loop-variable binding.
func (e *Emitter) bindDeclared(body *il.Body, name string, line int) error {
	if name == "" {
		body.Emit(il.Simple(il.OpPop, line))
		return nil
	}
	if sym, ok := e.scope.lookup(name); ok && sym.kind == symHoisted {
		body.Emit(il.WithA(il.OpLoadArg, 0, line))
		body.Emit(il.WithA(il.OpStoreFieldOn, uint32(sym.field.Token), line))
		return nil
	}
	slot := e.declareLocal(name)
	body.Emit(il.WithA(il.OpStoreLocal, slot, line))
	return nil
}

func (e *Emitter) resolve(name string) symbol {
	if name == "this" {
		if e.thisField != nil {
			return symbol{kind: symHoisted, field: e.thisField}
		}
		return symbol{kind: symParam, slot: 0}
	}
	if sym, ok := e.scope.lookup(name); ok {
		return sym
	}
	if t, ok := e.Classes[name]; ok {
		return symbol{kind: symClass, typ: t}
	}
	if fn, ok := e.Functions[name]; ok {
		return symbol{kind: symFunction, fn: fn}
	}
	return symbol{kind: symUnresolved}
}

// malformed raises the AST-malformed error for an unrecognized expression
// or statement variant (spec.md §7).
func malformed(code string, pos ast.Pos, kind string, variant interface{}) error {
	return errors.New(code, pos, "unrecognized %s variant: %T", kind, variant)
}
