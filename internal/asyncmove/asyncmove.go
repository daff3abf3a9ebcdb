// Package asyncmove is the Async MoveNext Emitter (component F, spec.md
// §2/§4.6): given a state machine's Descriptor (internal/statemachine) and
// the asyncflow.Analysis it was built from, it lowers the original
// function/method/arrow body into MoveNext's instruction stream.
//
// Rather than literally splitting the body into the "segments" spec.md
// §4.6's pseudocode visually suggests, Build lowers the whole body once
// via a single recursive-descent pass — reusing internal/emit.Emitter's
// existing statement and expression lowering almost unchanged — and lets
// each await site suspend inline wherever the ordinary control-flow walk
// encounters it, recording the IL offset immediately after its completed-
// check as the "resume label" for that await index. Once the whole body
// has been emitted, a small dispatch header prepended at the top patches
// state == k to jump straight to resume label k (state == -1 simply falls
// through to the body's start, so it needs no patch at all). This gets
// correct linear IL with ordinary forward/backward jumps without any
// general CPS or segment-splitting transform, layered entirely on
// il.Body's existing EmitJump/PatchJump/PatchJumpTo/Here API.
package asyncmove

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/asyncflow"
	"github.com/tsilgen/tsilc/internal/emit"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/statemachine"
)

// Options configures one call to Build.
type Options struct {
	Desc     *statemachine.Descriptor
	Analysis *asyncflow.Analysis
	Body     *ast.Block
}

// builder carries the per-MoveNext state Build needs while e.Stmt walks
// the body: which resume offset belongs to which await index, and which
// OpLeave jumps (one per suspend point, one per return) all converge on
// the single common exit at the end. The catch handler emits no OpLeave;
// it falls through into that exit.
type builder struct {
	e             *emit.Emitter
	d             *statemachine.Descriptor
	resumeOffsets []int
	exitLeaves    []int
	nextAwait     int
}

// Build lowers opts.Body into opts.Desc.MoveNext.Body. e must already be
// configured with the driver's Classes/Functions/Runtime/Types/Resolve/
// Field/ArrowRef collaborators (internal/driver constructs one Emitter per
// assembly and reuses it across every method, async or not); Build resets
// its method-scoped state via BeginAsyncMethod and restores e.AwaitHook/
// e.ReturnHook to nil before returning so a later non-async method emitted
// with the same Emitter doesn't inherit them.
func Build(e *emit.Emitter, opts Options) error {
	d := opts.Desc
	b := &builder{e: e, d: d, resumeOffsets: make([]int, opts.Analysis.AwaitCount)}

	hoisted := make(map[string]*il.FieldDef, len(d.ParamFields)+len(d.LocalFields))
	for name, f := range d.ParamFields {
		hoisted[name] = f
	}
	for name, f := range d.LocalFields {
		hoisted[name] = f
	}
	e.BeginAsyncMethod(hoisted, d.RelayFields, d.ThisField, d.SelfBoxedField)
	e.AwaitHook = b.awaitHook
	e.ReturnHook = b.returnHook
	defer func() {
		e.AwaitHook = nil
		e.ReturnHook = nil
	}()

	body := &il.Body{}
	const line = 0

	body.Emit(il.Simple(il.OpBeginTry, line))

	discSlot := e.AnonLocal()
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpLoadFieldOn, uint32(d.StateField.Token), line))
	body.Emit(il.WithA(il.OpStoreLocal, discSlot, line))

	dispatchJumps := make([]int, opts.Analysis.AwaitCount)
	for k := 0; k < opts.Analysis.AwaitCount; k++ {
		body.Emit(il.WithA(il.OpLoadLocal, discSlot, line))
		body.Emit(il.WithA(il.OpLoadConst, e.Constant(float64(k)), line))
		body.Emit(il.Simple(il.OpEq, line))
		dispatchJumps[k] = body.EmitJump(il.OpJumpIfTrue, line)
	}
	// state == -1 (first call) falls straight through into the body below;
	// any other unrecognized state is a driver bug, not a user error, so no
	// default case is emitted.

	if opts.Body != nil {
		for _, s := range opts.Body.Stmts {
			if err := e.Stmt(body, s); err != nil {
				return err
			}
		}
	}

	// Fell off the end of the body without an explicit return: complete
	// with an undefined result.
	body.Emit(il.Simple(il.OpLoadNull, line))
	b.emitSetResult(body, line)
	b.emitSetState(body, -2, line)

	body.Emit(il.Simple(il.OpEndTry, line))
	skipCatch := body.EmitJump(il.OpJump, line)

	excSlot := e.AnonLocal()
	body.Emit(il.WithA(il.OpStoreLocal, excSlot, line))
	b.emitSetState(body, -2, line)
	body.Emit(il.WithA(il.OpLoadLocal, excSlot, line))
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpLoadFieldOn, uint32(d.BuilderField.Token), line))
	body.Emit(il.Simple(il.OpSetException, line))

	body.PatchJump(skipCatch)

	commonExit := body.Here()
	for _, idx := range b.exitLeaves {
		body.PatchJumpTo(idx, commonExit)
	}
	body.Emit(il.Simple(il.OpReturnVoid, line))

	for k, idx := range dispatchJumps {
		body.PatchJumpTo(idx, b.resumeOffsets[k])
	}

	d.MoveNext.Body = body
	d.MoveNext.LocalCount = int(e.LocalCount())
	return nil
}

// emitSetState stores the constant value into the state field: it pushes
// value itself, then `this`, then StoreFieldOn, following the package-wide
// [value, this, StoreFieldOn] convention.
func (b *builder) emitSetState(body *il.Body, value float64, line int) {
	body.Emit(il.WithA(il.OpLoadConst, b.e.Constant(value), line))
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpStoreFieldOn, uint32(b.d.StateField.Token), line))
}

// emitSetResult calls builder.SetResult(value) with value already on the
// stack, per the package-wide [value, obj, Op] convention.
func (b *builder) emitSetResult(body *il.Body, line int) {
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpLoadFieldOn, uint32(b.d.BuilderField.Token), line))
	body.Emit(il.Simple(il.OpSetResult, line))
}

// awaitHook lowers one `await` expression inline: evaluate the awaited
// expression, capture its awaiter, and either fall straight through (if
// already complete) or suspend — recording the resume offset for this
// await's dispatch slot before emitting the resume-time reset back to
// state -1 (spec.md §4.6 steps: GetAwaiter, IsCompleted check,
// AwaitUnsafeOnCompleted, resume).
func (b *builder) awaitHook(body *il.Body, n *ast.Await, line int) error {
	k := b.nextAwait
	b.nextAwait++
	awaiter := b.d.AwaiterFields[k]

	if err := b.e.Expr(body, n.Inner); err != nil {
		return err
	}
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpAwaiterFromBoxed, uint32(awaiter.Token), line))

	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpLoadFieldOn, uint32(awaiter.Token), line))
	body.Emit(il.Simple(il.OpAwaiterCompleted, line))
	resumeJump := body.EmitJump(il.OpJumpIfTrue, line)

	b.emitSetState(body, float64(k), line)
	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.Simple(il.OpAwaitOnCompleted, line))
	leaveIdx := body.EmitJump(il.OpLeave, line)
	b.exitLeaves = append(b.exitLeaves, leaveIdx)

	body.PatchJump(resumeJump)
	b.resumeOffsets[k] = body.Here()
	b.emitSetState(body, -1, line)

	body.Emit(il.WithA(il.OpLoadArg, 0, line))
	body.Emit(il.WithA(il.OpLoadFieldOn, uint32(awaiter.Token), line))
	body.Emit(il.Simple(il.OpAwaiterGetResult, line))
	return nil
}

// returnHook routes every `return` inside MoveNext through the common-exit
// path instead of emitting `ret` directly (the whole body runs inside the
// BeginTry/EndTry region that feeds the catch/SetException handler, so a
// bare return would skip it).
func (b *builder) returnHook(body *il.Body, value ast.Expr, line int) error {
	if value != nil {
		if err := b.e.Expr(body, value); err != nil {
			return err
		}
	} else {
		body.Emit(il.Simple(il.OpLoadNull, line))
	}
	b.emitSetResult(body, line)
	b.emitSetState(body, -2, line)
	idx := body.EmitJump(il.OpLeave, line)
	b.exitLeaves = append(b.exitLeaves, idx)
	return nil
}
