// Package statemachine is the Async State Machine Builder (component D,
// spec.md §2/§4.4): given an asyncflow.Analysis, it defines the
// value-type machine for one async function, method, or async arrow — its
// field layout, MoveNext/SetStateMachine stubs, and (for arrows) the
// outer-machine back-pointer — before any body is emitted, matching the
// phased-stub discipline spec.md §4.1/§9 requires.
//
// The "stub before body" split mirrors the teacher's own compiler: a
// MethodDef is defined and handed back as a token the rest of the pipeline
// can call, with Body filled in later by internal/asyncmove (see
// internal/il/metadata.go's doc comment on MethodDef.Body).
package statemachine

import (
	"fmt"

	"github.com/tsilgen/tsilc/internal/asyncflow"
	"github.com/tsilgen/tsilc/internal/il"
)

// Descriptor is the defined-but-not-yet-bodied state machine for one async
// function, method, or arrow.
type Descriptor struct {
	Type *il.TypeDef

	StateField   *il.FieldDef
	BuilderField *il.FieldDef
	ThisField    *il.FieldDef // non-nil only if the source is an instance method that uses `this`

	ParamFields map[string]*il.FieldDef
	LocalFields map[string]*il.FieldDef

	// AwaiterFields[k] is the awaiter field for await point k.
	AwaiterFields []*il.FieldDef

	OuterField     *il.FieldDef // non-nil for an async arrow's machine: points at the enclosing machine
	SelfBoxedField *il.FieldDef // non-nil for an outer function machine that contains async arrows (§4.6)

	// RelayFields holds, for a hoisted name this machine does not own
	// itself but shares live with an enclosing async scope (§4.4's nested-
	// scope linking protocol), the field to load/store on whatever OuterField
	// resolves to at runtime rather than a private snapshot field of this
	// machine's own. The driver populates this once it knows the enclosing
	// machine's own field for the name; asyncmove.Build binds each entry the
	// same way it binds LocalFields/ParamFields, just through one extra hop.
	RelayFields map[string]RelayField

	MoveNext        *il.MethodDef
	SetStateMachine *il.MethodDef

	// EntryStub is the method (on $Program or the declaring class) whose
	// sole job is to allocate, initialize, and start the machine — see
	// BuildEntryStub.
	EntryStub *il.MethodDef
}

// RelayField names a single hop of the outer-machine relay chain: Field
// lives on whatever Host resolves to (another machine reachable through
// OuterField), not on the machine doing the reading/writing.
type RelayField struct {
	Host  *il.FieldDef
	Field *il.FieldDef
}

// Options configures one call to Build.
type Options struct {
	// Name is used to derive the synthesized type's name, e.g.
	// "$StateMachine_outer" or "$StateMachine_outer$inner".
	Name string
	// IsInstanceMethod is true when the async function being lowered is a
	// class method (vs. a free function or an arrow).
	IsInstanceMethod bool
	// IsArrow is true when this machine belongs to an async arrow, in
	// which case OuterField is always defined.
	IsArrow bool
	// ContainsAsyncArrows is true when this machine's own body contains
	// nested async arrows, forcing a SelfBoxedField (§4.6).
	ContainsAsyncArrows bool
	// ParamNames lists every source parameter in declaration order,
	// hoisted or not. MoveNext takes no arguments (spec.md §3), so even a
	// parameter asyncflow didn't mark hoisted still needs a field to carry
	// its value from the entry stub into the first MoveNext invocation
	// (the "segment 0" run); Build gives every name here a field, and
	// BuildEntryStub uses the same order to copy arguments in. Names also
	// present in analysis.HoistedParameters reuse the same field — this
	// only adds fields for the parameters HoistedParameters left out.
	ParamNames []string
}

// Build defines the state-machine value type and all of its fields for one
// async function/method/arrow, per the layout spec.md §3 ("State-machine
// descriptor") and §4.4 describe.
func Build(asm *il.Assembly, analysis *asyncflow.Analysis, opts Options) *Descriptor {
	t := asm.DefineType("$StateMachine_"+opts.Name, il.KindValueType)
	d := &Descriptor{
		Type:        t,
		ParamFields: make(map[string]*il.FieldDef),
		LocalFields: make(map[string]*il.FieldDef),
		RelayFields: make(map[string]RelayField),
	}

	d.StateField = asm.DefineField(t, "state", false, "Int32")
	d.BuilderField = asm.DefineField(t, "builder", false, "$AsyncTaskBuilder")

	for name := range analysis.HoistedParameters {
		d.ParamFields[name] = asm.DefineField(t, "p_"+name, false, "Object")
	}
	for _, name := range opts.ParamNames {
		if _, ok := d.ParamFields[name]; !ok {
			d.ParamFields[name] = asm.DefineField(t, "p_"+name, false, "Object")
		}
	}
	for name := range analysis.HoistedLocals {
		d.LocalFields[name] = asm.DefineField(t, "l_"+name, false, "Object")
	}

	d.AwaiterFields = make([]*il.FieldDef, analysis.AwaitCount)
	for k := 0; k < analysis.AwaitCount; k++ {
		d.AwaiterFields[k] = asm.DefineField(t, fmt.Sprintf("awaiter_%d", k), false, "$Awaiter")
	}

	if opts.IsInstanceMethod && analysis.UsesThis {
		d.ThisField = asm.DefineField(t, "this", false, "Object")
	}

	if opts.IsArrow {
		d.OuterField = asm.DefineField(t, "outer", false, "Object")
	}
	if opts.ContainsAsyncArrows {
		d.SelfBoxedField = asm.DefineField(t, "self_boxed", false, "Object")
	}

	// MoveNext and SetStateMachine are defined now (so anything can
	// reference their tokens) but bodied later by internal/asyncmove.
	d.MoveNext = asm.DefineMethod(t, "MoveNext", false, true, 0)
	d.SetStateMachine = asm.DefineMethod(t, "SetStateMachine", false, true, 1)
	// SetStateMachine is a required interface member but a no-op for
	// value-type machines (spec.md §3); its body never changes, so it is
	// safe to fill in immediately rather than waiting on asyncmove.
	d.SetStateMachine.Body = &il.Body{Code: []il.Instruction{il.Simple(il.OpReturnVoid, 0)}}

	return d
}

// BuildEntryStub defines, on owner (either $Program or a declaring class),
// the method whose sole job is to allocate the machine, copy in parameters,
// start the builder, and return the resulting task — per spec.md §4.4's
// "defines a stub entry method... whose sole purpose is to allocate,
// initialize, and start the machine" and, where opts.ContainsAsyncArrows,
// the self-boxed sequence of §4.6 (stack-allocate, box, wire self_boxed
// inside the box, start against the boxed pointer, never the stack copy).
//
// The body is fixed boilerplate independent of the source function's own
// logic, so — unlike MoveNext — it is emitted here rather than deferred to
// internal/asyncmove. paramNames must be in the same declaration order
// passed as Options.ParamNames to Build, so argument slots line up with
// the fields Build defined for them; isInstanceMethod shifts every
// parameter slot by one (arg 0 is the stub's own `this`, copied into
// d.ThisField when present) and copies arg 0 itself when d.ThisField is
// set.
func BuildEntryStub(asm *il.Assembly, owner *il.TypeDef, name string, d *Descriptor, static bool, isInstanceMethod bool, paramNames []string) *il.MethodDef {
	argBase := uint32(0)
	if isInstanceMethod {
		argBase = 1
	}
	paramCount := int(argBase) + len(paramNames)
	stub := asm.DefineMethod(owner, name, static, false, paramCount)
	FillEntryStub(stub, d, isInstanceMethod, paramNames)
	return stub
}

// FillEntryStub fills an already-defined method stub's body with the
// allocate/initialize/start sequence BuildEntryStub constructs, without
// defining a new method token. The driver uses this for top-level async
// functions: phase 4 already defined the function's method stub (so
// forward references elsewhere in the merged statement list resolve to a
// stable token, spec.md §3's `functions` registry), so phase 6.5 must fill
// that same stub's body in place rather than mint a second token that
// nothing else would ever call.
func FillEntryStub(stub *il.MethodDef, d *Descriptor, isInstanceMethod bool, paramNames []string) {
	argBase := uint32(0)
	if isInstanceMethod {
		argBase = 1
	}

	var code []il.Instruction
	line := 0

	// Allocate the machine on the stack and initialize state = -1.
	code = append(code, il.WithA(il.OpNewObj, uint32(d.Type.Token), line))
	code = append(code, il.WithA(il.OpStoreLocal, 0, line))

	if isInstanceMethod && d.ThisField != nil {
		code = append(code, il.WithA(il.OpLoadArg, 0, line))
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(d.ThisField.Token), line))
	}
	for i, pname := range paramNames {
		field, ok := d.ParamFields[pname]
		if !ok {
			continue
		}
		code = append(code, il.WithA(il.OpLoadArg, argBase+uint32(i), line))
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(field.Token), line))
	}

	if d.SelfBoxedField != nil {
		// Box the stack copy, then store the boxed reference into its own
		// self_boxed field, and start the builder against the boxed
		// pointer — never the stack copy (spec.md §4.6 steps 3-5).
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.Simple(il.OpBoxStateMachine, line))
		code = append(code, il.WithA(il.OpStoreLocal, 1, line))
		code = append(code, il.WithA(il.OpLoadLocal, 1, line))
		code = append(code, il.WithA(il.OpLoadLocal, 1, line))
		code = append(code, il.WithA(il.OpStoreFieldOn, uint32(d.SelfBoxedField.Token), line))
		code = append(code, il.WithA(il.OpLoadLocal, 1, line))
		code = append(code, il.Simple(il.OpStartBuilder, line))
	} else {
		code = append(code, il.WithA(il.OpLoadLocal, 0, line))
		code = append(code, il.Simple(il.OpStartBuilder, line))
	}

	code = append(code, il.Simple(il.OpReturn, line))
	stub.Body = &il.Body{Code: code}
	stub.LocalCount = 2
}
