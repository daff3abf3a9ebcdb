// Package runtimeiface is the Runtime Emitter collaborator (spec.md §6):
// the component that installs a fixed set of intrinsic helper types into the
// output assembly (boxed function wrapper, Promise combinators, console,
// number/string/JSON helpers, a reference-equality comparer, an any-state
// helper) and hands back a Handle record the IL Emitter calls into for the
// rest of the pipeline. Real runtime library emission is out of core scope
// (spec.md §1); NewStub gives the driver and emitter something to exercise
// and test against, the way the teacher's internal/builtins package supplies
// concrete Date/JSON/etc. helpers behind a small Context collaborator
// interface rather than hand-wiring them into the VM core.
package runtimeiface

import "github.com/tsilgen/tsilc/internal/il"

// Handle names every intrinsic type token the IL Emitter needs to reference
// while lowering user code: boxing a number literal, awaiting a promise,
// looking up console.log, and so on.
type Handle struct {
	TSFunction          il.TypeToken // boxed closure/function-pointer wrapper
	BoxInt              il.TypeToken
	BoxFloat            il.TypeToken
	BoxBool             il.TypeToken
	PromiseCombinators  il.TypeToken // Promise.all / race / allSettled
	Console             il.TypeToken
	JSONHelpers         il.TypeToken
	ReferenceComparer   il.TypeToken // === / !== for boxed reference types
	AnyStateHelper      il.TypeToken // property-bag helper used by for-in/for-of over plain objects
}

// Runtime is the collaborator interface the driver depends on for phase 1
// ("emit runtime support types", spec.md §4.1).
type Runtime interface {
	Install(asm *il.Assembly) Handle
}

// Stub is the in-memory Runtime used when no real runtime library is wired
// in: it defines one sealed type per intrinsic, each with a single static
// method stub, just enough structure for the rest of the pipeline (and its
// tests) to reference valid tokens.
type Stub struct{}

// NewStub creates a Stub Runtime.
func NewStub() *Stub { return &Stub{} }

// Install defines the intrinsic types on asm and returns their tokens.
func (s *Stub) Install(asm *il.Assembly) Handle {
	mk := func(name string, methods ...string) il.TypeToken {
		t := asm.DefineType(name, il.KindSealed)
		for _, m := range methods {
			md := asm.DefineMethod(t, m, true, false, 0)
			md.Body = &il.Body{Code: []il.Instruction{il.Simple(il.OpReturnVoid, 0)}}
		}
		return t.Token
	}

	return Handle{
		TSFunction:         mk("$TSFunction", "Invoke"),
		BoxInt:             mk("$BoxInt", "Box", "Unbox"),
		BoxFloat:           mk("$BoxFloat", "Box", "Unbox"),
		BoxBool:            mk("$BoxBool", "Box", "Unbox"),
		PromiseCombinators: mk("$Promise", "All", "Race", "AllSettled"),
		Console:            mk("$Console", "Log"),
		JSONHelpers:        mk("$JSON", "Stringify", "Parse"),
		ReferenceComparer:  mk("$RefEq", "Equals"),
		AnyStateHelper:     mk("$AnyState", "Get", "Set", "Keys"),
	}
}
