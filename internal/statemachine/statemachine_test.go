package statemachine

import (
	"testing"

	"github.com/tsilgen/tsilc/internal/asyncflow"
	"github.com/tsilgen/tsilc/internal/il"
)

func TestBuildDefinesFieldsPerAnalysis(t *testing.T) {
	asm := il.NewAssembly("test")
	analysis := &asyncflow.Analysis{
		AwaitCount:        2,
		HoistedParameters: map[string]bool{"p": true},
		HoistedLocals:     map[string]bool{"x": true},
		UsesThis:          true,
	}

	d := Build(asm, analysis, Options{Name: "f", IsInstanceMethod: true})

	if d.StateField == nil || d.BuilderField == nil {
		t.Fatal("expected state and builder fields")
	}
	if len(d.AwaiterFields) != 2 {
		t.Fatalf("AwaiterFields len = %d, want 2", len(d.AwaiterFields))
	}
	if d.ParamFields["p"] == nil {
		t.Fatal("expected hoisted parameter field")
	}
	if d.LocalFields["x"] == nil {
		t.Fatal("expected hoisted local field")
	}
	if d.ThisField == nil {
		t.Fatal("expected this field when UsesThis and IsInstanceMethod")
	}
	if d.OuterField != nil || d.SelfBoxedField != nil {
		t.Fatal("did not expect outer/self_boxed fields for a plain method")
	}
	if d.MoveNext.Body != nil {
		t.Fatal("MoveNext body should be deferred to internal/asyncmove")
	}
	if d.SetStateMachine.Body == nil {
		t.Fatal("SetStateMachine should be a no-op body filled in immediately")
	}
}

func TestBuildArrowHasOuterField(t *testing.T) {
	asm := il.NewAssembly("test")
	d := Build(asm, &asyncflow.Analysis{}, Options{Name: "inner", IsArrow: true})
	if d.OuterField == nil {
		t.Fatal("expected outer field for an async arrow machine")
	}
}

func TestBuildOutermostWithArrowsHasSelfBoxed(t *testing.T) {
	asm := il.NewAssembly("test")
	d := Build(asm, &asyncflow.Analysis{}, Options{Name: "outer", ContainsAsyncArrows: true})
	if d.SelfBoxedField == nil {
		t.Fatal("expected self_boxed field for an outer machine containing async arrows")
	}
}

func TestBuildEntryStubSelfBoxedSequence(t *testing.T) {
	asm := il.NewAssembly("test")
	program := asm.DefineType("$Program", il.KindSealed)
	d := Build(asm, &asyncflow.Analysis{}, Options{Name: "outer", ContainsAsyncArrows: true})

	stub := BuildEntryStub(asm, program, "outer", d, true, false, nil)
	if stub.Body == nil {
		t.Fatal("expected entry stub body to be emitted immediately")
	}

	var sawBox, sawStart bool
	for _, ins := range stub.Body.Code {
		if ins.Op == il.OpBoxStateMachine {
			sawBox = true
		}
		if ins.Op == il.OpStartBuilder {
			sawStart = true
		}
	}
	if !sawBox {
		t.Fatal("expected OpBoxStateMachine in the self-boxed entry stub")
	}
	if !sawStart {
		t.Fatal("expected OpStartBuilder in the entry stub")
	}
}

func TestBuildEntryStubCopiesNonHoistedParam(t *testing.T) {
	asm := il.NewAssembly("test")
	// "q" is never referenced after an await, so asyncflow would not mark
	// it hoisted; it still needs a field so MoveNext's first invocation
	// (state == -1) can read it, since MoveNext itself takes no arguments.
	d := Build(asm, &asyncflow.Analysis{}, Options{Name: "f", ParamNames: []string{"q"}})
	if d.ParamFields["q"] == nil {
		t.Fatal("expected a field for a non-hoisted parameter named in ParamNames")
	}

	stub := BuildEntryStub(asm, asm.DefineType("$Program", il.KindSealed), "f", d, true, false, []string{"q"})
	var sawStore bool
	for _, ins := range stub.Body.Code {
		if ins.Op == il.OpStoreFieldOn && il.FieldToken(ins.A) == d.ParamFields["q"].Token {
			sawStore = true
		}
	}
	if !sawStore {
		t.Fatal("expected the entry stub to copy the parameter value into its field")
	}
}
