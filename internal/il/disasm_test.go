package il

import (
	"bytes"
	"strings"
	"testing"
)

func TestDisassembleRendersTypesFieldsAndInstructions(t *testing.T) {
	asm := NewAssembly("test")
	ty := asm.DefineType("Widget", KindClass)
	asm.DefineField(ty, "count", false, "Number")
	m := asm.DefineMethod(ty, "bump", false, true, 0)
	m.Body = &Body{Code: []Instruction{
		WithA(OpLoadConst, 0, 1),
		Simple(OpReturnVoid, 1),
	}}
	asm.EntryPoint = m.Token

	var buf bytes.Buffer
	NewDisassembler(asm, &buf).Disassemble()
	out := buf.String()

	for _, want := range []string{"Widget", "count", "bump", "LoadConst", "ReturnVoid"} {
		if !strings.Contains(out, want) {
			t.Fatalf("disassembly missing %q; got:\n%s", want, out)
		}
	}
}

func TestDisassembleRendersJumpTargetsNotRawOperands(t *testing.T) {
	asm := NewAssembly("test")
	ty := asm.DefineType("$Program", KindSealed)
	m := asm.DefineMethod(ty, "Main", true, false, 0)
	m.Body = &Body{Code: []Instruction{
		WithAB(OpJump, 0, 2, 1),
		Simple(OpNop, 1),
		Simple(OpReturnVoid, 1),
	}}
	asm.EntryPoint = m.Token

	var buf bytes.Buffer
	NewDisassembler(asm, &buf).Disassemble()
	out := buf.String()

	if !strings.Contains(out, "Jump") || !strings.Contains(out, "-> 0002") {
		t.Fatalf("expected a jump rendered with its target offset; got:\n%s", out)
	}
}
