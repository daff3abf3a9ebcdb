package il

import (
	"fmt"
	"io"
)

// Disassembler renders a finalized Assembly as human-readable text,
// grounded on the teacher's bytecode.Disassembler (internal/bytecode/
// disasm.go): a constant-pool listing followed by one instruction line per
// offset. Unlike the teacher's category-dispatch table (its Chunk packs
// operands by instruction family), every Instruction here has the same
// [Op][A][B] shape, so one rendering path covers all opcodes.
type Disassembler struct {
	w   io.Writer
	asm *Assembly
}

// NewDisassembler creates a Disassembler that writes asm's disassembly to w.
func NewDisassembler(asm *Assembly, w io.Writer) *Disassembler {
	return &Disassembler{w: w, asm: asm}
}

// Disassemble prints the assembly name, its constant pool, then every
// type's fields and method bodies in definition order.
func (d *Disassembler) Disassemble() {
	fmt.Fprintf(d.w, "== %s ==\n", d.asm.Name)
	fmt.Fprintf(d.w, "Types: %d, Constants: %d, EntryPoint: %d\n\n", len(d.asm.Types), len(d.asm.Constants), d.asm.EntryPoint)

	if len(d.asm.Constants) > 0 {
		fmt.Fprintln(d.w, "Constants:")
		for i, c := range d.asm.Constants {
			fmt.Fprintf(d.w, "  [%04d] %v\n", i, c)
		}
		fmt.Fprintln(d.w)
	}

	for _, t := range d.asm.Types {
		d.disassembleType(t)
	}
}

func (d *Disassembler) disassembleType(t *TypeDef) {
	kind := "class"
	switch t.Kind {
	case KindValueType:
		kind = "valuetype"
	case KindSealed:
		kind = "sealed"
	}
	fmt.Fprintf(d.w, "%s %s (token %d)", kind, t.Name, t.Token)
	if t.HasSuper {
		fmt.Fprintf(d.w, " : %d", t.Super)
	}
	fmt.Fprintln(d.w)

	for _, f := range t.Fields {
		mod := "instance"
		if f.Static {
			mod = "static"
		}
		fmt.Fprintf(d.w, "  field %s %s %s (token %d)\n", mod, f.TypeName, f.Name, f.Token)
	}
	for _, m := range t.Methods {
		d.disassembleMethod(m)
	}
	fmt.Fprintln(d.w)
}

func (d *Disassembler) disassembleMethod(m *MethodDef) {
	mod := "instance"
	if m.Static {
		mod = "static"
	}
	if m.Virtual {
		mod += " virtual"
	}
	fmt.Fprintf(d.w, "  method %s %s(%d params, %d locals) (token %d)\n", mod, m.Name, m.ParamCount, m.LocalCount, m.Token)
	if m.Body == nil {
		fmt.Fprintln(d.w, "    <no body>")
		return
	}
	for offset, ins := range m.Body.Code {
		d.disassembleInstruction(offset, ins)
	}
}

func (d *Disassembler) disassembleInstruction(offset int, ins Instruction) {
	switch {
	case isJumpOp(ins.Op):
		fmt.Fprintf(d.w, "    %04d | %-16s -> %04d\n", offset, ins.Op, ins.B)
	case ins.A != 0 && ins.B != 0:
		fmt.Fprintf(d.w, "    %04d | %-16s %d, %d\n", offset, ins.Op, ins.A, ins.B)
	case ins.A != 0:
		fmt.Fprintf(d.w, "    %04d | %-16s %d\n", offset, ins.Op, ins.A)
	default:
		fmt.Fprintf(d.w, "    %04d | %s\n", offset, ins.Op)
	}
}

func isJumpOp(op OpCode) bool {
	switch op {
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpLeave:
		return true
	default:
		return false
	}
}
