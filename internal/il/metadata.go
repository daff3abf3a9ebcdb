package il

import "fmt"

// TypeToken, MethodToken, and FieldToken are forward-reference handles:
// defining a type/method/field returns one of these immediately, before any
// body is emitted, so sibling and mutually-recursive definitions can
// reference each other (spec.md §3 invariants 1–4).
type TypeToken uint32
type MethodToken uint32
type FieldToken uint32

// TypeKind distinguishes the handful of type shapes the assembly pipeline
// produces.
type TypeKind int

const (
	KindClass TypeKind = iota
	KindValueType // async state machines (§4.4)
	KindSealed    // $Program, module types, display classes
)

// FieldDef is one field stub.
type FieldDef struct {
	Token  FieldToken
	Name   string
	Static bool
	// TypeName is advisory only (for disassembly); the VM/runtime resolves
	// actual layout.
	TypeName string
}

// MethodDef is one method/ctor/getter/setter stub. Body is nil until the
// corresponding emission phase fills it in; Params/Locals counts are set at
// definition time so the stub is fully callable before its body exists.
type MethodDef struct {
	Token     MethodToken
	Name      string
	Static    bool
	Virtual   bool
	ParamCount int
	LocalCount int
	Body      *Body // nil until emitted
}

// Body is a method body under construction: an instruction stream plus the
// bookkeeping needed for forward jumps, mirrored on the teacher's Chunk type
// (EmitJump/PatchJump).
type Body struct {
	Code []Instruction
}

// Emit appends an instruction and returns its index.
func (b *Body) Emit(ins Instruction) int {
	b.Code = append(b.Code, ins)
	return len(b.Code) - 1
}

// EmitJump emits a jump with a placeholder target and returns its index so
// it can be patched once the target offset is known.
func (b *Body) EmitJump(op OpCode, line int) int {
	return b.Emit(Instruction{Op: op, Line: line})
}

// PatchJump sets the B operand of the jump at idx to the current end of the
// instruction stream (the fallthrough point).
func (b *Body) PatchJump(idx int) error {
	if idx < 0 || idx >= len(b.Code) {
		return fmt.Errorf("il: patch jump out of range: %d", idx)
	}
	b.Code[idx].B = uint32(len(b.Code))
	return nil
}

// PatchJumpTo sets the B operand of the jump at idx to an explicit target.
func (b *Body) PatchJumpTo(idx int, target int) error {
	if idx < 0 || idx >= len(b.Code) {
		return fmt.Errorf("il: patch jump out of range: %d", idx)
	}
	b.Code[idx].B = uint32(target)
	return nil
}

// Here returns the offset the next Emit will land at — the address a
// backward jump (e.g. a loop head) should target.
func (b *Body) Here() int { return len(b.Code) }

// TypeDef is a type stub: name, super, declared fields/methods. Fields and
// Methods slices grow as phase 4/5/6.3 define stubs; MethodDef.Body is filled
// in by later phases (§3 invariant 1–3).
type TypeDef struct {
	Token   TypeToken
	Name    string
	Super   TypeToken // 0 if none
	HasSuper bool
	Kind    TypeKind
	Fields  []*FieldDef
	Methods []*MethodDef
}

// Assembly is the finalized-or-in-progress metadata builder: every type ever
// defined, plus the entry-point token used at image-write time.
type Assembly struct {
	Name       string
	Types      []*TypeDef
	EntryPoint MethodToken
	Constants  []interface{} // the constant pool, shared across all method bodies

	nextType   TypeToken
	nextMethod MethodToken
	nextField  FieldToken
}

// NewAssembly creates an empty assembly under construction.
func NewAssembly(name string) *Assembly {
	return &Assembly{Name: name, nextType: 1, nextMethod: 1, nextField: 1}
}

// DefineType defines a type stub and returns its handle immediately.
func (a *Assembly) DefineType(name string, kind TypeKind) *TypeDef {
	t := &TypeDef{Token: a.nextType, Name: name, Kind: kind}
	a.nextType++
	a.Types = append(a.Types, t)
	return t
}

// SetSuper records t's superclass, resolved to an already-defined TypeDef.
func (t *TypeDef) SetSuper(super *TypeDef) {
	t.Super = super.Token
	t.HasSuper = true
}

// DefineField defines a field stub on t.
func (a *Assembly) DefineField(t *TypeDef, name string, static bool, typeName string) *FieldDef {
	f := &FieldDef{Token: a.nextField, Name: name, Static: static, TypeName: typeName}
	a.nextField++
	t.Fields = append(t.Fields, f)
	return f
}

// DefineMethod defines a method stub on t with an empty body; the body is
// filled in later via MethodDef.Body = &il.Body{...} by an emission phase.
func (a *Assembly) DefineMethod(t *TypeDef, name string, static, virtual bool, paramCount int) *MethodDef {
	m := &MethodDef{Token: a.nextMethod, Name: name, Static: static, Virtual: virtual, ParamCount: paramCount}
	a.nextMethod++
	t.Methods = append(t.Methods, m)
	return m
}

// AddConstant appends value to the constant pool and returns its index.
// Equal values are not deduplicated: every call adds a new entry.
func (a *Assembly) AddConstant(value interface{}) uint32 {
	a.Constants = append(a.Constants, value)
	return uint32(len(a.Constants) - 1)
}

// Verify checks the invariants the Image Writer depends on: every method
// referenced as the entry point must exist and have a body, and every
// TypeDef.Super token must resolve to a type defined earlier in a.Types
// (spec.md §3 invariant 1).
func (a *Assembly) Verify() error {
	byToken := make(map[TypeToken]*TypeDef, len(a.Types))
	for i, t := range a.Types {
		byToken[t.Token] = t
		if t.HasSuper {
			if _, ok := byToken[t.Super]; !ok {
				return fmt.Errorf("il: type %q (index %d) references undefined super token %d", t.Name, i, t.Super)
			}
		}
	}

	var entry *MethodDef
	for _, t := range a.Types {
		for _, m := range t.Methods {
			if m.Token == a.EntryPoint {
				entry = m
			}
			if m.Body == nil {
				return fmt.Errorf("il: method %q.%s has no body", t.Name, m.Name)
			}
		}
	}
	if entry == nil {
		return fmt.Errorf("il: entry point token %d not found", a.EntryPoint)
	}
	return nil
}
