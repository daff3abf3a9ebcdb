package image

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tsilgen/tsilc/internal/il"
)

// Reader deserializes an image back into an *il.Assembly, for the
// round-trip property (spec.md test property #10: "Output round-trip") and
// for any future disassembler.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader { return &Reader{} }

// ReadFile opens path and reads an *il.Assembly from it.
func (rd *Reader) ReadFile(path string) (*il.Assembly, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rd.Read(f)
}

// Read deserializes an *il.Assembly from r, rejecting images whose magic or
// major version do not match this build or whose minor version is newer
// (the entry point / structure cannot be trusted if the header is wrong).
// The errors it returns are plain errors that carry no error code.
func (rd *Reader) Read(r io.Reader) (*il.Assembly, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("image: reading magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("image: bad magic %q, want %q", magic, Magic)
	}

	verBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, verBytes); err != nil {
		return nil, fmt.Errorf("image: reading version: %w", err)
	}
	fileVersion := Version{verBytes[0], verBytes[1], verBytes[2]}
	if !currentVersion().IsCompatible(fileVersion) {
		return nil, fmt.Errorf("image: incompatible version %s (reader is %s)", fileVersion, currentVersion())
	}

	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	entry, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	asm := &il.Assembly{Name: name, EntryPoint: il.MethodToken(entry)}

	consts, err := readConstants(r)
	if err != nil {
		return nil, err
	}
	asm.Constants = consts

	types, nextType, nextMethod, nextField, err := readTypes(r)
	if err != nil {
		return nil, err
	}
	asm.Types = types
	_ = nextType
	_ = nextMethod
	_ = nextField

	return asm, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readBool(r io.Reader) (bool, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readConstants(r io.Reader) ([]interface{}, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := readConstant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readConstant(r io.Reader) (interface{}, error) {
	tag := make([]byte, 1)
	if _, err := io.ReadFull(r, tag); err != nil {
		return nil, err
	}
	switch tag[0] {
	case 0:
		return nil, nil
	case 1:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return nil, err
		}
		return f, nil
	case 2:
		return readString(r)
	case 3:
		return readBool(r)
	default:
		return nil, fmt.Errorf("image: unknown constant tag %d", tag[0])
	}
}

func readTypes(r io.Reader) ([]*il.TypeDef, il.TypeToken, il.MethodToken, il.FieldToken, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	var maxType il.TypeToken
	var maxMethod il.MethodToken
	var maxField il.FieldToken

	types := make([]*il.TypeDef, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := readType(r, &maxMethod, &maxField)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		if t.Token > maxType {
			maxType = t.Token
		}
		types = append(types, t)
	}
	return types, maxType, maxMethod, maxField, nil
}

func readType(r io.Reader, maxMethod *il.MethodToken, maxField *il.FieldToken) (*il.TypeDef, error) {
	token, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	hasSuper, err := readBool(r)
	if err != nil {
		return nil, err
	}
	super, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	kind, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	t := &il.TypeDef{
		Token:    il.TypeToken(token),
		Name:     name,
		HasSuper: hasSuper,
		Super:    il.TypeToken(super),
		Kind:     il.TypeKind(kind),
	}

	fieldCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < fieldCount; i++ {
		fToken, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		fName, err := readString(r)
		if err != nil {
			return nil, err
		}
		fStatic, err := readBool(r)
		if err != nil {
			return nil, err
		}
		fType, err := readString(r)
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, &il.FieldDef{Token: il.FieldToken(fToken), Name: fName, Static: fStatic, TypeName: fType})
		if il.FieldToken(fToken) > *maxField {
			*maxField = il.FieldToken(fToken)
		}
	}

	methodCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < methodCount; i++ {
		m, err := readMethod(r)
		if err != nil {
			return nil, err
		}
		t.Methods = append(t.Methods, m)
		if m.Token > *maxMethod {
			*maxMethod = m.Token
		}
	}

	return t, nil
}

func readMethod(r io.Reader) (*il.MethodDef, error) {
	token, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	static, err := readBool(r)
	if err != nil {
		return nil, err
	}
	virtual, err := readBool(r)
	if err != nil {
		return nil, err
	}
	paramCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	localCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	codeLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	code := make([]il.Instruction, 0, codeLen)
	for i := uint32(0); i < codeLen; i++ {
		var op uint32
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, err
		}
		a, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		b, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		line, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		code = append(code, il.Instruction{Op: il.OpCode(op), A: a, B: b, Line: int(line)})
	}

	return &il.MethodDef{
		Token:      il.MethodToken(token),
		Name:       name,
		Static:     static,
		Virtual:    virtual,
		ParamCount: int(paramCount),
		LocalCount: int(localCount),
		Body:       &il.Body{Code: code},
	}, nil
}
