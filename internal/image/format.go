// Package image serializes a finalized il.Assembly to an on-disk executable
// image, and reads one back. The binary layout is modeled on the teacher's
// .dwc bytecode container (internal/bytecode/serializer.go): a fixed magic +
// version header, then length-prefixed sections, so the format can evolve
// without breaking old images (major version must match; newer minor
// versions are rejected by an older reader, older ones accepted).
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tsilgen/tsilc/internal/il"
)

// Image file format (.tsx):
//
// Header (8 bytes):
//   - Magic: "TSIL" (4 bytes)
//   - VersionMajor, VersionMinor, VersionPatch: uint8 each
//   - Reserved: uint8
//
// Body:
//   - Assembly name (length-prefixed string)
//   - Entry point method token: uint32
//   - Constant pool (count + length-prefixed values)
//   - Types (count + per-type: name, super token, kind, fields, methods)

const (
	Magic        = "TSIL"
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// Version identifies an image format revision.
type Version struct {
	Major, Minor, Patch uint8
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// IsCompatible reports whether a reader at v can read an image at other:
// major versions must match exactly, and a reader can read older-or-equal
// minor versions but never a newer one.
func (v Version) IsCompatible(other Version) bool {
	return v.Major == other.Major && other.Minor <= v.Minor
}

func currentVersion() Version {
	return Version{VersionMajor, VersionMinor, VersionPatch}
}

// Writer serializes an *il.Assembly into the image format.
type Writer struct {
	version Version
}

// NewWriter creates a Writer at the current format version.
func NewWriter() *Writer {
	return &Writer{version: currentVersion()}
}

// Write verifies asm (il.Assembly.Verify) and serializes it to w. Verification
// failures are reported with the IMG001 error code category (see
// internal/errors/codes.go); this function never writes a partial image on
// error.
func (wr *Writer) Write(w io.Writer, asm *il.Assembly) error {
	if err := asm.Verify(); err != nil {
		return fmt.Errorf("IMG001: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := wr.writeHeader(buf); err != nil {
		return err
	}
	if err := writeString(buf, asm.Name); err != nil {
		return err
	}
	if err := writeUint32(buf, uint32(asm.EntryPoint)); err != nil {
		return err
	}
	if err := wr.writeConstants(buf, asm.Constants); err != nil {
		return err
	}
	if err := wr.writeTypes(buf, asm.Types); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile verifies and serializes asm to a new file at path. The file is
// created with os.Create and closed on every exit path, including a
// serialization error — a half-written image is still closed, never left
// open, matching the teacher's guaranteed-close discipline for its chunk
// serializer.
func (wr *Writer) WriteFile(path string, asm *il.Assembly) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	err = wr.Write(f, asm)
	return err
}

func (wr *Writer) writeHeader(w io.Writer) error {
	if _, err := w.Write([]byte(Magic)); err != nil {
		return err
	}
	return writeBytes(w, []byte{wr.version.Major, wr.version.Minor, wr.version.Patch, 0})
}

func (wr *Writer) writeConstants(w io.Writer, consts []interface{}) error {
	if err := writeUint32(w, uint32(len(consts))); err != nil {
		return err
	}
	for _, c := range consts {
		if err := writeConstant(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeTypes(w io.Writer, types []*il.TypeDef) error {
	if err := writeUint32(w, uint32(len(types))); err != nil {
		return err
	}
	for _, t := range types {
		if err := wr.writeType(w, t); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeType(w io.Writer, t *il.TypeDef) error {
	if err := writeUint32(w, uint32(t.Token)); err != nil {
		return err
	}
	if err := writeString(w, t.Name); err != nil {
		return err
	}
	if err := writeBool(w, t.HasSuper); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(t.Super)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(t.Kind)); err != nil {
		return err
	}

	if err := writeUint32(w, uint32(len(t.Fields))); err != nil {
		return err
	}
	for _, f := range t.Fields {
		if err := writeUint32(w, uint32(f.Token)); err != nil {
			return err
		}
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := writeBool(w, f.Static); err != nil {
			return err
		}
		if err := writeString(w, f.TypeName); err != nil {
			return err
		}
	}

	if err := writeUint32(w, uint32(len(t.Methods))); err != nil {
		return err
	}
	for _, m := range t.Methods {
		if err := wr.writeMethod(w, m); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeMethod(w io.Writer, m *il.MethodDef) error {
	if err := writeUint32(w, uint32(m.Token)); err != nil {
		return err
	}
	if err := writeString(w, m.Name); err != nil {
		return err
	}
	if err := writeBool(w, m.Static); err != nil {
		return err
	}
	if err := writeBool(w, m.Virtual); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.ParamCount)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.LocalCount)); err != nil {
		return err
	}

	var code []il.Instruction
	if m.Body != nil {
		code = m.Body.Code
	}
	if err := writeUint32(w, uint32(len(code))); err != nil {
		return err
	}
	for _, ins := range code {
		if err := binary.Write(w, binary.LittleEndian, uint32(ins.Op)); err != nil {
			return err
		}
		if err := writeUint32(w, ins.A); err != nil {
			return err
		}
		if err := writeUint32(w, ins.B); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(ins.Line)); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// primitive encoders/decoders
// ---------------------------------------------------------------------------

func writeBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

// writeConstant encodes one constant-pool entry as a 1-byte type tag
// followed by its payload: 0=nil, 1=float64, 2=string, 3=bool.
func writeConstant(w io.Writer, c interface{}) error {
	switch v := c.(type) {
	case nil:
		return writeBytes(w, []byte{0})
	case float64:
		if err := writeBytes(w, []byte{1}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v)
	case string:
		if err := writeBytes(w, []byte{2}); err != nil {
			return err
		}
		return writeString(w, v)
	case bool:
		if err := writeBytes(w, []byte{3}); err != nil {
			return err
		}
		return writeBool(w, v)
	default:
		return fmt.Errorf("image: unsupported constant type %T", c)
	}
}
