package image

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/tsilgen/tsilc/internal/il"
)

func sampleAssembly() *il.Assembly {
	asm := il.NewAssembly("sample")
	program := asm.DefineType("$Program", il.KindSealed)
	main := asm.DefineMethod(program, "main", true, false, 0)
	main.Body = &il.Body{Code: []il.Instruction{
		il.WithA(il.OpLoadConst, asm.AddConstant(float64(42)), 1),
		il.Simple(il.OpReturn, 1),
	}}
	asm.EntryPoint = main.Token
	return asm
}

func TestWriteReadRoundTrip(t *testing.T) {
	asm := sampleAssembly()

	var buf bytes.Buffer
	if err := NewWriter().Write(&buf, asm); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := NewReader().Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Name != asm.Name {
		t.Errorf("Name = %q, want %q", got.Name, asm.Name)
	}
	if got.EntryPoint != asm.EntryPoint {
		t.Errorf("EntryPoint = %d, want %d", got.EntryPoint, asm.EntryPoint)
	}
	if len(got.Types) != len(asm.Types) {
		t.Fatalf("Types len = %d, want %d", len(got.Types), len(asm.Types))
	}
	gotMain := got.Types[0].Methods[0]
	wantMain := asm.Types[0].Methods[0]
	if len(gotMain.Body.Code) != len(wantMain.Body.Code) {
		t.Fatalf("main body len = %d, want %d", len(gotMain.Body.Code), len(wantMain.Body.Code))
	}
	for i, ins := range wantMain.Body.Code {
		if gotMain.Body.Code[i] != ins {
			t.Errorf("instruction %d = %+v, want %+v", i, gotMain.Body.Code[i], ins)
		}
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	asm := sampleAssembly()
	path := filepath.Join(t.TempDir(), "sample.tsx")

	if err := NewWriter().WriteFile(path, asm); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := NewReader().ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Name != asm.Name {
		t.Errorf("Name = %q, want %q", got.Name, asm.Name)
	}
}

func TestWriteRejectsUnverifiedAssembly(t *testing.T) {
	asm := il.NewAssembly("broken")
	asm.DefineType("Dangling", il.KindClass)
	asm.EntryPoint = 999

	var buf bytes.Buffer
	if err := NewWriter().Write(&buf, asm); err == nil {
		t.Fatal("Write succeeded on an unverified assembly, want error")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := NewReader().Read(bytes.NewReader([]byte("XXXX\x01\x00\x00\x00")))
	if err == nil {
		t.Fatal("Read succeeded with a bad magic, want error")
	}
}

func TestReadRejectsNewerMinorVersion(t *testing.T) {
	header := append([]byte(Magic), VersionMajor, VersionMinor+1, 0, 0)
	_, err := NewReader().Read(bytes.NewReader(header))
	if err == nil {
		t.Fatal("Read succeeded against a newer minor version, want error")
	}
}

func TestAssemblySnapshot(t *testing.T) {
	asm := sampleAssembly()
	var buf bytes.Buffer
	if err := NewWriter().Write(&buf, asm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snaps.MatchSnapshot(t, buf.Bytes())
}
