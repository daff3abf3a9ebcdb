package moduleemit

import (
	"testing"

	"github.com/tsilgen/tsilc/internal/il"
)

func TestSanitizeNameReplacesNonIdentifierRunes(t *testing.T) {
	got := SanitizeName("./lib/date-utils.ts")
	for _, r := range got {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			t.Fatalf("SanitizeName(%q) = %q contains non-identifier rune %q", "./lib/date-utils.ts", got, r)
		}
	}
}

func TestSanitizeNameNormalizesUnicodeBeforeMangling(t *testing.T) {
	precomposed := SanitizeName("caf\u00e9")    // e-acute as a single codepoint
	decomposed := SanitizeName("cafe\u0301")    // "e" + combining acute accent
	if precomposed != decomposed {
		t.Fatalf("NFC-equal paths produced different names: %q vs %q", precomposed, decomposed)
	}
}

func TestSanitizeNamePrefixesLeadingDigit(t *testing.T) {
	got := SanitizeName("3rdparty")
	if len(got) == 0 || got[0] == '3' {
		t.Fatalf("SanitizeName(%q) = %q starts with a digit", "3rdparty", got)
	}
}

func TestDefineCreatesOneFieldPerExportInOrder(t *testing.T) {
	asm := il.NewAssembly("test")
	m := Define(asm, "./a", []string{"b", "a", "c"})

	if len(m.Exports) != 3 {
		t.Fatalf("len(Exports) = %d, want 3", len(m.Exports))
	}
	if got := m.ExportOrder; len(got) != 3 || got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Fatalf("ExportOrder = %v, want [b a c] (declaration order preserved)", got)
	}
	if m.Initialize == nil || m.Initialize.Body != nil {
		t.Fatal("expected an $Initialize stub with no body yet")
	}
}

func TestFillInitializeStoresResolvedBindingsOnly(t *testing.T) {
	asm := il.NewAssembly("test")
	m := Define(asm, "./a", []string{"Widget", "makeWidget", "unresolved"})

	classType := asm.DefineType("Widget", il.KindClass)
	fn := asm.DefineMethod(asm.DefineType("$Program", il.KindSealed), "makeWidget", true, false, 0)
	tsFn := asm.DefineType("$TSFunction", il.KindSealed)

	FillInitialize(m, Bindings{
		Classes:        map[string]il.TypeToken{"Widget": classType.Token},
		Functions:      map[string]il.MethodToken{"makeWidget": fn.Token},
		TSFunctionType: tsFn.Token,
	})

	if m.Initialize.Body == nil {
		t.Fatal("expected $Initialize body to be filled in")
	}
	var stores int
	for _, ins := range m.Initialize.Body.Code {
		if ins.Op == il.OpStoreField {
			stores++
		}
	}
	// exactly two stores: Widget (class) and makeWidget (function); the
	// unresolved export's field is left at its zero value.
	if stores != 2 {
		t.Fatalf("OpStoreField count = %d, want 2", stores)
	}
}

func TestExportNamesPrefersLocalAlias(t *testing.T) {
	got := ExportNames([]ExportSpec{{Name: "a"}, {Name: "b", As: "c"}})
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("ExportNames = %v, want [a c]", got)
	}
}
