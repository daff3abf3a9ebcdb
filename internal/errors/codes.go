package errors

// Error code constants, organized by phase, per spec.md §7's error taxonomy.
// Each is a distinct compile-time failure kind surfaced by a specific
// component; the Registry below gives each a human description and a phase
// tag so callers can classify an error without string-matching the message.
const (
	// AST-malformed (E-ILEMIT, §4.5): the emitter hit an Expr/Stmt variant
	// its switch has no case for.
	AST001 = "AST001" // unrecognized expression variant
	AST002 = "AST002" // unrecognized statement variant

	// Invalid-enum-initializer (§7): a const-enum member initializer is not
	// compile-time evaluable.
	ENM001 = "ENM001" // non-constant enum initializer
	ENM002 = "ENM002" // enum member references an undefined sibling

	// Missing function body (§7).
	FUN001 = "FUN001" // non-overload function declared without a body

	// Missing parent arrow at lowering (§4.1 invariant 4, internal bug).
	ASY001 = "ASY001" // nested async arrow discovered before its parent machine

	// IR verification / image-writer failures (§4.1 phase "final").
	IMG001 = "IMG001" // metadata verification failed before serialization
	IMG002 = "IMG002" // entry point type/method not found at write time

	// Module system (§4.7).
	MOD001 = "MOD001" // import cycle detected by the module resolver
	MOD002 = "MOD002" // duplicate export name within one module

	// Closure analysis (§4.2) — not user-facing errors today, reserved for
	// future diagnostics (e.g. capturing a name that resolves to nothing).
	CLS001 = "CLS001" // reserved
)

// ErrorInfo is the structured description of one error code.
type ErrorInfo struct {
	Code        string
	Phase       string
	Description string
}

// Registry maps every code above to its phase and description.
var Registry = map[string]ErrorInfo{
	AST001: {AST001, "emit", "Unrecognized expression variant"},
	AST002: {AST002, "emit", "Unrecognized statement variant"},
	ENM001: {ENM001, "enum", "Non-constant const-enum initializer"},
	ENM002: {ENM002, "enum", "Enum member references an undefined sibling"},
	FUN001: {FUN001, "define", "Function declared without a body"},
	ASY001: {ASY001, "async", "Nested async arrow discovered before its parent machine"},
	IMG001: {IMG001, "image", "Metadata verification failed"},
	IMG002: {IMG002, "image", "Entry point not found at write time"},
	MOD001: {MOD001, "module", "Import cycle detected"},
	MOD002: {MOD002, "module", "Duplicate export name"},
	CLS001: {CLS001, "closure", "Reserved"},
}

// Phase returns the phase tag for code, and whether code is known.
func Phase(code string) (string, bool) {
	info, ok := Registry[code]
	return info.Phase, ok
}
