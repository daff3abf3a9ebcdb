// Package driver is the Compiler Driver (component G, spec.md §2/§4.1):
// the fixed 11-phase pipeline that orchestrates every other component, and
// the sole owner of every cross-cutting registry the pipeline populates
// (spec.md §3's registry table). Nothing outside this package holds driver
// state between phases.
//
// Config/Option follow the teacher's own two configuration idioms at once:
// the functional-options shape of `bytecode.NewCompiler`'s
// `CompilerOption` (internal/bytecode/compiler_core.go) for toggles set at
// construction time, matching how this package is wired from cmd/tsilc.
package driver

// Config holds the toggles a compilation run is parameterized by.
type Config struct {
	// DumpIL requests that the driver's caller (cmd/tsilc) disassemble the
	// finalized assembly to stderr after a successful compile.
	DumpIL bool
	// DisableOpt turns off any future bytecode peephole optimization pass;
	// the core pipeline performs none today, so this is plumbed through
	// but inert, the same way go-dws carries an OptimizationLevel even on
	// paths that don't yet use it.
	DisableOpt bool
	// EntryPoint names the top-level function used as the program's entry
	// point when compiling a single module with no explicit `main`;
	// defaults to "main" by NewConfig.
	EntryPoint string
	// OutputPath is where cmd/tsilc writes the serialized image; the
	// driver itself never touches the filesystem (internal/image does),
	// but carries the configured path for the caller's convenience.
	OutputPath string
}

// Option configures a Config, composed the same way the teacher composes
// bytecode.CompilerOption values.
type Option func(*Config)

// WithDumpIL enables post-compile IL disassembly.
func WithDumpIL() Option { return func(c *Config) { c.DumpIL = true } }

// WithDisableOpt disables bytecode optimization passes.
func WithDisableOpt() Option { return func(c *Config) { c.DisableOpt = true } }

// WithEntryPoint overrides the default top-level entry point name.
func WithEntryPoint(name string) Option { return func(c *Config) { c.EntryPoint = name } }

// WithOutput sets the output image path.
func WithOutput(path string) Option { return func(c *Config) { c.OutputPath = path } }

// NewConfig builds a Config from zero or more Options, starting from the
// same defaults cmd/tsilc's compile command falls back to.
func NewConfig(opts ...Option) Config {
	cfg := Config{EntryPoint: "main", OutputPath: "a.out.tsx"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
