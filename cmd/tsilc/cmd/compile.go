package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tsilgen/tsilc/internal/demo"
	"github.com/tsilgen/tsilc/internal/driver"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/image"
)

var (
	outputFile   string
	disassemble  bool
	disableOpt   bool
	listPrograms bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [program]",
	Short: "Compile a demo program to a managed-bytecode image",
	Long: `Run the full 11-phase pipeline (spec.md §4.1) over one of the named
demo programs in internal/demo and write the resulting image to disk.

Examples:
  # List the available demo programs
  tsilc compile --list

  # Compile the closure-capture demo and write it to a.out.tsx
  tsilc compile closure

  # Compile and dump the disassembled IL to stderr
  tsilc compile nested-async --disassemble -o nested.tsx

  # Compile the two-module import-order demo
  tsilc compile modules -o modules.tsx`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&outputFile, "output", "o", "a.out.tsx", "output image path")
	compileCmd.Flags().BoolVar(&disassemble, "disassemble", false, "dump disassembled IL to stderr after compiling")
	compileCmd.Flags().BoolVar(&disableOpt, "disable-opt", false, "disable bytecode optimization passes")
	compileCmd.Flags().BoolVar(&listPrograms, "list", false, "list the available demo programs and exit")
}

func runCompile(_ *cobra.Command, args []string) error {
	if listPrograms {
		names := []string{"modules"}
		for name := range demo.Programs() {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("expected exactly one program name (see --list); got %d", len(args))
	}
	name := args[0]

	opts := []driver.Option{driver.WithOutput(outputFile)}
	if disassemble {
		opts = append(opts, driver.WithDumpIL())
	}
	if disableOpt {
		opts = append(opts, driver.WithDisableOpt())
	}

	var cfg driver.Config
	var asm *il.Assembly
	var err error
	if name == "modules" {
		cfg = driver.NewConfig(opts...)
		modules, resolver := demo.Modules()
		asm, err = driver.New(cfg).CompileModules(modules, resolver, nil, nil)
	} else {
		p, ok := demo.Programs()[name]
		if !ok {
			return fmt.Errorf("unknown demo program %q (see --list)", name)
		}
		opts = append(opts, driver.WithEntryPoint(p.EntryPoint))
		cfg = driver.NewConfig(opts...)
		asm, err = driver.New(cfg).Compile(p.Stmts, nil, nil)
	}

	if err != nil {
		printCompileError(err)
		os.Exit(1)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Compiled %q: %d types\n", name, len(asm.Types))
	}

	if cfg.DumpIL {
		fmt.Fprintf(os.Stderr, "\n== Disassembly (%s) ==\n", name)
		il.NewDisassembler(asm, os.Stderr).Disassemble()
	}

	if err := image.NewWriter().WriteFile(outputFile, asm); err != nil {
		return fmt.Errorf("failed to write image %s: %w", outputFile, err)
	}

	fmt.Printf("Compiled %s -> %s\n", name, outputFile)
	return nil
}

func printCompileError(err error) {
	if ce, ok := err.(*errors.CompilerError); ok {
		fmt.Fprintln(os.Stderr, "Compile Error:")
		fmt.Fprintln(os.Stderr, ce.Format(true))
		return
	}
	fmt.Fprintf(os.Stderr, "Compile Error: %s\n", err)
}
