// Package cmd is the tsilc command tree, grounded on the teacher's
// cmd/dwscript/cmd package: a package-level rootCmd, one file per
// subcommand, persistent flags set up in this file's init.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information, overridden by -ldflags at release build time.
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "tsilc",
	Short: "AOT code generator and async state-machine transformer",
	Long: `tsilc lowers a type-checked TypeScript-like AST into a standalone
managed-bytecode executable image.

Given no front end is wired into this repository (parsing and type
checking are collaborator concerns, see spec.md §1/§6), "tsilc compile"
operates over a small set of named demo programs that exercise the full
pipeline end to end; run "tsilc compile --list" to see them.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
