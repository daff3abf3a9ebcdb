package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsilgen/tsilc/internal/il"
	"github.com/tsilgen/tsilc/internal/image"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <image>",
	Short: "Disassemble a previously compiled image",
	Long: `Read back a .tsx image written by "tsilc compile" and print its
types, fields, and method bodies as human-readable IL.`,
	Args: cobra.ExactArgs(1),
	RunE: runDisasm,
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}

func runDisasm(_ *cobra.Command, args []string) error {
	asm, err := image.NewReader().ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", args[0], err)
	}
	il.NewDisassembler(asm, os.Stdout).Disassemble()
	return nil
}
