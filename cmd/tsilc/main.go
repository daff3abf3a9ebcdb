// Command tsilc is the CLI collaborator named in spec.md §6: it wires the
// Compiler Driver (component G) to a set of demo programs and the Image
// Writer (component H), since the parser/type-checker front end that would
// normally hand the driver a real typed AST is out of this repo's scope.
package main

import (
	"os"

	"github.com/tsilgen/tsilc/cmd/tsilc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
