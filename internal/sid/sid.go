// Package sid assigns stable, dense identities to AST nodes that the
// compiler driver's registries key on (arrow functions, async functions and
// their nested arrows). Node identity, not node structure, is what matters:
// two syntactically identical arrows appearing twice in source are distinct
// nodes and must resolve to distinct display classes / state machines.
package sid

// ID is a dense identity assigned to an AST node by an Arena. The zero value
// is never issued by Arena.Assign, so ID(0) can be used as a "no node" marker.
type ID uint32

// Arena hands out monotonically increasing IDs. It replaces pointer-identity
// maps (map[*ast.Arrow]T) with map[sid.ID]T or slices indexed by ID, which
// stay stable across copies and are trivially loggable.
type Arena struct {
	next ID
}

// NewArena creates an empty arena. IDs start at 1.
func NewArena() *Arena {
	return &Arena{next: 1}
}

// Assign returns a fresh ID. Call once per node at the point the node first
// becomes relevant to a registry (for arrows: when the closure analyzer
// visits it; for functions: when phase 4 defines their stub).
func (a *Arena) Assign() ID {
	id := a.next
	a.next++
	return id
}

// Len reports how many IDs have been handed out.
func (a *Arena) Len() int {
	return int(a.next - 1)
}
