package prereq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// GetAllDependencies must return a topological order: every dependency
// appears before its dependent (spec.md §8's invariant on the
// prerequisite registry).
func TestRegistry_GetAllDependencies_TopologicalOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(Prerequisite{Name: "A"})
	r.Register(Prerequisite{Name: "B", Dependencies: []string{"A"}})
	r.Register(Prerequisite{Name: "C", Dependencies: []string{"B"}})

	order, err := r.GetAllDependencies("C")
	require.NoError(t, err)

	assert.Less(t, indexOf(order, "A"), indexOf(order, "B"))
	assert.Less(t, indexOf(order, "B"), indexOf(order, "C"))
}

func TestRegistry_GetAllDependencies_DiamondDependency(t *testing.T) {
	r := NewRegistry()
	r.Register(Prerequisite{Name: "base"})
	r.Register(Prerequisite{Name: "left", Dependencies: []string{"base"}})
	r.Register(Prerequisite{Name: "right", Dependencies: []string{"base"}})
	r.Register(Prerequisite{Name: "top", Dependencies: []string{"left", "right"}})

	order, err := r.GetAllDependencies("top")
	require.NoError(t, err)

	assert.Less(t, indexOf(order, "base"), indexOf(order, "left"))
	assert.Less(t, indexOf(order, "base"), indexOf(order, "right"))
	assert.Less(t, indexOf(order, "left"), indexOf(order, "top"))
	assert.Less(t, indexOf(order, "right"), indexOf(order, "top"))
}

func TestRegistry_GetAllDependencies_CircularDependency(t *testing.T) {
	r := NewRegistry()
	r.Register(Prerequisite{Name: "A", Dependencies: []string{"B"}})
	r.Register(Prerequisite{Name: "B", Dependencies: []string{"A"}})

	_, err := r.GetAllDependencies("A")
	require.Error(t, err)

	var cycleErr *ErrCircularDependency
	require.ErrorAs(t, err, &cycleErr)
}
