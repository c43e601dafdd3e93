package landmark

import "fmt"

// canonical106 maps the detector's 106-point landmark order to the canonical
// mesh vertex order used by the renderer.
var canonical106 = [106]int{
	16, 53, 101, 73, 91, 6, 5, 4, 3, 2,
	1, 0, 57, 32, 30, 31, 28, 29, 26, 33,
	61, 43, 45, 44, 38, 99, 88, 58, 37, 35,
	92, 82, 93, 89, 72, 78, 98, 85, 87, 86,
	97, 75, 100, 76, 68, 84, 49, 62, 71, 24,
	90, 63, 77, 54, 69, 104, 25, 12, 66, 55,
	67, 96, 64, 103, 94, 95, 8, 56, 27, 46,
	40, 70, 74, 39, 42, 41, 15, 14, 13, 36,
	11, 10, 9, 65, 34, 60, 51, 50, 47, 48,
	80, 79, 81, 83, 52, 18, 19, 17, 22, 23,
	20, 21, 7, 102, 59, 105,
}

// Canonical106 is the permutation table for 106-point detectors.
var Canonical106 = MustTable(canonical106[:])

// Table is a permutation from detector landmark index to vertex index.
type Table struct {
	forward []int
	inverse []int
}

// NewTable validates that forward is a bijection over [0, len(forward)) and
// precomputes its inverse.
func NewTable(forward []int) (*Table, error) {
	n := len(forward)
	inverse := make([]int, n)
	for i := range inverse {
		inverse[i] = -1
	}
	for i, v := range forward {
		if v < 0 || v >= n {
			return nil, fmt.Errorf("landmark %d maps to vertex %d outside [0,%d)", i, v, n)
		}
		if inverse[v] != -1 {
			return nil, fmt.Errorf("vertex %d is the target of landmarks %d and %d", v, inverse[v], i)
		}
		inverse[v] = i
	}

	fwd := make([]int, n)
	copy(fwd, forward)
	return &Table{forward: fwd, inverse: inverse}, nil
}

// MustTable is NewTable for package-level tables; it panics on an invalid table.
func MustTable(forward []int) *Table {
	t, err := NewTable(forward)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the size of the table's domain
func (t *Table) Len() int {
	return len(t.forward)
}

// Transform returns the vertex slot for detector landmark i, or -1 when i is
// outside the table's domain.
func (t *Table) Transform(i int) int {
	if i < 0 || i >= len(t.forward) {
		return -1
	}
	return t.forward[i]
}

// Inverse returns the detector landmark that lands in vertex v, or -1.
func (t *Table) Inverse(v int) int {
	if v < 0 || v >= len(t.inverse) {
		return -1
	}
	return t.inverse[v]
}
