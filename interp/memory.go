package interp

import (
	"github.com/pkg/errors"
)

// maxIndex is the largest element index an address can carry.
const maxIndex = 1<<32 - 1

// Memory is a set of integer arrays. A pointer to element i of array k is
// (k+1)<<32 | i, so adding an index to a pointer addresses a later element
// of the same array.
type Memory struct {
	arrays [][]int64
}

// NewMemory returns an empty memory.
func NewMemory() *Memory { return &Memory{} }

// Alloc creates a zeroed array of n elements and returns a pointer to its
// first element.
func (m *Memory) Alloc(n int) int64 {
	m.arrays = append(m.arrays, make([]int64, n))
	return int64(len(m.arrays)) << 32
}

// AllocWith creates an array holding a copy of vals.
func (m *Memory) AllocWith(vals ...int64) int64 {
	p := m.Alloc(len(vals))
	copy(m.arrays[len(m.arrays)-1], vals)
	return p
}

func (m *Memory) locate(p int64) ([]int64, int, error) {
	k, i := p>>32-1, p&maxIndex
	if k < 0 || k >= int64(len(m.arrays)) || i >= int64(len(m.arrays[k])) {
		return nil, 0, errors.Wrapf(ErrBadAddress, "%#x", p)
	}
	return m.arrays[k], int(i), nil
}

// Load reads the element p points to.
func (m *Memory) Load(p int64) (int64, error) {
	a, i, err := m.locate(p)
	if err != nil {
		return 0, err
	}
	return a[i], nil
}

// Store writes v to the element p points to.
func (m *Memory) Store(p, v int64) error {
	a, i, err := m.locate(p)
	if err != nil {
		return err
	}
	a[i] = v
	return nil
}

// Array returns the array p points into.
func (m *Memory) Array(p int64) []int64 {
	k := p>>32 - 1
	if k < 0 || k >= int64(len(m.arrays)) {
		return nil
	}
	return m.arrays[k]
}

// Clone returns a deep copy of m. Pointers into m are valid in the copy.
func (m *Memory) Clone() *Memory {
	c := &Memory{arrays: make([][]int64, len(m.arrays))}
	for i, a := range m.arrays {
		c.arrays[i] = append([]int64(nil), a...)
	}
	return c
}

// Snapshot returns a copy of every array.
func (m *Memory) Snapshot() [][]int64 { return m.Clone().arrays }
