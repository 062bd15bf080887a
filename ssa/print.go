package ssa

import (
	"io"
	"sort"

	"golang.org/x/tools/go/ssa"
)

// members is slice of ssa.Member. Used only for sorting by Pos.
type members []ssa.Member

func (m members) Len() int           { return len(m) }
func (m members) Less(i, j int) bool { return m[i].Pos() < m[j].Pos() }
func (m members) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }

func (m members) sort() { sort.Sort(m) }

// WriteTo writes the functions of the package to w in human readable SSA IR
// instruction format.
func (info *Info) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, f := range info.Funcs() {
		written, err := f.WriteTo(w)
		n += written
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
