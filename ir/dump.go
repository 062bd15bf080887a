package ir

import (
	"io"

	"github.com/davecgh/go-spew/spew"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump writes the internal representation of fn to w, arenas included.
func Dump(w io.Writer, fn *Func) {
	dumper.Fdump(w, fn)
}
