package fusion

import (
	"fmt"

	"github.com/nickng/loopopt/loop"
)

// Stage is one of the legality checks run on a pair of loops.
type Stage uint8

const (
	Adjacency Stage = iota
	TripCount
	ControlFlow
	DependenceSafety
)

var stageNames = [...]string{
	Adjacency:        "adjacency",
	TripCount:        "trip count",
	ControlFlow:      "control flow",
	DependenceSafety: "dependence",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// Rejection is the reason a pair of loops cannot be fused.
type Rejection struct {
	Stage  Stage
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Stage, r.Reason)
}

// CanFuse runs the legality checks on a, followed by b, cheapest first, and
// returns a *Rejection from the first one failing, or nil if b can be fused
// into a.
func CanFuse(an Analyses, a, b *loop.Loop) error {
	if !AreAdjacent(a, b) {
		return &Rejection{Stage: Adjacency, Reason: "not adjacent"}
	}
	if why := interveningWork(an, a, b); why != "" {
		return &Rejection{Stage: Adjacency, Reason: why}
	}
	if why := tripCountMismatch(an, a, b); why != "" {
		return &Rejection{Stage: TripCount, Reason: why}
	}
	if why := controlFlowMismatch(an, a, b); why != "" {
		return &Rejection{Stage: ControlFlow, Reason: why}
	}
	if why := unsafeDependence(an, a, b); why != "" {
		return &Rejection{Stage: DependenceSafety, Reason: why}
	}
	return nil
}
