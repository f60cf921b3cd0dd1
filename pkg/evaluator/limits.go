package evaluator

// Limits holds the resource limits applied to every interpretation state.
type Limits struct {
	MaxDepth int // nested invocations; zero means DefaultMaxDepth
	MaxSteps int // steps per state; zero means unlimited
}

// DefaultMaxDepth bounds recursion when Limits.MaxDepth is unset.
const DefaultMaxDepth = 512

func (l Limits) depth() int {
	if l.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return l.MaxDepth
}

// usage tracks resource consumption of one state.
type usage struct {
	Steps int
	Depth int
}
