package stdlib

import (
	"math"

	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// asNumbers returns the elements of a numeric or logical value.
func asNumbers(v evaluator.Value) ([]float64, []string, bool) {
	switch x := v.(type) {
	case evaluator.Numeric:
		return x.Data, x.Names, true
	case evaluator.Logical:
		out := make([]float64, x.Len())
		for i, b := range x.Data {
			if b {
				out[i] = 1
			}
		}
		return out, x.Names, true
	case evaluator.TimeSeries:
		return x.Data, nil, true
	case evaluator.Null:
		return nil, nil, true
	}
	return nil, nil, false
}

func dotNumbers(c *evaluator.Call) ([]float64, error) {
	var all []float64
	for _, d := range c.Dots() {
		nums, _, ok := asNumbers(d.Value)
		if !ok {
			return nil, c.Errorf(diagnostics.EArgType, "invalid 'type' (%s) of argument", evaluator.KindOf(d.Value))
		}
		all = append(all, nums...)
	}
	return all, nil
}

// sum(...) → number
func stdlibSum(c *evaluator.Call) (evaluator.Value, error) {
	nums, err := dotNumbers(c)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, f := range nums {
		total += f
	}
	return evaluator.NewNumber(total), nil
}

// max(...) → number
func stdlibMax(c *evaluator.Call) (evaluator.Value, error) {
	nums, err := dotNumbers(c)
	if err != nil {
		return nil, err
	}
	best := math.Inf(-1)
	for _, f := range nums {
		if f > best || math.IsNaN(f) {
			best = f
		}
	}
	return evaluator.NewNumber(best), nil
}

// min(...) → number
func stdlibMin(c *evaluator.Call) (evaluator.Value, error) {
	nums, err := dotNumbers(c)
	if err != nil {
		return nil, err
	}
	best := math.Inf(1)
	for _, f := range nums {
		if f < best || math.IsNaN(f) {
			best = f
		}
	}
	return evaluator.NewNumber(best), nil
}

// mean(x) → number
func stdlibMean(c *evaluator.Call) (evaluator.Value, error) {
	nums, _, _ := asNumbers(c.Arg("x"))
	if len(nums) == 0 {
		return evaluator.NewNumber(math.NaN()), nil
	}
	total := 0.0
	for _, f := range nums {
		total += f
	}
	return evaluator.NewNumber(total / float64(len(nums))), nil
}
