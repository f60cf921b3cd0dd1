package stdlib

import (
	"math"
	"reflect"
	"strings"

	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// is.<kind>(x) → logical
func isKind(k evaluator.Kind) func(c *evaluator.Call) (evaluator.Value, error) {
	return func(c *evaluator.Call) (evaluator.Value, error) {
		return evaluator.NewBool(evaluator.KindOf(c.Arg("x"))&k != 0), nil
	}
}

// identical(x, y) → logical
func stdlibIdentical(c *evaluator.Call) (evaluator.Value, error) {
	return evaluator.NewBool(identical(c.Arg("x"), c.Arg("y"))), nil
}

// identical compares values structurally; closures and other handles
// compare by identity. NaN equals NaN.
func identical(a, b evaluator.Value) bool {
	if evaluator.KindOf(a) != evaluator.KindOf(b) {
		return false
	}
	switch x := a.(type) {
	case evaluator.Numeric:
		y := b.(evaluator.Numeric)
		if len(x.Data) != len(y.Data) || !reflect.DeepEqual(x.Names, y.Names) {
			return false
		}
		for i := range x.Data {
			if x.Data[i] != y.Data[i] && !(math.IsNaN(x.Data[i]) && math.IsNaN(y.Data[i])) {
				return false
			}
		}
		return true
	case evaluator.List:
		y := b.(evaluator.List)
		if len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if x.Items[i].Name != y.Items[i].Name || !identical(x.Items[i].Value, y.Items[i].Value) {
				return false
			}
		}
		return true
	case *evaluator.Closure, *evaluator.Builtin, *evaluator.Connection, *evaluator.Timer, *evaluator.Future:
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// typeof(x) → character
func stdlibTypeof(c *evaluator.Call) (evaluator.Value, error) {
	return evaluator.NewString(strings.ToLower(evaluator.KindOf(c.Arg("x")).String())), nil
}

// resolved(x) → whether a future has its value; TRUE for anything else
func stdlibResolved(c *evaluator.Call) (evaluator.Value, error) {
	if f, ok := c.Arg("x").(*evaluator.Future); ok {
		return evaluator.NewBool(f.Done()), nil
	}
	return evaluator.NewBool(true), nil
}
