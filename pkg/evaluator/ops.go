package evaluator

import (
	"math"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// truthy interprets the first element of v as a condition.
func truthy(v Value, span *ast.Span) (bool, error) {
	if Length(v) == 0 {
		return false, evalErrorf(diagnostics.EType, span, "argument is of length zero")
	}
	switch x := v.(type) {
	case Logical:
		return x.Data[0], nil
	case Numeric:
		if math.IsNaN(x.Data[0]) {
			return false, evalErrorf(diagnostics.EType, span, "missing value where TRUE/FALSE needed")
		}
		return x.Data[0] != 0, nil
	}
	return false, evalErrorf(diagnostics.EType, span, "argument of kind %s is not interpretable as logical", KindOf(v))
}

// numbers returns the elements of a numeric or logical vector as floats.
func numbers(v Value) ([]float64, bool) {
	switch x := v.(type) {
	case Numeric:
		return x.Data, true
	case Logical:
		out := make([]float64, len(x.Data))
		for i, b := range x.Data {
			if b {
				out[i] = 1
			}
		}
		return out, true
	}
	return nil, false
}

func logicals(v Value) ([]bool, bool) {
	switch x := v.(type) {
	case Logical:
		return x.Data, true
	case Numeric:
		out := make([]bool, len(x.Data))
		for i, f := range x.Data {
			out[i] = f != 0
		}
		return out, true
	}
	return nil, false
}

func namesOf(v Value) []string {
	switch x := v.(type) {
	case Logical:
		return x.Names
	case Numeric:
		return x.Names
	case Character:
		return x.Names
	case Times:
		return x.Names
	case Durations:
		return x.Names
	case Intervals:
		return x.Names
	}
	return nil
}

// recycled applies f elementwise over a and b, recycling the shorter.
// The result is empty when either input is.
func recycled[A, B, R any](a []A, b []B, f func(A, B) R) []R {
	if len(a) == 0 || len(b) == 0 {
		return []R{}
	}
	n := max(len(a), len(b))
	out := make([]R, n)
	for i := range n {
		out[i] = f(a[i%len(a)], b[i%len(b)])
	}
	return out
}

func resultNames(l, r Value, n int) []string {
	if names := namesOf(l); len(names) == n {
		return names
	}
	if names := namesOf(r); len(names) == n {
		return names
	}
	return nil
}

func unaryOp(op ast.UnaryOp, v Value, span ast.Span) (Value, error) {
	switch op {
	case ast.OpLength:
		return NewNumber(float64(Length(v))), nil
	case ast.OpNeg:
		switch x := v.(type) {
		case Durations:
			out := make([]time.Duration, len(x.Data))
			for i, d := range x.Data {
				out[i] = -d
			}
			return Durations{Data: out, Names: x.Names}, nil
		case TimeSeries:
			out := make([]float64, len(x.Data))
			for i, f := range x.Data {
				out[i] = -f
			}
			return TimeSeries{Index: x.Index, Data: out}, nil
		}
		nums, ok := numbers(v)
		if !ok {
			return nil, evalErrorf(diagnostics.EType, &span, "invalid argument to unary operator")
		}
		out := make([]float64, len(nums))
		for i, f := range nums {
			out[i] = -f
		}
		return Numeric{Data: out, Names: namesOf(v)}, nil
	case ast.OpNot:
		bs, ok := logicals(v)
		if !ok {
			return nil, evalErrorf(diagnostics.EType, &span, "invalid argument type")
		}
		out := make([]bool, len(bs))
		for i, b := range bs {
			out[i] = !b
		}
		return Logical{Data: out, Names: namesOf(v)}, nil
	}
	return nil, evalErrorf(diagnostics.EType, &span, "unknown unary operator %q", string(op))
}

func binaryOp(op ast.BinaryOp, l, r Value, span ast.Span) (Value, error) {
	switch op {
	case ast.OpIndex:
		return index(l, r, span)
	case ast.OpAnd, ast.OpOr:
		a, okA := logicals(l)
		b, okB := logicals(r)
		if !okA || !okB {
			return nil, evalErrorf(diagnostics.EType, &span,
				"operations are possible only for numeric and logical types")
		}
		and := op == ast.OpAnd
		out := recycled(a, b, func(x, y bool) bool {
			if and {
				return x && y
			}
			return x || y
		})
		return Logical{Data: out, Names: resultNames(l, r, len(out))}, nil
	case ast.OpEqEq, ast.OpNeq, ast.OpLt, ast.OpLtEq, ast.OpGt, ast.OpGtEq:
		return compare(op, l, r, span)
	}
	return arith(op, l, r, span)
}

func arith(op ast.BinaryOp, l, r Value, span ast.Span) (Value, error) {
	if a, ok := numbers(l); ok {
		if b, ok := numbers(r); ok {
			out := recycled(a, b, func(x, y float64) float64 { return arithFloat(op, x, y) })
			return Numeric{Data: out, Names: resultNames(l, r, len(out))}, nil
		}
	}

	switch x := l.(type) {
	case TimeSeries:
		if b, ok := numbers(r); ok && len(b) == 1 {
			out := make([]float64, len(x.Data))
			for i, f := range x.Data {
				out[i] = arithFloat(op, f, b[0])
			}
			return TimeSeries{Index: x.Index, Data: out}, nil
		}
	case Times:
		switch y := r.(type) {
		case Durations:
			if op == ast.OpAdd || op == ast.OpSub {
				out := recycled(x.Data, y.Data, func(t time.Time, d time.Duration) time.Time {
					if op == ast.OpSub {
						d = -d
					}
					return t.Add(d)
				})
				return Times{Data: out, Names: resultNames(l, r, len(out))}, nil
			}
		case Times:
			if op == ast.OpSub {
				out := recycled(x.Data, y.Data, func(a, b time.Time) time.Duration { return a.Sub(b) })
				return Durations{Data: out, Names: resultNames(l, r, len(out))}, nil
			}
		}
	case Durations:
		switch y := r.(type) {
		case Durations:
			switch op {
			case ast.OpAdd, ast.OpSub:
				out := recycled(x.Data, y.Data, func(a, b time.Duration) time.Duration {
					if op == ast.OpSub {
						return a - b
					}
					return a + b
				})
				return Durations{Data: out, Names: resultNames(l, r, len(out))}, nil
			case ast.OpDiv:
				out := recycled(x.Data, y.Data, func(a, b time.Duration) float64 { return float64(a) / float64(b) })
				return Numeric{Data: out, Names: resultNames(l, r, len(out))}, nil
			}
		case Times:
			if op == ast.OpAdd {
				return arith(op, r, l, span)
			}
		default:
			if b, ok := numbers(r); ok && (op == ast.OpMul || op == ast.OpDiv) {
				out := recycled(x.Data, b, func(d time.Duration, f float64) time.Duration {
					if op == ast.OpDiv {
						return time.Duration(float64(d) / f)
					}
					return time.Duration(float64(d) * f)
				})
				return Durations{Data: out, Names: resultNames(l, r, len(out))}, nil
			}
		}
	default:
		if _, ok := r.(Durations); ok && op == ast.OpMul {
			if _, isNum := numbers(l); isNum {
				return arith(op, r, l, span)
			}
		}
	}
	return nil, evalErrorf(diagnostics.EType, &span,
		"non-numeric argument to binary operator: %s %s %s", KindOf(l), string(op), KindOf(r))
}

func arithFloat(op ast.BinaryOp, x, y float64) float64 {
	switch op {
	case ast.OpAdd:
		return x + y
	case ast.OpSub:
		return x - y
	case ast.OpMul:
		return x * y
	case ast.OpDiv:
		return x / y
	case ast.OpMod:
		if y == 0 {
			return math.NaN()
		}
		return x - math.Floor(x/y)*y
	case ast.OpPow:
		return math.Pow(x, y)
	}
	return math.NaN()
}

func ordered[T any](op ast.BinaryOp, cmp func(a, b T) int) func(a, b T) bool {
	return func(a, b T) bool {
		c := cmp(a, b)
		switch op {
		case ast.OpEqEq:
			return c == 0
		case ast.OpNeq:
			return c != 0
		case ast.OpLt:
			return c < 0
		case ast.OpLtEq:
			return c <= 0
		case ast.OpGt:
			return c > 0
		}
		return c >= 0
	}
}

func cmpOrdered[T float64 | string | time.Duration](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compare(op ast.BinaryOp, l, r Value, span ast.Span) (Value, error) {
	var out []bool
	switch x := l.(type) {
	case Character:
		y, ok := r.(Character)
		if !ok {
			break
		}
		out = recycled(x.Data, y.Data, ordered(op, cmpOrdered[string]))
	case Times:
		y, ok := r.(Times)
		if !ok {
			break
		}
		out = recycled(x.Data, y.Data, ordered(op, func(a, b time.Time) int { return a.Compare(b) }))
	case Durations:
		y, ok := r.(Durations)
		if !ok {
			break
		}
		out = recycled(x.Data, y.Data, ordered(op, cmpOrdered[time.Duration]))
	default:
		a, okA := numbers(l)
		b, okB := numbers(r)
		if okA && okB {
			less := ordered(op, cmpOrdered[float64])
			out = recycled(a, b, func(x, y float64) bool {
				if math.IsNaN(x) || math.IsNaN(y) {
					return op == ast.OpNeq
				}
				return less(x, y)
			})
		}
	}
	if out == nil {
		return nil, evalErrorf(diagnostics.EType, &span,
			"comparison (%s) is not possible between %s and %s", string(op), KindOf(l), KindOf(r))
	}
	return Logical{Data: out, Names: resultNames(l, r, len(out))}, nil
}

// index implements x[i] with 1-based positions, names, logical masks and,
// for time-indexed values, intervals.
func index(x, i Value, span ast.Span) (Value, error) {
	if iv, ok := i.(Intervals); ok && iv.Len() == 1 {
		switch v := x.(type) {
		case TimeSeries:
			return v.Window(iv.Data[0]), nil
		case Times:
			var pos []int
			for k, t := range v.Data {
				if iv.Data[0].Contains(t) {
					pos = append(pos, k)
				}
			}
			return pick(v, pos), nil
		}
	}

	n := Length(x)
	pos, err := positions(x, i, n, span)
	if err != nil {
		return nil, err
	}

	switch v := x.(type) {
	case Logical:
		return pick(v, pos), nil
	case Numeric:
		return pick(v, pos), nil
	case Character:
		return pick(v, pos), nil
	case Times:
		return pick(v, pos), nil
	case Durations:
		return pick(v, pos), nil
	case Intervals:
		return pick(v, pos), nil
	case TimeSeries:
		out := TimeSeries{Index: make([]time.Time, len(pos)), Data: make([]float64, len(pos))}
		for k, p := range pos {
			out.Index[k], out.Data[k] = v.Index[p], v.Data[p]
		}
		return out, nil
	case List:
		if len(pos) == 1 {
			return v.Items[pos[0]].Value, nil
		}
		items := make([]ListItem, len(pos))
		for k, p := range pos {
			items[k] = v.Items[p]
		}
		return List{Items: items}, nil
	}
	return nil, evalErrorf(diagnostics.EType, &span, "object of kind %s is not subsettable", KindOf(x))
}

func positions(x, i Value, n int, span ast.Span) ([]int, error) {
	outOfBounds := evalErrorf(diagnostics.ESubscript, &span, "subscript out of bounds")
	switch idx := i.(type) {
	case Numeric:
		pos := make([]int, 0, len(idx.Data))
		for _, f := range idx.Data {
			p := int(f)
			if float64(p) != f || p < 1 || p > n {
				return nil, outOfBounds
			}
			pos = append(pos, p-1)
		}
		return pos, nil
	case Logical:
		if n == 0 {
			return nil, nil
		}
		if len(idx.Data) == 0 || len(idx.Data) > n {
			return nil, outOfBounds
		}
		var pos []int
		for k := range n {
			if idx.Data[k%len(idx.Data)] {
				pos = append(pos, k)
			}
		}
		return pos, nil
	case Character:
		names := namesOf(x)
		if l, ok := x.(List); ok {
			names = make([]string, len(l.Items))
			for k, it := range l.Items {
				names[k] = it.Name
			}
		}
		pos := make([]int, 0, len(idx.Data))
	outer:
		for _, name := range idx.Data {
			for k, have := range names {
				if have == name {
					pos = append(pos, k)
					continue outer
				}
			}
			return nil, outOfBounds
		}
		return pos, nil
	}
	return nil, evalErrorf(diagnostics.EType, &span, "invalid subscript of kind %s", KindOf(i))
}

func pick[T Elem](v Vector[T], pos []int) Vector[T] {
	out := Vector[T]{Data: make([]T, len(pos))}
	if v.Names != nil {
		out.Names = make([]string, len(pos))
	}
	for k, p := range pos {
		out.Data[k] = v.Data[p]
		if v.Names != nil {
			out.Names[k] = v.Names[p]
		}
	}
	return out
}
