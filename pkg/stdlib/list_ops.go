package stdlib

import (
	"fmt"
	"math"
	"time"

	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// c(...) → vector combining the arguments, or a list when any is a list
func stdlibC(c *evaluator.Call) (evaluator.Value, error) {
	dots := c.Dots()
	var kinds evaluator.Kind
	named := false
	for _, d := range dots {
		kinds |= evaluator.KindOf(d.Value)
		if d.Name != "" {
			named = true
		}
	}
	kinds &^= evaluator.KindNull
	if kinds == 0 {
		return evaluator.Null{}, nil
	}

	if kinds&evaluator.KindList != 0 || kinds&^(evaluator.KindLogical|evaluator.KindNumeric|evaluator.KindCharacter|evaluator.KindTime|evaluator.KindDuration|evaluator.KindInterval) != 0 {
		var items []evaluator.ListItem
		for _, d := range dots {
			if l, ok := d.Value.(evaluator.List); ok {
				items = append(items, l.Items...)
				continue
			}
			if _, ok := d.Value.(evaluator.Null); ok {
				continue
			}
			items = append(items, evaluator.ListItem{Name: d.Name, Value: d.Value})
		}
		return evaluator.List{Items: items}, nil
	}

	switch kinds {
	case evaluator.KindLogical:
		return combine(dots, named, func(v evaluator.Value) ([]bool, []string) {
			l := v.(evaluator.Logical)
			return l.Data, l.Names
		}), nil
	case evaluator.KindTime:
		return combine(dots, named, func(v evaluator.Value) ([]time.Time, []string) {
			t := v.(evaluator.Times)
			return t.Data, t.Names
		}), nil
	case evaluator.KindDuration:
		return combine(dots, named, func(v evaluator.Value) ([]time.Duration, []string) {
			d := v.(evaluator.Durations)
			return d.Data, d.Names
		}), nil
	case evaluator.KindInterval:
		return combine(dots, named, func(v evaluator.Value) ([]evaluator.Interval, []string) {
			iv := v.(evaluator.Intervals)
			return iv.Data, iv.Names
		}), nil
	case evaluator.KindLogical | evaluator.KindNumeric, evaluator.KindNumeric:
		return combine(dots, named, func(v evaluator.Value) ([]float64, []string) {
			nums, names, _ := asNumbers(v)
			return nums, names
		}), nil
	case evaluator.KindLogical | evaluator.KindCharacter,
		evaluator.KindNumeric | evaluator.KindCharacter,
		evaluator.KindLogical | evaluator.KindNumeric | evaluator.KindCharacter,
		evaluator.KindCharacter:
		return combine(dots, named, func(v evaluator.Value) ([]string, []string) {
			return asStrings(v), namesOf(v)
		}), nil
	}
	return nil, c.Errorf(diagnostics.EType, "cannot combine values of kind %s", kinds)
}

// combine concatenates the non-NULL arguments. An argument name applies to
// a length-one argument and prefixes the names of longer ones.
func combine[T evaluator.Elem](dots []evaluator.EllipsisArg, named bool, parts func(evaluator.Value) ([]T, []string)) evaluator.Vector[T] {
	out := evaluator.Vector[T]{Data: []T{}}
	hasNames := named
	for _, d := range dots {
		if _, ok := d.Value.(evaluator.Null); ok {
			continue
		}
		if _, names := parts(d.Value); names != nil {
			hasNames = true
		}
	}
	for _, d := range dots {
		if _, ok := d.Value.(evaluator.Null); ok {
			continue
		}
		data, names := parts(d.Value)
		out.Data = append(out.Data, data...)
		if !hasNames {
			continue
		}
		for i := range data {
			name := ""
			switch {
			case names != nil && d.Name != "":
				name = d.Name + "." + names[i]
			case names != nil:
				name = names[i]
			case d.Name != "" && len(data) == 1:
				name = d.Name
			case d.Name != "":
				name = fmt.Sprintf("%s%d", d.Name, i+1)
			}
			out.Names = append(out.Names, name)
		}
	}
	return out
}

// list(...) → list of the arguments
func stdlibList(c *evaluator.Call) (evaluator.Value, error) {
	dots := c.Dots()
	items := make([]evaluator.ListItem, len(dots))
	for i, d := range dots {
		items[i] = evaluator.ListItem{Name: d.Name, Value: d.Value}
	}
	return evaluator.List{Items: items}, nil
}

// append(x: list, values) → list
func stdlibAppend(c *evaluator.Call) (evaluator.Value, error) {
	var items []evaluator.ListItem
	if l, ok := c.Arg("x").(evaluator.List); ok {
		items = append(items, l.Items...)
	}
	if l, ok := c.Arg("values").(evaluator.List); ok {
		items = append(items, l.Items...)
	} else {
		items = append(items, evaluator.ListItem{Value: c.Arg("values")})
	}
	return evaluator.List{Items: items}, nil
}

// length(x) → number
func stdlibLength(c *evaluator.Call) (evaluator.Value, error) {
	return evaluator.NewNumber(float64(evaluator.Length(c.Arg("x")))), nil
}

// names(x) → character or NULL
func stdlibNames(c *evaluator.Call) (evaluator.Value, error) {
	x := c.Arg("x")
	if l, ok := x.(evaluator.List); ok {
		names := make([]string, len(l.Items))
		named := false
		for i, it := range l.Items {
			names[i] = it.Name
			named = named || it.Name != ""
		}
		if !named {
			return evaluator.Null{}, nil
		}
		return evaluator.Character{Data: names}, nil
	}
	if names := namesOf(x); names != nil {
		return evaluator.Character{Data: names}, nil
	}
	return evaluator.Null{}, nil
}

const maxSeq = 1_000_000

// seq(from, to, by = 1) → numeric
func stdlibSeq(c *evaluator.Call) (evaluator.Value, error) {
	from, err := c.Number("from")
	if err != nil {
		return nil, err
	}
	to, err := c.Number("to")
	if err != nil {
		return nil, err
	}
	by, err := c.Number("by")
	if err != nil {
		return nil, err
	}
	if by == 0 || math.IsNaN(by) || (to-from)/by < 0 {
		return nil, c.Errorf(diagnostics.EArgType, "wrong sign in 'by' argument")
	}
	count := int(math.Floor((to-from)/by+1e-10)) + 1
	if count > maxSeq {
		return nil, c.Errorf(diagnostics.EArgType, "seq too large: %d items", count)
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = from + float64(i)*by
	}
	return evaluator.Numeric{Data: out}, nil
}

// seq_len(n) → 1..n
func stdlibSeqLen(c *evaluator.Call) (evaluator.Value, error) {
	n, err := c.Number("length.out")
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxSeq || n != math.Trunc(n) {
		return nil, c.Errorf(diagnostics.EArgType, "argument of length 0 or invalid length %s", evaluator.FormatNumber(n))
	}
	out := make([]float64, int(n))
	for i := range out {
		out[i] = float64(i + 1)
	}
	return evaluator.Numeric{Data: out}, nil
}

func namesOf(v evaluator.Value) []string {
	switch x := v.(type) {
	case evaluator.Logical:
		return x.Names
	case evaluator.Numeric:
		return x.Names
	case evaluator.Character:
		return x.Names
	case evaluator.Times:
		return x.Names
	case evaluator.Durations:
		return x.Names
	case evaluator.Intervals:
		return x.Names
	}
	return nil
}
