package stdlib

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// paste(..., sep = " ", collapse = NULL) → character
func stdlibPaste(c *evaluator.Call) (evaluator.Value, error) {
	sep, err := c.String("sep")
	if err != nil {
		return nil, err
	}
	return paste(c, sep)
}

// paste0(..., collapse = NULL) → character
func stdlibPaste0(c *evaluator.Call) (evaluator.Value, error) {
	return paste(c, "")
}

// paste joins the arguments elementwise, recycling shorter ones.
func paste(c *evaluator.Call, sep string) (evaluator.Value, error) {
	var cols [][]string
	n := 0
	for _, d := range c.Dots() {
		s := asStrings(d.Value)
		if len(s) == 0 {
			continue
		}
		cols = append(cols, s)
		n = max(n, len(s))
	}
	out := make([]string, n)
	for i := range out {
		parts := make([]string, len(cols))
		for j, col := range cols {
			parts[j] = col[i%len(col)]
		}
		out[i] = strings.Join(parts, sep)
	}
	if collapse, ok := c.Arg("collapse").(evaluator.Character); ok && collapse.Len() > 0 {
		return evaluator.NewString(strings.Join(out, collapse.Data[0])), nil
	}
	return evaluator.Character{Data: out}, nil
}

// nchar(x) → numeric
func stdlibNchar(c *evaluator.Call) (evaluator.Value, error) {
	x := c.Arg("x").(evaluator.Character)
	out := make([]float64, x.Len())
	for i, s := range x.Data {
		out[i] = float64(utf8.RuneCountInString(s))
	}
	return evaluator.Numeric{Data: out, Names: x.Names}, nil
}

// toupper(x) → character
func stdlibToUpper(c *evaluator.Call) (evaluator.Value, error) {
	return mapStrings(c.Arg("x").(evaluator.Character), strings.ToUpper), nil
}

// tolower(x) → character
func stdlibToLower(c *evaluator.Call) (evaluator.Value, error) {
	return mapStrings(c.Arg("x").(evaluator.Character), strings.ToLower), nil
}

func mapStrings(x evaluator.Character, f func(string) string) evaluator.Value {
	out := make([]string, x.Len())
	for i, s := range x.Data {
		out[i] = f(s)
	}
	return evaluator.Character{Data: out, Names: x.Names}
}

// asStrings converts the elements of v to strings the way paste does.
func asStrings(v evaluator.Value) []string {
	switch x := v.(type) {
	case evaluator.Character:
		return x.Data
	case evaluator.Numeric:
		out := make([]string, x.Len())
		for i, f := range x.Data {
			out[i] = evaluator.FormatNumber(f)
		}
		return out
	case evaluator.Logical:
		out := make([]string, x.Len())
		for i, b := range x.Data {
			out[i] = "FALSE"
			if b {
				out[i] = "TRUE"
			}
		}
		return out
	case evaluator.Times:
		out := make([]string, x.Len())
		for i, t := range x.Data {
			out[i] = t.UTC().Format(time.RFC3339Nano)
		}
		return out
	case evaluator.Durations:
		out := make([]string, x.Len())
		for i, d := range x.Data {
			out[i] = d.String()
		}
		return out
	case evaluator.Null:
		return nil
	case evaluator.List:
		var out []string
		for _, it := range x.Items {
			out = append(out, strings.Join(asStrings(it.Value), " "))
		}
		return out
	}
	return []string{evaluator.Display(v)}
}
