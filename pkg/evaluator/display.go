package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/thomasrohde/chrono/pkg/formatter"
)

// Display renders v the way the console echoes it.
func Display(v Value) string {
	switch x := v.(type) {
	case nil, Null:
		return "NULL"
	case Logical:
		return displayVector(x, "logical", func(b bool) string {
			if b {
				return "TRUE"
			}
			return "FALSE"
		})
	case Numeric:
		return displayVector(x, "numeric", FormatNumber)
	case Character:
		return displayVector(x, "character", strconv.Quote)
	case Times:
		return displayVector(x, "time", func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) })
	case Durations:
		return displayVector(x, "duration", time.Duration.String)
	case Intervals:
		return displayVector(x, "interval", formatInterval)
	case TimeSeries:
		if len(x.Data) == 0 {
			return "timeseries(0)"
		}
		var b strings.Builder
		for i, t := range x.Index {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s %s", t.UTC().Format(time.RFC3339Nano), FormatNumber(x.Data[i]))
		}
		return b.String()
	case List:
		return displayList(x, "")
	case *Closure:
		return formatter.Format(x.Fn)
	case *Builtin:
		return "<builtin: " + x.Name + ">"
	case *Connection:
		return "<connection " + x.Addr + ">"
	case *Timer:
		return fmt.Sprintf("<timer #%d>", x.ID)
	case ErrorValue:
		return "<error: " + x.Message + ">"
	case *Future:
		state := "pending"
		switch {
		case x.failed != nil:
			state = "failed"
		case x.done:
			state = "resolved"
		}
		return fmt.Sprintf("<future #%d: %s>", x.ID, state)
	case Language:
		return formatter.Format(x.Expr)
	}
	return fmt.Sprintf("<%T>", v)
}

// FormatNumber prints a number with up to seven significant digits.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', 7, 64)
}

func formatInterval(iv Interval) string {
	return "[" + iv.Start.UTC().Format(time.RFC3339Nano) + ", " + iv.End.UTC().Format(time.RFC3339Nano) + ")"
}

func displayVector[T Elem](v Vector[T], kind string, format func(T) string) string {
	if v.Len() == 0 {
		return kind + "(0)"
	}
	cells := make([]string, v.Len())
	for i, x := range v.Data {
		cells[i] = format(x)
	}
	if v.Names == nil {
		return "[1] " + strings.Join(cells, " ")
	}
	// names above values, right aligned per column
	var top, bottom []string
	for i, c := range cells {
		name := v.NameAt(i)
		w := max(len(name), len(c))
		top = append(top, pad(name, w))
		bottom = append(bottom, pad(c, w))
	}
	return strings.Join(top, " ") + "\n" + strings.Join(bottom, " ")
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return strings.Repeat(" ", w-len(s)) + s
}

func displayList(l List, prefix string) string {
	if len(l.Items) == 0 {
		return "list()"
	}
	var b strings.Builder
	for i, it := range l.Items {
		tag := prefix + "[[" + strconv.Itoa(i+1) + "]]"
		if it.Name != "" {
			tag = prefix + "$" + it.Name
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(tag)
		b.WriteByte('\n')
		if sub, ok := it.Value.(List); ok && len(sub.Items) > 0 {
			b.WriteString(displayList(sub, tag))
			continue
		}
		b.WriteString(Display(it.Value))
	}
	return b.String()
}
