package stdlib

import (
	"math"
	"strings"
	"time"

	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// Layouts accepted by as.time, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Sys.time() → time
func (r *Registry) stdlibSysTime(c *evaluator.Call) (evaluator.Value, error) {
	return evaluator.Times{Data: []time.Time{r.now().UTC()}}, nil
}

// as.time(x) → time; numbers are seconds since the Unix epoch
func stdlibAsTime(c *evaluator.Call) (evaluator.Value, error) {
	switch x := c.Arg("x").(type) {
	case evaluator.Times:
		return x, nil
	case evaluator.Numeric:
		out := make([]time.Time, x.Len())
		for i, f := range x.Data {
			sec, frac := math.Modf(f)
			out[i] = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		return evaluator.Times{Data: out, Names: x.Names}, nil
	case evaluator.Character:
		out := make([]time.Time, x.Len())
		for i, s := range x.Data {
			t, ok := parseTime(s)
			if !ok {
				return nil, c.Errorf(diagnostics.EArgType, "character string is not in a standard unambiguous format: %q", s)
			}
			out[i] = t
		}
		return evaluator.Times{Data: out, Names: x.Names}, nil
	}
	return nil, c.Errorf(diagnostics.EArgType, "cannot convert to time")
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var durationUnits = map[string]time.Duration{
	"ms":    time.Millisecond,
	"secs":  time.Second,
	"mins":  time.Minute,
	"hours": time.Hour,
	"days":  24 * time.Hour,
	"weeks": 7 * 24 * time.Hour,
}

// as.duration(x, units = "secs") → duration
func stdlibAsDuration(c *evaluator.Call) (evaluator.Value, error) {
	units, err := c.String("units")
	if err != nil {
		return nil, err
	}
	unit, ok := durationUnits[units]
	if !ok {
		return nil, c.Errorf(diagnostics.EArgType, "invalid units specified: %q", units)
	}
	switch x := c.Arg("x").(type) {
	case evaluator.Durations:
		return x, nil
	case evaluator.Numeric:
		out := make([]time.Duration, x.Len())
		for i, f := range x.Data {
			out[i] = time.Duration(f * float64(unit))
		}
		return evaluator.Durations{Data: out, Names: x.Names}, nil
	case evaluator.Character:
		out := make([]time.Duration, x.Len())
		for i, s := range x.Data {
			d, err := time.ParseDuration(strings.TrimSpace(s))
			if err != nil {
				return nil, c.Errorf(diagnostics.EArgType, "invalid duration %q", s)
			}
			out[i] = d
		}
		return evaluator.Durations{Data: out, Names: x.Names}, nil
	}
	return nil, c.Errorf(diagnostics.EArgType, "cannot convert to duration")
}

// interval(from, to) → interval; to may be an end time or a length
func stdlibInterval(c *evaluator.Call) (evaluator.Value, error) {
	from := c.Arg("from").(evaluator.Times)
	if from.Len() == 0 {
		return evaluator.Intervals{Data: []evaluator.Interval{}}, nil
	}
	var ends []time.Time
	switch to := c.Arg("to").(type) {
	case evaluator.Times:
		ends = to.Data
	case evaluator.Durations:
		for i, d := range to.Data {
			ends = append(ends, from.Data[i%from.Len()].Add(d))
		}
	}
	if len(ends) == 0 {
		return evaluator.Intervals{Data: []evaluator.Interval{}}, nil
	}
	n := max(from.Len(), len(ends))
	out := make([]evaluator.Interval, n)
	for i := range out {
		start, end := from.Data[i%from.Len()], ends[i%len(ends)]
		if end.Before(start) {
			return nil, c.Errorf(diagnostics.EArgType, "interval ends before it starts")
		}
		out[i] = evaluator.Interval{Start: start, End: end}
	}
	return evaluator.Intervals{Data: out}, nil
}

// ts(times, values) → timeseries
func stdlibTs(c *evaluator.Call) (evaluator.Value, error) {
	times := c.Arg("times").(evaluator.Times)
	values := c.Arg("values").(evaluator.Numeric)
	if times.Len() != values.Len() {
		return nil, c.Errorf(diagnostics.EArgType, "'times' and 'values' lengths differ (%d and %d)", times.Len(), values.Len())
	}
	for i := 1; i < times.Len(); i++ {
		if !times.Data[i].After(times.Data[i-1]) {
			return nil, c.Errorf(diagnostics.EArgType, "'times' must be strictly increasing")
		}
	}
	return evaluator.TimeSeries{Index: times.Data, Data: values.Data}, nil
}

// window(x, interval) → timeseries restricted to the interval
func stdlibWindow(c *evaluator.Call) (evaluator.Value, error) {
	ts := c.Arg("x").(evaluator.TimeSeries)
	iv := c.Arg("interval").(evaluator.Intervals)
	if iv.Len() != 1 {
		return nil, c.Errorf(diagnostics.EArgType, "invalid 'interval' argument: expected a single interval")
	}
	return ts.Window(iv.Data[0]), nil
}
