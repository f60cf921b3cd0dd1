package evaluator_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/thomasrohde/chrono/pkg/evaluator"
)

func TestVectorWithCopies(t *testing.T) {
	v := evaluator.Numeric{Data: []float64{1, 2, 3}}
	w := v.With(1, 20)
	if v.Data[1] != 2 {
		t.Errorf("With modified the original: %v", v.Data)
	}
	if w.Data[1] != 20 {
		t.Errorf("With result = %v", w.Data)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		value evaluator.Value
		kind  evaluator.Kind
		name  string
	}{
		{evaluator.Null{}, evaluator.KindNull, "NULL"},
		{evaluator.NewBool(true), evaluator.KindLogical, "logical"},
		{evaluator.NewNumber(1), evaluator.KindNumeric, "numeric"},
		{evaluator.NewString("a"), evaluator.KindCharacter, "character"},
		{evaluator.Times{Data: []time.Time{time.Unix(0, 0)}}, evaluator.KindTime, "time"},
		{evaluator.Durations{Data: []time.Duration{time.Second}}, evaluator.KindDuration, "duration"},
		{evaluator.TimeSeries{}, evaluator.KindTimeSeries, "timeseries"},
		{evaluator.NewList(), evaluator.KindList, "list"},
		{&evaluator.Connection{ID: "c"}, evaluator.KindConnection, "connection"},
		{evaluator.NewFuture(1, "c"), evaluator.KindFuture, "future"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluator.KindOf(tt.value); got != tt.kind {
				t.Errorf("KindOf = %s, want %s", got, tt.kind)
			}
			if got := tt.kind.String(); got != tt.name {
				t.Errorf("String = %q, want %q", got, tt.name)
			}
		})
	}
	if got := (evaluator.KindNumeric | evaluator.KindCharacter).String(); got != "numeric or character" {
		t.Errorf("combined kind = %q", got)
	}
}

func TestLength(t *testing.T) {
	if n := evaluator.Length(evaluator.Null{}); n != 0 {
		t.Errorf("Length(NULL) = %d", n)
	}
	if n := evaluator.Length(evaluator.Character{Data: []string{"a", "b"}}); n != 2 {
		t.Errorf("Length(character) = %d", n)
	}
	if n := evaluator.Length(evaluator.NewList(evaluator.ListItem{Value: evaluator.Null{}})); n != 1 {
		t.Errorf("Length(list) = %d", n)
	}
}

func TestTransmissible(t *testing.T) {
	ok := []evaluator.Value{
		evaluator.Null{},
		evaluator.NewNumber(1),
		evaluator.NewList(evaluator.ListItem{Name: "a", Value: evaluator.NewString("x")}),
		evaluator.ErrorValue{Code: "E_USER", Message: "m"},
	}
	for _, v := range ok {
		if !evaluator.Transmissible(v) {
			t.Errorf("%s should be transmissible", evaluator.Display(v))
		}
	}
	bad := []evaluator.Value{
		&evaluator.Closure{},
		&evaluator.Builtin{Name: "b"},
		evaluator.NewFuture(1, "c"),
		&evaluator.Connection{ID: "c"},
		&evaluator.Timer{ID: 1},
		evaluator.Language{},
		evaluator.NewList(evaluator.ListItem{Value: &evaluator.Connection{}}),
	}
	for _, v := range bad {
		if evaluator.Transmissible(v) {
			t.Errorf("%T should not be transmissible", v)
		}
	}
}

func TestTimeSeriesWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := evaluator.TimeSeries{
		Index: []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)},
		Data:  []float64{1, 2, 3, 4},
	}
	got := ts.Window(evaluator.Interval{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)})
	if len(got.Data) != 2 || got.Data[0] != 2 || got.Data[1] != 3 {
		t.Errorf("window = %v, want [2 3] (end is exclusive)", got.Data)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		value evaluator.Value
		want  string
	}{
		{evaluator.Null{}, "NULL"},
		{evaluator.NewNumber(42), "[1] 42"},
		{evaluator.Numeric{Data: []float64{1.5, math.Inf(1), math.NaN()}}, "[1] 1.5 Inf NaN"},
		{evaluator.Numeric{}, "numeric(0)"},
		{evaluator.Logical{Data: []bool{true, false}}, "[1] TRUE FALSE"},
		{evaluator.NewString("hi"), `[1] "hi"`},
		{evaluator.Numeric{Data: []float64{1, 22}, Names: []string{"alpha", "b"}}, "alpha  b\n    1 22"},
		{evaluator.NewList(), "list()"},
		{evaluator.NewList(evaluator.ListItem{Name: "a", Value: evaluator.NewNumber(1)}, evaluator.ListItem{Value: evaluator.NewNumber(2)}), "$a\n[1] 1\n\n[[2]]\n[1] 2"},
		{&evaluator.Builtin{Name: "c"}, "<builtin: c>"},
		{evaluator.ErrorValue{Message: "boom"}, "<error: boom>"},
		{evaluator.NewFuture(7, "c"), "<future #7: pending>"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := evaluator.Display(tt.value); got != tt.want {
				t.Errorf("Display = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueJSON(t *testing.T) {
	values := []evaluator.Value{
		evaluator.Null{},
		evaluator.Numeric{Data: []float64{1, 2.5, math.Inf(-1)}, Names: []string{"a", "b", "c"}},
		evaluator.Character{Data: []string{"x", ""}},
		evaluator.Logical{Data: []bool{true}},
		evaluator.Times{Data: []time.Time{time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}},
		evaluator.Durations{Data: []time.Duration{90 * time.Second}},
		evaluator.NewList(evaluator.ListItem{Name: "n", Value: evaluator.NewNumber(1)}, evaluator.ListItem{Value: evaluator.Null{}}),
		evaluator.ErrorValue{Code: "E_USER", Message: "bad"},
	}
	for _, v := range values {
		b, err := evaluator.ValueToJSON(v)
		if err != nil {
			t.Fatalf("ValueToJSON(%s): %v", evaluator.Display(v), err)
		}
		back, err := evaluator.ValueFromJSON(b)
		if err != nil {
			t.Fatalf("ValueFromJSON(%s): %v", b, err)
		}
		if got, want := evaluator.Display(back), evaluator.Display(v); got != want {
			t.Errorf("round trip of %s: got %q, want %q", b, got, want)
		}
	}
}

func TestValueJSON_NotTransmissible(t *testing.T) {
	_, err := evaluator.ValueToJSON(&evaluator.Closure{})
	if err == nil || !strings.Contains(err.Error(), "closure") {
		t.Errorf("err = %v, want a closure error", err)
	}
}
