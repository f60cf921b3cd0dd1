// Package evaluator implements the chrono continuation-passing evaluator.
package evaluator

import (
	"strings"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
)

// Value is the interface for all runtime values.
// Use the sealed marker method to restrict implementations to this package.
type Value interface {
	value() // sealed marker
}

// Null represents the NULL value.
type Null struct{}

func (Null) value() {}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Elem is the set of element types a Vector can hold.
type Elem interface {
	bool | float64 | string | time.Time | time.Duration | Interval
}

// Vector is a dense, optionally named, immutable array.
// Operations never modify Data in place; With returns a copy.
type Vector[T Elem] struct {
	Data  []T
	Names []string // nil or len(Data)
}

func (Vector[T]) value() {}

// Len returns the number of elements.
func (v Vector[T]) Len() int { return len(v.Data) }

// With returns a copy of v with element i replaced by x.
func (v Vector[T]) With(i int, x T) Vector[T] {
	data := make([]T, len(v.Data))
	copy(data, v.Data)
	data[i] = x
	return Vector[T]{Data: data, Names: v.Names}
}

// NameAt returns the name of element i or "".
func (v Vector[T]) NameAt(i int) string {
	if v.Names == nil || i >= len(v.Names) {
		return ""
	}
	return v.Names[i]
}

type (
	Logical   = Vector[bool]
	Numeric   = Vector[float64]
	Character = Vector[string]
	Times     = Vector[time.Time]
	Durations = Vector[time.Duration]
	Intervals = Vector[Interval]
)

// TimeSeries is a numeric series indexed by time.
type TimeSeries struct {
	Index []time.Time
	Data  []float64
}

func (TimeSeries) value() {}

// Window returns the points whose time falls inside iv.
func (ts TimeSeries) Window(iv Interval) TimeSeries {
	var out TimeSeries
	for i, t := range ts.Index {
		if iv.Contains(t) {
			out.Index = append(out.Index, t)
			out.Data = append(out.Data, ts.Data[i])
		}
	}
	return out
}

// ListItem is one (optionally named) element of a List.
type ListItem struct {
	Name  string
	Value Value
}

// List is an ordered sequence of name/value pairs. Names need not be unique.
type List struct {
	Items []ListItem
}

func (List) value() {}

// Get returns the first item named name.
func (l List) Get(name string) (Value, bool) {
	for _, it := range l.Items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// Closure is a function literal together with its defining frame.
type Closure struct {
	Fn   *ast.FuncLit
	Env  *Frame
	Name string // set at first binding, for traces and messages
}

func (*Closure) value() {}

// Connection identifies a peer session.
type Connection struct {
	ID   string // session id
	Addr string
}

func (*Connection) value() {}

// Timer is a scheduled evaluation owned by the runtime.
type Timer struct {
	ID       uint64
	Due      time.Time
	Expr     ast.Expr
	Canceled bool
}

func (*Timer) value() {}

// ErrorValue is an error carried as data, for example a remote failure.
type ErrorValue struct {
	Code    string
	Message string
}

func (ErrorValue) value() {}

// Language is unevaluated code bound to the frame it should run in.
type Language struct {
	Expr  ast.Expr
	Frame *Frame
}

func (Language) value() {}

// NewNumber creates a length-one numeric vector.
func NewNumber(n float64) Value {
	return Numeric{Data: []float64{n}}
}

// NewString creates a length-one character vector.
func NewString(s string) Value {
	return Character{Data: []string{s}}
}

// NewBool creates a length-one logical vector.
func NewBool(b bool) Value {
	return Logical{Data: []bool{b}}
}

// NewList creates a list of items.
func NewList(items ...ListItem) Value {
	return List{Items: items}
}

// Kind is a bit set of value kinds, used for native argument checks.
type Kind uint32

const (
	KindNull Kind = 1 << iota
	KindLogical
	KindNumeric
	KindCharacter
	KindTime
	KindDuration
	KindInterval
	KindTimeSeries
	KindList
	KindClosure
	KindBuiltin
	KindConnection
	KindTimer
	KindError
	KindFuture
	KindLanguage
)

// KindFunction matches anything callable.
const KindFunction = KindClosure | KindBuiltin

var kindNames = []string{
	"NULL", "logical", "numeric", "character", "time", "duration", "interval",
	"timeseries", "list", "closure", "builtin", "connection", "timer", "error",
	"future", "language",
}

func (k Kind) String() string {
	var names []string
	for i, name := range kindNames {
		if k&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, " or ")
}

// KindOf returns the kind of v.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Null, nil:
		return KindNull
	case Logical:
		return KindLogical
	case Numeric:
		return KindNumeric
	case Character:
		return KindCharacter
	case Times:
		return KindTime
	case Durations:
		return KindDuration
	case Intervals:
		return KindInterval
	case TimeSeries:
		return KindTimeSeries
	case List:
		return KindList
	case *Closure:
		return KindClosure
	case *Builtin:
		return KindBuiltin
	case *Connection:
		return KindConnection
	case *Timer:
		return KindTimer
	case ErrorValue:
		return KindError
	case *Future:
		return KindFuture
	case Language:
		return KindLanguage
	}
	return 0
}

// Length returns the R-style length of v.
func Length(v Value) int {
	switch val := v.(type) {
	case Null, nil:
		return 0
	case Logical:
		return val.Len()
	case Numeric:
		return val.Len()
	case Character:
		return val.Len()
	case Times:
		return val.Len()
	case Durations:
		return val.Len()
	case Intervals:
		return val.Len()
	case TimeSeries:
		return len(val.Data)
	case List:
		return len(val.Items)
	}
	return 1
}

// Transmissible reports whether v can be sent to a peer.
func Transmissible(v Value) bool {
	switch val := v.(type) {
	case *Closure, *Builtin, *Future, *Connection, *Timer, Language:
		return false
	case List:
		for _, it := range val.Items {
			if !Transmissible(it.Value) {
				return false
			}
		}
	}
	return true
}
