package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// jsonValue is the JSON form of a transmissible value.
type jsonValue struct {
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data,omitempty"`
	Names   []string        `json:"names,omitempty"`
	Index   []time.Time     `json:"index,omitempty"`
	Items   []jsonItem      `json:"items,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

type jsonItem struct {
	Name  string     `json:"name,omitempty"`
	Value *jsonValue `json:"value"`
}

// jsonNumber writes whole numbers without a decimal point and non-finite
// numbers as strings.
type jsonNumber float64

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.AppendInt(nil, int64(f), 10), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (n *jsonNumber) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "NaN":
			*n = jsonNumber(math.NaN())
		case "Inf":
			*n = jsonNumber(math.Inf(1))
		case "-Inf":
			*n = jsonNumber(math.Inf(-1))
		default:
			return fmt.Errorf("invalid number %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = jsonNumber(f)
	return nil
}

// ValueToJSON marshals a transmissible value to JSON bytes.
// List items preserve their order and names.
func ValueToJSON(v Value) ([]byte, error) {
	raw, err := valueToRaw(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// ValueToJSONString is a convenience that returns a string.
func ValueToJSONString(v Value) string {
	b, err := ValueToJSON(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func valueToRaw(v Value) (*jsonValue, error) {
	out := &jsonValue{Kind: KindOf(v).String()}
	var data any
	switch val := v.(type) {
	case nil, Null:
		out.Kind = KindNull.String()
	case Logical:
		data, out.Names = val.Data, val.Names
	case Numeric:
		nums := make([]jsonNumber, len(val.Data))
		for i, f := range val.Data {
			nums[i] = jsonNumber(f)
		}
		data, out.Names = nums, val.Names
	case Character:
		data, out.Names = val.Data, val.Names
	case Times:
		data, out.Names = val.Data, val.Names
	case Durations:
		data, out.Names = val.Data, val.Names
	case Intervals:
		pairs := make([][2]time.Time, len(val.Data))
		for i, iv := range val.Data {
			pairs[i] = [2]time.Time{iv.Start, iv.End}
		}
		data, out.Names = pairs, val.Names
	case TimeSeries:
		nums := make([]jsonNumber, len(val.Data))
		for i, f := range val.Data {
			nums[i] = jsonNumber(f)
		}
		data, out.Index = nums, val.Index
	case List:
		out.Items = make([]jsonItem, len(val.Items))
		for i, it := range val.Items {
			raw, err := valueToRaw(it.Value)
			if err != nil {
				return nil, err
			}
			out.Items[i] = jsonItem{Name: it.Name, Value: raw}
		}
	case ErrorValue:
		out.Code, out.Message = val.Code, val.Message
	default:
		return nil, fmt.Errorf("value of kind %s is not transmissible", KindOf(v))
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		out.Data = b
	}
	return out, nil
}

// ValueFromJSON decodes the JSON form written by ValueToJSON.
func ValueFromJSON(data []byte) (Value, error) {
	var raw jsonValue
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return rawToValue(&raw)
}

func decodeData[T any](raw *jsonValue) ([]T, error) {
	var out []T
	if len(raw.Data) == 0 {
		return []T{}, nil
	}
	if err := json.Unmarshal(raw.Data, &out); err != nil {
		return nil, fmt.Errorf("decoding %s data: %w", raw.Kind, err)
	}
	if raw.Names != nil && len(raw.Names) != len(out) {
		return nil, fmt.Errorf("decoding %s: %d names for %d elements", raw.Kind, len(raw.Names), len(out))
	}
	return out, nil
}

func floats(nums []jsonNumber) []float64 {
	out := make([]float64, len(nums))
	for i, n := range nums {
		out[i] = float64(n)
	}
	return out
}

func rawToValue(raw *jsonValue) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}
	switch raw.Kind {
	case KindNull.String():
		return Null{}, nil
	case KindLogical.String():
		d, err := decodeData[bool](raw)
		return Logical{Data: d, Names: raw.Names}, err
	case KindNumeric.String():
		d, err := decodeData[jsonNumber](raw)
		return Numeric{Data: floats(d), Names: raw.Names}, err
	case KindCharacter.String():
		d, err := decodeData[string](raw)
		return Character{Data: d, Names: raw.Names}, err
	case KindTime.String():
		d, err := decodeData[time.Time](raw)
		return Times{Data: d, Names: raw.Names}, err
	case KindDuration.String():
		d, err := decodeData[time.Duration](raw)
		return Durations{Data: d, Names: raw.Names}, err
	case KindInterval.String():
		d, err := decodeData[[2]time.Time](raw)
		ivs := make([]Interval, len(d))
		for i, p := range d {
			ivs[i] = Interval{Start: p[0], End: p[1]}
		}
		return Intervals{Data: ivs, Names: raw.Names}, err
	case KindTimeSeries.String():
		d, err := decodeData[jsonNumber](raw)
		if err != nil {
			return nil, err
		}
		if len(d) != len(raw.Index) {
			return nil, fmt.Errorf("decoding timeseries: %d points for %d times", len(d), len(raw.Index))
		}
		return TimeSeries{Index: raw.Index, Data: floats(d)}, nil
	case KindList.String():
		items := make([]ListItem, len(raw.Items))
		for i, it := range raw.Items {
			v, err := rawToValue(it.Value)
			if err != nil {
				return nil, err
			}
			items[i] = ListItem{Name: it.Name, Value: v}
		}
		return List{Items: items}, nil
	case KindError.String():
		return ErrorValue{Code: raw.Code, Message: raw.Message}, nil
	}
	return nil, fmt.Errorf("unknown value kind %q", raw.Kind)
}
