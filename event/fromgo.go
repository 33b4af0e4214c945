package event

import (
	"bytes"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	json "github.com/goccy/go-json"
)

// FromGo decodes structured input into a map[string]any the same way
// bodkin's reader.InputMap does, then returns a Source that walks it
// into a balanced event stream: StartStruct/Str(key)/<value>.../EndStruct.
//
// Accepted input: map[string]any, []byte or string (decoded as JSON
// with UseNumber so integers stay integral), or any other Go value decoded
// via mapstructure. A nil input is rejected with an error.
//
// This is a convenience producer for the object-model side of the
// conversion — it is not the reflective serialization framework the
// specification treats as an external collaborator, just enough of one to
// exercise the tracer and interpreter end to end.
func FromGo(a any) (Source, error) {
	m, err := inputMap(a)
	if err != nil {
		return nil, err
	}
	var events []Event
	events = appendValue(events, m)
	return NewSliceSource(events), nil
}

func inputMap(a any) (map[string]any, error) {
	switch v := a.(type) {
	case nil:
		return nil, fmt.Errorf("fromgo: nil input")
	case map[string]any:
		return v, nil
	case []byte:
		return decodeJSON(v)
	case string:
		return decodeJSON([]byte(v))
	default:
		m := map[string]any{}
		if err := mapstructure.Decode(a, &m); err != nil {
			return nil, fmt.Errorf("fromgo: invalid input: %w", err)
		}
		return m, nil
	}
}

func decodeJSON(b []byte) (map[string]any, error) {
	m := map[string]any{}
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	if err := d.Decode(&m); err != nil {
		return nil, fmt.Errorf("fromgo: invalid input: %w", err)
	}
	return m, nil
}

// appendValue appends the event(s) needed to represent v, recursing into
// maps and slices. A nil value emits Null; any other value that could be
// absent should have been wrapped by the caller before reaching here.
func appendValue(events []Event, v any) []Event {
	switch t := v.(type) {
	case nil:
		return append(events, Null())
	case map[string]any:
		events = append(events, StartStruct())
		for k, val := range t {
			key := k
			events = append(events, Str(&key))
			events = appendValue(events, val)
		}
		return append(events, EndStruct())
	case []any:
		events = append(events, StartSequence())
		for _, item := range t {
			events = appendValue(events, item)
		}
		return append(events, EndSequence())
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return append(events, I64(i))
		}
		f, _ := t.Float64()
		return append(events, F64(f))
	case bool:
		return append(events, Bool(t))
	case string:
		s := t
		return append(events, Str(&s))
	case int:
		return append(events, I64(int64(t)))
	case int8:
		return append(events, I8(t))
	case int16:
		return append(events, I16(t))
	case int32:
		return append(events, I32(t))
	case int64:
		return append(events, I64(t))
	case uint:
		return append(events, U64(uint64(t)))
	case uint8:
		return append(events, U8(t))
	case uint16:
		return append(events, U16(t))
	case uint32:
		return append(events, U32(t))
	case uint64:
		return append(events, U64(t))
	case float32:
		return append(events, F32(t))
	case float64:
		return append(events, F64(t))
	default:
		return append(events, Null())
	}
}
