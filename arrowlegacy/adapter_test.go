package arrowlegacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultix/serde-arrow/bytecode"
	"github.com/vultix/serde-arrow/event"
	"github.com/vultix/serde-arrow/interp"
	"github.com/vultix/serde-arrow/schema"
)

func strEv(s string) event.Event { return event.Str(&s) }

// run wraps rowEvents in the top-level StartSequence/EndSequence pair the
// compiled program's OuterSequenceStart/End instructions expect.
func run(t *testing.T, prog *bytecode.Program, rowEvents []event.Event) *interp.Buffers {
	t.Helper()
	events := make([]event.Event, 0, len(rowEvents)+2)
	events = append(events, event.StartSequence())
	events = append(events, rowEvents...)
	events = append(events, event.EndSequence())
	buf, err := interp.Run(prog, event.NewSliceSource(events))
	require.NoError(t, err)
	return buf
}

func TestAdapter_BuildRecord_SimpleRow(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{
			{Name: "id", DataType: schema.I64},
			{Name: "name", DataType: schema.Utf8},
		},
	}
	prog, err := bytecode.Compile(root, bytecode.CompilationOptions{})
	require.NoError(t, err)

	events := []event.Event{
		event.StartStruct(), strEv("id"), event.I64(1), strEv("name"), strEv("alice"), event.EndStruct(),
	}
	buf := run(t, prog, events)

	a := New()
	rec, err := a.BuildRecord(prog.Mapping, buf)
	require.NoError(t, err)
	defer rec.Release()
	assert.EqualValues(t, 1, rec.NumRows())
}

func TestAdapter_MapFieldIsUnsupported(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{
			Name:     "m",
			DataType: schema.Map,
			Children: []schema.GenericField{{
				DataType: schema.Struct,
				Children: []schema.GenericField{
					{Name: "key", DataType: schema.Utf8},
					{Name: "value", DataType: schema.I64},
				},
			}},
		}},
	}
	prog, err := bytecode.Compile(root, bytecode.CompilationOptions{})
	require.NoError(t, err)

	events := []event.Event{
		event.StartStruct(), strEv("m"),
		event.StartSequence(), event.EndSequence(),
		event.EndStruct(),
	}
	buf := run(t, prog, events)

	a := New()
	_, err = a.BuildRecord(prog.Mapping, buf)
	require.ErrorIs(t, err, ErrUnsupportedByAdapter)
}
