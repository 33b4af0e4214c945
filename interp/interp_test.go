package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultix/serde-arrow/bytecode"
	"github.com/vultix/serde-arrow/event"
	"github.com/vultix/serde-arrow/schema"
)

func compile(t *testing.T, root schema.GenericField) *bytecode.Program {
	t.Helper()
	prog, err := bytecode.Compile(root, bytecode.CompilationOptions{})
	require.NoError(t, err)
	return prog
}

// run wraps rowEvents in the top-level StartSequence/EndSequence pair the
// compiled program's OuterSequenceStart/End instructions expect.
func run(t *testing.T, prog *bytecode.Program, rowEvents []event.Event) *Buffers {
	t.Helper()
	events := make([]event.Event, 0, len(rowEvents)+2)
	events = append(events, event.StartSequence())
	events = append(events, rowEvents...)
	events = append(events, event.EndSequence())
	buf, err := Run(prog, event.NewSliceSource(events))
	require.NoError(t, err)
	return buf
}

func strEv(s string) event.Event { return event.Str(&s) }

func TestInterp_SimpleRow(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{Name: "a", DataType: schema.I64}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("a"), event.I64(1), event.EndStruct(),
		event.StartStruct(), strEv("a"), event.I64(2), event.EndStruct(),
	}
	buf := run(t, prog, events)

	fieldBuf := prog.Mapping.Children[0].Buf
	require.Len(t, buf.U64[fieldBuf], 2)
	assert.Equal(t, uint64(1), buf.U64[fieldBuf][0])
	assert.Equal(t, uint64(2), buf.U64[fieldBuf][1])
}

func TestInterp_NullableFieldPads(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{Name: "a", DataType: schema.I64, Nullable: true}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("a"), event.I64(5), event.EndStruct(),
		event.StartStruct(), strEv("a"), event.Null(), event.EndStruct(),
	}
	buf := run(t, prog, events)

	fam := prog.Mapping.Children[0]
	require.Len(t, buf.U1[fam.Validity], 2)
	assert.Equal(t, []bool{true, false}, buf.U1[fam.Validity])
	require.Len(t, buf.U64[fam.Buf], 2)
	assert.Equal(t, uint64(5), buf.U64[fam.Buf][0])
	assert.Equal(t, uint64(0), buf.U64[fam.Buf][1])
}

func TestInterp_MissingRequiredFieldErrors(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{Name: "a", DataType: schema.I64}},
	}
	prog := compile(t, root)
	_, err := Run(prog, event.NewSliceSource([]event.Event{
		event.StartSequence(), event.StartStruct(), event.EndStruct(), event.EndSequence(),
	}))
	require.Error(t, err)
}

func TestInterp_ListOfInts(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{
			Name:     "xs",
			DataType: schema.List,
			Children: []schema.GenericField{{DataType: schema.I32}},
		}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("xs"),
		event.StartSequence(), event.I32(1), event.I32(2), event.EndSequence(),
		event.EndStruct(),
	}
	buf := run(t, prog, events)

	listAM := prog.Mapping.Children[0]
	assert.Equal(t, []uint32{0, 2}, buf.U32Offsets[listAM.Offsets])
	assert.Equal(t, []uint32{1, 2}, buf.U32[listAM.Children[0].Buf])
}

func TestInterp_NestedStruct(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{
			Name:     "inner",
			DataType: schema.Struct,
			Children: []schema.GenericField{{Name: "n", DataType: schema.I64}},
		}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("inner"),
		event.StartStruct(), strEv("n"), event.I64(42), event.EndStruct(),
		event.EndStruct(),
	}
	buf := run(t, prog, events)

	innerAM := prog.Mapping.Children[0].Children[0]
	assert.Equal(t, []uint64{42}, buf.U64[innerAM.Buf])
}

func TestInterp_DictionaryDedupesInInsertionOrder(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{
			Name:     "d",
			DataType: schema.Dictionary,
			Children: []schema.GenericField{{DataType: schema.U32}, {DataType: schema.Utf8}},
		}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("d"), strEv("x"), event.EndStruct(),
		event.StartStruct(), strEv("d"), strEv("y"), event.EndStruct(),
		event.StartStruct(), strEv("d"), strEv("x"), event.EndStruct(),
	}
	buf := run(t, prog, events)

	dictAM := prog.Mapping.Children[0]
	assert.Equal(t, []uint32{0, 1, 0}, buf.U32[dictAM.KeyBuf])
	assert.Equal(t, 2, buf.Dictionaries[dictAM.Dictionary].Len())
}

func TestInterp_UnionDispatchByVariantName(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{
			Name:     "u",
			DataType: schema.Union,
			Children: []schema.GenericField{
				{Name: "A", DataType: schema.I64},
				{Name: "B", DataType: schema.Utf8},
			},
		}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("u"),
		event.StartStruct(), strEv("A"), event.I64(7), event.EndStruct(),
		event.EndStruct(),
	}
	buf := run(t, prog, events)

	unionAM := prog.Mapping.Children[0]
	assert.Equal(t, []uint8{0}, buf.U8[unionAM.TypeIDs])
	assert.Equal(t, []uint64{7}, buf.U64[unionAM.Children[0].Buf])
}

func TestInterp_MapAsStructToleratesUnknownKeys(t *testing.T) {
	root := schema.GenericField{
		DataType: schema.Struct,
		Strategy: schema.MapAsStruct,
		Children: []schema.GenericField{{Name: "a", DataType: schema.I64}},
	}
	prog := compile(t, root)

	events := []event.Event{
		event.StartStruct(), strEv("extra"), event.I64(99), strEv("a"), event.I64(1), event.EndStruct(),
	}
	buf := run(t, prog, events)

	assert.Equal(t, []uint64{1}, buf.U64[prog.Mapping.Children[0].Buf])
}
