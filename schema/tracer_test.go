package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultix/serde-arrow/event"
)

func TestTracer_SimpleTypes(t *testing.T) {
	tr := NewTracer("root")
	require.NoError(t, tr.Accept(event.StartStruct()))
	a := "a"
	require.NoError(t, tr.Accept(event.Str(&a)))
	require.NoError(t, tr.Accept(event.I64(1)))
	b := "b"
	require.NoError(t, tr.Accept(event.Str(&b)))
	require.NoError(t, tr.Accept(event.Bool(true)))
	require.NoError(t, tr.Accept(event.EndStruct()))

	f, err := tr.Field()
	require.NoError(t, err)
	assert.Equal(t, Struct, f.DataType)
	require.Len(t, f.Children, 2)
	assert.Equal(t, "a", f.Children[0].Name)
	assert.Equal(t, I64, f.Children[0].DataType)
	assert.Equal(t, "b", f.Children[1].Name)
	assert.Equal(t, Bool, f.Children[1].DataType)
}

func TestTracer_NullableFromOption(t *testing.T) {
	tr := NewTracer("maybe")
	require.NoError(t, tr.Accept(event.Null()))
	require.NoError(t, tr.Accept(event.I32(5)))

	f, err := tr.Field()
	require.NoError(t, err)
	assert.True(t, f.Nullable)
	assert.Equal(t, I32, f.DataType)
}

func TestTracer_IntegerWidthChangeIsAnError(t *testing.T) {
	tr := NewTracer("n")
	require.NoError(t, tr.Accept(event.I8(1)))
	err := tr.Accept(event.I32(100000))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentNull)
}

func TestTracer_IntThenFloatIsAnError(t *testing.T) {
	tr := NewTracer("n")
	require.NoError(t, tr.Accept(event.I32(1)))
	err := tr.Accept(event.F64(1.5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentNull)
}

func TestTracer_BoolThenStringIsAnError(t *testing.T) {
	tr := NewTracer("n")
	require.NoError(t, tr.Accept(event.Bool(true)))
	s := "x"
	err := tr.Accept(event.Str(&s))
	require.Error(t, err)
}

func TestTracer_DeeplyNestedStruct(t *testing.T) {
	tr := NewTracer("root")
	require.NoError(t, tr.Accept(event.StartStruct()))
	outer := "outer"
	require.NoError(t, tr.Accept(event.Str(&outer)))
	require.NoError(t, tr.Accept(event.StartStruct()))
	inner := "inner"
	require.NoError(t, tr.Accept(event.Str(&inner)))
	require.NoError(t, tr.Accept(event.I64(42)))
	require.NoError(t, tr.Accept(event.EndStruct()))
	require.NoError(t, tr.Accept(event.EndStruct()))

	f, err := tr.Field()
	require.NoError(t, err)
	require.Len(t, f.Children, 1)
	assert.Equal(t, "outer", f.Children[0].Name)
	assert.Equal(t, Struct, f.Children[0].DataType)
	require.Len(t, f.Children[0].Children, 1)
	assert.Equal(t, "inner", f.Children[0].Children[0].Name)
	assert.Equal(t, I64, f.Children[0].Children[0].DataType)
}

func TestTracer_ListOfInts(t *testing.T) {
	tr := NewTracer("xs")
	require.NoError(t, tr.Accept(event.StartSequence()))
	require.NoError(t, tr.Accept(event.I64(1)))
	require.NoError(t, tr.Accept(event.I64(2)))
	require.NoError(t, tr.Accept(event.EndSequence()))

	f, err := tr.Field()
	require.NoError(t, err)
	assert.Equal(t, List, f.DataType)
	require.Len(t, f.Children, 1)
	assert.Equal(t, I64, f.Children[0].DataType)
}

func TestTracer_EmptyColumnDefaultsToNull(t *testing.T) {
	tr := NewTracer("empty")
	f, err := tr.Field()
	require.NoError(t, err)
	assert.Equal(t, Null, f.DataType)
}
