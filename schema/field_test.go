package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_MapShape(t *testing.T) {
	good := GenericField{
		Name:     "m",
		DataType: Map,
		Children: []GenericField{{
			DataType: Struct,
			Children: []GenericField{
				{Name: "key", DataType: Utf8},
				{Name: "value", DataType: I64, Nullable: true},
			},
		}},
	}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Children = []GenericField{{DataType: Struct, Nullable: true, Children: good.Children[0].Children}}
	require.Error(t, bad.Validate())
}

func TestValidate_DictionaryRequiresIntKeyStringValue(t *testing.T) {
	good := GenericField{
		Name:     "d",
		DataType: Dictionary,
		Children: []GenericField{
			{DataType: U32},
			{DataType: Utf8},
		},
	}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Children = []GenericField{{DataType: Utf8}, {DataType: Utf8}}
	require.Error(t, bad.Validate())
}

func TestValidate_StructRejectsDuplicateChildNames(t *testing.T) {
	f := GenericField{
		Name:     "s",
		DataType: Struct,
		Children: []GenericField{
			{Name: "a", DataType: I64},
			{Name: "a", DataType: Bool},
		},
	}
	require.Error(t, f.Validate())
}

func TestValidate_ListRequiresExactlyOneChild(t *testing.T) {
	f := GenericField{Name: "xs", DataType: List}
	require.Error(t, f.Validate())
}

func TestValidate_UnionRequiresAtLeastOneNamedVariant(t *testing.T) {
	empty := GenericField{Name: "u", DataType: Union}
	require.Error(t, empty.Validate())

	unnamed := GenericField{
		Name:     "u",
		DataType: Union,
		Children: []GenericField{{DataType: I64}},
	}
	require.Error(t, unnamed.Validate())

	good := GenericField{
		Name:     "u",
		DataType: Union,
		Children: []GenericField{
			{Name: "Int", DataType: I64},
			{Name: "Str", DataType: Utf8},
		},
	}
	assert.NoError(t, good.Validate())
}

func TestValidate_UnionRejectsDuplicateVariantNames(t *testing.T) {
	f := GenericField{
		Name:     "u",
		DataType: Union,
		Children: []GenericField{
			{Name: "A", DataType: I64},
			{Name: "A", DataType: Bool},
		},
	}
	require.Error(t, f.Validate())
}

func TestParseStrategy_RoundTrip(t *testing.T) {
	for _, s := range []Strategy{UtcStrAsDate64, NaiveStrAsDate64, MapAsStruct, TupleAsStruct, UnknownVariant} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("NotAStrategy")
	require.Error(t, err)
}
