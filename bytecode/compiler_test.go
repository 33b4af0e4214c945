package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultix/serde-arrow/schema"
)

// representativeSchema exercises every structure table except LargeLists:
// a nullable primitive (OptionMarker/NullDefinition), a List, a Map, and a
// Union, all nested inside the one outer record every compiled program
// wraps.
func representativeSchema() schema.GenericField {
	return schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{
			{Name: "n", DataType: schema.I64, Nullable: true},
			{
				Name:     "xs",
				DataType: schema.List,
				Children: []schema.GenericField{{DataType: schema.I32}},
			},
			{
				Name:     "m",
				DataType: schema.Map,
				Children: []schema.GenericField{{
					DataType: schema.Struct,
					Children: []schema.GenericField{
						{Name: "key", DataType: schema.Utf8},
						{Name: "value", DataType: schema.I64},
					},
				}},
			},
			{
				Name:     "u",
				DataType: schema.Union,
				Children: []schema.GenericField{
					{Name: "A", DataType: schema.I64},
					{Name: "B", DataType: schema.Utf8},
				},
			},
		},
	}
}

func TestCompile_PopulatesAllStructureTables(t *testing.T) {
	p, err := Compile(representativeSchema(), CompilationOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, p.Instructions)
	assert.Len(t, p.Structs, 2) // outer record + map entries struct
	assert.Len(t, p.Unions, 1)
	assert.Len(t, p.Lists, 1)
	assert.Empty(t, p.LargeLists)
	assert.Len(t, p.Maps, 1)
	assert.Len(t, p.Nulls, 1)

	last := p.Instructions[len(p.Instructions)-1]
	assert.Equal(t, OpProgramEnd, last.Op)
	assert.Equal(t, len(p.Instructions)-1, last.Next)
}

func TestCompile_WrapsBarePrimitiveRootWhenRequested(t *testing.T) {
	field := schema.GenericField{Name: "value", DataType: schema.I64}

	_, err := Compile(field, CompilationOptions{})
	require.Error(t, err)

	p, err := Compile(field, CompilationOptions{WrapWithStruct: true})
	require.NoError(t, err)
	assert.Len(t, p.Mapping.Children, 1)
	assert.Equal(t, "value", p.Mapping.Children[0].Field.Name)
}

func TestCompile_RejectsInvalidSchemaBeforeEmittingAnything(t *testing.T) {
	// Struct root.Validate() catches the duplicate child name; Compile must
	// surface that error rather than emit a program around a bad shape.
	field := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{
			{Name: "a", DataType: schema.I64},
			{Name: "a", DataType: schema.Utf8},
		},
	}
	_, err := Compile(field, CompilationOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrBadShape)
}

func TestCompile_RejectsUndeclaredF16(t *testing.T) {
	field := schema.GenericField{
		DataType: schema.Struct,
		Children: []schema.GenericField{{Name: "f", DataType: schema.F16}},
	}
	_, err := Compile(field, CompilationOptions{})
	require.Error(t, err)
}

// TestCompile_LinkerNeverProducesADirectUnionEndCycle is the positive
// counterpart of TestValidate_RejectsDirectUnionEndCycle (bytecode's #7,
// linker cycle guard): the emission pass Compile drives never wires any
// instruction's Next straight into a UnionEnd, since Validate — run by
// Compile itself before returning — would reject exactly that shape.
func TestCompile_LinkerNeverProducesADirectUnionEndCycle(t *testing.T) {
	p, err := Compile(representativeSchema(), CompilationOptions{})
	require.NoError(t, err)
	for pc, instr := range p.Instructions {
		if instr.Op == OpPanic || instr.Op == OpProgramEnd {
			continue
		}
		if p.Instructions[instr.Next].Op == OpUnionEnd {
			t.Fatalf("instruction %d (%s) targets UnionEnd directly", pc, instr.Op)
		}
	}
}
