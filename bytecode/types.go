// Package bytecode lowers a schema.GenericField into a flat instruction
// sequence plus a set of structure tables, the direct-dispatch program the
// interp package executes against an event stream.
package bytecode

import (
	"errors"
	"fmt"

	"github.com/vultix/serde-arrow/schema"
)

// Op is the opcode of one Instruction. Every instruction carries its own
// successor pc (Next) rather than relying on a virtual dispatch table, so
// the interpreter's hot loop is a single switch over Op plus a slice index
// assignment.
type Op int

const (
	OpPanic Op = iota
	OpProgramEnd

	OpOuterSequenceStart
	OpOuterSequenceItem
	OpOuterSequenceEnd

	OpOuterRecordStart
	OpOuterRecordField
	OpOuterRecordEnd

	OpListStart
	OpListItem
	OpListEnd

	OpLargeListStart
	OpLargeListItem
	OpLargeListEnd

	OpMapStart
	OpMapItem
	OpMapEnd

	OpStructStart
	OpStructField
	OpStructItem
	OpStructEnd

	OpTupleStructStart
	OpTupleStructItem
	OpTupleStructEnd

	OpUnionEnd
	OpVariant

	OpPushNull
	OpPushBool
	OpPushI8
	OpPushI16
	OpPushI32
	OpPushI64
	OpPushU8
	OpPushU16
	OpPushU32
	OpPushU64
	OpPushF32
	OpPushF64
	OpPushUtf8
	OpPushLargeUtf8
	OpPushDate64FromUtcStr
	OpPushDate64FromNaiveStr
	OpPushDictionary

	OpOptionMarker
)

func (o Op) String() string {
	names := [...]string{
		"Panic", "ProgramEnd",
		"OuterSequenceStart", "OuterSequenceItem", "OuterSequenceEnd",
		"OuterRecordStart", "OuterRecordField", "OuterRecordEnd",
		"ListStart", "ListItem", "ListEnd",
		"LargeListStart", "LargeListItem", "LargeListEnd",
		"MapStart", "MapItem", "MapEnd",
		"StructStart", "StructField", "StructItem", "StructEnd",
		"TupleStructStart", "TupleStructItem", "TupleStructEnd",
		"UnionEnd", "Variant",
		"PushNull", "PushBool", "PushI8", "PushI16", "PushI32", "PushI64",
		"PushU8", "PushU16", "PushU32", "PushU64", "PushF32", "PushF64",
		"PushUtf8", "PushLargeUtf8", "PushDate64FromUtcStr", "PushDate64FromNaiveStr",
		"PushDictionary", "OptionMarker",
	}
	if int(o) < 0 || int(o) >= len(names) {
		return "Unknown"
	}
	return names[o]
}

// Instruction is one step of a compiled program. Fields not relevant to Op
// are left zero; see the interp package for the per-Op interpretation.
type Instruction struct {
	Op Op

	Next  int // successor pc on the common path
	IfEnd int // *Item ops: successor pc when the container's end token is seen

	Table int // index into Program's Structs/Unions/Nulls or Buffers.Dictionaries, by Op; 0 if unused, -1 on a union's wrapping StructStart

	Buf     int // primary data buffer index (meaning depends on Op)
	Offsets int // secondary offsets buffer index (Utf8/LargeUtf8/List/LargeList/Map)
	Large   bool

	IfNone int // OptionMarker: pc to jump to when a Null event is observed

	Width int // OpPushDictionary: key bit width (8/16/32/64)

	Panic string // OpPanic: message (UnknownVariant, etc.)
}

// FieldDef names one compiled struct field and where control transfers to
// process its value.
type FieldDef struct {
	Name    string
	JumpPC  int
	NullIdx int // index into Program.Nulls, or -1 if the field is non-nullable
}

type StructDefinition struct {
	Fields       []FieldDef
	MapAsStruct  bool
	FieldEndPC   int // not set by the compiler (always 0); field values resume at the dispatch instruction
}

type VariantDef struct {
	Name   string
	JumpPC int
}

type UnionDefinition struct {
	Variants []VariantDef
}

// ListDefinition records where control enters a list's item loop and
// where it returns once the list closes, plus the offsets buffer the
// loop advances. It mirrors the jump targets already embedded on the
// ListItem/ListEnd (or LargeList equivalent) instructions themselves;
// Validate cross-checks the two never drift apart.
type ListDefinition struct {
	ItemPC       int
	ReturnPC     int
	OffsetBuffer int
}

// MapDefinition is ListDefinition's analogue for Map, whose entries loop
// shares ListItem/ListEnd's shape under the Map-specific opcodes.
type MapDefinition struct {
	KeyPC    int
	ReturnPC int
}

// NullDefinition lists, for one nullable field, every buffer index that
// must still receive a default entry when the field's value is absent, so
// that sibling columns stay aligned to the same row count. The exact set
// depends on the field's DataType: a null List only advances its own
// offsets buffer (contributing zero child items), while a null Struct
// must recursively pad every descendant leaf buffer (struct children are
// flattened columns advancing in lockstep with their parent).
type NullDefinition struct {
	ValidityBuf int // u1 buffer index holding this field's own validity bit

	U1         []int
	U8         []int
	U16        []int
	U32        []int
	U64        []int
	U32Offsets []int
	U64Offsets []int
}

type BufferCounts struct {
	U1, U8, U16, U32, U64    int
	U32Offsets, U64Offsets   int
	Dictionaries             int
}

// ArrayMapping is the compiled description of one field's physical
// layout: which buffers in interp.Buffers hold its data, in a shape a
// vendor adapter can walk to materialize a native array.
type ArrayMapping struct {
	Field schema.GenericField

	Validity int // buffer index into Buffers.U1, or -1 if non-nullable

	Buf     int // primary data buffer index; meaning depends on Field.DataType
	Offsets int // buffer index for Utf8/LargeUtf8/List/LargeList/Map offsets
	Large   bool

	Dictionary int // dictionary table index, Dictionary fields only
	KeyBuf     int // key-width buffer index, Dictionary fields only

	TypeIDs int // u8 buffer index of union discriminants, Union fields only

	// Table indexes Program.Structs (Struct fields) or Program.Unions
	// (Union fields); meaningless for every other DataType.
	Table int

	Children []ArrayMapping
}

// Program is a fully compiled, linked, and validated bytecode sequence
// ready for interp.Run.
type Program struct {
	Instructions []Instruction
	Structs      []StructDefinition
	Unions       []UnionDefinition
	Lists        []ListDefinition
	LargeLists   []ListDefinition
	Maps         []MapDefinition
	Nulls        []NullDefinition
	Buffers      BufferCounts
	Mapping      ArrayMapping
}

var (
	ErrUnknownVariant    = errors.New("union carries a variant the schema did not declare")
	ErrCompile           = errors.New("compile error")
	ErrInvalidProgram    = errors.New("invalid program")
)

func compileErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCompile, fmt.Sprintf(format, args...))
}
