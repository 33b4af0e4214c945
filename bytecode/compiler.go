package bytecode

import (
	"fmt"

	"github.com/vultix/serde-arrow/schema"
)

// CompilationOptions controls root-level framing.
type CompilationOptions struct {
	// WrapWithStruct allows a non-Struct root field to be compiled by
	// wrapping it in a synthetic single-child struct named "root", since
	// every program's outer sequence produces one Struct-shaped row per
	// record.
	WrapWithStruct bool
}

type patchTarget struct {
	idx   int
	field string // "Next" or "IfNone"
}

type compiler struct {
	instr      []Instruction
	structs    []StructDefinition
	unions     []UnionDefinition
	lists      []ListDefinition
	largeLists []ListDefinition
	maps       []MapDefinition
	nulls      []NullDefinition
	bufs       BufferCounts
}

// Compile lowers field (the root row shape) into a linked, validated
// Program.
func Compile(field schema.GenericField, opts CompilationOptions) (*Program, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	root := field
	if root.DataType != schema.Struct {
		if !opts.WrapWithStruct {
			return nil, compileErr("root field %q is %s, not Struct; set WrapWithStruct to wrap it", field.Name, field.DataType)
		}
		root = schema.GenericField{Name: "root", DataType: schema.Struct, Children: []schema.GenericField{field}}
	}

	c := &compiler{}
	seqStartIdx := c.emitRaw(Instruction{Op: OpOuterSequenceStart})
	itemIdx := c.emitRaw(Instruction{Op: OpOuterSequenceItem})
	c.instr[seqStartIdx].Next = itemIdx

	rowEntry, rowExits, rowAM, err := c.compileOuterRecord(root)
	if err != nil {
		return nil, err
	}
	c.instr[itemIdx].Next = rowEntry
	c.resolve(rowExits, itemIdx)
	seqEndIdx := c.emitRaw(Instruction{Op: OpOuterSequenceEnd})
	c.instr[itemIdx].IfEnd = seqEndIdx
	progEndIdx := c.emitRaw(Instruction{Op: OpProgramEnd})
	c.instr[seqEndIdx].Next = progEndIdx
	c.instr[progEndIdx].Next = progEndIdx

	p := &Program{
		Instructions: c.instr,
		Structs:      c.structs,
		Unions:       c.unions,
		Lists:        c.lists,
		LargeLists:   c.largeLists,
		Maps:         c.maps,
		Nulls:        c.nulls,
		Buffers:      c.bufs,
		Mapping:      rowAM,
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *compiler) emitRaw(i Instruction) int {
	idx := len(c.instr)
	c.instr = append(c.instr, i)
	return idx
}

func (c *compiler) resolve(patches []patchTarget, target int) {
	for _, p := range patches {
		switch p.field {
		case "Next":
			c.instr[p.idx].Next = target
		case "IfNone":
			c.instr[p.idx].IfNone = target
		}
	}
}

func (c *compiler) allocU1() int { idx := c.bufs.U1; c.bufs.U1++; return idx }
func (c *compiler) allocU8() int { idx := c.bufs.U8; c.bufs.U8++; return idx }
func (c *compiler) allocU16() int { idx := c.bufs.U16; c.bufs.U16++; return idx }
func (c *compiler) allocU32() int { idx := c.bufs.U32; c.bufs.U32++; return idx }
func (c *compiler) allocU64() int { idx := c.bufs.U64; c.bufs.U64++; return idx }
func (c *compiler) allocU32Offsets() int {
	idx := c.bufs.U32Offsets
	c.bufs.U32Offsets++
	return idx
}
func (c *compiler) allocU64Offsets() int {
	idx := c.bufs.U64Offsets
	c.bufs.U64Offsets++
	return idx
}
func (c *compiler) allocDictionary() int {
	idx := c.bufs.Dictionaries
	c.bufs.Dictionaries++
	return idx
}

// compileField wraps compileValue with OptionMarker handling for nullable
// fields. It returns the entry pc, the dangling exit points the caller
// must resolve to its chosen continuation, the field's ArrayMapping, and
// the index into Program.Nulls if the field is nullable (-1 otherwise).
func (c *compiler) compileField(f schema.GenericField) (entry int, exits []patchTarget, am ArrayMapping, nullIdx int, err error) {
	if !f.Nullable {
		entry, exits, am, err = c.compileValue(f)
		return entry, exits, am, -1, err
	}

	markerIdx := c.emitRaw(Instruction{Op: OpOptionMarker})
	innerEntry := len(c.instr)
	c.instr[markerIdx].Next = innerEntry

	innerExits, innerAM, cerr := func() ([]patchTarget, ArrayMapping, error) {
		_, e, a, er := c.compileValue(f)
		return e, a, er
	}()
	if cerr != nil {
		return 0, nil, ArrayMapping{}, -1, cerr
	}

	validityBuf := c.allocU1()
	nd := NullDefinition{ValidityBuf: validityBuf}
	collectNullBuffers(innerAM, &nd)
	nullIdx = len(c.nulls)
	c.nulls = append(c.nulls, nd)
	c.instr[markerIdx].Table = nullIdx

	am = innerAM
	am.Validity = validityBuf
	exits = append(innerExits, patchTarget{markerIdx, "IfNone"})
	return markerIdx, exits, am, nullIdx, nil
}

// collectNullBuffers walks am and records every buffer a null occurrence
// of this field must still pad with a default entry, so sibling rows stay
// aligned. List/LargeList/Map only pad their own offsets buffer (a null
// container contributes zero child items); Struct recursively pads every
// descendant leaf buffer (a null struct element still occupies one slot in
// every flattened child column); Union pads its type-id buffer. A nullable
// descendant's own validity buffer is padded too (with false).
func collectNullBuffers(am ArrayMapping, nd *NullDefinition) {
	if am.Validity >= 0 {
		nd.U1 = append(nd.U1, am.Validity)
	}
	switch am.Field.DataType {
	case schema.Bool:
		nd.U1 = append(nd.U1, am.Buf)
	case schema.I8, schema.U8:
		nd.U8 = append(nd.U8, am.Buf)
	case schema.I16, schema.U16:
		nd.U16 = append(nd.U16, am.Buf)
	case schema.I32, schema.U32, schema.F32:
		nd.U32 = append(nd.U32, am.Buf)
	case schema.I64, schema.U64, schema.F64, schema.Date64:
		nd.U64 = append(nd.U64, am.Buf)
	case schema.Utf8:
		nd.U32Offsets = append(nd.U32Offsets, am.Offsets)
	case schema.LargeUtf8:
		nd.U64Offsets = append(nd.U64Offsets, am.Offsets)
	case schema.List, schema.Map:
		nd.U32Offsets = append(nd.U32Offsets, am.Offsets)
	case schema.LargeList:
		nd.U64Offsets = append(nd.U64Offsets, am.Offsets)
	case schema.Struct:
		for _, child := range am.Children {
			collectNullBuffers(child, nd)
		}
	case schema.Union:
		nd.U8 = append(nd.U8, am.TypeIDs)
	case schema.Dictionary:
		switch am.Children[0].Field.DataType {
		case schema.U8:
			nd.U8 = append(nd.U8, am.KeyBuf)
		case schema.U16:
			nd.U16 = append(nd.U16, am.KeyBuf)
		case schema.U32:
			nd.U32 = append(nd.U32, am.KeyBuf)
		default:
			nd.U64 = append(nd.U64, am.KeyBuf)
		}
	case schema.Null:
		// nothing to pad
	}
}

func (c *compiler) compileValue(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	switch f.DataType {
	case schema.Null:
		idx := c.emitRaw(Instruction{Op: OpPushNull})
		return idx, []patchTarget{{idx, "Next"}}, ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: -1}, nil
	case schema.Bool:
		return c.compilePrimitive(f, OpPushBool, c.allocU1())
	case schema.I8:
		return c.compilePrimitive(f, OpPushI8, c.allocU8())
	case schema.I16:
		return c.compilePrimitive(f, OpPushI16, c.allocU16())
	case schema.I32:
		return c.compilePrimitive(f, OpPushI32, c.allocU32())
	case schema.I64:
		return c.compilePrimitive(f, OpPushI64, c.allocU64())
	case schema.U8:
		return c.compilePrimitive(f, OpPushU8, c.allocU8())
	case schema.U16:
		return c.compilePrimitive(f, OpPushU16, c.allocU16())
	case schema.U32:
		return c.compilePrimitive(f, OpPushU32, c.allocU32())
	case schema.U64:
		return c.compilePrimitive(f, OpPushU64, c.allocU64())
	case schema.F32:
		return c.compilePrimitive(f, OpPushF32, c.allocU32())
	case schema.F64:
		return c.compilePrimitive(f, OpPushF64, c.allocU64())
	case schema.F16:
		return 0, nil, ArrayMapping{}, compileErr("F16 has no event source and cannot be compiled")
	case schema.Date64:
		switch f.Strategy {
		case schema.UtcStrAsDate64:
			return c.compilePrimitive(f, OpPushDate64FromUtcStr, c.allocU64())
		case schema.NaiveStrAsDate64:
			return c.compilePrimitive(f, OpPushDate64FromNaiveStr, c.allocU64())
		default:
			return c.compilePrimitive(f, OpPushI64, c.allocU64())
		}
	case schema.Utf8:
		return c.compileString(f, OpPushUtf8, c.allocU32Offsets(), false)
	case schema.LargeUtf8:
		return c.compileString(f, OpPushLargeUtf8, c.allocU64Offsets(), true)
	case schema.List:
		return c.compileList(f, false)
	case schema.LargeList:
		return c.compileList(f, true)
	case schema.Map:
		return c.compileMap(f)
	case schema.Dictionary:
		return c.compileDictionary(f)
	case schema.Union:
		return c.compileUnion(f)
	case schema.Struct:
		if f.Strategy == schema.TupleAsStruct {
			return c.compileTupleStruct(f)
		}
		return c.compileStruct(f)
	default:
		return 0, nil, ArrayMapping{}, fmt.Errorf("%w: %s", ErrUnsupportedDataType, f.DataType)
	}
}

var ErrUnsupportedDataType = schema.ErrUnsupportedDataType

func (c *compiler) compilePrimitive(f schema.GenericField, op Op, buf int) (int, []patchTarget, ArrayMapping, error) {
	idx := c.emitRaw(Instruction{Op: op, Buf: buf})
	am := ArrayMapping{Field: f, Validity: -1, Buf: buf, Offsets: -1}
	return idx, []patchTarget{{idx, "Next"}}, am, nil
}

func (c *compiler) compileString(f schema.GenericField, op Op, offsets int, large bool) (int, []patchTarget, ArrayMapping, error) {
	idx := c.emitRaw(Instruction{Op: op, Offsets: offsets, Large: large})
	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: offsets, Large: large}
	return idx, []patchTarget{{idx, "Next"}}, am, nil
}

// compileList shares its shape with compileMap: a Start consuming the
// opening sequence token, an Item loop head that peeks for the closing
// token and consumes it when seen, and an End that records the list's
// offset (it consumes no event). The loop back-edge and the IfEnd branch
// are both resolved before returning, leaving only the End instruction's
// Next dangling for the caller.
func (c *compiler) compileList(f schema.GenericField, large bool) (int, []patchTarget, ArrayMapping, error) {
	if len(f.Children) != 1 {
		return 0, nil, ArrayMapping{}, compileErr("list %q must have exactly one child", f.Name)
	}
	startOp, itemOp, endOp := OpListStart, OpListItem, OpListEnd
	if large {
		startOp, itemOp, endOp = OpLargeListStart, OpLargeListItem, OpLargeListEnd
	}
	offsets := c.allocU32Offsets()
	if large {
		offsets = c.allocU64Offsets()
	}

	startIdx := c.emitRaw(Instruction{Op: startOp})
	itemIdx := c.emitRaw(Instruction{Op: itemOp, Offsets: offsets, Large: large})
	c.instr[startIdx].Next = itemIdx

	itemEntry, itemExits, itemAM, _, err := c.compileField(f.Children[0])
	if err != nil {
		return 0, nil, ArrayMapping{}, err
	}
	c.instr[itemIdx].Next = itemEntry
	c.resolve(itemExits, itemIdx)

	endIdx := c.emitRaw(Instruction{Op: endOp})
	c.instr[itemIdx].IfEnd = endIdx

	ld := ListDefinition{ItemPC: itemIdx, ReturnPC: endIdx, OffsetBuffer: offsets}
	if large {
		c.largeLists = append(c.largeLists, ld)
	} else {
		c.lists = append(c.lists, ld)
	}

	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: offsets, Large: large, Children: []ArrayMapping{itemAM}}
	return startIdx, []patchTarget{{endIdx, "Next"}}, am, nil
}

// compileMap models a map as a non-nullable list of {key, value} structs,
// per the schema package's shape invariant; only the outer opcode differs
// from compileList so adapters can distinguish the two at the
// ArrayMapping level.
func (c *compiler) compileMap(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	if len(f.Children) != 1 {
		return 0, nil, ArrayMapping{}, compileErr("map %q must have exactly one entries child", f.Name)
	}
	entries := f.Children[0]
	offsets := c.allocU32Offsets()

	startIdx := c.emitRaw(Instruction{Op: OpMapStart})
	itemIdx := c.emitRaw(Instruction{Op: OpMapItem, Offsets: offsets})
	c.instr[startIdx].Next = itemIdx

	entryEntry, entryExits, entryAM, _, err := c.compileField(entries)
	if err != nil {
		return 0, nil, ArrayMapping{}, err
	}
	c.instr[itemIdx].Next = entryEntry
	c.resolve(entryExits, itemIdx)

	endIdx := c.emitRaw(Instruction{Op: OpMapEnd})
	c.instr[itemIdx].IfEnd = endIdx

	c.maps = append(c.maps, MapDefinition{KeyPC: itemIdx, ReturnPC: endIdx})

	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: offsets, Children: []ArrayMapping{entryAM}}
	return startIdx, []patchTarget{{endIdx, "Next"}}, am, nil
}

func (c *compiler) compileDictionary(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	if len(f.Children) != 2 {
		return 0, nil, ArrayMapping{}, compileErr("dictionary %q must have exactly 2 children", f.Name)
	}
	keyField, valField := f.Children[0], f.Children[1]
	var keyBuf, width int
	switch keyField.DataType {
	case schema.U8:
		keyBuf, width = c.allocU8(), 8
	case schema.U16:
		keyBuf, width = c.allocU16(), 16
	case schema.U32:
		keyBuf, width = c.allocU32(), 32
	default:
		keyBuf, width = c.allocU64(), 64
	}
	dictIdx := c.allocDictionary()
	large := valField.DataType == schema.LargeUtf8

	idx := c.emitRaw(Instruction{Op: OpPushDictionary, Buf: keyBuf, Table: dictIdx, Large: large, Width: width})
	am := ArrayMapping{
		Field:      f,
		Validity:   -1,
		Buf:        -1,
		Offsets:    -1,
		Dictionary: dictIdx,
		KeyBuf:     keyBuf,
		Children: []ArrayMapping{
			{Field: keyField, Validity: -1, Buf: -1, Offsets: -1, Table: -1},
			{Field: valField, Validity: -1, Buf: -1, Offsets: -1, Table: -1},
		},
	}
	return idx, []patchTarget{{idx, "Next"}}, am, nil
}

// compileUnion models union values as externally-tagged, single-key
// structs on the wire ({"VariantName": value}), the same representation a
// Rust enum takes under serde's default derive: the wrapping StartStruct
// and a single Str(key) are consumed by compileUnion itself, then the key
// dispatches to the matching variant's subtree by name, and the variant's
// EndStruct is consumed by the UnionEnd that follows it. Declared variants
// tagged with the UnknownVariant strategy compile to a Panic instead of a
// pushable value; selecting one at runtime means the input produced a
// variant name the schema never saw during tracing.
func (c *compiler) compileUnion(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	typeIDs := c.allocU8()
	unionIdx := len(c.unions)
	c.unions = append(c.unions, UnionDefinition{})

	startIdx := c.emitRaw(Instruction{Op: OpStructStart, Table: -1})
	dispatchIdx := c.emitRaw(Instruction{Op: OpVariant, Table: unionIdx, Buf: typeIDs})
	c.instr[startIdx].Next = dispatchIdx

	var variants []VariantDef
	var childAMs []ArrayMapping
	var exits []patchTarget
	for _, variant := range f.Children {
		if variant.Strategy == schema.UnknownVariant {
			pidx := c.emitRaw(Instruction{Op: OpPanic, Panic: fmt.Sprintf("union %q received undeclared variant %q", f.Name, variant.Name)})
			variants = append(variants, VariantDef{Name: variant.Name, JumpPC: pidx})
			childAMs = append(childAMs, ArrayMapping{Field: variant, Validity: -1, Buf: -1, Offsets: -1, Table: -1})
			continue
		}
		entry, vExits, am, _, err := c.compileField(variant)
		if err != nil {
			return 0, nil, ArrayMapping{}, err
		}
		endIdx := c.emitRaw(Instruction{Op: OpUnionEnd})
		c.resolve(vExits, endIdx)
		variants = append(variants, VariantDef{Name: variant.Name, JumpPC: entry})
		childAMs = append(childAMs, am)
		exits = append(exits, patchTarget{endIdx, "Next"})
	}
	c.unions[unionIdx] = UnionDefinition{Variants: variants}

	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: -1, TypeIDs: typeIDs, Table: unionIdx, Children: childAMs}
	return startIdx, exits, am, nil
}

// compileStruct compiles a plain (non-tuple) struct. Field order in
// f.Children only determines the StructDefinition table and the order
// missing fields are checked in; dispatch at runtime is by key name, since
// an object model's key order is not guaranteed (Go map iteration is
// randomized).
func (c *compiler) compileStruct(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	mapAsStruct := f.Strategy == schema.MapAsStruct
	dispatchOp := OpStructField
	if mapAsStruct {
		dispatchOp = OpStructItem
	}

	tableIdx := len(c.structs)
	c.structs = append(c.structs, StructDefinition{})

	startIdx := c.emitRaw(Instruction{Op: OpStructStart, Table: tableIdx})
	dispatchIdx := c.emitRaw(Instruction{Op: dispatchOp, Table: tableIdx})
	c.instr[startIdx].Next = dispatchIdx

	var fields []FieldDef
	var childAMs []ArrayMapping
	for _, child := range f.Children {
		entry, exits, am, nullIdx, err := c.compileField(child)
		if err != nil {
			return 0, nil, ArrayMapping{}, err
		}
		c.resolve(exits, dispatchIdx)
		fields = append(fields, FieldDef{Name: child.Name, JumpPC: entry, NullIdx: nullIdx})
		childAMs = append(childAMs, am)
	}
	c.structs[tableIdx] = StructDefinition{Fields: fields, MapAsStruct: mapAsStruct}

	endIdx := c.emitRaw(Instruction{Op: OpStructEnd, Table: tableIdx})
	c.instr[dispatchIdx].IfEnd = endIdx

	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: -1, Table: tableIdx, Children: childAMs}
	return startIdx, []patchTarget{{endIdx, "Next"}}, am, nil
}

// compileOuterRecord compiles the top-level row, the one struct every
// batch consists of, using the outer-record opcode family
// (OuterRecordStart/Field/End) rather than the generic
// StructStart/Field/End a nested struct uses. The two opcode families
// share the same table-driven, name-based dispatch (see compileStruct's
// note on Go's randomized map iteration) since a row producer is exactly
// as likely to yield a map as any nested struct field is; only the
// instruction's tag differs, so the compiled program is unambiguous about
// which StartStruct/EndStruct pair brackets a whole row versus one of its
// fields.
func (c *compiler) compileOuterRecord(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	mapAsStruct := f.Strategy == schema.MapAsStruct

	tableIdx := len(c.structs)
	c.structs = append(c.structs, StructDefinition{})

	startIdx := c.emitRaw(Instruction{Op: OpOuterRecordStart, Table: tableIdx})
	dispatchIdx := c.emitRaw(Instruction{Op: OpOuterRecordField, Table: tableIdx})
	c.instr[startIdx].Next = dispatchIdx

	var fields []FieldDef
	var childAMs []ArrayMapping
	for _, child := range f.Children {
		entry, exits, am, nullIdx, err := c.compileField(child)
		if err != nil {
			return 0, nil, ArrayMapping{}, err
		}
		c.resolve(exits, dispatchIdx)
		fields = append(fields, FieldDef{Name: child.Name, JumpPC: entry, NullIdx: nullIdx})
		childAMs = append(childAMs, am)
	}
	c.structs[tableIdx] = StructDefinition{Fields: fields, MapAsStruct: mapAsStruct}

	endIdx := c.emitRaw(Instruction{Op: OpOuterRecordEnd, Table: tableIdx})
	c.instr[dispatchIdx].IfEnd = endIdx

	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: -1, Table: tableIdx, Children: childAMs}
	return startIdx, []patchTarget{{endIdx, "Next"}}, am, nil
}

// compileTupleStruct compiles a TupleAsStruct field: a fixed-arity,
// positional sequence of heterogeneous values with no key dispatch.
func (c *compiler) compileTupleStruct(f schema.GenericField) (int, []patchTarget, ArrayMapping, error) {
	startIdx := c.emitRaw(Instruction{Op: OpTupleStructStart})
	pending := []patchTarget{{startIdx, "Next"}}

	var childAMs []ArrayMapping
	for _, child := range f.Children {
		itemIdx := c.emitRaw(Instruction{Op: OpTupleStructItem})
		c.resolve(pending, itemIdx)
		entry, exits, am, _, err := c.compileField(child)
		if err != nil {
			return 0, nil, ArrayMapping{}, err
		}
		c.instr[itemIdx].Next = entry
		pending = exits
		childAMs = append(childAMs, am)
	}

	endIdx := c.emitRaw(Instruction{Op: OpTupleStructEnd})
	c.resolve(pending, endIdx)

	am := ArrayMapping{Field: f, Validity: -1, Buf: -1, Offsets: -1, Table: -1, Children: childAMs}
	return startIdx, []patchTarget{{endIdx, "Next"}}, am, nil
}
