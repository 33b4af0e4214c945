// Package arrowgo materializes compiled columns into arrow-go/v18 arrays,
// the primary of the two vendor ABIs this module targets.
package arrowgo

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vultix/serde-arrow/bytecode"
	"github.com/vultix/serde-arrow/interp"
	"github.com/vultix/serde-arrow/schema"
)

// Adapter builds arrow-go records from interpreted buffers. It carries no
// state of its own; a zero value is ready to use.
type Adapter struct {
	Allocator memory.Allocator
}

func New() *Adapter { return &Adapter{Allocator: memory.NewGoAllocator()} }

func (a *Adapter) mem() memory.Allocator {
	if a.Allocator == nil {
		return memory.NewGoAllocator()
	}
	return a.Allocator
}

// ArrowField translates a GenericField into an arrow.Field, recording any
// Strategy under schema.MetadataKey so it survives a round trip.
func ArrowField(f schema.GenericField) (arrow.Field, error) {
	dt, err := ArrowType(f)
	if err != nil {
		return arrow.Field{}, err
	}
	field := arrow.Field{Name: f.Name, Type: dt, Nullable: f.Nullable}
	if f.Strategy != schema.NoStrategy {
		field.Metadata = arrow.NewMetadata([]string{schema.MetadataKey}, []string{f.Strategy.String()})
	}
	return field, nil
}

// ArrowType translates a GenericField's shape (ignoring name/nullability)
// into an arrow.DataType.
func ArrowType(f schema.GenericField) (arrow.DataType, error) {
	switch f.DataType {
	case schema.Null:
		return arrow.Null, nil
	case schema.Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.I8:
		return arrow.PrimitiveTypes.Int8, nil
	case schema.I16:
		return arrow.PrimitiveTypes.Int16, nil
	case schema.I32:
		return arrow.PrimitiveTypes.Int32, nil
	case schema.I64:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.U8:
		return arrow.PrimitiveTypes.Uint8, nil
	case schema.U16:
		return arrow.PrimitiveTypes.Uint16, nil
	case schema.U32:
		return arrow.PrimitiveTypes.Uint32, nil
	case schema.U64:
		return arrow.PrimitiveTypes.Uint64, nil
	case schema.F32:
		return arrow.PrimitiveTypes.Float32, nil
	case schema.F64:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.Utf8:
		return arrow.BinaryTypes.String, nil
	case schema.LargeUtf8:
		return arrow.BinaryTypes.LargeString, nil
	case schema.Date64:
		return arrow.FixedWidthTypes.Date64, nil
	case schema.List, schema.LargeList:
		if len(f.Children) != 1 {
			return nil, fmt.Errorf("list field %q must have one child", f.Name)
		}
		child, err := ArrowField(f.Children[0])
		if err != nil {
			return nil, err
		}
		if f.DataType == schema.LargeList {
			return arrow.LargeListOf(child.Type), nil
		}
		return arrow.ListOf(child.Type), nil
	case schema.Struct:
		fields := make([]arrow.Field, len(f.Children))
		for i, c := range f.Children {
			cf, err := ArrowField(c)
			if err != nil {
				return nil, err
			}
			fields[i] = cf
		}
		return arrow.StructOf(fields...), nil
	case schema.Map:
		entries := f.Children[0]
		key, err := ArrowType(entries.Children[0])
		if err != nil {
			return nil, err
		}
		val, err := ArrowType(entries.Children[1])
		if err != nil {
			return nil, err
		}
		return arrow.MapOf(key, val), nil
	case schema.Dictionary:
		idx, err := ArrowType(f.Children[0])
		if err != nil {
			return nil, err
		}
		val, err := ArrowType(f.Children[1])
		if err != nil {
			return nil, err
		}
		return &arrow.DictionaryType{IndexType: idx, ValueType: val}, nil
	case schema.Union:
		fields := make([]arrow.Field, len(f.Children))
		codes := make([]arrow.UnionTypeCode, len(f.Children))
		for i, c := range f.Children {
			cf, err := ArrowField(c)
			if err != nil {
				return nil, err
			}
			fields[i] = cf
			codes[i] = arrow.UnionTypeCode(i)
		}
		return arrow.DenseUnionOf(fields, codes), nil
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedDataType, f.DataType)
	}
}

// BuildArray satisfies the root package's Adapter interface.
func (a *Adapter) BuildArray(mapping bytecode.ArrayMapping, buffers *interp.Buffers) (any, error) {
	return a.Build(mapping, buffers)
}

// BuildRecordFields satisfies the root package's Adapter interface: it
// wraps the per-field mappings in a synthetic Struct root and delegates to
// BuildRecord.
func (a *Adapter) BuildRecordFields(mappings []bytecode.ArrayMapping, buffers *interp.Buffers, fields []schema.GenericField) (any, error) {
	root := bytecode.ArrayMapping{
		Field:    schema.GenericField{DataType: schema.Struct, Children: fields},
		Validity: -1,
		Children: mappings,
	}
	return a.BuildRecord(root, buffers)
}

// BuildRecord materializes a full row batch from the root ArrayMapping
// (always a Struct) and its interpreted buffers.
func (a *Adapter) BuildRecord(am bytecode.ArrayMapping, buf *interp.Buffers) (arrow.Record, error) {
	if am.Field.DataType != schema.Struct {
		return nil, fmt.Errorf("BuildRecord requires a Struct root, got %s", am.Field.DataType)
	}
	arr, err := a.Build(am, buf)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	structArr := arr.(*array.Struct)

	cols := make([]arrow.Array, structArr.NumField())
	fields := make([]arrow.Field, structArr.NumField())
	for i := range cols {
		cols[i] = structArr.Field(i)
		fields[i] = structArr.DataType().(*arrow.StructType).Field(i)
	}
	recSchema := arrow.NewSchema(fields, nil)
	return array.NewRecord(recSchema, cols, int64(buf.NumRows)), nil
}

// Build materializes one field's array, top to bottom, by allocating a
// builder for its type and recursing into it via appendInto. This mirrors
// bodkin's builder-tree walk (reader/loader.go's dataLoader/drawTree), but
// drives the walk from already-interpreted flat buffers instead of JSON.
func (a *Adapter) Build(am bytecode.ArrayMapping, buf *interp.Buffers) (arrow.Array, error) {
	dt, err := ArrowType(am.Field)
	if err != nil {
		return nil, err
	}
	if am.Field.DataType == schema.Null {
		return array.NewNull(buf.NumRows), nil
	}
	b := array.NewBuilder(a.mem(), dt)
	defer b.Release()
	if err := a.appendInto(b, am, buf); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

func isValid(buf *interp.Buffers, am bytecode.ArrayMapping, row int) bool {
	if am.Validity < 0 {
		return true
	}
	return buf.U1[am.Validity][row]
}

// rowCount reports how many logical rows this field's arrays span, derived
// from whichever buffer the field actually populates.
func rowCount(am bytecode.ArrayMapping, buf *interp.Buffers) int {
	switch {
	case am.Validity >= 0:
		return len(buf.U1[am.Validity])
	case am.Field.DataType == schema.Struct && len(am.Children) > 0:
		return rowCount(am.Children[0], buf)
	case am.Field.DataType == schema.Union:
		return len(buf.U8[am.TypeIDs])
	case am.Field.DataType == schema.List || am.Field.DataType == schema.LargeList || am.Field.DataType == schema.Map:
		if am.Large {
			return len(buf.U64Offsets[am.Offsets]) - 1
		}
		return len(buf.U32Offsets[am.Offsets]) - 1
	case am.Field.DataType == schema.Utf8:
		return len(buf.U32Offsets[am.Offsets]) - 1
	case am.Field.DataType == schema.LargeUtf8:
		return len(buf.U64Offsets[am.Offsets]) - 1
	case am.Field.DataType == schema.Dictionary:
		return dictKeyLen(am, buf)
	case am.Field.DataType == schema.Bool:
		return len(buf.U1[am.Buf])
	case am.Field.DataType == schema.I8 || am.Field.DataType == schema.U8:
		return len(buf.U8[am.Buf])
	case am.Field.DataType == schema.I16 || am.Field.DataType == schema.U16:
		return len(buf.U16[am.Buf])
	case am.Field.DataType == schema.I32 || am.Field.DataType == schema.U32 || am.Field.DataType == schema.F32:
		return len(buf.U32[am.Buf])
	case am.Field.DataType == schema.I64 || am.Field.DataType == schema.U64 || am.Field.DataType == schema.F64 || am.Field.DataType == schema.Date64:
		return len(buf.U64[am.Buf])
	default:
		return buf.NumRows
	}
}

func dictKeyLen(am bytecode.ArrayMapping, buf *interp.Buffers) int {
	switch am.Children[0].Field.DataType {
	case schema.U8:
		return len(buf.U8[am.KeyBuf])
	case schema.U16:
		return len(buf.U16[am.KeyBuf])
	case schema.U32:
		return len(buf.U32[am.KeyBuf])
	default:
		return len(buf.U64[am.KeyBuf])
	}
}

// appendInto walks one already-allocated builder, appending every row of
// am's data (and recursing into children for nested types).
func (a *Adapter) appendInto(b array.Builder, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	switch am.Field.DataType {
	case schema.Bool:
		bb := b.(*array.BooleanBuilder)
		for i, v := range buf.U1[am.Buf] {
			appendBool(bb, isValid(buf, am, i), v)
		}
	case schema.I8:
		bb := b.(*array.Int8Builder)
		for i, v := range buf.U8[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(int8(v))
		}
	case schema.U8:
		bb := b.(*array.Uint8Builder)
		for i, v := range buf.U8[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(v)
		}
	case schema.I16:
		bb := b.(*array.Int16Builder)
		for i, v := range buf.U16[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(int16(v))
		}
	case schema.U16:
		bb := b.(*array.Uint16Builder)
		for i, v := range buf.U16[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(v)
		}
	case schema.I32:
		bb := b.(*array.Int32Builder)
		for i, v := range buf.U32[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(int32(v))
		}
	case schema.U32:
		bb := b.(*array.Uint32Builder)
		for i, v := range buf.U32[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(v)
		}
	case schema.F32:
		bb := b.(*array.Float32Builder)
		for i, v := range buf.U32[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(math.Float32frombits(v))
		}
	case schema.I64:
		bb := b.(*array.Int64Builder)
		for i, v := range buf.U64[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(int64(v))
		}
	case schema.U64:
		bb := b.(*array.Uint64Builder)
		for i, v := range buf.U64[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(v)
		}
	case schema.F64:
		bb := b.(*array.Float64Builder)
		for i, v := range buf.U64[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(math.Float64frombits(v))
		}
	case schema.Date64:
		bb := b.(*array.Date64Builder)
		for i, v := range buf.U64[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(arrow.Date64(int64(v)))
		}
	case schema.Utf8:
		bb := b.(*array.StringBuilder)
		offs := buf.U32Offsets[am.Offsets]
		data := buf.Utf8Data[am.Offsets]
		for i := 0; i < len(offs)-1; i++ {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(string(data[offs[i]:offs[i+1]]))
		}
	case schema.LargeUtf8:
		bb := b.(*array.LargeStringBuilder)
		offs := buf.U64Offsets[am.Offsets]
		data := buf.LargeUtf8Data[am.Offsets]
		for i := 0; i < len(offs)-1; i++ {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(string(data[offs[i]:offs[i+1]]))
		}
	case schema.List:
		bb := b.(*array.ListBuilder)
		offs := buf.U32Offsets[am.Offsets]
		vb := bb.ValueBuilder()
		if err := a.appendInto(vb, am.Children[0], buf); err != nil {
			return err
		}
		return appendListLike(bb, offs, am, buf)
	case schema.LargeList:
		bb := b.(*array.LargeListBuilder)
		offs := buf.U64Offsets[am.Offsets]
		vb := bb.ValueBuilder()
		if err := a.appendInto(vb, am.Children[0], buf); err != nil {
			return err
		}
		return appendLargeListLike(bb, offs, am, buf)
	case schema.Map:
		return a.appendMap(b.(*array.MapBuilder), am, buf)
	case schema.Struct:
		return a.appendStruct(b.(*array.StructBuilder), am, buf)
	case schema.Dictionary:
		return a.appendDictionary(b, am, buf)
	case schema.Union:
		return a.appendUnion(b, am, buf)
	default:
		return fmt.Errorf("%w: %s", schema.ErrUnsupportedDataType, am.Field.DataType)
	}
	return nil
}

func appendBool(bb *array.BooleanBuilder, valid, v bool) {
	if !valid {
		bb.AppendNull()
		return
	}
	bb.Append(v)
}

func appendListLike(bb *array.ListBuilder, offs []uint32, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	for i := 0; i < len(offs)-1; i++ {
		if !isValid(buf, am, i) {
			bb.AppendNull()
			continue
		}
		bb.Append(true)
	}
	return nil
}

func appendLargeListLike(bb *array.LargeListBuilder, offs []uint64, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	for i := 0; i < len(offs)-1; i++ {
		if !isValid(buf, am, i) {
			bb.AppendNull()
			continue
		}
		bb.Append(true)
	}
	return nil
}

func (a *Adapter) appendMap(bb *array.MapBuilder, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	entries := am.Children[0]
	offs := buf.U32Offsets[am.Offsets]

	if err := a.appendInto(bb.KeyBuilder(), entries.Children[0], buf); err != nil {
		return err
	}
	if err := a.appendInto(bb.ItemBuilder(), entries.Children[1], buf); err != nil {
		return err
	}
	for i := 0; i < len(offs)-1; i++ {
		if !isValid(buf, am, i) {
			bb.AppendNull()
			continue
		}
		bb.Append(true)
	}
	return nil
}

func (a *Adapter) appendStruct(bb *array.StructBuilder, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	for i, c := range am.Children {
		if err := a.appendInto(bb.FieldBuilder(i), c, buf); err != nil {
			return err
		}
	}
	rows := rowCount(am, buf)
	for i := 0; i < rows; i++ {
		if !isValid(buf, am, i) {
			bb.AppendNull()
			continue
		}
		bb.Append(true)
	}
	return nil
}

func (a *Adapter) appendDictionary(b array.Builder, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	sb, ok := b.(*array.BinaryDictionaryBuilder)
	if !ok {
		return fmt.Errorf("dictionary field %q: unsupported value type for builder %T", am.Field.Name, b)
	}
	dict := buf.Dictionaries[am.Dictionary]
	values := make([]string, dict.Len())
	for p, i := dict.Oldest(), 0; p != nil; p, i = p.Next(), i+1 {
		values[p.Value] = p.Key
	}

	var indices []uint64
	switch am.Children[0].Field.DataType {
	case schema.U8:
		for _, v := range buf.U8[am.KeyBuf] {
			indices = append(indices, uint64(v))
		}
	case schema.U16:
		for _, v := range buf.U16[am.KeyBuf] {
			indices = append(indices, uint64(v))
		}
	case schema.U32:
		for _, v := range buf.U32[am.KeyBuf] {
			indices = append(indices, uint64(v))
		}
	default:
		indices = append(indices, buf.U64[am.KeyBuf]...)
	}

	for i, idx := range indices {
		if !isValid(buf, am, i) {
			sb.AppendNull()
			continue
		}
		if err := sb.AppendString(values[idx]); err != nil {
			return err
		}
	}
	return nil
}

// appendUnion drives a *array.DenseUnionBuilder the same way appendInto
// drives every other nested builder: one Append(typeCode) per row picks the
// active child, then each variant's own values are appended in turn via the
// builder returned by Child.
func (a *Adapter) appendUnion(b array.Builder, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	ub, ok := b.(*array.DenseUnionBuilder)
	if !ok {
		return fmt.Errorf("union field %q: unsupported builder %T", am.Field.Name, b)
	}
	tags := buf.U8[am.TypeIDs]

	// Each variant's values were appended by the interpreter in row order
	// restricted to that variant, so replay them through per-variant
	// cursors keyed by how many of that variant's rows we've consumed.
	cursors := make([]int, len(am.Children))
	childBuilders := make([]array.Builder, len(am.Children))
	for i := range am.Children {
		childBuilders[i] = ub.Child(i)
	}

	for _, tag := range tags {
		ub.Append(arrow.UnionTypeCode(tag))
		row := cursors[tag]
		cursors[tag]++
		if err := appendOneUnionValue(childBuilders[tag], am.Children[tag], buf, row); err != nil {
			return err
		}
	}
	return nil
}

// appendOneUnionValue appends the single value at the variant-local index
// row into a union child builder. Only I64, I32, F64, Bool and Utf8
// variants are handled; a variant of any other type, nested shapes
// included, returns ErrUnsupportedDataType.
func appendOneUnionValue(b array.Builder, am bytecode.ArrayMapping, buf *interp.Buffers, row int) error {
	switch am.Field.DataType {
	case schema.I64:
		bb := b.(*array.Int64Builder)
		bb.Append(int64(buf.U64[am.Buf][row]))
	case schema.I32:
		bb := b.(*array.Int32Builder)
		bb.Append(int32(buf.U32[am.Buf][row]))
	case schema.F64:
		bb := b.(*array.Float64Builder)
		bb.Append(math.Float64frombits(buf.U64[am.Buf][row]))
	case schema.Bool:
		bb := b.(*array.BooleanBuilder)
		bb.Append(buf.U1[am.Buf][row])
	case schema.Utf8:
		bb := b.(*array.StringBuilder)
		offs := buf.U32Offsets[am.Offsets]
		data := buf.Utf8Data[am.Offsets]
		bb.Append(string(data[offs[row]:offs[row+1]]))
	default:
		return fmt.Errorf("%w: union variant of type %s", schema.ErrUnsupportedDataType, am.Field.DataType)
	}
	return nil
}
