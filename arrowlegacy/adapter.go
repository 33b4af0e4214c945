// Package arrowlegacy materializes compiled columns against the older
// github.com/apache/arrow/go/arrow module, for callers pinned to that
// dependency. Coverage is intentionally reduced: nested container types
// (Map, Dictionary, Union) return ErrUnsupportedByAdapter rather than being
// approximated, since the legacy module's builder surface doesn't carry
// the same nested-type guarantees as arrow-go/v18.
package arrowlegacy

import (
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/memory"

	"github.com/vultix/serde-arrow/bytecode"
	"github.com/vultix/serde-arrow/interp"
	"github.com/vultix/serde-arrow/schema"
)

// ErrUnsupportedByAdapter is returned for DataTypes this reduced adapter
// does not materialize: Map, Dictionary, Union, and LargeList.
var ErrUnsupportedByAdapter = errors.New("arrowlegacy: unsupported by this adapter")

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

// ArrowType translates a supported GenericField shape into a legacy
// arrow.DataType. Map, Dictionary, and Union are rejected.
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
	case schema.Utf8, schema.LargeUtf8:
		return arrow.BinaryTypes.String, nil
	case schema.Date64:
		return arrow.FixedWidthTypes.Date64, nil
	case schema.List:
		if len(f.Children) != 1 {
			return nil, fmt.Errorf("list field %q must have one child", f.Name)
		}
		child, err := ArrowType(f.Children[0])
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(child), nil
	case schema.Struct:
		fields := make([]arrow.Field, len(f.Children))
		for i, c := range f.Children {
			ct, err := ArrowType(c)
			if err != nil {
				return nil, err
			}
			fields[i] = arrow.Field{Name: c.Name, Type: ct, Nullable: c.Nullable}
		}
		return arrow.StructOf(fields...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedByAdapter, f.DataType)
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

// BuildRecord materializes a row batch from the root ArrayMapping, which
// must be a Struct with no Map/Dictionary/Union/LargeList descendants.
func (a *Adapter) BuildRecord(am bytecode.ArrayMapping, buf *interp.Buffers) (array.Record, error) {
	if am.Field.DataType != schema.Struct {
		return nil, fmt.Errorf("BuildRecord requires a Struct root, got %s", am.Field.DataType)
	}
	arr, err := a.Build(am, buf)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	structArr := arr.(*array.Struct)

	cols := make([]array.Interface, structArr.NumField())
	fields := make([]arrow.Field, structArr.NumField())
	for i := range cols {
		cols[i] = structArr.Field(i)
		fields[i] = structArr.DataType().(*arrow.StructType).Field(i)
	}
	recSchema := arrow.NewSchema(fields, nil)
	return array.NewRecord(recSchema, cols, int64(buf.NumRows)), nil
}

func (a *Adapter) Build(am bytecode.ArrayMapping, buf *interp.Buffers) (array.Interface, error) {
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

func (a *Adapter) appendInto(b array.Builder, am bytecode.ArrayMapping, buf *interp.Buffers) error {
	switch am.Field.DataType {
	case schema.Bool:
		bb := b.(*array.BooleanBuilder)
		for i, v := range buf.U1[am.Buf] {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(v)
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
		bb := b.(*array.StringBuilder)
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
		if err := a.appendInto(bb.ValueBuilder(), am.Children[0], buf); err != nil {
			return err
		}
		for i := 0; i < len(offs)-1; i++ {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(true)
		}
	case schema.Struct:
		bb := b.(*array.StructBuilder)
		for i, c := range am.Children {
			if err := a.appendInto(bb.FieldBuilder(i), c, buf); err != nil {
				return err
			}
		}
		rows := buf.NumRows
		if am.Validity >= 0 {
			rows = len(buf.U1[am.Validity])
		}
		for i := 0; i < rows; i++ {
			if !isValid(buf, am, i) {
				bb.AppendNull()
				continue
			}
			bb.Append(true)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedByAdapter, am.Field.DataType)
	}
	return nil
}
