// Package schema holds the generic (vendor-agnostic) field model the
// bytecode compiler consumes, and the streaming tracer that infers it by
// observing an event.Source.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// DataType is the closed set of column types the compiler understands.
// Arrow types outside this enumeration are not supported; translating one
// at the vendor boundary produces ErrUnsupportedDataType.
type DataType int

const (
	Null DataType = iota
	Bool
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F16
	F32
	F64
	Utf8
	LargeUtf8
	Date64
	List
	LargeList
	Struct
	Map
	Union
	Dictionary
)

func (d DataType) String() string {
	switch d {
	case Null:
		return "Null"
	case Bool:
		return "Bool"
	case I8:
		return "I8"
	case I16:
		return "I16"
	case I32:
		return "I32"
	case I64:
		return "I64"
	case U8:
		return "U8"
	case U16:
		return "U16"
	case U32:
		return "U32"
	case U64:
		return "U64"
	case F16:
		return "F16"
	case F32:
		return "F32"
	case F64:
		return "F64"
	case Utf8:
		return "Utf8"
	case LargeUtf8:
		return "LargeUtf8"
	case Date64:
		return "Date64"
	case List:
		return "List"
	case LargeList:
		return "LargeList"
	case Struct:
		return "Struct"
	case Map:
		return "Map"
	case Union:
		return "Union"
	case Dictionary:
		return "Dictionary"
	default:
		return "Unknown"
	}
}

// IsInteger reports whether d is any signed or unsigned integer width,
// the constraint the Dictionary key child must satisfy.
func (d DataType) IsInteger() bool {
	switch d {
	case I8, I16, I32, I64, U8, U16, U32, U64:
		return true
	default:
		return false
	}
}

// Strategy disambiguates a field's wire representation without growing
// DataType. See MetadataKey for how it round-trips through Arrow field
// metadata.
type Strategy int

const (
	NoStrategy Strategy = iota
	UtcStrAsDate64
	NaiveStrAsDate64
	MapAsStruct
	TupleAsStruct
	UnknownVariant
)

func (s Strategy) String() string {
	switch s {
	case UtcStrAsDate64:
		return "UtcStrAsDate64"
	case NaiveStrAsDate64:
		return "NaiveStrAsDate64"
	case MapAsStruct:
		return "MapAsStruct"
	case TupleAsStruct:
		return "TupleAsStruct"
	case UnknownVariant:
		return "UnknownVariant"
	default:
		return ""
	}
}

// ParseStrategy parses the metadata string form of a Strategy. Unknown
// values are rejected per the spec's external interface contract.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "UtcStrAsDate64":
		return UtcStrAsDate64, nil
	case "NaiveStrAsDate64":
		return NaiveStrAsDate64, nil
	case "MapAsStruct":
		return MapAsStruct, nil
	case "TupleAsStruct":
		return TupleAsStruct, nil
	case "UnknownVariant":
		return UnknownVariant, nil
	default:
		return NoStrategy, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// MetadataKey is the field-metadata key a Strategy travels under when a
// GenericField round-trips through a vendor schema's metadata map.
const MetadataKey = "SERDE_ARROW:strategy"

// Errors. A single kind suffices (per the spec's error-handling design);
// every failure carries a human-readable message via fmt.Errorf wrapping.
var (
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrBadShape           = errors.New("bad schema shape")
	ErrInconsistentNull   = errors.New("inconsistent nullability")
	ErrUnsupportedDataType = errors.New("not supported")
)

// GenericField is a recursive field description: the vendor-agnostic
// counterpart of an Arrow field, carrying an optional Strategy and an
// ordered list of children.
type GenericField struct {
	Name     string
	DataType DataType
	Nullable bool
	Strategy Strategy
	Children []GenericField
}

func NewField(name string, dt DataType, nullable bool) GenericField {
	return GenericField{Name: name, DataType: dt, Nullable: nullable}
}

// Validate checks the shape invariants from spec.md §3 for this field and
// its subtree.
func (f GenericField) Validate() error {
	switch f.DataType {
	case Bool, I8, I16, I32, I64, U8, U16, U32, U64, F16, F32, F64, Utf8, LargeUtf8, Date64, Null:
		if len(f.Children) != 0 {
			return fmt.Errorf("%w: %s %q must have no children", ErrBadShape, f.DataType, f.Name)
		}
	case List, LargeList:
		if len(f.Children) != 1 {
			return fmt.Errorf("%w: %s %q must have exactly one child", ErrBadShape, f.DataType, f.Name)
		}
	case Map:
		if err := f.validateMap(); err != nil {
			return err
		}
	case Struct:
		seen := map[string]bool{}
		for _, c := range f.Children {
			if seen[c.Name] {
				return fmt.Errorf("%w: struct %q has duplicate child name %q", ErrBadShape, f.Name, c.Name)
			}
			seen[c.Name] = true
		}
	case Union:
		if len(f.Children) == 0 {
			return fmt.Errorf("%w: union %q must have at least one variant", ErrBadShape, f.Name)
		}
		seen := map[string]bool{}
		for _, c := range f.Children {
			if c.Name == "" {
				return fmt.Errorf("%w: union %q variant must be named", ErrBadShape, f.Name)
			}
			if seen[c.Name] {
				return fmt.Errorf("%w: union %q has duplicate variant name %q", ErrBadShape, f.Name, c.Name)
			}
			seen[c.Name] = true
		}
	case Dictionary:
		if len(f.Children) != 2 {
			return fmt.Errorf("%w: dictionary %q must have exactly 2 children", ErrBadShape, f.Name)
		}
		if !f.Children[0].DataType.IsInteger() {
			return fmt.Errorf("%w: dictionary %q key child must be an integer type, got %s", ErrBadShape, f.Name, f.Children[0].DataType)
		}
		if f.Children[1].DataType != Utf8 && f.Children[1].DataType != LargeUtf8 {
			return fmt.Errorf("%w: dictionary %q value child must be Utf8/LargeUtf8, got %s", ErrBadShape, f.Name, f.Children[1].DataType)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDataType, f.DataType)
	}
	for _, c := range f.Children {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateMap checks: exactly one child, which is a non-nullable Struct
// with exactly two children named "key" and "value" in order.
func (f GenericField) validateMap() error {
	if len(f.Children) != 1 {
		return fmt.Errorf("%w: map %q must have exactly one child (entries)", ErrBadShape, f.Name)
	}
	entries := f.Children[0]
	if entries.DataType != Struct {
		return fmt.Errorf("%w: map %q entries child must be a Struct", ErrBadShape, f.Name)
	}
	if entries.Nullable {
		return fmt.Errorf("%w: map %q entries struct must be non-nullable", ErrBadShape, f.Name)
	}
	if len(entries.Children) != 2 {
		return fmt.Errorf("%w: map %q entries struct must have exactly 2 children", ErrBadShape, f.Name)
	}
	if entries.Children[0].Name != "key" || entries.Children[1].Name != "value" {
		return fmt.Errorf("%w: map %q entries children must be named key, value in order", ErrBadShape, f.Name)
	}
	return nil
}

// String renders a compact debug form, e.g. `name: List<item: I32?>?`.
func (f GenericField) String() string {
	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f GenericField) write(b *strings.Builder) {
	b.WriteString(f.Name)
	b.WriteString(": ")
	b.WriteString(f.DataType.String())
	if len(f.Children) > 0 {
		b.WriteString("<")
		for i, c := range f.Children {
			if i > 0 {
				b.WriteString(", ")
			}
			c.write(b)
		}
		b.WriteString(">")
	}
	if f.Nullable {
		b.WriteString("?")
	}
}
