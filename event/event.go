// Package event defines the tagged value stream shared between the
// record-oriented object model and the columnar serializer. Both the
// schema tracer and the bytecode interpreter are driven by this vocabulary.
package event

import "fmt"

// Kind discriminates the tagged variants of Event.
type Kind int

const (
	KindBool Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindStr
	KindOwnedStr
	KindNull
	KindSome
	KindStartSequence
	KindEndSequence
	KindStartStruct
	KindEndStruct
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindI8:
		return "I8"
	case KindI16:
		return "I16"
	case KindI32:
		return "I32"
	case KindI64:
		return "I64"
	case KindU8:
		return "U8"
	case KindU16:
		return "U16"
	case KindU32:
		return "U32"
	case KindU64:
		return "U64"
	case KindF32:
		return "F32"
	case KindF64:
		return "F64"
	case KindStr:
		return "Str"
	case KindOwnedStr:
		return "OwnedStr"
	case KindNull:
		return "Null"
	case KindSome:
		return "Some"
	case KindStartSequence:
		return "StartSequence"
	case KindEndSequence:
		return "EndSequence"
	case KindStartStruct:
		return "StartStruct"
	case KindEndStruct:
		return "EndStruct"
	default:
		return "Unknown"
	}
}

// Event is one token in the serialization protocol between the record
// model and the columnar model. Only the fields relevant to Kind are
// populated; the zero value of the others is ignored.
//
// StartX/EndX tokens must be balanced within any subtree. Some and Null
// always precede a value slot, never appear mid-value. Str borrows its
// string from the producer and is only valid until the next call to the
// event source; OwnedStr carries a string the consumer may retain.
type Event struct {
	Kind Kind

	Bool  bool
	I8    int8
	I16   int16
	I32   int32
	I64   int64
	U8    uint8
	U16   uint16
	U32   uint32
	U64   uint64
	F32   float32
	F64   float64
	Str   *string
	Owned string
}

func (e Event) String() string {
	switch e.Kind {
	case KindStr:
		if e.Str != nil {
			return fmt.Sprintf("Str(%q)", *e.Str)
		}
		return "Str(nil)"
	case KindOwnedStr:
		return fmt.Sprintf("OwnedStr(%q)", e.Owned)
	case KindBool:
		return fmt.Sprintf("Bool(%v)", e.Bool)
	case KindI8, KindI16, KindI32, KindI64:
		return fmt.Sprintf("%s(%d)", e.Kind, e.asInt())
	case KindU8, KindU16, KindU32, KindU64:
		return fmt.Sprintf("%s(%d)", e.Kind, e.asUint())
	case KindF32:
		return fmt.Sprintf("F32(%v)", e.F32)
	case KindF64:
		return fmt.Sprintf("F64(%v)", e.F64)
	default:
		return e.Kind.String()
	}
}

func (e Event) asInt() int64 {
	switch e.Kind {
	case KindI8:
		return int64(e.I8)
	case KindI16:
		return int64(e.I16)
	case KindI32:
		return int64(e.I32)
	default:
		return e.I64
	}
}

func (e Event) asUint() uint64 {
	switch e.Kind {
	case KindU8:
		return uint64(e.U8)
	case KindU16:
		return uint64(e.U16)
	case KindU32:
		return uint64(e.U32)
	default:
		return e.U64
	}
}

// StrValue returns the borrowed-or-owned string payload of a Str/OwnedStr
// event, whichever variant it is.
func (e Event) StrValue() string {
	switch e.Kind {
	case KindStr:
		if e.Str == nil {
			return ""
		}
		return *e.Str
	case KindOwnedStr:
		return e.Owned
	default:
		return ""
	}
}

// Constructors mirroring the tagged union's variants.

func Bool(b bool) Event           { return Event{Kind: KindBool, Bool: b} }
func I8(v int8) Event             { return Event{Kind: KindI8, I8: v} }
func I16(v int16) Event           { return Event{Kind: KindI16, I16: v} }
func I32(v int32) Event           { return Event{Kind: KindI32, I32: v} }
func I64(v int64) Event           { return Event{Kind: KindI64, I64: v} }
func U8(v uint8) Event            { return Event{Kind: KindU8, U8: v} }
func U16(v uint16) Event          { return Event{Kind: KindU16, U16: v} }
func U32(v uint32) Event          { return Event{Kind: KindU32, U32: v} }
func U64(v uint64) Event          { return Event{Kind: KindU64, U64: v} }
func F32(v float32) Event         { return Event{Kind: KindF32, F32: v} }
func F64(v float64) Event         { return Event{Kind: KindF64, F64: v} }
func Str(s *string) Event         { return Event{Kind: KindStr, Str: s} }
func OwnedStr(s string) Event     { return Event{Kind: KindOwnedStr, Owned: s} }
func Null() Event                 { return Event{Kind: KindNull} }
func Some() Event                 { return Event{Kind: KindSome} }
func StartSequence() Event        { return Event{Kind: KindStartSequence} }
func EndSequence() Event          { return Event{Kind: KindEndSequence} }
func StartStruct() Event          { return Event{Kind: KindStartStruct} }
func EndStruct() Event            { return Event{Kind: KindEndStruct} }

// Sink accepts a stream of events, e.g. a schema tracer or the bytecode
// interpreter.
type Sink interface {
	Accept(e Event) error
	Finish() error
}

// Source produces a stream of events, terminated by io.EOF-like (nil, nil)
// semantics: Next returns ok=false with a nil error at a clean end of
// stream.
type Source interface {
	Next() (Event, bool, error)
}
