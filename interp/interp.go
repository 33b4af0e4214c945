package interp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vultix/serde-arrow/bytecode"
	"github.com/vultix/serde-arrow/event"
)

var (
	// ErrPanic is returned when the program executes an OpPanic
	// instruction, e.g. an undeclared union variant arrived on the wire.
	ErrPanic = errors.New("interpreter panic")
	// ErrUnexpectedEvent is returned when the event stream doesn't match
	// the shape the compiled program expects.
	ErrUnexpectedEvent = errors.New("unexpected event")
)

type interp struct {
	prog *bytecode.Program
	buf  *Buffers
	src  *event.Peekable

	seen         [][]bool
	listCountU32 []int
	listCountU64 []int
}

// Run executes prog against src until the program reaches ProgramEnd,
// producing one row per value inside the top-level sequence; events after
// the closing EndSequence are not read.
func Run(prog *bytecode.Program, src event.Source) (*Buffers, error) {
	in := &interp{
		prog:         prog,
		buf:          NewBuffers(prog.Buffers),
		src:          event.NewPeekable(src),
		seen:         make([][]bool, len(prog.Structs)),
		listCountU32: make([]int, prog.Buffers.U32Offsets),
		listCountU64: make([]int, prog.Buffers.U64Offsets),
	}
	for i, sd := range prog.Structs {
		in.seen[i] = make([]bool, len(sd.Fields))
	}

	pc := 0
	for {
		instr := prog.Instructions[pc]
		next, err := in.step(pc, instr)
		if err != nil {
			return nil, err
		}
		if instr.Op == bytecode.OpProgramEnd {
			return in.buf, nil
		}
		pc = next
	}
}

func (in *interp) step(pc int, instr bytecode.Instruction) (int, error) {
	switch instr.Op {
	case bytecode.OpProgramEnd:
		return pc, nil

	case bytecode.OpPanic:
		return 0, fmt.Errorf("%w: %s", ErrPanic, instr.Panic)

	case bytecode.OpOuterSequenceStart:
		if err := in.expect(event.KindStartSequence); err != nil {
			return 0, err
		}
		return instr.Next, nil
	case bytecode.OpOuterSequenceItem:
		e, ok, err := in.src.Peek()
		if err != nil {
			return 0, err
		}
		if !ok || e.Kind == event.KindEndSequence {
			return instr.IfEnd, nil
		}
		in.buf.NumRows++
		return instr.Next, nil
	case bytecode.OpOuterSequenceEnd:
		if err := in.expect(event.KindEndSequence); err != nil {
			return 0, err
		}
		return instr.Next, nil

	case bytecode.OpOuterRecordStart:
		if err := in.expect(event.KindStartStruct); err != nil {
			return 0, err
		}
		if instr.Table >= 0 {
			for i := range in.seen[instr.Table] {
				in.seen[instr.Table][i] = false
			}
		}
		return instr.Next, nil
	case bytecode.OpOuterRecordField:
		return in.structField(pc, instr, in.prog.Structs[instr.Table].MapAsStruct)
	case bytecode.OpOuterRecordEnd:
		if err := in.expect(event.KindEndStruct); err != nil {
			return 0, err
		}
		sd := in.prog.Structs[instr.Table]
		for i, fd := range sd.Fields {
			if in.seen[instr.Table][i] {
				continue
			}
			if fd.NullIdx < 0 {
				return 0, fmt.Errorf("%w: missing required field %q", ErrUnexpectedEvent, fd.Name)
			}
			in.padNull(in.prog.Nulls[fd.NullIdx])
		}
		return instr.Next, nil

	case bytecode.OpListStart, bytecode.OpLargeListStart:
		if err := in.expect(event.KindStartSequence); err != nil {
			return 0, err
		}
		return instr.Next, nil
	case bytecode.OpListItem:
		return in.listItem(instr, &in.listCountU32[instr.Offsets])
	case bytecode.OpLargeListItem:
		return in.largeListItem(instr, &in.listCountU64[instr.Offsets])
	case bytecode.OpListEnd:
		last := in.buf.U32Offsets[instr.Offsets][len(in.buf.U32Offsets[instr.Offsets])-1]
		in.buf.U32Offsets[instr.Offsets] = append(in.buf.U32Offsets[instr.Offsets], last+uint32(in.listCountU32[instr.Offsets]))
		in.listCountU32[instr.Offsets] = 0
		return instr.Next, nil
	case bytecode.OpLargeListEnd:
		last := in.buf.U64Offsets[instr.Offsets][len(in.buf.U64Offsets[instr.Offsets])-1]
		in.buf.U64Offsets[instr.Offsets] = append(in.buf.U64Offsets[instr.Offsets], last+uint64(in.listCountU64[instr.Offsets]))
		in.listCountU64[instr.Offsets] = 0
		return instr.Next, nil

	case bytecode.OpMapStart:
		if err := in.expect(event.KindStartSequence); err != nil {
			return 0, err
		}
		return instr.Next, nil
	case bytecode.OpMapItem:
		return in.listItem(instr, &in.listCountU32[instr.Offsets])
	case bytecode.OpMapEnd:
		last := in.buf.U32Offsets[instr.Offsets][len(in.buf.U32Offsets[instr.Offsets])-1]
		in.buf.U32Offsets[instr.Offsets] = append(in.buf.U32Offsets[instr.Offsets], last+uint32(in.listCountU32[instr.Offsets]))
		in.listCountU32[instr.Offsets] = 0
		return instr.Next, nil

	case bytecode.OpStructStart:
		if err := in.expect(event.KindStartStruct); err != nil {
			return 0, err
		}
		if instr.Table >= 0 {
			for i := range in.seen[instr.Table] {
				in.seen[instr.Table][i] = false
			}
		}
		return instr.Next, nil
	case bytecode.OpStructField:
		return in.structField(pc, instr, false)
	case bytecode.OpStructItem:
		return in.structField(pc, instr, true)
	case bytecode.OpStructEnd:
		if err := in.expect(event.KindEndStruct); err != nil {
			return 0, err
		}
		sd := in.prog.Structs[instr.Table]
		for i, fd := range sd.Fields {
			if in.seen[instr.Table][i] {
				continue
			}
			if fd.NullIdx < 0 {
				return 0, fmt.Errorf("%w: missing required field %q", ErrUnexpectedEvent, fd.Name)
			}
			in.padNull(in.prog.Nulls[fd.NullIdx])
		}
		return instr.Next, nil

	case bytecode.OpTupleStructStart:
		if err := in.expect(event.KindStartSequence); err != nil {
			return 0, err
		}
		return instr.Next, nil
	case bytecode.OpTupleStructItem:
		return instr.Next, nil
	case bytecode.OpTupleStructEnd:
		if err := in.expect(event.KindEndSequence); err != nil {
			return 0, err
		}
		return instr.Next, nil

	case bytecode.OpVariant:
		e, ok, err := in.src.Next()
		if err != nil {
			return 0, err
		}
		if !ok || (e.Kind != event.KindStr && e.Kind != event.KindOwnedStr) {
			return 0, fmt.Errorf("%w: union expected a variant-name key, got %v", ErrUnexpectedEvent, e)
		}
		name := e.StrValue()
		ud := in.prog.Unions[instr.Table]
		for i, v := range ud.Variants {
			if v.Name == name {
				in.buf.U8[instr.Buf] = append(in.buf.U8[instr.Buf], uint8(i))
				return v.JumpPC, nil
			}
		}
		return 0, fmt.Errorf("%w: union received undeclared variant %q", ErrUnexpectedEvent, name)
	case bytecode.OpUnionEnd:
		if err := in.expect(event.KindEndStruct); err != nil {
			return 0, err
		}
		return instr.Next, nil

	case bytecode.OpOptionMarker:
		// A nullable field's value is announced by Null (absent) or, at
		// the producer's option, a Some marker immediately before a
		// present value; a present value may also arrive with no marker
		// at all. Peek rather than consume so a bare value is left
		// intact for the inner instruction to read.
		e, ok, err := in.src.Peek()
		if err != nil {
			return 0, err
		}
		nd := in.prog.Nulls[instr.Table]
		if !ok || e.Kind == event.KindNull {
			if ok {
				if _, _, err := in.src.Next(); err != nil {
					return 0, err
				}
			}
			in.padNull(nd)
			return instr.IfNone, nil
		}
		in.buf.U1[nd.ValidityBuf] = append(in.buf.U1[nd.ValidityBuf], true)
		if e.Kind == event.KindSome {
			if _, _, err := in.src.Next(); err != nil {
				return 0, err
			}
		}
		return instr.Next, nil

	case bytecode.OpPushNull:
		if err := in.expect(event.KindNull); err != nil {
			return 0, err
		}
		return instr.Next, nil
	case bytecode.OpPushBool:
		e, err := in.consume(event.KindBool)
		if err != nil {
			return 0, err
		}
		in.buf.U1[instr.Buf] = append(in.buf.U1[instr.Buf], e.Bool)
		return instr.Next, nil
	case bytecode.OpPushI8:
		e, err := in.consume(event.KindI8)
		if err != nil {
			return 0, err
		}
		in.buf.U8[instr.Buf] = append(in.buf.U8[instr.Buf], uint8(e.I8))
		return instr.Next, nil
	case bytecode.OpPushU8:
		e, err := in.consume(event.KindU8)
		if err != nil {
			return 0, err
		}
		in.buf.U8[instr.Buf] = append(in.buf.U8[instr.Buf], e.U8)
		return instr.Next, nil
	case bytecode.OpPushI16:
		e, err := in.consume(event.KindI16)
		if err != nil {
			return 0, err
		}
		in.buf.U16[instr.Buf] = append(in.buf.U16[instr.Buf], uint16(e.I16))
		return instr.Next, nil
	case bytecode.OpPushU16:
		e, err := in.consume(event.KindU16)
		if err != nil {
			return 0, err
		}
		in.buf.U16[instr.Buf] = append(in.buf.U16[instr.Buf], e.U16)
		return instr.Next, nil
	case bytecode.OpPushI32:
		e, err := in.consume(event.KindI32)
		if err != nil {
			return 0, err
		}
		in.buf.U32[instr.Buf] = append(in.buf.U32[instr.Buf], uint32(e.I32))
		return instr.Next, nil
	case bytecode.OpPushU32:
		e, err := in.consume(event.KindU32)
		if err != nil {
			return 0, err
		}
		in.buf.U32[instr.Buf] = append(in.buf.U32[instr.Buf], e.U32)
		return instr.Next, nil
	case bytecode.OpPushF32:
		e, err := in.consume(event.KindF32)
		if err != nil {
			return 0, err
		}
		in.buf.U32[instr.Buf] = append(in.buf.U32[instr.Buf], math.Float32bits(e.F32))
		return instr.Next, nil
	case bytecode.OpPushI64:
		e, err := in.consumeAny(event.KindI64, event.KindI32, event.KindI16, event.KindI8)
		if err != nil {
			return 0, err
		}
		in.buf.U64[instr.Buf] = append(in.buf.U64[instr.Buf], uint64(widenInt(e)))
		return instr.Next, nil
	case bytecode.OpPushU64:
		e, err := in.consume(event.KindU64)
		if err != nil {
			return 0, err
		}
		in.buf.U64[instr.Buf] = append(in.buf.U64[instr.Buf], e.U64)
		return instr.Next, nil
	case bytecode.OpPushF64:
		e, err := in.consumeAny(event.KindF64, event.KindF32)
		if err != nil {
			return 0, err
		}
		v := e.F64
		if e.Kind == event.KindF32 {
			v = float64(e.F32)
		}
		in.buf.U64[instr.Buf] = append(in.buf.U64[instr.Buf], math.Float64bits(v))
		return instr.Next, nil

	case bytecode.OpPushUtf8:
		e, err := in.consumeAny(event.KindStr, event.KindOwnedStr)
		if err != nil {
			return 0, err
		}
		in.pushUtf8(instr.Offsets, e.StrValue())
		return instr.Next, nil
	case bytecode.OpPushLargeUtf8:
		e, err := in.consumeAny(event.KindStr, event.KindOwnedStr)
		if err != nil {
			return 0, err
		}
		in.pushLargeUtf8(instr.Offsets, e.StrValue())
		return instr.Next, nil

	case bytecode.OpPushDate64FromUtcStr:
		e, err := in.consumeAny(event.KindStr, event.KindOwnedStr)
		if err != nil {
			return 0, err
		}
		t, perr := time.Parse(time.RFC3339, e.StrValue())
		if perr != nil {
			return 0, fmt.Errorf("%w: invalid UTC date string %q: %v", ErrUnexpectedEvent, e.StrValue(), perr)
		}
		in.buf.U64[instr.Buf] = append(in.buf.U64[instr.Buf], uint64(t.UnixMilli()))
		return instr.Next, nil
	case bytecode.OpPushDate64FromNaiveStr:
		e, err := in.consumeAny(event.KindStr, event.KindOwnedStr)
		if err != nil {
			return 0, err
		}
		t, perr := time.Parse("2006-01-02T15:04:05", e.StrValue())
		if perr != nil {
			return 0, fmt.Errorf("%w: invalid naive date string %q: %v", ErrUnexpectedEvent, e.StrValue(), perr)
		}
		in.buf.U64[instr.Buf] = append(in.buf.U64[instr.Buf], uint64(t.UnixMilli()))
		return instr.Next, nil

	case bytecode.OpPushDictionary:
		e, err := in.consumeAny(event.KindStr, event.KindOwnedStr)
		if err != nil {
			return 0, err
		}
		in.pushDictionary(instr, e.StrValue())
		return instr.Next, nil

	default:
		return 0, fmt.Errorf("%w: unhandled opcode %s", ErrUnexpectedEvent, instr.Op)
	}
}

func (in *interp) expect(kind event.Kind) error {
	_, err := in.consume(kind)
	return err
}

func (in *interp) consume(kind event.Kind) (event.Event, error) {
	e, ok, err := in.src.Next()
	if err != nil {
		return event.Event{}, err
	}
	if !ok || e.Kind != kind {
		return event.Event{}, fmt.Errorf("%w: expected %s, got %v", ErrUnexpectedEvent, kind, e)
	}
	return e, nil
}

func (in *interp) consumeAny(kinds ...event.Kind) (event.Event, error) {
	e, ok, err := in.src.Next()
	if err != nil {
		return event.Event{}, err
	}
	if ok {
		for _, k := range kinds {
			if e.Kind == k {
				return e, nil
			}
		}
	}
	return event.Event{}, fmt.Errorf("%w: expected one of %v, got %v", ErrUnexpectedEvent, kinds, e)
}

// listItem/largeListItem implement the shared Item-loop-head contract for
// List, LargeList, and Map (Map entries are non-nullable 2-field structs,
// so they reuse the u32-offsets counting path).
func (in *interp) listItem(instr bytecode.Instruction, count *int) (int, error) {
	e, ok, err := in.src.Peek()
	if err != nil {
		return 0, err
	}
	if !ok || e.Kind == event.KindEndSequence {
		if ok {
			if _, err := in.src.Next(); err != nil {
				return 0, err
			}
		}
		return instr.IfEnd, nil
	}
	*count++
	return instr.Next, nil
}

func (in *interp) largeListItem(instr bytecode.Instruction, count *int) (int, error) {
	return in.listItem(instr, count)
}

func (in *interp) structField(pc int, instr bytecode.Instruction, tolerant bool) (int, error) {
	e, ok, err := in.src.Peek()
	if err != nil {
		return 0, err
	}
	if !ok || e.Kind == event.KindEndStruct {
		return instr.IfEnd, nil
	}
	key, err := in.consumeAny(event.KindStr, event.KindOwnedStr)
	if err != nil {
		return 0, err
	}
	name := key.StrValue()
	sd := in.prog.Structs[instr.Table]
	for i, fd := range sd.Fields {
		if fd.Name == name {
			in.seen[instr.Table][i] = true
			return fd.JumpPC, nil
		}
	}
	if tolerant {
		if err := in.skipValue(); err != nil {
			return 0, err
		}
		return pc, nil
	}
	return 0, fmt.Errorf("%w: struct received undeclared field %q", ErrUnexpectedEvent, name)
}

func widenInt(e event.Event) int64 {
	switch e.Kind {
	case event.KindI8:
		return int64(e.I8)
	case event.KindI16:
		return int64(e.I16)
	case event.KindI32:
		return int64(e.I32)
	default:
		return e.I64
	}
}

// skipValue drains exactly one value's worth of events, used by
// map-as-struct dispatch to ignore a key the schema never declared.
func (in *interp) skipValue() error {
	e, ok, err := in.src.Next()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: expected a value to skip, got end of stream", ErrUnexpectedEvent)
	}
	switch e.Kind {
	case event.KindSome:
		return in.skipValue()
	case event.KindStartStruct:
		for {
			peeked, ok, err := in.src.Peek()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: unterminated struct while skipping", ErrUnexpectedEvent)
			}
			if peeked.Kind == event.KindEndStruct {
				_, _, _ = in.src.Next()
				return nil
			}
			if _, err := in.consumeAny(event.KindStr, event.KindOwnedStr); err != nil {
				return err
			}
			if err := in.skipValue(); err != nil {
				return err
			}
		}
	case event.KindStartSequence:
		for {
			peeked, ok, err := in.src.Peek()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: unterminated sequence while skipping", ErrUnexpectedEvent)
			}
			if peeked.Kind == event.KindEndSequence {
				_, _, _ = in.src.Next()
				return nil
			}
			if err := in.skipValue(); err != nil {
				return err
			}
		}
	default:
		return nil
	}
}

func (in *interp) pushUtf8(idx int, s string) {
	in.buf.Utf8Data[idx] = append(in.buf.Utf8Data[idx], s...)
	in.buf.U32Offsets[idx] = append(in.buf.U32Offsets[idx], uint32(len(in.buf.Utf8Data[idx])))
}

func (in *interp) pushLargeUtf8(idx int, s string) {
	in.buf.LargeUtf8Data[idx] = append(in.buf.LargeUtf8Data[idx], s...)
	in.buf.U64Offsets[idx] = append(in.buf.U64Offsets[idx], uint64(len(in.buf.LargeUtf8Data[idx])))
}

func (in *interp) pushDictionary(instr bytecode.Instruction, s string) {
	dict := in.buf.Dictionaries[instr.Table]
	idx, ok := dict.Get(s)
	if !ok {
		idx = dict.Len()
		dict.Set(s, idx)
	}
	switch instr.Width {
	case 8:
		in.buf.U8[instr.Buf] = append(in.buf.U8[instr.Buf], uint8(idx))
	case 16:
		in.buf.U16[instr.Buf] = append(in.buf.U16[instr.Buf], uint16(idx))
	case 32:
		in.buf.U32[instr.Buf] = append(in.buf.U32[instr.Buf], uint32(idx))
	default:
		in.buf.U64[instr.Buf] = append(in.buf.U64[instr.Buf], uint64(idx))
	}
}

func (in *interp) padNull(nd bytecode.NullDefinition) {
	in.buf.U1[nd.ValidityBuf] = append(in.buf.U1[nd.ValidityBuf], false)
	for _, i := range nd.U1 {
		in.buf.U1[i] = append(in.buf.U1[i], false)
	}
	for _, i := range nd.U8 {
		in.buf.U8[i] = append(in.buf.U8[i], 0)
	}
	for _, i := range nd.U16 {
		in.buf.U16[i] = append(in.buf.U16[i], 0)
	}
	for _, i := range nd.U32 {
		in.buf.U32[i] = append(in.buf.U32[i], 0)
	}
	for _, i := range nd.U64 {
		in.buf.U64[i] = append(in.buf.U64[i], 0)
	}
	for _, i := range nd.U32Offsets {
		last := in.buf.U32Offsets[i][len(in.buf.U32Offsets[i])-1]
		in.buf.U32Offsets[i] = append(in.buf.U32Offsets[i], last)
	}
	for _, i := range nd.U64Offsets {
		last := in.buf.U64Offsets[i][len(in.buf.U64Offsets[i])-1]
		in.buf.U64Offsets[i] = append(in.buf.U64Offsets[i], last)
	}
}
