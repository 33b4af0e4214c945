package schema

import (
	"fmt"

	omap "github.com/wk8/go-ordered-map/v2"

	"github.com/vultix/serde-arrow/event"
)

// Tracer infers a GenericField from a stream of events it has not seen
// before. It starts Unknown and promotes itself into a concrete shape
// (Primitive, List, or Struct) on the first event that reveals one, the
// same "promoting tagged union" the Rust tracer uses: rather than a sum
// type that can switch variant in place, a Tracer holds the current
// implementation and swaps it out.
type Tracer struct {
	name     string
	nullable bool
	impl     tracerImpl
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name, impl: &unknownImpl{}}
}

// Accept feeds one event to the tracer.
func (t *Tracer) Accept(e event.Event) error {
	switch e.Kind {
	case event.KindSome:
		t.nullable = true
		return nil
	case event.KindNull:
		t.nullable = true
		return nil
	}
	return t.impl.accept(t, e)
}

// Finish closes any open nested tracer (e.g. a struct waiting on EndStruct
// having already been seen is a no-op; this exists for symmetry with
// event.Sink and future multi-document tracing).
func (t *Tracer) Finish() error {
	return t.impl.finish(t)
}

// Field renders the field this tracer has inferred so far.
func (t *Tracer) Field() (GenericField, error) {
	f, err := t.impl.toField(t)
	if err != nil {
		return GenericField{}, err
	}
	f.Name = t.name
	f.Nullable = t.nullable
	return f, nil
}

func (t *Tracer) promote(impl tracerImpl) {
	t.impl = impl
}

type tracerImpl interface {
	accept(t *Tracer, e event.Event) error
	finish(t *Tracer) error
	toField(t *Tracer) (GenericField, error)
}

// --- Unknown -----------------------------------------------------------

type unknownImpl struct{}

func (u *unknownImpl) accept(t *Tracer, e event.Event) error {
	switch e.Kind {
	case event.KindBool:
		t.promote(&primitiveImpl{dt: Bool})
	case event.KindI8, event.KindI16, event.KindI32, event.KindI64,
		event.KindU8, event.KindU16, event.KindU32, event.KindU64,
		event.KindF32, event.KindF64:
		t.promote(&primitiveImpl{dt: dataTypeOf(e.Kind)})
	case event.KindStr, event.KindOwnedStr:
		t.promote(&primitiveImpl{dt: Utf8})
	case event.KindStartSequence:
		t.promote(newListImpl(t.name))
		return t.impl.accept(t, e)
	case event.KindStartStruct:
		t.promote(newStructImpl())
		return t.impl.accept(t, e)
	case event.KindEndSequence, event.KindEndStruct:
		return fmt.Errorf("%w: unexpected %s on an untraced field %q", ErrBadShape, e.Kind, t.name)
	default:
		return fmt.Errorf("%w: unexpected %s on an untraced field %q", ErrBadShape, e.Kind, t.name)
	}
	return nil
}

func (u *unknownImpl) finish(t *Tracer) error { return nil }

func (u *unknownImpl) toField(t *Tracer) (GenericField, error) {
	// Never observed a value: default to Null, matching the Rust tracer's
	// behaviour for all-None columns.
	return GenericField{DataType: Null}, nil
}

func dataTypeOf(k event.Kind) DataType {
	switch k {
	case event.KindI8:
		return I8
	case event.KindI16:
		return I16
	case event.KindI32:
		return I32
	case event.KindI64:
		return I64
	case event.KindU8:
		return U8
	case event.KindU16:
		return U16
	case event.KindU32:
		return U32
	case event.KindU64:
		return U64
	case event.KindF32:
		return F32
	case event.KindF64:
		return F64
	default:
		return Null
	}
}

// --- Primitive -----------------------------------------------------------

// primitiveImpl tracks the single primitive type this field was first
// traced as. Accepting any other primitive type on a later event is a hard
// error: tracing never widens or unifies across calls, matching the
// documented tracer contract.
type primitiveImpl struct {
	dt DataType
}

func (p *primitiveImpl) accept(t *Tracer, e event.Event) error {
	switch e.Kind {
	case event.KindStartSequence, event.KindStartStruct, event.KindEndSequence, event.KindEndStruct:
		return fmt.Errorf("%w: field %q was traced as %s, cannot also be a %s", ErrBadShape, t.name, p.dt, e.Kind)
	}
	next := dataTypeOf(e.Kind)
	if e.Kind == event.KindBool {
		next = Bool
	}
	if e.Kind == event.KindStr || e.Kind == event.KindOwnedStr {
		next = Utf8
	}
	if next != p.dt {
		return fmt.Errorf("%w: field %q was traced as %s, cannot also be %s", ErrInconsistentNull, t.name, p.dt, next)
	}
	return nil
}

func (p *primitiveImpl) finish(t *Tracer) error { return nil }

func (p *primitiveImpl) toField(t *Tracer) (GenericField, error) {
	return GenericField{DataType: p.dt}, nil
}

// --- List ------------------------------------------------------------

type listImpl struct {
	item  *Tracer
	depth int
}

func newListImpl(name string) *listImpl {
	return &listImpl{item: NewTracer(name + ".item")}
}

func (l *listImpl) accept(t *Tracer, e event.Event) error {
	switch e.Kind {
	case event.KindStartSequence:
		if l.depth == 0 {
			l.depth++
			return nil
		}
		l.depth++
		return l.item.Accept(e)
	case event.KindEndSequence:
		l.depth--
		if l.depth == 0 {
			return nil
		}
		return l.item.Accept(e)
	default:
		return l.item.Accept(e)
	}
}

func (l *listImpl) finish(t *Tracer) error { return l.item.Finish() }

func (l *listImpl) toField(t *Tracer) (GenericField, error) {
	child, err := l.item.Field()
	if err != nil {
		return GenericField{}, err
	}
	return GenericField{DataType: List, Children: []GenericField{child}}, nil
}

// --- Struct ------------------------------------------------------------

type structState int

const (
	structStart structState = iota
	structKey
	structValue
)

type structImpl struct {
	state  structState
	fields *omap.OrderedMap[string, *Tracer]
	cur    string
	depth  int
}

func newStructImpl() *structImpl {
	return &structImpl{fields: omap.New[string, *Tracer]()}
}

func (s *structImpl) accept(t *Tracer, e event.Event) error {
	if s.depth > 0 {
		switch e.Kind {
		case event.KindStartSequence, event.KindStartStruct:
			s.depth++
		case event.KindEndSequence, event.KindEndStruct:
			s.depth--
		}
		if err := s.fieldTracer(s.cur).Accept(e); err != nil {
			return err
		}
		if s.depth == 0 {
			s.state = structKey
		}
		return nil
	}
	switch e.Kind {
	case event.KindStartStruct:
		s.state = structKey
		return nil
	case event.KindEndStruct:
		return nil
	case event.KindStr, event.KindOwnedStr:
		if s.state == structKey {
			s.cur = e.StrValue()
			s.state = structValue
			return nil
		}
		fallthrough
	default:
		if s.state != structValue {
			return fmt.Errorf("%w: unexpected %s while expecting a struct key", ErrBadShape, e.Kind)
		}
		switch e.Kind {
		case event.KindStartSequence, event.KindStartStruct:
			s.depth++
		}
		ft := s.fieldTracer(s.cur)
		if err := ft.Accept(e); err != nil {
			return err
		}
		if s.depth == 0 {
			s.state = structKey
		}
		return nil
	}
}

func (s *structImpl) fieldTracer(name string) *Tracer {
	if tr, ok := s.fields.Get(name); ok {
		return tr
	}
	tr := NewTracer(name)
	s.fields.Set(name, tr)
	return tr
}

func (s *structImpl) finish(t *Tracer) error {
	for p := s.fields.Oldest(); p != nil; p = p.Next() {
		if err := p.Value.Finish(); err != nil {
			return err
		}
	}
	return nil
}

func (s *structImpl) toField(t *Tracer) (GenericField, error) {
	children := make([]GenericField, 0, s.fields.Len())
	for p := s.fields.Oldest(); p != nil; p = p.Next() {
		cf, err := p.Value.Field()
		if err != nil {
			return GenericField{}, err
		}
		children = append(children, cf)
	}
	return GenericField{DataType: Struct, Children: children}, nil
}
