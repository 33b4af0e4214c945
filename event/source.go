package event

// SliceSource replays a fixed slice of events; used heavily by tests and by
// fixture construction.
type SliceSource struct {
	events []Event
	pos    int
}

func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next() (Event, bool, error) {
	if s.pos >= len(s.events) {
		return Event{}, false, nil
	}
	e := s.events[s.pos]
	s.pos++
	return e, true, nil
}

// Peekable wraps a Source with one-event lookahead, mirroring
// PeekableEventSource in the Rust source: the interpreter and tracer both
// need to inspect the next event before deciding whether to consume it
// (e.g. OuterSequenceItem deciding whether the row stream has ended).
type Peekable struct {
	source  Source
	peeked  *Event
	peekOK  bool
	hasPeek bool
}

func NewPeekable(source Source) *Peekable {
	return &Peekable{source: source}
}

// Peek returns the next event without consuming it.
func (p *Peekable) Peek() (Event, bool, error) {
	if p.hasPeek {
		return *p.peeked, p.peekOK, nil
	}
	e, ok, err := p.source.Next()
	if err != nil {
		return Event{}, false, err
	}
	p.peeked = &e
	p.peekOK = ok
	p.hasPeek = true
	return e, ok, nil
}

// Next consumes and returns the next event.
func (p *Peekable) Next() (Event, bool, error) {
	if p.hasPeek {
		p.hasPeek = false
		e := *p.peeked
		ok := p.peekOK
		p.peeked = nil
		return e, ok, nil
	}
	return p.source.Next()
}
