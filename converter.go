// Package serdearrow ties together the event, schema, bytecode, and interp
// packages into the single entry point a caller actually uses: trace a
// handful of sample rows, compile the inferred schema once, then convert
// batches of rows into columnar arrays via a vendor Adapter. It follows the
// layout and builder/orchestrator idiom of github.com/loicalleyne/bodkin:
// a small root type configured with Option funcs, wrapping focused internal
// packages for each subsystem.
package serdearrow

import (
	"fmt"
	"io"
	"sync"

	"github.com/vultix/serde-arrow/bytecode"
	"github.com/vultix/serde-arrow/event"
	"github.com/vultix/serde-arrow/interp"
	"github.com/vultix/serde-arrow/schema"
)

// Adapter is the vendor boundary: a pure function of a compiled field's
// ArrayMapping and the interpreted Buffers it indexes into, returning a
// library-native array or record value. arrowgo.Adapter and
// arrowlegacy.Adapter both satisfy this.
type Adapter interface {
	BuildArray(mapping bytecode.ArrayMapping, buffers *interp.Buffers) (any, error)
	BuildRecordFields(mappings []bytecode.ArrayMapping, buffers *interp.Buffers, fields []schema.GenericField) (any, error)
}

// Converter traces sample input to infer a schema, compiles it once, then
// interprets further batches against the compiled program. A zero-value
// root tracer name of "$" is used, matching bodkin's dotpath convention.
type Converter struct {
	opts    []Option
	adapter Adapter

	compileOpts bytecode.CompilationOptions

	debugMu     sync.RWMutex
	debugWriter io.Writer

	tracer   *schema.Tracer
	program  *bytecode.Program
	rowCount int
	maxCount int
}

// New returns a Converter ready to Trace sample input.
func New(opts ...Option) *Converter {
	c := &Converter{opts: opts, maxCount: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trace feeds one sample row (map[string]any, JSON []byte/string, or an
// arbitrary Go value decoded via mapstructure — see event.FromGo) into the
// schema tracer. Call it once per representative row before Compile.
func (c *Converter) Trace(a any) error {
	if c.maxCount >= 0 && c.rowCount >= c.maxCount {
		return ErrMaxCountReached
	}
	src, err := event.FromGo(a)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	if c.tracer == nil {
		c.tracer = schema.NewTracer("$")
	}
	for {
		e, ok, err := src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := c.tracer.Accept(e); err != nil {
			return fmt.Errorf("trace: %w", err)
		}
	}
	c.rowCount++
	c.program = nil // schema may have changed; force recompile
	return nil
}

// Schema returns the GenericField inferred from traced rows so far.
func (c *Converter) Schema() (schema.GenericField, error) {
	if c.tracer == nil {
		return schema.GenericField{}, ErrNoSchema
	}
	if err := c.tracer.Finish(); err != nil {
		return schema.GenericField{}, err
	}
	return c.tracer.Field()
}

// Compile compiles the traced schema into a bytecode.Program, caching the
// result until the next Trace call invalidates it. If WithDebugProgram was
// set, the compiled program's instruction listing is written to it.
func (c *Converter) Compile() (*bytecode.Program, error) {
	if c.program != nil {
		return c.program, nil
	}
	f, err := c.Schema()
	if err != nil {
		return nil, err
	}
	prog, err := bytecode.Compile(f, c.compileOpts)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	c.debugMu.RLock()
	w := c.debugWriter
	c.debugMu.RUnlock()
	if w != nil {
		prog.Dump(w)
	}
	c.program = prog
	return prog, nil
}

// Convert compiles (if needed) and interprets rows, handing the resulting
// buffers to the configured Adapter to materialize a native record.
func (c *Converter) Convert(rows []any) (any, error) {
	prog, err := c.Compile()
	if err != nil {
		return nil, err
	}
	if c.adapter == nil {
		return nil, ErrNoAdapter
	}

	// The compiled program's OuterSequenceStart/End and per-row
	// OuterRecordStart/End instructions expect the real top-level
	// StartSequence/EndSequence and StartStruct/EndStruct events they
	// bracket, so the batch is wrapped in a sequence of rows rather than
	// handed to the interpreter as a bare concatenation of row events.
	events := []event.Event{event.StartSequence()}
	for _, row := range rows {
		src, err := event.FromGo(row)
		if err != nil {
			return nil, fmt.Errorf("convert: %w", err)
		}
		for {
			e, ok, err := src.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			events = append(events, e)
		}
	}
	events = append(events, event.EndSequence())

	buf, err := interp.Run(prog, event.NewSliceSource(events))
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	return c.adapter.BuildRecordFields(prog.Mapping.Children, buf, prog.Mapping.Field.Children)
}
