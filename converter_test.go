package serdearrow

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultix/serde-arrow/arrowgo"
)

func TestConverter_TraceCompileConvert(t *testing.T) {
	var dbg bytes.Buffer
	c := New(WithAdapter(arrowgo.New()), WithDebugProgram(&dbg))

	require.NoError(t, c.Trace(map[string]any{"name": "alice", "age": int64(30)}))

	f, err := c.Schema()
	require.NoError(t, err)
	assert.Len(t, f.Children, 2)

	prog, err := c.Compile()
	require.NoError(t, err)
	assert.NotEmpty(t, prog.Instructions)
	assert.NotEmpty(t, dbg.String())

	rec, err := c.Convert([]any{
		map[string]any{"name": "alice", "age": int64(30)},
		map[string]any{"name": "bob", "age": int64(40)},
	})
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestConverter_TraceThenConvertWithoutAdapterErrors(t *testing.T) {
	c := New()
	require.NoError(t, c.Trace(map[string]any{"x": int64(1)}))
	_, err := c.Convert([]any{map[string]any{"x": int64(2)}})
	require.ErrorIs(t, err, ErrNoAdapter)
}

func TestConverter_SchemaBeforeTraceErrors(t *testing.T) {
	c := New()
	_, err := c.Schema()
	require.ErrorIs(t, err, ErrNoSchema)
}

func TestConverter_MaxCountReached(t *testing.T) {
	c := New(WithMaxCount(1))
	require.NoError(t, c.Trace(map[string]any{"x": int64(1)}))
	err := c.Trace(map[string]any{"x": int64(2)})
	require.ErrorIs(t, err, ErrMaxCountReached)
}
