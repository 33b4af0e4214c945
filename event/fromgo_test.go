package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src Source) []Event {
	t.Helper()
	var out []Event
	for {
		e, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func TestFromGo_JSONString(t *testing.T) {
	src, err := FromGo(`{"a":1}`)
	require.NoError(t, err)

	events := drain(t, src)
	require.Len(t, events, 4)
	assert.Equal(t, KindStartStruct, events[0].Kind)
	assert.Equal(t, KindStr, events[1].Kind)
	assert.Equal(t, "a", *events[1].Str)
	assert.Equal(t, KindI64, events[2].Kind)
	assert.Equal(t, int64(1), events[2].I64)
	assert.Equal(t, KindEndStruct, events[3].Kind)
}

func TestFromGo_NestedList(t *testing.T) {
	src, err := FromGo(map[string]any{"xs": []any{int64(1), int64(2)}})
	require.NoError(t, err)

	events := drain(t, src)
	// StartStruct Str("xs") StartSequence I64 I64 EndSequence EndStruct
	require.Len(t, events, 7)
	assert.Equal(t, KindStartSequence, events[2].Kind)
	assert.Equal(t, KindEndSequence, events[5].Kind)
}

func TestPeekable_PeekDoesNotConsume(t *testing.T) {
	p := NewPeekable(NewSliceSource([]Event{Bool(true), Null()}))

	e1, ok, err := p.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindBool, e1.Kind)

	e2, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e1, e2)

	e3, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindNull, e3.Kind)
}
