package agent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/model"
)

func TestInputQueueOrder(t *testing.T) {
	q := &InputQueue{}
	q.Push(Input{Content: "a"})
	q.Push(Input{Content: "b"})
	require.Equal(t, 2, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "a", first.Content)
	second, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "b", second.Content)

	_, ok = q.Pop()
	require.False(t, ok)
	require.Equal(t, 0, q.Len())
}

func TestFormatInput(t *testing.T) {
	require.Equal(t, "[relay] hello", formatInput(Input{Content: "hello", Source: model.SourceRelay}))
	require.Equal(t, "hello", formatInput(Input{Content: "hello"}))
	require.Equal(t, "[api]", formatInput(Input{Source: model.SourceAPI}))
}
