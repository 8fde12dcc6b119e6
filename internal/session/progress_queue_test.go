package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressQueue_PushAndDrain(t *testing.T) {
	q := NewProgressQueue(4)
	require.True(t, q.Push("tok-a", []byte("1")))
	require.True(t, q.Push("tok-b", []byte("2")))
	require.Equal(t, 2, q.Len())

	drained := q.Drain()
	require.Equal(t, [][]byte{[]byte("1"), []byte("2")}, drained)
	require.Equal(t, 0, q.Len())
}

func TestProgressQueue_SameTokenSupersedesWhenFull(t *testing.T) {
	q := NewProgressQueue(2)
	require.True(t, q.Push("tok-a", []byte("1")))
	require.True(t, q.Push("tok-b", []byte("2")))

	// Queue full; an update for tok-a should replace its stale entry
	// rather than being dropped.
	ok := q.Push("tok-a", []byte("1-updated"))
	require.True(t, ok)
	require.Equal(t, int64(0), q.Dropped())

	drained := q.Drain()
	require.Equal(t, [][]byte{[]byte("1-updated"), []byte("2")}, drained)
}

func TestProgressQueue_DropsWhenFullAndNoMatch(t *testing.T) {
	q := NewProgressQueue(1)
	require.True(t, q.Push("tok-a", []byte("1")))

	ok := q.Push("tok-b", []byte("2"))
	require.False(t, ok)
	require.Equal(t, int64(1), q.Dropped())
	require.Equal(t, 1, q.Len())
}
