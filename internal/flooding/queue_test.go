package flooding

import (
	"testing"

	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/stretchr/testify/require"
)

func TestQueuePushIsIdempotentAndFIFO(t *testing.T) {
	q := NewQueue()
	id1 := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	id2 := packet.TIEID{Originator: 2, Type: packet.TIETypeNode, TIENr: 1}

	q.Push(id1)
	q.Push(id2)
	q.Push(id1) // duplicate, must not reorder or double-count
	require.Equal(t, 2, q.Len())
	require.Equal(t, []packet.TIEID{id1, id2}, q.Items())
}

func TestQueueRemoveAndDrain(t *testing.T) {
	q := NewQueue()
	id1 := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	id2 := packet.TIEID{Originator: 2, Type: packet.TIETypeNode, TIENr: 1}
	q.Push(id1)
	q.Push(id2)
	q.Remove(id1)
	require.False(t, q.Contains(id1))
	require.True(t, q.Contains(id2))

	drained := q.Drain()
	require.Equal(t, []packet.TIEID{id2}, drained)
	require.Equal(t, 0, q.Len())
}

func TestQueuesPushMovesBetweenQueues(t *testing.T) {
	qs := NewQueues()
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}

	qs.PushACK(id)
	qs.PushREQ(id)
	require.False(t, qs.ACK.Contains(id), "moving to REQ must remove id from ACK")
	require.True(t, qs.REQ.Contains(id))

	qs.PushTX(id)
	require.False(t, qs.REQ.Contains(id), "moving to TX must remove id from REQ")
	require.True(t, qs.TX.Contains(id))
}

func TestQueuesClearIsAtomic(t *testing.T) {
	qs := NewQueues()
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	qs.TX.Push(id)
	qs.RTX.Push(id)
	qs.REQ.Push(id)
	qs.ACK.Push(id)

	qs.Clear()
	require.Equal(t, 0, qs.TX.Len())
	require.Equal(t, 0, qs.RTX.Len())
	require.Equal(t, 0, qs.REQ.Len())
	require.Equal(t, 0, qs.ACK.Len())
}
