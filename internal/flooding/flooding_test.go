package flooding

import (
	"net/netip"
	"testing"

	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/tie"
	"github.com/stretchr/testify/require"
)

func newEngine(store *tie.Store, level packet.Level, topOfFabric bool) *Engine {
	return New(1, store, func() packet.Level { return level }, func() bool { return topOfFabric })
}

func prefixID(originator packet.SystemID) packet.TIEID {
	return packet.TIEID{Direction: packet.South, Originator: originator, Type: packet.TIETypePrefix, TIENr: 1}
}

func TestReceiveTIENoLocalCopyStoresAndAcks(t *testing.T) {
	store := tie.NewStore()
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	id := prefixID(2)
	e.ReceiveTIE(q, packet.TIEPacket{
		Header:  packet.TIEHeader{ID: id, SeqNr: 1, RemainingLifetime: 300},
		Element: packet.PrefixElement{Prefixes: map[netip.Prefix]packet.PrefixAttributes{}},
	})

	_, ok := store.Get(id)
	require.True(t, ok)
	require.True(t, q.ACK.Contains(id))
}

func TestReceiveTIEApparentlySelfWithNoLocalCopyFlushes(t *testing.T) {
	store := tie.NewStore()
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	id := prefixID(1) // originator == our own system id (1)
	e.ReceiveTIE(q, packet.TIEPacket{Header: packet.TIEHeader{ID: id, SeqNr: 5, RemainingLifetime: 300}})

	entry, ok := store.Get(id)
	require.True(t, ok)
	require.Equal(t, uint32(6), entry.Header.SeqNr)
	require.Equal(t, uint32(tie.FlushLifetime), entry.Header.RemainingLifetime)
	require.True(t, q.TX.Contains(id))
}

func TestReceiveTIELocalNewerSendsOurs(t *testing.T) {
	store := tie.NewStore()
	id := prefixID(2)
	store.Put(&tie.Entry{Header: packet.TIEHeader{ID: id, SeqNr: 5, RemainingLifetime: 300}})
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	e.ReceiveTIE(q, packet.TIEPacket{Header: packet.TIEHeader{ID: id, SeqNr: 3, RemainingLifetime: 300}})
	require.True(t, q.TX.Contains(id))
}

func TestReceiveTIEEqualAcksAndClearsRTX(t *testing.T) {
	store := tie.NewStore()
	id := prefixID(2)
	store.Put(&tie.Entry{Header: packet.TIEHeader{ID: id, SeqNr: 5, RemainingLifetime: 300}})
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()
	q.RTX.Push(id)

	e.ReceiveTIE(q, packet.TIEPacket{Header: packet.TIEHeader{ID: id, SeqNr: 5, RemainingLifetime: 300}})
	require.True(t, q.ACK.Contains(id))
	require.False(t, q.RTX.Contains(id))
}

func TestReceiveTIRENewerLocalEntryGoesToTX(t *testing.T) {
	store := tie.NewStore()
	id := prefixID(2)
	store.Put(&tie.Entry{Header: packet.TIEHeader{ID: id, SeqNr: 5, RemainingLifetime: 300}})
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	e.ReceiveTIRE(q, packet.TIREPacket{Headers: []packet.TIEHeader{{ID: id, SeqNr: 3, RemainingLifetime: 300}}})
	require.True(t, q.TX.Contains(id))
}

func TestReceiveTIREEqualClearsRTX(t *testing.T) {
	store := tie.NewStore()
	id := prefixID(2)
	store.Put(&tie.Entry{Header: packet.TIEHeader{ID: id, SeqNr: 5, RemainingLifetime: 300}})
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()
	q.RTX.Push(id)

	e.ReceiveTIRE(q, packet.TIREPacket{Headers: []packet.TIEHeader{{ID: id, SeqNr: 5, RemainingLifetime: 300}}})
	require.False(t, q.RTX.Contains(id))
}

func TestReceiveTIDEGapSendsLocalOnlyEntry(t *testing.T) {
	store := tie.NewStore()
	id := prefixID(2)
	store.Put(&tie.Entry{Header: packet.TIEHeader{ID: id, SeqNr: 1, RemainingLifetime: 300}})
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	e.ReceiveTIDE(q, packet.TIDEPacket{Start: packet.MinTIEID, End: packet.MaxTIEID})
	require.True(t, q.TX.Contains(id), "a TIE we hold that the peer's summary omits must be scheduled for send")
}

func TestReceiveTIDEPeerOnlyHeaderRequestsIt(t *testing.T) {
	store := tie.NewStore()
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	peerOnly := prefixID(2)
	e.ReceiveTIDE(q, packet.TIDEPacket{
		Start: packet.MinTIEID, End: packet.MaxTIEID,
		Headers: []packet.TIEHeader{{ID: peerOnly, SeqNr: 1, RemainingLifetime: 300}},
	})
	require.True(t, q.REQ.Contains(peerOnly))
}

func TestServiceDropsRequestTheScopeNoLongerPermits(t *testing.T) {
	store := tie.NewStore()
	e := newEngine(store, packet.DefinedLevel(3), false)
	q := NewQueues()

	// A non-node S-TIE we do not originate, requested from a southern
	// neighbor: that neighbor floods it north to us only if we are its
	// originator, so the request is not permitted.
	id := prefixID(9)
	q.REQ.Push(id)

	_, req, _ := e.Service(NeighborContext{SystemID: 2, Rel: South, Level: packet.DefinedLevel(1)}, q)
	require.Nil(t, req)
	require.False(t, q.REQ.Contains(id))
}

func TestBuildTIDEIncludesLocallyHeldEntries(t *testing.T) {
	store := tie.NewStore()
	id := prefixID(1) // self-originated
	store.Put(&tie.Entry{Header: packet.TIEHeader{ID: id, SeqNr: 1, RemainingLifetime: 300}})
	e := newEngine(store, packet.DefinedLevel(3), false)

	d := e.BuildTIDE(NeighborContext{SystemID: 2, Rel: South, Level: packet.DefinedLevel(3)})
	require.Len(t, d.Headers, 1)
	require.Equal(t, id, d.Headers[0].ID)
}
