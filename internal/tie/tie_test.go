package tie

import (
	"testing"

	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/stretchr/testify/require"
)

func hdr(id packet.TIEID, seq uint32, life uint32) packet.TIEHeader {
	return packet.TIEHeader{ID: id, SeqNr: seq, RemainingLifetime: life}
}

func TestCompareAgeHigherSeqWins(t *testing.T) {
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	require.Equal(t, 1, CompareAge(hdr(id, 5, 10), hdr(id, 4, 999)))
	require.Equal(t, -1, CompareAge(hdr(id, 4, 999), hdr(id, 5, 10)))
}

func TestCompareAgeZeroLifetimeIsOlderAtEqualSeq(t *testing.T) {
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	require.Equal(t, -1, CompareAge(hdr(id, 5, 0), hdr(id, 5, 1)))
	require.Equal(t, 1, CompareAge(hdr(id, 5, 1), hdr(id, 5, 0)))
	require.Equal(t, 0, CompareAge(hdr(id, 5, 0), hdr(id, 5, 0)))
}

func TestCompareAgeLifetimeBoundary(t *testing.T) {
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	// Exactly at the 300s boundary: still considered equal.
	require.Equal(t, 0, CompareAge(hdr(id, 5, 600), hdr(id, 5, 300)))
	// One second past the boundary: longer lifetime wins.
	require.Equal(t, 1, CompareAge(hdr(id, 5, 601), hdr(id, 5, 300)))
	require.Equal(t, -1, CompareAge(hdr(id, 5, 300), hdr(id, 5, 601)))
}

func TestStoreOrderingAndRange(t *testing.T) {
	s := NewStore()
	ids := []packet.TIEID{
		{Direction: packet.North, Originator: 1, Type: packet.TIETypeNode, TIENr: 1},
		{Direction: packet.South, Originator: 5, Type: packet.TIETypePrefix, TIENr: 1},
		{Direction: packet.South, Originator: 1, Type: packet.TIETypeNode, TIENr: 2},
		{Direction: packet.South, Originator: 1, Type: packet.TIETypeNode, TIENr: 1},
	}
	for _, id := range ids {
		s.Put(&Entry{Header: hdr(id, 1, 100)})
	}
	require.Equal(t, 4, s.Len())

	var got []packet.TIEID
	s.Range(packet.MinTIEID, packet.MaxTIEID, func(e *Entry) bool {
		got = append(got, e.Header.ID)
		return true
	})
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		require.True(t, got[i-1].Compare(got[i]) < 0, "store must yield entries in ascending TIE-ID order")
	}
}

func TestStorePutReplacesSameID(t *testing.T) {
	s := NewStore()
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	s.Put(&Entry{Header: hdr(id, 1, 100)})
	s.Put(&Entry{Header: hdr(id, 2, 100)})
	require.Equal(t, 1, s.Len(), "same TIE-ID must not appear twice")
	e, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, uint32(2), e.Header.SeqNr)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	s.Put(&Entry{Header: hdr(id, 1, 100)})
	s.Delete(id)
	require.Equal(t, 0, s.Len())
	_, ok := s.Get(id)
	require.False(t, ok)
}

func TestStoreAgingRemovesAtZero(t *testing.T) {
	s := NewStore()
	id1 := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	id2 := packet.TIEID{Originator: 2, Type: packet.TIETypeNode, TIENr: 1}
	s.Put(&Entry{Header: hdr(id1, 1, 1)})
	s.Put(&Entry{Header: hdr(id2, 1, 100)})

	result := s.Age(1)
	require.ElementsMatch(t, []packet.TIEID{id1}, result.Removed)
	require.Equal(t, 1, s.Len())

	e, _ := s.Get(id2)
	require.Equal(t, uint32(99), e.Header.RemainingLifetime)
}

func TestNextSeqNr(t *testing.T) {
	s := NewStore()
	id := packet.TIEID{Originator: 1, Type: packet.TIETypeNode, TIENr: 1}
	require.Equal(t, uint32(1), s.NextSeqNr(id))
	s.Put(&Entry{Header: hdr(id, 4, 100)})
	require.Equal(t, uint32(5), s.NextSeqNr(id))
}

func TestSynthesizeFlush(t *testing.T) {
	received := hdr(packet.TIEID{Originator: 9, Type: packet.TIETypePrefix, TIENr: 1}, 3, 500)
	flush := SynthesizeFlush(received)
	require.Equal(t, uint32(4), flush.Header.SeqNr)
	require.Equal(t, uint32(FlushLifetime), flush.Header.RemainingLifetime)
	require.Equal(t, received.ID, flush.Header.ID)
	pe, ok := flush.Element.(packet.PrefixElement)
	require.True(t, ok)
	require.Empty(t, pe.Prefixes)
}
