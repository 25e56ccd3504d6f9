package spf

import (
	"net/netip"
	"testing"

	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/tie"
	"github.com/stretchr/testify/require"
)

func putNode(store *tie.Store, dir packet.Direction, originator packet.SystemID, el packet.NodeElement) {
	store.Put(&tie.Entry{
		Header:  packet.TIEHeader{ID: packet.TIEID{Direction: dir, Originator: originator, Type: packet.TIETypeNode, TIENr: 1}, SeqNr: 1, RemainingLifetime: 600},
		Element: el,
	})
}

func putPrefix(store *tie.Store, dir packet.Direction, originator packet.SystemID, el packet.PrefixElement) {
	store.Put(&tie.Entry{
		Header:  packet.TIEHeader{ID: packet.TIEID{Direction: dir, Originator: originator, Type: packet.TIETypePrefix, TIENr: 1}, SeqNr: 1, RemainingLifetime: 600},
		Element: el,
	})
}

func noopResolver(uint32) (string, string, bool) { return "", "", false }

func resolverFor(localLinkID uint32, iface, addr string) LinkResolver {
	return func(id uint32) (string, string, bool) {
		if id == localLinkID {
			return iface, addr, true
		}
		return "", "", false
	}
}

func TestRunDirectNeighborGetsDirectNextHop(t *testing.T) {
	store := tie.NewStore()
	putNode(store, packet.North, 1, packet.NodeElement{
		Level: packet.DefinedLevel(2),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			2: {Level: packet.DefinedLevel(1), Cost: 10, LinkIDs: []packet.LinkIDPair{{Local: 100, Remote: 200}}},
		},
	})
	putNode(store, packet.North, 2, packet.NodeElement{
		Level: packet.DefinedLevel(1),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			1: {Level: packet.DefinedLevel(2), LinkIDs: []packet.LinkIDPair{{Local: 200, Remote: 100}}},
		},
	})

	e := New(1, store, resolverFor(100, "eth0", "10.0.0.2"))
	result := e.Run(packet.South)

	require.Contains(t, result.Nodes, packet.SystemID(2))
	dest := result.Nodes[2]
	require.Equal(t, uint32(10), dest.Cost)
	require.Equal(t, []packet.SystemID{1}, dest.Predecessors)
	require.Equal(t, []NextHop{{Interface: "eth0", Address: "10.0.0.2"}}, dest.NextHops)
}

func TestRunIndirectNodeInheritsPredecessorNextHops(t *testing.T) {
	store := tie.NewStore()
	putNode(store, packet.North, 1, packet.NodeElement{
		Level: packet.DefinedLevel(2),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			2: {Level: packet.DefinedLevel(1), Cost: 10, LinkIDs: []packet.LinkIDPair{{Local: 100, Remote: 200}}},
		},
	})
	putNode(store, packet.North, 2, packet.NodeElement{
		Level: packet.DefinedLevel(1),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			1: {Level: packet.DefinedLevel(2), LinkIDs: []packet.LinkIDPair{{Local: 200, Remote: 100}}},
			3: {Level: packet.DefinedLevel(0), Cost: 5, LinkIDs: []packet.LinkIDPair{{Local: 201, Remote: 300}}},
		},
	})
	putNode(store, packet.North, 3, packet.NodeElement{
		Level: packet.DefinedLevel(0),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			2: {Level: packet.DefinedLevel(1), LinkIDs: []packet.LinkIDPair{{Local: 300, Remote: 201}}},
		},
	})
	putPrefix(store, packet.North, 3, packet.PrefixElement{
		Prefixes: map[netip.Prefix]packet.PrefixAttributes{
			netip.MustParsePrefix("10.3.0.0/24"): {Metric: 1},
		},
	})

	e := New(1, store, resolverFor(100, "eth0", "10.0.0.2"))
	result := e.Run(packet.South)

	node3 := result.Nodes[3]
	require.Equal(t, uint32(15), node3.Cost)
	require.Equal(t, []packet.SystemID{2}, node3.Predecessors)
	require.Equal(t, []NextHop{{Interface: "eth0", Address: "10.0.0.2"}}, node3.NextHops)

	prefix := result.Prefixes[netip.MustParsePrefix("10.3.0.0/24")]
	require.NotNil(t, prefix)
	require.Equal(t, uint32(16), prefix.Cost)
	require.Equal(t, []packet.SystemID{3}, prefix.Predecessors)
	require.Equal(t, []NextHop{{Interface: "eth0", Address: "10.0.0.2"}}, prefix.NextHops)
}

func TestRunSkipsEdgeMissingReciprocalLinkIDPair(t *testing.T) {
	store := tie.NewStore()
	putNode(store, packet.North, 1, packet.NodeElement{
		Level: packet.DefinedLevel(2),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			2: {Level: packet.DefinedLevel(1), Cost: 10, LinkIDs: []packet.LinkIDPair{{Local: 100, Remote: 200}}},
		},
	})
	// Node 2's own Node TIE does not list node 1 with the reciprocal pair
	// (200, 100): the bidirectionality check must fail the edge.
	putNode(store, packet.North, 2, packet.NodeElement{
		Level:     packet.DefinedLevel(1),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{},
	})

	e := New(1, store, noopResolver)
	result := e.Run(packet.South)

	require.NotContains(t, result.Nodes, packet.SystemID(2))
}

func TestRunECMPMergesNextHopsOnEqualCost(t *testing.T) {
	store := tie.NewStore()
	putNode(store, packet.North, 1, packet.NodeElement{
		Level: packet.DefinedLevel(2),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			2: {Level: packet.DefinedLevel(1), Cost: 10, LinkIDs: []packet.LinkIDPair{{Local: 100, Remote: 200}}},
			3: {Level: packet.DefinedLevel(1), Cost: 10, LinkIDs: []packet.LinkIDPair{{Local: 101, Remote: 300}}},
		},
	})
	putNode(store, packet.North, 2, packet.NodeElement{
		Level: packet.DefinedLevel(1),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			1: {Level: packet.DefinedLevel(2), LinkIDs: []packet.LinkIDPair{{Local: 200, Remote: 100}}},
			4: {Level: packet.DefinedLevel(0), Cost: 1, LinkIDs: []packet.LinkIDPair{{Local: 201, Remote: 400}}},
		},
	})
	putNode(store, packet.North, 3, packet.NodeElement{
		Level: packet.DefinedLevel(1),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			1: {Level: packet.DefinedLevel(2), LinkIDs: []packet.LinkIDPair{{Local: 300, Remote: 101}}},
			4: {Level: packet.DefinedLevel(0), Cost: 1, LinkIDs: []packet.LinkIDPair{{Local: 301, Remote: 401}}},
		},
	})
	putNode(store, packet.North, 4, packet.NodeElement{
		Level: packet.DefinedLevel(0),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			2: {Level: packet.DefinedLevel(1), LinkIDs: []packet.LinkIDPair{{Local: 400, Remote: 201}}},
			3: {Level: packet.DefinedLevel(1), LinkIDs: []packet.LinkIDPair{{Local: 401, Remote: 301}}},
		},
	})

	resolver := func(id uint32) (string, string, bool) {
		switch id {
		case 100:
			return "eth0", "10.0.0.2", true
		case 101:
			return "eth1", "10.0.0.3", true
		}
		return "", "", false
	}
	e := New(1, store, resolver)
	result := e.Run(packet.South)

	node4 := result.Nodes[4]
	require.Equal(t, uint32(11), node4.Cost)
	require.ElementsMatch(t, []packet.SystemID{2, 3}, node4.Predecessors)
	require.ElementsMatch(t, []NextHop{
		{Interface: "eth0", Address: "10.0.0.2"},
		{Interface: "eth1", Address: "10.0.0.3"},
	}, node4.NextHops)
}

func TestRunNorthSPFReadsSelfOriginatedFromNorthSide(t *testing.T) {
	store := tie.NewStore()
	// North SPF reads South TIEs, except self's own, which always come
	// from the North side. Put self's Node TIE only on the North side and
	// the neighbor's reciprocal only on the South side.
	putNode(store, packet.North, 1, packet.NodeElement{
		Level: packet.DefinedLevel(2),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			5: {Level: packet.DefinedLevel(3), Cost: 7, LinkIDs: []packet.LinkIDPair{{Local: 500, Remote: 600}}},
		},
	})
	putNode(store, packet.South, 5, packet.NodeElement{
		Level: packet.DefinedLevel(3),
		Neighbors: map[packet.SystemID]packet.NodeNeighbor{
			1: {Level: packet.DefinedLevel(2), LinkIDs: []packet.LinkIDPair{{Local: 600, Remote: 500}}},
		},
	})

	e := New(1, store, resolverFor(500, "eth2", "10.0.0.5"))
	result := e.Run(packet.North)

	require.Contains(t, result.Nodes, packet.SystemID(5))
	require.Equal(t, uint32(7), result.Nodes[5].Cost)
}
