package node

import (
	"net/netip"
	"reflect"

	"github.com/fabricrift/riftgo/internal/adjacency"
	"github.com/fabricrift/riftgo/internal/flooding"
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/rib"
	"github.com/fabricrift/riftgo/internal/tie"
)

// defaultRoute is the prefix the South Prefix TIE carries when the
// origination policy holds (spec.md §4.3 "One South Prefix TIE carrying
// the default route").
var defaultRoute = netip.MustParsePrefix("0.0.0.0/0")

// defaultRouteMetric is this implementation's fixed metric for the
// originated default route. spec.md does not name a value; left to the
// implementation.
const defaultRouteMetric = 1

// neighborLinkCost is this implementation's fixed per-neighbor cost used
// in self-originated Node TIEs. spec.md's cost field exists but names no
// derivation rule for a simulated link; left to the implementation.
const neighborLinkCost = 1

// regenerateSelfOrigination re-derives and, on change, re-originates
// every TIE this node is responsible for (spec.md §4.3 "Self-origination"):
// the two directional Node TIEs, the North Prefix TIE, and the South
// Prefix TIE. Called whenever an input to any of them changes: ZTP level,
// THREE_WAY membership, or (for the South Prefix TIE) the RIB's
// northbound default route.
func (n *Node) regenerateSelfOrigination() {
	n.originateNode(packet.South)
	n.originateNode(packet.North)
	n.originateNorthPrefix()
	n.originateSouthPrefix()
}

// neighborsFor builds the neighbor map for the self-originated Node TIE
// in direction dir: the THREE_WAY interfaces whose neighbor lies in that
// direction, collapsed per neighbor system-id with one link-id pair per
// parallel link (spec.md §3 invariant, §4.3 "Self-origination"). An
// east-west neighbor is symmetric and appears in both directional TIEs.
func (n *Node) neighborsFor(dir packet.Direction) map[packet.SystemID]packet.NodeNeighbor {
	out := map[packet.SystemID]packet.NodeNeighbor{}
	selfLevel := n.ztp.Level()
	for _, ni := range n.interfaces {
		if ni.iface.FSM.State() != adjacency.ThreeWay {
			continue
		}
		peer := ni.iface.FSM.Peer()
		if peer == nil || !peer.Level.Defined || !selfLevel.Defined {
			continue
		}
		rel := flooding.RelationOf(selfLevel, peer.Level)
		switch dir {
		case packet.South:
			if rel != flooding.South && rel != flooding.EastWest {
				continue
			}
		case packet.North:
			if rel != flooding.North && rel != flooding.EastWest {
				continue
			}
		}

		pair := packet.LinkIDPair{Local: ni.iface.LinkID, Remote: peer.LinkID}
		nb, exists := out[peer.SystemID]
		if !exists {
			out[peer.SystemID] = packet.NodeNeighbor{
				Level: peer.Level, Cost: neighborLinkCost, LinkIDs: []packet.LinkIDPair{pair},
			}
			continue
		}
		nb.LinkIDs = append(nb.LinkIDs, pair)
		out[peer.SystemID] = nb
	}
	return out
}

func (n *Node) originateNode(dir packet.Direction) {
	id := packet.TIEID{Direction: dir, Originator: n.self, Type: packet.TIETypeNode, TIENr: 1}
	el := packet.NodeElement{Level: n.ztp.Level(), Neighbors: n.neighborsFor(dir)}
	n.putSelfOriginated(id, el)
}

// originateNorthPrefix originates the North Prefix TIE from configured
// prefixes, omitting it entirely if none are configured and none were
// ever originated (spec.md §4.3).
func (n *Node) originateNorthPrefix() {
	id := packet.TIEID{Direction: packet.North, Originator: n.self, Type: packet.TIETypePrefix, TIENr: 1}
	if len(n.cfg.Prefixes) == 0 {
		if _, ok := n.store.Get(id); !ok {
			return
		}
	}
	prefixes := map[netip.Prefix]packet.PrefixAttributes{}
	for _, p := range n.cfg.Prefixes {
		pfx, err := netip.ParsePrefix(p.Prefix)
		if err != nil {
			n.log.Warn("skipping unparseable configured prefix " + p.Prefix)
			continue
		}
		prefixes[pfx] = packet.PrefixAttributes{Metric: p.Metric, Tags: p.Tags}
	}
	n.putSelfOriginated(id, packet.PrefixElement{Prefixes: prefixes})
}

// originateSouthPrefix implements the South Prefix TIE origination
// policy of spec.md §4.3: originate a default route iff not overloaded,
// has at least one south/east-west THREE_WAY adjacency, and (a
// northbound default route exists, or every other same-level node is
// overloaded, or every other same-level node lacks a north adjacency).
// Once ever originated, a false policy issues an empty flush rather than
// simply stopping.
func (n *Node) originateSouthPrefix() {
	id := packet.TIEID{Direction: packet.South, Originator: n.self, Type: packet.TIETypePrefix, TIENr: 1}
	existing, everOriginated := n.store.Get(id)

	if !n.southPrefixPolicyHolds() {
		if !everOriginated {
			return
		}
		empty := packet.PrefixElement{Prefixes: map[netip.Prefix]packet.PrefixAttributes{}}
		if reflect.DeepEqual(existing.Element, empty) {
			return // already flushed
		}
		n.putSelfOriginated(id, empty)
		if n.metrics != nil {
			n.metrics.TIEsFlushed.Inc()
		}
		return
	}
	n.putSelfOriginated(id, packet.PrefixElement{
		Prefixes: map[netip.Prefix]packet.PrefixAttributes{defaultRoute: {Metric: defaultRouteMetric}},
	})
}

func (n *Node) southPrefixPolicyHolds() bool {
	level := n.ztp.Level()
	if !level.Defined || n.overloaded() {
		return false
	}
	if !n.hasSouthOrEastWestAdjacency() {
		return false
	}
	if n.hasNorthboundDefaultRoute() {
		return true
	}
	peers := n.peerNodesAtSameLevel()
	if len(peers) == 0 {
		return false
	}
	return allOverloaded(peers) || noneHaveNorthAdjacency(peers, level)
}

// overloaded always reports false: spec.md names the overload flag as an
// input to the South Prefix TIE policy but defines no external interface
// for setting it (not in the configuration document, not in the CLI
// surface). Left unset until such an interface is specified.
func (n *Node) overloaded() bool { return false }

func (n *Node) hasSouthOrEastWestAdjacency() bool {
	level := n.ztp.Level()
	for _, ni := range n.interfaces {
		if ni.iface.FSM.State() != adjacency.ThreeWay {
			continue
		}
		peer := ni.iface.FSM.Peer()
		if peer == nil || !peer.Level.Defined {
			continue
		}
		rel := flooding.RelationOf(level, peer.Level)
		if rel == flooding.South || rel == flooding.EastWest {
			return true
		}
	}
	return false
}

func (n *Node) hasNorthboundDefaultRoute() bool {
	route, ok := n.rib.Get(defaultRoute)
	return ok && route.Owner == rib.NorthSPF
}

// peerNodesAtSameLevel scans the TIE store for other nodes' Node
// elements at this node's own level, read the way South SPF would read
// them (North direction), the only place this node can observe other
// same-level nodes' overload flag and north adjacencies.
func (n *Node) peerNodesAtSameLevel() []packet.NodeElement {
	level := n.ztp.Level()
	if !level.Defined {
		return nil
	}
	var out []packet.NodeElement
	for _, entry := range n.store.All() {
		id := entry.Header.ID
		if id.Direction != packet.North || id.Type != packet.TIETypeNode || id.Originator == n.self {
			continue
		}
		ne, ok := entry.Element.(packet.NodeElement)
		if !ok || !ne.Level.Defined || ne.Level.Value != level.Value {
			continue
		}
		out = append(out, ne)
	}
	return out
}

func allOverloaded(peers []packet.NodeElement) bool {
	for _, p := range peers {
		if !p.Overload {
			return false
		}
	}
	return true
}

func noneHaveNorthAdjacency(peers []packet.NodeElement, level packet.Level) bool {
	for _, p := range peers {
		for _, nb := range p.Neighbors {
			if nb.Level.Defined && nb.Level.Value > level.Value {
				return false
			}
		}
	}
	return true
}

// putSelfOriginated (re-)originates id with el if its content actually
// changed (spec.md Testable Properties "Self-origination idempotence"),
// bumping seq_nr, scheduling it onto every THREE_WAY neighbor's TX queue,
// and marking both SPF directions dirty.
func (n *Node) putSelfOriginated(id packet.TIEID, el packet.Element) {
	if existing, ok := n.store.Get(id); ok && reflect.DeepEqual(existing.Element, el) {
		return
	}
	seq := n.store.NextSeqNr(id)
	n.store.Put(&tie.Entry{
		Header:  packet.TIEHeader{ID: id, SeqNr: seq, RemainingLifetime: tie.DefaultLifetime},
		Element: el,
	})
	if n.metrics != nil {
		n.metrics.TIEsOriginated.Inc()
	}
	n.scheduleFloodToAll(id)
	n.markSPFDirty(packet.South)
	n.markSPFDirty(packet.North)
}

// scheduleFloodToAll pushes id onto every THREE_WAY neighbor's TX queue
// unconditionally, the same way internal/flooding's TIDE gap-coverage
// path schedules a locally held TIE the peer's summary omits.
func (n *Node) scheduleFloodToAll(id packet.TIEID) {
	for _, ni := range n.interfaces {
		if ni.iface.FSM.State() == adjacency.ThreeWay {
			ni.queues.PushTX(id)
		}
	}
}
