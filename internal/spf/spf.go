// Package spf implements the bidirectional Dijkstra SPF engine of spec.md
// §4.5: one run per direction (South, North) over the TIE database,
// producing per-node and per-prefix destination tables with ECMP next
// hops, ready for RIB installation.
package spf

import (
	"net/netip"

	"github.com/fabricrift/riftgo/internal/flooding"
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/tie"
)

type nodeID = packet.SystemID

// NextHop is one ECMP next hop: an outgoing interface and the neighbor
// address reached through it (spec.md §4.5 "Next-hop derivation").
type NextHop struct {
	Interface string
	Address   string
}

// NodeDestination is one node's entry in an SPF run's destination table.
type NodeDestination struct {
	SystemID     packet.SystemID
	Cost         uint32
	Predecessors []packet.SystemID
	NextHops     []NextHop
}

// PrefixDestination is one prefix's entry in an SPF run's destination
// table.
type PrefixDestination struct {
	Prefix       netip.Prefix
	Cost         uint32
	Predecessors []packet.SystemID
	NextHops     []NextHop
	Tags         []string
}

// Result is one direction's completed SPF run.
type Result struct {
	Direction packet.Direction
	Nodes     map[packet.SystemID]*NodeDestination
	Prefixes  map[netip.Prefix]*PrefixDestination
}

// LinkResolver maps one of this node's own local link IDs (as carried in
// its self-originated Node TIE's neighbor entries) to the outgoing
// interface name and the neighbor's address reached over it. The SPF
// engine has no notion of interfaces itself; internal/node supplies this.
type LinkResolver func(localLinkID uint32) (ifaceName, neighborAddr string, ok bool)

// Engine runs SPF over a shared TIE store.
type Engine struct {
	store    *tie.Store
	self     packet.SystemID
	resolver LinkResolver
}

// New creates an SPF engine reading ties and resolving this node's own
// direct links through resolver.
func New(self packet.SystemID, store *tie.Store, resolver LinkResolver) *Engine {
	return &Engine{store: store, self: self, resolver: resolver}
}

// dist is the live working state for one node during a run: its best
// known cost, predecessor set (ECMP), and the next hops inherited or
// derived for it. Frozen once the node is popped off the candidate heap.
type dist struct {
	cost         uint32
	predecessors map[packet.SystemID]bool
	nextHops     []NextHop
	tags         []string
	finalized    bool
}

// effectiveDirection is spec.md §4.5's "Direction of TIE lookup": South
// SPF always reads North TIEs; North SPF reads South TIEs, except for
// TIEs originated by this node itself, which are always read from the
// North side.
func (e *Engine) effectiveDirection(spfDir packet.Direction, originator packet.SystemID) packet.Direction {
	if spfDir == packet.South {
		return packet.North
	}
	if originator == e.self {
		return packet.North
	}
	return packet.South
}

func (e *Engine) nodeElement(id packet.SystemID, dir packet.Direction) (packet.NodeElement, bool) {
	var found packet.NodeElement
	ok := false
	e.store.Range(packet.MinTIEID, packet.MaxTIEID, func(entry *tie.Entry) bool {
		if entry.Header.ID.Direction != dir || entry.Header.ID.Type != packet.TIETypeNode || entry.Header.ID.Originator != id {
			return true
		}
		if ne, isNode := entry.Element.(packet.NodeElement); isNode {
			found = ne
			ok = true
		}
		return false
	})
	return found, ok
}

func (e *Engine) prefixElement(id packet.SystemID, dir packet.Direction) (packet.PrefixElement, bool) {
	var found packet.PrefixElement
	ok := false
	e.store.Range(packet.MinTIEID, packet.MaxTIEID, func(entry *tie.Entry) bool {
		if entry.Header.ID.Direction != dir || entry.Header.ID.Type != packet.TIETypePrefix || entry.Header.ID.Originator != id {
			return true
		}
		if pe, isPrefix := entry.Element.(packet.PrefixElement); isPrefix {
			found = pe
			ok = true
		}
		return false
	})
	return found, ok
}

// bidirectional implements spec.md §4.5's bidirectionality check: the
// edge from->to over local/remote link pair (l, r) is usable only if
// to's own Node TIE (read under this run's direction-of-lookup rule,
// same as every other node's) lists from as a neighbor with the
// reciprocal pair (r, l).
func (e *Engine) bidirectional(from, to packet.SystemID, spfDir packet.Direction, pair packet.LinkIDPair) bool {
	toNode, ok := e.nodeElement(to, e.effectiveDirection(spfDir, to))
	if !ok {
		return false
	}
	nb, ok := toNode.Neighbors[from]
	if !ok {
		return false
	}
	for _, p := range nb.LinkIDs {
		if p.Local == pair.Remote && p.Remote == pair.Local {
			return true
		}
	}
	return false
}

func (e *Engine) directHops(pairs []packet.LinkIDPair) []NextHop {
	var hops []NextHop
	for _, p := range pairs {
		iface, addr, ok := e.resolver(p.Local)
		if !ok {
			continue
		}
		hops = append(hops, NextHop{Interface: iface, Address: addr})
	}
	return hops
}

func mergeNextHops(a, b []NextHop) []NextHop {
	seen := make(map[NextHop]bool, len(a))
	out := make([]NextHop, 0, len(a)+len(b))
	for _, h := range append(append([]NextHop{}, a...), b...) {
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string{}, a...), b...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Run executes one direction's SPF computation over the current TIE
// store snapshot (spec.md §4.5). Callers re-run it from a coalescing
// timer on every qualifying TIE store change.
func (e *Engine) Run(spfDir packet.Direction) Result {
	nodes := map[packet.SystemID]*dist{
		e.self: {cost: 0, predecessors: map[packet.SystemID]bool{}},
	}

	h := newCandidateHeap()
	h.push(e.self, 0)

	prefixes := map[netip.Prefix]*dist{}

	for {
		cand, ok := h.pop()
		if !ok {
			break
		}
		d, exists := nodes[cand.id]
		if !exists || d.finalized || cand.cost != d.cost {
			continue
		}
		d.finalized = true

		readDir := e.effectiveDirection(spfDir, cand.id)
		ne, ok := e.nodeElement(cand.id, readDir)
		if !ok {
			continue
		}

		for neighborID, nb := range ne.Neighbors {
			if !ne.Level.Defined || !nb.Level.Defined {
				continue
			}
			rel := flooding.RelationOf(ne.Level, nb.Level)
			switch spfDir {
			case packet.South:
				if rel != flooding.South && rel != flooding.EastWest {
					continue
				}
			default:
				if rel != flooding.North && rel != flooding.EastWest {
					continue
				}
			}

			var bidir bool
			var usablePair packet.LinkIDPair
			for _, pair := range nb.LinkIDs {
				if e.bidirectional(cand.id, neighborID, spfDir, pair) {
					bidir = true
					usablePair = pair
					break
				}
			}
			if !bidir {
				continue
			}

			var hops []NextHop
			if cand.id == e.self {
				hops = e.directHops([]packet.LinkIDPair{usablePair})
			} else {
				hops = d.nextHops
			}

			newCost := d.cost + nb.Cost
			nd, exists := nodes[neighborID]
			if !exists {
				nodes[neighborID] = &dist{cost: newCost, predecessors: map[packet.SystemID]bool{cand.id: true}, nextHops: hops}
				h.push(neighborID, newCost)
				continue
			}
			if nd.finalized {
				continue
			}
			switch {
			case newCost < nd.cost:
				nd.cost = newCost
				nd.predecessors = map[packet.SystemID]bool{cand.id: true}
				nd.nextHops = hops
				h.push(neighborID, newCost)
			case newCost == nd.cost:
				nd.predecessors[cand.id] = true
				nd.nextHops = mergeNextHops(nd.nextHops, hops)
			}
		}

		pe, ok := e.prefixElement(cand.id, readDir)
		if !ok {
			continue
		}
		for prefix, attrs := range pe.Prefixes {
			newCost := d.cost + attrs.Metric
			pd, exists := prefixes[prefix]
			if !exists {
				prefixes[prefix] = &dist{
					cost: newCost, predecessors: map[packet.SystemID]bool{cand.id: true},
					nextHops: d.nextHops, tags: append([]string{}, attrs.Tags...),
				}
				continue
			}
			switch {
			case newCost < pd.cost:
				pd.cost = newCost
				pd.predecessors = map[packet.SystemID]bool{cand.id: true}
				pd.nextHops = d.nextHops
				pd.tags = append([]string{}, attrs.Tags...)
			case newCost == pd.cost:
				pd.predecessors[cand.id] = true
				pd.nextHops = mergeNextHops(pd.nextHops, d.nextHops)
				pd.tags = mergeTags(pd.tags, attrs.Tags)
			}
		}
	}

	nodeResult := make(map[packet.SystemID]*NodeDestination, len(nodes))
	for id, d := range nodes {
		preds := make([]packet.SystemID, 0, len(d.predecessors))
		for p := range d.predecessors {
			preds = append(preds, p)
		}
		nodeResult[id] = &NodeDestination{SystemID: id, Cost: d.cost, Predecessors: preds, NextHops: d.nextHops}
	}

	prefixResult := make(map[netip.Prefix]*PrefixDestination, len(prefixes))
	for prefix, d := range prefixes {
		preds := make([]packet.SystemID, 0, len(d.predecessors))
		for p := range d.predecessors {
			preds = append(preds, p)
		}
		prefixResult[prefix] = &PrefixDestination{
			Prefix: prefix, Cost: d.cost, Predecessors: preds, NextHops: d.nextHops, Tags: d.tags,
		}
	}
	return Result{Direction: spfDir, Nodes: nodeResult, Prefixes: prefixResult}
}
