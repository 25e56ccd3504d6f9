package flooding

import (
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/tie"
)

// NeighborContext is what the flooding engine needs to know about one
// THREE_WAY neighbor to run the scope matrix and build a TIDE for it
// (spec.md §4.4).
type NeighborContext struct {
	SystemID    packet.SystemID
	Rel         Relation
	Level       packet.Level
	TopOfFabric bool
}

// Engine runs the receive-path comparisons and scope filtering of spec.md
// §4.4 against a node's shared TIE store. One Engine serves every
// neighbor; queues are kept per-neighbor by the caller (internal/node).
type Engine struct {
	selfSystemID    packet.SystemID
	store           *tie.Store
	selfLevel       func() packet.Level
	selfTopOfFabric func() bool
}

// New creates a flooding engine over store, reading the node's current
// level and top-of-fabric-ness through the supplied accessors (these
// change as ZTP converges, so they are read live rather than snapshotted).
func New(selfSystemID packet.SystemID, store *tie.Store, selfLevel func() packet.Level, selfTopOfFabric func() bool) *Engine {
	return &Engine{selfSystemID: selfSystemID, store: store, selfLevel: selfLevel, selfTopOfFabric: selfTopOfFabric}
}

func (e *Engine) originatorLevelOf(id packet.TIEID) packet.Level {
	if id.Type != packet.TIETypeNode {
		return packet.UndefinedLevel()
	}
	entry, ok := e.store.Get(id)
	if !ok {
		return packet.UndefinedLevel()
	}
	if ne, ok := entry.Element.(packet.NodeElement); ok {
		return ne.Level
	}
	return packet.UndefinedLevel()
}

func (e *Engine) allowedToSend(id packet.TIEID, nc NeighborContext) bool {
	return Allowed(ScopeParams{
		TIEID:                id,
		OriginatorLevel:      e.originatorLevelOf(id),
		SelfOriginated:       id.Originator == e.selfSystemID,
		NeighborIsOriginator: id.Originator == nc.SystemID,
		SenderLevel:          e.selfLevel(),
		SenderTopOfFabric:    e.selfTopOfFabric(),
		Rel:                  nc.Rel,
	})
}

func (e *Engine) allowedToRequest(id packet.TIEID, nc NeighborContext) bool {
	return RequestAllowed(RequestParams{
		TIEID:               id,
		OriginatorLevel:     e.originatorLevelOf(id),
		WeAreOriginator:     id.Originator == e.selfSystemID,
		NeighborOriginated:  id.Originator == nc.SystemID,
		OurRelToNeighbor:    nc.Rel,
		NeighborLevel:       nc.Level,
		NeighborTopOfFabric: nc.TopOfFabric,
	})
}

// handlePeerOnly is the shared "we have no opinion on this ID locally"
// path used by ReceiveTIDE and ReceiveTIRE: request it from the peer,
// unless we are its originator, in which case it is a ghost of our own
// TIE and must be flushed (spec.md §4.3 "Flushing a peer's
// apparently-self TIE").
func (e *Engine) handlePeerOnly(q *Queues, h packet.TIEHeader) {
	if h.ID.Originator == e.selfSystemID {
		flush := tie.SynthesizeFlush(h)
		e.store.Put(&tie.Entry{Header: flush.Header, Element: flush.Element})
		q.PushTX(h.ID)
		return
	}
	q.PushREQ(h.ID)
}

// ReceiveTIE runs the TIE receive path of spec.md §4.4.
func (e *Engine) ReceiveTIE(q *Queues, pkt packet.TIEPacket) {
	id := pkt.Header.ID
	q.REQ.Remove(id)

	local, ok := e.store.Get(id)
	if !ok {
		if id.Originator == e.selfSystemID {
			flush := tie.SynthesizeFlush(pkt.Header)
			e.store.Put(&tie.Entry{Header: flush.Header, Element: flush.Element})
			q.PushTX(id)
			return
		}
		e.store.Put(&tie.Entry{Header: pkt.Header, Element: pkt.Element})
		q.PushACK(id)
		return
	}

	switch tie.CompareAge(local.Header, pkt.Header) {
	case -1: // local older
		if id.Originator == e.selfSystemID {
			bumped := tie.BumpOwn(*local, pkt.Header.SeqNr)
			e.store.Put(&tie.Entry{Header: bumped.Header, Element: bumped.Element})
			q.PushTX(id)
		} else {
			e.store.Put(&tie.Entry{Header: pkt.Header, Element: pkt.Element})
			q.PushACK(id)
		}
	case 1: // local newer
		q.PushTX(id)
	default: // equal
		q.PushACK(id)
		q.RTX.Remove(id)
	}
}

// ReceiveTIDE runs the TIDE receive path of spec.md §4.4: gap coverage for
// TIEs we hold that the summary omits, and per-header comparison for TIEs
// the summary does mention. Headers are assumed sorted ascending by the
// sender, per spec.md §4.4's monotonic-TIDE assumption; wrap detection
// (start before the last TIDE's end) only resets the bookkeeping cursor,
// since each TIDE is processed over its own explicit [start, end] anyway.
func (e *Engine) ReceiveTIDE(q *Queues, pkt packet.TIDEPacket) {
	if pkt.Start.Compare(q.lastTIDEEnd) < 0 {
		q.lastTIDEEnd = packet.MinTIEID
	}

	headers := pkt.Headers
	hi := 0
	e.store.Range(pkt.Start, pkt.End, func(entry *tie.Entry) bool {
		id := entry.Header.ID
		for hi < len(headers) && headers[hi].ID.Compare(id) < 0 {
			e.handlePeerOnly(q, headers[hi])
			hi++
		}
		if hi < len(headers) && headers[hi].ID == id {
			h := headers[hi]
			hi++
			switch tie.CompareAge(entry.Header, h) {
			case 1:
				q.PushTX(id)
			case 0:
				q.TX.Remove(id)
			default:
				if id.Originator == e.selfSystemID {
					bumped := tie.BumpOwn(*entry, h.SeqNr)
					e.store.Put(&tie.Entry{Header: bumped.Header, Element: bumped.Element})
					q.PushTX(id)
				} else {
					q.PushREQ(id)
				}
			}
			return true
		}
		// Gap: we hold id but the peer's summary says nothing about it.
		q.PushTX(id)
		return true
	})
	for ; hi < len(headers); hi++ {
		e.handlePeerOnly(q, headers[hi])
	}

	q.lastTIDEEnd = pkt.End
}

// ReceiveTIRE runs the TIRE receive path of spec.md §4.4. A header whose
// age matches ours exactly confirms the peer has our current version,
// clearing it from our retransmission queue.
func (e *Engine) ReceiveTIRE(q *Queues, pkt packet.TIREPacket) {
	for _, h := range pkt.Headers {
		local, ok := e.store.Get(h.ID)
		if !ok {
			e.handlePeerOnly(q, h)
			q.RTX.Remove(h.ID)
			continue
		}
		switch tie.CompareAge(local.Header, h) {
		case 1:
			q.PushTX(h.ID)
		case 0:
			q.RTX.Remove(h.ID)
		default:
			if h.ID.Originator == e.selfSystemID {
				bumped := tie.BumpOwn(*local, h.SeqNr)
				e.store.Put(&tie.Entry{Header: bumped.Header, Element: bumped.Element})
				q.PushTX(h.ID)
			} else {
				q.PushREQ(h.ID)
			}
		}
	}
}

// BuildTIDE builds the per-neighbor database summary of spec.md §4.4
// ("TIDE generation"), covering the whole TIE-ID space and listing every
// header either side of the relationship may legitimately flood.
func (e *Engine) BuildTIDE(nc NeighborContext) packet.TIDEPacket {
	var headers []packet.TIEHeader
	e.store.Range(packet.MinTIEID, packet.MaxTIEID, func(entry *tie.Entry) bool {
		id := entry.Header.ID
		if e.allowedToSend(id, nc) || e.allowedToRequest(id, nc) {
			headers = append(headers, entry.Header)
		}
		return true
	})
	return packet.TIDEPacket{Start: packet.MinTIEID, End: packet.MaxTIEID, Headers: headers}
}

// Service runs one queue-servicing pass (spec.md §4.4 "Queue servicing"):
// drains ACK into a TIRE-ack packet, drains scope-permitted REQ into a
// TIRE-request packet (dropping entries the scope rule no longer
// permits), and returns TIE packets for everything in TX (drained) and
// RTX (left in place for a future retransmission pass).
func (e *Engine) Service(nc NeighborContext, q *Queues) (ack *packet.TIREPacket, req *packet.TIREPacket, ties []packet.TIEPacket) {
	if headers := e.headersFor(q.ACK.Drain()); len(headers) > 0 {
		ack = &packet.TIREPacket{Headers: headers}
	}

	var reqHeaders []packet.TIEHeader
	for _, id := range q.REQ.Items() {
		if !e.allowedToRequest(id, nc) {
			q.REQ.Remove(id)
			continue
		}
		if entry, ok := e.store.Get(id); ok {
			reqHeaders = append(reqHeaders, entry.Header)
		} else {
			reqHeaders = append(reqHeaders, packet.TIEHeader{ID: id})
		}
	}
	if len(reqHeaders) > 0 {
		req = &packet.TIREPacket{Headers: reqHeaders}
	}

	ids := append(q.TX.Drain(), q.RTX.Items()...)
	for _, id := range ids {
		if entry, ok := e.store.Get(id); ok {
			ties = append(ties, packet.TIEPacket{Header: entry.Header, Element: entry.Element})
		}
	}
	return
}

func (e *Engine) headersFor(ids []packet.TIEID) []packet.TIEHeader {
	var out []packet.TIEHeader
	for _, id := range ids {
		if entry, ok := e.store.Get(id); ok {
			out = append(out, entry.Header)
		}
	}
	return out
}
