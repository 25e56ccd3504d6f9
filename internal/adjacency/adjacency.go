// Package adjacency implements the per-interface LIE three-way handshake
// described in spec.md §4.1: the ONE_WAY/TWO_WAY/THREE_WAY state machine,
// LIE acceptance rules, three-way and minor-change detection, and the hold
// timer.
package adjacency

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/fabricrift/riftgo/internal/fsm"
	"github.com/fabricrift/riftgo/internal/packet"
)

// State is one of the three adjacency states (spec.md §4.1).
type State int

const (
	OneWay State = iota
	TwoWay
	ThreeWay
)

func (s State) String() string {
	switch s {
	case OneWay:
		return "ONE_WAY"
	case TwoWay:
		return "TWO_WAY"
	case ThreeWay:
		return "THREE_WAY"
	default:
		return "UNKNOWN"
	}
}

// Event is one of the adjacency FSM's events (spec.md §4.1).
type Event int

const (
	EvTimerTick Event = iota
	EvLevelChanged
	EvHALChanged
	EvHATChanged
	EvHALSChanged
	EvLIEReceived
	EvNewNeighbor
	EvValidReflection
	EvNeighborDroppedReflection
	EvNeighborChangedLevel
	EvNeighborChangedAddress
	EvNeighborChangedMinorFields
	EvUnacceptableHeader
	EvHoldTimeExpired
	EvMultipleNeighbors
	EvLIECorrupt
	EvSendLIE
)

func (e Event) String() string {
	switch e {
	case EvTimerTick:
		return "TimerTick"
	case EvLevelChanged:
		return "LevelChanged"
	case EvHALChanged:
		return "HALChanged"
	case EvHATChanged:
		return "HATChanged"
	case EvHALSChanged:
		return "HALSChanged"
	case EvLIEReceived:
		return "LIEReceived"
	case EvNewNeighbor:
		return "NewNeighbor"
	case EvValidReflection:
		return "ValidReflection"
	case EvNeighborDroppedReflection:
		return "NeighborDroppedReflection"
	case EvNeighborChangedLevel:
		return "NeighborChangedLevel"
	case EvNeighborChangedAddress:
		return "NeighborChangedAddress"
	case EvNeighborChangedMinorFields:
		return "NeighborChangedMinorFields"
	case EvUnacceptableHeader:
		return "UnacceptableHeader"
	case EvHoldTimeExpired:
		return "HoldTimeExpired"
	case EvMultipleNeighbors:
		return "MultipleNeighbors"
	case EvLIECorrupt:
		return "LIECorrupt"
	case EvSendLIE:
		return "SendLIE"
	default:
		return "UNKNOWN"
	}
}

// UndefinedPoD is the sentinel PoD value meaning "not advertised"; the PoD
// mismatch rule only applies when both sides advertise a specific,
// non-zero PoD (spec.md §4.1).
const UndefinedPoD uint32 = 0

// DefaultHoldTime is used when a neighbor has not yet told us otherwise.
const DefaultHoldTime uint16 = 3

// Local carries the local, interface-scoped parameters the acceptance
// rules and LIE transmission need. A Node fills this in and refreshes
// Level/HAT/Leaf as ZTP recomputes them (spec.md §4.1 LEVEL_CHANGED /
// HAT_CHANGED).
type Local struct {
	SystemID  packet.SystemID
	Name      string
	LinkID    uint32
	MTU       uint32
	PoD       uint32
	FloodPort uint16
	Leaf     bool
	Level    packet.Level
	HAT      packet.Level

	// HoldTime is this interface's configured hold time, advertised in
	// every LIE it sends (spec.md §4.1 "LIE transmission"). Zero falls
	// back to DefaultHoldTime.
	HoldTime uint16

	Capabilities packet.Capabilities
}

// Neighbor is this interface's currently known peer, reset to the zero
// value on every transition to ONE_WAY.
type Neighbor struct {
	SystemID     packet.SystemID
	Level        packet.Level
	Address      string
	LinkID       uint32
	FloodPort    uint16
	Name         string
	HoldTime     uint16
	Capabilities packet.Capabilities
}

// LevelOffer is what an accepted (or offer-only) LIE contributes to ZTP,
// handed to the OfferToZTP callback (spec.md §4.2 "NEIGHBOR_OFFER").
// Defined here, rather than importing internal/ztp's Offer type directly,
// so internal/ztp can depend on this package's State without a cycle.
type LevelOffer struct {
	SystemID     packet.SystemID
	Level        packet.Level
	NotAZtpOffer bool
	State        State
}

// FSM is one interface's adjacency state machine plus the neighbor state
// and callbacks it drives.
type FSM struct {
	machine *fsm.Machine[State, Event]
	local   Local
	peer    *Neighbor

	holdTicks    uint16
	holdDeadline uint16

	SendLIE       func(packet.LIEPacket)
	StartFlooding func()
	StopFlooding  func()
	OfferToZTP    func(LevelOffer)
	OnReset       func(reason string)
	NotAZtpOffer  func() bool
}

// New creates an adjacency FSM for one interface, starting in ONE_WAY.
func New(local Local) *FSM {
	if local.HoldTime == 0 {
		local.HoldTime = DefaultHoldTime
	}
	a := &FSM{
		local:        local,
		holdDeadline: DefaultHoldTime,
	}
	a.machine = fsm.New[State, Event]("adjacency:"+local.Name, OneWay, 50)

	a.machine.OnEntry(ThreeWay, func(m *fsm.Machine[State, Event]) {
		if a.StartFlooding != nil {
			a.StartFlooding()
		}
	})
	a.machine.OnExit(ThreeWay, func(m *fsm.Machine[State, Event]) {
		if a.StopFlooding != nil {
			a.StopFlooding()
		}
	})

	reset := func(reason string) func(m *fsm.Machine[State, Event], e Event) {
		return func(m *fsm.Machine[State, Event], e Event) {
			a.resetToOneWay(reason)
		}
	}

	for _, s := range []State{OneWay, TwoWay, ThreeWay} {
		// ProcessLIE does the actual acceptance/three-way work before
		// enqueuing this event; the self-loop just keeps LIE_RECEIVED
		// in the transition history.
		a.machine.AddTransition(s, EvLIEReceived, s, nil)
		a.machine.AddTransition(s, EvUnacceptableHeader, OneWay, reset("unacceptable header"))
		a.machine.AddTransition(s, EvNeighborChangedLevel, OneWay, reset("neighbor changed level"))
		a.machine.AddTransition(s, EvNeighborChangedAddress, OneWay, reset("neighbor changed address"))
		a.machine.AddTransition(s, EvMultipleNeighbors, OneWay, reset("multiple neighbors"))
		a.machine.AddTransition(s, EvLIECorrupt, OneWay, reset("corrupt LIE"))
		a.machine.AddTransition(s, EvHoldTimeExpired, OneWay, reset("hold time expired"))
	}

	a.machine.AddTransition(OneWay, EvNewNeighbor, TwoWay, nil)
	a.machine.AddTransition(TwoWay, EvValidReflection, ThreeWay, nil)
	a.machine.AddTransition(ThreeWay, EvNeighborDroppedReflection, TwoWay, nil)

	a.machine.AddTransition(OneWay, EvTimerTick, OneWay, func(m *fsm.Machine[State, Event], e Event) {
		a.emitSendLIE()
	})
	a.machine.AddTransition(TwoWay, EvTimerTick, TwoWay, func(m *fsm.Machine[State, Event], e Event) {
		a.tickHold()
		a.emitSendLIE()
	})
	a.machine.AddTransition(ThreeWay, EvTimerTick, ThreeWay, func(m *fsm.Machine[State, Event], e Event) {
		a.tickHold()
		a.emitSendLIE()
	})

	return a
}

// State returns the current adjacency state.
func (a *FSM) State() State { return a.machine.State() }

// Peer returns the currently known neighbor, or nil in ONE_WAY.
func (a *FSM) Peer() *Neighbor { return a.peer }

// History returns the adjacency FSM's transition history for CLI
// inspection (spec.md §6 "FSM history").
func (a *FSM) History() []fsm.Entry[State, Event] { return a.machine.History() }

// SetLocal updates the local level/HAT/leaf view, e.g. on ZTP's
// LEVEL_CHANGED / HAT_CHANGED notifications.
func (a *FSM) SetLocal(local Local) { a.local = local }

// Local returns the interface's current local view, so a caller updating
// only a few fields (e.g. Level/HAT/Leaf on a ZTP level change) can read
// the rest back before calling SetLocal.
func (a *FSM) Local() Local { return a.local }

func (a *FSM) resetToOneWay(reason string) {
	a.peer = nil
	a.holdTicks = 0
	a.holdDeadline = DefaultHoldTime
	if a.OnReset != nil {
		a.OnReset(reason)
	}
	a.emitSendLIE()
}

func (a *FSM) tickHold() {
	if a.peer == nil {
		return
	}
	a.holdTicks++
	if a.holdTicks >= a.holdDeadline {
		a.machine.Enqueue(EvHoldTimeExpired)
	}
}

func (a *FSM) emitSendLIE() {
	if a.SendLIE == nil {
		return
	}
	notAZtpOffer := false
	if a.NotAZtpOffer != nil {
		notAZtpOffer = a.NotAZtpOffer()
	}
	var neighbor *packet.Neighbor
	if a.peer != nil {
		neighbor = &packet.Neighbor{SystemID: a.peer.SystemID, LocalID: a.peer.LinkID}
	}
	a.SendLIE(packet.LIEPacket{
		Name:         a.local.Name,
		SystemID:     a.local.SystemID,
		Level:        a.local.Level,
		LinkID:       a.local.LinkID,
		FloodPort:    a.local.FloodPort,
		MTU:          a.local.MTU,
		Neighbor:     neighbor,
		PoD:          a.local.PoD,
		Nonce:        newNonce(),
		Capabilities: a.local.Capabilities,
		HoldTime:     a.local.HoldTime,
		NotAZtpOffer: notAZtpOffer,
	})
}

// newNonce draws 63 random bits from a cryptographic-quality source
// (spec.md §5 "Random source").
func newNonce() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("adjacency: crypto/rand unavailable: %v", err))
	}
	return binary.BigEndian.Uint64(b[:]) &^ (uint64(1) << 63)
}

// Tick drives the per-second TIMER_TICK event (spec.md §4.1).
func (a *FSM) Tick() { a.machine.Enqueue(EvTimerTick) }

// rejection is the outcome of the ordered LIE acceptance rules.
type rejection struct {
	reason    string
	offerOnly bool
}

// evaluate runs the ordered LIE acceptance rules of spec.md §4.1 against a
// received LIE. A zero rejection (reason == "") means the LIE is fully
// acceptable.
func (a *FSM) evaluate(lie packet.LIEPacket) rejection {
	if lie.SystemID == 0 {
		return rejection{reason: "invalid system id"}
	}
	// Loopback (sender == self). Inside a Node a self-echo is already
	// dropped at dispatch, before the FSM sees the packet (spec.md §6).
	if lie.SystemID == a.local.SystemID {
		return rejection{reason: "loopback"}
	}
	if a.local.MTU != 0 && lie.MTU != 0 && a.local.MTU != lie.MTU {
		return rejection{reason: "MTU mismatch"}
	}
	if !lie.Level.Defined || !a.local.Level.Defined {
		return rejection{reason: "level undefined", offerOnly: true}
	}
	if a.local.PoD != UndefinedPoD && lie.PoD != UndefinedPoD && a.local.PoD != lie.PoD {
		return rejection{reason: "PoD mismatch"}
	}

	// Rule 1: this node is a leaf and HAT <= sender's level.
	if a.local.Leaf && a.local.HAT.Defined && a.local.HAT.Value <= lie.Level.Value {
		return rejection{}
	}
	// Rule 2: this node is not a leaf and the sender is at level 0.
	if !a.local.Leaf && lie.Level.Value == 0 {
		return rejection{}
	}
	// Rule 3: both nodes are leaf and both advertise leaf-to-leaf.
	if a.local.Leaf && lie.Level.Value == packet.LeafLevel &&
		a.local.Capabilities.Has(packet.LeafToLeaf) && lie.Capabilities.Has(packet.LeafToLeaf) {
		return rejection{}
	}
	// Rule 4: neither node is leaf and levels differ by at most one.
	if !a.local.Leaf && lie.Level.Value != packet.LeafLevel && absDiffLevel(lie.Level.Value, a.local.Level.Value) <= 1 {
		return rejection{}
	}

	return rejection{reason: "level mismatch"}
}

func absDiffLevel(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// isValidReflection reports whether lie names this node as the peer it
// knows about on this link (spec.md §4.1 "Three-way check").
func (a *FSM) isValidReflection(lie packet.LIEPacket) bool {
	return lie.Neighbor != nil && lie.Neighbor.SystemID == a.local.SystemID && lie.Neighbor.LocalID == a.local.LinkID
}

// minorFieldsChanged reports whether flood_port, name, or local_id differ
// from the stored neighbor while system id, level, and address are
// unchanged (spec.md §4.1 "Minor-change detection").
func minorFieldsChanged(peer *Neighbor, lie packet.LIEPacket, addr string) bool {
	if peer == nil {
		return false
	}
	if peer.SystemID != lie.SystemID || !peer.Level.Equal(lie.Level) || peer.Address != addr {
		return false
	}
	return peer.FloodPort != lie.FloodPort || peer.Name != lie.Name || peer.LinkID != lie.LinkID
}

// ProcessLIE runs the full LIE_RECEIVED pipeline: acceptance rules,
// three-way check, minor-change detection, and the resulting follow-up
// events, per spec.md §4.1. addr is the source address the LIE arrived on.
func (a *FSM) ProcessLIE(lie packet.LIEPacket, addr string) {
	r := a.evaluate(lie)
	if r.reason != "" && !r.offerOnly {
		if a.OfferToZTP != nil {
			a.OfferToZTP(LevelOffer{SystemID: lie.SystemID, Level: lie.Level, NotAZtpOffer: lie.NotAZtpOffer, State: a.State()})
		}
		a.machine.Enqueue(EvUnacceptableHeader)
		return
	}
	if a.OfferToZTP != nil {
		a.OfferToZTP(LevelOffer{SystemID: lie.SystemID, Level: lie.Level, NotAZtpOffer: lie.NotAZtpOffer, State: a.State()})
	}
	if r.offerOnly {
		return
	}

	switch a.State() {
	case OneWay:
		a.peer = &Neighbor{
			SystemID: lie.SystemID, Level: lie.Level, Address: addr, LinkID: lie.LinkID,
			FloodPort: lie.FloodPort, Name: lie.Name, HoldTime: lie.HoldTime, Capabilities: lie.Capabilities,
		}
		if lie.HoldTime != 0 {
			a.holdDeadline = lie.HoldTime
		}
		a.holdTicks = 0
		a.machine.Enqueue(EvLIEReceived)
		a.machine.Enqueue(EvNewNeighbor)

	case TwoWay:
		if minorFieldsChanged(a.peer, lie, addr) {
			a.applyMinorFields(lie, addr)
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborChangedMinorFields)
			return
		}
		if a.peer != nil && (a.peer.SystemID != lie.SystemID || a.peer.Address != addr) {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborChangedAddress)
			return
		}
		if a.peer != nil && !a.peer.Level.Equal(lie.Level) {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborChangedLevel)
			return
		}
		a.holdTicks = 0
		if a.isValidReflection(lie) {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvValidReflection)
		} else if lie.Neighbor != nil {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvMultipleNeighbors)
		} else {
			a.machine.Enqueue(EvLIEReceived)
		}

	case ThreeWay:
		if minorFieldsChanged(a.peer, lie, addr) {
			a.applyMinorFields(lie, addr)
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborChangedMinorFields)
			return
		}
		if a.peer != nil && (a.peer.SystemID != lie.SystemID || a.peer.Address != addr) {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborChangedAddress)
			return
		}
		if a.peer != nil && !a.peer.Level.Equal(lie.Level) {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborChangedLevel)
			return
		}
		a.holdTicks = 0
		if lie.Neighbor == nil {
			a.machine.Enqueue(EvLIEReceived)
			a.machine.Enqueue(EvNeighborDroppedReflection)
		} else {
			a.machine.Enqueue(EvLIEReceived)
		}
	}
}

func (a *FSM) applyMinorFields(lie packet.LIEPacket, addr string) {
	if a.peer == nil {
		return
	}
	a.peer.FloodPort = lie.FloodPort
	a.peer.Name = lie.Name
	a.peer.LinkID = lie.LinkID
	a.peer.Address = addr
}
