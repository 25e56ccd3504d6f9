// Package ztp implements the Zero-Touch Provisioning level-election state
// machine described in spec.md §4.2: the per-node offer table, HAL/HAT
// computation, level derivation, and poison reverse.
package ztp

import (
	"sort"
	"time"

	"github.com/fabricrift/riftgo/internal/adjacency"
	"github.com/fabricrift/riftgo/internal/clock"
	"github.com/fabricrift/riftgo/internal/fsm"
	"github.com/fabricrift/riftgo/internal/packet"
)

// State is one of the three ZTP states (spec.md §4.2).
type State int

const (
	ComputeBestOffer State = iota
	UpdatingClients
	HoldingDown
)

func (s State) String() string {
	switch s {
	case ComputeBestOffer:
		return "COMPUTE_BEST_OFFER"
	case UpdatingClients:
		return "UPDATING_CLIENTS"
	case HoldingDown:
		return "HOLDING_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Event is one of the ZTP FSM's events (spec.md §4.2).
type Event int

const (
	EvChangeConfiguredLevel Event = iota
	EvNeighborOffer
	EvBetterHAL
	EvBetterHAT
	EvLostHAL
	EvLostHAT
	EvComputationDone
	EvHoldDownExpired
)

// DefaultHoldDown is the hold-down timer default (spec.md §4.2).
const DefaultHoldDown = 3 * time.Second

// Configured is the node's static level configuration (spec.md §4.2 "Level
// derivation"). At most one of Level.Defined, TopOfFabric, Leaf should
// drive the outcome; Level takes priority if defined.
type Configured struct {
	Level       packet.Level
	TopOfFabric bool
	Leaf        bool
}

func deriveLevel(cfg Configured, hal packet.Level) packet.Level {
	if cfg.Level.Defined {
		return cfg.Level
	}
	if cfg.TopOfFabric {
		return packet.DefinedLevel(packet.TopOfFabricLevel)
	}
	if cfg.Leaf {
		return packet.DefinedLevel(packet.LeafLevel)
	}
	if !hal.Defined {
		return packet.UndefinedLevel()
	}
	if hal.Value == 0 {
		return packet.DefinedLevel(0)
	}
	return packet.DefinedLevel(hal.Value - 1)
}

// Offer is a per-interface snapshot of a neighbor's advertised level
// (spec.md §3 "Offer").
type Offer struct {
	Interface     string
	SystemID      packet.SystemID
	Level         packet.Level
	NotAZtpOffer  bool
	State         adjacency.State
	Removed       bool
	RemovedReason string
	Best          bool
	BestThreeWay  bool
}

func isRemoved(o Offer) (bool, string) {
	if o.NotAZtpOffer {
		return true, "poison reverse (not_a_ztp_offer)"
	}
	if !o.Level.Defined {
		return true, "undefined level"
	}
	if o.Level.Value == packet.LeafLevel {
		return true, "offer from a leaf"
	}
	return false, ""
}

// Engine is the per-node ZTP level-election coordinator. It is not
// reentrant; a Node drives it from its single-threaded event loop.
type Engine struct {
	name string
	cfg  Configured

	offers map[string]*Offer

	hal     packet.Level
	hat     packet.Level
	derived packet.Level

	holdDownDuration time.Duration
	holdDownTimer    *clock.Timer

	machine *fsm.Machine[State, Event]

	onLevelChange []func(packet.Level)
}

// New creates a ZTP engine for a node, starting in COMPUTE_BEST_OFFER with
// no offers and (if cfg names no fixed level) an undefined derived level.
func New(name string, cfg Configured) *Engine {
	e := &Engine{
		name:             name,
		cfg:              cfg,
		offers:           make(map[string]*Offer),
		hal:              packet.UndefinedLevel(),
		hat:              packet.UndefinedLevel(),
		holdDownDuration: DefaultHoldDown,
		machine:          fsm.New[State, Event]("ztp:"+name, ComputeBestOffer, 20),
	}
	e.derived = deriveLevel(cfg, e.hal)

	e.machine.OnEntry(UpdatingClients, func(m *fsm.Machine[State, Event]) {
		for _, fn := range e.onLevelChange {
			fn(e.derived)
		}
	})
	e.machine.OnEntry(ComputeBestOffer, func(m *fsm.Machine[State, Event]) {
		e.stopHoldDown()
	})
	e.machine.AddTransition(ComputeBestOffer, EvComputationDone, UpdatingClients, nil)
	e.machine.AddTransition(UpdatingClients, EvComputationDone, ComputeBestOffer, nil)
	e.machine.AddTransition(ComputeBestOffer, EvLostHAL, HoldingDown, nil)
	e.machine.AddTransition(UpdatingClients, EvLostHAL, HoldingDown, nil)
	e.machine.AddTransition(HoldingDown, EvHoldDownExpired, ComputeBestOffer, nil)
	e.machine.AddTransition(HoldingDown, EvChangeConfiguredLevel, ComputeBestOffer, nil)

	return e
}

// State returns the current ZTP FSM state.
func (e *Engine) State() State { return e.machine.State() }

// Level returns this node's currently derived (or configured) level.
func (e *Engine) Level() packet.Level { return e.derived }

// HAL returns the Highest Available Level.
func (e *Engine) HAL() packet.Level { return e.hal }

// HAT returns the Highest Adjacency Three-way level.
func (e *Engine) HAT() packet.Level { return e.hat }

// History returns the ZTP FSM's transition history for CLI inspection.
func (e *Engine) History() []fsm.Entry[State, Event] { return e.machine.History() }

// OnLevelChange registers a callback invoked whenever the derived level is
// (re)computed on entry to UPDATING_CLIENTS, so LIE FSMs can re-advertise
// (spec.md §4.2 "On entry to UPDATING_CLIENTS").
func (e *Engine) OnLevelChange(fn func(packet.Level)) {
	e.onLevelChange = append(e.onLevelChange, fn)
}

// NotAZtpOffer reports whether a LIE emitted on iface must set
// not_a_ztp_offer: true iff ZTP is deriving this node's level (no fixed
// configured/top-of-fabric/leaf level), the current offer accepted on
// iface is not removed, and its level equals HAL (spec.md §4.2 "Poison
// reverse").
func (e *Engine) NotAZtpOffer(iface string) bool {
	if e.cfg.Level.Defined || e.cfg.TopOfFabric || e.cfg.Leaf {
		return false
	}
	o, ok := e.offers[iface]
	if !ok || o.Removed {
		return false
	}
	return e.hal.Defined && o.Level.Defined && o.Level.Value == e.hal.Value
}

// Offers returns a snapshot of the offer table, for the CLI and for
// diagnostics. Keys are interface names.
func (e *Engine) Offers() map[string]Offer {
	out := make(map[string]Offer, len(e.offers))
	for k, v := range e.offers {
		out[k] = *v
	}
	return out
}

// HoldDownC exposes the hold-down timer's channel for a Node's event loop
// to select on; returns nil (blocks forever in a select) when no hold-down
// is active.
func (e *Engine) HoldDownC() <-chan time.Time {
	if e.holdDownTimer == nil {
		return nil
	}
	return e.holdDownTimer.C
}

func (e *Engine) stopHoldDown() {
	if e.holdDownTimer != nil {
		e.holdDownTimer.Stop()
		e.holdDownTimer = nil
	}
}

// HandleOffer records or updates the offer for o.Interface and recomputes
// HAL/HAT/derived level (spec.md §4.2 "NEIGHBOR_OFFER").
func (e *Engine) HandleOffer(o Offer) {
	removed, reason := isRemoved(o)
	o.Removed = removed
	o.RemovedReason = reason
	e.offers[o.Interface] = &o
	e.machine.Enqueue(EvNeighborOffer)
	e.recompute()
}

// ExpireOffer marks the offer on iface removed (e.g. on hold-timer
// expiry of the owning adjacency, spec.md §4.1 "The ZTP offer for the
// interface is expired").
func (e *Engine) ExpireOffer(iface string, reason string) {
	o, ok := e.offers[iface]
	if !ok {
		return
	}
	o.Removed = true
	o.RemovedReason = reason
	e.machine.Enqueue(EvNeighborOffer)
	e.recompute()
}

// RemoveInterface deletes an interface's offer entirely, e.g. when the
// interface is deleted from the node's configuration.
func (e *Engine) RemoveInterface(iface string) {
	delete(e.offers, iface)
	e.recompute()
}

// SetConfiguredLevel updates the static configuration (spec.md §4.2
// "CHANGE_LOCAL_CONFIGURED_LEVEL") and recomputes immediately.
func (e *Engine) SetConfiguredLevel(cfg Configured) {
	e.cfg = cfg
	if e.machine.State() == HoldingDown {
		e.machine.Enqueue(EvChangeConfiguredLevel)
	}
	e.recompute()
}

// HoldDownExpired purges all offers and recomputes (spec.md §4.2 "On
// HOLD_DOWN_EXPIRED: purge all offers").
func (e *Engine) HoldDownExpired() {
	e.offers = make(map[string]*Offer)
	e.hal = packet.UndefinedLevel()
	e.hat = packet.UndefinedLevel()
	e.machine.Enqueue(EvHoldDownExpired)
	e.recomputeDerivedAndNotify()
}

// recompute re-derives HAL/HAT/level from the current offer table,
// detecting HAL/HAT loss and driving the FSM's COMPUTE_BEST_OFFER /
// UPDATING_CLIENTS cycle or, on HAL loss, the hold-down path.
func (e *Engine) recompute() {
	bestOverall, bestThreeWay := e.selectBestOffers()

	newHAL := packet.UndefinedLevel()
	if bestOverall != nil {
		newHAL = bestOverall.Level
	}
	newHAT := packet.UndefinedLevel()
	if bestThreeWay != nil {
		newHAT = bestThreeWay.Level
	}

	lostHAL := e.hal.Defined && !newHAL.Defined
	lostHAT := e.hat.Defined && !newHAT.Defined

	e.hal = newHAL
	e.hat = newHAT

	if lostHAL {
		if e.hasSouthboundAdjacency() {
			e.holdDownTimer = clock.NewOneShot(e.holdDownDuration)
			e.machine.Enqueue(EvLostHAL)
			return
		}
		e.HoldDownExpired()
		return
	}

	if lostHAT {
		e.machine.Enqueue(EvLostHAT)
	}

	e.recomputeDerivedAndNotify()
}

func (e *Engine) recomputeDerivedAndNotify() {
	e.derived = deriveLevel(e.cfg, e.hal)
	if e.machine.State() != HoldingDown {
		e.machine.Enqueue(EvComputationDone)
		e.machine.Enqueue(EvComputationDone)
	}
}

// hasSouthboundAdjacency reports whether, under the level this node held
// before the HAL loss being processed, at least one offer is both
// THREE_WAY and at a lower level than this node (i.e. a southbound
// adjacency), per spec.md §4.2 "On LOST_HAL: if any currently known
// southbound adjacency exists...".
func (e *Engine) hasSouthboundAdjacency() bool {
	if !e.derived.Defined {
		return false
	}
	for _, o := range e.offers {
		if o.State != adjacency.ThreeWay {
			continue
		}
		if !o.Level.Defined {
			continue
		}
		if o.Level.Value < e.derived.Value {
			return true
		}
	}
	return false
}

// selectBestOffers returns the overall best non-removed offer and the best
// non-removed offer whose source adjacency is THREE_WAY (spec.md §4.2
// "Best-offer selection"). Both may be nil if no offers qualify.
func (e *Engine) selectBestOffers() (overall *Offer, threeWay *Offer) {
	names := make([]string, 0, len(e.offers))
	for name := range e.offers {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic iteration for tie-break stability

	for _, o := range e.offers {
		o.Best = false
		o.BestThreeWay = false
	}

	for _, name := range names {
		o := e.offers[name]
		if o.Removed {
			continue
		}
		if overall == nil || higherRanked(*o, *overall) {
			overall = o
		}
		if o.State == adjacency.ThreeWay {
			if threeWay == nil || higherRanked(*o, *threeWay) {
				threeWay = o
			}
		}
	}
	if overall != nil {
		overall.Best = true
	}
	if threeWay != nil {
		threeWay.BestThreeWay = true
	}
	return overall, threeWay
}

// higherRanked reports whether a outranks b: higher level wins, ties
// broken by numerically smaller system id (spec.md §4.2).
func higherRanked(a, b Offer) bool {
	if a.Level.Value != b.Level.Value {
		return a.Level.Value > b.Level.Value
	}
	return a.SystemID < b.SystemID
}
