// Package node implements the per-node coordinator described in spec.md
// §2 ("Node: ZTP FSM + self-origination + flood decisions + TIDE
// generation") and §9 ("Interface <-> Node is a tight back-reference:
// model nodes as owning their interfaces"). It owns the TIE store, the
// ZTP level-election engine, one adjacency FSM and flood-queue pair per
// configured interface, the SPF engine, and the RIB, and drives them
// all from a single cooperative event loop (spec.md §5).
package node

import (
	"strconv"

	"github.com/fabricrift/riftgo/internal/adjacency"
	"github.com/fabricrift/riftgo/internal/clock"
	"github.com/fabricrift/riftgo/internal/config"
	"github.com/fabricrift/riftgo/internal/flooding"
	"github.com/fabricrift/riftgo/internal/fsm"
	"github.com/fabricrift/riftgo/internal/logging"
	"github.com/fabricrift/riftgo/internal/metrics"
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/rib"
	"github.com/fabricrift/riftgo/internal/spf"
	"github.com/fabricrift/riftgo/internal/tie"
	"github.com/fabricrift/riftgo/internal/ztp"
)

// Transport is the external collaborator spec.md §1 places out of scope:
// the actual UDP send path. Node builds the envelope (sender, level,
// major version) itself and hands Transport the complete packet to
// encode and address; cmd/riftd supplies the real implementation.
type Transport interface {
	Send(iface string, addr string, port uint16, pkt packet.ProtocolPacket) error
}

// Port distinguishes which of an interface's two receive sockets a
// packet arrived on (spec.md §5 "two UDP receive handlers (LIE and TIE
// ports)"), so dispatch can enforce §6's "receiver of a LIE packet on
// the TIE port logs a warning and drops the packet, and vice versa."
type Port int

const (
	LIEPort Port = iota
	TIEPort
)

func (p Port) String() string {
	if p == TIEPort {
		return "TIE port"
	}
	return "LIE port"
}

// Inbound is one decoded packet arriving on an interface, handed to Node
// by whatever owns the real receive sockets (out of scope, spec.md §1).
type Inbound struct {
	Interface string
	Addr      string
	Port      Port
	Packet    packet.ProtocolPacket
}

// envelope wraps content in the header spec.md §6 describes: sender,
// current level, and this implementation's wire major version.
func (n *Node) envelope(content packet.Content) packet.ProtocolPacket {
	return packet.ProtocolPacket{
		Header:  packet.Header{Sender: n.self, Level: n.ztp.Level(), MajorVersion: packet.CurrentMajorVersion},
		Content: content,
	}
}

type nodeInterface struct {
	cfg    config.InterfaceConfig
	iface  *adjacency.Interface
	queues *flooding.Queues
}

// spfCoalescer implements the coalescing timer of spec.md §4.5: "first
// trigger runs immediately and starts the timer; triggers during the
// timer set a pending flag that causes exactly one re-run on expiry."
type spfCoalescer struct {
	timer   *clock.Timer
	running bool
	pending bool
}

// Node is the per-node coordinator.
type Node struct {
	self packet.SystemID
	cfg  *config.Config
	log  *logging.Logger

	transport Transport
	metrics   *metrics.Registry

	store *tie.Store
	ztp   *ztp.Engine
	flood *flooding.Engine
	spf   *spf.Engine
	rib   *rib.RIB

	interfaces map[string]*nodeInterface

	spfState [2]spfCoalescer
	lastSPF  [2]spf.Result

	masterTick *clock.Timer
	tideTimer  *clock.Timer

	inbound chan Inbound
}

const (
	masterTickInterval  = 1 // seconds; drives adjacency Tick, aging, queue service
	tideEmitInterval    = 2 // seconds
	spfCoalesceInterval = 1 // seconds
)

// New builds a Node from its static configuration. kernel may be nil — a
// nil KernelInstaller disables the RIB's best-effort kernel installation
// hook (spec.md §1 places the kernel route table out of scope). reg may
// be nil to disable metrics.
func New(cfg *config.Config, transport Transport, kernel rib.KernelInstaller, log *logging.Logger, reg *metrics.Registry) *Node {
	self := packet.SystemID(cfg.SystemID)
	store := tie.NewStore()

	configured, _ := parseConfiguredLevel(cfg.Level)
	ztpEngine := ztp.New(cfg.Name, configured)

	n := &Node{
		self:       self,
		cfg:        cfg,
		log:        log,
		transport:  transport,
		metrics:    reg,
		store:      store,
		ztp:        ztpEngine,
		rib:        rib.New(self, kernel),
		interfaces: make(map[string]*nodeInterface, len(cfg.Interfaces)),
		inbound:    make(chan Inbound, 64),
	}
	n.flood = flooding.New(self, store, ztpEngine.Level, n.selfTopOfFabric)
	n.spf = spf.New(self, store, n.resolveLink)

	for _, ic := range cfg.Interfaces {
		n.addInterface(ic)
	}

	ztpEngine.OnLevelChange(func(packet.Level) {
		n.refreshLocalOnAllInterfaces()
		n.regenerateSelfOrigination()
	})

	return n
}

// parseConfiguredLevel turns the configuration document's symbolic or
// literal level field into ZTP's Configured shape and the capability bit
// it implies (leaf-2-leaf advertises the LeafToLeaf capability).
func parseConfiguredLevel(s string) (ztp.Configured, packet.Capabilities) {
	switch config.SymbolicLevel(s) {
	case config.LevelLeaf:
		return ztp.Configured{Leaf: true}, 0
	case config.LevelLeafToLeaf:
		return ztp.Configured{Leaf: true}, packet.LeafToLeaf
	case config.LevelTopOfFabric:
		return ztp.Configured{TopOfFabric: true}, 0
	case config.LevelUndefined, "":
		return ztp.Configured{}, 0
	default:
		if v, err := strconv.Atoi(s); err == nil && v >= 0 && v <= 255 {
			return ztp.Configured{Level: packet.DefinedLevel(uint8(v))}, 0
		}
		return ztp.Configured{}, 0
	}
}

func (n *Node) selfTopOfFabric() bool {
	level := n.ztp.Level()
	return level.Defined && level.Value == packet.TopOfFabricLevel
}

func (n *Node) selfIsLeaf() bool {
	level := n.ztp.Level()
	return level.Defined && level.Value == packet.LeafLevel
}

func (n *Node) addInterface(ic config.InterfaceConfig) {
	_, caps := parseConfiguredLevel(n.cfg.Level)
	local := adjacency.Local{
		SystemID:     n.self,
		FloodPort:    ic.TIEPort,
		Leaf:         n.selfIsLeaf(),
		Level:        n.ztp.Level(),
		HAT:          n.ztp.HAT(),
		Capabilities: caps,
		HoldTime:     ic.HoldTime,
	}
	iface := adjacency.NewInterface(ic.Name, ic.LinkID, ic.MTU, ic.PoD, local)
	ni := &nodeInterface{cfg: ic, iface: iface, queues: flooding.NewQueues()}
	n.interfaces[ic.Name] = ni
	n.wireInterface(ni)
}

// wireInterface binds an adjacency FSM's callbacks to this node's ZTP
// engine, flooding engine, and transport, per spec.md §4.1's entry/exit
// actions ("start flooding" / "stop flooding").
func (n *Node) wireInterface(ni *nodeInterface) {
	name := ni.cfg.Name
	fsm := ni.iface.FSM

	fsm.SendLIE = func(lie packet.LIEPacket) {
		if !ni.iface.FailureMode.CanSend() {
			return
		}
		_ = n.transport.Send(name, ni.cfg.LIEMulticastV4, ni.cfg.LIEPort, n.envelope(lie))
	}
	fsm.StartFlooding = func() {
		n.regenerateSelfOrigination()
		n.sendToNeighbor(name, n.flood.BuildTIDE(n.neighborContext(name)))
	}
	fsm.StopFlooding = func() {
		ni.queues.Clear()
		n.regenerateSelfOrigination()
	}
	fsm.OfferToZTP = func(o adjacency.LevelOffer) {
		n.ztp.HandleOffer(ztp.Offer{
			Interface: name, SystemID: o.SystemID, Level: o.Level,
			NotAZtpOffer: o.NotAZtpOffer, State: o.State,
		})
	}
	fsm.OnReset = func(reason string) {
		n.ztp.ExpireOffer(name, reason)
		if n.metrics != nil {
			n.metrics.LIERejections.WithLabelValues(name, reason).Inc()
		}
	}
	fsm.NotAZtpOffer = func() bool {
		return n.ztp.NotAZtpOffer(name)
	}
}

// refreshLocalOnAllInterfaces pushes the node's current derived level,
// HAT, and leaf status onto every interface's adjacency FSM (spec.md
// §4.2 "let LIE FSMs re-advertise"). It sends no LIE itself: the new level
// goes out in the LIE each interface sends on its next TIMER_TICK.
func (n *Node) refreshLocalOnAllInterfaces() {
	leaf := n.selfIsLeaf()
	for _, ni := range n.interfaces {
		local := ni.iface.FSM.Local()
		local.Level = n.ztp.Level()
		local.HAT = n.ztp.HAT()
		local.Leaf = leaf
		ni.iface.FSM.SetLocal(local)
	}
	if n.metrics != nil {
		n.metrics.Level.Set(levelGauge(n.ztp.Level()))
		n.metrics.HAL.Set(levelGauge(n.ztp.HAL()))
		n.metrics.HAT.Set(levelGauge(n.ztp.HAT()))
	}
}

func levelGauge(l packet.Level) float64 {
	if !l.Defined {
		return -1
	}
	return float64(l.Value)
}

// resolveLink is the spf.LinkResolver bound to this node's own interface
// table (spec.md §4.5 "Next-hop derivation").
func (n *Node) resolveLink(localLinkID uint32) (ifaceName, neighborAddr string, ok bool) {
	for name, ni := range n.interfaces {
		if ni.iface.LinkID != localLinkID {
			continue
		}
		if peer := ni.iface.FSM.Peer(); peer != nil {
			return name, peer.Address, true
		}
		return name, "", true
	}
	return "", "", false
}

// neighborContext builds the flooding.NeighborContext for the interface's
// currently known peer, or the zero value if there is none.
func (n *Node) neighborContext(name string) flooding.NeighborContext {
	ni, ok := n.interfaces[name]
	if !ok {
		return flooding.NeighborContext{}
	}
	peer := ni.iface.FSM.Peer()
	if peer == nil {
		return flooding.NeighborContext{}
	}
	return flooding.NeighborContext{
		SystemID:    peer.SystemID,
		Rel:         flooding.RelationOf(n.ztp.Level(), peer.Level),
		Level:       peer.Level,
		TopOfFabric: peer.Level.Defined && peer.Level.Value == packet.TopOfFabricLevel,
	}
}

func (n *Node) sendToNeighbor(name string, content packet.Content) {
	ni, ok := n.interfaces[name]
	if !ok || !ni.iface.FailureMode.CanSend() {
		return
	}
	peer := ni.iface.FSM.Peer()
	if peer == nil {
		return
	}
	_ = n.transport.Send(name, peer.Address, peer.FloodPort, n.envelope(content))
}

// Inbound returns the channel Run drains for decoded packets; whatever
// owns the real receive sockets (out of scope) pushes onto it.
func (n *Node) Inbound() chan<- Inbound { return n.inbound }

// SelfSystemID returns this node's system id.
func (n *Node) SelfSystemID() packet.SystemID { return n.self }

// Level returns the node's currently derived (or configured) level.
func (n *Node) Level() packet.Level { return n.ztp.Level() }

// ZTP exposes the ZTP engine for CLI/diagnostic read access.
func (n *Node) ZTP() *ztp.Engine { return n.ztp }

// Store exposes the TIE database for CLI read access (spec.md §6 "TIE
// database listing").
func (n *Node) Store() *tie.Store { return n.store }

// RIB exposes the RIB/FIB for CLI read access.
func (n *Node) RIB() *rib.RIB { return n.rib }

// SPFResult returns the most recently completed SPF run for dir.
func (n *Node) SPFResult(dir packet.Direction) spf.Result { return n.lastSPF[dir] }

// InterfaceSummary is one interface's state, for CLI listing.
type InterfaceSummary struct {
	Name        string
	State       adjacency.State
	FailureMode adjacency.FailureMode
	Neighbor    *adjacency.Neighbor
}

// Interfaces returns a summary of every configured interface.
func (n *Node) Interfaces() []InterfaceSummary {
	out := make([]InterfaceSummary, 0, len(n.interfaces))
	for name, ni := range n.interfaces {
		out = append(out, InterfaceSummary{
			Name: name, State: ni.iface.FSM.State(),
			FailureMode: ni.iface.FailureMode, Neighbor: ni.iface.FSM.Peer(),
		})
	}
	return out
}

// FSMHistory returns an interface's adjacency FSM transition history.
func (n *Node) FSMHistory(name string) ([]fsm.Entry[adjacency.State, adjacency.Event], bool) {
	ni, ok := n.interfaces[name]
	if !ok {
		return nil, false
	}
	return ni.iface.FSM.History(), true
}

// Queues returns an interface's flood queues, for CLI inspection.
func (n *Node) Queues(name string) (*flooding.Queues, bool) {
	ni, ok := n.interfaces[name]
	if !ok {
		return nil, false
	}
	return ni.queues, true
}

// SetInterfaceFailure mutates an interface's simulated failure mode
// (spec.md §6 "set interface <name> failure").
func (n *Node) SetInterfaceFailure(name string, mode adjacency.FailureMode) bool {
	ni, ok := n.interfaces[name]
	if !ok {
		return false
	}
	ni.iface.FailureMode = mode
	return true
}
