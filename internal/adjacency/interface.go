package adjacency

// FailureMode lets the CLI inject one-sided or two-sided loss on an
// interface for testing (spec.md §6 "set interface <name> failure").
type FailureMode int

const (
	FailureOK FailureMode = iota
	FailureFailed
	FailureTXFailed
	FailureRXFailed
)

func (f FailureMode) String() string {
	switch f {
	case FailureOK:
		return "ok"
	case FailureFailed:
		return "failed"
	case FailureTXFailed:
		return "tx-failed"
	case FailureRXFailed:
		return "rx-failed"
	default:
		return "unknown"
	}
}

// CanSend reports whether packets may currently be transmitted on the
// interface.
func (f FailureMode) CanSend() bool { return f == FailureOK || f == FailureRXFailed }

// CanReceive reports whether packets may currently be accepted on the
// interface.
func (f FailureMode) CanReceive() bool { return f == FailureOK || f == FailureTXFailed }

// Interface is one node-local link: its static configuration, its
// adjacency FSM, and the failure-injection state the CLI can mutate
// (spec.md §5 "Resources", §6 "set interface failure"). Flood queues
// (flooding.Queues) are held by internal/node beside each Interface, and
// sockets are owned by internal/transport; Interface only tracks the identity and link-layer facts adjacency and
// flooding both need.
type Interface struct {
	Name        string
	LocalAddr   string
	LinkID      uint32
	TIEPort     uint16
	LIEPort     uint16
	LIEMulticast string
	MTU         uint32
	PoD         uint32
	FailureMode FailureMode

	FSM *FSM
}

// NewInterface creates an interface with a fresh adjacency FSM.
func NewInterface(name string, linkID uint32, mtu uint32, pod uint32, local Local) *Interface {
	local.Name = name
	local.LinkID = linkID
	local.MTU = mtu
	local.PoD = pod
	return &Interface{
		Name:   name,
		LinkID: linkID,
		MTU:    mtu,
		PoD:    pod,
		FSM:    New(local),
	}
}
