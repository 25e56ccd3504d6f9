package node

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabricrift/riftgo/internal/adjacency"
	"github.com/fabricrift/riftgo/internal/config"
	"github.com/fabricrift/riftgo/internal/logging"
	"github.com/fabricrift/riftgo/internal/metrics"
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/tie"
)

type sentPacket struct {
	iface   string
	addr    string
	port    uint16
	content packet.Content
}

type fakeTransport struct {
	sent []sentPacket
}

func (f *fakeTransport) Send(iface, addr string, port uint16, pkt packet.ProtocolPacket) error {
	f.sent = append(f.sent, sentPacket{iface: iface, addr: addr, port: port, content: pkt.Content})
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Output: io.Discard})
}

func newTestNode(t *testing.T, transport *fakeTransport) *Node {
	t.Helper()
	cfg := &config.Config{
		Name:     "leaf1",
		Level:    string(config.LevelLeafToLeaf),
		SystemID: 1,
		Interfaces: []config.InterfaceConfig{
			{Name: "eth0", LinkID: 7, MTU: 1500},
		},
	}
	return New(cfg, transport, nil, testLogger(), metrics.New())
}

// bringUpThreeWay drives iface's adjacency FSM through a two-LIE handshake
// with a same-level leaf-2-leaf peer, landing in THREE_WAY.
func bringUpThreeWay(n *Node, iface string, peerID packet.SystemID, peerLinkID uint32, addr string) {
	base := packet.LIEPacket{
		Name:         "peer",
		SystemID:     peerID,
		Level:        packet.DefinedLevel(packet.LeafLevel),
		LinkID:       peerLinkID,
		Capabilities: packet.LeafToLeaf,
		HoldTime:     3,
	}
	header := packet.Header{Sender: peerID, Level: base.Level, MajorVersion: packet.CurrentMajorVersion}
	n.dispatch(Inbound{Interface: iface, Addr: addr, Port: LIEPort, Packet: packet.ProtocolPacket{Header: header, Content: base}})

	reflecting := base
	reflecting.Neighbor = &packet.Neighbor{SystemID: n.SelfSystemID(), LocalID: n.interfaces[iface].iface.LinkID}
	n.dispatch(Inbound{Interface: iface, Addr: addr, Port: LIEPort, Packet: packet.ProtocolPacket{Header: header, Content: reflecting}})
}

func TestBringUpThreeWayTriggersSelfOrigination(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)

	bringUpThreeWay(n, "eth0", 99, 55, "10.0.0.2")

	summaries := n.Interfaces()
	require.Len(t, summaries, 1)
	require.Equal(t, "THREE_WAY", summaries[0].State.String())
	require.NotNil(t, summaries[0].Neighbor)

	for _, dir := range []packet.Direction{packet.South, packet.North} {
		id := packet.TIEID{Direction: dir, Originator: n.SelfSystemID(), Type: packet.TIETypeNode, TIENr: 1}
		entry, ok := n.store.Get(id)
		require.True(t, ok, "direction %s", dir)
		ne, ok := entry.Element.(packet.NodeElement)
		require.True(t, ok)
		nb, ok := ne.Neighbors[99]
		require.True(t, ok, "east-west neighbor must appear in both directional Node TIEs")
		require.Equal(t, []packet.LinkIDPair{{Local: 7, Remote: 55}}, nb.LinkIDs)
	}
}

func TestRegenerateSelfOriginationIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)
	bringUpThreeWay(n, "eth0", 99, 55, "10.0.0.2")

	id := packet.TIEID{Direction: packet.South, Originator: n.SelfSystemID(), Type: packet.TIETypeNode, TIENr: 1}
	before, ok := n.store.Get(id)
	require.True(t, ok)
	seqBefore := before.Header.SeqNr

	n.regenerateSelfOrigination()
	n.regenerateSelfOrigination()

	after, ok := n.store.Get(id)
	require.True(t, ok)
	require.Equal(t, seqBefore, after.Header.SeqNr, "unchanged content must not bump seq_nr")
}

func TestSouthPrefixNotOriginatedWithoutPeerVisibility(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)
	bringUpThreeWay(n, "eth0", 99, 55, "10.0.0.2")

	id := packet.TIEID{Direction: packet.South, Originator: n.SelfSystemID(), Type: packet.TIETypePrefix, TIENr: 1}
	_, ok := n.store.Get(id)
	require.False(t, ok, "policy requires evidence about same-level peers before defaulting south")
}

func TestSouthPrefixOriginatedWhenPeersOverloaded(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)
	bringUpThreeWay(n, "eth0", 99, 55, "10.0.0.2")

	peerNodeID := packet.TIEID{Direction: packet.North, Originator: 99, Type: packet.TIETypeNode, TIENr: 1}
	n.store.Put(&tie.Entry{
		Header: packet.TIEHeader{ID: peerNodeID, SeqNr: 1, RemainingLifetime: tie.DefaultLifetime},
		Element: packet.NodeElement{
			Level:    packet.DefinedLevel(packet.LeafLevel),
			Overload: true,
		},
	})

	n.regenerateSelfOrigination()

	id := packet.TIEID{Direction: packet.South, Originator: n.SelfSystemID(), Type: packet.TIETypePrefix, TIENr: 1}
	entry, ok := n.store.Get(id)
	require.True(t, ok)
	pe, ok := entry.Element.(packet.PrefixElement)
	require.True(t, ok)
	_, hasDefault := pe.Prefixes[defaultRoute]
	require.True(t, hasDefault)
}

func TestDispatchDropsSelfEcho(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)

	lie := packet.LIEPacket{Name: "leaf1", SystemID: n.SelfSystemID(), Level: packet.DefinedLevel(packet.LeafLevel)}
	n.dispatch(Inbound{
		Interface: "eth0", Addr: "224.0.0.120", Port: LIEPort,
		Packet: packet.ProtocolPacket{
			Header:  packet.Header{Sender: n.SelfSystemID(), MajorVersion: packet.CurrentMajorVersion},
			Content: lie,
		},
	})

	require.Equal(t, adjacency.OneWay, n.interfaces["eth0"].iface.FSM.State(), "self-echo must never reach the FSM")
}

func TestDispatchDropsMajorVersionMismatch(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)

	lie := packet.LIEPacket{Name: "peer", SystemID: 99, Level: packet.DefinedLevel(packet.LeafLevel)}
	n.dispatch(Inbound{
		Interface: "eth0", Addr: "10.0.0.2", Port: LIEPort,
		Packet: packet.ProtocolPacket{
			Header:  packet.Header{Sender: 99, MajorVersion: packet.CurrentMajorVersion + 1},
			Content: lie,
		},
	})

	require.Equal(t, adjacency.OneWay, n.interfaces["eth0"].iface.FSM.State(), "version-mismatched packets must be dropped")
}

func TestDispatchDropsLIEOnTIEPort(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)

	lie := packet.LIEPacket{Name: "peer", SystemID: 99, Level: packet.DefinedLevel(packet.LeafLevel)}
	n.dispatch(Inbound{
		Interface: "eth0", Addr: "10.0.0.2", Port: TIEPort,
		Packet: packet.ProtocolPacket{
			Header:  packet.Header{Sender: 99, MajorVersion: packet.CurrentMajorVersion},
			Content: lie,
		},
	})

	require.Equal(t, adjacency.OneWay, n.interfaces["eth0"].iface.FSM.State(), "a LIE on the TIE port must be dropped, not processed")
}

func TestDispatchDropsTIEOnLIEPort(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)

	peerOnly := packet.TIEHeader{
		ID:                packet.TIEID{Direction: packet.South, Originator: 99, Type: packet.TIETypeNode, TIENr: 1},
		SeqNr:             1,
		RemainingLifetime: 100,
	}
	tide := packet.TIDEPacket{Start: packet.MinTIEID, End: packet.MaxTIEID, Headers: []packet.TIEHeader{peerOnly}}
	n.dispatch(Inbound{
		Interface: "eth0", Addr: "10.0.0.2", Port: LIEPort,
		Packet: packet.ProtocolPacket{
			Header:  packet.Header{Sender: 99, MajorVersion: packet.CurrentMajorVersion},
			Content: tide,
		},
	})

	require.Equal(t, 0, n.interfaces["eth0"].queues.REQ.Len(), "a TIDE on the LIE port must be dropped, not processed")
}

func TestSetInterfaceFailureBlocksReceive(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNode(t, transport)

	require.True(t, n.SetInterfaceFailure("eth0", adjacency.FailureRXFailed))
	require.False(t, n.SetInterfaceFailure("nope", adjacency.FailureOK))

	// Without the failure this leaf-2-leaf LIE would move eth0 to TWO_WAY.
	lie := packet.LIEPacket{Name: "peer", SystemID: 99, Level: packet.DefinedLevel(packet.LeafLevel), LinkID: 55, Capabilities: packet.LeafToLeaf}
	n.dispatch(Inbound{
		Interface: "eth0", Addr: "10.0.0.2", Port: LIEPort,
		Packet: packet.ProtocolPacket{
			Header:  packet.Header{Sender: 99, MajorVersion: packet.CurrentMajorVersion},
			Content: lie,
		},
	})
	require.Equal(t, adjacency.OneWay, n.interfaces["eth0"].iface.FSM.State(), "an rx-failed interface must not process received packets")
}
