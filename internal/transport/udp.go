// Package transport supplies the real UDP implementation of the
// node.Transport contract and the receive side that feeds node.Inbound.
// spec.md §1 places "UDP send/receive handlers" out of scope as an
// external collaborator; this package is that collaborator.
package transport

import (
	"fmt"
	"net"

	"github.com/fabricrift/riftgo/internal/config"
	"github.com/fabricrift/riftgo/internal/logging"
	"github.com/fabricrift/riftgo/internal/node"
	"github.com/fabricrift/riftgo/internal/packet"
)

// UDP binds one LIE socket and one TIE socket per configured interface and
// demultiplexes received datagrams onto a node's Inbound channel. Send
// writes a single unicast datagram; LIEs go out on the LIE port and
// TIDE/TIRE/TIE content goes out on the TIE port, matching the two send
// handlers spec.md §5 "Resources" lists per interface.
type UDP struct {
	codec packet.Codec
	log   *logging.Logger

	lie map[string]*net.UDPConn
	tie map[string]*net.UDPConn
}

// New binds a LIE and a TIE socket for every configured interface. It does
// not start receiving; call Listen(inbound) to do that.
func New(cfg *config.Config, codec packet.Codec, log *logging.Logger) (*UDP, error) {
	u := &UDP{
		codec: codec,
		log:   log,
		lie:   make(map[string]*net.UDPConn, len(cfg.Interfaces)),
		tie:   make(map[string]*net.UDPConn, len(cfg.Interfaces)),
	}
	for _, ic := range cfg.Interfaces {
		lieConn, err := bind(ic.LocalAddr, ic.LIEPort)
		if err != nil {
			u.Close()
			return nil, fmt.Errorf("bind LIE socket for %s: %w", ic.Name, err)
		}
		u.lie[ic.Name] = lieConn

		tieConn, err := bind(ic.LocalAddr, ic.TIEPort)
		if err != nil {
			u.Close()
			return nil, fmt.Errorf("bind TIE socket for %s: %w", ic.Name, err)
		}
		u.tie[ic.Name] = tieConn
	}
	return u, nil
}

func bind(addr string, port uint16) (*net.UDPConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(addr), Port: int(port)})
}

// Send implements node.Transport. pkt already carries its envelope
// (sender, level, major version), built by internal/node; this package
// only encodes and addresses it.
func (u *UDP) Send(iface string, addr string, port uint16, pkt packet.ProtocolPacket) error {
	conn := u.lie[iface]
	if _, ok := pkt.Content.(packet.LIEPacket); !ok {
		conn = u.tie[iface]
	}
	if conn == nil {
		return fmt.Errorf("transport: no socket for interface %q", iface)
	}
	data, err := u.codec.Encode(pkt)
	if err != nil {
		return fmt.Errorf("encode outbound packet: %w", err)
	}
	dst := &net.UDPAddr{IP: net.ParseIP(addr), Port: int(port)}
	_, err = conn.WriteToUDP(data, dst)
	return err
}

// Listen spawns one goroutine per bound socket that decodes inbound
// datagrams and pushes them onto inbound, tagged with the port they
// arrived on so dispatch can enforce spec.md §6's LIE/TIE port rule. It
// returns immediately; the goroutines run until their socket is closed.
func (u *UDP) Listen(inbound chan<- node.Inbound) {
	for name, conn := range u.lie {
		go u.recvLoop(name, node.LIEPort, conn, inbound)
	}
	for name, conn := range u.tie {
		go u.recvLoop(name, node.TIEPort, conn, inbound)
	}
}

func (u *UDP) recvLoop(iface string, port node.Port, conn *net.UDPConn, inbound chan<- node.Inbound) {
	buf := make([]byte, 64*1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		p, err := u.codec.Decode(buf[:n])
		if err != nil {
			u.log.Warn(fmt.Sprintf("discarding undecodable packet on %s: %v", iface, err))
			continue
		}
		inbound <- node.Inbound{Interface: iface, Addr: src.IP.String(), Port: port, Packet: p}
	}
}

// Close releases every bound socket.
func (u *UDP) Close() {
	for _, conn := range u.lie {
		_ = conn.Close()
	}
	for _, conn := range u.tie {
		_ = conn.Close()
	}
}
