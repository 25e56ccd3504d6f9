package node

import (
	"context"
	"fmt"
	"time"

	"github.com/fabricrift/riftgo/internal/adjacency"
	"github.com/fabricrift/riftgo/internal/clock"
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/rib"
)

// Run drives the node's single-threaded cooperative event loop (spec.md
// §5: "single-threaded cooperative scheduling... suspension only at loop
// iteration boundaries"). It blocks until ctx is canceled.
func (n *Node) Run(ctx context.Context) {
	n.masterTick = clock.NewPeriodic(masterTickInterval * time.Second)
	defer n.masterTick.Stop()
	n.tideTimer = clock.NewPeriodic(tideEmitInterval * time.Second)
	defer n.tideTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case in := <-n.inbound:
			n.dispatch(in)

		case <-n.masterTick.C:
			n.onMasterTick()

		case <-n.tideTimer.C:
			n.emitTIDEs()

		case <-n.ztp.HoldDownC():
			n.ztp.HoldDownExpired()

		case <-n.spfTimerC(packet.South):
			n.onSPFTimerFire(packet.South)

		case <-n.spfTimerC(packet.North):
			n.onSPFTimerFire(packet.North)
		}
	}
}

// dispatch routes one decoded inbound packet to the interface it arrived
// on, per spec.md §6 ("dispatched by content type"), after the
// receive-time checks §6 requires of every packet regardless of content:
// self-echo drop, major version check, and LIE/TIE port matching.
func (n *Node) dispatch(in Inbound) {
	ni, ok := n.interfaces[in.Interface]
	if !ok {
		return
	}
	if !ni.iface.FailureMode.CanReceive() {
		return
	}

	if in.Packet.Header.Sender == n.self {
		return // self-echo (spec.md §6); never reaches a FSM or ZTP
	}
	if in.Packet.Header.MajorVersion != packet.CurrentMajorVersion {
		n.log.Warn(fmt.Sprintf("dropping packet on %s: major version %d != %d",
			in.Interface, in.Packet.Header.MajorVersion, packet.CurrentMajorVersion))
		return
	}

	_, isLIE := in.Packet.Content.(packet.LIEPacket)
	if isLIE && in.Port != LIEPort {
		n.log.Warn(fmt.Sprintf("dropping LIE packet received on %s on %s", in.Port, in.Interface))
		return
	}
	if !isLIE && in.Port == LIEPort {
		n.log.Warn(fmt.Sprintf("dropping non-LIE packet received on %s on %s", in.Port, in.Interface))
		return
	}

	switch p := in.Packet.Content.(type) {
	case packet.LIEPacket:
		before := ni.iface.FSM.State()
		ni.iface.FSM.ProcessLIE(p, in.Addr)
		after := ni.iface.FSM.State()
		if after != before && n.metrics != nil {
			n.metrics.AdjacencyTransitions.WithLabelValues(in.Interface, before.String(), after.String()).Inc()
		}
	case packet.TIEPacket:
		n.flood.ReceiveTIE(ni.queues, p)
	case packet.TIDEPacket:
		n.flood.ReceiveTIDE(ni.queues, p)
	case packet.TIREPacket:
		n.flood.ReceiveTIRE(ni.queues, p)
	}
}

// onMasterTick runs the per-second housekeeping of spec.md §4.1 ("TIMER_TICK"),
// §4.4 ("queue servicing"), and §3 ("remaining_lifetime counts down"): drives
// every interface's hold timer and LIE retransmission, ages the TIE database,
// and services flood queues for every THREE_WAY neighbor.
func (n *Node) onMasterTick() {
	for _, ni := range n.interfaces {
		ni.iface.FSM.Tick()
	}

	aged := n.store.Age(masterTickInterval)
	if len(aged.Removed) > 0 {
		if n.metrics != nil {
			n.metrics.TIEsAgedOut.Add(float64(len(aged.Removed)))
		}
		n.markSPFDirty(packet.South)
		n.markSPFDirty(packet.North)
	}

	n.serviceQueues()
}

// serviceQueues drains each THREE_WAY interface's flood queues and sends
// the resulting TIRE/TIE packets (spec.md §4.4 "Queue servicing").
func (n *Node) serviceQueues() {
	for name, ni := range n.interfaces {
		if ni.iface.FSM.State() != adjacency.ThreeWay {
			continue
		}
		nc := n.neighborContext(name)
		ack, req, ties := n.flood.Service(nc, ni.queues)
		if ack != nil {
			n.sendToNeighbor(name, *ack)
		}
		if req != nil {
			n.sendToNeighbor(name, *req)
		}
		for _, t := range ties {
			n.sendToNeighbor(name, t)
		}
		if n.metrics != nil {
			n.metrics.QueueDepth.WithLabelValues(name, "tx").Set(float64(ni.queues.TX.Len()))
			n.metrics.QueueDepth.WithLabelValues(name, "rtx").Set(float64(ni.queues.RTX.Len()))
			n.metrics.QueueDepth.WithLabelValues(name, "req").Set(float64(ni.queues.REQ.Len()))
			n.metrics.QueueDepth.WithLabelValues(name, "ack").Set(float64(ni.queues.ACK.Len()))
		}
	}
}

// emitTIDEs sends a fresh database summary to every THREE_WAY neighbor
// (spec.md §4.4 "TIDE generation" is run periodically, independent of
// queue servicing).
func (n *Node) emitTIDEs() {
	for name, ni := range n.interfaces {
		if ni.iface.FSM.State() != adjacency.ThreeWay {
			continue
		}
		n.sendToNeighbor(name, n.flood.BuildTIDE(n.neighborContext(name)))
	}
}

// spfTimerC returns dir's coalescing timer channel, or nil (blocks forever
// in a select) when no timer is pending.
func (n *Node) spfTimerC(dir packet.Direction) <-chan time.Time {
	c := &n.spfState[dir]
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

// markSPFDirty implements the coalescing rule of spec.md §4.5: "the first
// trigger runs immediately and starts a timer; triggers during the timer
// set a pending flag that causes exactly one re-run on expiry." The
// running guard absorbs a trigger raised while runSPF is computing or
// installing routes for this direction. A trigger from runSPF's post-run
// self-origination pass arrives after that guard is cleared and is caught
// by the timer check instead (the timer is started before each run), so
// it becomes the pending re-run rather than recursing.
func (n *Node) markSPFDirty(dir packet.Direction) {
	c := &n.spfState[dir]
	if c.running {
		c.pending = true
		return
	}
	if c.timer != nil && !c.timer.Stopped() {
		c.pending = true
		return
	}
	c.timer = clock.NewOneShot(spfCoalesceInterval * time.Second)
	n.runSPF(dir)
}

// onSPFTimerFire runs the exactly-one re-run spec.md §4.5 describes, if a
// trigger arrived while the timer was running.
func (n *Node) onSPFTimerFire(dir packet.Direction) {
	c := &n.spfState[dir]
	c.timer = nil
	if !c.pending {
		return
	}
	c.pending = false
	c.timer = clock.NewOneShot(spfCoalesceInterval * time.Second)
	n.runSPF(dir)
}

// runSPF executes one SPF run, installs its result into the RIB, and lets
// self-origination react to whatever the RIB install changed (e.g. the
// South Prefix TIE policy's northbound-default-route clause, spec.md
// §4.3). The running guard is dropped before calling
// regenerateSelfOrigination so that a dirty mark raised for the *other*
// direction from inside it is not absorbed.
func (n *Node) runSPF(dir packet.Direction) {
	c := &n.spfState[dir]
	c.running = true

	result := n.spf.Run(dir)
	n.lastSPF[dir] = result
	if n.metrics != nil {
		n.metrics.SPFRuns.WithLabelValues(dir.String()).Inc()
	}

	stats := n.rib.InstallFromSPF(dir, result)
	n.recordRIBStats(dir, stats)

	c.running = false
	n.regenerateSelfOrigination()
}

func ownerLabel(dir packet.Direction) string {
	if dir == packet.North {
		return "N_SPF"
	}
	return "S_SPF"
}

// recordRIBStats feeds one InstallFromSPF pass's counts into the
// per-owner, per-family RIB install/removal counters.
func (n *Node) recordRIBStats(dir packet.Direction, stats rib.InstallStats) {
	if n.metrics == nil {
		return
	}
	owner := ownerLabel(dir)
	if stats.InstalledV4 > 0 {
		n.metrics.RIBInstalls.WithLabelValues(owner, "v4").Add(float64(stats.InstalledV4))
	}
	if stats.InstalledV6 > 0 {
		n.metrics.RIBInstalls.WithLabelValues(owner, "v6").Add(float64(stats.InstalledV6))
	}
	if stats.RemovedV4 > 0 {
		n.metrics.RIBRemovals.WithLabelValues(owner, "v4").Add(float64(stats.RemovedV4))
	}
	if stats.RemovedV6 > 0 {
		n.metrics.RIBRemovals.WithLabelValues(owner, "v6").Add(float64(stats.RemovedV6))
	}
}
