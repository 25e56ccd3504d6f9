// Package rib implements the RIB/FIB bridge of spec.md §4.5 "RIB
// installation" and §2's "RIB/FIB bridge": owner-tagged routes with
// stale-marking and sweep after each SPF run, backed by
// github.com/gaissmai/bart for longest-prefix-match storage, and a
// contract-only kernel installation hook (spec.md §1 places the kernel
// route table itself out of scope).
package rib

import (
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/spf"
)

// Owner names which SPF direction installed a route (spec.md §4.5
// "Owners: S_SPF, N_SPF").
type Owner int

const (
	SouthSPF Owner = iota
	NorthSPF
)

func (o Owner) String() string {
	if o == NorthSPF {
		return "N_SPF"
	}
	return "S_SPF"
}

func ownerFor(dir packet.Direction) Owner {
	if dir == packet.North {
		return NorthSPF
	}
	return SouthSPF
}

// Route is one installed FIB entry.
type Route struct {
	Prefix   netip.Prefix
	NextHops []spf.NextHop
	Owner    Owner

	generation uint64
}

// KernelInstaller is the external collaborator spec.md §1 places out of
// scope: whatever turns a Route into an actual kernel (or simulated)
// route table entry. RIB calls it best-effort; a nil KernelInstaller on
// the RIB disables kernel installation entirely (routes are still
// tracked and queryable).
type KernelInstaller interface {
	Install(Route) error
	Remove(Route) error
}

// RIB holds the independently-maintained IPv4 and IPv6 route tables
// (spec.md §4.5 "IPv4 and IPv6 RIBs are maintained independently").
type RIB struct {
	self       packet.SystemID
	v4         *bart.Table[*Route]
	v6         *bart.Table[*Route]
	generation map[Owner]uint64
	kernel     KernelInstaller
}

// New creates an empty RIB for a node identified by self. kernel may be
// nil.
func New(self packet.SystemID, kernel KernelInstaller) *RIB {
	return &RIB{
		self:       self,
		v4:         new(bart.Table[*Route]),
		v6:         new(bart.Table[*Route]),
		generation: map[Owner]uint64{},
		kernel:     kernel,
	}
}

func (r *RIB) tableFor(pfx netip.Prefix) *bart.Table[*Route] {
	if pfx.Addr().Is4() {
		return r.v4
	}
	return r.v6
}

// isSelfOnly reports whether preds is exactly [self]: such a destination
// is the node's own directly-originated prefix and is excluded from
// installation (spec.md §4.5 "whose predecessors are neither [] nor
// [self]").
func (r *RIB) isSelfOnly(preds []packet.SystemID) bool {
	return len(preds) == 1 && preds[0] == r.self
}

// InstallStats summarizes one InstallFromSPF pass, split by address
// family, so a caller (internal/node) can feed per-owner/per-family
// metrics counters without re-deriving the counts itself.
type InstallStats struct {
	InstalledV4, InstalledV6 int
	RemovedV4, RemovedV6     int
}

// InstallFromSPF runs one direction's RIB installation pass (spec.md
// §4.5 "RIB installation"): mark the direction's existing routes stale,
// install every qualifying prefix destination, then sweep whatever
// stayed stale.
func (r *RIB) InstallFromSPF(dir packet.Direction, result spf.Result) InstallStats {
	owner := ownerFor(dir)
	r.generation[owner]++
	gen := r.generation[owner]

	var stats InstallStats
	for prefix, dest := range result.Prefixes {
		if len(dest.Predecessors) == 0 || r.isSelfOnly(dest.Predecessors) {
			continue
		}
		route := &Route{Prefix: prefix, NextHops: dest.NextHops, Owner: owner, generation: gen}
		r.install(prefix, route)
		if prefix.Addr().Is4() {
			stats.InstalledV4++
		} else {
			stats.InstalledV6++
		}
	}
	stats.RemovedV4, stats.RemovedV6 = r.sweep(owner, gen)
	return stats
}

func (r *RIB) install(prefix netip.Prefix, route *Route) {
	r.tableFor(prefix).Insert(prefix, route)
	if r.kernel != nil {
		_ = r.kernel.Install(*route)
	}
}

func (r *RIB) sweep(owner Owner, gen uint64) (removedV4, removedV6 int) {
	removedV4 = r.sweepTable(r.v4, owner, gen)
	removedV6 = r.sweepTable(r.v6, owner, gen)
	return
}

func (r *RIB) sweepTable(t *bart.Table[*Route], owner Owner, gen uint64) int {
	var stale []netip.Prefix
	for prefix, route := range t.All() {
		if route.Owner == owner && route.generation != gen {
			stale = append(stale, prefix)
		}
	}
	for _, prefix := range stale {
		route, _ := t.Get(prefix)
		t.Delete(prefix)
		if r.kernel != nil && route != nil {
			_ = r.kernel.Remove(*route)
		}
	}
	return len(stale)
}

// Get returns the installed route for prefix, if any.
func (r *RIB) Get(prefix netip.Prefix) (*Route, bool) {
	return r.tableFor(prefix).Get(prefix)
}

// Lookup performs a longest-prefix-match route lookup for ip, the FIB's
// actual forwarding operation.
func (r *RIB) Lookup(ip netip.Addr) (*Route, bool) {
	if ip.Is4() {
		return r.v4.Lookup(ip)
	}
	return r.v6.Lookup(ip)
}

// All returns every installed route across both address families, used
// by the CLI's RIB/FIB listing (spec.md §6).
func (r *RIB) All() []*Route {
	out := make([]*Route, 0, r.v4.Size()+r.v6.Size())
	for _, route := range r.v4.All() {
		out = append(out, route)
	}
	for _, route := range r.v6.All() {
		out = append(out, route)
	}
	return out
}

// ByOwner filters All to routes installed by owner.
func (r *RIB) ByOwner(owner Owner) []*Route {
	var out []*Route
	for _, route := range r.All() {
		if route.Owner == owner {
			out = append(out, route)
		}
	}
	return out
}
