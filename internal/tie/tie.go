// Package tie implements the ordered TIE database described in spec.md §3
// ("Ordered TIE store") and §4.3 ("TIE database"): TIE-age comparison,
// self-origination sequence helpers, and the apparently-self flush
// synthesis rule.
package tie

import (
	"net/netip"

	"github.com/fabricrift/riftgo/internal/packet"
)

// LifetimeDiffToIgnore is the 300-second boundary named in spec.md §4.3
// rule 3.
const LifetimeDiffToIgnore = 300

// FlushLifetime is the remaining_lifetime given to a synthesized flush TIE
// (spec.md §4.3 "Flushing a peer's apparently-self TIE").
const FlushLifetime = 60

// DefaultLifetime is the remaining_lifetime given to a freshly (re)originated
// TIE that is not a flush.
const DefaultLifetime = 600

// CompareAge returns -1, 0, or 1 as header a is older than, the same age
// as, or newer than header b. Both headers must share the same TIE-ID;
// callers are responsible for that invariant. origination_time is never
// read (spec.md §9 leaves its semantics undefined and forbids using it
// here).
func CompareAge(a, b packet.TIEHeader) int {
	if a.SeqNr != b.SeqNr {
		if a.SeqNr > b.SeqNr {
			return 1
		}
		return -1
	}

	aZero := a.RemainingLifetime == 0
	bZero := b.RemainingLifetime == 0
	if aZero != bZero {
		// A zero remaining_lifetime is a request marker, older than any
		// non-zero lifetime at the same seq_nr.
		if aZero {
			return -1
		}
		return 1
	}
	if aZero && bZero {
		return 0
	}

	var diff int64
	if a.RemainingLifetime > b.RemainingLifetime {
		diff = int64(a.RemainingLifetime) - int64(b.RemainingLifetime)
	} else {
		diff = int64(b.RemainingLifetime) - int64(a.RemainingLifetime)
	}
	if diff <= LifetimeDiffToIgnore {
		return 0
	}
	if a.RemainingLifetime > b.RemainingLifetime {
		return 1
	}
	return -1
}

// EmptyElementFor returns the zero-value element for a TIE type, with any
// internal maps initialized empty rather than nil — used when synthesizing
// a flush TIE or a south prefix TIE that must announce "nothing" rather
// than omit the TIE (spec.md §4.3).
func EmptyElementFor(t packet.TIEType) packet.Element {
	switch t {
	case packet.TIETypeNode:
		return packet.NodeElement{Neighbors: map[packet.SystemID]packet.NodeNeighbor{}}
	case packet.TIETypePrefix:
		return packet.PrefixElement{Prefixes: map[netip.Prefix]packet.PrefixAttributes{}}
	case packet.TIETypePositiveDisagg:
		return packet.PositiveDisaggElement{}
	case packet.TIETypeNegativeDisagg:
		return packet.NegativeDisaggElement{}
	case packet.TIETypePolicyGuided:
		return packet.PolicyGuidedElement{}
	case packet.TIETypeKeyValue:
		return packet.KeyValueElement{}
	default:
		return nil
	}
}

// SynthesizeFlush builds the empty, higher-seq_nr, short-lifetime TIE that
// drains a peer's apparently-self TIE from the fabric (spec.md §4.3
// "Flushing a peer's apparently-self TIE").
func SynthesizeFlush(received packet.TIEHeader) packet.TIEPacket {
	return packet.TIEPacket{
		Header: packet.TIEHeader{
			ID:                received.ID,
			SeqNr:             received.SeqNr + 1,
			RemainingLifetime: FlushLifetime,
		},
		Element: EmptyElementFor(received.ID.Type),
	}
}

// BumpOwn re-originates a self-originated TIE we do still hold locally,
// with a seq_nr higher than one we just saw flooded back at us (spec.md
// §4.4 receive path, outcome "local older, self-originated -> bump
// own TIE"). Content is unchanged; only seq_nr and remaining_lifetime are
// refreshed.
func BumpOwn(local Entry, seenSeqNr uint32) packet.TIEPacket {
	seq := local.Header.SeqNr
	if seenSeqNr >= seq {
		seq = seenSeqNr + 1
	}
	return packet.TIEPacket{
		Header: packet.TIEHeader{
			ID:                local.Header.ID,
			SeqNr:             seq,
			RemainingLifetime: DefaultLifetime,
		},
		Element: local.Element,
	}
}
