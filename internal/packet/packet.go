// Package packet defines the wire-adjacent shapes named by spec.md §3 and
// §6 (LIE, TIE, TIDE, TIRE, TIE-ID, TIE header) and the Codec contract that
// stands in for the external packet codec spec.md §1 places out of scope.
// Nothing in this package performs real wire encoding beyond the minimal
// GobCodec stand-in in codec.go; internal/adjacency, internal/flooding, and
// internal/node use only the types, and internal/transport the Codec.
package packet

import (
	"fmt"
	"net/netip"
)

// SystemID is the 64-bit node identifier (spec.md §3 "System identity").
type SystemID uint64

// Direction distinguishes southbound and northbound TIEs (spec.md §3
// "TIE-ID").
type Direction uint8

const (
	South Direction = iota
	North
)

func (d Direction) String() string {
	if d == North {
		return "North"
	}
	return "South"
}

// TIEType enumerates the TIE element kinds spec.md §3 names. Unknown values
// are preserved opaquely per spec.md §9 ("Sum types").
type TIEType uint8

const (
	TIETypeNode TIEType = iota + 1
	TIETypePrefix
	TIETypePositiveDisagg
	TIETypeNegativeDisagg
	TIETypePolicyGuided
	TIETypeKeyValue
)

func (t TIEType) String() string {
	switch t {
	case TIETypeNode:
		return "Node"
	case TIETypePrefix:
		return "Prefix"
	case TIETypePositiveDisagg:
		return "PositiveDisagg"
	case TIETypeNegativeDisagg:
		return "NegativeDisagg"
	case TIETypePolicyGuided:
		return "PolicyGuided"
	case TIETypeKeyValue:
		return "KeyValue"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// TIEID is the 4-tuple identity of a TIE: (direction, originator, type,
// tie_nr). It has a total lexicographic order over its fields, required by
// the ordered TIE store (spec.md §3).
type TIEID struct {
	Direction  Direction
	Originator SystemID
	Type       TIEType
	TIENr      uint32
}

// Compare returns -1, 0, or 1 as id sorts before, equal to, or after other,
// comparing fields in order: Direction, Originator, Type, TIENr.
func (id TIEID) Compare(other TIEID) int {
	if id.Direction != other.Direction {
		return cmpUint(uint8(id.Direction), uint8(other.Direction))
	}
	if id.Originator != other.Originator {
		return cmpUint(uint64(id.Originator), uint64(other.Originator))
	}
	if id.Type != other.Type {
		return cmpUint(uint8(id.Type), uint8(other.Type))
	}
	return cmpUint(uint64(id.TIENr), uint64(other.TIENr))
}

func cmpUint[T ~uint8 | ~uint32 | ~uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (id TIEID) String() string {
	return fmt.Sprintf("%s-%d-%s-%d", id.Direction, id.Originator, id.Type, id.TIENr)
}

// MinTIEID and MaxTIEID bound the entire TIE-ID space, used by TIDE
// generation (spec.md §4.4 "A TIDE is built... covering the entire TIE-ID
// space [MIN_TIE_ID, MAX_TIE_ID]").
var (
	MinTIEID = TIEID{Direction: South, Originator: 0, Type: 0, TIENr: 0}
	MaxTIEID = TIEID{Direction: North, Originator: SystemID(^uint64(0)), Type: TIEType(^uint8(0)), TIENr: ^uint32(0)}
)

// Level represents a possibly-undefined node level (spec.md §3: "The level
// may be undefined while ZTP converges").
type Level struct {
	Value   uint8
	Defined bool
}

// DefinedLevel constructs a Level carrying v.
func DefinedLevel(v uint8) Level { return Level{Value: v, Defined: true} }

// UndefinedLevel constructs the undefined Level.
func UndefinedLevel() Level { return Level{} }

func (l Level) String() string {
	if !l.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%d", l.Value)
}

// Equal reports whether two levels are the same, with both undefined
// comparing equal.
func (l Level) Equal(other Level) bool {
	if l.Defined != other.Defined {
		return false
	}
	return !l.Defined || l.Value == other.Value
}

const (
	// LeafLevel is the conventional leaf level (spec.md GLOSSARY).
	LeafLevel uint8 = 0
	// TopOfFabricLevel is the conventional top-of-fabric level.
	TopOfFabricLevel uint8 = 24
)

// Capabilities is a bit-flag set carried on LIEs. Unknown bits round-trip
// opaquely (SPEC_FULL.md §C.2).
type Capabilities uint16

const (
	// LeafToLeaf is the capability bit gating LIE acceptance rule 3 of
	// spec.md §4.1 ("Both nodes are leaf and both advertise the
	// leaf-to-leaf capability").
	LeafToLeaf Capabilities = 1 << 0
)

func (c Capabilities) Has(flag Capabilities) bool { return c&flag != 0 }

// TIEHeader is the header carried by every TIE (spec.md §3 "TIE").
// OriginationTime is retained for CLI display only — spec.md §9 leaves its
// comparison semantics undefined and requires implementations not to use it
// in age comparison; internal/tie.CompareAge never reads it.
type TIEHeader struct {
	ID                TIEID
	SeqNr             uint32
	RemainingLifetime uint32
	OriginationTime   int64
}

func (h TIEHeader) String() string {
	return fmt.Sprintf("%s seq=%d life=%d", h.ID, h.SeqNr, h.RemainingLifetime)
}

// LinkIDPair is one (local, remote) link-id pairing between a node and one
// of its neighbors, as carried in a Node TIE's neighbor entry. A neighbor
// with multiple parallel links carries one pair per link (spec.md §3).
type LinkIDPair struct {
	Local  uint32
	Remote uint32
}

// NodeNeighbor is one entry in a Node TIE's neighbor map.
type NodeNeighbor struct {
	Level     Level
	Cost      uint32
	LinkIDs   []LinkIDPair
	Bandwidth uint64
}

// NodeElement is the Node TIE element (spec.md §3).
type NodeElement struct {
	Level     Level
	Neighbors map[SystemID]NodeNeighbor
	Overload  bool
}

func (NodeElement) tieElement() {}

// PrefixAttributes is the metric/tags pair carried per advertised prefix.
type PrefixAttributes struct {
	Metric uint32
	Tags   []string
}

// PrefixElement is the Prefix TIE element (spec.md §3).
type PrefixElement struct {
	Prefixes map[netip.Prefix]PrefixAttributes
}

func (PrefixElement) tieElement() {}

// PositiveDisaggElement, NegativeDisaggElement, PolicyGuidedElement, and
// KeyValueElement are retained opaquely: spec.md §9 leaves their
// construction and flushing semantics unspecified, and §1 places
// policy-guided prefixes and negative disaggregation out of scope as
// features. internal/tie and internal/node never originate these; they
// exist so a TIE of these types received from a peer can be stored and
// reflooded without being decoded.
type PositiveDisaggElement struct{ Raw []byte }
type NegativeDisaggElement struct{ Raw []byte }
type PolicyGuidedElement struct{ Raw []byte }
type KeyValueElement struct{ Raw []byte }

func (PositiveDisaggElement) tieElement() {}
func (NegativeDisaggElement) tieElement() {}
func (PolicyGuidedElement) tieElement()   {}
func (KeyValueElement) tieElement()       {}

// Element is the TIE element sum type (spec.md §9 "Sum types").
type Element interface {
	tieElement()
}

// TypeOf returns the TIEType tag matching an Element's concrete type.
func TypeOf(e Element) TIEType {
	switch e.(type) {
	case NodeElement:
		return TIETypeNode
	case PrefixElement:
		return TIETypePrefix
	case PositiveDisaggElement:
		return TIETypePositiveDisagg
	case NegativeDisaggElement:
		return TIETypeNegativeDisagg
	case PolicyGuidedElement:
		return TIETypePolicyGuided
	case KeyValueElement:
		return TIETypeKeyValue
	default:
		return 0
	}
}

// TIEPacket is a header plus its typed element.
type TIEPacket struct {
	Header  TIEHeader
	Element Element
}

func (TIEPacket) contentType() string { return "TIE" }

// TIDEPacket is a database summary covering a contiguous TIE-ID range,
// headers sorted ascending (spec.md §4.4).
type TIDEPacket struct {
	Start   TIEID
	End     TIEID
	Headers []TIEHeader
}

func (TIDEPacket) contentType() string { return "TIDE" }

// TIREPacket lists headers being requested from, or acknowledged to, a
// peer (spec.md §4.4).
type TIREPacket struct {
	Headers []TIEHeader
}

func (TIREPacket) contentType() string { return "TIRE" }

// Neighbor is the optional field on a LIE echoing the sender's
// currently-known peer (spec.md §4.1).
type Neighbor struct {
	SystemID SystemID
	LocalID  uint32
}

// LIEPacket is a hello-style adjacency packet (spec.md §4.1 "LIE
// transmission").
type LIEPacket struct {
	Name                string
	SystemID            SystemID
	Level               Level
	LinkID              uint32
	FloodPort           uint16
	MTU                 uint32
	Neighbor            *Neighbor
	PoD                 uint32
	Nonce               uint64 // 63 random bits (top bit always 0)
	Capabilities        Capabilities
	HoldTime            uint16
	NotAZtpOffer        bool
	YouAreFloodRepeater bool
}

func (LIEPacket) contentType() string { return "LIE" }

// Content is the sum type of packet bodies a Header can wrap.
type Content interface {
	contentType() string
}

// ContentType returns the wire-level tag for c, used for dispatch and
// logging (spec.md §6: "dispatched by content type").
func ContentType(c Content) string { return c.contentType() }

// Header is the common envelope spec.md §6 describes: {sender, level,
// major_version}.
type Header struct {
	Sender       SystemID
	Level        Level
	MajorVersion uint8
}

// ProtocolPacket is the full UDP payload: envelope plus typed content.
type ProtocolPacket struct {
	Header  Header
	Content Content
}

// CurrentMajorVersion is this implementation's wire major version, used for
// the version-mismatch rejection rule in spec.md §4.1 and §6.
const CurrentMajorVersion uint8 = 1
