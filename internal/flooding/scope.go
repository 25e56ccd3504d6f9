package flooding

import "github.com/fabricrift/riftgo/internal/packet"

// Relation is a neighbor's direction relative to this node: strictly
// lower level (South), strictly higher (North), or equal (East-West)
// (spec.md §4.5 "Neighbor direction filter" uses the same three-way
// split for SPF; flooding's scope matrix uses it too, spec.md §4.4).
type Relation int

const (
	South Relation = iota
	North
	EastWest
)

func (r Relation) String() string {
	switch r {
	case South:
		return "South"
	case North:
		return "North"
	default:
		return "EastWest"
	}
}

// RelationOf derives a neighbor's Relation from the two nodes' levels.
// Both levels must be defined; callers should not flood to a neighbor
// whose level is still undefined.
func RelationOf(selfLevel, neighborLevel packet.Level) Relation {
	switch {
	case neighborLevel.Value < selfLevel.Value:
		return South
	case neighborLevel.Value > selfLevel.Value:
		return North
	default:
		return EastWest
	}
}

func opposite(r Relation) Relation {
	switch r {
	case South:
		return North
	case North:
		return South
	default:
		return EastWest
	}
}

// ScopeParams is what the flood-scope matrix needs to know about one
// candidate (TIE, neighbor) pair, from the sender's point of view
// (spec.md §4.4 "Scope filters").
type ScopeParams struct {
	TIEID                packet.TIEID
	OriginatorLevel      packet.Level // only meaningful for Node TIEs
	SelfOriginated       bool
	NeighborIsOriginator bool
	SenderLevel          packet.Level
	SenderTopOfFabric    bool
	Rel                  Relation
}

// Allowed implements the flood-scope matrix of spec.md §4.4: whether the
// sender (whose level and top-of-fabric-ness are in p) may flood the TIE
// named by p to a neighbor in relation p.Rel.
func Allowed(p ScopeParams) bool {
	if p.TIEID.Direction == packet.North {
		switch p.Rel {
		case South:
			return false
		case North:
			return true
		default:
			return p.SenderTopOfFabric
		}
	}

	if p.TIEID.Type == packet.TIETypeNode {
		switch p.Rel {
		case South:
			return p.OriginatorLevel.Defined && p.SenderLevel.Defined && p.OriginatorLevel.Value == p.SenderLevel.Value
		case North:
			return p.OriginatorLevel.Defined && p.SenderLevel.Defined && p.OriginatorLevel.Value > p.SenderLevel.Value
		default:
			return !p.SenderTopOfFabric
		}
	}

	switch p.Rel {
	case South:
		return p.SelfOriginated
	case North:
		return p.NeighborIsOriginator
	default:
		return p.SelfOriginated && !p.SenderTopOfFabric
	}
}

// RequestParams mirrors ScopeParams but from the requester's point of view:
// it names the neighbor (who would be the flooder in the hypothetical
// being tested) instead of the sender.
type RequestParams struct {
	TIEID               packet.TIEID
	OriginatorLevel     packet.Level
	WeAreOriginator     bool
	NeighborOriginated  bool
	OurRelToNeighbor    Relation
	NeighborLevel       packet.Level
	NeighborTopOfFabric bool
}

// RequestAllowed implements spec.md §4.4's symmetric request rule: a
// request from us to a neighbor is allowed iff the neighbor would be
// allowed to flood that TIE to us under the same matrix, with roles
// swapped (the neighbor as sender, us as the neighbor in the matrix).
func RequestAllowed(p RequestParams) bool {
	return Allowed(ScopeParams{
		TIEID:                p.TIEID,
		OriginatorLevel:      p.OriginatorLevel,
		SelfOriginated:       p.NeighborOriginated,
		NeighborIsOriginator: p.WeAreOriginator,
		SenderLevel:          p.NeighborLevel,
		SenderTopOfFabric:    p.NeighborTopOfFabric,
		Rel:                  opposite(p.OurRelToNeighbor),
	})
}
