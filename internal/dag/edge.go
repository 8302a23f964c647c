package dag

import "github.com/cellgraph/engine/internal/address"

// EdgeKind is the DependencyEdge.kind enum from spec.md §3. Ordering
// below (Direct strongest, Named weakest) is the coalescing precedence
// used when multiple kinds target the same (source, target) pair.
type EdgeKind string

const (
	Direct      EdgeKind = "direct"
	Dynamic     EdgeKind = "dynamic"
	RangeMember EdgeKind = "range_member"
	Named       EdgeKind = "named"
)

// rank gives the coalescing precedence: higher wins. Stored as the
// underlying lvlath graph edge's Weight, since lvlath's core.Edge has no
// room for arbitrary metadata — the rank is losslessly invertible back
// to a Kind via kindFromRank.
func (k EdgeKind) rank() int64 {
	switch k {
	case Direct:
		return 4
	case Dynamic:
		return 3
	case RangeMember:
		return 2
	case Named:
		return 1
	default:
		return 0
	}
}

func kindFromRank(r int64) EdgeKind {
	switch r {
	case 4:
		return Direct
	case 3:
		return Dynamic
	case 2:
		return RangeMember
	default:
		return Named
	}
}

// Edge is the resolved, coalesced DependencyEdge from spec.md §3.
type Edge struct {
	Source address.CellAddress
	Target address.CellAddress
	Kind    EdgeKind
}
