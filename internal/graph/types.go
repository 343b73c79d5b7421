package graph

import (
	"fmt"
	"time"

	"github.com/roach88/dojo/internal/pattern"
)

// Kind is the type of a relationship.
type Kind string

const (
	KindDerivesFrom   Kind = "derives-from"
	KindGeneralizes   Kind = "generalizes"
	KindConflictsWith Kind = "conflicts-with"
	KindComposesWith  Kind = "composes-with"
)

// Kinds lists every relationship kind.
var Kinds = []Kind{KindDerivesFrom, KindGeneralizes, KindConflictsWith, KindComposesWith}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDerivesFrom, KindGeneralizes, KindConflictsWith, KindComposesWith:
		return true
	}
	return false
}

// ParseKind converts s to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", &LinkError{Code: ErrCodeUnknownKind, Kind: k}
	}
	return k, nil
}

// RelationshipID identifies an edge. Ids are assigned in increasing order.
type RelationshipID int64

// String implements fmt.Stringer.
func (id RelationshipID) String() string {
	return fmt.Sprintf("R%d", int64(id))
}

// Edge is a typed, weighted, directed relationship between two validated
// patterns.
type Edge struct {
	ID        RelationshipID `json:"id"`
	Source    pattern.ID     `json:"source"`
	Target    pattern.ID     `json:"target"`
	Kind      Kind           `json:"kind"`
	Weight    float64        `json:"weight"`
	CreatedAt time.Time      `json:"created_at"`
}

// Stats summarizes the graph.
type Stats struct {
	Edges  int          `json:"edges"`
	ByKind map[Kind]int `json:"by_kind"`
}
