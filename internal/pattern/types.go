package pattern

import (
	"fmt"
	"time"
)

// ID identifies a pattern. Ids are assigned in increasing order.
type ID int64

// String implements fmt.Stringer.
func (id ID) String() string {
	return fmt.Sprintf("P%d", int64(id))
}

// Field is the mathematical domain tag declared for a pattern.
type Field string

// Known fields. Deployments may register additional ones.
const (
	FieldArithmetic        Field = "arithmetic"
	FieldAlgebra           Field = "algebra"
	FieldGeometry          Field = "geometry"
	FieldCalculus          Field = "calculus"
	FieldDiscrete          Field = "discrete"
	FieldStatistics        Field = "statistics"
	FieldInformationTheory Field = "information-theory"
	FieldDynamics          Field = "dynamics"
)

// DefaultFields lists the built-in fields in declaration order.
var DefaultFields = []Field{
	FieldArithmetic,
	FieldAlgebra,
	FieldGeometry,
	FieldCalculus,
	FieldDiscrete,
	FieldStatistics,
	FieldInformationTheory,
	FieldDynamics,
}

// Status is the validation status of a pattern.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Pattern is a discovered mathematical pattern.
//
// Everything except ImpactScore is immutable once the pattern leaves
// StatusPending.
type Pattern struct {
	ID          ID      `json:"id"`
	Field       Field   `json:"field"`
	Payload     string  `json:"payload"`
	Digest      string  `json:"digest"`
	ImpactScore float64 `json:"impact_score"`
	Status      Status  `json:"status"`

	// Reason holds the validation failure for rejected patterns.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsValidated reports whether the pattern may take part in relationships.
func (p Pattern) IsValidated() bool {
	return p.Status == StatusValidated
}

// Submission is one element of a batch ingestion.
type Submission struct {
	Field   Field
	Payload string
}

// Result reports the outcome of one batch element.
type Result struct {
	ID  ID
	Err error
}

// FieldStats summarizes a field's patterns by status.
type FieldStats struct {
	Validated int `json:"validated"`
	Rejected  int `json:"rejected"`
}
