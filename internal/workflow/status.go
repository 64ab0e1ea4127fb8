package workflow

// StatusKind classifies a status as open, closed or neither. There is no
// canonical status enum across request types; each type declares its own
// status vocabulary and classification.
type StatusKind string

const (
	Open      StatusKind = "open"
	Closed    StatusKind = "closed"
	Undefined StatusKind = "undefined"
)

// Status pairs a status name with its classification. Declaration order
// matters: the first declared status is the value a request reports before
// any write.
type Status struct {
	Name string
	Kind StatusKind
}
