package domain

import "github.com/oklog/ulid/v2"

// NewRuleID returns a ULID. IDs made in the same millisecond still sort in
// creation order.
func NewRuleID() string {
	return ulid.Make().String()
}
