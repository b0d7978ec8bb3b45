// Package abac evaluates attribute-based access for individual resources and
// caches the outcomes.
//
// Cached decisions expire by TTL only. A role, permission or attribute change
// mid-TTL does not invalidate prior outcomes; whether that staleness window
// is acceptable is a product decision, deliberately left as is.
package abac

import "time"

// Decision is the outcome of an access evaluation for one
// (principal, permission, resource type, resource id) tuple.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	CacheHit    bool      `json:"-"`
}

// Deny reasons surfaced to callers.
const (
	ReasonInsufficientPermissions = "insufficient permissions"
	ReasonNotFaculty              = "User is not a faculty member"
)
