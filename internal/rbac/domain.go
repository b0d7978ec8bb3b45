package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// ResourceCondition describes an attribute-based rule attached to a
// permission: for the given resource type, the named condition must hold for
// access to be granted. Conditions are data; the evaluator interprets them.
type ResourceCondition struct {
	PermissionID   int64
	ResourceType   string
	ConditionType  string
	ConditionValue string
}
