package principal

import "time"

// Principal represents an authenticated user account.
type Principal struct {
	ID                int64
	Email             string
	Name              string
	PasswordHash      string
	IsActive          bool
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Attribute is a free-form name/value pair attached to a principal, used by
// the access evaluator (e.g. faculty_id linking the account to a staff record).
type Attribute struct {
	Name  string
	Value string
}
