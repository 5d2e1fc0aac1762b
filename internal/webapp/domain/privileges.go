package domain

import (
	"slices"
	"time"
)

// Privileges is what the remote API says a subject may do within a tenant.
// A record only applies to the subject and tenant it was loaded for.
type Privileges struct {
	SubjectID   string    `json:"subject_id"`
	TenantID    string    `json:"tenant_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// IsZero reports whether nothing has been loaded.
func (p Privileges) IsZero() bool {
	return p.SubjectID == "" && p.LoadedAt.IsZero()
}

func (p Privileges) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

func (p Privileges) Can(permission string) bool {
	return slices.Contains(p.Permissions, permission)
}

// Age is how long ago the record was loaded.
func (p Privileges) Age(now time.Time) time.Duration {
	return now.Sub(p.LoadedAt)
}
