package models

import "time"

// Role is a membership role scoped to a single team.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Allowed-role sets per operation class. Every mutating team/play call names
// one of these explicitly instead of comparing role strings.
var (
	EditorRoles = []Role{RoleAdmin, RoleEditor}
	MemberRoles = []Role{RoleAdmin, RoleEditor, RoleViewer}
)

// Team is a named group of users. There is no owner column: ownership is the
// admin role on the permissions relation. The invitation code is single-use;
// every successful join rotates it.
type Team struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name           string `gorm:"not null" json:"name"`
	Color          string `gorm:"not null" json:"color"`
	InvitationCode string `gorm:"uniqueIndex;not null" json:"-"`
}

// Permission is the (user, team, role) relation. The composite unique index
// guarantees at most one row per (user, team) pair; rows are hard-deleted so
// a user who left can join again.
type Permission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID uint `gorm:"not null;uniqueIndex:idx_permissions_user_team" json:"user_id"`
	TeamID uint `gorm:"not null;uniqueIndex:idx_permissions_user_team" json:"team_id"`
	Role   Role `gorm:"not null" json:"role"`
}
