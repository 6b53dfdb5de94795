package controller

import (
	"errors"

	"gorm.io/gorm"

	"playboard/models"
)

// ErrForbidden is returned by checkUserRole when the user has no membership
// on the team or the membership's role is not in the allowed set.
var ErrForbidden = errors.New("insufficient permissions for this action")

// checkUserRole is the single authorization primitive: it looks up the unique
// (user, team) membership and verifies its role against the allowed set.
// Every mutating team/play operation calls it before touching storage. It has
// no side effects.
func checkUserRole(db *gorm.DB, userID, teamID uint, allowedRoles []models.Role) (*models.Permission, error) {
	var perm models.Permission
	if err := db.Where("user_id = ? AND team_id = ?", userID, teamID).First(&perm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	for _, role := range allowedRoles {
		if perm.Role == role {
			return &perm, nil
		}
	}
	return nil, ErrForbidden
}

// PermissionOut is the membership listing shape: the permission row joined
// with its team's name/color and the member's username.
type PermissionOut struct {
	ID        uint        `json:"id"`
	UserID    uint        `json:"user_id"`
	TeamID    uint        `json:"team_id"`
	Role      models.Role `json:"role"`
	Username  string      `json:"username"`
	TeamName  string      `json:"team_name"`
	TeamColor string      `json:"team_color"`
}
