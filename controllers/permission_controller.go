package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"playboard/models"
	"playboard/utils"
)

type PermissionController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewPermissionController(db *gorm.DB, logger *log.Logger) *PermissionController {
	return &PermissionController{DB: db, Logger: logger}
}

type UpsertPermissionRequest struct {
	UserID uint        `json:"user_id" validate:"required"`
	Role   models.Role `json:"role" validate:"required"`
}

// UpsertPermission sets a member's role on a team, admin-only. One row per
// (user, team) pair: an existing membership is updated, a missing one
// created.
func (pmc *PermissionController) UpsertPermission(c *fiber.Ctx) error {
	caller := c.Locals("user").(*models.User)
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	var req UpsertPermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": err.Error(),
		})
	}
	if !req.Role.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "role must be one of: admin, editor, viewer",
		})
	}

	var team models.Team
	if err := pmc.DB.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Team not found",
			})
		}
		pmc.Logger.Printf("Failed to look up team: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to update permission",
		})
	}

	if _, err := checkUserRole(pmc.DB, caller.ID, team.ID, []models.Role{models.RoleAdmin}); err != nil {
		if errors.Is(err, ErrForbidden) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": ErrForbidden.Error(),
			})
		}
		pmc.Logger.Printf("Role check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to update permission",
		})
	}

	var target models.User
	if err := pmc.DB.First(&target, req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "User not found",
			})
		}
		pmc.Logger.Printf("Failed to look up user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to update permission",
		})
	}

	// The caller may not demote themself while they are the only admin,
	// otherwise the team would be left without one.
	if target.ID == caller.ID && req.Role != models.RoleAdmin {
		var admins int64
		if err := pmc.DB.Model(&models.Permission{}).
			Where("team_id = ? AND role = ?", team.ID, models.RoleAdmin).
			Count(&admins).Error; err != nil {
			pmc.Logger.Printf("Failed to count admins: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Failed to update permission",
			})
		}
		if admins < 2 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"detail": "Cannot demote the only admin of a team",
			})
		}
	}

	var perm models.Permission
	err = pmc.DB.Where("user_id = ? AND team_id = ?", target.ID, team.ID).First(&perm).Error
	switch {
	case err == nil:
		if err := pmc.DB.Model(&perm).Update("role", req.Role).Error; err != nil {
			pmc.Logger.Printf("Failed to update permission: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Failed to update permission",
			})
		}
		perm.Role = req.Role
	case errors.Is(err, gorm.ErrRecordNotFound):
		perm = models.Permission{
			UserID: target.ID,
			TeamID: team.ID,
			Role:   req.Role,
		}
		if err := pmc.DB.Create(&perm).Error; err != nil {
			pmc.Logger.Printf("Failed to create permission: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Failed to update permission",
			})
		}
	default:
		pmc.Logger.Printf("Failed to look up permission: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to update permission",
		})
	}

	return c.JSON(PermissionOut{
		ID:        perm.ID,
		UserID:    perm.UserID,
		TeamID:    perm.TeamID,
		Role:      perm.Role,
		Username:  target.Username,
		TeamName:  team.Name,
		TeamColor: team.Color,
	})
}

// ListPermissions lists a team's permission rows, admin-only.
func (pmc *PermissionController) ListPermissions(c *fiber.Ctx) error {
	caller := c.Locals("user").(*models.User)
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	var team models.Team
	if err := pmc.DB.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Team not found",
			})
		}
		pmc.Logger.Printf("Failed to look up team: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list permissions",
		})
	}

	if _, err := checkUserRole(pmc.DB, caller.ID, team.ID, []models.Role{models.RoleAdmin}); err != nil {
		if errors.Is(err, ErrForbidden) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": ErrForbidden.Error(),
			})
		}
		pmc.Logger.Printf("Role check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list permissions",
		})
	}

	out := []PermissionOut{}
	if err := pmc.DB.Table("permissions").
		Select("permissions.id, permissions.user_id, permissions.team_id, permissions.role, teams.name AS team_name, teams.color AS team_color, users.username AS username").
		Joins("JOIN teams ON teams.id = permissions.team_id").
		Joins("JOIN users ON users.id = permissions.user_id").
		Where("permissions.team_id = ?", team.ID).
		Scan(&out).Error; err != nil {
		pmc.Logger.Printf("Failed to list permissions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list permissions",
		})
	}
	return c.JSON(out)
}
