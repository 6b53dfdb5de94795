package controller

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"playboard/config"
	"playboard/models"
	"playboard/utils"
)

type TeamController struct {
	DB       *gorm.DB
	PlayData PlayDataStore
	Logger   *log.Logger
}

func NewTeamController(db *gorm.DB, playData PlayDataStore, logger *log.Logger) *TeamController {
	return &TeamController{DB: db, PlayData: playData, Logger: logger}
}

type CreateTeamRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=50"`
	Color string `json:"color" validate:"required,max=30"`
}

// canonicalTeamName is the stored form of a team name; duplicate checks
// compare canonical forms so "Hawks" and "hawks" collide.
func canonicalTeamName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (tc *TeamController) CreateTeam(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateTeamRequest
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

	name := canonicalTeamName(req.Name)

	// The cap and duplicate-name checks run outside the create transaction,
	// so two simultaneous creates can slip past them. The cap is a soft
	// limit and a duplicate name breaks no integrity constraint.
	var administered int64
	if err := tc.DB.Model(&models.Permission{}).
		Where("user_id = ? AND role = ?", user.ID, models.RoleAdmin).
		Count(&administered).Error; err != nil {
		tc.Logger.Printf("Failed to count administered teams: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create team",
		})
	}
	if administered >= int64(config.AppConfig.MaxTeamsPerUser) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"detail": "Team limit reached for this account",
		})
	}

	var duplicates int64
	if err := tc.DB.Model(&models.Team{}).
		Joins("JOIN permissions ON permissions.team_id = teams.id").
		Where("permissions.user_id = ? AND permissions.role = ? AND teams.name = ?", user.ID, models.RoleAdmin, name).
		Count(&duplicates).Error; err != nil {
		tc.Logger.Printf("Failed to check duplicate team name: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create team",
		})
	}
	if duplicates > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"detail": "You already administer a team with this name",
		})
	}

	code, err := utils.GenerateInvitationCode(tc.DB)
	if err != nil {
		tc.Logger.Printf("Failed to generate invitation code: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create team",
		})
	}

	team := models.Team{
		Name:           name,
		Color:          req.Color,
		InvitationCode: code,
	}

	// The team and its first admin membership must commit together
	tx := tc.DB.Begin()
	if err := tx.Create(&team).Error; err != nil {
		tx.Rollback()
		tc.Logger.Printf("Failed to create team: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create team",
		})
	}
	if err := tx.Create(&models.Permission{
		UserID: user.ID,
		TeamID: team.ID,
		Role:   models.RoleAdmin,
	}).Error; err != nil {
		tx.Rollback()
		tc.Logger.Printf("Failed to create admin permission: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create team",
		})
	}
	tx.Commit()

	return c.Status(fiber.StatusCreated).JSON(team)
}

func (tc *TeamController) ListTeams(c *fiber.Ctx) error {
	teams := []models.Team{}
	if err := tc.DB.Find(&teams).Error; err != nil {
		tc.Logger.Printf("Failed to list teams: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list teams",
		})
	}
	return c.JSON(teams)
}

// GetMyTeams lists the caller's memberships joined with team name and color.
func (tc *TeamController) GetMyTeams(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	out := []PermissionOut{}
	if err := tc.DB.Table("permissions").
		Select("permissions.id, permissions.user_id, permissions.team_id, permissions.role, teams.name AS team_name, teams.color AS team_color").
		Joins("JOIN teams ON teams.id = permissions.team_id").
		Where("permissions.user_id = ?", user.ID).
		Scan(&out).Error; err != nil {
		tc.Logger.Printf("Failed to list memberships: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list memberships",
		})
	}

	for i := range out {
		out[i].Username = user.Username
	}
	return c.JSON(out)
}

func (tc *TeamController) JoinTeam(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	code := c.Params("invitation_code")

	var team models.Team
	if err := tc.DB.Where("invitation_code = ?", code).First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Invalid invitation code",
			})
		}
		tc.Logger.Printf("Failed to look up invitation code: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to join team",
		})
	}

	var existing models.Permission
	if err := tc.DB.Where("user_id = ? AND team_id = ?", user.ID, team.ID).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "User is already a member of the team",
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		tc.Logger.Printf("Failed to look up membership: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to join team",
		})
	}

	newCode, err := utils.GenerateInvitationCode(tc.DB)
	if err != nil {
		tc.Logger.Printf("Failed to generate invitation code: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to join team",
		})
	}

	// The membership insert and the code rotation commit together: once a
	// join succeeds the used code can never match again. The rotation is
	// predicated on the code the joiner presented, so when two joiners race
	// on one code only the first rotation matches a row; the loser sees
	// zero rows affected and rolls back.
	tx := tc.DB.Begin()
	if err := tx.Create(&models.Permission{
		UserID: user.ID,
		TeamID: team.ID,
		Role:   models.RoleViewer,
	}).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"detail": "User is already a member of the team",
			})
		}
		tc.Logger.Printf("Failed to create membership: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to join team",
		})
	}
	rotation := tx.Model(&models.Team{}).
		Where("id = ? AND invitation_code = ?", team.ID, code).
		Update("invitation_code", newCode)
	if rotation.Error != nil {
		tx.Rollback()
		tc.Logger.Printf("Failed to rotate invitation code: %v", rotation.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to join team",
		})
	}
	if rotation.RowsAffected == 0 {
		// Someone else joined with this code first and rotated it away
		tx.Rollback()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"detail": "Invalid invitation code",
		})
	}
	tx.Commit()

	team.InvitationCode = newCode
	return c.JSON(team)
}

func (tc *TeamController) LeaveTeam(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	var perm models.Permission
	if err := tc.DB.Where("user_id = ? AND team_id = ?", user.ID, teamID).First(&perm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Membership not found",
			})
		}
		tc.Logger.Printf("Failed to look up membership: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to leave team",
		})
	}

	// Admins cannot walk away from their team; a team must always keep an
	// admin. Deleting the team is the way out.
	if perm.Role == models.RoleAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Admins cannot leave their own team. Delete the team or promote another member first.",
		})
	}

	if err := tc.DB.Delete(&perm).Error; err != nil {
		tc.Logger.Printf("Failed to delete membership: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to leave team",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (tc *TeamController) DeleteTeam(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	var team models.Team
	if err := tc.DB.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Team not found",
			})
		}
		tc.Logger.Printf("Failed to look up team: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete team",
		})
	}

	if _, err := checkUserRole(tc.DB, user.ID, team.ID, []models.Role{models.RoleAdmin}); err != nil {
		if errors.Is(err, ErrForbidden) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": ErrForbidden.Error(),
			})
		}
		tc.Logger.Printf("Role check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete team",
		})
	}

	var playIDs []uint
	if err := tc.DB.Model(&models.Play{}).Where("team_id = ?", team.ID).
		Pluck("id", &playIDs).Error; err != nil {
		tc.Logger.Printf("Failed to list team plays: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete team",
		})
	}

	tx := tc.DB.Begin()
	if err := tx.Where("team_id = ?", team.ID).Delete(&models.Play{}).Error; err != nil {
		tx.Rollback()
		tc.Logger.Printf("Failed to delete team plays: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete team",
		})
	}
	if err := tx.Where("team_id = ?", team.ID).Delete(&models.Permission{}).Error; err != nil {
		tx.Rollback()
		tc.Logger.Printf("Failed to delete team memberships: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete team",
		})
	}
	if err := tx.Delete(&team).Error; err != nil {
		tx.Rollback()
		tc.Logger.Printf("Failed to delete team: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete team",
		})
	}
	tx.Commit()

	// The rows are gone and authoritative; payload cleanup is best-effort
	if err := tc.PlayData.DeleteMany(c.UserContext(), playIDs); err != nil {
		reportPartialFailure("team_delete", team.ID, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (tc *TeamController) GetTeamMembers(c *fiber.Ctx) error {
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	out := []PermissionOut{}
	if err := tc.DB.Table("permissions").
		Select("permissions.id, permissions.user_id, permissions.team_id, permissions.role, teams.name AS team_name, teams.color AS team_color, users.username AS username").
		Joins("JOIN teams ON teams.id = permissions.team_id").
		Joins("JOIN users ON users.id = permissions.user_id").
		Where("permissions.team_id = ?", teamID).
		Scan(&out).Error; err != nil {
		tc.Logger.Printf("Failed to list team members: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list team members",
		})
	}
	return c.JSON(out)
}

// getTeamAsAdmin loads a team and verifies the caller administers it.
// Returns a fiber error response when it already replied.
func (tc *TeamController) getTeamAsAdmin(c *fiber.Ctx) (*models.Team, error) {
	user := c.Locals("user").(*models.User)
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	var team models.Team
	if err := tc.DB.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Team not found",
			})
		}
		tc.Logger.Printf("Failed to look up team: %v", err)
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to load team",
		})
	}

	if _, err := checkUserRole(tc.DB, user.ID, team.ID, []models.Role{models.RoleAdmin}); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": ErrForbidden.Error(),
			})
		}
		tc.Logger.Printf("Role check failed: %v", err)
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to load team",
		})
	}
	return &team, nil
}

func (tc *TeamController) GetInvitationCode(c *fiber.Ctx) error {
	team, err := tc.getTeamAsAdmin(c)
	if team == nil {
		return err
	}
	return c.JSON(fiber.Map{
		"team_id":         team.ID,
		"invitation_code": team.InvitationCode,
	})
}

func (tc *TeamController) GetInvitationURL(c *fiber.Ctx) error {
	team, err := tc.getTeamAsAdmin(c)
	if team == nil {
		return err
	}
	return c.JSON(fiber.Map{
		"team_id":        team.ID,
		"invitation_url": config.AppConfig.AppBaseURL + "/teams/join/" + team.InvitationCode,
	})
}
