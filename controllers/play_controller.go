package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"playboard/models"
	"playboard/utils"
)

// PlayDataStore is the document-store surface the controllers need. The
// Mongo-backed implementation lives in the store package; tests substitute
// an in-memory fake.
type PlayDataStore interface {
	Put(ctx context.Context, playID uint, data interface{}) error
	Get(ctx context.Context, playID uint) (interface{}, error)
	GetMany(ctx context.Context, playIDs []uint) (map[uint]interface{}, error)
	Delete(ctx context.Context, playID uint) error
	DeleteMany(ctx context.Context, playIDs []uint) error
}

// reportPartialFailure records a cross-store inconsistency: the relational
// write committed but the document-store write did not. Operators reconcile
// from these entries, so they carry the key and go to sentry as well.
func reportPartialFailure(operation string, key uint, err error) {
	logrus.WithFields(logrus.Fields{
		"operation": operation,
		"key":       key,
		"error":     err.Error(),
	}).Error("document store write failed after relational commit")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		scope.SetExtra("key", key)
		sentry.CaptureException(err)
	})
}

type PlayController struct {
	DB     *gorm.DB
	Data   PlayDataStore
	Logger *log.Logger
}

func NewPlayController(db *gorm.DB, data PlayDataStore, logger *log.Logger) *PlayController {
	return &PlayController{DB: db, Data: data, Logger: logger}
}

type CreatePlayRequest struct {
	TeamID uint            `json:"team_id" validate:"required"`
	Name   string          `json:"name" validate:"required,max=100"`
	Data   json.RawMessage `json:"data"`
}

type UpdatePlayRequest struct {
	Name *string         `json:"name"`
	Data json.RawMessage `json:"data"`
}

// parsePayload turns the raw request data into the value stored in the
// document store. Absent or null data means a structured-only play.
func parsePayload(raw json.RawMessage) (interface{}, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (pc *PlayController) roleCheck(c *fiber.Ctx, teamID uint, allowed []models.Role) error {
	user := c.Locals("user").(*models.User)
	if _, err := checkUserRole(pc.DB, user.ID, teamID, allowed); err != nil {
		if errors.Is(err, ErrForbidden) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": ErrForbidden.Error(),
			})
		}
		pc.Logger.Printf("Role check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Authorization check failed",
		})
	}
	return nil
}

func (pc *PlayController) CreatePlay(c *fiber.Ctx) error {
	var req CreatePlayRequest
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

	payload, hasPayload, err := parsePayload(req.Data)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid JSON in data: " + err.Error(),
		})
	}

	if resp := pc.roleCheck(c, req.TeamID, models.EditorRoles); resp != nil {
		return resp
	}

	// The structured record is the source of truth for existence, so it is
	// written and committed first.
	play := models.Play{
		TeamID: req.TeamID,
		Name:   req.Name,
	}
	if err := pc.DB.Create(&play).Error; err != nil {
		pc.Logger.Printf("Failed to create play: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create play",
		})
	}

	if hasPayload {
		if err := pc.Data.Put(c.UserContext(), play.ID, payload); err != nil {
			reportPartialFailure("play_create", play.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Play record created but saving play data failed",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         play.ID,
		"team_id":    play.TeamID,
		"name":       play.Name,
		"created_at": play.CreatedAt,
	})
}

func (pc *PlayController) UpdatePlay(c *fiber.Ctx) error {
	playID, err := c.ParamsInt("play_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid play id",
		})
	}

	var req UpdatePlayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	payload, hasPayload, err := parsePayload(req.Data)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid JSON in data: " + err.Error(),
		})
	}

	var play models.Play
	if err := pc.DB.First(&play, playID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Play not found",
			})
		}
		pc.Logger.Printf("Failed to look up play: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to update play",
		})
	}

	if resp := pc.roleCheck(c, play.TeamID, models.EditorRoles); resp != nil {
		return resp
	}

	// Structured fields and payload update independently: a name-only update
	// never touches the document store and a data-only update never touches
	// the row.
	if req.Name != nil && *req.Name != "" {
		if err := pc.DB.Model(&play).Update("name", *req.Name).Error; err != nil {
			pc.Logger.Printf("Failed to update play name: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Failed to update play",
			})
		}
		play.Name = *req.Name
	}

	if hasPayload {
		// Upsert: a previously payload-less play gains one here
		if err := pc.Data.Put(c.UserContext(), play.ID, payload); err != nil {
			reportPartialFailure("play_update", play.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Play updated but saving play data failed",
			})
		}
	}

	return c.JSON(fiber.Map{
		"id":      play.ID,
		"name":    play.Name,
		"team_id": play.TeamID,
	})
}

// ListTeamPlays returns structured fields only, for lightweight listings.
func (pc *PlayController) ListTeamPlays(c *fiber.Ctx) error {
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	if resp := pc.roleCheck(c, uint(teamID), models.MemberRoles); resp != nil {
		return resp
	}

	var plays []models.Play
	if err := pc.DB.Where("team_id = ?", teamID).Order("created_at").Find(&plays).Error; err != nil {
		pc.Logger.Printf("Failed to list plays: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list plays",
		})
	}

	out := make([]fiber.Map, 0, len(plays))
	for _, play := range plays {
		out = append(out, fiber.Map{
			"id":         play.ID,
			"name":       play.Name,
			"created_at": play.CreatedAt,
		})
	}
	return c.JSON(out)
}

// GetPlayData returns the structured fields merged with the document payload.
// A missing payload is served as data: null, never as an error.
func (pc *PlayController) GetPlayData(c *fiber.Ctx) error {
	playID, err := c.ParamsInt("play_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid play id",
		})
	}

	var play models.Play
	if err := pc.DB.First(&play, playID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Play not found",
			})
		}
		pc.Logger.Printf("Failed to look up play: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to load play",
		})
	}

	if resp := pc.roleCheck(c, play.TeamID, models.MemberRoles); resp != nil {
		return resp
	}

	data, err := pc.Data.Get(c.UserContext(), play.ID)
	if err != nil {
		pc.Logger.Printf("Failed to load play data: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to load play data",
		})
	}

	return c.JSON(fiber.Map{
		"id":         play.ID,
		"name":       play.Name,
		"team_id":    play.TeamID,
		"created_at": play.CreatedAt,
		"data":       data,
	})
}

// GetFullTeamPlays returns every play of the team merged with its payload,
// resolved through one batched document lookup instead of one per play.
func (pc *PlayController) GetFullTeamPlays(c *fiber.Ctx) error {
	teamID, err := c.ParamsInt("team_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid team id",
		})
	}

	if resp := pc.roleCheck(c, uint(teamID), models.MemberRoles); resp != nil {
		return resp
	}

	var plays []models.Play
	if err := pc.DB.Where("team_id = ?", teamID).Order("created_at").Find(&plays).Error; err != nil {
		pc.Logger.Printf("Failed to list plays: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to list plays",
		})
	}

	if len(plays) == 0 {
		return c.JSON([]fiber.Map{})
	}

	playIDs := make([]uint, 0, len(plays))
	for _, play := range plays {
		playIDs = append(playIDs, play.ID)
	}

	dataByID, err := pc.Data.GetMany(c.UserContext(), playIDs)
	if err != nil {
		pc.Logger.Printf("Failed to load play data: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to load play data",
		})
	}

	out := make([]fiber.Map, 0, len(plays))
	for _, play := range plays {
		out = append(out, fiber.Map{
			"id":         play.ID,
			"team_id":    play.TeamID,
			"name":       play.Name,
			"created_at": play.CreatedAt,
			"data":       dataByID[play.ID], // nil when the play has no payload
		})
	}
	return c.JSON(out)
}

func (pc *PlayController) DeletePlay(c *fiber.Ctx) error {
	playID, err := c.ParamsInt("play_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid play id",
		})
	}

	var play models.Play
	if err := pc.DB.First(&play, playID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Play not found",
			})
		}
		pc.Logger.Printf("Failed to look up play: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete play",
		})
	}

	if resp := pc.roleCheck(c, play.TeamID, models.EditorRoles); resp != nil {
		return resp
	}

	if err := pc.DB.Delete(&play).Error; err != nil {
		pc.Logger.Printf("Failed to delete play: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete play",
		})
	}

	// Always attempted, even for plays that never had a payload; the store
	// treats an absent key as a successful no-op.
	if err := pc.Data.Delete(c.UserContext(), play.ID); err != nil {
		reportPartialFailure("play_delete", play.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Play deleted but removing play data failed",
		})
	}

	return c.JSON(fiber.Map{"detail": "Play deleted"})
}
