package controller

import (
	"errors"
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"playboard/models"
	"playboard/utils"
)

type AuthController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAuthController(db *gorm.DB, logger *log.Logger) *AuthController {
	return &AuthController{DB: db, Logger: logger}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
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
	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "email must be a valid email",
		})
	}

	var existing models.User
	if err := ac.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Email already registered",
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		ac.Logger.Printf("Failed to look up email: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create user",
		})
	}

	if err := ac.DB.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Username already taken",
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		ac.Logger.Printf("Failed to look up username: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create user",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to hash password",
		})
	}

	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
	}

	if err := ac.DB.Create(&user).Error; err != nil {
		ac.Logger.Printf("Failed to create user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to create user",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
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

	// Username or email both work as the login identifier
	var user models.User
	if err := ac.DB.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Invalid credentials",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Invalid credentials",
		})
	}

	accessToken, err := utils.GenerateJWTToken(&user)
	if err != nil {
		ac.Logger.Printf("Failed to sign token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to generate token",
		})
	}

	return c.JSON(TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
	})
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(user)
}

// DeleteAccount removes the caller and cascades their memberships. It is
// refused while the caller is the only admin of any team: those teams would
// be left without an admin, so they must be deleted (or handed over) first.
func (ac *AuthController) DeleteAccount(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var adminTeamIDs []uint
	if err := ac.DB.Model(&models.Permission{}).
		Where("user_id = ? AND role = ?", user.ID, models.RoleAdmin).
		Pluck("team_id", &adminTeamIDs).Error; err != nil {
		ac.Logger.Printf("Failed to list administered teams: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete account",
		})
	}

	for _, teamID := range adminTeamIDs {
		var admins int64
		if err := ac.DB.Model(&models.Permission{}).
			Where("team_id = ? AND role = ?", teamID, models.RoleAdmin).
			Count(&admins).Error; err != nil {
			ac.Logger.Printf("Failed to count admins: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Failed to delete account",
			})
		}
		if admins < 2 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"detail": "You are the only admin of a team. Delete the team or promote another member first.",
			})
		}
	}

	tx := ac.DB.Begin()
	if err := tx.Where("user_id = ?", user.ID).Delete(&models.Permission{}).Error; err != nil {
		tx.Rollback()
		ac.Logger.Printf("Failed to delete memberships: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete account",
		})
	}
	if err := tx.Delete(&models.User{}, user.ID).Error; err != nil {
		tx.Rollback()
		ac.Logger.Printf("Failed to delete user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Failed to delete account",
		})
	}
	tx.Commit()

	return c.SendStatus(fiber.StatusNoContent)
}
