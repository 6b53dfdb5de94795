package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "playboard/controllers"
	"playboard/middleware"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authController := controller.NewAuthController(db, log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile))

	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints
	auth.Post("/register", authController.Register)
	auth.Post("/login", middleware.LoginRateLimiter(), authController.Login)

	// Protected auth endpoints
	protectedAuth := auth.Group("", middleware.Protected(db))
	protectedAuth.Get("/me", authController.GetCurrentUser)
	protectedAuth.Delete("/me", authController.DeleteAccount)
}

func SetupTeamRoutes(app *fiber.App, db *gorm.DB, playData controller.PlayDataStore) {
	teamController := controller.NewTeamController(db, playData, log.New(os.Stdout, "TEAM: ", log.Ldate|log.Ltime|log.Lshortfile))

	teams := app.Group("/teams", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public reads
	teams.Get("/", teamController.ListTeams)
	teams.Get("/:team_id/members", teamController.GetTeamMembers)

	protected := teams.Group("", middleware.Protected(db))
	protected.Post("/", teamController.CreateTeam)
	protected.Get("/me", teamController.GetMyTeams)
	protected.Post("/join/:invitation_code", teamController.JoinTeam)
	protected.Post("/leave/:team_id", teamController.LeaveTeam)
	protected.Delete("/:team_id", teamController.DeleteTeam)
	protected.Get("/:team_id/invitation-code", teamController.GetInvitationCode)
	protected.Get("/:team_id/invitation-url", teamController.GetInvitationURL)
}

func SetupPlayRoutes(app *fiber.App, db *gorm.DB, playData controller.PlayDataStore) {
	playController := controller.NewPlayController(db, playData, log.New(os.Stdout, "PLAY: ", log.Ldate|log.Ltime|log.Lshortfile))

	plays := app.Group("/plays", middleware.Protected(db), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	plays.Post("/", playController.CreatePlay)
	plays.Put("/:play_id", playController.UpdatePlay)
	plays.Get("/:play_id/data", playController.GetPlayData)
	plays.Get("/:team_id/full", playController.GetFullTeamPlays)
	plays.Get("/:team_id", playController.ListTeamPlays)
	plays.Delete("/:play_id", playController.DeletePlay)
}

func SetupPermissionRoutes(app *fiber.App, db *gorm.DB) {
	permissionController := controller.NewPermissionController(db, log.New(os.Stdout, "PERM: ", log.Ldate|log.Ltime|log.Lshortfile))

	permissions := app.Group("/permissions", middleware.Protected(db))
	permissions.Put("/:team_id", permissionController.UpsertPermission)
	permissions.Get("/:team_id", permissionController.ListPermissions)
}

func SetupRoutes(app *fiber.App, db *gorm.DB, playData controller.PlayDataStore) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app, db)
	SetupTeamRoutes(app, db, playData)
	SetupPlayRoutes(app, db, playData)
	SetupPermissionRoutes(app, db)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"detail": "The requested resource was not found",
		})
	})
}
