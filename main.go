package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"playboard/config"
	"playboard/middleware"
	"playboard/routes"
	"playboard/store"
)

func main() {
	logger := log.New(os.Stdout, "PLAYBOARD: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := config.ConnectDB()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	mongoClient, mongoDB, err := config.ConnectMongo()
	if err != nil {
		logger.Fatalf("Failed to connect to mongo: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Printf("Failed to disconnect mongo: %v", err)
		}
	}()

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
		}
	}

	app := fiber.New()

	app.Use(middleware.CORS())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "API running with Postgres and MongoDB!",
		})
	})

	playData := store.NewPlayData(mongoDB)
	routes.SetupRoutes(app, db, playData)

	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
