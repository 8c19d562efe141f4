package main

import (
	"context"
	"log"

	"urnlab/adapters/export"
	"urnlab/adapters/postgres"
	"urnlab/app"
	"urnlab/internal"
	"urnlab/internal/config"
	"urnlab/internal/errors"
	"urnlab/internal/testkit"
	"urnlab/ports"
	"urnlab/ui"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase opens the PostgreSQL connection and prepares the schema
func initDatabase(appConfig *config.Config) (*sqlx.DB, *postgres.SessionRepositoryImpl, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.Ping(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to ping database")
	}

	repo := postgres.NewSessionRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		return nil, nil, errors.Wrap(err, "database migration failed")
	}
	return db, repo, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewDefaultLogger()

	// Session persistence: PostgreSQL when DATABASE_URL is set, otherwise an
	// in-memory store. Trial data always ends up in the export files either
	// way; the store only backs the researcher surface and crash recovery.
	var repo ports.SessionRepository
	if appConfig.Database.URL != "" {
		db, pgRepo, err := initDatabase(appConfig)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		repo = pgRepo
		logger.Info("session store: postgres")
	} else {
		repo = testkit.NewInMemorySessionRepository()
		logger.Warn("DATABASE_URL not set, sessions held in memory only")
	}

	svc := app.NewExperimentService(
		repo,
		export.NewFormatter(),
		app.NewSystemRNG(),
		logger,
		appConfig.Export.DataDir,
		appConfig.Experiment.Seed,
	)

	adminApp := ui.NewAdminApp(svc, logger)
	go func() {
		if err := adminApp.Start(":" + appConfig.Server.AdminPort); err != nil {
			log.Fatalf("Researcher server failed: %v", err)
		}
	}()

	server := ui.NewServer(svc, appConfig.Server.GinMode)
	logger.Info("participant API listening on :%s", appConfig.Server.Port)
	if err := server.Start(":" + appConfig.Server.Port); err != nil {
		log.Fatalf("Participant server failed: %v", err)
	}
}
