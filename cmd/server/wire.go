// File: cmd/server/wire.go
//go:build wireinject
// +build wireinject

package main

import (
	"log"

	"identity_backend/internal/app"
	"identity_backend/internal/auth"
	"identity_backend/internal/config"
	"identity_backend/internal/jobs"
	"identity_backend/internal/mailer"
	"identity_backend/internal/platform/database"
	"identity_backend/internal/platform/logger"
	"identity_backend/internal/shared"
	"identity_backend/internal/token"
	"identity_backend/internal/user"

	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		// Platform Layer
		logger.New,
		database.NewGORM,
		provideCleanup,

		// Token issuing and validation
		token.NewService,

		// Mail delivery
		mailer.NewLogMailer,
		wire.Bind(new(mailer.Mailer), new(*mailer.LogMailer)),

		// Identity core
		user.NewGORMRepository,
		user.NewService,
		wire.Bind(new(shared.Service), new(*user.ServiceImplementation)),
		wire.Bind(new(shared.OAuthUserProvider), new(*user.ServiceImplementation)),

		// Access control and OAuth
		auth.NewGate,
		auth.NewOAuthService,
		auth.NewHandler,
		user.NewHandler,

		// Background jobs
		jobs.NewHygieneSweeper,

		// Application Layer
		app.NewServer,
	)
	return nil, nil, nil
}

func provideCleanup(logger *zap.Logger, db *gorm.DB) func() {
	return func() {
		logger.Info("Executing cleanup tasks...")
		database.CloseGORMDB(db)
		if err := logger.Sync(); err != nil {
			log.Printf("ERROR: Failed to sync logger during cleanup: %v", err)
		}
		log.Println("Cleanup finished.")
	}
}
