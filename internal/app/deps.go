package app

import (
	"context"
	"log/slog"

	"github.com/tabletalk/backend/internal/auth"
	"github.com/tabletalk/backend/internal/config"
	"github.com/tabletalk/backend/internal/db"
	"github.com/tabletalk/backend/internal/handlers"
	"github.com/tabletalk/backend/internal/middleware"
	"github.com/tabletalk/backend/internal/places"
	"github.com/tabletalk/backend/internal/presence"
	"github.com/tabletalk/backend/internal/repositories"
	"github.com/tabletalk/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the
// HTTP handlers plus the background collaborators owned by serve.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, *presence.Sweeper, error) {
	users := repositories.NewPostgresUserRepository(pool)
	friends := repositories.NewPostgresFriendRepository(pool)
	placeRepo := repositories.NewPostgresPlaceRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)

	broker := presence.NewBroker()
	manager := presence.NewManager(users, placeRepo, broker)
	directory := places.NewDirectory(placeRepo, cfg.PlaceCacheTTL)
	resolver := presence.NewResolver(users, friends, placeRepo, directory)
	sweeper := presence.NewSweeper(users, broker, cfg.SweepInterval, logger)

	deps := handlers.Dependencies{
		Users:       users,
		Sessions:    auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessionStore),
		Friends:     friends,
		Presence:    manager,
		Resolver:    resolver,
		AuthLimiter: middleware.NewIPRateLimiter(cfg.AuthRateRequests, cfg.AuthRateWindow, cfg.AuthRateRequests, 10*cfg.AuthRateWindow),
	}

	if cfg.ObjectStore.Bucket != "" {
		avatars, err := storage.NewS3AvatarStorage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		deps.Avatars = avatars
	}

	return deps, sweeper, nil
}
