// Package bootstrap wires configuration into a ready lifecycle service. It is
// shared by the controller and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"prodflow/internal/config"
	"prodflow/internal/lifecycle"
	"prodflow/internal/seed"
	"prodflow/internal/store"
	"prodflow/internal/store/memory"
	"prodflow/internal/store/postgres"
)

// OpenStore connects the configured storage driver. With migrate set, postgres
// migrations are applied before returning.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (store.Backend, error) {
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage; state is lost on exit")
		return memory.New(), nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			logger.Info("running database migrations")
			if err := postgres.Migrate(s.DB()); err != nil {
				s.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations completed")
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

// PolicyConfig converts the configured room roles.
func PolicyConfig(cfg *config.Config) lifecycle.PolicyConfig {
	return lifecycle.PolicyConfig{
		EntryRoom:         cfg.Roles.EntryRoom,
		ShadowTargetRoom:  cfg.Roles.ShadowTargetRoom,
		ShadowSourceKinds: cfg.ShadowSourceKinds,
		GateKinds:         cfg.GateKinds,
		PackagingKinds:    cfg.PackagingKinds,
	}
}

// NewService seeds the configured catalog, resolves the room roles and builds
// the lifecycle service on backend.
func NewService(ctx context.Context, cfg *config.Config, backend store.Backend, logger *slog.Logger, opts ...lifecycle.Option) (*lifecycle.Service, error) {
	if _, err := seed.Apply(ctx, backend, cfg.Rooms, cfg.Operators, logger); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	policy, err := lifecycle.ResolvePolicy(ctx, backend, PolicyConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("resolve room roles: %w", err)
	}
	opts = append([]lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithAutoAdvance(cfg.AutoAdvance),
	}, opts...)
	return lifecycle.NewService(backend, policy, opts...), nil
}
