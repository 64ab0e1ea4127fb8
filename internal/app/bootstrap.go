package app

import (
	"database/sql"
	"fmt"

	"requestline/internal/config"
	"requestline/internal/engine"
	"requestline/internal/registry"
	"requestline/internal/repo"
	"requestline/internal/resolver"
	"requestline/internal/workflow"
)

// BuildEngine wires the process-wide registries and returns a ready engine.
// The resolver chain and type registry are populated here, once, and are
// read-only for the rest of the process lifetime.
func BuildEngine(db *sql.DB, cfg *config.Config) (engine.Engine, error) {
	if cfg == nil {
		cfg = config.Default("requestline")
	}
	r := repo.Repo{DB: db}
	resolvers := resolver.NewRegistry(
		resolver.UserResolver{Users: r},
		resolver.GroupResolver{Groups: r},
		resolver.RecordResolver{Records: r},
		resolver.RequestResolver{Requests: r},
	)

	types := registry.New()
	generic := workflow.NewGenericType(resolvers)
	if err := generic.Validate(); err != nil {
		return engine.Engine{}, fmt.Errorf("builtin type: %w", err)
	}
	types.Register(generic, false)

	custom, err := cfg.BuildTypes(resolvers)
	if err != nil {
		return engine.Engine{}, err
	}
	for i, t := range custom {
		types.Register(t, cfg.Types[i].Force)
	}

	return engine.New(db, cfg, types, resolvers), nil
}
