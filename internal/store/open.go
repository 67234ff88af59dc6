package store

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultPath = "commandjobs.db"
)

// Config selects and configures a backend.
type Config struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url" validate:"required_if=Driver postgres"`
}

// Open returns the backend described by cfg. SQLite at DefaultPath is used
// when nothing is configured.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = DefaultPath
		}
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		p, err := ConnectPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
