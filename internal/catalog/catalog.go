// Package catalog resolves pictures, spaces and space memberships.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/easelx/schema"
)

// Store is the read side of the picture catalog.
type Store interface {
	// Picture returns schema.ErrPictureNotFound for unknown ids.
	Picture(ctx context.Context, id schema.PictureID) (schema.Picture, error)
	// Space returns schema.ErrSpaceNotFound for unknown ids.
	Space(ctx context.Context, id schema.SpaceID) (schema.Space, error)
	// Member returns schema.ErrNotMember when the user is not in the space.
	Member(ctx context.Context, spaceID schema.SpaceID, userID schema.UserID) (schema.SpaceMember, error)
	Close() error
}

// Driver names a catalog backend.
type Driver string

const (
	// DriverFile reads a YAML document from disk.
	DriverFile Driver = "file"
	// DriverPostgres queries a PostgreSQL database.
	DriverPostgres Driver = "postgres"
)

// Config selects and parameterizes the backend.
type Config struct {
	Driver   Driver
	Path     string
	DSN      string
	MaxConns int32
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config, logger pslog.Logger) (Store, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver)))) {
	case "", DriverFile:
		return NewFileStore(cfg.Path, logger)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.MaxConns, logger)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
	}
}
