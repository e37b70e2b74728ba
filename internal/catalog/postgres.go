package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

const (
	pictureQuery = `SELECT id, name, COALESCE(url, ''), COALESCE(space_id, 0), user_id
FROM picture WHERE id = $1 AND is_delete = 0`
	spaceQuery = `SELECT id, COALESCE(space_name, ''), space_type, user_id
FROM space WHERE id = $1 AND is_delete = 0`
	memberQuery = `SELECT space_role FROM space_user WHERE space_id = $1 AND user_id = $2`
)

// PostgresStore reads the catalog from the picture, space and space_user tables.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  pslog.Logger
}

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32, logger pslog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("catalog dsn is required")
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect catalog: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	log := logger.With("catalog", "postgres", "db", cfg.ConnConfig.Database)
	log.Info("catalog connected", "max_conns", cfg.MaxConns)
	return &PostgresStore{pool: pool, log: log}, nil
}

// Picture implements Store.
func (s *PostgresStore) Picture(ctx context.Context, id schema.PictureID) (schema.Picture, error) {
	var (
		picture schema.Picture
		rawID   int64
		spaceID int64
		ownerID int64
	)
	err := s.pool.QueryRow(ctx, pictureQuery, int64(id)).Scan(&rawID, &picture.Name, &picture.URL, &spaceID, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Picture{}, schema.ErrPictureNotFound
	}
	if err != nil {
		s.log.Warn("catalog picture query failed", "picture", int64(id), "err", err)
		return schema.Picture{}, fmt.Errorf("query picture %d: %w", id, err)
	}
	picture.ID = schema.PictureID(rawID)
	picture.SpaceID = schema.SpaceID(spaceID)
	picture.OwnerID = schema.UserID(ownerID)
	return picture, nil
}

// Space implements Store.
func (s *PostgresStore) Space(ctx context.Context, id schema.SpaceID) (schema.Space, error) {
	var (
		space     schema.Space
		rawID     int64
		spaceType int32
		ownerID   int64
	)
	err := s.pool.QueryRow(ctx, spaceQuery, int64(id)).Scan(&rawID, &space.Name, &spaceType, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Space{}, schema.ErrSpaceNotFound
	}
	if err != nil {
		s.log.Warn("catalog space query failed", "space", int64(id), "err", err)
		return schema.Space{}, fmt.Errorf("query space %d: %w", id, err)
	}
	space.ID = schema.SpaceID(rawID)
	space.Type = schema.SpaceType(spaceType)
	space.OwnerID = schema.UserID(ownerID)
	return space, nil
}

// Member implements Store.
func (s *PostgresStore) Member(ctx context.Context, spaceID schema.SpaceID, userID schema.UserID) (schema.SpaceMember, error) {
	var role string
	err := s.pool.QueryRow(ctx, memberQuery, int64(spaceID), int64(userID)).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.SpaceMember{}, schema.ErrNotMember
	}
	if err != nil {
		s.log.Warn("catalog member query failed", "space", int64(spaceID), "user", int64(userID), "err", err)
		return schema.SpaceMember{}, fmt.Errorf("query membership: %w", err)
	}
	parsed, err := ParseSpaceRole(role)
	if err != nil {
		return schema.SpaceMember{}, err
	}
	return schema.SpaceMember{SpaceID: spaceID, UserID: userID, Role: parsed}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
