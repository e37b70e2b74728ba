package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

// Document is the on-disk layout of the file catalog.
type Document struct {
	Pictures []PictureRecord `yaml:"pictures"`
	Spaces   []SpaceRecord   `yaml:"spaces"`
	Members  []MemberRecord  `yaml:"members"`
}

// PictureRecord is one picture entry. A zero space means the public gallery.
type PictureRecord struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url,omitempty"`
	SpaceID int64  `yaml:"space_id,omitempty"`
	OwnerID int64  `yaml:"owner_id"`
}

// SpaceRecord is one space entry.
type SpaceRecord struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	OwnerID int64  `yaml:"owner_id"`
}

// MemberRecord grants a user a role in a space.
type MemberRecord struct {
	SpaceID int64  `yaml:"space_id"`
	UserID  int64  `yaml:"user_id"`
	Role    string `yaml:"role"`
}

type memberKey struct {
	space schema.SpaceID
	user  schema.UserID
}

type snapshot struct {
	pictures map[schema.PictureID]schema.Picture
	spaces   map[schema.SpaceID]schema.Space
	members  map[memberKey]schema.SpaceRole
}

// FileStore serves the catalog from a YAML file and reloads it when the file
// changes on disk.
type FileStore struct {
	path      string
	mu        sync.RWMutex
	data      snapshot
	fileState fileState
	log       pslog.Logger
}

// NewFileStore loads the catalog at path, creating an empty one if missing.
func NewFileStore(path string, logger pslog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("catalog file path is required")
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store := &FileStore{
		path: path,
		log:  logger.With("catalog_file", path),
	}
	if err := store.ensureFile(); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Picture implements Store.
func (s *FileStore) Picture(_ context.Context, id schema.PictureID) (schema.Picture, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return schema.Picture{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	picture, ok := s.data.pictures[id]
	if !ok {
		return schema.Picture{}, schema.ErrPictureNotFound
	}
	return picture, nil
}

// Space implements Store.
func (s *FileStore) Space(_ context.Context, id schema.SpaceID) (schema.Space, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return schema.Space{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	space, ok := s.data.spaces[id]
	if !ok {
		return schema.Space{}, schema.ErrSpaceNotFound
	}
	return space, nil
}

// Member implements Store.
func (s *FileStore) Member(_ context.Context, spaceID schema.SpaceID, userID schema.UserID) (schema.SpaceMember, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return schema.SpaceMember{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.data.members[memberKey{spaceID, userID}]
	if !ok {
		return schema.SpaceMember{}, schema.ErrNotMember
	}
	return schema.SpaceMember{SpaceID: spaceID, UserID: userID, Role: role}, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) ensureFile() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(Document{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return err
	}
	s.log.Info("catalog file initialized")
	return nil
}

func (s *FileStore) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		s.log.Warn("catalog stat failed", "err", err)
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *FileStore) loadFromDisk() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn("catalog load failed", "err", err)
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		s.log.Warn("catalog load failed", "err", err)
		return err
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		s.log.Warn("catalog load failed", "err", err)
		return fmt.Errorf("parse catalog %s: %w", s.path, err)
	}
	next, err := doc.snapshot()
	if err != nil {
		s.log.Warn("catalog load failed", "err", err)
		return fmt.Errorf("catalog %s: %w", s.path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = next
	s.fileState = fileStateFromInfo(info)
	s.log.Debug("catalog load ok", "pictures", len(next.pictures), "spaces", len(next.spaces), "members", len(next.members))
	return nil
}

func (d Document) snapshot() (snapshot, error) {
	out := snapshot{
		pictures: make(map[schema.PictureID]schema.Picture, len(d.Pictures)),
		spaces:   make(map[schema.SpaceID]schema.Space, len(d.Spaces)),
		members:  make(map[memberKey]schema.SpaceRole, len(d.Members)),
	}
	for _, rec := range d.Spaces {
		if rec.ID <= 0 {
			return snapshot{}, fmt.Errorf("space id must be positive, got %d", rec.ID)
		}
		kind, err := ParseSpaceType(rec.Type)
		if err != nil {
			return snapshot{}, fmt.Errorf("space %d: %w", rec.ID, err)
		}
		out.spaces[schema.SpaceID(rec.ID)] = schema.Space{
			ID:      schema.SpaceID(rec.ID),
			Name:    rec.Name,
			Type:    kind,
			OwnerID: schema.UserID(rec.OwnerID),
		}
	}
	for _, rec := range d.Pictures {
		if rec.ID <= 0 {
			return snapshot{}, fmt.Errorf("picture id must be positive, got %d", rec.ID)
		}
		out.pictures[schema.PictureID(rec.ID)] = schema.Picture{
			ID:      schema.PictureID(rec.ID),
			Name:    rec.Name,
			URL:     rec.URL,
			SpaceID: schema.SpaceID(rec.SpaceID),
			OwnerID: schema.UserID(rec.OwnerID),
		}
	}
	for _, rec := range d.Members {
		role, err := ParseSpaceRole(rec.Role)
		if err != nil {
			return snapshot{}, fmt.Errorf("member %d of space %d: %w", rec.UserID, rec.SpaceID, err)
		}
		out.members[memberKey{schema.SpaceID(rec.SpaceID), schema.UserID(rec.UserID)}] = role
	}
	return out, nil
}

// ParseSpaceType accepts "private" or "team".
func ParseSpaceType(value string) (schema.SpaceType, error) {
	switch value {
	case "private", "":
		return schema.SpacePrivate, nil
	case "team":
		return schema.SpaceTeam, nil
	default:
		return 0, fmt.Errorf("unknown space type %q", value)
	}
}

// ParseSpaceRole accepts viewer, editor or admin.
func ParseSpaceRole(value string) (schema.SpaceRole, error) {
	switch role := schema.SpaceRole(value); role {
	case schema.RoleViewer, schema.RoleEditor, schema.RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("unknown space role %q", value)
	}
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}
