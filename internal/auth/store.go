package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

var (
	// ErrInvalidCredentials hides which of username or password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidTOTP indicates a wrong or expired one-time code.
	ErrInvalidTOTP = errors.New("invalid totp")
	// ErrUserNotFound indicates an unknown user.
	ErrUserNotFound = errors.New("user not found")
)

// User represents a stored user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	Profile      string    `json:"profile,omitempty"`
	Role         string    `json:"role,omitempty"`
	PasswordHash string    `json:"password_hash"`
	TOTPSecret   string    `json:"totp_secret"`
	Created      time.Time `json:"created,omitzero"`
}

// Identity returns the session-facing view of the account.
func (u User) Identity() schema.User {
	role := schema.UserRoleUser
	if u.Role == string(schema.UserRoleAdmin) {
		role = schema.UserRoleAdmin
	}
	return schema.User{
		ID:      schema.UserID(u.ID),
		Account: u.Username,
		Name:    u.Name,
		Avatar:  u.Avatar,
		Bio:     u.Profile,
		Role:    role,
		Created: u.Created,
	}
}

// Store manages users stored on disk.
type Store struct {
	path      string
	mu        sync.RWMutex
	users     map[string]User
	fileState fileState
	log       pslog.Logger
}

// NewStore loads or seeds the user store.
func NewStore(path string, seeds []appconfig.SeedUser) (*Store, error) {
	return NewStoreWithLogger(path, seeds, nil)
}

// NewStoreWithLogger loads or seeds the user store with logging.
func NewStoreWithLogger(path string, seeds []appconfig.SeedUser, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("user file path is required")
	}
	if logger != nil {
		logger = logger.With("user_file", path)
	}
	store := &Store{
		path:  path,
		users: make(map[string]User),
		log:   logger,
	}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// Authenticate verifies username, password, and totp and returns the identity.
func (s *Store) Authenticate(username, password, totpCode string) (schema.User, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return schema.User{}, err
	}
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return schema.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return schema.User{}, ErrInvalidCredentials
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return schema.User{}, ErrInvalidTOTP
	}
	return user.Identity(), nil
}

// ValidateTOTP verifies the stored TOTP secret for a user.
func (s *Store) ValidateTOTP(username string, totpCode string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	s.mu.RLock()
	user, ok := s.users[normalized]
	s.mu.RUnlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return ErrInvalidTOTP
	}
	return nil
}

// Lookup resolves a user id to its identity.
func (s *Store) Lookup(id schema.UserID) (schema.User, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return schema.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.ID == int64(id) {
			return user.Identity(), nil
		}
	}
	return schema.User{}, ErrUserNotFound
}

// ChangePassword verifies credentials and replaces the stored password hash.
func (s *Store) ChangePassword(username, currentPassword, totpCode, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return errors.New("new password is required")
	}
	if _, err := s.Authenticate(username, currentPassword, totpCode); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UpdatePassword(username, string(hash))
}

// LoadUsers returns a snapshot of users ordered by id.
func (s *Store) LoadUsers() []User {
	if err := s.refreshIfNeeded(); err != nil {
		if s.log != nil {
			s.log.Warn("auth store refresh failed", "err", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// AddUser inserts a new user and persists the store. A zero id is replaced
// with the next free one. The stored record is returned.
func (s *Store) AddUser(user User) (User, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return User{}, err
	}
	username, err := validateUsername(user.Username)
	if err != nil {
		return User{}, err
	}
	if user.ID < 0 {
		return User{}, errors.New("user id must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return User{}, errors.New("user already exists")
	}
	var maxID int64
	for _, existing := range s.users {
		if user.ID != 0 && existing.ID == user.ID {
			return User{}, errors.New("user id already in use")
		}
		maxID = max(maxID, existing.ID)
	}
	if user.ID == 0 {
		user.ID = maxID + 1
	}
	if user.Created.IsZero() {
		user.Created = time.Now().UTC()
	}
	user.Username = username
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		delete(s.users, username)
		if s.log != nil {
			s.log.Warn("auth user add failed", "user", username, "err", err)
		}
		return User{}, err
	}
	if s.log != nil {
		s.log.Info("auth user added", "user", username, "id", user.ID)
	}
	return user, nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(username, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	return s.update(username, "password", func(user *User) {
		user.PasswordHash = passwordHash
	})
}

// UpdateTOTP replaces the stored TOTP secret.
func (s *Store) UpdateTOTP(username, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("totp secret is required")
	}
	return s.update(username, "totp", func(user *User) {
		user.TOTPSecret = secret
	})
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(username string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	username = normalized
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, username)
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth user delete failed", "user", username, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth user deleted", "user", username)
	}
	return nil
}

func (s *Store) update(username, field string, apply func(*User)) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	username = normalized
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	apply(&user)
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth "+field+" update failed", "user", username, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth "+field+" updated", "user", username)
	}
	return nil
}

func (s *Store) ensureFile(seeds []appconfig.SeedUser) error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		if s.log != nil {
			s.log.Warn("auth store init failed", "err", statErr)
		}
		return statErr
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		if s.log != nil {
			s.log.Warn("auth store init failed", "err", err)
		}
		return err
	}
	users := make([]User, 0, len(seeds))
	now := time.Now().UTC()
	for i, seed := range seeds {
		if _, err := validateUsername(seed.Username); err != nil {
			return err
		}
		id := seed.ID
		if id <= 0 {
			id = int64(i + 1)
		}
		users = append(users, User{
			ID:           id,
			Username:     seed.Username,
			Name:         seed.Name,
			Role:         seed.Role,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
			Created:      now,
		})
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth store init failed", "err", err)
		}
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		if s.log != nil {
			s.log.Warn("auth store init failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth store initialized", "users", len(users))
	}
	return nil
}

func (s *Store) load() error {
	return s.loadFromDisk()
}

func validateUsername(username string) (string, error) {
	if err := schema.ValidateAccount(username); err != nil {
		return "", errors.New("invalid username")
	}
	return username, nil
}

func (s *Store) saveLocked() error {
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return s.saveFailed(err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return s.saveFailed(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "users-*.json")
	if err != nil {
		return s.saveFailed(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return s.saveFailed(err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	} else if s.log != nil {
		s.log.Warn("auth store save failed to stat", "err", err)
	}
	if s.log != nil {
		s.log.Debug("auth store save ok", "users", len(users))
	}
	return nil
}

func (s *Store) saveFailed(err error) error {
	if s.log != nil {
		s.log.Warn("auth store save failed", "err", err)
	}
	return err
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

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth store stat failed", "err", err)
		}
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

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.loadFailed(err)
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return s.loadFailed(err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return s.loadFailed(err)
	}
	next := make(map[string]User, len(users))
	ids := make(map[int64]string, len(users))
	for _, user := range users {
		if _, err := validateUsername(user.Username); err != nil {
			return s.loadFailed(err)
		}
		if user.ID <= 0 {
			return s.loadFailed(errors.New("user " + user.Username + " has no id"))
		}
		if other, dup := ids[user.ID]; dup {
			return s.loadFailed(errors.New("users " + other + " and " + user.Username + " share an id"))
		}
		ids[user.ID] = user.Username
		next[user.Username] = user
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = next
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("auth store load ok", "users", len(users))
	}
	return nil
}

func (s *Store) loadFailed(err error) error {
	if s.log != nil {
		s.log.Warn("auth store load failed", "err", err)
	}
	return err
}
