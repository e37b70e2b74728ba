package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/schema"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func TestStoreRejectsInvalidUsername(t *testing.T) {
	store := newTestStore(t, nil)
	if _, err := store.AddUser(User{
		Username:     "Alice",
		PasswordHash: "hash",
		TOTPSecret:   "secret",
	}); err == nil {
		t.Fatalf("expected invalid username error")
	}
}

func TestStoreRejectsInvalidSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	_, err := NewStoreWithLogger(path, []appconfig.SeedUser{
		{
			Username:     "BadUser",
			PasswordHash: "hash",
			TOTPSecret:   "secret",
		},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for invalid seed user")
	}
}

func TestStoreSeedsUsersWithIDs(t *testing.T) {
	store := newTestStore(t, []appconfig.SeedUser{
		{ID: 7, Username: "admin", Name: "Admin", Role: "admin", PasswordHash: mustHash(t, "pass"), TOTPSecret: testSecret},
		{Username: "carol", PasswordHash: mustHash(t, "pass"), TOTPSecret: testSecret},
	})
	users := store.LoadUsers()
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].ID != 2 || users[0].Username != "carol" || users[1].ID != 7 {
		t.Fatalf("unexpected seeded users %+v", users)
	}
	identity, err := store.Lookup(7)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !identity.IsAdmin() || identity.Name != "Admin" || identity.Account != "admin" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if _, err := store.Lookup(99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStoreAddUserAssignsIDs(t *testing.T) {
	store := newTestStore(t, nil)
	first, err := store.AddUser(User{Username: "alice", PasswordHash: "h", TOTPSecret: testSecret})
	if err != nil {
		t.Fatalf("add alice: %v", err)
	}
	second, err := store.AddUser(User{Username: "bob", PasswordHash: "h", TOTPSecret: testSecret})
	if err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if first.Created.IsZero() {
		t.Fatalf("expected creation time to be set")
	}
	if _, err := store.AddUser(User{ID: 2, Username: "carol", PasswordHash: "h", TOTPSecret: testSecret}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := store.AddUser(User{Username: "alice", PasswordHash: "h", TOTPSecret: testSecret}); err == nil {
		t.Fatalf("expected duplicate username error")
	}
}

func TestStoreAuthenticate(t *testing.T) {
	store := newTestStore(t, nil)
	if _, err := store.AddUser(User{Username: "alice", Name: "Alice", PasswordHash: mustHash(t, "pass"), TOTPSecret: testSecret}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	identity, err := store.Authenticate("alice", "pass", mustTOTP(t, testSecret))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if identity.ID != 1 || identity.Role != schema.UserRoleUser {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if _, err := store.Authenticate("alice", "wrong", mustTOTP(t, testSecret)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.Authenticate("nobody", "pass", mustTOTP(t, testSecret)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := store.Authenticate("alice", "pass", "000000"); !errors.Is(err, ErrInvalidTOTP) {
		t.Fatalf("expected ErrInvalidTOTP, got %v", err)
	}
}

func TestStoreChangePassword(t *testing.T) {
	store := newTestStore(t, nil)
	if _, err := store.AddUser(User{
		Username:     "alice",
		PasswordHash: mustHash(t, "old-pass"),
		TOTPSecret:   testSecret,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	code := mustTOTP(t, testSecret)
	if err := store.ChangePassword("alice", "old-pass", code, "new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := store.Authenticate("alice", "new-pass", code); err != nil {
		t.Fatalf("authenticate new password: %v", err)
	}
	if _, err := store.Authenticate("alice", "old-pass", code); err == nil {
		t.Fatalf("expected old password to fail")
	}
}

func TestStoreReloadsPasswordChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writer, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := writer.AddUser(User{
		Username:     "alice",
		PasswordHash: mustHash(t, "old-pass"),
		TOTPSecret:   testSecret,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	reader, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store reader: %v", err)
	}
	if _, err := reader.Authenticate("alice", "old-pass", mustTOTP(t, testSecret)); err != nil {
		t.Fatalf("authenticate old password: %v", err)
	}
	if err := writer.UpdatePassword("alice", mustHash(t, "new-pass")); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if _, err := reader.Authenticate("alice", "new-pass", mustTOTP(t, testSecret)); err != nil {
		t.Fatalf("authenticate new password: %v", err)
	}
	if _, err := reader.Authenticate("alice", "old-pass", mustTOTP(t, testSecret)); err == nil {
		t.Fatalf("expected old password to fail after refresh")
	}
}

func TestStoreReloadsUserAddDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writer, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reader, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store reader: %v", err)
	}
	added, err := writer.AddUser(User{
		Username:     "bob",
		PasswordHash: mustHash(t, "pass"),
		TOTPSecret:   testSecret,
	})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if _, err := reader.Lookup(schema.UserID(added.ID)); err != nil {
		t.Fatalf("lookup new user: %v", err)
	}
	if err := writer.DeleteUser("bob"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := reader.Authenticate("bob", "pass", mustTOTP(t, testSecret)); err == nil {
		t.Fatalf("expected deleted user login to fail")
	}
	if err := writer.DeleteUser("bob"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStoreReloadsTOTPChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writer, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := writer.AddUser(User{
		Username:     "alice",
		PasswordHash: mustHash(t, "pass"),
		TOTPSecret:   testSecret,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	reader, err := NewStoreWithLogger(path, nil, nil)
	if err != nil {
		t.Fatalf("new store reader: %v", err)
	}
	secretB := "KRSXG5DSNFXGOIDB"
	if err := writer.UpdateTOTP("alice", secretB); err != nil {
		t.Fatalf("update totp: %v", err)
	}
	if err := reader.ValidateTOTP("alice", mustTOTP(t, secretB)); err != nil {
		t.Fatalf("validate rotated totp: %v", err)
	}
	if err := reader.ValidateTOTP("alice", mustTOTP(t, testSecret)); err == nil {
		t.Fatalf("expected old totp to fail after refresh")
	}
}

func newTestStore(t *testing.T, seeds []appconfig.SeedUser) *Store {
	t.Helper()
	store, err := NewStoreWithLogger(filepath.Join(t.TempDir(), "users.json"), seeds, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func mustTOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate totp: %v", err)
	}
	return code
}

func TestIdentityMapsAccountProfile(t *testing.T) {
	u := User{ID: 5, Username: "dave", Name: "Dave", Profile: "inks", Role: string(schema.UserRoleAdmin)}
	id := u.Identity()
	if id.Bio != "inks" || id.Account != "dave" || id.Role != schema.UserRoleAdmin {
		t.Fatalf("unexpected identity %+v", id)
	}
	if got := id.Profile(); got.Profile != "inks" || got.Name != "Dave" {
		t.Fatalf("unexpected profile %+v", got)
	}
}
