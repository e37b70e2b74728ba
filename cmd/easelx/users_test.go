package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"gopkg.in/yaml.v3"

	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/internal/auth"
)

func runUsers(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newUsersCmd()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestUsersAddRejectsInvalidUsername(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if _, err := runUsers(t, "-c", cfgPath, "add", "BadUser", "--auto-password"); err == nil {
		t.Fatalf("expected error for invalid username")
	}
}

func TestUsersAddAndDelete(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	out, err := runUsers(t, "-c", cfgPath, "add", "alice.dev", "--auto-password", "--name", "Alice", "--id", "42")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if !strings.Contains(out, "id: 42") || !strings.Contains(out, "otpauth_url: otpauth://totp/easelx:alice.dev") {
		t.Fatalf("unexpected enrollment output:\n%s", out)
	}

	alice := findUser(t, cfg, "alice.dev")
	if alice == nil || alice.ID != 42 || alice.Name != "Alice" || alice.Role != "user" {
		t.Fatalf("unexpected stored user %+v", alice)
	}

	out, err = runUsers(t, "-c", cfgPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "1\tadmin\tadmin") || !strings.Contains(out, "42\talice.dev\tuser") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	if _, err := runUsers(t, "-c", cfgPath, "delete", "alice.dev"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if findUser(t, cfg, "alice.dev") != nil {
		t.Fatalf("expected alice.dev to be removed")
	}
}

func TestUsersAddAdminAssignsNextID(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	if _, err := runUsers(t, "-c", cfgPath, "add", "erin", "--auto-password", "--admin"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	erin := findUser(t, cfg, "erin")
	if erin == nil || erin.ID != 2 || erin.Role != "admin" {
		t.Fatalf("unexpected stored user %+v", erin)
	}
	if _, err := runUsers(t, "-c", cfgPath, "add", "erin", "--auto-password"); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}

func TestUsersRotateTOTP(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	if _, err := runUsers(t, "-c", cfgPath, "add", "bob", "--auto-password"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	orig := findUser(t, cfg, "bob")
	if orig == nil {
		t.Fatalf("expected bob user")
	}
	if _, err := runUsers(t, "-c", cfgPath, "rotate-totp", "bob"); err != nil {
		t.Fatalf("rotate-totp: %v", err)
	}
	updated := findUser(t, cfg, "bob")
	if updated == nil || updated.TOTPSecret == orig.TOTPSecret {
		t.Fatalf("expected TOTP secret to change")
	}
	if _, err := runUsers(t, "-c", cfgPath, "rotate-totp", "nobody"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestUsersChpasswdFromStdin(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	if _, err := runUsers(t, "-c", cfgPath, "add", "carol", "--auto-password"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "chpasswd", "carol", "--password-from-stdin"})
	cmd.SetIn(strings.NewReader("new-secret\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chpasswd: %v", err)
	}

	carol := findUser(t, cfg, "carol")
	if carol == nil {
		t.Fatalf("expected carol user")
	}
	code, err := totp.GenerateCode(carol.TOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if _, err := store.Authenticate("carol", "new-secret", code); err != nil {
		t.Fatalf("expected new password to authenticate: %v", err)
	}
}

func TestResolvePasswordRejectsBothSources(t *testing.T) {
	cmd := newUsersCmd()
	if _, _, err := resolvePassword(cmd, true, true); err == nil {
		t.Fatalf("expected error when both password sources are set")
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	dir := t.TempDir()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.Auth.UserFile = filepath.Join(dir, "users.json")
	cfg.Catalog.Path = filepath.Join(dir, "catalog.yaml")
	path := filepath.Join(dir, "config.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadConfigFromPath(t *testing.T, path string) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func findUser(t *testing.T, cfg appconfig.Config, username string) *auth.User {
	t.Helper()
	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	for _, user := range store.LoadUsers() {
		if user.Username == username {
			found := user
			return &found
		}
	}
	return nil
}
