package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "bootstrap": false, "config": false, "users": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestVersionCommandPrintsModule(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), modulePath+" ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestBootstrapCommandRejectsBadOverride(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"bootstrap", "-o", t.TempDir(), "--set", "novalue"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected malformed --set to fail")
	}
}

func TestBootstrapThenConfigInit(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"bootstrap", "-o", dir, "--set", "http.addr=127.0.0.1:0"})
	if err := root.Execute(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	cfgPath := dir + "/config.yaml"
	cfg := loadConfigFromPath(t, cfgPath)
	if cfg.HTTP.Addr != "127.0.0.1:0" {
		t.Fatalf("override not applied, addr=%q", cfg.HTTP.Addr)
	}

	root = newRootCmd()
	root.SetArgs([]string{"config", "init", "-c", cfgPath})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected config init to refuse an existing file")
	}
	root = newRootCmd()
	root.SetArgs([]string{"config", "init", "-c", cfgPath, "--force"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}
