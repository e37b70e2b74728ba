package main

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestResolveVersionPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := resolveVersion(nil, false); got != "v1.2.3" {
		t.Fatalf("expected trimmed build version, got %q", got)
	}
	if got := resolveVersion(nil, true); got != "v1.2.3+dirty" {
		t.Fatalf("expected dirty build version, got %q", got)
	}
}

func TestResolveVersionFromVCS(t *testing.T) {
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 0, time.UTC)
	info := &debug.BuildInfo{
		Main: debug.Module{Path: modulePath, Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef0123456789"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	want := "v0.0.0-20260304050607-abcdef012345"
	if got := resolveVersion(info, false); got != want {
		t.Fatalf("resolveVersion = %q, want %q", got, want)
	}
	if got := resolveVersion(info, true); got != want+"+dirty" {
		t.Fatalf("resolveVersion(dirty) = %q", got)
	}
	if got := resolveVersion(&debug.BuildInfo{}, false); got != "v0.0.0-unknown" {
		t.Fatalf("expected unknown version, got %q", got)
	}
}
