package main

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const modulePath = "pkt.systems/easelx"

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = ""

func newVersionCmd() *cobra.Command {
	var dirty bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, _ := debug.ReadBuildInfo()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", modulePath, resolveVersion(info, dirty))
			return err
		},
	}
	cmd.Flags().BoolVar(&dirty, "dirty", false, "keep the +dirty suffix of modified builds")
	return cmd
}

// resolveVersion prefers the linker-provided version, then the module
// version, then a pseudo version derived from VCS stamps.
func resolveVersion(info *debug.BuildInfo, keepDirty bool) string {
	v := strings.TrimSpace(buildVersion)
	if v == "" && info != nil {
		if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
			v = mv
		} else {
			v = vcsPseudoVersion(info)
		}
	}
	if v == "" {
		return "v0.0.0-unknown"
	}
	if !keepDirty {
		v = strings.TrimSuffix(v, "+dirty")
	}
	return v
}

func vcsPseudoVersion(info *debug.BuildInfo) string {
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	revision := settings["vcs.revision"]
	stamp, err := time.Parse(time.RFC3339, settings["vcs.time"])
	if revision == "" || err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := fmt.Sprintf("v0.0.0-%s-%s", stamp.UTC().Format("20060102150405"), revision)
	if settings["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}
