package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/easelx/bootstrap"
	"pkt.systems/easelx/internal/catalog"
	"pkt.systems/pslog"
)

func newBootstrapCmd() *cobra.Command {
	var outputDir string
	var overwrite bool
	var driver string
	var sets []string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Generate a config, a sample catalog and database files",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			out := outputDir
			if out == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				out = filepath.Join(home, ".easelx")
			}
			opts := bootstrap.Options{Driver: catalog.Driver(driver)}
			for _, raw := range sets {
				override, err := bootstrap.ParseOverride(raw)
				if err != nil {
					return err
				}
				opts.Overrides = append(opts.Overrides, override)
			}
			paths, err := bootstrap.WriteBootstrap(out, overwrite, opts)
			if err != nil {
				return err
			}
			for _, written := range []struct{ name, path string }{
				{"config.yaml", paths.ConfigPath},
				{"catalog.yaml", paths.CatalogPath},
				{"catalog-schema.sql", paths.SchemaPath},
				{"docker-compose.yaml", paths.ComposePath},
			} {
				if written.path != "" {
					logger.Info("bootstrap wrote", "path", written.path, "name", written.name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite existing files")
	cmd.Flags().StringVar(&driver, "driver", string(catalog.DriverFile), "catalog driver (file or postgres)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "config override as path=value (repeatable)")
	return cmd
}
