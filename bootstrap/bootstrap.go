package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/internal/catalog"
)

// Files represents generated bootstrap artifacts. Empty entries are not written.
type Files struct {
	ConfigYAML  []byte
	CatalogYAML []byte
	SchemaSQL   []byte
	ComposeYAML []byte
}

// Options controls optional bootstrap behaviors.
type Options struct {
	// Driver selects the catalog backend the config points at.
	Driver    catalog.Driver
	Overrides []ConfigOverride
}

// Paths reports where bootstrap wrote its outputs. Unwritten files are empty.
type Paths struct {
	ConfigPath  string
	CatalogPath string
	SchemaPath  string
	ComposePath string
}

const (
	configName           = "config.yaml"
	catalogName          = "catalog.yaml"
	schemaName           = "catalog-schema.sql"
	composeName          = "docker-compose.yaml"
	defaultPostgresImage = "docker.io/library/postgres:17-alpine"
	defaultDBUser        = "easelx"
	defaultDBName        = "easelx"
	defaultDBPort        = 5432
)

// ConfigOverride sets a dotted config path, for example http.addr.
type ConfigOverride struct {
	Path  string
	Value any
}

// ParseOverride parses "path=value". The value is decoded as YAML so numbers
// and booleans keep their type.
func ParseOverride(raw string) (ConfigOverride, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return ConfigOverride{}, fmt.Errorf("invalid override %q: expected path=value", raw)
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		decoded = value
	}
	return ConfigOverride{Path: strings.TrimSpace(key), Value: decoded}, nil
}

type templateData struct {
	PostgresImage string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        int
	SchemaFile    string
}

// DefaultFiles renders the bootstrap bundle rooted at outputDir.
func DefaultFiles(outputDir string, opts Options) (Files, error) {
	rootDir, err := filepath.Abs(outputDir)
	if err != nil {
		rootDir = outputDir
	}
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		return Files{}, err
	}
	cfg.ConfigVersion = appconfig.CurrentConfigVersion
	cfg.StateDir = filepath.Join(rootDir, "state")
	cfg.Auth.UserFile = filepath.Join(rootDir, "state", "users.json")
	cfg.Catalog.Path = filepath.Join(rootDir, catalogName)

	var files Files
	driver := opts.Driver
	if driver == "" {
		driver = catalog.DriverFile
	}
	switch driver {
	case catalog.DriverFile:
		cfg.Catalog.Driver = string(catalog.DriverFile)
		if files.CatalogYAML, err = yaml.Marshal(sampleCatalog()); err != nil {
			return Files{}, err
		}
	case catalog.DriverPostgres:
		data := templateData{
			PostgresImage: defaultPostgresImage,
			DBUser:        defaultDBUser,
			DBPassword:    randomPassword(),
			DBName:        defaultDBName,
			DBPort:        defaultDBPort,
			SchemaFile:    schemaName,
		}
		cfg.Catalog.Driver = string(catalog.DriverPostgres)
		cfg.Catalog.Path = ""
		cfg.Catalog.DSN = fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable", data.DBUser, data.DBPassword, data.DBPort, data.DBName)
		if files.ComposeYAML, err = renderTemplate("templates/docker-compose.yaml.tmpl", data); err != nil {
			return Files{}, err
		}
		if files.SchemaSQL, err = readEmbeddedFile("files/catalog-schema.sql"); err != nil {
			return Files{}, err
		}
	default:
		return Files{}, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	if cfg, err = applyOverrides(cfg, opts.Overrides); err != nil {
		return Files{}, err
	}
	if files.ConfigYAML, err = yaml.Marshal(cfg); err != nil {
		return Files{}, err
	}
	return files, nil
}

// WriteBootstrap renders and writes the bundle, then loads the written config
// to make sure it validates.
func WriteBootstrap(outputDir string, overwrite bool, opts Options) (Paths, error) {
	if strings.TrimSpace(outputDir) == "" {
		return Paths{}, fmt.Errorf("output directory is required")
	}
	files, err := DefaultFiles(outputDir, opts)
	if err != nil {
		return Paths{}, err
	}
	paths, err := WriteFiles(outputDir, files, overwrite)
	if err != nil {
		return Paths{}, err
	}
	if _, err := appconfig.Load(paths.ConfigPath); err != nil {
		return paths, fmt.Errorf("generated config is invalid: %w", err)
	}
	return paths, nil
}

// WriteFiles writes the non-empty files to the output directory.
func WriteFiles(outputDir string, files Files, overwrite bool) (Paths, error) {
	if strings.TrimSpace(outputDir) == "" {
		return Paths{}, fmt.Errorf("output directory is required")
	}
	var paths Paths
	entries := []struct {
		name string
		data []byte
		perm os.FileMode
		dest *string
	}{
		{configName, files.ConfigYAML, 0o600, &paths.ConfigPath},
		{catalogName, files.CatalogYAML, 0o644, &paths.CatalogPath},
		{schemaName, files.SchemaSQL, 0o644, &paths.SchemaPath},
		{composeName, files.ComposeYAML, 0o600, &paths.ComposePath},
	}

	for _, entry := range entries {
		if len(entry.data) == 0 || overwrite {
			continue
		}
		path := filepath.Join(outputDir, entry.name)
		if _, err := os.Stat(path); err == nil {
			return Paths{}, fmt.Errorf("file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Paths{}, err
	}
	for _, entry := range entries {
		if len(entry.data) == 0 {
			continue
		}
		path := filepath.Join(outputDir, entry.name)
		if err := os.WriteFile(path, entry.data, entry.perm); err != nil {
			return Paths{}, err
		}
		*entry.dest = path
	}
	return paths, nil
}

// sampleCatalog seeds one public picture and one team space owned by the
// default admin so a fresh install has something to edit.
func sampleCatalog() catalog.Document {
	return catalog.Document{
		Pictures: []catalog.PictureRecord{
			{ID: 1, Name: "welcome", OwnerID: 1},
			{ID: 2, Name: "team board", SpaceID: 1, OwnerID: 1},
		},
		Spaces: []catalog.SpaceRecord{
			{ID: 1, Name: "studio", Type: "team", OwnerID: 1},
		},
		Members: []catalog.MemberRecord{
			{SpaceID: 1, UserID: 1, Role: "admin"},
		},
	}
}

func randomPassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func renderTemplate(name string, data templateData) ([]byte, error) {
	raw, err := readEmbeddedFile(name)
	if err != nil {
		return nil, err
	}
	tpl, err := template.New(filepath.Base(name)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func applyOverrides(cfg appconfig.Config, overrides []ConfigOverride) (appconfig.Config, error) {
	if len(overrides) == 0 {
		return cfg, nil
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	updated, err := applyOverridesToYAML(raw, overrides)
	if err != nil {
		return cfg, err
	}
	var next appconfig.Config
	if err := yaml.Unmarshal(updated, &next); err != nil {
		return cfg, err
	}
	return next, nil
}

func applyOverridesToYAML(configYAML []byte, overrides []ConfigOverride) ([]byte, error) {
	if len(overrides) == 0 {
		return configYAML, nil
	}
	var data map[string]any
	if err := yaml.Unmarshal(configYAML, &data); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := setOverrideValue(data, override.Path, override.Value); err != nil {
			return nil, err
		}
	}
	return yaml.Marshal(data)
}

func setOverrideValue(root map[string]any, path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config override path is required")
	}
	parts := strings.Split(path, ".")
	node := root
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fmt.Errorf("invalid config override path %q", path)
		}
		if i == len(parts)-1 {
			node[part] = value
			return nil
		}
		next, ok := node[part]
		if !ok || next == nil {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := toStringMap(next)
		if !ok {
			return fmt.Errorf("config override %q: %q is not a map", path, part)
		}
		node[part] = child
		node = child
	}
	return nil
}

func toStringMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			ks, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
