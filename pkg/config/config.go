package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"gopkg.in/yaml.v3"
)

// Config represents the project configuration for PostgreSQL schema
// management.
type Config struct {
	// SchemaDumpCommand is the shell command used to capture a schema
	// snapshot from a replayed database. It runs with DATABASE_URL set to
	// the database being dumped and must print the schema SQL to stdout.
	// Only the revision command requires it.
	SchemaDumpCommand string `yaml:"schema_dump_command,omitempty"`

	// MigrationsDir specifies the directory where migration documents and
	// their schema snapshots are stored.
	MigrationsDir string `yaml:"migrations_dir"`

	// IncantationPath is an SQL file replayed into temp databases before
	// any revisions, for objects that predate revision 1.
	IncantationPath string `yaml:"incantation_path"`

	// CrashOnIncompatibleVersion controls whether a forward run aborts when
	// live application connections report a schema hash other than the one
	// being contracted. When false the run logs each offender and proceeds.
	CrashOnIncompatibleVersion bool `yaml:"crash_on_incompatible_version"`
}

// LoadConfig parses a project configuration from the provided io.Reader.
//
// The function expects YAML-formatted configuration data that names the
// migrations directory, the incantation file, and the schema dump command.
// Omitted keys receive defaults; crash_on_incompatible_version defaults to
// true and an explicit false is kept as written.
//
// Parameters:
//   - r: An io.Reader containing YAML configuration data
//
// Returns:
//   - *Config: Successfully parsed configuration
//   - error: Any parsing errors encountered
//
// Example:
//
//	import (
//		"strings"
//		"github.com/stagehand/stagehand/pkg/config"
//	)
//
//	yamlData := `
//	migrations_dir: db/migrations
//	schema_dump_command: pg_dump --schema-only "$DATABASE_URL"
//	`
//
//	cfg, err := config.LoadConfig(strings.NewReader(yamlData))
//	if err != nil {
//		panic(err)
//	}
//
//	fmt.Printf("Migrations dir: %s\n", cfg.MigrationsDir)
func LoadConfig(r io.Reader) (*Config, error) {
	// Seeded before decoding; a bool cannot be back-filled afterwards
	// without losing an explicit false.
	cfg := Config{CrashOnIncompatibleVersion: true}
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal project config")
	}

	// Set default paths if not specified
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = consts.DefaultMigrationsDir
	}
	if cfg.IncantationPath == "" {
		cfg.IncantationPath = consts.DefaultIncantationPath
	}

	return &cfg, nil
}

// LoadConfigFile loads a project configuration from the specified file path.
// This is a convenience function that opens the file and calls LoadConfig.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("stagehand.yaml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
//
//	fmt.Printf("Migrations dir: %s\n", cfg.MigrationsDir)
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return LoadConfig(f)
}
