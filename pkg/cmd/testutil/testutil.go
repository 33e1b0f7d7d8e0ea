package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stagehand/stagehand/pkg/config"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/project"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// ProjectFixture is an initialized stagehand project in an isolated temp
// directory.
type ProjectFixture struct {
	Dir     string
	Config  *config.Config
	Project *project.Project
	t       *testing.T
}

// TestProject creates a temp directory with an initialized stagehand project.
func TestProject(t *testing.T) *ProjectFixture {
	t.Helper()

	tmpDir := t.TempDir()

	proj := project.New(tmpDir)
	require.NoError(t, proj.Initialize(), "Failed to initialize test project")

	cfg, err := config.LoadConfigFile(filepath.Join(tmpDir, consts.ConfigFile))
	require.NoError(t, err, "Failed to load config file")

	return &ProjectFixture{
		Dir:     tmpDir,
		Config:  cfg,
		Project: proj,
		t:       t,
	}
}

// WithConfig mutates the fixture's configuration and rewrites stagehand.yaml.
func (p *ProjectFixture) WithConfig(mutate func(*config.Config)) *ProjectFixture {
	p.t.Helper()

	mutate(p.Config)

	data, err := yaml.Marshal(p.Config)
	require.NoError(p.t, err, "Failed to encode config")
	require.NoError(p.t, os.WriteFile(p.ConfigPath(), data, consts.ModeFile), "Failed to write config")
	return p
}

// WithRevision writes a revision document named from number and slug.
func (p *ProjectFixture) WithRevision(number int, slug, document string) *ProjectFixture {
	p.t.Helper()

	path := filepath.Join(p.MigrationsDir(), fmt.Sprintf(consts.MigrationFileFormat, number, slug))
	require.NoError(p.t, os.WriteFile(path, []byte(document), consts.ModeFile), "Failed to write revision file")
	return p
}

// WithSnapshot writes a revision's schema snapshot.
func (p *ProjectFixture) WithSnapshot(number int, sql string) *ProjectFixture {
	p.t.Helper()

	path := filepath.Join(p.MigrationsDir(), fmt.Sprintf(consts.SnapshotFileFormat, number))
	require.NoError(p.t, os.WriteFile(path, []byte(sql), consts.ModeFile), "Failed to write snapshot file")
	return p
}

// WithIncantation replaces the incantation file's content.
func (p *ProjectFixture) WithIncantation(sql string) *ProjectFixture {
	p.t.Helper()

	path := filepath.Join(p.Dir, p.Config.IncantationPath)
	require.NoError(p.t, os.WriteFile(path, []byte(sql), consts.ModeFile), "Failed to write incantation file")
	return p
}

// ConfigPath returns the path to the fixture's stagehand.yaml.
func (p *ProjectFixture) ConfigPath() string {
	return filepath.Join(p.Dir, consts.ConfigFile)
}

// MigrationsDir returns the fixture's migrations directory.
func (p *ProjectFixture) MigrationsDir() string {
	return filepath.Join(p.Dir, p.Config.MigrationsDir)
}
