package project

import (
	_ "embed"
	"os"
	"path/filepath"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/config"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/migrator"
)

var (
	//go:embed embed/stagehand.yaml
	defaultConfig []byte

	//go:embed embed/incantation.sql
	defaultIncantation []byte

	image = fstest.MapFS{
		"migrations":                 {Mode: os.ModeDir | 0o755},
		"migrations/incantation.sql": {Data: defaultIncantation},
		"stagehand.yaml":             {Data: defaultConfig},
	}
)

// Project is a directory holding a stagehand configuration file and a
// migrations directory of revision documents and schema snapshots.
type Project struct {
	root   string
	config *config.Config
}

// New creates a new Project instance rooted at the given directory.
//
// Example:
//
//	proj := project.New("/path/to/my/project")
//	if err := proj.Initialize(); err != nil {
//		log.Fatal(err)
//	}
//
//	revisions, err := proj.RevisionList()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Loaded %d revisions\n", revisions.Len())
func New(path string) *Project {
	return &Project{root: path}
}

// NewWithConfig creates a Project rooted at the given directory using an
// already loaded configuration instead of reading stagehand.yaml from the
// root. Used when the config file lives at a non-default path.
func NewWithConfig(path string, cfg *config.Config) *Project {
	return &Project{root: path, config: cfg}
}

// Root returns the project root directory.
func (p *Project) Root() string {
	return p.root
}

// Initialize sets up the project directory structure and configuration.
// This method is idempotent - it will only create missing files and
// directories, preserving any existing content. It creates stagehand.yaml,
// the migrations directory, and a starter incantation file.
//
// Example:
//
//	proj := project.New("/path/to/my/project")
//	if err := proj.Initialize(); err != nil {
//		log.Fatal("Failed to initialize project:", err)
//	}
func (p *Project) Initialize() error {
	if err := p.ensureDirectory(); err != nil {
		return err
	}

	// Walk the embedded image and create missing files/directories
	for path, entry := range image {
		fullPath := filepath.Join(p.root, path)

		// Check if the entry already exists
		if _, err := os.Stat(fullPath); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to stat %s", fullPath)
		}

		if entry.Mode.IsDir() {
			if err := os.MkdirAll(fullPath, entry.Mode.Perm()); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", fullPath)
			}

			continue
		}

		// Ensure parent directory exists
		parentDir := filepath.Dir(fullPath)
		if err := os.MkdirAll(parentDir, consts.ModeDir); err != nil {
			return errors.Wrapf(err, "failed to create parent directory %s", parentDir)
		}

		if err := os.WriteFile(fullPath, entry.Data, consts.ModeFile); err != nil {
			return errors.Wrapf(err, "failed to write file %s", fullPath)
		}
	}

	// A pre-existing config may point somewhere other than the image's
	// default layout; make sure its directories exist too.
	cfg, err := p.Config()
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.MigrationsDir, filepath.Dir(cfg.IncantationPath)} {
		fullPath := filepath.Join(p.root, dir)
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			if err := os.MkdirAll(fullPath, consts.ModeDir); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", fullPath)
			}
		}
	}

	return nil
}

// Config loads and caches the project configuration from stagehand.yaml in
// the project root.
func (p *Project) Config() (*config.Config, error) {
	if p.config != nil {
		return p.config, nil
	}

	cfg, err := config.LoadConfigFile(filepath.Join(p.root, consts.ConfigFile))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", consts.ConfigFile)
	}

	p.config = cfg
	return cfg, nil
}

// RevisionList loads every migration document from the configured
// migrations directory, paired with its schema snapshot when present.
//
// Example:
//
//	revisions, err := proj.RevisionList()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, rev := range revisions.Ordered() {
//		fmt.Printf("revision %d: %s\n", rev.Number, rev.Source)
//	}
func (p *Project) RevisionList() (*migrator.RevisionList, error) {
	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(p.root, cfg.MigrationsDir)
	list, err := migrator.ParseRevisionDir(os.DirFS(dir))
	return list, errors.Wrapf(err, "failed to load migrations from %s", dir)
}

// IncantationSQL reads the configured incantation file. A missing file
// returns empty text, so projects without pre-existing objects need no
// placeholder.
func (p *Project) IncantationSQL() (string, error) {
	cfg, err := p.Config()
	if err != nil {
		return "", err
	}

	path := filepath.Join(p.root, cfg.IncantationPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read incantation file %s", path)
	}

	return string(data), nil
}

func (p *Project) ensureDirectory() error {
	dir, err := os.Stat(p.root)
	if os.IsNotExist(err) {
		return errors.Wrapf(os.MkdirAll(p.root, consts.ModeDir), "failed to create project directory %s", p.root)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to stat dir: %s", p.root)
	}

	if !dir.IsDir() {
		return errors.Errorf("%s is not a directory", p.root)
	}

	return nil
}
