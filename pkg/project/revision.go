package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"gopkg.in/yaml.v3"
)

// revisionSkeleton is appended to the message line of every authored
// revision document.
const revisionSkeleton = `
# Changes staged ahead of the application deploy. Each change expands to
# ordered phases recorded individually in the audit ledger.
pre_deploy: []
#  - add_column:
#      table: accounts
#      name: status
#      type: TEXT
#      backfill: "'active'"

# Changes held until the deploy has fully rolled out.
post_deploy: []
#  - drop_column:
#      table: accounts
#      name: legacy_state
`

// RevisionFiles names the files belonging to a newly authored revision. The
// migration document exists once CreateRevision returns; the snapshot path
// is where the revision command writes the schema dump afterwards.
type RevisionFiles struct {
	Number        int
	MigrationPath string
	SnapshotPath  string
}

// CreateRevision writes the skeleton migration document for the project's
// next revision number, named after a slug of the message.
//
// Example:
//
//	files, err := proj.CreateRevision("add account status")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// files.MigrationPath is something like migrations/3-add-account-status.yml
//	fmt.Printf("Created revision %d at %s\n", files.Number, files.MigrationPath)
func (p *Project) CreateRevision(message string) (*RevisionFiles, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("revision message is required")
	}

	revisions, err := p.RevisionList()
	if err != nil {
		return nil, err
	}

	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}

	// yaml handles quoting for messages with special characters
	header, err := yaml.Marshal(map[string]string{"message": message})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode revision message")
	}

	number := revisions.NextNumber()
	dir := filepath.Join(p.root, cfg.MigrationsDir)
	files := &RevisionFiles{
		Number:        number,
		MigrationPath: filepath.Join(dir, fmt.Sprintf(consts.MigrationFileFormat, number, slugify(message))),
		SnapshotPath:  filepath.Join(dir, fmt.Sprintf(consts.SnapshotFileFormat, number)),
	}

	document := append(header, []byte(revisionSkeleton)...)
	if err := os.WriteFile(files.MigrationPath, document, consts.ModeFile); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", files.MigrationPath)
	}

	return files, nil
}

// slugify lowercases the message and collapses every run of
// non-alphanumeric characters into a single dash.
func slugify(message string) string {
	var b strings.Builder
	dash := true
	for _, r := range strings.ToLower(message) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "revision"
	}
	return slug
}
