package migrator

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
)

type (
	// Revision pairs a migration document with the schema snapshot taken
	// after the revision was authored. Revisions come from two places: the
	// migrations directory (numbered files on disk) and the control schema's
	// registry (rows persisted when a revision was first applied). Both
	// carry the full document text, so hashes and phase enumerations derive
	// identically regardless of source.
	//
	// Texts are read eagerly at construction: a missing or unreadable file
	// surfaces immediately with its name rather than on first use.
	Revision struct {
		// Number is the revision's position in the dense 1..N sequence.
		Number int

		// Source identifies where the revision came from, either a file
		// path or a marker describing the database row. Used in error
		// messages and status output.
		Source string

		// Deleted marks registry rows that have been superseded. Always
		// false for file-backed revisions.
		Deleted bool

		migrationText string
		schemaText    string
	}

	// RevisionPhaseEntry is a PhaseEntry plus the revision that produced it,
	// as yielded when enumerating across a whole RevisionList.
	RevisionPhaseEntry struct {
		Index    PhaseIndex
		Revision *Revision
		Change   *Change
		Phase    Phase
	}

	// RevisionList is the ordered, dense collection of a project's
	// revisions. Construction fails if the numbers do not form exactly
	// 1..N, because a gap or duplicate means phase order is ambiguous.
	RevisionList struct {
		revisions []*Revision
	}
)

// revisionNumber extracts the leading number from a migration filename like
// "3-add-status.yml".
func revisionNumber(filename string) (int, error) {
	base := path.Base(filename)
	prefix, _, found := strings.Cut(base, "-")
	if !found {
		return 0, errors.Errorf("invalid migration filename %q: expected <number>-<name>.yml", base)
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 1 {
		return 0, errors.Errorf("invalid migration filename %q: revision number must be a positive integer", base)
	}
	return n, nil
}

// LoadRevisionFile loads a file-backed revision. The revision number comes
// from the filename prefix, the document text from the file itself, and the
// snapshot text from the sibling <number>-schema.sql. A missing snapshot
// loads as empty text so that a freshly authored revision can exist before
// its snapshot is generated.
func LoadRevisionFile(fsys fs.FS, filename string) (*Revision, error) {
	number, err := revisionNumber(filename)
	if err != nil {
		return nil, err
	}

	migrationText, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read migration: %s", filename)
	}

	schemaFile := path.Join(path.Dir(filename), fmt.Sprintf(consts.SnapshotFileFormat, number))
	schemaText, err := fs.ReadFile(fsys, schemaFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "failed to read schema snapshot: %s", schemaFile)
		}
		schemaText = nil
	}

	return &Revision{
		Number:        number,
		Source:        filename,
		migrationText: string(migrationText),
		schemaText:    string(schemaText),
	}, nil
}

// NewDBRevision builds a revision from a registry row.
func NewDBRevision(number int, migrationText, schemaText string, deleted bool) *Revision {
	return &Revision{
		Number:        number,
		Source:        fmt.Sprintf("<database revision %d, hash=%s>", number, MigrationHash(migrationText).Short()),
		Deleted:       deleted,
		migrationText: migrationText,
		schemaText:    schemaText,
	}
}

// MigrationText returns the raw document text as registered or loaded.
func (r *Revision) MigrationText() string { return r.migrationText }

// SchemaText returns the raw schema snapshot text. Empty when the snapshot
// has not been generated yet.
func (r *Revision) SchemaText() string { return r.schemaText }

// MigrationHash returns the content identity of the document text.
func (r *Revision) MigrationHash() Hash {
	return MigrationHash(r.migrationText)
}

// SchemaHash returns the content identity of the snapshot text.
func (r *Revision) SchemaHash() Hash {
	return SchemaHash(r.schemaText)
}

// HasSnapshot reports whether the revision carries a schema snapshot.
func (r *Revision) HasSnapshot() bool {
	return r.schemaText != ""
}

// FirstIndex returns the index of the revision's first phase position, with
// both content hashes filled in.
func (r *Revision) FirstIndex() PhaseIndex {
	return PhaseIndex{
		Revision:      r.Number,
		MigrationHash: r.MigrationHash(),
		SchemaHash:    r.SchemaHash(),
		PreDeploy:     true,
		Change:        0,
		Phase:         0,
	}
}

// Document parses the revision's migration document. Parse and validation
// errors carry the revision's source name.
func (r *Revision) Document() (*Migration, error) {
	m, err := ParseMigration(strings.NewReader(r.migrationText))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", r.Source)
	}
	return m, nil
}

// Phases enumerates every phase of the revision in execution order.
func (r *Revision) Phases() ([]PhaseEntry, error) {
	doc, err := r.Document()
	if err != nil {
		return nil, err
	}
	return doc.Phases(r.FirstIndex()), nil
}

// GetPhases enumerates the revision's phases that fall inside the slice.
// Revisions wholly outside the slice's revision bounds skip document
// parsing entirely.
func (r *Revision) GetPhases(slice PhaseSlice) ([]PhaseEntry, error) {
	if !slice.ContainsRevision(r.Number) {
		return nil, nil
	}

	all, err := r.Phases()
	if err != nil {
		return nil, err
	}

	var entries []PhaseEntry
	for _, entry := range all {
		if slice.Contains(entry.Index) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// LastIndex returns the index of the revision's final phase, or nil when
// the document declares no changes.
func (r *Revision) LastIndex() (*PhaseIndex, error) {
	entries, err := r.Phases()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1].Index
	return &last, nil
}

// NewRevisionList builds the ordered collection, sorting by number and
// verifying the numbers form exactly 1..N.
func NewRevisionList(revisions []*Revision) (*RevisionList, error) {
	ordered := make([]*Revision, len(revisions))
	copy(ordered, revisions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	for i, rev := range ordered {
		want := i + 1
		switch {
		case rev.Number == want:
		case i > 0 && rev.Number == ordered[i-1].Number:
			return nil, errors.Errorf(
				"duplicate revision number %d: %s and %s",
				rev.Number, ordered[i-1].Source, rev.Source,
			)
		default:
			return nil, errors.Errorf(
				"revision numbers must be dense starting at 1: expected %d, found %d (%s)",
				want, rev.Number, rev.Source,
			)
		}
	}

	return &RevisionList{revisions: ordered}, nil
}

// ParseRevisionDir loads every migration document (*.yml or *.yaml) in the
// filesystem and returns them as a RevisionList. Snapshot files are loaded
// through their paired documents, not directly.
func ParseRevisionDir(fsys fs.FS) (*RevisionList, error) {
	matches, err := fs.Glob(fsys, "*.yml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migration files")
	}
	yamlMatches, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migration files")
	}
	matches = append(matches, yamlMatches...)

	revisions := make([]*Revision, 0, len(matches))
	for _, filename := range matches {
		rev, err := LoadRevisionFile(fsys, filename)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}

	return NewRevisionList(revisions)
}

// Ordered returns the revisions in ascending number order.
func (l *RevisionList) Ordered() []*Revision {
	return l.revisions
}

// Get returns the revision with the given number, or nil.
func (l *RevisionList) Get(number int) *Revision {
	if number < 1 || number > len(l.revisions) {
		return nil
	}
	return l.revisions[number-1]
}

// Len returns the number of revisions.
func (l *RevisionList) Len() int {
	return len(l.revisions)
}

// NextNumber returns the number the next authored revision should take.
func (l *RevisionList) NextNumber() int {
	return len(l.revisions) + 1
}

// GetPhases enumerates, in global phase order, every phase across all
// revisions that falls inside the slice.
func (l *RevisionList) GetPhases(slice PhaseSlice) ([]RevisionPhaseEntry, error) {
	var entries []RevisionPhaseEntry
	for _, rev := range l.revisions {
		revEntries, err := rev.GetPhases(slice)
		if err != nil {
			return nil, err
		}
		for _, entry := range revEntries {
			entries = append(entries, RevisionPhaseEntry{
				Index:    entry.Index,
				Revision: rev,
				Change:   entry.Change,
				Phase:    entry.Phase,
			})
		}
	}
	return entries, nil
}
