package migrator

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type (
	// Migration represents a single parsed migration document: a message
	// describing the revision and the changes to run before and after the
	// application deploy that ships code depending on them.
	//
	// Example document:
	//
	//	message: add account status
	//	pre_deploy:
	//	  - add_column:
	//	      table: accounts
	//	      name: status
	//	      type: TEXT
	//	      nullable: false
	//	      backfill: "'active'"
	//	post_deploy:
	//	  - drop_column:
	//	      table: accounts
	//	      name: legacy_state
	Migration struct {
		// Message describes the revision, like a commit subject.
		Message string `yaml:"message"`

		// PreDeploy changes run before the paired application deploy.
		PreDeploy []*Change `yaml:"pre_deploy,omitempty"`

		// PostDeploy changes run after the deploy has fully rolled out.
		PostDeploy []*Change `yaml:"post_deploy,omitempty"`
	}

	// PhaseEntry is one enumerated phase: its position in the global phase
	// order plus the change and phase definitions at that position.
	PhaseEntry struct {
		Index  PhaseIndex
		Change *Change
		Phase  Phase
	}
)

// ParseMigration parses and validates a migration document. Decoding is
// strict: unknown fields are errors, so a misspelled key cannot silently
// drop a revert program. Callers that know the source file should wrap the
// error with its name.
func ParseMigration(r io.Reader) (*Migration, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	m := &Migration{}
	if err := dec.Decode(m); err != nil {
		return nil, errors.Wrap(err, "failed to decode migration document")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the document structure and every change in both stages.
func (m *Migration) Validate() error {
	if m.Message == "" {
		return errors.New("message is required")
	}
	for i, change := range m.PreDeploy {
		if err := change.Validate(); err != nil {
			return errors.Wrapf(err, "pre_deploy change %d", i)
		}
	}
	for i, change := range m.PostDeploy {
		if err := change.Validate(); err != nil {
			return errors.Wrapf(err, "post_deploy change %d", i)
		}
	}
	return nil
}

// Phases enumerates every phase of the document in execution order:
// pre-deploy changes first, then post-deploy changes, each change's phases
// in declaration order. Positions are stamped onto copies of start, so the
// revision number and content hashes flow through to every entry unchanged.
func (m *Migration) Phases(start PhaseIndex) []PhaseEntry {
	var entries []PhaseEntry

	for iChange, change := range m.PreDeploy {
		for iPhase, phase := range change.Phases(start.Revision) {
			index := start
			index.PreDeploy = true
			index.Change = iChange
			index.Phase = iPhase
			entries = append(entries, PhaseEntry{Index: index, Change: change, Phase: phase})
		}
	}
	for iChange, change := range m.PostDeploy {
		for iPhase, phase := range change.Phases(start.Revision) {
			index := start
			index.PreDeploy = false
			index.Change = iChange
			index.Phase = iPhase
			entries = append(entries, PhaseEntry{Index: index, Change: change, Phase: phase})
		}
	}

	return entries
}
