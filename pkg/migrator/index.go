package migrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type (
	// PhaseIndex identifies a single phase of a single change within a
	// revision's migration document. Together with the document's content
	// hashes it pins down exactly which bytes produced the phase, so audit
	// rows written against one version of a file never match an edited one.
	//
	// Indexes are ordered by position only: revision first, then stage
	// (pre-deploy before post-deploy), then change, then phase. The hashes
	// participate in equality but not in ordering.
	PhaseIndex struct {
		// Revision is the 1-based revision number the phase belongs to.
		Revision int

		// MigrationHash is the content identity of the revision's migration
		// document.
		MigrationHash Hash

		// SchemaHash is the content identity of the revision's schema
		// snapshot.
		SchemaHash Hash

		// PreDeploy is true for phases in the pre-deploy stage and false for
		// the post-deploy stage.
		PreDeploy bool

		// Change is the 0-based position of the change within its stage.
		Change int

		// Phase is the 0-based position of the phase within its change.
		Phase int
	}

	// PhaseSlice is a half-open or closed range over the phase order. A nil
	// bound is unbounded on that side, so the zero PhaseSlice contains every
	// index. Bounds compare positionally; hashes are ignored.
	PhaseSlice struct {
		Start          *PhaseIndex
		StartInclusive bool
		End            *PhaseIndex
		EndInclusive   bool
	}
)

// stageRank orders the pre-deploy stage before the post-deploy stage.
func (i PhaseIndex) stageRank() int {
	if i.PreDeploy {
		return 0
	}
	return 1
}

// Compare returns -1, 0, or +1 by position: revision, then stage, then
// change, then phase. Content hashes do not participate, so two indexes for
// the same position in different document versions compare equal here; use
// Equal to detect that drift.
func (i PhaseIndex) Compare(other PhaseIndex) int {
	pairs := [4][2]int{
		{i.Revision, other.Revision},
		{i.stageRank(), other.stageRank()},
		{i.Change, other.Change},
		{i.Phase, other.Phase},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// Before reports whether i is positioned strictly before other.
func (i PhaseIndex) Before(other PhaseIndex) bool {
	return i.Compare(other) < 0
}

// After reports whether i is positioned strictly after other.
func (i PhaseIndex) After(other PhaseIndex) bool {
	return i.Compare(other) > 0
}

// Equal reports whether all six fields match, hashes included. An audit row
// only corresponds to a phase if the documents that produced them are
// byte-identical.
func (i PhaseIndex) Equal(other PhaseIndex) bool {
	return i == other
}

// FirstChange returns the index of the revision's very first phase,
// preserving the revision number and hashes.
func (i PhaseIndex) FirstChange() PhaseIndex {
	i.PreDeploy = true
	i.Change = 0
	i.Phase = 0
	return i
}

// FirstPhase returns the index of the first phase of the current change.
func (i PhaseIndex) FirstPhase() PhaseIndex {
	i.Phase = 0
	return i
}

// IsFirstForRevision reports whether this is the revision's first phase.
func (i PhaseIndex) IsFirstForRevision() bool {
	return i.PreDeploy && i.Change == 0 && i.Phase == 0
}

// Stage returns "pre" or "post".
func (i PhaseIndex) Stage() string {
	if i.PreDeploy {
		return "pre"
	}
	return "post"
}

// String renders the position as "revision.stage.change.phase", e.g.
// "3.pre.0.1". Hashes are not included.
func (i PhaseIndex) String() string {
	return fmt.Sprintf("%d.%s.%d.%d", i.Revision, i.Stage(), i.Change, i.Phase)
}

// Contains reports whether index falls inside the slice. Comparison is
// positional; an exclusive bound excludes the exact position.
func (s PhaseSlice) Contains(index PhaseIndex) bool {
	if s.Start != nil {
		c := s.Start.Compare(index)
		if c > 0 || (c == 0 && !s.StartInclusive) {
			return false
		}
	}
	if s.End != nil {
		c := s.End.Compare(index)
		if c < 0 || (c == 0 && !s.EndInclusive) {
			return false
		}
	}
	return true
}

// ContainsRevision reports whether any phase of the revision could fall
// inside the slice, letting callers skip whole revisions without
// enumerating their phases.
func (s PhaseSlice) ContainsRevision(revision int) bool {
	if s.Start != nil && s.Start.Revision > revision {
		return false
	}
	if s.End != nil && s.End.Revision < revision {
		return false
	}
	return true
}

// ParseTarget parses a target position spec from the command line into the
// slice of phases at or before that position. Specs name a position at one
// of four granularities, and coarser specs cover everything the named unit
// contains:
//
//	"3"          all phases through the end of revision 3
//	"3.pre"      all phases through the end of revision 3's pre-deploy stage
//	"3.pre.2"    all phases through the end of change 2 in that stage
//	"3.pre.2.1"  all phases through that exact phase
//
// "0" names the empty range before revision 1. Applying a target slice means
// running the phases it contains; reverting to it means undoing the applied
// phases it does not contain.
func ParseTarget(spec string) (PhaseSlice, error) {
	parts := strings.Split(spec, ".")
	if len(parts) > 4 {
		return PhaseSlice{}, errors.Errorf("invalid target %q: expected revision[.stage[.change[.phase]]]", spec)
	}

	revision, err := strconv.Atoi(parts[0])
	if err != nil || revision < 0 {
		return PhaseSlice{}, errors.Errorf("invalid target %q: revision must be a non-negative integer", spec)
	}

	// Revision-only specs end before the next revision begins.
	if len(parts) == 1 {
		return PhaseSlice{
			End: &PhaseIndex{Revision: revision + 1, PreDeploy: true},
		}, nil
	}

	var preDeploy bool
	switch parts[1] {
	case "pre":
		preDeploy = true
	case "post":
		preDeploy = false
	default:
		return PhaseSlice{}, errors.Errorf("invalid target %q: stage must be pre or post", spec)
	}

	// Stage specs end where the next stage (or revision) begins.
	if len(parts) == 2 {
		end := PhaseIndex{Revision: revision, PreDeploy: false}
		if !preDeploy {
			end = PhaseIndex{Revision: revision + 1, PreDeploy: true}
		}
		return PhaseSlice{End: &end}, nil
	}

	change, err := strconv.Atoi(parts[2])
	if err != nil || change < 0 {
		return PhaseSlice{}, errors.Errorf("invalid target %q: change must be a non-negative integer", spec)
	}

	// Change specs end where the next change begins.
	if len(parts) == 3 {
		return PhaseSlice{
			End: &PhaseIndex{Revision: revision, PreDeploy: preDeploy, Change: change + 1},
		}, nil
	}

	phase, err := strconv.Atoi(parts[3])
	if err != nil || phase < 0 {
		return PhaseSlice{}, errors.Errorf("invalid target %q: phase must be a non-negative integer", spec)
	}

	return PhaseSlice{
		End:          &PhaseIndex{Revision: revision, PreDeploy: preDeploy, Change: change, Phase: phase},
		EndInclusive: true,
	}, nil
}
