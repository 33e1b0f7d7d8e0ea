package migrator_test

import (
	"sort"
	"testing"

	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stretchr/testify/require"
)

func index(revision int, preDeploy bool, change, phase int) migrator.PhaseIndex {
	return migrator.PhaseIndex{
		Revision:  revision,
		PreDeploy: preDeploy,
		Change:    change,
		Phase:     phase,
	}
}

func TestPhaseIndexCompare(t *testing.T) {
	// Listed in strictly ascending order; every adjacent pair must compare
	// accordingly and every index must equal itself.
	ordered := []migrator.PhaseIndex{
		index(1, true, 0, 0),
		index(1, true, 0, 1),
		index(1, true, 1, 0),
		index(1, false, 0, 0),
		index(1, false, 2, 3),
		index(2, true, 0, 0),
		index(2, false, 0, 0),
		index(3, true, 0, 2),
	}

	for i, a := range ordered {
		require.Equal(t, 0, a.Compare(a), "index %d should equal itself", i)
		for j := i + 1; j < len(ordered); j++ {
			b := ordered[j]
			require.Equal(t, -1, a.Compare(b), "%s should sort before %s", a, b)
			require.Equal(t, 1, b.Compare(a), "%s should sort after %s", b, a)
			require.True(t, a.Before(b))
			require.True(t, b.After(a))
		}
	}
}

func TestPhaseIndexCompareIgnoresHashes(t *testing.T) {
	a := index(2, true, 1, 0)
	b := a
	b.MigrationHash = migrator.MigrationHash("edited")

	require.Equal(t, 0, a.Compare(b))
	require.False(t, a.Before(b))
	require.False(t, a.After(b))
}

func TestPhaseIndexEqual(t *testing.T) {
	a := index(2, true, 1, 0)
	a.MigrationHash = migrator.MigrationHash("doc")
	a.SchemaHash = migrator.SchemaHash("schema")

	t.Run("equal_when_all_fields_match", func(t *testing.T) {
		require.True(t, a.Equal(a))
	})

	t.Run("hash_drift_breaks_equality", func(t *testing.T) {
		b := a
		b.MigrationHash = migrator.MigrationHash("doc v2")
		require.False(t, a.Equal(b))
		require.Equal(t, 0, a.Compare(b), "drifted index still occupies the same position")
	})

	t.Run("position_breaks_equality", func(t *testing.T) {
		b := a
		b.Phase = 1
		require.False(t, a.Equal(b))
	})
}

func TestPhaseIndexSortStability(t *testing.T) {
	shuffled := []migrator.PhaseIndex{
		index(2, false, 0, 0),
		index(1, false, 1, 0),
		index(2, true, 0, 1),
		index(1, true, 0, 0),
		index(1, false, 0, 2),
	}

	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i].Before(shuffled[j]) })

	want := []migrator.PhaseIndex{
		index(1, true, 0, 0),
		index(1, false, 0, 2),
		index(1, false, 1, 0),
		index(2, true, 0, 1),
		index(2, false, 0, 0),
	}
	require.Equal(t, want, shuffled)
}

func TestPhaseIndexHelpers(t *testing.T) {
	i := index(3, false, 2, 4)
	i.MigrationHash = migrator.MigrationHash("doc")

	first := i.FirstChange()
	require.True(t, first.IsFirstForRevision())
	require.Equal(t, 3, first.Revision)
	require.Equal(t, i.MigrationHash, first.MigrationHash, "hashes carry through")

	firstPhase := i.FirstPhase()
	require.Equal(t, 0, firstPhase.Phase)
	require.Equal(t, 2, firstPhase.Change)
	require.False(t, firstPhase.PreDeploy)

	require.False(t, i.IsFirstForRevision())
	require.Equal(t, "3.post.2.4", i.String())
	require.Equal(t, "3.pre.0.0", first.String())
}

func TestPhaseSliceContains(t *testing.T) {
	start := index(2, true, 1, 0)
	end := index(3, false, 0, 0)

	tests := []struct {
		name     string
		slice    migrator.PhaseSlice
		index    migrator.PhaseIndex
		expected bool
	}{
		{
			name:     "zero_slice_contains_everything",
			slice:    migrator.PhaseSlice{},
			index:    index(7, false, 3, 9),
			expected: true,
		},
		{
			name:     "inside_both_bounds",
			slice:    migrator.PhaseSlice{Start: &start, StartInclusive: true, End: &end},
			index:    index(2, false, 0, 0),
			expected: true,
		},
		{
			name:     "before_start",
			slice:    migrator.PhaseSlice{Start: &start, StartInclusive: true, End: &end},
			index:    index(2, true, 0, 1),
			expected: false,
		},
		{
			name:     "after_end",
			slice:    migrator.PhaseSlice{Start: &start, StartInclusive: true, End: &end},
			index:    index(3, false, 0, 1),
			expected: false,
		},
		{
			name:     "start_inclusive_includes_boundary",
			slice:    migrator.PhaseSlice{Start: &start, StartInclusive: true},
			index:    index(2, true, 1, 0),
			expected: true,
		},
		{
			name:     "start_exclusive_excludes_boundary",
			slice:    migrator.PhaseSlice{Start: &start},
			index:    index(2, true, 1, 0),
			expected: false,
		},
		{
			name:     "end_exclusive_excludes_boundary",
			slice:    migrator.PhaseSlice{End: &end},
			index:    index(3, false, 0, 0),
			expected: false,
		},
		{
			name:     "end_inclusive_includes_boundary",
			slice:    migrator.PhaseSlice{End: &end, EndInclusive: true},
			index:    index(3, false, 0, 0),
			expected: true,
		},
		{
			name:  "boundary_compares_positionally_despite_hash_drift",
			slice: migrator.PhaseSlice{End: &end},
			index: func() migrator.PhaseIndex {
				i := index(3, false, 0, 0)
				i.SchemaHash = migrator.SchemaHash("different")
				return i
			}(),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.slice.Contains(tt.index))
		})
	}
}

func TestPhaseSliceContainsRevision(t *testing.T) {
	start := index(2, true, 0, 0)
	end := index(4, true, 0, 0)
	slice := migrator.PhaseSlice{Start: &start, StartInclusive: true, End: &end}

	require.False(t, slice.ContainsRevision(1))
	require.True(t, slice.ContainsRevision(2))
	require.True(t, slice.ContainsRevision(3))
	require.True(t, slice.ContainsRevision(4), "end revision may still hold phases inside the slice")
	require.False(t, slice.ContainsRevision(5))

	require.True(t, migrator.PhaseSlice{}.ContainsRevision(1))
}

func TestParseTarget(t *testing.T) {
	phases := []migrator.PhaseIndex{
		index(1, true, 0, 0),
		index(1, false, 0, 0),
		index(2, true, 0, 0),
		index(2, true, 0, 1),
		index(2, true, 1, 0),
		index(2, false, 0, 0),
		index(3, true, 0, 0),
	}

	contained := func(s migrator.PhaseSlice) []string {
		var out []string
		for _, p := range phases {
			if s.Contains(p) {
				out = append(out, p.String())
			}
		}
		return out
	}

	tests := []struct {
		name     string
		spec     string
		expected []string
	}{
		{
			name:     "revision_target_covers_whole_revision",
			spec:     "2",
			expected: []string{"1.pre.0.0", "1.post.0.0", "2.pre.0.0", "2.pre.0.1", "2.pre.1.0", "2.post.0.0"},
		},
		{
			name:     "zero_revision_is_empty",
			spec:     "0",
			expected: nil,
		},
		{
			name:     "pre_stage_target_stops_before_post",
			spec:     "2.pre",
			expected: []string{"1.pre.0.0", "1.post.0.0", "2.pre.0.0", "2.pre.0.1", "2.pre.1.0"},
		},
		{
			name:     "post_stage_target_covers_revision",
			spec:     "2.post",
			expected: []string{"1.pre.0.0", "1.post.0.0", "2.pre.0.0", "2.pre.0.1", "2.pre.1.0", "2.post.0.0"},
		},
		{
			name:     "change_target_covers_its_phases",
			spec:     "2.pre.0",
			expected: []string{"1.pre.0.0", "1.post.0.0", "2.pre.0.0", "2.pre.0.1"},
		},
		{
			name:     "phase_target_is_inclusive",
			spec:     "2.pre.0.1",
			expected: []string{"1.pre.0.0", "1.post.0.0", "2.pre.0.0", "2.pre.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slice, err := migrator.ParseTarget(tt.spec)
			require.NoError(t, err)
			require.Equal(t, tt.expected, contained(slice))
		})
	}

	t.Run("rejects_malformed_specs", func(t *testing.T) {
		for _, spec := range []string{"", "x", "-1", "2.mid", "2.pre.x", "2.pre.0.x", "2.pre.0.0.0"} {
			_, err := migrator.ParseTarget(spec)
			require.Error(t, err, "spec %q should be rejected", spec)
		}
	})
}
