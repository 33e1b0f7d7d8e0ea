package cmd

import (
	"testing"

	"github.com/stagehand/stagehand/pkg/cmd/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand_Structure(t *testing.T) {
	command := status(Version{Version: "test-1.0.0"})

	require.Equal(t, "status", command.Name)
	require.Equal(t, "Show migration status", command.Usage)
	require.NotNil(t, command.Before)
	require.NotNil(t, command.Action)

	var names []string
	for _, flag := range command.Flags {
		names = append(names, flag.Names()[0])
	}
	require.Contains(t, names, "url")
	require.Contains(t, names, "verbose")
}

func TestRevisionLabel(t *testing.T) {
	tests := []struct {
		description string
		slug        string
		document    string
		expected    string
	}{
		{
			description: "message from the document",
			slug:        "create-accounts",
			document:    docCreateAccounts,
			expected:    "create accounts table",
		},
		{
			description: "source file when the document has no message",
			slug:        "no-message",
			document:    "pre_deploy: []\n",
			expected:    "1-no-message.yml",
		},
		{
			description: "source file when the document does not parse",
			slug:        "broken",
			document:    "message: [unclosed\n",
			expected:    "1-broken.yml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			fixture := testutil.TestProject(t).WithRevision(1, tt.slug, tt.document)

			revisions, err := fixture.Project.RevisionList()
			require.NoError(t, err)
			require.Equal(t, tt.expected, revisionLabel(revisions.Get(1)))
		})
	}
}
