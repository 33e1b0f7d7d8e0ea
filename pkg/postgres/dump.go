package postgres

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
)

// RunSchemaDump runs the configured schema dump command with DATABASE_URL
// pointing at databaseURL and returns its stdout, the schema snapshot text.
// The command is a shell line, typically some variant of
// "pg_dump --schema-only --no-owner".
func RunSchemaDump(ctx context.Context, command, databaseURL string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("schema_dump_command is not configured")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), consts.EnvDatabaseURL+"="+databaseURL)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", errors.Wrapf(err, "schema dump command failed: %s", msg)
		}
		return "", errors.Wrap(err, "schema dump command failed")
	}
	return stdout.String(), nil
}
