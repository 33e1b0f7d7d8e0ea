package consts

import (
	"fmt"
	"os"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ControlSchema is the PostgreSQL schema holding the migration registry,
	// the audit ledger, and the connection tracking table.
	ControlSchema = "stagehand"

	// ShimSchemaFormat is the printf format for the per-revision staging
	// schema; the argument is the revision number.
	ShimSchemaFormat = "stagehand_shim_%d"

	// TempDatabaseFormat is the printf format for disposable databases used
	// to replay revisions for schema snapshots; the argument is a random
	// suffix.
	TempDatabaseFormat = "stagehand_tmp_%s"

	// ConfigFile is the default project configuration file name.
	ConfigFile = "stagehand.yaml"

	// DefaultMigrationsDir is the directory migration documents live in when
	// the configuration does not specify one.
	DefaultMigrationsDir = "migrations"

	// DefaultIncantationPath is the SQL file replayed into temp databases
	// ahead of any revisions when the configuration does not specify one.
	DefaultIncantationPath = "migrations/incantation.sql"

	// MigrationFileFormat is the printf format for migration documents;
	// arguments are the revision number and a slug of the message.
	MigrationFileFormat = "%d-%s.yml"

	// SnapshotFileFormat is the printf format for the schema snapshot that
	// accompanies each migration document; the argument is the revision
	// number.
	SnapshotFileFormat = "%d-schema.sql"

	// EnvDatabaseURL is the environment variable consulted for the target
	// database when --url is not given, and the variable exported to the
	// schema dump command.
	EnvDatabaseURL = "DATABASE_URL"

	// EnvConfigFile is the environment variable consulted for the project
	// configuration path when --config is not given.
	EnvConfigFile = "STAGEHAND_CONFIG"
)

// ShimSchemaName returns the staging schema name for a revision.
func ShimSchemaName(revision int) string {
	return fmt.Sprintf(ShimSchemaFormat, revision)
}
