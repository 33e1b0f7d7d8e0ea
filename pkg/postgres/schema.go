package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/utils"
)

// ErrAlreadyInstalled is returned by CreateControlSchema when the control
// schema already exists. Installation happens once; hitting this at install
// time means the database was already initialized.
var ErrAlreadyInstalled = errors.New("control schema is already installed")

// controlDDL returns the statements that install the control schema. The
// partial unique index on migration_audit enforces the single-in-flight
// invariant: at most one row may be unfinished or mid-revert across the
// entire ledger, regardless of which process wrote it.
func controlDDL() []string {
	schema := consts.ControlSchema

	return []string{
		fmt.Sprintf(`CREATE SCHEMA %s`, schema),

		fmt.Sprintf(`CREATE TABLE %s.migrations (
  revision INT NOT NULL,
  migration_hash BYTEA NOT NULL,
  schema_hash BYTEA NOT NULL,
  file TEXT NOT NULL,
  is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (revision, migration_hash, schema_hash)
)`, schema),

		fmt.Sprintf(`CREATE UNIQUE INDEX migration_unique_revision ON %s.migrations (revision)
  WHERE NOT is_deleted`, schema),

		fmt.Sprintf(`CREATE TABLE %s.migration_audit (
  id SERIAL PRIMARY KEY,
  revision INT NOT NULL,
  migration_hash BYTEA NOT NULL,
  schema_hash BYTEA NOT NULL,
  pre_deploy BOOL NOT NULL,
  change INT NOT NULL,
  phase INT NOT NULL,
  started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
  finished_at TIMESTAMP WITH TIME ZONE,
  revert_started_at TIMESTAMP WITH TIME ZONE,
  revert_finished_at TIMESTAMP WITH TIME ZONE,
  CHECK (revert_started_at IS NULL OR finished_at IS NOT NULL),
  CHECK (revert_finished_at IS NULL OR revert_started_at IS NOT NULL)
)`, schema),

		fmt.Sprintf(`CREATE UNIQUE INDEX migration_audit_single_in_flight
  ON %s.migration_audit ((1))
  WHERE (finished_at IS NULL OR
         (revert_started_at IS NOT NULL AND revert_finished_at IS NULL))`, schema),

		fmt.Sprintf(`CREATE TABLE %s.connections (
  pid INT NOT NULL PRIMARY KEY,
  revision INT NOT NULL,
  schema_hash BYTEA NOT NULL,
  backend_start TIMESTAMP WITH TIME ZONE NOT NULL
)`, schema),
	}
}

// CreateControlSchema installs the control schema inside a single
// transaction. Returns ErrAlreadyInstalled when the schema exists.
func (c *Client) CreateControlSchema(ctx context.Context) error {
	if err := c.requireNoTx(); err != nil {
		return err
	}

	err := c.Tx(ctx, func(ctx context.Context) error {
		for _, stmt := range controlDDL() {
			if _, err := c.tx.Exec(ctx, stmt); err != nil {
				return errors.Wrap(err, "failed to install control schema")
			}
		}
		return nil
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateSchema {
		return ErrAlreadyInstalled
	}
	return err
}

// IsInstalled reports whether the control schema exists.
func (c *Client) IsInstalled(ctx context.Context) (bool, error) {
	if err := c.requireNoTx(); err != nil {
		return false, err
	}

	var installed bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.schemata WHERE schema_name = $1)`,
		consts.ControlSchema,
	).Scan(&installed)
	if err != nil {
		return false, errors.Wrap(err, "failed to check for control schema")
	}
	return installed, nil
}

// ApplyIncantation executes the site-local SQL preamble, typically loaded
// from the project's incantation file right after install. Empty input is a
// no-op. The text may hold multiple statements.
func (c *Client) ApplyIncantation(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if err := c.requireNoTx(); err != nil {
		return err
	}

	if _, err := c.pool.Exec(ctx, sql); err != nil {
		return errors.Wrap(err, "failed to apply incantation")
	}
	return nil
}

// CreateShimSchema creates the revision's staging schema. Idempotent, so a
// resumed run can call it again without error.
func (c *Client) CreateShimSchema(ctx context.Context, revision int) error {
	if err := c.requireNoTx(); err != nil {
		return err
	}

	name := consts.ShimSchemaName(revision)
	stmt := utils.NewSQLBuilder().Create("SCHEMA").IfNotExists().Name(name).String()
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "failed to create shim schema %s", name)
	}
	return nil
}

// DropShimSchema drops the revision's staging schema once its phases are
// done with it. There is no CASCADE: a shim still holding staged objects
// means a promotion phase never ran, and the drop fails.
func (c *Client) DropShimSchema(ctx context.Context, revision int) error {
	if err := c.requireNoTx(); err != nil {
		return err
	}

	name := consts.ShimSchemaName(revision)
	stmt := utils.NewSQLBuilder().Drop("SCHEMA").IfExists().Name(name).String()
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "failed to drop shim schema %s", name)
	}
	return nil
}
