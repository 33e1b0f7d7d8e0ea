package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/migrator"
)

// Sentinel errors for ledger state transitions.
var (
	// ErrPhaseInFlight is returned when starting a phase (or a revert)
	// while another audit row is already in flight anywhere in the ledger.
	ErrPhaseInFlight = errors.New("another phase is in flight")

	// ErrStaleAudit is returned when a conditional transition matches no
	// row: the audit row was already moved past that state.
	ErrStaleAudit = errors.New("audit row already transitioned")

	// ErrAuditNotFound is returned by FindAudit when no row matches the
	// index.
	ErrAuditNotFound = errors.New("no audit row for phase")
)

const auditColumns = `id, started_at, finished_at, revert_started_at, revert_finished_at,
	revision, migration_hash, schema_hash, pre_deploy, change, phase`

var (
	startPhaseSQL = fmt.Sprintf(`INSERT INTO %s.migration_audit
	(revision, migration_hash, schema_hash, pre_deploy, change, phase)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING %s`, consts.ControlSchema, auditColumns)

	finishPhaseSQL = fmt.Sprintf(`UPDATE %s.migration_audit
SET finished_at = now()
WHERE id = $1 AND finished_at IS NULL
RETURNING %s`, consts.ControlSchema, auditColumns)

	startRevertSQL = fmt.Sprintf(`UPDATE %s.migration_audit
SET revert_started_at = now()
WHERE id = $1 AND revert_started_at IS NULL
RETURNING %s`, consts.ControlSchema, auditColumns)

	finishRevertSQL = fmt.Sprintf(`UPDATE %s.migration_audit
SET revert_finished_at = now()
WHERE id = $1 AND revert_finished_at IS NULL
RETURNING %s`, consts.ControlSchema, auditColumns)

	findAuditSQL = fmt.Sprintf(`SELECT %s
FROM %s.migration_audit
WHERE revision = $1
  AND migration_hash = $2
  AND schema_hash = $3
  AND pre_deploy = $4
  AND change = $5
  AND phase = $6
ORDER BY id DESC LIMIT 1`, auditColumns, consts.ControlSchema)

	lastFinishedSQL = fmt.Sprintf(`SELECT %s
FROM %s.migration_audit
WHERE finished_at IS NOT NULL AND revert_finished_at IS NOT NULL
ORDER BY id DESC LIMIT 1`, auditColumns, consts.ControlSchema)
)

// scanAudit reads one audit row, rebuilding the index's hashes from their
// stored bytes.
func scanAudit(row pgx.Row) (*migrator.MigrationAudit, error) {
	var (
		audit        migrator.MigrationAudit
		mHash, sHash []byte
	)

	err := row.Scan(
		&audit.ID, &audit.StartedAt, &audit.FinishedAt, &audit.RevertStartedAt, &audit.RevertFinishedAt,
		&audit.Index.Revision, &mHash, &sHash, &audit.Index.PreDeploy, &audit.Index.Change, &audit.Index.Phase,
	)
	if err != nil {
		return nil, err
	}

	if audit.Index.MigrationHash, err = migrator.HashFromBytes(mHash); err != nil {
		return nil, errors.Wrap(err, "invalid stored migration_hash")
	}
	if audit.Index.SchemaHash, err = migrator.HashFromBytes(sHash); err != nil {
		return nil, errors.Wrap(err, "invalid stored schema_hash")
	}
	return &audit, nil
}

// isUniqueViolation reports whether err is a violation of the ledger's
// single-in-flight unique index.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// StartPhase records that execution of the phase at index is beginning and
// returns the created row. The storage-level single-in-flight index rejects
// the insert with ErrPhaseInFlight while any other row is unfinished or
// mid-revert. Requires an open transaction.
func (c *Client) StartPhase(ctx context.Context, index migrator.PhaseIndex) (*migrator.MigrationAudit, error) {
	tx, err := c.requireTx()
	if err != nil {
		return nil, err
	}

	audit, err := scanAudit(tx.QueryRow(ctx, startPhaseSQL,
		index.Revision, index.MigrationHash.Bytes(), index.SchemaHash.Bytes(),
		index.PreDeploy, index.Change, index.Phase,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPhaseInFlight
		}
		return nil, errors.Wrapf(err, "failed to start phase %s", index)
	}
	return audit, nil
}

// FinishPhase stamps finished_at on the audit row, but only if the row is
// still unfinished; a row that was finished in the meantime surfaces as
// ErrStaleAudit. Requires an open transaction.
func (c *Client) FinishPhase(ctx context.Context, audit *migrator.MigrationAudit) (*migrator.MigrationAudit, error) {
	return c.transition(ctx, finishPhaseSQL, audit, "finish phase")
}

// StartRevert stamps revert_started_at, but only if no revert has started.
// The row re-enters the in-flight predicate at this point, so StartRevert
// can also fail with ErrPhaseInFlight. Requires an open transaction.
func (c *Client) StartRevert(ctx context.Context, audit *migrator.MigrationAudit) (*migrator.MigrationAudit, error) {
	return c.transition(ctx, startRevertSQL, audit, "start revert of phase")
}

// FinishRevert stamps revert_finished_at, but only if the revert is still
// open. Requires an open transaction.
func (c *Client) FinishRevert(ctx context.Context, audit *migrator.MigrationAudit) (*migrator.MigrationAudit, error) {
	return c.transition(ctx, finishRevertSQL, audit, "finish revert of phase")
}

// transition runs one conditional single-statement update against the
// audit's row. Zero rows updated means the precondition no longer holds.
func (c *Client) transition(ctx context.Context, sql string, audit *migrator.MigrationAudit, action string) (*migrator.MigrationAudit, error) {
	tx, err := c.requireTx()
	if err != nil {
		return nil, err
	}

	updated, err := scanAudit(tx.QueryRow(ctx, sql, audit.ID))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrStaleAudit
		case isUniqueViolation(err):
			return nil, ErrPhaseInFlight
		}
		return nil, errors.Wrapf(err, "failed to %s %s", action, audit.Index)
	}
	return updated, nil
}

// FindAudit returns the most recent audit row matching every field of the
// index, hashes included, or ErrAuditNotFound. Runs outside transactions.
func (c *Client) FindAudit(ctx context.Context, index migrator.PhaseIndex) (*migrator.MigrationAudit, error) {
	if err := c.requireNoTx(); err != nil {
		return nil, err
	}

	audit, err := scanAudit(c.pool.QueryRow(ctx, findAuditSQL,
		index.Revision, index.MigrationHash.Bytes(), index.SchemaHash.Bytes(),
		index.PreDeploy, index.Change, index.Phase,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		return nil, errors.Wrapf(err, "failed to find audit for phase %s", index)
	}
	return audit, nil
}

// LastFinished returns the most recent fully settled row, one that was both
// applied and completely reverted, or (nil, nil) when there is none. Runs
// outside transactions.
func (c *Client) LastFinished(ctx context.Context) (*migrator.MigrationAudit, error) {
	if err := c.requireNoTx(); err != nil {
		return nil, err
	}

	audit, err := scanAudit(c.pool.QueryRow(ctx, lastFinishedSQL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find last settled audit row")
	}
	return audit, nil
}
