package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/migrator"
)

// Sentinel errors for registry consistency violations. Both are fatal: the
// registry records exactly which bytes were applied, and a disagreement with
// the working tree is never retryable.
var (
	// ErrRevisionEdited is returned when a revision number is already
	// registered with different content: the on-disk file changed after it
	// was applied.
	ErrRevisionEdited = errors.New("revision file was edited after registration")

	// ErrRevisionContentMismatch is returned when a registered row matches
	// the revision's hashes but not its text.
	ErrRevisionContentMismatch = errors.New("registered content does not match revision text")
)

// RegisteredRevision is one row of the revision registry.
type RegisteredRevision struct {
	Revision      int
	MigrationHash migrator.Hash
	SchemaHash    migrator.Hash
	File          string
	IsDeleted     bool
}

const registryColumns = "revision, migration_hash, schema_hash, file, is_deleted"

var (
	selectRegistrationSQL = fmt.Sprintf(`SELECT %s
FROM %s.migrations
WHERE revision = $1 AND migration_hash = $2 AND schema_hash = $3`, registryColumns, consts.ControlSchema)

	revisionRegisteredSQL = fmt.Sprintf(`SELECT EXISTS (
	SELECT FROM %s.migrations WHERE revision = $1
)`, consts.ControlSchema)

	insertRegistrationSQL = fmt.Sprintf(`INSERT INTO %s.migrations
	(revision, migration_hash, schema_hash, file, is_deleted)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING %s`, consts.ControlSchema, registryColumns)

	selectRevisionsSQL = fmt.Sprintf(`SELECT %s
FROM %s.migrations
ORDER BY revision, migration_hash, schema_hash`, registryColumns, consts.ControlSchema)
)

func scanRegistration(row pgx.Row) (*RegisteredRevision, error) {
	var (
		reg          RegisteredRevision
		mHash, sHash []byte
	)

	err := row.Scan(&reg.Revision, &mHash, &sHash, &reg.File, &reg.IsDeleted)
	if err != nil {
		return nil, err
	}

	if reg.MigrationHash, err = migrator.HashFromBytes(mHash); err != nil {
		return nil, errors.Wrap(err, "invalid stored migration_hash")
	}
	if reg.SchemaHash, err = migrator.HashFromBytes(sHash); err != nil {
		return nil, errors.Wrap(err, "invalid stored schema_hash")
	}
	return &reg, nil
}

// RegisterRevision persists the revision's content before its first phase
// runs. Registering the same content again is a no-op returning the existing
// row. A row for the same number with different content means the file was
// edited after it was applied: ErrRevisionEdited. On the no-op path the
// stored text is compared byte for byte against the revision's text, and a
// disagreement (matching hashes, different bytes) is
// ErrRevisionContentMismatch. Requires an open transaction.
func (c *Client) RegisterRevision(ctx context.Context, rev *migrator.Revision) (*RegisteredRevision, error) {
	tx, err := c.requireTx()
	if err != nil {
		return nil, err
	}

	mHash := rev.MigrationHash()
	sHash := rev.SchemaHash()

	existing, err := scanRegistration(tx.QueryRow(ctx, selectRegistrationSQL,
		rev.Number, mHash.Bytes(), sHash.Bytes()))
	switch {
	case err == nil:
		if existing.File != rev.MigrationText() {
			return nil, ErrRevisionContentMismatch
		}
		return existing, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, errors.Wrapf(err, "failed to look up revision %d", rev.Number)
	}

	var registered bool
	if err := tx.QueryRow(ctx, revisionRegisteredSQL, rev.Number).Scan(&registered); err != nil {
		return nil, errors.Wrapf(err, "failed to look up revision %d", rev.Number)
	}
	if registered {
		return nil, ErrRevisionEdited
	}

	reg, err := scanRegistration(tx.QueryRow(ctx, insertRegistrationSQL,
		rev.Number, mHash.Bytes(), sHash.Bytes(), rev.MigrationText()))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to register revision %d", rev.Number)
	}
	return reg, nil
}

// SelectRevisions returns every registry row ordered by revision number,
// for status and drift reporting. Runs outside transactions.
func (c *Client) SelectRevisions(ctx context.Context) ([]*RegisteredRevision, error) {
	if err := c.requireNoTx(); err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx, selectRevisionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select revisions")
	}
	defer rows.Close()

	var regs []*RegisteredRevision
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan revision row")
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to select revisions")
	}
	return regs, nil
}
