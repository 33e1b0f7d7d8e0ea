package postgres

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/migrator"
)

var (
	recordConnectionSQL = fmt.Sprintf(`INSERT INTO %s.connections
	(pid, revision, schema_hash, backend_start)
VALUES ($1, $2, $3, $4)
ON CONFLICT (pid) DO UPDATE
SET revision = EXCLUDED.revision,
    schema_hash = EXCLUDED.schema_hash,
    backend_start = EXCLUDED.backend_start`, consts.ControlSchema)

	listConnectionsSQL = fmt.Sprintf(`SELECT pid, revision, schema_hash, backend_start
FROM %s.connections
ORDER BY pid`, consts.ControlSchema)

	deleteConnectionSQL = fmt.Sprintf(`DELETE FROM %s.connections WHERE pid = $1`, consts.ControlSchema)
)

// RecordConnection upserts one application connection's report of the schema
// version it was built against. Population is normally the application
// fleet's job; the tool itself only reads the table.
func (c *Client) RecordConnection(ctx context.Context, conn migrator.AppConnection) error {
	if err := c.requireNoTx(); err != nil {
		return err
	}

	_, err := c.pool.Exec(ctx, recordConnectionSQL,
		conn.PID, conn.Revision, conn.SchemaHash.Bytes(), conn.BackendStart)
	return errors.Wrapf(err, "failed to record connection %d", conn.PID)
}

// ListConnections returns every tracked application connection ordered by
// pid. The executor's gate compares these against the revision being
// deployed.
func (c *Client) ListConnections(ctx context.Context) ([]migrator.AppConnection, error) {
	if err := c.requireNoTx(); err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx, listConnectionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list connections")
	}
	defer rows.Close()

	var conns []migrator.AppConnection
	for rows.Next() {
		var (
			conn  migrator.AppConnection
			sHash []byte
		)
		if err := rows.Scan(&conn.PID, &conn.Revision, &sHash, &conn.BackendStart); err != nil {
			return nil, errors.Wrap(err, "failed to scan connection row")
		}
		if conn.SchemaHash, err = migrator.HashFromBytes(sHash); err != nil {
			return nil, errors.Wrap(err, "invalid stored schema_hash")
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list connections")
	}
	return conns, nil
}

// DeleteConnection removes a connection's row, typically after its backend
// has gone away.
func (c *Client) DeleteConnection(ctx context.Context, pid int) error {
	if err := c.requireNoTx(); err != nil {
		return err
	}

	_, err := c.pool.Exec(ctx, deleteConnectionSQL, pid)
	return errors.Wrapf(err, "failed to delete connection %d", pid)
}
