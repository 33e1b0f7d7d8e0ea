package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
)

// CreateTempDatabase creates a scratch database next to the client's own and
// returns a URL pointing at it plus a drop function. The snapshot flow
// replays every revision into such a database and dumps the result, leaving
// the real database untouched. The drop must run after all connections to
// the scratch database are closed.
func (c *Client) CreateTempDatabase(ctx context.Context) (string, func(context.Context) error, error) {
	if err := c.requireNoTx(); err != nil {
		return "", nil, err
	}

	name := fmt.Sprintf(consts.TempDatabaseFormat, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])

	// CREATE DATABASE cannot be parameterized or run inside a transaction.
	if _, err := c.pool.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		return "", nil, errors.Wrapf(err, "failed to create temp database %s", name)
	}

	tempURL, err := replaceDatabase(c.url, name)
	if err != nil {
		_, _ = c.pool.Exec(ctx, "DROP DATABASE "+name)
		return "", nil, err
	}

	drop := func(ctx context.Context) error {
		_, err := c.pool.Exec(ctx, "DROP DATABASE "+name)
		return errors.Wrapf(err, "failed to drop temp database %s", name)
	}
	return tempURL, drop, nil
}

// replaceDatabase swaps the database name in a connection URL.
func replaceDatabase(databaseURL, name string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse database URL")
	}
	u.Path = "/" + name
	return u.String(), nil
}
