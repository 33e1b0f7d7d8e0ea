package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Sentinel errors for the client's transaction contract. Mutating ledger and
// registry operations require an open transaction; reads and autocommit DDL
// require the opposite; transactions never nest.
var (
	// ErrNoTransaction is returned when a mutating operation is called
	// outside Tx.
	ErrNoTransaction = errors.New("operation requires an open transaction")

	// ErrNestedTransaction is returned by Tx when a transaction is already
	// open.
	ErrNestedTransaction = errors.New("a transaction is already open")

	// ErrInTransaction is returned when a read or autocommit operation is
	// called inside Tx.
	ErrInTransaction = errors.New("operation must run outside a transaction")
)

// Client is a connection to the database under migration. It is not safe for
// concurrent use: the orchestrator is a single sequential process, and the
// client tracks its one open transaction so operations can assert the
// transactional contract they were written for.
type Client struct {
	pool *pgxpool.Pool
	url  string
	tx   pgx.Tx
}

// Connect opens a pool against the database URL and verifies connectivity.
//
// Example usage:
//
//	client, err := postgres.Connect(ctx, "postgres://localhost:5432/app")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func Connect(ctx context.Context, url string) (*Client, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return &Client{pool: pool, url: url}, nil
}

// Close releases the underlying pool.
func (c *Client) Close() {
	c.pool.Close()
}

// URL returns the URL the client connected with.
func (c *Client) URL() string {
	return c.url
}

// Tx runs fn inside a transaction, committing on success and rolling back on
// error or panic. Transactions never nest; calling Tx inside Tx returns
// ErrNestedTransaction.
func (c *Client) Tx(ctx context.Context, fn func(context.Context) error) (err error) {
	if c.tx != nil {
		return ErrNestedTransaction
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	c.tx = tx

	defer func() {
		c.tx = nil
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = errors.Wrap(tx.Commit(ctx), "failed to commit transaction")
	}()

	return fn(ctx)
}

// requireTx returns the open transaction for a mutating operation.
func (c *Client) requireTx() (pgx.Tx, error) {
	if c.tx == nil {
		return nil, ErrNoTransaction
	}
	return c.tx, nil
}

// requireNoTx asserts the client is outside any transaction.
func (c *Client) requireNoTx() error {
	if c.tx != nil {
		return ErrInTransaction
	}
	return nil
}

// ExecDDL executes phase statements one at a time in autocommit mode. Phase
// DDL must not run inside a transaction block: statements like CREATE INDEX
// CONCURRENTLY refuse to, and a phase is resumed from its audit row rather
// than rolled back.
func (c *Client) ExecDDL(ctx context.Context, stmts ...string) error {
	if err := c.requireNoTx(); err != nil {
		return err
	}

	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute %q", stmt)
		}
	}
	return nil
}
