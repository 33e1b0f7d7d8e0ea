// Package postgres implements the storage side of stagehand: the control
// schema that records what ran, the audit ledger whose partial unique index
// is the sole cross-process exclusion mechanism, the revision registry, and
// the shim schemas migrations stage objects in.
//
// A Client wraps a single pgx connection pool and carries at most one open
// transaction at a time. Mutating ledger and registry operations must run
// inside Client.Tx and fail with ErrNoTransaction otherwise; reads and
// autocommit DDL assert the opposite. The orchestration layer in
// pkg/executor drives these operations; this package never decides what to
// run, only records and executes it.
//
// Example usage:
//
//	client, err := postgres.Connect(ctx, os.Getenv("DATABASE_URL"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var audit *migrator.MigrationAudit
//	err = client.Tx(ctx, func(ctx context.Context) error {
//	    audit, err = client.StartPhase(ctx, index)
//	    return err
//	})
package postgres
