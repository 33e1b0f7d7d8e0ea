// Package executor orchestrates phased migration runs against PostgreSQL.
//
// The executor walks a project's revisions phase by phase, bracketing every
// phase's DDL with audit ledger rows so that a crashed or interrupted run
// leaves exact evidence of where it stopped. The ledger's single-in-flight
// constraint is the only cross-process coordination: if another orchestrator
// holds the slot, starting a phase fails immediately rather than racing.
//
// # Forward runs
//
// Up applies every pending phase up to an optional target position. Phases
// whose latest audit row is finished and not reverted are skipped, so rerunning
// Up after adding revisions only executes the new work. Per revision, the
// executor registers the migration document's content in the control schema,
// creates the revision's shim schema before its first phase, and drops the
// shim after its last phase completes. Before a revision's post-deploy stage,
// tracked application connections are checked against the revision's schema
// snapshot.
//
// # Reverts
//
// Revert walks applied phases newest-first down to a target position,
// executing each phase's revert program and stamping the revert pair on the
// ledger row. Phases without a revert program abort the run before anything
// is undone.
//
// # Resuming
//
// A phase whose DDL failed (or whose process died) leaves an unfinished audit
// row that blocks all further runs. Up with Resume re-executes that phase's
// DDL and finishes the existing row; the change catalogue renders idempotent
// statements where the dialect allows, so re-execution converges.
//
// Example usage:
//
//	exec := executor.New(executor.Config{
//		DB:      client,
//		Version: "1.0.0",
//	})
//
//	result, err := exec.Up(ctx, revisions, executor.UpOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("applied %d phase(s), skipped %d\n", len(result.Applied), result.Skipped)
package executor
