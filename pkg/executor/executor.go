package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stagehand/stagehand/pkg/postgres"
)

// ErrNotInstalled is returned when the target database has no control schema.
var ErrNotInstalled = errors.New("control schema is not installed")

type (
	// Database is the storage surface the executor drives. *postgres.Client
	// satisfies it; tests substitute fakes. Mutating ledger and registry
	// calls must run inside Tx scopes, matching the client's contract.
	Database interface {
		Tx(ctx context.Context, fn func(context.Context) error) error
		StartPhase(ctx context.Context, index migrator.PhaseIndex) (*migrator.MigrationAudit, error)
		FinishPhase(ctx context.Context, audit *migrator.MigrationAudit) (*migrator.MigrationAudit, error)
		StartRevert(ctx context.Context, audit *migrator.MigrationAudit) (*migrator.MigrationAudit, error)
		FinishRevert(ctx context.Context, audit *migrator.MigrationAudit) (*migrator.MigrationAudit, error)
		FindAudit(ctx context.Context, index migrator.PhaseIndex) (*migrator.MigrationAudit, error)
		LastFinished(ctx context.Context) (*migrator.MigrationAudit, error)
		RegisterRevision(ctx context.Context, rev *migrator.Revision) (*postgres.RegisteredRevision, error)
		IsInstalled(ctx context.Context) (bool, error)
		CreateShimSchema(ctx context.Context, revision int) error
		DropShimSchema(ctx context.Context, revision int) error
		ExecDDL(ctx context.Context, stmts ...string) error
		ListConnections(ctx context.Context) ([]migrator.AppConnection, error)
	}

	// Executor runs phased migrations against a database, recording every
	// phase transition in the audit ledger.
	//
	// The executor is sequential: it never runs phases concurrently, and it
	// relies on the ledger's single-in-flight constraint to exclude other
	// orchestrator processes. All methods are synchronous and return on the
	// first error.
	//
	// Example usage:
	//
	//	exec := executor.New(executor.Config{
	//		DB:                         client,
	//		Version:                    "1.0.0",
	//		CrashOnIncompatibleVersion: true,
	//	})
	//
	//	result, err := exec.Up(ctx, revisions, executor.UpOptions{})
	Executor struct {
		db                  Database
		logger              *slog.Logger
		version             string
		crashOnIncompatible bool
	}

	// Config contains configuration options for creating a new Executor.
	Config struct {
		// DB is the database the executor runs against.
		DB Database

		// Logger receives progress and warning output. Defaults to
		// slog.Default when nil.
		Logger *slog.Logger

		// Version is the tool version, included in run logs.
		Version string

		// CrashOnIncompatibleVersion makes the connection gate before a
		// revision's post-deploy stage a hard error instead of a warning.
		CrashOnIncompatibleVersion bool
	}

	// UpOptions controls a forward run.
	UpOptions struct {
		// Target restricts the run to the phases the slice contains,
		// typically built with migrator.ParseTarget. The zero slice runs
		// everything.
		Target migrator.PhaseSlice

		// Resume re-executes a phase whose previous run left an unfinished
		// audit row and finishes that row, instead of refusing to proceed.
		Resume bool
	}

	// RevertOptions controls a revert run.
	RevertOptions struct {
		// To is the slice of phases that remain applied; every applied phase
		// outside it is reverted, newest first. The zero slice keeps
		// everything, so a revert run must always name a target.
		To migrator.PhaseSlice
	}

	// Result summarizes what a run changed.
	Result struct {
		// Applied lists the phases executed forward, in execution order.
		Applied []migrator.PhaseIndex

		// Reverted lists the phases undone, in execution order (newest
		// applied phase first).
		Reverted []migrator.PhaseIndex

		// Skipped counts phases whose ledger state already matched the
		// run's goal.
		Skipped int
	}

	// revisionRun tracks per-revision progress within a single forward run.
	revisionRun struct {
		prepared bool
		gated    bool
		last     *migrator.PhaseIndex
	}
)

// New creates a migration executor with the provided configuration.
func New(config Config) *Executor {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		db:                  config.DB,
		logger:              logger,
		version:             config.Version,
		crashOnIncompatible: config.CrashOnIncompatibleVersion,
	}
}

// Up applies pending phases in order, up to the optional target.
//
// For every phase inside the target slice, the latest audit row decides what
// happens: a finished, unreverted row skips the phase; no row (or a fully
// reverted one) starts a fresh application; an unfinished row stops the run
// unless opts.Resume is set, in which case the phase's DDL is re-executed and
// the existing row finished; an unfinished revert always stops the run.
//
// A failing DDL statement leaves its audit row unfinished. That row blocks
// every later run until an operator confirms the database state and reruns
// with Resume; the ledger records exactly where the rollout stopped.
//
// Example usage:
//
//	target, _ := migrator.ParseTarget("3.pre")
//	result, err := exec.Up(ctx, revisions, executor.UpOptions{Target: target})
func (e *Executor) Up(ctx context.Context, revisions *migrator.RevisionList, opts UpOptions) (*Result, error) {
	if err := e.checkInstalled(ctx); err != nil {
		return nil, err
	}

	entries, err := revisions.GetPhases(opts.Target)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Starting forward run", "version", e.version, "phases", len(entries))

	result := &Result{}
	runs := map[int]*revisionRun{}

	for _, entry := range entries {
		run, err := runFor(runs, entry.Revision)
		if err != nil {
			return result, err
		}
		isLast := run.last != nil && entry.Index.Equal(*run.last)

		audit, err := e.findAudit(ctx, entry.Index)
		if err != nil {
			return result, err
		}

		var resume *migrator.MigrationAudit
		switch {
		case audit == nil || audit.Reverted():
			// Fresh application below.
		case audit.Applied():
			result.Skipped++
			e.logger.Debug("Phase already applied", "phase", entry.Index.String())
			if isLast && run.prepared {
				if err := e.completeRevision(ctx, entry.Revision.Number); err != nil {
					return result, err
				}
			}
			continue
		case !audit.Finished():
			if !opts.Resume {
				return result, errors.Errorf(
					"phase %s has an unfinished audit row started %s; resume to re-execute it",
					entry.Index, audit.StartedAt.Format(time.RFC3339),
				)
			}
			resume = audit
		default:
			return result, errors.Errorf(
				"phase %s has an unfinished revert; complete the revert before reapplying", entry.Index,
			)
		}

		if !entry.Index.PreDeploy && !run.gated {
			if err := e.gateConnections(ctx, entry.Index); err != nil {
				return result, err
			}
			run.gated = true
		}

		if !run.prepared {
			if err := e.prepareRevision(ctx, entry.Revision); err != nil {
				return result, err
			}
			run.prepared = true
		}

		if resume != nil {
			e.logger.Warn("Resuming unfinished phase",
				"phase", entry.Index.String(),
				"started_at", resume.StartedAt,
			)
			err = e.finishApply(ctx, entry, resume)
		} else {
			err = e.applyPhase(ctx, entry)
		}
		if err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, entry.Index)

		if isLast {
			if err := e.completeRevision(ctx, entry.Revision.Number); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// Revert undoes applied phases newest-first until only the phases inside
// opts.To remain applied.
//
// The whole walk is validated before anything runs: a phase without a revert
// program, or one with an unfinished forward audit row, aborts the run with
// nothing undone. A phase whose previous revert crashed mid-way is picked up
// where it stopped: its revert DDL is re-executed and the existing row's
// revert finished.
//
// Example usage:
//
//	to, _ := migrator.ParseTarget("1")
//	result, err := exec.Revert(ctx, revisions, executor.RevertOptions{To: to})
func (e *Executor) Revert(ctx context.Context, revisions *migrator.RevisionList, opts RevertOptions) (*Result, error) {
	if err := e.checkInstalled(ctx); err != nil {
		return nil, err
	}

	entries, err := revisions.GetPhases(migrator.PhaseSlice{})
	if err != nil {
		return nil, err
	}

	type revertItem struct {
		entry migrator.RevisionPhaseEntry
		audit *migrator.MigrationAudit
	}

	result := &Result{}
	var items []revertItem
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if opts.To.Contains(entry.Index) {
			continue
		}

		audit, err := e.findAudit(ctx, entry.Index)
		if err != nil {
			return nil, err
		}

		switch {
		case audit == nil:
			continue
		case audit.Reverted():
			result.Skipped++
			continue
		case !audit.Finished():
			return nil, errors.Errorf(
				"phase %s has an unfinished audit row; resume the forward run before reverting", entry.Index,
			)
		}

		if !entry.Phase.CanRevert() {
			return nil, errors.Errorf("phase %s (%s) cannot be reverted", entry.Index, entry.Phase.Name)
		}
		items = append(items, revertItem{entry: entry, audit: audit})
	}
	e.logger.Info("Starting revert", "version", e.version, "phases", len(items))

	shimmed := map[int]bool{}
	for _, item := range items {
		entry := item.entry

		// Revert programs may move staged objects back into the revision's
		// shim schema, which the forward run dropped on completion.
		if !shimmed[entry.Revision.Number] {
			if err := e.db.CreateShimSchema(ctx, entry.Revision.Number); err != nil {
				return result, errors.Wrapf(err, "failed to create shim schema for revision %d", entry.Revision.Number)
			}
			shimmed[entry.Revision.Number] = true
		}

		if err := e.revertPhase(ctx, entry, item.audit); err != nil {
			return result, err
		}
		result.Reverted = append(result.Reverted, entry.Index)

		// Unwinding past the revision's first phase empties its shim too.
		if entry.Index.IsFirstForRevision() {
			if err := e.db.DropShimSchema(ctx, entry.Revision.Number); err != nil {
				return result, errors.Wrapf(err, "failed to drop shim schema for revision %d", entry.Revision.Number)
			}
			e.logger.Info("Reverted revision", "revision", entry.Revision.Number)
		}
	}

	return result, nil
}

// checkInstalled verifies the control schema exists before any run.
func (e *Executor) checkInstalled(ctx context.Context) error {
	installed, err := e.db.IsInstalled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check for control schema")
	}
	if !installed {
		return ErrNotInstalled
	}
	return nil
}

// findAudit looks up the latest audit row for a phase, mapping the not-found
// sentinel to nil.
func (e *Executor) findAudit(ctx context.Context, index migrator.PhaseIndex) (*migrator.MigrationAudit, error) {
	audit, err := e.db.FindAudit(ctx, index)
	if errors.Is(err, postgres.ErrAuditNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up audit for phase %s", index)
	}
	return audit, nil
}

// runFor returns the per-revision bookkeeping for this run, computing the
// revision's final phase index on first encounter.
func runFor(runs map[int]*revisionRun, rev *migrator.Revision) (*revisionRun, error) {
	if run, ok := runs[rev.Number]; ok {
		return run, nil
	}

	last, err := rev.LastIndex()
	if err != nil {
		return nil, err
	}
	run := &revisionRun{last: last}
	runs[rev.Number] = run
	return run, nil
}

// prepareRevision registers the revision's content and creates its shim
// schema, once per revision before its first executed phase.
func (e *Executor) prepareRevision(ctx context.Context, rev *migrator.Revision) error {
	if !rev.HasSnapshot() {
		e.logger.Warn("Revision has no schema snapshot", "revision", rev.Number, "source", rev.Source)
	}

	err := e.db.Tx(ctx, func(ctx context.Context) error {
		reg, err := e.db.RegisterRevision(ctx, rev)
		if err != nil {
			return err
		}
		e.logger.Debug("Registered revision", "revision", reg.Revision, "hash", reg.MigrationHash.Short())
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to register revision %d", rev.Number)
	}

	if err := e.db.CreateShimSchema(ctx, rev.Number); err != nil {
		return errors.Wrapf(err, "failed to create shim schema for revision %d", rev.Number)
	}
	return nil
}

// completeRevision drops the revision's shim schema once its final phase is
// in place. Staged objects left behind make the drop fail, which means a
// promotion phase never ran.
func (e *Executor) completeRevision(ctx context.Context, revision int) error {
	if err := e.db.DropShimSchema(ctx, revision); err != nil {
		return errors.Wrapf(err, "failed to drop shim schema for revision %d", revision)
	}
	e.logger.Info("Completed revision", "revision", revision)
	return nil
}

// gateConnections checks tracked application connections against the
// revision's schema snapshot before its post-deploy stage runs. Post-deploy
// phases remove objects old code may still read, so a connection reporting a
// different snapshot is about to break.
func (e *Executor) gateConnections(ctx context.Context, index migrator.PhaseIndex) error {
	conns, err := e.db.ListConnections(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list tracked connections")
	}

	var stale []migrator.AppConnection
	for _, conn := range conns {
		if conn.SchemaHash != index.SchemaHash {
			stale = append(stale, conn)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if e.crashOnIncompatible {
		return errors.Errorf(
			"%d connection(s) report a schema other than revision %d's before its post-deploy stage (first pid %d)",
			len(stale), index.Revision, stale[0].PID,
		)
	}

	for _, conn := range stale {
		e.logger.Warn("Connection reports an incompatible schema",
			"pid", conn.PID,
			"revision", conn.Revision,
			"schema_hash", conn.SchemaHash.Short(),
			"want", index.SchemaHash.Short(),
		)
	}
	return nil
}

// applyPhase runs one phase from scratch: a fresh ledger row, the phase's
// DDL, then the finishing stamp.
func (e *Executor) applyPhase(ctx context.Context, entry migrator.RevisionPhaseEntry) error {
	var audit *migrator.MigrationAudit
	err := e.db.Tx(ctx, func(ctx context.Context) error {
		var err error
		audit, err = e.db.StartPhase(ctx, entry.Index)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to start phase %s", entry.Index)
	}

	return e.finishApply(ctx, entry, audit)
}

// finishApply executes the phase's DDL and finishes the given ledger row.
// Used both for fresh applications and for resuming a crashed one.
func (e *Executor) finishApply(ctx context.Context, entry migrator.RevisionPhaseEntry, audit *migrator.MigrationAudit) error {
	if err := e.db.ExecDDL(ctx, entry.Phase.Apply...); err != nil {
		return errors.Wrapf(err, "phase %s (%s) failed", entry.Index, entry.Phase.Name)
	}

	err := e.db.Tx(ctx, func(ctx context.Context) error {
		_, err := e.db.FinishPhase(ctx, audit)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to finish phase %s", entry.Index)
	}

	e.logger.Info("Applied phase",
		"phase", entry.Index.String(),
		"name", entry.Phase.Name,
		"change", entry.Change.Summary(),
	)
	return nil
}

// revertPhase undoes one applied phase, resuming a crashed revert when the
// row already carries a revert start.
func (e *Executor) revertPhase(ctx context.Context, entry migrator.RevisionPhaseEntry, audit *migrator.MigrationAudit) error {
	if audit.RevertStarted() {
		e.logger.Warn("Resuming unfinished revert", "phase", entry.Index.String())
	} else {
		err := e.db.Tx(ctx, func(ctx context.Context) error {
			var err error
			audit, err = e.db.StartRevert(ctx, audit)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "failed to start revert of phase %s", entry.Index)
		}
	}

	if err := e.db.ExecDDL(ctx, entry.Phase.Revert...); err != nil {
		return errors.Wrapf(err, "revert of phase %s (%s) failed", entry.Index, entry.Phase.Name)
	}

	err := e.db.Tx(ctx, func(ctx context.Context) error {
		_, err := e.db.FinishRevert(ctx, audit)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to finish revert of phase %s", entry.Index)
	}

	e.logger.Info("Reverted phase", "phase", entry.Index.String(), "name", entry.Phase.Name)
	return nil
}
