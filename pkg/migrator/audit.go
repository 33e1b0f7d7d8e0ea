package migrator

import "time"

type (
	// MigrationAudit mirrors one row of the control schema's ledger. Every
	// phase application inserts a row when it starts and stamps finished_at
	// when it completes; reverting stamps the revert pair the same way. The
	// database enforces that at most one row globally is in flight, so a
	// crashed run leaves its open row behind as evidence.
	MigrationAudit struct {
		// ID is the row's serial primary key. Later rows for the same index
		// supersede earlier ones.
		ID int64

		// StartedAt is when the phase application began.
		StartedAt time.Time

		// FinishedAt is when the phase application completed, nil while in
		// flight or after a crash.
		FinishedAt *time.Time

		// RevertStartedAt is when reverting this phase began. Only finished
		// phases can begin reverting.
		RevertStartedAt *time.Time

		// RevertFinishedAt is when the revert completed.
		RevertFinishedAt *time.Time

		// Index is the phase this row audits, hashes included.
		Index PhaseIndex
	}

	// AppConnection mirrors one row of the connection tracking table.
	// Application processes report which revision and schema snapshot they
	// were built against; the executor consults these before running
	// post-deploy phases that would break older code.
	AppConnection struct {
		// PID is the backend process ID of the connection.
		PID int

		// Revision is the revision number the application was built against.
		Revision int

		// SchemaHash is the snapshot identity the application expects.
		SchemaHash Hash

		// BackendStart is when the backend process started.
		BackendStart time.Time
	}
)

// Finished reports whether the phase application completed.
func (a *MigrationAudit) Finished() bool {
	return a.FinishedAt != nil
}

// RevertStarted reports whether a revert of this phase has begun.
func (a *MigrationAudit) RevertStarted() bool {
	return a.RevertStartedAt != nil
}

// Reverted reports whether the phase was fully reverted.
func (a *MigrationAudit) Reverted() bool {
	return a.RevertFinishedAt != nil
}

// InFlight reports whether this row holds the global in-flight lock: either
// an application that has not finished, or a revert that has started but
// not finished.
func (a *MigrationAudit) InFlight() bool {
	if a.FinishedAt == nil {
		return true
	}
	return a.RevertStartedAt != nil && a.RevertFinishedAt == nil
}

// Applied reports whether the phase is currently in effect: finished and
// not reverted.
func (a *MigrationAudit) Applied() bool {
	return a.Finished() && !a.Reverted() && !a.RevertStarted()
}
