package executor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/migrator"
)

type (
	// PhaseStatus classifies a phase's ledger state.
	PhaseStatus string

	// PlannedPhase pairs one phase with its ledger classification.
	PlannedPhase struct {
		// Index is the phase's position, hashes included.
		Index migrator.PhaseIndex

		// Change is the change the phase belongs to.
		Change *migrator.Change

		// Phase carries the name and DDL programs.
		Phase migrator.Phase

		// Status is the ledger classification.
		Status PhaseStatus

		// Audit is the latest ledger row for the phase, nil when pending.
		Audit *migrator.MigrationAudit
	}

	// Plan is the classified view of a slice of the phase sequence, used by
	// dry runs and status output.
	Plan struct {
		// Phases lists every phase in the slice, in execution order.
		Phases []PlannedPhase

		// LastSettled is the most recent ledger row that was both fully
		// applied and fully reverted, nil when no phase has completed the
		// whole cycle.
		LastSettled *migrator.MigrationAudit
	}
)

const (
	// StatusPending indicates the phase has never been applied.
	StatusPending PhaseStatus = "pending"

	// StatusApplied indicates the phase is finished and in effect.
	StatusApplied PhaseStatus = "applied"

	// StatusInFlight indicates an unfinished application or revert holds the
	// ledger's in-flight slot.
	StatusInFlight PhaseStatus = "in flight"

	// StatusReverted indicates the phase was applied and later undone.
	StatusReverted PhaseStatus = "reverted"
)

// Plan classifies every phase in the slice against the ledger without
// changing anything.
//
// Example usage:
//
//	plan, err := exec.Plan(ctx, revisions, migrator.PhaseSlice{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, phase := range plan.Phases {
//		fmt.Printf("%-12s %s %s\n", phase.Status, phase.Index, phase.Phase.Name)
//	}
func (e *Executor) Plan(ctx context.Context, revisions *migrator.RevisionList, slice migrator.PhaseSlice) (*Plan, error) {
	if err := e.checkInstalled(ctx); err != nil {
		return nil, err
	}

	entries, err := revisions.GetPhases(slice)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Phases: make([]PlannedPhase, 0, len(entries))}
	for _, entry := range entries {
		audit, err := e.findAudit(ctx, entry.Index)
		if err != nil {
			return nil, err
		}

		plan.Phases = append(plan.Phases, PlannedPhase{
			Index:  entry.Index,
			Change: entry.Change,
			Phase:  entry.Phase,
			Status: classify(audit),
			Audit:  audit,
		})
	}

	plan.LastSettled, err = e.db.LastFinished(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load last settled phase")
	}
	return plan, nil
}

// Pending counts phases that a forward run would execute.
func (p *Plan) Pending() int {
	n := 0
	for _, phase := range p.Phases {
		if phase.Status == StatusPending || phase.Status == StatusReverted {
			n++
		}
	}
	return n
}

func classify(audit *migrator.MigrationAudit) PhaseStatus {
	switch {
	case audit == nil:
		return StatusPending
	case audit.InFlight():
		return StatusInFlight
	case audit.Reverted():
		return StatusReverted
	default:
		return StatusApplied
	}
}
