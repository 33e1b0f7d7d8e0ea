package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/executor"
	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stagehand/stagehand/pkg/postgres"
	"github.com/urfave/cli/v3"
)

const timestampFormat = "2006-01-02 15:04:05 UTC"

// status creates the status command for showing migration state.
//
// The status command compares the revision files on disk against the target
// database's audit ledger and registry, showing which phases are applied,
// which are pending, and whether anything on disk drifted from what was
// registered.
//
// Command flags:
//   - --url, -u: PostgreSQL connection string (required)
//   - --verbose: show per-phase detail with ledger timestamps
//
// Example usage:
//
//	# Show the per-revision rollup
//	stagehand status --url postgres://localhost:5432/app
//
//	# Show every phase with its ledger history
//	stagehand status --url postgres://localhost:5432/app --verbose
func status(version Version) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show migration status",
		Description: `Display the migration state of the target database.

The status command shows:
- A per-revision rollup of applied, pending, and in-flight phases
- The most recently applied phase
- Tracked application connections and the schema each one reports
- Drift notes when a revision file no longer matches what was registered
- Per-phase ledger history (when --verbose is used)

This command never changes the database.`,
		Before: requireProject,
		Flags: []cli.Flag{
			urlFlag,
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Show per-phase detail with ledger timestamps",
				Value: false,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStatus(ctx, cmd, version)
		},
	}
}

func runStatus(ctx context.Context, cmd *cli.Command, version Version) error {
	slog.Info("Checking migration status", "url", cmd.String("url"))

	revisions, err := currentProject.RevisionList()
	if err != nil {
		return err
	}

	cfg, err := currentProject.Config()
	if err != nil {
		return err
	}

	fmt.Println("Migration Status")
	fmt.Printf("Revision directory: %s\n", cfg.MigrationsDir)
	fmt.Println()

	client, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	installed, err := client.IsInstalled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check for control schema")
	}
	if !installed {
		showUninstalledStatus(revisions)
		return nil
	}

	exec, err := newExecutor(client, version)
	if err != nil {
		return err
	}

	plan, err := exec.Plan(ctx, revisions, migrator.PhaseSlice{})
	if err != nil {
		return err
	}

	showStatusSummary(plan)
	showRevisionTable(revisions, plan)
	showInFlight(plan)
	showLastApplied(plan)

	if cmd.Bool("verbose") {
		showPhaseDetail(plan)
	}

	if err := showDriftNotes(ctx, client, revisions); err != nil {
		return err
	}

	if err := showConnections(ctx, client); err != nil {
		return err
	}

	showRecommendations(plan)
	return nil
}

func showUninstalledStatus(revisions *migrator.RevisionList) {
	fmt.Println("❗ Control schema not installed")
	fmt.Println("   Run 'stagehand init --url <url>' to install it")

	if revisions.Len() == 0 {
		return
	}

	fmt.Println()
	fmt.Printf("Found %d revision(s):\n", revisions.Len())
	for _, rev := range revisions.Ordered() {
		fmt.Printf("  📄 %d: %s\n", rev.Number, revisionLabel(rev))
	}
}

func showStatusSummary(plan *executor.Plan) {
	applied, pending, reverted, inFlight := 0, 0, 0, 0
	for _, phase := range plan.Phases {
		switch phase.Status {
		case executor.StatusApplied:
			applied++
		case executor.StatusReverted:
			reverted++
		case executor.StatusInFlight:
			inFlight++
		default:
			pending++
		}
	}

	fmt.Printf("Total phases: %d\n", len(plan.Phases))
	fmt.Printf("✅ Applied: %d\n", applied)
	fmt.Printf("⏳ Pending: %d\n", pending)
	fmt.Printf("↩️  Reverted: %d\n", reverted)
	fmt.Printf("⚠️  In flight: %d\n", inFlight)
	fmt.Println()
}

// revisionRollup accumulates per-revision phase counts for the table view.
type revisionRollup struct {
	total    int
	applied  int
	inFlight int
}

func showRevisionTable(revisions *migrator.RevisionList, plan *executor.Plan) {
	if revisions.Len() == 0 {
		fmt.Println("No revision files found.")
		fmt.Println()
		return
	}

	rollups := map[int]*revisionRollup{}
	for _, phase := range plan.Phases {
		r := rollups[phase.Index.Revision]
		if r == nil {
			r = &revisionRollup{}
			rollups[phase.Index.Revision] = r
		}

		r.total++
		switch phase.Status {
		case executor.StatusApplied:
			r.applied++
		case executor.StatusInFlight:
			r.inFlight++
		}
	}

	fmt.Println("Revisions:")
	for _, rev := range revisions.Ordered() {
		r := rollups[rev.Number]
		if r == nil {
			r = &revisionRollup{}
		}

		marker := "⏳"
		switch {
		case r.inFlight > 0:
			marker = "⚠️ "
		case r.total > 0 && r.applied == r.total:
			marker = "✅"
		case r.applied > 0:
			marker = "▶ "
		}

		fmt.Printf("  %s %d: %s (%d/%d phases applied)\n",
			marker, rev.Number, revisionLabel(rev), r.applied, r.total)
	}
	fmt.Println()
}

func showInFlight(plan *executor.Plan) {
	for _, phase := range plan.Phases {
		if phase.Status != executor.StatusInFlight {
			continue
		}

		if phase.Audit.RevertStarted() {
			fmt.Printf("⚠️  Phase %s has an unfinished revert started %s\n",
				phase.Index, phase.Audit.RevertStartedAt.UTC().Format(timestampFormat))
		} else {
			fmt.Printf("⚠️  Phase %s has an unfinished run started %s\n",
				phase.Index, phase.Audit.StartedAt.UTC().Format(timestampFormat))
		}
		fmt.Println()
	}
}

func showLastApplied(plan *executor.Plan) {
	for i := len(plan.Phases) - 1; i >= 0; i-- {
		phase := plan.Phases[i]
		if phase.Status != executor.StatusApplied {
			continue
		}

		fmt.Printf("Last applied: %s (%s) at %s\n",
			phase.Index, phase.Phase.Name, phase.Audit.FinishedAt.UTC().Format(timestampFormat))
		fmt.Println()
		return
	}
}

func showPhaseDetail(plan *executor.Plan) {
	fmt.Println("📊 Phase detail:")
	fmt.Println()

	for _, phase := range plan.Phases {
		fmt.Printf("  %-9s %-12s %s (%s)\n", phase.Status, phase.Index, phase.Change.Summary(), phase.Phase.Name)

		if phase.Audit == nil {
			continue
		}

		fmt.Printf("     Started: %s\n", phase.Audit.StartedAt.UTC().Format(timestampFormat))
		if phase.Audit.FinishedAt != nil {
			fmt.Printf("     Finished: %s\n", phase.Audit.FinishedAt.UTC().Format(timestampFormat))
		}
		if phase.Audit.RevertStartedAt != nil {
			fmt.Printf("     Revert started: %s\n", phase.Audit.RevertStartedAt.UTC().Format(timestampFormat))
		}
		if phase.Audit.RevertFinishedAt != nil {
			fmt.Printf("     Revert finished: %s\n", phase.Audit.RevertFinishedAt.UTC().Format(timestampFormat))
		}
	}
	fmt.Println()

	if plan.LastSettled != nil {
		fmt.Printf("Last settled cycle: %s reverted at %s\n",
			plan.LastSettled.Index, plan.LastSettled.RevertFinishedAt.UTC().Format(timestampFormat))
		fmt.Println()
	}
}

// showDriftNotes compares the on-disk revisions against the registry. A
// revision that was edited after registration would fail the next run, so
// status surfaces it before anyone gets that far.
func showDriftNotes(ctx context.Context, client *postgres.Client, revisions *migrator.RevisionList) error {
	regs, err := client.SelectRevisions(ctx)
	if err != nil {
		return err
	}

	byNumber := map[int][]*postgres.RegisteredRevision{}
	for _, reg := range regs {
		byNumber[reg.Revision] = append(byNumber[reg.Revision], reg)
	}

	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var notes []string
	for _, n := range numbers {
		rev := revisions.Get(n)
		if rev == nil {
			notes = append(notes, fmt.Sprintf("revision %d is registered but missing from disk", n))
			continue
		}

		matchedDoc, matchedBoth := false, false
		for _, reg := range byNumber[n] {
			if reg.MigrationHash == rev.MigrationHash() {
				matchedDoc = true
				if reg.SchemaHash == rev.SchemaHash() {
					matchedBoth = true
					break
				}
			}
		}

		switch {
		case matchedBoth:
			// On disk and in the registry agree.
		case matchedDoc:
			notes = append(notes, fmt.Sprintf("revision %d's schema snapshot was edited after registration (disk %s)",
				n, rev.SchemaHash().Short()))
		default:
			notes = append(notes, fmt.Sprintf("revision %d's migration document was edited after registration (disk %s)",
				n, rev.MigrationHash().Short()))
		}
	}

	if len(notes) == 0 {
		return nil
	}

	fmt.Println("⚠️  Drift detected:")
	for _, note := range notes {
		fmt.Printf("   %s\n", note)
	}
	fmt.Println()
	return nil
}

func showConnections(ctx context.Context, client *postgres.Client) error {
	conns, err := client.ListConnections(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list tracked connections")
	}

	if len(conns) == 0 {
		fmt.Println("No tracked application connections.")
		fmt.Println()
		return nil
	}

	fmt.Printf("Tracked connections: %d\n", len(conns))
	for _, conn := range conns {
		fmt.Printf("  pid %-8d revision %-4d schema %s (since %s)\n",
			conn.PID, conn.Revision, conn.SchemaHash.Short(), conn.BackendStart.UTC().Format(timestampFormat))
	}
	fmt.Println()
	return nil
}

func showRecommendations(plan *executor.Plan) {
	inFlight := 0
	for _, phase := range plan.Phases {
		if phase.Status == executor.StatusInFlight {
			inFlight++
		}
	}

	if inFlight > 0 {
		fmt.Println("💡 Confirm the database state, then run 'stagehand up --url <url> --resume'")
		return
	}

	if plan.Pending() > 0 {
		fmt.Println("💡 Run 'stagehand up --url <url>' to apply pending phases")
		return
	}

	fmt.Println("✅ All phases are up to date")
}

// revisionLabel is the display name for a revision: its message when the
// document parses, its source file otherwise.
func revisionLabel(rev *migrator.Revision) string {
	doc, err := rev.Document()
	if err != nil || doc.Message == "" {
		return rev.Source
	}
	return doc.Message
}
