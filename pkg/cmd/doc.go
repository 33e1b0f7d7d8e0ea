// Package cmd provides CLI commands for the stagehand tool.
//
// This package implements the command-line interface for stagehand,
// covering project scaffolding, phased migration runs, reverts, status
// reporting, revision authoring, and local development databases.
//
// # Available Commands
//
// The cmd package currently provides:
//   - init: Scaffold a project and optionally install the control schema
//   - up: Apply pending migration phases, optionally up to a target
//   - revert: Undo applied phases back to a target boundary
//   - status: Report applied, pending, and in-flight phases
//   - revision: Author a new revision with a schema snapshot
//   - dev up / dev down: Manage a local PostgreSQL development server
//
// # Command Structure
//
// Each command is implemented as a separate function that returns a
// *cli.Command, following the urfave/cli/v3 pattern. Commands that talk
// to a database take the connection URL from --url or DATABASE_URL, and
// commands that need a project load it from the configured stagehand.yaml
// before their action runs.
//
// # Global Options
//
// All commands support global flags:
//   - --config, -c: Path to the project configuration file
//   - --help, -h: Display command help
//   - --version: Display version information
//
// # Example Usage
//
// Commands are registered in the main application and can be invoked
// from the command line:
//
//	stagehand init                                  # Scaffold a project
//	stagehand init --url $DATABASE_URL              # Scaffold and install the control schema
//	stagehand revision -m "add users table"         # Author a new revision
//	stagehand up --to 3.pre                         # Apply phases through revision 3 pre-deploy
//	stagehand revert --to 2                         # Undo everything after revision 2
//	stagehand status --verbose                      # Inspect per-phase audit state
//	stagehand dev up                                # Start a migrated local PostgreSQL
//
// Each command validates its inputs before connecting and reports
// progress phase by phase, so an interrupted run can be inspected with
// status and resumed with up --resume.
package cmd
