// Package migrator provides the data model for phased, expand/contract
// schema migrations.
//
// A migration project is a dense sequence of revisions (1..N). Each revision
// pairs a YAML migration document with a schema snapshot taken after the
// revision was authored. Documents declare changes grouped into a pre-deploy
// stage (runs before application code ships) and a post-deploy stage (runs
// after), and every change expands into one or more phases, each an ordered
// list of DDL statements with an optional revert program.
//
// The package defines:
//   - Hash: SHA-256 content identity for migration documents and snapshots
//   - PhaseIndex and PhaseSlice: the total order over phases and ranges of it
//   - Change and Phase: the closed catalogue of supported change kinds and
//     the DDL programs they render
//   - Migration: a parsed document and its phase enumeration
//   - Revision and RevisionList: file- or database-backed revisions and the
//     dense ordered collection of them
//   - MigrationAudit and AppConnection: records mirrored from the control
//     schema's ledger and connection tracking tables
//
// Execution state never lives here. Applying phases, bracketing them with
// audit rows, and talking to PostgreSQL is the job of the executor and
// postgres packages; everything in this package is pure data and pure
// derivation, safe to compute repeatedly.
package migrator
