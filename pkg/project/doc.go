// Package project manages stagehand project directories: initialization,
// configuration loading, and authoring of new revisions.
//
// # Project Structure
//
// A stagehand project follows this layout:
//
//	project-root/
//	├── stagehand.yaml              # Project configuration
//	└── migrations/
//	    ├── incantation.sql         # Objects that predate revision 1
//	    ├── 1-create-accounts.yml   # Migration documents
//	    ├── 1-schema.sql            # Schema snapshot per revision
//	    ├── 2-add-status.yml
//	    └── 2-schema.sql
//
// Initialization is idempotent: Initialize writes only the files and
// directories that are missing, so it is safe to run against a project that
// already has content.
//
// # Usage Example
//
//	proj := project.New("/path/to/my/project")
//	if err := proj.Initialize(); err != nil {
//		log.Fatal("Failed to initialize project:", err)
//	}
//
//	// Author the next revision
//	files, err := proj.CreateRevision("add account status")
//	if err != nil {
//		log.Fatal("Failed to create revision:", err)
//	}
//	fmt.Println("Edit", files.MigrationPath)
//
//	// Load every revision for execution
//	revisions, err := proj.RevisionList()
//	if err != nil {
//		log.Fatal("Failed to load revisions:", err)
//	}
package project
