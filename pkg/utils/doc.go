// Package utils provides common utility functions used throughout the
// Stagehand codebase.
//
// This package contains shared utilities that are used by multiple packages
// to avoid code duplication and ensure consistent behavior across the
// application.
//
// # Identifier Utilities (identifier.go)
//
// The identifier utilities provide consistent handling of PostgreSQL
// identifiers, including double-quote wrapping for names that may contain
// special characters or reserved keywords:
//
//	// Simple identifier
//	name := utils.QuoteIdentifier("accounts")
//	// Result: "accounts"
//
//	// Qualified identifier
//	qualified := utils.QuoteIdentifier("reporting.accounts")
//	// Result: "reporting"."accounts"
//
//	// Already quoted (not double-quoted)
//	existing := utils.QuoteIdentifier(`"accounts"`)
//	// Result: "accounts"
//
// # SQL Builder (sqlbuilder.go)
//
// SQLBuilder is a small fluent builder for the DDL statement shapes the
// migration phase catalogue renders (CREATE/DROP/ALTER with quoted names,
// column lists, and schema moves):
//
//	sql := utils.NewSQLBuilder().
//		Create("INDEX CONCURRENTLY").
//		IfNotExists().
//		Name("accounts_email_idx").
//		On("accounts").
//		Columns("email").
//		String()
//
// # Validation (validation.go)
//
// IsValidIdentifier vets user-supplied table, column, and index names before
// they are embedded in generated DDL, rejecting names that would fold,
// truncate, or require quoting tricks.
package utils
