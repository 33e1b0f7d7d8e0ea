package utils

import "strings"

// SQLBuilder provides a fluent interface for building PostgreSQL DDL
// statements. It handles identifier quoting and conditional clause building
// to keep the generated statements for migration phases consistent.
//
// Example usage:
//
//	sql := utils.NewSQLBuilder().
//		Create("TABLE").
//		Name("accounts").
//		Raw("(id BIGINT PRIMARY KEY)").
//		String()
//	// Output: CREATE TABLE "accounts" (id BIGINT PRIMARY KEY);
type SQLBuilder struct {
	parts []string
}

// NewSQLBuilder creates a new SQLBuilder instance.
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{
		parts: make([]string, 0, 10),
	}
}

// Create adds a CREATE clause with the specified object type.
//
// Example:
//
//	builder.Create("TABLE")         // CREATE TABLE
//	builder.Create("UNIQUE INDEX")  // CREATE UNIQUE INDEX
func (b *SQLBuilder) Create(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "CREATE", objectType)
	return b
}

// Drop adds a DROP clause with the specified object type.
func (b *SQLBuilder) Drop(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "DROP", objectType)
	return b
}

// Alter adds an ALTER clause with the specified object type.
func (b *SQLBuilder) Alter(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "ALTER", objectType)
	return b
}

// IfExists adds an IF EXISTS clause. This should be called after DROP
// operations.
func (b *SQLBuilder) IfExists() *SQLBuilder {
	b.parts = append(b.parts, "IF", "EXISTS")
	return b
}

// IfNotExists adds an IF NOT EXISTS clause. This should be called after
// CREATE operations.
func (b *SQLBuilder) IfNotExists() *SQLBuilder {
	b.parts = append(b.parts, "IF", "NOT", "EXISTS")
	return b
}

// Name adds a quoted object name.
//
// Example:
//
//	builder.Name("accounts")         // "accounts"
//	builder.Name("shim.accounts")    // "shim"."accounts"
func (b *SQLBuilder) Name(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, QuoteIdentifier(name))
	}
	return b
}

// QualifiedName adds a name with an optional schema prefix. If schema is nil
// or empty, only the name is added with quotes.
func (b *SQLBuilder) QualifiedName(schema *string, name string) *SQLBuilder {
	qualifiedName := QuoteQualifiedName(schema, name)
	if qualifiedName != "" {
		b.parts = append(b.parts, qualifiedName)
	}
	return b
}

// On adds an ON clause naming a table, as used by index statements.
//
// Example:
//
//	builder.Create("INDEX").Name("idx").On("accounts")  // CREATE INDEX "idx" ON "accounts"
func (b *SQLBuilder) On(table string) *SQLBuilder {
	if table != "" {
		b.parts = append(b.parts, "ON", QuoteIdentifier(table))
	}
	return b
}

// Columns adds a parenthesized, quoted column list.
//
// Example:
//
//	builder.Columns("tenant_id", "email")  // ("tenant_id", "email")
func (b *SQLBuilder) Columns(names ...string) *SQLBuilder {
	if len(names) == 0 {
		return b
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdentifier(name)
	}
	b.parts = append(b.parts, "("+strings.Join(quoted, ", ")+")")
	return b
}

// SetSchema adds a SET SCHEMA clause, as used when promoting staged objects
// out of a shim schema.
//
// Example:
//
//	builder.Alter("VIEW").Name("shim.v").SetSchema("public")
//	// ALTER VIEW "shim"."v" SET SCHEMA "public"
func (b *SQLBuilder) SetSchema(schema string) *SQLBuilder {
	if schema != "" {
		b.parts = append(b.parts, "SET", "SCHEMA", QuoteIdentifier(schema))
	}
	return b
}

// As adds an AS clause with a raw expression.
//
// Example:
//
//	builder.As("SELECT id FROM accounts")  // AS SELECT id FROM accounts
func (b *SQLBuilder) As(expression string) *SQLBuilder {
	if expression != "" {
		b.parts = append(b.parts, "AS", expression)
	}
	return b
}

// Raw adds raw SQL text to the builder. Use sparingly for constructs that
// don't fit the fluent pattern.
//
// Example:
//
//	builder.Raw("CASCADE")  // CASCADE
func (b *SQLBuilder) Raw(sql string) *SQLBuilder {
	if sql != "" {
		b.parts = append(b.parts, sql)
	}
	return b
}

// String builds and returns the final SQL statement with a semicolon.
func (b *SQLBuilder) String() string {
	if len(b.parts) == 0 {
		return ""
	}
	return strings.Join(b.parts, " ") + ";"
}

// StringWithoutSemicolon builds and returns the final SQL statement without
// a semicolon. Useful for building parts of larger statements.
func (b *SQLBuilder) StringWithoutSemicolon() string {
	return strings.Join(b.parts, " ")
}
