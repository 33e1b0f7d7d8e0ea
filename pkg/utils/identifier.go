package utils

import "strings"

// QuoteIdentifier wraps an identifier in double quotes, handling qualified
// identifiers. Qualified schema.table style identifiers are quoted per part,
// and embedded double quotes are doubled per PostgreSQL quoting rules.
//
// Examples:
//   - "accounts" -> "\"accounts\""
//   - "reporting.accounts" -> "\"reporting\".\"accounts\""
//   - "\"accounts\"" -> "\"accounts\"" (already quoted, not double-quoted)
//   - "" -> ""
//
// This function is used throughout the codebase for consistent identifier
// formatting in generated DDL statements.
func QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}

	// An already-quoted single identifier (possibly containing dots) is
	// returned as-is rather than quoted again.
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		inner := name[1 : len(name)-1]
		if !strings.Contains(inner, `"`) {
			return name
		}
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if len(part) >= 2 && part[0] == '"' && part[len(part)-1] == '"' {
			continue
		}
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// QuoteQualifiedName formats a schema-qualified name with proper quoting.
// If schema is nil or empty, only the name is quoted.
//
// Examples:
//   - ("shim_3", "accounts") -> "\"shim_3\".\"accounts\""
//   - (nil, "accounts") -> "\"accounts\""
//   - ("", "accounts") -> "\"accounts\""
func QuoteQualifiedName(schema *string, name string) string {
	if schema != nil && *schema != "" {
		return QuoteIdentifier(*schema) + "." + QuoteIdentifier(name)
	}
	return QuoteIdentifier(name)
}

// IsQuoted checks if a string is already wrapped in double quotes.
//
// Examples:
//   - "\"accounts\"" -> true
//   - "accounts" -> false
//   - "\"public\".\"accounts\"" -> false (qualified name, not a single quoted identifier)
//   - "" -> false
func IsQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' && !strings.Contains(s[1:len(s)-1], `"`)
}

// StripQuotes removes double quotes from an identifier if present.
//
// Examples:
//   - "\"accounts\"" -> "accounts"
//   - "accounts" -> "accounts"
//   - "\"public\".\"accounts\"" -> "public.accounts"
func StripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}
