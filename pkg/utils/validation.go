package utils

// maxIdentifierBytes is PostgreSQL's NAMEDATALEN-1 limit. Longer names are
// silently truncated by the server, which would break name-based reverts.
const maxIdentifierBytes = 63

// IsValidIdentifier checks if a string is usable as a PostgreSQL identifier
// without quoting surprises: it must start with a letter or underscore,
// contain only lowercase letters, digits, and underscores, and fit within
// the server's 63-byte name limit.
//
// Examples:
//   - "accounts" -> true
//   - "_audit" -> true
//   - "tenant_id2" -> true
//   - "Accounts" -> false (would fold to lowercase unquoted)
//   - "2fa_codes" -> false (leading digit)
//   - "" -> false
func IsValidIdentifier(name string) bool {
	if name == "" || len(name) > maxIdentifierBytes {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
