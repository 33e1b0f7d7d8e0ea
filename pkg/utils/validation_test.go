package utils_test

import (
	"strings"
	"testing"

	"github.com/stagehand/stagehand/pkg/utils"
	"github.com/stretchr/testify/require"
)

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "simple name",
			input:    "accounts",
			expected: true,
		},
		{
			name:     "leading underscore",
			input:    "_audit",
			expected: true,
		},
		{
			name:     "with digits",
			input:    "tenant_id2",
			expected: true,
		},
		{
			name:     "single letter",
			input:    "a",
			expected: true,
		},
		{
			name:     "single underscore",
			input:    "_",
			expected: true,
		},
		{
			name:     "empty string",
			input:    "",
			expected: false,
		},
		{
			name:     "leading digit",
			input:    "2fa_codes",
			expected: false,
		},
		{
			name:     "uppercase letter",
			input:    "Accounts",
			expected: false,
		},
		{
			name:     "embedded space",
			input:    "my table",
			expected: false,
		},
		{
			name:     "embedded quote",
			input:    `ta"ble`,
			expected: false,
		},
		{
			name:     "qualified name",
			input:    "public.accounts",
			expected: false,
		},
		{
			name:     "exactly 63 bytes",
			input:    strings.Repeat("a", 63),
			expected: true,
		},
		{
			name:     "64 bytes exceeds name limit",
			input:    strings.Repeat("a", 64),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, utils.IsValidIdentifier(tt.input))
		})
	}
}
