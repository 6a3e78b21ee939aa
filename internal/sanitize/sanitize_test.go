package sanitize

import (
	"strings"
	"testing"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already valid",
			input:    "grade9-math",
			expected: "grade9-math",
		},
		{
			name:     "valid with dots and underscores",
			input:    "physics.ch_01-notes",
			expected: "physics.ch_01-notes",
		},
		{
			name:     "spaces replaced and hash appended",
			input:    "My Notes",
			expected: "My-Notes-" + shortHash("My Notes"),
		},
		{
			name:     "unicode replaced",
			input:    "اردو notes",
			expected: "notes-" + shortHash("اردو notes"),
		},
		{
			name:     "leading and trailing separators trimmed",
			input:    "--pets--",
			expected: "pets-" + shortHash("--pets--"),
		},
		{
			name:     "only invalid chars",
			input:    "!!!",
			expected: "collection-" + shortHash("!!!"),
		},
		{
			name:     "empty string",
			input:    "",
			expected: "collection-" + shortHash(""),
		},
		{
			name:     "too short gets suffix",
			input:    "ab",
			expected: "ab-" + shortHash("ab"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CollectionName(tt.input)
			if result != tt.expected {
				t.Errorf("CollectionName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCollectionNameIdempotent(t *testing.T) {
	inputs := []string{
		"pets",
		"My Notes",
		"ab",
		"",
		"!!!",
		"user/uploads/Chapter 3.pdf",
		strings.Repeat("x", 600),
		strings.Repeat("a.", 300),
	}

	for _, input := range inputs {
		once := CollectionName(input)
		twice := CollectionName(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestCollectionNameAlwaysValid(t *testing.T) {
	inputs := []string{
		"pets",
		"",
		"!!!",
		"a",
		"اردو",
		"   spaces   ",
		"trailing-dot.",
		".leading-dot",
		strings.Repeat("x", 600),
		strings.Repeat("-", 520),
		"name with\nnewline",
	}

	for _, input := range inputs {
		result := CollectionName(input)
		if err := ValidateCollectionName(result); err != nil {
			t.Errorf("CollectionName(%q) = %q failed validation: %v", input, result, err)
		}
	}
}

func TestCollectionNameCollisionResistance(t *testing.T) {
	// Distinct originals that would sanitize identically without the hash
	// suffix must produce distinct names.
	a := CollectionName("my notes")
	b := CollectionName("my+notes")
	if a == b {
		t.Errorf("collision: %q and %q both sanitize to %q", "my notes", "my+notes", a)
	}
}

func TestCollectionNameTruncation(t *testing.T) {
	long := strings.Repeat("k", 600)
	result := CollectionName(long)
	if len(result) > MaxCollectionNameLength {
		t.Errorf("result length %d exceeds %d", len(result), MaxCollectionNameLength)
	}
	if !strings.HasSuffix(result, shortHash(long)) {
		t.Errorf("truncated name %q missing hash suffix", result[len(result)-12:])
	}
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "grade9-math", false},
		{"min length", "ab1", false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("x", 513), true},
		{"max length", strings.Repeat("x", 512), false},
		{"leading dash", "-abc", true},
		{"trailing underscore", "abc_", true},
		{"space inside", "a b", true},
		{"unicode", "bücher", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCollectionName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
