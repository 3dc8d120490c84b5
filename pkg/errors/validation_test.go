package errors

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"sequential", "n1", false},
		{"uuid", "6f1c2f4e-8a7b-4d3c-9e2a-1b5c7d9e0f11", false},
		{"with spaces inside", "node one", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"null byte", "n\x001", true},
		{"newline", "n\n1", true},
		{"leading space", " n1", true},
		{"trailing space", "n1 ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDocumentName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "onboarding", false},
		{"with dash", "age-check", false},
		{"with dot", "v1.2", false},

		{"empty", "", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"traversal", "a..b", true},
		{"hidden", ".secret", true},
		{"space", "my flow", true},
		{"too long", strings.Repeat("x", 200), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocumentName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDocumentName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidName) {
				t.Errorf("error code = %v, want %v", GetCode(err), ErrCodeInvalidName)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"mongodb", "mongodb://localhost:27017", false},
		{"mongodb srv", "mongodb+srv://cluster.example.com", false},
		{"empty", "", true},
		{"http", "http://localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.input, "mongodb", "mongodb+srv")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
