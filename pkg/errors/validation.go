package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxIdentifierLength bounds node and edge ids accepted from documents.
const maxIdentifierLength = 256

// ValidateIdentifier validates a node or edge id taken from untrusted input.
//
// The validation rules are intentionally conservative:
//   - No empty ids
//   - No control characters or null bytes
//   - No leading or trailing whitespace
//   - Maximum length of 256 characters
func ValidateIdentifier(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "id cannot be empty")
	}

	if len(id) > maxIdentifierLength {
		return New(ErrCodeInvalidInput, "id too long (max %d characters)", maxIdentifierLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "id %q contains invalid control characters", id)
		}
	}

	if strings.TrimSpace(id) != id {
		return New(ErrCodeInvalidInput, "id %q has surrounding whitespace", id)
	}

	return nil
}

// documentNameRegex matches names usable as storage keys and file basenames.
var documentNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateDocumentName validates the name under which a workflow document is stored.
// Names double as file basenames and redis/mongo keys, so they must be a
// single path segment without traversal sequences.
func ValidateDocumentName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidName, "document name cannot be empty")
	}

	const maxNameLength = 128
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidName, "document name too long (max %d characters)", maxNameLength)
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidName, "document name cannot contain path separators")
	}

	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidName, "document name cannot contain path traversal sequences (..)")
	}

	if !documentNameRegex.MatchString(name) {
		return New(ErrCodeInvalidName, "invalid document name: %q", name)
	}

	return nil
}

// ValidateURL validates a connection URL for one of the allowed schemes.
func ValidateURL(rawURL string, schemes ...string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	for _, s := range schemes {
		if strings.HasPrefix(rawURL, s+"://") {
			return nil
		}
	}

	return New(ErrCodeInvalidInput, "URL must use one of the schemes %s", strings.Join(schemes, ", "))
}
