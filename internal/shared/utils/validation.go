package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length limits
const (
	MaxElementLength = 256
	MaxCookieLength  = 4096
)

// JSIdentifierPattern matches names the client script can expose as plain
// global functions
var JSIdentifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if value == "" {
		return nil
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", fieldName)
	}
	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains invalid characters", fieldName)
		}
	}
	return nil
}

// ValidateElement validates an element name arriving in a call frame. The
// empty name is allowed; it only ever reaches the wildcard.
func ValidateElement(name string) error {
	return ValidateString(name, "element", 0, MaxElementLength, false)
}

// IsJSIdentifier reports whether name can be bound as a global function
func IsJSIdentifier(name string) bool {
	return JSIdentifierPattern.MatchString(name)
}

// SafeJoin joins rel onto root and rejects results that escape root
func SafeJoin(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("no root folder configured")
	}
	cleaned := filepath.Clean("/" + filepath.FromSlash(rel))
	full := filepath.Join(root, cleaned)

	relToRoot, err := filepath.Rel(root, full)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root folder", rel)
	}
	return full, nil
}
