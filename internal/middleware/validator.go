package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Upload validation and sanitization utilities

var hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{32,128}$`)

// ValidateHash checks that a declared content hash is plausible hex.
func ValidateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("file hash cannot be empty")
	}
	if !hashPattern.MatchString(hash) {
		return fmt.Errorf("invalid file hash format (hex, 32-128 chars)")
	}
	return nil
}

// ValidateFileName rejects traversal attempts and control characters in
// uploaded file names.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return fmt.Errorf("invalid characters in file name")
	}
	cleaned := filepath.Clean(name)
	if strings.Contains(cleaned, "..") || strings.ContainsRune(cleaned, filepath.Separator) {
		return fmt.Errorf("path components are not allowed in file names")
	}
	if len(name) > 255 {
		return fmt.Errorf("file name too long (max 255 chars)")
	}
	return nil
}

// ValidateFileType checks the declared type against the allowed set.
// An empty allowed set permits everything.
func ValidateFileType(fileType string, allowed []string) error {
	if fileType == "" {
		return fmt.Errorf("file type cannot be empty")
	}
	if len(allowed) == 0 {
		return nil
	}
	ft := strings.ToLower(fileType)
	for _, a := range allowed {
		if ft == strings.ToLower(a) {
			return nil
		}
	}
	return fmt.Errorf("unsupported or dangerous file type: %s", fileType)
}

// SanitizeString removes null bytes and control characters.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit clamps pagination limits.
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
