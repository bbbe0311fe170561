package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization helpers for the HTTP layer.

var sessionIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// ValidateSessionID checks the UUID shape of a session id route parameter.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if !sessionIDPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid session id format")
	}
	return nil
}

// ValidateFilename rejects names that could escape the upload directory or
// smuggle shell metacharacters into logs.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("filename too long")
	}
	dangerous := []string{"..", "/", "\\", "\x00", "\n", "\r", "`", "$("}
	for _, d := range dangerous {
		if strings.Contains(name, d) {
			return fmt.Errorf("invalid characters in filename")
		}
	}
	return nil
}

// SanitizeString removes null bytes and control characters from free text.
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

// ValidateJobDescription bounds the free-text job description.
func ValidateJobDescription(jd string) error {
	jd = strings.TrimSpace(jd)
	if jd == "" {
		return fmt.Errorf("job description cannot be empty")
	}
	if len(jd) > 20000 {
		return fmt.Errorf("job description too long (max 20000 characters)")
	}
	return nil
}
