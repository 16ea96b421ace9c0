package services

import (
	"regexp"
	"strings"
)

const (
	minPasswordLength = 6
	minUsernameLength = 3
	maxUsernameLength = 30
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return validationError("Username must be between 3 and 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return validationError("Username can only contain lowercase letters, numbers and underscores")
	}
	return nil
}
