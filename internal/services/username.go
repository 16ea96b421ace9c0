package services

import (
	"context"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

const (
	usernameBaseLength  = 15
	maxUsernameAttempts = 5
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// usernameBase derives the stem of a generated username from an email local part.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	base := nonAlphanumeric.ReplaceAllString(strings.ToLower(local), "")
	if len(base) > usernameBaseLength {
		base = base[:usernameBaseLength]
	}
	return base
}

func randomSuffix() string {
	return strconv.Itoa(100 + rand.Intn(900))
}

// generateUsername appends a 3-digit suffix to the email stem and keeps
// appending another on each collision, up to maxUsernameAttempts.
func (s *AccountService) generateUsername(ctx context.Context, email string) (string, error) {
	candidate := usernameBase(email)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		candidate += s.suffix()
		if len(candidate) > maxUsernameLength {
			break
		}
		taken, err := s.users.UsernameExists(ctx, candidate, "")
		if err != nil {
			return "", internalError("Registration failed", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", conflictError("Could not generate a unique username, please choose one")
}
