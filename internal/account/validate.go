package account

import (
	"regexp"
	"unicode"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername checks an identity against the format rules.
func ValidateUsername(username string) error {
	if username == "" {
		return &FormatError{Reason: "Username must be a non-empty string"}
	}
	if len(username) < minUsernameLen {
		return &FormatError{Reason: "Username must be at least 3 characters long"}
	}
	if !usernamePattern.MatchString(username) {
		return &FormatError{Reason: "Username can only contain letters, numbers, and underscores"}
	}
	return nil
}

// ValidatePassword checks a secret against the format rules.
func ValidatePassword(password string) error {
	if password == "" {
		return &FormatError{Reason: "Password must be a non-empty string"}
	}
	if len([]rune(password)) < minPasswordLen {
		return &FormatError{Reason: "Password must be at least 6 characters long"}
	}
	var hasDigit, hasLetter bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	if !hasDigit {
		return &FormatError{Reason: "Password must contain at least one number"}
	}
	if !hasLetter {
		return &FormatError{Reason: "Password must contain at least one letter"}
	}
	return nil
}
