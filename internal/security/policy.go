package security

import (
	"errors"
	"regexp"
	"unicode"
	"unicode/utf8"
)

var (
	ErrWeakPassword    = errors.New("password does not meet the security policy")
	ErrInvalidUsername = errors.New("username has an invalid format")

	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// CheckPassword requires at least 8 characters with an uppercase letter, a
// lowercase letter and a digit.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return ErrWeakPassword
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}

func CheckUsername(username string) error {
	if n := len(username); n < 3 || n > 50 {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}
