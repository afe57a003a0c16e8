// Package validation checks user-supplied fields before they reach the store.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 72 // bcrypt ignores bytes beyond 72
	MaxEmailLength    = 254
	MaxBioLength      = 150
	MaxCaptionLength  = 2200
	MaxCommentLength  = 1000
	MaxMessageLength  = 2000
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,30}$`)

// ValidGenders lists the accepted profile gender values.
var ValidGenders = map[string]struct{}{
	"male":   {},
	"female": {},
	"other":  {},
}

// ValidateUsername accepts 3-30 letters, digits, underscores and dots, not
// starting or ending with a separator.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return errors.New("username must be 3-30 characters of letters, numbers, underscores or dots")
	}
	if strings.ContainsAny(username[:1], "_.") || strings.ContainsAny(username[len(username)-1:], "_.") {
		return errors.New("username cannot start or end with an underscore or dot")
	}
	return nil
}

// ValidateEmail accepts a bare address of at most 254 characters.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email is not a valid address")
	}
	_, domain, _ := strings.Cut(email, "@")
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") || strings.HasPrefix(domain, ".") {
		return errors.New("email domain is not valid")
	}
	return nil
}

// ValidatePassword enforces the length bounds.
func ValidatePassword(password string) error {
	n := len(password)
	if n < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// ValidateBio bounds the profile bio.
func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return fmt.Errorf("bio must be at most %d characters", MaxBioLength)
	}
	return nil
}

// ValidateGender accepts one of ValidGenders.
func ValidateGender(gender string) error {
	if _, ok := ValidGenders[gender]; !ok {
		return errors.New("gender must be male, female or other")
	}
	return nil
}

// ValidateCaption bounds a post caption. Empty captions are allowed.
func ValidateCaption(caption string) error {
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return fmt.Errorf("caption must be at most %d characters", MaxCaptionLength)
	}
	return nil
}

// ValidateText requires non-blank text of at most max characters. field names the input in the error.
func ValidateText(field, text string, max int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(text) > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}
