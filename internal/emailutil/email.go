package emailutil

import (
	"net/mail"
	"strings"
)

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the part after the last '@', or "" when there is
// no usable domain. Logs carry the domain rather than the full address.
func ExtractDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i <= 0 || i == len(email)-1 {
		return ""
	}
	return email[i+1:]
}

// Valid reports whether email is a bare addr-spec, without a display name.
func Valid(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Name == "" && addr.Address == email
}
