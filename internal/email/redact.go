package email

import "strings"

// RedactEmail masks an email address for safe logging by replacing all but
// the first character of the local part with asterisks: "ana@gmail.com"
// becomes "a***@gmail.com". A string without an "@" is masked entirely so
// malformed addresses never leak PII into logs.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "***"
	}

	local := parts[0]
	domain := parts[1]
	if len(local) == 0 {
		return "***@" + domain
	}
	return string(local[0]) + "***@" + domain
}
