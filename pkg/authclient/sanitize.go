package authclient

import "strings"

const GenericMessage = "Something went wrong. Please try again."

var sensitive = []string{
	"sql",
	"sqlstate",
	"pq:",
	"postgres",
	"syntax error",
	"duplicate key",
	"violates",
	"relation ",
	"stack",
	"goroutine",
	"panic",
	"runtime error",
	"jwt",
	"secret",
	"password_hash",
	"dial tcp",
	"connection refused",
	".go:",
}

// SanitizeMessage returns msg unless it contains text that looks like server
// internals, in which case a generic message is returned instead.
func SanitizeMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return GenericMessage
	}
	lower := strings.ToLower(msg)
	for _, s := range sensitive {
		if strings.Contains(lower, s) {
			return GenericMessage
		}
	}
	return msg
}
