package terraform

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies a failed external tool command from its stderr.
type ErrorCategory string

// Error categories derived from stderr keyword heuristics.
const (
	CategoryAuthentication   ErrorCategory = "authentication"
	CategoryResourceConflict ErrorCategory = "resource_conflict"
	CategoryResourceNotFound ErrorCategory = "resource_not_found"
	CategoryValidation       ErrorCategory = "validation"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryUnknown          ErrorCategory = "unknown"
)

// CommandError is a classified failure of one pipeline step.
type CommandError struct {
	Step     string
	Category ErrorCategory
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("%s failed (%s): %s", e.Step, e.Category, msg)
}

// Classify maps a command's stderr text to an error category using keyword
// heuristics. Matching is case-insensitive; the first matching rule wins.
func Classify(stderr string) ErrorCategory {
	text := strings.ToLower(stderr)

	switch {
	case containsAny(text, "access denied", "accessdenied", "unauthorized", "invalid credentials", "no valid credential"):
		return CategoryAuthentication
	case containsAny(text, "already exists", "alreadyexists", "duplicate"):
		return CategoryResourceConflict
	case containsAny(text, "not found", "notfound", "does not exist", "no such"):
		return CategoryResourceNotFound
	case containsAny(text, "timeout", "timed out", "deadline exceeded"):
		return CategoryTimeout
	case containsAny(text, "invalid value", "unsupported argument", "invalid argument", "validation error"):
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
