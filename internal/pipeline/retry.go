package pipeline

import "strings"

// retryablePatterns groups transient-error substrings by category. Matched
// case-insensitively against err.Error() because the inference SDKs do not
// expose typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "connection refused", "timeout", "temporary"},
}

// retryableError reports whether err should trigger a step retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pat := range group {
			if strings.Contains(lower, pat) {
				return true
			}
		}
	}
	return false
}
