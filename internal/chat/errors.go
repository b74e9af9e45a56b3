package chat

import "strings"

// User-facing messages for an unavailable inference backend. The turn ends
// with one of these as a stream error event instead of a raised error.
const (
	msgBackendOffline = "The local model server appears to be offline. Start it and send your message again."
	msgBackendNoAuth  = "The inference backend is not configured. Set your API key and try again."
	msgBackendGeneric = "The assistant is temporarily unavailable. Please try again in a moment."
)

// backendErrorMessage classifies an inference failure by its signature and
// returns the explanation shown to the user.
func backendErrorMessage(err error) string {
	if err == nil {
		return msgBackendGeneric
	}
	lower := strings.ToLower(err.Error())

	for _, pat := range []string{"connection refused", "dial tcp", "no such host", "ollama"} {
		if strings.Contains(lower, pat) {
			return msgBackendOffline
		}
	}
	for _, pat := range []string{"api key", "unauthorized", "401", "403", "permission denied", "credentials"} {
		if strings.Contains(lower, pat) {
			return msgBackendNoAuth
		}
	}
	return msgBackendGeneric
}
