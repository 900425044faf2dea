package chain

import (
	"fmt"
	"net/http"
	"time"
)

// ProviderFailure is one provider's failed attempt. It never leaves the chain
// on its own; it is carried inside AllProvidersExhausted for the last provider.
type ProviderFailure struct {
	Provider string
	Attempt  int
	Err      error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("provider %s (attempt %d): %v", e.Provider, e.Attempt, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// AllProvidersExhausted means every provider for a capability failed
type AllProvidersExhausted struct {
	Capability string
	Provider   string
	Attempts   int
	Err        error
}

func (e *AllProvidersExhausted) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: all providers exhausted: %v", e.Capability, e.Err)
	}
	return fmt.Sprintf("%s: all providers exhausted after %d attempts, last %s: %v", e.Capability, e.Attempts, e.Provider, e.Err)
}

func (e *AllProvidersExhausted) Unwrap() error { return e.Err }

// Initializing is returned by a provider whose backend is still warming up.
// The chain retries the same provider a bounded number of times.
type Initializing struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *Initializing) Error() string {
	return fmt.Sprintf("%s is still initializing", e.Provider)
}

// StatusError is a non-2xx HTTP answer from a provider
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s: %s", e.Provider, e.Status, http.StatusText(e.Status), e.Body)
}

// CheckStatus turns a non-2xx status into an error. The configured retry
// status maps to Initializing so the chain retries instead of moving on.
func CheckStatus(provider string, resp *http.Response, body []byte, retryStatus int) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if retryStatus != 0 && resp.StatusCode == retryStatus {
		return &Initializing{Provider: provider}
	}
	if len(body) > 300 {
		body = body[:300]
	}
	return &StatusError{Provider: provider, Status: resp.StatusCode, Body: string(body)}
}
