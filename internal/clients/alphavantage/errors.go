package alphavantage

import (
	"errors"
	"fmt"
)

// ErrRateLimitExceeded is returned when the daily quota is spent or the API
// answers with a throttling note.
type ErrRateLimitExceeded struct {
	ResetAt string
}

func (e ErrRateLimitExceeded) Error() string {
	if e.ResetAt != "" {
		return fmt.Sprintf("alpha vantage rate limit exceeded, resets at %s", e.ResetAt)
	}
	return "alpha vantage rate limit exceeded"
}

// ErrInvalidAPIKey is returned when no key is configured or the API rejects it.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alpha vantage API key is missing or invalid"
}

// ErrSymbolNotFound is returned when the API does not know the symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alpha vantage: symbol %s not found", e.Symbol)
}

// ErrAPI carries any other "Error Message" the API returns.
type ErrAPI struct {
	Message string
}

func (e ErrAPI) Error() string {
	return "alpha vantage error: " + e.Message
}

// isAPIResponseError reports whether err is an answer from the API rather
// than a transport failure. Such answers do not count against the breaker.
func isAPIResponseError(err error) bool {
	switch err.(type) {
	case ErrRateLimitExceeded, ErrInvalidAPIKey, ErrSymbolNotFound, ErrAPI:
		return true
	}
	return false
}

var errNoTimeSeries = errors.New("response carries no time series")
