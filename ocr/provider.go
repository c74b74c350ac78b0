package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SourceRef points a provider at the bytes to extract. Callers guarantee the
// reference stays valid for the duration of the provider call; signed URLs
// must outlive the slowest provider timeout.
type SourceRef struct {
	DocumentID string
	MimeType   string
	Bytes      []byte
	SignedURL  string
}

// Result is the uniform extraction output across providers. Empty text is not
// an error; it signals the chain to try the next provider.
type Result struct {
	Text     string
	Pages    []string
	Provider string
	Duration time.Duration
	Warnings []string
}

// Provider is a single text-extraction backend. Extract returns an empty-text
// result when the source holds no recognizable text; errors and timeouts mean
// the provider is unavailable for this call.
type Provider interface {
	Name() string
	Configured() bool
	Timeout() time.Duration
	Extract(ctx context.Context, src SourceRef) (*Result, error)
}

// NoResultError is returned when no provider produced text. Configured
// distinguishes a transient outage (providers exist but all failed or came
// back empty) from a structural misconfiguration (nothing to try at all),
// which is permanent and must not be retried.
type NoResultError struct {
	Configured bool
	Warnings   []string
}

func (e *NoResultError) Error() string {
	if !e.Configured {
		return "ocr: no provider configured"
	}
	return fmt.Sprintf("ocr: all providers failed or returned empty text: %s", strings.Join(e.Warnings, "; "))
}

// Permanent reports whether retrying can possibly succeed.
func (e *NoResultError) Permanent() bool {
	return !e.Configured
}
