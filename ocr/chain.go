package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Chain tries providers in strict priority order until one yields non-empty
// trimmed text. The order is a correctness requirement: the local extractor
// runs before any paid API. The chain holds no state between calls.
type Chain struct {
	providers []Provider
}

// NewChain builds a chain over the given providers. Order is preserved.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Providers returns the chain's providers in priority order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Extract runs the chain. The first provider returning non-empty trimmed text
// wins; warnings accumulated from providers skipped or failed before it are
// attached to the winning result. When nothing wins, the error is a
// *NoResultError whose Permanent method tells the caller whether to retry.
func (c *Chain) Extract(ctx context.Context, src SourceRef) (*Result, error) {
	var warnings []string
	anyConfigured := false

	for _, p := range c.providers {
		if !p.Configured() {
			warnings = append(warnings, fmt.Sprintf("%s: not configured", p.Name()))
			continue
		}
		anyConfigured = true

		result, err := c.tryProvider(ctx, p, src)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", p.Name(), err))
			logrus.WithFields(logrus.Fields{
				"provider": p.Name(),
				"document": src.DocumentID,
			}).Warnf("ocr provider unavailable: %v", err)
			continue
		}
		if strings.TrimSpace(result.Text) == "" {
			warnings = append(warnings, fmt.Sprintf("%s: empty result", p.Name()))
			continue
		}

		result.Provider = p.Name()
		result.Warnings = warnings
		return result, nil
	}

	return nil, &NoResultError{Configured: anyConfigured, Warnings: warnings}
}

// tryProvider time-boxes a single provider call. A timeout is an
// unavailability signal for that provider only, never a chain-level error.
func (c *Chain) tryProvider(ctx context.Context, p Provider, src SourceRef) (*Result, error) {
	timeout := p.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := p.Extract(callCtx, src)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}
