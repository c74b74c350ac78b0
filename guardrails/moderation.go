package guardrails

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/ledgerscan/ledgerscan/internal/request"
)

// ModerationVerdict is the content-safety classifier's answer.
type ModerationVerdict struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories,omitempty"`
}

// ModerationClient classifies text against a content-safety service.
type ModerationClient interface {
	Classify(ctx context.Context, text string) (*ModerationVerdict, error)
}

// HTTPModerationClient calls an external moderation endpoint. Transient
// failures are retried with exponential backoff inside the call's timeout.
type HTTPModerationClient struct {
	url    string
	apiKey string
}

// NewHTTPModerationClient returns nil when no URL is configured, which
// disables moderation in the evaluator.
func NewHTTPModerationClient(url, apiKey string) *HTTPModerationClient {
	if url == "" {
		return nil
	}
	return &HTTPModerationClient{url: url, apiKey: apiKey}
}

type moderationRequest struct {
	Input string `json:"input"`
}

func (c *HTTPModerationClient) Classify(ctx context.Context, text string) (*ModerationVerdict, error) {
	var verdict ModerationVerdict

	operation := func() error {
		payload, err := request.ToJsonReq(&moderationRequest{Input: text})
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.url, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := request.Call(req, &verdict)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return errStatus(resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(errStatus(resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
	), 3), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrap(err, "moderation call failed")
	}
	return &verdict, nil
}

type errStatus int

func (e errStatus) Error() string {
	return fmt.Sprintf("moderation service returned status %d", int(e))
}
