package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// DocscanProvider calls a commercial text-extraction API over HTTP. A circuit
// breaker shields the pipeline from a degraded service: while the breaker is
// open the provider reports unavailable immediately instead of burning the
// job's time budget.
type DocscanProvider struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

type docscanResponse struct {
	Success bool     `json:"success"`
	Text    string   `json:"text"`
	Pages   []string `json:"pages,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// NewDocscanProvider builds the commercial-API provider. An empty url leaves
// the provider unconfigured.
func NewDocscanProvider(url, apiKey string, timeout time.Duration) *DocscanProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DocscanProvider{
		url:        url,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "docscan",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}
}

func (p *DocscanProvider) Name() string {
	return "docscan"
}

func (p *DocscanProvider) Configured() bool {
	return p.url != "" && p.apiKey != ""
}

func (p *DocscanProvider) Timeout() time.Duration {
	return p.timeout
}

func (p *DocscanProvider) Extract(ctx context.Context, src SourceRef) (*Result, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.call(ctx, src)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("service degraded, circuit open")
		}
		return nil, err
	}
	return out.(*Result), nil
}

func (p *DocscanProvider) call(ctx context.Context, src SourceRef) (*Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", src.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fileWriter.Write(src.Bytes); err != nil {
		return nil, fmt.Errorf("write file data: %w", err)
	}
	_ = writer.WriteField("mime_type", src.MimeType)
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"/v1/extract", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var parsed docscanResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("extraction failed: %s", parsed.Error)
	}

	return &Result{Text: parsed.Text, Pages: parsed.Pages}, nil
}
