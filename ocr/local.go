package ocr

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"
)

// LocalProvider is the first provider in the chain: it reads the text layer
// out of digital PDFs and runs Tesseract over images, without any external
// call. Scanned PDFs with no text layer come back empty so the chain moves on.
type LocalProvider struct {
	enabled bool
	lang    string
}

// NewLocalProvider builds the offline extractor. lang is the Tesseract
// language code, defaulting to English.
func NewLocalProvider(enabled bool, lang string) *LocalProvider {
	if lang == "" {
		lang = "eng"
	}
	return &LocalProvider{enabled: enabled, lang: lang}
}

func (p *LocalProvider) Name() string {
	return "local"
}

func (p *LocalProvider) Configured() bool {
	return p.enabled
}

func (p *LocalProvider) Timeout() time.Duration {
	return 30 * time.Second
}

func (p *LocalProvider) Extract(ctx context.Context, src SourceRef) (*Result, error) {
	if len(src.Bytes) == 0 {
		return nil, fmt.Errorf("local extraction needs inline bytes")
	}

	if src.MimeType == "application/pdf" {
		return p.extractPDF(src.Bytes)
	}
	if strings.HasPrefix(src.MimeType, "image/") {
		return p.extractImage(ctx, src.Bytes)
	}
	return nil, fmt.Errorf("unsupported mime type %q", src.MimeType)
}

func (p *LocalProvider) extractPDF(data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	result := &Result{}
	var all strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			result.Pages = append(result.Pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A malformed page is skipped; remaining pages may still carry text
			result.Pages = append(result.Pages, "")
			continue
		}
		result.Pages = append(result.Pages, text)
		all.WriteString(text)
		all.WriteString("\n")
	}

	result.Text = strings.TrimSpace(all.String())
	return result, nil
}

func (p *LocalProvider) extractImage(ctx context.Context, data []byte) (*Result, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(p.lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		client.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}

	done := make(chan struct{})
	var text string
	var err error
	go func() {
		defer close(done)
		text, err = client.Text()
		// The handle must outlive Text: on a context timeout the caller
		// returns while this goroutine is still inside the cgo call, so
		// teardown happens here rather than in a defer on the method.
		client.Close()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	return &Result{Text: strings.TrimSpace(text)}, nil
}
