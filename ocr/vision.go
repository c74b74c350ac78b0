package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const visionPrompt = "Extract all text from this document exactly as it appears. " +
	"Preserve line breaks and amounts. Output only the extracted text, nothing else."

// VisionProvider is the last resort in the chain: it sends the document to a
// multimodal model and asks for a transcription. Costliest per call, so it
// only runs after the local extractor and the commercial API both came up
// empty.
type VisionProvider struct {
	apiKey  string
	model   string
	timeout time.Duration

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewVisionProvider builds the vision-model provider. An empty apiKey leaves
// it unconfigured. The client is created lazily on first use.
func NewVisionProvider(apiKey, model string, timeout time.Duration) *VisionProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VisionProvider{apiKey: apiKey, model: model, timeout: timeout}
}

func (p *VisionProvider) Name() string {
	return "vision"
}

func (p *VisionProvider) Configured() bool {
	return p.apiKey != ""
}

func (p *VisionProvider) Timeout() time.Duration {
	return p.timeout
}

func (p *VisionProvider) Extract(ctx context.Context, src SourceRef) (*Result, error) {
	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(context.Background(), option.WithAPIKey(p.apiKey))
	})
	if p.initErr != nil {
		return nil, fmt.Errorf("create client: %w", p.initErr)
	}
	if len(src.Bytes) == 0 {
		return nil, fmt.Errorf("vision extraction needs inline bytes")
	}

	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: src.MimeType, Data: src.Bytes},
		genai.Text(visionPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
	}
	return &Result{Text: strings.TrimSpace(out.String())}, nil
}

// Close releases the underlying API client.
func (p *VisionProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
