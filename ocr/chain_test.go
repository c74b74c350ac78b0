package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	configured bool
	text       string
	err        error
	calls      int
}

func (f *fakeProvider) Name() string           { return f.name }
func (f *fakeProvider) Configured() bool       { return f.configured }
func (f *fakeProvider) Timeout() time.Duration { return time.Second }

func (f *fakeProvider) Extract(ctx context.Context, src SourceRef) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Text: f.text}, nil
}

func TestChainFirstNonEmptyWins(t *testing.T) {
	p1 := &fakeProvider{name: "local", configured: true, err: errors.New("timeout")}
	p2 := &fakeProvider{name: "docscan", configured: true, text: "statement text"}
	p3 := &fakeProvider{name: "vision", configured: true, text: "should never run"}

	result, err := NewChain(p1, p2, p3).Extract(context.Background(), SourceRef{DocumentID: "doc_1"})
	require.NoError(t, err)

	assert.Equal(t, "statement text", result.Text)
	assert.Equal(t, "docscan", result.Provider)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "local")

	// strictly priority ordered: the winner short-circuits the rest
	assert.Equal(t, 1, p1.calls)
	assert.Equal(t, 1, p2.calls)
	assert.Equal(t, 0, p3.calls)
}

func TestChainEmptyTextFallsThrough(t *testing.T) {
	p1 := &fakeProvider{name: "local", configured: true, text: "   \n "}
	p2 := &fakeProvider{name: "docscan", configured: true, text: "receipt total 4.50"}

	result, err := NewChain(p1, p2).Extract(context.Background(), SourceRef{})
	require.NoError(t, err)

	assert.Equal(t, "docscan", result.Provider)
	assert.Contains(t, result.Warnings[0], "empty result")
}

func TestChainUnconfiguredSkippedWithWarning(t *testing.T) {
	p1 := &fakeProvider{name: "local", configured: false}
	p2 := &fakeProvider{name: "docscan", configured: true, text: "hello"}

	result, err := NewChain(p1, p2).Extract(context.Background(), SourceRef{})
	require.NoError(t, err)

	assert.Equal(t, 0, p1.calls)
	assert.Contains(t, result.Warnings[0], "not configured")
}

type stalledProvider struct {
	name string
}

func (s *stalledProvider) Name() string           { return s.name }
func (s *stalledProvider) Configured() bool       { return true }
func (s *stalledProvider) Timeout() time.Duration { return 20 * time.Millisecond }

func (s *stalledProvider) Extract(ctx context.Context, src SourceRef) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return &Result{Text: "too late"}, nil
	}
}

func TestChainStalledProviderTimesOutAndFallsThrough(t *testing.T) {
	p1 := &stalledProvider{name: "local"}
	p2 := &fakeProvider{name: "docscan", configured: true, text: "statement text"}

	result, err := NewChain(p1, p2).Extract(context.Background(), SourceRef{DocumentID: "doc_1"})
	require.NoError(t, err)

	assert.Equal(t, "docscan", result.Provider)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "local")
	assert.Contains(t, result.Warnings[0], context.DeadlineExceeded.Error())
}

func TestChainAllFailedIsTransient(t *testing.T) {
	p1 := &fakeProvider{name: "local", configured: true, err: errors.New("boom")}
	p2 := &fakeProvider{name: "docscan", configured: true, text: ""}

	_, err := NewChain(p1, p2).Extract(context.Background(), SourceRef{})
	require.Error(t, err)

	var noResult *NoResultError
	require.ErrorAs(t, err, &noResult)
	assert.False(t, noResult.Permanent())
	assert.Len(t, noResult.Warnings, 2)
}

func TestChainNothingConfiguredIsPermanent(t *testing.T) {
	p1 := &fakeProvider{name: "local", configured: false}
	p2 := &fakeProvider{name: "docscan", configured: false}
	p3 := &fakeProvider{name: "vision", configured: false}

	_, err := NewChain(p1, p2, p3).Extract(context.Background(), SourceRef{})
	require.Error(t, err)

	var noResult *NoResultError
	require.ErrorAs(t, err, &noResult)
	assert.True(t, noResult.Permanent())
}
