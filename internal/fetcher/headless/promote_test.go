package headless

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	body  []byte
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	return s.body, s.err
}

type markerDetector struct{}

func (markerDetector) ShouldPromote(body []byte) bool {
	return bytes.Contains(body, []byte("shell"))
}

func TestPromotingKeepsStaticMarkup(t *testing.T) {
	t.Parallel()

	static := &stubFetcher{body: []byte("<img src=a>")}
	renderer := &stubFetcher{body: []byte("rendered")}
	p := NewPromoting(static, renderer, markerDetector{}, zap.NewNop())

	body, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "<img src=a>", string(body))
	require.Zero(t, renderer.calls)
}

func TestPromotingRendersShell(t *testing.T) {
	t.Parallel()

	static := &stubFetcher{body: []byte("shell")}
	renderer := &stubFetcher{body: []byte("rendered")}
	p := NewPromoting(static, renderer, markerDetector{}, nil)

	body, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "rendered", string(body))
	require.Equal(t, 1, renderer.calls)
}

func TestPromotingFallsBackWhenRenderFails(t *testing.T) {
	t.Parallel()

	static := &stubFetcher{body: []byte("shell")}
	renderer := &stubFetcher{err: errors.New("no chrome")}
	p := NewPromoting(static, renderer, markerDetector{}, zap.NewNop())

	body, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "shell", string(body))
}

func TestPromotingReturnsStaticError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	static := &stubFetcher{err: boom}
	renderer := &stubFetcher{}
	p := NewPromoting(static, renderer, markerDetector{}, zap.NewNop())

	_, err := p.Fetch(context.Background(), "https://example.com")
	require.ErrorIs(t, err, boom)
	require.Zero(t, renderer.calls)
}

func TestPromotingCanceledRender(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	static := &stubFetcher{body: []byte("shell")}
	renderer := &stubFetcher{err: context.Canceled}
	p := NewPromoting(static, renderer, markerDetector{}, zap.NewNop())

	_, err := p.Fetch(ctx, "https://example.com")
	require.ErrorIs(t, err, context.Canceled)
}
