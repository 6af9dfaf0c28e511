package headless

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-binder/internal/binder"
)

// Detector decides whether statically fetched markup needs a browser render.
type Detector interface {
	ShouldPromote(body []byte) bool
}

// Promoting fetches markup with a plain HTTP fetcher first and re-renders it
// in the browser only when the detector flags the result.
type Promoting struct {
	static   binder.Fetcher
	renderer binder.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromoting wires a static fetcher, a renderer and a detector together.
func NewPromoting(static, renderer binder.Fetcher, detector Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{static: static, renderer: renderer, detector: detector, logger: logger}
}

// Fetch implements binder.Fetcher. Static fetch errors are returned as-is;
// a failed render falls back to the static markup.
func (p *Promoting) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := p.static.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !p.detector.ShouldPromote(body) {
		return body, nil
	}

	p.logger.Debug("promoting article fetch to headless", zap.String("url", url))
	rendered, rerr := p.renderer.Fetch(ctx, url)
	if rerr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("headless render failed; using static markup",
			zap.String("url", url), zap.Error(rerr))
		return body, nil
	}
	return rendered, nil
}
