// File: internal/collector/capture.go
package collector

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// CaptureBackend is the screenshot side of a browser session.
type CaptureBackend interface {
	ContentSize(ctx context.Context) (width, height float64, err error)
	CaptureClip(ctx context.Context, width, height float64) ([]byte, error)
	CaptureViewport(ctx context.Context) ([]byte, error)
	CaptureElement(ctx context.Context, sel string) ([]byte, error)
	Exists(ctx context.Context, sel string) (bool, error)
}

// Strategy identifies which capture path produced an artifact, so callers
// can log degraded quality.
type Strategy int

const (
	// StrategyNone means every capture path failed and no file was written.
	StrategyNone Strategy = iota
	// StrategyProtocol is the protocol-level full-document capture.
	StrategyProtocol
	// StrategyViewport is the viewport-bounded fallback capture.
	StrategyViewport
	// StrategyElement is an element-region capture.
	StrategyElement
)

func (s Strategy) String() string {
	switch s {
	case StrategyProtocol:
		return "protocol"
	case StrategyViewport:
		return "viewport"
	case StrategyElement:
		return "element"
	case StrategyNone:
		return "none"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Capturer persists page captures to disk. Failures never propagate past its
// methods; every internal error degrades to the next strategy or to a logged
// no-op signaled by StrategyNone.
type Capturer struct {
	backend CaptureBackend
	logger  *zap.Logger
}

// NewCapturer constructs a capturer bound to one session.
func NewCapturer(backend CaptureBackend, logger *zap.Logger) *Capturer {
	return &Capturer{backend: backend, logger: logger.Named("capture")}
}

// FullPage captures the entire document to path, preferring the
// protocol-level full-height capture and falling back to a plain viewport
// capture. Writing to an existing path overwrites it.
func (c *Capturer) FullPage(ctx context.Context, path string) Strategy {
	if data, err := c.fullDocument(ctx); err != nil {
		c.logger.Warn("Protocol capture failed, falling back to viewport",
			zap.String("path", path), zap.Error(err))
	} else if err := c.write(path, data); err == nil {
		c.logger.Info("Full page captured", zap.String("path", path))
		return StrategyProtocol
	}

	data, err := c.backend.CaptureViewport(ctx)
	if err != nil {
		c.logger.Error("Viewport capture failed", zap.String("path", path), zap.Error(err))
		return StrategyNone
	}
	if err := c.write(path, data); err != nil {
		return StrategyNone
	}
	c.logger.Info("Viewport captured", zap.String("path", path))
	return StrategyViewport
}

// Element captures the bounding region of the first resolvable selector
// candidate to path, falling back to FullPage when none resolves or the
// element capture itself fails.
func (c *Capturer) Element(ctx context.Context, path string, candidates ...string) Strategy {
	for _, sel := range candidates {
		present, err := c.backend.Exists(ctx, sel)
		if err != nil || !present {
			continue
		}
		data, err := c.backend.CaptureElement(ctx, sel)
		if err != nil {
			c.logger.Warn("Element capture failed, trying next candidate",
				zap.String("selector", sel), zap.Error(err))
			continue
		}
		if err := c.write(path, data); err != nil {
			continue
		}
		c.logger.Info("Element captured", zap.String("selector", sel), zap.String("path", path))
		return StrategyElement
	}

	c.logger.Warn("No element candidate resolved, capturing full page",
		zap.Strings("candidates", candidates))
	return c.FullPage(ctx, path)
}

func (c *Capturer) fullDocument(ctx context.Context) ([]byte, error) {
	width, height, err := c.backend.ContentSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("layout metrics: %w", err)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("degenerate content size %.0fx%.0f", width, height)
	}
	data, err := c.backend.CaptureClip(ctx, width, height)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("capture returned no data")
	}
	return data, nil
}

func (c *Capturer) write(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Error("Failed to write capture", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}
