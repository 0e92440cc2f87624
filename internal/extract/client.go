package extract

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/abeeha-baig/ocr/internal/common"
	"github.com/abeeha-baig/ocr/internal/llm"
)

// Retry ceilings. Exactly one retry per failure kind; a second rate limit or
// timeout on the same call propagates.
const (
	maxRateLimitRetries = 1
	maxTimeoutRetries   = 1
)

// Config tunes the extraction client's retry and diagnostics behavior.
type Config struct {
	// MaxImageEdge caps the longest image edge on the timeout retry.
	MaxImageEdge int
	// RateLimitCooldown is how long to back off before the rate-limit retry.
	RateLimitCooldown time.Duration
	// SlowCallThreshold triggers a warning log for long calls.
	SlowCallThreshold time.Duration
}

// Client wraps a vision model with shared pacing and the local retry policy:
// one cooldown-then-retry on rate limiting, one downscale-then-retry on
// timeout with an image payload. All other failures propagate untouched.
type Client struct {
	model  llm.VisionModel
	pacer  *Pacer
	cfg    Config
	logger *slog.Logger
	calls  atomic.Int64
}

func NewClient(model llm.VisionModel, pacer *Pacer, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxImageEdge <= 0 {
		cfg.MaxImageEdge = 2048
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = 30 * time.Second
	}
	if cfg.SlowCallThreshold <= 0 {
		cfg.SlowCallThreshold = 30 * time.Second
	}
	return &Client{model: model, pacer: pacer, cfg: cfg, logger: logger}
}

// Extract sends one instruction plus one page image and returns the raw
// extracted text.
func (c *Client) Extract(ctx context.Context, prompt string, image llm.Image) (string, error) {
	return c.call(ctx, prompt, []llm.Image{image})
}

// ExtractBatch sends one instruction plus several page images in a single
// call (used by the fallback page classifier).
func (c *Client) ExtractBatch(ctx context.Context, prompt string, images []llm.Image) (string, error) {
	return c.call(ctx, prompt, images)
}

func (c *Client) call(ctx context.Context, prompt string, images []llm.Image) (string, error) {
	rateLimitRetries := 0
	timeoutRetries := 0

	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return "", common.NewExtractionError(common.ExtractionOther, err)
		}

		n := c.calls.Add(1)
		start := time.Now()
		text, err := c.model.GenerateContent(ctx, prompt, images...)
		elapsed := time.Since(start)

		if elapsed > c.cfg.SlowCallThreshold {
			c.logger.Warn("extract.call.slow",
				"call_n", n,
				"elapsed_ms", elapsed.Milliseconds(),
				"threshold_ms", c.cfg.SlowCallThreshold.Milliseconds(),
				"images", len(images),
			)
		}
		if err == nil {
			c.logger.Debug("extract.call.ok", "call_n", n, "elapsed_ms", elapsed.Milliseconds(), "text_len", len(text))
			return text, nil
		}

		switch common.ExtractionKindOf(err) {
		case common.ExtractionRateLimited:
			if rateLimitRetries >= maxRateLimitRetries {
				return "", err
			}
			rateLimitRetries++
			c.pacer.RecordRateLimit(c.cfg.RateLimitCooldown)
			c.logger.Warn("extract.call.rate_limited",
				"call_n", n,
				"cooldown_ms", c.cfg.RateLimitCooldown.Milliseconds(),
			)
			// the pacer's cooldown handles the sleep on the next Wait

		case common.ExtractionTimeout:
			if timeoutRetries >= maxTimeoutRetries || len(images) == 0 {
				return "", err
			}
			timeoutRetries++
			smaller := make([]llm.Image, len(images))
			for i, img := range images {
				smaller[i] = downscale(img, c.cfg.MaxImageEdge)
			}
			images = smaller
			c.logger.Warn("extract.call.timeout_downscale_retry",
				"call_n", n,
				"max_edge", c.cfg.MaxImageEdge,
				"images", len(images),
			)

		default:
			return "", err
		}
	}
}
