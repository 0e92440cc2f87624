package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abeeha-baig/ocr/internal/common"
	"github.com/abeeha-baig/ocr/internal/llm"
)

// GenerateContent implements llm.VisionModel over the generateContent REST
// endpoint. Failures are classified into extraction-error kinds so the
// extraction client can apply its retry policy.
func (c *Client) GenerateContent(ctx context.Context, prompt string, images ...llm.Image) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("gemini.call.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"prompt_len", len(prompt),
		"images", len(images),
	)

	parts := []map[string]any{{"text": prompt}}
	for _, img := range images {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": mime,
				"data":      base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	body := map[string]any{
		"contents": []map[string]any{{"parts": parts}},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}

	raw, status, err := llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if err != nil {
		kind := classifyFailure(status, err)
		c.log.Error("gemini.call.http_error",
			"req_id", rid, "status", status, "kind", kind.String(), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewExtractionError(kind, err)
	}

	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.log.Error("gemini.call.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewExtractionError(common.ExtractionOther, fmt.Errorf("decode gemini response: %w", err))
	}
	if len(gr.Candidates) == 0 {
		c.log.Error("gemini.call.no_candidates",
			"req_id", rid, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewExtractionError(common.ExtractionOther, errors.New("no candidates in gemini response"))
	}

	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())

	c.log.Info("gemini.call.ok",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// classifyFailure maps transport outcomes to extraction-error kinds.
func classifyFailure(status int, err error) common.ExtractionKind {
	switch status {
	case http.StatusTooManyRequests:
		return common.ExtractionRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return common.ExtractionTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.ExtractionTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return common.ExtractionTimeout
	}
	return common.ExtractionOther
}
