package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/hirelens/interview-analyzer/internal/domain/ai"
)

const defaultModel = "gemini-2.5-pro"

// RetryPolicy holds the named backoff tables. OverloadSchedule is indexed by
// attempt number (clamped to its last entry); rate-limit and generic failures
// wait BaseDelay multiplied by the attempt number. Tests inject near-zero
// values.
type RetryPolicy struct {
	BaseDelay        time.Duration
	OverloadSchedule []time.Duration
	AttemptTimeout   time.Duration
}

func (p RetryPolicy) overloadDelay(attempt int) time.Duration {
	if len(p.OverloadSchedule) == 0 {
		return p.BaseDelay * time.Duration(attempt)
	}
	idx := attempt - 1
	if idx >= len(p.OverloadSchedule) {
		idx = len(p.OverloadSchedule) - 1
	}
	return p.OverloadSchedule[idx]
}

func (p RetryPolicy) linearDelay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// modelCaller is the slice of *genai.Models the client uses, injectable in tests.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is the gateway for a single outbound provider call with retry,
// backoff and error classification.
type Client struct {
	models        modelCaller
	model         string
	policy        RetryPolicy
	maxAttachment int64
	logger        *zap.Logger
}

// NewClient builds a Client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey, model string, policy RetryPolicy, maxAttachmentBytes int64, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = 2 * time.Minute
	}
	return &Client{
		models:        cli.Models,
		model:         model,
		policy:        policy,
		maxAttachment: maxAttachmentBytes,
		logger:        logger,
	}, nil
}

// Generate sends the prompt (plus optional inline attachment) and returns the
// first generated text. The attachment size is validated before the first
// attempt so an oversized payload never consumes retry budget.
func (c *Client) Generate(ctx context.Context, req ai.Request) (string, error) {
	if req.Attachment != nil && c.maxAttachment > 0 && int64(len(req.Attachment.Data)) > c.maxAttachment {
		return "", fmt.Errorf("attachment is %d bytes, cap is %d: %w",
			len(req.Attachment.Data), c.maxAttachment, ai.ErrPayloadTooLarge)
	}

	attempts := req.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	contents := buildContents(req)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := c.call(ctx, contents)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var delay time.Duration
		switch classify(err) {
		case kindInvalid:
			return "", fmt.Errorf("%v: %w", err, ai.ErrInvalidRequest)
		case kindOverloaded:
			if attempt == attempts {
				return "", fmt.Errorf("%v: %w", err, ai.ErrOverloaded)
			}
			delay = c.policy.overloadDelay(attempt)
		case kindRateLimited:
			if attempt == attempts {
				return "", fmt.Errorf("%v: %w", err, ai.ErrRateLimited)
			}
			delay = c.policy.linearDelay(attempt)
		default:
			if attempt == attempts {
				return "", fmt.Errorf("%v: %w", err, ai.ErrExhausted)
			}
			delay = c.policy.linearDelay(attempt)
		}

		c.logger.Warn("ai attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if werr := waitFor(ctx, delay); werr != nil {
			return "", werr
		}
	}
	// attempts >= 1, so the loop always returns before reaching here.
	return "", fmt.Errorf("%v: %w", lastErr, ai.ErrExhausted)
}

// Healthy performs a single-attempt probe against the provider.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.Generate(ctx, ai.Request{Prompt: "Reply with the single word OK.", MaxAttempts: 1})
	return err
}

// call performs one network attempt under the fixed per-attempt timeout.
func (c *Client) call(ctx context.Context, contents []*genai.Content) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()

	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func buildContents(req ai.Request) []*genai.Content {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Attachment != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.Attachment.MIMEType,
				Data:     req.Attachment.Data,
			},
		})
	}
	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
}

// extractText returns the first candidate's text fragment. A well-formed
// response without any text is a malformed response, retried like a generic
// failure.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", ai.ErrMalformedResponse
}

type errorKind int

const (
	kindGeneric errorKind = iota
	kindOverloaded
	kindRateLimited
	kindInvalid
)

// classify maps provider errors onto the backoff taxonomy. Numeric codes take
// precedence; status strings cover proxies that rewrite codes.
func classify(err error) errorKind {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return kindGeneric
	}
	switch apiErr.Code {
	case 503, 529:
		return kindOverloaded
	case 429:
		return kindRateLimited
	case 400:
		return kindInvalid
	}
	switch apiErr.Status {
	case "UNAVAILABLE":
		return kindOverloaded
	case "RESOURCE_EXHAUSTED":
		return kindRateLimited
	case "INVALID_ARGUMENT":
		return kindInvalid
	}
	return kindGeneric
}

// waitFor blocks the calling goroutine only; other sessions keep progressing.
func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
