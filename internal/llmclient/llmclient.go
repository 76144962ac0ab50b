// Package llmclient wraps eino's OpenAI-compatible chat model component into
// the single shape the Analyzer, Generator, and Judge all need: a vision
// call that takes a text prompt plus zero or more page images and returns
// the model's raw text reply. This generalizes the teacher's
// internal/compiler/eino_agent_fixer.go (openai.NewChatModel + schema.Message)
// from a tool-calling ReAct agent down to a single Generate call per
// invocation — none of our callers need tool use, only vision-in/text-out.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"pdf2html-agent/internal/apperr"
	"pdf2html-agent/internal/config"
)

// Client is a thin, named vision-model endpoint (generator, judge A, judge B,
// equation specialist, verification gate all construct their own Client from
// a config.ProviderCredential).
type Client struct {
	chatModel            model.ChatModel
	logger               *zap.Logger
	label                string
	maxRetries           int
	baseRetryDelayMillis int
}

// RetryOptions governs TransientProviderError retry/backoff (spec §7),
// grounded in the teacher's translator.go MaxRetries/BaseRetryDelay pair.
type RetryOptions struct {
	MaxRetries           int
	BaseRetryDelayMillis int
}

// New constructs a Client bound to one provider credential.
func New(ctx context.Context, cred config.ProviderCredential, label string, retry RetryOptions, logger *zap.Logger) (*Client, error) {
	if cred.APIKey == "" {
		return nil, fmt.Errorf("llmclient: %s: no API key configured", label)
	}
	modelName := cred.Model
	if modelName == "" {
		modelName = "gpt-4o"
	}
	cfg := &openai.ChatModelConfig{
		Model:  modelName,
		APIKey: cred.APIKey,
	}
	if cred.BaseURL != "" {
		cfg.BaseURL = cred.BaseURL
	}
	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llmclient: %s: create chat model: %w", label, err)
	}

	maxRetries := retry.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	baseDelay := retry.BaseRetryDelayMillis
	if baseDelay <= 0 {
		baseDelay = config.DefaultBaseRetryDelayMillis
	}

	return &Client{
		chatModel:            chatModel,
		logger:               logger,
		label:                label,
		maxRetries:           maxRetries,
		baseRetryDelayMillis: baseDelay,
	}, nil
}

// ImagePart is one base64 data-URI image attached to a vision call.
type ImagePart struct {
	DataURI string
}

// Asker is the vision-call surface Analyzer, Generator, Judge, and
// MultiJudge depend on. *Client implements it against a real model
// provider; tests substitute a fake (SPEC_FULL §10.4: "model- and
// browser-backed calls are exercised through fake implementations").
type Asker interface {
	Ask(ctx context.Context, systemPrompt, userText string, images []ImagePart) (string, error)
}

// Ask sends a single user turn consisting of a system prompt, a text body,
// and zero or more images, and returns the model's raw text reply. A
// network/5xx failure is classified as a TransientProviderError and retried
// up to maxRetries times with BaseRetryDelayMillis-scaled backoff (spec §7:
// "the affected call is retried with bounded backoff before counting
// against the iteration budget"), mirroring the teacher's
// translateChunkWithRetry/isRetryableAPIError pair.
func (c *Client) Ask(ctx context.Context, systemPrompt, userText string, images []ImagePart) (string, error) {
	parts := make([]schema.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: userText,
	})
	for _, img := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL: img.DataURI,
			},
		})
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		{
			Role:         schema.User,
			MultiContent: parts,
		},
	}

	baseDelay := time.Duration(c.baseRetryDelayMillis) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		c.logger.Debug("llmclient call",
			zap.String("label", c.label),
			zap.Int("attempt", attempt),
			zap.Int("images", len(images)))

		resp, err := c.chatModel.Generate(ctx, messages)
		switch {
		case err != nil:
			lastErr = fmt.Errorf("llmclient: %s: generate: %w", c.label, err)
		case resp == nil:
			lastErr = fmt.Errorf("llmclient: %s: empty response", c.label)
		default:
			return resp.Content, nil
		}

		if !isTransientProviderError(lastErr) {
			return "", lastErr
		}

		c.logger.Warn("transient provider error, retrying",
			zap.String("label", c.label),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < c.maxRetries {
			time.Sleep(baseDelay * time.Duration(attempt))
		}
	}

	return "", apperr.New(apperr.KindTransientProvider,
		fmt.Sprintf("%s: exhausted %d attempts", c.label, c.maxRetries), lastErr)
}

// isTransientProviderError classifies a network-level failure or a 5xx/
// rate-limit reply from the provider as retryable, grounded on the
// teacher's isRetryableAPIError (translator.go): network errors and
// "status 5xx" are retried, anything else is not.
func isTransientProviderError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"timeout", "connection reset", "connection refused", "broken pipe",
		"no such host", "eof", "429", "too many requests",
		"500", "502", "503", "504",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
