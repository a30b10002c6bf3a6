// Package completion wraps an llm.LLMProvider with the per-call deadline and
// bounded retry used for every chat completion.
package completion

import (
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/pkg/llm"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

var ErrCompletionUnavailable = errors.New("completion unavailable")

// CompletionUnavailableError reports an exhausted or non-retryable completion.
// errors.Is(err, ErrCompletionUnavailable) holds for every instance.
type CompletionUnavailableError struct {
	Attempts int
	Err      error
}

func (e *CompletionUnavailableError) Error() string {
	return fmt.Sprintf("completion unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CompletionUnavailableError) Unwrap() error { return e.Err }

func (e *CompletionUnavailableError) Is(target error) bool {
	return target == ErrCompletionUnavailable
}

var errEmptyCompletion = errors.New("empty completion text")

type Options struct {
	MaxTokens      int
	Temperature    float64
	ResponseFormat llm.ResponseFormat
}

type Config struct {
	Timeout       time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
	BackoffFactor float64
	Jitter        float64
}

// Completer is what the chat and memory services depend on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []llm.Message, opts Options) (string, error)
}

type Client struct {
	provider llm.LLMProvider
	cfg      Config
	logger   logger.ILogger
}

var _ Completer = &Client{}

func NewClient(provider llm.LLMProvider, cfg Config, log logger.ILogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = 0.5
	}
	return &Client{provider: provider, cfg: cfg, logger: log}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.BaseBackoff
	exp.Multiplier = c.cfg.BackoffFactor
	exp.RandomizationFactor = c.cfg.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts-1)), ctx)
}

// Complete prepends systemPrompt (when non-empty) to history and asks the
// provider for a reply. Only connection and timeout failures are retried.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []llm.Message, opts Options) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, history...)

	callOpts := []llm.Option{
		llm.WithTemperature(opts.Temperature),
		llm.WithMaxTokens(opts.MaxTokens),
		llm.WithResponseFormat(opts.ResponseFormat),
	}

	attempts := 0
	var text string
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		out, err := c.provider.Chat(attemptCtx, messages, callOpts...)
		if err == nil && strings.TrimSpace(out) == "" {
			err = errEmptyCompletion
		}
		if err == nil {
			attemptsTotal.WithLabelValues("success").Inc()
			text = out
			return nil
		}

		if isTransient(ctx, attemptCtx, err) {
			attemptsTotal.WithLabelValues("transient").Inc()
			c.logger.Warn("CompletionClient", "Transient completion failure", map[string]interface{}{
				"attempt": attempts,
				"error":   err.Error(),
			})
			return err
		}
		attemptsTotal.WithLabelValues("permanent").Inc()
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		c.logger.Error("CompletionClient", "Completion unavailable", map[string]interface{}{
			"attempts": attempts,
			"error":    err.Error(),
		})
		return "", &CompletionUnavailableError{Attempts: attempts, Err: err}
	}
	return text, nil
}

// isTransient reports connection and per-attempt timeout failures. A cancelled
// parent context is never transient.
func isTransient(parent, attempt context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, errEmptyCompletion) {
		return false
	}
	if attempt.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
