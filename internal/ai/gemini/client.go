// Package gemini implements ai.Generator on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/commandjobs/internal/ai"
	"github.com/spigell/commandjobs/internal/logger"
	"github.com/spigell/commandjobs/internal/utils"
)

const (
	Provider = "gemini"

	defaultMaxRetries = 1
	retryBackoff      = 2 * time.Second
	// Quota errors asking for a longer pause than this are returned as is.
	maxQuotaDelay = 10 * time.Second
	previewLength = 200
)

var wait = utils.WaitFor

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|seconds?)\b`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Options configures a Generator.
type Options struct {
	APIKey            string
	Model             string
	SystemInstruction string
	// MaxRetries is the total number of attempts for a transient failure.
	MaxRetries int
	Timeout    time.Duration
}

// Generator sends each prompt as a fresh single-turn chat.
type Generator struct {
	chats             chatCreator
	model             string
	systemInstruction string
	maxRetries        int
	timeout           time.Duration
	logger            *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a Generator for the Gemini API backend.
func NewGenerator(ctx context.Context, opts Options, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("gemini model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	retries := opts.MaxRetries
	if retries < 1 {
		retries = defaultMaxRetries
	}

	return &Generator{
		chats:             genaiChats{chats: client.Chats},
		model:             model,
		systemInstruction: strings.TrimSpace(opts.SystemInstruction),
		maxRetries:        retries,
		timeout:           opts.Timeout,
		logger:            logger.WithCommonFields(log, Provider, model),
	}, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent returns the text of the first candidate. Transient service
// errors are retried up to the configured number of attempts.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	attempts := g.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	log := g.log()
	log.Debug("sending prompt",
		zap.Int("prompt_length", len(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, previewLength)),
	)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err := g.send(ctx, prompt)
		if err == nil {
			log.Debug("got response",
				zap.Int("attempt", attempt),
				zap.String("response_preview", utils.TruncateForLog(output, previewLength)),
			)
			return output, nil
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == attempts || ctx.Err() != nil {
			break
		}

		log.Warn("retrying gemini request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func (g *Generator) send(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var config *genai.GenerateContentConfig
	if g.systemInstruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(g.systemInstruction, genai.RoleUser),
		}
	}

	chat, err := g.chats.Create(ctx, g.model, config, nil)
	if err != nil {
		return "", classify(err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", classify(err)
	}

	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func (g *Generator) log() *zap.Logger {
	if g.logger == nil {
		return zap.NewNop()
	}
	return g.logger
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first candidate with content is used.
		if builder.Len() > 0 {
			break
		}
	}

	return strings.TrimSpace(builder.String())
}

// classify maps SDK errors onto the ai error types.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ai.ServiceError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Details: apiErr.Details}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ai.ServiceError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Details: apiErrPtr.Details}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &ai.TransportError{Timeout: timeout, Err: err}
}

// retryDelay decides whether err is worth another attempt and how long to
// wait before it.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var svc *ai.ServiceError
	if !errors.As(err, &svc) || !svc.Temporary() {
		return 0, false
	}

	backoff := retryBackoff * time.Duration(attempt)
	if svc.Code != 429 {
		return backoff, true
	}

	delay, ok := quotaDelay(svc)
	if !ok {
		return backoff, true
	}
	if delay > maxQuotaDelay {
		return 0, false
	}
	return delay, true
}

func quotaDelay(svc *ai.ServiceError) (time.Duration, bool) {
	for _, detail := range svc.Details {
		kind, _ := detail["@type"].(string)
		if !strings.HasSuffix(kind, "RetryInfo") {
			continue
		}
		raw, _ := detail["retryDelay"].(string)
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
			return d, true
		}
	}

	m := retryAfterPattern.FindStringSubmatch(svc.Message)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if strings.EqualFold(m[2], "ms") {
		unit = time.Millisecond
	}
	return time.Duration(value * float64(unit)), true
}
