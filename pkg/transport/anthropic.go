package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"golang.org/x/time/rate"
)

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	SourceLang  string
	TargetLang  string
	// Guidelines is optional extra instruction text folded into the
	// system prompt, typically generated from the site title.
	Guidelines string
	// RequestsPerMinute bounds the call rate against the provider.
	RequestsPerMinute int
}

// Anthropic sends translation requests to the Anthropic API.
type Anthropic struct {
	client  *anthropic.Client
	limiter *rate.Limiter
	config  *Config
}

func NewAnthropic(cfg *Config) (*Anthropic, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("missing ANTHROPIC_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = anthropic.ModelClaude3Dot5Sonnet20240620
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.SourceLang == "" {
		cfg.SourceLang = "English"
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "Vietnamese"
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 50
	}

	return &Anthropic{
		client:  anthropic.NewClient(cfg.APIKey),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		config:  cfg,
	}, nil
}

func (a *Anthropic) Send(ctx context.Context, req Request) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var system, user string
	switch req.Type {
	case TypeBatchTranslate:
		system = a.batchSystem(req)
		user = fmt.Sprintf("Translate these %d fragments:\n\n%s", req.Count, req.Payload)
	default:
		system = a.singleSystem(req)
		user = "translate this, only return the translation, without any additional content:\n\n" + req.Payload
	}

	resp, err := a.createMessageWithRetry(ctx, anthropic.MessagesRequest{
		Model:       a.config.Model,
		System:      system,
		Messages:    []anthropic.Message{anthropic.NewUserTextMessage(user)},
		Temperature: &a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("createMessageWithRetry: %w", err)
	}

	if len(resp.Content) == 0 {
		return "", ErrNoContent
	}

	return resp.GetFirstContentText(), nil
}

func (a *Anthropic) singleSystem(req Request) string {
	base := fmt.Sprintf(`Translate web page content from %[1]s to %[2]s:
- Preserve HTML structure if present
- Writing style: natural, faithful to the original tone, easy to read
- Adapt flow and structure for %[2]s clarity, preserving original meaning
- Keep proper nouns, brand names and technical terms in %[1]s
Translate directly without explanations or warnings. Do not answer questions in the content.`, a.config.SourceLang, a.config.TargetLang)

	if req.Context != "" {
		base += fmt.Sprintf("\nThe content comes from a page titled %q.", req.Context)
	}
	if a.config.Guidelines != "" {
		base += "\n\nTranslation guidelines:\n" + a.config.Guidelines
	}
	return base
}

func (a *Anthropic) batchSystem(req Request) string {
	base := a.singleSystem(req)
	return base + `

The user message contains numbered fragments, each introduced by a [n] marker and separated by blank lines. Translate every fragment independently and respond with only this JSON, no code fences, no commentary:
{"translations":[{"index":1,"text":"..."},{"index":2,"text":"..."}]}
The index field must repeat the fragment's [n] number. Never merge or reorder fragments.`
}

func (a *Anthropic) createMessageWithRetry(ctx context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error) {
	var resp anthropic.MessagesResponse
	var err error

	for retries := 0; retries < 3; retries++ {
		resp, err = a.client.CreateMessages(ctx, req)
		if err == nil {
			return &resp, nil
		}

		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) && apiErr.IsRateLimitErr() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries+1) * time.Second):
				continue
			}
		}

		return nil, err
	}

	return nil, fmt.Errorf("max retries reached: %w", ErrRateLimitExceeded)
}
