package scanning

import (
	"context"
	"fmt"
	"time"
)

// Backend is a ModelClient that owns resources released by Close
type Backend interface {
	ModelClient
	Close() error
}

// ClientConfig selects and configures the model backend
type ClientConfig struct {
	Backend string // "bedrock", "gemini" or "ollama"
	Timeout time.Duration

	Region  string
	ModelID string

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string
}

// NewModelClient builds the configured backend. Call it once at start-up
// and inject the result.
func NewModelClient(ctx context.Context, cfg ClientConfig) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", "bedrock":
		backend, err = NewBedrock(ctx, cfg.Region, cfg.ModelID)
	case "gemini":
		backend, err = NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case "ollama":
		backend, err = NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.Timeout)
	default:
		return nil, fmt.Errorf("invalid backend %q: valid backends are bedrock, gemini and ollama", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(backend, cfg.Timeout), nil
}

// WithTimeout bounds every Invoke call of b. A zero timeout returns b.
func WithTimeout(b Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return b
	}
	return &timeoutBackend{Backend: b, timeout: timeout}
}

type timeoutBackend struct {
	Backend
	timeout time.Duration
}

func (t *timeoutBackend) Invoke(ctx context.Context, request []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.Invoke(ctx, request)
}
