package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// EnvVarPrefix is the prefix for environment variables mirroring flags,
// e.g. RECEIPT_ANALYZER_BACKEND for --backend
const EnvVarPrefix = "RECEIPT_ANALYZER"

// ModelFlags are the flags selecting and configuring the model backend,
// shared by every command
type ModelFlags struct {
	Backend      *string
	Region       *string
	ModelID      *string
	GeminiKey    *string
	GeminiModel  *string
	OllamaURL    *string
	OllamaModel  *string
	ModelTimeout *time.Duration
	PromptLang   *string
}

// RegisterModelFlags adds the model flags to fs
func RegisterModelFlags(fs *ff.FlagSet) *ModelFlags {
	return &ModelFlags{
		Backend:      fs.StringLong("backend", "bedrock", "Model backend: 'bedrock', 'gemini' or 'ollama'"),
		Region:       fs.StringLong("region", "", "AWS region for Bedrock (default from the AWS config chain, else "+scanning.DefaultBedrockRegion+")"),
		ModelID:      fs.StringLong("model-id", scanning.DefaultBedrockModel, "Bedrock model ID"),
		GeminiKey:    fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		GeminiModel:  fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name"),
		OllamaURL:    fs.StringLong("ollama-url", scanning.DefaultOllamaURL, "Ollama API base URL"),
		OllamaModel:  fs.StringLong("ollama-model", scanning.DefaultOllamaModel, "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)"),
		ModelTimeout: fs.DurationLong("model-timeout", 2*time.Minute, "Upper bound on a single model call (0 disables)"),
		PromptLang:   fs.StringLong("prompt-lang", scanning.DefaultPromptLanguage, "Instruction language: "+strings.Join(scanning.PromptLanguages(), ", ")),
	}
}

// ClientConfig converts the parsed flags into a scanning.ClientConfig
func (m *ModelFlags) ClientConfig() scanning.ClientConfig {
	geminiKey := *m.GeminiKey
	if geminiKey == "" {
		geminiKey = os.Getenv("GEMINI_API_KEY")
	}
	return scanning.ClientConfig{
		Backend:     strings.ToLower(strings.TrimSpace(*m.Backend)),
		Timeout:     *m.ModelTimeout,
		Region:      *m.Region,
		ModelID:     *m.ModelID,
		GeminiKey:   geminiKey,
		GeminiModel: *m.GeminiModel,
		OllamaURL:   *m.OllamaURL,
		OllamaModel: *m.OllamaModel,
	}
}

// ModelName returns the model used by the selected backend
func (m *ModelFlags) ModelName() string {
	switch strings.ToLower(strings.TrimSpace(*m.Backend)) {
	case "gemini":
		return *m.GeminiModel
	case "ollama":
		return *m.OllamaModel
	default:
		return *m.ModelID
	}
}

// LogFlags select the slog handler
type LogFlags struct {
	Level  *string
	Format *string
}

// RegisterLogFlags adds the logging flags to fs
func RegisterLogFlags(fs *ff.FlagSet) *LogFlags {
	return &LogFlags{
		Level:  fs.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
		Format: fs.StringLong("log-format", "text", "Log format: 'text' or 'json'"),
	}
}

// Logger builds the logger described by the flags, writing to w
func (l *LogFlags) Logger(w io.Writer) (*slog.Logger, error) {
	return NewLogger(*l.Level, *l.Format, w)
}

// NewLogger creates a slog.Logger writing to w at the given level and format
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: valid formats are text and json", format)
	}
}
