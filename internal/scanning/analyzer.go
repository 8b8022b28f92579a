package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// maxLoggedReply caps how much of an unparseable reply is logged
const maxLoggedReply = 512

// Analyzer extracts a Receipt from a receipt image using a ModelClient.
// It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	client  ModelClient
	reducer *Reducer
	prompt  Prompt
	usage   UsageRecorder
	logger  *slog.Logger
}

// NewAnalyzer creates an Analyzer with the default reducer and logger and no
// usage recorder
func NewAnalyzer(client ModelClient, prompt Prompt) *Analyzer {
	return NewAnalyzerWithDeps(client, prompt, nil, nil, nil)
}

// NewAnalyzerWithDeps creates an Analyzer with custom dependencies. Nil
// reducer and logger fall back to defaults; usage may be nil.
func NewAnalyzerWithDeps(client ModelClient, prompt Prompt, reducer *Reducer, usage UsageRecorder, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if reducer == nil {
		reducer = NewReducer(logger)
	}
	return &Analyzer{
		client:  client,
		reducer: reducer,
		prompt:  prompt,
		usage:   usage,
		logger:  logger,
	}
}

// Analyze reads one receipt image. Errors match ErrImagePreparation,
// ErrTransport or ErrMalformedReply; no partial Receipt is ever returned.
func (a *Analyzer) Analyze(ctx context.Context, imageData []byte) (*Receipt, error) {
	requestID := uuid.NewString()
	logger := a.logger.With("request_id", requestID)

	prepared, err := a.reducer.Reduce(imageData, MaxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImagePreparation, err)
	}
	logger.Info("Prepared receipt image",
		"input_size", len(imageData),
		"size", len(prepared.Data),
		"width", prepared.Width,
		"height", prepared.Height,
		"passes", prepared.Passes,
		"media_type", prepared.MediaType,
	)

	request, err := buildRequest(base64.StdEncoding.EncodeToString(prepared.Data), prepared.MediaType, a.prompt.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImagePreparation, err)
	}

	start := time.Now()
	response, err := a.client.Invoke(ctx, request)
	if err != nil {
		logger.Error("Model invocation failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	text, usage, err := extractAnswer(response)
	a.reportUsage(logger, requestID, usage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	receipt, err := parseReceiptJSON(text)
	if err != nil {
		logger.Warn("Model reply is not a receipt", "error", err, "reply", truncate(text, maxLoggedReply))
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	logger.Info("Analyzed receipt",
		"items", len(receipt.Items),
		"confidence", receipt.Confidence,
		"duration", time.Since(start),
	)
	return receipt, nil
}

// reportUsage logs the usage object and hands it to the recorder
func (a *Analyzer) reportUsage(logger *slog.Logger, requestID string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	usage := parseUsage(raw)
	logger.Info("Model usage",
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"usage", string(raw),
	)
	if a.usage == nil {
		return
	}
	a.usage.RecordUsage(UsageReport{
		RequestID:     requestID,
		PromptVersion: a.prompt.Version,
		Usage:         usage,
		Raw:           raw,
		ReportedAt:    time.Now(),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
