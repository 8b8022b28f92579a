package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// ErrLedgerDisabled is returned by usage queries when no ledger is configured
var ErrLedgerDisabled = errors.New("usage ledger is disabled")

// Analyzer extracts a receipt from image bytes
type Analyzer interface {
	Analyze(ctx context.Context, imageData []byte) (*scanning.Receipt, error)
}

// Service handles receipt operations
type Service struct {
	analyzer Analyzer
	db       DB
	sem      chan struct{}
	metrics  *Metrics
}

// NewService creates a new Service. At most maxConcurrent analyses run at
// once; db and metrics may be nil.
func NewService(analyzer Analyzer, db DB, maxConcurrent int, metrics *Metrics) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		analyzer: analyzer,
		db:       db,
		sem:      make(chan struct{}, maxConcurrent),
		metrics:  metrics,
	}
}

// AnalyzeReceipt runs one analysis once a slot is free
func (s *Service) AnalyzeReceipt(ctx context.Context, data []byte) (*scanning.Receipt, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.observe(outcomeCanceled, 0)
		return nil, fmt.Errorf("waiting for analysis slot: %w", ctx.Err())
	}
	defer func() { <-s.sem }()

	if s.metrics != nil {
		s.metrics.InFlight.Inc()
		defer s.metrics.InFlight.Dec()
	}

	start := time.Now()
	receipt, err := s.analyzer.Analyze(ctx, data)
	s.observe(outcome(err), time.Since(start))
	if err != nil {
		slog.Error("Failed to analyze receipt", "file_size", len(data), "error", err)
		return nil, fmt.Errorf("analyzing receipt: %w", err)
	}
	return receipt, nil
}

// ListUsage returns the usage ledger contents
func (s *Service) ListUsage() ([]*UsageRecord, error) {
	if s.db == nil {
		return nil, ErrLedgerDisabled
	}
	records, err := s.db.ListUsage()
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	return records, nil
}

func (s *Service) observe(result string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.AnalysesTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		s.metrics.AnalysisDuration.Observe(duration.Seconds())
	}
}

// outcome maps an analysis error to its metrics label
func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, scanning.ErrImagePreparation):
		return outcomeImagePreparation
	case errors.Is(err, scanning.ErrTransport):
		return outcomeTransport
	case errors.Is(err, scanning.ErrMalformedReply):
		return outcomeMalformedReply
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeOther
	}
}
