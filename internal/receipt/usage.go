package receipt

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// UsageRecord is one analysis' model usage as stored in the ledger
type UsageRecord struct {
	ID            uint64          `json:"id"`
	RequestID     string          `json:"request_id"`
	Backend       string          `json:"backend,omitempty"`
	Model         string          `json:"model,omitempty"`
	PromptVersion string          `json:"prompt_version"`
	InputTokens   int64           `json:"input_tokens"`
	OutputTokens  int64           `json:"output_tokens"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// UsageLedger writes usage reports to a DB from a single goroutine so
// recording never waits on disk. Reports arriving while the queue is full
// are dropped.
type UsageLedger struct {
	db      DB
	backend string
	model   string
	metrics *Metrics
	records chan *UsageRecord
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// LedgerOptions configures a UsageLedger
type LedgerOptions struct {
	QueueSize int    // defaults to 64
	Backend   string // stamped on every record
	Model     string // stamped on every record
}

// NewUsageLedger starts a ledger writing to db. metrics may be nil.
func NewUsageLedger(db DB, opts LedgerOptions, metrics *Metrics) *UsageLedger {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	l := &UsageLedger{
		db:      db,
		backend: opts.Backend,
		model:   opts.Model,
		metrics: metrics,
		records: make(chan *UsageRecord, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *UsageLedger) run() {
	defer close(l.done)
	for record := range l.records {
		if err := l.db.SaveUsage(record); err != nil {
			slog.Error("Failed to save usage record", "request_id", record.RequestID, "error", err)
		}
	}
}

// RecordUsage implements scanning.UsageRecorder
func (l *UsageLedger) RecordUsage(report scanning.UsageReport) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	record := &UsageRecord{
		RequestID:     report.RequestID,
		Backend:       l.backend,
		Model:         l.model,
		PromptVersion: report.PromptVersion,
		InputTokens:   report.Usage.InputTokens,
		OutputTokens:  report.Usage.OutputTokens,
		Raw:           report.Raw,
		CreatedAt:     report.ReportedAt,
	}

	select {
	case l.records <- record:
	default:
		slog.Warn("Usage ledger queue full, dropping record", "request_id", report.RequestID)
		if l.metrics != nil {
			l.metrics.UsageDropped.Inc()
		}
	}
}

// Close stops accepting reports and waits for queued ones to be written.
// It does not close the DB.
func (l *UsageLedger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.records)
	l.mu.Unlock()

	<-l.done
	return nil
}
