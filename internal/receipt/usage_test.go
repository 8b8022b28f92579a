package receipt

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// blockingDB holds every SaveUsage until release is closed
type blockingDB struct {
	*mockDB
	release chan struct{}
}

func (b *blockingDB) SaveUsage(record *UsageRecord) error {
	<-b.release
	return b.mockDB.SaveUsage(record)
}

var _ = Describe("UsageLedger", func() {
	var (
		db     *mockDB
		ledger *UsageLedger
		report scanning.UsageReport
	)

	BeforeEach(func() {
		db = newMockDB()
		ledger = NewUsageLedger(db, LedgerOptions{Backend: "bedrock", Model: "test-model"}, nil)
		report = scanning.UsageReport{
			RequestID:     "req-1",
			PromptVersion: scanning.PromptVersion,
			Usage:         scanning.Usage{InputTokens: 10, OutputTokens: 2},
			Raw:           json.RawMessage(`{"input_tokens":10,"output_tokens":2}`),
			ReportedAt:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}
	})

	AfterEach(func() {
		ledger.Close()
	})

	It("should write reports to the database", func() {
		ledger.RecordUsage(report)
		Expect(ledger.Close()).To(Succeed())

		records := db.saved()
		Expect(records).To(HaveLen(1))
		Expect(records[0].RequestID).To(Equal("req-1"))
		Expect(records[0].Backend).To(Equal("bedrock"))
		Expect(records[0].Model).To(Equal("test-model"))
		Expect(records[0].PromptVersion).To(Equal(scanning.PromptVersion))
		Expect(records[0].InputTokens).To(Equal(int64(10)))
		Expect(records[0].OutputTokens).To(Equal(int64(2)))
		Expect(records[0].CreatedAt).To(Equal(report.ReportedAt))
	})

	It("should drain queued reports on Close", func() {
		for i := 0; i < 10; i++ {
			ledger.RecordUsage(report)
		}
		Expect(ledger.Close()).To(Succeed())
		Expect(db.saved()).To(HaveLen(10))
	})

	It("should ignore reports after Close", func() {
		Expect(ledger.Close()).To(Succeed())
		ledger.RecordUsage(report)
		Expect(db.saved()).To(BeEmpty())
		Expect(ledger.Close()).To(Succeed())
	})

	It("should keep running when a save fails", func() {
		db.saveErr = errors.New("disk full")
		ledger.RecordUsage(report)
		Expect(ledger.Close()).To(Succeed())
		Expect(db.saved()).To(BeEmpty())
	})

	When("the queue is full", func() {
		var (
			blocking *blockingDB
			metrics  *Metrics
		)

		BeforeEach(func() {
			blocking = &blockingDB{mockDB: newMockDB(), release: make(chan struct{})}
			metrics = NewMetrics(prometheus.NewRegistry())
			ledger = NewUsageLedger(blocking, LedgerOptions{QueueSize: 1}, metrics)
		})

		It("should drop reports without blocking and count them", func() {
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 5; i++ {
					ledger.RecordUsage(report)
				}
			}()
			Eventually(done).Should(BeClosed())

			// one record is held by the writer, one sits in the queue
			Expect(testutil.ToFloat64(metrics.UsageDropped)).To(BeNumerically(">=", 3))

			close(blocking.release)
			Expect(ledger.Close()).To(Succeed())
			Expect(len(blocking.saved()) + int(testutil.ToFloat64(metrics.UsageDropped))).To(Equal(5))
		})
	})
})

var _ = Describe("Metrics", func() {
	It("should count tokens by direction", func() {
		metrics := NewMetrics(prometheus.NewRegistry())
		metrics.RecordUsage(scanning.UsageReport{Usage: scanning.Usage{InputTokens: 100, OutputTokens: 7}})
		metrics.RecordUsage(scanning.UsageReport{Usage: scanning.Usage{InputTokens: 50}})

		Expect(testutil.ToFloat64(metrics.TokensTotal.WithLabelValues("input"))).To(Equal(150.0))
		Expect(testutil.ToFloat64(metrics.TokensTotal.WithLabelValues("output"))).To(Equal(7.0))
	})

	It("should register every collector", func() {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)
		metrics.AnalysesTotal.WithLabelValues(outcomeSuccess).Inc()
		metrics.TokensTotal.WithLabelValues("input").Add(1)

		count, err := testutil.GatherAndCount(registry)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(5))
	})

	It("should fan out through a MultiRecorder", func() {
		metrics := NewMetrics(prometheus.NewRegistry())
		db := newMockDB()
		ledger := NewUsageLedger(db, LedgerOptions{}, metrics)

		recorder := scanning.MultiRecorder{metrics, ledger}
		recorder.RecordUsage(scanning.UsageReport{RequestID: "fan", Usage: scanning.Usage{InputTokens: 3}})
		Expect(ledger.Close()).To(Succeed())

		Expect(testutil.ToFloat64(metrics.TokensTotal.WithLabelValues("input"))).To(Equal(3.0))
		Expect(db.saved()).To(HaveLen(1))
	})
})
