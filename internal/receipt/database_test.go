package receipt

import (
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveUsage", func() {
		var (
			record *UsageRecord
			err    error
		)

		BeforeEach(func() {
			record = &UsageRecord{
				RequestID:     "req-1",
				Backend:       "bedrock",
				Model:         "test-model",
				PromptVersion: "v1",
				InputTokens:   1200,
				OutputTokens:  85,
				Raw:           json.RawMessage(`{"input_tokens":1200,"output_tokens":85}`),
				CreatedAt:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveUsage(record)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should assign the next sequence as the ID", func() {
			Expect(record.ID).To(Equal(uint64(1)))

			second := &UsageRecord{RequestID: "req-2"}
			Expect(db.SaveUsage(second)).To(Succeed())
			Expect(second.ID).To(Equal(uint64(2)))
		})

		It("should store every field", func() {
			records, listErr := db.ListUsage()
			Expect(listErr).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].RequestID).To(Equal("req-1"))
			Expect(records[0].Backend).To(Equal("bedrock"))
			Expect(records[0].Model).To(Equal("test-model"))
			Expect(records[0].InputTokens).To(Equal(int64(1200)))
			Expect(records[0].OutputTokens).To(Equal(int64(85)))
			Expect(records[0].Raw).To(MatchJSON(`{"input_tokens":1200,"output_tokens":85}`))
			Expect(records[0].CreatedAt.Equal(record.CreatedAt)).To(BeTrue())
		})
	})

	Describe("ListUsage", func() {
		When("the ledger is empty", func() {
			It("should return an empty slice", func() {
				records, err := db.ListUsage()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).NotTo(BeNil())
				Expect(records).To(BeEmpty())
			})
		})

		When("more than 255 records exist", func() {
			BeforeEach(func() {
				for i := 0; i < 300; i++ {
					Expect(db.SaveUsage(&UsageRecord{InputTokens: int64(i)})).To(Succeed())
				}
			})

			It("should return them in insertion order", func() {
				records, err := db.ListUsage()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(300))
				for i, record := range records {
					Expect(record.InputTokens).To(Equal(int64(i)))
					Expect(record.ID).To(Equal(uint64(i + 1)))
				}
			})
		})
	})

	When("the database is reopened", func() {
		It("should keep the records", func() {
			Expect(db.SaveUsage(&UsageRecord{RequestID: "kept"})).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			records, err := db.ListUsage()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].RequestID).To(Equal("kept"))
		})
	})

	When("the path is not writable", func() {
		It("should return an error", func() {
			_, err := NewBoltDB(filepath.Join(tmpDir, "missing", "dir", "test.db"))
			Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
		})
	})
})
