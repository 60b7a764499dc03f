package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	eventlogPostgres "github.com/ardiwinata/qms-compliance/internal/eventlog/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEventLogPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EventLog Postgres Suite")
}

var _ = Describe("EventLog Repository", func() {
	var (
		db   *gorm.DB
		repo *eventlogPostgres.EventLogRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&eventlog.Entry{})
		Expect(err).NotTo(HaveOccurred())

		repo = eventlogPostgres.NewEventLogRepository(db)
		ctx = context.Background()
	})

	Describe("Append", func() {
		It("should persist an entry with decision and detail", func() {
			entry := eventlog.NewEntry(7, "permission.check", "document", "doc-1").
				WithDecision("allow", "grant:edit").
				WithDetail(map[string]any{"resource_id": "doc-1"})

			Expect(repo.Append(ctx, entry)).To(Succeed())

			entries, err := repo.ListByEntity(ctx, "document", "doc-1", 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Decision).To(Equal("allow"))
			Expect(entries[0].Rule).To(Equal("grant:edit"))
			Expect(entries[0].Detail).To(ContainSubstring("doc-1"))
		})
	})

	Describe("ListByEntity", func() {
		It("should return entries for the entity in chronological order", func() {
			base := time.Now().Add(-time.Hour)
			for i, action := range []string{"document.create", "document.submit", "document.effective"} {
				entry := eventlog.NewEntry(7, action, "document", "doc-1")
				entry.OccurredAt = base.Add(time.Duration(i) * time.Minute)
				Expect(repo.Append(ctx, entry)).To(Succeed())
			}
			Expect(repo.Append(ctx, eventlog.NewEntry(7, "document.create", "document", "doc-2"))).To(Succeed())

			entries, err := repo.ListByEntity(ctx, "document", "doc-1", 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Action).To(Equal("document.create"))
			Expect(entries[2].Action).To(Equal("document.effective"))
		})

		It("should honor limit and offset", func() {
			base := time.Now().Add(-time.Hour)
			for i := 0; i < 5; i++ {
				entry := eventlog.NewEntry(7, "audit.plan_create", "audit_plan", "plan-1")
				entry.OccurredAt = base.Add(time.Duration(i) * time.Minute)
				Expect(repo.Append(ctx, entry)).To(Succeed())
			}

			entries, err := repo.ListByEntity(ctx, "audit_plan", "plan-1", 2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
		})
	})

	Describe("ListByActor", func() {
		It("should return only the actor's entries, newest first", func() {
			base := time.Now().Add(-time.Hour)

			first := eventlog.NewEntry(7, "approval.submit", "approval_chain", "chain-1")
			first.OccurredAt = base
			Expect(repo.Append(ctx, first)).To(Succeed())

			second := eventlog.NewEntry(7, "approval.decide", "approval_chain", "chain-1")
			second.OccurredAt = base.Add(time.Minute)
			Expect(repo.Append(ctx, second)).To(Succeed())

			Expect(repo.Append(ctx, eventlog.NewEntry(8, "approval.decide", "approval_chain", "chain-2"))).To(Succeed())

			entries, err := repo.ListByActor(ctx, 7, 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Action).To(Equal("approval.decide"))
		})
	})
})
