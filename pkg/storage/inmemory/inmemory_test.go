package inmemory_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
)

var _ = Describe("InMemory Driver", func() {
	var (
		driver   *inmemory.Driver
		ctx      context.Context
		tenantID uuid.UUID
	)

	BeforeEach(func() {
		driver = inmemory.New()
		ctx = context.Background()
		tenantID = uuid.New()
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	Describe("CreateDocument", func() {
		It("stores and retrieves a document", func() {
			doc := storage.NewDocument(tenantID, "Title", "https://example.com", "some content", nil)
			Expect(driver.CreateDocument(ctx, doc)).To(Succeed())

			got, err := driver.GetDocument(ctx, tenantID, doc.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(doc.ID))
			Expect(got.Title).To(Equal("Title"))
			Expect(got.Content).To(Equal("some content"))
			Expect(got.ContentHash).To(Equal(storage.HashContent("some content")))
		})

		It("rejects duplicate content for the same tenant", func() {
			first := storage.NewDocument(tenantID, "First", "", "identical content", nil)
			Expect(driver.CreateDocument(ctx, first)).To(Succeed())

			second := storage.NewDocument(tenantID, "Second", "", "identical content", nil)
			Expect(driver.CreateDocument(ctx, second)).To(MatchError(storage.ErrDuplicate))
		})

		It("allows identical content across tenants", func() {
			first := storage.NewDocument(tenantID, "First", "", "identical content", nil)
			Expect(driver.CreateDocument(ctx, first)).To(Succeed())

			second := storage.NewDocument(uuid.New(), "Second", "", "identical content", nil)
			Expect(driver.CreateDocument(ctx, second)).To(Succeed())
		})
	})

	Describe("GetDocument", func() {
		It("returns ErrNotFound for an unknown id", func() {
			_, err := driver.GetDocument(ctx, tenantID, uuid.New())
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("does not return another tenant's document", func() {
			doc := storage.NewDocument(tenantID, "Mine", "", "content", nil)
			Expect(driver.CreateDocument(ctx, doc)).To(Succeed())

			_, err := driver.GetDocument(ctx, uuid.New(), doc.ID)
			Expect(err).To(MatchError(storage.ErrNotFound))
		})
	})

	Describe("ListDocuments", func() {
		It("returns documents newest first", func() {
			older := storage.NewDocument(tenantID, "Older", "", "older content", nil)
			older.CreatedAt = time.Now().UTC().Add(-time.Hour)
			Expect(driver.CreateDocument(ctx, older)).To(Succeed())

			newer := storage.NewDocument(tenantID, "Newer", "", "newer content", nil)
			Expect(driver.CreateDocument(ctx, newer)).To(Succeed())

			docs, err := driver.ListDocuments(ctx, tenantID)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].Title).To(Equal("Newer"))
			Expect(docs[1].Title).To(Equal("Older"))
		})

		It("only lists the tenant's documents", func() {
			mine := storage.NewDocument(tenantID, "Mine", "", "mine", nil)
			theirs := storage.NewDocument(uuid.New(), "Theirs", "", "theirs", nil)
			Expect(driver.CreateDocument(ctx, mine)).To(Succeed())
			Expect(driver.CreateDocument(ctx, theirs)).To(Succeed())

			docs, err := driver.ListDocuments(ctx, tenantID)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Title).To(Equal("Mine"))
		})

		It("returns empty for a tenant with no documents", func() {
			docs, err := driver.ListDocuments(ctx, tenantID)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())
		})
	})

	Describe("DeleteDocument", func() {
		It("deletes an existing document and reports true", func() {
			doc := storage.NewDocument(tenantID, "Doomed", "", "content", nil)
			Expect(driver.CreateDocument(ctx, doc)).To(Succeed())

			deleted, err := driver.DeleteDocument(ctx, doc.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue())

			_, err = driver.GetDocument(ctx, tenantID, doc.ID)
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("reports false when nothing matched", func() {
			deleted, err := driver.DeleteDocument(ctx, uuid.New())
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeFalse())
		})
	})

	Describe("Tenants", func() {
		It("creates and resolves a tenant by API key hash", func() {
			tenant := storage.NewTenant("acme", "rk_secret", 0)
			Expect(driver.CreateTenant(ctx, tenant)).To(Succeed())

			got, err := driver.TenantByAPIKeyHash(ctx, storage.HashAPIKey("rk_secret"))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(tenant.ID))
			Expect(got.Name).To(Equal("acme"))
			Expect(got.TokenLimitPerDay).To(Equal(storage.DefaultTokenLimitPerDay))
		})

		It("rejects a reused API key", func() {
			first := storage.NewTenant("acme", "rk_secret", 0)
			Expect(driver.CreateTenant(ctx, first)).To(Succeed())

			second := storage.NewTenant("other", "rk_secret", 0)
			Expect(driver.CreateTenant(ctx, second)).To(MatchError(storage.ErrDuplicate))
		})

		It("returns ErrNotFound for an unknown key hash", func() {
			_, err := driver.TenantByAPIKeyHash(ctx, storage.HashAPIKey("rk_unknown"))
			Expect(err).To(MatchError(storage.ErrNotFound))
		})
	})

	Describe("Usage", func() {
		It("sums today's tokens for the tenant", func() {
			Expect(driver.RecordUsage(ctx, storage.NewUsageRecord(tenantID, storage.OperationIngest, 100, "nomic-embed-text", 12))).To(Succeed())
			Expect(driver.RecordUsage(ctx, storage.NewUsageRecord(tenantID, storage.OperationSearch, 50, "nomic-embed-text", 3))).To(Succeed())
			Expect(driver.RecordUsage(ctx, storage.NewUsageRecord(uuid.New(), storage.OperationIngest, 999, "", 0))).To(Succeed())

			total, err := driver.TokensUsedToday(ctx, tenantID)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(150)))
		})

		It("excludes records from before UTC midnight", func() {
			old := storage.NewUsageRecord(tenantID, storage.OperationIngest, 100, "", 0)
			old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
			Expect(driver.RecordUsage(ctx, old)).To(Succeed())

			total, err := driver.TokensUsedToday(ctx, tenantID)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})

		It("returns zero for a tenant with no usage", func() {
			total, err := driver.TokensUsedToday(ctx, tenantID)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})
	})

	Describe("Interface compliance", func() {
		It("implements storage.Driver", func() {
			var _ storage.Driver = (*inmemory.Driver)(nil)
		})
	})
})
