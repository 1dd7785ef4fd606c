package ingest_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/chunker"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/storage"
	storagemem "github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/vectorstore"
	vectormem "github.com/papercomputeco/recall/pkg/vectorstore/inmemory"
)

const dim = 4

// fakeEmbedder produces deterministic non-zero vectors derived from the
// text length so similarity search has something to rank.
type fakeEmbedder struct {
	failNext bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failNext {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	return []float32{1, float32(len(text)%7) + 1, 0.5, 0.25}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failNext {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return dim }
func (f *fakeEmbedder) Close() error   { return nil }

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu       sync.Mutex
	ingested []*eventstream.DocumentIngestedEvent
	deleted  []*eventstream.DocumentDeletedEvent
	fail     bool
}

func (c *capturePublisher) PublishDocumentIngested(_ context.Context, event *eventstream.DocumentIngestedEvent) error {
	if c.fail {
		return fmt.Errorf("broker unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingested = append(c.ingested, event)
	return nil
}

func (c *capturePublisher) PublishDocumentDeleted(_ context.Context, event *eventstream.DocumentDeletedEvent) error {
	if c.fail {
		return fmt.Errorf("broker unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

type pipelineFixture struct {
	pipeline *ingest.Pipeline
	storer   *storagemem.Driver
	vectors  *vectormem.Store
	embedder *fakeEmbedder
	events   *capturePublisher
}

func newFixture() *pipelineFixture {
	logger := zap.NewNop()

	chk, err := chunker.New(chunker.Config{ChunkSize: 50, ChunkOverlap: 10}, logger)
	Expect(err).NotTo(HaveOccurred())

	vectors, err := vectormem.New(vectormem.Config{Dimension: dim}, logger)
	Expect(err).NotTo(HaveOccurred())

	storer := storagemem.New()
	embedder := &fakeEmbedder{}
	events := &capturePublisher{}

	pipeline, err := ingest.New(ingest.Config{
		Chunker:        chk,
		Embedder:       embedder,
		Vectors:        vectors,
		Storage:        storer,
		Events:         events,
		EmbeddingModel: "fake-embed",
		Logger:         logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return &pipelineFixture{
		pipeline: pipeline,
		storer:   storer,
		vectors:  vectors,
		embedder: embedder,
		events:   events,
	}
}

var _ = Describe("Pipeline", func() {
	var (
		fx     *pipelineFixture
		ctx    context.Context
		tenant storage.Tenant
	)

	BeforeEach(func() {
		fx = newFixture()
		ctx = context.Background()
		tenant = storage.NewTenant("acme", "rk_test", 0)
	})

	Describe("New", func() {
		It("rejects missing collaborators", func() {
			_, err := ingest.New(ingest.Config{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Ingest", func() {
		It("persists the document and its chunks", func() {
			result, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{
				Title:   "Notes",
				Content: "Some document content worth chunking and embedding.",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Document.ID).NotTo(Equal(uuid.Nil))
			Expect(result.Document.TenantID).To(Equal(tenant.ID))
			Expect(result.ChunkCount).To(BeNumerically(">", 0))
			Expect(result.TokenCount).To(BeNumerically(">", 0))

			// Document is retrievable from storage.
			doc, err := fx.storer.GetDocument(ctx, tenant.ID, result.Document.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Title).To(Equal("Notes"))

			// Chunks are searchable in the vector store.
			results, err := fx.vectors.Search(ctx, tenant.ID, []float32{1, 1, 0.5, 0.25}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(result.ChunkCount))
		})

		It("rejects duplicate content for the same tenant", func() {
			req := ingest.Request{Content: "identical content"}

			_, err := fx.pipeline.Ingest(ctx, tenant, req)
			Expect(err).NotTo(HaveOccurred())

			_, err = fx.pipeline.Ingest(ctx, tenant, req)
			Expect(err).To(MatchError(storage.ErrDuplicate))
		})

		It("records usage for the tenant", func() {
			_, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{Content: "usage accounting content"})
			Expect(err).NotTo(HaveOccurred())

			used, err := fx.storer.TokensUsedToday(ctx, tenant.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(used).To(BeNumerically(">", 0))
		})

		It("publishes a document ingested event", func() {
			result, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{
				Title:   "Evented",
				Content: "event publishing content",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(fx.events.ingested).To(HaveLen(1))
			event := fx.events.ingested[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeDocumentIngested))
			Expect(event.TenantID).To(Equal(tenant.ID))
			Expect(event.DocumentID).To(Equal(result.Document.ID))
			Expect(event.ChunkCount).To(Equal(result.ChunkCount))
			Expect(event.EmbeddingModel).To(Equal("fake-embed"))
		})

		It("does not fail when event publishing fails", func() {
			fx.events.fail = true

			_, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{Content: "resilient content"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails when the embedder fails and stores no chunks", func() {
			fx.embedder.failNext = true

			_, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{Content: "doomed content"})
			Expect(err).To(HaveOccurred())

			results, searchErr := fx.vectors.Search(ctx, tenant.ID, []float32{1, 1, 0.5, 0.25}, 10)
			Expect(searchErr).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("rejects blank content", func() {
			_, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{Content: "   "})
			Expect(err).To(MatchError(chunker.ErrInvalidDocument))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			_, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{
				Title:   "Corpus",
				Content: "Searchable content about interesting topics.",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns scored results for the tenant", func() {
			results, err := fx.pipeline.Search(ctx, tenant, "interesting topics", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeEmpty())
			for _, r := range results {
				Expect(r.Chunk.TenantID).To(Equal(tenant.ID))
				Expect(r.Score).To(BeNumerically(">=", 0.0))
				Expect(r.Score).To(BeNumerically("<=", 1.0))
			}
		})

		It("returns nothing for a different tenant", func() {
			other := storage.NewTenant("other", "rk_other", 0)
			results, err := fx.pipeline.Search(ctx, other, "interesting topics", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("propagates topK validation errors", func() {
			_, err := fx.pipeline.Search(ctx, tenant, "query", 0)
			Expect(err).To(MatchError(vectorstore.ErrValidation))
		})
	})

	Describe("DeleteDocument", func() {
		var docID uuid.UUID

		BeforeEach(func() {
			result, err := fx.pipeline.Ingest(ctx, tenant, ingest.Request{
				Title:   "Doomed",
				Content: "Content that will be deleted shortly.",
			})
			Expect(err).NotTo(HaveOccurred())
			docID = result.Document.ID
		})

		It("removes the document and its chunks", func() {
			result, err := fx.pipeline.DeleteDocument(ctx, tenant, docID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.DocumentID).To(Equal(docID))
			Expect(result.ChunksDeleted).To(BeNumerically(">", 0))

			_, err = fx.storer.GetDocument(ctx, tenant.ID, docID)
			Expect(err).To(MatchError(storage.ErrNotFound))

			chunks, err := fx.vectors.Search(ctx, tenant.ID, []float32{1, 1, 0.5, 0.25}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(BeEmpty())
		})

		It("publishes a document deleted event", func() {
			_, err := fx.pipeline.DeleteDocument(ctx, tenant, docID)
			Expect(err).NotTo(HaveOccurred())

			Expect(fx.events.deleted).To(HaveLen(1))
			Expect(fx.events.deleted[0].DocumentID).To(Equal(docID))
			Expect(fx.events.deleted[0].TenantID).To(Equal(tenant.ID))
		})

		It("returns ErrNotFound for an unknown document", func() {
			_, err := fx.pipeline.DeleteDocument(ctx, tenant, uuid.New())
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("does not delete another tenant's document", func() {
			other := storage.NewTenant("other", "rk_other", 0)

			_, err := fx.pipeline.DeleteDocument(ctx, other, docID)
			Expect(err).To(MatchError(storage.ErrNotFound))

			// Still present for the owner.
			_, err = fx.storer.GetDocument(ctx, tenant.ID, docID)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
