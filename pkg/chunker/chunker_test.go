package chunker_test

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/chunker"
	"github.com/papercomputeco/recall/pkg/storage"
)

func newTestChunker(size, overlap int) *chunker.Chunker {
	c, err := chunker.New(chunker.Config{ChunkSize: size, ChunkOverlap: overlap}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	return c
}

func testDoc(content string) storage.Document {
	return storage.Document{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Content:  content,
	}
}

var _ = Describe("New", func() {
	It("accepts a valid configuration", func() {
		c, err := chunker.New(chunker.Config{ChunkSize: 400, ChunkOverlap: 100}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(c).NotTo(BeNil())
	})

	It("rejects a non-positive chunk size", func() {
		_, err := chunker.New(chunker.Config{ChunkSize: 0, ChunkOverlap: 0}, zap.NewNop())
		Expect(err).To(MatchError(chunker.ErrInvalidConfig))
	})

	It("rejects a negative overlap", func() {
		_, err := chunker.New(chunker.Config{ChunkSize: 100, ChunkOverlap: -1}, zap.NewNop())
		Expect(err).To(MatchError(chunker.ErrInvalidConfig))
	})

	It("rejects overlap >= chunk size", func() {
		_, err := chunker.New(chunker.Config{ChunkSize: 100, ChunkOverlap: 100}, zap.NewNop())
		Expect(err).To(MatchError(chunker.ErrInvalidConfig))
	})
})

var _ = Describe("EstimateTokens", func() {
	It("returns zero for empty text", func() {
		Expect(chunker.EstimateTokens("")).To(Equal(0))
	})

	It("estimates one token per four characters, rounded up", func() {
		Expect(chunker.EstimateTokens("abcd")).To(Equal(1))
		Expect(chunker.EstimateTokens("abcde")).To(Equal(2))
		Expect(chunker.EstimateTokens(strings.Repeat("x", 400))).To(Equal(100))
	})
})

var _ = Describe("Chunk", func() {
	Describe("input validation", func() {
		It("rejects a document without an id", func() {
			doc := testDoc("content")
			doc.ID = uuid.Nil

			c := newTestChunker(400, 100)
			_, err := c.Chunk(doc)
			Expect(err).To(MatchError(chunker.ErrInvalidDocument))
		})

		It("rejects a document without a tenant id", func() {
			doc := testDoc("content")
			doc.TenantID = uuid.Nil

			c := newTestChunker(400, 100)
			_, err := c.Chunk(doc)
			Expect(err).To(MatchError(chunker.ErrInvalidDocument))
		})

		It("rejects blank content", func() {
			c := newTestChunker(400, 100)
			_, err := c.Chunk(testDoc("   \n\n\t  "))
			Expect(err).To(MatchError(chunker.ErrInvalidDocument))
		})
	})

	Describe("small documents", func() {
		It("produces a single chunk when content fits", func() {
			doc := testDoc("Hello world.")
			c := newTestChunker(400, 100)

			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].ChunkIndex).To(Equal(0))
			Expect(chunks[0].Content).To(Equal("Hello world."))
			Expect(chunks[0].DocumentID).To(Equal(doc.ID))
			Expect(chunks[0].TenantID).To(Equal(doc.TenantID))
			Expect(chunks[0].ID).NotTo(Equal(uuid.Nil))
			Expect(chunks[0].Embedding).To(BeNil())
			Expect(chunks[0].TokenCount).To(BeNumerically(">", 0))
		})

		It("joins small paragraphs into one chunk", func() {
			doc := testDoc("Para one.\n\nPara two.")
			c := newTestChunker(400, 100)

			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].Content).To(Equal("Para one.\n\nPara two."))
		})

		It("normalizes CRLF line endings", func() {
			doc := testDoc("Para one.\r\n\r\nPara two.")
			c := newTestChunker(400, 100)

			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].Content).To(Equal("Para one.\n\nPara two."))
		})
	})

	Describe("paragraph splitting", func() {
		It("flushes a chunk when the next paragraph would exceed the size", func() {
			para1 := "aaaa bbbb cccc dd"
			para2 := "eeee ffff gggg hh"
			doc := testDoc(para1 + "\n\n" + para2)

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(2))
			Expect(chunks[0].Content).To(Equal(para1))
			Expect(chunks[1].Content).To(Equal(para2))
		})

		It("assigns dense zero-based indices", func() {
			paras := make([]string, 6)
			for i := range paras {
				paras[i] = "aaaa bbbb cccc dd"
			}
			doc := testDoc(strings.Join(paras, "\n\n"))

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(chunks)).To(BeNumerically(">", 1))
			for i, chunk := range chunks {
				Expect(chunk.ChunkIndex).To(Equal(i))
			}
		})

		It("seeds the next chunk with overlap from the previous one", func() {
			para1 := "aaaa bbbb cccc dd"
			para2 := "eeee ffff gggg hh"
			doc := testDoc(para1 + "\n\n" + para2)

			c := newTestChunker(5, 2)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(2))
			// The second chunk starts with the tail of the first.
			Expect(chunks[1].Content).To(ContainSubstring("cccc dd"))
			Expect(chunks[1].Content).To(ContainSubstring(para2))
		})

		It("begins the next chunk with a bounded suffix of the previous one", func() {
			para1 := "aaaa bbbb cccc dd"
			para2 := "eeee ffff gggg hh"
			doc := testDoc(para1 + "\n\n" + para2)

			c := newTestChunker(5, 2)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(2))

			seed, _, found := strings.Cut(chunks[1].Content, "\n\n")
			Expect(found).To(BeTrue())
			Expect(strings.HasSuffix(chunks[0].Content, seed)).To(BeTrue())
			Expect(len(seed)).To(BeNumerically("<=", 2*4))
		})

		It("keeps accumulated chunks within the token budget", func() {
			paras := make([]string, 6)
			for i := range paras {
				paras[i] = "aaaaaa"
			}
			doc := testDoc(strings.Join(paras, "\n\n"))

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(chunks)).To(BeNumerically(">", 1))
			for _, chunk := range chunks {
				Expect(chunk.TokenCount).To(BeNumerically("<=", 5))
				Expect(chunker.EstimateTokens(chunk.Content)).To(BeNumerically("<=", 5))
			}
		})

		It("keeps the overlap seed valid UTF-8 for multibyte text", func() {
			para1 := strings.Repeat("界", 5)
			para2 := strings.Repeat("海", 5)
			doc := testDoc(para1 + "\n\n" + para2)

			c := newTestChunker(5, 2)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(2))
			for _, chunk := range chunks {
				Expect(utf8.ValidString(chunk.Content)).To(BeTrue())
			}

			seed, _, found := strings.Cut(chunks[1].Content, "\n\n")
			Expect(found).To(BeTrue())
			Expect(strings.HasSuffix(chunks[0].Content, seed)).To(BeTrue())
		})
	})

	Describe("sentence splitting", func() {
		It("splits an oversized paragraph at sentence boundaries", func() {
			text := "One one one. Two two two. Three three three."
			doc := testDoc(text)

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(3))
			Expect(chunks[0].Content).To(Equal("One one one."))
			Expect(chunks[1].Content).To(Equal("Two two two."))
			Expect(chunks[2].Content).To(Equal("Three three three."))
			for i, chunk := range chunks {
				Expect(chunk.ChunkIndex).To(Equal(i))
			}
		})

		It("keeps sentence-ending punctuation with the preceding sentence", func() {
			text := "Is this a question? Yes it is! And a statement."
			doc := testDoc(text)

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks[0].Content).To(HaveSuffix("?"))
		})
	})

	Describe("hard splitting", func() {
		It("slices text with no sentence boundaries at word boundaries", func() {
			words := make([]string, 12)
			for i := range words {
				words[i] = "aaaaa"
			}
			text := strings.Join(words, " ")
			doc := testDoc(text)

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(chunks)).To(BeNumerically(">", 1))

			// Segments stay within the character budget and rejoin to the
			// original text.
			parts := make([]string, 0, len(chunks))
			for i, chunk := range chunks {
				Expect(chunk.ChunkIndex).To(Equal(i))
				Expect(len(chunk.Content)).To(BeNumerically("<=", 20))
				parts = append(parts, chunk.Content)
			}
			Expect(strings.Join(parts, " ")).To(Equal(text))
		})

		It("never cuts multibyte text mid-rune when no space exists in range", func() {
			text := strings.Repeat("世", 40)
			doc := testDoc(text)

			c := newTestChunker(5, 0)
			chunks, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(chunks)).To(BeNumerically(">", 1))

			parts := make([]string, 0, len(chunks))
			for _, chunk := range chunks {
				Expect(utf8.ValidString(chunk.Content)).To(BeTrue())
				Expect(len(chunk.Content)).To(BeNumerically("<=", 20))
				parts = append(parts, chunk.Content)
			}
			Expect(strings.Join(parts, "")).To(Equal(text))
		})
	})

	Describe("determinism", func() {
		It("produces identical boundaries for identical input", func() {
			paras := []string{
				"First paragraph with a reasonable amount of text in it. It even has two sentences.",
				"Second paragraph, also containing text that is long enough to matter.",
				"Third paragraph closes the document.",
			}
			doc := testDoc(strings.Join(paras, "\n\n"))

			c := newTestChunker(10, 3)
			first, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())

			second, err := c.Chunk(doc)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(HaveLen(len(first)))
			for i := range first {
				Expect(second[i].Content).To(Equal(first[i].Content))
				Expect(second[i].ChunkIndex).To(Equal(first[i].ChunkIndex))
				Expect(second[i].TokenCount).To(Equal(first[i].TokenCount))
			}
		})
	})
})
