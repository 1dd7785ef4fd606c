package vectorstore_test

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/vectorstore"
)

func validChunk(dim int) vectorstore.Chunk {
	embedding := make([]float32, dim)
	for i := range embedding {
		embedding[i] = 0.1
	}
	return vectorstore.Chunk{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		TenantID:   uuid.New(),
		ChunkIndex: 0,
		Content:    "some chunk content",
		TokenCount: 5,
		Embedding:  embedding,
	}
}

var _ = Describe("ValidateChunk", func() {
	const dim = 4

	It("accepts a fully-populated chunk", func() {
		Expect(vectorstore.ValidateChunk(validChunk(dim), dim)).To(Succeed())
	})

	It("rejects a missing chunk id", func() {
		c := validChunk(dim)
		c.ID = uuid.Nil
		err := vectorstore.ValidateChunk(c, dim)
		Expect(err).To(MatchError(vectorstore.ErrValidation))
		Expect(err.Error()).To(ContainSubstring("chunk id"))
	})

	It("rejects a missing document id", func() {
		c := validChunk(dim)
		c.DocumentID = uuid.Nil
		Expect(vectorstore.ValidateChunk(c, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("rejects a missing tenant id", func() {
		c := validChunk(dim)
		c.TenantID = uuid.Nil
		Expect(vectorstore.ValidateChunk(c, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("rejects a negative chunk index", func() {
		c := validChunk(dim)
		c.ChunkIndex = -1
		Expect(vectorstore.ValidateChunk(c, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("rejects blank content", func() {
		c := validChunk(dim)
		c.Content = "   \n\t  "
		Expect(vectorstore.ValidateChunk(c, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("rejects a negative token count", func() {
		c := validChunk(dim)
		c.TokenCount = -5
		Expect(vectorstore.ValidateChunk(c, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("rejects a missing embedding", func() {
		c := validChunk(dim)
		c.Embedding = nil
		Expect(vectorstore.ValidateChunk(c, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("rejects an embedding of the wrong dimension", func() {
		c := validChunk(dim)
		c.Embedding = []float32{0.1, 0.2}
		err := vectorstore.ValidateChunk(c, dim)
		Expect(err).To(MatchError(vectorstore.ErrDimension))
	})
})

var _ = Describe("ValidateBatch", func() {
	const dim = 4

	It("rejects an empty batch", func() {
		Expect(vectorstore.ValidateBatch(nil, dim)).To(MatchError(vectorstore.ErrValidation))
	})

	It("accepts a batch of valid chunks", func() {
		chunks := []vectorstore.Chunk{validChunk(dim), validChunk(dim)}
		Expect(vectorstore.ValidateBatch(chunks, dim)).To(Succeed())
	})

	It("names the index of the first failing chunk", func() {
		bad := validChunk(dim)
		bad.Content = ""
		chunks := []vectorstore.Chunk{validChunk(dim), validChunk(dim), bad}

		err := vectorstore.ValidateBatch(chunks, dim)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("index 2"))
	})
})

var _ = Describe("ValidateTopK", func() {
	It("accepts values within bounds", func() {
		Expect(vectorstore.ValidateTopK(vectorstore.MinTopK)).To(Succeed())
		Expect(vectorstore.ValidateTopK(5)).To(Succeed())
		Expect(vectorstore.ValidateTopK(vectorstore.MaxTopK)).To(Succeed())
	})

	It("rejects values outside bounds", func() {
		Expect(vectorstore.ValidateTopK(0)).To(MatchError(vectorstore.ErrValidation))
		Expect(vectorstore.ValidateTopK(-1)).To(MatchError(vectorstore.ErrValidation))
		Expect(vectorstore.ValidateTopK(vectorstore.MaxTopK + 1)).To(MatchError(vectorstore.ErrValidation))
	})
})

var _ = Describe("NewSimilarityResult", func() {
	It("accepts scores within [0, 1]", func() {
		for _, score := range []float64{0.0, 0.5, 1.0} {
			result, err := vectorstore.NewSimilarityResult(vectorstore.Chunk{}, score)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Score).To(Equal(score))
		}
	})

	It("rejects scores outside [0, 1]", func() {
		_, err := vectorstore.NewSimilarityResult(vectorstore.Chunk{}, -0.001)
		Expect(err).To(MatchError(vectorstore.ErrValidation))

		_, err = vectorstore.NewSimilarityResult(vectorstore.Chunk{}, 1.001)
		Expect(err).To(MatchError(vectorstore.ErrValidation))
	})
})

var _ = Describe("ClampScore", func() {
	It("passes through in-range scores", func() {
		Expect(vectorstore.ClampScore(0.42)).To(Equal(0.42))
	})

	It("clamps overshoot at both boundaries", func() {
		Expect(vectorstore.ClampScore(-0.0000001)).To(Equal(0.0))
		Expect(vectorstore.ClampScore(1.0000001)).To(Equal(1.0))
	})
})

var _ = Describe("EncodeVector / DecodeVector", func() {
	It("encodes an embedding as a bracketed literal", func() {
		Expect(vectorstore.EncodeVector([]float32{0.5, -1, 2.25})).To(Equal("[0.5,-1,2.25]"))
	})

	It("encodes an empty embedding", func() {
		Expect(vectorstore.EncodeVector(nil)).To(Equal("[]"))
	})

	It("round-trips an embedding", func() {
		original := []float32{0.013, -0.221, 1.0, 0.0}
		decoded, err := vectorstore.DecodeVector(vectorstore.EncodeVector(original))
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal(original))
	})

	It("decodes literals with surrounding whitespace", func() {
		decoded, err := vectorstore.DecodeVector("  [1, 2, 3]  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal([]float32{1, 2, 3}))
	})

	It("decodes an empty literal", func() {
		decoded, err := vectorstore.DecodeVector("[]")
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(BeEmpty())
	})

	It("rejects malformed literals", func() {
		_, err := vectorstore.DecodeVector("1,2,3")
		Expect(err).To(HaveOccurred())

		_, err = vectorstore.DecodeVector("[1,two,3]")
		Expect(err).To(HaveOccurred())
	})
})
