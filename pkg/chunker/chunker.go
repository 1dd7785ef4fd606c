// Package chunker partitions documents into retrieval-sized chunks using a
// three-tier cascading split: paragraphs, then sentences for oversized
// paragraphs, then a character-budget hard split for oversized sentences.
// Chunking is deterministic and a Chunker is safe for concurrent use.
package chunker

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/vectorstore"
)

const (
	// DefaultChunkSize is the default maximum tokens per chunk.
	DefaultChunkSize = 400

	// DefaultChunkOverlap is the default token overlap between
	// consecutive chunks.
	DefaultChunkOverlap = 100

	// charsPerToken is the character-count proxy for one token. This is
	// deliberately not a real tokenizer; the heuristic must stay stable
	// because chunk boundaries depend on it.
	charsPerToken = 4.0
)

var (
	paragraphPattern = regexp.MustCompile(`\n\n+`)

	// sentencePattern locates sentence-ending punctuation followed by
	// whitespace. Splits happen after the punctuation character, keeping
	// it with the preceding sentence.
	sentencePattern = regexp.MustCompile(`[.!?]\s+`)
)

// Config holds chunking configuration.
type Config struct {
	// ChunkSize is the maximum tokens per chunk. Must be > 0.
	ChunkSize int

	// ChunkOverlap is the number of tokens repeated between consecutive
	// chunks. Must satisfy 0 <= ChunkOverlap < ChunkSize.
	ChunkOverlap int
}

// Chunker splits documents into chunks. Configuration is immutable after
// construction.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

// New creates a Chunker, rejecting invalid size/overlap combinations.
func New(c Config, logger *zap.Logger) (*Chunker, error) {
	if c.ChunkSize <= 0 {
		return nil, newInvalidConfigError("chunk size must be greater than 0, got: %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return nil, newInvalidConfigError("chunk overlap must be >= 0, got: %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return nil, newInvalidConfigError("chunk overlap (%d) must be less than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}

	logger.Info("initialized chunker",
		zap.Int("chunk_size", c.ChunkSize),
		zap.Int("chunk_overlap", c.ChunkOverlap),
	)

	return &Chunker{
		chunkSize:    c.ChunkSize,
		chunkOverlap: c.ChunkOverlap,
		logger:       logger,
	}, nil
}

// EstimateTokens returns the heuristic token estimate ceil(len/4) used for
// sizing chunks and for usage accounting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// Chunk splits a persisted document into ordered chunks with IDs assigned
// and embeddings unset. The document must already carry an id and tenant id.
func (c *Chunker) Chunk(doc storage.Document) ([]vectorstore.Chunk, error) {
	if doc.ID == uuid.Nil {
		return nil, newInvalidDocumentError("document id cannot be empty, document must be persisted before chunking")
	}
	if doc.TenantID == uuid.Nil {
		return nil, newInvalidDocumentError("document tenantId cannot be empty")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, newInvalidDocumentError("document content cannot be empty or blank")
	}

	content := strings.ReplaceAll(doc.Content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.TrimSpace(content)

	paragraphs := paragraphPattern.Split(content, -1)

	var chunks []vectorstore.Chunk
	var buf strings.Builder
	bufTokens := 0
	chunkIndex := 0

	for _, paragraph := range paragraphs {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed == "" {
			continue
		}

		paragraphTokens := EstimateTokens(trimmed)

		// Oversized paragraphs go to the sentence pass before any
		// overlap seeding, otherwise the seed would surface as a
		// duplicate overlap-only chunk.
		if paragraphTokens > c.chunkSize {
			if bufTokens > 0 {
				chunks = append(chunks, c.buildChunk(doc, chunkIndex, strings.TrimSpace(buf.String()), bufTokens))
				chunkIndex++
				buf.Reset()
				bufTokens = 0
			}

			sentenceChunks := c.splitBySentences(doc, chunkIndex, trimmed)
			chunks = append(chunks, sentenceChunks...)
			chunkIndex += len(sentenceChunks)
			continue
		}

		if bufTokens+paragraphTokens > c.chunkSize && bufTokens > 0 {
			emitted := buf.String()
			chunks = append(chunks, c.buildChunk(doc, chunkIndex, strings.TrimSpace(emitted), bufTokens))
			chunkIndex++

			overlap := c.extractOverlapText(emitted)
			buf.Reset()
			buf.WriteString(overlap)
			bufTokens = EstimateTokens(overlap)
		}

		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(trimmed)
		bufTokens += paragraphTokens
	}

	if bufTokens > 0 {
		chunks = append(chunks, c.buildChunk(doc, chunkIndex, strings.TrimSpace(buf.String()), bufTokens))
	}

	c.logger.Debug("document chunked",
		zap.String("document_id", doc.ID.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("content_chars", len(content)),
	)

	return chunks, nil
}

// splitBySentences handles paragraphs whose own token estimate exceeds the
// chunk size, accumulating sentences with the same flush/overlap logic as
// the paragraph pass.
func (c *Chunker) splitBySentences(doc storage.Document, startIndex int, text string) []vectorstore.Chunk {
	var chunks []vectorstore.Chunk
	sentences := splitSentences(text)

	var buf strings.Builder
	bufTokens := 0
	chunkIndex := startIndex

	for _, sentence := range sentences {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}

		sentenceTokens := EstimateTokens(trimmed)

		if sentenceTokens > c.chunkSize {
			if bufTokens > 0 {
				chunks = append(chunks, c.buildChunk(doc, chunkIndex, strings.TrimSpace(buf.String()), bufTokens))
				chunkIndex++
				buf.Reset()
				bufTokens = 0
			}

			hardChunks := c.hardSplit(doc, chunkIndex, trimmed)
			chunks = append(chunks, hardChunks...)
			chunkIndex += len(hardChunks)
			continue
		}

		if bufTokens+sentenceTokens > c.chunkSize && bufTokens > 0 {
			emitted := buf.String()
			chunks = append(chunks, c.buildChunk(doc, chunkIndex, strings.TrimSpace(emitted), bufTokens))
			chunkIndex++

			overlap := c.extractOverlapText(emitted)
			buf.Reset()
			buf.WriteString(overlap)
			bufTokens = EstimateTokens(overlap)
		}

		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(trimmed)
		bufTokens += sentenceTokens
	}

	if bufTokens > 0 {
		chunks = append(chunks, c.buildChunk(doc, chunkIndex, strings.TrimSpace(buf.String()), bufTokens))
	}

	return chunks
}

// hardSplit slices text that has no usable sentence boundaries into
// segments of at most chunkSize*4 characters, preferring to break at the
// last space at-or-before the boundary. Hard-split segments carry no
// overlap.
func (c *Chunker) hardSplit(doc storage.Document, startIndex int, text string) []vectorstore.Chunk {
	var chunks []vectorstore.Chunk
	targetChars := int(float64(c.chunkSize) * charsPerToken)
	chunkIndex := startIndex
	position := 0

	for position < len(text) {
		end := position + targetChars
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			if lastSpace := strings.LastIndex(text[:end+1], " "); lastSpace > position {
				end = lastSpace
			} else {
				// No space in range: back the boundary up so the cut
				// never lands mid-rune.
				for end > position && !utf8.RuneStart(text[end]) {
					end--
				}
				if end == position {
					_, size := utf8.DecodeRuneInString(text[position:])
					end = position + size
				}
			}
		}

		segment := strings.TrimSpace(text[position:end])
		if segment != "" {
			chunks = append(chunks, c.buildChunk(doc, chunkIndex, segment, EstimateTokens(segment)))
			chunkIndex++
		}

		position = end
		if position < len(text) && text[position] == ' ' {
			position++
		}
	}

	c.logger.Warn("hard-split oversized sentence",
		zap.String("document_id", doc.ID.String()),
		zap.Int("segments", len(chunks)),
	)

	return chunks
}

// extractOverlapText computes the seed text carried into the next chunk.
// The tail is chunkOverlap*4 characters; when a ". " boundary occurs in the
// first half of the tail, everything up to and including it is trimmed so
// the overlap starts at a sentence start.
func (c *Chunker) extractOverlapText(text string) string {
	targetChars := int(float64(c.chunkOverlap) * charsPerToken)

	if len(text) <= targetChars {
		return text
	}

	// The tail boundary may land mid-rune; advance to the next rune start
	// so the seed stays valid UTF-8 within the character budget.
	start := len(text) - targetChars
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	tail := text[start:]

	if boundary := strings.Index(tail, ". "); boundary > 0 && boundary < len(tail)/2 {
		return tail[boundary+2:]
	}

	return tail
}

func (c *Chunker) buildChunk(doc storage.Document, chunkIndex int, content string, tokenCount int) vectorstore.Chunk {
	return vectorstore.Chunk{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		ChunkIndex: chunkIndex,
		Content:    content,
		TokenCount: tokenCount,
	}
}

// splitSentences splits after sentence-ending punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	sentences := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		sentences = append(sentences, text[prev:loc[0]+1])
		prev = loc[1]
	}
	if prev < len(text) {
		sentences = append(sentences, text[prev:])
	}

	return sentences
}
