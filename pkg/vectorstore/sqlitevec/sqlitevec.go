// Package sqlitevec provides a SQLite-backed vector store using sqlite-vec.
// Chunk rows live in a regular table keyed by (document_id, chunk_index);
// embeddings live in a vec0 virtual table partitioned by tenant with cosine
// distance.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/vectorstore"
)

// Store implements vectorstore.Store using SQLite with sqlite-vec.
type Store struct {
	db        *sql.DB
	dimension int
	logger    *zap.Logger
}

// Config holds configuration for the sqlite-vec store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimension is the embedding dimension. Must be configured.
	Dimension int
}

// New creates a SQLite vector store backed by sqlite-vec.
func New(c Config, logger *zap.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be greater than 0, got: %d", c.Dimension)
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// the schema survives.
	if c.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// Chunk rows use integer rowids that double as the vec0 rowids.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			UNIQUE (document_id, chunk_index)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chunks table: %w", err)
	}

	// vec0 virtual table for KNN queries, partitioned by tenant so a
	// search never crosses the tenant boundary.
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
			tenant_id TEXT partition key,
			embedding float[%d] distance_metric=cosine
		)`,
		c.Dimension,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec store initialized",
		zap.String("db_path", c.DBPath),
		zap.Int("dimension", c.Dimension),
		zap.String("vec_version", vecVersion),
	)

	return &Store{
		db:        db,
		dimension: c.Dimension,
		logger:    logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB
// format sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Store validates and upserts a single chunk.
func (s *Store) Store(ctx context.Context, chunk vectorstore.Chunk) error {
	if err := vectorstore.ValidateChunk(chunk, s.dimension); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertTx(ctx, tx, chunk); err != nil {
		return err
	}

	return tx.Commit()
}

// StoreBatch validates every chunk before writing anything, then applies
// all upserts in one transaction.
func (s *Store) StoreBatch(ctx context.Context, chunks []vectorstore.Chunk) error {
	if err := vectorstore.ValidateBatch(chunks, s.dimension); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, chunk := range chunks {
		if err := s.upsertTx(ctx, tx, chunk); err != nil {
			return fmt.Errorf("upserting chunk at index %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("stored chunk batch",
		zap.Int("count", len(chunks)),
	)

	return nil
}

// upsertTx writes one chunk inside a transaction. A conflicting
// (document_id, chunk_index) key replaces content, token count, embedding,
// and metadata while preserving the original id and created_at. vec0 does
// not support UPDATE, so the embedding is replaced via DELETE + INSERT.
func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, chunk vectorstore.Chunk) error {
	metadata, err := encodeMetadata(chunk.Metadata)
	if err != nil {
		return err
	}
	embBlob := serializeFloat32(chunk.Embedding)

	var existingRowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM chunks WHERE document_id = ? AND chunk_index = ?`,
		chunk.DocumentID.String(), chunk.ChunkIndex,
	).Scan(&existingRowID)

	switch err {
	case nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE chunks SET content = ?, token_count = ?, metadata = ? WHERE rowid = ?`,
			chunk.Content, chunk.TokenCount, metadata, existingRowID,
		); err != nil {
			return fmt.Errorf("updating chunk row: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunk_embeddings WHERE rowid = ?`, existingRowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_embeddings(rowid, tenant_id, embedding) VALUES (?, ?, ?)`,
			existingRowID, chunk.TenantID.String(), embBlob,
		); err != nil {
			return fmt.Errorf("re-inserting embedding: %w", err)
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(id, document_id, tenant_id, chunk_index, content, token_count, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID.String(),
			chunk.DocumentID.String(),
			chunk.TenantID.String(),
			chunk.ChunkIndex,
			chunk.Content,
			chunk.TokenCount,
			metadata,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk row: %w", err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting chunk rowid: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_embeddings(rowid, tenant_id, embedding) VALUES (?, ?, ?)`,
			rowID, chunk.TenantID.String(), embBlob,
		); err != nil {
			return fmt.Errorf("inserting embedding: %w", err)
		}
	default:
		return fmt.Errorf("checking for existing chunk: %w", err)
	}

	return nil
}

// Search runs a tenant-partitioned KNN query over the vec0 table and joins
// back to the chunk rows.
func (s *Store) Search(ctx context.Context, tenantID uuid.UUID, queryEmbedding []float32, topK int) ([]vectorstore.SimilarityResult, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant id cannot be empty", vectorstore.ErrValidation)
	}
	if err := vectorstore.ValidateEmbedding(queryEmbedding, s.dimension); err != nil {
		return nil, err
	}
	if err := vectorstore.ValidateTopK(topK); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id, c.document_id, c.tenant_id, c.chunk_index,
			c.content, c.token_count, c.metadata, c.created_at,
			e.distance
		FROM chunk_embeddings e
		INNER JOIN chunks c ON c.rowid = e.rowid
		WHERE e.tenant_id = ?
			AND e.embedding MATCH ?
			AND e.k = ?
		ORDER BY e.distance
	`, tenantID.String(), serializeFloat32(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.SimilarityResult
	for rows.Next() {
		var idStr, docStr, tenantStr, metadataRaw, createdAtStr string
		var chunkIndex, tokenCount int
		var content string
		var distance float64

		if err := rows.Scan(&idStr, &docStr, &tenantStr, &chunkIndex,
			&content, &tokenCount, &metadataRaw, &createdAtStr, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		chunk, err := s.buildChunk(idStr, docStr, tenantStr, chunkIndex, content, tokenCount, metadataRaw, createdAtStr)
		if err != nil {
			return nil, err
		}

		result, err := vectorstore.NewSimilarityResult(chunk, vectorstore.ClampScore(1.0-distance))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	s.logger.Debug("search completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (s *Store) buildChunk(idStr, docStr, tenantStr string, chunkIndex int, content string, tokenCount int, metadataRaw, createdAtStr string) (vectorstore.Chunk, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return vectorstore.Chunk{}, fmt.Errorf("parsing chunk id %q: %w", idStr, err)
	}
	docID, err := uuid.Parse(docStr)
	if err != nil {
		return vectorstore.Chunk{}, fmt.Errorf("parsing document id %q: %w", docStr, err)
	}
	tenID, err := uuid.Parse(tenantStr)
	if err != nil {
		return vectorstore.Chunk{}, fmt.Errorf("parsing tenant id %q: %w", tenantStr, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		createdAt = time.Time{}
	}

	chunk := vectorstore.Chunk{
		ID:         id,
		DocumentID: docID,
		TenantID:   tenID,
		ChunkIndex: chunkIndex,
		Content:    content,
		TokenCount: tokenCount,
		CreatedAt:  createdAt,
	}

	// Malformed stored metadata degrades to an empty map; a single
	// corrupt row must not fail the whole response.
	var metadata map[string]any
	if err := json.Unmarshal([]byte(metadataRaw), &metadata); err != nil || metadata == nil {
		if err != nil {
			s.logger.Warn("failed to decode chunk metadata",
				zap.String("chunk_id", idStr),
				zap.Error(err),
			)
		}
		metadata = map[string]any{}
	}
	chunk.Metadata = metadata

	return chunk, nil
}

// DeleteByDocumentID removes all chunks and embeddings for the document.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM chunks WHERE document_id = ?`, documentID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunk_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return 0, fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id = ?`, documentID.String(),
	); err != nil {
		return 0, fmt.Errorf("deleting chunk rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	deleted := int64(len(rowIDs))
	s.logger.Debug("deleted chunks for document",
		zap.String("document_id", documentID.String()),
		zap.Int64("count", deleted),
	)

	return deleted, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: serializing chunk metadata: %v", vectorstore.ErrValidation, err)
	}
	return string(raw), nil
}

var _ vectorstore.Store = (*Store)(nil)
