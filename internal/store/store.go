package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// Store persists documentation chunks with their embeddings in Postgres and
// answers nearest-neighbour queries through pgvector.
type Store struct {
	DB         *sql.DB
	dimensions int
}

// DefaultEmbeddingDimensions indicates the expected length of semantic
// vectors stored in the pgvector column.
const DefaultEmbeddingDimensions = 768

// DocumentChunk is a contiguous segment of a source document, independently
// embedded and retrievable. Chunks are immutable once inserted.
type DocumentChunk struct {
	ID          int64
	Namespace   string
	DocType     string
	Heading     string
	Path        string
	URL         string
	Content     string
	ChunkID     int
	TotalChunks int
	Level       int
	Embedding   []float32
}

// SearchResult is a ranked retrieval hit. Similarity is 1 - cosine distance,
// clamped to [0, 1] for reporting.
type SearchResult struct {
	Chunk      DocumentChunk
	Similarity float64
}

// NamespaceCount reports how many chunks a namespace holds.
type NamespaceCount struct {
	Namespace string
	Count     int
}

// New constructs the Store with an explicit Postgres DSN and the deployment's
// fixed vector dimension. It pings the database and ensures the schema, so a
// returned Store is ready for traffic.
func New(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &Store{DB: db, dimensions: dimensions}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dimensions returns the vector length every stored embedding must have.
func (s *Store) Dimensions() int { return s.dimensions }

// EnsureSchema sets up the vector extension, documents table and indexes.
// Safe to call on every process start. A missing pgvector extension is a hard
// misconfiguration and propagates.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector;`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	var tableExists bool
	err := s.DB.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT FROM information_schema.tables
    WHERE table_schema = 'public'
    AND table_name = 'documents'
);
`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check documents table: %w", err)
	}

	if !tableExists {
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE documents (
    id SERIAL PRIMARY KEY,
    namespace TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    heading TEXT,
    path TEXT,
    url TEXT,
    content TEXT NOT NULL,
    chunk_id INTEGER,
    total_chunks INTEGER,
    level INTEGER,
    embedding VECTOR(%d) NOT NULL
);
`, s.dimensions)); err != nil {
			return fmt.Errorf("create documents table: %w", err)
		}
	}

	if _, err := s.DB.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS documents_embedding_idx
ON documents
USING ivfflat (embedding vector_cosine_ops)
WITH (lists = 100);
`); err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS documents_namespace_idx ON documents (namespace);`); err != nil {
		return fmt.Errorf("create namespace index: %w", err)
	}
	return nil
}

// InsertChunks bulk-inserts chunks in a single transaction. Either every
// chunk of the batch becomes visible or none does; failures roll back and
// propagate to the ingestion caller.
func (s *Store) InsertChunks(ctx context.Context, chunks []DocumentChunk) (count int, err error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i, c := range chunks {
		if strings.TrimSpace(c.Namespace) == "" {
			return 0, fmt.Errorf("chunk %d: namespace required", i)
		}
		if len(c.Embedding) != s.dimensions {
			return 0, fmt.Errorf("chunk %d: embedding has dimension %d, want %d", i, len(c.Embedding), s.dimensions)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO documents (namespace, doc_type, heading, path, url, content, chunk_id, total_chunks, level, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::vector)
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i := range chunks {
		c := chunks[i]
		vectorLiteral, encErr := encodeVectorLiteral(c.Embedding)
		if encErr != nil {
			err = encErr
			return 0, err
		}
		if _, err = stmt.ExecContext(ctx, c.Namespace, c.DocType, c.Heading, c.Path, c.URL, c.Content,
			c.ChunkID, c.TotalChunks, c.Level, vectorLiteral); err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}

// SearchChunks returns at most topK chunks from the given namespace ordered
// by descending cosine similarity to the query vector. A namespace with no
// chunks yields an empty result, not an error.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, namespace string, topK int) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 4
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, namespace, doc_type, heading, path, url, content, chunk_id, total_chunks, level,
       1 - (embedding <=> $1::vector) AS similarity
FROM documents
WHERE namespace = $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLiteral, namespace, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			res     SearchResult
			heading sql.NullString
			path    sql.NullString
			url     sql.NullString
			chunkID sql.NullInt64
			total   sql.NullInt64
			level   sql.NullInt64
		)
		if err := rows.Scan(&res.Chunk.ID, &res.Chunk.Namespace, &res.Chunk.DocType, &heading, &path, &url,
			&res.Chunk.Content, &chunkID, &total, &level, &res.Similarity); err != nil {
			return nil, err
		}
		res.Chunk.Heading = heading.String
		res.Chunk.Path = path.String
		res.Chunk.URL = url.String
		res.Chunk.ChunkID = int(chunkID.Int64)
		res.Chunk.TotalChunks = int(total.Int64)
		res.Chunk.Level = int(level.Int64)
		res.Similarity = clampSimilarity(res.Similarity)
		results = append(results, res)
	}
	return results, rows.Err()
}

// CountByNamespace returns the number of chunks stored under a namespace.
func (s *Store) CountByNamespace(ctx context.Context, namespace string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE namespace = $1`, namespace).Scan(&count)
	return count, err
}

// NamespaceStats returns per-namespace chunk counts, largest first.
func (s *Store) NamespaceStats(ctx context.Context) ([]NamespaceCount, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT namespace, COUNT(*)
FROM documents
GROUP BY namespace
ORDER BY COUNT(*) DESC, namespace
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NamespaceCount
	for rows.Next() {
		var nc NamespaceCount
		if err := rows.Scan(&nc.Namespace, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func clampSimilarity(val float64) float64 {
	if val < 0 {
		return 0
	}
	if val > 1 {
		return 1
	}
	return val
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector value %q: %w", value, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
