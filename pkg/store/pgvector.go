package store

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
	Logger      *slog.Logger
}

// VectorStore is a pgvector-backed chunk index. Similarity is cosine,
// reported as 1 - cosine distance.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
}

var _ types.VectorIndex = (*VectorStore)(nil)

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder types.Embedder) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "document_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 10
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if embedder == nil {
		return nil, fmt.Errorf("vector store requires an embedder")
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			content TEXT NOT NULL,
			section_name TEXT,
			page_number INTEGER,
			page_end INTEGER,
			chunk_index INTEGER,
			token_count INTEGER,
			uploaded_at TIMESTAMPTZ,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Search is exact; an older approximate embedding index is removed.
	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_doc_idx ON %s (doc_id)`,
			vs.config.TableName, vs.config.TableName),
		fmt.Sprintf(`DROP INDEX IF EXISTS %s_embedding_idx`, vs.config.TableName),
	}
	for _, stmt := range indexes {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Upsert embeds and stores chunks in batches, replacing rows with the same id.
func (vs *VectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, content, section_name, page_number, page_end,
			chunk_index, token_count, uploaded_at, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			section_name = EXCLUDED.section_name,
			page_number = EXCLUDED.page_number,
			page_end = EXCLUDED.page_end,
			chunk_index = EXCLUDED.chunk_index,
			token_count = EXCLUDED.token_count,
			uploaded_at = EXCLUDED.uploaded_at,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for start := 0; start < len(chunks); start += vs.config.BatchSize {
		end := start + vs.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = sanitizeUTF8(chunk.Text)
		}

		embeddings, err := vs.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(batch))
		}

		for i, chunk := range batch {
			_, err = tx.Exec(ctx, stmt,
				chunk.ID,
				chunk.DocID,
				texts[i],
				sanitizeUTF8(chunk.SectionName),
				chunk.PageNumber,
				chunk.PageEnd,
				chunk.Index,
				chunk.TokenCount,
				chunk.UploadedAt,
				pgvector.NewVector(embeddings[i]),
				chunk.Metadata,
			)
			if err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.config.Logger.Debug("Chunks stored", slog.Int("count", len(chunks)), slog.String("table", vs.config.TableName))
	return nil
}

func (vs *VectorStore) DeleteByDocument(ctx context.Context, docID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE doc_id = $1`, vs.config.TableName)
	tag, err := vs.pool.Exec(ctx, query, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", docID, err)
	}
	vs.config.Logger.Debug("Chunks deleted", slog.String("doc_id", docID), slog.Int64("rows", tag.RowsAffected()))
	return nil
}

// Query returns up to k chunks ranked by similarity to text. An empty docID
// searches every document.
func (vs *VectorStore) Query(ctx context.Context, text string, k int, docID string, minScore float64) ([]models.ScoredChunk, error) {
	if k <= 0 {
		k = vs.config.SearchLimit
	}

	queryEmbedding, err := vs.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	query := queryStatement(vs.config.TableName, docID != "")
	args := []any{pgvector.NewVector(queryEmbedding), minScore, k}
	if docID != "" {
		args = append(args, docID)
	}
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		err := rows.Scan(
			&sc.ID,
			&sc.DocID,
			&sc.Text,
			&sc.SectionName,
			&sc.PageNumber,
			&sc.PageEnd,
			&sc.Index,
			&sc.TokenCount,
			&sc.UploadedAt,
			&sc.Metadata,
			&sc.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return results, nil
}

// queryStatement ranks rows by cosine distance. Scoped queries select the
// document's rows first through the doc_id index and sort only those.
func queryStatement(table string, scoped bool) string {
	source := table
	with := ""
	if scoped {
		with = fmt.Sprintf(`
		WITH scoped AS MATERIALIZED (
			SELECT * FROM %s WHERE doc_id = $4
		)`, table)
		source = "scoped"
	}
	return fmt.Sprintf(`%s
		SELECT id, doc_id, content, section_name, page_number, page_end,
			chunk_index, token_count, uploaded_at, metadata,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`, with, source)
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
