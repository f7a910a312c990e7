package knowledge

import (
	"context"
	"time"
)

// Chunk is one indexed slice of a tenant document.
type Chunk struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	DocID        string    `json:"doc_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Filename     string    `json:"filename"`
	SectionTitle string    `json:"section_title,omitempty"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"-"`
	IsTrashed    bool      `json:"is_trashed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document aggregates the chunks of one uploaded file.
type Document struct {
	DocID      string    `json:"doc_id"`
	TenantID   string    `json:"tenant_id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	IsTrashed  bool      `json:"is_trashed"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk pairs a chunk with its rerank (or retrieval) score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// IKnowledgeRepository persists and retrieves chunks.
type IKnowledgeRepository interface {
	SaveChunks(ctx context.Context, chunks []Chunk) error
	// KeywordCandidates runs the tokenized LIKE query, trashed excluded.
	KeywordCandidates(ctx context.Context, tenantID, query string, limit int) ([]Chunk, error)
	// AllEmbedded streams every live chunk with an embedding for the tenant.
	AllEmbedded(ctx context.Context, tenantID string) ([]Chunk, error)
	// ByDocAndIndex fetches one chunk for context healing.
	ByDocAndIndex(ctx context.Context, tenantID, docID string, index int) (*Chunk, error)
	ListDocuments(ctx context.Context, tenantID string, includeTrashed bool) ([]Document, error)
	SetTrashed(ctx context.Context, tenantID, docID string, trashed bool) error
	DeleteDocument(ctx context.Context, tenantID, docID string) error
}

// IEmbedder turns texts into vectors.
type IEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// IReranker scores query/document pairs with a cross-encoder.
type IReranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// IKnowledgeUsecase is the tenant-facing index: ingestion plus hybrid search.
type IKnowledgeUsecase interface {
	// IngestFile chunks, embeds and stores an uploaded document.
	IngestFile(ctx context.Context, tenantID, filename string, data []byte) (Document, error)
	// Search returns the formatted context block for a query, empty when
	// nothing relevant exists. It never fails the caller: degraded stages
	// fall back to candidate order.
	Search(ctx context.Context, tenantID, query string, topK int) (string, error)
	// SearchChunks exposes the scored chunks behind Search.
	SearchChunks(ctx context.Context, tenantID, query string, topK int) ([]ScoredChunk, error)
	ListDocuments(ctx context.Context, tenantID string, includeTrashed bool) ([]Document, error)
	TrashDocument(ctx context.Context, tenantID, docID string) error
	RestoreDocument(ctx context.Context, tenantID, docID string) error
	DeleteDocument(ctx context.Context, tenantID, docID string) error
}
