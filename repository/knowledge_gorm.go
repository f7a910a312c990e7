package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-crm/domains/knowledge"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type knowledgeChunkModel struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"index:idx_knowledge_doc,priority:1;not null"`
	DocID        string `gorm:"index:idx_knowledge_doc,priority:2;not null"`
	ChunkIndex   int    `gorm:"not null"`
	Filename     string `gorm:"not null"`
	SectionTitle string
	Text         string    `gorm:"type:text"`
	Embedding    string    `gorm:"type:text"` // JSON []float32
	IsTrashed    bool      `gorm:"index:idx_knowledge_trashed;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (knowledgeChunkModel) TableName() string {
	return "knowledge_chunks"
}

// --- Repository Implementation ---

type KnowledgeGormRepository struct {
	db *gorm.DB
}

func NewKnowledgeGormRepository(db *gorm.DB) *KnowledgeGormRepository {
	return &KnowledgeGormRepository{db: db}
}

func (r *KnowledgeGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&knowledgeChunkModel{})
}

func (r *KnowledgeGormRepository) SaveChunks(ctx context.Context, chunks []knowledge.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	models := make([]knowledgeChunkModel, len(chunks))
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.New().String()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now()
		}
		m, err := toChunkModel(chunks[i])
		if err != nil {
			return err
		}
		models[i] = m
	}
	return r.db.WithContext(ctx).CreateInBatches(models, 100).Error
}

// KeywordCandidates corre la búsqueda léxica: el query se tokeniza y cada
// token arma un LIKE sobre el texto en minúsculas, OR entre todos. Devuelve
// los chunks en orden de documento para que el rerank decida relevancia.
func (r *KnowledgeGormRepository) KeywordCandidates(ctx context.Context, tenantID, query string, limit int) ([]knowledge.Chunk, error) {
	tokens := keywordTokens(query)
	if len(tokens) == 0 {
		return []knowledge.Chunk{}, nil
	}

	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_trashed = ?", tenantID, false)

	conditions := make([]string, len(tokens))
	args := make([]interface{}, len(tokens))
	for i, t := range tokens {
		conditions[i] = "LOWER(text) LIKE ?"
		args[i] = "%" + t + "%"
	}
	q = q.Where(strings.Join(conditions, " OR "), args...)

	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []knowledgeChunkModel
	if err := q.Order("doc_id ASC, chunk_index ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromChunkModels(models)
}

// AllEmbedded trae todos los chunks vivos con vector para el escaneo de
// similitud en memoria.
func (r *KnowledgeGormRepository) AllEmbedded(ctx context.Context, tenantID string) ([]knowledge.Chunk, error) {
	var models []knowledgeChunkModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_trashed = ? AND embedding <> ''", tenantID, false).
		Order("doc_id ASC, chunk_index ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return fromChunkModels(models)
}

// ByDocAndIndex devuelve nil sin error cuando el chunk no existe: el healing
// de contexto simplemente omite los huecos.
func (r *KnowledgeGormRepository) ByDocAndIndex(ctx context.Context, tenantID, docID string, index int) (*knowledge.Chunk, error) {
	var m knowledgeChunkModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND doc_id = ? AND chunk_index = ? AND is_trashed = ?", tenantID, docID, index, false).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	chunk, err := fromChunkModel(m)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (r *KnowledgeGormRepository) ListDocuments(ctx context.Context, tenantID string, includeTrashed bool) ([]knowledge.Document, error) {
	type docRow struct {
		DocID        string
		TenantID     string
		Filename     string
		ChunkCount   int
		TrashedCount int
		CreatedAt    time.Time
	}

	query := r.db.WithContext(ctx).Model(&knowledgeChunkModel{}).
		Select("doc_id, tenant_id, filename, COUNT(*) as chunk_count, SUM(CASE WHEN is_trashed THEN 1 ELSE 0 END) as trashed_count, MIN(created_at) as created_at").
		Where("tenant_id = ?", tenantID).
		Group("doc_id, tenant_id, filename").
		Order("created_at DESC")
	if !includeTrashed {
		query = query.Where("is_trashed = ?", false)
	}

	var rows []docRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	docs := make([]knowledge.Document, len(rows))
	for i, row := range rows {
		docs[i] = knowledge.Document{
			DocID:      row.DocID,
			TenantID:   row.TenantID,
			Filename:   row.Filename,
			ChunkCount: row.ChunkCount,
			IsTrashed:  row.TrashedCount > 0,
			CreatedAt:  row.CreatedAt,
		}
	}
	return docs, nil
}

func (r *KnowledgeGormRepository) SetTrashed(ctx context.Context, tenantID, docID string, trashed bool) error {
	result := r.db.WithContext(ctx).Model(&knowledgeChunkModel{}).
		Where("tenant_id = ? AND doc_id = ?", tenantID, docID).
		Update("is_trashed", trashed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return knowledge.ErrDocumentNotFound
	}
	return nil
}

func (r *KnowledgeGormRepository) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND doc_id = ?", tenantID, docID).
		Delete(&knowledgeChunkModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return knowledge.ErrDocumentNotFound
	}
	return nil
}

// --- Helpers ---

// keywordTokens limpia el query para el LIKE: minúsculas, tokens de 3+
// caracteres. Si todo queda filtrado usa el query completo recortado.
func keywordTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			tokens = append(tokens, f)
		}
	}
	if len(tokens) == 0 {
		trimmed := strings.ToLower(strings.TrimSpace(query))
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	return tokens
}

func serializeEmbedding(embedding []float32) (string, error) {
	if len(embedding) == 0 {
		return "", nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return "", fmt.Errorf("marshal embedding: %w", err)
	}
	return string(data), nil
}

func deserializeEmbedding(data string) ([]float32, error) {
	if data == "" {
		return nil, nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(data), &embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return embedding, nil
}

// --- Mappers ---

func toChunkModel(c knowledge.Chunk) (knowledgeChunkModel, error) {
	embedding, err := serializeEmbedding(c.Embedding)
	if err != nil {
		return knowledgeChunkModel{}, err
	}

	return knowledgeChunkModel{
		ID:           c.ID,
		TenantID:     c.TenantID,
		DocID:        c.DocID,
		ChunkIndex:   c.ChunkIndex,
		Filename:     c.Filename,
		SectionTitle: c.SectionTitle,
		Text:         c.Text,
		Embedding:    embedding,
		IsTrashed:    c.IsTrashed,
		CreatedAt:    c.CreatedAt,
	}, nil
}

func fromChunkModel(m knowledgeChunkModel) (knowledge.Chunk, error) {
	embedding, err := deserializeEmbedding(m.Embedding)
	if err != nil {
		return knowledge.Chunk{}, err
	}

	return knowledge.Chunk{
		ID:           m.ID,
		TenantID:     m.TenantID,
		DocID:        m.DocID,
		ChunkIndex:   m.ChunkIndex,
		Filename:     m.Filename,
		SectionTitle: m.SectionTitle,
		Text:         m.Text,
		Embedding:    embedding,
		IsTrashed:    m.IsTrashed,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func fromChunkModels(models []knowledgeChunkModel) ([]knowledge.Chunk, error) {
	chunks := make([]knowledge.Chunk, len(models))
	for i, m := range models {
		c, err := fromChunkModel(m)
		if err != nil {
			return nil, err
		}
		chunks[i] = c
	}
	return chunks, nil
}
