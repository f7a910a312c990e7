package usecase

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/knowledge"
	infraknowledge "github.com/AzielCF/az-crm/infrastructure/knowledge"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultCandidatePool = 100
	defaultTopK          = 5
	defaultChunkSize     = 1200
	// Los cross-encoders truncan internamente; cortamos nosotros para no
	// pagar tokens que el modelo va a descartar.
	rerankDocMaxChars = 512
)

type knowledgeService struct {
	repo     knowledge.IKnowledgeRepository
	reranker knowledge.IReranker
	cfg      coreconfig.KnowledgeConfig
	llmCfg   coreconfig.LLMConfig

	embedOnce sync.Once
	embedder  knowledge.IEmbedder
}

// NewKnowledgeService builds the tenant knowledge index: ingestion plus
// hybrid retrieval with rerank and context healing.
func NewKnowledgeService(repo knowledge.IKnowledgeRepository, reranker knowledge.IReranker, cfg coreconfig.KnowledgeConfig, llmCfg coreconfig.LLMConfig) knowledge.IKnowledgeUsecase {
	return &knowledgeService{repo: repo, reranker: reranker, cfg: cfg, llmCfg: llmCfg}
}

// resolveEmbedder picks the embedding provider lazily so a misconfigured
// provider degrades retrieval to keyword-only instead of failing startup.
func (s *knowledgeService) resolveEmbedder() knowledge.IEmbedder {
	s.embedOnce.Do(func() {
		switch strings.ToLower(s.llmCfg.EmbedProvider) {
		case "gemini":
			s.embedder = infraknowledge.NewGeminiEmbedder(s.llmCfg)
		default:
			s.embedder = infraknowledge.NewOpenAIEmbedder(s.llmCfg)
		}
		logrus.Debugf("[Knowledge] Embedder initialized (provider: %s)", s.llmCfg.EmbedProvider)
	})
	return s.embedder
}

func (s *knowledgeService) candidatePool() int {
	if s.cfg.CandidatePool > 0 {
		return s.cfg.CandidatePool
	}
	return defaultCandidatePool
}

// Search returns the formatted context block for the pipeline prompt.
func (s *knowledgeService) Search(ctx context.Context, tenantID, query string, topK int) (string, error) {
	chunks, err := s.SearchChunks(ctx, tenantID, query, topK)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	blocks := make([]string, len(chunks))
	for i, sc := range chunks {
		section := sc.Chunk.SectionTitle
		if section == "" {
			section = "General"
		}
		blocks[i] = fmt.Sprintf("[Source: %s | %s]\n%s", sc.Chunk.Filename, section, sc.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n###\n\n"), nil
}

// SearchChunks runs the hybrid retrieval: keyword and vector candidates in
// equal-weight union, cross-encoder rerank without threshold, context
// healing with the following chunk of each winner. The result comes sorted
// by (doc_id, chunk_index) so split sections read in order.
func (s *knowledgeService) SearchChunks(ctx context.Context, tenantID, query string, topK int) ([]knowledge.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	pool := s.candidatePool()

	keyword, err := s.repo.KeywordCandidates(ctx, tenantID, query, pool)
	if err != nil {
		return nil, err
	}

	vector := s.vectorCandidates(ctx, tenantID, query, pool)

	// Equal-weight union, keyword order first.
	seen := make(map[string]bool, len(keyword)+len(vector))
	candidates := make([]knowledge.Chunk, 0, len(keyword)+len(vector))
	for _, c := range append(keyword, vector...) {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := s.rerank(ctx, query, candidates)

	if len(scored) > topK {
		scored = scored[:topK]
	}

	// Context healing: stitch each winner to its next chunk when the split
	// cut a section in half.
	selected := make(map[string]bool, len(scored)*2)
	for _, sc := range scored {
		selected[sc.Chunk.ID] = true
	}
	healed := scored
	for _, sc := range scored {
		next, err := s.repo.ByDocAndIndex(ctx, tenantID, sc.Chunk.DocID, sc.Chunk.ChunkIndex+1)
		if err != nil {
			logrus.Debugf("[Knowledge] Context healing lookup failed: %v", err)
			continue
		}
		if next == nil || selected[next.ID] {
			continue
		}
		selected[next.ID] = true
		healed = append(healed, knowledge.ScoredChunk{Chunk: *next, Score: sc.Score})
	}

	sort.Slice(healed, func(i, j int) bool {
		if healed[i].Chunk.DocID != healed[j].Chunk.DocID {
			return healed[i].Chunk.DocID < healed[j].Chunk.DocID
		}
		return healed[i].Chunk.ChunkIndex < healed[j].Chunk.ChunkIndex
	})
	return healed, nil
}

// vectorCandidates embeds the query and scans every live chunk. Any failure
// here degrades to keyword-only retrieval, it never breaks the search.
func (s *knowledgeService) vectorCandidates(ctx context.Context, tenantID, query string, pool int) []knowledge.Chunk {
	embedder := s.resolveEmbedder()

	vecs, err := embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		logrus.Warnf("[Knowledge] Query embedding failed, keyword-only retrieval: %v", err)
		return nil
	}
	queryVec := vecs[0]

	chunks, err := s.repo.AllEmbedded(ctx, tenantID)
	if err != nil {
		logrus.Warnf("[Knowledge] Vector scan failed, keyword-only retrieval: %v", err)
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}

	type scoredIdx struct {
		idx   int
		score float64
	}
	scores := make([]scoredIdx, len(chunks))
	for i := range chunks {
		scores[i] = scoredIdx{idx: i, score: cosineSimilarity(queryVec, chunks[i].Embedding)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if len(scores) > pool {
		scores = scores[:pool]
	}
	out := make([]knowledge.Chunk, len(scores))
	for i, sc := range scores {
		out[i] = chunks[sc.idx]
	}
	return out
}

// rerank scores candidates with the cross-encoder. On failure the candidate
// order stands: a chunk that matched at all is considered relevant.
func (s *knowledgeService) rerank(ctx context.Context, query string, candidates []knowledge.Chunk) []knowledge.ScoredChunk {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = truncateChars(c.Text, rerankDocMaxChars)
	}

	scored := make([]knowledge.ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = knowledge.ScoredChunk{Chunk: c}
	}

	scores, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil || len(scores) != len(candidates) {
		logrus.Warnf("[Knowledge] Rerank unavailable, keeping candidate order: %v", err)
		return scored
	}

	for i := range scored {
		scored[i].Score = scores[i]
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

// IngestFile chunks, embeds and stores one uploaded document.
func (s *knowledgeService) IngestFile(ctx context.Context, tenantID, filename string, data []byte) (knowledge.Document, error) {
	chunkSize := s.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var pieces []chunkPiece
	if isHTMLFile(filename, data) {
		var err error
		pieces, err = chunkHTML(data, chunkSize)
		if err != nil {
			return knowledge.Document{}, fmt.Errorf("parse html: %w", err)
		}
	} else {
		pieces = chunkPlainText(string(data), chunkSize)
	}
	if len(pieces) == 0 {
		return knowledge.Document{}, knowledge.ErrEmptyDocument
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.text
	}

	var embeddings [][]float32
	if vecs, err := s.resolveEmbedder().EmbedTexts(ctx, texts); err != nil {
		// El documento queda buscable por keyword aunque no haya vectores.
		logrus.Warnf("[Knowledge] Embedding failed for %s, stored without vectors: %v", filename, err)
	} else {
		embeddings = vecs
	}

	now := time.Now()
	docID := uuid.New().String()
	chunks := make([]knowledge.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = knowledge.Chunk{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			DocID:        docID,
			ChunkIndex:   i,
			Filename:     filename,
			SectionTitle: p.section,
			Text:         p.text,
			CreatedAt:    now,
		}
		if embeddings != nil && i < len(embeddings) {
			chunks[i].Embedding = embeddings[i]
		}
	}

	if err := s.repo.SaveChunks(ctx, chunks); err != nil {
		return knowledge.Document{}, err
	}

	// El fichero original queda archivado junto a los chunks, nombrado por
	// doc_id. Sin configuración cargada no hay raíz de almacenamiento.
	if coreconfig.Global != nil {
		if err := os.WriteFile(sourceArchivePath(tenantID, docID), data, 0644); err != nil {
			logrus.Warnf("[Knowledge] Source file for %s not archived: %v", filename, err)
		}
	}

	logrus.Infof("[Knowledge] Ingested %s for tenant %s: %d chunks, %s",
		filename, tenantID, len(chunks), humanize.Bytes(uint64(len(data))))

	return knowledge.Document{
		DocID:      docID,
		TenantID:   tenantID,
		Filename:   filename,
		ChunkCount: len(chunks),
		CreatedAt:  now,
	}, nil
}

func (s *knowledgeService) ListDocuments(ctx context.Context, tenantID string, includeTrashed bool) ([]knowledge.Document, error) {
	return s.repo.ListDocuments(ctx, tenantID, includeTrashed)
}

func (s *knowledgeService) TrashDocument(ctx context.Context, tenantID, docID string) error {
	return s.repo.SetTrashed(ctx, tenantID, docID, true)
}

func (s *knowledgeService) RestoreDocument(ctx context.Context, tenantID, docID string) error {
	return s.repo.SetTrashed(ctx, tenantID, docID, false)
}

func (s *knowledgeService) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	if err := s.repo.DeleteDocument(ctx, tenantID, docID); err != nil {
		return err
	}
	if coreconfig.Global != nil {
		if err := utils.RemoveFile(0, sourceArchivePath(tenantID, docID)); err != nil {
			logrus.Warnf("[Knowledge] Archived source for doc %s not removed: %v", docID, err)
		}
	}
	return nil
}

// sourceArchivePath es la copia del fichero subido, direccionada por doc_id
// igual que el mediacache direcciona por hash.
func sourceArchivePath(tenantID, docID string) string {
	return filepath.Join(utils.GetTenantStoragePath(tenantID, "knowledge"), docID)
}

// --- Chunking ---

type chunkPiece struct {
	section string
	text    string
}

func isHTMLFile(filename string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return true
	}
	head := strings.ToLower(string(data[:min(len(data), 256)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// chunkHTML walks the parsed document: headings open a new section, block
// text accumulates until the chunk size is reached.
func chunkHTML(data []byte, chunkSize int) ([]chunkPiece, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style, noscript, iframe").Remove()

	var pieces []chunkPiece
	section := "General"
	var buf strings.Builder

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			pieces = append(pieces, chunkPiece{section: section, text: text})
		}
		buf.Reset()
	}

	doc.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, td, dd, dt").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		name := goquery.NodeName(sel)
		if len(name) == 2 && name[0] == 'h' {
			flush()
			section = truncateChars(text, 120)
			return
		}
		if buf.Len() > 0 && buf.Len()+len(text) > chunkSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	})
	flush()

	return splitOversized(pieces, chunkSize), nil
}

// chunkPlainText splits on blank lines and packs paragraphs into chunks.
func chunkPlainText(text string, chunkSize int) []chunkPiece {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var pieces []chunkPiece
	var buf strings.Builder
	flush := func() {
		t := strings.TrimSpace(buf.String())
		if t != "" {
			pieces = append(pieces, chunkPiece{section: "General", text: t})
		}
		buf.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(p) > chunkSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()

	return splitOversized(pieces, chunkSize)
}

// splitOversized hard-splits any piece that alone exceeds the chunk size.
func splitOversized(pieces []chunkPiece, chunkSize int) []chunkPiece {
	out := make([]chunkPiece, 0, len(pieces))
	for _, p := range pieces {
		runes := []rune(p.text)
		if len(runes) <= chunkSize {
			out = append(out, p)
			continue
		}
		for start := 0; start < len(runes); start += chunkSize {
			end := min(start+chunkSize, len(runes))
			out = append(out, chunkPiece{section: p.section, text: strings.TrimSpace(string(runes[start:end]))})
		}
	}
	return out
}

func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
