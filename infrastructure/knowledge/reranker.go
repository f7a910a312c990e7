package knowledge

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	rerankConcurrency  = 4
	defaultRerankBatch = 16
)

// RerankClient is the raw single-batch surface the proxy client provides.
type RerankClient interface {
	Rerank(ctx context.Context, model, query string, documents []string) ([]float64, error)
}

// ProxyReranker scores candidates through the proxy's cross-encoder
// endpoint, splitting the candidate pool into small batches so individual
// requests stay within the encoder's input limits.
type ProxyReranker struct {
	client    RerankClient
	model     string
	batchSize int
}

// NewProxyReranker creates the reranker with the configured batch size.
func NewProxyReranker(client RerankClient, model string, batchSize int) *ProxyReranker {
	if batchSize <= 0 {
		batchSize = defaultRerankBatch
	}
	return &ProxyReranker{client: client, model: model, batchSize: batchSize}
}

// Rerank implements knowledge.IReranker. Batches run concurrently and the
// scores keep the input order. Any batch failure fails the whole rerank so
// the caller can fall back to candidate order.
func (r *ProxyReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(documents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rerankConcurrency)

	for start := 0; start < len(documents); start += r.batchSize {
		start := start
		end := start + r.batchSize
		if end > len(documents) {
			end = len(documents)
		}

		g.Go(func() error {
			batchScores, err := r.client.Rerank(gctx, r.model, query, documents[start:end])
			if err != nil {
				return err
			}
			copy(scores[start:end], batchScores)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
