package vector

import (
	"context"
)

// Document is one stored passage with its payload metadata and the
// index's base relevance score for the query.
type Document struct {
	Content  string
	Metadata map[string]any
	Score    float64
}

// Index is the external similarity-search handle. Implementations are
// expensive to construct and are created once at process start.
type Index interface {
	// SimilaritySearch returns up to topK documents ranked by embedding
	// similarity. filter, when non-nil, narrows candidates by exact
	// payload match on scalar keys.
	SimilaritySearch(ctx context.Context, query []float32, topK int, filter map[string]any) ([]Document, error)
}
