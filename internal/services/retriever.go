package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/types"
	"github.com/wellnessai/agent-backend/internal/vector"
)

// metadataBonusWeight scales the soft metadata bonus added on top of
// the index's base similarity score.
const metadataBonusWeight = 0.1

// RetrieverService embeds a query, over-fetches from the vector index
// and reranks with a metadata bonus. The filter is handed to the index
// as well; backends restrict on the scalar keys they support and the
// bonus covers the rest.
type RetrieverService interface {
	Retrieve(ctx context.Context, query string, k int, filter map[string]any) ([]types.RetrievedDocument, error)
}

type retrieverService struct {
	log    *logger.Logger
	oracle Oracle
	index  vector.Index
}

func NewRetrieverService(baseLog *logger.Logger, oracle Oracle, index vector.Index) RetrieverService {
	return &retrieverService{
		log:    baseLog.With("service", "RetrieverService"),
		oracle: oracle,
		index:  index,
	}
}

func (r *retrieverService) Retrieve(ctx context.Context, query string, k int, filter map[string]any) ([]types.RetrievedDocument, error) {
	if k <= 0 {
		return []types.RetrievedDocument{}, nil
	}

	vecs, err := r.oracle.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Fetch twice the requested amount so reranking has room to promote
	// metadata-matching documents from below the cut line.
	docs, err := r.index.SimilaritySearch(ctx, vecs[0], 2*k, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]types.RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		score := d.Score
		if len(filter) > 0 {
			score += metadataBonusWeight * float64(metadataBonus(filter, d.Metadata))
		}
		out = append(out, types.RetrievedDocument{
			Content:  d.Content,
			Metadata: d.Metadata,
			Score:    score,
		})
	}

	// Stable: equal scores keep the index's original order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if len(out) > k {
		out = out[:k]
	}
	r.log.Debug("retrieval complete", "requested", k, "fetched", len(docs), "returned", len(out))
	return out, nil
}

// metadataBonus counts filter agreements: one point per matching
// top-level key, and for map-valued filter entries one point per
// matching sub-key inside the document's corresponding map.
func metadataBonus(filter, metadata map[string]any) int {
	if len(metadata) == 0 {
		return 0
	}
	bonus := 0
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			continue
		}
		if wantMap, isMap := want.(map[string]any); isMap {
			gotMap, gotIsMap := got.(map[string]any)
			if !gotIsMap {
				continue
			}
			for sub, wantSub := range wantMap {
				if gotSub, subOK := gotMap[sub]; subOK && scalarEqual(wantSub, gotSub) {
					bonus++
				}
			}
			continue
		}
		if scalarEqual(want, got) {
			bonus++
		}
	}
	return bonus
}

// scalarEqual compares values the way they round-trip through JSON, so
// an int filter matches a float64 payload number.
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aOK := asFloat(a)
	bf, bOK := asFloat(b)
	if aOK && bOK {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
