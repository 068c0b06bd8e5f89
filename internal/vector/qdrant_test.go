package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wellnessai/agent-backend/internal/logger"
)

func newQdrantTestServer(t *testing.T, distance string, searchHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/kb", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"result": map[string]any{
				"config": map[string]any{
					"params": map[string]any{
						"vectors": map[string]any{"size": 3, "distance": distance},
					},
				},
			},
		})
	})
	if searchHandler != nil {
		mux.HandleFunc("/collections/kb/points/search", searchHandler)
	}
	return httptest.NewServer(mux)
}

func testIndex(t *testing.T, srv *httptest.Server) Index {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	idx, err := NewQdrantIndex(log, QdrantConfig{URL: srv.URL, Collection: "kb", VectorDim: 3})
	if err != nil {
		t.Fatalf("NewQdrantIndex: %v", err)
	}
	return idx
}

func TestSimilaritySearch(t *testing.T) {
	var gotReq map[string]any
	srv := newQdrantTestServer(t, "Cosine", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"result": []map[string]any{
				{
					"id":    1,
					"score": 0.91,
					"payload": map[string]any{
						"content": "passage text",
						"source":  "basics.md",
						"lang":    "en",
					},
				},
			},
		})
	})
	defer srv.Close()

	idx := testIndex(t, srv)
	docs, err := idx.SimilaritySearch(context.Background(), []float32{0.1, 0.2, 0.3}, 5, map[string]any{"lang": "en"})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}

	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	doc := docs[0]
	if doc.Content != "passage text" {
		t.Errorf("Content = %q", doc.Content)
	}
	if _, leaked := doc.Metadata["content"]; leaked {
		t.Error("content key must not leak into metadata")
	}
	if doc.Metadata["source"] != "basics.md" {
		t.Errorf("Metadata[source] = %v", doc.Metadata["source"])
	}
	if doc.Score != 0.91 {
		t.Errorf("cosine score must pass through unchanged, got %v", doc.Score)
	}

	if gotReq["limit"] != float64(5) {
		t.Errorf("limit = %v, want 5", gotReq["limit"])
	}
	if gotReq["with_payload"] != true {
		t.Error("search must request payloads")
	}
	if gotReq["filter"] == nil {
		t.Error("scalar filter must be sent to qdrant")
	}
}

func TestSimilaritySearchEuclidScoreNormalized(t *testing.T) {
	srv := newQdrantTestServer(t, "Euclid", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"result": []map[string]any{
				{"id": 1, "score": 3.0, "payload": map[string]any{"content": "x"}},
			},
		})
	})
	defer srv.Close()

	idx := testIndex(t, srv)
	docs, err := idx.SimilaritySearch(context.Background(), []float32{1, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	// Distance 3 -> 1/(1+3).
	if got := docs[0].Score; got != 0.25 {
		t.Errorf("normalized score = %v, want 0.25", got)
	}
}

func TestSimilaritySearchDimensionMismatch(t *testing.T) {
	srv := newQdrantTestServer(t, "Cosine", nil)
	defer srv.Close()

	idx := testIndex(t, srv)
	if _, err := idx.SimilaritySearch(context.Background(), []float32{0.1}, 5, nil); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestSimilaritySearchStatusError(t *testing.T) {
	srv := newQdrantTestServer(t, "Cosine", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"error": "collection not found"},
		})
	})
	defer srv.Close()

	idx := testIndex(t, srv)
	if _, err := idx.SimilaritySearch(context.Background(), []float32{1, 2, 3}, 5, nil); err == nil {
		t.Error("expected envelope status error to surface")
	}
}

func TestTranslateFilter(t *testing.T) {
	t.Run("scalars become must conditions", func(t *testing.T) {
		qf := translateFilter(map[string]any{"lang": "en", "year": 2024})
		if qf == nil {
			t.Fatal("expected a filter")
		}
		must := qf["must"].([]any)
		if len(must) != 2 {
			t.Errorf("must conditions = %d, want 2", len(must))
		}
	})

	t.Run("nested values are skipped", func(t *testing.T) {
		qf := translateFilter(map[string]any{
			"tags": map[string]any{"topic": "protein"},
			"ids":  []any{1, 2},
		})
		if qf != nil {
			t.Errorf("map and slice values are soft signals, got filter %v", qf)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if translateFilter(nil) != nil {
			t.Error("nil filter must stay nil")
		}
	})
}
