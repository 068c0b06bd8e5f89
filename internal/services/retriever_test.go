package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/wellnessai/agent-backend/internal/vector"
)

func TestRetrieveOverfetchAndTruncate(t *testing.T) {
	index := &fakeIndex{
		docs: []vector.Document{
			{Content: "a", Metadata: map[string]any{"source": "a.md"}, Score: 0.9},
			{Content: "b", Metadata: map[string]any{"source": "b.md"}, Score: 0.8},
			{Content: "c", Metadata: map[string]any{"source": "c.md"}, Score: 0.7},
			{Content: "d", Metadata: map[string]any{"source": "d.md"}, Score: 0.6},
		},
	}
	oracle := &mockOracle{}
	svc := NewRetrieverService(testLogger(t), oracle, index)

	docs, err := svc.Retrieve(context.Background(), "protein intake", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if index.lastTopK != 4 {
		t.Errorf("index asked for %d candidates, want 2k = 4", index.lastTopK)
	}
	if len(docs) != 2 {
		t.Errorf("returned %d docs, want 2", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].Score > docs[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %v > %v", i, docs[i].Score, docs[i-1].Score)
		}
	}
	if oracle.embedCalls != 1 {
		t.Errorf("embed calls = %d, want 1", oracle.embedCalls)
	}
}

func TestRetrieveMetadataBonusReranks(t *testing.T) {
	// The second doc trails on base score but matches the filter; the
	// 0.1 bonus must promote it past the first.
	index := &fakeIndex{
		docs: []vector.Document{
			{Content: "general", Metadata: map[string]any{"category": "lifestyle"}, Score: 0.80},
			{Content: "targeted", Metadata: map[string]any{"category": "nutrition"}, Score: 0.75},
		},
	}
	svc := NewRetrieverService(testLogger(t), &mockOracle{}, index)

	docs, err := svc.Retrieve(context.Background(), "q", 2, map[string]any{"category": "nutrition"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if docs[0].Content != "targeted" {
		t.Errorf("first doc = %q, want the filter-matching one", docs[0].Content)
	}
	if got := docs[0].Score; got < 0.849 || got > 0.851 {
		t.Errorf("boosted score = %v, want 0.75 + 0.1", got)
	}
	// The bonus reranks whatever the index returned; candidates the
	// backend let through are never dropped here.
	if len(docs) != 2 {
		t.Errorf("returned %d docs, want both", len(docs))
	}
	// The filter also goes to the index so backends can restrict on it.
	if index.lastFilter == nil || index.lastFilter["category"] != "nutrition" {
		t.Errorf("index filter = %v, want the category pushed down", index.lastFilter)
	}
}

func TestRetrieveNestedMetadataBonus(t *testing.T) {
	index := &fakeIndex{
		docs: []vector.Document{
			{
				Content: "deep",
				Metadata: map[string]any{
					"tags": map[string]any{"topic": "protein", "level": "basic"},
				},
				Score: 0.5,
			},
		},
	}
	svc := NewRetrieverService(testLogger(t), &mockOracle{}, index)

	filter := map[string]any{
		"tags": map[string]any{"topic": "protein", "level": "basic", "lang": "en"},
	}
	docs, err := svc.Retrieve(context.Background(), "q", 1, filter)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Two matching sub-keys, one absent: bonus 2 -> +0.2.
	if got := docs[0].Score; got < 0.699 || got > 0.701 {
		t.Errorf("score = %v, want 0.5 + 2*0.1", got)
	}
}

func TestRetrieveNumericEquality(t *testing.T) {
	// JSON payload numbers arrive as float64; an int filter must still
	// count as a match.
	if !scalarEqual(7, float64(7)) {
		t.Error("int vs float64 should match")
	}
	if scalarEqual(7, float64(8)) {
		t.Error("different numbers must not match")
	}
	if !scalarEqual("en", "en") {
		t.Error("equal strings should match")
	}
}

func TestRetrieveEdgeCases(t *testing.T) {
	t.Run("non-positive k", func(t *testing.T) {
		index := &fakeIndex{}
		svc := NewRetrieverService(testLogger(t), &mockOracle{}, index)
		docs, err := svc.Retrieve(context.Background(), "q", 0, nil)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(docs) != 0 || index.calls != 0 {
			t.Error("k <= 0 must short-circuit without touching the index")
		}
	})

	t.Run("embed error propagates", func(t *testing.T) {
		svc := NewRetrieverService(testLogger(t), &mockOracle{embedErr: fmt.Errorf("quota")}, &fakeIndex{})
		if _, err := svc.Retrieve(context.Background(), "q", 3, nil); err == nil {
			t.Error("expected embedding error to propagate")
		}
	})

	t.Run("index error propagates", func(t *testing.T) {
		svc := NewRetrieverService(testLogger(t), &mockOracle{}, &fakeIndex{err: fmt.Errorf("down")})
		if _, err := svc.Retrieve(context.Background(), "q", 3, nil); err == nil {
			t.Error("expected index error to propagate")
		}
	})
}
