package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/types"
	"github.com/wellnessai/agent-backend/internal/vector"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// mockOracle serves scripted chat responses in order and fails loudly
// when a test consumes more than it scripted.
type mockOracle struct {
	mu            sync.Mutex
	chatResponses []string
	chatErr       error
	chatCalls     int
	chatPrompts   []string
	moderation    *ModerationResult
	moderationErr error
	embedCalls    int
	embedErr      error
	dim           int
}

func (m *mockOracle) Chat(_ context.Context, _, user string, _ float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatCalls++
	m.chatPrompts = append(m.chatPrompts, user)
	if m.chatErr != nil {
		return "", m.chatErr
	}
	if len(m.chatResponses) == 0 {
		return "", fmt.Errorf("no scripted chat response for call %d", m.chatCalls)
	}
	resp := m.chatResponses[0]
	m.chatResponses = m.chatResponses[1:]
	return resp, nil
}

func (m *mockOracle) Moderate(context.Context, string) (*ModerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moderation, m.moderationErr
}

func (m *mockOracle) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	dim := m.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = 0.1
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockOracle) Model() string { return "test-model" }

type fakeIndex struct {
	docs       []vector.Document
	err        error
	calls      int
	lastTopK   int
	lastFilter map[string]any
}

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ []float32, topK int, filter map[string]any) ([]vector.Document, error) {
	f.calls++
	f.lastTopK = topK
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > topK {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

type fakePlanStateRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]datatypes.JSON
	getErr    error
	upsertErr error
	gets      int
	upserts   int
}

func newFakePlanStateRepo() *fakePlanStateRepo {
	return &fakePlanStateRepo{rows: make(map[uuid.UUID]datatypes.JSON)}
}

func (f *fakePlanStateRepo) GetByUserID(_ context.Context, _ *gorm.DB, userID uuid.UUID) (*types.UserPlanState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	state, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	return &types.UserPlanState{UserID: userID, State: state}, nil
}

func (f *fakePlanStateRepo) Upsert(_ context.Context, _ *gorm.DB, userID uuid.UUID, state datatypes.JSON) (*types.UserPlanState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.rows[userID] = state
	return &types.UserPlanState{UserID: userID, State: state}, nil
}

type fakeCallLogRepo struct {
	mu      sync.Mutex
	created []*types.AICallLog
	err     error
}

func (f *fakeCallLogRepo) Create(_ context.Context, _ *gorm.DB, logs []*types.AICallLog) ([]*types.AICallLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, logs...)
	return logs, nil
}
