package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/repos"
	"github.com/wellnessai/agent-backend/internal/types"
)

// PlanStateService owns the per-user plan state: a read-through cache
// over the durable row, serialized per user so concurrent saves for
// different plan kinds never lose each other's writes.
type PlanStateService interface {
	// Get returns the user's plan state, an empty map for unknown users.
	Get(ctx context.Context, userID uuid.UUID) (types.UserState, error)
	// IsActive reports whether the stored plan of the given kind exists
	// and its window still covers today.
	IsActive(state types.UserState, kind types.PlanKind) bool
	Save(ctx context.Context, userID uuid.UUID, kind types.PlanKind, record *types.PlanRecord) error
	// Delete removes the plan of the given kind. The bool reports
	// whether anything was removed.
	Delete(ctx context.Context, userID uuid.UUID, kind types.PlanKind) (bool, error)
}

type planStateService struct {
	log  *logger.Logger
	repo repos.UserPlanStateRepo

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
	cache map[uuid.UUID]types.UserState
	group singleflight.Group
}

func NewPlanStateService(baseLog *logger.Logger, repo repos.UserPlanStateRepo) PlanStateService {
	return &planStateService{
		log:   baseLog.With("service", "PlanStateService"),
		repo:  repo,
		locks: make(map[uuid.UUID]*sync.Mutex),
		cache: make(map[uuid.UUID]types.UserState),
	}
}

func todayISO() string {
	return time.Now().Format("2006-01-02")
}

// planActive checks the validity window on ISO dates; lexicographic
// compare is correct for YYYY-MM-DD.
func planActive(state types.UserState, kind types.PlanKind, today string) bool {
	rec, ok := state[kind]
	if !ok || rec == nil || rec.Plan == nil || rec.EndDate == "" {
		return false
	}
	return today <= rec.EndDate
}

func (s *planStateService) IsActive(state types.UserState, kind types.PlanKind) bool {
	return planActive(state, kind, todayISO())
}

func (s *planStateService) userLock(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *planStateService) Get(ctx context.Context, userID uuid.UUID) (types.UserState, error) {
	s.mu.Lock()
	if state, ok := s.cache[userID]; ok {
		s.mu.Unlock()
		return cloneState(state), nil
	}
	s.mu.Unlock()

	// Collapse concurrent cache misses for the same user into one
	// database read.
	v, err, _ := s.group.Do(userID.String(), func() (any, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	state := v.(types.UserState)

	s.mu.Lock()
	s.cache[userID] = state
	s.mu.Unlock()
	return cloneState(state), nil
}

func (s *planStateService) load(ctx context.Context, userID uuid.UUID) (types.UserState, error) {
	row, err := s.repo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("loading plan state: %w", err)
	}
	if row == nil || len(row.State) == 0 {
		return types.UserState{}, nil
	}
	var state types.UserState
	if err := json.Unmarshal(row.State, &state); err != nil {
		// A corrupt row should not lock the user out forever.
		s.log.Error("stored plan state is not valid JSON, treating as empty",
			"user_id", userID.String(), "error", err)
		return types.UserState{}, nil
	}
	if state == nil {
		state = types.UserState{}
	}
	return state, nil
}

func (s *planStateService) Save(ctx context.Context, userID uuid.UUID, kind types.PlanKind, record *types.PlanRecord) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid plan kind %q", kind)
	}
	if record == nil {
		return fmt.Errorf("nil plan record")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.currentLocked(ctx, userID)
	if err != nil {
		return err
	}
	state[kind] = record
	return s.persistLocked(ctx, userID, state)
}

func (s *planStateService) Delete(ctx context.Context, userID uuid.UUID, kind types.PlanKind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("invalid plan kind %q", kind)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.currentLocked(ctx, userID)
	if err != nil {
		return false, err
	}
	if _, ok := state[kind]; !ok {
		return false, nil
	}
	delete(state, kind)
	if err := s.persistLocked(ctx, userID, state); err != nil {
		return false, err
	}
	return true, nil
}

// currentLocked reads the freshest state while the user lock is held,
// preferring the cache.
func (s *planStateService) currentLocked(ctx context.Context, userID uuid.UUID) (types.UserState, error) {
	s.mu.Lock()
	cached, ok := s.cache[userID]
	s.mu.Unlock()
	if ok {
		return cloneState(cached), nil
	}
	return s.load(ctx, userID)
}

func (s *planStateService) persistLocked(ctx context.Context, userID uuid.UUID, state types.UserState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding plan state: %w", err)
	}
	if _, err := s.repo.Upsert(ctx, nil, userID, datatypes.JSON(encoded)); err != nil {
		// Drop the cache entry so the next read sees the durable truth.
		s.mu.Lock()
		delete(s.cache, userID)
		s.mu.Unlock()
		return fmt.Errorf("persisting plan state: %w", err)
	}

	s.mu.Lock()
	s.cache[userID] = cloneState(state)
	s.mu.Unlock()
	return nil
}

func cloneState(state types.UserState) types.UserState {
	out := make(types.UserState, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
