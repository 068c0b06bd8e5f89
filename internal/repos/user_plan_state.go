package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/types"
)

type UserPlanStateRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserPlanState, error)
	Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, state datatypes.JSON) (*types.UserPlanState, error)
}

type userPlanStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserPlanStateRepo(db *gorm.DB, baseLog *logger.Logger) UserPlanStateRepo {
	repoLog := baseLog.With("repo", "UserPlanStateRepo")
	return &userPlanStateRepo{db: db, log: repoLog}
}

// GetByUserID returns nil (not an error) when the user has no row yet.
func (r *userPlanStateRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserPlanState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UserPlanState
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *userPlanStateRepo) Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, state datatypes.JSON) (*types.UserPlanState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	row := &types.UserPlanState{
		UserID: userID,
		State:  state,
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
