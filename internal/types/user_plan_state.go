package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserPlanState is the durable row backing a user's plan state. The
// state column holds the full UserState JSON; it is the source of
// truth for any in-process cache.
type UserPlanState struct {
	gorm.Model
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null;column:user_id" json:"user_id"`
	State     datatypes.JSON `gorm:"type:jsonb;column:state" json:"state"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserPlanState) TableName() string {
	return "user_plan_state"
}
