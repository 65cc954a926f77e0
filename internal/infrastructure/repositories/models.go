package repositories

import (
	"time"

	"gorm.io/datatypes"
)

// DBAccount is one account of one role. An identifier may own a customer
// and an artist account side by side.
type DBAccount struct {
	ID               string `gorm:"primaryKey;size:36"`
	Role             string `gorm:"size:16;not null;index"`
	Name             string `gorm:"size:100"`
	Email            string `gorm:"size:255;index"`
	Phone            string `gorm:"size:20;index"`
	Subject          string `gorm:"size:255;index"`
	ProfileCompleted bool   `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName pins the table name independent of the naming strategy
func (DBAccount) TableName() string {
	return "accounts"
}

// DBArtistStep holds the saved fields of one onboarding step
type DBArtistStep struct {
	AccountID   string            `gorm:"primaryKey;size:36"`
	Step        string            `gorm:"primaryKey;size:32"`
	Fields      datatypes.JSONMap `gorm:"type:jsonb"`
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

func (DBArtistStep) TableName() string {
	return "artist_steps"
}
