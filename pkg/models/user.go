package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name              string          `gorm:"type:varchar(100);not null" json:"name"`
	Email             string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	Phone             string          `gorm:"type:varchar(20)" json:"phone"`
	CrashCashBalance  decimal.Decimal `gorm:"type:decimal(12,2)" json:"crashcash_balance"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
