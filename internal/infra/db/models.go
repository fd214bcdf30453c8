package db

import (
	"time"
)

type ruleModel struct {
	ID             string `gorm:"primaryKey;size:26"`
	Position       int    `gorm:"index;not null"`
	UserID         int64  `gorm:"index;not null"`
	Symbol         string `gorm:"index;not null"`
	TargetPrice    string `gorm:"not null"`
	Condition      string `gorm:"not null"`
	Enabled        bool   `gorm:"not null"`
	Notified       bool   `gorm:"not null"`
	LastNotifiedAt *time.Time
	CreatedAt      time.Time
}

func (ruleModel) TableName() string { return "alert_rules" }

type metaModel struct {
	Name      string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (metaModel) TableName() string { return "watchlist_meta" }

const lastCheckKey = "last_check"
