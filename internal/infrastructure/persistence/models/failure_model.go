package models

import "time"

// FailureModel is one logged tool-invocation failure (spec §3 Failure).
type FailureModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp   time.Time `gorm:"index"`
	UserInput   string    `gorm:"type:text"`
	IntentGoal  string    `gorm:"type:text"`
	Tool        string    `gorm:"size:64"`
	ErrorType   string    `gorm:"size:32;index"`
	ErrorMessage string   `gorm:"type:text"`
	ContextJSON string    `gorm:"type:text"`
	Resolution  string    `gorm:"type:text"`
	PatternHash string    `gorm:"size:64;index"`
}

func (FailureModel) TableName() string { return "failures" }

// FailurePatternModel aggregates failures sharing a pattern hash.
type FailurePatternModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	PatternHash      string `gorm:"size:64;uniqueIndex"`
	Tool             string `gorm:"size:64"`
	ErrorType        string `gorm:"size:32"`
	Count            int
	LastSeen         time.Time
	SuggestedFix     string `gorm:"type:text"`
	SuccessAfterFix  int
}

func (FailurePatternModel) TableName() string { return "failure_patterns" }
