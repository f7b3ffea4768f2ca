// Package models holds the gorm row shapes backing actions.db and failures.db.
package models

import "time"

// TransactionModel is one user utterance's unit of rollback (spec §3 Transaction).
type TransactionModel struct {
	ID             string     `gorm:"primaryKey;size:24"`
	StartTime      time.Time  `gorm:"index"`
	EndTime        *time.Time
	UserInput      string     `gorm:"type:text"`
	IntentGoal     string     `gorm:"type:text"`
	Status         string     `gorm:"size:32;index"` // in_progress | completed | failed | cancelled
	RollbackStatus string     `gorm:"size:32"`        // "" | completed | partial | failed

	Actions     []ActionModel     `gorm:"foreignKey:TransactionID"`
	Checkpoints []CheckpointModel `gorm:"foreignKey:TransactionID"`
}

func (TransactionModel) TableName() string { return "transactions" }

// ActionModel is one recorded, completed step plus its derived inverse (spec §3 Action).
type ActionModel struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	TransactionID    string    `gorm:"size:24;index"`
	Timestamp        time.Time `gorm:"index"`
	Tool             string    `gorm:"size:64"`
	Operation        string    `gorm:"size:64"`
	ParamsJSON       string    `gorm:"type:text"`
	ResultJSON       string    `gorm:"type:text"`
	RollbackPossible bool
	RollbackStrategy string `gorm:"size:32"`
	RollbackDataJSON string `gorm:"type:text"`
	RolledBack       bool
}

func (ActionModel) TableName() string { return "actions" }

// CheckpointModel is a named bundle of file backups (spec §3 Checkpoint).
type CheckpointModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Name            string    `gorm:"size:128;uniqueIndex"`
	TransactionID   string    `gorm:"size:24;index"`
	Timestamp       time.Time
	Description     string `gorm:"type:text"`
	BackupPathsJSON string `gorm:"type:text"` // map<original_path, backup_path>
}

func (CheckpointModel) TableName() string { return "checkpoints" }
