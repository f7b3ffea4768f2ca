// Package actiontracker implements the action tracker (spec C4): opening and
// closing transactions, recording actions with their derived rollback
// strategy, and checkpointing files ahead of high-risk steps. Grounded on
// the teacher's gorm-backed persistence package, generalized to the
// transactions/actions/checkpoints schema spec §3/§4.4 requires.
package actiontracker

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

// RollbackStrategy is the derived inverse-operation kind for an action.
type RollbackStrategy string

const (
	StrategyDeletePath          RollbackStrategy = "delete"
	StrategyMoveBack            RollbackStrategy = "move"
	StrategyRestoreFromCheckpoint RollbackStrategy = "restore_from_checkpoint"
	StrategyUninstallPackage     RollbackStrategy = "uninstall"
	StrategyInstallPackage       RollbackStrategy = "install"
	StrategyGitReset             RollbackStrategy = "git_reset"
	StrategyServiceStop          RollbackStrategy = "service_stop"
	StrategyServiceStart         RollbackStrategy = "service_start"
	StrategyContainerStopRemove  RollbackStrategy = "container_stop_remove"
	StrategyNotRollbackable      RollbackStrategy = "not_rollbackable"
	StrategyManual               RollbackStrategy = "manual"
)

// DeriveStrategy implements the static decision table of spec §4.4, indexed
// on (tool, operation). hasCheckpoint reports whether a checkpoint currently
// exists for the acted-on path (write_file/delete_file need one to be
// rollback-possible at all).
func DeriveStrategy(tool, operation string, hasCheckpoint bool) RollbackStrategy {
	switch tool + "." + operation {
	case "FileOps.create_file":
		return StrategyDeletePath
	case "FileOps.copy_file":
		return StrategyDeletePath
	case "FileOps.move_file":
		return StrategyMoveBack
	case "FileOps.write_file", "FileOps.delete_file":
		if hasCheckpoint {
			return StrategyRestoreFromCheckpoint
		}
		return StrategyManual
	case "PackageOps.install":
		return StrategyUninstallPackage
	case "PackageOps.uninstall":
		return StrategyInstallPackage
	case "GitOps.commit":
		return StrategyGitReset
	case "GitOps.push":
		return StrategyNotRollbackable
	case "ServiceOps.start":
		return StrategyServiceStop
	case "ServiceOps.stop":
		return StrategyServiceStart
	case "ContainerOps.run":
		return StrategyContainerStopRemove
	default:
		return StrategyManual
	}
}

// Tracker is the process-wide singleton owning transactions/actions/
// checkpoints (spec C4). Exactly one transaction may be in_progress at a
// time (spec §3 invariant).
type Tracker struct {
	mu         sync.Mutex
	db         *gorm.DB
	backupRoot string
	openTxnID  string
}

// New creates a Tracker backed by db (already migrated with the action
// models) and storing checkpoint backups under backupRoot/backups/<name>/.
func New(db *gorm.DB, backupRoot string) *Tracker {
	return &Tracker{db: db, backupRoot: backupRoot}
}

func newTxnID() string {
	buf := make([]byte, 12) // 96 bits
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Begin opens a transaction. Only one may be open per Tracker at a time.
func (t *Tracker) Begin(userInput, goal string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openTxnID != "" {
		return "", apperrors.NewTransactionInProgressError(t.openTxnID)
	}

	id := newTxnID()
	txn := &models.TransactionModel{
		ID:        id,
		StartTime: time.Now().UTC(),
		UserInput: userInput,
		IntentGoal: goal,
		Status:    "in_progress",
	}
	if err := t.db.Create(txn).Error; err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	t.openTxnID = id
	return id, nil
}

// End closes the transaction; subsequent Record calls against it fail.
func (t *Tracker) End(txnID, status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	res := t.db.Model(&models.TransactionModel{}).
		Where("id = ?", txnID).
		Updates(map[string]interface{}{"status": status, "end_time": &now})
	if res.Error != nil {
		return fmt.Errorf("end transaction: %w", res.Error)
	}
	if t.openTxnID == txnID {
		t.openTxnID = ""
	}
	return nil
}

// OpenTransactionID returns the currently-open transaction, or "" if none.
func (t *Tracker) OpenTransactionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openTxnID
}

// Record attaches an action to txnID (or a synthetic standalone bucket when
// txnID is ""), deriving its rollback strategy from the static table.
func (t *Tracker) Record(txnID, toolName, operation string, params, result map[string]interface{}) (uint, error) {
	if txnID == "" {
		txnID = "standalone"
	} else if txnID != t.OpenTransactionID() {
		return 0, fmt.Errorf("record action: transaction %s is not open", txnID)
	}
	paramsJSON, _ := json.Marshal(params)
	resultJSON, _ := json.Marshal(result)

	hasCheckpoint := t.hasActiveCheckpointFor(txnID, params)
	strategy := DeriveStrategy(toolName, operation, hasCheckpoint)

	action := &models.ActionModel{
		TransactionID:    txnID,
		Timestamp:        time.Now().UTC(),
		Tool:             toolName,
		Operation:        operation,
		ParamsJSON:       string(paramsJSON),
		ResultJSON:       string(resultJSON),
		RollbackPossible: strategy != StrategyManual && strategy != StrategyNotRollbackable,
		RollbackStrategy: string(strategy),
	}
	if err := t.db.Create(action).Error; err != nil {
		return 0, fmt.Errorf("record action: %w", err)
	}
	return action.ID, nil
}

func (t *Tracker) hasActiveCheckpointFor(txnID string, params map[string]interface{}) bool {
	path, _ := params["path"].(string)
	if path == "" {
		return false
	}
	var count int64
	t.db.Model(&models.CheckpointModel{}).
		Where("transaction_id = ?", txnID).
		Where("backup_paths_json LIKE ?", "%\""+path+"\"%").
		Count(&count)
	return count > 0
}

// Checkpoint copies the referenced paths into
// <backupRoot>/backups/<name>/<filename> and records the bundle.
func (t *Tracker) Checkpoint(txnID, name, description string, paths []string) error {
	dir := filepath.Join(t.backupRoot, "backups", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	backups := make(map[string]string, len(paths))
	for _, p := range paths {
		dest := filepath.Join(dir, filepath.Base(p))
		if err := copyFile(p, dest); err != nil {
			// A missing source file is not fatal for checkpoint creation —
			// it simply won't be restorable later.
			continue
		}
		backups[p] = dest
	}
	backupsJSON, _ := json.Marshal(backups)

	cp := &models.CheckpointModel{
		Name:            name,
		TransactionID:   txnID,
		Timestamp:       time.Now().UTC(),
		Description:     description,
		BackupPathsJSON: string(backupsJSON),
	}
	if err := t.db.Create(cp).Error; err != nil {
		return fmt.Errorf("record checkpoint: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// ListTransactionActions returns all actions for txnID in insertion
// (ascending id) order.
func (t *Tracker) ListTransactionActions(txnID string) ([]models.ActionModel, error) {
	var actions []models.ActionModel
	if err := t.db.Where("transaction_id = ?", txnID).Order("id ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

// RecentTransactions returns up to limit transactions, newest first. Feeds
// the pattern detector's execution-history mining (spec C14).
func (t *Tracker) RecentTransactions(limit int) ([]models.TransactionModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []models.TransactionModel
	if err := t.db.Order("start_time DESC").Limit(limit).Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	return txns, nil
}

// LastTransaction returns the most recently started transaction.
func (t *Tracker) LastTransaction() (*models.TransactionModel, error) {
	var txn models.TransactionModel
	if err := t.db.Order("start_time DESC").First(&txn).Error; err != nil {
		return nil, fmt.Errorf("last transaction: %w", err)
	}
	return &txn, nil
}

// CheckpointForPath finds the most recent checkpoint within txnID whose
// backup set covers path, returning the backup file's location. Used by the
// restore_from_checkpoint inverse, which only has the acted-on path (not a
// checkpoint name) to go on.
func (t *Tracker) CheckpointForPath(txnID, path string) (backupPath string, ok bool) {
	var cps []models.CheckpointModel
	if err := t.db.Where("transaction_id = ?", txnID).Order("timestamp DESC").Find(&cps).Error; err != nil {
		return "", false
	}
	for _, cp := range cps {
		var backups map[string]string
		if err := json.Unmarshal([]byte(cp.BackupPathsJSON), &backups); err != nil {
			continue
		}
		if b, present := backups[path]; present {
			return b, true
		}
	}
	return "", false
}

// GetCheckpoint looks up a named checkpoint bundle.
func (t *Tracker) GetCheckpoint(name string) (*models.CheckpointModel, error) {
	var cp models.CheckpointModel
	if err := t.db.Where("name = ?", name).First(&cp).Error; err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// MarkRolledBack flags an action as rolled back.
func (t *Tracker) MarkRolledBack(actionID uint) error {
	return t.db.Model(&models.ActionModel{}).Where("id = ?", actionID).Update("rolled_back", true).Error
}

// SetRollbackStatus updates the transaction's rollback_status field.
func (t *Tracker) SetRollbackStatus(txnID, status string) error {
	return t.db.Model(&models.TransactionModel{}).Where("id = ?", txnID).Update("rollback_status", status).Error
}
