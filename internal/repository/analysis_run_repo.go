package repository

import (
	"context"
	"fmt"

	"variance-analysis-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatchSize keeps multi-row inserts under the Postgres parameter limit.
const insertBatchSize = 500

type AnalysisRunRepository struct {
	db *gorm.DB
}

func NewAnalysisRunRepository(db *gorm.DB) *AnalysisRunRepository {
	return &AnalysisRunRepository{db: db}
}

// Create stores a run together with its records in one transaction.
func (r *AnalysisRunRepository) Create(ctx context.Context, run *models.AnalysisRun, records []models.TrialBalanceRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, insertBatchSize).Error; err != nil {
			return fmt.Errorf("create records: %w", err)
		}
		return nil
	})
}

func (r *AnalysisRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &run, nil
}

// Reclassifier recomputes the flags of a locked run. It may modify run and
// returns the records whose flag moved plus the audit entry to store.
type Reclassifier func(run *models.AnalysisRun, records []models.TrialBalanceRecord) (map[uuid.UUID]string, *models.ThresholdAuditLog, error)

// Reclassify locks the run row, hands the run and its records to fn and
// writes the result in the same transaction. Concurrent calls for one run
// are serialized.
func (r *AnalysisRunRepository) Reclassify(ctx context.Context, id uuid.UUID, fn Reclassifier) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.AnalysisRun
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&run, "id = ?", id).Error
		if err != nil {
			return translate(err)
		}

		var records []models.TrialBalanceRecord
		err = tx.Where("analysis_run_id = ?", id).
			Order("position ASC").
			Find(&records).Error
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}

		flags, entry, err := fn(&run, records)
		if err != nil {
			return err
		}
		return applyThresholds(tx, &run, flags, entry)
	})
}

func applyThresholds(tx *gorm.DB, run *models.AnalysisRun, flags map[uuid.UUID]string, entry *models.ThresholdAuditLog) error {
	err := tx.Model(&models.AnalysisRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"materiality_threshold": run.MaterialityThreshold,
			"significant_threshold": run.SignificantThreshold,
			"status":                run.Status,
			"classified_at":         run.ClassifiedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("update run thresholds: %w", err)
	}

	// Group by target flag so each bucket is a single UPDATE.
	byFlag := make(map[string][]uuid.UUID)
	for id, flag := range flags {
		byFlag[flag] = append(byFlag[flag], id)
	}
	for flag, ids := range byFlag {
		err := tx.Model(&models.TrialBalanceRecord{}).
			Where("analysis_run_id = ? AND id IN ?", run.ID, ids).
			Update("flag", flag).Error
		if err != nil {
			return fmt.Errorf("update %s flags: %w", flag, err)
		}
	}

	if entry != nil {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create audit log: %w", err)
		}
	}
	return nil
}

func (r *AnalysisRunRepository) ListAuditLogs(ctx context.Context, runID uuid.UUID) ([]models.ThresholdAuditLog, error) {
	var logs []models.ThresholdAuditLog
	err := r.db.WithContext(ctx).
		Where("analysis_run_id = ?", runID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
