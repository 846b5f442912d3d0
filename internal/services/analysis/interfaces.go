package analysis

import (
	"context"

	"variance-analysis-backend/internal/models"
	"variance-analysis-backend/internal/repository"

	"github.com/google/uuid"
)

// RunRepository persists analysis runs and their threshold history.
type RunRepository interface {
	Create(ctx context.Context, run *models.AnalysisRun, records []models.TrialBalanceRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error)
	Reclassify(ctx context.Context, id uuid.UUID, fn repository.Reclassifier) error
	ListAuditLogs(ctx context.Context, runID uuid.UUID) ([]models.ThresholdAuditLog, error)
}

// RecordRepository reads and annotates stored trial balance records.
type RecordRepository interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.TrialBalanceRecord, error)
	Search(ctx context.Context, runID uuid.UUID, q repository.RecordQuery) ([]models.TrialBalanceRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.TrialBalanceRecord, error)
	UpdateAnnotation(ctx context.Context, id uuid.UUID, annotation string) (*models.TrialBalanceRecord, error)
}

var (
	_ RunRepository    = (*repository.AnalysisRunRepository)(nil)
	_ RecordRepository = (*repository.RecordRepository)(nil)
	_ RunRepository    = (*repository.MemoryRunRepository)(nil)
	_ RecordRepository = (*repository.MemoryRecordRepository)(nil)
)
