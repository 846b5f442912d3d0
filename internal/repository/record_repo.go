package repository

import (
	"context"
	"strings"

	"variance-analysis-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordQuery filters a run's records. AfterPosition is the pagination
// cursor; records are always returned in upload order.
type RecordQuery struct {
	Flag          string
	Search        string
	AfterPosition int
	Limit         int
}

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ListByRun returns every record of a run in upload order.
func (r *RecordRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.TrialBalanceRecord, error) {
	var records []models.TrialBalanceRecord
	err := r.db.WithContext(ctx).
		Where("analysis_run_id = ?", runID).
		Order("position ASC").
		Find(&records).Error
	return records, err
}

// Search used by the records table with optional filters
func (r *RecordRepository) Search(ctx context.Context, runID uuid.UUID, q RecordQuery) ([]models.TrialBalanceRecord, error) {
	var records []models.TrialBalanceRecord

	query := r.db.WithContext(ctx).
		Where("analysis_run_id = ?", runID).
		Where("position > ?", q.AfterPosition).
		Order("position ASC")

	if q.Flag != "" && q.Flag != "all" {
		query = query.Where("flag = ?", q.Flag)
	}
	if q.Search != "" {
		like := containsPattern(q.Search)
		query = query.Where("(account_code ILIKE ? OR account_description ILIKE ?)", like, like)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	err := query.Find(&records).Error
	return records, err
}

func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TrialBalanceRecord, error) {
	var record models.TrialBalanceRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

func (r *RecordRepository) UpdateAnnotation(ctx context.Context, id uuid.UUID, annotation string) (*models.TrialBalanceRecord, error) {
	record, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Annotation = annotation
	if err := r.db.WithContext(ctx).Model(record).Update("annotation", annotation).Error; err != nil {
		return nil, err
	}
	return record, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally. Backslash is
// the default LIKE escape character in Postgres.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
