package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"variance-analysis-backend/internal/models"
	"variance-analysis-backend/internal/repository"
	"variance-analysis-backend/internal/services/variance"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var (
	ErrRunNotFound    = errors.New("analysis run not found")
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrInvalidFlag    = errors.New("invalid flag filter")
)

type AnalysisService struct {
	runRepo    RunRepository
	recordRepo RecordRepository
	defaults   variance.ThresholdConfig
	log        zerolog.Logger
	now        func() time.Time

	statsCache sync.Map // runID -> cachedStats
}

func NewAnalysisService(
	runRepo RunRepository,
	recordRepo RecordRepository,
	defaults variance.ThresholdConfig,
	log zerolog.Logger,
) *AnalysisService {
	return &AnalysisService{
		runRepo:    runRepo,
		recordRepo: recordRepo,
		defaults:   defaults,
		log:        log,
		now:        time.Now,
	}
}

func (s *AnalysisService) DefaultThresholds() variance.ThresholdConfig {
	return s.defaults
}

// ThresholdUpdate changes either threshold independently; nil keeps the
// current value.
type ThresholdUpdate struct {
	Materiality *float64
	Significant *float64
}

func (u ThresholdUpdate) apply(t variance.ThresholdConfig) variance.ThresholdConfig {
	if u.Materiality != nil {
		t.MaterialityThreshold = *u.Materiality
	}
	if u.Significant != nil {
		t.SignificantThreshold = *u.Significant
	}
	return t
}

type PreviewResult struct {
	Thresholds variance.ThresholdConfig `json:"thresholds"`
	Records    []variance.Record        `json:"records"`
	Skipped    []variance.SkippedRow    `json:"skipped"`
	Summary    variance.Summary         `json:"summary"`
}

// Preview ingests and classifies rows without storing anything.
func (s *AnalysisService) Preview(rows [][]string, update ThresholdUpdate) (*PreviewResult, error) {
	thresholds := update.apply(s.defaults)
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	ingested, err := variance.ParseRows(rows)
	if err != nil {
		return nil, err
	}

	classified := variance.Classify(ingested.Records, thresholds)
	return &PreviewResult{
		Thresholds: thresholds,
		Records:    classified,
		Skipped:    ingested.Skipped,
		Summary:    variance.Summarize(classified),
	}, nil
}

type CreateRunResult struct {
	Run     *models.AnalysisRun   `json:"run"`
	Skipped []variance.SkippedRow `json:"skipped"`
	Summary variance.Summary      `json:"summary"`
}

// CreateRun ingests the full upload, classifies it and stores the run.
// Classification only starts once every row has been parsed. format names
// the decimal separator when the file type implies one.
func (s *AnalysisService) CreateRun(ctx context.Context, filename string, rows [][]string, format variance.NumberFormat, update ThresholdUpdate) (*CreateRunResult, error) {
	thresholds := update.apply(s.defaults)
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	ingested, err := variance.ParseRowsFormat(rows, format)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", filename, err)
	}

	skippedJSON, err := json.Marshal(ingested.Skipped)
	if err != nil {
		return nil, fmt.Errorf("encode skipped rows: %w", err)
	}

	now := s.now()
	run := &models.AnalysisRun{
		ID:                   uuid.New(),
		Filename:             filename,
		TotalRecords:         len(ingested.Records),
		SkippedCount:         len(ingested.Skipped),
		SkippedRows:          skippedJSON,
		MaterialityThreshold: thresholds.MaterialityThreshold,
		SignificantThreshold: thresholds.SignificantThreshold,
		Status:               models.RunStatusIngested,
		CreatedAt:            now,
	}

	classified := variance.Classify(ingested.Records, thresholds)
	run.Status = models.RunStatusClassified
	run.ClassifiedAt = &now

	records := make([]models.TrialBalanceRecord, len(classified))
	for i, r := range classified {
		records[i] = toModel(run.ID, i+1, r)
		records[i].CreatedAt = now
	}

	if err := s.runRepo.Create(ctx, run, records); err != nil {
		return nil, fmt.Errorf("store run: %w", err)
	}

	summary := variance.Summarize(classified)
	s.cacheStats(run, summary)

	event := s.log.Info()
	if thresholds.Inverted() {
		event = s.log.Warn().Bool("inverted_thresholds", true)
	}
	event.
		Str("run_id", run.ID.String()).
		Str("filename", filename).
		Int("records", run.TotalRecords).
		Int("skipped", run.SkippedCount).
		Int64("significant", summary.Significant.Count).
		Int64("moderate", summary.Moderate.Count).
		Msg("analysis run classified")

	return &CreateRunResult{Run: run, Skipped: ingested.Skipped, Summary: summary}, nil
}

func (s *AnalysisService) GetRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

type ThresholdChange struct {
	Run          *models.AnalysisRun `json:"run"`
	FlagsChanged int                 `json:"flags_changed"`
	Summary      variance.Summary    `json:"summary"`
}

// UpdateThresholds re-buckets the stored records of a run against new
// thresholds. Variance figures stay as they were at ingest. The run is
// locked while its flags are rewritten, so concurrent updates apply one
// after the other.
func (s *AnalysisService) UpdateThresholds(ctx context.Context, id uuid.UUID, update ThresholdUpdate, performedBy string) (*ThresholdChange, error) {
	var change *ThresholdChange

	err := s.runRepo.Reclassify(ctx, id, func(run *models.AnalysisRun, stored []models.TrialBalanceRecord) (map[uuid.UUID]string, *models.ThresholdAuditLog, error) {
		previous := runThresholds(run)
		next := update.apply(previous)
		if err := next.Validate(); err != nil {
			return nil, nil, err
		}

		current := make([]variance.Record, len(stored))
		for i, m := range stored {
			current[i] = toRecord(m)
		}
		reclassified := variance.Reclassify(current, next)

		changed := make(map[uuid.UUID]string)
		transitions := make(map[string]int)
		for i, r := range reclassified {
			if r.Flag != current[i].Flag {
				changed[stored[i].ID] = string(r.Flag)
				transitions[string(current[i].Flag)+"_to_"+string(r.Flag)]++
			}
		}

		details, err := json.Marshal(map[string]interface{}{
			"transitions":        transitions,
			"records_evaluated":  len(reclassified),
			"inverted_threshold": next.Inverted(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("encode audit details: %w", err)
		}

		now := s.now()
		run.MaterialityThreshold = next.MaterialityThreshold
		run.SignificantThreshold = next.SignificantThreshold
		run.Status = models.RunStatusClassified
		run.ClassifiedAt = &now

		entry := &models.ThresholdAuditLog{
			ID:                  uuid.New(),
			AnalysisRunID:       run.ID,
			PreviousMateriality: previous.MaterialityThreshold,
			PreviousSignificant: previous.SignificantThreshold,
			NewMateriality:      next.MaterialityThreshold,
			NewSignificant:      next.SignificantThreshold,
			FlagsChanged:        len(changed),
			PerformedBy:         performedBy,
			Details:             details,
			CreatedAt:           now,
		}

		change = &ThresholdChange{Run: run, FlagsChanged: len(changed), Summary: variance.Summarize(reclassified)}
		return changed, entry, nil
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrRunNotFound
	case errors.Is(err, variance.ErrInvalidThreshold):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("apply thresholds to run %s: %w", id, err)
	}

	s.cacheStats(change.Run, change.Summary)

	s.log.Info().
		Str("run_id", change.Run.ID.String()).
		Float64("materiality", change.Run.MaterialityThreshold).
		Float64("significant", change.Run.SignificantThreshold).
		Int("flags_changed", change.FlagsChanged).
		Msg("analysis run reclassified")

	return change, nil
}

type RecordFilter struct {
	Flag   string
	Search string
	Cursor string
	Limit  int
}

type RecordPage struct {
	Items      []models.TrialBalanceRecord `json:"items"`
	NextCursor string                      `json:"next_cursor"`
	HasMore    bool                        `json:"has_more"`
}

func (s *AnalysisService) ListRecords(ctx context.Context, id uuid.UUID, f RecordFilter) (*RecordPage, error) {
	if f.Flag != "" && f.Flag != "all" && !variance.Flag(f.Flag).Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFlag, f.Flag)
	}

	after := 0
	if f.Cursor != "" {
		n, err := strconv.Atoi(f.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, f.Cursor)
		}
		after = n
	}

	limit := f.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	items, err := s.recordRepo.Search(ctx, id, repository.RecordQuery{
		Flag:          f.Flag,
		Search:        f.Search,
		AfterPosition: after,
		Limit:         limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("list records for run %s: %w", id, err)
	}

	page := &RecordPage{Items: items}
	if len(items) > limit {
		page.HasMore = true
		page.Items = items[:limit]
		page.NextCursor = strconv.Itoa(items[limit-1].Position)
	}
	if page.Items == nil {
		page.Items = []models.TrialBalanceRecord{}
	}
	return page, nil
}

// cachedStats is a summary together with the thresholds it was built for.
type cachedStats struct {
	thresholds variance.ThresholdConfig
	summary    variance.Summary
}

func (s *AnalysisService) cacheStats(run *models.AnalysisRun, summary variance.Summary) {
	s.statsCache.Store(run.ID, cachedStats{thresholds: runThresholds(run), summary: summary})
}

// GetRunStats returns the dashboard summary of a run. A cached summary is
// used only while it matches the run's current thresholds; otherwise the
// flags are recomputed from the stored percentages.
func (s *AnalysisService) GetRunStats(ctx context.Context, id uuid.UUID) (variance.Summary, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return variance.Summary{}, err
	}

	thresholds := runThresholds(run)
	if val, ok := s.statsCache.Load(id); ok {
		if cached := val.(cachedStats); cached.thresholds == thresholds {
			return cached.summary, nil
		}
	}

	records, err := s.recordRepo.ListByRun(ctx, id)
	if err != nil {
		return variance.Summary{}, fmt.Errorf("load records for run %s: %w", id, err)
	}

	converted := make([]variance.Record, len(records))
	for i, m := range records {
		converted[i] = toRecord(m)
	}
	summary := variance.Summarize(variance.Reclassify(converted, thresholds))
	s.cacheStats(run, summary)
	return summary, nil
}

func (s *AnalysisService) AnnotateRecord(ctx context.Context, recordID uuid.UUID, annotation string) (*models.TrialBalanceRecord, error) {
	record, err := s.recordRepo.UpdateAnnotation(ctx, recordID, annotation)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("annotate record %s: %w", recordID, err)
	}
	return record, nil
}

// ExportRecords returns the classified set of a run in upload order.
func (s *AnalysisService) ExportRecords(ctx context.Context, id uuid.UUID) ([]models.TrialBalanceRecord, *models.AnalysisRun, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.recordRepo.ListByRun(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load records for run %s: %w", id, err)
	}
	return records, run, nil
}

func (s *AnalysisService) ListAuditLog(ctx context.Context, id uuid.UUID) ([]models.ThresholdAuditLog, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	logs, err := s.runRepo.ListAuditLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list audit log for run %s: %w", id, err)
	}
	if logs == nil {
		logs = []models.ThresholdAuditLog{}
	}
	return logs, nil
}
