package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"variance-analysis-backend/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps runs for the lifetime of the process. It backs the
// "memory" storage driver and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]models.AnalysisRun
	records map[uuid.UUID]models.TrialBalanceRecord
	audit   []models.ThresholdAuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[uuid.UUID]models.AnalysisRun),
		records: make(map[uuid.UUID]models.TrialBalanceRecord),
	}
}

func (m *MemoryStore) Runs() *MemoryRunRepository       { return &MemoryRunRepository{m} }
func (m *MemoryStore) Records() *MemoryRecordRepository { return &MemoryRecordRepository{m} }

// recordsOf returns the records of a run in upload order. Callers hold mu.
func (m *MemoryStore) recordsOf(runID uuid.UUID) []models.TrialBalanceRecord {
	var out []models.TrialBalanceRecord
	for _, rec := range m.records {
		if rec.AnalysisRunID == runID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

type MemoryRunRepository struct{ store *MemoryStore }

func (r *MemoryRunRepository) Create(ctx context.Context, run *models.AnalysisRun, records []models.TrialBalanceRecord) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = *run
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return nil
}

func (r *MemoryRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

// Reclassify holds the store lock for the whole read-modify-write. fn must
// not call back into the store.
func (r *MemoryRunRepository) Reclassify(ctx context.Context, id uuid.UUID, fn Reclassifier) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	records := m.recordsOf(id)

	flags, entry, err := fn(&run, records)
	if err != nil {
		return err
	}

	m.runs[id] = run
	for recID, flag := range flags {
		rec, ok := m.records[recID]
		if !ok || rec.AnalysisRunID != id {
			continue
		}
		rec.Flag = flag
		m.records[recID] = rec
	}
	if entry != nil {
		m.audit = append(m.audit, *entry)
	}
	return nil
}

func (r *MemoryRunRepository) ListAuditLogs(ctx context.Context, runID uuid.UUID) ([]models.ThresholdAuditLog, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []models.ThresholdAuditLog
	for _, e := range m.audit {
		if e.AnalysisRunID == runID {
			logs = append(logs, e)
		}
	}
	return logs, nil
}

type MemoryRecordRepository struct{ store *MemoryStore }

func (r *MemoryRecordRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.TrialBalanceRecord, error) {
	return r.Search(ctx, runID, RecordQuery{})
}

func (r *MemoryRecordRepository) Search(ctx context.Context, runID uuid.UUID, q RecordQuery) ([]models.TrialBalanceRecord, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(q.Search)
	var out []models.TrialBalanceRecord
	for _, rec := range m.recordsOf(runID) {
		if rec.Position <= q.AfterPosition {
			continue
		}
		if q.Flag != "" && q.Flag != "all" && rec.Flag != q.Flag {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(rec.AccountCode), needle) &&
			!strings.Contains(strings.ToLower(rec.AccountDescription), needle) {
			continue
		}
		out = append(out, rec)
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TrialBalanceRecord, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *MemoryRecordRepository) UpdateAnnotation(ctx context.Context, id uuid.UUID, annotation string) (*models.TrialBalanceRecord, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Annotation = annotation
	m.records[id] = rec
	return &rec, nil
}
