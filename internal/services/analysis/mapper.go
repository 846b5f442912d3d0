package analysis

import (
	"variance-analysis-backend/internal/models"
	"variance-analysis-backend/internal/services/variance"

	"github.com/google/uuid"
)

func toRecord(m models.TrialBalanceRecord) variance.Record {
	return variance.Record{
		AccountCode:        m.AccountCode,
		AccountDescription: m.AccountDescription,
		CurrentYearBalance: m.CurrentYearBalance,
		PriorYearBalance:   m.PriorYearBalance,
		Variance:           m.Variance,
		VariancePercentage: m.VariancePercentage,
		Flag:               variance.Flag(m.Flag),
	}
}

func toModel(runID uuid.UUID, position int, r variance.Record) models.TrialBalanceRecord {
	return models.TrialBalanceRecord{
		ID:                 uuid.New(),
		AnalysisRunID:      runID,
		Position:           position,
		AccountCode:        r.AccountCode,
		AccountDescription: r.AccountDescription,
		CurrentYearBalance: r.CurrentYearBalance,
		PriorYearBalance:   r.PriorYearBalance,
		Variance:           r.Variance,
		VariancePercentage: r.VariancePercentage,
		Flag:               string(r.Flag),
	}
}

func runThresholds(run *models.AnalysisRun) variance.ThresholdConfig {
	return variance.ThresholdConfig{
		MaterialityThreshold: run.MaterialityThreshold,
		SignificantThreshold: run.SignificantThreshold,
	}
}
