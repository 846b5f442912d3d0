package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TrialBalanceRecord struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AnalysisRunID      uuid.UUID       `gorm:"type:uuid;index;uniqueIndex:idx_run_account" json:"analysis_run_id"`
	Position           int             `gorm:"index" json:"position"`
	AccountCode        string          `gorm:"uniqueIndex:idx_run_account" json:"account_code"`
	AccountDescription string          `json:"account_description"`
	CurrentYearBalance decimal.Decimal `gorm:"type:numeric" json:"current_year_balance"`
	PriorYearBalance   decimal.Decimal `gorm:"type:numeric" json:"prior_year_balance"`
	Variance           decimal.Decimal `gorm:"type:numeric" json:"variance"`
	VariancePercentage float64         `json:"variance_percentage"`
	Flag               string          `gorm:"index" json:"flag"`
	Annotation         string          `json:"annotation"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
