package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ThresholdAuditLog struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AnalysisRunID       uuid.UUID      `gorm:"type:uuid;index" json:"analysis_run_id"`
	PreviousMateriality float64        `json:"previous_materiality"`
	PreviousSignificant float64        `json:"previous_significant"`
	NewMateriality      float64        `json:"new_materiality"`
	NewSignificant      float64        `json:"new_significant"`
	FlagsChanged        int            `json:"flags_changed"`
	PerformedBy         string         `json:"performed_by"`
	Details             datatypes.JSON `json:"details"`
	CreatedAt           time.Time      `json:"created_at"`
}
