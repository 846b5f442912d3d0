package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusIngested   = "ingested"
	RunStatusClassified = "classified"
)

type AnalysisRun struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Filename             string         `json:"filename"`
	TotalRecords         int            `json:"total_records"`
	SkippedCount         int            `json:"skipped_count"`
	SkippedRows          datatypes.JSON `json:"skipped_rows"`
	MaterialityThreshold float64        `json:"materiality_threshold"`
	SignificantThreshold float64        `json:"significant_threshold"`
	Status               string         `gorm:"index" json:"status"`
	ClassifiedAt         *time.Time     `json:"classified_at"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}
