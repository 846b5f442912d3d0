package routes

import (
	"net/http"

	"variance-analysis-backend/internal/config"
	handler "variance-analysis-backend/internal/handlers"
	"variance-analysis-backend/internal/repository"
	service "variance-analysis-backend/internal/services/analysis"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RegisterRoutes wires repositories, the analysis service and handlers.
// A nil db selects the in-memory store.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, db *gorm.DB, log zerolog.Logger) {
	var (
		runRepo    service.RunRepository
		recordRepo service.RecordRepository
	)
	if db != nil {
		runRepo = repository.NewAnalysisRunRepository(db)
		recordRepo = repository.NewRecordRepository(db)
	} else {
		store := repository.NewMemoryStore()
		runRepo = store.Runs()
		recordRepo = store.Records()
	}

	analysisService := service.NewAnalysisService(runRepo, recordRepo, cfg.Thresholds, log)
	analysisHandler := handler.NewAnalysisHandler(analysisService, cfg.MaxUploadSize)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": cfg.StorageDriver})
	})

	api.GET("/thresholds/defaults", func(c *gin.Context) {
		c.JSON(http.StatusOK, analysisService.DefaultThresholds())
	})
	api.POST("/variance/preview", analysisHandler.Preview)

	analyses := api.Group("/analyses")
	analyses.POST("/upload", analysisHandler.Upload)
	analyses.GET("/:runId", analysisHandler.GetRun)
	analyses.GET("/:runId/records", analysisHandler.ListRecords)
	analyses.GET("/:runId/stats", analysisHandler.GetStats)
	analyses.PUT("/:runId/thresholds", analysisHandler.UpdateThresholds)
	analyses.GET("/:runId/audit", analysisHandler.GetAuditLog)
	analyses.GET("/:runId/export", analysisHandler.Export)

	records := api.Group("/records")
	{
		records.PUT("/:id/annotation", analysisHandler.AnnotateRecord)
	}
}
