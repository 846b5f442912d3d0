package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"variance-analysis-backend/internal/logger"
	service "variance-analysis-backend/internal/services/analysis"
	"variance-analysis-backend/internal/services/variance"
	"variance-analysis-backend/internal/spreadsheet"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType  = "text/csv; charset=utf-8"
)

type AnalysisHandler struct {
	service       *service.AnalysisService
	maxUploadSize int64
}

func NewAnalysisHandler(s *service.AnalysisService, maxUploadSize int64) *AnalysisHandler {
	return &AnalysisHandler{service: s, maxUploadSize: maxUploadSize}
}

// thresholdPayload lets callers set either threshold on its own.
type thresholdPayload struct {
	MaterialityThreshold *float64 `json:"materiality_threshold"`
	SignificantThreshold *float64 `json:"significant_threshold"`
	PerformedBy          string   `json:"performed_by"`
}

func (p thresholdPayload) update() service.ThresholdUpdate {
	return service.ThresholdUpdate{
		Materiality: p.MaterialityThreshold,
		Significant: p.SignificantThreshold,
	}
}

type previewRow struct {
	AccountCode        string      `json:"account_code"`
	AccountDescription string      `json:"account_description"`
	CurrentYearBalance json.Number `json:"current_year_balance"`
	PriorYearBalance   json.Number `json:"prior_year_balance"`
}

// Preview classifies rows posted as JSON without storing them.
func (h *AnalysisHandler) Preview(c *gin.Context) {
	var payload struct {
		thresholdPayload
		Rows []previewRow `json:"rows"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	rows := make([][]string, 0, len(payload.Rows)+1)
	rows = append(rows, []string{"Account Code", "Account Description", "Current Year Balance", "Prior Year Balance"})
	for _, r := range payload.Rows {
		rows = append(rows, []string{r.AccountCode, r.AccountDescription, r.CurrentYearBalance.String(), r.PriorYearBalance.String()})
	}

	result, err := h.service.Preview(rows, payload.update())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Upload handles CSV/XLSX uploads and creates a classified analysis run
func (h *AnalysisHandler) Upload(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	if h.maxUploadSize > 0 {
		if c.Request.ContentLength > h.maxUploadSize {
			h.uploadTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.uploadTooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	log.Info().Str("filename", header.Filename).Int64("size", header.Size).Msg("received trial balance upload")

	var update service.ThresholdUpdate
	for field, dst := range map[string]**float64{
		"materiality_threshold": &update.Materiality,
		"significant_threshold": &update.Significant,
	} {
		raw := strings.TrimSpace(c.PostForm(field))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + field})
			return
		}
		*dst = &v
	}

	sheet, err := spreadsheet.ReadSheet(file, header.Filename)
	if err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("cannot read upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file: " + err.Error()})
		return
	}

	result, err := h.service.CreateRun(c.Request.Context(), header.Filename, sheet.Rows, sheet.Format, update)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *AnalysisHandler) uploadTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("file exceeds the upload limit of %d bytes", h.maxUploadSize),
	})
}

func (h *AnalysisHandler) GetRun(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *AnalysisHandler) ListRecords(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	page, err := h.service.ListRecords(c.Request.Context(), runID, service.RecordFilter{
		Flag:   c.Query("flag"),
		Search: c.Query("search"),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *AnalysisHandler) GetStats(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}

	stats, err := h.service.GetRunStats(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AnalysisHandler) UpdateThresholds(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}

	var payload thresholdPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.MaterialityThreshold == nil && payload.SignificantThreshold == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one threshold is required"})
		return
	}

	change, err := h.service.UpdateThresholds(c.Request.Context(), runID, payload.update(), payload.PerformedBy)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "thresholds updated",
		"run":           change.Run,
		"flags_changed": change.FlagsChanged,
		"summary":       change.Summary,
	})
}

func (h *AnalysisHandler) GetAuditLog(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}

	logs, err := h.service.ListAuditLog(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

func (h *AnalysisHandler) Export(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
	if format != "xlsx" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or csv"})
		return
	}

	records, run, err := h.service.ExportRecords(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}

	rows := spreadsheet.RecordRows(records)
	var buf bytes.Buffer
	contentType := csvContentType
	if format == "xlsx" {
		contentType = xlsxContentType
		err = spreadsheet.WriteXLSX(&buf, spreadsheet.ExportHeader, rows)
	} else {
		err = spreadsheet.WriteCSV(&buf, spreadsheet.ExportHeader, rows)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(run.Filename, run.CreatedAt, format)))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *AnalysisHandler) AnnotateRecord(c *gin.Context) {
	recordID, ok := parseID(c, "id", "invalid record ID")
	if !ok {
		return
	}

	var payload struct {
		Annotation string `json:"annotation"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	record, err := h.service.AnnotateRecord(c.Request.Context(), recordID, strings.TrimSpace(payload.Annotation))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "record annotated", "record": record})
}

func parseID(c *gin.Context, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, variance.ErrInvalidThreshold),
		errors.Is(err, variance.ErrMissingColumn),
		errors.Is(err, service.ErrInvalidCursor),
		errors.Is(err, service.ErrInvalidFlag):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func exportFilename(source string, created time.Time, format string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." {
		base = "trial-balance"
	}
	return fmt.Sprintf("%s-variance-%s.%s", base, created.Format("20060102"), format)
}
