package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krushibheru/agromonitor-backend/internal/http/response"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

const (
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	markdownContentType = "text/markdown; charset=utf-8"
)

type ReportHandler struct {
	reports services.ReportService
}

func NewReportHandler(reports services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// reportDays reads the optional ?days= window override. Zero means the
// configured default window.
func reportDays(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("days"))
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > 365 {
		return 0, fmt.Errorf("days %q: want an integer between 1 and 365", raw)
	}
	return days, nil
}

func (h *ReportHandler) fieldAndDays(c *gin.Context) (uuid.UUID, int, bool) {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_field_id", err)
		return uuid.Nil, 0, false
	}
	days, err := reportDays(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_days", err)
		return uuid.Nil, 0, false
	}
	return fieldID, days, true
}

// GET /api/v1/fields/:id/report?days=N
func (h *ReportHandler) Summary(c *gin.Context) {
	fieldID, days, ok := h.fieldAndDays(c)
	if !ok {
		return
	}
	report, err := h.reports.Summary(c.Request.Context(), fieldID, days)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

// GET /api/v1/fields/:id/report/technical?days=N
func (h *ReportHandler) Technical(c *gin.Context) {
	fieldID, days, ok := h.fieldAndDays(c)
	if !ok {
		return
	}
	md, err := h.reports.TechnicalReport(c.Request.Context(), fieldID, days)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, markdownContentType, []byte(md))
}

// GET /api/v1/fields/:id/report/farmer?days=N
func (h *ReportHandler) Farmer(c *gin.Context) {
	fieldID, days, ok := h.fieldAndDays(c)
	if !ok {
		return
	}
	md, err := h.reports.FarmerReport(c.Request.Context(), fieldID, days)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, markdownContentType, []byte(md))
}

// GET /api/v1/fields/:id/report/workbook?days=N
func (h *ReportHandler) Workbook(c *gin.Context) {
	fieldID, days, ok := h.fieldAndDays(c)
	if !ok {
		return
	}
	book, err := h.reports.HistoryWorkbook(c.Request.Context(), fieldID, days)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("field_%s_history.xlsx", fieldID)))
	c.Data(http.StatusOK, xlsxContentType, book)
}

// GET /api/v1/fields/:id/report/card?days=N
func (h *ReportHandler) Card(c *gin.Context) {
	fieldID, days, ok := h.fieldAndDays(c)
	if !ok {
		return
	}
	card, err := h.reports.SnapshotCard(c.Request.Context(), fieldID, days)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("field_%s_card.png", fieldID)))
	c.Data(http.StatusOK, "image/png", card)
}
