package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/http/response"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

type MetricHandler struct {
	ingest services.IngestService
}

func NewMetricHandler(ingest services.IngestService) *MetricHandler {
	return &MetricHandler{ingest: ingest}
}

// metricPayload is the wire shape of one reading. Dates travel as
// "YYYY-MM-DD" strings; everything else matches the stored model.
type metricPayload struct {
	FieldID         uuid.UUID `json:"field_id"`
	Date            string    `json:"date"`
	NDVIMean        *float64  `json:"ndvi_mean"`
	NDVIMax         *float64  `json:"ndvi_max"`
	NDVIMin         *float64  `json:"ndvi_min"`
	EVIMean         *float64  `json:"evi_mean"`
	TempMeanC       *float64  `json:"temp_mean_c"`
	RainfallMm      *float64  `json:"rainfall_mm"`
	HumidityPct     *float64  `json:"humidity_pct"`
	WindSpeedMs     *float64  `json:"wind_speed_ms"`
	CloudCoverPct   *float64  `json:"cloud_cover_pct"`
	SoilMoistureEst *float64  `json:"soil_moisture_est"`
	DataSource      string    `json:"data_source"`
	ValidPixels     *int      `json:"valid_pixels"`
}

func (p *metricPayload) record() (*types.SatelliteMetric, error) {
	date, err := parseDate(p.Date)
	if err != nil {
		return nil, err
	}
	return &types.SatelliteMetric{
		FieldID:         p.FieldID,
		Date:            date,
		NDVIMean:        p.NDVIMean,
		NDVIMax:         p.NDVIMax,
		NDVIMin:         p.NDVIMin,
		EVIMean:         p.EVIMean,
		TempMeanC:       p.TempMeanC,
		RainfallMm:      p.RainfallMm,
		HumidityPct:     p.HumidityPct,
		WindSpeedMs:     p.WindSpeedMs,
		CloudCoverPct:   p.CloudCoverPct,
		SoilMoistureEst: p.SoilMoistureEst,
		DataSource:      p.DataSource,
		ValidPixels:     p.ValidPixels,
	}, nil
}

// POST /api/v1/metrics
// Upserts one reading keyed on (field_id, date). Out-of-range values are a
// 400, a reading for a nonexistent field is a 409.
func (h *MetricHandler) Ingest(c *gin.Context) {
	var payload metricPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rec, err := payload.record()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}
	stored, err := h.ingest.Ingest(c.Request.Context(), rec)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"metric": stored})
}

type batchOutcome struct {
	Index  int                    `json:"index"`
	Status string                 `json:"status"`
	Metric *types.SatelliteMetric `json:"metric,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// POST /api/v1/metrics/batch
// body: { "records": [ {metricPayload}, ... ] }
// Each record lands or fails on its own; rejected and conflicting records
// never stop the rest of the batch.
func (h *MetricHandler) IngestBatch(c *gin.Context) {
	var req struct {
		Records []metricPayload `json:"records"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Records) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_batch", fmt.Errorf("records is empty"))
		return
	}

	recs := make([]*types.SatelliteMetric, 0, len(req.Records))
	for i := range req.Records {
		rec, err := req.Records[i].record()
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("record %d: %w", i, err))
			return
		}
		recs = append(recs, rec)
	}

	summary, err := h.ingest.IngestBatch(c.Request.Context(), recs)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	outcomes := make([]batchOutcome, 0, len(summary.Outcomes))
	for _, out := range summary.Outcomes {
		bo := batchOutcome{Index: out.Index, Metric: out.Stored}
		switch {
		case out.Err == nil:
			bo.Status = "stored"
		case pkgerrors.IsConflict(out.Err):
			bo.Status = "conflict"
			bo.Error = out.Err.Error()
		default:
			bo.Status = "rejected"
			bo.Error = out.Err.Error()
		}
		outcomes = append(outcomes, bo)
	}
	response.RespondOK(c, gin.H{
		"accepted":  summary.Accepted,
		"rejected":  summary.Rejected,
		"conflicts": summary.Conflicts,
		"outcomes":  outcomes,
	})
}

// DELETE /api/v1/metrics/:id detaches dependent advisories, then removes
// the reading.
func (h *MetricHandler) Delete(c *gin.Context) {
	metricID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	if err := h.ingest.DeleteMetric(c.Request.Context(), metricID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
