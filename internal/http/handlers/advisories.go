package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krushibheru/agromonitor-backend/internal/http/response"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

type AdvisoryHandler struct {
	fields services.FieldService
}

func NewAdvisoryHandler(fields services.FieldService) *AdvisoryHandler {
	return &AdvisoryHandler{fields: fields}
}

// GET /api/v1/fields/:id/advisories?include_resolved=true
// Active advisories in display order; include_resolved widens to the full
// history.
func (h *AdvisoryHandler) ListForField(c *gin.Context) {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_field_id", err)
		return
	}
	includeResolved, _ := strconv.ParseBool(c.DefaultQuery("include_resolved", "false"))

	advisories, err := h.fields.Advisories(c.Request.Context(), fieldID, includeResolved)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"advisories": advisories, "count": len(advisories)})
}
