package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krushibheru/agromonitor-backend/internal/http/response"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

type FieldHandler struct {
	fields services.FieldService
}

func NewFieldHandler(fields services.FieldService) *FieldHandler {
	return &FieldHandler{fields: fields}
}

// POST /api/v1/fields
// body: { "user_id": "...", "name": "...", "boundary": {GeoJSON Polygon}, ... }
func (h *FieldHandler) Create(c *gin.Context) {
	var input services.CreateFieldInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	field, err := h.fields.Create(c.Request.Context(), input)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"field": field})
}

// GET /api/v1/fields/:id
func (h *FieldHandler) Get(c *gin.Context) {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_field_id", err)
		return
	}
	field, err := h.fields.Get(c.Request.Context(), fieldID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"field": field})
}

// GET /api/v1/fields?user_id=...
func (h *FieldHandler) List(c *gin.Context) {
	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
			return
		}
		userID = &id
	}
	fields, err := h.fields.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"fields": fields, "count": len(fields)})
}

// PATCH /api/v1/fields/:id/cropping
// body: { "crop_type": "...", "crop_status": "...", "season": "..." }
func (h *FieldHandler) UpdateCropping(c *gin.Context) {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_field_id", err)
		return
	}
	var input services.UpdateCroppingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	field, err := h.fields.UpdateCropping(c.Request.Context(), fieldID, input)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"field": field})
}

// DELETE /api/v1/fields/:id cascades over the field's metrics and
// advisories.
func (h *FieldHandler) Delete(c *gin.Context) {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_field_id", err)
		return
	}
	if err := h.fields.Delete(c.Request.Context(), fieldID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
