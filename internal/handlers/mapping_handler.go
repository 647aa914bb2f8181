package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/leadimport/internal/models"
)

// DetectMappingRequest asks for a mapping of headers, optionally with reviewer corrections.
type DetectMappingRequest struct {
	Headers   []string                         `json:"headers" binding:"required"`
	Overrides map[string]models.CanonicalField `json:"overrides,omitempty"`
}

// applyOverrides returns fm with every override applied. Headers that are not part of the
// mapping and unknown fields are rejected.
func applyOverrides(fm models.FieldMapping, overrides map[string]models.CanonicalField) (models.FieldMapping, error) {
	for header, field := range overrides {
		if _, ok := fm.Mapping[header]; !ok {
			return fm, fmt.Errorf("header %q is not part of the input", header)
		}
		if !models.IsCanonicalField(field) {
			return fm, fmt.Errorf("unknown canonical field %q for header %q", field, header)
		}
		fm = fm.Override(header, field)
	}
	return fm, nil
}

// detectMappingHandler detects a field mapping for the posted headers.
func (a *API) detectMappingHandler(c *gin.Context) {
	var req DetectMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	fm, err := applyOverrides(a.manager.Detector().Detect(req.Headers), req.Overrides)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid mapping override", gin.H{"reason": err.Error()})
		return
	}
	RespondWithSuccess(c, http.StatusOK, fm)
}

// listFieldsHandler lists the canonical fields in catalog order.
func (a *API) listFieldsHandler(c *gin.Context) {
	RespondWithSuccess(c, http.StatusOK, models.CanonicalFields)
}
