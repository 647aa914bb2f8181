package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/leadimport/internal/models"
)

// listLeadsHandler lists the working set, optionally filtered by ?job_id= and ?status=.
func (a *API) listLeadsHandler(c *gin.Context) {
	status := models.LeadStatus(c.Query("status"))
	leads := a.manager.Leads().List(c.Query("job_id"))
	if status == "" {
		RespondWithSuccess(c, http.StatusOK, leads)
		return
	}
	filtered := make([]models.LeadRecord, 0, len(leads))
	for _, l := range leads {
		if l.Status == status {
			filtered = append(filtered, l)
		}
	}
	RespondWithSuccess(c, http.StatusOK, filtered)
}

// getLeadHandler returns one lead from the working set.
func (a *API) getLeadHandler(c *gin.Context) {
	leadID := c.Param("lead_id")
	lead, ok := a.manager.Leads().Get(leadID)
	if !ok {
		RespondWithError(c, http.StatusNotFound, models.ErrorCodeLeadNotFound, "Lead not found.", gin.H{"lead_id": leadID})
		return
	}
	RespondWithSuccess(c, http.StatusOK, lead)
}
