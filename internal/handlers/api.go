// Package handlers exposes mapping detection, import jobs and leads over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/models"
)

// JobArchive looks up jobs that are no longer held in memory.
type JobArchive interface {
	GetJob(id string) (models.ImportJob, error)
	ListLeads(jobID string) ([]models.LeadRecord, error)
}

// API provides the lead import HTTP handlers.
type API struct {
	manager *importjob.Manager
	archive JobArchive
}

// NewAPI creates the API over manager. archive may be nil.
func NewAPI(manager *importjob.Manager, archive JobArchive) *API {
	return &API{manager: manager, archive: archive}
}

// RegisterRoutes registers the API routes with the given Gin router.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	mappingRoutes := v1.Group("/mappings")
	{
		mappingRoutes.POST("/detect", a.detectMappingHandler)
		mappingRoutes.GET("/fields", a.listFieldsHandler)
	}

	importRoutes := v1.Group("/imports")
	{
		importRoutes.POST("", a.createImportHandler)
		importRoutes.GET("", a.listImportsHandler)
		importRoutes.GET("/:job_id", a.getImportHandler)
		importRoutes.GET("/:job_id/leads", a.listJobLeadsHandler)
		importRoutes.POST("/:job_id/enrich", a.enrichImportHandler)
		importRoutes.POST("/:job_id/enrichment", a.attachEnrichmentHandler)
		importRoutes.POST("/:job_id/cancel", a.cancelImportHandler)
	}

	leadRoutes := v1.Group("/leads")
	{
		leadRoutes.GET("", a.listLeadsHandler)
		leadRoutes.GET("/:lead_id", a.getLeadHandler)
	}
}

// JobResponse is an import job with its progress percentage.
type JobResponse struct {
	models.ImportJob
	Progress float64 `json:"progress"`
}

func newJobResponse(job models.ImportJob) JobResponse {
	return JobResponse{ImportJob: job, Progress: job.Progress()}
}

// handleJobError maps import job errors to API errors.
func handleJobError(c *gin.Context, err error, jobID string) {
	switch {
	case errors.Is(err, importjob.ErrJobNotFound):
		RespondWithError(c, http.StatusNotFound, models.ErrorCodeJobNotFound, "Import job not found.", gin.H{"job_id": jobID})
	case errors.Is(err, importjob.ErrSurfaceBusy):
		RespondWithError(c, http.StatusConflict, models.ErrorCodeSurfaceBusy, "Another import is already processing on this surface.", gin.H{"reason": err.Error()})
	case errors.Is(err, importjob.ErrInvalidTransition):
		RespondWithError(c, http.StatusConflict, models.ErrorCodeJobState, "The import job is not in a state that allows this operation.", gin.H{"reason": err.Error()})
	default:
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Import job operation failed.", gin.H{"reason": err.Error()})
	}
}
