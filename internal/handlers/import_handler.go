package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/ingestion"
	"example.com/leadimport/internal/models"
)

// DefaultSurface is used when an upload does not name its surface.
const DefaultSurface = "upload"

// maxUploadBytes bounds the size of an uploaded CSV.
const maxUploadBytes = 32 << 20

// CreateImportResponse is returned when an import has been accepted.
type CreateImportResponse struct {
	Job     JobResponse         `json:"job"`
	Mapping models.FieldMapping `json:"mapping"`
}

// EnrichmentResponse reports how many leads an enrichment call counted for the first time.
type EnrichmentResponse struct {
	Job      JobResponse `json:"job"`
	Enriched int         `json:"enriched"`
}

// AttachEnrichmentRequest carries enrichment results pushed by the enrichment service.
type AttachEnrichmentRequest struct {
	Results []models.EnrichmentResult `json:"results" binding:"required"`
}

// readUpload returns the CSV body and the import parameters of a create request. Multipart
// requests carry the CSV in the "file" part; any other request carries it as the raw body with
// parameters in the query string.
func readUpload(c *gin.Context) (io.ReadCloser, string, string, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, "", "", "", fmt.Errorf("missing file part: %w", err)
		}
		f, err := fileHeader.Open()
		if err != nil {
			return nil, "", "", "", fmt.Errorf("failed to open uploaded file: %w", err)
		}
		source := c.PostForm("source")
		if source == "" {
			source = fileHeader.Filename
		}
		return f, source, c.PostForm("surface"), c.PostForm("mapping"), nil
	}
	return c.Request.Body, c.Query("source"), c.Query("surface"), c.Query("mapping"), nil
}

// createImportHandler reads an uploaded CSV and starts an import job for it.
func (a *API) createImportHandler(c *gin.Context) {
	body, source, surface, rawMapping, err := readUpload(c)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidInput, "Could not read the uploaded file.", gin.H{"reason": err.Error()})
		return
	}
	defer body.Close()

	table, err := ingestion.ReadCSV(body)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyInput) {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "The uploaded file has no header row.", nil)
			return
		}
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidInput, "Could not parse the uploaded CSV.", gin.H{"reason": err.Error()})
		return
	}
	if source == "" {
		source = "upload"
	}
	if surface == "" {
		surface = DefaultSurface
	}

	fm := a.manager.Detector().Detect(table.Headers)
	if rawMapping != "" {
		var overrides map[string]models.CanonicalField
		if err := json.Unmarshal([]byte(rawMapping), &overrides); err != nil {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidInput, "Mapping override must be a JSON object of header to field.", gin.H{"reason": err.Error()})
			return
		}
		if fm, err = applyOverrides(fm, overrides); err != nil {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid mapping override", gin.H{"reason": err.Error()})
			return
		}
	}

	job, used, err := a.manager.Import(source, surface, table, &fm)
	if err != nil {
		handleJobError(c, err, "")
		return
	}
	log.Printf("Accepted import %s from %q: %d rows, mapping confidence %.2f.", job.ID, source, table.Len(), used.OverallConfidence)
	RespondWithSuccess(c, http.StatusAccepted, CreateImportResponse{Job: newJobResponse(job), Mapping: used})
}

// listImportsHandler lists the in-memory import jobs, newest first.
func (a *API) listImportsHandler(c *gin.Context) {
	jobs := a.manager.List()
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobResponse(j))
	}
	RespondWithSuccess(c, http.StatusOK, out)
}

// getImportHandler returns one job, falling back to the archive for jobs no longer in memory.
func (a *API) getImportHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	ctrl, err := a.manager.Get(jobID)
	if err == nil {
		RespondWithSuccess(c, http.StatusOK, newJobResponse(ctrl.Snapshot()))
		return
	}
	if a.archive != nil {
		if job, archErr := a.archive.GetJob(jobID); archErr == nil {
			RespondWithSuccess(c, http.StatusOK, newJobResponse(job))
			return
		}
	}
	handleJobError(c, err, jobID)
}

// listJobLeadsHandler returns the leads of one job.
func (a *API) listJobLeadsHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	ctrl, err := a.manager.Get(jobID)
	if err == nil {
		RespondWithSuccess(c, http.StatusOK, ctrl.Leads())
		return
	}
	if a.archive != nil {
		if _, archErr := a.archive.GetJob(jobID); archErr == nil {
			leads, err := a.archive.ListLeads(jobID)
			if err != nil {
				RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to load archived leads.", gin.H{"reason": err.Error()})
				return
			}
			RespondWithSuccess(c, http.StatusOK, leads)
			return
		}
	}
	handleJobError(c, err, jobID)
}

// enrichImportHandler sends the job's valid leads to the enrichment service.
func (a *API) enrichImportHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	ctrl, err := a.manager.Get(jobID)
	if err != nil {
		handleJobError(c, err, jobID)
		return
	}

	added, err := ctrl.Enrich(c.Request.Context())
	if err != nil {
		if errors.Is(err, importjob.ErrInvalidTransition) {
			handleJobError(c, err, jobID)
			return
		}
		RespondWithError(c, http.StatusBadGateway, models.ErrorCodeServiceUnavailable, "Enrichment service call failed.", gin.H{"reason": err.Error(), "enriched": added})
		return
	}
	RespondWithSuccess(c, http.StatusOK, EnrichmentResponse{Job: newJobResponse(ctrl.Snapshot()), Enriched: added})
}

// attachEnrichmentHandler folds pushed enrichment results into the job's leads.
func (a *API) attachEnrichmentHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	ctrl, err := a.manager.Get(jobID)
	if err != nil {
		handleJobError(c, err, jobID)
		return
	}

	var req AttachEnrichmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}
	added := ctrl.AttachEnrichment(req.Results)
	RespondWithSuccess(c, http.StatusOK, EnrichmentResponse{Job: newJobResponse(ctrl.Snapshot()), Enriched: added})
}

// cancelImportHandler abandons a job that has not finished.
func (a *API) cancelImportHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := a.manager.Cancel(jobID)
	if err != nil {
		handleJobError(c, err, jobID)
		return
	}
	RespondWithSuccess(c, http.StatusOK, newJobResponse(job))
}
