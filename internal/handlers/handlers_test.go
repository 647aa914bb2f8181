package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/models"
)

// TestMain sets Gin to test mode for every handler test.
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- Mock Validator ---
type MockValidator struct {
	ValidateFunc func(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error)
}

func (m *MockValidator) Validate(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, leads)
	}
	return nil, fmt.Errorf("ValidateFunc not implemented")
}

// --- Mock Enricher ---
type MockEnricher struct {
	EnrichFunc func(ctx context.Context, leads []models.LeadRecord) ([]models.EnrichmentResult, error)
}

func (m *MockEnricher) Enrich(ctx context.Context, leads []models.LeadRecord) ([]models.EnrichmentResult, error) {
	if m.EnrichFunc != nil {
		return m.EnrichFunc(ctx, leads)
	}
	return nil, fmt.Errorf("EnrichFunc not implemented")
}

// --- Mock Archive ---
type MockArchive struct {
	Jobs  map[string]models.ImportJob
	Leads map[string][]models.LeadRecord
}

func (m *MockArchive) GetJob(id string) (models.ImportJob, error) {
	job, ok := m.Jobs[id]
	if !ok {
		return models.ImportJob{}, errors.New("not archived")
	}
	return job, nil
}

func (m *MockArchive) ListLeads(jobID string) ([]models.LeadRecord, error) {
	return m.Leads[jobID], nil
}

func emailValidator() *MockValidator {
	return &MockValidator{
		ValidateFunc: func(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error) {
			results := make([]models.ValidationResult, 0, len(leads))
			for _, l := range leads {
				results = append(results, models.ValidationResult{LeadID: l.ID, Valid: strings.Contains(l.Email, "@")})
			}
			return results, nil
		},
	}
}

const leadsCSV = "Full Name,E-Mail,Cellphone\n" +
	"Ada Lovelace,ada@example.com,555-0100\n" +
	"Alan Turing,alan.example.com,555-0101\n" +
	"Grace Hopper,grace@example.com,555-0102\n"

func setupRouter(cfg importjob.Config, archive JobArchive) (*gin.Engine, *importjob.Manager) {
	manager := importjob.NewManager(cfg, nil)
	router := gin.New()
	NewAPI(manager, archive).RegisterRoutes(router)
	return router, manager
}

func doRequest(router *gin.Engine, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func createImport(t *testing.T, router *gin.Engine, query string) CreateImportResponse {
	t.Helper()
	w := doRequest(router, http.MethodPost, "/api/v1/imports"+query, []byte(leadsCSV), "text/csv")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp CreateImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func waitForJob(t *testing.T, router *gin.Engine, id string, status models.JobStatus) JobResponse {
	t.Helper()
	var job JobResponse
	require.Eventually(t, func() bool {
		w := doRequest(router, http.MethodGet, "/api/v1/imports/"+id, nil, "")
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
	w := doRequest(router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDetectMapping(t *testing.T) {
	router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, nil)

	t.Run("Detects canonical fields", func(t *testing.T) {
		body, _ := json.Marshal(DetectMappingRequest{Headers: []string{"Full Name", "E-Mail", "Favourite Colour"}})
		w := doRequest(router, http.MethodPost, "/api/v1/mappings/detect", body, "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var fm models.FieldMapping
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fm))
		assert.Equal(t, models.FieldName, fm.Mapping["Full Name"])
		assert.Equal(t, models.FieldEmail, fm.Mapping["E-Mail"])
		assert.Equal(t, models.FieldNotes, fm.Mapping["Favourite Colour"])
		assert.Len(t, fm.PerHeaderConfidence, 3)
	})

	t.Run("Applies overrides", func(t *testing.T) {
		body, _ := json.Marshal(DetectMappingRequest{
			Headers:   []string{"Full Name", "Favourite Colour"},
			Overrides: map[string]models.CanonicalField{"Favourite Colour": models.FieldIndustry},
		})
		w := doRequest(router, http.MethodPost, "/api/v1/mappings/detect", body, "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var fm models.FieldMapping
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fm))
		assert.Equal(t, models.FieldIndustry, fm.Mapping["Favourite Colour"])
		assert.Equal(t, 1.0, fm.PerHeaderConfidence["Favourite Colour"])
	})

	t.Run("Rejects overrides for unknown headers and fields", func(t *testing.T) {
		for _, overrides := range []map[string]models.CanonicalField{
			{"Missing": models.FieldName},
			{"Full Name": "shoeSize"},
		} {
			body, _ := json.Marshal(DetectMappingRequest{Headers: []string{"Full Name"}, Overrides: overrides})
			w := doRequest(router, http.MethodPost, "/api/v1/mappings/detect", body, "application/json")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, models.ErrorCodeValidation, decodeError(t, w).Code)
		}
	})

	t.Run("Missing headers", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/mappings/detect", []byte(`{}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrorCodeValidation, decodeError(t, w).Code)
	})
}

func TestListFields(t *testing.T) {
	router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
	w := doRequest(router, http.MethodGet, "/api/v1/mappings/fields", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var fields []models.CanonicalField
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fields))
	assert.Equal(t, models.CanonicalFields, fields)
}

func TestCreateImport(t *testing.T) {
	t.Run("Raw CSV body", func(t *testing.T) {
		router, manager := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
		resp := createImport(t, router, "?source=crm.csv")
		assert.Equal(t, "crm.csv", resp.Job.SourceName)
		assert.Equal(t, DefaultSurface, resp.Job.Surface)
		assert.Equal(t, 3, resp.Job.TotalRecords)
		assert.Equal(t, models.FieldPhone, resp.Mapping.Mapping["Cellphone"])

		job := waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)
		assert.Equal(t, 2, job.ValidRecords)
		assert.Equal(t, 1, job.InvalidRecords)
		assert.Equal(t, 100.0, job.Progress)
		assert.Equal(t, 3, manager.Leads().Len())
	})

	t.Run("Multipart upload with mapping override", func(t *testing.T) {
		router, manager := setupRouter(importjob.Config{Validator: emailValidator()}, nil)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "leads.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(leadsCSV))
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("surface", "crm"))
		require.NoError(t, mw.WriteField("mapping", `{"Cellphone":"notes"}`))
		require.NoError(t, mw.Close())

		w := doRequest(router, http.MethodPost, "/api/v1/imports", buf.Bytes(), mw.FormDataContentType())
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		var resp CreateImportResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "leads.csv", resp.Job.SourceName)
		assert.Equal(t, "crm", resp.Job.Surface)
		assert.Equal(t, models.FieldNotes, resp.Mapping.Mapping["Cellphone"])

		waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)
		leads := manager.Leads().List(resp.Job.ID)
		require.Len(t, leads, 3)
		assert.Equal(t, "555-0100", leads[0].Notes)
		assert.Empty(t, leads[0].Phone)
	})

	t.Run("Empty body", func(t *testing.T) {
		router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
		w := doRequest(router, http.MethodPost, "/api/v1/imports", nil, "text/csv")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrorCodeValidation, decodeError(t, w).Code)
	})

	t.Run("Malformed mapping override", func(t *testing.T) {
		router, manager := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
		w := doRequest(router, http.MethodPost, "/api/v1/imports?mapping="+url.QueryEscape("not json"), []byte(leadsCSV), "text/csv")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrorCodeInvalidInput, decodeError(t, w).Code)
		assert.Empty(t, manager.List())
	})

	t.Run("Multipart without file part", func(t *testing.T) {
		router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("surface", "crm"))
		require.NoError(t, mw.Close())

		w := doRequest(router, http.MethodPost, "/api/v1/imports", buf.Bytes(), mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrorCodeInvalidInput, decodeError(t, w).Code)
	})

	t.Run("Busy surface", func(t *testing.T) {
		release := make(chan struct{})
		validator := &MockValidator{
			ValidateFunc: func(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error) {
				<-release
				return emailValidator().ValidateFunc(ctx, leads)
			},
		}
		router, manager := setupRouter(importjob.Config{Validator: validator}, nil)
		first := createImport(t, router, "")

		w := doRequest(router, http.MethodPost, "/api/v1/imports", []byte(leadsCSV), "text/csv")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, models.ErrorCodeSurfaceBusy, decodeError(t, w).Code)
		assert.Len(t, manager.List(), 1)

		other := createImport(t, router, "?surface=other")
		close(release)
		waitForJob(t, router, first.Job.ID, models.JobStatusCompleted)
		waitForJob(t, router, other.Job.ID, models.JobStatusCompleted)
	})
}

func TestGetImport(t *testing.T) {
	archived := models.ImportJob{ID: "archived-1", SourceName: "old.csv", Status: models.JobStatusCompleted, TotalRecords: 4, ProcessedRecords: 4}
	archive := &MockArchive{
		Jobs:  map[string]models.ImportJob{archived.ID: archived},
		Leads: map[string][]models.LeadRecord{archived.ID: {{ID: "lead-1", JobID: archived.ID, Name: "Ada"}}},
	}
	router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, archive)

	t.Run("Unknown job", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/imports/missing", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, models.ErrorCodeJobNotFound, decodeError(t, w).Code)

		w = doRequest(router, http.MethodGet, "/api/v1/imports/missing/leads", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Falls back to the archive", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/imports/archived-1", nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var job JobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		assert.Equal(t, "old.csv", job.SourceName)
		assert.Equal(t, 100.0, job.Progress)

		w = doRequest(router, http.MethodGet, "/api/v1/imports/archived-1/leads", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var leads []models.LeadRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &leads))
		require.Len(t, leads, 1)
		assert.Equal(t, "Ada", leads[0].Name)
	})

	t.Run("Lists in-memory jobs and their leads", func(t *testing.T) {
		resp := createImport(t, router, "")
		waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)

		w := doRequest(router, http.MethodGet, "/api/v1/imports", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var jobs []JobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, resp.Job.ID, jobs[0].ID)

		w = doRequest(router, http.MethodGet, "/api/v1/imports/"+resp.Job.ID+"/leads", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var leads []models.LeadRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &leads))
		assert.Len(t, leads, 3)
	})
}

func TestCancelImport(t *testing.T) {
	started := make(chan struct{})
	validator := &MockValidator{
		ValidateFunc: func(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	router, manager := setupRouter(importjob.Config{Validator: validator}, nil)
	defer manager.Shutdown(context.Background())

	resp := createImport(t, router, "")
	<-started

	w := doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/cancel", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var job JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, []string{importjob.CancelledMessage}, job.Errors)

	w = doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.ErrorCodeJobState, decodeError(t, w).Code)

	w = doRequest(router, http.MethodPost, "/api/v1/imports/missing/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrichImport(t *testing.T) {
	enricher := &MockEnricher{
		EnrichFunc: func(ctx context.Context, leads []models.LeadRecord) ([]models.EnrichmentResult, error) {
			results := make([]models.EnrichmentResult, 0, len(leads))
			for _, l := range leads {
				results = append(results, models.EnrichmentResult{
					LeadID:    l.ID,
					Enriched:  models.FieldValues{models.FieldCompany: "Analytical Engines Ltd"},
					NewFields: []models.CanonicalField{models.FieldCompany},
				})
			}
			return results, nil
		},
	}

	t.Run("Enriches valid leads of a completed job", func(t *testing.T) {
		router, manager := setupRouter(importjob.Config{Validator: emailValidator(), Enricher: enricher}, nil)
		resp := createImport(t, router, "")
		waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)

		w := doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/enrich", nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out EnrichmentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, 2, out.Enriched)
		assert.Equal(t, 2, out.Job.EnrichedRecords)

		for _, l := range manager.Leads().List(resp.Job.ID) {
			if l.Status == models.LeadStatusEnriched {
				assert.Equal(t, "Analytical Engines Ltd", l.Company)
			}
		}
	})

	t.Run("Service failure", func(t *testing.T) {
		failing := &MockEnricher{
			EnrichFunc: func(ctx context.Context, leads []models.LeadRecord) ([]models.EnrichmentResult, error) {
				return nil, errors.New("connection refused")
			},
		}
		router, _ := setupRouter(importjob.Config{Validator: emailValidator(), Enricher: failing}, nil)
		resp := createImport(t, router, "")
		waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)

		w := doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/enrich", nil, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, models.ErrorCodeServiceUnavailable, decodeError(t, w).Code)

		job := waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)
		require.NotEmpty(t, job.Errors)
		assert.Contains(t, job.Errors[len(job.Errors)-1], "enrichment failed")
	})

	t.Run("Job still processing", func(t *testing.T) {
		release := make(chan struct{})
		validator := &MockValidator{
			ValidateFunc: func(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error) {
				<-release
				return emailValidator().ValidateFunc(ctx, leads)
			},
		}
		router, _ := setupRouter(importjob.Config{Validator: validator, Enricher: enricher}, nil)
		resp := createImport(t, router, "")

		w := doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/enrich", nil, "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, models.ErrorCodeJobState, decodeError(t, w).Code)
		close(release)
		waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)
	})
}

func TestAttachEnrichment(t *testing.T) {
	router, manager := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
	resp := createImport(t, router, "")
	waitForJob(t, router, resp.Job.ID, models.JobStatusCompleted)

	leads := manager.Leads().List(resp.Job.ID)
	require.Len(t, leads, 3)
	body, _ := json.Marshal(AttachEnrichmentRequest{Results: []models.EnrichmentResult{
		{LeadID: leads[0].ID, Enriched: models.FieldValues{models.FieldJobTitle: "Mathematician"}},
		{LeadID: "someone-else", Enriched: models.FieldValues{models.FieldJobTitle: "Ignored"}},
	}})

	for i := 0; i < 2; i++ {
		w := doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/enrichment", body, "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out EnrichmentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, 1, out.Job.EnrichedRecords, "each lead counts once")
	}

	lead, ok := manager.Leads().Get(leads[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Mathematician", lead.JobTitle)

	w := doRequest(router, http.MethodPost, "/api/v1/imports/"+resp.Job.ID+"/enrichment", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeads(t *testing.T) {
	router, _ := setupRouter(importjob.Config{Validator: emailValidator()}, nil)
	first := createImport(t, router, "?surface=a")
	second := createImport(t, router, "?surface=b")
	waitForJob(t, router, first.Job.ID, models.JobStatusCompleted)
	waitForJob(t, router, second.Job.ID, models.JobStatusCompleted)

	list := func(query string) []models.LeadRecord {
		w := doRequest(router, http.MethodGet, "/api/v1/leads"+query, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var leads []models.LeadRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &leads))
		return leads
	}

	assert.Len(t, list(""), 6)
	byJob := list("?job_id=" + first.Job.ID)
	require.Len(t, byJob, 3)
	for _, l := range byJob {
		assert.Equal(t, first.Job.ID, l.JobID)
	}
	assert.Len(t, list("?status=invalid"), 2)

	w := doRequest(router, http.MethodGet, "/api/v1/leads/"+byJob[0].ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var lead models.LeadRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lead))
	assert.Equal(t, "Ada Lovelace", lead.Name)

	w = doRequest(router, http.MethodGet, "/api/v1/leads/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrorCodeLeadNotFound, decodeError(t, w).Code)
}
