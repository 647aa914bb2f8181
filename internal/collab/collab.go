// Package collab holds the clients for the remote validation and enrichment services.
package collab

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"example.com/leadimport/internal/models"
)

// Validator checks a batch of leads and returns one verdict per lead id.
type Validator interface {
	Validate(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error)
}

// Enricher looks up additional data for a batch of leads.
type Enricher interface {
	Enrich(ctx context.Context, leads []models.LeadRecord) ([]models.EnrichmentResult, error)
}

// ValidateRequest is the payload sent to the validation service.
type ValidateRequest struct {
	Leads []models.LeadRecord `json:"leads"`
}

// ValidateResponse is the validation service's answer.
type ValidateResponse struct {
	Results []models.ValidationResult `json:"results"`
}

// EnrichRequest is the payload sent to the enrichment service. Only ids and the current
// field snapshot are sent.
type EnrichRequest struct {
	Leads []EnrichLead `json:"leads"`
}

// EnrichLead identifies one lead to enrich.
type EnrichLead struct {
	LeadID string             `json:"leadId"`
	Fields models.FieldValues `json:"fields"`
}

// EnrichResponse is the enrichment service's answer.
type EnrichResponse struct {
	Results []models.EnrichmentResult `json:"results"`
}

// HTTPValidator calls the validation service over HTTP.
type HTTPValidator struct {
	BaseURL    string
	HttpClient *http.Client
	Retry      RetryConfig
}

// NewHTTPValidator creates a client for the validation service at baseURL.
func NewHTTPValidator(baseURL string, timeout time.Duration) *HTTPValidator {
	return &HTTPValidator{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HttpClient: &http.Client{Timeout: timeout},
		Retry:      DefaultRetryConfig(),
	}
}

// Validate posts the leads to /api/v1/validate.
func (c *HTTPValidator) Validate(ctx context.Context, leads []models.LeadRecord) ([]models.ValidationResult, error) {
	url := fmt.Sprintf("%s/api/v1/validate", c.BaseURL)
	var resp ValidateResponse
	if err := postJSON(ctx, c.HttpClient, c.Retry, url, ValidateRequest{Leads: leads}, &resp); err != nil {
		return nil, fmt.Errorf("validation service: %w", err)
	}
	log.Printf("Validation service returned %d results for %d leads.", len(resp.Results), len(leads))
	return resp.Results, nil
}

// HTTPEnricher calls the enrichment service over HTTP.
type HTTPEnricher struct {
	BaseURL    string
	HttpClient *http.Client
	Retry      RetryConfig
}

// NewHTTPEnricher creates a client for the enrichment service at baseURL.
func NewHTTPEnricher(baseURL string, timeout time.Duration) *HTTPEnricher {
	return &HTTPEnricher{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HttpClient: &http.Client{Timeout: timeout},
		Retry:      DefaultRetryConfig(),
	}
}

// Enrich posts the lead ids and their current fields to /api/v1/enrich.
func (c *HTTPEnricher) Enrich(ctx context.Context, leads []models.LeadRecord) ([]models.EnrichmentResult, error) {
	url := fmt.Sprintf("%s/api/v1/enrich", c.BaseURL)
	req := EnrichRequest{Leads: make([]EnrichLead, 0, len(leads))}
	for i := range leads {
		req.Leads = append(req.Leads, EnrichLead{LeadID: leads[i].ID, Fields: leads[i].Fields()})
	}
	var resp EnrichResponse
	if err := postJSON(ctx, c.HttpClient, c.Retry, url, req, &resp); err != nil {
		return nil, fmt.Errorf("enrichment service: %w", err)
	}
	log.Printf("Enrichment service returned %d results for %d leads.", len(resp.Results), len(leads))
	return resp.Results, nil
}
