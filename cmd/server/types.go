package main

import (
	"encoding/json"

	"github.com/himanishpuri/AcousticID/pkg/models"
)

// ErrorResponse is the error body of every endpoint. Message and Details are
// only filled where the endpoint's contract has them.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// RawResultResponse wraps the lookup service's body on the raw endpoints.
type RawResultResponse struct {
	Result json.RawMessage `json:"result"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ListAnalysesResponse is the response for GET /api/analyses
type ListAnalysesResponse struct {
	Analyses []models.AnalysisRecord `json:"analyses"`
	Count    int                     `json:"count"`
}

// DeleteAnalysisResponse is the response for DELETE /api/analyses/{id}
type DeleteAnalysisResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}
