// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/dermascan/dermascan/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Model  string            `json:"model,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse represents an account in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// AnalyzeRequest is the JSON form of POST /analyze.
type AnalyzeRequest struct {
	// ImageData is base64, optionally as a data: URL.
	ImageData string `json:"image_data"`
	ImageName string `json:"image_name,omitempty"`
}

// AnalysisResponse is the diagnosis returned by POST /analyze.
type AnalysisResponse struct {
	Disease     string   `json:"disease"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
	Symptoms    []string `json:"symptoms"`
	Treatments  []string `json:"treatments"`
	MedicalCare []string `json:"medical_care"`
	Disclaimer  string   `json:"disclaimer"`
	ImageRef    string   `json:"image_ref"`
	Saved       bool     `json:"saved"`
	HistoryID   string   `json:"history_id,omitempty"`
}

// HistoryItem is one stored analysis.
type HistoryItem struct {
	ID             string           `json:"id"`
	ImageName      string           `json:"image_name"`
	ImageRef       string           `json:"image_ref"`
	PredictedLabel string           `json:"predicted_label"`
	Confidence     float64          `json:"confidence"`
	TreatmentText  string           `json:"treatment_text"`
	Result         *model.Diagnosis `json:"result,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// HistoryResponse lists the caller's past analyses, newest first. Count is
// the number of items returned, Total the number stored for the caller.
type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
	Count int           `json:"count"`
	Total int           `json:"total"`
}
