package model

import (
	"strings"
	"time"
)

// Disclaimer is attached to every diagnosis returned to a caller.
const Disclaimer = "This AI analysis is for informational purposes only and should not replace professional medical advice."

// Diagnosis is the structured prediction produced by the inference adapter.
type Diagnosis struct {
	Disease     string   `json:"disease"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
	Symptoms    []string `json:"symptoms"`
	Treatments  []string `json:"treatments"`
	MedicalCare []string `json:"medical_care"`
	Disclaimer  string   `json:"disclaimer"`
}

// TreatmentText flattens the treatment list into the stored text form,
// one treatment per line.
func (d *Diagnosis) TreatmentText() string {
	return strings.Join(d.Treatments, "\n")
}

// HistoryRecord is a stored past analysis. Records are immutable once written.
type HistoryRecord struct {
	ID             string     `json:"id"`
	UserID         *string    `json:"user_id,omitempty"`
	ImageName      string     `json:"image_name"`
	ImageRef       string     `json:"image_ref"`
	PredictedLabel string     `json:"predicted_label"`
	Confidence     float64    `json:"confidence"`
	TreatmentText  string     `json:"treatment_text"`
	Result         *Diagnosis `json:"result,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
