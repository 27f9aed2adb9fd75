package handler

import (
	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/service"
)

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

func toAnalysisResponse(r *service.AnalysisResult) dto.AnalysisResponse {
	d := r.Diagnosis
	return dto.AnalysisResponse{
		Disease:     d.Disease,
		Confidence:  d.Confidence,
		Description: d.Description,
		Symptoms:    nonNil(d.Symptoms),
		Treatments:  nonNil(d.Treatments),
		MedicalCare: nonNil(d.MedicalCare),
		Disclaimer:  d.Disclaimer,
		ImageRef:    r.ImageRef,
		Saved:       r.Saved(),
		HistoryID:   r.HistoryID,
	}
}

func toHistoryResponse(page *service.HistoryPage) dto.HistoryResponse {
	items := make([]dto.HistoryItem, 0, len(page.Records))
	for _, rec := range page.Records {
		items = append(items, dto.HistoryItem{
			ID:             rec.ID,
			ImageName:      rec.ImageName,
			ImageRef:       rec.ImageRef,
			PredictedLabel: rec.PredictedLabel,
			Confidence:     rec.Confidence,
			TreatmentText:  rec.TreatmentText,
			Result:         rec.Result,
			CreatedAt:      rec.CreatedAt,
		})
	}
	return dto.HistoryResponse{Items: items, Count: len(items), Total: page.Total}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
