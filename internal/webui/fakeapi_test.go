package webui

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/model"
)

const validToken = "good-token"

// fakeAPI mimics the JSON API closely enough for the UI.
type fakeAPI struct {
	mu         sync.Mutex
	users      map[string]string
	lastAuth   string
	lastReqID  string
	lastUpload []byte
	fail       bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *APIClient) {
	t.Helper()
	f := &fakeAPI{users: map[string]string{"alice": "secret123"}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewAPIClient(srv.URL, 5*time.Second)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastAuth = r.Header.Get("Authorization")
	f.lastReqID = r.Header.Get("X-Request-ID")

	if f.fail {
		writeFake(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Database error", Code: "DATABASE_ERROR"})
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "POST /auth/register":
		var req dto.CredentialsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := f.users[req.Username]; ok {
			writeFake(w, http.StatusConflict, dto.ErrorResponse{Error: "Username already exists", Code: "DUPLICATE_USER"})
			return
		}
		f.users[req.Username] = req.Password
		writeFake(w, http.StatusCreated, dto.UserResponse{ID: "u-" + req.Username, Username: req.Username})

	case "POST /auth/login":
		var req dto.CredentialsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if pw, ok := f.users[req.Username]; !ok || pw != req.Password {
			writeFake(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid username or password", Code: "INVALID_CREDENTIALS"})
			return
		}
		writeFake(w, http.StatusOK, dto.LoginResponse{
			Token:     validToken,
			ExpiresAt: time.Now().Add(time.Hour),
			User:      dto.UserResponse{ID: "u-" + req.Username, Username: req.Username},
		})

	case "POST /analyze":
		if f.lastAuth != "" && f.lastAuth != "Bearer "+validToken {
			writeFake(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or expired session", Code: "INVALID_CREDENTIALS"})
			return
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			writeFake(w, http.StatusBadRequest, dto.ErrorResponse{Error: "No image provided", Code: "VALIDATION_ERROR"})
			return
		}
		f.lastUpload, _ = io.ReadAll(file)
		writeFake(w, http.StatusOK, dto.AnalysisResponse{
			Disease:     "Eczema",
			Confidence:  0.75,
			Description: "Inflamed, itchy skin.",
			Symptoms:    []string{"Itching"},
			Treatments:  []string{"Moisturize daily"},
			MedicalCare: []string{"Signs of infection"},
			Disclaimer:  model.Disclaimer,
			Saved:       f.lastAuth != "",
		})

	case "GET /history":
		if f.lastAuth != "Bearer "+validToken {
			writeFake(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or expired session", Code: "INVALID_CREDENTIALS"})
			return
		}
		writeFake(w, http.StatusOK, dto.HistoryResponse{
			Items: []dto.HistoryItem{{
				ID:             "h1",
				ImageName:      "arm.png",
				PredictedLabel: "Psoriasis",
				Confidence:     0.7,
				TreatmentText:  "Topical steroid",
				CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			}},
			Count: 1,
			Total: 4,
		})

	default:
		writeFake(w, http.StatusNotFound, dto.ErrorResponse{Error: "Resource not found", Code: "NOT_FOUND"})
	}
}

func (f *fakeAPI) seen() (auth, reqID string, upload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth, f.lastReqID, f.lastUpload
}

func (f *fakeAPI) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func writeFake(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
