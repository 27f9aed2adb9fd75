package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dermascan/dermascan/internal/auth"
	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/service"
)

// imageField is the multipart form field carrying the upload.
const imageField = "image"

// AnalysisService is the analysis surface used by AnalysisHandler.
type AnalysisService interface {
	Analyze(ctx context.Context, in service.AnalyzeInput) (*service.AnalysisResult, error)
	History(ctx context.Context, session *model.Session, limit int) (*service.HistoryPage, error)
}

// AnalysisHandler handles image analysis and history listing.
type AnalysisHandler struct {
	svc           AnalysisService
	maxImageBytes int64
	logger        *slog.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(svc AnalysisService, maxImageBytes int64, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, maxImageBytes: maxImageBytes, logger: logger}
}

// Analyze accepts an image as multipart form data (field "image") or as
// JSON {"image_data": base64}. The caller's session, if any, decides
// whether the result is saved.
//
// POST /analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readImage(r)
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	res, err := h.svc.Analyze(r.Context(), service.AnalyzeInput{
		ImageName: name,
		Data:      data,
		Session:   auth.SessionFromContext(r.Context()),
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisResponse(res))
}

// History lists the session user's past analyses.
//
// GET /history?limit=20
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > service.MaxHistoryLimit {
			writeError(w, http.StatusBadRequest, CodeValidation,
				fmt.Sprintf("limit must be between 1 and %d", service.MaxHistoryLimit))
			return
		}
		limit = n
	}

	page, err := h.svc.History(r.Context(), auth.SessionFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toHistoryResponse(page))
}

var (
	errNoImage       = errors.New("no image provided")
	errBadEncoding   = errors.New("image_data is not valid base64")
	errBadBody       = errors.New("invalid request body")
	errUnsupportedCT = errors.New("content type must be multipart/form-data or application/json")
)

func (h *AnalysisHandler) readImage(r *http.Request) (string, []byte, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "multipart/form-data":
		return h.readMultipart(r)
	case "application/json", "":
		return h.readJSON(r)
	default:
		return "", nil, errUnsupportedCT
	}
}

func (h *AnalysisHandler) readMultipart(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(h.maxImageBytes); err != nil {
		return "", nil, err
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(imageField)
	if err != nil {
		return "", nil, errNoImage
	}
	defer file.Close()

	// One byte past the limit is enough for the size check downstream.
	data, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func (h *AnalysisHandler) readJSON(r *http.Request) (string, []byte, error) {
	var req dto.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, err
		}
		return "", nil, errBadBody
	}

	encoded := strings.TrimSpace(req.ImageData)
	if encoded == "" {
		return "", nil, errNoImage
	}
	// Accept data URLs as produced by browsers.
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return "", nil, errBadEncoding
		}
	}
	return req.ImageName, data, nil
}

func (h *AnalysisHandler) writeReadError(w http.ResponseWriter, err error) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe), strings.Contains(err.Error(), "request body too large"):
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
	case errors.Is(err, errNoImage), errors.Is(err, errBadEncoding), errors.Is(err, errBadBody):
		writeError(w, http.StatusBadRequest, CodeValidation, detail(err, errBadBody))
	case errors.Is(err, errUnsupportedCT):
		writeError(w, http.StatusUnsupportedMediaType, CodeValidation, detail(err, errBadBody))
	default:
		writeError(w, http.StatusBadRequest, CodeValidation, "Could not read upload")
	}
}
