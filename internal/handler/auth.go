package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/service"
)

// AccountService is the account surface used by AuthHandler.
type AccountService interface {
	Register(ctx context.Context, in service.Credentials) (*model.User, error)
	Login(ctx context.Context, in service.Credentials) (*service.LoginResult, error)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	svc    AccountService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register creates an account.
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Register(r.Context(), service.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login verifies credentials and returns a session token.
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Login(r.Context(), service.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      toUserResponse(res.User),
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (dto.CredentialsRequest, bool) {
	var req dto.CredentialsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return req, false
	}
	return req, true
}
