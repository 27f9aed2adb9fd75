// Package webui serves the server-rendered pages of DermaScan. It holds no
// state of its own and reaches the data only through the JSON API.
package webui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/middleware"
)

// ErrUnavailable is returned when the API cannot be reached.
var ErrUnavailable = errors.New("analysis service is unavailable")

// APIError is a non-2xx reply from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// APIClient calls the DermaScan JSON API.
type APIClient struct {
	http *resty.Client
}

// NewAPIClient creates a client for the API at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "dermascan-web")
	return &APIClient{http: c}
}

// Register creates an account.
func (c *APIClient) Register(ctx context.Context, username, password string) (*dto.UserResponse, error) {
	var out dto.UserResponse
	resp, err := c.request(ctx).
		SetBody(dto.CredentialsRequest{Username: username, Password: password}).
		SetResult(&out).
		Post("/auth/register")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a session token.
func (c *APIClient) Login(ctx context.Context, username, password string) (*dto.LoginResponse, error) {
	var out dto.LoginResponse
	resp, err := c.request(ctx).
		SetBody(dto.CredentialsRequest{Username: username, Password: password}).
		SetResult(&out).
		Post("/auth/login")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze uploads an image. An empty token analyzes anonymously.
func (c *APIClient) Analyze(ctx context.Context, token, name string, data []byte) (*dto.AnalysisResponse, error) {
	var out dto.AnalysisResponse
	req := c.request(ctx).
		SetFileReader("image", name, bytes.NewReader(data)).
		SetResult(&out)
	if token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Post("/analyze")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists the session user's analyses. limit 0 uses the API default.
func (c *APIClient) History(ctx context.Context, token string, limit int) (*dto.HistoryResponse, error) {
	var out dto.HistoryResponse
	req := c.request(ctx).
		SetAuthToken(token).
		SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	resp, err := req.Get("/history")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) request(ctx context.Context) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetError(&dto.ErrorResponse{})
	if id := middleware.GetRequestID(ctx); id != "" {
		req.SetHeader(middleware.RequestIDHeader, id)
	}
	return req
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*dto.ErrorResponse); ok && body != nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	return apiErr
}
