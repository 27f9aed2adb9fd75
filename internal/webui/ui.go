package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/imaging"
	"github.com/dermascan/dermascan/internal/middleware"
)

// Cookie names.
const (
	SessionCookie = "dermascan_session"
	UserCookie    = "dermascan_user"
)

// API is the part of the JSON API the UI consumes. *APIClient implements it.
type API interface {
	Register(ctx context.Context, username, password string) (*dto.UserResponse, error)
	Login(ctx context.Context, username, password string) (*dto.LoginResponse, error)
	Analyze(ctx context.Context, token, name string, data []byte) (*dto.AnalysisResponse, error)
	History(ctx context.Context, token string, limit int) (*dto.HistoryResponse, error)
}

// Options configures the UI.
type Options struct {
	API            API
	Logger         *slog.Logger
	MaxUploadBytes int64
	// SecureCookies sets the Secure attribute; off for plain-HTTP development.
	SecureCookies bool
}

// UI serves the HTML pages.
type UI struct {
	api       API
	logger    *slog.Logger
	maxUpload int64
	secure    bool
	pages     *renderer
}

// New creates the UI and parses its templates.
func New(opts Options) (*UI, error) {
	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = imaging.DefaultMaxBytes
	}
	return &UI{
		api:       opts.API,
		logger:    opts.Logger,
		maxUpload: opts.MaxUploadBytes,
		secure:    opts.SecureCookies,
		pages:     pages,
	}, nil
}

// Mount registers the page routes on r.
func (u *UI) Mount(r chi.Router) {
	r.Get("/", u.Index)
	r.Post("/analyze", u.Analyze)
	r.Get("/login", u.LoginForm)
	r.Post("/login", u.Login)
	r.Get("/register", u.RegisterForm)
	r.Post("/register", u.Register)
	r.Post("/logout", u.Logout)
	r.Get("/history", u.History)
	r.Get("/health", u.Health)
	r.NotFound(u.NotFound)
	r.MethodNotAllowed(u.MethodNotAllowed)
}

// Health is the UI liveness endpoint. It does not call the API.
func (u *UI) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(dto.HealthResponse{Status: "healthy"})
}

// NotFound handles unknown paths.
func (u *UI) NotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Page not found", http.StatusNotFound)
}

// MethodNotAllowed handles known paths hit with the wrong method.
func (u *UI) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// Index shows the upload form.
func (u *UI) Index(w http.ResponseWriter, r *http.Request) {
	u.render(w, r, http.StatusOK, "index", u.newPage(r))
}

// Analyze forwards an uploaded image to the API and shows the result.
func (u *UI) Analyze(w http.ResponseWriter, r *http.Request) {
	data := u.newPage(r)

	name, image, err := u.readUpload(r)
	if err != nil {
		data.Error = err.Error()
		u.render(w, r, http.StatusBadRequest, "index", data)
		return
	}

	result, err := u.api.Analyze(r.Context(), sessionToken(r), name, image)
	if err != nil {
		if IsUnauthorized(err) {
			u.clearSession(w)
			data.Username = ""
			data.Error = "Your session has expired. Please log in again."
			u.render(w, r, http.StatusUnauthorized, "index", data)
			return
		}
		data.Error = u.apiMessage(r, "analyze", err)
		u.render(w, r, statusFor(err), "index", data)
		return
	}

	data.Result = result
	u.render(w, r, http.StatusOK, "index", data)
}

// LoginForm shows the login page.
func (u *UI) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := u.newPage(r)
	if r.URL.Query().Get("registered") == "1" {
		data.Notice = "Account created. Please log in."
	}
	u.render(w, r, http.StatusOK, "login", data)
}

// Login signs the user in and stores the token in a cookie.
func (u *UI) Login(w http.ResponseWriter, r *http.Request) {
	data := u.newPage(r)
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	data.Form.Username = username

	if username == "" || password == "" {
		data.Error = "Username and password are required."
		u.render(w, r, http.StatusBadRequest, "login", data)
		return
	}

	res, err := u.api.Login(r.Context(), username, password)
	if err != nil {
		if IsUnauthorized(err) {
			data.Error = "Invalid username or password."
		} else {
			data.Error = u.apiMessage(r, "login", err)
		}
		u.render(w, r, statusFor(err), "login", data)
		return
	}

	u.setSession(w, res)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RegisterForm shows the registration page.
func (u *UI) RegisterForm(w http.ResponseWriter, r *http.Request) {
	u.render(w, r, http.StatusOK, "register", u.newPage(r))
}

// Register creates an account, then sends the user to the login page.
func (u *UI) Register(w http.ResponseWriter, r *http.Request) {
	data := u.newPage(r)
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	confirm := r.PostFormValue("confirm")
	data.Form.Username = username

	if msg := validateRegistration(username, password, confirm); msg != "" {
		data.Error = msg
		u.render(w, r, http.StatusBadRequest, "register", data)
		return
	}

	if _, err := u.api.Register(r.Context(), username, password); err != nil {
		data.Error = u.apiMessage(r, "register", err)
		u.render(w, r, statusFor(err), "register", data)
		return
	}

	http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
}

// Logout drops the session cookies. Tokens are stateless, so nothing is sent to the API.
func (u *UI) Logout(w http.ResponseWriter, r *http.Request) {
	u.clearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// History lists the signed-in user's analyses.
func (u *UI) History(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data := u.newPage(r)
	res, err := u.api.History(r.Context(), token, 0)
	if err != nil {
		if IsUnauthorized(err) {
			u.clearSession(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		data.Error = u.apiMessage(r, "history", err)
		u.render(w, r, statusFor(err), "history", data)
		return
	}

	data.History = res.Items
	data.HistoryTotal = res.Total
	u.render(w, r, http.StatusOK, "history", data)
}

func validateRegistration(username, password, confirm string) string {
	switch {
	case utf8.RuneCountInString(username) < MinUsernameLength:
		return fmt.Sprintf("Username must be at least %d characters.", MinUsernameLength)
	case strings.ContainsAny(username, " \t\r\n"):
		return "Username must not contain spaces."
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength)
	case password != confirm:
		return "Passwords do not match."
	}
	return ""
}

// formError is a message shown to the user as is.
type formError string

func (e formError) Error() string { return string(e) }

const errNoFile = formError("Please choose an image to upload.")

func (u *UI) readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(u.maxUpload); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return "", nil, u.tooLarge()
		}
		return "", nil, errNoFile
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		return "", nil, errNoFile
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	if !slices.Contains(imaging.AcceptedExtensions(), ext) {
		return "", nil, formError("Unsupported file type. Accepted: " + strings.Join(imaging.AcceptedExtensions(), ", ") + ".")
	}

	data, err := io.ReadAll(io.LimitReader(file, u.maxUpload+1))
	if err != nil {
		return "", nil, errNoFile
	}
	if int64(len(data)) > u.maxUpload {
		return "", nil, u.tooLarge()
	}
	if len(data) == 0 {
		return "", nil, errNoFile
	}
	return header.Filename, data, nil
}

func (u *UI) tooLarge() error {
	return formError(fmt.Sprintf("Image is too large. The limit is %d MB.", u.maxUpload>>20))
}

// apiMessage turns an API failure into text for the page and logs
// anything that is not the user's fault.
func (u *UI) apiMessage(r *http.Request, op string, err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return apiErr.Error()
	}

	u.logger.Error("api call failed",
		slog.String("op", op),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("error", err.Error()),
	)
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "The analysis service is unavailable. Please try again later."
}

func statusFor(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError:
		return http.StatusBadGateway
	case errors.As(err, &apiErr):
		return apiErr.Status
	default:
		return http.StatusServiceUnavailable
	}
}

func (u *UI) newPage(r *http.Request) *pageData {
	data := &pageData{MaxUploadMB: u.maxUpload >> 20}
	if sessionToken(r) != "" {
		if c, err := r.Cookie(UserCookie); err == nil {
			data.Username, _ = url.QueryUnescape(c.Value)
		}
	}
	return data
}

func (u *UI) render(w http.ResponseWriter, r *http.Request, status int, page string, data *pageData) {
	if err := u.pages.render(w, status, page, data); err != nil {
		u.logger.Error("render failed",
			slog.String("page", page),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (u *UI) setSession(w http.ResponseWriter, res *dto.LoginResponse) {
	maxAge := int(time.Until(res.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, u.cookie(SessionCookie, res.Token, maxAge))
	http.SetCookie(w, u.cookie(UserCookie, url.QueryEscape(res.User.Username), maxAge))
}

func (u *UI) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, u.cookie(SessionCookie, "", -1))
	http.SetCookie(w, u.cookie(UserCookie, "", -1))
}

func (u *UI) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   u.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
