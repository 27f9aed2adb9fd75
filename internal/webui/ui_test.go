package webui

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestUI(t *testing.T) (*fakeAPI, http.Handler) {
	t.Helper()
	api, client := newFakeAPI(t)
	ui, err := New(Options{API: client, Logger: quietLogger(), MaxUploadBytes: 1 << 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	ui.Mount(r)
	return api, r
}

func postForm(h http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, h http.Handler, filename string, data []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookies(token, username string) []*http.Cookie {
	return []*http.Cookie{
		{Name: SessionCookie, Value: token},
		{Name: UserCookie, Value: username},
	}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestUI_Index(t *testing.T) {
	_, h := newTestUI(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Log in", "informational purposes only", ".png,.jpg,.jpeg,.webp"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestUI_IndexSignedIn(t *testing.T) {
	_, h := newTestUI(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range sessionCookies(validToken, "alice") {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "Signed in as <strong>alice</strong>") {
		t.Error("expected signed-in header")
	}
}

func TestUI_Register(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantText   string
	}{
		{
			name:       "passwords differ",
			form:       url.Values{"username": {"bob"}, "password": {"secret123"}, "confirm": {"secret124"}},
			wantStatus: http.StatusBadRequest,
			wantText:   "Passwords do not match.",
		},
		{
			name:       "short username",
			form:       url.Values{"username": {"bo"}, "password": {"secret123"}, "confirm": {"secret123"}},
			wantStatus: http.StatusBadRequest,
			wantText:   "at least 3 characters",
		},
		{
			name:       "short password",
			form:       url.Values{"username": {"bob"}, "password": {"12345"}, "confirm": {"12345"}},
			wantStatus: http.StatusBadRequest,
			wantText:   "at least 6 characters",
		},
		{
			name:       "duplicate",
			form:       url.Values{"username": {"alice"}, "password": {"secret123"}, "confirm": {"secret123"}},
			wantStatus: http.StatusConflict,
			wantText:   "Username already exists",
		},
		{
			name:       "created",
			form:       url.Values{"username": {"bob"}, "password": {"secret123"}, "confirm": {"secret123"}},
			wantStatus: http.StatusSeeOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestUI(t)
			rec := postForm(h, "/register", tt.form)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantText != "" && !strings.Contains(rec.Body.String(), tt.wantText) {
				t.Errorf("body missing %q", tt.wantText)
			}
			if tt.wantStatus == http.StatusSeeOther && rec.Header().Get("Location") != "/login?registered=1" {
				t.Errorf("Location = %q", rec.Header().Get("Location"))
			}
			if strings.Contains(rec.Body.String(), "secret123") {
				t.Error("password echoed back into the page")
			}
		})
	}
}

func TestUI_Login(t *testing.T) {
	_, h := newTestUI(t)

	rec := postForm(h, "/login", url.Values{"username": {"alice"}, "password": {"secret123"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}

	c := findCookie(rec, SessionCookie)
	if c == nil || c.Value != validToken {
		t.Fatalf("session cookie = %+v", c)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.MaxAge <= 0 {
		t.Errorf("cookie attributes: %+v", c)
	}

	rec = postForm(h, "/login", url.Values{"username": {"alice"}, "password": {"nope-nope"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid username or password.") {
		t.Error("expected credential error")
	}
	if findCookie(rec, SessionCookie) != nil {
		t.Error("failed login must not set a cookie")
	}
}

func TestUI_Analyze(t *testing.T) {
	_, h := newTestUI(t)

	rec := upload(t, h, "arm.png", []byte("png-bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Eczema", "75.0%", "Moisturize daily", "Signs of infection"} {
		if !strings.Contains(body, want) {
			t.Errorf("result missing %q", want)
		}
	}
	if strings.Contains(body, "Saved to your history.") {
		t.Error("anonymous result should not be saved")
	}

	rec = upload(t, h, "arm.png", []byte("png-bytes"), sessionCookies(validToken, "alice")...)
	if !strings.Contains(rec.Body.String(), "Saved to your history.") {
		t.Error("signed-in result should be saved")
	}
}

func TestUI_AnalyzeRejectsExtension(t *testing.T) {
	api, h := newTestUI(t)

	rec := upload(t, h, "notes.txt", []byte("hello"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Unsupported file type") {
		t.Error("expected file type error")
	}
	if _, _, data := api.seen(); data != nil {
		t.Error("API should not be called")
	}
}

func TestUI_AnalyzeExpiredSession(t *testing.T) {
	_, h := newTestUI(t)

	rec := upload(t, h, "arm.png", []byte("png-bytes"), sessionCookies("stale-token", "alice")...)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if c := findCookie(rec, SessionCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie not cleared: %+v", c)
	}
}

func TestUI_History(t *testing.T) {
	_, h := newTestUI(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous history: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	for _, c := range sessionCookies(validToken, "alice") {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"Psoriasis", "70.0%", "arm.png", "Topical steroid", "Showing 1 of 4"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("history missing %q", want)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/history", nil)
	for _, c := range sessionCookies("stale-token", "alice") {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther || findCookie(rec, SessionCookie) == nil {
		t.Error("stale session should redirect and clear the cookie")
	}
}

func TestUI_Logout(t *testing.T) {
	_, h := newTestUI(t)

	rec := postForm(h, "/logout", nil, sessionCookies(validToken, "alice")...)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, name := range []string{SessionCookie, UserCookie} {
		if c := findCookie(rec, name); c == nil || c.MaxAge >= 0 {
			t.Errorf("%s not cleared", name)
		}
	}
}

func TestUI_APIFailure(t *testing.T) {
	api, h := newTestUI(t)
	api.setFail(true)

	rec := postForm(h, "/login", url.Values{"username": {"alice"}, "password": {"secret123"}})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Database error") {
		t.Error("expected API message on page")
	}
}

func TestValidateRegistration(t *testing.T) {
	if msg := validateRegistration("alice", "secret123", "secret123"); msg != "" {
		t.Errorf("valid input rejected: %s", msg)
	}
	if msg := validateRegistration("al ice", "secret123", "secret123"); msg == "" {
		t.Error("username with space accepted")
	}
}
