package main

import (
	"go/parser"
	"go/token"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/middleware"
	"github.com/dermascan/dermascan/internal/webui"
)

func TestRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ui, err := webui.New(webui.Options{
		API:            webui.NewAPIClient("http://127.0.0.1:1", time.Second),
		Logger:         logger,
		MaxUploadBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("webui.New: %v", err)
	}
	cfg := &config.WebConfig{AppEnv: "development", MaxUploadBytes: 1 << 20}
	r := setupRouter(ui, cfg, logger)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got != middleware.PageContentSecurityPolicy {
		t.Errorf("CSP = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /missing status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/history", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /history status = %d", rec.Code)
	}

	// API down: the login page reports it instead of failing.
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=secret123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST /login with API down status = %d, want 503", rec.Code)
	}
}

// The UI binary talks to the API over HTTP and must not link the storage stack.
func TestWebBinary_DoesNotLinkStorage(t *testing.T) {
	const module = "github.com/dermascan/dermascan/"
	forbidden := []string{
		"modernc.org/sqlite",
		"github.com/pressly/goose",
		"github.com/redis/go-redis",
		"github.com/aws/aws-sdk-go-v2",
	}

	root := filepath.Join("..", "..")
	seen := map[string]bool{}
	queue := []string{"cmd/web"}
	for len(queue) > 0 {
		pkg := queue[0]
		queue = queue[1:]
		if seen[pkg] {
			continue
		}
		seen[pkg] = true

		for _, imp := range packageImports(t, filepath.Join(root, filepath.FromSlash(pkg))) {
			for _, f := range forbidden {
				if strings.HasPrefix(imp, f) {
					t.Errorf("%s imports %s", pkg, imp)
				}
			}
			if rest, ok := strings.CutPrefix(imp, module); ok {
				queue = append(queue, rest)
			}
		}
	}
	if seen["internal/repository"] || seen["internal/service"] {
		t.Errorf("cmd/web reaches the API packages: %v", seen)
	}
}

func packageImports(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	var out []string
	fset := token.NewFileSet()
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				t.Fatalf("bad import in %s: %v", name, err)
			}
			out = append(out, path)
		}
	}
	return out
}
