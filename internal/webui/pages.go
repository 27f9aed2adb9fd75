package webui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/imaging"
	"github.com/dermascan/dermascan/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Form limits mirrored from the API so users get feedback before a round trip.
const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

var pageNames = []string{"index", "login", "register", "history"}

var funcs = template.FuncMap{
	"percent": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"formatDate": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04")
	},
}

// credentialsForm echoes submitted values back into a form. Passwords are never echoed.
type credentialsForm struct {
	Username string
}

type pageData struct {
	Username   string
	Notice     string
	Error      string
	Disclaimer string

	// index
	Accept      string
	MaxUploadMB int64
	Result      *dto.AnalysisResponse

	// history
	History      []dto.HistoryItem
	HistoryTotal int

	// login, register
	Form        credentialsForm
	MinUsername int
	MinPassword int
}

type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render executes a page into a buffer first so a template error never
// produces a half-written response.
func (r *renderer) render(w http.ResponseWriter, status int, page string, data *pageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	data.Disclaimer = model.Disclaimer
	data.Accept = strings.Join(imaging.AcceptedExtensions(), ",")
	data.MinUsername = MinUsernameLength
	data.MinPassword = MinPasswordLength

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
