package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/jrsteele09/movie-ratings/auth"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/utils"
	"github.com/jrsteele09/movie-ratings/movies"
	"github.com/pkg/errors"
)

//go:embed templates/*
var templateFiles embed.FS

const layoutTemplate = "layout.html"

var pageNames = []string{
	"home.html",
	"movie.html",
	"login.html",
	"reset_password.html",
	"admin.html",
	"movie_form.html",
	"loading.html",
	"error.html",
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

var templateFuncs = template.FuncMap{
	"stars": func(filled int) string {
		if filled < 0 {
			filled = 0
		}
		if filled > movies.MaxStars {
			filled = movies.MaxStars
		}
		return strings.Repeat("★", filled) + strings.Repeat("☆", movies.MaxStars-filled)
	},
	"starChoices": func() []int {
		choices := make([]int, 0, movies.MaxStars)
		for i := movies.MinStars; i <= movies.MaxStars; i++ {
			choices = append(choices, i)
		}
		return choices
	},
	"deref": func(s *string) string {
		return utils.Value(s)
	},
	"date": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"eqInt": func(a *int, b int) bool {
		return a != nil && *a == b
	},
}

// renderer holds one parsed template set per page, each with the layout
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New(layoutTemplate).Funcs(templateFuncs).ParseFS(TemplateFilesFS(), layoutTemplate, name)
		if err != nil {
			return nil, errors.Wrapf(err, "[newRenderer] parse %s", name)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// pageData is the model every page renders with
type pageData struct {
	AppName   string
	Title     string
	State     auth.State
	Path      string
	Error     string
	Message   string
	CSRFField template.HTML
	Page      any
}

func (s *Server) newPageData(r *http.Request, title string, page any) pageData {
	return pageData{
		AppName:   s.config.GetAppName(),
		Title:     title,
		State:     viewFrom(r).state,
		Path:      r.URL.Path,
		Error:     r.URL.Query().Get("error"),
		Message:   r.URL.Query().Get("message"),
		CSRFField: csrf.TemplateField(r),
		Page:      page,
	}
}

// render executes a page into a buffer first so template failures never
// produce a half written response
func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	tmpl, ok := s.pages.pages[name]
	if !ok {
		s.logger.Error().Str("template", name).Msg("unknown template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorPage struct {
	Status    int
	Retryable bool
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	data := s.newPageData(r, http.StatusText(status), errorPage{
		Status:    status,
		Retryable: apperrors.Kind(err) == apperrors.KindTransport,
	})
	data.Error = apperrors.UserMessage(err)
	s.render(w, status, "error.html", data)
}

func (s *Server) renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	s.render(w, http.StatusServiceUnavailable, "loading.html", s.newPageData(r, "Loading", nil))
}
