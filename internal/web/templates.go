package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/justestif/go-spotify-recommender/internal/db"
)

// Templates manages HTML template rendering.
type Templates struct {
	templates map[string]*template.Template
	funcs     template.FuncMap
}

// NewTemplates creates a new template manager by loading templates from the given filesystem.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		templates: make(map[string]*template.Template),
		funcs:     defaultFuncs(),
	}

	if err := t.load(templatesFS); err != nil {
		return nil, err
	}

	return t, nil
}

// Render renders a page template with the given data.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.templates[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}

	// Execute the "base" template which includes the page content
	return tmpl.ExecuteTemplate(w, "base", data)
}

// load parses every page together with all layouts and partials.
func (t *Templates) load(templatesFS fs.FS) error {
	layouts, err := fs.Glob(templatesFS, "layouts/*.html")
	if err != nil {
		return fmt.Errorf("finding layouts: %w", err)
	}

	partials, err := fs.Glob(templatesFS, "partials/*.html")
	if err != nil {
		return fmt.Errorf("finding partials: %w", err)
	}

	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return fmt.Errorf("finding pages: %w", err)
	}

	commonFiles := append(layouts, partials...)

	for _, page := range pages {
		name := filepath.Base(page)
		name = name[:len(name)-len(".html")]

		files := append([]string{page}, commonFiles...)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		t.templates[name] = tmpl
	}

	return nil
}

// defaultFuncs returns the default template functions.
func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// formatPlayedAt formats a play time as "Jan 2, 2006 15:04"
		"formatPlayedAt": func(t time.Time) string {
			return t.Local().Format("Jan 2, 2006 15:04")
		},

		// formatDuration formats milliseconds as m:ss
		"formatDuration": func(ms int) string {
			d := time.Duration(ms) * time.Millisecond
			return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
		},

		// percent renders a [0,1] score as a whole percentage
		"percent": func(score float64) string {
			return fmt.Sprintf("%.0f%%", score*100)
		},

		// add adds two integers (for 1-based indexing in loops)
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	User        *UserData
	CurrentPath string
}

// UserData contains authenticated user information.
type UserData struct {
	ID   string
	Name string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Authenticated bool
}

// DashboardPageData contains data for the dashboard template. Profile is
// nil when none has been stored.
type DashboardPageData struct {
	PageData
	Profile *db.Profile
}

// RecommendationsPageData contains data for the recommendations page.
type RecommendationsPageData struct {
	PageData
	Recommendations []db.Recommendation
}

// HistoryPageData contains data for the listening history page.
type HistoryPageData struct {
	PageData
	History []db.HistoryEntry
}

// ErrorPageData contains data for the error page.
type ErrorPageData struct {
	PageData
	Error string
}
