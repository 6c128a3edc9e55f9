package demoserver

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DemoServer is a staging site stand-in whose page statuses can be switched
// at runtime to simulate pages being built or removed.
type DemoServer struct {
	cfg      Config
	pages    map[string]PageDefinition
	statuses map[string]int // path -> current status
	mu       sync.RWMutex
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.SlowDelay <= 0 {
		cfg.SlowDelay = DefaultConfig().SlowDelay
	}
	pageMap := make(map[string]PageDefinition)
	statuses := make(map[string]int)
	for _, p := range GetAllPages() {
		pageMap[p.Path] = p
		statuses[p.Path] = p.Status
	}
	return &DemoServer{
		cfg:      cfg,
		pages:    pageMap,
		statuses: statuses,
	}
}

// Handler returns the demo site's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for path := range s.pages {
		pattern := "GET " + path
		if path == "/" {
			pattern = "GET /{$}"
		}
		mux.HandleFunc(pattern, s.pageHandler(path))
	}

	mux.HandleFunc("GET /robots.txt", s.robotsHandler)
	mux.HandleFunc("GET /sitemap.xml", s.sitemapIndexHandler)
	mux.HandleFunc("GET /sitemaps/{name}", s.childSitemapHandler)

	// Control panel for status switching
	mux.HandleFunc("GET /demo/control", s.controlPanelHandler)
	mux.HandleFunc("POST /demo/set-status", s.setStatusHandler)
	mux.HandleFunc("GET /demo/get-statuses", s.getStatusesHandler)
	mux.HandleFunc("POST /demo/reset", s.resetStatusesHandler)

	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *DemoServer) status(path string) (PageDefinition, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages[path], s.statuses[path]
}

// pageHandler returns a handler for a specific page path.
func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, status := s.status(path)

		switch {
		case status == StatusSlow:
			select {
			case <-time.After(s.cfg.SlowDelay):
			case <-r.Context().Done():
				return
			}
			status = http.StatusOK
		case status >= 300 && status < 400 && page.Location != "":
			http.Redirect(w, r, page.Location, status)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
			template.HTMLEscapeString(path), template.HTMLEscapeString(path), template.HTMLEscapeString(page.Description))
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *DemoServer) robotsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "User-agent: *\nDisallow: /demo/\nSitemap: %s/sitemap.xml\n", baseURL(r))
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(v)
}

func (s *DemoServer) sitemapIndexHandler(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	writeXML(w, sitemapIndex{Sitemaps: []sitemapLoc{
		{Loc: base + "/sitemaps/" + SitemapPages + ".xml"},
		{Loc: base + "/sitemaps/" + SitemapBlog + ".xml"},
	}})
}

func (s *DemoServer) childSitemapHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name != SitemapPages+".xml" && name != SitemapBlog+".xml" {
		http.NotFound(w, r)
		return
	}
	name = name[:len(name)-len(".xml")]

	base := baseURL(r)
	var set urlSet
	for path, p := range s.pages {
		if p.Sitemap == name {
			set.URLs = append(set.URLs, sitemapLoc{Loc: base + path})
		}
	}
	slices.SortFunc(set.URLs, func(a, b sitemapLoc) int { return strings.Compare(a.Loc, b.Loc) })
	writeXML(w, set)
}

// PageInfo is the control panel's view of one page.
type PageInfo struct {
	Path          string `json:"path"`
	Description   string `json:"description"`
	CurrentStatus int    `json:"current_status"`
	InitialStatus int    `json:"initial_status"`
}

func (s *DemoServer) pageInfos() []PageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]PageInfo, 0, len(s.pages))
	for path, p := range s.pages {
		infos = append(infos, PageInfo{
			Path:          path,
			Description:   p.Description,
			CurrentStatus: s.statuses[path],
			InitialStatus: p.Status,
		})
	}
	slices.SortFunc(infos, func(a, b PageInfo) int { return strings.Compare(a.Path, b.Path) })
	return infos
}

// controlPanelHandler serves the control panel for status management.
func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	tmpl := template.Must(template.New("control").Parse(controlPanelHTML))
	w.Header().Set("Content-Type", "text/html")
	_ = tmpl.Execute(w, s.pageInfos())
}

// setStatusHandler sets the status for a specific page.
func (s *DemoServer) setStatusHandler(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	status, err := strconv.Atoi(r.FormValue("status"))
	if err != nil || (status != StatusSlow && (status < 100 || status > 599)) {
		http.Error(w, "Invalid status code", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.pages[path]
	if ok {
		s.statuses[path] = status
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Unknown page", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"path":    path,
		"status":  status,
	})
}

// getStatusesHandler returns the current status of all pages.
func (s *DemoServer) getStatusesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.pageInfos())
}

// resetStatusesHandler restores every page's initial status.
func (s *DemoServer) resetStatusesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for path, p := range s.pages {
		s.statuses[path] = p.Status
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "All statuses reset",
	})
}

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Staging Site</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 960px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; background: white; }
        th, td { padding: 8px 12px; border-bottom: 1px solid #e9ecef; text-align: left; }
        .status-btn { padding: 4px 10px; border: none; border-radius: 4px; cursor: pointer; background: #e9ecef; }
        .status-btn.active { background: #007bff; color: white; }
        .info-box { background: #e7f3ff; padding: 15px; border-radius: 8px; margin-bottom: 20px; border-left: 4px solid #007bff; }
    </style>
</head>
<body>
    <h1>Demo Staging Site</h1>

    <div class="info-box">
        Switch page statuses to simulate staging pages being built or removed, then run
        <code>stagecheck generate</code> or <code>stagecheck check</code> against this host.
        Status -1 is a slow page.
    </div>

    <button onclick="post('/demo/reset', '')">Reset all</button>

    <table>
        <tr><th>Path</th><th>Description</th><th>Status</th></tr>
        {{range .}}
        <tr>
            <td><a href="{{.Path}}" target="_blank">{{.Path}}</a></td>
            <td>{{.Description}}</td>
            <td>
            {{$cur := .CurrentStatus}}{{$path := .Path}}
            <button class="status-btn {{if eq $cur 200}}active{{end}}" onclick="setStatus('{{$path}}', 200)">200</button>
            <button class="status-btn {{if eq $cur 404}}active{{end}}" onclick="setStatus('{{$path}}', 404)">404</button>
            <button class="status-btn {{if eq $cur 500}}active{{end}}" onclick="setStatus('{{$path}}', 500)">500</button>
            <button class="status-btn {{if eq $cur -1}}active{{end}}" onclick="setStatus('{{$path}}', -1)">slow</button>
            <span>(now {{$cur}})</span>
            </td>
        </tr>
        {{end}}
    </table>

    <script>
        function post(url, body) {
            fetch(url, {
                method: 'POST',
                headers: {'Content-Type': 'application/x-www-form-urlencoded'},
                body: body
            }).then(() => location.reload());
        }

        function setStatus(path, status) {
            post('/demo/set-status', 'path=' + encodeURIComponent(path) + '&status=' + status);
        }
    </script>
</body>
</html>`
