// Package sitemap expands sitemap documents into page URLs and builds the
// staging check sheet from them.
package sitemap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// document matches both <urlset> and <sitemapindex> roots. Tags without a
// namespace match elements in any namespace.
type document struct {
	XMLName  xml.Name
	URLs     []entry `xml:"url"`
	Sitemaps []entry `xml:"sitemap"`
}

type entry struct {
	Loc string `xml:"loc"`
}

// Resolver fetches sitemaps through a webclient and flattens them.
type Resolver struct {
	cfg    Config
	wc     webclient.WebClient
	logger logging.Logger
}

func NewResolver(cfg Config, wc webclient.WebClient, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Resolver{
		cfg:    cfg,
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "sitemap"}),
	}
}

type walk struct {
	visited map[string]bool
	found   map[string]struct{}
}

// Resolve returns the sorted, deduplicated page URLs reachable from input.
// input is a sitemap URL (ending in .xml) or a site root. For a site root,
// <root>/sitemap.xml is tried first, then robots.txt Sitemap lines, then
// <link rel="sitemap"> on the home page. Fetch and parse failures of single
// documents are skipped; the result may be empty.
func (r *Resolver) Resolve(ctx context.Context, input string) ([]string, error) {
	start, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	w := &walk{visited: map[string]bool{}, found: map[string]struct{}{}}

	if strings.HasSuffix(strings.ToLower(start.Path), ".xml") {
		r.expand(ctx, w, start.String(), 0)
		return w.sorted(), nil
	}

	r.expand(ctx, w, strings.TrimRight(start.String(), "/")+"/sitemap.xml", 0)
	if len(w.found) > 0 {
		return w.sorted(), nil
	}

	for _, sm := range r.discover(ctx, start) {
		r.expand(ctx, w, sm, 0)
	}
	return w.sorted(), nil
}

func normalizeInput(input string) (*url.URL, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, fmt.Errorf("empty site url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse site url %q: %w", input, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("site url %q has no host", input)
	}
	return u, nil
}

func (w *walk) sorted() []string {
	out := make([]string, 0, len(w.found))
	for u := range w.found {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// expand walks one sitemap document depth-first.
func (r *Resolver) expand(ctx context.Context, w *walk, loc string, depth int) {
	if w.visited[loc] {
		r.logger.Debug("sitemap already visited", logging.Field{Key: "url", Value: loc})
		return
	}
	w.visited[loc] = true

	if depth > r.cfg.MaxDepth {
		r.logger.Warn("sitemap nesting too deep, skipping",
			logging.Field{Key: "url", Value: loc},
			logging.Field{Key: "depth", Value: depth})
		return
	}

	body, ok := r.fetch(ctx, loc)
	if !ok {
		return
	}

	var doc document
	if err := xml.Unmarshal(body, &doc); err != nil {
		r.logger.Warn("malformed sitemap",
			logging.Field{Key: "url", Value: loc},
			logging.Field{Key: "error", Value: err})
		return
	}

	switch doc.XMLName.Local {
	case "sitemapindex":
		for _, child := range doc.Sitemaps {
			if c := strings.TrimSpace(child.Loc); c != "" {
				r.expand(ctx, w, c, depth+1)
			}
		}
	case "urlset":
		for _, u := range doc.URLs {
			if l := strings.TrimSpace(u.Loc); l != "" {
				w.found[l] = struct{}{}
			}
		}
	default:
		r.logger.Warn("unrecognized sitemap root",
			logging.Field{Key: "url", Value: loc},
			logging.Field{Key: "root", Value: doc.XMLName.Local})
	}
}

// fetch returns the body of a 2xx response.
func (r *Resolver) fetch(ctx context.Context, target string) ([]byte, bool) {
	reqCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	headers := http.Header{}
	if r.cfg.UserAgent != "" {
		headers.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.wc.Do(reqCtx, &webclient.Request{
		Method:  http.MethodGet,
		URL:     target,
		Headers: headers,
		Options: map[string]string{webclient.OptionMaxBodyBytes: strconv.FormatInt(r.cfg.MaxBodyBytes, 10)},
	})
	if err != nil {
		r.logger.Warn("sitemap fetch failed",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "error", Value: err})
		return nil, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Debug("sitemap fetch returned non-success status",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return nil, false
	}
	if resp.Truncated {
		r.logger.Warn("sitemap exceeds size limit, skipping",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "max_body_bytes", Value: r.cfg.MaxBodyBytes})
		return nil, false
	}
	return resp.Body, true
}

// discover looks for sitemap locations advertised by the site itself.
func (r *Resolver) discover(ctx context.Context, site *url.URL) []string {
	root := &url.URL{Scheme: site.Scheme, Host: site.Host, Path: "/"}

	var out []string
	if body, ok := r.fetch(ctx, root.ResolveReference(&url.URL{Path: "/robots.txt"}).String()); ok {
		out = append(out, robotsSitemaps(body)...)
	}
	if len(out) > 0 {
		return out
	}

	body, ok := r.fetch(ctx, site.String())
	if !ok {
		return nil
	}
	return linkedSitemaps(body, site)
}

func robotsSitemaps(body []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if v := strings.TrimSpace(value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func linkedSitemaps(body []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !slices.Contains(strings.Fields(strings.ToLower(rel)), "sitemap") {
			return
		}
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		out = append(out, base.ResolveReference(ref).String())
	})
	return out
}
