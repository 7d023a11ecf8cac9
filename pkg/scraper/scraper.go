// Package scraper fetches course pages from a site, following same-host
// links up to a fixed depth.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
	Logger            *slog.Logger
}

// Page is one fetched HTML page.
type Page struct {
	URL          string
	Depth        int
	Title        string
	ContentType  string
	LastModified string
	Document     *goquery.Document
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 1
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func New(baseURL string) (*Scraper, error) {
	return NewWithConfig(ScraperConfig{BaseURL: baseURL})
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != s.baseHost {
		return false
	}

	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			if !strings.Contains(lastSegment(path), ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// CleanText collapses whitespace and strips common site chrome.
func CleanText(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

// MainContent returns the main content area of a page, falling back to the body.
func MainContent(doc *goquery.Document) *goquery.Selection {
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			return selected.First()
		}
	}
	return doc.Find("body")
}

// Scrape fetches startURL and the same-host pages it links to, breadth of
// recursion bounded by MaxDepth. Failures on linked pages are logged and
// skipped; a failure on startURL is returned.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]Page, error) {
	visited := make(map[string]bool)
	var pages []Page
	if err := s.scrapeRecursive(ctx, startURL, 0, visited, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, visited map[string]bool, pages *[]Page) error {
	if depth > s.config.MaxDepth || visited[urlStr] {
		return nil
	}
	if !s.shouldProcessURL(urlStr) {
		if depth == 0 {
			return fmt.Errorf("URL %s is not scrapeable", urlStr)
		}
		return nil
	}

	visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", urlStr, err)
	}

	*pages = append(*pages, Page{
		URL:          urlStr,
		Depth:        depth,
		Title:        strings.TrimSpace(doc.Find("title").First().Text()),
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
		Document:     doc,
	})

	if depth == s.config.MaxDepth {
		return nil
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return nil
	}
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			s.config.Logger.Debug("Skipping unparseable link", slog.String("href", href))
			return
		}
		next := base.ResolveReference(ref)
		next.Fragment = ""

		if err := s.scrapeRecursive(ctx, next.String(), depth+1, visited, pages); err != nil {
			s.config.Logger.Warn("Error scraping linked page", slog.String("url", next.String()), slog.String("error", err.Error()))
		}
	})

	return nil
}
