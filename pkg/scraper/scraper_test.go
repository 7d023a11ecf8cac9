package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)

	s, err = New("https://example.com/course/")
	require.NoError(t, err)
	assert.Equal(t, 1, s.config.MaxDepth)
	assert.Equal(t, 30*time.Second, s.config.Timeout)

	_, err = New("not a url")
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		IgnorePatterns: []string{"/ignore/", "private"},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/lessons/intro", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private/notes.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL(tt.url))
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Welcome to the course.", CleanText("  Welcome \n\t to the course. Accept Cookies"))
}

func TestScrapeWithMockServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title></head>
				<body>
					<nav>Menu</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="/page2.html#top">Same link</a>
						<a href="/missing.html">Broken</a>
						<a href="https://elsewhere.example.org/">External</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Second</title></head><body><p>Module 2 body.</p><a href="/page3.html">Deeper</a></body></html>`))
	})
	mux.HandleFunc("/page3.html", func(w http.ResponseWriter, r *http.Request) {
		t.Error("page beyond max depth was fetched")
	})
	mux.HandleFunc("/missing.html", http.NotFound)
	server := httptest.NewServer(mux)
	defer server.Close()

	var progress []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:    server.URL,
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(url string) { progress = append(progress, url) },
	})
	require.NoError(t, err)

	pages, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	first := pages[0]
	assert.Equal(t, server.URL+"/", first.URL)
	assert.Equal(t, "Test Page", first.Title)
	assert.Equal(t, 0, first.Depth)
	assert.Equal(t, "text/html", first.ContentType)

	main := CleanText(MainContent(first.Document).Text())
	assert.Contains(t, main, "Test Content")
	assert.Contains(t, main, "This is a test paragraph")
	assert.NotContains(t, main, "Menu")

	assert.Equal(t, "Second", pages[1].Title)
	assert.Equal(t, 1, pages[1].Depth)
	assert.Len(t, progress, 3)
}

func TestScrape_StartPageErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100})
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), server.URL+"/course.html")
	assert.ErrorContains(t, err, "status code 404")
}
