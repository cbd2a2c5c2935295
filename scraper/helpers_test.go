package scraper

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://example.test/"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.Concurrency = 4
	cfg.Timeout = 5 * time.Second
	cfg.ExtractWorkers = 2
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.fetcher.collector.WithTransport(transport)
	return s
}

func htmlResponder(body string) httpmock.Responder {
	return delayedResponder(0, body)
}

func delayedResponder(delay time.Duration, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
}

func pageURL(n int) string {
	if n == 1 {
		return testBaseURL
	}
	return fmt.Sprintf("%scatalogue/page-%d.html", testBaseURL, n)
}

// buildCatalogPage renders a books.toscrape.com style listing. Page 1 lives at
// the site root, later pages under catalogue/, so links differ in depth.
func buildCatalogPage(page, totalPages, perPage int) string {
	prefix, mediaPrefix := "catalogue/", ""
	if page > 1 {
		prefix, mediaPrefix = "", "../"
	}

	var builder strings.Builder
	builder.WriteString("<html><body><section><ol class=\"row\">")
	for i := 1; i <= perPage; i++ {
		id := (page-1)*perPage + i
		builder.WriteString("<li><article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<div class=\"image_container\"><img src=\"%smedia/cache/book-%d.jpg\" class=\"thumbnail\"></div>", mediaPrefix, id)
		builder.WriteString("<p class=\"star-rating Two\"><i class=\"icon-star\"></i></p>")
		fmt.Fprintf(&builder, "<h3><a href=\"%sbook-%d/index.html\" title=\"Book %d\">Book %d</a></h3>", prefix, id, id, id)
		fmt.Fprintf(&builder, "<div class=\"product_price\"><p class=\"price_color\">&pound;%d.99</p>", id)
		builder.WriteString("<p class=\"instock availability\">\n    <i class=\"icon-ok\"></i>\n    In stock\n</p></div>")
		builder.WriteString("</article></li>")
	}
	builder.WriteString("</ol>")
	if totalPages > 1 {
		fmt.Fprintf(&builder, "<ul class=\"pager\"><li class=\"current\">\n  Page %d of %d\n</li></ul>", page, totalPages)
	}
	builder.WriteString("</section></body></html>")
	return builder.String()
}
