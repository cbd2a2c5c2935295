package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func registerCatalog(transport *httpmock.MockTransport, totalPages, perPage int, delay func(page int) time.Duration) {
	for page := 1; page <= totalPages; page++ {
		var d time.Duration
		if delay != nil {
			d = delay(page)
		}
		transport.RegisterResponder("GET", pageURL(page), delayedResponder(d, buildCatalogPage(page, totalPages, perPage)))
	}
}

func TestScraper_Integration(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	// Pages further along the catalog respond faster.
	registerCatalog(transport, 4, 5, func(page int) time.Duration {
		return time.Duration(5-page) * 20 * time.Millisecond
	})

	s := newTestScraper(t, cfg, transport)
	result, err := s.Crawl(context.Background(), testBaseURL)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	if result.PageCount != 4 {
		t.Fatalf("pages=%d, want 4", result.PageCount)
	}
	if got := len(result.Products); got != 20 {
		t.Fatalf("products=%d, want 20", got)
	}
	for i, product := range result.Products {
		if want := fmt.Sprintf("Book %d", i+1); product.Title != want {
			t.Fatalf("product %d title=%q, want %q (page order lost)", i, product.Title, want)
		}
	}

	sample := result.Products[6]
	if sample.DetailsURL != "http://example.test/catalogue/book-7/index.html" {
		t.Fatalf("details url=%q", sample.DetailsURL)
	}
	if sample.ImageURL != "http://example.test/media/cache/book-7.jpg" {
		t.Fatalf("image url=%q", sample.ImageURL)
	}
	if !sample.Price.Equal(decimal.RequireFromString("7.99")) || sample.Currency != "GBP" {
		t.Fatalf("price=%s %s, want 7.99 GBP", sample.Price, sample.Currency)
	}
	if sample.Rating != 2 {
		t.Fatalf("rating=%d, want 2", sample.Rating)
	}
	if sample.Availability != "In stock" {
		t.Fatalf("availability=%q, want %q", sample.Availability, "In stock")
	}

	if result.RequestCount != 4 {
		t.Fatalf("requests=%d, want 4", result.RequestCount)
	}
	if got := transport.GetTotalCallCount(); got != 4 {
		t.Fatalf("transport calls=%d, want 4", got)
	}
	if got := testutil.ToFloat64(s.Metrics.ItemsScrapedTotal); got != 20 {
		t.Fatalf("items metric=%v, want 20", got)
	}
	if got := testutil.ToFloat64(s.Metrics.PagesTotal); got != 4 {
		t.Fatalf("pages metric=%v, want 4", got)
	}
}

func TestScraperSinglePageWithoutPager(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerCatalog(transport, 1, 3, nil)

	s := newTestScraper(t, testConfig(), transport)
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.PageCount != 1 || len(result.Products) != 3 {
		t.Fatalf("pages=%d products=%d, want 1 and 3", result.PageCount, len(result.Products))
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls=%d, want 1", got)
	}
}

func TestScraperEmptyCatalog(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, htmlResponder("<html><body><p>No products</p></body></html>"))

	s := newTestScraper(t, testConfig(), transport)
	result, err := s.Crawl(context.Background(), testBaseURL)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if result.Products == nil || len(result.Products) != 0 {
		t.Fatalf("products=%v, want empty", result.Products)
	}
}

func TestScraperMaxPagesCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 2
	transport := httpmock.NewMockTransport()
	registerCatalog(transport, 5, 2, nil)

	s := newTestScraper(t, cfg, transport)
	result, err := s.Crawl(context.Background(), testBaseURL)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if result.PageCount != 2 || len(result.Products) != 4 {
		t.Fatalf("pages=%d products=%d, want 2 and 4", result.PageCount, len(result.Products))
	}
	if got := transport.GetCallCountInfo()["GET "+pageURL(3)]; got != 0 {
		t.Fatalf("page 3 fetched %d times, want 0", got)
	}
}

func TestScraperFailsOnAnyPageFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerCatalog(transport, 5, 2, nil)
	transport.RegisterResponder("GET", pageURL(4), httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	s := newTestScraper(t, testConfig(), transport)
	result, err := s.Crawl(context.Background(), testBaseURL)
	if err == nil {
		t.Fatalf("expected crawl failure")
	}
	if result != nil {
		t.Fatalf("expected no result, got %d products", len(result.Products))
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 TransportError, got %v", err)
	}
	if got := testutil.ToFloat64(s.Metrics.ErrorsTotal.WithLabelValues("server_error")); got != 1 {
		t.Fatalf("server_error metric=%v, want 1", got)
	}
}

func TestScraperFailsWhenFirstPageFails(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	s := newTestScraper(t, testConfig(), transport)
	_, err := s.Crawl(context.Background(), testBaseURL)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind() != "not_found" {
		t.Fatalf("expected not_found TransportError, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls=%d, want 1", got)
	}
}

func TestScraperRejectsForeignHost(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerCatalog(transport, 1, 2, nil)

	s := newTestScraper(t, testConfig(), transport)
	if _, err := s.Crawl(context.Background(), "http://elsewhere.test/"); err == nil {
		t.Fatalf("expected error for a host outside the configured base url")
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls=%d, want 0", got)
	}
}

func TestScraperCountsDroppedEntries(t *testing.T) {
	body := `<html><body>
		<article class="product_pod"><h3><a title="No link">No link</a></h3></article>
		<article class="product_pod"><h3><a href="catalogue/ok/index.html" title="Ok">Ok</a></h3></article>
	</body></html>`
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, htmlResponder(body))

	s := newTestScraper(t, testConfig(), transport)
	result, err := s.Crawl(context.Background(), testBaseURL)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(result.Products) != 1 || result.Products[0].Title != "Ok" {
		t.Fatalf("unexpected products %+v", result.Products)
	}
	if result.Anomalies["dropped_entry"] != 1 {
		t.Fatalf("dropped_entry=%d, want 1", result.Anomalies["dropped_entry"])
	}
	if got := testutil.ToFloat64(s.Metrics.AnomaliesTotal.WithLabelValues("dropped_entry")); got != 1 {
		t.Fatalf("anomaly metric=%v, want 1", got)
	}
}
