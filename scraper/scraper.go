package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

// Scraper crawls a paginated catalog: it fetches the first page, works out
// how many pages exist, fetches the rest concurrently and extracts the
// products of every page in page order.
type Scraper struct {
	cfg     *config.Config
	fetcher *Fetcher
	Metrics *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		Metrics: metrics,
	}, nil
}

// Run crawls the configured base URL.
func (s *Scraper) Run(ctx context.Context) (*models.CrawlResult, error) {
	return s.Crawl(ctx, s.cfg.BaseURL)
}

// Crawl returns every product reachable from baseURL's pager. Any failed
// page fetch fails the whole crawl and no products are returned. baseURL must
// be on the same host as the configured base URL.
func (s *Scraper) Crawl(ctx context.Context, baseURL string) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.fetcher.checkHost(baseURL); err != nil {
		return nil, err
	}
	start := time.Now()

	first, err := s.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("first page: %w", err)
	}
	firstDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(first))
	if err != nil {
		return nil, fmt.Errorf("parse first page: %w", err)
	}

	totalPages := parser.TotalPages(firstDoc)
	if s.cfg.MaxPages > 0 && totalPages > s.cfg.MaxPages {
		slog.Info("capping page count",
			slog.Int("reported", totalPages),
			slog.Int("max_pages", s.cfg.MaxPages),
		)
		totalPages = s.cfg.MaxPages
	}
	urls, err := parser.BuildPageURLs(baseURL, totalPages)
	if err != nil {
		return nil, err
	}

	slog.Info("crawling catalog",
		slog.String("base_url", baseURL),
		slog.Int("pages", len(urls)),
		slog.Int("concurrency", s.cfg.Concurrency),
	)

	rest, err := s.fetcher.FetchAll(ctx, urls[1:])
	if err != nil {
		return nil, err
	}

	p := pipeline.NewPipeline(ctx, len(urls))
	p.Start(s.cfg.ExtractWorkers)

	pages := make([]pipeline.Page, 0, len(urls))
	pages = append(pages, pipeline.Page{Index: 0, URL: urls[0], Doc: firstDoc})
	for i, body := range rest {
		pages = append(pages, pipeline.Page{Index: i + 1, URL: urls[i+1], Body: body})
	}
	if err := p.Process(pages...); err != nil {
		p.Close()
		return nil, fmt.Errorf("queue pages: %w", err)
	}
	if err := p.Close(); err != nil {
		return nil, fmt.Errorf("extract products: %w", err)
	}

	products := p.Products()
	anomalies, _ := p.GetMetrics()["anomalies"].(map[string]int)
	s.Metrics.AddItems(len(products))
	s.Metrics.AddAnomalies(anomalies)

	if dropped := anomalies[parser.AnomalyDropped]; dropped > 0 {
		slog.Warn("product entries dropped", slog.Int("count", dropped))
	}

	return &models.CrawlResult{
		Products:     products,
		StartTime:    start,
		EndTime:      time.Now(),
		PageCount:    len(urls),
		RequestCount: s.fetcher.RequestCount(),
		Anomalies:    anomalies,
	}, nil
}
