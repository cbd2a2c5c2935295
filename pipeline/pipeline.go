package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPageIndex is returned for a page outside the pipeline's range or
	// submitted twice.
	ErrPageIndex = errors.New("pipeline: bad page index")
)

// Page is one fetched catalog page. Doc may carry an already parsed
// document; otherwise Body is parsed by the worker.
type Page struct {
	Index int
	URL   string
	Body  []byte
	Doc   *goquery.Document
}

// Pipeline extracts products from pages on a pool of workers and keeps the
// results slotted by page index.
type Pipeline struct {
	ctx    context.Context
	pageCh chan Page

	wg sync.WaitGroup

	results   [][]models.Product
	submitted []bool
	resultsMu sync.Mutex

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline for a crawl of totalPages pages.
func NewPipeline(ctx context.Context, totalPages int) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	if totalPages < 0 {
		totalPages = 0
	}
	return &Pipeline{
		ctx:       ctx,
		pageCh:    make(chan Page, totalPages),
		results:   make([][]models.Product, totalPages),
		submitted: make([]bool, totalPages),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues pages for extraction.
func (p *Pipeline) Process(pages ...Page) error {
	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, page := range pages {
		if err := p.claim(page.Index); err != nil {
			return err
		}
		if err := p.enqueue(page); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.pageCh)
	})

	p.wg.Wait()
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Products concatenates the per-page results in page order. Call it after
// Close.
func (p *Pipeline) Products() []models.Product {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()

	total := 0
	for _, page := range p.results {
		total += len(page)
	}
	out := make([]models.Product, 0, total)
	for _, page := range p.results {
		out = append(out, page...)
	}
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for page := range p.pageCh {
		if err := p.ctx.Err(); err != nil {
			p.setErr(fmt.Errorf("extract page %d: %w", page.Index+1, err))
			continue
		}
		products, err := p.extract(page)
		if err != nil {
			p.setErr(err)
			continue
		}

		p.resultsMu.Lock()
		p.results[page.Index] = products
		p.resultsMu.Unlock()
	}
}

func (p *Pipeline) extract(page Page) ([]models.Product, error) {
	doc := page.Doc
	if doc == nil {
		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page.URL, err)
		}
		doc = parsed
	}

	products, anomalies := parser.ExtractProducts(doc, page.URL)
	for _, a := range anomalies {
		p.metrics.addAnomaly(a.Kind)
		if a.Dropped() {
			slog.Warn("dropped product entry",
				slog.String("page", page.URL),
				slog.Int("position", a.Position),
				slog.String("reason", a.Detail),
			)
			continue
		}
		slog.Debug("defaulted product field",
			slog.String("page", page.URL),
			slog.Int("position", a.Position),
			slog.String("kind", a.Kind),
			slog.String("detail", a.Detail),
		)
	}

	p.metrics.addPage(len(products))
	slog.Debug("page extracted",
		slog.String("page", page.URL),
		slog.Int("products", len(products)),
		slog.Int("anomalies", len(anomalies)),
	)
	return products, nil
}

func (p *Pipeline) claim(index int) error {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	if index < 0 || index >= len(p.submitted) || p.submitted[index] {
		return fmt.Errorf("%w: %d", ErrPageIndex, index)
	}
	p.submitted[index] = true
	return nil
}

func (p *Pipeline) enqueue(page Page) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.pageCh <- page:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu        sync.Mutex
	pages     int64
	products  int64
	anomalies map[string]int
}

func newMetrics() metrics {
	return metrics{
		anomalies: make(map[string]int),
	}
}

func (m *metrics) addPage(products int) {
	m.mu.Lock()
	m.pages++
	m.products += int64(products)
	m.mu.Unlock()
}

func (m *metrics) addAnomaly(kind string) {
	m.mu.Lock()
	m.anomalies[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyAnomalies := make(map[string]int, len(m.anomalies))
	for k, v := range m.anomalies {
		copyAnomalies[k] = v
	}

	return map[string]interface{}{
		"processed_pages":    m.pages,
		"processed_products": m.products,
		"anomalies":          copyAnomalies,
	}
}
