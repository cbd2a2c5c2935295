package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/gocolly/colly/v2"
)

const (
	ctxIndex = "index"
	ctxURL   = "url"
	ctxStart = "start"
	ctxDone  = "done"
)

// Fetcher issues page GETs through a colly collector. Requests are admitted
// through permits shared by every batch on the fetcher, so at most
// Concurrency are in flight and a failure or cancellation stops the rest
// before they are sent.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics
	host      string
	permits   chan struct{}

	requestCount int64
}

// NewFetcher builds a fetcher restricted to the base URL's host.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.AllowURLRevisit = true
	// Status handling happens in OnResponse so 4xx/5xx carry their code.
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Concurrency,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
	}); err != nil {
		return nil, fmt.Errorf("configure concurrency limit: %w", err)
	}

	return &Fetcher{
		collector: collector,
		metrics:   metrics,
		host:      parsed.Hostname(),
		permits:   make(chan struct{}, max(cfg.Concurrency, 1)),
	}, nil
}

// Fetch returns the markup of a single page.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	bodies, err := f.FetchAll(ctx, []string{pageURL})
	if err != nil {
		return nil, err
	}
	return bodies[0], nil
}

// FetchAll fetches urls concurrently and returns their bodies at the same
// indexes as the input, whatever order the responses arrive in. The first
// failure is returned. Once a failure or cancellation is seen no further
// request is sent; in-flight ones run to completion.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([][]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	bodies := make([][]byte, len(urls))
	if len(urls) == 0 {
		return bodies, nil
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err *TransportError) {
		f.metrics.IncError(err.Kind())
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	// Clones share the HTTP backend, so the limit rule stays global.
	c := f.collector.Clone()

	// Each admitted request holds a permit until OnScraped or OnError.
	release := func(reqCtx *colly.Context) {
		if done, ok := reqCtx.GetAny(ctxDone).(func()); ok {
			done()
		}
	}

	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		slog.Debug("fetching page",
			slog.String("url", r.URL.String()),
			slog.Int("requests", f.RequestCount()),
		)
	})

	c.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny(ctxStart).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
		pageURL := r.Request.Ctx.Get(ctxURL)
		if r.StatusCode >= http.StatusBadRequest {
			slog.Error("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("url", pageURL),
			)
			f.metrics.IncRequest("failed")
			fail(&TransportError{URL: pageURL, StatusCode: r.StatusCode})
			return
		}
		idx, ok := r.Request.Ctx.GetAny(ctxIndex).(int)
		if !ok {
			return
		}
		bodies[idx] = r.Body
		f.metrics.IncRequest("completed")
		f.metrics.IncPages()
	})

	c.OnError(func(r *colly.Response, err error) {
		pageURL := ""
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil {
				pageURL = r.Request.Ctx.Get(ctxURL)
			}
		}
		slog.Error("request error",
			slog.String("url", pageURL),
			slog.Int("status", statusCode),
			slog.Any("error", err),
		)
		f.metrics.IncRequest("failed")
		fail(&TransportError{URL: pageURL, StatusCode: statusCode, Err: err})
		if r != nil && r.Request != nil {
			release(r.Request.Ctx)
		}
	})

	c.OnScraped(func(r *colly.Response) {
		release(r.Request.Ctx)
	})

	for i, pageURL := range urls {
		if !f.acquire(ctx) {
			break
		}
		if ctx.Err() != nil || failed() {
			f.releasePermit()
			break
		}

		var once sync.Once
		reqCtx := colly.NewContext()
		reqCtx.Put(ctxIndex, i)
		reqCtx.Put(ctxURL, pageURL)
		reqCtx.Put(ctxDone, func() { once.Do(f.releasePermit) })

		atomic.AddInt64(&f.requestCount, 1)
		f.metrics.IncRequest("started")
		if err := c.Request(http.MethodGet, pageURL, nil, reqCtx, nil); err != nil {
			release(reqCtx)
			fail(&TransportError{URL: pageURL, Err: err})
			break
		}
	}
	c.Wait()

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("fetch aborted: %w", ctx.Err())
	}
	return bodies, nil
}

// checkHost rejects URLs the collector's domain filter would refuse.
func (f *Fetcher) checkHost(pageURL string) error {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if parsed.Hostname() != f.host {
		return fmt.Errorf("url %q is outside the configured host %q", pageURL, f.host)
	}
	return nil
}

func (f *Fetcher) acquire(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case f.permits <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Fetcher) releasePermit() {
	<-f.permits
}

// RequestCount is the number of requests actually sent.
func (f *Fetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}
