// Package models defines data structures for the scraper.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents one catalog entry.
type Product struct {
	Title        string
	Price        decimal.Decimal
	Currency     string
	Availability string
	Rating       int
	ImageURL     string
	DetailsURL   string
}

type productJSON struct {
	Title        string `json:"title"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	Availability string `json:"availability"`
	Rating       int    `json:"rating"`
	ImageURL     string `json:"image_url"`
	DetailsURL   string `json:"details_url"`
}

// FormatPrice renders d keeping its scale, so 10.00 stays "10.00".
func FormatPrice(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// MarshalJSON encodes the product with a string price. encoding/json
// re-applies the caller's HTML escaping to this output, so "Tom & Jerry"
// stays literal only through an encoder with SetEscapeHTML(false).
func (p Product) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(productJSON{
		Title:        p.Title,
		Price:        FormatPrice(p.Price),
		Currency:     p.Currency,
		Availability: p.Availability,
		Rating:       p.Rating,
		ImageURL:     p.ImageURL,
		DetailsURL:   p.DetailsURL,
	}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes the schema written by MarshalJSON.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price := decimal.Zero
	if raw.Price != "" {
		parsed, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return fmt.Errorf("price %q: %w", raw.Price, err)
		}
		price = parsed
	}

	*p = Product{
		Title:        raw.Title,
		Price:        price,
		Currency:     raw.Currency,
		Availability: raw.Availability,
		Rating:       raw.Rating,
		ImageURL:     raw.ImageURL,
		DetailsURL:   raw.DetailsURL,
	}
	return nil
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	Products     []Product
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	RequestCount int
	Anomalies    map[string]int
}

// Duration is the wall-clock time the crawl took.
func (r *CrawlResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
