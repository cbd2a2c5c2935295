// Package parser turns catalog markup into normalised product records.
package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

// ValidateProduct ensures the fields that identify an entry are present.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title")
	}
	if strings.TrimSpace(p.DetailsURL) == "" {
		return fmt.Errorf("product missing details url for %s", p.Title)
	}
	return nil
}

// ParsePrice splits a price label such as "£51.77" into an exact amount and
// a currency code. ok is false when the text holds no number, in which case
// the amount is zero and the currency empty.
func ParsePrice(text string) (amount decimal.Decimal, currency string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, "", false
	}

	if rest, found := strings.CutPrefix(text, "£"); found {
		currency = "GBP"
		text = rest
	}

	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	amount, err := decimal.NewFromString(text)
	if err != nil || text == "" {
		return decimal.Zero, "", false
	}
	return amount, currency, true
}

// NormalizeText collapses every whitespace run to one space and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// ratingWord returns the second token of a star-rating class list.
func ratingWord(classList string) string {
	parts := strings.Fields(classList)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
