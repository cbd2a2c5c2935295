package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

// ProductSelector matches one product container on a catalog page.
const ProductSelector = "article.product_pod"

// Anomaly kinds reported by ExtractProducts.
const (
	AnomalyDropped      = "dropped_entry"
	AnomalyPrice        = "price_defaulted"
	AnomalyRating       = "rating_defaulted"
	AnomalyAvailability = "availability_missing"
	AnomalyImage        = "image_missing"
)

// Anomaly describes a missing or unparseable field in one container. Dropped
// anomalies mean the container produced no product.
type Anomaly struct {
	Position int
	Kind     string
	Detail   string
}

// Dropped reports whether the container was skipped entirely.
func (a Anomaly) Dropped() bool {
	return a.Kind == AnomalyDropped
}

func (a Anomaly) String() string {
	return fmt.Sprintf("container %d: %s: %s", a.Position, a.Kind, a.Detail)
}

// ExtractProducts returns the products on a page in document order, along
// with every anomaly met on the way. Relative links resolve against baseURL.
func ExtractProducts(doc *goquery.Document, baseURL string) ([]models.Product, []Anomaly) {
	products := make([]models.Product, 0)
	var anomalies []Anomaly

	doc.Find(ProductSelector).Each(func(i int, s *goquery.Selection) {
		product, issues := extractProduct(s, baseURL)
		for _, issue := range issues {
			issue.Position = i
			anomalies = append(anomalies, issue)
		}
		if product != nil {
			products = append(products, *product)
		}
	})

	return products, anomalies
}

func extractProduct(s *goquery.Selection, baseURL string) (*models.Product, []Anomaly) {
	var anomalies []Anomaly
	note := func(kind, format string, args ...any) {
		anomalies = append(anomalies, Anomaly{Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	title, detailsURL, err := extractTitleLink(s, baseURL)
	if err != nil {
		note(AnomalyDropped, "%v", err)
		return nil, anomalies
	}

	imageURL, err := extractImage(s, baseURL)
	if err != nil {
		note(AnomalyImage, "%v", err)
	}

	rating, err := extractRating(s)
	if err != nil {
		note(AnomalyRating, "%v", err)
	}

	price, currency, err := extractPrice(s)
	if err != nil {
		note(AnomalyPrice, "%v", err)
	}

	availability := extractAvailability(s)
	if availability == "" {
		note(AnomalyAvailability, "no availability text")
	}

	product := &models.Product{
		Title:        title,
		Price:        price,
		Currency:     currency,
		Availability: availability,
		Rating:       rating,
		ImageURL:     imageURL,
		DetailsURL:   detailsURL,
	}
	if err := ValidateProduct(product); err != nil {
		note(AnomalyDropped, "%v", err)
		return nil, anomalies
	}
	return product, anomalies
}

func extractTitleLink(s *goquery.Selection, baseURL string) (string, string, error) {
	anchor := s.Find("h3 > a").First()
	if anchor.Length() == 0 {
		return "", "", fmt.Errorf("no title anchor")
	}

	title, _ := anchor.Attr("title")
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", fmt.Errorf("title anchor has no title attribute")
	}

	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return "", "", fmt.Errorf("title anchor has no href for %q", title)
	}
	detailsURL, err := ResolveURL(baseURL, href)
	if err != nil {
		return "", "", fmt.Errorf("details url for %q: %w", title, err)
	}
	return title, detailsURL, nil
}

func extractImage(s *goquery.Selection, baseURL string) (string, error) {
	img := s.Find("img.thumbnail").First()
	if img.Length() == 0 {
		img = s.Find("img").First()
	}
	src, ok := img.Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" {
		return "", fmt.Errorf("no image src")
	}
	return ResolveURL(baseURL, src)
}

func extractRating(s *goquery.Selection) (int, error) {
	class, ok := s.Find(".star-rating").First().Attr("class")
	if !ok {
		return 0, fmt.Errorf("no star-rating element")
	}
	word := ratingWord(class)
	rating := RatingToNumeric(word)
	if rating == 0 {
		return 0, fmt.Errorf("unrecognised rating class %q", class)
	}
	return rating, nil
}

func extractPrice(s *goquery.Selection) (decimal.Decimal, string, error) {
	el := s.Find(".product_price .price_color").First()
	if el.Length() == 0 {
		el = s.Find(".price_color").First()
	}
	if el.Length() == 0 {
		return decimal.Zero, "", fmt.Errorf("no price element")
	}

	raw := strings.TrimSpace(el.Text())
	amount, currency, ok := ParsePrice(raw)
	if !ok {
		return amount, currency, fmt.Errorf("unparseable price %q", raw)
	}
	return amount, currency, nil
}

func extractAvailability(s *goquery.Selection) string {
	el := s.Find(".instock.availability").First()
	if el.Length() == 0 {
		el = s.Find(".availability").First()
	}
	return NormalizeText(el.Text())
}
