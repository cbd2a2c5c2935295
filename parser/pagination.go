package parser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// PagerSelector locates the "Page 1 of 50" indicator.
const PagerSelector = ".pager .current"

var trailingNumber = regexp.MustCompile(`\d+$`)

// TotalPages reads the page count from the pager indicator. A page without
// one, or with no trailing number, counts as a single page.
func TotalPages(doc *goquery.Document) int {
	current := doc.Find(PagerSelector).First()
	if current.Length() == 0 {
		return 1
	}

	match := trailingNumber.FindString(NormalizeText(current.Text()))
	if match == "" {
		return 1
	}
	n, err := strconv.Atoi(match)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// BuildPageURLs lists the catalog pages in order. The first entry is baseURL
// unchanged; the rest resolve catalogue/page-N.html against it.
func BuildPageURLs(baseURL string, totalPages int) ([]string, error) {
	if totalPages < 1 {
		totalPages = 1
	}

	urls := make([]string, 0, totalPages)
	urls = append(urls, baseURL)
	for n := 2; n <= totalPages; n++ {
		pageURL, err := ResolveURL(baseURL, fmt.Sprintf("catalogue/page-%d.html", n))
		if err != nil {
			return nil, fmt.Errorf("build page %d url: %w", n, err)
		}
		urls = append(urls, pageURL)
	}
	return urls, nil
}
