package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"rentwatch/config"
)

var (
	bedroomRe = regexp.MustCompile(`(?i)(\d+)\s*bed`)
	// A price string precise enough to use without a detail-page visit:
	// amount plus an explicit pcm/pw period.
	precisePriceRe = regexp.MustCompile(`(?i)£\s*[\d,]+(?:\.\d{1,2})?\s*(?:pcm|pw|per\s+(?:calendar\s+)?month|per\s+week)`)
	// Fallback pattern scanned over full page text when no price selector
	// matches. Bounds keep out deposit amounts and phone numbers.
	pagePriceRe = regexp.MustCompile(`(?i)£\s*([\d,]+)\s*(pcm|pw|per\s+(?:calendar\s+)?month|per\s+week)`)
)

// CanonicalRecordURL resolves href against base and strips query string,
// fragment and trailing slash, yielding the deduplication key.
func CanonicalRecordURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}

	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("non-http url %q", href)
	}
	if abs.Host == "" {
		return "", fmt.Errorf("relative url %q with no base", href)
	}

	abs.RawQuery = ""
	abs.Fragment = ""
	abs.Path = strings.TrimRight(abs.Path, "/")
	return abs.String(), nil
}

// parseBedrooms reads a bedroom count out of listing text. "Studio" is
// zero bedrooms; absent counts default to one occupant upstream.
func parseBedrooms(text string) (int, bool) {
	if strings.Contains(strings.ToLower(text), "studio") {
		return 0, true
	}
	if m := bedroomRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 0 && n <= 20 {
			return n, true
		}
	}
	// Listing cards sometimes carry the count as a bare number next to a
	// bed icon.
	trimmed := strings.TrimSpace(text)
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= 10 {
		return n, true
	}
	return 0, false
}

// isPrecisePrice reports whether card text already carries an
// authoritative amount-plus-period price.
func isPrecisePrice(text string) bool {
	return precisePriceRe.MatchString(text)
}

// findPriceInText scans full page text for an amount-plus-period match,
// keeping only plausible rents.
func findPriceInText(text string) string {
	for _, m := range pagePriceRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		if n >= 100 && n <= 50000 {
			return strings.Join(strings.Fields(m[0]), " ")
		}
	}
	return ""
}

// firstText returns the first non-empty trimmed text among the selector's
// matches within sel.
func firstText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	var out string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = text
			return false
		}
		return true
	})
	return out
}

// detailFields is what a listing page yields before normalization.
type detailFields struct {
	Title    string
	Location string
	Price    string
	Bedrooms int
}

// extractDetail pulls the listing fields out of a (rendered) detail page
// using the site's selectors, with a text-scan fallback for the price.
func extractDetail(doc *goquery.Document, sels config.Selectors) detailFields {
	f := detailFields{
		Title:    firstText(doc.Selection, sels.Title),
		Location: firstText(doc.Selection, sels.Location),
	}

	if price := firstText(doc.Selection, sels.Price); strings.Contains(price, "£") {
		f.Price = price
	}
	if f.Price == "" {
		f.Price = findPriceInText(doc.Text())
	}

	f.Bedrooms = 1
	if n, ok := parseBedrooms(firstText(doc.Selection, sels.Bedrooms)); ok {
		f.Bedrooms = n
	} else if n, ok := parseBedrooms(f.Title); ok {
		f.Bedrooms = n
	}

	return f
}
