package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"rentwatch/config"
	"rentwatch/httputil"
	"rentwatch/models"
	"rentwatch/pricing"
)

// OpenRentHandler is the lightweight variant: one GET of the search page,
// structural parsing of the cards, and a secondary GET per listing only
// when the card price is not precise enough.
type OpenRentHandler struct {
	cfg    *config.SiteConfig
	client *http.Client
}

var _ Handler = (*OpenRentHandler)(nil)

func NewOpenRentHandler(cfg *config.SiteConfig, clients *httputil.Clients) *OpenRentHandler {
	return &OpenRentHandler{cfg: cfg, client: clients.Scraping}
}

func (h *OpenRentHandler) Site() string {
	return h.cfg.ID
}

type openRentCandidate struct {
	url      string
	title    string
	location string
	price    string
	bedrooms int
	hasBeds  bool
}

func (h *OpenRentHandler) Scrape(ctx context.Context, cfg models.SearchConfig, limits Limits, emit EmitFunc) (Stats, error) {
	var stats Stats

	doc, err := h.fetchDoc(ctx, cfg.SearchURL, limits.PageTimeout)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrSearchPage, err)
	}

	base, err := url.Parse(h.cfg.BaseURL)
	if err != nil {
		return stats, fmt.Errorf("%w: bad base url: %v", ErrSearchPage, err)
	}

	candidates := h.collectCards(doc, base, limits.DiscoveryCap)
	stats.URLsDiscovered = len(candidates)
	if len(candidates) == 0 {
		return stats, fmt.Errorf("%w: no listing cards found at %s", ErrSearchPage, cfg.SearchURL)
	}

	log.Printf("[%s] %d listings discovered for %s", h.cfg.ID, len(candidates), cfg.Description)

	visited := 0
	for _, cand := range candidates {
		if stats.Extracted >= limits.MaxListings {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rec, ok := h.resolve(ctx, cand, cfg, limits, &visited)
		if !ok {
			stats.SkippedExtract++
			continue
		}

		stats.Extracted++
		if err := emit(rec); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// resolve turns a card into a full record, visiting the detail page when
// the card price is a stale estimate. visited counts detail GETs so the
// jitter delay only separates real visits.
func (h *OpenRentHandler) resolve(ctx context.Context, cand openRentCandidate, cfg models.SearchConfig, limits Limits, visited *int) (models.ListingRecord, bool) {
	priceText := cand.price
	title := cand.title
	location := cand.location
	bedrooms := cand.bedrooms
	hasBeds := cand.hasBeds

	if !isPrecisePrice(priceText) {
		if *visited > 0 {
			httputil.JitterSleep(limits.MinDelayMS, limits.MaxDelayMS)
		}
		*visited++

		doc, err := h.fetchDoc(ctx, cand.url, limits.PageTimeout)
		if err != nil {
			log.Printf("[%s] skipping %s: %v", h.cfg.ID, cand.url, err)
			return models.ListingRecord{}, false
		}

		detail := extractDetail(doc, h.cfg.Detail)
		if detail.Price != "" {
			priceText = detail.Price
		}
		if detail.Title != "" {
			title = detail.Title
		}
		if detail.Location != "" {
			location = detail.Location
		}
		bedrooms = detail.Bedrooms
		hasBeds = true
	}

	if !hasBeds {
		bedrooms = 1
	}

	perOccupant, err := pricing.PerOccupant(priceText, bedrooms)
	if err != nil {
		log.Printf("[%s] skipping %s: %v", h.cfg.ID, cand.url, err)
		return models.ListingRecord{}, false
	}

	return models.ListingRecord{
		SourceURL:        cand.url,
		Title:            title,
		Location:         location,
		Bedrooms:         bedrooms,
		RawPrice:         priceText,
		PricePerOccupant: perOccupant,
		SearchConfigID:   cfg.ID,
		DiscoveredAt:     time.Now().UTC(),
	}, true
}

func (h *OpenRentHandler) collectCards(doc *goquery.Document, base *url.URL, limit int) []openRentCandidate {
	var out []openRentCandidate
	seen := make(map[string]bool)

	doc.Find(h.cfg.Search.Card).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		href, ok := card.Find(h.cfg.Search.Link).First().Attr("href")
		if !ok {
			return true
		}
		canonical, err := CanonicalRecordURL(base, href)
		if err != nil || seen[canonical] {
			return true
		}
		seen[canonical] = true

		cand := openRentCandidate{
			url:      canonical,
			title:    firstText(card, h.cfg.Search.Title),
			location: firstText(card, h.cfg.Search.Location),
			price:    firstText(card, h.cfg.Search.Price),
		}
		if n, ok := parseBedrooms(firstText(card, h.cfg.Search.Bedrooms)); ok {
			cand.bedrooms, cand.hasBeds = n, true
		} else if n, ok := parseBedrooms(cand.title); ok {
			cand.bedrooms, cand.hasBeds = n, true
		}

		out = append(out, cand)
		return len(out) < limit
	})

	return out
}

func (h *OpenRentHandler) fetchDoc(ctx context.Context, pageURL string, timeout time.Duration) (*goquery.Document, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	httputil.BrowserHeaders(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}
