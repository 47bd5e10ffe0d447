package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"rentwatch/config"
	"rentwatch/httputil"
	"rentwatch/models"
	"rentwatch/pricing"
)

// RightmoveHandler is the browser-automated variant. The search page
// paginates through infinite scroll, and card prices are stale estimates,
// so every listing gets a mandatory detail-page visit for the
// authoritative price.
type RightmoveHandler struct {
	cfg        *config.SiteConfig
	newFetcher func() PageFetcher
}

var _ Handler = (*RightmoveHandler)(nil)

func NewRightmoveHandler(cfg *config.SiteConfig) *RightmoveHandler {
	return &RightmoveHandler{
		cfg:        cfg,
		newFetcher: func() PageFetcher { return NewPlaywrightFetcher() },
	}
}

func (h *RightmoveHandler) Site() string {
	return h.cfg.ID
}

func (h *RightmoveHandler) Scrape(ctx context.Context, cfg models.SearchConfig, limits Limits, emit EmitFunc) (Stats, error) {
	var stats Stats

	fetcher := h.newFetcher()
	defer fetcher.Close()

	if err := fetcher.Load(ctx, cfg.SearchURL, limits.PageTimeout); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrSearchPage, err)
	}

	urls, err := h.discover(ctx, fetcher, limits)
	if err != nil {
		return stats, err
	}
	stats.URLsDiscovered = len(urls)
	if len(urls) == 0 {
		return stats, fmt.Errorf("%w: no listing urls found at %s", ErrSearchPage, cfg.SearchURL)
	}

	log.Printf("[%s] %d listings discovered for %s", h.cfg.ID, len(urls), cfg.Description)

	if len(urls) > limits.MaxListings {
		urls = urls[:limits.MaxListings]
	}

	for i, listingURL := range urls {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if i > 0 {
			httputil.JitterSleep(limits.MinDelayMS, limits.MaxDelayMS)
		}

		rec, ok := h.visitDetail(ctx, fetcher, listingURL, cfg, limits)
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

// discover scrolls the search page until no new listing URLs appear in two
// consecutive rounds, ScrollRounds is exhausted, or DiscoveryCap is hit.
func (h *RightmoveHandler) discover(ctx context.Context, fetcher PageFetcher, limits Limits) ([]string, error) {
	base, err := url.Parse(h.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrSearchPage, err)
	}

	var ordered []string
	seen := make(map[string]bool)

	collect := func() error {
		content, err := fetcher.Content()
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return err
		}
		doc.Find(h.cfg.Search.Card).Find(h.cfg.Search.Link).Each(func(_ int, s *goquery.Selection) {
			if len(ordered) >= limits.DiscoveryCap {
				return
			}
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			canonical, err := CanonicalRecordURL(base, href)
			if err != nil || seen[canonical] {
				return
			}
			seen[canonical] = true
			ordered = append(ordered, canonical)
		})
		return nil
	}

	if err := collect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchPage, err)
	}

	stale := 0
	for round := 0; round < limits.ScrollRounds && len(ordered) < limits.DiscoveryCap; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		before := len(ordered)
		if err := fetcher.ScrollToBottom(ctx); err != nil {
			log.Printf("[%s] scroll %d failed: %v", h.cfg.ID, round+1, err)
			break
		}
		if err := collect(); err != nil {
			log.Printf("[%s] collect after scroll %d failed: %v", h.cfg.ID, round+1, err)
			break
		}

		if len(ordered) == before {
			stale++
			if stale >= 2 {
				break
			}
		} else {
			stale = 0
		}
	}

	return ordered, nil
}

// visitDetail loads one listing page and extracts the record. Any failure
// here skips the listing without touching the rest of the sequence.
func (h *RightmoveHandler) visitDetail(ctx context.Context, fetcher PageFetcher, listingURL string, cfg models.SearchConfig, limits Limits) (models.ListingRecord, bool) {
	if err := fetcher.Load(ctx, listingURL, limits.PageTimeout); err != nil {
		log.Printf("[%s] skipping %s: %v", h.cfg.ID, listingURL, err)
		return models.ListingRecord{}, false
	}

	content, err := fetcher.Content()
	if err != nil {
		log.Printf("[%s] skipping %s: %v", h.cfg.ID, listingURL, err)
		return models.ListingRecord{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		log.Printf("[%s] skipping %s: %v", h.cfg.ID, listingURL, err)
		return models.ListingRecord{}, false
	}

	detail := extractDetail(doc, h.cfg.Detail)
	if detail.Price == "" {
		log.Printf("[%s] skipping %s: no price on detail page", h.cfg.ID, listingURL)
		return models.ListingRecord{}, false
	}

	perOccupant, err := pricing.PerOccupant(detail.Price, detail.Bedrooms)
	if err != nil {
		log.Printf("[%s] skipping %s: %v", h.cfg.ID, listingURL, err)
		return models.ListingRecord{}, false
	}

	return models.ListingRecord{
		SourceURL:        listingURL,
		Title:            detail.Title,
		Location:         detail.Location,
		Bedrooms:         detail.Bedrooms,
		RawPrice:         detail.Price,
		PricePerOccupant: perOccupant,
		SearchConfigID:   cfg.ID,
		DiscoveredAt:     time.Now().UTC(),
	}, true
}
