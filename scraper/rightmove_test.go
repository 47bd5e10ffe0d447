package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"rentwatch/config"
	"rentwatch/models"
)

// fakeFetcher plays back canned DOM snapshots. The search page advances
// through scrollStates on each ScrollToBottom; detail pages are served
// from the pages map.
type fakeFetcher struct {
	scrollStates []string
	scrollIdx    int
	pages        map[string]string

	current  string
	loadErrs map[string]error
	loads    []string
	scrolls  int
}

var _ PageFetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Load(_ context.Context, url string, _ time.Duration) error {
	f.loads = append(f.loads, url)
	if err := f.loadErrs[url]; err != nil {
		return err
	}
	if strings.Contains(url, "/find") {
		f.scrollIdx = 0
		f.current = f.scrollStates[0]
		return nil
	}
	page, ok := f.pages[url]
	if !ok {
		return fmt.Errorf("404 for %s", url)
	}
	f.current = page
	return nil
}

func (f *fakeFetcher) ScrollToBottom(context.Context) error {
	f.scrolls++
	if f.scrollIdx < len(f.scrollStates)-1 {
		f.scrollIdx++
	}
	f.current = f.scrollStates[f.scrollIdx]
	return nil
}

func (f *fakeFetcher) Content() (string, error) {
	return f.current, nil
}

func (f *fakeFetcher) Close() error { return nil }

func rightmoveTestSite() *config.SiteConfig {
	return &config.SiteConfig{
		ID:      models.SiteRightmove,
		Name:    "Rightmove",
		Handler: "browser",
		BaseURL: "https://www.rightmove.co.uk",
		Search: config.Selectors{
			Card: "div.l-searchResult",
			Link: "a.propertyCard-link",
		},
		Detail: config.Selectors{
			Title:    "h1.property-title",
			Location: "div.property-address",
			Price:    "div.property-price",
			Bedrooms: "span.beds",
		},
	}
}

func searchPage(ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="l-searchResult"><a class="propertyCard-link" href="/properties/%d#/?channel=RES_LET">x</a></div>`, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailPage(title, address, price, beds string) string {
	return fmt.Sprintf(`<html><body>
		<h1 class="property-title">%s</h1>
		<div class="property-address">%s</div>
		<div class="property-price">%s</div>
		<span class="beds">%s</span>
	</body></html>`, title, address, price, beds)
}

func rightmoveTestLimits() Limits {
	return Limits{
		MaxListings:  15,
		DiscoveryCap: 60,
		ScrollRounds: 10,
		PageTimeout:  5 * time.Second,
	}
}

func newTestRightmoveHandler(f *fakeFetcher) *RightmoveHandler {
	h := NewRightmoveHandler(rightmoveTestSite())
	h.newFetcher = func() PageFetcher { return f }
	return h
}

func TestRightmoveScrape(t *testing.T) {
	f := &fakeFetcher{
		scrollStates: []string{
			searchPage(1, 2),
			searchPage(1, 2, 3),
			searchPage(1, 2, 3), // no growth: first stale round
			searchPage(1, 2, 3), // second stale round, discovery stops
			searchPage(1, 2, 3, 4),
		},
		pages: map[string]string{
			"https://www.rightmove.co.uk/properties/1": detailPage("2 bed flat, Dalston", "Dalston Lane, E8", "£2,200 pcm", "2"),
			"https://www.rightmove.co.uk/properties/2": detailPage("Flat to rent", "Mare Street, E8", "£550 pw", "2"),
			"https://www.rightmove.co.uk/properties/3": detailPage("Studio apartment", "Well Street, E9", "£1,300 pcm", "studio"),
		},
	}

	handler := newTestRightmoveHandler(f)
	cfg := models.SearchConfig{
		ID:        "config_1_cafebabe",
		SearchURL: "https://www.rightmove.co.uk/property-to-rent/find?searchLocation=E8",
		Site:      models.SiteRightmove,
	}

	var emitted []models.ListingRecord
	stats, err := handler.Scrape(context.Background(), cfg, rightmoveTestLimits(), func(rec models.ListingRecord) error {
		emitted = append(emitted, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	// Two consecutive no-growth rounds end discovery; listing 4 is never
	// reached.
	if stats.URLsDiscovered != 3 {
		t.Fatalf("expected 3 discovered URLs, got %d", stats.URLsDiscovered)
	}
	if f.scrolls != 3 {
		t.Fatalf("expected discovery to stop after 3 scrolls, got %d", f.scrolls)
	}
	if len(emitted) != 3 {
		t.Fatalf("expected 3 records, got %d", len(emitted))
	}

	if emitted[0].SourceURL != "https://www.rightmove.co.uk/properties/1" {
		t.Fatalf("discovery order not preserved: %s", emitted[0].SourceURL)
	}
	if emitted[0].PricePerOccupant != 1100 {
		t.Fatalf("expected £1,100 per occupant, got %.2f", emitted[0].PricePerOccupant)
	}

	// £550 pw over two bedrooms: 550 * 52 / 12 / 2.
	weekly := emitted[1]
	want := 550.0 * 52 / 12 / 2
	if diff := weekly.PricePerOccupant - want; diff > 0.01 || diff < -0.01 {
		t.Fatalf("weekly price conversion off: got %.2f, want %.2f", weekly.PricePerOccupant, want)
	}

	studio := emitted[2]
	if studio.Bedrooms != 0 {
		t.Fatalf("expected studio to parse as 0 bedrooms, got %d", studio.Bedrooms)
	}
	if studio.PricePerOccupant != 1300 {
		t.Fatalf("studio divides by one occupant: got %.2f", studio.PricePerOccupant)
	}
}

func TestRightmoveScrape_MaxListingsCap(t *testing.T) {
	ids := make([]int, 40)
	pages := make(map[string]string, 40)
	for i := range ids {
		ids[i] = i + 1
		pages[fmt.Sprintf("https://www.rightmove.co.uk/properties/%d", i+1)] =
			detailPage("2 bed flat", "E8", "£2,000 pcm", "2")
	}

	f := &fakeFetcher{scrollStates: []string{searchPage(ids...)}, pages: pages}
	handler := newTestRightmoveHandler(f)
	cfg := models.SearchConfig{SearchURL: "https://www.rightmove.co.uk/property-to-rent/find?x=1", Site: models.SiteRightmove}

	limits := rightmoveTestLimits()
	limits.MaxListings = 5

	var emitted int
	stats, err := handler.Scrape(context.Background(), cfg, limits, func(models.ListingRecord) error {
		emitted++
		return nil
	})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if emitted != 5 {
		t.Fatalf("expected 5 emitted records, got %d", emitted)
	}
	if stats.URLsDiscovered != 40 {
		t.Fatalf("expected full discovery count, got %d", stats.URLsDiscovered)
	}
}

func TestRightmoveScrape_DiscoveryCap(t *testing.T) {
	ids := make([]int, 100)
	for i := range ids {
		ids[i] = i + 1
	}

	f := &fakeFetcher{scrollStates: []string{searchPage(ids...)}, pages: map[string]string{}}
	handler := newTestRightmoveHandler(f)
	cfg := models.SearchConfig{SearchURL: "https://www.rightmove.co.uk/property-to-rent/find?x=1", Site: models.SiteRightmove}

	limits := rightmoveTestLimits()
	limits.DiscoveryCap = 10
	limits.MaxListings = 0

	stats, _ := handler.Scrape(context.Background(), cfg, limits, func(models.ListingRecord) error { return nil })
	if stats.URLsDiscovered != 10 {
		t.Fatalf("expected discovery capped at 10, got %d", stats.URLsDiscovered)
	}
}

func TestRightmoveScrape_MissingPriceSkipsListing(t *testing.T) {
	f := &fakeFetcher{
		scrollStates: []string{searchPage(1, 2)},
		pages: map[string]string{
			"https://www.rightmove.co.uk/properties/1": detailPage("2 bed flat", "E8", "£2,000 pcm", "2"),
			"https://www.rightmove.co.uk/properties/2": `<html><body><h1 class="property-title">Flat</h1><p>No figures published.</p></body></html>`,
		},
	}

	handler := newTestRightmoveHandler(f)
	cfg := models.SearchConfig{SearchURL: "https://www.rightmove.co.uk/property-to-rent/find?x=1", Site: models.SiteRightmove}

	var emitted []models.ListingRecord
	stats, err := handler.Scrape(context.Background(), cfg, rightmoveTestLimits(), func(rec models.ListingRecord) error {
		emitted = append(emitted, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if stats.SkippedExtract != 1 {
		t.Fatalf("expected 1 skip, got %d", stats.SkippedExtract)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected 1 record, got %d", len(emitted))
	}
}

func TestRightmoveScrape_DetailLoadFailureIsContained(t *testing.T) {
	f := &fakeFetcher{
		scrollStates: []string{searchPage(1, 2)},
		pages: map[string]string{
			"https://www.rightmove.co.uk/properties/1": detailPage("2 bed flat", "E8", "£2,000 pcm", "2"),
			"https://www.rightmove.co.uk/properties/2": detailPage("3 bed flat", "E9", "£2,700 pcm", "3"),
		},
		loadErrs: map[string]error{
			"https://www.rightmove.co.uk/properties/1": errors.New("navigation timeout"),
		},
	}

	handler := newTestRightmoveHandler(f)
	cfg := models.SearchConfig{SearchURL: "https://www.rightmove.co.uk/property-to-rent/find?x=1", Site: models.SiteRightmove}

	var emitted []models.ListingRecord
	stats, err := handler.Scrape(context.Background(), cfg, rightmoveTestLimits(), func(rec models.ListingRecord) error {
		emitted = append(emitted, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("one failed navigation must not fail the run: %v", err)
	}
	if stats.SkippedExtract != 1 || len(emitted) != 1 {
		t.Fatalf("expected 1 skip and 1 record, got %d and %d", stats.SkippedExtract, len(emitted))
	}
	if emitted[0].SourceURL != "https://www.rightmove.co.uk/properties/2" {
		t.Fatalf("wrong listing survived: %s", emitted[0].SourceURL)
	}
}

func TestRightmoveScrape_SearchLoadFailure(t *testing.T) {
	searchURL := "https://www.rightmove.co.uk/property-to-rent/find?x=1"
	f := &fakeFetcher{
		scrollStates: []string{searchPage()},
		loadErrs:     map[string]error{searchURL: errors.New("net::ERR_TIMED_OUT")},
	}

	handler := newTestRightmoveHandler(f)
	cfg := models.SearchConfig{SearchURL: searchURL, Site: models.SiteRightmove}

	_, err := handler.Scrape(context.Background(), cfg, rightmoveTestLimits(), func(models.ListingRecord) error {
		t.Fatal("nothing should be emitted")
		return nil
	})
	if !errors.Is(err, ErrSearchPage) {
		t.Fatalf("expected ErrSearchPage, got %v", err)
	}
}
