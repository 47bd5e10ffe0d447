package scraper

import (
	"context"
	"errors"
	"time"

	"rentwatch/config"
	"rentwatch/httputil"
	"rentwatch/models"
)

// ErrSearchPage marks a total failure of the search page itself: network
// error, timeout, or a structural parse yielding zero listing URLs. It
// aborts only the affected configuration.
var ErrSearchPage = errors.New("search page scrape failed")

// EmitFunc receives each fully extracted record in discovery order. A
// returned error stops the sequence and propagates out of Scrape.
type EmitFunc func(models.ListingRecord) error

// Limits bounds one scrape run. DiscoveryCap caps URLs collected from the
// search page; MaxListings independently caps detail-page visits.
type Limits struct {
	MaxListings  int
	DiscoveryCap int
	ScrollRounds int
	PageTimeout  time.Duration
	MinDelayMS   int
	MaxDelayMS   int
}

func LimitsFromConfig(c config.ScraperConfig) Limits {
	return Limits{
		MaxListings:  c.MaxListings,
		DiscoveryCap: c.DiscoveryCap,
		ScrollRounds: c.ScrollRounds,
		PageTimeout:  c.PageTimeout,
		MinDelayMS:   c.MinDelayMS,
		MaxDelayMS:   c.MaxDelayMS,
	}
}

// Stats summarizes one scrape run for the cycle report.
type Stats struct {
	URLsDiscovered int
	Extracted      int
	SkippedExtract int
}

// Handler is one source variant. Both variants produce the same record
// shape; they differ only in how pages are fetched and paginated.
type Handler interface {
	Site() string
	Scrape(ctx context.Context, cfg models.SearchConfig, limits Limits, emit EmitFunc) (Stats, error)
}

func NewHandler(siteCfg *config.SiteConfig, clients *httputil.Clients) Handler {
	switch siteCfg.Handler {
	case "browser":
		return NewRightmoveHandler(siteCfg)
	default:
		return NewOpenRentHandler(siteCfg, clients)
	}
}
