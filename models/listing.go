package models

import "time"

// ListingRecord is the canonical shape produced by every scraper variant.
// SourceURL is the sole deduplication key and is always absolute and
// canonicalized (no query string or fragment).
type ListingRecord struct {
	SourceURL        string    `json:"source_url" db:"source_url"`
	Title            string    `json:"title" db:"title"`
	Location         string    `json:"location" db:"location"`
	Bedrooms         int       `json:"bedrooms" db:"bedrooms"` // 0 means studio
	RawPrice         string    `json:"raw_price" db:"raw_price"`
	PricePerOccupant float64   `json:"price_per_occupant" db:"price_per_occupant"`
	SearchConfigID   string    `json:"search_config_id" db:"search_config_id"`
	DiscoveredAt     time.Time `json:"discovered_at" db:"discovered_at"`
}
