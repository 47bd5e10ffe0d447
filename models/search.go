package models

// Site identifiers for the two supported source variants.
const (
	SiteOpenRent  = "openrent"
	SiteRightmove = "rightmove"
)

// SearchConfig is one saved search loaded from the spreadsheet. It is
// immutable for the duration of a cycle.
type SearchConfig struct {
	ID                  string
	SearchURL           string
	Site                string
	ChatIDs             []string
	MaxPricePerOccupant float64
	Active              bool
	Description         string
}
