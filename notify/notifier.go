package notify

import (
	"context"
	"fmt"
	"strings"

	"rentwatch/models"
)

// Notifier delivers one listing to one recipient. A returned error means
// the handoff was not confirmed and the listing must not be marked seen.
type Notifier interface {
	Notify(ctx context.Context, rec models.ListingRecord, chatID string) error
}

// Describer is implemented by notifiers that include the search description
// in the rendered message. Descriptions are refreshed when configurations
// reload.
type Describer interface {
	SetDescription(configID, description string)
}

// Summarizer delivers the end-of-search recap sent after the individual
// listing messages. Summary delivery is best effort; a failure never blocks
// the pipeline.
type Summarizer interface {
	NotifySummary(ctx context.Context, configID, chatID string, newListings int) error
}

// FormatMessage renders the listing fields for delivery. Telegram HTML
// parse mode; chat clients that ignore markup still get readable text.
func FormatMessage(rec models.ListingRecord, searchDescription string) string {
	var b strings.Builder

	if searchDescription != "" {
		fmt.Fprintf(&b, "<b>New listing: %s</b>\n\n", searchDescription)
	} else {
		b.WriteString("<b>New listing found</b>\n\n")
	}

	fmt.Fprintf(&b, "<b>Title:</b> %s\n", rec.Title)
	fmt.Fprintf(&b, "<b>Price:</b> %s (£%.0f per occupant / month)\n", rec.RawPrice, rec.PricePerOccupant)
	if rec.Location != "" {
		fmt.Fprintf(&b, "<b>Location:</b> %s\n", rec.Location)
	}
	bedrooms := "studio"
	if rec.Bedrooms > 0 {
		bedrooms = fmt.Sprintf("%d bed", rec.Bedrooms)
	}
	fmt.Fprintf(&b, "<b>Size:</b> %s\n\n", bedrooms)
	fmt.Fprintf(&b, "<a href=\"%s\">View listing</a>", rec.SourceURL)

	return b.String()
}

// FormatSummary renders the per-search recap sent once the individual
// listing messages have gone out.
func FormatSummary(searchDescription string, newListings int) string {
	var b strings.Builder

	b.WriteString("<b>Search summary</b>\n\n")
	if searchDescription != "" {
		fmt.Fprintf(&b, "Search: %s\n", searchDescription)
	}
	fmt.Fprintf(&b, "New listings found: %d", newListings)

	return b.String()
}
