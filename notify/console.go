package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"rentwatch/models"
)

// ConsoleNotifier writes notifications to a local writer instead of a
// remote service. Drop-in replacement for test mode.
type ConsoleNotifier struct {
	out          io.Writer
	descriptions map[string]string
}

var _ Notifier = (*ConsoleNotifier)(nil)

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout, descriptions: make(map[string]string)}
}

func (n *ConsoleNotifier) SetDescription(configID, description string) {
	n.descriptions[configID] = description
}

func (n *ConsoleNotifier) Notify(_ context.Context, rec models.ListingRecord, chatID string) error {
	fmt.Fprintf(n.out, "---- notification (chat %s) ----\n%s\n--------------------------------\n",
		chatID, FormatMessage(rec, n.descriptions[rec.SearchConfigID]))
	return nil
}

func (n *ConsoleNotifier) NotifySummary(_ context.Context, configID, chatID string, newListings int) error {
	fmt.Fprintf(n.out, "SUMMARY (chat %s): %d new listings for %q\n",
		chatID, newListings, n.descriptions[configID])
	return nil
}
