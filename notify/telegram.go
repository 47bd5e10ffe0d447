package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rentwatch/models"
)

// TelegramNotifier sends listing messages through the Telegram bot API.
type TelegramNotifier struct {
	botToken     string
	descriptions map[string]string // search config ID -> description
	client       *http.Client
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier builds a notifier around client; a nil client gets a
// default with a 10 second timeout.
func NewTelegramNotifier(botToken string, client *http.Client) *TelegramNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramNotifier{
		botToken:     botToken,
		descriptions: make(map[string]string),
		client:       client,
	}
}

// SetDescription registers the human-readable search description used in
// message headers for a config ID.
func (n *TelegramNotifier) SetDescription(configID, description string) {
	n.descriptions[configID] = description
}

func (n *TelegramNotifier) Notify(ctx context.Context, rec models.ListingRecord, chatID string) error {
	return n.sendMessage(ctx, chatID, FormatMessage(rec, n.descriptions[rec.SearchConfigID]))
}

// NotifySummary sends the per-search recap to one chat.
func (n *TelegramNotifier) NotifySummary(ctx context.Context, configID, chatID string, newListings int) error {
	return n.sendMessage(ctx, chatID, FormatSummary(n.descriptions[configID], newListings))
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, chatID, text string) error {
	if n.botToken == "" {
		return fmt.Errorf("telegram notifier misconfigured: no bot token")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// TestConnection verifies the bot token against the getMe endpoint.
func (n *TelegramNotifier) TestConnection(ctx context.Context) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/getMe", n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
