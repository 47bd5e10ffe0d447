package sheets

import (
	"context"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"rentwatch/httputil"
	"rentwatch/models"
)

// ErrNoConfigs is returned when the sheet yields no loadable rows at all.
var ErrNoConfigs = errors.New("no valid search configurations")

var requiredHeaders = []string{"url", "site", "telegram_chat_ids", "max_price_pp", "active", "description"}

// Loader reads SearchConfig rows from a Google Sheets public CSV export,
// or from a local CSV file for test runs.
type Loader struct {
	client *http.Client
}

func NewLoader(clients *httputil.Clients) *Loader {
	return &Loader{client: clients.API}
}

// Load fetches and parses the sheet. Rows with missing required fields are
// reported and skipped; inactive rows are dropped silently. Only a fully
// unloadable sheet is an error.
func (l *Loader) Load(ctx context.Context, sheetURL string) ([]models.SearchConfig, error) {
	records, err := l.fetchRecords(ctx, sheetURL)
	if err != nil {
		return nil, err
	}

	var configs []models.SearchConfig
	for i, record := range records {
		cfg, err := parseRow(record, i)
		if err != nil {
			log.Printf("Sheet row %d: %v", i+2, err)
			continue
		}
		if !cfg.Active {
			continue
		}
		configs = append(configs, cfg)
		log.Printf("Loaded config: %s (%s)", cfg.Description, cfg.Site)
	}

	if len(configs) == 0 {
		return nil, ErrNoConfigs
	}
	return configs, nil
}

// Validate checks that the sheet is reachable and carries the required
// header columns. Used by the -test-config path.
func (l *Loader) Validate(ctx context.Context, sheetURL string) error {
	records, err := l.fetchRecords(ctx, sheetURL)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("sheet has no data rows")
	}
	for _, h := range requiredHeaders {
		if _, ok := records[0][h]; !ok {
			return fmt.Errorf("missing required header: %s", h)
		}
	}
	return nil
}

func (l *Loader) fetchRecords(ctx context.Context, sheetURL string) ([]map[string]string, error) {
	if sheetURL == "" {
		return nil, fmt.Errorf("no sheet URL provided")
	}

	if !strings.HasPrefix(sheetURL, "http") {
		f, err := os.Open(sheetURL)
		if err != nil {
			return nil, fmt.Errorf("open local sheet: %w", err)
		}
		defer f.Close()
		return readCSV(f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ExportURL(sheetURL), nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sheet: status %s", resp.Status)
	}

	return readCSV(resp.Body)
}

// ExportURL converts a Google Sheets browse URL into the public CSV export
// endpoint. Non-sheet URLs (e.g. a direct CSV endpoint in tests) pass
// through unchanged.
func ExportURL(sheetURL string) string {
	if !strings.Contains(sheetURL, "/d/") {
		return sheetURL
	}
	id := strings.SplitN(strings.SplitN(sheetURL, "/d/", 2)[1], "/", 2)[0]
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=0", id)
}

func readCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty sheet")
	}

	headers := rows[0]
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(h))
	}

	var records []map[string]string
	for _, row := range rows[1:] {
		record := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				record[h] = strings.TrimSpace(row[i])
			} else {
				record[h] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func parseRow(record map[string]string, index int) (models.SearchConfig, error) {
	cfg := models.SearchConfig{
		SearchURL:   record["url"],
		Site:        strings.ToLower(record["site"]),
		Description: record["description"],
	}

	if cfg.SearchURL == "" {
		return cfg, fmt.Errorf("missing url")
	}
	if cfg.Site != models.SiteOpenRent && cfg.Site != models.SiteRightmove {
		return cfg, fmt.Errorf("unsupported site %q", record["site"])
	}

	for _, id := range strings.Split(record["telegram_chat_ids"], ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.ChatIDs = append(cfg.ChatIDs, id)
		}
	}
	if len(cfg.ChatIDs) == 0 {
		return cfg, fmt.Errorf("missing telegram_chat_ids")
	}

	maxPrice, err := strconv.ParseFloat(record["max_price_pp"], 64)
	if err != nil || maxPrice <= 0 {
		return cfg, fmt.Errorf("invalid max_price_pp %q", record["max_price_pp"])
	}
	cfg.MaxPricePerOccupant = maxPrice

	active := strings.ToLower(record["active"])
	cfg.Active = active == "true" || active == "1" || active == "yes" || active == "on"

	sum := md5.Sum([]byte(cfg.SearchURL))
	cfg.ID = fmt.Sprintf("config_%d_%s", index, hex.EncodeToString(sum[:])[:8])
	return cfg, nil
}
