package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram  TelegramConfig
	Sheets    SheetsConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	DBPath    string
	DBURL     string // when set, Postgres is used instead of SQLite
	LogPath   string
	Retention time.Duration
	Sites     map[string]*SiteConfig
}

type TelegramConfig struct {
	BotToken string
}

type SheetsConfig struct {
	URL string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	MaxListings  int
	DiscoveryCap int
	ScrollRounds int
	PageTimeout  time.Duration
	MinDelayMS   int
	MaxDelayMS   int
}

// SiteConfig carries the per-site extraction selectors, loaded from
// config/sites/*.yaml.
type SiteConfig struct {
	ID      string    `yaml:"id"`
	Name    string    `yaml:"name"`
	Handler string    `yaml:"handler"` // http or browser
	BaseURL string    `yaml:"base_url"`
	Search  Selectors `yaml:"search"`
	Detail  Selectors `yaml:"detail"`
}

// Selectors are goquery CSS selectors for one page shape. Comma-separated
// alternatives are valid anywhere a selector appears.
type Selectors struct {
	Card     string `yaml:"card"`
	Link     string `yaml:"link"`
	Title    string `yaml:"title"`
	Location string `yaml:"location"`
	Price    string `yaml:"price"`
	Bedrooms string `yaml:"bedrooms"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Sheets: SheetsConfig{
			URL: os.Getenv("GOOGLE_SHEETS_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvDuration("SCRAPE_INTERVAL", 30*time.Minute),
			Cron:     os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			MaxListings:  getEnvInt("SCRAPE_MAX_LISTINGS", 15),
			DiscoveryCap: getEnvInt("SCRAPE_DISCOVERY_CAP", 60),
			ScrollRounds: getEnvInt("SCRAPE_SCROLL_ROUNDS", 10),
			PageTimeout:  getEnvDuration("SCRAPE_PAGE_TIMEOUT", 20*time.Second),
			MinDelayMS:   getEnvInt("SCRAPE_MIN_DELAY_MS", 1000),
			MaxDelayMS:   getEnvInt("SCRAPE_MAX_DELAY_MS", 3000),
		},
		DBPath:    getEnv("DB_PATH", "rentwatch.db"),
		DBURL:     os.Getenv("DATABASE_URL"),
		LogPath:   getEnv("LOG_PATH", "rentwatch.log"),
		Retention: time.Duration(getEnvInt("RETENTION_DAYS", 30)) * 24 * time.Hour,
		Sites:     make(map[string]*SiteConfig),
	}

	if err := cfg.loadSiteConfigs(getEnv("SITES_DIR", "config/sites")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSiteConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return err
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
