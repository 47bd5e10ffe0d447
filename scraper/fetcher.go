package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PageFetcher is the browser capability the Rightmove handler drives.
// Keeping it behind an interface lets pipeline tests substitute canned DOM
// snapshots for a real browser.
type PageFetcher interface {
	// Load navigates to url and waits for the DOM, failing on timeout or
	// a non-2xx-equivalent response.
	Load(ctx context.Context, url string, timeout time.Duration) error
	// ScrollToBottom triggers one scroll-to-bottom round and waits for
	// lazy content to settle.
	ScrollToBottom(ctx context.Context) error
	// Content returns the current rendered DOM as HTML.
	Content() (string, error)
	Close() error
}

// PlaywrightFetcher drives a single headless Chromium page.
type PlaywrightFetcher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	page        playwright.Page
	initialized bool
}

var _ PageFetcher = (*PlaywrightFetcher)(nil)

func NewPlaywrightFetcher() *PlaywrightFetcher {
	return &PlaywrightFetcher{}
}

func (f *PlaywrightFetcher) ensureBrowser() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	var err error
	f.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	f.browser, err = f.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	f.page, err = f.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	f.initialized = true
	return nil
}

func (f *PlaywrightFetcher) Load(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.ensureBrowser(); err != nil {
		return err
	}

	resp, err := f.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	if resp != nil && (resp.Status() < 200 || resp.Status() >= 300) {
		return fmt.Errorf("goto %s: status %d", url, resp.Status())
	}

	// Let late scripts populate listing cards
	f.page.WaitForTimeout(float64(1500 + rand.Intn(1500)))
	return nil
}

func (f *PlaywrightFetcher) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !f.initialized {
		return fmt.Errorf("fetcher not initialized")
	}

	if _, err := f.page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	f.page.WaitForTimeout(float64(1500 + rand.Intn(1000)))
	return nil
}

func (f *PlaywrightFetcher) Content() (string, error) {
	if !f.initialized {
		return "", fmt.Errorf("fetcher not initialized")
	}
	return f.page.Content()
}

func (f *PlaywrightFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.page != nil {
		f.page.Close()
		f.page = nil
	}
	if f.browser != nil {
		f.browser.Close()
		f.browser = nil
	}
	if f.pw != nil {
		f.pw.Stop()
		f.pw = nil
	}
	f.initialized = false
	return nil
}
