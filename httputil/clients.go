package httputil

import (
	"math/rand"
	"net/http"
	"time"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Clients struct {
	Scraping *http.Client // for target listing sites
	API      *http.Client // for the sheets export and Telegram
}

func NewClients(pageTimeout time.Duration) *Clients {
	if pageTimeout <= 0 {
		pageTimeout = 20 * time.Second
	}

	return &Clients{
		Scraping: &http.Client{Timeout: pageTimeout},
		API:      &http.Client{Timeout: 30 * time.Second},
	}
}

// BrowserHeaders makes a request look like an ordinary browser visit.
func BrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
}

// JitterSleep pauses for a random duration between min and max
// milliseconds. Rate-limit politeness, not correctness.
func JitterSleep(minMS, maxMS int) {
	if maxMS <= minMS {
		time.Sleep(time.Duration(minMS) * time.Millisecond)
		return
	}
	delay := minMS + rand.Intn(maxMS-minMS)
	time.Sleep(time.Duration(delay) * time.Millisecond)
}
