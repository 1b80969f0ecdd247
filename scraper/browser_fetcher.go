package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
)

// BrowserFetcher loads API URLs in a real Chromium so the request carries a
// genuine browser TLS and header fingerprint. The JSON body ends up inside
// a <pre> element of the rendered page.
type BrowserFetcher struct {
	socksAddr string

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewBrowserFetcher(socksAddr string) *BrowserFetcher {
	return &BrowserFetcher{socksAddr: socksAddr}
}

func (f *BrowserFetcher) ensureBrowser() error {
	if f.browser != nil && f.browser.IsConnected() {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	options := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
		},
	}
	if f.socksAddr != "" {
		options.Proxy = &playwright.Proxy{Server: "socks5://" + f.socksAddr}
	}

	browser, err := pw.Chromium.Launch(options)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launch browser: %w", err)
	}

	f.pw = pw
	f.browser = browser
	return nil
}

// FetchJSON navigates to url and returns the JSON body rendered into the
// page.
func (f *BrowserFetcher) FetchJSON(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ensureBrowser(); err != nil {
		return nil, err
	}

	page, err := f.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	humanWait(5, 20)

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	return extractPreJSON(content)
}

// extractPreJSON pulls the raw body out of the <pre> wrapper Chromium puts
// around JSON responses.
func extractPreJSON(content string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	body := strings.TrimSpace(doc.Find("pre").First().Text())
	if body == "" {
		return nil, fmt.Errorf("rendered page has no JSON body")
	}
	return []byte(body), nil
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		f.browser.Close()
		f.browser = nil
	}
	if f.pw != nil {
		f.pw.Stop()
		f.pw = nil
	}
}
