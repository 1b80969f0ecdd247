package httputil

import (
	"net/http"
	"net/url"
	"time"
)

type Clients struct {
	Scraping *http.Client // routed through the Tor SOCKS proxy
	Direct   *http.Client // direct, for IP checks and internal APIs
}

// NewClients builds the two HTTP clients the bot uses. socksAddr is the
// host:port of the Tor SOCKS proxy; an empty address leaves the scraping
// client unproxied.
func NewClients(socksAddr string) *Clients {
	scraping := &http.Client{Timeout: 60 * time.Second}

	if socksAddr != "" {
		proxyURL := &url.URL{Scheme: "socks5", Host: socksAddr}
		scraping.Transport = &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			ForceAttemptHTTP2: false,
		}
	}

	return &Clients{
		Scraping: scraping,
		Direct:   &http.Client{Timeout: 30 * time.Second},
	}
}
