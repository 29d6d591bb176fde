// Package session supplies authenticated crawl contexts: browser
// cookies for driven platforms, credential sets for API platforms.
// Cookie values are opaque; only presence is checked here.
package session

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/network"

	"github.com/hqnguyen/trendwatch/internal/quota"
)

// Session is one platform's authentication material for a single run.
type Session struct {
	// Cookies, when non-empty, are installed into the browser context
	// before the first navigation.
	Cookies []*network.CookieParam
	// Credentials feed the quota router on API platforms.
	Credentials []quota.Credential
}

// FromCookieHeader parses a raw "name=value; name2=value2" cookie
// string into cookie params scoped to the platform domain.
func FromCookieHeader(header, domain string) (Session, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Session{}, fmt.Errorf("session: empty cookie header")
	}

	var cookies []*network.CookieParam
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		cookies = append(cookies, &network.CookieParam{
			Name:   strings.TrimSpace(name),
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	if len(cookies) == 0 {
		return Session{}, fmt.Errorf("session: no cookies parsed from header")
	}
	return Session{Cookies: cookies}, nil
}

// FromAPIKeys wraps a key list into a credential session, each key
// carrying the same per-run budget.
func FromAPIKeys(keys []string, budgetPerKey int) (Session, error) {
	var creds []quota.Credential
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		creds = append(creds, quota.Credential{Key: k, Budget: budgetPerKey})
	}
	if len(creds) == 0 {
		return Session{}, fmt.Errorf("session: no usable API keys")
	}
	return Session{Credentials: creds}, nil
}

// CookieHeader rebuilds the "name=value; ..." form, for plain HTTP
// probes that bypass the browser.
func (s Session) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
