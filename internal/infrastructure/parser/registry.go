package parser

import (
	"fmt"
	"net/url"
	"strings"

	"ReviewGuard/internal/locator"
)

// DefaultRegistry registers every built-in platform adapter.
func DefaultRegistry() *locator.Registry {
	reg := locator.NewRegistry()
	reg.Register(NewAmazonLocator())
	reg.Register(NewYouTubeLocator())
	reg.Register(NewTwitterLocator())
	return reg
}

// SelectLocator picks the adapter once at startup: an explicit platform name
// wins, otherwise the host of pageURL decides.
func SelectLocator(reg *locator.Registry, platform, pageURL string) (locator.Locator, error) {
	if reg == nil {
		return nil, fmt.Errorf("locator registry is not configured")
	}
	if strings.TrimSpace(platform) != "" {
		return reg.Resolve(platform)
	}

	parsed, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("cannot infer platform from %q; pass a platform explicitly", pageURL)
	}
	l, err := reg.Select(parsed.Hostname())
	if err != nil {
		return nil, fmt.Errorf("select locator: %w", err)
	}
	return l, nil
}
