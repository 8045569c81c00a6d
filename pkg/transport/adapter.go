package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// Template placeholders understood by ParseTemplate.
const (
	// PlaceholderEscaped is replaced by the query-escaped target URL.
	PlaceholderEscaped = "{url}"

	// PlaceholderRaw is replaced by the target URL verbatim.
	PlaceholderRaw = "{raw}"
)

// Adapter turns a target URL into the URL actually requested.
type Adapter struct {
	// Name identifies the relay in logs, metrics and cooldown state.
	Name string

	// Rewrite maps the upstream URL to the relay URL.
	Rewrite func(target string) string
}

// Direct returns an adapter that requests the target URL without a relay.
func Direct() Adapter {
	return Adapter{
		Name:    "direct",
		Rewrite: func(target string) string { return target },
	}
}

// ParseTemplate builds an adapter from a URL template containing exactly one
// of PlaceholderEscaped or PlaceholderRaw.
//
// Example:
//
//	https://corsproxy.io/?{url}
//	https://cors-anywhere.herokuapp.com/{raw}
func ParseTemplate(name, tmpl string) (Adapter, error) {
	if name == "" {
		return Adapter{}, fmt.Errorf("relay name is required")
	}

	escaped := strings.Count(tmpl, PlaceholderEscaped)
	raw := strings.Count(tmpl, PlaceholderRaw)
	if escaped+raw != 1 {
		return Adapter{}, fmt.Errorf("relay %s: template must contain exactly one of %s or %s", name, PlaceholderEscaped, PlaceholderRaw)
	}

	if escaped == 1 {
		return Adapter{
			Name: name,
			Rewrite: func(target string) string {
				return strings.Replace(tmpl, PlaceholderEscaped, url.QueryEscape(target), 1)
			},
		}, nil
	}

	return Adapter{
		Name: name,
		Rewrite: func(target string) string {
			return strings.Replace(tmpl, PlaceholderRaw, target, 1)
		},
	}, nil
}

// mustTemplate is used for the built-in relay list only.
func mustTemplate(name, tmpl string) Adapter {
	a, err := ParseTemplate(name, tmpl)
	if err != nil {
		panic(err)
	}
	return a
}

// DefaultRelays returns the public relays in priority order. Relays that need
// no authorization and answer fastest come first.
func DefaultRelays() []Adapter {
	return []Adapter{
		mustTemplate("corsproxy", "https://corsproxy.io/?{url}"),
		mustTemplate("codetabs", "https://api.codetabs.com/v1/proxy?quest={url}"),
		mustTemplate("cors-anywhere", "https://cors-anywhere.herokuapp.com/{raw}"),
		mustTemplate("allorigins", "https://api.allorigins.win/raw?url={url}"),
	}
}
