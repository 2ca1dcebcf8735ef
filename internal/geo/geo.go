// Package geo resolves visitor IPs to countries through an external
// IP-intelligence service. Lookups never fail: any error, timeout or
// malformed answer degrades to the Unknown location so callers can apply
// their own fail-open/fail-closed policy.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Location is the structured geolocation result for one IP.
type Location struct {
	CountryCode string `json:"countryCode"`
	CountryName string `json:"country"`
	ISP         string `json:"isp"`
	Proxy       bool   `json:"proxy"`
	Hosting     bool   `json:"hosting"`
}

// Unknown is returned whenever an IP cannot be resolved.
var Unknown = Location{CountryCode: "XX", CountryName: "Unknown"}

// Locator resolves an IP to a Location.
type Locator interface {
	Lookup(ctx context.Context, ip string) Location
}

// Client queries an ip-api style JSON endpoint with a bounded timeout.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a Client for the given endpoint base URL, e.g.
// "http://ip-api.com/json". Timeout bounds the whole lookup.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

// Lookup resolves ip to a Location. Private, loopback and unparseable
// addresses short-circuit to Unknown without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) Location {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return Unknown
	}

	u := fmt.Sprintf("%s/%s?fields=country,countryCode,isp,proxy,hosting", c.endpoint, url.PathEscape(parsed.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Unknown
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("geolocation lookup failed")
		return Unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Str("ip", ip).Msg("geolocation lookup non-200")
		return Unknown
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("geolocation response decode failed")
		return Unknown
	}

	loc.CountryCode = strings.ToUpper(strings.TrimSpace(loc.CountryCode))
	if loc.CountryCode == "" {
		return Unknown
	}
	if loc.CountryName == "" {
		loc.CountryName = "Unknown"
	}
	return loc
}

// Static is a Locator returning a fixed Location, used in tests.
type Static struct{ Loc Location }

func (s Static) Lookup(context.Context, string) Location { return s.Loc }
