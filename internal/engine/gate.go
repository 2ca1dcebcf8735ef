package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"offerwall-engine/internal/geo"
)

// BlockedAccess is the durable audit record written when the gate denies a
// visitor, kept for later fraud review.
type BlockedAccess struct {
	OfferID          string
	IP               string
	CountryCode      string
	CountryName      string
	AllowedCountries []string
	ISP              string
	Proxy            bool
	SubID            string
	UserAgent        string
	Timestamp        time.Time
}

// BlockedAccessLogger persists blocked-access audit records.
type BlockedAccessLogger interface {
	RecordBlockedAccess(ctx context.Context, entry BlockedAccess) error
}

// Gate decides whether a visitor's country may see an offer. It is the one
// place in the engine that fails closed: geolocation outages resolve to the
// unknown country, and an unknown country is denied by any explicit
// allow-list.
type Gate struct {
	locator geo.Locator
	audit   BlockedAccessLogger
}

func NewGate(locator geo.Locator, audit BlockedAccessLogger) *Gate {
	return &Gate{locator: locator, audit: audit}
}

// CheckAccess resolves the visitor's country and tests it against the
// offer's allow-list. The resolved country is written back into visitor so
// the selector can apply per-rule geo sets afterwards. On deny, an audit
// record is written off the request path; audit failures never change the
// decision.
func (g *Gate) CheckAccess(ctx context.Context, offer *Offer, visitor *VisitorContext) (decision GeoDecision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("offer_id", offer.ID).Interface("panic", r).Msg("geo access check panicked")
			decision = GeoDecision{
				Allowed:     false,
				CountryCode: UnknownCountry,
				Reason:      "Internal error during access check",
				RedirectURL: offer.NonAccessURL,
			}
		}
	}()

	loc := g.locator.Lookup(ctx, visitor.IP)
	visitor.CountryCode = loc.CountryCode

	if len(offer.AllowedCountries) == 0 {
		return GeoDecision{
			Allowed:     true,
			CountryCode: loc.CountryCode,
			CountryName: loc.CountryName,
			Reason:      "No restrictions",
		}
	}

	country := strings.ToUpper(strings.TrimSpace(loc.CountryCode))
	if slices.Contains(offer.AllowedCountries, country) {
		return GeoDecision{
			Allowed:     true,
			CountryCode: country,
			CountryName: loc.CountryName,
			Reason:      fmt.Sprintf("Country %s is allowed", country),
		}
	}

	g.logBlocked(offer, *visitor, loc)

	return GeoDecision{
		Allowed:     false,
		CountryCode: country,
		CountryName: loc.CountryName,
		Reason: fmt.Sprintf("Country %s is not in the allowed list [%s]",
			country, strings.Join(offer.AllowedCountries, ", ")),
		RedirectURL: offer.NonAccessURL,
	}
}

// logBlocked writes the audit record on its own goroutine so the decision
// path never waits on the tracking store.
func (g *Gate) logBlocked(offer *Offer, visitor VisitorContext, loc geo.Location) {
	if g.audit == nil {
		return
	}
	entry := BlockedAccess{
		OfferID:          offer.ID,
		IP:               visitor.IP,
		CountryCode:      loc.CountryCode,
		CountryName:      loc.CountryName,
		AllowedCountries: slices.Clone(offer.AllowedCountries),
		ISP:              loc.ISP,
		Proxy:            loc.Proxy || loc.Hosting,
		SubID:            visitor.SubID,
		UserAgent:        visitor.UserAgent,
		Timestamp:        time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := g.audit.RecordBlockedAccess(ctx, entry); err != nil {
			log.Warn().Err(err).Str("offer_id", entry.OfferID).Msg("blocked-access log write failed")
		}
	}()
}
