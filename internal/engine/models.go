package engine

import (
	"strings"
	"time"
)

// RuleType discriminates the four smart-rule kinds.
type RuleType string

const (
	RuleGeo      RuleType = "GEO"
	RuleRotation RuleType = "Rotation"
	RuleTime     RuleType = "Time"
	RuleBackup   RuleType = "Backup"
)

// Offer status values as stored by the offer-management subsystem.
const (
	StatusActive   = "Active"
	StatusPaused   = "Paused"
	StatusInactive = "Inactive"
	StatusPending  = "Pending"
)

// UnknownCountry is the sentinel used when geolocation cannot resolve an IP.
const UnknownCountry = "XX"

// DefaultSubID is used when the affiliate supplied no sub-identifier.
const DefaultSubID = "direct"

// LabelFallback marks results served from the offer-level fallback URL.
const LabelFallback = "FALLBACK"

// TimeWindow is an inclusive hour-of-day range. StartHour > EndHour means
// the window wraps across midnight.
type TimeWindow struct {
	StartHour int
	EndHour   int
}

// Contains reports whether the given hour falls inside the window.
func (w TimeWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour <= w.EndHour
	}
	return hour >= w.StartHour || hour <= w.EndHour
}

// SmartRule is one conditional routing entry attached to an offer.
// Geo/Percentage/DailyCap/Window are meaningful per Type; Normalize
// canonicalizes them once at load time so the selector never re-validates.
type SmartRule struct {
	ID         string
	Type       RuleType
	Geo        []string // country codes; empty = any country
	URL        string
	Priority   int // 1 = highest
	Active     bool
	Percentage int // Rotation only, 0-100
	DailyCap   int // 0 = unlimited
	Window     *TimeWindow
}

// Offer is the resolution-relevant snapshot of an advertiser campaign.
// Owned and mutated by the offer-management subsystem; read-only here.
type Offer struct {
	ID               string
	Active           bool
	Status           string
	AllowedCountries []string // empty = unrestricted
	NonAccessURL     string
	FallbackURL      string
	Rules            []SmartRule
}

// Resolvable reports whether the offer may serve traffic at all.
func (o *Offer) Resolvable() bool {
	return o != nil && o.Active && o.Status == StatusActive
}

// Normalize canonicalizes country codes and clamps rule fields. Called once
// when an offer snapshot is loaded, since rules come out of loosely typed
// storage documents.
func (o *Offer) Normalize() {
	o.AllowedCountries = normalizeCountries(o.AllowedCountries)
	for i := range o.Rules {
		r := &o.Rules[i]
		r.Geo = normalizeCountries(r.Geo)
		if r.Percentage > 100 {
			r.Percentage = 100
		}
		if r.DailyCap < 0 {
			r.DailyCap = 0
		}
		if r.Priority < 1 {
			r.Priority = 1
		}
		if r.Window != nil {
			if r.Window.StartHour < 0 || r.Window.StartHour > 23 ||
				r.Window.EndHour < 0 || r.Window.EndHour > 23 {
				r.Window = nil
			}
		}
	}
}

func normalizeCountries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// VisitorContext carries the per-request visitor attributes. Never persisted
// as an entity; a derived click record is written by the emitter.
type VisitorContext struct {
	CountryCode string
	IP          string
	SubID       string
	UserAgent   string
	Referrer    string
	Timestamp   time.Time
}

// NewVisitorContext fills defaults: subid falls back to "direct", country
// starts unknown until the geo gate resolves it, timestamp is UTC now.
func NewVisitorContext(ip, subid, userAgent, referrer string) VisitorContext {
	if strings.TrimSpace(subid) == "" {
		subid = DefaultSubID
	}
	return VisitorContext{
		CountryCode: UnknownCountry,
		IP:          ip,
		SubID:       subid,
		UserAgent:   userAgent,
		Referrer:    referrer,
		Timestamp:   time.Now().UTC(),
	}
}

// GeoDecision is the outcome of the geo-access gate.
type GeoDecision struct {
	Allowed     bool
	CountryCode string
	CountryName string
	Reason      string
	RedirectURL string // non-access URL on deny, may be empty
}

// ResolutionResult is returned to the caller and partially persisted via the
// click emitter. RuleID/RuleType are empty for fallback results.
type ResolutionResult struct {
	DestinationURL   string
	RuleID           string
	RuleType         RuleType
	Label            string
	Success          bool
	IsFallback       bool
	ResolutionTimeMS int64
}
