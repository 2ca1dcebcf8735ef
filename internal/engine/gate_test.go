package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerwall-engine/internal/geo"
)

type fakeAudit struct {
	mu      sync.Mutex
	entries []BlockedAccess
	err     error
	done    chan struct{}
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{done: make(chan struct{}, 8)}
}

func (f *fakeAudit) RecordBlockedAccess(_ context.Context, entry BlockedAccess) error {
	f.mu.Lock()
	f.entries = append(f.entries, entry)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakeAudit) wait(t *testing.T) BlockedAccess {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no blocked-access record written")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[len(f.entries)-1]
}

func restrictedOffer(countries ...string) *Offer {
	o := &Offer{
		ID:               "o1",
		Active:           true,
		Status:           StatusActive,
		AllowedCountries: countries,
		NonAccessURL:     "https://blocked.example",
	}
	o.Normalize()
	return o
}

func TestCheckAccess_NoRestrictions(t *testing.T) {
	tests := []struct {
		name string
		loc  geo.Location
	}{
		{"known country", geo.Location{CountryCode: "US", CountryName: "United States"}},
		{"unknown country", geo.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(geo.Static{Loc: tt.loc}, nil)
			offer := &Offer{ID: "o1", Active: true, Status: StatusActive}
			visitor := NewVisitorContext("203.0.113.7", "", "", "")

			d := gate.CheckAccess(context.Background(), offer, &visitor)
			assert.True(t, d.Allowed)
			assert.Equal(t, "No restrictions", d.Reason)
			assert.Equal(t, tt.loc.CountryCode, visitor.CountryCode)
		})
	}
}

func TestCheckAccess_AllowedCountry(t *testing.T) {
	gate := NewGate(geo.Static{Loc: geo.Location{CountryCode: "US", CountryName: "United States"}}, nil)
	visitor := NewVisitorContext("203.0.113.7", "", "", "")

	d := gate.CheckAccess(context.Background(), restrictedOffer("US", "CA"), &visitor)
	assert.True(t, d.Allowed)
	assert.Equal(t, "US", d.CountryCode)
	assert.Equal(t, "US", visitor.CountryCode)
}

func TestCheckAccess_CaseInsensitiveAllowList(t *testing.T) {
	// Allow-list values arrive from loosely typed documents; Normalize trims
	// and upcases them before membership checks.
	gate := NewGate(geo.Static{Loc: geo.Location{CountryCode: "US"}}, nil)
	visitor := NewVisitorContext("203.0.113.7", "", "", "")

	d := gate.CheckAccess(context.Background(), restrictedOffer(" us ", "ca"), &visitor)
	assert.True(t, d.Allowed)
}

func TestCheckAccess_DeniedCountry(t *testing.T) {
	audit := newFakeAudit()
	gate := NewGate(geo.Static{Loc: geo.Location{CountryCode: "DE", CountryName: "Germany", ISP: "Example ISP"}}, audit)
	visitor := NewVisitorContext("203.0.113.7", "sub-1", "agent", "")

	d := gate.CheckAccess(context.Background(), restrictedOffer("US", "CA"), &visitor)
	require.False(t, d.Allowed)
	assert.Equal(t, "DE", d.CountryCode)
	assert.Contains(t, d.Reason, "DE")
	assert.Contains(t, d.Reason, "US, CA")
	assert.Equal(t, "https://blocked.example", d.RedirectURL)

	entry := audit.wait(t)
	assert.Equal(t, "o1", entry.OfferID)
	assert.Equal(t, "DE", entry.CountryCode)
	assert.Equal(t, "Example ISP", entry.ISP)
	assert.Equal(t, []string{"US", "CA"}, entry.AllowedCountries)
}

func TestCheckAccess_GeolocationFailureFailsClosed(t *testing.T) {
	// Lookup timeouts degrade to the unknown country, which no explicit
	// allow-list contains.
	audit := newFakeAudit()
	gate := NewGate(geo.Static{Loc: geo.Unknown}, audit)
	visitor := NewVisitorContext("203.0.113.7", "", "", "")

	d := gate.CheckAccess(context.Background(), restrictedOffer("US", "CA"), &visitor)
	require.False(t, d.Allowed)
	assert.Equal(t, UnknownCountry, d.CountryCode)
}

func TestCheckAccess_AuditFailureDoesNotChangeDecision(t *testing.T) {
	audit := newFakeAudit()
	audit.err = context.DeadlineExceeded
	gate := NewGate(geo.Static{Loc: geo.Location{CountryCode: "DE"}}, audit)
	visitor := NewVisitorContext("203.0.113.7", "", "", "")

	d := gate.CheckAccess(context.Background(), restrictedOffer("US"), &visitor)
	assert.False(t, d.Allowed)
	audit.wait(t)
}

type panicLocator struct{}

func (panicLocator) Lookup(context.Context, string) geo.Location { panic("locator exploded") }

func TestCheckAccess_InternalPanicFailsClosed(t *testing.T) {
	gate := NewGate(panicLocator{}, nil)
	visitor := NewVisitorContext("203.0.113.7", "", "", "")

	d := gate.CheckAccess(context.Background(), restrictedOffer("US"), &visitor)
	require.False(t, d.Allowed)
	assert.Equal(t, UnknownCountry, d.CountryCode)
	assert.Equal(t, "https://blocked.example", d.RedirectURL)
}
