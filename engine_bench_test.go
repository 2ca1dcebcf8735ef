package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"offerwall-engine/internal/engine"
)

type noopCounter struct{}

func (noopCounter) CountToday(context.Context, string, string) (int, error) { return 0, nil }

func benchOffer() *engine.Offer {
	o := &engine.Offer{
		ID:          "o1",
		Active:      true,
		Status:      engine.StatusActive,
		FallbackURL: "https://fallback.example",
	}
	for i := 1; i <= 20; i++ {
		o.Rules = append(o.Rules, engine.SmartRule{
			ID:         fmt.Sprintf("r%d", i),
			Type:       engine.RuleRotation,
			URL:        fmt.Sprintf("https://dest%d.example", i),
			Priority:   i,
			Active:     true,
			Percentage: 50,
		})
	}
	o.Normalize()
	return o
}

func BenchmarkResolve(b *testing.B) {
	s := engine.NewSelector(noopCounter{})
	offer := benchOffer()
	visitor := engine.VisitorContext{
		CountryCode: "US",
		IP:          "203.0.113.7",
		SubID:       "sub-1",
		Timestamp:   time.Now().UTC(),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Resolve(context.Background(), offer, visitor)
	}
}

func BenchmarkRotationBucket(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = engine.RotationBucket("rule-1", "sub-1", "203.0.113.7")
	}
}
