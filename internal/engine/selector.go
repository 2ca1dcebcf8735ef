package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// ClickCounter reports how many clicks a rule has served today (UTC day).
type ClickCounter interface {
	CountToday(ctx context.Context, offerID, ruleID string) (int, error)
}

// Selector picks the destination URL for an allowed visitor by walking the
// offer's smart rules in priority order.
type Selector struct {
	counter ClickCounter
	now     func() time.Time
}

func NewSelector(counter ClickCounter) *Selector {
	return &Selector{counter: counter, now: func() time.Time { return time.Now().UTC() }}
}

// Resolve filters the offer's rules down to the ones applicable to this
// visitor, walks them by priority, and returns the first selectable rule
// that is under its daily cap. Capped rules cascade to the next candidate,
// then to Backup rules, then to the offer fallback URL. Internal failures
// degrade to the fallback path; they never propagate to the visitor.
func (s *Selector) Resolve(ctx context.Context, offer *Offer, visitor VisitorContext) (result ResolutionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("offer_id", offer.ID).Interface("panic", r).Msg("rule resolution panicked")
			result = s.fallbackResult(offer)
		}
		result.ResolutionTimeMS = time.Since(start).Milliseconds()
	}()

	hour := visitor.Timestamp.Hour()
	if visitor.Timestamp.IsZero() {
		hour = s.now().Hour()
	}

	candidates := applicableRules(offer.Rules, visitor.CountryCode, hour)
	slices.SortFunc(candidates, func(a, b SmartRule) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return strings.Compare(a.ID, b.ID)
	})

	// First pass: non-backup rules by priority, capped rules fall through.
	for _, r := range candidates {
		if r.Type == RuleBackup {
			continue
		}
		if !s.selectable(r, visitor) {
			continue
		}
		if !s.underCap(ctx, offer.ID, r) {
			log.Debug().Str("offer_id", offer.ID).Str("rule_id", r.ID).Msg("rule at daily cap, cascading")
			continue
		}
		return s.ruleResult(r)
	}

	// Second pass: backup rules by priority.
	for _, r := range candidates {
		if r.Type != RuleBackup {
			continue
		}
		if !s.underCap(ctx, offer.ID, r) {
			continue
		}
		return s.ruleResult(r)
	}

	return s.fallbackResult(offer)
}

// applicableRules drops inactive rules, rules whose geo set excludes the
// visitor, and Time rules whose window does not contain the current hour.
func applicableRules(rules []SmartRule, country string, hour int) []SmartRule {
	out := make([]SmartRule, 0, len(rules))
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if len(r.Geo) > 0 && !slices.Contains(r.Geo, country) {
			continue
		}
		if r.Type == RuleTime && r.Window != nil && !r.Window.Contains(hour) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// selectable applies the type-specific predicate for the first pass.
func (s *Selector) selectable(r SmartRule, visitor VisitorContext) bool {
	switch r.Type {
	case RuleGeo:
		// The geo filter already enforced membership; a GEO rule with an
		// empty geo set matches any country.
		return len(r.Geo) == 0 || slices.Contains(r.Geo, visitor.CountryCode)
	case RuleRotation:
		if r.Percentage >= 100 {
			return true
		}
		if r.Percentage <= 0 {
			return false
		}
		return RotationBucket(r.ID, visitor.SubID, visitor.IP) <= r.Percentage
	case RuleTime:
		return true
	default:
		return false
	}
}

// RotationBucket maps a (rule, subid, ip) tuple onto [1,100]. The same
// tuple always lands in the same bucket, so a visitor sticks to one side of
// a split for as long as their IP holds; distribution across distinct
// subids is uniform.
func RotationBucket(ruleID, subid, ip string) int {
	h := xxhash.Sum64String(ruleID + "|" + subid + "|" + ip)
	return int(h%100) + 1
}

// underCap checks the rule's daily cap against today's click count. A count
// lookup failure marks the rule unavailable so the cascade continues; that
// keeps a broken counter from blowing through a configured ceiling.
func (s *Selector) underCap(ctx context.Context, offerID string, r SmartRule) bool {
	if r.DailyCap <= 0 {
		return true
	}
	n, err := s.counter.CountToday(ctx, offerID, r.ID)
	if err != nil {
		log.Warn().Err(err).Str("offer_id", offerID).Str("rule_id", r.ID).Msg("click count unavailable, skipping rule")
		return false
	}
	return n < r.DailyCap
}

func (s *Selector) ruleResult(r SmartRule) ResolutionResult {
	return ResolutionResult{
		DestinationURL: r.URL,
		RuleID:         r.ID,
		RuleType:       r.Type,
		Label:          fmt.Sprintf("%s_Priority_%d", r.Type, r.Priority),
		Success:        true,
	}
}

func (s *Selector) fallbackResult(offer *Offer) ResolutionResult {
	if offer.FallbackURL == "" {
		return ResolutionResult{
			Label:   LabelFallback,
			Success: false,
		}
	}
	return ResolutionResult{
		DestinationURL: offer.FallbackURL,
		Label:          LabelFallback,
		Success:        true,
		IsFallback:     true,
	}
}
