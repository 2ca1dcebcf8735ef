package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"offerwall-engine/internal/observability"
)

// OfferSource supplies resolvable offer snapshots. A nil offer with a nil
// error means "not resolvable": missing, inactive or wrong status.
type OfferSource interface {
	GetActiveOffer(ctx context.Context, offerID string) (*Offer, error)
}

// Emitter records resolved clicks. Implementations must never block the
// caller or surface errors.
type Emitter interface {
	Emit(offerID string, visitor VisitorContext, result ResolutionResult)
}

// OutcomeState is the terminal state of one click resolution.
type OutcomeState string

const (
	OutcomeNotFound OutcomeState = "not_found"
	OutcomeBlocked  OutcomeState = "blocked"
	OutcomeRedirect OutcomeState = "redirect"
	OutcomeFailed   OutcomeState = "failed"
)

// Outcome is what the resolution endpoint hands back to its caller.
type Outcome struct {
	State   OutcomeState
	Geo     GeoDecision
	Result  ResolutionResult
	Visitor VisitorContext
}

// Resolver wires the offer source, geo gate, rule selector and click
// emitter into the per-click decision pipeline. It holds no cross-request
// state and is safe for concurrent use.
type Resolver struct {
	offers   OfferSource
	gate     *Gate
	selector *Selector
	emitter  Emitter
}

func NewResolver(offers OfferSource, gate *Gate, selector *Selector, emitter Emitter) *Resolver {
	return &Resolver{offers: offers, gate: gate, selector: selector, emitter: emitter}
}

// ResolveClick is the single public operation of the engine:
// load offer -> geo check -> rule selection -> click emit. Every terminal
// state is reached within this call; nothing is persisted in between.
func (r *Resolver) ResolveClick(ctx context.Context, offerID, ip, subid, userAgent, referrer string) Outcome {
	start := time.Now()
	visitor := NewVisitorContext(ip, subid, userAgent, referrer)

	offer, err := r.offers.GetActiveOffer(ctx, offerID)
	if err != nil {
		log.Error().Err(err).Str("offer_id", offerID).Msg("offer load failed")
	}
	if offer == nil {
		observability.Resolutions.WithLabelValues(string(OutcomeNotFound)).Inc()
		return Outcome{State: OutcomeNotFound, Visitor: visitor}
	}

	decision := r.gate.CheckAccess(ctx, offer, &visitor)
	if !decision.Allowed {
		observability.Resolutions.WithLabelValues(string(OutcomeBlocked)).Inc()
		observability.GeoDenials.WithLabelValues(decision.CountryCode).Inc()
		log.Info().
			Str("offer_id", offerID).
			Str("country", decision.CountryCode).
			Str("reason", decision.Reason).
			Msg("click blocked by geo gate")
		return Outcome{State: OutcomeBlocked, Geo: decision, Visitor: visitor}
	}

	result := r.selector.Resolve(ctx, offer, visitor)
	if !result.Success {
		observability.Resolutions.WithLabelValues(string(OutcomeFailed)).Inc()
		log.Warn().
			Str("offer_id", offerID).
			Str("country", visitor.CountryCode).
			Msg("no applicable rule and no fallback URL")
		return Outcome{State: OutcomeFailed, Geo: decision, Result: result, Visitor: visitor}
	}

	r.emitter.Emit(offerID, visitor, result)

	observability.Resolutions.WithLabelValues(string(OutcomeRedirect)).Inc()
	observability.ResolutionLatency.Observe(time.Since(start).Seconds())
	log.Info().
		Str("offer_id", offerID).
		Str("rule_id", result.RuleID).
		Str("label", result.Label).
		Bool("fallback", result.IsFallback).
		Int64("resolve_ms", result.ResolutionTimeMS).
		Msg("click resolved")

	return Outcome{State: OutcomeRedirect, Geo: decision, Result: result, Visitor: visitor}
}
