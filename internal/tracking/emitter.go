// Package tracking decouples click persistence from the redirect path.
// A resolved click is queued and written by a background worker; the
// visitor's redirect never waits on the tracking store.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"offerwall-engine/internal/engine"
	"offerwall-engine/internal/observability"
	"offerwall-engine/internal/storage"
)

// ClickWriter persists click records.
type ClickWriter interface {
	InsertClick(ctx context.Context, rec storage.ClickRecord) error
}

// DefaultBuffer is the emitter queue depth. When full, records are dropped
// and counted rather than backpressuring the redirect.
const DefaultBuffer = 1024

const writeTimeout = 5 * time.Second

// Emitter is a fire-and-forget click recorder.
type Emitter struct {
	writer ClickWriter
	queue  chan storage.ClickRecord
	wg     sync.WaitGroup
	once   sync.Once
}

func NewEmitter(writer ClickWriter, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	e := &Emitter{
		writer: writer,
		queue:  make(chan storage.ClickRecord, buffer),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Emit queues a click record. Never blocks: if the queue is full the record
// is dropped with a metric and a warning.
func (e *Emitter) Emit(offerID string, visitor engine.VisitorContext, result engine.ResolutionResult) {
	rec := storage.ClickRecord{
		ID:             uuid.NewString(),
		OfferID:        offerID,
		RuleID:         result.RuleID,
		RuleType:       string(result.RuleType),
		Label:          result.Label,
		DestinationURL: result.DestinationURL,
		IsFallback:     result.IsFallback,
		IP:             visitor.IP,
		SubID:          visitor.SubID,
		CountryCode:    visitor.CountryCode,
		UserAgent:      visitor.UserAgent,
		Referrer:       visitor.Referrer,
		ClickedAt:      visitor.Timestamp,
	}

	select {
	case e.queue <- rec:
	default:
		observability.EmitterDropped.Inc()
		log.Warn().Str("offer_id", offerID).Msg("click emitter queue full, record dropped")
	}
}

// Close stops accepting records and drains the queue.
func (e *Emitter) Close() {
	e.once.Do(func() { close(e.queue) })
	e.wg.Wait()
}

func (e *Emitter) run() {
	defer e.wg.Done()
	for rec := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := e.writer.InsertClick(ctx, rec); err != nil {
			log.Warn().Err(err).
				Str("offer_id", rec.OfferID).
				Str("click_id", rec.ID).
				Msg("click write failed")
		}
		cancel()
	}
}
