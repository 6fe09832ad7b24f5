// Package pipeline drives the handling of inbound push messages: classify,
// hold a wake lock, present, and record the outcome in the delivery log.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/openpark/push-agent/internal/classify"
	"github.com/openpark/push-agent/internal/notify"
	"github.com/openpark/push-agent/internal/store"
	"github.com/openpark/push-agent/internal/wake"
)

// DefaultRetention is how long delivery records are kept when the
// configuration does not say otherwise.
const DefaultRetention = 24 * time.Hour

// Presenter is the notification surface the pipeline drives. It reports
// whether the notification was actually posted so suppressed deliveries
// can be recorded as such.
type Presenter interface {
	Present(ctx context.Context, note classify.InboundNotification, target notify.ActionTarget) (bool, error)
}

// Config holds pipeline settings.
type Config struct {
	WakeTimeout time.Duration
	Retention   time.Duration
}

// Pipeline handles inbound pushes one at a time, each under its own
// wake lock. Messages are independent; a failure in one never affects
// the next.
type Pipeline struct {
	locker    wake.Locker
	presenter Presenter
	store     store.Store
	cfg       Config
}

// New creates a Pipeline.
func New(locker wake.Locker, presenter Presenter, st store.Store, cfg Config) *Pipeline {
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	return &Pipeline{
		locker:    locker,
		presenter: presenter,
		store:     st,
		cfg:       cfg,
	}
}

// Handle processes one inbound push end to end and returns the delivery
// record id. The returned error reflects the presentation attempt;
// suppression by revoked notification permission is not an error.
func (p *Pipeline) Handle(ctx context.Context, raw classify.RawPush) (string, error) {
	deliveryID := uuid.New().String()
	received := time.Now()

	var (
		note   classify.InboundNotification
		posted bool
	)

	err := wake.WithWakeLock(ctx, p.locker, p.cfg.WakeTimeout, func() error {
		note = classify.Classify(raw)
		target := notify.BuildTarget(note)

		var presentErr error
		posted, presentErr = p.presenter.Present(ctx, note, target)
		return presentErr
	})

	p.record(ctx, deliveryID, received, note, posted, err)

	if err != nil {
		log.Printf("ERROR: delivery %s failed: %v", deliveryID, err)
		return deliveryID, err
	}

	log.Printf("INFO: delivery %s handled kind=%s posted=%t", deliveryID, note.Kind, posted)
	return deliveryID, nil
}

// record writes the delivery log entry. The log is an observability aid;
// a write failure must not fail the delivery itself.
func (p *Pipeline) record(ctx context.Context, id string, received time.Time, note classify.InboundNotification, posted bool, handleErr error) {
	d := store.Delivery{
		ID:        id,
		Kind:      string(note.Kind),
		Title:     note.Title,
		CreatedAt: received,
		ExpiresAt: received.Add(p.cfg.Retention),
	}

	switch {
	case handleErr != nil:
		d.State = store.DeliveryFailed
		d.Error = handleErr.Error()
	case posted:
		d.State = store.DeliveryPosted
	default:
		d.State = store.DeliverySuppressed
	}

	if err := p.store.RecordDelivery(ctx, d); err != nil {
		log.Printf("WARNING: failed to record delivery %s: %v", id, err)
	}
}
