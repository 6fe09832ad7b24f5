// Package notify builds and enqueues device notifications for classified messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/openpark/push-agent/internal/channel"
	"github.com/openpark/push-agent/internal/classify"
)

// Notification categories understood by the device bridge.
const (
	CategoryAlarm   = "alarm"
	CategoryMessage = "message"
)

// PriorityMax is the only priority the agent posts at; suppressed pushes
// are worse than noisy ones for a parking security product.
const PriorityMax = 2

// Action ids attached to posted notifications.
const (
	ActionTap  = "tap"
	ActionOpen = "open"
)

// ErrPermissionDenied is returned by a Poster when the user has revoked
// notification permission. The presenter swallows it: the user made an
// explicit choice and the agent must stay up.
var ErrPermissionDenied = errors.New("notification permission not granted")

// Action is a tappable affordance on a posted notification. Every action
// carries the same serialized target payload.
type Action struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Target string `json:"target"`
}

// PlatformNotification is the request the device bridge turns into an OS
// notification. This shape is the tray wire format and must stay
// compatible with what the bridge expects.
type PlatformNotification struct {
	ID         int64    `json:"id"`
	ChannelID  string   `json:"channel_id"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Category   string   `json:"category"`
	Priority   int      `json:"priority"`
	FullScreen bool     `json:"full_screen"`
	TapTarget  string   `json:"tap_target"`
	Actions    []Action `json:"actions,omitempty"`
}

// Poster is the device bridge's notification tray surface.
type Poster interface {
	Post(ctx context.Context, n PlatformNotification) error
}

// Presenter builds platform notifications from classified messages and
// enqueues them via the bridge.
type Presenter struct {
	poster      Poster
	provisioner *channel.Provisioner
}

// NewPresenter creates a Presenter.
func NewPresenter(poster Poster, provisioner *channel.Provisioner) *Presenter {
	return &Presenter{
		poster:      poster,
		provisioner: provisioner,
	}
}

// BuildTarget constructs the tap target for a classified message. Alerts
// force navigation into the confirmation screen; everything else lands on
// the default entry. The message's auxiliary data rides along as extras so
// deep-link context (license plate, lot id) reaches the resolver.
func BuildTarget(note classify.InboundNotification) ActionTarget {
	target := ActionTarget{
		Route:            RouteDefault,
		Extras:           note.Auxiliary,
		CreatedAtEpochMs: note.Received.UnixMilli(),
	}
	if note.Kind == classify.KindAlert {
		target.Route = RouteAlert
		target.ForceNavigation = true
	}
	return target
}

// Present provisions the kind's channel and enqueues exactly one OS
// notification for the message. The returned posted flag is false when
// the notification was suppressed rather than enqueued.
//
// Alerts get a full-screen presentation plus a redundant "open" action
// pointing at the same destination, defending against platforms that
// suppress the primary tap intent under power or permission restrictions.
// Notification ids derive from arrival time so rapid successive alerts
// never overwrite one another in the tray.
//
// A permission fault is caught and logged, never escalated.
func (p *Presenter) Present(ctx context.Context, note classify.InboundNotification, target ActionTarget) (bool, error) {
	spec := channel.SpecFor(note.Kind)
	if err := p.provisioner.EnsureChannel(ctx, spec); err != nil {
		return false, fmt.Errorf("provisioning channel for %s: %w", note.Kind, err)
	}

	encoded, err := EncodeTarget(target)
	if err != nil {
		return false, fmt.Errorf("encoding tap target: %w", err)
	}

	n := PlatformNotification{
		ID:        note.Received.UnixNano(),
		ChannelID: spec.ID,
		Title:     note.Title,
		Body:      note.Body,
		Category:  CategoryMessage,
		Priority:  PriorityMax,
		TapTarget: encoded,
	}

	if note.Kind == classify.KindAlert {
		n.Category = CategoryAlarm
		n.FullScreen = true
		n.Actions = []Action{{
			ID:     ActionOpen,
			Label:  "Open",
			Target: encoded,
		}}
	}

	if err := p.poster.Post(ctx, n); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			log.Printf("WARNING: notification permission not granted, dropping %s notification %d", note.Kind, n.ID)
			return false, nil
		}
		return false, fmt.Errorf("posting notification %d: %w", n.ID, err)
	}

	log.Printf("INFO: posted %s notification %d on channel %s", note.Kind, n.ID, spec.ID)
	return true, nil
}
