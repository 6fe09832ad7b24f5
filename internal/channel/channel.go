// Package channel provisions OS notification channels through the device bridge.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openpark/push-agent/internal/classify"
)

// Importance mirrors the OS channel importance levels. Channel importance
// is immutable after creation, so changing it means delete-and-recreate.
type Importance int

const (
	ImportanceDefault Importance = 3
	ImportanceHigh    Importance = 4
	ImportanceMax     Importance = 5
)

// Spec is the static configuration of one notification channel. The id is
// stable per kind for the lifetime of the install.
type Spec struct {
	ID                 string     `json:"id"`
	DisplayName        string     `json:"display_name"`
	Importance         Importance `json:"importance"`
	VibrationPatternMs []int64    `json:"vibration_pattern_ms"`
	SoundRef           string     `json:"sound_ref"`
	BypassDoNotDisturb bool       `json:"bypass_do_not_disturb"`
}

// Static channel specs, one per notification kind.
var (
	alertSpec = Spec{
		ID:                 "openpark_security_alerts",
		DisplayName:        "Security alerts",
		Importance:         ImportanceMax,
		VibrationPatternMs: []int64{0, 500, 250, 500, 250, 500},
		SoundRef:           "alert_siren",
		BypassDoNotDisturb: true,
	}
	broadcastSpec = Spec{
		ID:                 "openpark_broadcasts",
		DisplayName:        "Parking broadcasts",
		Importance:         ImportanceHigh,
		VibrationPatternMs: []int64{0, 250, 250, 250},
		SoundRef:           "default",
	}
	genericSpec = Spec{
		ID:                 "openpark_general",
		DisplayName:        "General notifications",
		Importance:         ImportanceDefault,
		VibrationPatternMs: []int64{0, 250},
		SoundRef:           "default",
	}
)

// SpecFor returns the channel spec backing a notification kind.
func SpecFor(kind classify.Kind) Spec {
	switch kind {
	case classify.KindAlert:
		return alertSpec
	case classify.KindBroadcast:
		return broadcastSpec
	default:
		return genericSpec
	}
}

// Registry is the device bridge's channel surface.
type Registry interface {
	// GetChannel returns the current spec of an existing channel, or
	// ok=false when no channel with that id exists.
	GetChannel(ctx context.Context, id string) (spec Spec, ok bool, err error)
	CreateChannel(ctx context.Context, spec Spec) error
	DeleteChannel(ctx context.Context, id string) error
}

// Provisioner ensures channels exist with their required configuration.
// Safe for concurrent use; the provisioned-id cache keeps the hot path off
// the bridge entirely.
type Provisioner struct {
	registry Registry

	mu          sync.Mutex
	provisioned map[string]Spec
}

// NewProvisioner creates a Provisioner backed by the given registry.
func NewProvisioner(registry Registry) *Provisioner {
	return &Provisioner{
		registry:    registry,
		provisioned: make(map[string]Spec),
	}
}

// EnsureChannel makes sure a channel matching spec exists.
//
// Idempotent: a channel already current is a no-op. A stale channel
// (importance or sound drifted, or deleted externally) is deleted and
// recreated, since those fields are immutable post-creation. The fast path
// is a cache hit and touches no OS state; correctness does not depend on
// the cache because creation is itself idempotent at the OS level.
func (p *Provisioner) EnsureChannel(ctx context.Context, spec Spec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.provisioned[spec.ID]; ok && specsEqual(cached, spec) {
		return nil
	}

	current, exists, err := p.registry.GetChannel(ctx, spec.ID)
	if err != nil {
		return fmt.Errorf("querying channel %s: %w", spec.ID, err)
	}

	if exists && specsEqual(current, spec) {
		p.provisioned[spec.ID] = spec
		return nil
	}

	if exists {
		if err := p.registry.DeleteChannel(ctx, spec.ID); err != nil {
			return fmt.Errorf("deleting stale channel %s: %w", spec.ID, err)
		}
	}

	if err := p.registry.CreateChannel(ctx, spec); err != nil {
		return fmt.Errorf("creating channel %s: %w", spec.ID, err)
	}

	p.provisioned[spec.ID] = spec
	return nil
}

// Invalidate drops a channel id from the cache, forcing the next
// EnsureChannel to re-check OS state. Used when the bridge reports an
// externally deleted channel.
func (p *Provisioner) Invalidate(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.provisioned, id)
}

func specsEqual(a, b Spec) bool {
	if a.ID != b.ID || a.DisplayName != b.DisplayName || a.Importance != b.Importance ||
		a.SoundRef != b.SoundRef || a.BypassDoNotDisturb != b.BypassDoNotDisturb {
		return false
	}
	if len(a.VibrationPatternMs) != len(b.VibrationPatternMs) {
		return false
	}
	for i := range a.VibrationPatternMs {
		if a.VibrationPatternMs[i] != b.VibrationPatternMs[i] {
			return false
		}
	}
	return true
}

// VibrationPattern converts a spec's pattern to durations for callers that
// want typed values rather than raw milliseconds.
func (s Spec) VibrationPattern() []time.Duration {
	out := make([]time.Duration, len(s.VibrationPatternMs))
	for i, ms := range s.VibrationPatternMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}
