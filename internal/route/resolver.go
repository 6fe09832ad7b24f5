// Package route resolves tapped notifications to in-app destinations.
package route

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/openpark/push-agent/internal/notify"
)

// Destination names a reachable in-app screen.
type Destination string

const (
	// DestAlertConfirmation is the security check-out confirmation screen.
	DestAlertConfirmation Destination = "alert_confirmation"
	// DestDefaultEntry is the app's normal entry point.
	DestDefaultEntry Destination = "default_entry"
)

// ExtraLicensePlate is the tap-target extra carrying the vehicle the alert
// refers to. It originates in the inbound payload's auxiliary data.
const ExtraLicensePlate = "license_plate"

// NavigationIntent is the resolver's output: where to go and with what context.
type NavigationIntent struct {
	Destination Destination       `json:"destination"`
	Extras      map[string]string `json:"extras,omitempty"`
}

// CheckOutReporter is the slice of the session backend the alert flow needs.
type CheckOutReporter interface {
	// ConfirmCheckOut reports the check-out as confirmed by the owner.
	ConfirmCheckOut(ctx context.Context, licensePlate string) (bool, error)
	// ReportCheckOut flags the check-out as not performed by the owner.
	ReportCheckOut(ctx context.Context, licensePlate string) (bool, error)
}

// ErrNoLicensePlate is returned by the alert flow when a tap target
// carries no vehicle context. Confirming a placeholder plate would report
// the wrong vehicle, so the flow refuses instead.
var ErrNoLicensePlate = errors.New("tap target carries no license plate")

// Resolver decides which destination a tapped notification activates.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve maps a tap target to a navigation intent.
//
// The alert-confirmation screen is entered only for an alert route with
// forceNavigation set. Every other combination, including unrecognized
// routes from newer app versions, falls back to the default entry.
func (r *Resolver) Resolve(target notify.ActionTarget) NavigationIntent {
	if target.Route == notify.RouteAlert && target.ForceNavigation {
		return NavigationIntent{
			Destination: DestAlertConfirmation,
			Extras:      target.Extras,
		}
	}

	if target.Route != notify.RouteDefault && target.Route != notify.RouteAlert {
		log.Printf("WARNING: unknown route %q in tap target, falling back to default entry", target.Route)
	}

	return NavigationIntent{
		Destination: DestDefaultEntry,
		Extras:      target.Extras,
	}
}

// AlertFlow is the alert-confirmation screen's model: two terminal actions,
// each a single awaited call against the parking service. The flow performs
// no retries of its own; a failure surfaces to the caller, who may simply
// invoke the action again.
type AlertFlow struct {
	reporter CheckOutReporter
}

// NewAlertFlow creates an AlertFlow backed by the given session collaborator.
func NewAlertFlow(reporter CheckOutReporter) *AlertFlow {
	return &AlertFlow{reporter: reporter}
}

// PlateFromIntent extracts the license plate an alert intent refers to.
func PlateFromIntent(intent NavigationIntent) (string, error) {
	plate := intent.Extras[ExtraLicensePlate]
	if plate == "" {
		return "", ErrNoLicensePlate
	}
	return plate, nil
}

// Confirm reports the check-out as performed by the owner.
func (f *AlertFlow) Confirm(ctx context.Context, licensePlate string) error {
	if licensePlate == "" {
		return ErrNoLicensePlate
	}

	ok, err := f.reporter.ConfirmCheckOut(ctx, licensePlate)
	if err != nil {
		return fmt.Errorf("confirming check-out for %s: %w", licensePlate, err)
	}
	if !ok {
		return fmt.Errorf("parking service rejected check-out confirmation for %s", licensePlate)
	}

	log.Printf("INFO: check-out confirmed for plate %s", licensePlate)
	return nil
}

// Reject flags the check-out as not performed by the owner.
func (f *AlertFlow) Reject(ctx context.Context, licensePlate string) error {
	if licensePlate == "" {
		return ErrNoLicensePlate
	}

	ok, err := f.reporter.ReportCheckOut(ctx, licensePlate)
	if err != nil {
		return fmt.Errorf("reporting unauthorized check-out for %s: %w", licensePlate, err)
	}
	if !ok {
		return fmt.Errorf("parking service rejected unauthorized check-out report for %s", licensePlate)
	}

	log.Printf("INFO: unauthorized check-out reported for plate %s", licensePlate)
	return nil
}
