// Package classify maps raw inbound push payloads to typed notifications.
package classify

import "time"

// Kind identifies the category of an inbound notification.
type Kind string

const (
	// KindAlert is a security alert requiring owner confirmation.
	KindAlert Kind = "alert"
	// KindBroadcast is an informational broadcast from the parking operator.
	KindBroadcast Kind = "broadcast"
	// KindGeneric is any message with no recognizable metadata.
	KindGeneric Kind = "generic"
)

// Data payload keys recognized by the classifier. All other keys pass
// through untouched as auxiliary deep-link data.
const (
	KeyNotificationType  = "notification_type"
	KeyTitle             = "title"
	KeyMessage           = "message"
	KeyNotificationTitle = "notification_title"
	KeyNotificationBody  = "notification_body"
	KeyClickAction       = "click_action"
)

// ClickActionAlert is the click_action hint FCM attaches to alert pushes.
const ClickActionAlert = "OPEN_ALERT_CONFIRMATION"

// Fallback strings used when a payload carries no usable title or body.
const (
	DefaultTitle = "Notification"
	DefaultBody  = "You have a new notification"
)

// StructuredNotification is the optional notification block of an FCM
// message, set when the sender used a display message rather than a
// data-only push.
type StructuredNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// RawPush is an inbound message as delivered by the push transport.
type RawPush struct {
	From         string                  `json:"from,omitempty"`
	Data         map[string]string       `json:"data,omitempty"`
	Notification *StructuredNotification `json:"notification,omitempty"`
}

// InboundNotification is a classified push message. Constructed once per
// inbound message and never mutated afterwards.
type InboundNotification struct {
	Kind      Kind
	Title     string
	Body      string
	Auxiliary map[string]string
	Received  time.Time
}

// Classify maps a raw push payload to a typed InboundNotification.
//
// Kind discrimination: a notification_type of "alert" or an alert click
// action yields KindAlert; any other server-provided notification metadata
// yields KindBroadcast; a payload with neither yields KindGeneric.
//
// Title and body resolution, highest priority first: structured
// notification fields, then kind-specific data keys (notification_title /
// notification_body), then generic keys (title / message), then fixed
// defaults. Every lookup has a safe default; Classify never fails.
func Classify(p RawPush) InboundNotification {
	kind := discriminate(p)

	title := firstNonEmpty(
		structuredTitle(p),
		p.Data[KeyNotificationTitle],
		p.Data[KeyTitle],
		DefaultTitle,
	)
	body := firstNonEmpty(
		structuredBody(p),
		p.Data[KeyNotificationBody],
		p.Data[KeyMessage],
		DefaultBody,
	)

	return InboundNotification{
		Kind:      kind,
		Title:     title,
		Body:      body,
		Auxiliary: auxiliaryData(p.Data),
		Received:  time.Now(),
	}
}

// discriminate decides the notification kind from the payload markers.
func discriminate(p RawPush) Kind {
	if p.Data[KeyNotificationType] == string(KindAlert) || p.Data[KeyClickAction] == ClickActionAlert {
		return KindAlert
	}
	if hasNotificationMetadata(p) {
		return KindBroadcast
	}
	return KindGeneric
}

// hasNotificationMetadata reports whether the payload carries any
// server-provided notification fields at all.
func hasNotificationMetadata(p RawPush) bool {
	if p.Notification != nil && (p.Notification.Title != "" || p.Notification.Body != "") {
		return true
	}
	for _, key := range []string{KeyNotificationType, KeyNotificationTitle, KeyNotificationBody, KeyTitle, KeyMessage} {
		if p.Data[key] != "" {
			return true
		}
	}
	return false
}

// auxiliaryData returns the payload entries that are not classifier keys.
// These carry deep-link context such as the license plate of the vehicle
// an alert refers to.
func auxiliaryData(data map[string]string) map[string]string {
	aux := make(map[string]string)
	for k, v := range data {
		switch k {
		case KeyNotificationType, KeyTitle, KeyMessage, KeyNotificationTitle, KeyNotificationBody, KeyClickAction:
			continue
		}
		aux[k] = v
	}
	return aux
}

func structuredTitle(p RawPush) string {
	if p.Notification == nil {
		return ""
	}
	return p.Notification.Title
}

func structuredBody(p RawPush) string {
	if p.Notification == nil {
		return ""
	}
	return p.Notification.Body
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
