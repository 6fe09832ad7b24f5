// Package token forwards push-identity rotations to the session backend.
package token

import (
	"context"
	"log"
	"time"

	"github.com/openpark/push-agent/internal/store"
)

// Reporter is the slice of the session backend the bridge needs.
type Reporter interface {
	UpdateFCMToken(ctx context.Context, token string) error
}

// Bridge observes push-token rotations and reports each new token to the
// session backend exactly once, best-effort. The platform owns the token;
// the bridge never generates or invalidates one itself.
type Bridge struct {
	reporter Reporter
	store    store.Store
}

// NewBridge creates a Bridge.
func NewBridge(reporter Reporter, st store.Store) *Bridge {
	return &Bridge{
		reporter: reporter,
		store:    st,
	}
}

// OnRotation handles a single token-rotation event.
//
// Success and failure are both logged; a failure is not retried and never
// blocks message handling, since a missed sync self-heals on the next
// rotation or the next login. The last synced token is persisted so a
// login flow can tell whether the backend is current.
func (b *Bridge) OnRotation(ctx context.Context, newToken string) {
	if newToken == "" {
		log.Printf("WARNING: ignoring empty token rotation event")
		return
	}

	if err := b.reporter.UpdateFCMToken(ctx, newToken); err != nil {
		log.Printf("ERROR: failed to report rotated token %s: %v", truncateToken(newToken), err)
		return
	}

	log.Printf("INFO: reported rotated token %s to session backend", truncateToken(newToken))

	if err := b.store.SaveTokenSync(ctx, store.TokenSync{Token: newToken, SyncedAt: time.Now()}); err != nil {
		log.Printf("WARNING: failed to persist token sync record: %v", err)
	}
}

// Run consumes rotation events until the channel closes or the context is
// canceled. Each channel element is one rotation, so at-most-once
// reporting per rotation falls out of the loop structure.
func (b *Bridge) Run(ctx context.Context, rotations <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case newToken, ok := <-rotations:
			if !ok {
				return
			}
			b.OnRotation(ctx, newToken)
		}
	}
}

// LastSynced returns the last token successfully reported, if any.
func (b *Bridge) LastSynced(ctx context.Context) (string, bool, error) {
	sync, found, err := b.store.LoadTokenSync(ctx)
	if err != nil || !found {
		return "", false, err
	}
	return sync.Token, true, nil
}

// truncateToken returns a truncated version of the FCM token for logging.
// FCM tokens are sensitive and should not be fully logged.
func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "..." + token[len(token)-6:]
}
