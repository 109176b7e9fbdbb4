package callback

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/db"
)

// DefaultTTL bounds how long an inline button stays actionable before
// the admin has to fall back to the web console.
const DefaultTTL = 7 * 24 * time.Hour

type contextStore interface {
	CreateCallbackContext(ctx context.Context, cc *db.CallbackContext) (*db.CallbackContext, error)
	GetCallbackContext(ctx context.Context, id int64) (*db.CallbackContext, error)
	DeleteCallbackContext(ctx context.Context, id int64) error
	DeleteCallbackContextsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store hands out short opaque tokens that map back to
// (review, chat, target user) so callback payloads stay constant-size
// regardless of entity key width.
type Store struct {
	store contextStore
	ttl   time.Duration
}

func NewStore(store contextStore) *Store {
	return &Store{store: store, ttl: DefaultTTL}
}

// WithTTL overrides how long a context stays resolvable.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func (s *Store) Create(ctx context.Context, reviewID int64, reviewType db.ReviewType, chatID, targetUserID int64) (string, error) {
	cc, err := s.store.CreateCallbackContext(ctx, &db.CallbackContext{
		ReviewID:     reviewID,
		ReviewType:   reviewType,
		ChatID:       chatID,
		TargetUserID: targetUserID,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("create callback context: %w", err)
	}
	return encodeContextID(cc.ID), nil
}

// Resolve returns nil when the token is expired, already consumed or
// never existed. Callers treat nil as "button stale".
func (s *Store) Resolve(ctx context.Context, contextID string) (*db.CallbackContext, error) {
	id, err := decodeContextID(contextID)
	if err != nil {
		log.WithField("context_id", contextID).WithError(err).Debug("undecodable callback context id")
		return nil, nil
	}
	cc, err := s.store.GetCallbackContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get callback context: %w", err)
	}
	if cc == nil {
		return nil, nil
	}
	if time.Since(cc.CreatedAt) > s.ttl {
		if err := s.store.DeleteCallbackContext(ctx, cc.ID); err != nil {
			log.WithField("context_id", cc.ID).WithError(err).Warn("failed to delete expired callback context")
		}
		return nil, nil
	}
	return cc, nil
}

func (s *Store) Delete(ctx context.Context, contextID string) error {
	id, err := decodeContextID(contextID)
	if err != nil {
		return nil
	}
	return s.store.DeleteCallbackContext(ctx, id)
}

// Sweep drops contexts older than the TTL.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeleteCallbackContextsBefore(ctx, time.Now().Add(-s.ttl))
}
