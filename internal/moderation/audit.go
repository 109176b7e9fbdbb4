package moderation

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/actor"
	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/infra"
)

const auditWriteTimeout = 5 * time.Second

type auditStore interface {
	AddModerationAction(ctx context.Context, action *db.ModerationAction) error
}

// Audit mirrors every resolution and side effect into the append-only
// moderation log. Writes are fire-and-forget: a failed audit write is
// logged and never blocks or fails the action that produced it.
type Audit struct {
	store auditStore
}

func NewAudit(store auditStore) *Audit {
	return &Audit{store: store}
}

func (a *Audit) Record(eventType string, who actor.Actor, target actor.Actor, value string) {
	entry := &db.ModerationAction{
		ID:        uuid.NewString(),
		EventType: eventType,
		Actor:     who,
		Target:    target,
		Value:     value,
		CreatedAt: time.Now(),
	}
	go infra.GoRecoverable(1, "audit-write", func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := a.store.AddModerationAction(ctx, entry); err != nil {
			log.WithFields(log.Fields{
				"event_type": eventType,
				"actor":      who.Tag(),
			}).WithError(err).Warn("failed to write audit record")
		}
	})
}
