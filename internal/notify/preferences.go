package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modwatch/modqueue/internal/db"
)

type prefStore interface {
	GetPreferences(ctx context.Context, userID string) (*db.NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs *db.NotificationPreferences) error
}

// Preferences wraps the per-user channel×event enablement matrix.
type Preferences struct {
	store prefStore
}

func NewPreferences(store prefStore) *Preferences {
	return &Preferences{store: store}
}

func defaultPreferences(userID string) *db.NotificationPreferences {
	return &db.NotificationPreferences{
		UserID:    userID,
		Channels:  db.StringSet{string(ChannelTelegram), string(ChannelEmail), string(ChannelWebPush)},
		Matrix:    db.EventMatrix{},
		UpdatedAt: time.Now(),
	}
}

// GetOrCreate upserts defaults on first read so every user implicitly
// has preferences without a provisioning step.
func (p *Preferences) GetOrCreate(ctx context.Context, userID string) (*db.NotificationPreferences, error) {
	prefs, err := p.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("get preferences: %w", err)
		}
		prefs = defaultPreferences(userID)
		if err := p.store.SavePreferences(ctx, prefs); err != nil {
			return nil, fmt.Errorf("save default preferences: %w", err)
		}
	}
	return prefs, nil
}

// IsEnabled reports whether the (channel, event) pair is on. An
// explicit matrix entry wins; absence means enabled. Moderation events
// fail open so opting out always takes a deliberate step.
func IsEnabled(prefs *db.NotificationPreferences, channel Channel, event EventType) bool {
	if prefs == nil {
		return true
	}
	if !prefs.Channels.Contains(string(channel)) {
		return false
	}
	if enabled, ok := prefs.Matrix[matrixKey(channel, event)]; ok {
		return enabled
	}
	return true
}

func matrixKey(channel Channel, event EventType) string {
	return string(channel) + ":" + string(event)
}
