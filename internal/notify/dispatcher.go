package notify

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/observability"
)

type recipientStore interface {
	GetChatAdmins(ctx context.Context, chatID int64) ([]*db.WebUser, error)
	GetOwners(ctx context.Context) ([]*db.WebUser, error)
}

// Dispatcher fans a message out across every enabled channel for a
// recipient. Channels are independent: one transport failing never
// stops the others, and the send succeeds when any single channel
// delivers or queues.
type Dispatcher struct {
	prefs      *Preferences
	transports []Transport
	recipients recipientStore
}

func NewDispatcher(prefs *Preferences, recipients recipientStore, transports ...Transport) *Dispatcher {
	return &Dispatcher{prefs: prefs, transports: transports, recipients: recipients}
}

// SendToUser attempts delivery on every channel the user has enabled
// for the message's event. It reports whether at least one channel
// succeeded; the error carries the first hard failure when none did.
func (d *Dispatcher) SendToUser(ctx context.Context, user *db.WebUser, msg Message) (bool, error) {
	prefs, err := d.prefs.GetOrCreate(ctx, user.ID)
	if err != nil {
		return false, errors.Wrap(err, "load notification preferences")
	}

	var (
		mu        sync.Mutex
		succeeded bool
		firstErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, transport := range d.transports {
		channel := transport.Channel()
		if !IsEnabled(prefs, channel, msg.Event) {
			continue
		}
		g.Go(func() error {
			outcome, sendErr := transport.Send(gctx, user, msg)
			observability.NotificationsTotal.WithLabelValues(string(channel), string(outcome)).Inc()

			entry := log.WithFields(log.Fields{
				"user_id": user.ID,
				"channel": channel,
				"event":   msg.Event,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case outcome.Success():
				succeeded = true
			case errors.Is(sendErr, ErrChannelDisabled):
				// nothing to deliver to on this channel, not a failure
				entry.Debug("channel disabled, skipped")
			default:
				entry.WithError(sendErr).Warn("notification delivery failed")
				if firstErr == nil {
					firstErr = errors.Wrapf(sendErr, "channel %s", channel)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if succeeded {
		return true, nil
	}
	return false, firstErr
}

// SendToChatAdmins notifies every linked admin of the chat and reports
// the per-recipient results. Recipients are independent of each other
// the same way channels are.
func (d *Dispatcher) SendToChatAdmins(ctx context.Context, chatID int64, msg Message) (map[string]bool, error) {
	admins, err := d.recipients.GetChatAdmins(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "load chat admins")
	}
	return d.sendToAll(ctx, admins, msg), nil
}

// SendToSystemOwners notifies the installation owners, used for
// platform-wide events such as impersonation alerts.
func (d *Dispatcher) SendToSystemOwners(ctx context.Context, msg Message) (map[string]bool, error) {
	owners, err := d.recipients.GetOwners(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load owners")
	}
	return d.sendToAll(ctx, owners, msg), nil
}

func (d *Dispatcher) sendToAll(ctx context.Context, users []*db.WebUser, msg Message) map[string]bool {
	results := make(map[string]bool, len(users))
	if len(users) == 0 {
		log.WithField("event", msg.Event).Warn("no recipients for notification")
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, user := range users {
		mu.Lock()
		_, dup := results[user.ID]
		if !dup {
			results[user.ID] = false
		}
		mu.Unlock()
		if dup {
			continue
		}
		g.Go(func() error {
			ok, err := d.SendToUser(gctx, user, msg)
			if err != nil {
				log.WithFields(log.Fields{
					"user_id": user.ID,
					"event":   msg.Event,
				}).WithError(err).Warn("notification undelivered on all channels")
			}
			mu.Lock()
			results[user.ID] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
