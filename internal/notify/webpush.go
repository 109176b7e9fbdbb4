package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/db"
)

type subscriptionStore interface {
	GetPushSubscriptions(ctx context.Context, userID string) ([]*db.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// WebPushTransport delivers to every browser subscription the user has
// registered. One user, many browsers: delivery succeeds when at least
// one endpoint accepts the payload.
type WebPushTransport struct {
	subs       subscriptionStore
	vapid      *VAPIDProvider
	httpClient *http.Client
}

func NewWebPushTransport(subs subscriptionStore, vapid *VAPIDProvider) *WebPushTransport {
	return &WebPushTransport{subs: subs, vapid: vapid}
}

func (t *WebPushTransport) Channel() Channel {
	return ChannelWebPush
}

func (t *WebPushTransport) Send(ctx context.Context, user *db.WebUser, msg Message) (Outcome, error) {
	keys, err := t.vapid.Keys(ctx)
	if err != nil {
		if errors.Is(err, ErrChannelDisabled) {
			return OutcomeFailed, err
		}
		return OutcomeFailed, errors.Wrap(err, "vapid keys")
	}

	subs, err := t.subs.GetPushSubscriptions(ctx, user.ID)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "load push subscriptions")
	}
	if len(subs) == 0 {
		return OutcomeFailed, ErrChannelDisabled
	}

	payload, err := json.Marshal(map[string]string{
		"title": msg.Subject,
		"body":  msg.Body,
		"event": string(msg.Event),
	})
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "marshal push payload")
	}

	var delivered int
	var lastErr error
	for _, sub := range subs {
		if err := t.sendOne(ctx, sub, payload, keys); err != nil {
			lastErr = err
			log.WithField("endpoint", sub.Endpoint).WithError(err).Warn("push delivery failed")
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return OutcomeFailed, lastErr
	}
	return OutcomeDelivered, nil
}

func (t *WebPushTransport) sendOne(ctx context.Context, sub *db.PushSubscription, payload []byte, keys *VAPIDKeys) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.httpClient,
		Subscriber:      keys.Subject,
		VAPIDPublicKey:  keys.Public,
		VAPIDPrivateKey: keys.Private,
		TTL:             3600,
	})
	if err != nil {
		return errors.Wrap(err, "send push")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// the browser dropped the subscription, forget it
		if err := t.subs.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			log.WithField("endpoint", sub.Endpoint).WithError(err).Warn("failed to prune expired push subscription")
		}
		return errors.Errorf("subscription expired: %d", resp.StatusCode)
	default:
		return errors.Errorf("push service returned %d", resp.StatusCode)
	}
}
