package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/modwatch/modqueue/internal/db"
)

func TestPendingNotificationLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	now := time.Now()
	pn, err := client.CreatePendingNotification(ctx, &db.PendingNotification{
		TelegramUserID:   777,
		NotificationType: "report_created",
		RenderedText:     "🔔 new report",
		CreatedAt:        now,
		ExpiresAt:        now.Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create pending notification: %v", err)
	}
	if pn.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	got, err := client.GetPendingNotifications(ctx, 777, 0)
	if err != nil {
		t.Fatalf("get pending notifications: %v", err)
	}
	if len(got) != 1 || got[0].RetryCount != 0 {
		t.Fatalf("unexpected pending rows: %#v", got)
	}

	if err := client.BumpPendingNotificationRetry(ctx, pn.ID); err != nil {
		t.Fatalf("bump retry: %v", err)
	}
	got, err = client.GetPendingNotifications(ctx, 777, 0)
	if err != nil {
		t.Fatalf("get pending notifications: %v", err)
	}
	if got[0].RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", got[0].RetryCount)
	}

	if err := client.DeletePendingNotification(ctx, pn.ID); err != nil {
		t.Fatalf("delete pending notification: %v", err)
	}
	got, err = client.GetPendingNotifications(ctx, 777, 0)
	if err != nil {
		t.Fatalf("get pending notifications: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(got))
	}
}

func TestExpiredPendingNotificationsAreInvisibleAndSweepable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	now := time.Now()
	if _, err := client.CreatePendingNotification(ctx, &db.PendingNotification{
		TelegramUserID:   42,
		NotificationType: "report_created",
		RenderedText:     "stale",
		CreatedAt:        now.Add(-31 * 24 * time.Hour),
		ExpiresAt:        now.Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("create expired notification: %v", err)
	}

	got, err := client.GetPendingNotifications(ctx, 42, 0)
	if err != nil {
		t.Fatalf("get pending notifications: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expired rows must not be returned, got %d", len(got))
	}

	swept, err := client.DeleteExpiredPendingNotifications(ctx, now)
	if err != nil {
		t.Fatalf("sweep expired: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept row, got %d", swept)
	}
}

func TestPushSubscriptionDeleteByEndpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	now := time.Now()
	for _, endpoint := range []string{"https://push.example/a", "https://push.example/b"} {
		if _, err := client.CreatePushSubscription(ctx, &db.PushSubscription{
			UserID:    "u1",
			Endpoint:  endpoint,
			P256dh:    "key",
			Auth:      "auth",
			CreatedAt: now,
		}); err != nil {
			t.Fatalf("create subscription %s: %v", endpoint, err)
		}
	}

	if err := client.DeletePushSubscription(ctx, "https://push.example/a"); err != nil {
		t.Fatalf("delete subscription: %v", err)
	}

	subs, err := client.GetPushSubscriptions(ctx, "u1")
	if err != nil {
		t.Fatalf("get subscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/b" {
		t.Fatalf("unexpected surviving subscriptions: %#v", subs)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.GetPreferences(ctx, "nobody"); err == nil {
		t.Fatalf("expected error for missing preferences")
	}

	prefs := &db.NotificationPreferences{
		UserID:    "u1",
		Channels:  db.StringSet{"telegram", "email"},
		Matrix:    db.EventMatrix{"telegram:report_created": false},
		UpdatedAt: time.Now(),
	}
	if err := client.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("save preferences: %v", err)
	}

	got, err := client.GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if !got.Channels.Contains("email") || got.Channels.Contains("webpush") {
		t.Fatalf("unexpected channels: %#v", got.Channels)
	}
	if enabled, ok := got.Matrix["telegram:report_created"]; !ok || enabled {
		t.Fatalf("explicit opt-out lost: %#v", got.Matrix)
	}
}
