package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/modwatch/modqueue/internal/db"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (s *memKV) GetKV(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memKV) SetKV(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type memSubStore struct {
	mu   sync.Mutex
	subs []*db.PushSubscription
}

func (s *memSubStore) GetPushSubscriptions(_ context.Context, userID string) ([]*db.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.PushSubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memSubStore) DeletePushSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.Endpoint == endpoint {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return nil
		}
	}
	return nil
}

// browserKeys fabricates the client-side keying material a browser
// would hand over in PushSubscription.toJSON().
func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate subscription key: %v", err)
	}
	authBytes := make([]byte, 16)
	if _, err := rand.Read(authBytes); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(authBytes)
}

func TestWebPushPrunesExpiredSubscriptions(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	p256dh, auth := browserKeys(t)
	subs := &memSubStore{subs: []*db.PushSubscription{
		{ID: 1, UserID: "u1", Endpoint: server.URL + "/gone", P256dh: p256dh, Auth: auth},
		{ID: 2, UserID: "u1", Endpoint: server.URL + "/live", P256dh: p256dh, Auth: auth},
	}}

	vapid := NewVAPIDProvider(newMemKV(), "ops@example.org", nil)
	tr := NewWebPushTransport(subs, vapid)

	outcome, err := tr.Send(context.Background(), &db.WebUser{ID: "u1"}, Message{
		Event:   EventReportCreated,
		Subject: "New report",
		Body:    "details",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if outcome != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered", outcome)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits["/gone"] != 1 || hits["/live"] != 1 {
		t.Fatalf("endpoint hits = %v, want one each", hits)
	}

	remaining, _ := subs.GetPushSubscriptions(context.Background(), "u1")
	if len(remaining) != 1 {
		t.Fatalf("%d subscriptions remain, want 1", len(remaining))
	}
	if remaining[0].Endpoint != server.URL+"/live" {
		t.Fatalf("wrong subscription pruned, kept %s", remaining[0].Endpoint)
	}
}

func TestWebPushNoSubscriptionsIsDisabled(t *testing.T) {
	t.Parallel()

	vapid := NewVAPIDProvider(newMemKV(), "ops@example.org", nil)
	tr := NewWebPushTransport(&memSubStore{}, vapid)

	outcome, err := tr.Send(context.Background(), &db.WebUser{ID: "nobody"}, Message{Event: EventReportCreated})
	if !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("err = %v, want ErrChannelDisabled", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
}

func TestVAPIDKeysPersistAcrossRestarts(t *testing.T) {
	t.Parallel()

	kv := newMemKV()
	first, err := NewVAPIDProvider(kv, "ops@example.org", nil).Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	second, err := NewVAPIDProvider(kv, "ops@example.org", nil).Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if first.Public != second.Public || first.Private != second.Private {
		t.Fatal("keypair changed across provider instances")
	}
	if first.Subject != "mailto:ops@example.org" {
		t.Fatalf("subject = %q", first.Subject)
	}
}

func TestVAPIDSubjectFallsBackToOwner(t *testing.T) {
	t.Parallel()

	p := NewVAPIDProvider(newMemKV(), "", func(context.Context) string { return "owner@example.org" })
	keys, err := p.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if keys.Subject != "mailto:owner@example.org" {
		t.Fatalf("subject = %q", keys.Subject)
	}
}

func TestVAPIDWithoutContactDisablesChannel(t *testing.T) {
	t.Parallel()

	p := NewVAPIDProvider(newMemKV(), "", nil)
	if _, err := p.Keys(context.Background()); !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("err = %v, want ErrChannelDisabled", err)
	}
}
