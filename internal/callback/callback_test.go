package callback

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/modwatch/modqueue/internal/db"
)

type memContextStore struct {
	mu       sync.Mutex
	nextID   int64
	contexts map[int64]*db.CallbackContext
}

func newMemContextStore() *memContextStore {
	return &memContextStore{contexts: map[int64]*db.CallbackContext{}}
}

func (m *memContextStore) CreateCallbackContext(_ context.Context, cc *db.CallbackContext) (*db.CallbackContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cc.ID = m.nextID
	copied := *cc
	m.contexts[cc.ID] = &copied
	return cc, nil
}

func (m *memContextStore) GetCallbackContext(_ context.Context, id int64) (*db.CallbackContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc, ok := m.contexts[id]
	if !ok {
		return nil, nil
	}
	copied := *cc
	return &copied, nil
}

func (m *memContextStore) DeleteCallbackContext(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, id)
	return nil
}

func (m *memContextStore) DeleteCallbackContextsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, cc := range m.contexts {
		if cc.CreatedAt.Before(cutoff) {
			delete(m.contexts, id)
			deleted++
		}
	}
	return deleted, nil
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(newMemContextStore())

	contextID, err := store.Create(ctx, 42, db.ReviewTypeContentReport, 100, 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cc, err := store.Resolve(ctx, contextID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cc == nil {
		t.Fatalf("expected context, got nil")
	}
	if cc.ReviewID != 42 || cc.ReviewType != db.ReviewTypeContentReport || cc.ChatID != 100 || cc.TargetUserID != 7 {
		t.Fatalf("round trip mismatch: %#v", cc)
	}

	if err := store.Delete(ctx, contextID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cc, err = store.Resolve(ctx, contextID)
	if err != nil {
		t.Fatalf("resolve after delete: %v", err)
	}
	if cc != nil {
		t.Fatalf("expected nil for deleted context, got %#v", cc)
	}
}

func TestResolveUnknownAndGarbageTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(newMemContextStore())

	for _, token := range []string{"", "!!!not-base64!!!", encodeContextID(9999)} {
		cc, err := store.Resolve(ctx, token)
		if err != nil {
			t.Fatalf("resolve %q: %v", token, err)
		}
		if cc != nil {
			t.Fatalf("expected nil for token %q, got %#v", token, cc)
		}
	}
}

func TestExpiredContextResolvesToNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := newMemContextStore()
	store := NewStore(mem)

	contextID, err := store.Create(ctx, 1, db.ReviewTypeExamFailure, 0, 5)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id, err := decodeContextID(contextID)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mem.mu.Lock()
	mem.contexts[id].CreatedAt = time.Now().Add(-8 * 24 * time.Hour)
	mem.mu.Unlock()

	cc, err := store.Resolve(ctx, contextID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cc != nil {
		t.Fatalf("expected expired context to resolve to nil")
	}
}

func TestWithTTLShortensExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := newMemContextStore()
	store := NewStore(mem).WithTTL(time.Hour)

	contextID, err := store.Create(ctx, 1, db.ReviewTypeContentReport, 10, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id, err := decodeContextID(contextID)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mem.mu.Lock()
	mem.contexts[id].CreatedAt = time.Now().Add(-2 * time.Hour)
	mem.mu.Unlock()

	cc, err := store.Resolve(ctx, contextID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cc != nil {
		t.Fatal("context older than the configured TTL must resolve to nil")
	}

	fresh, err := store.Create(ctx, 2, db.ReviewTypeContentReport, 10, 3)
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	if cc, _ := store.Resolve(ctx, fresh); cc == nil {
		t.Fatal("fresh context must still resolve under the shorter TTL")
	}
}

func TestSweepDeletesOnlyStaleContexts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := newMemContextStore()
	store := NewStore(mem)

	fresh, err := store.Create(ctx, 1, db.ReviewTypeContentReport, 10, 2)
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	stale, err := store.Create(ctx, 2, db.ReviewTypeContentReport, 10, 3)
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}
	staleID, _ := decodeContextID(stale)
	mem.mu.Lock()
	mem.contexts[staleID].CreatedAt = time.Now().Add(-30 * 24 * time.Hour)
	mem.mu.Unlock()

	deleted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 swept context, got %d", deleted)
	}
	if cc, _ := store.Resolve(ctx, fresh); cc == nil {
		t.Fatalf("fresh context must survive sweep")
	}
}

func TestPayloadSizeBound(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	ids := []int64{0, 1, 255, 1 << 20, math.MaxInt64}
	for i := 0; i < 1000; i++ {
		ids = append(ids, rng.Int63())
	}
	for _, id := range ids {
		token := encodeContextID(id)
		for action := ActionSpam; action <= ActionDismiss; action++ {
			payload := BuildPayload(token, action)
			if len(payload) > MaxPayloadSize {
				t.Fatalf("payload %q for id %d exceeds %d bytes", payload, id, MaxPayloadSize)
			}
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	for action := ActionSpam; action <= ActionDismiss; action++ {
		token := encodeContextID(123456789)
		payload := BuildPayload(token, action)
		gotToken, gotAction, err := ParsePayload(payload)
		if err != nil {
			t.Fatalf("parse %q: %v", payload, err)
		}
		if gotToken != token || gotAction != action {
			t.Fatalf("round trip mismatch: %q/%v vs %q/%v", gotToken, gotAction, token, action)
		}
	}
}

func TestParsePayloadRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		"",
		"rpt:",
		"rpt:abc",
		"vote:abc:1",
		"rpt:abc:nine",
		"rpt:abc:9",
		"rpt:abc:-1",
	} {
		if _, _, err := ParsePayload(payload); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestEncodeDecodeContextID(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		id := rng.Int63()
		decoded, err := decodeContextID(encodeContextID(id))
		if err != nil {
			t.Fatalf("decode id %d: %v", id, err)
		}
		if decoded != id {
			t.Fatalf("id round trip mismatch: %d vs %d", decoded, id)
		}
	}
}
