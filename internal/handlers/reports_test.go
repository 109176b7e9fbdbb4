package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/modwatch/modqueue/internal/actor"
	"github.com/modwatch/modqueue/internal/bot"
	"github.com/modwatch/modqueue/internal/callback"
	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/moderation"
	"github.com/modwatch/modqueue/internal/review"
)

// memBackend implements every store surface the report pipeline needs.
type memBackend struct {
	mu           sync.Mutex
	nextReviewID int64
	nextCtxID    int64
	reviews      map[int64]*db.Review
	contexts     map[int64]*db.CallbackContext
	actions      []*db.ModerationAction
	deleted      map[int64]bool
}

func newMemBackend() *memBackend {
	return &memBackend{
		reviews:  map[int64]*db.Review{},
		contexts: map[int64]*db.CallbackContext{},
		deleted:  map[int64]bool{},
	}
}

func (b *memBackend) CreateReview(_ context.Context, r *db.Review) (*db.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextReviewID++
	cp := *r
	cp.ID = b.nextReviewID
	cp.Status = db.ReviewStatusPending
	b.reviews[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (b *memBackend) GetReview(_ context.Context, id int64) (*db.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (b *memBackend) GetPendingReviews(_ context.Context, limit int) ([]*db.Review, error) {
	return nil, nil
}

func (b *memBackend) ResolveReview(_ context.Context, id int64, status db.ReviewStatus, reviewedBy actor.Actor, reviewedAt time.Time, actionTaken, adminNotes string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[id]
	if !ok {
		return db.ErrNotFound
	}
	if r.Status != db.ReviewStatusPending {
		return db.ErrAlreadyResolved
	}
	r.Status = status
	reviewer := reviewedBy
	r.ReviewedBy = &reviewer
	r.ReviewedAt = &reviewedAt
	r.ActionTaken = actionTaken
	r.AdminNotes = adminNotes
	return nil
}

func (b *memBackend) MarkMessageDeleted(_ context.Context, reviewID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted[reviewID] = true
	return nil
}

func (b *memBackend) CreateCallbackContext(_ context.Context, cc *db.CallbackContext) (*db.CallbackContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextCtxID++
	cp := *cc
	cp.ID = b.nextCtxID
	b.contexts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (b *memBackend) GetCallbackContext(_ context.Context, id int64) (*db.CallbackContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.contexts[id]
	if !ok {
		return nil, nil
	}
	cp := *cc
	return &cp, nil
}

func (b *memBackend) DeleteCallbackContext(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.contexts, id)
	return nil
}

func (b *memBackend) DeleteCallbackContextsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (b *memBackend) AddModerationAction(_ context.Context, action *db.ModerationAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, action)
	return nil
}

type fakeChatOps struct {
	mu       sync.Mutex
	answers  []string
	edits    []string
	deletes  []int
	banned   []int64
	replies  []string
}

func (o *fakeChatOps) AnswerCallback(_ context.Context, _ string, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answers = append(o.answers, text)
	return nil
}

func (o *fakeChatOps) EditMessageRemoveKeyboard(_ context.Context, _ int64, _ int, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edits = append(o.edits, text)
	return nil
}

func (o *fakeChatOps) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes = append(o.deletes, messageID)
	return nil
}

func (o *fakeChatOps) BanUser(_ context.Context, userID int64, _ int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.banned = append(o.banned, userID)
	return nil
}

func (o *fakeChatOps) SendReply(_ context.Context, _ int64, _ int, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replies = append(o.replies, text)
	return nil
}

func newTestReports(backend *memBackend, ops *fakeChatOps) (*Reports, *callback.Store) {
	callbacks := callback.NewStore(backend)
	reviews := review.NewService(backend)
	executor := moderation.NewExecutor(reviews, ops, backend, moderation.NewAudit(backend))
	return NewReports(bot.NewService(nil, nil), nil, executor, callbacks, reviews, nil, nil, ops), callbacks
}

func callbackUpdate(data string, adminID int64) *api.Update {
	return &api.Update{
		CallbackQuery: &api.CallbackQuery{
			ID:   "cq1",
			From: &api.User{ID: adminID},
			Message: &api.Message{
				MessageID: 77,
				Chat:      api.Chat{ID: adminID},
			},
			Data: data,
		},
	}
}

func TestFormatQueue(t *testing.T) {
	t.Parallel()

	if got := formatQueue(nil); got != "The review queue is empty." {
		t.Fatalf("empty queue = %q", got)
	}

	created := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	got := formatQueue([]*db.Review{
		{ID: 4, Type: db.ReviewTypeContentReport, Context: db.JSONContext{"chat_title": "Gophers"}, CreatedAt: created},
		{ID: 9, Type: db.ReviewTypeImpersonationAlert, CreatedAt: created},
	})
	want := "2 pending review(s):\n" +
		"#4 content_report in \"Gophers\" (2026-08-01 09:30)\n" +
		"#9 impersonation_alert (2026-08-01 09:30)"
	if got != want {
		t.Fatalf("queue text = %q, want %q", got, want)
	}
}

func TestCallbackVerdictResolvesReview(t *testing.T) {
	t.Parallel()

	backend := newMemBackend()
	ops := &fakeChatOps{}
	reports, callbacks := newTestReports(backend, ops)

	rev, err := backend.CreateReview(context.Background(), &db.Review{
		Type:      db.ReviewTypeContentReport,
		MessageID: 200,
		ChatID:    -100,
	})
	if err != nil {
		t.Fatalf("seed review: %v", err)
	}
	contextID, err := callbacks.Create(context.Background(), rev.ID, rev.Type, rev.ChatID, 42)
	if err != nil {
		t.Fatalf("create context: %v", err)
	}

	u := callbackUpdate(callback.BuildPayload(contextID, callback.ActionSpam), 900)
	proceed, err := reports.Handle(context.Background(), u, nil, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if proceed {
		t.Fatal("review callbacks must consume the update")
	}

	current, _ := backend.GetReview(context.Background(), rev.ID)
	if current.Status != db.ReviewStatusReviewed || current.ActionTaken != "spam" {
		t.Fatalf("review = %s/%q", current.Status, current.ActionTaken)
	}
	if current.ReviewedBy == nil || current.ReviewedBy.Tag() != "tg:900" {
		t.Fatalf("reviewer = %+v", current.ReviewedBy)
	}
	if len(ops.deletes) != 1 || ops.deletes[0] != 200 {
		t.Fatalf("deletes = %v", ops.deletes)
	}
	if len(ops.answers) != 1 || ops.answers[0] != "✓ Marked as spam" {
		t.Fatalf("answers = %v", ops.answers)
	}
	if len(ops.edits) != 1 {
		t.Fatalf("edits = %v, want the keyboard cleaned up", ops.edits)
	}
}

func TestCallbackExpiredButtonAnswersGracefully(t *testing.T) {
	t.Parallel()

	backend := newMemBackend()
	ops := &fakeChatOps{}
	reports, _ := newTestReports(backend, ops)

	u := callbackUpdate("rpt:AAAA:0", 900)
	if _, err := reports.Handle(context.Background(), u, nil, nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(ops.answers) != 1 || ops.answers[0] != "This button has expired." {
		t.Fatalf("answers = %v", ops.answers)
	}
	if len(ops.deletes) != 0 || len(ops.banned) != 0 {
		t.Fatal("expired buttons must not reach the executor")
	}
}

func TestCallbackSecondTapReportsWinner(t *testing.T) {
	t.Parallel()

	backend := newMemBackend()
	ops := &fakeChatOps{}
	reports, callbacks := newTestReports(backend, ops)

	rev, _ := backend.CreateReview(context.Background(), &db.Review{
		Type:      db.ReviewTypeContentReport,
		MessageID: 200,
		ChatID:    -100,
	})
	contextID, _ := callbacks.Create(context.Background(), rev.ID, rev.Type, rev.ChatID, 42)
	secondContextID, _ := callbacks.Create(context.Background(), rev.ID, rev.Type, rev.ChatID, 42)

	first := callbackUpdate(callback.BuildPayload(contextID, callback.ActionDismiss), 900)
	if _, err := reports.Handle(context.Background(), first, nil, nil); err != nil {
		t.Fatalf("first Handle: %v", err)
	}

	second := callbackUpdate(callback.BuildPayload(secondContextID, callback.ActionTempBan), 901)
	if _, err := reports.Handle(context.Background(), second, nil, nil); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if len(ops.banned) != 0 {
		t.Fatal("losing tap must not ban anyone")
	}
	if len(ops.answers) != 2 || ops.answers[1] != "Already handled by tg:900" {
		t.Fatalf("answers = %v", ops.answers)
	}
}
