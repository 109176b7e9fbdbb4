package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/actor"
	"github.com/modwatch/modqueue/internal/db"
)

type Verdict string

const (
	VerdictSpam    Verdict = "spam"
	VerdictBan     Verdict = "ban"
	VerdictWarn    Verdict = "warn"
	VerdictDismiss Verdict = "dismiss"
)

// ErrAlreadyResolved surfaces to the losing caller of a resolution
// race. It is expected under concurrent admin action, not a fault.
var ErrAlreadyResolved = db.ErrAlreadyResolved

type store interface {
	CreateReview(ctx context.Context, review *db.Review) (*db.Review, error)
	GetReview(ctx context.Context, id int64) (*db.Review, error)
	GetPendingReviews(ctx context.Context, limit int) ([]*db.Review, error)
	ResolveReview(ctx context.Context, id int64, status db.ReviewStatus, reviewedBy actor.Actor, reviewedAt time.Time, actionTaken, adminNotes string) error
}

type Service struct {
	store store
}

func NewService(store store) *Service {
	return &Service{store: store}
}

// CreateParams carries the origin fields of a new review. Origin is
// meaningful for content reports only; the other review types leave it
// zeroed.
type CreateParams struct {
	Type    db.ReviewType
	Context db.JSONContext

	MessageID              int
	ChatID                 int64
	ReportCommandMessageID int
	ReportedByUserID       int64
	ReportedAt             time.Time
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*db.Review, error) {
	if params.Type == "" {
		return nil, fmt.Errorf("review type is required")
	}
	now := time.Now()
	reportedAt := params.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = now
	}
	review, err := s.store.CreateReview(ctx, &db.Review{
		Type:                   params.Type,
		Context:                params.Context,
		MessageID:              params.MessageID,
		ChatID:                 params.ChatID,
		ReportCommandMessageID: params.ReportCommandMessageID,
		ReportedByUserID:       params.ReportedByUserID,
		ReportedAt:             reportedAt,
		CreatedAt:              now,
	})
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	log.WithFields(log.Fields{
		"review_id": review.ID,
		"type":      review.Type,
		"chat_id":   review.ChatID,
	}).Info("review created")
	return review, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*db.Review, error) {
	return s.store.GetReview(ctx, id)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]*db.Review, error) {
	return s.store.GetPendingReviews(ctx, limit)
}

// Resolve moves a pending review into its terminal state. Losers of a
// resolution race get ErrAlreadyResolved together with the current row
// so the caller can report "already handled" without re-applying side
// effects.
func (s *Service) Resolve(ctx context.Context, id int64, verdict Verdict, reviewer actor.Actor, reason string) (*db.Review, error) {
	status := db.ReviewStatusReviewed
	if verdict == VerdictDismiss {
		status = db.ReviewStatusDismissed
	}

	err := s.store.ResolveReview(ctx, id, status, reviewer, time.Now(), string(verdict), reason)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyResolved) {
			current, getErr := s.store.GetReview(ctx, id)
			if getErr != nil {
				return nil, fmt.Errorf("review already resolved, fetch current state: %w", getErr)
			}
			return current, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("resolve review %d: %w", id, err)
	}

	resolved, err := s.store.GetReview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch resolved review %d: %w", id, err)
	}
	log.WithFields(log.Fields{
		"review_id": id,
		"verdict":   verdict,
		"reviewer":  reviewer.Tag(),
	}).Info("review resolved")
	return resolved, nil
}
