package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/notify"
	"github.com/modwatch/modqueue/internal/review"
)

const excerptLimit = 280

type reviewCreator interface {
	Create(ctx context.Context, params review.CreateParams) (*db.Review, error)
}

type dispatcher interface {
	SendToChatAdmins(ctx context.Context, chatID int64, msg notify.Message) (map[string]bool, error)
	SendToSystemOwners(ctx context.Context, msg notify.Message) (map[string]bool, error)
}

// Service is the single entry point for everything that can open a
// review: member reports, the impersonation detector and failed
// entrance exams. Creating the review and notifying its audience are
// one operation here so no caller can forget the second half.
type Service struct {
	reviews    reviewCreator
	dispatcher dispatcher
}

func NewService(reviews reviewCreator, dispatcher dispatcher) *Service {
	return &Service{reviews: reviews, dispatcher: dispatcher}
}

type ReportParams struct {
	ChatID                 int64
	ChatTitle              string
	MessageID              int
	ReportCommandMessageID int
	ReportedByUserID       int64
	ReporterName           string
	TargetUserID           int64
	TargetName             string
	MessageText            string
}

// CreateContentReport opens a review for a reported message and pings
// the chat's admins with action buttons.
func (s *Service) CreateContentReport(ctx context.Context, params ReportParams) (*db.Review, error) {
	rev, err := s.reviews.Create(ctx, review.CreateParams{
		Type: db.ReviewTypeContentReport,
		Context: db.JSONContext{
			"chat_title":     params.ChatTitle,
			"target_user_id": params.TargetUserID,
			"target_name":    params.TargetName,
			"excerpt":        excerpt(params.MessageText),
		},
		MessageID:              params.MessageID,
		ChatID:                 params.ChatID,
		ReportCommandMessageID: params.ReportCommandMessageID,
		ReportedByUserID:       params.ReportedByUserID,
		ReportedAt:             time.Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create content report")
	}

	subject := fmt.Sprintf("New report in %s", params.ChatTitle)
	body := fmt.Sprintf("%s reported a message by %s:\n%s",
		params.ReporterName, params.TargetName, excerpt(params.MessageText))
	results, err := s.dispatcher.SendToChatAdmins(ctx, params.ChatID, notify.Message{
		Event:   notify.EventReportCreated,
		Subject: subject,
		Body:    body,
		Review: &notify.ReviewRef{
			ReviewID:     rev.ID,
			ReviewType:   rev.Type,
			ChatID:       params.ChatID,
			TargetUserID: params.TargetUserID,
		},
	})
	if err != nil {
		log.WithField("review_id", rev.ID).WithError(err).Error("failed to notify chat admins")
	} else {
		log.WithFields(log.Fields{
			"review_id":  rev.ID,
			"recipients": len(results),
		}).Info("content report created")
	}
	return rev, nil
}

type AlertParams struct {
	ChatID        int64
	TargetUserID  int64
	CandidateName string
	ProtectedName string
	Confidence    float64
	Reason        string
}

// CreateImpersonationAlert opens a review for a suspected identity
// imitation and notifies the installation owners.
func (s *Service) CreateImpersonationAlert(ctx context.Context, params AlertParams) (*db.Review, error) {
	rev, err := s.reviews.Create(ctx, review.CreateParams{
		Type: db.ReviewTypeImpersonationAlert,
		Context: db.JSONContext{
			"chat_id":        params.ChatID,
			"target_user_id": params.TargetUserID,
			"candidate_name": params.CandidateName,
			"protected_name": params.ProtectedName,
			"confidence":     params.Confidence,
			"reason":         params.Reason,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create impersonation alert")
	}

	body := fmt.Sprintf("%q looks like %q (confidence %.2f): %s",
		params.CandidateName, params.ProtectedName, params.Confidence, params.Reason)
	if _, err := s.dispatcher.SendToSystemOwners(ctx, notify.Message{
		Event:   notify.EventImpersonationDetected,
		Subject: "Possible impersonation detected",
		Body:    body,
		Review: &notify.ReviewRef{
			ReviewID:     rev.ID,
			ReviewType:   rev.Type,
			ChatID:       params.ChatID,
			TargetUserID: params.TargetUserID,
		},
	}); err != nil {
		log.WithField("review_id", rev.ID).WithError(err).Error("failed to notify owners")
	}
	return rev, nil
}

type ExamParams struct {
	TelegramUserID int64
	UserName       string
	Score          int
	Threshold      int
	Answers        map[string]string
}

// CreateExamFailure records a failed entrance exam for owner review.
func (s *Service) CreateExamFailure(ctx context.Context, params ExamParams) (*db.Review, error) {
	answers := make(db.JSONContext, len(params.Answers))
	for q, a := range params.Answers {
		answers[q] = a
	}
	rev, err := s.reviews.Create(ctx, review.CreateParams{
		Type: db.ReviewTypeExamFailure,
		Context: db.JSONContext{
			"telegram_user_id": params.TelegramUserID,
			"user_name":        params.UserName,
			"score":            params.Score,
			"threshold":        params.Threshold,
			"answers":          map[string]any(answers),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create exam failure")
	}

	if _, err := s.dispatcher.SendToSystemOwners(ctx, notify.Message{
		Event:   notify.EventExamFailed,
		Subject: "Entrance exam failed",
		Body: fmt.Sprintf("%s scored %d of %d required.",
			params.UserName, params.Score, params.Threshold),
		Review: &notify.ReviewRef{
			ReviewID:     rev.ID,
			ReviewType:   rev.Type,
			TargetUserID: params.TelegramUserID,
		},
	}); err != nil {
		log.WithField("review_id", rev.ID).WithError(err).Error("failed to notify owners")
	}
	return rev, nil
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + "…"
}
