package handlers

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/adapters/verdict"
	"github.com/modwatch/modqueue/internal/bot"
	"github.com/modwatch/modqueue/internal/intake"
)

// recheckAfter bounds how often the sentry re-examines the same user.
const recheckAfter = 24 * time.Hour

// Sentry watches joins and display-name changes for lookalike
// impersonation of protected identities. Positives only open an alert
// review, the verdict always stays with a human.
type Sentry struct {
	s             bot.Service
	intake        *intake.Service
	verdicts      verdict.Client
	protected     []string
	minConfidence float64

	mu      sync.Mutex
	checked map[int64]checkRecord
}

type checkRecord struct {
	name string
	at   time.Time
}

func NewSentry(s bot.Service, in *intake.Service, verdicts verdict.Client, protected []string, minConfidence float64) *Sentry {
	return &Sentry{
		s:             s,
		intake:        in,
		verdicts:      verdicts,
		protected:     protected,
		minConfidence: minConfidence,
		checked:       map[int64]checkRecord{},
	}
}

func (s *Sentry) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if len(s.protected) == 0 || s.verdicts == nil {
		return true, nil
	}
	if chat == nil || user == nil || user.IsBot || chat.IsPrivate() {
		return true, nil
	}

	name := bot.GetFullName(user)
	if name == "" || !s.shouldCheck(user.ID, name) {
		return true, nil
	}

	result, err := s.verdicts.CheckImpersonation(ctx, name, s.protected)
	if err != nil {
		log.WithField("user_id", user.ID).WithError(err).Warn("impersonation check failed")
		return true, nil
	}
	if !result.Match || result.Confidence < s.minConfidence {
		return true, nil
	}

	rev, err := s.intake.CreateImpersonationAlert(ctx, intake.AlertParams{
		ChatID:        chat.ID,
		TargetUserID:  user.ID,
		CandidateName: name,
		ProtectedName: result.Protected,
		Confidence:    result.Confidence,
		Reason:        result.Reason,
	})
	if err != nil {
		log.WithField("user_id", user.ID).WithError(err).Error("failed to open impersonation alert")
		return true, nil
	}
	log.WithFields(log.Fields{
		"review_id":  rev.ID,
		"user_id":    user.ID,
		"confidence": result.Confidence,
	}).Warn("impersonation alert opened")
	return true, nil
}

// shouldCheck skips users whose name we already examined recently.
func (s *Sentry) shouldCheck(userID int64, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.checked[userID]
	if ok && rec.name == name && time.Since(rec.at) < recheckAfter {
		return false
	}
	s.checked[userID] = checkRecord{name: name, at: time.Now()}
	return true
}
