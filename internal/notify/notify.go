package notify

import (
	"context"
	"errors"

	"github.com/modwatch/modqueue/internal/db"
)

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWebPush  Channel = "webpush"
)

type EventType string

const (
	EventReportCreated         EventType = "report_created"
	EventImpersonationDetected EventType = "impersonation_detected"
	EventExamFailed            EventType = "exam_failed"
	EventReportResolved        EventType = "report_resolved"
)

// Outcome is the per-channel delivery result. Queued means the message
// is parked for redelivery and will arrive later, which callers treat
// as success.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) Success() bool {
	return o == OutcomeDelivered || o == OutcomeQueued
}

// ErrChannelDisabled marks a transport that is not configured (no SMTP
// host, no VAPID material). Dispatch treats it like a transport failure
// but logs it quieter since it is configuration-driven.
var ErrChannelDisabled = errors.New("channel disabled")

type (
	// ReviewRef ties a notification to a pending review so the Telegram
	// transport can attach action buttons.
	ReviewRef struct {
		ReviewID     int64
		ReviewType   db.ReviewType
		ChatID       int64
		TargetUserID int64
	}

	Message struct {
		Event   EventType
		Subject string
		Body    string
		Review  *ReviewRef
	}

	Transport interface {
		Channel() Channel
		Send(ctx context.Context, user *db.WebUser, msg Message) (Outcome, error)
	}
)
