package notify

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/observability"
)

type redeliveryStore interface {
	GetPendingNotifications(ctx context.Context, telegramUserID int64, limit int) ([]*db.PendingNotification, error)
	DeletePendingNotification(ctx context.Context, id int64) error
	BumpPendingNotificationRetry(ctx context.Context, id int64) error
	DeleteExpiredPendingNotifications(ctx context.Context, now time.Time) (int64, error)
}

// Redeliverer drains queued Telegram notifications once a user becomes
// reachable and runs the periodic housekeeping sweeps.
type Redeliverer struct {
	bot       botSender
	store     redeliveryStore
	callbacks sweeper
	interval  time.Duration
	limit     int

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

func NewRedeliverer(bot botSender, store redeliveryStore, callbacks sweeper, interval time.Duration, limit int) *Redeliverer {
	if interval <= 0 {
		interval = time.Hour
	}
	if limit <= 0 {
		limit = 20
	}
	return &Redeliverer{bot: bot, store: store, callbacks: callbacks, interval: interval, limit: limit}
}

func (r *Redeliverer) Start(ctx context.Context) error {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()
	if r.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.runCancel = cancel

	r.workersWg.Add(1)
	go func() {
		defer r.workersWg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.sweep(runCtx)
			}
		}
	}()

	r.started = true
	return nil
}

func (r *Redeliverer) Stop(ctx context.Context) error {
	r.runMutex.Lock()
	if !r.started {
		r.runMutex.Unlock()
		return nil
	}
	r.started = false
	cancel := r.runCancel
	r.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// FlushPending sends every queued notification for the user as a plain
// DM. Call it when the user proves reachable, typically on /start in a
// private chat. Messages that fail again stay queued with a bumped
// retry count.
func (r *Redeliverer) FlushPending(ctx context.Context, telegramUserID int64) (int, error) {
	pending, err := r.store.GetPendingNotifications(ctx, telegramUserID, r.limit)
	if err != nil {
		return 0, errors.Wrap(err, "load pending notifications")
	}

	var flushed int
	for _, pn := range pending {
		msg := api.NewMessage(telegramUserID, pn.RenderedText)
		msg.ParseMode = api.ModeMarkdown
		if _, err := r.bot.Send(msg); err != nil {
			log.WithFields(log.Fields{
				"pending_id":  pn.ID,
				"retry_count": pn.RetryCount,
			}).WithError(err).Warn("pending notification redelivery failed")
			if bumpErr := r.store.BumpPendingNotificationRetry(ctx, pn.ID); bumpErr != nil {
				log.WithField("pending_id", pn.ID).WithError(bumpErr).Warn("failed to bump retry count")
			}
			continue
		}
		if err := r.store.DeletePendingNotification(ctx, pn.ID); err != nil {
			log.WithField("pending_id", pn.ID).WithError(err).Warn("failed to delete flushed pending notification")
			continue
		}
		flushed++
		observability.PendingRedeliveriesTotal.Inc()
	}
	return flushed, nil
}

func (r *Redeliverer) sweep(ctx context.Context) {
	if n, err := r.store.DeleteExpiredPendingNotifications(ctx, time.Now()); err != nil {
		log.WithError(err).Error("failed to sweep expired pending notifications")
	} else if n > 0 {
		log.WithField("count", n).Info("swept expired pending notifications")
	}

	if r.callbacks != nil {
		if n, err := r.callbacks.Sweep(ctx); err != nil {
			log.WithError(err).Error("failed to sweep stale callback contexts")
		} else if n > 0 {
			log.WithField("count", n).Info("swept stale callback contexts")
		}
	}
}
