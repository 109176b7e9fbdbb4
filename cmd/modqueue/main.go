package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/adapters/verdict"
	"github.com/modwatch/modqueue/internal/bot"
	"github.com/modwatch/modqueue/internal/callback"
	"github.com/modwatch/modqueue/internal/config"
	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/db/sqlite"
	"github.com/modwatch/modqueue/internal/handlers"
	"github.com/modwatch/modqueue/internal/infra"
	"github.com/modwatch/modqueue/internal/infrastructure/telegram"
	"github.com/modwatch/modqueue/internal/intake"
	"github.com/modwatch/modqueue/internal/lifecycle"
	"github.com/modwatch/modqueue/internal/moderation"
	"github.com/modwatch/modqueue/internal/notify"
	"github.com/modwatch/modqueue/internal/observability"
	"github.com/modwatch/modqueue/internal/review"
)

func main() {
	regenerateVAPID := flag.Bool("regenerate-vapid", false, "replace the web push keypair and exit (invalidates all subscriptions)")
	flag.Parse()

	cfg := config.Get()
	log.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		QuoteEmptyFields: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	dbClient, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, "modqueue.db")
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Errorln("cant close database")
		}
	}()

	vapid := notify.NewVAPIDProvider(dbClient, cfg.WebPush.Contact, ownerContact(dbClient))
	if *regenerateVAPID {
		if _, err := vapid.Regenerate(ctx); err != nil {
			log.WithError(err).Fatalln("cant regenerate vapid keypair")
		}
		return
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	service := bot.NewService(botAPI, dbClient)
	callbacks := callback.NewStore(dbClient).WithTTL(cfg.Sweep.CallbackTTL)
	reviews := review.NewService(dbClient)

	dispatcher := notify.NewDispatcher(
		notify.NewPreferences(dbClient),
		dbClient,
		notify.NewTelegramTransport(botAPI, dbClient, callbacks).WithPendingTTL(cfg.Sweep.PendingTTL),
		notify.NewEmailTransport(cfg.Email),
		notify.NewWebPushTransport(dbClient, vapid),
	)

	ops := telegram.NewOperations(botAPI)
	executor := moderation.NewExecutor(reviews, ops, dbClient, moderation.NewAudit(dbClient)).WithNotifier(dispatcher)
	in := intake.NewService(reviews, dispatcher)
	redeliverer := notify.NewRedeliverer(botAPI, dbClient, callbacks, cfg.Sweep.Interval, cfg.Sweep.RedeliveryLimit)

	var verdicts verdict.Client
	if cfg.Verdict.APIKey != "" {
		verdicts = verdict.NewOpenAI(cfg.Verdict.APIKey, cfg.Verdict.Model, cfg.Verdict.BaseURL, log.WithField("adapter", "verdict"))
	}

	updateProcessor := bot.NewUpdateProcessor(service,
		handlers.NewReports(service, in, executor, callbacks, reviews, redeliverer, dbClient, ops),
		handlers.NewSentry(service, in, verdicts, cfg.Verdict.ProtectedNames, cfg.Verdict.MinConfidence),
	)

	runtime := lifecycle.NewRuntime(redeliverer)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop components")
		}
	}()

	go infra.GoRecoverable(-1, "process_updates", func() {
		defer cancelFunc()

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

		for {
			select {
			case err := <-errorChan:
				log.WithError(err).Errorln("bot api get updates error")
				return
			case update := <-updateChan:
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-ctx.Done():
				log.WithError(ctx.Err()).Errorln("no more updates")
				return
			}
		}
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.WithField("signal", sig.String()).Infoln("shutting down")
	case <-infra.MonitorExecutable(ctx):
		log.Errorln("executable file was modified")
	case <-ctx.Done():
	}
}

// ownerContact resolves the web push subject from the primary owner
// when no explicit contact is configured.
func ownerContact(client db.Client) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		owners, err := client.GetOwners(ctx)
		if err != nil || len(owners) == 0 {
			return ""
		}
		return owners[0].Email
	}
}
