package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/infra"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required"`
		LogLevel         int    `env:"LOG_LEVEL,default=2"`
		DotPath          string `env:"DOT_PATH,default=~/.modqueue"`
		MetricsAddr      string `env:"METRICS_ADDR"`

		Email   Email
		WebPush WebPush
		Verdict Verdict
		Sweep   Sweep
	}

	Email struct {
		Host     string `env:"SMTP_HOST"`
		Port     string `env:"SMTP_PORT,default=587"`
		From     string `env:"SMTP_FROM"`
		Username string `env:"SMTP_USERNAME"`
		Password string `env:"SMTP_PASSWORD"`
	}

	WebPush struct {
		Contact string `env:"WEBPUSH_CONTACT"`
	}

	Verdict struct {
		APIKey  string `env:"LLM_API_KEY"`
		Model   string `env:"LLM_API_MODEL,default=gpt-4o-mini"`
		BaseURL string `env:"LLM_API_URL,default=https://api.openai.com/v1"`

		// ProtectedNames are identities the sentry guards against
		// lookalike impersonation.
		ProtectedNames []string `env:"PROTECTED_NAMES"`
		MinConfidence  float64  `env:"MIN_CONFIDENCE,default=0.8"`
	}

	Sweep struct {
		Interval        time.Duration `env:"SWEEP_INTERVAL,default=1h"`
		PendingTTL      time.Duration `env:"PENDING_TTL,default=720h"`
		CallbackTTL     time.Duration `env:"CALLBACK_TTL,default=168h"`
		RedeliveryLimit int           `env:"REDELIVERY_LIMIT,default=20"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("MQ_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		cfg.DotPath = infra.GetWorkDir(cfg.DotPath)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
