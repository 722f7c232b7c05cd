package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/meridianhealth/hospital-ai-platform/cmd/mainconfig"
	"github.com/meridianhealth/hospital-ai-platform/internal/api/router"
	appconfig "github.com/meridianhealth/hospital-ai-platform/internal/config"
	"github.com/meridianhealth/hospital-ai-platform/internal/dialog"
	"github.com/meridianhealth/hospital-ai-platform/internal/http/handlers"
	"github.com/meridianhealth/hospital-ai-platform/internal/notify"
	"github.com/meridianhealth/hospital-ai-platform/internal/observability/metrics"
	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
	"github.com/meridianhealth/hospital-ai-platform/internal/triage"
	"github.com/meridianhealth/hospital-ai-platform/internal/webchat"
	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hospital-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Appointment book: Postgres when configured, in-memory otherwise.
	var store scheduling.Store
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = scheduling.NewPostgresStore(pool)

		sqlDB, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open transcript db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sqlDB.Close() }()
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory appointment store")
		store = scheduling.NewMemoryStore()
	}
	scheduler := scheduling.NewService(store, logger)

	// Language model: Bedrock primary, Gemini fallback.
	var llm dialog.LLMClient
	if cfg.BedrockModelID != "" {
		llm = dialog.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := dialog.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to initialize gemini client", "error", err)
		} else if llm != nil {
			llm = dialog.NewFallbackLLMClient(llm, gemini, logger)
		} else {
			llm = gemini
		}
	}
	if llm == nil {
		logger.Warn("no language model configured; keyword fast paths only")
	}

	classifier := dialog.NewIntentClassifier(llm, cfg.BedrockModelID, cfg.LLMTimeout, logger)
	extractor := dialog.NewSlotExtractor(llm, cfg.BedrockModelID, cfg.LLMTimeout, logger)

	var triageFallback triage.Fallback
	if llm != nil {
		triageFallback = dialog.NewTriageFallback(llm, cfg.BedrockModelID, cfg.LLMTimeout, logger)
	}
	triager := triage.NewMapper(triageFallback, logger)

	// Session store: DynamoDB, Redis, or in-memory.
	var sessions dialog.SessionStore
	switch {
	case cfg.SessionsTable != "":
		sessions = dialog.NewDynamoSessionStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionsTable, cfg.SessionTTL)
		logger.Info("using dynamodb session store", "table", cfg.SessionsTable)
	case cfg.RedisAddr != "":
		sessions = dialog.NewRedisSessionStore(newRedisClient(cfg), cfg.SessionTTL)
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
	default:
		memSessions := dialog.NewMemorySessionStore(cfg.SessionTTL)
		defer memSessions.Close()
		sessions = memSessions
		logger.Warn("using in-memory session store; sessions will not survive restarts")
	}

	// Outbound notifications.
	var smsSender notify.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		smsSender = notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	}
	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			emailSender = s
		}
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			emailSender = s
		}
	default:
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(smsSender, emailSender, cfg.EscalationEmail, logger)

	engineOpts := []dialog.EngineOption{
		dialog.WithNotifier(notifier),
		dialog.WithMetrics(metrics.NewDialogMetrics(nil)),
		dialog.WithMaxReschedules(cfg.MaxReschedule),
	}
	var transcripts *dialog.TranscriptStore
	if sqlDB != nil {
		transcripts = dialog.NewTranscriptStore(sqlDB)
		engineOpts = append(engineOpts, dialog.WithTranscripts(transcripts))
	}

	engine := dialog.NewEngine(sessions, scheduler, triager, classifier, extractor, logger, engineOpts...)

	// Turn dispatch: direct by default, queued when a queue is configured.
	var service dialog.Service = engine
	if cfg.UseMemoryQueue || cfg.DialogQueueURL != "" {
		var dispatcher *dialog.Dispatcher
		if cfg.DialogQueueURL != "" && !cfg.UseMemoryQueue {
			dispatcher = dialog.NewDispatcher(engine, dialog.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.DialogQueueURL), cfg.WorkerCount, 30*time.Second, logger)
		} else {
			dispatcher = dialog.NewDispatcher(engine, dialog.NewMemoryQueue(64), cfg.WorkerCount, 30*time.Second, logger)
		}
		dispatcher.Start(ctx)
		defer dispatcher.Wait()
		service = dispatcher
	}

	webhookSecret := cfg.TwilioWebhookSecret
	if webhookSecret == "" {
		webhookSecret = cfg.TwilioAuthToken
	}

	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: dialog.NewHandler(service, logger),
		TwilioWebhooks:      handlers.NewTwilioWebhookHandler(webhookSecret, service, logger),
		AdminAppointments:   handlers.NewAdminAppointmentsHandler(scheduler, transcripts, logger),
		Webchat:             webchat.NewHandler(service, transcripts, logger),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}
