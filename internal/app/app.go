// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/message-garden/internal/config"
	directorypostgres "github.com/bissquit/message-garden/internal/directory/postgres"
	"github.com/bissquit/message-garden/internal/notify"
	notifypostgres "github.com/bissquit/message-garden/internal/notify/postgres"
	"github.com/bissquit/message-garden/internal/pkg/ctxlog"
	"github.com/bissquit/message-garden/internal/pkg/httputil"
	"github.com/bissquit/message-garden/internal/pkg/metrics"
	"github.com/bissquit/message-garden/internal/pkg/postgres"
	redisconn "github.com/bissquit/message-garden/internal/pkg/redis"
	"github.com/bissquit/message-garden/internal/queue"
	queuepostgres "github.com/bissquit/message-garden/internal/queue/postgres"
	"github.com/bissquit/message-garden/internal/queue/redisindex"
	"github.com/bissquit/message-garden/internal/reminder"
	reminderpostgres "github.com/bissquit/message-garden/internal/reminder/postgres"
	"github.com/bissquit/message-garden/internal/sender"
	"github.com/bissquit/message-garden/internal/sender/email"
	senderpostgres "github.com/bissquit/message-garden/internal/sender/postgres"
	"github.com/bissquit/message-garden/internal/sender/sms"
	"github.com/bissquit/message-garden/internal/sender/whatsapp"
	"github.com/bissquit/message-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc

	processor     *queue.Processor
	reminderRun   *reminder.Runner
	notifyService *notify.Service
	hub           *notify.Hub
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.Migrate {
		if err := postgres.Migrate("file://"+cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := redisconn.Connect(connectCtx, redisconn.Config{
		URL:             cfg.Redis.URL,
		ConnectTimeout:  cfg.Redis.ConnectTimeout,
		ConnectAttempts: cfg.Redis.ConnectAttempts,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		redis:         redisClient,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		_ = redisClient.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop background loops before closing stores.
	if a.processor != nil {
		a.processor.Stop()
	}
	if a.reminderRun != nil {
		a.reminderRun.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	// Let in-flight side-channel dispatches finish, then drop live
	// connections.
	if a.notifyService != nil {
		a.notifyService.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}

	if err := a.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo queue.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.Stats(ctx, "")
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			queue.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Processor returns the queue processor instance. Used in tests to
// drive cycles directly.
func (a *App) Processor() *queue.Processor {
	return a.processor
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	// Channel senders
	emailSender, err := email.NewSender(email.Config{
		Enabled:      a.config.Senders.Email.Enabled,
		SMTPHost:     a.config.Senders.Email.SMTPHost,
		SMTPPort:     a.config.Senders.Email.SMTPPort,
		SMTPUser:     a.config.Senders.Email.SMTPUser,
		SMTPPassword: a.config.Senders.Email.SMTPPassword,
		FromAddress:  a.config.Senders.Email.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if !a.config.Senders.Email.Enabled {
		slog.Warn("email sender is disabled: queued email will fail until a provider is configured")
	}

	commLog := senderpostgres.NewRepository(a.db)

	smsSender, err := sms.NewSender(sms.Config{
		Enabled:    a.config.Senders.SMS.Enabled,
		APIURL:     a.config.Senders.SMS.APIURL,
		APIKey:     a.config.Senders.SMS.APIKey,
		FromNumber: a.config.Senders.SMS.FromNumber,
		RateLimit:  a.config.Senders.SMS.RateLimit,
		Timeout:    a.config.Senders.SMS.Timeout,
	}, commLog)
	if err != nil {
		return nil, fmt.Errorf("create sms sender: %w", err)
	}

	whatsappSender, err := whatsapp.NewSender(whatsapp.Config{
		Enabled:     a.config.Senders.WhatsApp.Enabled,
		APIURL:      a.config.Senders.WhatsApp.APIURL,
		AccessToken: a.config.Senders.WhatsApp.AccessToken,
		PhoneID:     a.config.Senders.WhatsApp.PhoneID,
		RateLimit:   a.config.Senders.WhatsApp.RateLimit,
		Timeout:     a.config.Senders.WhatsApp.Timeout,
	}, commLog)
	if err != nil {
		return nil, fmt.Errorf("create whatsapp sender: %w", err)
	}

	// Queue: durable store, priority index, processor
	queueRepo := queuepostgres.NewRepository(a.db)
	priorityIndex := redisindex.NewIndex(a.redis)
	queueService := queue.NewService(queueRepo, priorityIndex, a.config.Queue.MaxAttempts)
	queueHandler := queue.NewHandler(queueService)

	a.processor = queue.NewProcessor(queue.ProcessorConfig{
		Interval:    a.config.Queue.ProcessInterval,
		BatchSize:   a.config.Queue.BatchSize,
		SendTimeout: a.config.Queue.SendTimeout,
		StuckAfter:  a.config.Queue.StuckAfter,
	}, queueRepo, priorityIndex, emailSender)
	a.processor.Start(ctx)

	go a.collectQueueMetrics(ctx, queueRepo)

	// Disabled channels stay nil so fan-out skips them instead of
	// logging a failed dispatch per notification.
	var smsIface sender.SMSSender
	var waIface sender.WhatsAppSender
	var emailIface sender.EmailSender
	if a.config.Senders.SMS.Enabled {
		smsIface = smsSender
	}
	if a.config.Senders.WhatsApp.Enabled {
		waIface = whatsappSender
	}
	if a.config.Senders.Email.Enabled {
		emailIface = emailSender
	}

	// Notification fan-out
	a.hub = notify.NewHub(a.config.Notifications.PushBuffer)
	directoryRepo := directorypostgres.NewRepository(a.db)
	notifyRepo := notifypostgres.NewRepository(a.db)
	a.notifyService = notify.NewService(notifyRepo, directoryRepo, a.hub, notify.Senders{
		Email:    emailIface,
		SMS:      smsIface,
		WhatsApp: waIface,
	}, a.config.Notifications.DispatchConcurrency)
	notifyHandler := notify.NewHandler(a.notifyService)

	// Reminder campaigns
	reminderRepo := reminderpostgres.NewRepository(a.db)
	scheduler := reminder.NewScheduler(reminder.Config{
		Intervals:         a.config.Reminders.Intervals,
		MaxReminders:      a.config.Reminders.MaxReminders,
		ExcludeWeekends:   a.config.Reminders.ExcludeWeekends,
		BusinessHoursOnly: a.config.Reminders.BusinessHoursOnly,
		BusinessStartHour: a.config.Reminders.BusinessStartHour,
		BusinessEndHour:   a.config.Reminders.BusinessEndHour,
	}, reminderRepo, reminderRepo, queueService, a.notifyService)
	reminderHandler := reminder.NewHandler(scheduler)

	if a.config.Reminders.Enabled {
		a.reminderRun = reminder.NewRunner(a.config.Reminders.RunInterval, scheduler, reminderRepo)
		a.reminderRun.Start(ctx)
	} else {
		slog.Info("reminder runner disabled")
	}

	senderHandler := sender.NewHandler(smsIface, waIface, commLog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.TenantMiddleware)

			queueHandler.RegisterRoutes(r)
			notifyHandler.RegisterRoutes(r)
			reminderHandler.RegisterRoutes(r)
			senderHandler.RegisterRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			queueHandler.RegisterAdminRoutes(r)
			reminderHandler.RegisterAdminRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.TenantMiddleware)
				notifyHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
