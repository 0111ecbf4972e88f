package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/notifier"
	"github.com/mmdatafocus/orders_backend/rates"
	"github.com/mmdatafocus/orders_backend/sheetsync"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

const updateDbLockKey = "locks:update-db"

func main() {
	port := os.Getenv("ORDER_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"correlationId": cid,
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status":        c.Writer.Status(),
			"durationMs":    time.Since(start).Milliseconds(),
		}).Info("request")
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type")
	corsConfig.AddExposeHeaders("Content-Length")
	r.Use(cors.New(corsConfig))
	r.Use(gin.Recovery())

	r.GET("/api/order-items", sheetsync.OrderItemsHandler())
	r.GET("/api/executions", sheetsync.ExecutionsHandler())
	r.GET("/api/executions/:id", sheetsync.ExecutionDetailHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !config.BoolFromEnv("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	scheduler := startScheduler(logger)
	defer scheduler.Stop()

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// startScheduler wires the three periodic jobs. Each job is wrapped with
// SkipIfStillRunning so a slow invocation drops the next trigger instead of
// queueing a second instance over the same rows.
func startScheduler(logger *logrus.Logger) *cron.Cron {
	engine := buildEngine(logger)
	dispatcher := buildDispatcher(logger)

	cronLogger := cron.PrintfLogger(logger)
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)),
	)

	reconcileSpec := config.StringFromEnv("UPDATE_DB_CRON", "*/20 * * * * *")
	sweepSpec := config.StringFromEnv("CHECK_EXPIRATION_CRON", "*/25 * * * * *")
	pruneSpec := config.StringFromEnv("DELETE_OLD_EXECUTIONS_CRON", "0 0 0 * * MON")
	executionMaxAge := time.Duration(config.IntFromEnv("EXECUTION_MAX_AGE_SECONDS", 604_800)) * time.Second

	scheduler.AddFunc(reconcileSpec, func() {
		ctx := context.Background()
		release, obtained := obtainSyncLock(ctx)
		if !obtained {
			return
		}
		defer release()
		engine.ProcessTick(ctx)
	})

	scheduler.AddFunc(sweepSpec, func() {
		notifier.CheckExpiration(context.Background(), dispatcher, time.Now())
	})

	scheduler.AddFunc(pruneSpec, func() {
		ctx := context.Background()
		if err := models.DeleteOldExecutions(ctx, executionMaxAge); err != nil {
			config.LogError(logger, "main", "DeleteOldExecutions", "prune ledger", nil, err)
		}
	})

	scheduler.Start()
	return scheduler
}

func buildEngine(logger *logrus.Logger) *sheetsync.Engine {
	exchangeRateURL := config.StringFromEnv("EXCHANGE_RATE_URL", "https://www.cbr.ru/scripts/XML_daily.asp")
	exchangeRateTTL := time.Duration(config.IntFromEnv("EXCHANGE_RATE_TTL_SECONDS", 3600)) * time.Second
	tokenFile := config.StringFromEnv("GOOGLE_API_TOKEN_FILE", "token.json")

	rateCache := rates.NewCache(rates.NewClient(exchangeRateURL, nil), exchangeRateTTL)

	connect := func(ctx context.Context) (sheetsync.SheetSource, bool) {
		opt, ok := sheetsync.LoadCredentials(ctx, tokenFile, sheetsync.GoogleScopes...)
		if !ok {
			return nil, false
		}
		source, err := sheetsync.NewGoogleSource(ctx, opt)
		if err != nil {
			config.LogError(logger, "main", "buildEngine", "google client", nil, err)
			return nil, false
		}
		return source, true
	}

	return &sheetsync.Engine{
		Store:             models.OrderItemStore{},
		Ledger:            models.ExecutionLedger{},
		Rates:             rateCache,
		Connect:           connect,
		SpreadsheetID:     os.Getenv("SPREADSHEET_ID"),
		SheetName:         config.StringFromEnv("SHEET_NAME", "Sheet1"),
		FirstRow:          int64(config.IntFromEnv("FIRST_DATA_ROW", 2)),
		PageSize:          int64(config.IntFromEnv("PROCESS_ROW_COUNT", 1000)),
		CheckModifiedTime: config.BoolFromEnv("CHECK_DOCUMENT_MODIFIED_TIME", true),
		Logger:            logger,
	}
}

func buildDispatcher(logger *logrus.Logger) notifier.Dispatcher {
	token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if token == "" {
		logger.WithFields(logrus.Fields{"field": "notifier"}).Warn("TELEGRAM_BOT_TOKEN not set; expiration notifications disabled")
		return nil
	}
	dispatcher, err := notifier.NewTelegramDispatcher(token)
	if err != nil {
		config.LogError(logger, "main", "buildDispatcher", "telegram", nil, err)
		return nil
	}
	return dispatcher
}

// obtainSyncLock guards the reconcile job across process instances. When
// Redis is unavailable the in-process SkipIfStillRunning wrapper is the only
// guard, which matches single-instance deployments.
func obtainSyncLock(ctx context.Context) (func(), bool) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, true
	}
	lock, err := locker.Obtain(ctx, updateDbLockKey, 5*time.Minute, nil)
	if err != nil {
		if err == redislock.ErrNotObtained {
			return nil, false
		}
		// Lock backend failure should not stall syncing forever.
		return func() {}, true
	}
	return func() { _ = lock.Release(ctx) }, true
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
