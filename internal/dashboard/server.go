// Package dashboard serves the read-only admin API over chats, transcripts,
// audit logs and activity stats.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
)

// Querier is the read side of the record store used by the API.
type Querier interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetChat(ctx context.Context, id uint) (*models.Chat, error)
	GetPendingChats(ctx context.Context) ([]models.Chat, error)
	ListChats(ctx context.Context, f store.ChatFilter) ([]models.Chat, error)
	ListMessages(ctx context.Context, chatID uint) ([]models.Message, error)
	ListUserLogs(ctx context.Context, userID int64, limit int) ([]models.UserLog, error)
	Stats(ctx context.Context, since time.Time) (store.Stats, error)
}

// StartOpts holds configuration for the admin API server.
type StartOpts struct {
	Store  Querier
	Port   int
	Out    io.Writer
	Logger *slog.Logger
}

// queuePollInterval is how often the events stream checks the pending queue.
const queuePollInterval = 3 * time.Second

// Start launches the admin API server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("dashboard")
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts.Store, log, queuePollInterval)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Admin API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the API router without starting a server.
func NewRouter(q Querier) *gin.Engine {
	return newRouter(q, logger.Component("dashboard"), queuePollInterval)
}

func newRouter(q Querier, log *slog.Logger, poll time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	registerRoutes(router, q, poll)
	return router
}

// requestLogger logs each request at debug level.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}
