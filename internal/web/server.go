package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"multibot/internal/logger"
	"multibot/internal/risk"
	"multibot/internal/store"

	"github.com/gin-gonic/gin"
)

type statsSource interface {
	Snapshot() risk.Stats
}

type tradeSource interface {
	Recent(ctx context.Context, limit int) ([]store.TradeRecord, error)
	Aggregate(ctx context.Context) (store.Summary, error)
}

// Server exposes a read-only status API over the risk snapshot and the
// persisted trade history.
type Server struct {
	addr   string
	router *gin.Engine
	log    *logger.Logger
}

func NewServer(addr string, stats statsSource, trades tradeSource, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Snapshot())
	})
	router.GET("/api/trades", func(c *gin.Context) {
		if trades == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade store disabled"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		recent, err := trades.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		summary, err := trades.Aggregate(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary, "trades": recent})
	})

	return &Server{addr: addr, router: router, log: log}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
