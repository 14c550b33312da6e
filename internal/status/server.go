// Package status serves a small read-only HTTP view of recent runs.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"eventbell/internal/notifier"
	logx "eventbell/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8089"

type Server struct {
	addr       string
	hist       *History
	deliveries func() []notifier.HistoryItem
	next       func() time.Time
	log        logx.Logger
	started    time.Time

	router *gin.Engine

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

type Option func(*Server)

// WithDeliveries exposes recent dispatcher outcomes under /deliveries.
func WithDeliveries(fn func() []notifier.HistoryItem) Option {
	return func(s *Server) { s.deliveries = fn }
}

// WithNext reports the next scheduled run on /healthz.
func WithNext(fn func() time.Time) Option { return func(s *Server) { s.next = fn } }

func New(addr string, hist *History, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(addr) == "" {
		addr = DefaultAddr
	}
	if hist == nil {
		hist = NewHistory(0)
	}
	s := &Server{addr: addr, hist: hist, log: log, started: time.Now()}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.handleHealth)
	r.GET("/runs", s.handleRuns)
	r.GET("/runs/last", s.handleLastRun)
	r.GET("/deliveries", s.handleDeliveries)
	return r
}

// Handler returns the HTTP handler (tests mount it on httptest).
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("status request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if last, ok := s.hist.Last(); ok {
		body["last_run"] = last.Started
		body["last_run_ok"] = last.Err == ""
	}
	if s.next != nil {
		if n := s.next(); !n.IsZero() {
			body["next_run"] = n
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRuns(c *gin.Context) {
	runs := s.hist.List()
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if n < len(runs) {
			runs = runs[:n]
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleLastRun(c *gin.Context) {
	last, ok := s.hist.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

func (s *Server) handleDeliveries(c *gin.Context) {
	items := []notifier.HistoryItem{}
	if s.deliveries != nil {
		items = s.deliveries()
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": items})
}

// Start binds the listener synchronously and serves in the background until
// Stop or ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	if !isLoopbackAddr(s.addr) {
		s.log.Warn("status endpoint bound to a non-loopback address; it has no authentication", logx.String("addr", s.addr))
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	s.srv, s.ln = srv, ln

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server exited", logx.Err(err))
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("status server started", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("status server stopped")
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
