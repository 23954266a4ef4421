package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ReviewGuard/internal/annotate"
	"ReviewGuard/internal/infrastructure/storage"
	"ReviewGuard/internal/usecase"
)

// ReportLister reads the outcome audit log.
type ReportLister interface {
	List(ctx context.Context, q storage.ReportQuery) ([]storage.ReportEntry, error)
}

// Server exposes a scan session over HTTP.
type Server struct {
	session *usecase.Session
	reports ReportLister
	logger  *slog.Logger
	engine  *gin.Engine
}

// New builds the router. reports may be nil.
func New(session *usecase.Session, reports ReportLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{session: session, reports: reports, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.health)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/document", s.document)
		v1.GET("/annotations", s.listAnnotations)
		v1.GET("/annotations/:id", s.getAnnotation)
		v1.POST("/annotations/:id/explain", s.explain)
		v1.POST("/scan", s.scan)
		v1.GET("/records", s.records)
		v1.GET("/reports", s.listReports)
	}
	s.engine = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "inFlight": s.session.InFlight()})
}

func (s *Server) document(c *gin.Context) {
	body, err := s.session.Document().HTML()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (s *Server) listAnnotations(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Renderer().Annotations())
}

func (s *Server) getAnnotation(c *gin.Context) {
	ann, ok := s.session.Renderer().Annotation(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "annotation not found"})
		return
	}
	c.JSON(http.StatusOK, ann)
}

func (s *Server) explain(c *gin.Context) {
	ann, err := s.session.Renderer().RequestExplanation(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ann)
	case errors.Is(err, annotate.ErrUnknownAnnotation):
		c.JSON(http.StatusNotFound, gin.H{"message": "annotation not found"})
	case errors.Is(err, annotate.ErrExplanationInFlight):
		c.JSON(http.StatusConflict, gin.H{"message": "explanation already loading", "annotation": ann})
	case errors.Is(err, annotate.ErrNotExplainable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "annotation has no explanation", "annotation": ann})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error(), "annotation": ann})
	}
}

func (s *Server) scan(c *gin.Context) {
	report, err := s.session.RunCycle(c.Request.Context())
	if errors.Is(err, usecase.ErrCycleInFlight) {
		c.JSON(http.StatusConflict, gin.H{"message": "scan already in flight"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) records(c *gin.Context) {
	tr := s.session.Tracker()
	c.JSON(http.StatusOK, gin.H{"counts": tr.Counts(), "records": tr.Records()})
}

func (s *Server) listReports(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "report store is not configured"})
		return
	}

	q := storage.ReportQuery{
		Platform:    c.Query("platform"),
		FlaggedOnly: c.Query("flagged") == "true",
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be a non-negative integer"})
			return
		}
		q.Limit = limit
	}

	entries, err := s.reports.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
