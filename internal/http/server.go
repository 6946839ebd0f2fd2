// Package http serves the answering engine over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/logging"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MsgEmptyQuestion is returned with 400 when the question text is blank.
const MsgEmptyQuestion = "Please type a dengue-related question."

// Answerer produces replies. Both *chatbot.Engine and *chatbot.Holder
// satisfy it.
type Answerer interface {
	Answer(ctx context.Context, text string) chatbot.QueryResult
	Len() int
	Variants() int
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64

	// RequestTimeout bounds a single answer, embedding included.
	RequestTimeout time.Duration

	Version string
}

// Server provides HTTP endpoints for denguex.
type Server struct {
	echo     *echo.Echo
	answerer Answerer
	metrics  *Metrics
	logger   *zap.Logger
	config   *Config
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewServer creates a new HTTP server.
func NewServer(answerer Answerer, logger *zap.Logger, cfg *Config) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}

	s := &Server{
		echo:     e,
		answerer: answerer,
		metrics:  NewMetrics(),
		logger:   logger,
		config:   cfg,
	}

	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.requestLogger)
	e.Use(s.metrics.Middleware())
	e.Use(middleware.Recover())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health" || c.Path() == "/metrics"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     max(1, int(cfg.RateLimit*2)),
				ExpiresIn: 3 * time.Minute,
			}),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please slow down.")
			},
		}))
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/answer", s.handleAnswer)
}

// requestLogger logs every request after it completes. Question text is not
// logged here.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("route", normalizePath(c.Path())),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_ip", c.RealIP()),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		logging.Ctx(c.Request().Context(), s.logger).Info("http request", fields...)
		return err
	}
}

// errorHandler writes every error as an ErrorResponse carrying the request id.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, ErrorResponse{
			Message:   msg,
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}
	if werr != nil {
		s.logger.Warn("writing error response", zap.Error(werr))
	}
}

// handleHealth reports liveness and the size of the served knowledge base.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Entries:  s.answerer.Len(),
		Variants: s.answerer.Variants(),
		Version:  s.config.Version,
	})
}

// handleAnswer answers one question. Blank text is rejected here; everything
// else gets exactly one reply from the engine.
func (s *Server) handleAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := c.Validate(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
			return echo.NewHTTPError(http.StatusBadRequest, "Question is too long.")
		}
		return echo.NewHTTPError(http.StatusBadRequest, MsgEmptyQuestion)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()

	res := s.answerer.Answer(ctx, req.Text)
	s.metrics.observeAnswer(string(res.Outcome), string(res.Urgency), res.Confidence)
	return c.JSON(http.StatusOK, res)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
