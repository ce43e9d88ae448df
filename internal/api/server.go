package api

import (
	"bytes"
	"cmp"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ory/herodot"
	"go.uber.org/zap"

	"ragex-demo/internal/config"
	"ragex-demo/internal/dispatch"
	apperrors "ragex-demo/internal/errors"
	"ragex-demo/internal/metrics"
	"ragex-demo/internal/middleware"
	"ragex-demo/internal/models"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// maxSubmissionBytes bounds the JSON and form request bodies.
const maxSubmissionBytes = 64 << 10

// SubmitterInterface is the dispatcher as seen by the HTTP layer
type SubmitterInterface interface {
	Submit(ctx context.Context, s models.Submission) *models.Outcome
}

type Server struct {
	mux        *http.ServeMux
	submitter  SubmitterInterface
	config     *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	errHandler *apperrors.ErrorHandler
	writer     *herodot.JSONWriter
}

// pageData feeds templates/index.html
type pageData struct {
	Form    models.Submission
	Outcome *models.Outcome
	MinTopK int
	MaxTopK int
}

func NewServer(cfg *config.Config, submitter SubmitterInterface, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mux:        http.NewServeMux(),
		submitter:  submitter,
		config:     cfg,
		logger:     logger,
		metrics:    m,
		errHandler: apperrors.NewErrorHandler(cfg, logger),
		writer:     herodot.NewJSONWriter(nil),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.handleForm)
	s.mux.HandleFunc("/api/run", s.runSubmission)
	s.mux.HandleFunc("/health", s.healthCheck)
	if s.config.Metrics.Enabled && s.metrics != nil {
		s.mux.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}
}

// Handler returns the routes wrapped in request-ID and access-log middleware
func (s *Server) Handler() http.Handler {
	return middleware.RequestID(middleware.Logging(s.logger)(s.mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		TLSConfig:    s.config.GetTLSConfig(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", s.config.Server.TLS.Enabled),
			zap.Bool("metrics", s.config.Metrics.Enabled))

		var err error
		if s.config.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(s.config.Server.TLS.CertFile, s.config.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writer.WriteError(w, r, herodot.ErrNotFound.WithReasonf("No route for %s", r.URL.Path))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.renderPage(w, r, http.StatusOK, pageData{
			Form: models.Submission{TopK: s.config.Dispatch.DefaultTopK},
		})
	case http.MethodPost:
		s.submitForm(w, r)
	default:
		s.errHandler.HandleMethodNotAllowed(w, r, middleware.GetRequestID(r.Context()))
	}
}

func (s *Server) submitForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseForm(); err != nil {
		s.errHandler.HandleValidationError(w, r, fmt.Errorf("parse form: %w", err), middleware.GetRequestID(r.Context()))
		return
	}

	sub := s.formSubmission(r)
	out := s.submitter.Submit(r.Context(), sub)
	s.renderPage(w, r, http.StatusOK, pageData{Form: sub, Outcome: out})
}

// formSubmission reads the form fields, clamping top_k into range the way
// the number input does in the browser
func (s *Server) formSubmission(r *http.Request) models.Submission {
	topK := s.config.Dispatch.DefaultTopK
	if raw := strings.TrimSpace(r.PostFormValue("top_k")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			topK = dispatch.ClampTopK(n)
		}
	}

	return models.Submission{
		EndpointURL: r.PostFormValue("endpoint_url"),
		DemoMode:    r.PostFormValue("demo_mode") != "",
		AccessKey:   r.PostFormValue("access_key"),
		Query:       r.PostFormValue("query"),
		TopK:        topK,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	data.MinTopK = dispatch.MinTopK
	data.MaxTopK = dispatch.MaxTopK

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.errHandler.HandleInternalError(w, r, fmt.Errorf("render page: %w", err), middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) runSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errHandler.HandleMethodNotAllowed(w, r, middleware.GetRequestID(r.Context()))
		return
	}

	var sub models.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&sub); err != nil {
		s.errHandler.HandleValidationError(w, r, fmt.Errorf("decode body: %w", err), middleware.GetRequestID(r.Context()))
		return
	}

	sub.TopK = cmp.Or(sub.TopK, s.config.Dispatch.DefaultTopK)
	if sub.TopK < dispatch.MinTopK || sub.TopK > dispatch.MaxTopK {
		s.errHandler.HandleValidationError(w, r, apperrors.ErrTopKOutOfRange, middleware.GetRequestID(r.Context()))
		return
	}

	out := s.submitter.Submit(r.Context(), sub)
	if out.Kind == models.OutcomeValidationError {
		s.writer.WriteCode(w, r, http.StatusBadRequest, out)
		return
	}
	s.writer.Write(w, r, out)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errHandler.HandleMethodNotAllowed(w, r, middleware.GetRequestID(r.Context()))
		return
	}

	response := &models.HealthResponse{Status: "healthy"}
	s.writer.Write(w, r, response)
}
