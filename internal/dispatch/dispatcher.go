// Package dispatch validates a form submission and either renders the canned
// demo payload or forwards the query to the configured remote endpoint.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "ragex-demo/internal/errors"
	"ragex-demo/internal/models"
)

const (
	DefaultTimeout          = 20 * time.Second
	DefaultMaxResponseBytes = 1 << 20

	MinTopK     = 1
	MaxTopK     = 10
	DefaultTopK = 3

	// AccessKeyParam and AccessKeyHeader carry the access key. Both are sent
	// because the remote auth convention is not known in advance.
	AccessKeyParam  = "code"
	AccessKeyHeader = "x-functions-key"

	DemoNote         = "Demo mode — no live Azure call was made"
	DemoSource       = "example.com/article"
	DefaultDemoQuery = "Demo: summarize this page"
	DemoInfo         = "Set an endpoint URL and turn off Demo mode to call your backend. Until then this page shows a canned response so it never looks broken."

	msgDemo        = "Demo response"
	msgLiveSuccess = "Response from Azure Function"
	msgLiveError   = "Function returned HTTP %d"
)

// Recorder receives one call per finished submission.
type Recorder interface {
	RecordSubmission(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission(string, time.Duration) {}

// Dispatcher turns submissions into outcomes. It holds no per-submission
// state and is safe for concurrent use.
type Dispatcher struct {
	httpClient       *http.Client
	maxResponseBytes int64
	logger           *zap.Logger
	recorder         Recorder
}

type Option func(*Dispatcher)

// WithHTTPClient replaces the outbound client, including its timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(d *Dispatcher) {
		if httpClient != nil {
			d.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.httpClient.Timeout = timeout
		}
	}
}

func WithMaxResponseBytes(n int64) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxResponseBytes = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// New creates a Dispatcher with a 20 second outbound timeout unless an
// option says otherwise.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		httpClient:       &http.Client{Timeout: DefaultTimeout},
		maxResponseBytes: DefaultMaxResponseBytes,
		logger:           zap.NewNop(),
		recorder:         nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Collect validates the raw form fields. A blank query is only accepted in
// demo mode.
func Collect(s models.Submission) (models.QueryRequest, models.ConnectionConfig, error) {
	if strings.TrimSpace(s.Query) == "" && !s.DemoMode {
		return models.QueryRequest{}, models.ConnectionConfig{}, apperrors.ErrEmptyQuery
	}
	if s.TopK < MinTopK || s.TopK > MaxTopK {
		return models.QueryRequest{}, models.ConnectionConfig{}, apperrors.ErrTopKOutOfRange
	}

	req := models.QueryRequest{Query: s.Query, TopK: s.TopK}
	conn := models.ConnectionConfig{
		EndpointURL: s.EndpointURL,
		AccessKey:   s.AccessKey,
		DemoMode:    s.DemoMode,
	}
	return req, conn, nil
}

// ClampTopK pulls n into [MinTopK, MaxTopK] the way the number input does.
func ClampTopK(n int) int {
	return min(max(n, MinTopK), MaxTopK)
}

// Submit runs one submission end to end. Every failure is reported through
// the returned Outcome; it never returns nil.
func (d *Dispatcher) Submit(ctx context.Context, s models.Submission) *models.Outcome {
	start := time.Now()
	out := d.submit(ctx, s)
	elapsed := time.Since(start)

	d.recorder.RecordSubmission(string(out.Kind), elapsed)
	d.logger.Info("submission handled",
		zap.String("outcome", string(out.Kind)),
		zap.Int("status_code", out.StatusCode),
		zap.Duration("duration", elapsed),
	)
	return out
}

func (d *Dispatcher) submit(ctx context.Context, s models.Submission) *models.Outcome {
	req, conn, err := Collect(s)
	if err != nil {
		return &models.Outcome{
			Kind:    models.OutcomeValidationError,
			Message: err.Error(),
		}
	}

	if conn.DemoMode || strings.TrimSpace(conn.EndpointURL) == "" {
		return &models.Outcome{
			Kind:    models.OutcomeDemo,
			Success: true,
			Message: msgDemo,
			Payload: NewDemoPayload(req.Query),
			Info:    DemoInfo,
		}
	}

	return d.callRemote(ctx, req, conn)
}

// NewDemoPayload builds the canned response for query.
func NewDemoPayload(query string) *models.DemoPayload {
	if query == "" {
		query = DefaultDemoQuery
	}
	return &models.DemoPayload{
		Query: query,
		Results: []models.DemoResult{
			{Text: "This is a demo summary sentence 1.", Source: DemoSource},
			{Text: "This is a demo summary sentence 2.", Source: DemoSource},
		},
		Note: DemoNote,
	}
}

func (d *Dispatcher) callRemote(ctx context.Context, req models.QueryRequest, conn models.ConnectionConfig) *models.Outcome {
	target, err := requestURL(conn.EndpointURL, conn.AccessKey)
	if err != nil {
		return d.transportFailure(apperrors.ErrTransport.WithCause(err), "")
	}
	log := d.logger.With(zap.String("endpoint_host", target.Host))

	body, err := json.Marshal(req)
	if err != nil {
		return d.transportFailure(apperrors.ErrTransport.WithCause(fmt.Errorf("marshal request: %w", err)), target.Host)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return d.transportFailure(apperrors.ErrTransport.WithCause(fmt.Errorf("create request: %w", err)), target.Host)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if conn.AccessKey != "" {
		httpReq.Header.Set(AccessKeyHeader, conn.AccessKey)
	}

	log.Debug("calling remote endpoint", zap.Int("top_k", req.TopK), zap.Bool("with_key", conn.AccessKey != ""))

	res, err := d.httpClient.Do(httpReq)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redactedURL(target)
		}
		return d.transportFailure(apperrors.ErrTransport.WithCause(err), target.Host)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, d.maxResponseBytes))
	if err != nil {
		return d.transportFailure(apperrors.ErrTransport.WithCause(fmt.Errorf("read response body: %w", err)), target.Host)
	}

	payload := decodePayload(res.StatusCode, raw)
	if _, isRaw := payload.(*models.RawFallback); isRaw {
		log.Debug("response body is not JSON, using raw fallback", zap.Int("status_code", res.StatusCode))
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return &models.Outcome{
			Kind:       models.OutcomeLiveSuccess,
			Success:    true,
			Message:    msgLiveSuccess,
			StatusCode: res.StatusCode,
			Payload:    payload,
		}
	}

	log.Warn("remote endpoint returned an error status",
		zap.Error(apperrors.ErrRemoteStatus.WithCause(fmt.Errorf("HTTP %d", res.StatusCode))))
	return &models.Outcome{
		Kind:       models.OutcomeLiveError,
		Message:    fmt.Sprintf(msgLiveError, res.StatusCode),
		StatusCode: res.StatusCode,
		Payload:    payload,
	}
}

func (d *Dispatcher) transportFailure(err *apperrors.StandardError, host string) *models.Outcome {
	d.logger.Warn("remote call failed", zap.String("endpoint_host", host), zap.Error(err))
	detail := err.Error()
	if err.Cause != nil {
		detail = err.Cause.Error()
	}
	return &models.Outcome{
		Kind:    models.OutcomeTransportFailure,
		Message: err.Message,
		Detail:  detail,
	}
}

// requestURL parses endpoint and, when key is set, merges the code query
// parameter into whatever parameters the URL already carries.
func requestURL(endpoint, key string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, err
	}
	if key != "" {
		q := u.Query()
		q.Set(AccessKeyParam, key)
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// redactedURL hides the access key so it never reaches logs or error details.
func redactedURL(u *url.URL) string {
	q := u.Query()
	if !q.Has(AccessKeyParam) {
		return u.String()
	}
	q.Set(AccessKeyParam, "REDACTED")
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}

// decodePayload keeps valid JSON byte-for-byte and wraps anything else.
func decodePayload(statusCode int, raw []byte) any {
	if json.Valid(raw) {
		return models.ServicePayload(raw)
	}
	return &models.RawFallback{StatusCode: statusCode, Text: string(raw)}
}
