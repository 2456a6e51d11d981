package fbq

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Version is the SDK version reported in the User-Agent header.
	Version = "0.3.1"

	headerToken     = "X-Fbq-Token"
	headerMeta      = "X-Fbq-Meta"
	headerFlash     = "X-Fbq-Flash"
	headerFailure   = "X-Fbq-Failure"
	headerDurableID = "X-Fbq-DurableId"

	contentTypeArchive = "application/zip"
	contentTypeBinary  = "application/octet-stream"
)

// transport is a thin HTTP wrapper for FBQ API communication. It owns
// request construction, optional gzip compression, bounded retry on
// transport timeout, and status-code classification.
type transport struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userAgent  string
	compress   bool
	retry      RetryPolicy
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func newTransport(cfg clientConfig) *transport {
	scheme := "http"
	if cfg.tls {
		scheme = "https"
	}

	client := cfg.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	} else {
		// Work on a copy so the caller's client is left untouched.
		c := *client
		client = &c
	}
	// Lock and pop endpoints answer with 302; redirects must surface
	// as status codes, not be followed.
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	ua := cfg.userAgent
	if ua == "" {
		ua = fmt.Sprintf("fbq-go-sdk/%s", Version)
	}

	return &transport{
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, cfg.host, cfg.port),
		httpClient: client,
		token:      cfg.token,
		userAgent:  ua,
		compress:   cfg.compress,
		retry:      cfg.retry,
		limiter:    cfg.limiter,
		logger:     cfg.logger,
	}
}

// requestSpec describes a single logical API call. It is constructed per
// call and discarded after use.
type requestSpec struct {
	method      string
	segments    []string
	query       url.Values
	headers     map[string]string
	body        []byte
	contentType string // pre-set for multipart bodies
	compress    bool   // body is eligible for gzip compression
	accept      []int  // accepted status codes; empty means {200}
	sink        io.Writer
}

// outcome is the result of a successful exchange: a response whose status
// code is in the accepted set.
type outcome struct {
	status  int
	headers http.Header
	body    []byte // nil when the body was streamed to a sink
	written int64  // bytes streamed to the sink
	elapsed time.Duration
}

// buildURL joins the base URL with escaped path segments and query values.
func (t *transport) buildURL(segments []string, query url.Values) string {
	var sb strings.Builder
	sb.WriteString(t.baseURL)
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	if len(query) > 0 {
		sb.WriteByte('?')
		sb.WriteString(query.Encode())
	}
	return sb.String()
}

// meteredWriter counts the bytes forwarded to the caller's sink. A retry is
// only safe while the count is zero: re-streaming into a sink that has
// already received bytes would prepend a partial download to the real one.
type meteredWriter struct {
	dst io.Writer
	n   int64
}

func (m *meteredWriter) Write(p []byte) (int, error) {
	n, err := m.dst.Write(p)
	m.n += int64(n)
	return n, err
}

// execute performs the HTTP exchange for the given spec: attempt, evaluate,
// retry-or-classify. Retries happen only on transport timeout, up to the
// configured attempt budget, with linear backoff between attempts. A sink
// request stops being retryable the moment the sink sees its first byte.
func (t *transport) execute(ctx context.Context, spec requestSpec) (*outcome, error) {
	u := t.buildURL(spec.segments, spec.query)

	body, contentType, encoding, err := t.prepareBody(spec)
	if err != nil {
		return nil, err
	}

	accept := spec.accept
	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}

	var sink io.Writer
	var meter *meteredWriter
	if spec.sink != nil {
		meter = &meteredWriter{dst: spec.sink}
		sink = meter
	}

	start := time.Now()
	budget := t.retry.attempts()

	for attempt := 1; attempt <= budget; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		out, err := t.attempt(ctx, spec.method, u, body, contentType, encoding, spec.headers, accept, sink)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			if isTimeout(err) {
				t.debug(ctx, "request timed out",
					slog.String("method", spec.method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.Duration("elapsed", time.Since(start)),
				)
				// The caller's deadline is gone; further attempts
				// cannot succeed. Likewise a dirty sink: its partial
				// bytes cannot be taken back.
				if ctx.Err() == nil && attempt < budget && (meter == nil || meter.n == 0) {
					if werr := t.wait(ctx, t.retry.backoff(attempt)); werr != nil {
						return nil, werr
					}
					continue
				}
				terr := &TimeoutError{
					Method:   spec.method,
					URL:      u,
					Attempts: attempt,
					Elapsed:  time.Since(start),
				}
				t.error(ctx, terr)
				return nil, terr
			}
			// Connection refused, DNS failure and friends: surfaced
			// immediately as status 0, never retried.
			berr := &BadResponseError{
				Method:  spec.method,
				URL:     u,
				Elapsed: time.Since(start),
				cause:   err,
			}
			t.error(ctx, berr)
			return nil, berr
		}

		t.debug(ctx, "request completed",
			slog.String("method", spec.method),
			slog.String("url", u),
			slog.Int("status", out.status),
			slog.Int("attempt", attempt),
			slog.Duration("elapsed", out.elapsed),
		)

		if statusAccepted(out.status, accept) {
			return out, nil
		}

		cerr := t.classify(spec.method, u, out)
		t.error(ctx, cerr)
		return nil, cerr
	}

	// Unreachable: the loop always returns.
	return nil, &TimeoutError{Method: spec.method, URL: u, Attempts: budget, Elapsed: time.Since(start)}
}

// prepareBody applies gzip compression when enabled and the body is eligible,
// and resolves the outgoing content type and encoding headers.
func (t *transport) prepareBody(spec requestSpec) (body []byte, contentType, encoding string, err error) {
	body = spec.body
	contentType = spec.contentType
	if body == nil {
		return body, contentType, "", nil
	}
	if contentType == "" {
		contentType = contentTypeBinary
	}
	if !t.compress || !spec.compress {
		return body, contentType, "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, "", "", fmt.Errorf("fbq: compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", "", fmt.Errorf("fbq: compress body: %w", err)
	}
	return buf.Bytes(), contentTypeArchive, "gzip", nil
}

// attempt performs one HTTP exchange. The response body is streamed to the
// sink only when the status code is accepted; otherwise it is buffered for
// diagnostics.
func (t *transport) attempt(ctx context.Context, method, u string, body []byte, contentType, encoding string, headers map[string]string, accept []int, sink io.Writer) (*outcome, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("fbq: create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Connection", "close")
	req.Close = true
	if t.token != "" {
		req.Header.Set(headerToken, t.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
		if encoding != "" {
			req.Header.Set("Content-Encoding", encoding)
		}
		req.ContentLength = int64(len(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &outcome{
		status:  resp.StatusCode,
		headers: resp.Header,
	}

	if sink != nil && statusAccepted(resp.StatusCode, accept) && resp.StatusCode != http.StatusNoContent {
		n, err := io.Copy(sink, resp.Body)
		if err != nil {
			return nil, err
		}
		out.written = n
	} else {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		out.body = data
	}

	out.elapsed = time.Since(started)
	return out, nil
}

// classify buckets a non-accepted status code into the error taxonomy:
// 500 and 503 are server-side faults, everything else is a bad response.
func (t *transport) classify(method, u string, out *outcome) error {
	switch out.status {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return &ServerError{
			Method:     method,
			URL:        u,
			StatusCode: out.status,
			Failure:    out.headers.Get(headerFailure),
			Elapsed:    out.elapsed,
		}
	default:
		return &BadResponseError{
			Method:     method,
			URL:        u,
			StatusCode: out.status,
			Flash:      out.headers.Get(headerFlash),
			Elapsed:    out.elapsed,
		}
	}
}

// wait sleeps for the backoff delay, respecting context cancellation.
func (t *transport) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *transport) debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	if t.logger == nil {
		return
	}
	t.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

func (t *transport) error(ctx context.Context, err error) {
	if t.logger == nil {
		return
	}
	t.logger.LogAttrs(ctx, slog.LevelError, "request failed", slog.String("error", err.Error()))
}

// timed logs the total elapsed time of an operation at debug level on
// completion. Use with defer; errors pass through untouched.
func (t *transport) timed(ctx context.Context, op string) func() {
	start := time.Now()
	return func() {
		t.debug(ctx, "operation finished",
			slog.String("op", op),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func statusAccepted(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}

// isTimeout reports whether the transport error is a timeout: either the
// HTTP client's own deadline or a network-level timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return false
}
