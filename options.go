package fbq

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// --- Client Options ---

// clientConfig holds the resolved configuration for a Client. It is
// immutable after construction.
type clientConfig struct {
	host       string
	port       int
	token      string
	tls        bool
	timeout    time.Duration
	compress   bool
	retry      RetryPolicy
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger
	httpClient *http.Client
}

// ClientOption configures the FBQ client.
type ClientOption func(*clientConfig)

// WithPort sets the service port. Default: 8080.
func WithPort(port int) ClientOption {
	return func(c *clientConfig) {
		c.port = port
	}
}

// WithToken sets the authentication token sent in the X-Fbq-Token header
// on every request.
func WithToken(token string) ClientOption {
	return func(c *clientConfig) {
		c.token = token
	}
}

// WithTLS enables HTTPS. Default: off.
func WithTLS(enabled bool) ClientOption {
	return func(c *clientConfig) {
		c.tls = enabled
	}
}

// WithTimeout sets the total timeout of a single attempt, covering
// connection establishment and the full request lifetime. Default: 30s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times a timed-out exchange is retried.
// Default: 3. Zero disables retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) {
		c.retry.MaxRetries = n
	}
}

// WithRetryPolicy replaces the whole retry policy, including backoff tuning.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *clientConfig) {
		c.retry = policy
	}
}

// WithCompression enables or disables gzip compression of outgoing job
// payloads. Default: enabled.
func WithCompression(enabled bool) ClientOption {
	return func(c *clientConfig) {
		c.compress = enabled
	}
}

// WithLogger sets a structured logger for request-level events. Every
// attempt is logged at DEBUG; failures additionally at ERROR with the full
// diagnostic. Pass nil to disable logging (the default).
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom net/http.Client. The client's redirect
// policy is overridden so that 302 responses surface as status codes.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithRateLimit caps outgoing requests at r per second with the given
// burst. Zero or negative r disables limiting (the default).
func WithRateLimit(r float64, burst int) ClientOption {
	return func(c *clientConfig) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

func resolveClientConfig(host string, opts []ClientOption) clientConfig {
	cfg := clientConfig{
		host:     host,
		port:     8080,
		timeout:  30 * time.Second,
		compress: true,
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// --- Worker Options ---

// workerConfig holds the resolved configuration for a Worker.
type workerConfig struct {
	owner        string
	pollInterval time.Duration
	concurrency  int
	gracePeriod  time.Duration
	workDir      string
	logger       *slog.Logger
	client       []ClientOption
}

// WorkerOption configures the FBQ worker.
type WorkerOption func(*workerConfig)

// WithOwner sets the owner identity the worker presents when popping jobs.
// Default: a generated "fbq-<uuid>" string.
func WithOwner(owner string) WorkerOption {
	return func(c *workerConfig) {
		c.owner = owner
	}
}

// WithPollInterval sets the interval between pop requests when no jobs are
// available. Default: 1 second.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		c.pollInterval = d
	}
}

// WithConcurrency sets the maximum number of jobs processed in parallel.
// Default: 1.
func WithConcurrency(n int) WorkerOption {
	return func(c *workerConfig) {
		c.concurrency = n
	}
}

// WithGracePeriod sets the maximum time to wait for active jobs during
// shutdown. Default: 25 seconds.
func WithGracePeriod(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		c.gracePeriod = d
	}
}

// WithWorkDir sets the directory where popped job archives are staged.
// Default: the system temp directory.
func WithWorkDir(dir string) WorkerOption {
	return func(c *workerConfig) {
		c.workDir = dir
	}
}

// WithWorkerLogger sets a structured logger for the worker's operational
// events. Pass nil to disable logging (the default).
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(c *workerConfig) {
		c.logger = logger
	}
}

// WithClientOptions passes client-level options (token, TLS, port, timeout,
// retries) through to the worker's underlying client.
func WithClientOptions(opts ...ClientOption) WorkerOption {
	return func(c *workerConfig) {
		c.client = append(c.client, opts...)
	}
}

func resolveWorkerConfig(opts []WorkerOption) workerConfig {
	cfg := workerConfig{
		pollInterval: 1 * time.Second,
		concurrency:  1,
		gracePeriod:  25 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
