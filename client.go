package fbq

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Client is an FBQ client that communicates with an FBQ service over HTTP.
// It provides methods for pushing jobs, polling for completion, retrieving
// results, and managing named locks. A Client is safe for concurrent use:
// its configuration is immutable and all per-call state is local to the call.
type Client struct {
	transport *transport
}

// NewClient creates a new FBQ client connected to the given host.
//
// Example:
//
//	client, err := fbq.NewClient("q.example.com",
//	    fbq.WithPort(443),
//	    fbq.WithTLS(true),
//	    fbq.WithToken(token),
//	)
func NewClient(host string, opts ...ClientOption) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("fbq: host is required")
	}
	cfg := resolveClientConfig(host, opts)
	return &Client{
		transport: newTransport(cfg),
	}, nil
}

// Push submits a named job with the given payload and optional metadata,
// returning the id the service assigned to it. Metadata values are
// individually base64-encoded and space-joined in the X-Fbq-Meta header.
// The payload is gzip-compressed on the wire unless compression is disabled.
//
// Example:
//
//	id, err := client.Push(ctx, "nightly-report", payload, "source:cron")
func (c *Client) Push(ctx context.Context, name string, payload []byte, meta ...string) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	if payload == nil {
		return 0, fmt.Errorf("fbq: payload is required")
	}
	defer c.transport.timed(ctx, "push")()

	headers := map[string]string{}
	if len(meta) > 0 {
		headers[headerMeta] = encodeMeta(meta)
	}

	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodPut,
		segments: []string{"push", name},
		headers:  headers,
		body:     payload,
		compress: true,
	})
	if err != nil {
		return 0, err
	}
	return parseID(out.body)
}

// Pull streams the result payload of the given job into the sink. Payloads
// may be large; they are never buffered in memory.
func (c *Client) Pull(ctx context.Context, id int64, sink io.Writer) error {
	if err := validateID(id); err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("fbq: sink is required")
	}
	defer c.transport.timed(ctx, "pull")()

	_, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"pull", fmt.Sprintf("%d.fb", id)},
		sink:     sink,
	})
	return err
}

// Finished reports whether the given job has completed.
func (c *Client) Finished(ctx context.Context, id int64) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"finished", strconv.FormatInt(id, 10)},
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out.body)) == "yes", nil
}

// Stdout returns the captured standard output of the given job.
func (c *Client) Stdout(ctx context.Context, id int64) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"stdout", fmt.Sprintf("%d.txt", id)},
	})
	if err != nil {
		return "", err
	}
	return string(out.body), nil
}

// ExitCode returns the exit code of the given job.
func (c *Client) ExitCode(ctx context.Context, id int64) (int, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"exit", fmt.Sprintf("%d.txt", id)},
	})
	if err != nil {
		return 0, err
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(out.body)))
	if err != nil {
		return 0, fmt.Errorf("fbq: parse exit code: %w", err)
	}
	return code, nil
}

// Verified returns the verification verdict of the given job.
func (c *Client) Verified(ctx context.Context, id int64) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"jobs", strconv.FormatInt(id, 10), "verified.txt"},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out.body)), nil
}

// Recent returns the id of the most recent job pushed under the given name.
func (c *Client) Recent(ctx context.Context, name string) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"recent", name + ".txt"},
	})
	if err != nil {
		return 0, err
	}
	return parseID(out.body)
}

// NameExists reports whether any job has ever been pushed under the given
// name.
func (c *Client) NameExists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"exists", name},
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out.body)) == "yes", nil
}

// encodeMeta encodes metadata values for the X-Fbq-Meta header: each value
// base64-encoded over its UTF-8 bytes, joined by a single space.
func encodeMeta(meta []string) string {
	parts := make([]string, len(meta))
	for i, m := range meta {
		parts[i] = base64.StdEncoding.EncodeToString([]byte(m))
	}
	return strings.Join(parts, " ")
}

// decodeMeta reverses encodeMeta.
func decodeMeta(header string) ([]string, error) {
	if header == "" {
		return nil, nil
	}
	parts := strings.Split(header, " ")
	meta := make([]string, len(parts))
	for i, p := range parts {
		data, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("fbq: decode meta value %d: %w", i, err)
		}
		meta[i] = string(data)
	}
	return meta, nil
}

// parseID parses a decimal id from a response body.
func parseID(body []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fbq: parse id from response %q: %w", string(body), err)
	}
	return id, nil
}
