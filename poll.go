package fbq

import (
	"context"
	"time"
)

// waitConfig holds the resolved configuration for a Wait call.
type waitConfig struct {
	interval time.Duration
}

// WaitOption configures completion polling.
type WaitOption func(*waitConfig)

// WithWaitInterval sets the delay between completion checks. Default: 1s.
func WithWaitInterval(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.interval = d
	}
}

// Wait polls the service until the given job has completed or the context
// is done. Each check is a single Finished call; transport errors abort the
// wait and are returned as-is.
func (c *Client) Wait(ctx context.Context, id int64, opts ...WaitOption) error {
	if err := validateID(id); err != nil {
		return err
	}
	cfg := waitConfig{interval: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for {
		done, err := c.Finished(ctx, id)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
