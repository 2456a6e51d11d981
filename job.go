package fbq

import (
	"context"
	"io"
)

// Job is a typed handle to a pushed job. It carries no state besides the id;
// every method delegates to the owning client.
type Job struct {
	// ID is the id the service assigned to the job at push time.
	ID int64

	client *Client
}

// Job returns a handle to the job with the given id.
//
// Example:
//
//	id, _ := client.Push(ctx, "nightly-report", payload)
//	job := client.Job(id)
//	if err := job.Wait(ctx); err != nil { ... }
func (c *Client) Job(id int64) *Job {
	return &Job{ID: id, client: c}
}

// Finished reports whether the job has completed.
func (j *Job) Finished(ctx context.Context) (bool, error) {
	return j.client.Finished(ctx, j.ID)
}

// Stdout returns the captured standard output of the job.
func (j *Job) Stdout(ctx context.Context) (string, error) {
	return j.client.Stdout(ctx, j.ID)
}

// ExitCode returns the exit code of the job.
func (j *Job) ExitCode(ctx context.Context) (int, error) {
	return j.client.ExitCode(ctx, j.ID)
}

// Verified returns the verification verdict of the job.
func (j *Job) Verified(ctx context.Context) (string, error) {
	return j.client.Verified(ctx, j.ID)
}

// Pull streams the result payload of the job into the sink.
func (j *Job) Pull(ctx context.Context, sink io.Writer) error {
	return j.client.Pull(ctx, j.ID, sink)
}

// Wait blocks until the job has completed or the context is done.
func (j *Job) Wait(ctx context.Context, opts ...WaitOption) error {
	return j.client.Wait(ctx, j.ID, opts...)
}
