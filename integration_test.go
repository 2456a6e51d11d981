package fbq_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	fbq "github.com/fbqueue/fbq-go-sdk"
	"github.com/fbqueue/fbq-go-sdk/fbqtesting"
)

func TestPushPullRoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		name := "compressed"
		if !compress {
			name = "plain"
		}
		t.Run(name, func(t *testing.T) {
			svc := fbqtesting.NewFakeService()
			client := svc.Start(t, fbq.WithCompression(compress))
			ctx := context.Background()

			payload := []byte("facts facts facts \x00\x01\xfe")
			id, err := client.Push(ctx, "nightly-report", payload, "source:cron")
			if err != nil {
				t.Fatalf("Push() error = %v", err)
			}

			var sink bytes.Buffer
			if err := client.Pull(ctx, id, &sink); err != nil {
				t.Fatalf("Pull() error = %v", err)
			}
			if !bytes.Equal(sink.Bytes(), payload) {
				t.Error("pulled payload differs from the pushed one")
			}

			svc.AssertPushed(t, "nightly-report",
				fbqtesting.MatchPayload(payload),
				fbqtesting.MatchMeta("source:cron"),
			)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	svc := fbqtesting.NewFakeService()
	client := svc.Start(t)
	ctx := context.Background()

	id, err := client.Push(ctx, "nightly-report", []byte("facts"))
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	finished, err := client.Finished(ctx, id)
	if err != nil || finished {
		t.Fatalf("Finished() = %v, %v; want false, nil", finished, err)
	}

	svc.SetStdout(id, "built 12 facts\n")
	svc.SetExitCode(id, 0)
	svc.SetVerdict(id, "passed")
	svc.SetFinished(id)

	if err := client.Wait(ctx, id, fbq.WithWaitInterval(5*time.Millisecond)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	out, err := client.Stdout(ctx, id)
	if err != nil || out != "built 12 facts\n" {
		t.Errorf("Stdout() = %q, %v", out, err)
	}
	code, err := client.ExitCode(ctx, id)
	if err != nil || code != 0 {
		t.Errorf("ExitCode() = %d, %v", code, err)
	}
	verdict, err := client.Verified(ctx, id)
	if err != nil || verdict != "passed" {
		t.Errorf("Verified() = %q, %v", verdict, err)
	}

	recent, err := client.Recent(ctx, "nightly-report")
	if err != nil || recent != id {
		t.Errorf("Recent() = %d, %v; want %d", recent, err, id)
	}
	exists, err := client.NameExists(ctx, "nightly-report")
	if err != nil || !exists {
		t.Errorf("NameExists() = %v, %v", exists, err)
	}
}

func TestLockCycle(t *testing.T) {
	svc := fbqtesting.NewFakeService()
	client := svc.Start(t)
	ctx := context.Background()

	if err := client.Lock(ctx, "nightly-report", "builder-1"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	// Re-acquiring by the same owner is fine.
	if err := client.Lock(ctx, "nightly-report", "builder-1"); err != nil {
		t.Fatalf("relock by owner error = %v", err)
	}
	// A different owner is turned away.
	err := client.Lock(ctx, "nightly-report", "builder-2")
	if !errors.Is(err, fbq.ErrBadResponse) {
		t.Fatalf("expected bad response for a contended lock, got %v", err)
	}
	if err := client.Unlock(ctx, "nightly-report", "builder-1"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := client.Lock(ctx, "nightly-report", "builder-2"); err != nil {
		t.Fatalf("lock after release error = %v", err)
	}
}

func TestDurableCycle(t *testing.T) {
	svc := fbqtesting.NewFakeService()
	client := svc.Start(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "artifact.zip")
	if err := os.WriteFile(path, []byte("version one"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	id, err := client.DurablePlace(ctx, "nightly-report", path)
	if err != nil {
		t.Fatalf("DurablePlace() error = %v", err)
	}

	d := svc.Durable(id)
	if d == nil {
		t.Fatal("durable not recorded")
	}
	if d.JobName != "nightly-report" || d.File != "artifact.zip" {
		t.Errorf("durable = %+v", d)
	}

	if err := os.WriteFile(path, []byte("version two"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	if err := client.DurableSave(ctx, id, path); err != nil {
		t.Fatalf("DurableSave() error = %v", err)
	}

	var sink bytes.Buffer
	if err := client.DurableLoad(ctx, id, &sink); err != nil {
		t.Fatalf("DurableLoad() error = %v", err)
	}
	if sink.String() != "version two" {
		t.Errorf("DurableLoad() = %q", sink.String())
	}

	if err := client.DurableLock(ctx, id, "builder-1"); err != nil {
		t.Fatalf("DurableLock() error = %v", err)
	}
	err = client.DurableLock(ctx, id, "builder-2")
	if !errors.Is(err, fbq.ErrBadResponse) {
		t.Fatalf("expected bad response for a contended durable lock, got %v", err)
	}
	if err := client.DurableUnlock(ctx, id, "builder-1"); err != nil {
		t.Fatalf("DurableUnlock() error = %v", err)
	}
}

func TestTokenAuth(t *testing.T) {
	svc := fbqtesting.NewFakeService()
	svc.Token = "secret"

	anon := svc.Start(t)
	_, err := anon.NameExists(context.Background(), "report")
	if !errors.Is(err, fbq.ErrBadResponse) {
		t.Fatalf("expected 401 to surface as bad response, got %v", err)
	}

	authed := svc.Start(t, fbq.WithToken("secret"))
	if _, err := authed.NameExists(context.Background(), "report"); err != nil {
		t.Fatalf("NameExists() with token error = %v", err)
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	svc := fbqtesting.NewFakeService()
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}

	client := svc.Start(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := client.Push(ctx, "nightly-report", []byte("facts"))
		if err != nil {
			t.Fatalf("Push() error = %v", err)
		}
		ids = append(ids, id)
	}

	worker, err := fbq.NewWorker(u.Hostname(),
		fbq.WithOwner("builder-7"),
		fbq.WithConcurrency(2),
		fbq.WithPollInterval(10*time.Millisecond),
		fbq.WithGracePeriod(time.Second),
		fbq.WithWorkDir(t.TempDir()),
		fbq.WithClientOptions(fbq.WithPort(port)),
	)
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	worker.Handle(func(jc fbq.JobContext) error {
		// Upload the popped archive back as the result.
		return nil
	})

	workCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Start(workCtx) }()

	deadline := time.After(5 * time.Second)
	for _, id := range ids {
		for {
			j := svc.Job(id)
			if j != nil && j.Finished {
				break
			}
			select {
			case <-deadline:
				t.Fatalf("job %d was not finished in time", id)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, id := range ids {
		j := svc.Job(id)
		if j.Owner != "builder-7" {
			t.Errorf("job %d owner = %q", id, j.Owner)
		}
		if len(j.Result) == 0 {
			t.Errorf("job %d has no result archive", id)
		}
	}
}
