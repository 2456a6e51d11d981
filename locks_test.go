package fbq

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLockAndUnlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if owner := r.URL.Query().Get("owner"); owner != "builder-7" {
			t.Errorf("owner query = %q, want %q", owner, "builder-7")
		}
		switch r.URL.Path {
		case "/lock/nightly-report", "/unlock/nightly-report":
			w.WriteHeader(http.StatusFound)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := testClient(t, server)
	ctx := context.Background()
	if err := client.Lock(ctx, "nightly-report", "builder-7"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := client.Unlock(ctx, "nightly-report", "builder-7"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
}

func TestLockConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerFlash, "locked by someone-else")
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := testClient(t, server)
	err := client.Lock(context.Background(), "nightly-report", "builder-7")
	if err == nil {
		t.Fatal("expected error when the lock is held elsewhere")
	}
	var berr *BadResponseError
	if !errors.As(err, &berr) {
		t.Fatalf("expected *BadResponseError, got %T: %v", err, err)
	}
	if berr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", berr.StatusCode)
	}
	if berr.Flash != "locked by someone-else" {
		t.Errorf("flash = %q", berr.Flash)
	}
}

func TestLockValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for invalid input")
	}))
	defer server.Close()
	client := testClient(t, server)
	ctx := context.Background()

	if err := client.Lock(ctx, "", "me"); err == nil {
		t.Error("expected error for empty name")
	}
	if err := client.Lock(ctx, "report", ""); err == nil {
		t.Error("expected error for empty owner")
	}
	if err := client.Unlock(ctx, "report", ""); err == nil {
		t.Error("expected error for empty owner")
	}
}
