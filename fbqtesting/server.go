package fbqtesting

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	fbq "github.com/fbqueue/fbq-go-sdk"
)

// Wire constants of the FBQ HTTP surface, duplicated here so the fake stays
// honest about what actually travels over the network.
const (
	headerToken     = "X-Fbq-Token"
	headerMeta      = "X-Fbq-Meta"
	headerFlash     = "X-Fbq-Flash"
	headerDurableID = "X-Fbq-DurableId"
)

// Start binds the fake service to an ephemeral httptest server and returns
// a client connected to it. The server is torn down with the test.
func (s *FakeService) Start(t *testing.T, opts ...fbq.ClientOption) *fbq.Client {
	t.Helper()
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("fbqtesting: parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("fbqtesting: parse server port: %v", err)
	}

	all := append([]fbq.ClientOption{fbq.WithPort(port)}, opts...)
	client, err := fbq.NewClient(u.Hostname(), all...)
	if err != nil {
		t.Fatalf("fbqtesting: create client: %v", err)
	}
	return client
}

// Handler returns an http.Handler implementing the FBQ HTTP surface against
// the in-memory store.
func (s *FakeService) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get(headerToken) != s.Token {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.Method == http.MethodPut && len(parts) == 2 && parts[0] == "push":
			s.handlePush(w, r, parts[1])
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "pull":
			s.handlePull(w, strings.TrimSuffix(parts[1], ".fb"))
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "finished":
			s.handleFinished(w, parts[1])
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "stdout":
			s.handleStdout(w, strings.TrimSuffix(parts[1], ".txt"))
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "exit":
			s.handleExit(w, strings.TrimSuffix(parts[1], ".txt"))
		case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "jobs" && parts[2] == "verified.txt":
			s.handleVerified(w, parts[1])
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "lock":
			s.handleLock(w, parts[1], r.URL.Query().Get("owner"))
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "unlock":
			s.handleUnlock(w, parts[1], r.URL.Query().Get("owner"))
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "recent":
			s.handleRecent(w, strings.TrimSuffix(parts[1], ".txt"))
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "exists":
			s.handleExists(w, parts[1])
		case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "durables" && parts[1] == "place":
			s.handleDurablePlace(w, r)
		case r.Method == http.MethodPut && len(parts) == 2 && parts[0] == "durables":
			s.handleDurableSave(w, r, parts[1])
		case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "durables":
			s.handleDurableLoad(w, parts[1])
		case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "durables" && parts[2] == "lock":
			s.handleDurableLock(w, parts[1], r.URL.Query().Get("owner"))
		case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "durables" && parts[2] == "unlock":
			s.handleDurableUnlock(w, parts[1], r.URL.Query().Get("owner"))
		case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "pop":
			s.handlePop(w, r.URL.Query().Get("owner"))
		case r.Method == http.MethodPut && len(parts) == 1 && parts[0] == "finish":
			s.handleFinish(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *FakeService) handlePush(w http.ResponseWriter, r *http.Request, name string) {
	body := io.Reader(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	meta, err := decodeMetaHeader(r.Header.Get(headerMeta))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextJob++
	id := s.nextJob
	s.jobs[id] = &FakeJob{ID: id, Name: name, Payload: payload, Meta: meta}
	s.byName[name] = append(s.byName[name], id)
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	fmt.Fprintf(w, "%d", id)
}

func (s *FakeService) handlePull(w http.ResponseWriter, rawID string) {
	j, ok := s.lookupJob(rawID)
	if !ok {
		http.NotFound(w, nil)
		return
	}
	w.Write(j.Payload)
}

func (s *FakeService) handleFinished(w http.ResponseWriter, rawID string) {
	j, ok := s.lookupJob(rawID)
	if !ok {
		http.NotFound(w, nil)
		return
	}
	if j.Finished {
		io.WriteString(w, "yes")
	} else {
		io.WriteString(w, "no")
	}
}

func (s *FakeService) handleStdout(w http.ResponseWriter, rawID string) {
	j, ok := s.lookupJob(rawID)
	if !ok {
		http.NotFound(w, nil)
		return
	}
	io.WriteString(w, j.Stdout)
}

func (s *FakeService) handleExit(w http.ResponseWriter, rawID string) {
	j, ok := s.lookupJob(rawID)
	if !ok {
		http.NotFound(w, nil)
		return
	}
	fmt.Fprintf(w, "%d", j.ExitCode)
}

func (s *FakeService) handleVerified(w http.ResponseWriter, rawID string) {
	j, ok := s.lookupJob(rawID)
	if !ok {
		http.NotFound(w, nil)
		return
	}
	io.WriteString(w, j.Verdict)
}

func (s *FakeService) handleLock(w http.ResponseWriter, name, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.jobLocks[name]; ok && held != owner {
		w.Header().Set(headerFlash, fmt.Sprintf("lock %q is held by %q", name, held))
		w.WriteHeader(http.StatusConflict)
		return
	}
	s.jobLocks[name] = owner
	w.WriteHeader(http.StatusFound)
}

func (s *FakeService) handleUnlock(w http.ResponseWriter, name, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.jobLocks[name]; ok && held != owner {
		w.Header().Set(headerFlash, fmt.Sprintf("lock %q is held by %q", name, held))
		w.WriteHeader(http.StatusConflict)
		return
	}
	delete(s.jobLocks, name)
	w.WriteHeader(http.StatusFound)
}

func (s *FakeService) handleRecent(w http.ResponseWriter, name string) {
	s.mu.Lock()
	ids := s.byName[name]
	s.mu.Unlock()
	if len(ids) == 0 {
		http.NotFound(w, nil)
		return
	}
	fmt.Fprintf(w, "%d", ids[len(ids)-1])
}

func (s *FakeService) handleExists(w http.ResponseWriter, name string) {
	s.mu.Lock()
	_, ok := s.byName[name]
	s.mu.Unlock()
	if ok {
		io.WriteString(w, "yes")
	} else {
		io.WriteString(w, "no")
	}
}

func (s *FakeService) handleDurablePlace(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jname := r.FormValue("jname")
	file := r.FormValue("file")
	part, _, err := r.FormFile("zip")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer part.Close()
	content, err := io.ReadAll(part)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextDurable++
	id := s.nextDurable
	s.durables[id] = &FakeDurable{ID: id, JobName: jname, File: file, Content: content}
	s.mu.Unlock()

	w.Header().Set(headerDurableID, strconv.FormatInt(id, 10))
	w.WriteHeader(http.StatusFound)
}

func (s *FakeService) handleDurableSave(w http.ResponseWriter, r *http.Request, rawID string) {
	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, ok := s.durables[id]
	if !ok {
		http.NotFound(w, nil)
		return
	}
	d.Content = content
	w.WriteHeader(http.StatusOK)
}

func (s *FakeService) handleDurableLoad(w http.ResponseWriter, rawID string) {
	s.mu.Lock()
	id, err := strconv.ParseInt(rawID, 10, 64)
	var d *FakeDurable
	if err == nil {
		d = s.durables[id]
	}
	s.mu.Unlock()
	if d == nil {
		http.NotFound(w, nil)
		return
	}
	w.Write(d.Content)
}

func (s *FakeService) handleDurableLock(w http.ResponseWriter, rawID, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if held, ok := s.durableLocks[id]; ok && held != owner {
		w.Header().Set(headerFlash, fmt.Sprintf("durable %d is locked by %q", id, held))
		w.WriteHeader(http.StatusConflict)
		return
	}
	s.durableLocks[id] = owner
	w.WriteHeader(http.StatusFound)
}

func (s *FakeService) handleDurableUnlock(w http.ResponseWriter, rawID, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if held, ok := s.durableLocks[id]; ok && held != owner {
		w.Header().Set(headerFlash, fmt.Sprintf("durable %d is locked by %q", id, held))
		w.WriteHeader(http.StatusConflict)
		return
	}
	delete(s.durableLocks, id)
	w.WriteHeader(http.StatusFound)
}

func (s *FakeService) handlePop(w http.ResponseWriter, owner string) {
	s.mu.Lock()
	var job *FakeJob
	for i, id := range s.queue {
		j := s.jobs[id]
		if j.Owner == "" && !j.Finished {
			j.Owner = owner
			job = j
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	archive, err := jobArchive(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Write(archive)
}

func (s *FakeService) handleFinish(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		http.NotFound(w, nil)
		return
	}
	j.Result = result
	j.Finished = true
	w.WriteHeader(http.StatusOK)
}

func (s *FakeService) lookupJob(rawID string) (FakeJob, bool) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return FakeJob{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return FakeJob{}, false
	}
	return *j, true
}

// jobArchive builds the ZIP a worker receives from pop: an id.txt entry
// with the job id and a base.fb entry with the payload.
func jobArchive(job *FakeJob) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	idEntry, err := zw.Create("id.txt")
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(idEntry, "%d", job.ID)

	fbEntry, err := zw.Create("base.fb")
	if err != nil {
		return nil, err
	}
	if _, err := fbEntry.Write(job.Payload); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMetaHeader reverses the client-side metadata encoding: base64
// values joined by single spaces.
func decodeMetaHeader(header string) ([]string, error) {
	if header == "" {
		return nil, nil
	}
	parts := strings.Split(header, " ")
	meta := make([]string, len(parts))
	for i, p := range parts {
		data, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("bad meta value %d: %w", i, err)
		}
		meta[i] = string(data)
	}
	return meta, nil
}
