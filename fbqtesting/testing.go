// Package fbqtesting provides test utilities for FBQ applications.
//
// [FakeService] is an in-memory FBQ service with the full HTTP surface:
// push/pull, completion and output endpoints, job and durable locks, and
// the worker-side pop/finish protocol. [FakeService.Start] binds it to an
// ephemeral httptest server and returns a ready [fbq.Client]:
//
//	func TestReport(t *testing.T) {
//	    svc := fbqtesting.NewFakeService()
//	    client := svc.Start(t)
//	    reportService(client)
//	    svc.AssertPushed(t, "nightly-report")
//	}
package fbqtesting

import (
	"bytes"
	"sync"
	"testing"
)

// FakeJob is a job recorded by the fake service.
type FakeJob struct {
	ID       int64
	Name     string
	Payload  []byte
	Meta     []string
	Stdout   string
	ExitCode int
	Verdict  string
	Finished bool
	Owner    string // claimed by, when popped
	Result   []byte // uploaded via finish
}

// FakeDurable is a durable artifact recorded by the fake service.
type FakeDurable struct {
	ID      int64
	JobName string
	File    string
	Content []byte
}

// FakeService is an in-memory FBQ service for tests. All methods are safe
// for concurrent use.
type FakeService struct {
	// Token, when set, is required in the X-Fbq-Token header of every
	// request; mismatches are answered with 401.
	Token string

	mu           sync.Mutex
	jobs         map[int64]*FakeJob
	byName       map[string][]int64
	durables     map[int64]*FakeDurable
	jobLocks     map[string]string
	durableLocks map[int64]string
	queue        []int64
	nextJob      int64
	nextDurable  int64
}

// NewFakeService creates an empty fake service.
func NewFakeService() *FakeService {
	return &FakeService{
		jobs:         make(map[int64]*FakeJob),
		byName:       make(map[string][]int64),
		durables:     make(map[int64]*FakeDurable),
		jobLocks:     make(map[string]string),
		durableLocks: make(map[int64]string),
	}
}

// Job returns a copy of the job with the given id, or nil.
func (s *FakeService) Job(id int64) *FakeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	copy := *j
	return &copy
}

// Durable returns a copy of the durable with the given id, or nil.
func (s *FakeService) Durable(id int64) *FakeDurable {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.durables[id]
	if !ok {
		return nil
	}
	copy := *d
	return &copy
}

// Pushed returns copies of all jobs pushed under the given name, in push
// order.
func (s *FakeService) Pushed(name string) []FakeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []FakeJob
	for _, id := range s.byName[name] {
		jobs = append(jobs, *s.jobs[id])
	}
	return jobs
}

// SetStdout sets the captured standard output of a job.
func (s *FakeService) SetStdout(id int64, stdout string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Stdout = stdout
	}
}

// SetExitCode sets the exit code of a job.
func (s *FakeService) SetExitCode(id int64, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.ExitCode = code
	}
}

// SetVerdict sets the verification verdict of a job.
func (s *FakeService) SetVerdict(id int64, verdict string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Verdict = verdict
	}
}

// SetFinished marks a job as completed without going through the pop/finish
// protocol.
func (s *FakeService) SetFinished(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Finished = true
	}
}

// --- Assertions ---

// MatchOption is a functional option for matching pushed jobs.
type MatchOption func(*matchCriteria)

type matchCriteria struct {
	payload []byte
	meta    []string
	count   int // 0 means "at least 1"
}

// MatchPayload requires the job payload to equal the given bytes.
func MatchPayload(payload []byte) MatchOption {
	return func(c *matchCriteria) { c.payload = payload }
}

// MatchMeta requires the job metadata to deep-equal the given values.
func MatchMeta(meta ...string) MatchOption {
	return func(c *matchCriteria) { c.meta = meta }
}

// MatchCount requires exactly n matching jobs.
func MatchCount(n int) MatchOption {
	return func(c *matchCriteria) { c.count = n }
}

// AssertPushed fails the test unless at least one job matching the criteria
// was pushed under the given name.
func (s *FakeService) AssertPushed(t *testing.T, name string, opts ...MatchOption) {
	t.Helper()
	c := resolveCriteria(opts)
	matched := s.countMatching(name, c)
	if c.count > 0 {
		if matched != c.count {
			t.Errorf("fbqtesting: expected %d jobs pushed under %q, found %d", c.count, name, matched)
		}
		return
	}
	if matched == 0 {
		t.Errorf("fbqtesting: expected a job pushed under %q, found none", name)
	}
}

// RefutePushed fails the test if any job matching the criteria was pushed
// under the given name.
func (s *FakeService) RefutePushed(t *testing.T, name string, opts ...MatchOption) {
	t.Helper()
	c := resolveCriteria(opts)
	if matched := s.countMatching(name, c); matched > 0 {
		t.Errorf("fbqtesting: expected no jobs pushed under %q, found %d", name, matched)
	}
}

func resolveCriteria(opts []MatchOption) matchCriteria {
	var c matchCriteria
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (s *FakeService) countMatching(name string, c matchCriteria) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := 0
	for _, id := range s.byName[name] {
		j := s.jobs[id]
		if c.payload != nil && !bytes.Equal(j.Payload, c.payload) {
			continue
		}
		if c.meta != nil && !equalStrings(j.Meta, c.meta) {
			continue
		}
		matched++
	}
	return matched
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
