package worker

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

// fakeRegistry is an in-memory RegistryClient for tests.
type fakeRegistry struct {
	mu         sync.Mutex
	jobs       map[uint64]*models.Job
	specs      map[uint64]*models.JobSpec
	count      uint64
	submitted  []string
	revertNext bool
	countErr   error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		jobs:  make(map[uint64]*models.Job),
		specs: make(map[uint64]*models.JobSpec),
	}
}

func (r *fakeRegistry) addSpec(spec *models.JobSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.SpecID] = spec
}

func (r *fakeRegistry) addJob(job *models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
	if job.JobID >= r.count {
		r.count = job.JobID + 1
	}
}

func (r *fakeRegistry) JobCount(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.count, nil
}

func (r *fakeRegistry) JobByIndex(ctx context.Context, jobID uint64) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("no job %d", jobID)
	}
	return job, nil
}

func (r *fakeRegistry) JobSpecByID(ctx context.Context, specID uint64) (*models.JobSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.specs[specID]
	if !ok {
		return nil, fmt.Errorf("no spec %d", specID)
	}
	return spec, nil
}

func (r *fakeRegistry) SubmitWork(ctx context.Context, jobID uint64, resultPayload string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, resultPayload)
	return fmt.Sprintf("0xdeadbeef%08d", jobID), nil
}

func (r *fakeRegistry) WaitForReceipt(ctx context.Context, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revertNext {
		r.revertNext = false
		return fmt.Errorf("Transaction reverted")
	}
	return nil
}

func (r *fakeRegistry) provider() interfaces.RegistryProvider {
	return func() (interfaces.RegistryClient, error) { return r, nil }
}

// fakeSession is an in-memory PageSession for tests.
type fakeSession struct {
	id         string
	navErr     error
	fetchBody  string
	fetchErr   error
	fetchedURL string
	navigated  []string
	fetchGate  chan struct{} // when set, FetchAsPage blocks until closed
	closed     chan struct{}
	closeOnce  sync.Once
	mu         sync.Mutex
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:        id,
		fetchBody: `{"ok":true}`,
		closed:    make(chan struct{}),
	}
}

func (s *fakeSession) TargetID() string { return s.id }

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navErr != nil {
		return s.navErr
	}
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) FetchAsPage(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	gate := s.fetchGate
	s.fetchedURL = url
	body, err := s.fetchBody, s.fetchErr
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return body, err
}

func (s *fakeSession) PageInfo(ctx context.Context) (*interfaces.PageInfo, error) {
	return &interfaces.PageInfo{URL: "about:blank", ReadyState: "complete"}, nil
}

func (s *fakeSession) Focus(ctx context.Context) error { return nil }

func (s *fakeSession) Closed() <-chan struct{} { return s.closed }

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// fakeTabManager hands out fakeSessions.
type fakeTabManager struct {
	mu      sync.Mutex
	next    *fakeSession
	opened  int
	openErr error
}

func (m *fakeTabManager) OpenTab(ctx context.Context, url string) (interfaces.PageSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened++
	if m.next != nil {
		s := m.next
		m.next = nil
		return s, nil
	}
	return newFakeSession(fmt.Sprintf("tab-%d", m.opened)), nil
}

func (m *fakeTabManager) Close() error { return nil }

// fakeProver returns a fixed proof.
type fakeProver struct {
	delay time.Duration
	err   error
}

func (p *fakeProver) Prove(ctx context.Context, input interfaces.ProveInput) (*models.Proof, error) {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &models.Proof{
		Data:    "0x616263",
		Version: "1.0.0-mock",
		Meta:    models.ProofMeta{NotaryURL: "https://mock-notary.local"},
	}, nil
}

func eth(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	return wei
}

func testJob(jobID, specID uint64, bounty *big.Int) *models.JobWithSpec {
	return &models.JobWithSpec{
		JobID:       jobID,
		SpecID:      specID,
		Bounty:      bounty,
		Token:       "0x0000000000000000000000000000000000000000",
		MainDomain:  "example.com",
		NotarizeURL: "https://example.com/api/items/{slug}",
		Inputs:      `{"slug":"widget-a"}`,
	}
}
