package scanning

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/targets"
)

// DefaultCapacity is the number of scans a Manager runs at once.
const DefaultCapacity = 2

// ResultSink persists finished scans.
type ResultSink interface {
	SaveResult(ctx context.Context, result *Result) error
}

// Status describes a scan known to a Manager.
type Status struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Config    Config    `json:"config"`
	StartedAt time.Time `json:"started_at"`
	Result    *Result   `json:"result,omitempty"`
}

type managedScan struct {
	scan    *Scan
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}
	result  *Result
	err     error
}

// Manager runs scans in the background with a fixed number of slots and
// keeps their results for later retrieval.
type Manager struct {
	deps     Dependencies
	capacity int
	slots    chan struct{}
	sink     ResultSink
	logger   *logging.Logger

	mu        sync.RWMutex
	scans     map[string]*managedScan
	listeners []ProgressFunc
	closed    bool
	wg        sync.WaitGroup
}

// NewManager creates a manager that runs at most capacity scans at a time.
func NewManager(deps Dependencies, capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		deps:     deps,
		capacity: capacity,
		slots:    make(chan struct{}, capacity),
		scans:    make(map[string]*managedScan),
		logger:   logging.WithComponent("manager"),
	}
}

// SetSink stores every finished result in sink.
func (m *Manager) SetSink(sink ResultSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// OnProgress registers fn to receive progress from every scan.
func (m *Manager) OnProgress(fn ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start validates cfg and runs the scan in the background. It returns the
// scan ID immediately; the scan waits for a free slot before probing.
func (m *Manager) Start(ctx context.Context, cfg Config) (string, error) {
	if _, err := targets.Parse(cfg.Target); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", errors.NewScanError(errors.CodeConfiguration, "scan manager is closed")
	}
	scan := New(cfg, m.deps)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ms := &managedScan{scan: scan, cancel: cancel, started: time.Now(), done: make(chan struct{})}
	m.scans[scan.ID()] = ms
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx, ms)
	return scan.ID(), nil
}

func (m *Manager) run(ctx context.Context, ms *managedScan) {
	defer m.wg.Done()
	defer close(ms.done)
	defer ms.cancel()

	if err := m.acquire(ctx); err != nil {
		m.mu.Lock()
		ms.result = &Result{ID: ms.scan.ID(), Config: ms.scan.Config(), State: Cancelled, Error: err.Error()}
		ms.err = errors.ErrScanCanceled(ms.scan.Config().Target)
		m.mu.Unlock()
		return
	}
	defer m.release()

	result, err := ms.scan.Run(ctx, m.broadcast)

	m.mu.Lock()
	ms.result, ms.err = result, err
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sink.SaveResult(saveCtx, result); err != nil {
			m.logger.Error("Failed to store scan result", "scan_id", result.ID, "error", err)
		}
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	select {
	case <-m.slots:
	default:
	}
}

func (m *Manager) broadcast(p Progress) {
	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(p)
	}
}

// Get returns the status of scan id.
func (m *Manager) Get(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.scans[id]
	if !ok {
		return Status{}, false
	}
	st := Status{
		ID:        id,
		State:     ms.scan.State(),
		Config:    ms.scan.Config(),
		StartedAt: ms.started,
		Result:    ms.result,
	}
	if ms.result != nil {
		st.State = ms.result.State
	}
	return st, true
}

// List returns every known scan, newest first.
func (m *Manager) List() []Status {
	m.mu.RLock()
	ids := make([]string, 0, len(m.scans))
	for id := range m.scans {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		if st, ok := m.Get(id); ok {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, b Status) int { return b.StartedAt.Compare(a.StartedAt) })
	return out
}

// Cancel stops scan id. It reports false for unknown or finished scans.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	ms, ok := m.scans[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case <-ms.done:
		return false
	default:
	}
	ms.cancel()
	return true
}

// Wait blocks until scan id finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*Result, error) {
	m.mu.RLock()
	ms, ok := m.scans[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NewScanError(errors.CodeNotFound, fmt.Sprintf("scan %s not found", id))
	}
	select {
	case <-ms.done:
		m.mu.RLock()
		defer m.mu.RUnlock()
		return ms.result, ms.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active returns the number of scans holding a slot.
func (m *Manager) Active() int {
	return len(m.slots)
}

// Capacity returns the slot count.
func (m *Manager) Capacity() int {
	return m.capacity
}

// Close cancels every running scan and waits for them to return.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, ms := range m.scans {
		ms.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
