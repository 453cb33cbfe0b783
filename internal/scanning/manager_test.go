package scanning

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netrecon/internal/errors"
)

type recordingSink struct {
	mu      sync.Mutex
	results []*Result
}

func (s *recordingSink) SaveResult(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManagerStartAndWait(t *testing.T) {
	deps := testDeps("172.16.0.1")
	deps.Probes.TCP = openPorts(map[string][]int{"172.16.0.1": {443}})

	m := NewManager(deps, 0)
	defer m.Close()
	assert.Equal(t, DefaultCapacity, m.Capacity())

	sink := &recordingSink{}
	m.SetSink(sink)

	var mu sync.Mutex
	var seen []Progress
	m.OnProgress(func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})

	id, err := m.Start(context.Background(), Config{Target: "172.16.0.1", Ports: []int{443}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	result, err := m.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, Completed, result.State)
	require.Len(t, result.Hosts, 1)
	assert.Equal(t, []int{443}, result.Hosts[0].OpenPorts)

	st, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, Completed, st.State)
	assert.Same(t, result, st.Result)

	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, id, seen[len(seen)-1].ScanID)
	assert.Equal(t, 1.0, seen[len(seen)-1].Fraction)
}

func TestManagerRejectsInvalidTarget(t *testing.T) {
	m := NewManager(testDeps(), 1)
	defer m.Close()

	id, err := m.Start(context.Background(), Config{Target: "10.0.0.0/9"})
	require.Error(t, err)
	assert.Empty(t, id)
	assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid))
	assert.Empty(t, m.List())
}

func TestManagerCancel(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once

	deps := testDeps("172.16.1.1")
	deps.Probes.TCP = func(ctx context.Context, _ string, _ int, _ time.Duration) bool {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return false
	}

	m := NewManager(deps, 1)
	defer m.Close()

	id, err := m.Start(context.Background(), Config{Target: "172.16.1.1", Ports: []int{22}})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("port probe never started")
	}
	assert.Equal(t, 1, m.Active())
	assert.True(t, m.Cancel(id))

	result, err := m.Wait(waitCtx(t), id)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
	assert.Equal(t, Cancelled, result.State)
	require.Len(t, result.Hosts, 1, "discovered hosts survive cancellation")

	assert.False(t, m.Cancel(id), "finished scans cannot be cancelled")
	assert.False(t, m.Cancel("missing"))
}

func TestManagerStartOutlivesRequestContext(t *testing.T) {
	deps := testDeps("172.16.2.1")
	deps.Probes.TCP = openPorts(nil)

	m := NewManager(deps, 1)
	defer m.Close()

	reqCtx, cancel := context.WithCancel(context.Background())
	id, err := m.Start(reqCtx, Config{Target: "172.16.2.1", Ports: []int{80}})
	require.NoError(t, err)
	cancel()

	result, err := m.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, Completed, result.State)
}

func TestManagerListAndWaitUnknown(t *testing.T) {
	deps := testDeps("172.16.3.1")
	deps.Probes.TCP = openPorts(nil)

	m := NewManager(deps, 2)
	defer m.Close()

	first, err := m.Start(context.Background(), Config{Target: "172.16.3.1", ScanType: PingSweep})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := m.Start(context.Background(), Config{Target: "172.16.3.1", ScanType: PingSweep})
	require.NoError(t, err)

	_, err = m.Wait(waitCtx(t), first)
	require.NoError(t, err)
	_, err = m.Wait(waitCtx(t), second)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	_, err = m.Wait(context.Background(), "nope")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	_, ok := m.Get("nope")
	assert.False(t, ok)
}

func TestManagerClose(t *testing.T) {
	m := NewManager(testDeps(), 1)
	m.Close()
	m.Close()

	_, err := m.Start(context.Background(), Config{Target: "10.0.0.1"})
	require.Error(t, err)
}
