package stream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"meshview/internal/world"
)

// mockConn implements Conn for tests, recording everything sent to it.
type mockConn struct {
	mu          sync.Mutex
	sent        [][]byte
	open        bool
	closeCode   int
	closeReason string
}

func newMockConn() *mockConn {
	return &mockConn{open: true}
}

func (c *mockConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrConnClosed
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *mockConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.open = false
		c.closeCode = code
		c.closeReason = reason
	}
	return nil
}

func (c *mockConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *mockConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// message unmarshals the i-th sent frame into a generic map.
func (c *mockConn) message(t *testing.T, i int) map[string]interface{} {
	t.Helper()
	msgs := c.messages()
	require.Greater(t, len(msgs), i, "expected at least %d sent messages", i+1)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[i], &m))
	return m
}

// fakeProjector implements world.Projector for tests.
type fakeProjector struct {
	mu         sync.Mutex
	cached     *world.Snapshot
	next       *world.Snapshot
	fetchErr   error
	fetchCalls int
}

func (p *fakeProjector) FetchModel(ctx context.Context) (*world.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	p.cached = p.next
	return p.next, nil
}

func (p *fakeProjector) CachedModel() *world.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached
}

func (p *fakeProjector) setNext(snap *world.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = snap
}

func (p *fakeProjector) setCached(snap *world.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = snap
}

func (p *fakeProjector) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCalls
}

// newTestHub builds a hub with a small replay buffer.
func newTestHub(t *testing.T, capacity int) *Hub {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BufferCapacity = capacity
	hub, err := NewHub(cfg, nil)
	require.NoError(t, err)
	return hub
}

func testSnapshot() *world.Snapshot {
	return &world.Snapshot{
		Services: []world.Service{
			{ID: "svc-checkout", Name: "checkout"},
			{ID: "svc-billing", Name: "billing"},
		},
		Endpoints: []world.Endpoint{
			{ID: "ep-pay", ServiceID: "svc-checkout", Method: "POST", Path: "/pay"},
			{ID: "ep-invoice", ServiceID: "svc-billing", Method: "GET", Path: "/invoices"},
		},
		Edges: []world.Edge{
			{ID: "edge-1", SourceID: "svc-checkout", TargetID: "svc-billing", Protocol: "http"},
		},
	}
}
