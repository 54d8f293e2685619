package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

func TestBackoff(t *testing.T) {
	testCases := []struct {
		retry    int
		expected time.Duration
	}{
		{retry: -1, expected: time.Second},
		{retry: 0, expected: time.Second},
		{retry: 1, expected: 2 * time.Second},
		{retry: 3, expected: 8 * time.Second},
		{retry: 5, expected: 32 * time.Second},
		{retry: 6, expected: 60 * time.Second},
		{retry: 40, expected: 60 * time.Second},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, Backoff(tc.retry), "retry %d", tc.retry)
	}
}

// fakeRealtime is a websocket server that records subscribe frames and lets
// the test push frames to the latest connection.
type fakeRealtime struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      []*websocket.Conn
	subscribes []Frame
	headers    []http.Header
}

func (f *fakeRealtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.subscribes = append(f.subscribes, frame)
	f.headers = append(f.headers, r.Header.Clone())
	f.mu.Unlock()
}

func (f *fakeRealtime) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeRealtime) latest() *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

func (f *fakeRealtime) send(t *testing.T, frame any) {
	t.Helper()
	require.NoError(t, f.latest().WriteJSON(frame))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(config.RealtimeConfig{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		Headers:     map[string]string{"apikey": "anon-key"},
		ReadTimeout: 5 * time.Second,
	})
	c.backoff = func(int) time.Duration { return 10 * time.Millisecond }
	return c
}

type collector struct {
	mu       sync.Mutex
	connects int
	payloads []store.Payload
	errs     []error
}

func (c *collector) onConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
}

func (c *collector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *collector) onChange(p store.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads), len(c.errs)
}

func TestSubscribe_DeliversChangesForUnit(t *testing.T) {
	server := &fakeRealtime{t: t}
	srv := httptest.NewServer(server)
	defer srv.Close()

	got := &collector{}
	sub, err := newTestClient(t, srv).Subscribe(context.Background(), "AQUA-VND-001", got.onConnect, got.onChange, got.onError)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return server.connCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	server.mu.Lock()
	assert.Equal(t, Frame{Type: FrameSubscribe, UnitID: "AQUA-VND-001"}, server.subscribes[0])
	assert.Equal(t, "anon-key", server.headers[0].Get("apikey"))
	server.mu.Unlock()

	server.send(t, map[string]any{"type": "change", "unit_id": "AQUA-VND-002", "record": map[string]any{"p1_count": 1}})
	server.send(t, map[string]any{"type": "heartbeat"})
	server.send(t, map[string]any{"type": "change", "unit_id": "aqua-vnd-001", "record": map[string]any{"p1_count": 7, "water_level": 55}})

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Equal(t, json.Number("7"), got.payloads[0]["p1_count"])
	assert.Equal(t, json.Number("55"), got.payloads[0]["water_level"])
	assert.Empty(t, got.errs)
}

func TestSubscribe_ReconnectsAfterDrop(t *testing.T) {
	server := &fakeRealtime{t: t}
	srv := httptest.NewServer(server)
	defer srv.Close()

	got := &collector{}
	sub, err := newTestClient(t, srv).Subscribe(context.Background(), "AQUA-VND-001", got.onConnect, got.onChange, got.onError)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return server.connCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, server.latest().Close())

	require.Eventually(t, func() bool { return server.connCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	_, errs := got.counts()
	assert.GreaterOrEqual(t, errs, 1, "a dropped connection is reported")
	require.Eventually(t, func() bool { return got.connectCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	server.send(t, map[string]any{"type": "change", "unit_id": "AQUA-VND-001", "record": map[string]any{"p5_count": 2}})
	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribe_ReportsConnectFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	got := &collector{}
	sub, err := newTestClient(t, srv).Subscribe(context.Background(), "AQUA-VND-001", got.onConnect, got.onChange, got.onError)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, errs := got.counts()
		return errs >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sub.Close())
	assert.Zero(t, got.connectCount())
}

func TestSubscribe_RequiresURL(t *testing.T) {
	_, err := NewClient(config.RealtimeConfig{}).Subscribe(context.Background(), "AQUA-VND-001", nil, func(store.Payload) {}, nil)
	assert.Error(t, err)
}

type memoryReader struct {
	mu      sync.Mutex
	payload store.Payload
}

func (m *memoryReader) ReadSnapshot(context.Context, string) (store.Payload, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload, m.payload != nil, nil
}

func (m *memoryReader) setCoins(p1 int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = store.Payload{"unit_id": "AQUA-VND-001", "p1_count": p1, "water_level": 80, "system_status": "Online"}
}

func TestSubscribe_ServiceRecoversAfterReconnect(t *testing.T) {
	server := &fakeRealtime{t: t}
	srv := httptest.NewServer(server)
	defer srv.Close()

	reader := &memoryReader{}
	reader.setCoins(1)
	svc := syncer.NewService(config.SyncConfig{
		Mode:              config.FeedModePush,
		PollInterval:      time.Hour,
		SuppressionWindow: 5 * time.Second,
		FetchTimeout:      time.Second,
	}, reader, newTestClient(t, srv), nil)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(finished)
	}()
	defer func() {
		cancel()
		<-finished
	}()
	svc.Watch("AQUA-VND-001")

	p1 := func() int64 {
		if snap := svc.View().Snapshot; snap != nil {
			return snap.InsertedCoins.P1
		}
		return -1
	}
	require.Eventually(t, func() bool {
		return server.connCount() == 1 && svc.View().Status == syncer.StatusConnected && p1() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Counters change while the socket is down; no change frame follows.
	reader.setCoins(9)
	require.NoError(t, server.latest().Close())

	require.Eventually(t, func() bool { return server.connCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return svc.View().Status == syncer.StatusConnected && p1() == 9
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, svc.View().LastError)
}
