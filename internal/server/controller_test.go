package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Peercall/internal/config"
	"github.com/dkeye/Peercall/internal/domain"
	"github.com/dkeye/Peercall/internal/protocol"
)

func newSignalServer(t *testing.T, registerLimit int) (*httptest.Server, *Registry, context.CancelFunc) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Mode:           "release",
			Secret:         "test-secret",
			ReadLimit:      32768,
			PingPeriod:     30 * time.Second,
			RegisterLimit:  registerLimit,
			RegisterWindow: time.Minute,
		},
	}
	registry := NewRegistry()
	limiter := NewRegisterRateLimiter(cfg.Server.RegisterLimit, cfg.Server.RegisterWindow)
	ctl := NewController(registry, limiter, cfg.Server.ReadLimit, cfg.Server.PingPeriod)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(SetupRouter(ctx, cfg, ctl))
	t.Cleanup(srv.Close)
	return srv, registry, cancel
}

func dialPeer(t *testing.T, srv *httptest.Server, id domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(protocol.NewRegister(id)))
	return conn
}

func waitRegistered(t *testing.T, registry *Registry, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return registry.Count() == want
	}, 2*time.Second, 5*time.Millisecond)
}

func readOne(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestForwardBetweenPeers(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 10)

	alice := dialPeer(t, srv, "alice")
	bob := dialPeer(t, srv, "bob")
	waitRegistered(t, registry, 2)

	offer := protocol.NewCallOffer("alice", "bob", "offer-sdp", domain.CallVideo, "Alice")
	require.NoError(t, alice.WriteJSON(offer))

	got := readOne(t, bob)
	assert.Equal(t, protocol.TypeCallOffer, got.Type)
	assert.Equal(t, domain.UserID("alice"), got.From)
	assert.Equal(t, "offer-sdp", got.SDP)
	assert.Equal(t, "video", got.CallType)

	answer := protocol.NewCallAnswer("bob", "alice", "answer-sdp")
	require.NoError(t, bob.WriteJSON(answer))

	got = readOne(t, alice)
	assert.Equal(t, protocol.TypeCallAnswer, got.Type)
	assert.Equal(t, "answer-sdp", got.SDP)
}

func TestUnregisteredTargetDropped(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 10)

	alice := dialPeer(t, srv, "alice")
	bob := dialPeer(t, srv, "bob")
	waitRegistered(t, registry, 2)

	require.NoError(t, alice.WriteJSON(protocol.NewCallOffer("alice", "carol", "sdp", domain.CallAudio, "Alice")))
	// The next real message must still get through, proving the dropped one
	// did not wedge the pump.
	require.NoError(t, alice.WriteJSON(protocol.NewCallEnd("alice", "bob")))

	got := readOne(t, bob)
	assert.Equal(t, protocol.TypeCallEnd, got.Type)
}

func TestSpoofedFromDropped(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 10)

	alice := dialPeer(t, srv, "alice")
	bob := dialPeer(t, srv, "bob")
	waitRegistered(t, registry, 2)

	// alice claims to be carol; the server drops it.
	require.NoError(t, alice.WriteJSON(protocol.NewCallOffer("carol", "bob", "sdp", domain.CallAudio, "Carol")))
	require.NoError(t, alice.WriteJSON(protocol.NewCallEnd("alice", "bob")))

	got := readOne(t, bob)
	assert.Equal(t, protocol.TypeCallEnd, got.Type)
	assert.Equal(t, domain.UserID("alice"), got.From)
}

func TestDuplicateRegisterDisplacesOldConnection(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 10)

	first := dialPeer(t, srv, "alice")
	waitRegistered(t, registry, 1)

	second := dialPeer(t, srv, "alice")
	// Still one registered user; the first socket gets closed by the server.
	waitRegistered(t, registry, 1)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	bob := dialPeer(t, srv, "bob")
	waitRegistered(t, registry, 2)
	require.NoError(t, bob.WriteJSON(protocol.NewCallEnd("bob", "alice")))

	got := readOne(t, second)
	assert.Equal(t, protocol.TypeCallEnd, got.Type)
}

func TestRegisterRateLimitEnforced(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 1)

	dialPeer(t, srv, "alice")
	waitRegistered(t, registry, 1)

	// Same source address, limit exhausted: the bind is refused but the
	// connection stays open.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(protocol.NewRegister("bob")))

	time.Sleep(50 * time.Millisecond)
	_, ok := registry.Get("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, registry.Count())
}

// Exercises concurrent upgrades against other requests reusing pooled gin
// contexts; meaningful under -race.
func TestConcurrentConnectsAndRequests(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 100)

	var wg sync.WaitGroup
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	for i := 0; i < 20; i++ {
		wg.Add(2)
		id := domain.UserID(fmt.Sprintf("user-%d", i))
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.WriteJSON(protocol.NewRegister(id))
			time.Sleep(20 * time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/healthz")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return registry.Count() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServerShutdownClosesConnections(t *testing.T) {
	srv, registry, cancel := newSignalServer(t, 10)

	conn := dialPeer(t, srv, "alice")
	waitRegistered(t, registry, 1)

	cancel()

	// The write pump closes the socket on cancellation, which unblocks the
	// read pump and unregisters the user.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	waitRegistered(t, registry, 0)
}

func TestHealthzReportsRegistered(t *testing.T) {
	srv, registry, _ := newSignalServer(t, 10)

	dialPeer(t, srv, "alice")
	waitRegistered(t, registry, 1)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Registered int `json:"registered"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Registered)
}
