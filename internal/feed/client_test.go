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

	"token-watchdesk/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// captureSink records events handed to it.
type captureSink struct {
	mu      sync.Mutex
	creates []*domain.CreateEvent
	trades  []*domain.TradeEvent
}

func (s *captureSink) HandleCreate(_ context.Context, e *domain.CreateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, e)
	return nil
}

func (s *captureSink) HandleTrade(_ context.Context, e *domain.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, e)
	return nil
}

func (s *captureSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates), len(s.trades)
}

func testConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.ReconnectBase = 10 * time.Millisecond
	return cfg
}

// echoServer upgrades connections and collects every message received,
// optionally replying with canned frames.
type echoServer struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	received []OutboundMessage
	frames   [][]byte // frames to push after the first message arrives
}

func newEchoServer(t *testing.T, frames ...[]byte) *echoServer {
	es := &echoServer{t: t, frames: frames}
	es.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		pushed := false
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg OutboundMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			es.mu.Lock()
			es.received = append(es.received, msg)
			es.mu.Unlock()

			if !pushed {
				pushed = true
				for _, frame := range es.frames {
					if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				}
			}
		}
	}))
	return es
}

func (es *echoServer) url() string {
	return "ws" + strings.TrimPrefix(es.server.URL, "http")
}

func (es *echoServer) messages() []OutboundMessage {
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make([]OutboundMessage, len(es.received))
	copy(out, es.received)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestClient_ConnectSubscribesNewTokens(t *testing.T) {
	es := newEchoServer(t)
	defer es.server.Close()

	client := NewClient(testConfig(es.url()), &captureSink{}, nil)
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := client.State(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}

	waitFor(t, time.Second, func() bool { return len(es.messages()) >= 1 })

	msgs := es.messages()
	if msgs[0].Method != MethodSubscribeNewToken {
		t.Errorf("first message method = %q, want %q", msgs[0].Method, MethodSubscribeNewToken)
	}
}

func TestClient_ConnectIdempotent(t *testing.T) {
	es := newEchoServer(t)
	defer es.server.Close()

	client := NewClient(testConfig(es.url()), &captureSink{}, nil)
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Second connect while open is a no-op.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(es.messages()) >= 1 })
	time.Sleep(50 * time.Millisecond)

	var subscribes int
	for _, msg := range es.messages() {
		if msg.Method == MethodSubscribeNewToken {
			subscribes++
		}
	}
	if subscribes != 1 {
		t.Errorf("subscribeNewToken sent %d times, want 1", subscribes)
	}
}

func TestClient_DispatchesEvents(t *testing.T) {
	createFrame := []byte(`{"txType":"create","mint":"` + testMint + `","symbol":"TST","name":"Test","vSolInBondingCurve":30,"vTokensInBondingCurve":1000000}`)
	tradeFrame := []byte(`{"txType":"buy","mint":"` + testMint + `","tokenAmount":100,"vSolInBondingCurve":31,"vTokensInBondingCurve":999900}`)

	es := newEchoServer(t, createFrame, tradeFrame)
	defer es.server.Close()

	sink := &captureSink{}
	client := NewClient(testConfig(es.url()), sink, nil)
	defer client.Close()

	var fanMu sync.Mutex
	var fanned []domain.EventKind
	// First subscriber panics; delivery to the second must not suffer.
	client.AddSubscriber(func(domain.Event) { panic("faulty subscriber") })
	client.AddSubscriber(func(e domain.Event) {
		fanMu.Lock()
		fanned = append(fanned, e.Kind())
		fanMu.Unlock()
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		creates, trades := sink.counts()
		return creates == 1 && trades == 1
	})

	waitFor(t, time.Second, func() bool {
		fanMu.Lock()
		defer fanMu.Unlock()
		return len(fanned) == 2
	})

	fanMu.Lock()
	defer fanMu.Unlock()
	if fanned[0] != domain.KindCreate || fanned[1] != domain.KindTrade {
		t.Errorf("fan-out order = %v", fanned)
	}
}

func TestClient_MalformedFrameDoesNotStopReadLoop(t *testing.T) {
	malformed := []byte(`{broken`)
	goodFrame := []byte(`{"txType":"create","mint":"` + testMint + `","symbol":"OK","name":"Good"}`)

	es := newEchoServer(t, malformed, goodFrame)
	defer es.server.Close()

	sink := &captureSink{}
	client := NewClient(testConfig(es.url()), sink, nil)
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		creates, _ := sink.counts()
		return creates == 1
	})
}

func TestClient_SendQueuedWhileDisconnected(t *testing.T) {
	es := newEchoServer(t)
	defer es.server.Close()

	client := NewClient(testConfig(es.url()), &captureSink{}, nil)
	defer client.Close()

	client.Send(OutboundMessage{Method: MethodSubscribeTokenTrade, Keys: []string{testMint}})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(es.messages()) >= 2 })

	msgs := es.messages()
	if msgs[0].Method != MethodSubscribeNewToken {
		t.Errorf("first message = %q", msgs[0].Method)
	}
	if msgs[1].Method != MethodSubscribeTokenTrade || len(msgs[1].Keys) != 1 {
		t.Errorf("queued message not flushed: %+v", msgs[1])
	}
}

func TestClient_ManualDisconnectSuppressesReconnect(t *testing.T) {
	es := newEchoServer(t)
	defer es.server.Close()

	client := NewClient(testConfig(es.url()), &captureSink{}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	client.MarkActive([]string{testMint})
	client.Disconnect()

	if got := client.State(); got != StateDisconnected {
		t.Errorf("state after disconnect = %v", got)
	}
	if client.ActiveCount() != 0 {
		t.Error("active set not cleared on manual disconnect")
	}

	// Backoff base is 10ms; if a reconnect were scheduled it would
	// have fired well within this window.
	time.Sleep(100 * time.Millisecond)
	if got := client.State(); got != StateDisconnected {
		t.Errorf("client reconnected after manual disconnect, state = %v", got)
	}
	client.Close()
}

func TestClient_ReconnectBackoffGivesUp(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1") // nothing listening
	cfg.MaxReconnectAttempts = 2
	cfg.HandshakeTimeout = 50 * time.Millisecond

	client := NewClient(cfg, &captureSink{}, nil)
	defer client.Close()

	_ = client.Connect(context.Background())

	// Attempts 0 and 1 wait 10ms and 20ms; after both fail the client
	// parks in Errored.
	waitFor(t, 2*time.Second, func() bool { return client.State() == StateErrored })
}

func TestClient_ReconnectBackoffDoubles(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1") // nothing listening
	cfg.MaxReconnectAttempts = 3
	cfg.HandshakeTimeout = 50 * time.Millisecond

	client := NewClient(cfg, &captureSink{}, nil)
	defer client.Close()

	// Run the reconnect callback inline and record each armed delay, so
	// the whole retry ladder unwinds synchronously inside Connect.
	var delays []time.Duration
	client.afterFn = func(d time.Duration, fn func()) {
		delays = append(delays, d)
		fn()
	}

	_ = client.Connect(context.Background())

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("scheduled %d reconnects, want %d: %v", len(delays), len(want), delays)
	}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("attempt %d delay = %v, want %v", i, d, want[i])
		}
	}
	if got := client.State(); got != StateErrored {
		t.Errorf("state after exhausting attempts = %v, want %v", got, StateErrored)
	}
}

func TestClient_ActiveSet(t *testing.T) {
	client := NewClient(DefaultConfig(), &captureSink{}, nil)

	client.MarkActive([]string{"a", "b"})
	if !client.IsActive("a") || !client.IsActive("b") {
		t.Error("marked mints not active")
	}
	if client.ActiveCount() != 2 {
		t.Errorf("active count = %d", client.ActiveCount())
	}

	client.MarkInactive([]string{"a"})
	if client.IsActive("a") {
		t.Error("a still active after MarkInactive")
	}
	if !client.IsActive("b") {
		t.Error("b should remain active")
	}
}
