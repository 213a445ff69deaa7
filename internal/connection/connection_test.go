package connection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"diplomacy/client/internal/config"
	"diplomacy/client/internal/game"
	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
	"diplomacy/client/internal/session"
)

// memTransport is an in-memory frame pipe with a scripted server side.
type memTransport struct {
	mu         sync.Mutex
	sent       []map[string]any
	failWrites bool
	respond    func(req map[string]any) []map[string]any

	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newMemTransport(respond func(req map[string]any) []map[string]any) *memTransport {
	return &memTransport{
		respond: respond,
		inbox:   make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (t *memTransport) ReadMessage() ([]byte, error) {
	select {
	case raw := <-t.inbox:
		return raw, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *memTransport) WriteMessage(payload []byte) error {
	var req map[string]any
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	t.mu.Lock()
	fail := t.failWrites
	if !fail {
		t.sent = append(t.sent, req)
	}
	respond := t.respond
	t.mu.Unlock()
	if fail {
		return errors.New("pipe broken")
	}
	if respond != nil {
		for _, frame := range respond(req) {
			t.deliver(frame)
		}
	}
	return nil
}

func (t *memTransport) deliver(frame map[string]any) {
	raw, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	select {
	case t.inbox <- raw:
	case <-t.closed:
	}
}

func (t *memTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *memTransport) setFailWrites(fail bool) {
	t.mu.Lock()
	t.failWrites = fail
	t.mu.Unlock()
}

func (t *memTransport) sentNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.sent))
	for _, req := range t.sent {
		names = append(names, req["name"].(string))
	}
	return names
}

// gameServer scripts the server side of the dialogue.
type gameServer struct {
	mu        sync.Mutex
	syncPhase string
	muted     map[string]bool
}

func newGameServer() *gameServer {
	return &gameServer{syncPhase: "S1901M", muted: make(map[string]bool)}
}

func (s *gameServer) mute(kinds ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range kinds {
		s.muted[kind] = true
	}
}

func (s *gameServer) setSyncPhase(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncPhase = code
}

func (s *gameServer) respond(req map[string]any) []map[string]any {
	s.mu.Lock()
	muted := s.muted[req["name"].(string)]
	syncPhase := s.syncPhase
	s.mu.Unlock()
	if muted {
		return nil
	}

	id := req["id"]
	switch req["name"] {
	case protocol.SignIn:
		return []map[string]any{{"name": protocol.ResponseToken, "request_id": id, "data": "tok-1"}}
	case protocol.CreateGame, protocol.JoinGame:
		return []map[string]any{{
			"name":       protocol.ResponseGame,
			"request_id": id,
			"data": map[string]any{
				"game_id": "game-1",
				"role":    "FRANCE",
				"phase":   "S1901M",
				"status":  "active",
				"state":   map[string]any{"name": "S1901M"},
			},
		}}
	case protocol.Synchronize:
		return []map[string]any{{
			"name":       protocol.ResponseSync,
			"request_id": id,
			"data":       map[string]any{"game_id": "game-1", "phase": syncPhase},
		}}
	default:
		return []map[string]any{{"name": protocol.ResponseOK, "request_id": id}}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		GatewayURL:      "ws://gateway.test",
		ConnectAttempts: 2,
		ConnectBackoff:  10 * time.Millisecond,
		RequestTimeout:  2 * time.Second,
		MaxPayloadBytes: 1 << 20,
	}
}

func dialSequence(transports ...Transport) DialFunc {
	var mu sync.Mutex
	next := 0
	return func(context.Context, string) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(transports) {
			return nil, errors.New("no transport left")
		}
		t := transports[next]
		next++
		return t, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectBudgetExhaustion(t *testing.T) {
	dial := func(context.Context, string) (Transport, error) {
		return nil, errors.New("refused")
	}
	c := New(testConfig(), protocol.NewRegistry(), dial, logging.NewTestLogger())
	err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connect to fail")
	}
	if c.CurrentState() != Disconnected {
		t.Fatalf("state = %s, want disconnected", c.CurrentState())
	}
}

func TestSignInCreateGameSetOrders(t *testing.T) {
	server := newGameServer()
	wire := newMemTransport(server.respond)
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.Token() != "tok-1" {
		t.Fatalf("token = %q", sess.Token())
	}

	view, err := sess.CreateGame(context.Background(), session.GameSettings{MapName: "standard"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if view.GameID() != "game-1" || view.Role() != "FRANCE" {
		t.Fatalf("view identity = (%q, %q)", view.GameID(), view.Role())
	}
	if got := view.State().Phase(); got != "S1901M" {
		t.Fatalf("phase = %q", got)
	}
}

func TestDataResponsesNeedTheDefaultShape(t *testing.T) {
	server := newGameServer()
	wire := newMemTransport(func(req map[string]any) []map[string]any {
		switch req["name"] {
		case protocol.ListGames:
			//1.- ok sentinel where a datum is expected.
			return []map[string]any{{"name": protocol.ResponseOK, "request_id": req["id"]}}
		case protocol.GetAvailableMaps:
			//2.- stray fields defeat the default data interpretation.
			return []map[string]any{{
				"name":       protocol.ResponseMaps,
				"request_id": req["id"],
				"data":       map[string]any{"standard": []string{"AUSTRIA"}},
				"stray":      true,
			}}
		default:
			return server.respond(req)
		}
	})
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if _, err := sess.ListGames(context.Background(), session.GameFilter{}); err == nil || !strings.Contains(err.Error(), "carried no data") {
		t.Fatalf("ListGames error = %v, want missing-data rejection", err)
	}
	if _, err := sess.GetAvailableMaps(context.Background()); err == nil || !strings.Contains(err.Error(), "carried no data") {
		t.Fatalf("GetAvailableMaps error = %v, want missing-data rejection", err)
	}
}

func TestResponseCorrelation(t *testing.T) {
	server := newGameServer()
	wire := newMemTransport(server.respond)
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	//1.- A response with an unknown request_id is dropped without
	// settling anything.
	wire.deliver(map[string]any{"name": protocol.ResponseOK, "request_id": 999999})

	//2.- A matched response settles the right future exactly once; the
	// duplicate that follows is dropped.
	server.mu.Lock()
	server.syncPhase = "S1901M"
	server.mu.Unlock()
	wire.mu.Lock()
	wire.respond = func(req map[string]any) []map[string]any {
		frames := server.respond(req)
		return append(frames, frames...)
	}
	wire.mu.Unlock()

	if err := sess.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	server := newGameServer()
	server.mute(protocol.Logout)
	wire := newMemTransport(server.respond)
	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	c := New(cfg, protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	err = sess.Logout(context.Background())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Logout error = %v, want timeout", err)
	}
}

func TestServerErrorRejectsFuture(t *testing.T) {
	server := newGameServer()
	wire := newMemTransport(func(req map[string]any) []map[string]any {
		if req["name"] == protocol.Vote {
			return []map[string]any{{
				"name":       protocol.ResponseError,
				"request_id": req["id"],
				"message":    "not your seat",
			}}
		}
		return server.respond(req)
	})
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	view, err := sess.JoinGame(context.Background(), "game-1", "FRANCE", "")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	err = view.Vote(context.Background(), "yes")
	var serr *protocol.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Vote error = %v, want *ServerError", err)
	}
	if serr.Message != "not your seat" {
		t.Fatalf("server error message = %q", serr.Message)
	}
}

// reconnectFixture connects, signs in, joins a game, parks 3 requests in
// flight and 2 in the queue, then drops the transport.
type reconnectFixture struct {
	c       *Connection
	server  *gameServer
	wire1   *memTransport
	wire2   *memTransport
	results []<-chan error
}

func setupReconnect(t *testing.T) *reconnectFixture {
	t.Helper()
	server := newGameServer()
	wire1 := newMemTransport(server.respond)
	wire2 := newMemTransport(server.respond)
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire1, wire2), logging.NewTestLogger())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	view, err := sess.JoinGame(context.Background(), "game-1", "FRANCE", "")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	//1.- Three requests the server never answers stay in flight.
	server.mute(protocol.ProcessGame, protocol.SetWaitFlag, protocol.Vote)
	async := func(do func() error) <-chan error {
		ch := make(chan error, 1)
		go func() { ch <- do() }()
		return ch
	}
	f := &reconnectFixture{c: c, server: server, wire1: wire1, wire2: wire2}
	f.results = append(f.results,
		async(func() error { return view.Process(context.Background()) }),
		async(func() error { return view.SetWaitFlag(context.Background(), true) }),
		async(func() error { return view.Vote(context.Background(), "yes") }),
	)
	waitFor(t, "3 in-flight requests", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.inFlight) == 3
	})

	//2.- Two requests written into a broken pipe fall back to the queue.
	wire1.setFailWrites(true)
	f.results = append(f.results,
		async(func() error { return view.ClearOrders(context.Background()) }),
		async(func() error { return view.ClearCenters(context.Background()) }),
	)
	waitFor(t, "2 queued requests", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.toSend) == 2
	})
	return f
}

func TestReconnectMergesAndReplays(t *testing.T) {
	f := setupReconnect(t)
	defer f.c.Close()

	//3.- After recovery against an unchanged phase, all 5 requests
	// replay on the new transport in their original relative order.
	f.server.mu.Lock()
	f.server.muted = make(map[string]bool)
	f.server.mu.Unlock()
	f.wire1.Close()

	for i, ch := range f.results {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("request %d failed: %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d never settled", i)
		}
	}
	if f.c.CurrentState() != Connected {
		t.Fatalf("state = %s, want connected", f.c.CurrentState())
	}

	names := f.wire2.sentNames()
	want := []string{
		protocol.Synchronize,
		protocol.ProcessGame, protocol.SetWaitFlag, protocol.Vote,
		protocol.ClearOrders, protocol.ClearCenters,
	}
	if len(names) != len(want) {
		t.Fatalf("replayed frames = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("replayed frames = %v, want %v", names, want)
		}
	}

	//4.- The formerly in-flight requests are flagged as resends, the
	// queued-only ones are not.
	f.wire2.mu.Lock()
	defer f.wire2.mu.Unlock()
	for i, frame := range f.wire2.sent[1:4] {
		if frame["re_sent"] != true {
			t.Fatalf("frame %d re_sent = %v, want true", i+1, frame["re_sent"])
		}
	}
	for i, frame := range f.wire2.sent[4:6] {
		if frame["re_sent"] != false {
			t.Fatalf("frame %d re_sent = %v, want false", i+4, frame["re_sent"])
		}
	}
}

func TestReconnectRejectsPhaseMismatches(t *testing.T) {
	f := setupReconnect(t)
	defer f.c.Close()

	//3.- The server is a phase ahead now; every queued request recorded
	// S1901M and must be rejected instead of replayed.
	f.server.setSyncPhase("F1901M")
	f.wire1.Close()

	for i, ch := range f.results {
		select {
		case err := <-ch:
			if err == nil || !strings.Contains(err.Error(), "no longer current") {
				t.Fatalf("request %d error = %v, want phase mismatch", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d never settled", i)
		}
	}

	names := f.wire2.sentNames()
	if len(names) != 1 || names[0] != protocol.Synchronize {
		t.Fatalf("new transport saw %v, want only the synchronize", names)
	}
}

func TestNotificationRoutesToView(t *testing.T) {
	server := newGameServer()
	wire := newMemTransport(server.respond)
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	view, err := sess.JoinGame(context.Background(), "game-1", "FRANCE", "")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	wire.deliver(map[string]any{
		"name":      protocol.GameStatusUpdate,
		"game_id":   "game-1",
		"game_role": "FRANCE",
		"status":    "paused",
	})
	waitFor(t, "status update", func() bool {
		return view.State().Status() == "paused"
	})
}

func TestSetOrdersMutatesOnOK(t *testing.T) {
	server := newGameServer()
	wire := newMemTransport(server.respond)
	c := New(testConfig(), protocol.NewRegistry(), dialSequence(wire), logging.NewTestLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := c.SignIn(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	view, err := sess.JoinGame(context.Background(), "game-1", "FRANCE", "")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	if err := view.SetOrders(context.Background(), []string{"A PAR - BUR"}, nil); err != nil {
		t.Fatalf("SetOrders: %v", err)
	}
	power := view.State().Power("FRANCE")
	if got := power.OrderStatus(); got != game.OrdersSet {
		t.Fatalf("order status = %v, want OrdersSet", got)
	}
	orders := power.Orders()
	if len(orders) != 1 || orders[0] != "A PAR - BUR" {
		t.Fatalf("orders = %v", orders)
	}
}
