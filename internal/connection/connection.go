// Package connection drives the wire: dialing with a retry budget, the
// request/response correlation tables, per-request timeouts, notification
// routing, and the recovery protocol that runs after an unexpected
// disconnect.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"diplomacy/client/internal/config"
	"diplomacy/client/internal/future"
	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
	"diplomacy/client/internal/session"
)

// State is the connection lifecycle position.
type State int32

const (
	// Disconnected means no transport and no recovery in progress.
	Disconnected State = iota
	// Connecting means the initial dial loop is running.
	Connecting
	// Connected means requests flow normally.
	Connected
	// Reconnecting means the transport dropped and recovery is running.
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ErrClosed is returned for requests issued against a closed connection.
var ErrClosed = errors.New("connection closed")

// pendingRequest is one outbound request awaiting its response. seq
// preserves the original send order across a reconnection replay.
type pendingRequest struct {
	req   *protocol.Request
	fut   *future.Future[any]
	seq   uint64
	timer *time.Timer
}

// Connection multiplexes requests and notifications over one transport.
type Connection struct {
	cfg      *config.Config
	registry *protocol.Registry
	dial     DialFunc
	log      *logging.Logger
	handlers map[string]responseHandler

	mu        sync.Mutex
	state     State
	transport Transport
	sess      *session.Session
	toSend    map[uint64]*pendingRequest
	inFlight  map[uint64]*pendingRequest
	sendSeq   uint64
	closing   bool

	// connected settles when the initial Connect finishes; caughtUp is
	// replaced on every reconnection and settles when recovery finishes.
	connected *future.Future[struct{}]
	caughtUp  *future.Future[struct{}]
}

var _ session.Sender = (*Connection)(nil)

// New builds a connection. Every request kind in the registry must have
// a response handler; a gap is a programming error caught here rather
// than at dispatch time.
func New(cfg *config.Config, registry *protocol.Registry, dial DialFunc, log *logging.Logger) *Connection {
	if log == nil {
		log = logging.L()
	}
	c := &Connection{
		cfg:       cfg,
		registry:  registry,
		dial:      dial,
		log:       log.With(logging.String("component", "connection")),
		toSend:    make(map[uint64]*pendingRequest),
		inFlight:  make(map[uint64]*pendingRequest),
		connected: future.New[struct{}](),
		caughtUp:  future.New[struct{}](),
	}
	c.handlers = buildHandlers()
	for _, kind := range registry.RequestKinds() {
		if _, ok := c.handlers[kind]; !ok {
			panic(fmt.Sprintf("no response handler for request kind %q", kind))
		}
	}
	return c
}

// CurrentState reports the lifecycle position.
func (c *Connection) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the signed-in session, if any.
func (c *Connection) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Connect dials the gateway, retrying up to the attempt budget with a
// fixed delay between attempts. It may be called once per Connection.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected || c.connected.Settled() {
		c.mu.Unlock()
		return fmt.Errorf("connect from state %s", c.state)
	}
	c.state = Connecting
	c.mu.Unlock()

	t, err := c.dialWithBudget(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Disconnected
		c.connected.Reject(err)
		c.caughtUp.Reject(err)
		return err
	}
	if c.closing {
		c.mu.Unlock()
		t.Close()
		c.mu.Lock()
		return ErrClosed
	}
	c.transport = t
	c.state = Connected
	go c.readLoop(t)
	c.connected.Resolve(struct{}{})
	c.caughtUp.Resolve(struct{}{})
	c.log.Info("connected", logging.String("gateway", c.cfg.GatewayURL))
	return nil
}

func (c *Connection) dialWithBudget(ctx context.Context) (Transport, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		t, err := c.dial(ctx, c.cfg.GatewayURL)
		if err == nil {
			return t, nil
		}
		lastErr = err
		c.log.Warn("dial failed",
			logging.Int("attempt", attempt),
			logging.Int("budget", c.cfg.ConnectAttempts),
			logging.Error(err))
		if attempt == c.cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.ConnectBackoff):
		}
	}
	return nil, fmt.Errorf("gateway unreachable after %d attempts: %w", c.cfg.ConnectAttempts, lastErr)
}

// SignIn authenticates and builds the session all further traffic runs
// through.
func (c *Connection) SignIn(ctx context.Context, username, password string) (*session.Session, error) {
	req, err := c.registry.Build(protocol.SignIn, map[string]any{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	result, err := c.RoundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	token, ok := result.(string)
	if !ok || token == "" {
		return nil, fmt.Errorf("sign_in: unexpected result %v", result)
	}
	sess := session.New(token, username, c.registry, c, c.log)
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	return sess, nil
}

// RoundTrip queues a request and blocks until its response, timeout or
// rejection. A synchronize request only waits for the connect gate; all
// other kinds also wait for any in-progress recovery to finish, so they
// can never interleave with the replay.
func (c *Connection) RoundTrip(ctx context.Context, req *protocol.Request) (any, error) {
	if _, err := c.connected.Result(ctx); err != nil {
		return nil, err
	}
	if req.Name != protocol.Synchronize {
		c.mu.Lock()
		gate := c.caughtUp
		c.mu.Unlock()
		if _, err := gate.Result(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.sendSeq++
	p := &pendingRequest{req: req, fut: future.New[any](), seq: c.sendSeq}
	c.toSend[req.ID] = p
	c.mu.Unlock()

	c.tryWrite(p)
	return p.fut.Result(ctx)
}

// tryWrite attempts to put a queued request on the wire. The entry moves
// into inFlight before the write; a failed write moves it back so the
// recovery replay picks it up.
func (c *Connection) tryWrite(p *pendingRequest) {
	c.mu.Lock()
	if _, queued := c.toSend[p.req.ID]; !queued {
		c.mu.Unlock()
		return
	}
	t := c.transport
	writable := t != nil && (c.state == Connected ||
		(c.state == Reconnecting && p.req.Name == protocol.Synchronize))
	if !writable {
		c.mu.Unlock()
		return
	}
	delete(c.toSend, p.req.ID)
	c.inFlight[p.req.ID] = p
	c.mu.Unlock()

	payload, err := json.Marshal(p.req)
	if err == nil {
		err = t.WriteMessage(payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if _, still := c.inFlight[p.req.ID]; still {
			delete(c.inFlight, p.req.ID)
			c.toSend[p.req.ID] = p
		}
		c.log.Warn("write failed, request requeued",
			logging.String("kind", p.req.Name),
			logging.Uint64("request_id", p.req.ID),
			logging.Error(err))
		return
	}
	p.timer = time.AfterFunc(c.cfg.RequestTimeout, func() { c.expire(p.req.ID) })
}

// expire rejects one in-flight request whose response never came. There
// is no automatic retry.
func (c *Connection) expire(id uint64) {
	c.mu.Lock()
	p, ok := c.inFlight[id]
	if ok {
		delete(c.inFlight, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Warn("request timed out",
		logging.String("kind", p.req.Name),
		logging.Uint64("request_id", id))
	p.fut.Reject(fmt.Errorf("request %q (id %d) timed out after %s", p.req.Name, id, c.cfg.RequestTimeout))
}

func (c *Connection) readLoop(t Transport) {
	for {
		raw, err := t.ReadMessage()
		if err != nil {
			c.transportLost(t, err)
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Connection) handleFrame(raw []byte) {
	inbound, err := c.registry.Parse(raw)
	if err != nil {
		var serr *protocol.ServerError
		if errors.As(err, &serr) && serr.RequestID != 0 {
			c.rejectInFlight(serr.RequestID, serr)
			return
		}
		//1.- Malformed or unregistered frames are logged and dropped,
		// never fatal: one bad frame must not take the client down.
		c.log.Error("protocol error, frame dropped", logging.Error(err))
		return
	}
	if inbound.Response != nil {
		c.handleResponse(inbound.Response)
		return
	}
	c.routeNotification(inbound.Notification)
}

func (c *Connection) rejectInFlight(id uint64, cause error) {
	c.mu.Lock()
	p, ok := c.inFlight[id]
	if ok {
		delete(c.inFlight, id)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Warn("server error for unknown request", logging.Uint64("request_id", id), logging.Error(cause))
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.fut.Reject(cause)
}

func (c *Connection) handleResponse(resp *protocol.Response) {
	c.mu.Lock()
	p, ok := c.inFlight[resp.RequestID]
	if ok {
		delete(c.inFlight, resp.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Warn("response does not match any in-flight request, dropped",
			logging.String("response", resp.Name),
			logging.Uint64("request_id", resp.RequestID))
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	handler, ok := c.handlers[p.req.Name]
	if !ok {
		// New guarantees full coverage; reaching this is corruption.
		c.log.Fatal("no handler for request kind", logging.String("kind", p.req.Name))
		panic(fmt.Sprintf("no response handler for request kind %q", p.req.Name))
	}
	result, err := handler(c, p.req, resp)
	if err != nil {
		p.fut.Reject(err)
		return
	}
	p.fut.Resolve(result)
}

// transportLost reacts to a read failure: expected during Close, a
// recovery trigger otherwise.
func (c *Connection) transportLost(t Transport, err error) {
	c.mu.Lock()
	if c.closing || t != c.transport {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.state = Reconnecting
	c.caughtUp = future.New[struct{}]()
	c.mu.Unlock()
	t.Close()

	c.log.Warn("transport lost, reconnecting", logging.Error(err))
	go c.reconnect()
}

// Close tears the connection down and fails every pending request.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	t := c.transport
	c.transport = nil
	c.state = Disconnected
	sess := c.sess
	pending := c.drainLocked()
	if !c.connected.Settled() {
		c.connected.Reject(ErrClosed)
	}
	if !c.caughtUp.Settled() {
		c.caughtUp.Reject(ErrClosed)
	}
	c.mu.Unlock()

	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.fut.Reject(ErrClosed)
	}
	if sess != nil {
		sess.Close()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}

// drainLocked empties both correlation tables. Caller holds c.mu.
func (c *Connection) drainLocked() []*pendingRequest {
	out := make([]*pendingRequest, 0, len(c.toSend)+len(c.inFlight))
	for id, p := range c.toSend {
		out = append(out, p)
		delete(c.toSend, id)
	}
	for id, p := range c.inFlight {
		out = append(out, p)
		delete(c.inFlight, id)
	}
	return out
}

func (c *Connection) routeNotification(n *protocol.Notification) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		c.log.Warn("notification before sign-in, dropped", logging.String("notification", n.Name))
		return
	}

	var err error
	switch n.Scope {
	case protocol.ScopeSession:
		err = sess.ApplyNotification(n)
	case protocol.ScopeGame:
		view, ok := sess.View(n.GameID, n.GameRole)
		if !ok {
			c.log.Warn("notification for unknown view, dropped",
				logging.String("notification", n.Name),
				logging.String("game_id", n.GameID),
				logging.String("game_role", n.GameRole))
			return
		}
		err = view.ApplyNotification(n)
	default:
		err = fmt.Errorf("notification %q has unroutable scope %s", n.Name, n.Scope)
	}
	if err != nil {
		c.log.Error("notification handling failed",
			logging.String("notification", n.Name),
			logging.Error(err))
	}
}
