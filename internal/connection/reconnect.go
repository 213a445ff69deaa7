package connection

import (
	"context"
	"fmt"
	"sort"

	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
	"diplomacy/client/internal/session"
)

type viewKey struct {
	gameID string
	role   string
}

// reconnect re-dials the gateway and runs the recovery protocol. On
// success the connection returns to Connected and the caught-up gate
// opens; on failure every pending request is rejected and the connection
// goes down for good.
func (c *Connection) reconnect() {
	t, err := c.dialWithBudget(context.Background())
	if err != nil {
		c.abortReconnect(fmt.Errorf("reconnect: %w", err))
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		t.Close()
		return
	}
	c.transport = t
	c.mu.Unlock()
	go c.readLoop(t)

	if err := c.recover(); err != nil {
		c.abortReconnect(err)
	}
}

func (c *Connection) recover() error {
	//1.- Fold the orphaned in-flight requests back into the queue,
	// marked as resends. The count must balance exactly: a mismatch
	// means the correlation tables are corrupt, and replaying from a
	// corrupt table could duplicate or lose a request.
	c.mu.Lock()
	queued := len(c.toSend)
	orphaned := len(c.inFlight)
	for id, p := range c.inFlight {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.req.ReSent = true
		c.toSend[id] = p
		delete(c.inFlight, id)
	}
	merged := len(c.toSend)
	c.mu.Unlock()
	if merged != queued+orphaned {
		c.log.Fatal("correlation tables corrupt, aborting recovery",
			logging.Int("queued", queued),
			logging.Int("orphaned", orphaned),
			logging.Int("merged", merged))
		return fmt.Errorf("recovery aborted: %d queued + %d orphaned merged to %d", queued, orphaned, merged)
	}

	//2.- Queued synchronize requests describe the pre-drop world; fresh
	// ones are issued below, so the stale ones are invalidated.
	c.mu.Lock()
	var stale []*pendingRequest
	for id, p := range c.toSend {
		if p.req.Name == protocol.Synchronize {
			stale = append(stale, p)
			delete(c.toSend, id)
		}
	}
	c.mu.Unlock()
	for _, p := range stale {
		p.fut.Reject(fmt.Errorf("synchronize request %d invalidated by reconnection", p.req.ID))
	}

	//3.- One fresh synchronize per live view collects the authoritative
	// phase; the catch-up notifications it triggers mutate the views on
	// the way.
	var views []*session.GameView
	c.mu.Lock()
	if c.sess != nil {
		views = c.sess.AllViews()
	}
	c.mu.Unlock()
	phases := make(map[viewKey]string, len(views))
	for _, view := range views {
		info, err := view.Synchronize(context.Background())
		if err != nil {
			// Leaving the phase unknown fails this view's queued
			// phase-dependent requests below instead of replaying them
			// against an unverified phase.
			c.log.Error("view synchronize failed",
				logging.String("game_id", view.GameID()),
				logging.String("role", view.Role()),
				logging.Error(err))
			continue
		}
		phases[viewKey{view.GameID(), view.Role()}] = info.CurrentPhase
	}

	//4.- Queued phase-dependent requests whose recorded phase no longer
	// matches are rejected; everything else survives.
	c.mu.Lock()
	var rejected, survivors []*pendingRequest
	for id, p := range c.toSend {
		if p.req.Spec().PhaseDependent && p.req.Phase != phases[viewKey{p.req.GameID, p.req.GameRole}] {
			rejected = append(rejected, p)
			delete(c.toSend, id)
			continue
		}
		survivors = append(survivors, p)
	}
	c.mu.Unlock()
	for _, p := range rejected {
		p.fut.Reject(fmt.Errorf("request %q (id %d) targeted phase %s, no longer current",
			p.req.Name, p.req.ID, p.req.Phase))
	}

	//5.- Replay the survivors in their original relative send order.
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].seq < survivors[j].seq })
	c.mu.Lock()
	c.state = Connected
	c.mu.Unlock()
	for _, p := range survivors {
		c.tryWrite(p)
	}

	//6.- Open the gate for request traffic held back during recovery.
	c.mu.Lock()
	gate := c.caughtUp
	c.mu.Unlock()
	if !gate.Settled() {
		gate.Resolve(struct{}{})
	}
	c.log.Info("recovery complete",
		logging.Int("replayed", len(survivors)),
		logging.Int("rejected", len(rejected)))
	return nil
}

// abortReconnect fails everything waiting on the connection.
func (c *Connection) abortReconnect(cause error) {
	c.log.Error("reconnection failed", logging.Error(cause))
	c.mu.Lock()
	c.state = Disconnected
	gate := c.caughtUp
	pending := c.drainLocked()
	c.mu.Unlock()
	if !gate.Settled() {
		gate.Reject(cause)
	}
	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.fut.Reject(cause)
	}
}
