package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"diplomacy/client/internal/game"
	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
)

// GameView binds one game state, seen from one role, to the session.
// All game-scoped requests flow through it so they carry the phase the
// client believed current at send time.
type GameView struct {
	session *Session
	state   *game.State
	bus     *bus
	log     *logging.Logger
}

func newView(s *Session, state *game.State) *GameView {
	return &GameView{
		session: s,
		state:   state,
		bus:     newBus(),
		log: s.log.With(
			logging.String("game_id", state.GameID()),
			logging.String("role", state.Role())),
	}
}

// GameID returns the game this view is bound to.
func (v *GameView) GameID() string { return v.state.GameID() }

// Role returns the power name, "observer" or "omniscient".
func (v *GameView) Role() string { return v.state.Role() }

// State exposes the live game state.
func (v *GameView) State() *game.State { return v.state }

// Subscribe registers a handler for one notification name and returns
// the handle used to unsubscribe.
func (v *GameView) Subscribe(name string, fn Handler) uuid.UUID {
	return v.bus.subscribe(name, fn)
}

// Unsubscribe removes a previously registered handler.
func (v *GameView) Unsubscribe(id uuid.UUID) bool {
	return v.bus.unsubscribe(id)
}

// GetAllPossibleOrders fetches the legal orders for the current phase
// and folds them into a queryable tree.
func (v *GameView) GetAllPossibleOrders(ctx context.Context) (*game.OrderTree, error) {
	result, err := v.send(ctx, protocol.GetPossibleOrders, nil)
	if err != nil {
		return nil, err
	}
	possible, err := resultAs[PossibleOrders](result, protocol.GetPossibleOrders)
	if err != nil {
		return nil, err
	}
	var flat []string
	for _, orders := range possible.Orders {
		flat = append(flat, orders...)
	}
	return game.BuildOrderTree(flat)
}

// SetOrders submits the power's orders. A nil or empty list is a valid
// submission ("no orders"). A non-nil wait also updates the wait flag in
// the same request.
func (v *GameView) SetOrders(ctx context.Context, orders []string, wait *bool) error {
	if orders == nil {
		orders = []string{}
	}
	overrides := map[string]any{"orders": orders}
	if wait != nil {
		overrides["wait"] = *wait
	}
	_, err := v.send(ctx, protocol.SetOrders, overrides)
	return err
}

// ClearOrders withdraws the power's submitted orders.
func (v *GameView) ClearOrders(ctx context.Context) error {
	_, err := v.send(ctx, protocol.ClearOrders, nil)
	return err
}

// ClearUnits removes the power's units from the board (admin).
func (v *GameView) ClearUnits(ctx context.Context) error {
	_, err := v.send(ctx, protocol.ClearUnits, nil)
	return err
}

// ClearCenters releases the power's supply centers (admin).
func (v *GameView) ClearCenters(ctx context.Context) error {
	_, err := v.send(ctx, protocol.ClearCenters, nil)
	return err
}

// Leave abandons this view's seat and drops the view.
func (v *GameView) Leave(ctx context.Context) error {
	if _, err := v.send(ctx, protocol.LeaveGame, nil); err != nil {
		return err
	}
	if removed := v.session.groups.removeView(v.GameID(), v.Role()); removed != nil {
		removed.bus.close()
	}
	return nil
}

// Delete removes the game server-side and drops every local view on it.
func (v *GameView) Delete(ctx context.Context) error {
	if _, err := v.send(ctx, protocol.DeleteGame, nil); err != nil {
		return err
	}
	for _, view := range v.session.groups.removeGame(v.GameID()) {
		view.bus.close()
	}
	return nil
}

// Process forces adjudication of the current phase (admin).
func (v *GameView) Process(ctx context.Context) error {
	_, err := v.send(ctx, protocol.ProcessGame, nil)
	return err
}

// SendMessage sends a press message and returns the server timestamp it
// was filed under.
func (v *GameView) SendMessage(ctx context.Context, recipient, body string) (int64, error) {
	message := map[string]any{
		"sender":    v.Role(),
		"recipient": recipient,
		"phase":     v.state.Phase(),
		"message":   body,
	}
	result, err := v.send(ctx, protocol.SendGameMessage, map[string]any{"message": message})
	if err != nil {
		return 0, err
	}
	return resultAs[int64](result, protocol.SendGameMessage)
}

// SetWaitFlag marks whether adjudication should wait for the deadline
// even though this power's orders are in.
func (v *GameView) SetWaitFlag(ctx context.Context, wait bool) error {
	_, err := v.send(ctx, protocol.SetWaitFlag, map[string]any{"wait": wait})
	return err
}

// Vote casts the power's draw vote ("yes", "no", "neutral").
func (v *GameView) Vote(ctx context.Context, vote string) error {
	_, err := v.send(ctx, protocol.Vote, map[string]any{"vote": vote})
	return err
}

// Save fetches the server's full export of the game.
func (v *GameView) Save(ctx context.Context) (game.Archive, error) {
	result, err := v.send(ctx, protocol.SaveGame, nil)
	if err != nil {
		return game.Archive{}, err
	}
	return resultAs[game.Archive](result, protocol.SaveGame)
}

// SetStatus changes the game status (admin).
func (v *GameView) SetStatus(ctx context.Context, status string) error {
	_, err := v.send(ctx, protocol.SetGameStatus, map[string]any{"status": status})
	return err
}

// SetState rewrites the current board server-side (admin). Nil parts
// are left untouched.
func (v *GameView) SetState(ctx context.Context, board *game.BoardState, orders, results map[string][]string) error {
	overrides := map[string]any{}
	if board != nil {
		overrides["state"] = board
	}
	if orders != nil {
		overrides["orders"] = orders
	}
	if results != nil {
		overrides["results"] = results
	}
	_, err := v.send(ctx, protocol.SetGameState, overrides)
	return err
}

// SetDummyPowers assigns unassigned powers to a bot user (admin).
func (v *GameView) SetDummyPowers(ctx context.Context, username string, powers []string) error {
	overrides := map[string]any{}
	if username != "" {
		overrides["username"] = username
	}
	if len(powers) > 0 {
		overrides["powers"] = powers
	}
	_, err := v.send(ctx, protocol.SetDummyPowers, overrides)
	return err
}

// QuerySchedule asks when the current phase will process.
func (v *GameView) QuerySchedule(ctx context.Context) (ScheduleInfo, error) {
	result, err := v.send(ctx, protocol.QuerySchedule, nil)
	if err != nil {
		return ScheduleInfo{}, err
	}
	return resultAs[ScheduleInfo](result, protocol.QuerySchedule)
}

// PhaseHistory fetches past phases, optionally bounded on either side.
func (v *GameView) PhaseHistory(ctx context.Context, fromPhase, toPhase string) ([]game.PhaseData, error) {
	overrides := map[string]any{}
	if fromPhase != "" {
		overrides["from_phase"] = fromPhase
	}
	if toPhase != "" {
		overrides["to_phase"] = toPhase
	}
	result, err := v.send(ctx, protocol.GetPhaseHistory, overrides)
	if err != nil {
		return nil, err
	}
	return resultAs[[]game.PhaseData](result, protocol.GetPhaseHistory)
}

// Synchronize asks the server to replay everything newer than what this
// view has seen. Catch-up data arrives as notifications before the
// response; the response carries the authoritative current phase.
func (v *GameView) Synchronize(ctx context.Context) (SyncInfo, error) {
	result, err := v.send(ctx, protocol.Synchronize, map[string]any{
		"timestamp": v.state.LatestTimestamp(),
	})
	if err != nil {
		return SyncInfo{}, err
	}
	return resultAs[SyncInfo](result, protocol.Synchronize)
}

// ApplyNotification mutates the game state for one notification, then
// publishes it to subscribers. Mutation always happens before any
// subscriber runs.
func (v *GameView) ApplyNotification(n *protocol.Notification) error {
	if err := v.mutate(n); err != nil {
		return err
	}
	v.bus.publish(n)
	if n.Name == protocol.GameDeleted {
		for _, view := range v.session.groups.removeGame(v.GameID()) {
			if view != v {
				view.bus.close()
			}
		}
		go v.bus.close()
	}
	return nil
}

func (v *GameView) mutate(n *protocol.Notification) error {
	switch n.Name {
	case protocol.ClearedCenters:
		v.state.Power(payloadString(n, "power_name")).Centers = nil
	case protocol.ClearedUnits:
		v.state.Power(payloadString(n, "power_name")).Units = nil
	case protocol.ClearedOrders:
		v.state.Power(payloadString(n, "power_name")).ResetOrders()

	case protocol.GameDeleted:
		v.state.SetStatus("canceled")

	case protocol.GameMessageReceived:
		var m game.Message
		if err := payloadInto(n, "message", &m); err != nil {
			return err
		}
		v.state.AddMessage(m)

	case protocol.GameProcessed:
		var previous, current game.PhaseData
		if err := payloadInto(n, "previous_phase_data", &previous); err != nil {
			return err
		}
		if err := payloadInto(n, "current_phase_data", &current); err != nil {
			return err
		}
		if err := v.state.ExtendPhaseHistory(previous); err != nil {
			return err
		}
		return v.state.SetPhaseData(current)

	case protocol.GamePhaseUpdate:
		var pd game.PhaseData
		if err := payloadInto(n, "phase_data", &pd); err != nil {
			return err
		}
		if payloadString(n, "phase_data_type") == "state_history" {
			return v.state.ExtendPhaseHistory(pd)
		}
		return v.state.SetPhaseData(pd)

	case protocol.GameStatusUpdate:
		v.state.SetStatus(payloadString(n, "status"))

	case protocol.PowerOrdersUpdate:
		power := v.state.Power(payloadString(n, "power_name"))
		raw, ok := n.Payload["orders"]
		if !ok || string(raw) == "null" {
			power.ResetOrders()
			return nil
		}
		var orders []string
		if err := json.Unmarshal(raw, &orders); err != nil {
			return fmt.Errorf("notification %q: %w", n.Name, err)
		}
		power.SetOrders(orders)

	case protocol.PowerOrdersFlag:
		var flag int
		if err := payloadInto(n, "order_is_set", &flag); err != nil {
			return err
		}
		v.state.Power(payloadString(n, "power_name")).SetOrderFlag(game.OrderStatus(flag))

	case protocol.PowerVoteUpdated:
		v.state.Power(payloadString(n, "power_name")).Vote = payloadString(n, "vote")

	case protocol.VoteUpdated:
		var votes map[string]string
		if err := payloadInto(n, "vote", &votes); err != nil {
			return err
		}
		for name, vote := range votes {
			v.state.Power(name).Vote = vote
		}

	case protocol.PowerWaitFlag:
		var wait bool
		if err := payloadInto(n, "wait", &wait); err != nil {
			return err
		}
		v.state.Power(payloadString(n, "power_name")).Wait = wait

	case protocol.PowersControllers:
		var controllers map[string]string
		var timestamps map[string]int64
		if err := payloadInto(n, "powers", &controllers); err != nil {
			return err
		}
		if err := payloadInto(n, "timestamps", &timestamps); err != nil {
			return err
		}
		for name, controller := range controllers {
			v.state.Power(name).SetController(timestamps[name], controller)
		}

	case protocol.OmniscientUpdated, protocol.VoteCountUpdated:
		// informational only, no local state to touch
	}
	return nil
}

// send builds, stamps and dispatches a game-scoped request.
func (v *GameView) send(ctx context.Context, kind string, overrides map[string]any) (any, error) {
	req, err := v.session.registry.Build(kind, overrides)
	if err != nil {
		return nil, err
	}
	req.Token = v.session.token
	req.GameID = v.GameID()
	req.GameRole = v.Role()
	req.Phase = v.state.Phase()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return v.session.sender.RoundTrip(ctx, req)
}

func payloadString(n *protocol.Notification, key string) string {
	raw, ok := n.Payload[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func payloadInto(n *protocol.Notification, key string, dst any) error {
	raw, ok := n.Payload[key]
	if !ok {
		return fmt.Errorf("notification %q is missing field %q", n.Name, key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("notification %q field %q: %w", n.Name, key, err)
	}
	return nil
}
