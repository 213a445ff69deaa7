package connection

import (
	"encoding/json"
	"fmt"

	"diplomacy/client/internal/game"
	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
	"diplomacy/client/internal/session"
)

// responseHandler interprets the response to one request kind. It may
// mutate game state before the caller's future resolves, so a resolved
// future always observes the post-response state.
type responseHandler func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error)

func buildHandlers() map[string]responseHandler {
	return map[string]responseHandler{
		protocol.SignIn: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var token string
			if err := decodeData(resp, &token); err != nil {
				return nil, err
			}
			return token, nil
		},

		protocol.CreateGame: snapshotHandler,
		protocol.JoinGame:   snapshotHandler,

		protocol.ListGames:    summariesHandler,
		protocol.GetGamesInfo: summariesHandler,

		protocol.GetAvailableMaps: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var maps map[string][]string
			if err := decodeData(resp, &maps); err != nil {
				return nil, err
			}
			return maps, nil
		},

		protocol.Logout:         okHandler,
		protocol.DeleteAccount:  okHandler,
		protocol.SetGrade:       okHandler,
		protocol.LeaveGame:      okHandler,
		protocol.DeleteGame:     okHandler,
		protocol.ProcessGame:    okHandler,
		protocol.SetGameStatus:  okHandler,
		protocol.SetGameState:   okHandler,
		protocol.SetDummyPowers: okHandler,

		protocol.GetPossibleOrders: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var possible session.PossibleOrders
			if err := decodeData(resp, &possible); err != nil {
				return nil, err
			}
			return possible, nil
		},

		protocol.SetOrders: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			if err := expectOK(resp, req.Name); err != nil {
				return nil, err
			}
			if power := c.requestPower(req); power != nil {
				power.SetOrders(fieldStrings(req, "orders"))
				if wait, ok := req.Fields["wait"].(bool); ok {
					power.Wait = wait
				}
			}
			return nil, nil
		},

		protocol.ClearOrders: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			if err := expectOK(resp, req.Name); err != nil {
				return nil, err
			}
			c.requestPower(req).ResetOrders()
			return nil, nil
		},

		protocol.ClearUnits: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			if err := expectOK(resp, req.Name); err != nil {
				return nil, err
			}
			if power := c.requestPower(req); power != nil {
				power.Units = nil
			}
			return nil, nil
		},

		protocol.ClearCenters: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			if err := expectOK(resp, req.Name); err != nil {
				return nil, err
			}
			if power := c.requestPower(req); power != nil {
				power.Centers = nil
			}
			return nil, nil
		},

		protocol.SetWaitFlag: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			if err := expectOK(resp, req.Name); err != nil {
				return nil, err
			}
			if power := c.requestPower(req); power != nil {
				if wait, ok := req.Fields["wait"].(bool); ok {
					power.Wait = wait
				}
			}
			return nil, nil
		},

		protocol.Vote: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			if err := expectOK(resp, req.Name); err != nil {
				return nil, err
			}
			if power := c.requestPower(req); power != nil {
				if vote, ok := req.Fields["vote"].(string); ok {
					power.Vote = vote
				}
			}
			return nil, nil
		},

		protocol.SendGameMessage: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var timestamp int64
			if err := decodeData(resp, &timestamp); err != nil {
				return nil, err
			}
			//1.- The sender's own copy enters the live buffer under the
			// server's timestamp, same as it will appear to recipients.
			if view := c.requestView(req); view != nil {
				if fields, ok := req.Fields["message"].(map[string]any); ok {
					m := game.Message{TimeSent: timestamp}
					m.Sender, _ = fields["sender"].(string)
					m.Recipient, _ = fields["recipient"].(string)
					m.Phase, _ = fields["phase"].(string)
					m.Message, _ = fields["message"].(string)
					view.State().AddMessage(m)
				}
			}
			return timestamp, nil
		},

		protocol.SaveGame: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var archive game.Archive
			if err := decodeData(resp, &archive); err != nil {
				return nil, err
			}
			return archive, nil
		},

		protocol.QuerySchedule: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var schedule session.ScheduleInfo
			if err := decodeData(resp, &schedule); err != nil {
				return nil, err
			}
			return schedule, nil
		},

		protocol.GetPhaseHistory: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var phases []game.PhaseData
			if err := decodeData(resp, &phases); err != nil {
				return nil, err
			}
			return phases, nil
		},

		protocol.Synchronize: func(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
			var info session.SyncInfo
			if err := decodeData(resp, &info); err != nil {
				return nil, err
			}
			if info.GameID == "" {
				info.GameID = req.GameID
			}
			return info, nil
		},
	}
}

func snapshotHandler(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
	var snap game.Snapshot
	if err := decodeData(resp, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func summariesHandler(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
	var summaries []session.GameSummary
	if err := decodeData(resp, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func okHandler(c *Connection, req *protocol.Request, resp *protocol.Response) (any, error) {
	return nil, expectOK(resp, req.Name)
}

func expectOK(resp *protocol.Response, kind string) error {
	if resp.Name != protocol.ResponseOK {
		return fmt.Errorf("request %q: unexpected response %q", kind, resp.Name)
	}
	return nil
}

func decodeData(resp *protocol.Response, dst any) error {
	data, ok := resp.DefaultData()
	if !ok || data == nil {
		return fmt.Errorf("response %q carried no data", resp.Name)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("response %q: %w", resp.Name, err)
	}
	return nil
}

// requestView resolves the view a game-scoped request was sent from. A
// nil return means the view was dropped while the request was in flight;
// the response still resolves, there is just no state left to update.
func (c *Connection) requestView(req *protocol.Request) *session.GameView {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil || req.GameID == "" {
		return nil
	}
	view, ok := sess.View(req.GameID, req.GameRole)
	if !ok {
		c.log.Debug("response for dropped view",
			logging.String("kind", req.Name),
			logging.String("game_id", req.GameID),
			logging.String("game_role", req.GameRole))
		return nil
	}
	return view
}

// requestPower resolves the power a game-scoped request acted for: an
// explicit power_name field, or the view's own role.
func (c *Connection) requestPower(req *protocol.Request) *game.Power {
	view := c.requestView(req)
	if view == nil {
		return nil
	}
	name, _ := req.Fields["power_name"].(string)
	if name == "" {
		name = req.GameRole
	}
	if name == game.RoleObserver || name == game.RoleOmniscient {
		return nil
	}
	return view.State().Power(name)
}

func fieldStrings(req *protocol.Request, key string) []string {
	switch value := req.Fields[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
