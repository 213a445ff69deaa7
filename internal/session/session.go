// Package session holds the authenticated conversation with the game
// server: the session itself with its token and session-scoped
// operations, and one view per (game, role) binding a game state to the
// wire.
package session

import (
	"context"
	"fmt"

	"diplomacy/client/internal/game"
	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
)

// Sender performs one request/response round trip. The result is the
// typed value produced by the response handler for the request's kind.
type Sender interface {
	RoundTrip(ctx context.Context, req *protocol.Request) (any, error)
}

// GameSummary is one entry of a game listing.
type GameSummary struct {
	ID             string   `json:"game_id"`
	MapName        string   `json:"map_name"`
	Phase          string   `json:"phase"`
	Status         string   `json:"status"`
	Rules          []string `json:"rules"`
	Timestamp      int64    `json:"timestamp"`
	NControls      int      `json:"n_controls"`
	NPlayers       int      `json:"n_players"`
	ControlledBy   []string `json:"controlled_powers"`
	ObserverLevel  string   `json:"observer_level"`
	DeadlinePassed bool     `json:"deadline_passed"`
}

// ScheduleInfo is the server's processing schedule for one game.
type ScheduleInfo struct {
	CurrentPhase string `json:"current_phase"`
	TimeUnit     string `json:"time_unit"`
	TimeAdded    int64  `json:"time_added"`
	Delay        int64  `json:"delay"`
	Stopped      bool   `json:"stopped"`
}

// SyncInfo is the server's answer to a synchronize request: the
// authoritative phase after any catch-up data has been delivered.
type SyncInfo struct {
	GameID       string `json:"game_id"`
	CurrentPhase string `json:"phase"`
	Timestamp    int64  `json:"timestamp"`
}

// PossibleOrders is the server's orderable-location listing.
type PossibleOrders struct {
	Orders    map[string][]string `json:"possible_orders"`
	Locations []string            `json:"orderable_locations"`
}

// GameSettings parameterizes game creation; zero fields are omitted.
type GameSettings struct {
	GameID               string
	MapName              string
	Rules                []string
	NControls            int
	Deadline             int
	RegistrationPassword string
	PowerName            string
}

// Session is an authenticated channel to the server. It owns the token
// and the set of live game views, at most one per (game, role).
type Session struct {
	token    string
	username string
	registry *protocol.Registry
	sender   Sender
	log      *logging.Logger

	groups syncGroups
}

// New wires a session around an established token.
func New(token, username string, registry *protocol.Registry, sender Sender, log *logging.Logger) *Session {
	if log == nil {
		log = logging.L()
	}
	return &Session{
		token:    token,
		username: username,
		registry: registry,
		sender:   sender,
		log:      log.With(logging.String("component", "session"), logging.String("user", username)),
		groups:   newSyncGroups(),
	}
}

// Token returns the session token.
func (s *Session) Token() string { return s.token }

// Username returns the signed-in user.
func (s *Session) Username() string { return s.username }

// View resolves a live view by game id and role.
func (s *Session) View(gameID, role string) (*GameView, bool) {
	return s.groups.view(gameID, role)
}

// Views lists the live views of one game.
func (s *Session) Views(gameID string) []*GameView {
	return s.groups.views(gameID)
}

// AllViews lists every live view across games.
func (s *Session) AllViews() []*GameView {
	return s.groups.all()
}

// CreateGame asks the server for a new game and opens a view on it.
func (s *Session) CreateGame(ctx context.Context, settings GameSettings) (*GameView, error) {
	overrides := map[string]any{}
	if settings.GameID != "" {
		overrides["game_id"] = settings.GameID
	}
	if settings.MapName != "" {
		overrides["map_name"] = settings.MapName
	}
	if len(settings.Rules) > 0 {
		overrides["rules"] = settings.Rules
	}
	if settings.NControls > 0 {
		overrides["n_controls"] = settings.NControls
	}
	if settings.Deadline > 0 {
		overrides["deadline"] = settings.Deadline
	}
	if settings.RegistrationPassword != "" {
		overrides["registration_password"] = settings.RegistrationPassword
	}
	if settings.PowerName != "" {
		overrides["power_name"] = settings.PowerName
	}
	result, err := s.send(ctx, protocol.CreateGame, overrides)
	if err != nil {
		return nil, err
	}
	return s.openView(result)
}

// JoinGame joins an existing game, optionally as a named power, and
// opens a view on the role the server granted.
func (s *Session) JoinGame(ctx context.Context, gameID, powerName, registrationPassword string) (*GameView, error) {
	overrides := map[string]any{"game_id": gameID}
	if powerName != "" {
		overrides["power_name"] = powerName
	}
	if registrationPassword != "" {
		overrides["registration_password"] = registrationPassword
	}
	result, err := s.send(ctx, protocol.JoinGame, overrides)
	if err != nil {
		return nil, err
	}
	return s.openView(result)
}

// GameFilter narrows a ListGames query; zero fields are omitted.
type GameFilter struct {
	GameID           string
	Status           string
	MapName          string
	IncludeProtected bool
	ForOmniscience   bool
}

// ListGames queries the server's game directory.
func (s *Session) ListGames(ctx context.Context, filter GameFilter) ([]GameSummary, error) {
	overrides := map[string]any{}
	if filter.GameID != "" {
		overrides["game_id"] = filter.GameID
	}
	if filter.Status != "" {
		overrides["status"] = filter.Status
	}
	if filter.MapName != "" {
		overrides["map_name"] = filter.MapName
	}
	if filter.IncludeProtected {
		overrides["include_protected"] = true
	}
	if filter.ForOmniscience {
		overrides["for_omniscience"] = true
	}
	result, err := s.send(ctx, protocol.ListGames, overrides)
	if err != nil {
		return nil, err
	}
	return resultAs[[]GameSummary](result, protocol.ListGames)
}

// GetAvailableMaps fetches the map catalog: map name to power names.
func (s *Session) GetAvailableMaps(ctx context.Context) (map[string][]string, error) {
	result, err := s.send(ctx, protocol.GetAvailableMaps, nil)
	if err != nil {
		return nil, err
	}
	return resultAs[map[string][]string](result, protocol.GetAvailableMaps)
}

// GetGamesInfo fetches summaries for a specific set of game ids.
func (s *Session) GetGamesInfo(ctx context.Context, gameIDs []string) ([]GameSummary, error) {
	result, err := s.send(ctx, protocol.GetGamesInfo, map[string]any{"games": gameIDs})
	if err != nil {
		return nil, err
	}
	return resultAs[[]GameSummary](result, protocol.GetGamesInfo)
}

// Logout ends the session server-side and closes every live view.
func (s *Session) Logout(ctx context.Context) error {
	if _, err := s.send(ctx, protocol.Logout, nil); err != nil {
		return err
	}
	s.Close()
	return nil
}

// DeleteAccount removes a user account. Without a username the server
// deletes the signed-in account; naming another user needs admin grade.
func (s *Session) DeleteAccount(ctx context.Context, username string) error {
	overrides := map[string]any{}
	if username != "" {
		overrides["username"] = username
	}
	if _, err := s.send(ctx, protocol.DeleteAccount, overrides); err != nil {
		return err
	}
	if username == "" || username == s.username {
		s.Close()
	}
	return nil
}

// SetGrade promotes or demotes a user ("admin"/"moderator"/"omniscient",
// update "promote" or "demote").
func (s *Session) SetGrade(ctx context.Context, grade, update, username string) error {
	_, err := s.send(ctx, protocol.SetGrade, map[string]any{
		"grade":        grade,
		"grade_update": update,
		"username":     username,
	})
	return err
}

// ApplyNotification handles a session-scoped notification.
func (s *Session) ApplyNotification(n *protocol.Notification) error {
	switch n.Name {
	case protocol.AccountDeleted:
		s.log.Info("account deleted, closing session")
		s.Close()
		return nil
	default:
		return fmt.Errorf("notification %q is not session scoped", n.Name)
	}
}

// Close tears down every live view. The session object stays usable for
// nothing afterwards; callers drop it.
func (s *Session) Close() {
	for _, view := range s.groups.drain() {
		view.bus.close()
	}
}

// openView folds a snapshot result into a state and registers a view.
func (s *Session) openView(result any) (*GameView, error) {
	snap, err := resultAs[game.Snapshot](result, "game snapshot")
	if err != nil {
		return nil, err
	}
	state, err := game.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	view := newView(s, state)
	if err := s.groups.add(view); err != nil {
		view.bus.close()
		return nil, err
	}
	s.log.Info("view opened",
		logging.String("game_id", state.GameID()),
		logging.String("role", state.Role()))
	return view, nil
}

// send builds, stamps and dispatches a session-scoped request.
func (s *Session) send(ctx context.Context, kind string, overrides map[string]any) (any, error) {
	req, err := s.registry.Build(kind, overrides)
	if err != nil {
		return nil, err
	}
	req.Token = s.token
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.sender.RoundTrip(ctx, req)
}

func resultAs[T any](result any, op string) (T, error) {
	value, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected result type %T", op, result)
	}
	return value, nil
}
