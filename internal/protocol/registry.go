// Package protocol defines the message envelope catalog: the fixed
// registries of request, response and notification kinds exchanged with
// the game server, and the builders and parsers around them.
package protocol

import (
	"fmt"
	"sync/atomic"
)

// Scope states which authentication context a message kind requires.
type Scope int

const (
	// ScopeNone requires no established session.
	ScopeNone Scope = iota
	// ScopeSession requires a session token.
	ScopeSession
	// ScopeGame requires a session token plus game id, role and phase.
	ScopeGame
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeSession:
		return "session"
	case ScopeGame:
		return "game"
	default:
		return "unknown"
	}
}

// Request kind names.
const (
	SignIn            = "sign_in"
	CreateGame        = "create_game"
	JoinGame          = "join_game"
	ListGames         = "list_games"
	GetAvailableMaps  = "get_available_maps"
	GetGamesInfo      = "get_games_info"
	Logout            = "logout"
	DeleteAccount     = "delete_account"
	SetGrade          = "set_grade"
	GetPossibleOrders = "get_all_possible_orders"
	SetOrders         = "set_orders"
	ClearOrders       = "clear_orders"
	ClearUnits        = "clear_units"
	ClearCenters      = "clear_centers"
	LeaveGame         = "leave_game"
	DeleteGame        = "delete_game"
	ProcessGame       = "process_game"
	SendGameMessage   = "send_game_message"
	SetWaitFlag       = "set_wait_flag"
	Vote              = "vote"
	SaveGame          = "save_game"
	SetGameStatus     = "set_game_status"
	SetGameState      = "set_game_state"
	SetDummyPowers    = "set_dummy_powers"
	QuerySchedule     = "query_schedule"
	GetPhaseHistory   = "get_phase_history"
	Synchronize       = "synchronize"
)

// Response names.
const (
	ResponseOK             = "ok"
	ResponseError          = "error"
	ResponseData           = "data"
	ResponseToken          = "data_token"
	ResponseGame           = "data_game"
	ResponseGames          = "data_games"
	ResponseMaps           = "data_maps"
	ResponseGamesInfo      = "data_games_info"
	ResponsePossibleOrders = "data_possible_orders"
	ResponseGamePhases     = "data_game_phases"
	ResponseTimestamp      = "data_time_stamp"
	ResponseSchedule       = "data_schedule"
	ResponseSavedGame      = "data_saved_game"
	ResponseSync           = "data_sync"
)

// Notification names.
const (
	AccountDeleted      = "account_deleted"
	ClearedCenters      = "cleared_centers"
	ClearedOrders       = "cleared_orders"
	ClearedUnits        = "cleared_units"
	GameDeleted         = "game_deleted"
	GameMessageReceived = "game_message_received"
	GameProcessed       = "game_processed"
	GamePhaseUpdate     = "game_phase_update"
	GameStatusUpdate    = "game_status_update"
	OmniscientUpdated   = "omniscient_updated"
	PowerOrdersUpdate   = "power_orders_update"
	PowerOrdersFlag     = "power_orders_flag"
	PowerVoteUpdated    = "power_vote_updated"
	PowerWaitFlag       = "power_wait_flag"
	PowersControllers   = "powers_controllers"
	VoteCountUpdated    = "vote_count_updated"
	VoteUpdated         = "vote_updated"
)

// RequestSpec describes one request kind: its scope, whether a queued
// instance must be revalidated against the authoritative phase after a
// reconnection, and the kind-specific field vocabulary.
type RequestSpec struct {
	Name           string
	Scope          Scope
	PhaseDependent bool
	Required       []string
	Optional       []string
}

// Registry is the constructed-once catalog of message kinds. It is
// injected into the connection and session layers rather than accessed
// as ambient module state, so tests may substitute a reduced catalog.
type Registry struct {
	requests      map[string]RequestSpec
	responses     map[string]struct{}
	notifications map[string]Scope
	nextID        atomic.Uint64
}

// NewRegistry builds the full production catalog.
//
// Phase dependence is a deliberate per-kind table: delete_game,
// get_phase_history and synchronize are exempt because they stay valid
// when replayed against a later phase; every other game-scoped kind is
// revalidated during reconnection.
func NewRegistry() *Registry {
	r := &Registry{
		requests:      make(map[string]RequestSpec),
		responses:     make(map[string]struct{}),
		notifications: make(map[string]Scope),
	}

	for _, spec := range []RequestSpec{
		{Name: SignIn, Scope: ScopeNone, Required: []string{"username", "password"}},

		{Name: CreateGame, Scope: ScopeSession, Optional: []string{"game_id", "map_name", "rules", "n_controls", "deadline", "registration_password", "power_name", "state"}},
		{Name: JoinGame, Scope: ScopeSession, Required: []string{"game_id"}, Optional: []string{"power_name", "registration_password"}},
		{Name: ListGames, Scope: ScopeSession, Optional: []string{"game_id", "status", "map_name", "include_protected", "for_omniscience"}},
		{Name: GetAvailableMaps, Scope: ScopeSession},
		{Name: GetGamesInfo, Scope: ScopeSession, Required: []string{"games"}},
		{Name: Logout, Scope: ScopeSession},
		{Name: DeleteAccount, Scope: ScopeSession, Optional: []string{"username"}},
		{Name: SetGrade, Scope: ScopeSession, Required: []string{"grade", "grade_update", "username"}},

		{Name: GetPossibleOrders, Scope: ScopeGame, PhaseDependent: true},
		{Name: SetOrders, Scope: ScopeGame, PhaseDependent: true, Required: []string{"orders"}, Optional: []string{"power_name", "wait"}},
		{Name: ClearOrders, Scope: ScopeGame, PhaseDependent: true, Optional: []string{"power_name"}},
		{Name: ClearUnits, Scope: ScopeGame, PhaseDependent: true, Optional: []string{"power_name"}},
		{Name: ClearCenters, Scope: ScopeGame, PhaseDependent: true, Optional: []string{"power_name"}},
		{Name: LeaveGame, Scope: ScopeGame, PhaseDependent: true},
		{Name: DeleteGame, Scope: ScopeGame, PhaseDependent: false},
		{Name: ProcessGame, Scope: ScopeGame, PhaseDependent: true},
		{Name: SendGameMessage, Scope: ScopeGame, PhaseDependent: true, Required: []string{"message"}},
		{Name: SetWaitFlag, Scope: ScopeGame, PhaseDependent: true, Required: []string{"wait"}, Optional: []string{"power_name"}},
		{Name: Vote, Scope: ScopeGame, PhaseDependent: true, Required: []string{"vote"}},
		{Name: SaveGame, Scope: ScopeGame, PhaseDependent: true},
		{Name: SetGameStatus, Scope: ScopeGame, PhaseDependent: true, Required: []string{"status"}},
		{Name: SetGameState, Scope: ScopeGame, PhaseDependent: true, Optional: []string{"state", "orders", "results", "messages"}},
		{Name: SetDummyPowers, Scope: ScopeGame, PhaseDependent: true, Optional: []string{"username", "powers"}},
		{Name: QuerySchedule, Scope: ScopeGame, PhaseDependent: true},
		{Name: GetPhaseHistory, Scope: ScopeGame, PhaseDependent: false, Optional: []string{"from_phase", "to_phase"}},
		{Name: Synchronize, Scope: ScopeGame, PhaseDependent: false, Required: []string{"timestamp"}},
	} {
		r.requests[spec.Name] = spec
	}

	for _, name := range []string{
		ResponseOK, ResponseError, ResponseData, ResponseToken,
		ResponseGame, ResponseGames, ResponseMaps, ResponseGamesInfo,
		ResponsePossibleOrders, ResponseGamePhases, ResponseTimestamp,
		ResponseSchedule, ResponseSavedGame, ResponseSync,
	} {
		r.responses[name] = struct{}{}
	}

	r.notifications[AccountDeleted] = ScopeSession
	for _, name := range []string{
		ClearedCenters, ClearedOrders, ClearedUnits, GameDeleted,
		GameMessageReceived, GameProcessed, GamePhaseUpdate,
		GameStatusUpdate, OmniscientUpdated, PowerOrdersUpdate,
		PowerOrdersFlag, PowerVoteUpdated, PowerWaitFlag,
		PowersControllers, VoteCountUpdated, VoteUpdated,
	} {
		r.notifications[name] = ScopeGame
	}

	return r
}

// RequestSpec looks up the spec for a request kind.
func (r *Registry) RequestSpec(kind string) (RequestSpec, bool) {
	spec, ok := r.requests[kind]
	return spec, ok
}

// ResponseKnown reports whether the response name is registered.
func (r *Registry) ResponseKnown(name string) bool {
	_, ok := r.responses[name]
	return ok
}

// NotificationScope returns the static scope of a notification name.
func (r *Registry) NotificationScope(name string) (Scope, bool) {
	scope, ok := r.notifications[name]
	return scope, ok
}

// NextID hands out a request id unique for the registry lifetime.
func (r *Registry) NextID() uint64 {
	return r.nextID.Add(1)
}

// RequestKinds lists the registered request kinds, mainly for tooling.
func (r *Registry) RequestKinds() []string {
	kinds := make([]string, 0, len(r.requests))
	for kind := range r.requests {
		kinds = append(kinds, kind)
	}
	return kinds
}

func unknownKind(kind string) error {
	return fmt.Errorf("unregistered message kind %q", kind)
}
