package game

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"diplomacy/client/internal/ordmap"
	"diplomacy/client/internal/phase"
)

// State is the canonical, mutable snapshot of one game as seen by one
// role. Histories are append-only and phase-ordered; the live message
// buffer holds messages for the current phase only.
type State struct {
	mu sync.RWMutex

	gameID  string
	role    string
	mapName string
	rules   []string

	phaseCode string
	status    string
	created   int64
	lastEvent int64
	now       func() time.Time

	powers   map[string]*Power
	messages *ordmap.Map[int64, Message]

	stateHistory   *ordmap.Map[string, *BoardState]
	orderHistory   *ordmap.Map[string, map[string][]string]
	resultHistory  *ordmap.Map[string, map[string][]string]
	messageHistory *ordmap.Map[string, *ordmap.Map[int64, Message]]
}

// StateOption configures optional State behaviour at construction time.
type StateOption func(*State)

// WithClock overrides the time source; primarily used in tests.
func WithClock(clock func() time.Time) StateOption {
	return func(s *State) {
		if clock != nil {
			s.now = clock
		}
	}
}

func newState(gameID, role string, opts ...StateOption) *State {
	s := &State{
		gameID:         gameID,
		role:           role,
		phaseCode:      phase.Forming,
		now:            time.Now,
		powers:         make(map[string]*Power),
		messages:       ordmap.New[int64, Message](ordmap.Int64Rank),
		stateHistory:   ordmap.New[string, *BoardState](phase.MustRank),
		orderHistory:   ordmap.New[string, map[string][]string](phase.MustRank),
		resultHistory:  ordmap.New[string, map[string][]string](phase.MustRank),
		messageHistory: ordmap.New[string, *ordmap.Map[int64, Message]](phase.MustRank),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.created = s.now().UnixMicro()
	s.lastEvent = s.created
	return s
}

// FromSnapshot builds a State from the full server payload delivered by
// join/create responses.
func FromSnapshot(snap Snapshot, opts ...StateOption) (*State, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("snapshot is missing a game id")
	}
	if snap.Role == "" {
		return nil, fmt.Errorf("snapshot is missing a role")
	}
	s := newState(snap.ID, snap.Role, opts...)
	s.mapName = snap.MapName
	s.rules = append([]string(nil), snap.Rules...)
	s.status = snap.Status
	if snap.Timestamp > 0 {
		s.created = snap.Timestamp
		s.lastEvent = snap.Timestamp
	}

	current := snap.Phase
	if current == "" {
		current = phase.Forming
	}
	if _, err := phase.Rank(current); err != nil {
		return nil, err
	}
	board := snap.State
	if board == nil {
		board = &BoardState{Name: current}
	}
	if err := s.SetPhaseData(PhaseData{
		Name:     current,
		State:    board,
		Orders:   snap.Orders,
		Messages: snap.Messages,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// FromArchive rebuilds a State from a locally stored archive: every phase
// but the last is folded into the histories, and the last becomes the
// live phase.
func FromArchive(archive Archive, role string, opts ...StateOption) (*State, error) {
	if len(archive.Phases) == 0 {
		return nil, fmt.Errorf("archive %q has no phases", archive.ID)
	}
	s := newState(archive.ID, role, opts...)
	s.mapName = archive.Map
	s.rules = append([]string(nil), archive.Rules...)

	for _, pd := range archive.Phases[:len(archive.Phases)-1] {
		if err := s.ExtendPhaseHistory(pd); err != nil {
			return nil, err
		}
	}
	if err := s.SetPhaseData(archive.Phases[len(archive.Phases)-1]); err != nil {
		return nil, err
	}
	return s, nil
}

// GameID returns the game identifier.
func (s *State) GameID() string { return s.gameID }

// Role returns the viewpoint this state was built for.
func (s *State) Role() string { return s.role }

// MapName returns the map the game is played on.
func (s *State) MapName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapName
}

// Rules returns the game rule names.
func (s *State) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rules...)
}

// Phase returns the current short phase code.
func (s *State) Phase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phaseCode
}

// Status returns the current game status.
func (s *State) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus replaces the game status.
func (s *State) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.touchLocked(0)
}

// Power returns the named power, creating it on first reference.
func (s *State) Power(name string) *Power {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powerLocked(name)
}

// PowerNames lists the known powers.
func (s *State) PowerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.powers))
	for name := range s.powers {
		names = append(names, name)
	}
	return names
}

// AddMessage appends a press message to the live buffer.
func (s *State) AddMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages.Put(m.TimeSent, m)
	s.touchLocked(m.TimeSent)
}

// Messages returns the live message buffer in send-time order.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages.Values()
}

// ExtendPhaseHistory appends one resolved phase to all four histories in
// lockstep. A phase already present in any history is rejected: the
// histories grow monotonically and are never reordered or overwritten.
func (s *State) ExtendPhaseHistory(pd PhaseData) error {
	if _, err := phase.Rank(pd.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateHistory.Contains(pd.Name) || s.orderHistory.Contains(pd.Name) ||
		s.resultHistory.Contains(pd.Name) || s.messageHistory.Contains(pd.Name) {
		return fmt.Errorf("phase %q already present in history", pd.Name)
	}

	//1.- Collect the phase's messages, folding the live buffer when the
	// phase being archived is the one currently live.
	archived := ordmap.New[int64, Message](ordmap.Int64Rank)
	for _, m := range pd.Messages {
		archived.Put(m.TimeSent, m)
	}
	if pd.Name == s.phaseCode {
		s.messages.Range(func(ts int64, m Message) bool {
			archived.Put(ts, m)
			return true
		})
		s.messages = ordmap.New[int64, Message](ordmap.Int64Rank)
	}

	//2.- Insert into all four histories under the same key.
	s.stateHistory.Put(pd.Name, pd.State)
	s.orderHistory.Put(pd.Name, cloneStringListMap(pd.Orders))
	s.resultHistory.Put(pd.Name, cloneStringListMap(pd.Results))
	s.messageHistory.Put(pd.Name, archived)

	s.touchLocked(pd.Timestamp)
	return nil
}

// SetPhaseData makes the given phase the live one: board snapshot and
// per-power state are replaced, in-progress orders reset to the server
// declared orders, and the live message buffer swapped out.
func (s *State) SetPhaseData(pd PhaseData) error {
	if _, err := phase.Rank(pd.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phaseCode = pd.Name
	board := pd.State
	if board == nil {
		board = &BoardState{Name: pd.Name}
	}

	//1.- Reset every known power; the new board declares the survivors.
	for _, p := range s.powers {
		p.Units = nil
		p.Retreats = make(map[string][]string)
		p.Centers = nil
		p.Influence = nil
		p.CivilDisorder = 0
		p.ResetOrders()
	}
	for name, units := range board.Units {
		s.powerLocked(name).Units = append([]string(nil), units...)
	}
	for name, retreats := range board.Retreats {
		p := s.powerLocked(name)
		if p.Retreats == nil {
			p.Retreats = make(map[string][]string)
		}
		for unit, dests := range splitRetreats(retreats) {
			p.Retreats[unit] = dests
		}
	}
	for name, centers := range board.Centers {
		s.powerLocked(name).Centers = append([]string(nil), centers...)
	}
	for name, homes := range board.Homes {
		s.powerLocked(name).Homes = append([]string(nil), homes...)
	}
	for name, influence := range board.Influence {
		s.powerLocked(name).Influence = append([]string(nil), influence...)
	}
	for name, disorder := range board.CivilDisorder {
		s.powerLocked(name).CivilDisorder = disorder
	}

	//2.- Apply the server-declared orders for the new phase.
	for name, orders := range pd.Orders {
		s.powerLocked(name).SetOrders(orders)
	}

	//3.- Replace the live message buffer wholesale.
	s.messages = ordmap.New[int64, Message](ordmap.Int64Rank)
	for _, m := range pd.Messages {
		s.messages.Put(m.TimeSent, m)
	}

	s.touchLocked(pd.Timestamp)
	return nil
}

// CloneAt produces an independent state truncated to and including the
// given past phase, for scrubback views. The live state is not mutated.
func (s *State) CloneAt(pastPhase string) (*State, error) {
	cutoff, err := phase.Rank(pastPhase)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.stateHistory.Contains(pastPhase) && pastPhase != s.phaseCode {
		return nil, fmt.Errorf("phase %q is not in this game's history", pastPhase)
	}

	clone := &State{
		gameID:         s.gameID,
		role:           s.role,
		mapName:        s.mapName,
		rules:          append([]string(nil), s.rules...),
		phaseCode:      pastPhase,
		status:         s.status,
		created:        s.created,
		lastEvent:      s.lastEvent,
		now:            s.now,
		powers:         make(map[string]*Power, len(s.powers)),
		messages:       ordmap.New[int64, Message](ordmap.Int64Rank),
		stateHistory:   ordmap.New[string, *BoardState](phase.MustRank),
		orderHistory:   ordmap.New[string, map[string][]string](phase.MustRank),
		resultHistory:  ordmap.New[string, map[string][]string](phase.MustRank),
		messageHistory: ordmap.New[string, *ordmap.Map[int64, Message]](phase.MustRank),
	}
	for name, p := range s.powers {
		clone.powers[name] = p.Clone()
	}
	if pastPhase == s.phaseCode {
		s.messages.Range(func(ts int64, m Message) bool {
			clone.messages.Put(ts, m)
			return true
		})
	}

	//1.- Copy history entries up to and including the cutoff phase.
	s.stateHistory.Range(func(code string, board *BoardState) bool {
		if phase.MustRank(code) > cutoff {
			return false
		}
		clone.stateHistory.Put(code, board.Clone())
		return true
	})
	s.orderHistory.Range(func(code string, orders map[string][]string) bool {
		if phase.MustRank(code) > cutoff {
			return false
		}
		clone.orderHistory.Put(code, cloneStringListMap(orders))
		return true
	})
	s.resultHistory.Range(func(code string, results map[string][]string) bool {
		if phase.MustRank(code) > cutoff {
			return false
		}
		clone.resultHistory.Put(code, cloneStringListMap(results))
		return true
	})
	s.messageHistory.Range(func(code string, msgs *ordmap.Map[int64, Message]) bool {
		if phase.MustRank(code) > cutoff {
			return false
		}
		clone.messageHistory.Put(code, msgs.Clone(nil))
		return true
	})
	return clone, nil
}

// LatestTimestamp reports the newest activity the client knows about:
// the creation time, the last history extension or the last live
// message, whichever is greatest. It seeds the synchronize request.
func (s *State) LatestTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.created
	if s.lastEvent > latest {
		latest = s.lastEvent
	}
	if ts, ok := s.messages.Last(); ok && ts > latest {
		latest = ts
	}
	return latest
}

// HistoryPhases lists the archived phase codes in order.
func (s *State) HistoryPhases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateHistory.Keys()
}

// HistoryLen reports the number of archived phases.
func (s *State) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateHistory.Len()
}

// HistoryLens reports the entry count of each of the four histories, in
// (state, orders, results, messages) order.
func (s *State) HistoryLens() (int, int, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateHistory.Len(), s.orderHistory.Len(), s.resultHistory.Len(), s.messageHistory.Len()
}

// StateAt returns the archived board snapshot for a phase.
func (s *State) StateAt(code string) (*BoardState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateHistory.Get(code)
}

// OrdersAt returns the archived per-power orders for a phase.
func (s *State) OrdersAt(code string) (map[string][]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderHistory.Get(code)
}

// ResultsAt returns the archived per-unit outcome tags for a phase.
func (s *State) ResultsAt(code string) (map[string][]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resultHistory.Get(code)
}

// MessagesAt returns the archived messages for a phase in time order.
func (s *State) MessagesAt(code string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	archived, ok := s.messageHistory.Get(code)
	if !ok {
		return nil, false
	}
	return archived.Values(), true
}

// ToArchive serializes the full game, histories plus live phase, into
// the archive shape consumed by FromArchive.
func (s *State) ToArchive() Archive {
	s.mu.RLock()
	defer s.mu.RUnlock()

	archive := Archive{
		ID:    s.gameID,
		Map:   s.mapName,
		Rules: append([]string(nil), s.rules...),
	}
	s.stateHistory.Range(func(code string, board *BoardState) bool {
		orders, _ := s.orderHistory.Get(code)
		results, _ := s.resultHistory.Get(code)
		var msgs []Message
		if archived, ok := s.messageHistory.Get(code); ok {
			msgs = archived.Values()
		}
		archive.Phases = append(archive.Phases, PhaseData{
			Name:     code,
			State:    board.Clone(),
			Orders:   cloneStringListMap(orders),
			Results:  cloneStringListMap(results),
			Messages: msgs,
		})
		return true
	})

	//1.- The live phase is always the archive's final entry.
	live := PhaseData{
		Name:     s.phaseCode,
		State:    s.boardLocked(),
		Messages: s.messages.Values(),
		Orders:   make(map[string][]string),
	}
	for name, p := range s.powers {
		if p.OrderStatus() != OrdersUnset {
			live.Orders[name] = p.Orders()
		}
	}
	archive.Phases = append(archive.Phases, live)
	return archive
}

func (s *State) boardLocked() *BoardState {
	board := &BoardState{
		Name:          s.phaseCode,
		Units:         make(map[string][]string),
		Retreats:      make(map[string][]string),
		Centers:       make(map[string][]string),
		Homes:         make(map[string][]string),
		Influence:     make(map[string][]string),
		CivilDisorder: make(map[string]int),
	}
	for name, p := range s.powers {
		board.Units[name] = append([]string(nil), p.Units...)
		board.Centers[name] = append([]string(nil), p.Centers...)
		board.Homes[name] = append([]string(nil), p.Homes...)
		board.Influence[name] = append([]string(nil), p.Influence...)
		if p.CivilDisorder != 0 {
			board.CivilDisorder[name] = p.CivilDisorder
		}
	}
	return board
}

func (s *State) powerLocked(name string) *Power {
	p, ok := s.powers[name]
	if !ok {
		p = NewPower(name)
		s.powers[name] = p
	}
	return p
}

func (s *State) touchLocked(timestamp int64) {
	if timestamp <= 0 {
		timestamp = s.now().UnixMicro()
	}
	if timestamp > s.lastEvent {
		s.lastEvent = timestamp
	}
}

// splitRetreats decodes the wire retreat list. Each entry names a
// dislodged unit, optionally followed by "-" and its legal retreat
// destinations: "A PAR - BUR GAS". An entry with no separator is a
// unit with nowhere to go.
func splitRetreats(raw []string) map[string][]string {
	out := make(map[string][]string, len(raw))
	for _, entry := range raw {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		sep := -1
		for i, f := range fields {
			if f == "-" {
				sep = i
				break
			}
		}
		if sep < 0 {
			out[strings.Join(fields, " ")] = nil
			continue
		}
		out[strings.Join(fields[:sep], " ")] = append([]string(nil), fields[sep+1:]...)
	}
	return out
}
