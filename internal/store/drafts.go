package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// draftFile is the on-disk shape: tracked game ids per user, and draft
// order lists keyed user / game / phase. Plain JSON, rewritten whole on
// every change.
type draftFile struct {
	Tracked map[string][]string                       `json:"tracked"`
	Drafts  map[string]map[string]map[string][]string `json:"drafts"`
}

// DraftStore keeps order drafts and tracked games between sittings.
type DraftStore struct {
	mu   sync.Mutex
	path string
	data draftFile
}

// OpenDraftStore loads the store file, creating an empty store when the
// file does not exist yet.
func OpenDraftStore(path string) (*DraftStore, error) {
	if path == "" {
		return nil, fmt.Errorf("draft store path must be provided")
	}
	s := &DraftStore{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("draft store %s is corrupt: %w", path, err)
		}
	}
	if s.data.Tracked == nil {
		s.data.Tracked = make(map[string][]string)
	}
	if s.data.Drafts == nil {
		s.data.Drafts = make(map[string]map[string]map[string][]string)
	}
	return s, nil
}

// TrackGame remembers that a user plays in a game.
func (s *DraftStore) TrackGame(user, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.data.Tracked[user] {
		if id == gameID {
			return nil
		}
	}
	s.data.Tracked[user] = append(s.data.Tracked[user], gameID)
	sort.Strings(s.data.Tracked[user])
	return s.saveLocked()
}

// UntrackGame forgets a game and drops its drafts.
func (s *DraftStore) UntrackGame(user, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.data.Tracked[user]
	for i, id := range ids {
		if id == gameID {
			s.data.Tracked[user] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if games, ok := s.data.Drafts[user]; ok {
		delete(games, gameID)
	}
	return s.saveLocked()
}

// TrackedGames lists the games a user is known to play in, sorted.
func (s *DraftStore) TrackedGames(user string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.data.Tracked[user]...)
}

// SetDraft stores the in-progress orders for one (user, game, phase).
func (s *DraftStore) SetDraft(user, gameID, phase string, orders []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	games, ok := s.data.Drafts[user]
	if !ok {
		games = make(map[string]map[string][]string)
		s.data.Drafts[user] = games
	}
	phases, ok := games[gameID]
	if !ok {
		phases = make(map[string][]string)
		games[gameID] = phases
	}
	phases[phase] = append([]string(nil), orders...)
	return s.saveLocked()
}

// Draft fetches a stored draft.
func (s *DraftStore) Draft(user, gameID, phase string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders, ok := s.data.Drafts[user][gameID][phase]
	if !ok {
		return nil, false
	}
	return append([]string(nil), orders...), true
}

// ClearDraft removes a stored draft, keeping the game tracked.
func (s *DraftStore) ClearDraft(user, gameID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	phases, ok := s.data.Drafts[user][gameID]
	if !ok {
		return nil
	}
	delete(phases, phase)
	if len(phases) == 0 {
		delete(s.data.Drafts[user], gameID)
	}
	return s.saveLocked()
}

func (s *DraftStore) saveLocked() error {
	blob, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, blob, 0o644)
}
