package session

import (
	"fmt"
	"sync"

	"diplomacy/client/internal/game"
)

// ViewGroup holds the views a session has open on one game, at most one
// per role. The observer and omniscient roles are mutually exclusive:
// they are two grades of the same spectator seat.
type ViewGroup struct {
	gameID string
	views  map[string]*GameView
}

func (g *ViewGroup) add(view *GameView) (*GameView, error) {
	role := view.Role()
	switch role {
	case game.RoleObserver:
		if _, ok := g.views[game.RoleOmniscient]; ok {
			return nil, fmt.Errorf("game %q already has an omniscient view", g.gameID)
		}
	case game.RoleOmniscient:
		if _, ok := g.views[game.RoleObserver]; ok {
			return nil, fmt.Errorf("game %q already has an observer view", g.gameID)
		}
	}
	replaced := g.views[role]
	g.views[role] = view
	return replaced, nil
}

// syncGroups guards the game id to ViewGroup mapping.
type syncGroups struct {
	mu     *sync.RWMutex
	groups map[string]*ViewGroup
}

func newSyncGroups() syncGroups {
	return syncGroups{mu: &sync.RWMutex{}, groups: make(map[string]*ViewGroup)}
}

// add registers a view, closing any same-role view it replaces.
func (s syncGroups) add(view *GameView) error {
	s.mu.Lock()
	group, ok := s.groups[view.GameID()]
	if !ok {
		group = &ViewGroup{gameID: view.GameID(), views: make(map[string]*GameView)}
		s.groups[view.GameID()] = group
	}
	replaced, err := group.add(view)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if replaced != nil {
		replaced.bus.close()
	}
	return nil
}

func (s syncGroups) view(gameID, role string) (*GameView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[gameID]
	if !ok {
		return nil, false
	}
	view, ok := group.views[role]
	return view, ok
}

func (s syncGroups) views(gameID string) []*GameView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[gameID]
	if !ok {
		return nil
	}
	out := make([]*GameView, 0, len(group.views))
	for _, view := range group.views {
		out = append(out, view)
	}
	return out
}

func (s syncGroups) all() []*GameView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*GameView
	for _, group := range s.groups {
		for _, view := range group.views {
			out = append(out, view)
		}
	}
	return out
}

// removeView drops one view; the group goes with its last view.
func (s syncGroups) removeView(gameID, role string) *GameView {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[gameID]
	if !ok {
		return nil
	}
	view, ok := group.views[role]
	if !ok {
		return nil
	}
	delete(group.views, role)
	if len(group.views) == 0 {
		delete(s.groups, gameID)
	}
	return view
}

// removeGame drops every view of a game.
func (s syncGroups) removeGame(gameID string) []*GameView {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[gameID]
	if !ok {
		return nil
	}
	delete(s.groups, gameID)
	out := make([]*GameView, 0, len(group.views))
	for _, view := range group.views {
		out = append(out, view)
	}
	return out
}

// drain empties the whole table.
func (s syncGroups) drain() []*GameView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*GameView
	for id, group := range s.groups {
		for _, view := range group.views {
			out = append(out, view)
		}
		delete(s.groups, id)
	}
	return out
}
