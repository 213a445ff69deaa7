// Package game holds the canonical client-side snapshot of one game as
// seen by one role: current phase, append-only phase histories, per-power
// state and the derived order tree.
package game

// Role constants for the special viewpoints. Any other role string names
// the power the viewer controls.
const (
	RoleObserver   = "observer"
	RoleOmniscient = "omniscient"
)

// Message is one press message exchanged inside a game.
type Message struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	TimeSent  int64  `json:"time_sent"`
	Phase     string `json:"phase"`
	Message   string `json:"message"`
}

// BuildCount describes the adjustment allowance for one power.
type BuildCount struct {
	Count int      `json:"count"`
	Homes []string `json:"homes"`
}

// BoardState is the full board snapshot the server declares for a phase.
type BoardState struct {
	Name          string                `json:"name"`
	Units         map[string][]string   `json:"units"`
	Retreats      map[string][]string   `json:"retreats"`
	Centers       map[string][]string   `json:"centers"`
	Homes         map[string][]string   `json:"homes"`
	Influence     map[string][]string   `json:"influence"`
	CivilDisorder map[string]int        `json:"civil_disorder"`
	Builds        map[string]BuildCount `json:"builds"`
}

// Clone deep-copies the board snapshot.
func (b *BoardState) Clone() *BoardState {
	if b == nil {
		return nil
	}
	clone := &BoardState{Name: b.Name}
	clone.Units = cloneStringListMap(b.Units)
	clone.Retreats = cloneStringListMap(b.Retreats)
	clone.Centers = cloneStringListMap(b.Centers)
	clone.Homes = cloneStringListMap(b.Homes)
	clone.Influence = cloneStringListMap(b.Influence)
	if b.CivilDisorder != nil {
		clone.CivilDisorder = make(map[string]int, len(b.CivilDisorder))
		for k, v := range b.CivilDisorder {
			clone.CivilDisorder[k] = v
		}
	}
	if b.Builds != nil {
		clone.Builds = make(map[string]BuildCount, len(b.Builds))
		for k, v := range b.Builds {
			clone.Builds[k] = BuildCount{Count: v.Count, Homes: append([]string(nil), v.Homes...)}
		}
	}
	return clone
}

// PhaseData bundles everything the server reports about one phase.
type PhaseData struct {
	Name      string              `json:"name"`
	State     *BoardState         `json:"state"`
	Orders    map[string][]string `json:"orders"`
	Results   map[string][]string `json:"results"`
	Messages  []Message           `json:"messages"`
	Timestamp int64               `json:"timestamp"`
}

// Snapshot is the full game payload returned by join/create requests.
type Snapshot struct {
	ID        string              `json:"game_id"`
	MapName   string              `json:"map_name"`
	Rules     []string            `json:"rules"`
	Role      string              `json:"role"`
	Phase     string              `json:"phase"`
	Status    string              `json:"status"`
	Timestamp int64               `json:"timestamp_created"`
	State     *BoardState         `json:"state"`
	Orders    map[string][]string `json:"orders"`
	Messages  []Message           `json:"messages"`
}

// Archive is the on-disk shape of a saved game.
type Archive struct {
	ID     string      `json:"id"`
	Map    string      `json:"map"`
	Rules  []string    `json:"rules"`
	Phases []PhaseData `json:"phases"`
}

func cloneStringListMap(src map[string][]string) map[string][]string {
	if src == nil {
		return nil
	}
	dst := make(map[string][]string, len(src))
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
	return dst
}
