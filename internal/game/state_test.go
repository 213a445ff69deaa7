package game

import (
	"testing"
	"time"
)

func fixedClock(micro int64) func() time.Time {
	return func() time.Time { return time.UnixMicro(micro) }
}

func phaseData(name string, ts int64) PhaseData {
	return PhaseData{
		Name: name,
		State: &BoardState{
			Name:  name,
			Units: map[string][]string{"FRANCE": {"A PAR"}},
		},
		Orders:    map[string][]string{"FRANCE": {"A PAR H"}},
		Results:   map[string][]string{"A PAR": {""}},
		Timestamp: ts,
	}
}

func TestFromSnapshotSeedsLivePhase(t *testing.T) {
	snap := Snapshot{
		ID:        "game-1",
		MapName:   "standard",
		Rules:     []string{"NO_PRESS"},
		Role:      "FRANCE",
		Phase:     "S1901M",
		Status:    "active",
		Timestamp: 400,
		State: &BoardState{
			Name:    "S1901M",
			Units:   map[string][]string{"FRANCE": {"A PAR", "F BRE"}},
			Centers: map[string][]string{"FRANCE": {"PAR", "BRE", "MAR"}},
		},
		Orders: map[string][]string{"FRANCE": {"A PAR H"}},
	}
	state, err := FromSnapshot(snap, WithClock(fixedClock(500)))
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if got := state.Phase(); got != "S1901M" {
		t.Fatalf("phase = %q, want S1901M", got)
	}
	if got := state.Power("FRANCE").OrderStatus(); got != OrdersSet {
		t.Fatalf("order status = %v, want OrdersSet", got)
	}
	if got := len(state.Power("FRANCE").Units); got != 2 {
		t.Fatalf("units = %d, want 2", got)
	}
	if state.HistoryLen() != 0 {
		t.Fatalf("fresh snapshot should have no history, got %d", state.HistoryLen())
	}
}

func TestFromSnapshotRejectsIncomplete(t *testing.T) {
	if _, err := FromSnapshot(Snapshot{Role: "FRANCE"}); err == nil {
		t.Fatal("expected error for missing game id")
	}
	if _, err := FromSnapshot(Snapshot{ID: "game-1"}); err == nil {
		t.Fatal("expected error for missing role")
	}
	if _, err := FromSnapshot(Snapshot{ID: "game-1", Role: "FRANCE", Phase: "X1901M"}); err == nil {
		t.Fatal("expected error for malformed phase")
	}
}

func TestExtendPhaseHistoryLockstep(t *testing.T) {
	state, err := FromSnapshot(Snapshot{ID: "g", Role: "FRANCE", Phase: "W1902A"}, WithClock(fixedClock(10)))
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	for i, code := range []string{"S1901M", "F1901M", "W1901A", "S1902M"} {
		if err := state.ExtendPhaseHistory(phaseData(code, int64(100+i))); err != nil {
			t.Fatalf("ExtendPhaseHistory(%s): %v", code, err)
		}
	}
	a, b, c, d := state.HistoryLens()
	if a != 4 || b != 4 || c != 4 || d != 4 {
		t.Fatalf("histories out of lockstep: %d %d %d %d", a, b, c, d)
	}
	want := []string{"S1901M", "F1901M", "W1901A", "S1902M"}
	got := state.HistoryPhases()
	if len(got) != len(want) {
		t.Fatalf("history phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history phases = %v, want %v", got, want)
		}
	}
}

func TestExtendPhaseHistoryRejectsDuplicate(t *testing.T) {
	state, err := FromSnapshot(Snapshot{ID: "g", Role: "FRANCE", Phase: "F1901M"})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if err := state.ExtendPhaseHistory(phaseData("S1901M", 100)); err != nil {
		t.Fatalf("first extension: %v", err)
	}
	if err := state.ExtendPhaseHistory(phaseData("S1901M", 200)); err == nil {
		t.Fatal("expected duplicate phase to be rejected")
	}
	if err := state.ExtendPhaseHistory(phaseData("S19A1M", 200)); err == nil {
		t.Fatal("expected malformed phase to be rejected")
	}
	if state.HistoryLen() != 1 {
		t.Fatalf("history grew on rejection: %d entries", state.HistoryLen())
	}
}

func TestExtendPhaseHistoryFoldsLiveMessages(t *testing.T) {
	state, err := FromSnapshot(Snapshot{ID: "g", Role: "FRANCE", Phase: "S1901M"})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	state.AddMessage(Message{Sender: "FRANCE", Recipient: "GLOBAL", TimeSent: 50, Phase: "S1901M", Message: "hello"})
	state.AddMessage(Message{Sender: "ENGLAND", Recipient: "GLOBAL", TimeSent: 60, Phase: "S1901M", Message: "hi"})

	if err := state.ExtendPhaseHistory(phaseData("S1901M", 100)); err != nil {
		t.Fatalf("ExtendPhaseHistory: %v", err)
	}
	archived, ok := state.MessagesAt("S1901M")
	if !ok {
		t.Fatal("archived messages missing")
	}
	if len(archived) != 2 || archived[0].TimeSent != 50 || archived[1].TimeSent != 60 {
		t.Fatalf("archived messages = %+v", archived)
	}
	if got := len(state.Messages()); got != 0 {
		t.Fatalf("live buffer not emptied, %d messages remain", got)
	}
}

func TestSetPhaseDataResetsPowers(t *testing.T) {
	state, err := FromSnapshot(Snapshot{
		ID: "g", Role: "FRANCE", Phase: "S1901M",
		State:  &BoardState{Name: "S1901M", Units: map[string][]string{"FRANCE": {"A PAR"}}},
		Orders: map[string][]string{"FRANCE": {"A PAR - BUR"}},
	})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	state.AddMessage(Message{Sender: "FRANCE", TimeSent: 10, Message: "stale"})

	err = state.SetPhaseData(PhaseData{
		Name:  "F1901M",
		State: &BoardState{Name: "F1901M", Units: map[string][]string{"FRANCE": {"A BUR"}}},
	})
	if err != nil {
		t.Fatalf("SetPhaseData: %v", err)
	}
	if got := state.Phase(); got != "F1901M" {
		t.Fatalf("phase = %q, want F1901M", got)
	}
	france := state.Power("FRANCE")
	if got := france.OrderStatus(); got != OrdersUnset {
		t.Fatalf("order status = %v, want OrdersUnset after phase change", got)
	}
	if len(france.Units) != 1 || france.Units[0] != "A BUR" {
		t.Fatalf("units = %v, want [A BUR]", france.Units)
	}
	if got := len(state.Messages()); got != 0 {
		t.Fatalf("live buffer should be replaced, %d messages remain", got)
	}
}

func TestSetPhaseDataDecodesRetreats(t *testing.T) {
	state, err := FromSnapshot(Snapshot{ID: "g", Role: "FRANCE", Phase: "F1901M"})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	err = state.SetPhaseData(PhaseData{
		Name: "F1901R",
		State: &BoardState{
			Name: "F1901R",
			Retreats: map[string][]string{
				"FRANCE": {"A PAR - BUR GAS", "F BRE"},
			},
		},
	})
	if err != nil {
		t.Fatalf("SetPhaseData: %v", err)
	}

	france := state.Power("FRANCE")
	dests, ok := france.Retreats["A PAR"]
	if !ok {
		t.Fatalf("retreats = %v, missing A PAR", france.Retreats)
	}
	if len(dests) != 2 || dests[0] != "BUR" || dests[1] != "GAS" {
		t.Fatalf("A PAR destinations = %v, want [BUR GAS]", dests)
	}
	stranded, ok := france.Retreats["F BRE"]
	if !ok || stranded != nil {
		t.Fatalf("F BRE = (%v, %v), want present with no destinations", stranded, ok)
	}
}

func TestCloneAtTruncatesAndIsolates(t *testing.T) {
	state, err := FromSnapshot(Snapshot{ID: "g", Role: "FRANCE", Phase: "W1901A"}, WithClock(fixedClock(10)))
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	for i, code := range []string{"S1901M", "F1901M"} {
		if err := state.ExtendPhaseHistory(phaseData(code, int64(100+i))); err != nil {
			t.Fatalf("ExtendPhaseHistory(%s): %v", code, err)
		}
	}

	clone, err := state.CloneAt("S1901M")
	if err != nil {
		t.Fatalf("CloneAt: %v", err)
	}
	if clone.HistoryLen() != 1 {
		t.Fatalf("clone history = %d phases, want 1", clone.HistoryLen())
	}
	if clone.Phase() != "S1901M" {
		t.Fatalf("clone phase = %q, want S1901M", clone.Phase())
	}

	board, ok := clone.StateAt("S1901M")
	if !ok {
		t.Fatal("clone is missing the S1901M board")
	}
	board.Units["FRANCE"] = append(board.Units["FRANCE"], "F BRE")
	original, _ := state.StateAt("S1901M")
	if len(original.Units["FRANCE"]) != 1 {
		t.Fatal("mutating the clone leaked into the original")
	}

	if _, err := state.CloneAt("S1905M"); err == nil {
		t.Fatal("expected unknown phase to be rejected")
	}
	if _, err := state.CloneAt("nonsense"); err == nil {
		t.Fatal("expected malformed phase to be rejected")
	}
}

func TestLatestTimestamp(t *testing.T) {
	state, err := FromSnapshot(Snapshot{ID: "g", Role: "FRANCE", Phase: "S1901M", Timestamp: 100})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if got := state.LatestTimestamp(); got != 100 {
		t.Fatalf("LatestTimestamp = %d, want 100 from creation", got)
	}
	if err := state.ExtendPhaseHistory(phaseData("S1901M", 250)); err != nil {
		t.Fatalf("ExtendPhaseHistory: %v", err)
	}
	if got := state.LatestTimestamp(); got != 250 {
		t.Fatalf("LatestTimestamp = %d, want 250 from history", got)
	}
	state.AddMessage(Message{Sender: "FRANCE", TimeSent: 900, Message: "late"})
	if got := state.LatestTimestamp(); got != 900 {
		t.Fatalf("LatestTimestamp = %d, want 900 from live message", got)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	state, err := FromSnapshot(Snapshot{
		ID: "g", MapName: "standard", Role: "FRANCE", Phase: "F1901M",
		State: &BoardState{Name: "F1901M", Units: map[string][]string{"FRANCE": {"A BUR"}}},
	}, WithClock(fixedClock(10)))
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if err := state.ExtendPhaseHistory(phaseData("S1901M", 100)); err != nil {
		t.Fatalf("ExtendPhaseHistory: %v", err)
	}

	archive := state.ToArchive()
	if len(archive.Phases) != 2 {
		t.Fatalf("archive phases = %d, want 2", len(archive.Phases))
	}
	if archive.Phases[len(archive.Phases)-1].Name != "F1901M" {
		t.Fatalf("final archive phase = %q, want live F1901M", archive.Phases[1].Name)
	}

	rebuilt, err := FromArchive(archive, "FRANCE", WithClock(fixedClock(20)))
	if err != nil {
		t.Fatalf("FromArchive: %v", err)
	}
	if rebuilt.Phase() != "F1901M" {
		t.Fatalf("rebuilt phase = %q, want F1901M", rebuilt.Phase())
	}
	if rebuilt.HistoryLen() != 1 {
		t.Fatalf("rebuilt history = %d, want 1", rebuilt.HistoryLen())
	}
	if _, ok := rebuilt.StateAt("S1901M"); !ok {
		t.Fatal("rebuilt state lost the archived phase")
	}
}

func TestPowerControllerHistory(t *testing.T) {
	p := NewPower("FRANCE")
	p.SetController(100, "alice")
	p.SetController(300, "charlie")
	p.SetController(200, "bob")
	if got := p.Controller(); got != "charlie" {
		t.Fatalf("Controller = %q, want the latest entry charlie", got)
	}
	times, names := p.ControllerHistory()
	if len(names) != 3 || names[0] != "alice" || names[1] != "bob" || names[2] != "charlie" {
		t.Fatalf("ControllerHistory names = %v", names)
	}
	if times[0] != 100 || times[1] != 200 || times[2] != 300 {
		t.Fatalf("ControllerHistory times = %v", times)
	}
}

func TestOrderStatusTriState(t *testing.T) {
	p := NewPower("FRANCE")
	if got := p.OrderStatus(); got != OrdersUnset {
		t.Fatalf("fresh power status = %v, want OrdersUnset", got)
	}
	p.SetOrders(nil)
	if got := p.OrderStatus(); got != OrdersEmpty {
		t.Fatalf("status after empty submit = %v, want OrdersEmpty", got)
	}
	p.SetOrders([]string{"A PAR H"})
	if got := p.OrderStatus(); got != OrdersSet {
		t.Fatalf("status after submit = %v, want OrdersSet", got)
	}
	p.ResetOrders()
	if got := p.OrderStatus(); got != OrdersUnset {
		t.Fatalf("status after reset = %v, want OrdersUnset", got)
	}
}
