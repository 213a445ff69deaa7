package game

import "testing"

func TestParseOrderForms(t *testing.T) {
	cases := []struct {
		text string
		want Order
	}{
		{"A PAR H", Order{Type: 'H', UnitType: "A", Location: "PAR"}},
		{"A PAR - BUR", Order{Type: '-', UnitType: "A", Location: "PAR", Target: "BUR"}},
		{"A TUN - SYR VIA", Order{Type: '-', UnitType: "A", Location: "TUN", Target: "SYR", Via: true}},
		{"A PAR S A MAR", Order{Type: 'S', UnitType: "A", Location: "PAR", Target: "MAR"}},
		{"A PAR S A MAR - BUR", Order{Type: 'S', UnitType: "A", Location: "PAR", Target: "MAR"}},
		{"F ENG C A LON - BRE", Order{Type: 'C', UnitType: "F", Location: "ENG", Target: "LON"}},
		{"A PAR R GAS", Order{Type: 'R', UnitType: "A", Location: "PAR", Target: "GAS"}},
		{"F BRE D", Order{Type: 'D', UnitType: "F", Location: "BRE"}},
		{"A PAR B", Order{Type: 'B', UnitType: "A", Location: "PAR"}},
		{"B LON", Order{Type: 'B', UnitType: "B", Location: "LON"}},
		{"  A   PAR   H  ", Order{Type: 'H', UnitType: "A", Location: "PAR"}},
	}
	for _, tc := range cases {
		got, err := ParseOrder(tc.text)
		if err != nil {
			t.Fatalf("ParseOrder(%q): %v", tc.text, err)
		}
		if got.Type != tc.want.Type || got.UnitType != tc.want.UnitType ||
			got.Location != tc.want.Location || got.Target != tc.want.Target || got.Via != tc.want.Via {
			t.Fatalf("ParseOrder(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestParseOrderWaive(t *testing.T) {
	order, err := ParseOrder("WAIVE")
	if err != nil {
		t.Fatalf("ParseOrder(WAIVE): %v", err)
	}
	if order.Type != 0 || order.Location != "" {
		t.Fatalf("WAIVE should have no board anchor, got %+v", order)
	}
}

func TestParseOrderRejectsMalformed(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"A PAR",
		"A PAR X BUR",
		"A PAR -",
		"A PAR H BUR",
		"A PAR S",
		"A PAR S A",
		"F ENG C A LON",
		"A PAR R",
		"A PAR R GAS BUR",
		"A PAR S A MAR - BUR VIA",
	} {
		if _, err := ParseOrder(text); err == nil {
			t.Fatalf("ParseOrder(%q) should fail", text)
		}
	}
}

func TestBuildOrderTree(t *testing.T) {
	tree, err := BuildOrderTree([]string{
		"A PAR H",
		"A PAR - BUR",
		"A PAR - PIC",
		"A PAR S A MAR - BUR",
		"F BRE - MAO",
		"WAIVE",
	})
	if err != nil {
		t.Fatalf("BuildOrderTree: %v", err)
	}

	locations := tree.Locations()
	if len(locations) != 2 || locations[0] != "BRE" || locations[1] != "PAR" {
		t.Fatalf("Locations = %v, want [BRE PAR]", locations)
	}

	types := tree.TypesAt("PAR")
	if string(types) != "-HS" {
		t.Fatalf("TypesAt(PAR) = %q, want \"-HS\"", types)
	}

	moves := tree.CompletionsAt("PAR", '-')
	if len(moves) != 2 || moves[0] != "A PAR - BUR" || moves[1] != "A PAR - PIC" {
		t.Fatalf("CompletionsAt(PAR, -) = %v", moves)
	}

	// A support of someone else's move is anchored at the supporting unit.
	supports := tree.CompletionsAt("PAR", 'S')
	if len(supports) != 1 || supports[0] != "A PAR S A MAR - BUR" {
		t.Fatalf("CompletionsAt(PAR, S) = %v", supports)
	}

	if got := tree.TypesAt("MAR"); got != nil {
		t.Fatalf("TypesAt(MAR) = %q, want nil", got)
	}
	if got := tree.CompletionsAt("NOWHERE", 'H'); len(got) != 0 {
		t.Fatalf("CompletionsAt on unknown location = %v", got)
	}
}

func TestBuildOrderTreeRejectsMalformed(t *testing.T) {
	if _, err := BuildOrderTree([]string{"A PAR H", "garbage order text"}); err == nil {
		t.Fatal("expected malformed entry to fail the whole build")
	}
}
