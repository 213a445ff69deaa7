package phase

import "testing"

func TestRankSentinelsBracketConcretePhases(t *testing.T) {
	forming, err := Rank(Forming)
	if err != nil {
		t.Fatalf("Rank(FORMING) returned error: %v", err)
	}
	completed, err := Rank(Completed)
	if err != nil {
		t.Fatalf("Rank(COMPLETED) returned error: %v", err)
	}
	for _, code := range []string{"S1901M", "F1901M", "W1901A", "S1902M", "F1935R"} {
		rank, err := Rank(code)
		if err != nil {
			t.Fatalf("Rank(%q) returned error: %v", code, err)
		}
		if rank <= forming || rank >= completed {
			t.Fatalf("Rank(%q)=%d not strictly between sentinels", code, rank)
		}
	}
}

func TestRankOrdering(t *testing.T) {
	sequence := []string{"S1901M", "S1901R", "F1901M", "F1901R", "W1901A", "S1902M"}
	for i := 1; i < len(sequence); i++ {
		before, err := Before(sequence[i-1], sequence[i])
		if err != nil {
			t.Fatalf("Before(%q, %q) returned error: %v", sequence[i-1], sequence[i], err)
		}
		if !before {
			t.Fatalf("expected %q to sort before %q", sequence[i-1], sequence[i])
		}
	}
}

func TestRankRejectsMalformedCodes(t *testing.T) {
	cases := []string{"S19A1M", "X1901M", "S1901", "S1901X", "", "S1901MM", "s1901m", "S-901M", "S+901M", "S 901M"}
	for _, code := range cases {
		if _, err := Rank(code); err == nil {
			t.Fatalf("Rank(%q) accepted a malformed code", code)
		}
	}
}

func TestMustRankPanicsOnMalformedCode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MustRank did not panic on malformed code")
		}
	}()
	MustRank("bogus")
}
