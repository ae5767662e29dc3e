package strategy

import (
	"fmt"
	"testing"
)

func testTeams(n int) []string {
	teams := make([]string, n)
	for i := range teams {
		teams[i] = fmt.Sprintf("team-%02d", i+1)
	}
	return teams
}

func TestRoundRobinPairs(t *testing.T) {
	s := &RoundRobin{}
	teams := testTeams(12)
	pairs := s.GeneratePairs(teams)

	t.Run("total pair count", func(t *testing.T) {
		// 12 teams: C(12,2) = 66 pairs
		if len(pairs) != 66 {
			t.Errorf("total pairs = %d, want 66", len(pairs))
		}
	})

	t.Run("no team plays itself", func(t *testing.T) {
		for _, p := range pairs {
			if p.A == p.B {
				t.Errorf("self pairing: %s", p)
			}
		}
	})

	t.Run("each pair appears once", func(t *testing.T) {
		seen := make(map[Pair]bool)
		for _, p := range pairs {
			if seen[p.Key()] {
				t.Errorf("duplicate pair: %s", p)
			}
			seen[p.Key()] = true
		}
	})

	t.Run("each team faces every other team", func(t *testing.T) {
		counts := make(map[string]int)
		for _, p := range pairs {
			counts[p.A]++
			counts[p.B]++
		}
		for _, team := range teams {
			if counts[team] != 11 {
				t.Errorf("%s appears in %d pairs, want 11", team, counts[team])
			}
		}
	})

	t.Run("pairs follow input order", func(t *testing.T) {
		if pairs[0] != (Pair{A: "team-01", B: "team-02"}) {
			t.Errorf("first pair = %s, want team-01 vs team-02", pairs[0])
		}
		last := pairs[len(pairs)-1]
		if last != (Pair{A: "team-11", B: "team-12"}) {
			t.Errorf("last pair = %s, want team-11 vs team-12", last)
		}
	})
}

func TestRoundRobinSmall(t *testing.T) {
	s := &RoundRobin{}

	t.Run("fewer than two teams", func(t *testing.T) {
		if got := s.GeneratePairs(nil); len(got) != 0 {
			t.Errorf("nil teams produced %d pairs", len(got))
		}
		if got := s.GeneratePairs([]string{"solo"}); len(got) != 0 {
			t.Errorf("one team produced %d pairs", len(got))
		}
	})

	t.Run("duplicates ignored", func(t *testing.T) {
		got := s.GeneratePairs([]string{"a", "b", "a", "", "c"})
		if len(got) != 3 {
			t.Errorf("pairs = %d, want 3", len(got))
		}
	})
}

func TestPairKey(t *testing.T) {
	if (Pair{A: "b", B: "a"}).Key() != (Pair{A: "a", B: "b"}).Key() {
		t.Error("keys should ignore team order")
	}
}

func TestGet(t *testing.T) {
	if _, err := Get("round_robin"); err != nil {
		t.Errorf("round_robin: %v", err)
	}
	if _, err := Get(""); err != nil {
		t.Errorf("default strategy: %v", err)
	}
	if _, err := Get("swiss"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
