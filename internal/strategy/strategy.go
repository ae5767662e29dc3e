package strategy

import "fmt"

// Pair is an unordered matchup between two distinct teams.
type Pair struct {
	A string
	B string
}

// Key returns the pair with its teams in a canonical order, so {A,B} and
// {B,A} compare equal.
func (p Pair) Key() Pair {
	if p.A > p.B {
		return Pair{A: p.B, B: p.A}
	}
	return p
}

func (p Pair) String() string {
	return fmt.Sprintf("%s vs %s", p.A, p.B)
}

// Strategy generates the universe of pairings for one generation pass.
type Strategy interface {
	GeneratePairs(teams []string) []Pair
}

// Get returns a Strategy by name.
func Get(name string) (Strategy, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobin{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %q", name)
	}
}

// RoundRobin pairs every team with every other team exactly once.
type RoundRobin struct{}

func (s *RoundRobin) GeneratePairs(teams []string) []Pair {
	unique := Dedupe(teams)
	n := len(unique)
	if n < 2 {
		return nil
	}

	pairs := make([]Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, Pair{A: unique[i], B: unique[j]})
		}
	}
	return pairs
}

// Dedupe drops empty and repeated team IDs, keeping first-seen order.
func Dedupe(teams []string) []string {
	seen := make(map[string]bool, len(teams))
	out := make([]string, 0, len(teams))
	for _, t := range teams {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
