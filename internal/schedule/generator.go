package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/derekprior/hoops/internal/strategy"
)

var (
	// ErrInsufficientPairs means open game slots were left unfilled because
	// the pair supply ran out.
	ErrInsufficientPairs = errors.New("not enough pairings to fill open game slots")
	// ErrPairsDropped means pairings were left over when the game number
	// ceiling was reached.
	ErrPairsDropped = errors.New("pairings left over after the last game slot")

	ErrMissingTeam         = errors.New("two teams are required")
	ErrSameTeam            = errors.New("a team cannot play itself")
	ErrDuplicateGameNumber = errors.New("game number already exists")
)

// Policy controls what happens when pairings and open slots don't line up.
type Policy string

const (
	// PolicyTruncate fills what it can and records warnings.
	PolicyTruncate Policy = "truncate"
	// PolicyError returns the partial result together with an error.
	PolicyError Policy = "error"
	// PolicyAllowRepeat draws another shuffled round of pairings when the
	// supply runs out before the slots do.
	PolicyAllowRepeat Policy = "allow-repeat"
)

// ParsePolicy validates a policy name. An empty name means PolicyTruncate.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyTruncate:
		return PolicyTruncate, nil
	case PolicyError, PolicyAllowRepeat:
		return Policy(name), nil
	default:
		return "", fmt.Errorf("unknown policy %q (want truncate, error or allow-repeat)", name)
	}
}

// Source yields uniformly distributed values in [0, 1). *rand.Rand
// satisfies it.
type Source interface {
	Float64() float64
}

// NewSeededSource returns a deterministic Source.
func NewSeededSource(seed int64) Source {
	return rand.New(rand.NewSource(seed))
}

// GameSlot is a single scheduled matchup occupying one game number.
type GameSlot struct {
	GameNumber int
	WeekNumber int
	StartDate  time.Time
	EndDate    time.Time
	TeamA      string
	TeamB      string
	Notes      string
}

// Options configures a generation pass.
type Options struct {
	// MaxGameNumber is the last game number to fill. Nil means MaxGameNumber.
	MaxGameNumber *int
	Policy        Policy
	Source        Source
	Calculator    *Calculator
	Strategy      strategy.Strategy
}

// Result is the output of a generation pass.
type Result struct {
	Games []GameSlot
	// Dropped holds pairings never assigned because the ceiling was reached.
	Dropped []strategy.Pair
	// Unfilled counts open game slots left empty.
	Unfilled int
	// Rounds counts how many shuffled rounds of pairings were drawn.
	Rounds   int
	Warnings []string
}

// Generate assigns shuffled team pairings to the open game slots from 0 up to
// the ceiling, skipping game numbers in existing. existing is not modified.
// Under PolicyError a partial Result is returned alongside the error.
func Generate(teams []string, existing map[int]bool, opts Options) (*Result, error) {
	g, err := newGenerator(teams, existing, opts)
	if err != nil {
		return nil, err
	}
	g.run()
	return g.result()
}

type generator struct {
	teams    []string
	existing map[int]bool
	ceiling  int
	policy   Policy
	src      Source
	calc     *Calculator
	strat    strategy.Strategy

	universe []strategy.Pair
	pending  []strategy.Pair
	games    []GameSlot
	unfilled int
	rounds   int
}

func newGenerator(teams []string, existing map[int]bool, opts Options) (*generator, error) {
	ceiling := MaxGameNumber
	if opts.MaxGameNumber != nil {
		ceiling = *opts.MaxGameNumber
	}
	if ceiling < 0 || ceiling > MaxGameNumber {
		return nil, fmt.Errorf("%w: ceiling %d (must be 0-%d)", ErrInvalidGameNumber, ceiling, MaxGameNumber)
	}

	policy := opts.Policy
	if policy == "" {
		policy = PolicyTruncate
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}

	src := opts.Source
	if src == nil {
		src = NewSeededSource(time.Now().UnixNano())
	}
	calc := opts.Calculator
	if calc == nil {
		calc = NewCalculator(DefaultAnchor)
	}
	strat := opts.Strategy
	if strat == nil {
		strat = &strategy.RoundRobin{}
	}

	return &generator{
		teams:    strategy.Dedupe(teams),
		existing: existing,
		ceiling:  ceiling,
		policy:   policy,
		src:      src,
		calc:     calc,
		strat:    strat,
	}, nil
}

func (g *generator) run() {
	g.universe = g.strat.GeneratePairs(g.teams)
	g.pending = g.drawRound()

	for n := 0; n <= g.ceiling; n++ {
		if g.existing[n] {
			continue
		}
		if len(g.pending) == 0 {
			if g.policy != PolicyAllowRepeat || len(g.universe) == 0 {
				g.unfilled = g.openSlotsFrom(n)
				break
			}
			g.pending = g.drawRound()
		}

		pair := g.pending[0]
		g.pending = g.pending[1:]

		w, _ := g.calc.Compute(n) // n <= ceiling <= MaxGameNumber
		g.games = append(g.games, GameSlot{
			GameNumber: n,
			WeekNumber: w.WeekNumber,
			StartDate:  w.StartDate,
			EndDate:    w.EndDate,
			TeamA:      pair.A,
			TeamB:      pair.B,
		})
	}
}

// drawRound returns a freshly shuffled copy of the pair universe.
func (g *generator) drawRound() []strategy.Pair {
	if len(g.universe) == 0 {
		return nil
	}
	round := make([]strategy.Pair, len(g.universe))
	copy(round, g.universe)
	shuffle(round, g.src)
	g.rounds++
	return round
}

func (g *generator) openSlotsFrom(start int) int {
	open := 0
	for n := start; n <= g.ceiling; n++ {
		if !g.existing[n] {
			open++
		}
	}
	return open
}

func (g *generator) result() (*Result, error) {
	r := &Result{
		Games:    g.games,
		Dropped:  g.pending,
		Unfilled: g.unfilled,
		Rounds:   g.rounds,
	}

	var errs []error
	if r.Unfilled > 0 {
		if len(g.teams) < 2 {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"%d open game slots left unfilled: at least 2 teams are needed, have %d",
				r.Unfilled, len(g.teams)))
		} else {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"%d open game slots left unfilled: only %d pairings for %d teams",
				r.Unfilled, len(g.universe), len(g.teams)))
		}
		errs = append(errs, fmt.Errorf("%w: %d slots unfilled", ErrInsufficientPairs, r.Unfilled))
	}
	if len(r.Dropped) > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"%d pairings dropped: no open game slots left through game %d",
			len(r.Dropped), g.ceiling))
		if g.policy != PolicyAllowRepeat {
			errs = append(errs, fmt.Errorf("%w: %d pairings", ErrPairsDropped, len(r.Dropped)))
		}
	}

	if g.policy == PolicyError && len(errs) > 0 {
		return r, errors.Join(errs...)
	}
	return r, nil
}

// shuffle is an in-place Fisher-Yates shuffle driven by src.
func shuffle(pairs []strategy.Pair, src Source) {
	for i := len(pairs) - 1; i > 0; i-- {
		j := int(src.Float64() * float64(i+1))
		if j > i {
			j = i
		}
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}
}

// NewGameSlot builds a single manually entered game, validating it against
// the game numbers already in use.
func NewGameSlot(calc *Calculator, gameNumber int, teamA, teamB, notes string, existing map[int]bool) (GameSlot, error) {
	if teamA == "" || teamB == "" {
		return GameSlot{}, ErrMissingTeam
	}
	if teamA == teamB {
		return GameSlot{}, ErrSameTeam
	}
	w, err := calc.Compute(gameNumber)
	if err != nil {
		return GameSlot{}, err
	}
	if existing[gameNumber] {
		return GameSlot{}, fmt.Errorf("%w: game %d", ErrDuplicateGameNumber, gameNumber)
	}
	return GameSlot{
		GameNumber: gameNumber,
		WeekNumber: w.WeekNumber,
		StartDate:  w.StartDate,
		EndDate:    w.EndDate,
		TeamA:      teamA,
		TeamB:      teamB,
		Notes:      notes,
	}, nil
}
