package rating

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

const (
	DefaultTeamK = 32.0
	DefaultFFAK  = 24.0
)

var (
	ErrEmptyTeam          = errors.New("team has no players")
	ErrDuplicatePlayer    = errors.New("player listed more than once")
	ErrNotEnoughPlayers   = errors.New("free-for-all needs at least two players")
	ErrInvalidPlace       = errors.New("place must be positive")
	ErrUnknownTeamOutcome = errors.New("unknown team outcome")
)

// Config holds the K-factors. FFAK is usually lower than TeamK to dampen
// volatility in large fields.
type Config struct {
	TeamK float64
	FFAK  float64
}

func DefaultConfig() Config {
	return Config{TeamK: DefaultTeamK, FFAK: DefaultFFAK}
}

type Player struct {
	ID     int64
	Rating float64
}

type TeamOutcome int

const (
	TeamAWins TeamOutcome = iota + 1
	TeamBWins
	Draw
)

type PlacedPlayer struct {
	Player
	Place int
}

// Deltas maps a player id to the change of its rating.
type Deltas map[int64]float64

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// ExpectedScore is the logistic win probability of a player rated r against opp.
func ExpectedScore(r, opp float64) float64 {
	return 1 / (1 + math.Pow(10, (opp-r)/400))
}

// TeamDeltas gives every member of a team the same delta, computed from the
// mean pre-match rating of each side.
func (e *Engine) TeamDeltas(a, b []Player, outcome TeamOutcome) (Deltas, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrEmptyTeam
	}

	var sA float64
	switch outcome {
	case TeamAWins:
		sA = 1
	case TeamBWins:
		sA = 0
	case Draw:
		sA = 0.5
	default:
		return nil, ErrUnknownTeamOutcome
	}

	a, b = sortedByID(a), sortedByID(b)

	deltas := make(Deltas, len(a)+len(b))
	for _, p := range append(append([]Player{}, a...), b...) {
		if _, ok := deltas[p.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicatePlayer, "player %d", p.ID)
		}
		deltas[p.ID] = 0
	}

	eA := ExpectedScore(mean(a), mean(b))
	dA := e.cfg.TeamK * (sA - eA)
	dB := -dA

	for _, p := range a {
		deltas[p.ID] = dA
	}
	for _, p := range b {
		deltas[p.ID] = dB
	}
	return deltas, nil
}

// FFADeltas reduces a ranked field to pairwise results: a lower place beats a
// higher one, equal places draw. Each total is averaged over the opponents.
func (e *Engine) FFADeltas(players []PlacedPlayer) (Deltas, error) {
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	field := make([]PlacedPlayer, len(players))
	copy(field, players)
	sort.Slice(field, func(i, j int) bool { return field[i].ID < field[j].ID })

	for i, p := range field {
		if p.Place < 1 {
			return nil, errors.Wrapf(ErrInvalidPlace, "player %d", p.ID)
		}
		if i > 0 && field[i-1].ID == p.ID {
			return nil, errors.Wrapf(ErrDuplicatePlayer, "player %d", p.ID)
		}
	}

	opponents := float64(len(field) - 1)
	deltas := make(Deltas, len(field))
	for i, p := range field {
		var sum float64
		for j, q := range field {
			if i == j {
				continue
			}
			sum += pairScore(p.Place, q.Place) - ExpectedScore(p.Rating, q.Rating)
		}
		deltas[p.ID] = e.cfg.FFAK * sum / opponents
	}
	return deltas, nil
}

func pairScore(place, opp int) float64 {
	switch {
	case place < opp:
		return 1
	case place > opp:
		return 0
	default:
		return 0.5
	}
}

func mean(players []Player) float64 {
	var sum float64
	for _, p := range players {
		sum += p.Rating
	}
	return sum / float64(len(players))
}

func sortedByID(players []Player) []Player {
	out := make([]Player, len(players))
	copy(out, players)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
