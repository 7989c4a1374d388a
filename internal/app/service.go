package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/domain"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/minimax"
	"github.com/rs/zerolog/log"
)

// Errors exposed by the service layer.
var (
	ErrNotFound     = errors.New("game not found")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrNotAPlayer   = errors.New("not a player")
	ErrUnknownLevel = errors.New("unknown computer level")
)

// ComputerID is the player ID held by the computer's seat.
const ComputerID = "computer"

// Level selects how the computer opponent plays.
type Level string

const (
	LevelPerfect Level = "perfect"
	LevelRandom  Level = "random"
)

// ParseLevel maps a form value to a Level; empty means LevelPerfect.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "", LevelPerfect:
		return LevelPerfect, nil
	case LevelRandom:
		return LevelRandom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// GameState is the in-memory state tracked per game.
type GameState struct {
	ID       string
	Game     domain.Game
	X        string
	O        string
	Computer domain.Mark // seat played by the computer, Empty for two humans
	Level    Level
	Created  time.Time
	Updated  time.Time
}

// Seat returns the mark held by playerID, or Empty for spectators.
func (gs GameState) Seat(playerID string) domain.Mark {
	if playerID == "" {
		return domain.Empty
	}
	switch playerID {
	case gs.X:
		return domain.X
	case gs.O:
		return domain.O
	}
	return domain.Empty
}

// Hint is the engine's recommendation for the side to move.
type Hint struct {
	Side   domain.Mark
	Action domain.Action
	Value  int
	Scores []minimax.Score
}

type subscriber struct {
	ch        chan GameState
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

type Option func(*Service)

// WithOpponent installs the Chooser used for a computer level.
func WithOpponent(level Level, c minimax.Chooser) Option {
	return func(s *Service) {
		if c != nil {
			s.opponents[level] = c
		}
	}
}

// WithEngine replaces the engine used for hints and LevelPerfect.
func WithEngine(e *minimax.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
			s.opponents[LevelPerfect] = e
		}
	}
}

// Service manages games and subscribers.
type Service struct {
	mu        sync.Mutex
	games     map[string]*GameState
	subs      map[string]map[*subscriber]struct{}
	engine    *minimax.Engine
	opponents map[Level]minimax.Chooser
}

// NewService creates a service. Without options the computer plays perfect
// minimax or clock-seeded random moves.
func NewService(options ...Option) *Service {
	engine := minimax.New()
	s := &Service{
		games:  make(map[string]*GameState),
		subs:   make(map[string]map[*subscriber]struct{}),
		engine: engine,
		opponents: map[Level]minimax.Chooser{
			LevelPerfect: engine,
			LevelRandom:  minimax.NewRandom(0),
		},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateGame creates and registers a new game between two humans.
func (s *Service) CreateGame() (*GameState, error) {
	return s.CreateGameFrom(domain.NewBoard())
}

// CreateGameFrom registers a two-human game starting at position b.
func (s *Service) CreateGameFrom(b domain.Board) (*GameState, error) {
	g, err := domain.FromBoard(b)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gs := s.registerLocked(g)
	log.Info().Str("game", gs.ID).Str("board", b.String()).Msg("game created")
	cp := *gs
	return &cp, nil
}

// CreateComputerGame creates a game where the computer holds the seat
// opposite human. When the computer has X it opens immediately.
func (s *Service) CreateComputerGame(human domain.Mark, level Level) (*GameState, error) {
	if human != domain.X && human != domain.O {
		return nil, fmt.Errorf("human side must be X or O, got %v", human)
	}
	if _, ok := s.opponents[level]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}

	// The opening search runs before the game is registered, so s.mu is free.
	g := domain.New()
	computer := human.Opponent()
	if computer == domain.X {
		if err := s.computerMove(level, &g); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gs := s.registerLocked(g)
	gs.Computer = computer
	gs.Level = level
	if computer == domain.X {
		gs.X = ComputerID
	} else {
		gs.O = ComputerID
	}
	log.Info().Str("game", gs.ID).Stringer("computer", gs.Computer).Str("level", string(level)).Msg("computer game created")
	cp := *gs
	return &cp, nil
}

func (s *Service) registerLocked(g domain.Game) *GameState {
	now := time.Now()
	gs := &GameState{ID: uuid.NewString(), Game: g, Created: now, Updated: now}
	s.games[gs.ID] = gs
	return gs
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return nil, false
	}
	cp := *gs
	return &cp, true
}

// Join assigns a seat to the player if available; returns Empty for spectators.
func (s *Service) Join(id, playerID string) (domain.Mark, *GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return domain.Empty, nil, ErrNotFound
	}
	side := domain.Empty
	if gs.X == "" || gs.X == playerID {
		gs.X = playerID
		side = domain.X
	} else if gs.O == "" || gs.O == playerID {
		gs.O = playerID
		side = domain.O
	}
	gs.Updated = time.Now()
	cp := *gs
	return side, &cp, nil
}

// Play validates seat and turn, applies a move, lets the computer answer,
// updates timestamps, and broadcasts.
func (s *Service) Play(id, playerID string, r, c int) (*GameState, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	seat := gs.Seat(playerID)
	if seat == domain.Empty || playerID == ComputerID {
		s.mu.Unlock()
		return nil, ErrNotAPlayer
	}
	if seat != gs.Game.Turn() {
		s.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	if err := gs.Game.Play(r, c); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.computerMoveLocked(gs); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	gs.Updated = time.Now()

	cp := *gs
	subs := s.copySubsLocked(id)
	s.mu.Unlock()

	s.broadcast(id, cp, subs)
	return &cp, nil
}

// Hint asks the engine for the best move of the side to move.
func (s *Service) Hint(id string) (Hint, error) {
	gs, ok := s.Get(id)
	if !ok {
		return Hint{}, ErrNotFound
	}
	res, err := s.engine.Evaluate(gs.Game.Board)
	if err != nil {
		return Hint{}, err
	}
	return Hint{Side: gs.Game.Turn(), Action: res.Action, Value: res.Value, Scores: res.Scores}, nil
}

// computerMoveLocked plays for the computer when it is its turn.
func (s *Service) computerMoveLocked(gs *GameState) error {
	if gs.Computer == domain.Empty || gs.Game.Over || gs.Game.Turn() != gs.Computer {
		return nil
	}
	if err := s.computerMove(gs.Level, &gs.Game); err != nil {
		return err
	}
	log.Debug().Str("game", gs.ID).Stringer("side", gs.Computer).Msg("computer moved")
	return nil
}

// computerMove asks the level's Chooser for a move and plays it on g.
func (s *Service) computerMove(level Level, g *domain.Game) error {
	a, err := s.opponents[level].Choose(g.Board)
	if err != nil {
		return fmt.Errorf("computer move: %w", err)
	}
	if err := g.Play(a.Row, a.Col); err != nil {
		return fmt.Errorf("computer move %v: %w", a, err)
	}
	return nil
}

// broadcast fans out a snapshot; slow subscribers are closed and dropped.
func (s *Service) broadcast(id string, cp GameState, subs map[*subscriber]struct{}) {
	var toDrop []*subscriber
	for sub := range subs {
		select {
		case sub.ch <- cp:
		default:
			sub.close()
			toDrop = append(toDrop, sub)
		}
	}
	if len(toDrop) == 0 {
		return
	}
	log.Warn().Str("game", id).Int("dropped", len(toDrop)).Msg("dropping slow subscribers")
	s.mu.Lock()
	for _, sub := range toDrop {
		if set, ok := s.subs[id]; ok {
			delete(set, sub)
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a subscriber for an existing game. Returns a channel
// and an unsubscribe func, or ErrNotFound.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan GameState, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, nil, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan GameState, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}

func (s *Service) copySubsLocked(id string) map[*subscriber]struct{} {
	out := make(map[*subscriber]struct{})
	if set, ok := s.subs[id]; ok {
		for k := range set {
			out[k] = struct{}{}
		}
	}
	return out
}
