package minimax

import (
	"fmt"
	"sync"
	"time"

	"github.com/jaminalder/minimax-tic-tac-toe/internal/domain"
	"golang.org/x/exp/rand"
)

// Random plays a uniformly random legal move.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Random seeded with seed, or with the clock when seed is 0.
func NewRandom(seed uint64) *Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Choose implements Chooser.
func (r *Random) Choose(b domain.Board) (domain.Action, error) {
	if out := b.Outcome(); out.Terminal() {
		return domain.Action{}, fmt.Errorf("%w: %v", domain.ErrTerminalState, out)
	}
	actions := b.LegalActions()
	r.mu.Lock()
	i := r.rng.Intn(len(actions))
	r.mu.Unlock()
	return actions[i], nil
}
