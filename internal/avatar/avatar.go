// Package avatar hands out small integer tokens used to tell jobs apart on
// screen.
package avatar

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// DefaultPoolSize is the number of distinct avatars the display ships with.
const DefaultPoolSize = 25

// ErrPoolExhausted is returned when every avatar is in use by a visible job.
// It needs operator attention: reusing an avatar would make two visible jobs
// indistinguishable.
var ErrPoolExhausted = errors.New("avatar pool exhausted: too many visible simulations")

// Allocator picks a free avatar uniformly at random. There is no explicit
// release; callers pass the avatars currently in use on every call.
type Allocator struct {
	size int

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Allocator over the pool [1, size]. The random source is
// injected so tests can make the choice deterministic.
func New(size int, src rand.Source) *Allocator {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Allocator{size: size, rng: rand.New(src)}
}

// Size returns the pool size.
func (a *Allocator) Size() int {
	return a.size
}

// Available returns the free avatars in ascending order.
func (a *Allocator) Available(inUse []int) []int {
	used := make(map[int]struct{}, len(inUse))
	for _, id := range inUse {
		used[id] = struct{}{}
	}

	free := make([]int, 0, a.size)
	for id := 1; id <= a.size; id++ {
		if _, ok := used[id]; !ok {
			free = append(free, id)
		}
	}
	return free
}

// Allocate returns a random avatar not present in inUse.
func (a *Allocator) Allocate(inUse []int) (int, error) {
	free := a.Available(inUse)
	if len(free) == 0 {
		return 0, ErrPoolExhausted
	}

	a.mu.Lock()
	i := a.rng.IntN(len(free))
	a.mu.Unlock()

	return free[i], nil
}
