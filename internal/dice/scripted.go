package dice

import (
	"sync"
	"time"
)

// Scripted replays a fixed sequence of die results and delegates everything
// else to a seeded Rand. Once the script runs out the last value repeats, which
// makes "every roll ties" trivial to express.
type Scripted struct {
	mu    sync.Mutex
	rolls []int
	next  int
	*Rand
}

func NewScripted(seed int64, rolls ...int) *Scripted {
	return &Scripted{rolls: rolls, Rand: NewRoller(seed)}
}

func (s *Scripted) RollDie(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rolls) == 0 {
		return s.Rand.RollDie(sides)
	}
	i := s.next
	if i >= len(s.rolls) {
		i = len(s.rolls) - 1
	} else {
		s.next++
	}
	return s.rolls[i]
}

// Rolled reports how many scripted values were consumed.
func (s *Scripted) Rolled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// ManualClock only advances when told to.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []manualWaiter
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, manualWaiter{at: at, ch: ch})
	return ch
}

// Advance moves time forward and fires every waiter that is due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

// Pending reports the number of armed waiters.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
