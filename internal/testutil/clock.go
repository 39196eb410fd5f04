package testutil

import (
	"fmt"
	"sync"
	"time"
)

// SyncTime is the instant every test clock starts at. Commit messages and
// history rows written by tests carry it.
var SyncTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// Clock is a gcalvault.Clock that only moves when told to.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock standing at SyncTime.
func NewClock() *Clock {
	return &Clock{now: SyncTime}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// RunIDs hands out predictable run identifiers: "run-1", "run-2", ...
type RunIDs struct {
	mu sync.Mutex
	n  int
}

func NewRunIDs() *RunIDs {
	return &RunIDs{}
}

func (g *RunIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}

// Issued returns how many identifiers have been handed out.
func (g *RunIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
