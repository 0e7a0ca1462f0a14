package kafka

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// tsDedupe drops redelivered events: a target is applied only when its event
// timestamp is newer than the last one applied for it. Applied state is
// recorded separately from the check so a failed apply stays retryable.
type tsDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newTSDedupe(size int) *tsDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &tsDedupe{lru: c}
}

// seen reports whether an event at ts (or newer) was already applied for key.
func (d *tsDedupe) seen(key string, ts time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && ts.UnixNano() <= last
}

// mark records a successful apply for key at ts.
func (d *tsDedupe) mark(key string, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Add(key, ts.UnixNano())
}
