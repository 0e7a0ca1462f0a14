// Package hotness scores cache keys by recent request rate. Scores decay
// exponentially, so heat reflects current demand rather than lifetime totals.
// Operators read the tracked-keys gauge and hot-key logs to decide which
// dashboards deserve a tighter refresh override.
package hotness

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// Tracker holds decayed per-key scores. Keys embed query params, so the key
// space is unbounded and the map is sharded to keep Inc cheap under load.
type Tracker struct {
	halfLife time.Duration

	now func() time.Time // for tests

	shards [shardCount]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

type entry struct {
	score float64
	last  time.Time
}

func New(halfLife time.Duration) *Tracker {
	if halfLife <= 0 {
		halfLife = 10 * time.Minute
	}
	t := &Tracker{halfLife: halfLife, now: time.Now}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*entry)
	}
	return t
}

// Inc decays the key's score to now, then adds one.
func (t *Tracker) Inc(key string) {
	if key == "" {
		return
	}
	s := t.pick(key)
	n := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.m[key]
	if e == nil {
		s.m[key] = &entry{score: 1, last: n}
		return
	}
	dt := n.Sub(e.last).Seconds()
	e.score = decay(e.score, dt, t.halfLife.Seconds()) + 1
	e.last = n
}

// Score returns the key's decayed score at now without mutating it.
func (t *Tracker) Score(key string) float64 {
	if key == "" {
		return 0
	}
	s := t.pick(key)
	n := t.now()

	s.mu.RLock()
	e := s.m[key]
	if e == nil {
		s.mu.RUnlock()
		return 0
	}
	score, last := e.score, e.last
	s.mu.RUnlock()

	return decay(score, n.Sub(last).Seconds(), t.halfLife.Seconds())
}

// ResetPrefix drops every key under prefix and reports how many were dropped.
// Invalidation calls this so heat restarts from zero for contexts whose cached
// results were just thrown away.
func (t *Tracker) ResetPrefix(prefix string) int {
	if prefix == "" {
		return 0
	}
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k := range s.m {
			if strings.HasPrefix(k, prefix) {
				delete(s.m, k)
				total++
			}
		}
		s.mu.Unlock()
	}
	return total
}

// Size is the number of keys currently carrying a score.
func (t *Tracker) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].m)
		t.shards[i].mu.RUnlock()
	}
	return total
}

func decay(score, dt, halfLife float64) float64 {
	if score == 0 || dt <= 0 || halfLife <= 0 {
		return score
	}
	lambda := math.Ln2 / halfLife
	return score * math.Exp(-lambda*dt)
}

func (t *Tracker) pick(key string) *shard {
	h := xxhash.Sum64String(key)
	return &t.shards[h&(shardCount-1)]
}
