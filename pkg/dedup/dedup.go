package dedup

import (
	"sync"
	"time"
)

// Deduper remembers message ids for a TTL so QoS1 redeliveries can be
// dropped before they are processed twice.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time, max), now: time.Now}
}

// ShouldProcess reports whether id is new within the TTL window and records
// it. An empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)

	if len(d.seen) > d.max {
		// Expired entries go first; if that is not enough the oldest
		// guarantee we can cheaply give up is an arbitrary one.
		for k, exp := range d.seen {
			if k == id {
				continue
			}
			if now.After(exp) {
				delete(d.seen, k)
				if len(d.seen) <= d.max {
					return true
				}
			}
		}
		for k := range d.seen {
			if k == id {
				continue
			}
			delete(d.seen, k)
			if len(d.seen) <= d.max {
				break
			}
		}
	}
	return true
}

// Len reports the number of remembered ids.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
