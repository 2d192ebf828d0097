package cannelloni

import (
	"slices"
	"sync"

	"github.com/squadracorsepolito/acmesig/subscription"
)

// filter mimics a BCM receive filter: changes are throttled by rate and a
// timeout is raised once when nothing is received within the watchdog.
// The first frame after a timeout is always delivered.
type filter struct {
	rate     uint64
	watchdog uint64

	lastEmit uint64
	lastSeen uint64
	timedOut bool
}

type filterSet struct {
	mux     sync.Mutex
	filters map[uint32]*filter
}

func newFilterSet() *filterSet {
	return &filterSet{
		filters: make(map[uint32]*filter),
	}
}

// install sets the filter of canID, rate and watchdog are in milliseconds.
func (fs *filterSet) install(canID uint32, rate, watchdog, now uint64) {
	fs.mux.Lock()
	defer fs.mux.Unlock()

	fs.filters[canID] = &filter{
		rate:     rate * subscription.RateUnit,
		watchdog: watchdog * subscription.RateUnit,
		lastSeen: now,
	}
}

func (fs *filterSet) remove(canID uint32) {
	fs.mux.Lock()
	defer fs.mux.Unlock()

	delete(fs.filters, canID)
}

func (fs *filterSet) ids() []uint32 {
	fs.mux.Lock()
	defer fs.mux.Unlock()

	ids := make([]uint32, 0, len(fs.filters))
	for id := range fs.filters {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// accept reports whether a frame of canID received at now has to be delivered.
func (fs *filterSet) accept(canID uint32, now uint64) bool {
	fs.mux.Lock()
	defer fs.mux.Unlock()

	f, ok := fs.filters[canID]
	if !ok {
		return false
	}

	f.lastSeen = now

	if f.timedOut {
		f.timedOut = false
		f.lastEmit = now
		return true
	}

	if f.lastEmit != 0 && f.rate > 0 && now-f.lastEmit < f.rate {
		return false
	}

	f.lastEmit = now
	return true
}

// expired returns the ids whose watchdog elapsed since the last reception.
func (fs *filterSet) expired(now uint64) []uint32 {
	fs.mux.Lock()
	defer fs.mux.Unlock()

	ids := []uint32{}
	for id, f := range fs.filters {
		if f.watchdog == 0 || f.timedOut || now < f.lastSeen {
			continue
		}

		if now-f.lastSeen > f.watchdog {
			f.timedOut = true
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids
}
