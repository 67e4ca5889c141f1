// Package priority tracks which locations deserve a collection slot: alert
// subscriptions pin a location into the set, search telemetry nudges its
// score, and a small in-memory cache answers ShouldCollect without a
// round trip for every tick.
package priority

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/airwatch-project/airwatch/internal/model"
)

// Per-registration demand boost caps and step.
const (
	searchBoostCap = 1.2
	searchBoostStep = 0.1
	alertBoostCap  = 2.0
)

type locationState struct {
	location       model.Location
	alertUserCount int
	searchCount    int
	userDemandBoost float64
	lastCollected  time.Time
}

// score ranks a location by hard demand signals only: alert subscriber
// count and cumulative search count. userDemandBoost is tracked and
// reported separately (see RegisterSearch/RegisterAlert) but does not
// enter the ranking, since it is derived from the same two counters and
// would double-count their contribution.
func (s locationState) score() float64 {
	return 3.0*float64(s.alertUserCount) + 0.1*float64(s.searchCount)
}

// Tracker is the in-memory read-mostly cache behind the priority
// operations. A durable backend (MySQL-backed alert_locations and
// search_frequency tables) would implement the same public methods; the
// scheduler only depends on this surface.
type Tracker struct {
	mu    sync.RWMutex
	byLoc map[string]*locationState
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{byLoc: make(map[string]*locationState)}
}

func (t *Tracker) getOrCreate(loc model.Location) *locationState {
	id := loc.ID()
	state, ok := t.byLoc[id]
	if !ok {
		state = &locationState{location: loc}
		t.byLoc[id] = state
	}
	return state
}

// RegisterSearch records one search-telemetry hit for a location, bumping
// its reported demand boost up to +1.2. The boost is exposed on
// PriorityEntry for observability; it does not affect priority score,
// which already counts the search via searchCount.
func (t *Tracker) RegisterSearch(ctx context.Context, loc model.Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.getOrCreate(loc)
	state.searchCount++
	if state.userDemandBoost+searchBoostStep <= searchBoostCap {
		state.userDemandBoost += searchBoostStep
	} else {
		state.userDemandBoost = searchBoostCap
	}
	return nil
}

// RegisterAlert pins a location into the collection set by adding (or
// confirming) one alert subscriber, bumping its reported demand boost up
// to +2.0. The boost is exposed on PriorityEntry for observability; it
// does not affect priority score, which already counts the subscriber
// via alertUserCount.
func (t *Tracker) RegisterAlert(ctx context.Context, loc model.Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.getOrCreate(loc)
	state.alertUserCount++
	if state.userDemandBoost < alertBoostCap {
		state.userDemandBoost = alertBoostCap
	}
	return nil
}

// PriorityLocations returns up to limit entries ordered by score
// descending, ties broken by alert count then location id for
// determinism.
func (t *Tracker) PriorityLocations(ctx context.Context, limit int) ([]model.PriorityEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]model.PriorityEntry, 0, len(t.byLoc))
	for id, state := range t.byLoc {
		entries = append(entries, model.PriorityEntry{
			LocationID:      id,
			City:            state.location.Name,
			Latitude:        state.location.Latitude,
			Longitude:       state.location.Longitude,
			PriorityScore:   state.score(),
			LastCollected:   state.lastCollected,
			AlertUserCount:  state.alertUserCount,
			SearchCount:     state.searchCount,
			UserDemandBoost: state.userDemandBoost,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PriorityScore != entries[j].PriorityScore {
			return entries[i].PriorityScore > entries[j].PriorityScore
		}
		if entries[i].AlertUserCount != entries[j].AlertUserCount {
			return entries[i].AlertUserCount > entries[j].AlertUserCount
		}
		return entries[i].LocationID < entries[j].LocationID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ShouldCollect reports whether location is due for collection: alert
// subscribers shrink the required interval to 1h/(1+alertUserCount);
// absent alerts, three or more cumulative searches earn a flat 1h
// interval; otherwise the location is not due.
func (t *Tracker) ShouldCollect(ctx context.Context, locationID string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.byLoc[locationID]
	if !ok {
		return false
	}

	if state.alertUserCount > 0 {
		interval := time.Hour / time.Duration(1+state.alertUserCount)
		return now.Sub(state.lastCollected) >= interval
	}
	if state.searchCount >= 3 {
		return now.Sub(state.lastCollected) >= time.Hour
	}
	return false
}

// MarkCollected records the collection timestamp for a location.
func (t *Tracker) MarkCollected(ctx context.Context, locationID string, collectedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.byLoc[locationID]; ok {
		state.lastCollected = collectedAt
	}
	return nil
}

// FindNearest returns the closest pinned or searched location within
// radiusKM of (lat, lon), using a bounding-box pre-filter before the
// exact Haversine refinement. ok is false if nothing qualifies.
func (t *Tracker) FindNearest(ctx context.Context, lat, lon, radiusKM float64) (model.Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// ~1 degree of latitude is 111km; use a generous box so the
	// refinement step, not the box, decides the final radius.
	degreeBox := radiusKM/111.0 + 0.01

	var (
		best    model.Location
		bestKM  = radiusKM
		found   bool
	)
	for _, state := range t.byLoc {
		loc := state.location
		if absFloat(loc.Latitude-lat) > degreeBox || absFloat(loc.Longitude-lon) > degreeBox {
			continue
		}
		d := model.HaversineKM(lat, lon, loc.Latitude, loc.Longitude)
		if d <= radiusKM && (!found || d < bestKM) {
			best = loc
			bestKM = d
			found = true
		}
	}
	return best, found
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
