package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/simbridge/internal/model"
)

// DefaultRefreshInterval bounds how often the mode flags are re-read.
const DefaultRefreshInterval = time.Second

// Querier performs blocking reads of simulator telemetry.
type Querier interface {
	Query(ctx context.Context, v model.Var) (float64, error)
}

// Snapshot caches the simulator-derived mode flags.
//
// The simulator's query interface is expensive, so the cache is refreshed at
// most once per interval; reads in between return the last cached values.
// Staleness of up to one interval is accepted.
//
// Snapshot is owned by the Dispatcher goroutine and is its only writer of
// Flags. It is not safe for concurrent use.
type Snapshot struct {
	querier  Querier
	interval time.Duration
	gate     *rate.Limiter

	flags     model.Flags
	refreshed time.Time // last successful refresh
	batches   int       // query batches attempted
}

// NewSnapshot creates a snapshot reading through q. A non-positive interval
// selects DefaultRefreshInterval. The first MaybeRefresh is always due.
func NewSnapshot(q Querier, interval time.Duration) *Snapshot {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Snapshot{
		querier:  q,
		interval: interval,
		gate:     rate.NewLimiter(rate.Every(interval), 1),
	}
}

// MaybeRefresh re-reads every tracked flag if at least one interval has passed
// since the previous batch; otherwise it does nothing.
//
// The cache is replaced only when all reads succeed. On failure the previous
// flags are kept and a SNAPSHOT_READ_FAILED error is returned; the failed
// batch still counts against the interval.
func (s *Snapshot) MaybeRefresh(ctx context.Context, now time.Time) (bool, error) {
	if !s.gate.AllowN(now, 1) {
		return false, nil
	}
	s.batches++

	var next model.Flags
	for _, v := range model.FlagVars {
		value, err := s.querier.Query(ctx, v)
		if err != nil {
			return false, NewSnapshotError(v, err)
		}
		next.Set(v, value)
	}

	s.flags = next
	s.refreshed = now
	return true, nil
}

// Flags returns the cached mode flags.
func (s *Snapshot) Flags() model.Flags {
	return s.flags
}

// Interval returns the minimum time between query batches.
func (s *Snapshot) Interval() time.Duration {
	return s.interval
}

// LastRefresh returns when the cache was last replaced (zero if never).
func (s *Snapshot) LastRefresh() time.Time {
	return s.refreshed
}

// Batches returns how many query batches have been attempted.
func (s *Snapshot) Batches() int {
	return s.batches
}
