package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// DefaultMaxSamples bounds the number of samples retained per series.
const DefaultMaxSamples = 1024

// SeriesKey identifies one sample series.
type SeriesKey struct {
	Source string `json:"source"`
	Entity string `json:"entity"`
}

type series struct {
	samples   []types.MetricSample
	updatedAt time.Time
}

// Entry is a job snapshot together with the time it was last received.
type Entry struct {
	Job       types.JobMetrics
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory sample and job-snapshot store. Sample
// series are keyed by (source, entity); job snapshots by job ID. A background
// goroutine (Run) periodically evicts series and snapshots that have not been
// updated within the configured TTL.
type Store struct {
	mu         sync.RWMutex
	series     map[SeriesKey]*series
	jobs       map[string]*Entry
	ttl        time.Duration
	maxSamples int
	now        func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		series:     make(map[SeriesKey]*series),
		jobs:       make(map[string]*Entry),
		ttl:        ttl,
		maxSamples: DefaultMaxSamples,
		now:        time.Now,
	}
}

// Append records one sample at the end of its (source, entity) series,
// trimming the oldest samples past the retention cap.
func (s *Store) Append(sample types.MetricSample) {
	key := SeriesKey{Source: sample.Source, Entity: sample.Entity}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[key]
	if !ok {
		sr = &series{}
		s.series[key] = sr
	}
	sr.samples = append(sr.samples, sample)
	if len(sr.samples) > s.maxSamples {
		sr.samples = sr.samples[len(sr.samples)-s.maxSamples:]
	}
	sr.updatedAt = s.now()
}

// Series returns a copy of the samples for one (source, entity) series,
// sorted by timestamp, and whether the series exists.
func (s *Store) Series(source, entity string) ([]types.MetricSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[SeriesKey{Source: source, Entity: entity}]
	if !ok {
		return nil, false
	}
	out := make([]types.MetricSample, len(sr.samples))
	copy(out, sr.samples)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, true
}

// Keys returns the keys of all series whose last update is within the TTL.
// Stale series that have not yet been evicted are excluded.
func (s *Store) Keys() []SeriesKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]SeriesKey, 0, len(s.series))
	for key, sr := range s.series {
		if sr.updatedAt.After(cutoff) {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Entity < out[j].Entity
	})
	return out
}

// PutJob stores or replaces the snapshot for job.JobID.
func (s *Store) PutJob(job types.JobMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = &Entry{Job: job, UpdatedAt: s.now()}
}

// Jobs returns all job snapshots whose last update is within the TTL.
func (s *Store) Jobs() []types.JobMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]types.JobMetrics, 0, len(s.jobs))
	for _, e := range s.jobs {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e.Job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// Count returns the total number of series and job snapshots currently held,
// including stale ones.
func (s *Store) Count() (seriesN, jobsN int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series), len(s.jobs)
}

// Evict removes series and job snapshots older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for key, sr := range s.series {
		if !sr.updatedAt.After(cutoff) {
			delete(s.series, key)
			removed++
		}
	}
	for id, e := range s.jobs {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second) so entries are evicted promptly. Run blocks
// until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale entries", "count", n)
			}
		}
	}
}
