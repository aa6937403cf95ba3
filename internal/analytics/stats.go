package analytics

import (
	"sync"
	"time"
)

const statsWindow = 24 * time.Hour

// ProcessingSnapshot reports document processing times in seconds.
type ProcessingSnapshot struct {
	FilesProcessed        int64      `json:"files_processed"`
	MinProcessingTime     *float64   `json:"min_processing_time"`
	MaxProcessingTime     float64    `json:"max_processing_time"`
	AverageProcessingTime float64    `json:"average_processing_time"`
	LastProcessingTime    float64    `json:"last_processing_time"`
	TotalProcessingTime   float64    `json:"total_processing_time"`
	LatestProcessedAt     *time.Time `json:"latest_file_processed_timestamp"`
	FilesProcessedLast24h int        `json:"files_processed_last_24h"`
}

// ProcessingStats accumulates per-upload processing times for the life of
// the process.
type ProcessingStats struct {
	mu      sync.Mutex
	count   int64
	min     time.Duration
	max     time.Duration
	last    time.Duration
	total   time.Duration
	latest  time.Time
	history []time.Time
	now     func() time.Time
}

func NewProcessingStats() *ProcessingStats {
	return &ProcessingStats{now: time.Now}
}

// Record adds one processed file that took d.
func (s *ProcessingStats) Record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.last = d
	s.total += d
	s.latest = now
	s.history = append(s.pruneLocked(now), now)
}

func (s *ProcessingStats) Snapshot() ProcessingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.history = s.pruneLocked(now)

	snap := ProcessingSnapshot{
		FilesProcessed:        s.count,
		MaxProcessingTime:     s.max.Seconds(),
		LastProcessingTime:    s.last.Seconds(),
		TotalProcessingTime:   s.total.Seconds(),
		FilesProcessedLast24h: len(s.history),
	}
	if s.count > 0 {
		minSeconds := s.min.Seconds()
		latest := s.latest.UTC()
		snap.MinProcessingTime = &minSeconds
		snap.LatestProcessedAt = &latest
		snap.AverageProcessingTime = s.total.Seconds() / float64(s.count)
	}
	return snap
}

// pruneLocked drops history entries older than the window. History is in
// record order, so the cut is a prefix.
func (s *ProcessingStats) pruneLocked(now time.Time) []time.Time {
	cutoff := now.Add(-statsWindow)
	i := 0
	for i < len(s.history) && !s.history[i].After(cutoff) {
		i++
	}
	return s.history[i:]
}
