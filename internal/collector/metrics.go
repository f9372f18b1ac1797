package collector

import (
	"time"
)

// RunStats summarizes one collector run.
type RunStats struct {
	AssetsCompleted  int
	PointsCollected  int64
	MetricsCollected int64
	Requests         int64
	FailedRequests   int64
	StartedAt        time.Time
	Duration         time.Duration
}

// newRunStats starts the clock for a run
func newRunStats() *RunStats {
	return &RunStats{StartedAt: time.Now()}
}

// recordRequest counts one API call and whether it failed
func (s *RunStats) recordRequest(err error) {
	s.Requests++
	if err != nil {
		s.FailedRequests++
	}
}

// recordAsset records an asset merged into both tables
func (s *RunStats) recordAsset(points, metrics int) {
	s.AssetsCompleted++
	s.PointsCollected += int64(points)
	s.MetricsCollected += int64(metrics)
}

// finish stamps the run duration
func (s *RunStats) finish() {
	s.Duration = time.Since(s.StartedAt)
}
