package models

import "time"

// Session is one marks-record editing session: metadata plus its score matrix.
// The session store owns the only live reference; callers receive clones.
type Session struct {
	ID        string
	Metadata  Metadata
	Matrix    *ScoreMatrix
	CreatedAt time.Time
	UpdatedAt time.Time

	// LastAccessed is refreshed by every read and write; idle eviction uses it.
	LastAccessed time.Time
}

// LastActivity returns the later of the last write and the last read.
func (s *Session) LastActivity() time.Time {
	if s.LastAccessed.After(s.UpdatedAt) {
		return s.LastAccessed
	}
	return s.UpdatedAt
}

// Clone deep-copies the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Matrix != nil {
		clone.Matrix = s.Matrix.Clone()
	}
	return &clone
}

// SystemMetrics represents instrumentation aggregates exposed on /metrics/summary.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ExportsRendered          uint64    `json:"exports_rendered"`
	AverageRenderDurationMs  float64   `json:"average_render_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
