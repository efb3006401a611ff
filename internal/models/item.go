package models

import "time"

// CandidateItem is the normalized record produced by one pipeline run. Its
// JSON form is the value stored in a persona snapshot.
type CandidateItem struct {
	OriginalID     string     `json:"original_id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Summary        string     `json:"summary"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
	Author         string     `json:"author"`
	Metrics        Metrics    `json:"metrics"`
	Labels         []string   `json:"labels"`
	PublishedAt    *time.Time `json:"published_at"`
	SourceConfigID int64      `json:"source_config_id"`
	Platform       string     `json:"platform,omitempty"`
	Origin         string     `json:"origin,omitempty"`
	SourceName     string     `json:"source_name,omitempty"`
	Status         string     `json:"status,omitempty"`
}

// ItemDetail is the supplemental data returned by a platform detail lookup.
type ItemDetail struct {
	Title   string
	Summary string
	Metrics Metrics
	Tags    []string
}

// Metric keys shared by adapters.
const (
	MetricViews    = "views"
	MetricLikes    = "likes"
	MetricComments = "comments"
	MetricCoins    = "coins"
	MetricStars    = "stars"
)

// Metrics is an open map of engagement counters.
type Metrics map[string]int64

// Views returns the view counter, 0 when absent.
func (m Metrics) Views() int64 {
	if m == nil {
		return 0
	}
	return m[MetricViews]
}

// Merge copies every counter from other into m and returns the result.
// A nil receiver yields a fresh map.
func (m Metrics) Merge(other Metrics) Metrics {
	if m == nil {
		m = make(Metrics, len(other))
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Clone returns an independent copy.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
