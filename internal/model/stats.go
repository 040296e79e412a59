package model

import "time"

// RunStats aggregates the outcome of one harvest run for the exporter.
type RunStats struct {
	TotalEntries      int                  `json:"total_entries"`
	TechTypes         map[TechType]int     `json:"tech_types"`
	Rejections        map[RejectReason]int `json:"rejections"`
	CategoriesVisited int                  `json:"categories_visited"`
	PagesVisited      int                  `json:"pages_visited"`
	FailedFetches     int                  `json:"failed_fetches"`
	AvgContentLength  float64              `json:"avg_content_length"`
	StartedAt         time.Time            `json:"started_at"`
	FinishedAt        time.Time            `json:"finished_at"`
}

// ComputeAverages fills derived fields from the given entries.
func (s *RunStats) ComputeAverages(entries []DatasetEntry) {
	s.TotalEntries = len(entries)
	if s.TechTypes == nil {
		s.TechTypes = make(map[TechType]int)
	}
	var total int
	for _, e := range entries {
		s.TechTypes[e.TechType]++
		total += e.ContentLength
	}
	if len(entries) > 0 {
		s.AvgContentLength = float64(total) / float64(len(entries))
	}
}
