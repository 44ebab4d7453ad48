package model

import "github.com/paulmach/orb"

// Coordinate is one search origin loaded from a region's coordinate file.
type Coordinate struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Zoom       int     `json:"zoom"`
	Region     string  `json:"region"`
	SourceLine string  `json:"source_line"`
	// Row is the 1-based data row in the original input file. It identifies
	// the coordinate in the resume store, so identical lines never collide.
	Row int `json:"row"`
}

// Point returns the coordinate as an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// PaginationState tracks one coordinate × query pagination run.
type PaginationState struct {
	Page                          int `json:"page"`
	DuplicateCount                int `json:"duplicate_count"`
	ConsecutiveFullDuplicatePages int `json:"consecutive_full_duplicate_pages"`
}

// NewPaginationState returns the state for the first page.
func NewPaginationState() PaginationState {
	return PaginationState{Page: 1}
}
