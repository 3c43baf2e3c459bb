package domain

import "time"

// Catalog is a batch of collections with their stories, as read from an
// import file.
type Catalog struct {
	Collections []CatalogCollection `yaml:"collections"`
}

type CatalogCollection struct {
	NewCollection `yaml:",inline"`
	Stories       []NewStory `yaml:"stories"`
}

// ImportStats holds statistics about a catalog import.
type ImportStats struct {
	Collections int
	Stories     int
	Duration    time.Duration
}
