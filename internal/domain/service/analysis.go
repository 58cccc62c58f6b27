package service

import "comove/internal/domain/models"

// Smoother denoises a series without changing its length or timestamps.
type Smoother interface {
	Smooth(s models.Series) (models.Series, error)
}

// Aligner scores how well two pre-aligned value sequences track each other.
type Aligner interface {
	Cost(a, b []float64) (float64, error)
}

// Correlator computes a single correlation coefficient for a pre-aligned pair.
type Correlator interface {
	Correlate(a, b []float64) (float64, error)
}
