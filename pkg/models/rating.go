package models

import (
	"fmt"
	"time"
)

// Rating bounds. Every predicted rating produced by the engines is clamped
// to this range as well.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// Rating represents a single user rating of a wine. Ratings are immutable
// once recorded; new ratings are appended, never edited in place.
type Rating struct {
	UserID    string    `json:"user_id"`
	WineID    string    `json:"wine_id"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks that the rating refers to a user and wine and that the
// value is inside the allowed scale.
func (r *Rating) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.WineID == "" {
		return fmt.Errorf("wine_id is required")
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("rating must be between %.0f and %.0f, got %.2f", MinRating, MaxRating, r.Rating)
	}
	return nil
}

// ClampRating forces a predicted rating into the valid rating scale.
func ClampRating(v float64) float64 {
	if v < MinRating {
		return MinRating
	}
	if v > MaxRating {
		return MaxRating
	}
	return v
}

// ClampUnit forces a similarity or confidence value into [0,1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
