package collaborative

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/galleyhq/sommelier/pkg/models"
)

// BuildUserProfiles aggregates ratings into per-user profiles. Pure
// aggregation, independent of similarity computation.
func BuildUserProfiles(ratings []models.Rating) map[string]*models.UserProfile {
	profiles := make(map[string]*models.UserProfile)
	for _, r := range ratings {
		p, ok := profiles[r.UserID]
		if !ok {
			p = &models.UserProfile{
				UserID:     r.UserID,
				RatedWines: make(map[string]bool),
			}
			profiles[r.UserID] = p
		}
		p.Ratings = append(p.Ratings, r)
		p.RatedWines[r.WineID] = true
	}
	for _, p := range profiles {
		p.AvgRating = averageRating(p.Ratings)
	}
	return profiles
}

// BuildItemProfiles aggregates ratings into per-wine profiles, including the
// popularity score used by the cold-start recommender.
func BuildItemProfiles(ratings []models.Rating) map[string]*models.ItemProfile {
	profiles := make(map[string]*models.ItemProfile)
	for _, r := range ratings {
		p, ok := profiles[r.WineID]
		if !ok {
			p = &models.ItemProfile{WineID: r.WineID}
			profiles[r.WineID] = p
		}
		p.Ratings = append(p.Ratings, r)
	}
	for _, p := range profiles {
		p.AvgRating = averageRating(p.Ratings)
		p.Popularity = popularityScore(len(p.Ratings), p.AvgRating)
	}
	return profiles
}

// popularityScore combines rating volume and average rating. The log term
// dampens volume so a heavily rated mediocre wine does not drown out a
// well-rated niche one.
func popularityScore(count int, avg float64) float64 {
	if count == 0 {
		return 0
	}
	return avg * math.Log10(1+float64(count))
}

func averageRating(ratings []models.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	values := make([]float64, len(ratings))
	for i, r := range ratings {
		values[i] = r.Rating
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return mean
}

// globalAverage is the mean over every rating in the set, the last-resort
// prediction fallback.
func globalAverage(ratings []models.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r.Rating
	}
	return sum / float64(len(ratings))
}
