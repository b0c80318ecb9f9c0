// Package winestore persists the wine catalog, the rating history, and
// trained model snapshots. The SQLite implementation is the production store;
// the interface exists so tests and embedders can swap in their own.
package winestore

import "github.com/galleyhq/sommelier/pkg/models"

// Store is the persistence contract for the recommendation engine. It also
// satisfies the catalog and rating-source interfaces the engines consume.
type Store interface {
	// Catalog access.
	SaveWine(wine *models.Wine) error
	GetWine(id string) (*models.Wine, bool)
	ListWines() ([]*models.Wine, error)
	DeleteWine(id string) error

	// Rating history. AddRating appends; ratings are never mutated in place.
	AddRating(rating models.Rating) error
	ListRatings() ([]models.Rating, error)
	ListUserRatings(userID string) ([]models.Rating, error)

	// Model snapshots, keyed by name and version.
	SaveModel(model *models.Model) error
	GetLatestModel(name string) (*models.Model, error)
	ListModelVersions(name string) ([]*models.Model, error)

	Close() error
}
