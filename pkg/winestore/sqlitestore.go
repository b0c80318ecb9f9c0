package winestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/galleyhq/sommelier/pkg/models"
)

// SQLiteStore provides SQLite-based persistence for wines, ratings, and
// trained model snapshots.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// the schema. Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway, keep the pool small.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries an operation that failed with SQLITE_BUSY. This is a
// safety net on top of the busy_timeout pragma.
func (s *SQLiteStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if err.Error() == "database is locked (5) (SQLITE_BUSY)" {
			backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
			time.Sleep(backoff)
			continue
		}
		return err
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wines (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		region TEXT,
		price REAL NOT NULL,
		stock_quantity INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wines_type ON wines(type);

	CREATE TABLE IF NOT EXISTS ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		wine_id TEXT NOT NULL,
		rating REAL NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ratings_user_id ON ratings(user_id);
	CREATE INDEX IF NOT EXISTS idx_ratings_wine_id ON ratings(wine_id);

	CREATE TABLE IF NOT EXISTS model_snapshots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		data TEXT NOT NULL,
		UNIQUE(name, version)
	);

	CREATE INDEX IF NOT EXISTS idx_model_snapshots_name ON model_snapshots(name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveWine inserts or replaces a catalog entry.
func (s *SQLiteStore) SaveWine(wine *models.Wine) error {
	if wine == nil || wine.ID == "" {
		return fmt.Errorf("wine id is required")
	}
	data, err := json.Marshal(wine)
	if err != nil {
		return fmt.Errorf("failed to marshal wine: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO wines (id, type, region, price, stock_quantity, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(query, wine.ID, wine.Type, wine.Region, wine.Price, wine.StockQuantity, string(data))
		if err != nil {
			return fmt.Errorf("failed to save wine: %w", err)
		}
		return nil
	}, 5)
}

// GetWine retrieves a wine by ID. The boolean form matches what the
// recommendation engines expect from a catalog lookup.
func (s *SQLiteStore) GetWine(id string) (*models.Wine, bool) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM wines WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, false
	}
	var wine models.Wine
	if err := json.Unmarshal([]byte(data), &wine); err != nil {
		return nil, false
	}
	return &wine, true
}

// ListWines lists the full catalog.
func (s *SQLiteStore) ListWines() ([]*models.Wine, error) {
	rows, err := s.db.Query(`SELECT data FROM wines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wines: %w", err)
	}
	defer rows.Close()

	wines := make([]*models.Wine, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var wine models.Wine
		if err := json.Unmarshal([]byte(data), &wine); err != nil {
			continue
		}
		wines = append(wines, &wine)
	}
	return wines, rows.Err()
}

// DeleteWine removes a catalog entry. Historical ratings for the wine are
// kept; the engines simply stop recommending it.
func (s *SQLiteStore) DeleteWine(id string) error {
	_, err := s.db.Exec(`DELETE FROM wines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wine: %w", err)
	}
	return nil
}

// AddRating appends one rating to the history after validation.
func (s *SQLiteStore) AddRating(rating models.Rating) error {
	if err := rating.Validate(); err != nil {
		return fmt.Errorf("invalid rating: %w", err)
	}
	ts := rating.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	query := `INSERT INTO ratings (user_id, wine_id, rating, created_at) VALUES (?, ?, ?, ?)`
	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(query, rating.UserID, rating.WineID, rating.Rating, ts)
		if err != nil {
			return fmt.Errorf("failed to save rating: %w", err)
		}
		return nil
	}, 5)
}

// ListRatings returns the full rating history in insertion order.
func (s *SQLiteStore) ListRatings() ([]models.Rating, error) {
	return s.queryRatings(`SELECT user_id, wine_id, rating, created_at FROM ratings ORDER BY id`)
}

// ListUserRatings returns one user's rating history in insertion order.
func (s *SQLiteStore) ListUserRatings(userID string) ([]models.Rating, error) {
	return s.queryRatings(`SELECT user_id, wine_id, rating, created_at FROM ratings WHERE user_id = ? ORDER BY id`, userID)
}

func (s *SQLiteStore) queryRatings(query string, args ...interface{}) ([]models.Rating, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]models.Rating, 0)
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.UserID, &r.WineID, &r.Rating, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// SaveModel persists a trained model snapshot as JSON.
func (s *SQLiteStore) SaveModel(model *models.Model) error {
	if model == nil || model.ID == "" {
		return fmt.Errorf("model id is required")
	}
	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO model_snapshots (id, name, version, type, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(query, model.ID, model.Name, model.Version, string(model.Type), string(model.Status), model.CreatedAt, string(data))
		if err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		return nil
	}, 5)
}

// GetLatestModel returns the highest version saved under a name.
func (s *SQLiteStore) GetLatestModel(name string) (*models.Model, error) {
	var data string
	query := `SELECT data FROM model_snapshots WHERE name = ? ORDER BY version DESC LIMIT 1`
	err := s.db.QueryRow(query, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	var model models.Model
	if err := json.Unmarshal([]byte(data), &model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	return &model, nil
}

// ListModelVersions returns every saved version of a model, oldest first.
func (s *SQLiteStore) ListModelVersions(name string) ([]*models.Model, error) {
	rows, err := s.db.Query(`SELECT data FROM model_snapshots WHERE name = ? ORDER BY version`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.Model, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var model models.Model
		if err := json.Unmarshal([]byte(data), &model); err != nil {
			continue
		}
		versions = append(versions, &model)
	}
	return versions, rows.Err()
}

// compile-time interface check
var _ Store = (*SQLiteStore)(nil)
