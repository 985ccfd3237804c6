package cache

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/smartetl/annotator/internal/enrich"
	"github.com/smartetl/annotator/internal/log"
	"go.uber.org/zap"
)

// SQLite is a durable Store so cached results survive process restarts.
// Results round-trip through JSON exactly.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	ddl := `
	CREATE TABLE IF NOT EXISTS llm_cache (
		cache_key TEXT PRIMARY KEY,
		result TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(ddl); err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Get looks up a key. Backend errors are logged and reported as a miss:
// a cache lookup never fails, it only declines to answer.
func (s *SQLite) Get(key string) (enrich.Result, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT result FROM llm_cache WHERE cache_key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return enrich.Result{}, false
	}
	if err != nil {
		log.Warn("cache lookup failed, treating as miss", zap.Error(err))
		return enrich.Result{}, false
	}
	var result enrich.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		log.Warn("cache entry does not round-trip, treating as miss", zap.Error(err))
		return enrich.Result{}, false
	}
	return result, true
}

func (s *SQLite) Put(key string, result enrich.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	// Wholesale replace: entries are immutable, overwrite swaps the row.
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO llm_cache (cache_key, result, created_at) VALUES (?, ?, ?)`,
		key, string(raw), time.Now().UTC(),
	)
	return err
}
