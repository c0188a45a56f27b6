package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/raine/listing-studio/internal/listing"
)

// GenerationCache stores generation results keyed by a content hash.
type GenerationCache interface {
	// GetGeneration returns nil, nil when there is no entry for key.
	GetGeneration(key string) (*listing.GenerationResult, error)
	SetGeneration(key string, result *listing.GenerationResult) error
}

// GenerationLogEntry records one model call.
type GenerationLogEntry struct {
	ID           int64            `json:"id"`
	Platform     listing.Platform `json:"platform"`
	Model        string           `json:"model"`
	InputTokens  int64            `json:"inputTokens"`
	OutputTokens int64            `json:"outputTokens"`
	CostUSD      float64          `json:"costUSD"`
	Cached       bool             `json:"cached"`
	Failed       bool             `json:"failed"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// SQLiteStore implements GenerationCache and the generation log on SQLite.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	cacheTTL time.Duration
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Only the owner needs to read cached listings
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
	}

	return store, nil
}

// WithCacheTTL makes GetGeneration treat entries older than ttl as missing,
// whether or not the janitor has pruned them yet. Zero keeps entries forever.
func (s *SQLiteStore) WithCacheTTL(ttl time.Duration) *SQLiteStore {
	s.cacheTTL = ttl
	return s
}

func (s *SQLiteStore) init() error {
	cacheQuery := `
	CREATE TABLE IF NOT EXISTS generation_cache (
		cache_key TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		result_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(cacheQuery); err != nil {
		return fmt.Errorf("failed to create generation_cache table: %w", err)
	}

	logQuery := `
	CREATE TABLE IF NOT EXISTS generation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(logQuery); err != nil {
		return fmt.Errorf("failed to create generation_log table: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetGeneration retrieves a cached result by key.
// Returns nil, nil if no cache entry exists or it has expired.
func (s *SQLiteStore) GetGeneration(key string) (*listing.GenerationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT result_json FROM generation_cache WHERE cache_key = ?"
	args := []any{key}
	if s.cacheTTL > 0 {
		query += " AND created_at >= ?"
		args = append(args, time.Now().Add(-s.cacheTTL).UTC())
	}

	var resultJSON string
	err := s.db.QueryRow(query, args...).Scan(&resultJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query generation cache: %w", err)
	}

	var result listing.GenerationResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached generation: %w", err)
	}
	return &result, nil
}

// SetGeneration stores a result in the cache, replacing any previous entry.
func (s *SQLiteStore) SetGeneration(key string, result *listing.GenerationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode generation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO generation_cache (cache_key, model, result_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			model = excluded.model,
			result_json = excluded.result_json,
			created_at = excluded.created_at
	`, key, result.ModelName, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cache generation: %w", err)
	}
	return nil
}

// LogGeneration appends a model call to the generation log.
func (s *SQLiteStore) LogGeneration(entry GenerationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO generation_log (platform, model, input_tokens, output_tokens, cost_usd, cached, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(entry.Platform), entry.Model, entry.InputTokens, entry.OutputTokens, entry.CostUSD,
		boolToInt(entry.Cached), boolToInt(entry.Failed), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log generation: %w", err)
	}
	return nil
}

// RecentGenerations returns the newest log entries first.
func (s *SQLiteStore) RecentGenerations(limit int) ([]GenerationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, platform, model, input_tokens, output_tokens, cost_usd, cached, failed, created_at
		FROM generation_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation log: %w", err)
	}
	defer rows.Close()

	var entries []GenerationLogEntry
	for rows.Next() {
		var e GenerationLogEntry
		var platform string
		if err := rows.Scan(&e.ID, &platform, &e.Model, &e.InputTokens, &e.OutputTokens,
			&e.CostUSD, &e.Cached, &e.Failed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation log: %w", err)
		}
		e.Platform = listing.Platform(platform)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneCache removes cached generations older than the given duration.
func (s *SQLiteStore) PruneCache(olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()
	result, err := s.db.Exec(`DELETE FROM generation_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune generation cache: %w", err)
	}
	return result.RowsAffected()
}

// PruneLog removes generation log entries older than the given duration.
func (s *SQLiteStore) PruneLog(olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()
	result, err := s.db.Exec(`DELETE FROM generation_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune generation log: %w", err)
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
