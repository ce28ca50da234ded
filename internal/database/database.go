package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"courtbook/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrNotAvailable is returned when a facility has no free court left
	// for the requested slot.
	ErrNotAvailable = errors.New("no court available for the requested slot")

	// ErrConcurrentModification is returned when a versioned update lost
	// the race against another writer.
	ErrConcurrentModification = errors.New("booking was modified concurrently")

	// ErrAlreadyReported is returned when a booking already carries a
	// no-show strike.
	ErrAlreadyReported = errors.New("booking already has a no-show report")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu               sync.RWMutex
	facilityCache    map[int64]*models.Facility
	sortedFacilities []*models.Facility
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("db_path", path).Msg("database initialized")
	}

	return &DB{
		DB:            db,
		logger:        logger,
		facilityCache: make(map[int64]*models.Facility),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT UNIQUE NOT NULL,
            name TEXT NOT NULL,
            phone TEXT,
            email_verified BOOLEAN NOT NULL DEFAULT 0,
            trust_level INTEGER NOT NULL DEFAULT 0,
            weekly_booking_limit INTEGER NOT NULL DEFAULT 0,
            successful_bookings INTEGER NOT NULL DEFAULT 0,
            booking_ban_until DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            user_name TEXT NOT NULL,
            facility_id INTEGER NOT NULL,
            facility_name TEXT NOT NULL,
            court_name TEXT,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            price REAL NOT NULL DEFAULT 0,
            promotion_id INTEGER NOT NULL DEFAULT 0,
            comment TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS strikes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER UNIQUE NOT NULL,
            user_id INTEGER NOT NULL,
            reporter_id INTEGER NOT NULL,
            reason TEXT,
            expired BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            expired_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS promotions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            facility_id INTEGER NOT NULL,
            code TEXT NOT NULL,
            title TEXT,
            discount_type TEXT NOT NULL,
            discount_value REAL NOT NULL,
            valid_from DATETIME,
            valid_until DATETIME,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS task_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_trust_level ON users(trust_level)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_facility_id ON bookings(facility_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_start_time ON bookings(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_end_time ON bookings(end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_strikes_user_id ON strikes(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_strikes_expired ON strikes(expired)`,

		`CREATE INDEX IF NOT EXISTS idx_promotions_facility_id ON promotions(facility_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_queue_status ON task_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SetFacilities replaces the in-memory facility cache used for
// availability checks and listing.
func (db *DB) SetFacilities(facilities []*models.Facility) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.facilityCache = make(map[int64]*models.Facility, len(facilities))
	for _, f := range facilities {
		db.facilityCache[f.ID] = f
	}
	db.sortedFacilities = facilities
}

// GetFacilities returns the cached facility list in display order.
func (db *DB) GetFacilities() []*models.Facility {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*models.Facility, len(db.sortedFacilities))
	copy(out, db.sortedFacilities)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder == out[j].SortOrder {
			return out[i].ID < out[j].ID
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

func (db *DB) facilityByID(id int64) (*models.Facility, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	f, ok := db.facilityCache[id]
	return f, ok
}

func (db *DB) facilityByName(name string) (*models.Facility, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, f := range db.facilityCache {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (db *DB) Close() error {
	return db.DB.Close()
}
