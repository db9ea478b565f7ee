package archive

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/farowl/co2mond/internal/errors"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
)

const createTableSQL = `
    CREATE TABLE IF NOT EXISTS measurements (
        timestamp    INTEGER PRIMARY KEY,
        co2_ppm      INTEGER NOT NULL,
        temperature  REAL NOT NULL,
        humidity     REAL NOT NULL
    )`

// Repository is the storage backend for the archive.
type Repository interface {
	Store(ctx context.Context, m measure.Measurement) error
	HourlyStats(ctx context.Context, since time.Time) ([]HourlyStat, error)
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	if cfg.DBPath == "" {
		return nil, errors.New().New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing archive repository at: %s", cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errors.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(ErrStorageInit, err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{db: db}, nil
}

func (r *sqliteRepository) Store(ctx context.Context, m measure.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO measurements (timestamp, co2_ppm, temperature, humidity)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(timestamp) DO UPDATE SET
            co2_ppm = excluded.co2_ppm,
            temperature = excluded.temperature,
            humidity = excluded.humidity
    `,
		m.Timestamp.Unix(),
		m.CO2,
		m.Temperature,
		m.Humidity,
	)
	if err != nil {
		return errors.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) HourlyStats(ctx context.Context, since time.Time) ([]HourlyStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
        SELECT (timestamp / 3600) * 3600 AS hour,
               AVG(co2_ppm), MIN(co2_ppm), MAX(co2_ppm), COUNT(*)
        FROM measurements
        WHERE timestamp >= ?
        GROUP BY hour
        ORDER BY hour
    `, since.Unix())
	if err != nil {
		return nil, errors.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var stats []HourlyStat
	for rows.Next() {
		var (
			hour int64
			s    HourlyStat
		)
		if err := rows.Scan(&hour, &s.AvgCO2, &s.MinCO2, &s.MaxCO2, &s.Samples); err != nil {
			return nil, errors.Wrap(ErrQueryFailed, err)
		}
		s.Hour = time.Unix(hour, 0)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(ErrQueryFailed, err)
	}

	return stats, nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.Wrap(ErrStorageClose, err)
	}

	return nil
}
