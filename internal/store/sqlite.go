package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/places-crawler/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	place_id  TEXT PRIMARY KEY,
	position  INTEGER NOT NULL DEFAULT 0,
	title     TEXT NOT NULL DEFAULT '',
	link      TEXT NOT NULL DEFAULT '',
	address   TEXT NOT NULL DEFAULT '',
	city      TEXT NOT NULL DEFAULT '',
	state     TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL DEFAULT '',
	rating    REAL,
	reviews   INTEGER,
	latitude  REAL,
	longitude REAL,
	region    TEXT NOT NULL,
	loaded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_places_region ON places(region);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertPlaces(ctx context.Context, recs []model.ResultRecord) (int64, error) {
	recs = identified(recs)
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(placeColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO places (%s) VALUES (%s) ON CONFLICT(place_id) DO NOTHING`,
		strings.Join(placeColumns, ", "), placeholders,
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for _, r := range recs {
		res, err := stmt.ExecContext(ctx, placeRow(r)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert place %s", r.PlaceID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) CountPlaces(ctx context.Context, region string) (int64, error) {
	var n int64
	var err error
	if region == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM places`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM places WHERE region = ?`, region).Scan(&n)
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count places")
	}
	return n, nil
}
