package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stocksignal/internal/model"
)

// SQLite stores records in a single-table embedded database. The primary key
// on (date, symbol) makes Claim a single atomic insert.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database with WAL mode and schema.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite ledger: empty path")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite ledger: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened ledger at %s", dbPath)
	return &SQLite{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			date       TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (date, symbol)
		);
	`)
	return err
}

func (s *SQLite) Contains(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM notifications WHERE date = ? AND symbol = ?`,
		model.DateKey(rec.Date), rec.Symbol,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite contains: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) Record(ctx context.Context, rec model.NotificationRecord) error {
	_, err := s.Claim(ctx, rec)
	return err
}

func (s *SQLite) Claim(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications (date, symbol) VALUES (?, ?)`,
		model.DateKey(rec.Date), rec.Symbol,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite claim: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE date < ?`, model.DateKey(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	return int(n), nil
}

func (s *SQLite) List(ctx context.Context) ([]model.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, symbol FROM notifications ORDER BY date, symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var recs []model.NotificationRecord
	for rows.Next() {
		var date, symbol string
		if err := rows.Scan(&date, &symbol); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		d, err := model.ParseDate(date)
		if err != nil {
			log.Printf("[sqlite] skipping row with bad date %q", date)
			continue
		}
		recs = append(recs, model.NotificationRecord{Date: d, Symbol: symbol})
	}
	return recs, rows.Err()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
