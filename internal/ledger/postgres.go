package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"stocksignal/internal/model"
)

// Postgres stores records in a shared PostgreSQL table, for deployments that
// run several monitor instances against one database.
type Postgres struct {
	db *sqlx.DB
}

type recordRow struct {
	Date   time.Time `db:"date"`
	Symbol string    `db:"symbol"`
}

// OpenPostgres connects, pings and creates the table if missing.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres ledger: empty dsn")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			date       DATE        NOT NULL,
			symbol     TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (date, symbol)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	log.Printf("[postgres] ledger ready")
	return &Postgres{db: db}, nil
}

func (p *Postgres) Contains(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE date = $1 AND symbol = $2)`,
		model.DateKey(rec.Date), rec.Symbol)
	if err != nil {
		return false, fmt.Errorf("postgres contains: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Record(ctx context.Context, rec model.NotificationRecord) error {
	_, err := p.Claim(ctx, rec)
	return err
}

func (p *Postgres) Claim(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO notifications (date, symbol) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		model.DateKey(rec.Date), rec.Symbol)
	if err != nil {
		return false, fmt.Errorf("postgres claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres claim: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE date < $1`, model.DateKey(before))
	if err != nil {
		return 0, fmt.Errorf("postgres prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres prune: %w", err)
	}
	return int(n), nil
}

func (p *Postgres) List(ctx context.Context) ([]model.NotificationRecord, error) {
	var rows []recordRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT date, symbol FROM notifications ORDER BY date, symbol`); err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	recs := make([]model.NotificationRecord, len(rows))
	for i, r := range rows {
		recs[i] = model.NewRecord(r.Date.UTC(), r.Symbol)
	}
	return recs, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
