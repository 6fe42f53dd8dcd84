// Package store persists incidents in a SQLite ledger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/incident"
	"github.com/moolen/tripwire/internal/logging"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned for unknown incident ids.
var ErrNotFound = errors.New("incident not found")

// ListOptions filters ListIncidents.
type ListOptions struct {
	// Since keeps incidents triggered at or after this time. Zero keeps all.
	Since time.Time
	// Limit caps the result. Zero or negative means no limit.
	Limit int
}

// Store is the incident ledger.
type Store struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	logger := logging.GetLogger("store")
	logger.Debug("Opened incident store at %s", path)
	return &Store{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIncident stores inc and its anomalies in one transaction. Anomaly order
// is preserved.
func (s *Store) SaveIncident(ctx context.Context, inc *incident.Incident) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO incidents (id, triggered_at, window_start, window_end, created_at) VALUES (?, ?, ?, ?, ?)",
		inc.ID, toUnix(inc.TriggeredAt), toUnix(inc.Window.Start), toUnix(inc.Window.End), toUnix(inc.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO anomalies (incident_id, seq, metric_name, value, threshold, timestamp, window_seconds) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range inc.Anomalies {
		if _, err := stmt.ExecContext(ctx, inc.ID, i, a.MetricName, a.Value, a.Threshold, toUnix(a.Timestamp), a.WindowSeconds); err != nil {
			return fmt.Errorf("insert anomaly %d of incident %s: %w", i, inc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.DebugWithFields("Saved incident",
		logging.Field("incident_id", inc.ID),
		logging.Field("anomalies", len(inc.Anomalies)),
	)
	return nil
}

// GetIncident loads one incident. Unknown ids return ErrNotFound.
func (s *Store) GetIncident(ctx context.Context, id string) (*incident.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, triggered_at, window_start, window_end, created_at FROM incidents WHERE id = ?", id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if inc.Anomalies, err = s.anomalies(ctx, id); err != nil {
		return nil, err
	}
	return inc, nil
}

// ListIncidents returns incidents newest first.
func (s *Store) ListIncidents(ctx context.Context, opts ListOptions) ([]*incident.Incident, error) {
	query := "SELECT id, triggered_at, window_start, window_end, created_at FROM incidents"
	var args []interface{}
	if !opts.Since.IsZero() {
		query += " WHERE triggered_at >= ?"
		args = append(args, toUnix(opts.Since))
	}
	query += " ORDER BY triggered_at DESC, created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var incidents []*incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, inc := range incidents {
		if inc.Anomalies, err = s.anomalies(ctx, inc.ID); err != nil {
			return nil, err
		}
	}
	return incidents, nil
}

func (s *Store) anomalies(ctx context.Context, id string) ([]anomaly.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT metric_name, value, threshold, timestamp, window_seconds FROM anomalies WHERE incident_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []anomaly.Record{}
	for rows.Next() {
		var r anomaly.Record
		var ts int64
		if err := rows.Scan(&r.MetricName, &r.Value, &r.Threshold, &ts, &r.WindowSeconds); err != nil {
			return nil, err
		}
		r.Timestamp = fromUnix(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row scanner) (*incident.Incident, error) {
	var inc incident.Incident
	var triggered, start, end, created int64
	if err := row.Scan(&inc.ID, &triggered, &start, &end, &created); err != nil {
		return nil, err
	}
	inc.TriggeredAt = fromUnix(triggered)
	inc.Window = incident.Window{Start: fromUnix(start), End: fromUnix(end)}
	inc.CreatedAt = fromUnix(created)
	return &inc, nil
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
