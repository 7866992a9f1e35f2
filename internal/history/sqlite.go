package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"HealthSentinel/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots and alerts to a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so API reads do not block the run writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite history opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id          TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			computed_at INTEGER NOT NULL,
			overall     REAL NOT NULL,
			confidence  REAL NOT NULL,
			label       TEXT,
			profile     TEXT,
			breakdown   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_customer ON snapshots(customer_id, computed_at)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id          TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			type        TEXT NOT NULL,
			kind        TEXT,
			severity    TEXT NOT NULL,
			status      TEXT,
			message     TEXT,
			triggers    TEXT,
			actions     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_customer ON alerts(customer_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, snap *model.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	breakdown, err := json.Marshal(snap.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(computed_at) FROM snapshots WHERE customer_id = ?`, snap.CustomerID,
	).Scan(&latest); err != nil {
		return fmt.Errorf("query latest: %w", err)
	}
	at := snap.ComputedAt.UnixNano()
	if latest.Valid && at <= latest.Int64 {
		return ErrOutOfOrder
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots
		(id, customer_id, computed_at, overall, confidence, label, profile, breakdown)
		VALUES (?,?,?,?,?,?,?,?)`,
		snap.ID, snap.CustomerID, at, snap.Overall, snap.Confidence,
		string(snap.Label), string(snap.Profile), string(breakdown),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return tx.Commit()
}

const snapshotCols = `id, customer_id, computed_at, overall, confidence, label, profile, breakdown`

func (s *SQLiteStore) History(ctx context.Context, customerID string, since time.Time) ([]model.HealthSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotCols+` FROM snapshots
		WHERE customer_id = ? AND computed_at >= ?
		ORDER BY computed_at ASC`, customerID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.HealthSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Latest(ctx context.Context, customerID string) (*model.HealthSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots
		WHERE customer_id = ? ORDER BY computed_at DESC LIMIT 1`, customerID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*model.HealthSnapshot, error) {
	var (
		snap           model.HealthSnapshot
		at             int64
		label, profile string
		breakdown      string
	)
	if err := sc.Scan(&snap.ID, &snap.CustomerID, &at, &snap.Overall, &snap.Confidence, &label, &profile, &breakdown); err != nil {
		return nil, err
	}
	snap.ComputedAt = time.Unix(0, at).UTC()
	snap.Label = model.RiskLabel(label)
	snap.Profile = model.Segment(profile)
	if err := json.Unmarshal([]byte(breakdown), &snap.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown of %s: %w", snap.ID, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range alerts {
		triggers, err := json.Marshal(a.Triggers)
		if err != nil {
			return fmt.Errorf("encode triggers: %w", err)
		}
		actions, err := json.Marshal(a.Actions)
		if err != nil {
			return fmt.Errorf("encode actions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO alerts
			(id, customer_id, created_at, type, kind, severity, status, message, triggers, actions)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			a.ID, a.CustomerID, a.CreatedAt.UnixNano(), string(a.Type), string(a.Kind),
			string(a.Severity), string(a.Status), a.Message, string(triggers), string(actions),
		); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, customerID string, since time.Time) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, customer_id, created_at, type, kind, severity, status, message, triggers, actions
		FROM alerts WHERE customer_id = ? AND created_at >= ?
		ORDER BY created_at ASC`, customerID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var (
			a                      model.Alert
			at                     int64
			typ, kind, sev, status string
			triggers, actions      sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.CustomerID, &at, &typ, &kind, &sev, &status, &a.Message, &triggers, &actions); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(0, at).UTC()
		a.Type, a.Kind = model.AlertType(typ), model.AlertKind(kind)
		a.Severity, a.Status = model.Severity(sev), model.AlertStatus(status)
		if triggers.Valid {
			if err := json.Unmarshal([]byte(triggers.String), &a.Triggers); err != nil {
				return nil, fmt.Errorf("decode triggers of %s: %w", a.ID, err)
			}
		}
		if actions.Valid {
			if err := json.Unmarshal([]byte(actions.String), &a.Actions); err != nil {
				return nil, fmt.Errorf("decode actions of %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := before.UnixNano()
	total := 0
	for _, q := range []string{
		`DELETE FROM snapshots WHERE computed_at < ?`,
		`DELETE FROM alerts WHERE created_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sqlite history")
	return s.db.Close()
}
