// Package sqlite implements attendance.Repository on an embedded SQLite database.
// Suitable for single-instance deployments that do not want a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// GroupRepository stores groups and members in SQLite.
type GroupRepository struct {
	db *sql.DB
}

var _ attendance.Repository = (*GroupRepository)(nil)

// Open opens (or creates) the database at path, applies PRAGMAs and migrations.
func Open(ctx context.Context, path string) (*GroupRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite is a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &GroupRepository{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations executes the embedded SQL files in name order, each in its own transaction.
func runMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		body, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *GroupRepository) Close() error {
	return r.db.Close()
}

// Ping checks that the database is reachable.
func (r *GroupRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadAll returns every group with its members.
func (r *GroupRepository) LoadAll(ctx context.Context) ([]*attendance.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, current_streak, best_streak, created_at, updated_at
		FROM groups
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}

	var groups []*attendance.Group
	byID := make(map[shared.GroupID]*attendance.Group)
	for rows.Next() {
		var (
			id                   string
			current, best        int
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &current, &best, &createdAt, &updatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g := &attendance.Group{
			ID:            shared.GroupID(id),
			Members:       make(map[shared.UserID]*attendance.Member),
			CurrentStreak: current,
			BestStreak:    best,
			CreatedAt:     fromUnixNano(createdAt),
			UpdatedAt:     fromUnixNano(updatedAt),
		}
		groups = append(groups, g)
		byID[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	_ = rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT group_id, user_id, display_name, joined_at,
		       wakeup_hour, wakeup_minute, last_report_at, reported_today,
		       exemption_active, last_exemption_at, week_exemption_count, week_window_start
		FROM members
		ORDER BY group_id, joined_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID, userID, name  string
			joinedAt               int64
			hour, minute           sql.NullInt64
			lastReport, lastExempt sql.NullInt64
			windowStart            sql.NullInt64
			reported, exempt       int
			weekCount              int
		)
		if err := rows.Scan(
			&groupID, &userID, &name, &joinedAt,
			&hour, &minute, &lastReport, &reported,
			&exempt, &lastExempt, &weekCount, &windowStart,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}

		g, ok := byID[shared.GroupID(groupID)]
		if !ok {
			continue
		}
		m := &attendance.Member{
			ID:                 shared.UserID(userID),
			DisplayName:        name,
			JoinedAt:           fromUnixNano(joinedAt),
			LastReportAt:       fromNullInt64(lastReport),
			ReportedToday:      reported != 0,
			ExemptionActive:    exempt != 0,
			LastExemptionAt:    fromNullInt64(lastExempt),
			WeekExemptionCount: weekCount,
			WeekWindowStart:    fromNullInt64(windowStart),
		}
		if hour.Valid && minute.Valid {
			m.WakeupTime = &attendance.WakeupTime{Hour: int(hour.Int64), Minute: int(minute.Int64)}
		}
		g.Members[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return groups, nil
}

// SaveGroup upserts the group and all of its members in one transaction.
func (r *GroupRepository) SaveGroup(ctx context.Context, g *attendance.Group) error {
	if err := r.saveGroup(ctx, g); err != nil {
		return shared.WrapError("sqlite", "SaveGroup", shared.ErrPersistence,
			fmt.Sprintf("failed to save group %s", g.ID), err)
	}
	return nil
}

func (r *GroupRepository) saveGroup(ctx context.Context, g *attendance.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, current_streak, best_streak, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_streak = excluded.current_streak,
			best_streak    = excluded.best_streak,
			updated_at     = excluded.updated_at`,
		g.ID.String(), g.CurrentStreak, g.BestStreak, toUnixNano(g.CreatedAt), toUnixNano(g.UpdatedAt),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO members (
			group_id, user_id, display_name, joined_at,
			wakeup_hour, wakeup_minute, last_report_at, reported_today,
			exemption_active, last_exemption_at, week_exemption_count, week_window_start
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE SET
			display_name         = excluded.display_name,
			wakeup_hour          = excluded.wakeup_hour,
			wakeup_minute        = excluded.wakeup_minute,
			last_report_at       = excluded.last_report_at,
			reported_today       = excluded.reported_today,
			exemption_active     = excluded.exemption_active,
			last_exemption_at    = excluded.last_exemption_at,
			week_exemption_count = excluded.week_exemption_count,
			week_window_start    = excluded.week_window_start`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range g.OrderedMembers() {
		var hour, minute sql.NullInt64
		if m.WakeupTime != nil {
			hour = sql.NullInt64{Int64: int64(m.WakeupTime.Hour), Valid: true}
			minute = sql.NullInt64{Int64: int64(m.WakeupTime.Minute), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			g.ID.String(), m.ID.String(), m.DisplayName, toUnixNano(m.JoinedAt),
			hour, minute, toNullInt64(m.LastReportAt), boolToInt(m.ReportedToday),
			boolToInt(m.ExemptionActive), toNullInt64(m.LastExemptionAt), m.WeekExemptionCount, toNullInt64(m.WeekWindowStart),
		); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toNullInt64(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullInt64(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}
