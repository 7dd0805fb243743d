package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements attendance.Repository on PostgreSQL.
type GroupRepository struct {
	conn *Connection
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(conn *Connection) *GroupRepository {
	return &GroupRepository{conn: conn}
}

var _ attendance.Repository = (*GroupRepository)(nil)

const (
	selectGroupsSQL = `
		SELECT id, current_streak, best_streak, created_at, updated_at
		FROM groups
		ORDER BY id`

	selectMembersSQL = `
		SELECT group_id, user_id, display_name, joined_at,
		       wakeup_hour, wakeup_minute, last_report_at, reported_today,
		       exemption_active, last_exemption_at, week_exemption_count, week_window_start
		FROM members
		ORDER BY group_id, joined_at, user_id`

	upsertGroupSQL = `
		INSERT INTO groups (id, current_streak, best_streak, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			best_streak = EXCLUDED.best_streak,
			updated_at = EXCLUDED.updated_at`

	upsertMemberSQL = `
		INSERT INTO members (
			group_id, user_id, display_name, joined_at,
			wakeup_hour, wakeup_minute, last_report_at, reported_today,
			exemption_active, last_exemption_at, week_exemption_count, week_window_start
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			wakeup_hour = EXCLUDED.wakeup_hour,
			wakeup_minute = EXCLUDED.wakeup_minute,
			last_report_at = EXCLUDED.last_report_at,
			reported_today = EXCLUDED.reported_today,
			exemption_active = EXCLUDED.exemption_active,
			last_exemption_at = EXCLUDED.last_exemption_at,
			week_exemption_count = EXCLUDED.week_exemption_count,
			week_window_start = EXCLUDED.week_window_start`
)

// LoadAll returns every group with its members.
func (r *GroupRepository) LoadAll(ctx context.Context) ([]*attendance.Group, error) {
	rows, err := r.conn.Query(ctx, selectGroupsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}

	var groups []*attendance.Group
	byID := make(map[shared.GroupID]*attendance.Group)
	for rows.Next() {
		g := &attendance.Group{Members: make(map[shared.UserID]*attendance.Member)}
		var id string
		if err := rows.Scan(&id, &g.CurrentStreak, &g.BestStreak, &g.CreatedAt, &g.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.ID = shared.GroupID(id)
		groups = append(groups, g)
		byID[g.ID] = g
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	rows, err = r.conn.Query(ctx, selectMembersSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID, userID        string
			hour, minute           *int16
			lastReport, lastExempt *time.Time
			windowStart            *time.Time
			weekCount              int16
			m                      attendance.Member
		)
		if err := rows.Scan(
			&groupID, &userID, &m.DisplayName, &m.JoinedAt,
			&hour, &minute, &lastReport, &m.ReportedToday,
			&m.ExemptionActive, &lastExempt, &weekCount, &windowStart,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}

		g, ok := byID[shared.GroupID(groupID)]
		if !ok {
			continue
		}
		m.ID = shared.UserID(userID)
		if hour != nil && minute != nil {
			m.WakeupTime = &attendance.WakeupTime{Hour: int(*hour), Minute: int(*minute)}
		}
		m.LastReportAt = fromNullTime(lastReport)
		m.LastExemptionAt = fromNullTime(lastExempt)
		m.WeekWindowStart = fromNullTime(windowStart)
		m.WeekExemptionCount = int(weekCount)
		g.Members[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return groups, nil
}

// SaveGroup upserts the group row and every member row in one transaction.
func (r *GroupRepository) SaveGroup(ctx context.Context, g *attendance.Group) error {
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(upsertGroupSQL, g.ID.String(), g.CurrentStreak, g.BestStreak, g.CreatedAt, g.UpdatedAt)
		for _, m := range g.OrderedMembers() {
			var hour, minute *int16
			if m.WakeupTime != nil {
				h, mm := int16(m.WakeupTime.Hour), int16(m.WakeupTime.Minute)
				hour, minute = &h, &mm
			}
			batch.Queue(upsertMemberSQL,
				g.ID.String(), m.ID.String(), m.DisplayName, m.JoinedAt,
				hour, minute, toNullTime(m.LastReportAt), m.ReportedToday,
				m.ExemptionActive, toNullTime(m.LastExemptionAt), int16(m.WeekExemptionCount), toNullTime(m.WeekWindowStart),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return shared.WrapError("postgres", "SaveGroup", shared.ErrPersistence,
			fmt.Sprintf("failed to save group %s", g.ID), classify(err))
	}
	return nil
}

// Ping checks the underlying connection.
func (r *GroupRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// Health reports pool statistics for the admin status endpoint.
func (r *GroupRepository) Health(ctx context.Context) (*HealthStatus, error) {
	return r.conn.Health(ctx)
}

// classify marks connection-level failures as retryable.
func classify(err error) error {
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
	return err
}

func toNullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
