package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/memory"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

func TestQueries(t *testing.T) {
	ctx := context.Background()
	cal := timeutil.DefaultCalendar()
	now := time.Date(2024, time.March, 15, 6, 30, 0, 0, timeutil.TokyoTZ)
	clock := timeutil.NewFixedClock(now)
	repo := memory.NewGroupRepository()
	registry := state.NewRegistry(repo, cal, nil)
	policy := attendance.NewExemptionPolicy(cal, attendance.DefaultCutoffHour)

	streaks := NewGetStreakHandler(registry)
	settings := NewGetSettingsHandler(registry, policy, clock)

	t.Run("unknown group is not created", func(t *testing.T) {
		dto, err := streaks.Handle(ctx, GetStreakQuery{GroupID: "g1"})
		require.NoError(t, err)
		assert.False(t, dto.Known)
		assert.Equal(t, 0, dto.Current)

		s, err := settings.Handle(ctx, GetSettingsQuery{GroupID: "g1", UserID: "u1"})
		require.NoError(t, err)
		assert.False(t, s.HasPledge())
		assert.Equal(t, 1, s.ExemptionsLeft)

		assert.Empty(t, registry.GroupIDs())
		assert.Equal(t, 0, repo.Saves())
	})

	t.Run("known group", func(t *testing.T) {
		actor := state.Actor{GroupID: "g1", UserID: "u1", DisplayName: "Taro"}
		require.NoError(t, registry.MutateMember(ctx, actor, now, func(g *attendance.Group, m *attendance.Member) error {
			g.CurrentStreak, g.BestStreak = 3, 8
			m.SetWakeupTime(attendance.MustWakeupTime(6, 45))
			return attendance.SubmitReport(m, now, cal)
		}))

		dto, err := streaks.Handle(ctx, GetStreakQuery{GroupID: "g1"})
		require.NoError(t, err)
		assert.True(t, dto.Known)
		assert.Equal(t, 3, dto.Current)
		assert.Equal(t, 8, dto.Best)
		assert.Equal(t, 1, dto.Pledged)

		s, err := settings.Handle(ctx, GetSettingsQuery{GroupID: "g1", UserID: "u1"})
		require.NoError(t, err)
		require.True(t, s.HasPledge())
		assert.Equal(t, "6:45", s.WakeupTime.String())
		assert.True(t, s.ReportedToday)
		assert.Equal(t, "Taro", s.UserName)
	})

	t.Run("invalid ids", func(t *testing.T) {
		_, err := streaks.Handle(ctx, GetStreakQuery{})
		assert.ErrorIs(t, err, shared.ErrInvalidGroup)

		_, err = settings.Handle(ctx, GetSettingsQuery{GroupID: "g1"})
		assert.ErrorIs(t, err, shared.ErrInvalidMember)
	})
}
