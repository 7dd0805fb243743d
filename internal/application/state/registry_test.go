package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/memory"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

var now = time.Date(2024, time.March, 15, 6, 30, 0, 0, timeutil.TokyoTZ)

func newRegistry(t *testing.T) (*Registry, *memory.GroupRepository) {
	t.Helper()
	repo := memory.NewGroupRepository()
	return NewRegistry(repo, timeutil.DefaultCalendar(), nil), repo
}

func setTime(g *attendance.Group, m *attendance.Member) error {
	m.SetWakeupTime(attendance.MustWakeupTime(7, 0))
	return nil
}

func TestRegistry_MutateMemberCreatesAndPersists(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t)

	actor := Actor{GroupID: "g1", UserID: "u1", DisplayName: "Taro"}
	require.NoError(t, reg.MutateMember(ctx, actor, now, setTime))

	stored, ok := repo.Get("g1")
	require.True(t, ok)
	m, ok := stored.Member("u1")
	require.True(t, ok)
	assert.Equal(t, "Taro", m.DisplayName)
	assert.Equal(t, attendance.MustWakeupTime(7, 0), *m.WakeupTime)
	assert.Equal(t, []shared.GroupID{"g1"}, reg.GroupIDs())
}

func TestRegistry_RejectedMutationDoesNotSaveKnownMember(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t)
	actor := Actor{GroupID: "g1", UserID: "u1", DisplayName: "Taro"}
	require.NoError(t, reg.MutateMember(ctx, actor, now, setTime))
	saves := repo.Saves()

	err := reg.MutateMember(ctx, actor, now, func(g *attendance.Group, m *attendance.Member) error {
		return shared.ErrDuplicateReport
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateReport)
	assert.Equal(t, saves, repo.Saves())
}

func TestRegistry_SaveFailureKeepsMemoryAndRetries(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t)
	actor := Actor{GroupID: "g1", UserID: "u1", DisplayName: "Taro"}

	repo.FailSaves(errors.New("disk full"))
	require.NoError(t, reg.MutateMember(ctx, actor, now, setTime))
	assert.Equal(t, 1, reg.DirtyCount())

	_, stored := repo.Get("g1")
	assert.False(t, stored)

	snap, ok := reg.Snapshot("g1")
	require.True(t, ok)
	m, _ := snap.Member("u1")
	assert.True(t, m.HasPledge())

	_, err := reg.FlushDirty(ctx)
	assert.True(t, shared.IsPersistence(err))

	repo.FailSaves(nil)
	flushed, err := reg.FlushDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)
	assert.Equal(t, 0, reg.DirtyCount())

	_, stored = repo.Get("g1")
	assert.True(t, stored)
}

func TestRegistry_RetryOnNextMutation(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t)
	actor := Actor{GroupID: "g1", UserID: "u1", DisplayName: "Taro"}
	require.NoError(t, reg.MutateMember(ctx, actor, now, setTime))

	repo.FailSaves(errors.New("timeout"))
	require.NoError(t, reg.MutateMember(ctx, actor, now, func(g *attendance.Group, m *attendance.Member) error {
		return attendance.SubmitReport(m, now, timeutil.DefaultCalendar())
	}))
	assert.Equal(t, 1, reg.DirtyCount())

	repo.FailSaves(nil)
	err := reg.MutateMember(ctx, actor, now, func(g *attendance.Group, m *attendance.Member) error {
		return shared.ErrDuplicateReport
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateReport)
	assert.Equal(t, 0, reg.DirtyCount())

	stored, _ := repo.Get("g1")
	m, _ := stored.Member("u1")
	assert.True(t, m.ReportedToday)
}

func TestRegistry_Load(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewGroupRepository()
	g, err := attendance.NewGroup("g1", now)
	require.NoError(t, err)
	g.CurrentStreak, g.BestStreak = 2, 5
	require.NoError(t, repo.SaveGroup(ctx, g))

	reg := NewRegistry(repo, timeutil.DefaultCalendar(), nil)
	require.NoError(t, reg.Load(ctx))

	var streak int
	assert.True(t, reg.View("g1", func(g *attendance.Group) { streak = g.CurrentStreak }))
	assert.Equal(t, 2, streak)
	assert.False(t, reg.View("missing", func(*attendance.Group) {}))
}

func TestRegistry_LoadFailureIsPersistenceError(t *testing.T) {
	repo := memory.NewGroupRepository()
	repo.FailLoads(errors.New("connection refused"))

	reg := NewRegistry(repo, timeutil.DefaultCalendar(), nil)
	err := reg.Load(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
}

func TestRegistry_MutateGroupReportsUnsaved(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t)
	actor := Actor{GroupID: "g1", UserID: "u1", DisplayName: "Taro"}
	require.NoError(t, reg.MutateMember(ctx, actor, now, setTime))

	repo.FailSaves(errors.New("disk full"))
	err := reg.MutateGroup(ctx, "g1", func(g *attendance.Group) error {
		g.CurrentStreak = 3
		return nil
	})
	require.ErrorIs(t, err, ErrUnsaved)
	assert.Equal(t, 1, reg.DirtyCount())

	snap, _ := reg.Snapshot("g1")
	assert.Equal(t, 3, snap.CurrentStreak)

	repo.FailSaves(nil)
	require.NoError(t, reg.MutateGroup(ctx, "g1", func(g *attendance.Group) error { return nil }))
	assert.Equal(t, 0, reg.DirtyCount())
}

func TestRegistry_MutateGroupUnknown(t *testing.T) {
	reg, _ := newRegistry(t)
	err := reg.MutateGroup(context.Background(), "nope", func(*attendance.Group) error { return nil })
	assert.ErrorIs(t, err, shared.ErrGroupNotFound)
}

func TestRegistry_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := Actor{
				GroupID: shared.GroupID([]string{"g1", "g2"}[i%2]),
				UserID:  shared.UserIDFromInt64(int64(i)),
			}
			assert.NoError(t, reg.MutateMember(ctx, actor, now, setTime))
		}(i)
	}
	wg.Wait()

	g1, _ := repo.Get("g1")
	g2, _ := repo.Get("g2")
	assert.Len(t, g1.Members, 25)
	assert.Len(t, g2.Members, 25)
}
