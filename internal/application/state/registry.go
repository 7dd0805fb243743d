// Package state owns the in-memory attendance state of every group.
//
// The Registry is the only holder of *attendance.Group values. Each group has
// its own mutex; every mutation runs under it and is followed by a synchronous
// save of that group. Memory stays authoritative when a save fails: the group
// is marked dirty and retried on its next mutation or by FlushDirty.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ErrUnsaved is returned by MutateGroup when the change was committed in
// memory but the save failed. The group stays dirty until a later save works.
var ErrUnsaved = errors.New("group committed in memory but not saved")

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Actor identifies the user behind an inbound event.
type Actor struct {
	GroupID     shared.GroupID
	UserID      shared.UserID
	DisplayName string
}

// MemberFunc mutates one member. A returned error means the member was not changed.
type MemberFunc func(g *attendance.Group, m *attendance.Member) error

// GroupFunc mutates a whole group. A returned error means the group was not changed.
type GroupFunc func(g *attendance.Group) error

// Registry is the explicit state container for all groups.
type Registry struct {
	repo     attendance.Repository
	calendar timeutil.Calendar
	logger   *slog.Logger

	mu     sync.RWMutex
	groups map[shared.GroupID]*entry
}

type entry struct {
	mu    sync.Mutex
	group *attendance.Group
	dirty bool
}

// NewRegistry creates an empty registry backed by repo.
func NewRegistry(repo attendance.Repository, cal timeutil.Calendar, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		repo:     repo,
		calendar: cal,
		logger:   logger.With(applog.Component("state")),
		groups:   make(map[shared.GroupID]*entry),
	}
}

// Calendar returns the calendar all mutations use.
func (r *Registry) Calendar() timeutil.Calendar {
	return r.calendar
}

// Load replaces the registry contents with everything in the repository.
// Callers treat an error as fatal.
func (r *Registry) Load(ctx context.Context) error {
	groups, err := r.repo.LoadAll(ctx)
	if err != nil {
		return shared.WrapError("state", "Load", shared.ErrPersistence, "failed to load groups", err)
	}

	loaded := make(map[shared.GroupID]*entry, len(groups))
	members := 0
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return shared.WrapError("state", "Load", shared.ErrPersistence,
				fmt.Sprintf("group %s is inconsistent", g.ID), err)
		}
		loaded[g.ID] = &entry{group: g}
		members += len(g.Members)
	}

	r.mu.Lock()
	r.groups = loaded
	r.mu.Unlock()

	r.logger.Info("state loaded", "groups", len(loaded), "members", members)
	return nil
}

// lookup returns the entry for id, creating an empty group when create is set.
func (r *Registry) lookup(id shared.GroupID, now time.Time, create bool) (*entry, bool, error) {
	r.mu.RLock()
	e, ok := r.groups[id]
	r.mu.RUnlock()
	if ok || !create {
		return e, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.groups[id]; ok {
		return e, false, nil
	}
	g, err := attendance.NewGroup(id, now)
	if err != nil {
		return nil, false, err
	}
	e = &entry{group: g}
	r.groups[id] = e
	r.logger.Info("group created", applog.GroupID(id.String()))
	return e, true, nil
}

// MutateMember runs fn against the actor's member, creating the group and the
// member on first contact. The group is saved when fn succeeds or when
// something was created or renamed along the way. fn's error is returned as is.
func (r *Registry) MutateMember(ctx context.Context, actor Actor, now time.Time, fn MemberFunc) error {
	e, created, err := r.lookup(actor.GroupID, now, true)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, changed, err := e.group.EnsureMember(actor.UserID, actor.DisplayName, now, r.calendar)
	if err != nil {
		return err
	}

	fnErr := fn(e.group, m)
	if fnErr == nil || created || changed || e.dirty {
		if fnErr == nil {
			e.group.Touch(now)
		}
		_ = r.persist(ctx, e)
	}
	return fnErr
}

// MutateGroup runs fn against an existing group and saves it when fn succeeds.
// Returns ErrGroupNotFound for unknown groups and an error wrapping ErrUnsaved
// when fn's change is kept in memory only.
func (r *Registry) MutateGroup(ctx context.Context, id shared.GroupID, fn GroupFunc) error {
	e, _, _ := r.lookup(id, time.Time{}, false)
	if e == nil {
		return shared.ErrGroupNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.group); err != nil {
		return err
	}
	if err := r.persist(ctx, e); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsaved, err)
	}
	return nil
}

// View runs fn with read access to a group. Returns false if the group is unknown.
// fn must not retain or modify g.
func (r *Registry) View(id shared.GroupID, fn func(g *attendance.Group)) bool {
	e, _, _ := r.lookup(id, time.Time{}, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.group)
	return true
}

// Snapshot returns a deep copy of a group.
func (r *Registry) Snapshot(id shared.GroupID) (*attendance.Group, bool) {
	var out *attendance.Group
	ok := r.View(id, func(g *attendance.Group) {
		out = g.Clone()
	})
	return out, ok
}

// GroupIDs returns every known group id in stable order.
func (r *Registry) GroupIDs() []shared.GroupID {
	r.mu.RLock()
	ids := make([]shared.GroupID, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DirtyCount returns the number of groups whose last save failed.
func (r *Registry) DirtyCount() int {
	n := 0
	for _, id := range r.GroupIDs() {
		e, _, _ := r.lookup(id, time.Time{}, false)
		e.mu.Lock()
		if e.dirty {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// FlushDirty retries saving every dirty group. Returns how many were saved.
func (r *Registry) FlushDirty(ctx context.Context) (int, error) {
	flushed := 0
	for _, id := range r.GroupIDs() {
		if err := ctx.Err(); err != nil {
			return flushed, err
		}
		e, _, _ := r.lookup(id, time.Time{}, false)
		e.mu.Lock()
		if e.dirty && r.persist(ctx, e) == nil {
			flushed++
		}
		e.mu.Unlock()
	}
	if remaining := r.DirtyCount(); remaining > 0 {
		return flushed, shared.WrapError("state", "FlushDirty", shared.ErrPersistence,
			fmt.Sprintf("%d groups still unsaved", remaining), nil)
	}
	return flushed, nil
}

// persist saves e.group. Must be called with e.mu held.
func (r *Registry) persist(ctx context.Context, e *entry) error {
	if err := r.repo.SaveGroup(ctx, e.group); err != nil {
		e.dirty = true
		level := slog.LevelError
		if shared.IsRetryable(err) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "failed to save group, keeping in-memory state",
			applog.GroupID(e.group.ID.String()),
			"retryable", shared.IsRetryable(err),
			"error", err,
		)
		return err
	}
	if e.dirty {
		r.logger.Info("dirty group saved", applog.GroupID(e.group.ID.String()))
	}
	e.dirty = false
	return nil
}
