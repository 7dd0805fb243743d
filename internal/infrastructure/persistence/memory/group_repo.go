// Package memory provides an in-process attendance.Repository with failure
// injection. Application and interface tests run the registry on top of it.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// GroupRepository keeps deep copies of saved groups.
type GroupRepository struct {
	mu      sync.Mutex
	groups  map[shared.GroupID]*attendance.Group
	saveErr error
	loadErr error
	saves   int
}

// NewGroupRepository creates an empty repository.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[shared.GroupID]*attendance.Group)}
}

// LoadAll returns copies of all stored groups ordered by id.
func (r *GroupRepository) LoadAll(ctx context.Context) ([]*attendance.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}

	out := make([]*attendance.Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveGroup stores a copy of g.
func (r *GroupRepository) SaveGroup(ctx context.Context, g *attendance.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.groups[g.ID] = g.Clone()
	r.saves++
	return nil
}

// Ping always succeeds.
func (r *GroupRepository) Ping(ctx context.Context) error {
	return nil
}

// Get returns a copy of a stored group.
func (r *GroupRepository) Get(id shared.GroupID) (*attendance.Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

// Saves returns the number of successful saves.
func (r *GroupRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// FailSaves makes every SaveGroup return err until called with nil.
func (r *GroupRepository) FailSaves(err error) {
	r.mu.Lock()
	r.saveErr = err
	r.mu.Unlock()
}

// FailLoads makes LoadAll return err until called with nil.
func (r *GroupRepository) FailLoads(err error) {
	r.mu.Lock()
	r.loadErr = err
	r.mu.Unlock()
}
