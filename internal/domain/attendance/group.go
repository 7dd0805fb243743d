package attendance

import (
	"sort"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: GROUP
// ══════════════════════════════════════════════════════════════════════════════

// Group - чат-группа с участниками и общей серией.
type Group struct {
	// ID - идентификатор чата в транспорте.
	ID shared.GroupID

	// Members - участники по их ID.
	Members map[shared.UserID]*Member

	// CurrentStreak - сколько проверок подряд группа прошла без проспавших.
	CurrentStreak int

	// BestStreak - максимум CurrentStreak за всё время.
	BestStreak int

	// CreatedAt - момент создания группы.
	CreatedAt time.Time

	// UpdatedAt - момент последнего изменения.
	UpdatedAt time.Time
}

// NewGroup создаёт пустую группу.
func NewGroup(id shared.GroupID, now time.Time) (*Group, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidGroup
	}
	return &Group{
		ID:        id,
		Members:   make(map[shared.UserID]*Member),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Member возвращает участника по ID.
func (g *Group) Member(id shared.UserID) (*Member, bool) {
	m, ok := g.Members[id]
	return m, ok
}

// EnsureMember возвращает участника, создавая его при первом обращении.
// Второе значение true, если участник был создан или переименован.
func (g *Group) EnsureMember(id shared.UserID, displayName string, now time.Time, cal timeutil.Calendar) (*Member, bool, error) {
	if m, ok := g.Members[id]; ok {
		return m, m.Rename(displayName), nil
	}
	m, err := NewMember(id, displayName, now, cal)
	if err != nil {
		return nil, false, err
	}
	if g.Members == nil {
		g.Members = make(map[shared.UserID]*Member)
	}
	g.Members[id] = m
	return m, true, nil
}

// OrderedMembers возвращает участников в порядке вступления (затем по ID).
func (g *Group) OrderedMembers() []*Member {
	out := make([]*Member, 0, len(g.Members))
	for _, m := range g.Members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PledgedCount возвращает число участников с обещанным временем.
func (g *Group) PledgedCount() int {
	n := 0
	for _, m := range g.Members {
		if m.HasPledge() {
			n++
		}
	}
	return n
}

// Touch обновляет UpdatedAt.
func (g *Group) Touch(now time.Time) {
	g.UpdatedAt = now
}

// Clone возвращает глубокую копию группы для сохранения вне блокировки.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = make(map[shared.UserID]*Member, len(g.Members))
	for id, m := range g.Members {
		c.Members[id] = m.Clone()
	}
	return &c
}

// Validate проверяет инварианты группы и всех участников.
func (g *Group) Validate() error {
	if !g.ID.IsValid() {
		return shared.ErrInvalidGroup
	}
	if g.CurrentStreak < 0 || g.BestStreak < g.CurrentStreak {
		return shared.WrapError("attendance", "Validate", shared.ErrInvalidState,
			"streak counters out of order", nil)
	}
	for id, m := range g.Members {
		if id != m.ID {
			return shared.WrapError("attendance", "Validate", shared.ErrInvalidState,
				"member keyed under foreign id", nil)
		}
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}
