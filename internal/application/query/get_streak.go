// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK QUERY
// Возвращает текущую и лучшую серию группы. Запрос только читает состояние:
// неизвестная группа не создаётся, а возвращается с нулями.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakQuery содержит параметры запроса серии.
type GetStreakQuery struct {
	// GroupID - идентификатор группы.
	GroupID shared.GroupID
}

// Validate проверяет корректность параметров запроса.
func (q GetStreakQuery) Validate() error {
	if !q.GroupID.IsValid() {
		return shared.ErrInvalidGroup
	}
	return nil
}

// StreakDTO - серия группы.
type StreakDTO struct {
	// GroupID - идентификатор группы.
	GroupID string `json:"group_id"`

	// Current - текущая серия.
	Current int `json:"current_streak"`

	// Best - лучшая серия.
	Best int `json:"best_streak"`

	// Members - число участников.
	Members int `json:"members"`

	// Pledged - число участников с обещанным временем.
	Pledged int `json:"pledged"`

	// Known - false, если группа ещё ни разу не писала боту.
	Known bool `json:"known"`

	// UpdatedAt - время последнего изменения группы.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// GetStreakHandler обрабатывает запрос серии.
type GetStreakHandler struct {
	registry *state.Registry
}

// NewGetStreakHandler создаёт новый обработчик.
func NewGetStreakHandler(registry *state.Registry) *GetStreakHandler {
	return &GetStreakHandler{registry: registry}
}

// Handle выполняет запрос.
func (h *GetStreakHandler) Handle(ctx context.Context, q GetStreakQuery) (*StreakDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	dto := &StreakDTO{GroupID: q.GroupID.String()}
	dto.Known = h.registry.View(q.GroupID, func(g *attendance.Group) {
		dto.Current = g.CurrentStreak
		dto.Best = g.BestStreak
		dto.Members = len(g.Members)
		dto.Pledged = g.PledgedCount()
		if !g.UpdatedAt.IsZero() {
			updated := g.UpdatedAt
			dto.UpdatedAt = &updated
		}
	})
	return dto, nil
}
