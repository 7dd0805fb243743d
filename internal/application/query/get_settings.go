package query

import (
	"context"

	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SETTINGS QUERY
// Показывает участнику его обещанное время и состояние освобождения.
// ══════════════════════════════════════════════════════════════════════════════

// GetSettingsQuery содержит параметры запроса настроек участника.
type GetSettingsQuery struct {
	GroupID shared.GroupID
	UserID  shared.UserID
}

// Validate проверяет корректность параметров запроса.
func (q GetSettingsQuery) Validate() error {
	if !q.GroupID.IsValid() {
		return shared.ErrInvalidGroup
	}
	if !q.UserID.IsValid() {
		return shared.ErrInvalidMember
	}
	return nil
}

// SettingsDTO - настройки участника.
type SettingsDTO struct {
	// UserName - отображаемое имя.
	UserName string `json:"user_name"`

	// WakeupTime - обещанное время; nil, если не задано.
	WakeupTime *attendance.WakeupTime `json:"wakeup_time,omitempty"`

	// ReportedToday - отметка текущего цикла принята.
	ReportedToday bool `json:"reported_today"`

	// ExemptionActive - освобождение ждёт ближайшей проверки.
	ExemptionActive bool `json:"exemption_active"`

	// ExemptionsLeft - сколько освобождений осталось на этой неделе.
	ExemptionsLeft int `json:"exemptions_left"`
}

// HasPledge возвращает true, если время подъёма задано.
func (d *SettingsDTO) HasPledge() bool {
	return d.WakeupTime != nil
}

// GetSettingsHandler обрабатывает запрос настроек.
type GetSettingsHandler struct {
	registry *state.Registry
	policy   attendance.ExemptionPolicy
	clock    timeutil.Clock
}

// NewGetSettingsHandler создаёт новый обработчик.
func NewGetSettingsHandler(registry *state.Registry, policy attendance.ExemptionPolicy, clock timeutil.Clock) *GetSettingsHandler {
	return &GetSettingsHandler{registry: registry, policy: policy, clock: clock}
}

// Handle выполняет запрос. Неизвестный участник возвращается без обещанного
// времени и с полной квотой; состояние при этом не создаётся.
func (h *GetSettingsHandler) Handle(ctx context.Context, q GetSettingsQuery) (*SettingsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	dto := &SettingsDTO{ExemptionsLeft: attendance.WeeklyExemptionQuota}
	h.registry.View(q.GroupID, func(g *attendance.Group) {
		m, ok := g.Member(q.UserID)
		if !ok {
			return
		}
		dto.UserName = m.Name()
		if m.WakeupTime != nil {
			wt := *m.WakeupTime
			dto.WakeupTime = &wt
		}
		dto.ReportedToday = m.ReportedToday && h.policy.Calendar.SameDay(m.LastReportAt, now)
		dto.ExemptionActive = m.ExemptionActive
		dto.ExemptionsLeft = h.policy.Remaining(m, now)
	})
	return dto, nil
}
