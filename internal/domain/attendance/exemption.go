package attendance

import (
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

const (
	// DefaultCutoffHour - с этого часа (включительно) освобождение на завтра брать нельзя.
	DefaultCutoffHour = 22

	// WeeklyExemptionQuota - освобождений на одно недельное окно.
	WeeklyExemptionQuota = 1

	// exemptionWindowDays - длина недельного окна в календарных днях.
	exemptionWindowDays = 7
)

// ExemptionPolicy - правила освобождения от ближайшей проверки.
type ExemptionPolicy struct {
	// CutoffHour - локальный час, начиная с которого заявка отклоняется.
	CutoffHour int

	// Calendar - календарь для границ недели и часа.
	Calendar timeutil.Calendar
}

// NewExemptionPolicy создаёт политику. cutoff вне 1-23 заменяется на
// DefaultCutoffHour; конфигурация такие значения отклоняет заранее.
func NewExemptionPolicy(cal timeutil.Calendar, cutoffHour int) ExemptionPolicy {
	if cutoffHour < 1 || cutoffHour > 23 {
		cutoffHour = DefaultCutoffHour
	}
	return ExemptionPolicy{CutoffHour: cutoffHour, Calendar: cal}
}

// window возвращает недельное окно и счётчик с учётом сброса,
// не изменяя участника.
func (p ExemptionPolicy) window(m *Member, now time.Time) (time.Time, int) {
	if m.WeekWindowStart.IsZero() || p.Calendar.DaysBetween(m.WeekWindowStart, now) >= exemptionWindowDays {
		return p.Calendar.StartOfWeek(now), 0
	}
	return m.WeekWindowStart, m.WeekExemptionCount
}

// Declare берёт освобождение на ближайшую проверку.
//
// Порядок проверок: сброс окна, затем ErrExemptionTooLate (час >= CutoffHour),
// затем ErrQuotaExhausted. При отказе участник не меняется; обновлённое окно
// фиксируется только вместе с успешной заявкой.
func (p ExemptionPolicy) Declare(m *Member, now time.Time) error {
	start, count := p.window(m, now)

	if p.Calendar.Hour(now) >= p.CutoffHour {
		return shared.ErrExemptionTooLate
	}
	if count >= WeeklyExemptionQuota {
		return shared.ErrQuotaExhausted
	}

	m.WeekWindowStart = start
	m.WeekExemptionCount = count + 1
	m.ExemptionActive = true
	m.LastExemptionAt = now
	return nil
}

// Revoke отменяет активное освобождение и возвращает единицу квоты.
// Возвращает ErrExemptionNotActive, если отменять нечего.
func (p ExemptionPolicy) Revoke(m *Member) error {
	if !m.ExemptionActive {
		return shared.ErrExemptionNotActive
	}
	m.ExemptionActive = false
	if m.WeekExemptionCount > 0 {
		m.WeekExemptionCount--
	}
	return nil
}

// Remaining возвращает, сколько освобождений доступно на момент now.
func (p ExemptionPolicy) Remaining(m *Member, now time.Time) int {
	_, count := p.window(m, now)
	if left := WeeklyExemptionQuota - count; left > 0 {
		return left
	}
	return 0
}
