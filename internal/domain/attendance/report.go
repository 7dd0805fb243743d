package attendance

import (
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// SubmitReport принимает отметку "проснулся".
//
// Возвращает ErrNoPledge, если время подъёма не задано, и ErrDuplicateReport,
// если в этот календарный день отметка уже принята. Опоздание здесь не
// проверяется: отметка после дедлайна принимается и считается неудачей
// только при ежедневной проверке.
func SubmitReport(m *Member, now time.Time, cal timeutil.Calendar) error {
	if !m.HasPledge() {
		return shared.ErrNoPledge
	}
	if m.ReportedToday && !m.LastReportAt.IsZero() && cal.SameDay(m.LastReportAt, now) {
		return shared.ErrDuplicateReport
	}

	m.LastReportAt = now
	m.ReportedToday = true
	return nil
}

// ReportedOnTime возвращает true, если последняя отметка сделана в тот же
// календарный день, что и now, и не позже обещанного времени.
func ReportedOnTime(m *Member, now time.Time, cal timeutil.Calendar) bool {
	if !m.HasPledge() || m.LastReportAt.IsZero() {
		return false
	}
	if !cal.SameDay(m.LastReportAt, now) {
		return false
	}
	deadline := m.WakeupTime.DeadlineOn(now, cal)
	return !m.LastReportAt.After(deadline)
}
