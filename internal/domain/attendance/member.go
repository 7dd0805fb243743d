package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// WakeupTime - обещанное время подъёма с точностью до минуты.
type WakeupTime struct {
	Hour   int
	Minute int
}

// NewWakeupTime создаёт время подъёма с проверкой диапазонов.
// Возвращает ErrMalformedTime, если час вне 0-23 или минута вне 0-59.
func NewWakeupTime(hour, minute int) (WakeupTime, error) {
	w := WakeupTime{Hour: hour, Minute: minute}
	if !w.IsValid() {
		return WakeupTime{}, shared.ErrMalformedTime
	}
	return w, nil
}

// MustWakeupTime создаёт WakeupTime и паникует при ошибке. Только для констант и тестов.
func MustWakeupTime(hour, minute int) WakeupTime {
	w, err := NewWakeupTime(hour, minute)
	if err != nil {
		panic(err)
	}
	return w
}

// ParseWakeupTime разбирает строку вида "7:05" или "07:05".
func ParseWakeupTime(s string) (WakeupTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return WakeupTime{}, shared.ErrMalformedTime
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return WakeupTime{}, shared.ErrMalformedTime
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return WakeupTime{}, shared.ErrMalformedTime
	}
	return NewWakeupTime(hour, minute)
}

// IsValid проверяет диапазоны часа и минуты.
func (w WakeupTime) IsValid() bool {
	return w.Hour >= 0 && w.Hour <= 23 && w.Minute >= 0 && w.Minute <= 59
}

// String возвращает время в формате "H:MM".
func (w WakeupTime) String() string {
	return fmt.Sprintf("%d:%02d", w.Hour, w.Minute)
}

// MarshalText реализует encoding.TextMarshaler ("H:MM").
func (w WakeupTime) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (w *WakeupTime) UnmarshalText(text []byte) error {
	parsed, err := ParseWakeupTime(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DeadlineOn возвращает крайний момент отметки в день, содержащий t.
func (w WakeupTime) DeadlineOn(t time.Time, cal timeutil.Calendar) time.Time {
	return cal.At(t, w.Hour, w.Minute)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: MEMBER
// ══════════════════════════════════════════════════════════════════════════════

// Member - состояние участника внутри одной группы.
// Принадлежит ровно одной группе и меняется только под её блокировкой.
type Member struct {
	// ID - идентификатор пользователя в транспорте.
	ID shared.UserID

	// DisplayName - имя для сообщений о проспавших.
	DisplayName string

	// JoinedAt - момент первого появления в группе, задаёт порядок обхода.
	JoinedAt time.Time

	// WakeupTime - обещанное время подъёма; nil - обещания нет,
	// участник не учитывается при проверке.
	WakeupTime *WakeupTime

	// LastReportAt - момент последней принятой отметки; нулевое значение - не отмечался.
	LastReportAt time.Time

	// ReportedToday - отметка принята в текущем цикле.
	ReportedToday bool

	// ExemptionActive - освобождение на ближайшую проверку.
	ExemptionActive bool

	// LastExemptionAt - когда последний раз взято освобождение. Только для диагностики.
	LastExemptionAt time.Time

	// WeekExemptionCount - использовано освобождений в текущем недельном окне (0 или 1).
	WeekExemptionCount int

	// WeekWindowStart - полночь первого дня текущего недельного окна.
	WeekWindowStart time.Time
}

// NewMember создаёт участника без обещанного времени.
func NewMember(id shared.UserID, displayName string, now time.Time, cal timeutil.Calendar) (*Member, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidMember
	}
	return &Member{
		ID:              id,
		DisplayName:     strings.TrimSpace(displayName),
		JoinedAt:        now,
		WeekWindowStart: cal.StartOfWeek(now),
	}, nil
}

// HasPledge возвращает true, если участник обещал время подъёма.
func (m *Member) HasPledge() bool {
	return m.WakeupTime != nil
}

// SetWakeupTime задаёт обещанное время и сбрасывает отметку текущего цикла,
// чтобы после смены времени можно было отметиться заново.
func (m *Member) SetWakeupTime(w WakeupTime) {
	m.WakeupTime = &w
	m.ReportedToday = false
}

// Rename обновляет отображаемое имя, если транспорт прислал новое.
func (m *Member) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == m.DisplayName {
		return false
	}
	m.DisplayName = name
	return true
}

// Name возвращает имя для сообщений: DisplayName или ID, если имени нет.
func (m *Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID.String()
}

// Clone возвращает независимую копию участника.
func (m *Member) Clone() *Member {
	c := *m
	if m.WakeupTime != nil {
		w := *m.WakeupTime
		c.WakeupTime = &w
	}
	return &c
}

// Validate проверяет инварианты участника.
func (m *Member) Validate() error {
	if !m.ID.IsValid() {
		return shared.ErrInvalidMember
	}
	if m.WakeupTime != nil && !m.WakeupTime.IsValid() {
		return shared.ErrMalformedTime
	}
	if m.WeekExemptionCount < 0 || m.WeekExemptionCount > WeeklyExemptionQuota {
		return shared.WrapError("attendance", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("week exemption count %d out of range", m.WeekExemptionCount), nil)
	}
	return nil
}
