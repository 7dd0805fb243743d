package attendance

import (
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Verdict - результат участника в ежедневной проверке.
type Verdict string

const (
	// VerdictSuccess - отметился вовремя.
	VerdictSuccess Verdict = "success"
	// VerdictExempt - был освобождён, считается успехом.
	VerdictExempt Verdict = "exempt"
	// VerdictFailed - не отметился или отметился позже обещанного времени.
	VerdictFailed Verdict = "failed"
)

// OutcomeKind - итог проверки для группы.
type OutcomeKind string

const (
	// OutcomeNone - в группе нет участников с обещанным временем, проверка пропущена.
	OutcomeNone OutcomeKind = "none"
	// OutcomeAllSuccess - проспавших нет, серия продолжается.
	OutcomeAllSuccess OutcomeKind = "all_success"
	// OutcomeSomeFailed - кто-то проспал, серия обнуляется.
	OutcomeSomeFailed OutcomeKind = "some_failed"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME
// ══════════════════════════════════════════════════════════════════════════════

// MemberResult - вердикт одного участника.
type MemberResult struct {
	MemberID shared.UserID
	Name     string
	Verdict  Verdict
}

// Outcome - результат проверки одной группы.
type Outcome struct {
	GroupID shared.GroupID
	Kind    OutcomeKind

	// Streak - серия после проверки.
	Streak int

	// PreviousStreak - серия до проверки.
	PreviousStreak int

	// BestStreak - лучшая серия после проверки.
	BestStreak int

	// FailedNames - имена проспавших в порядке вступления.
	FailedNames []string

	// ExemptNames - имена освобождённых.
	ExemptNames []string

	// Results - вердикты всех участников с обещанным временем.
	Results []MemberResult

	EvaluatedAt time.Time
}

// Evaluate выполняет ежедневную проверку группы и применяет её к состоянию.
//
// Для каждого участника с обещанным временем:
//  1. активное освобождение - успех, флаг освобождения снимается;
//  2. иначе успех, только если отметка сделана сегодня и не позже обещанного времени;
//  3. ReportedToday всегда сбрасывается.
//
// Если ни одного участника с обещанным временем нет, группа не меняется
// и возвращается OutcomeNone.
func Evaluate(g *Group, now time.Time, cal timeutil.Calendar) Outcome {
	out := Outcome{
		GroupID:        g.ID,
		Kind:           OutcomeNone,
		Streak:         g.CurrentStreak,
		PreviousStreak: g.CurrentStreak,
		BestStreak:     g.BestStreak,
		EvaluatedAt:    now,
	}

	for _, m := range g.OrderedMembers() {
		if !m.HasPledge() {
			continue
		}

		var verdict Verdict
		switch {
		case m.ExemptionActive:
			verdict = VerdictExempt
			m.ExemptionActive = false
			out.ExemptNames = append(out.ExemptNames, m.Name())
		case ReportedOnTime(m, now, cal):
			verdict = VerdictSuccess
		default:
			verdict = VerdictFailed
			out.FailedNames = append(out.FailedNames, m.Name())
		}
		m.ReportedToday = false

		out.Results = append(out.Results, MemberResult{MemberID: m.ID, Name: m.Name(), Verdict: verdict})
	}

	if len(out.Results) == 0 {
		return out
	}

	if len(out.FailedNames) == 0 {
		g.CurrentStreak++
		if g.CurrentStreak > g.BestStreak {
			g.BestStreak = g.CurrentStreak
		}
		out.Kind = OutcomeAllSuccess
	} else {
		g.CurrentStreak = 0
		out.Kind = OutcomeSomeFailed
	}
	g.Touch(now)

	out.Streak = g.CurrentStreak
	out.BestStreak = g.BestStreak
	return out
}

// Notification возвращает сообщение для группы; false для OutcomeNone.
func (o Outcome) Notification() (Notification, bool) {
	switch o.Kind {
	case OutcomeAllSuccess:
		return Notification{
			Kind:        NotificationAllSuccess,
			GroupID:     o.GroupID,
			Streak:      o.Streak,
			BestStreak:  o.BestStreak,
			ExemptNames: o.ExemptNames,
		}, true
	case OutcomeSomeFailed:
		return Notification{
			Kind:           NotificationSomeFailed,
			GroupID:        o.GroupID,
			FailedNames:    o.FailedNames,
			PreviousStreak: o.PreviousStreak,
			BestStreak:     o.BestStreak,
			ExemptNames:    o.ExemptNames,
		}, true
	default:
		return Notification{}, false
	}
}
