package attendance

import (
	"context"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationKind - тип сообщения группе после проверки.
type NotificationKind string

const (
	// NotificationAllSuccess - все проснулись, серия выросла.
	NotificationAllSuccess NotificationKind = "all_success"
	// NotificationSomeFailed - кто-то проспал, серия обнулена.
	NotificationSomeFailed NotificationKind = "some_failed"
)

// Notification - данные для сообщения группе.
type Notification struct {
	Kind    NotificationKind
	GroupID shared.GroupID

	// Streak - новая серия (для NotificationAllSuccess).
	Streak int

	// FailedNames и PreviousStreak - для NotificationSomeFailed.
	FailedNames    []string
	PreviousStreak int

	BestStreak  int
	ExemptNames []string
}

// Notifier доставляет сообщение группе.
// Ошибка доставки не откатывает уже сохранённое состояние.
type Notifier interface {
	Notify(ctx context.Context, groupID shared.GroupID, n Notification) error
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище состояния групп.
type Repository interface {
	// LoadAll возвращает все группы вместе с участниками.
	// Ошибка при старте фатальна.
	LoadAll(ctx context.Context) ([]*Group, error)

	// SaveGroup сохраняет снимок группы целиком (группа и все участники).
	SaveGroup(ctx context.Context, g *Group) error
}
