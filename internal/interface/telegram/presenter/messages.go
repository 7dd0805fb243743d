// Package presenter formats replies and group announcements for Telegram.
package presenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/application/query"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// Тексты ответов бота. Все сообщения на японском, как в исходном боте.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultUserName - имя, если транспорт не прислал имени пользователя.
const DefaultUserName = "ユーザー"

const (
	msgWakeupSuccess          = "%sさん、起床報告を記録しました✔️"
	msgWakeupAlreadyReported  = "今日はすでに起床報告済みです！"
	msgTimeSetSuccess         = "OK！%sに設定しました⏰"
	msgTimeFormatError        = "時間の形式が正しくありません。例: 7時に起きる または 7:00に起きる"
	msgNoTimeSet              = "起床時間が設定されていません。\n7時に起きる で設定してください。"
	msgGoodSleepSuccess       = "%sさん、明日の早起きはパスします。ゆっくりぐっすり眠ってください😴\n（週に1回のぐっすり機能を使用しました）"
	msgGoodSleepTimeLimit     = "ぐっすり機能は%d時までに宣言する必要があります。"
	msgGoodSleepWeeklyLimit   = "ぐっすり機能は週に1回しか使用できません。"
	msgGoodSleepCancelSuccess = "%sさん、ぐっすり機能の使用を取り消しました。明日の早起きは通常通り必要です。"
	msgGoodSleepNotUsed       = "ぐっすり機能を使用していないため、取り消しできません。"
	msgAllSuccess             = "全員が時間通りに起きました！連続記録は%d日目です🎉"
	msgSomeoneFailure         = "⚠️ %sさんが寝坊しました…連続記録はリセットされます💀\n（%d日でした）"
	msgRecordStatus           = "現在の連続記録: %d日\n最高連続記録: %d日"
	msgUserSettings           = "%sさんの起床時間: %s"
	msgUnknownCommand         = "コマンドが認識できませんでした。\n「使い方」でヘルプを表示します。"
	msgTestAggregation        = "テスト用に集計を実行しました。"
	msgTestTimeSet            = "テスト用時間を%sに設定しました。"
	msgTestTimeReset          = "テスト用時間を解除しました。"
	msgSweepBusy              = "集計はすでに実行中です。"
	msgNotAdmin               = "このコマンドは管理者のみ使用できます。"
	msgGroupOnly              = "このボットはグループで使ってください。"
	msgInternalError          = "エラーが発生しました。しばらくしてからもう一度お試しください。"
)

// HelpText - справка по командам.
const HelpText = `起きるくんneo使い方ガイド

📱 基本コマンド
・「7時に起きる」「6:30に起きる」
→ 起床時間を設定

・「起きた」「起床」「おはよう」「朝」
→ 起床報告

・「ぐっすり」「明日パス」「明日休み」
→ 翌日の早起きをパス（週1回まで）

・「ぐっすり取消」
→ パスを取り消し

・「記録確認」「記録」
→ 連続記録・最高記録を確認

・「設定確認」「設定」
→ 自分の起床時間を確認

・「使い方」「ヘルプ」「help」
→ コマンド一覧、ヘルプを表示

🔄 使い方の流れ
起床時間を設定（例：「7時に起きる」）
↓
翌日設定時間までに起床報告（例：「おはよう！」）
↓
12:00に結果集計→全員成功でチャレンジ達成。連続記録を目指そう！

😴 ぐっすり機能（特別パス）
使用条件：22:00より前に宣言必須
使用回数：週に1回まで
取り消し：「ぐっすり取消」で取消可能

📊 集計について
・毎日正午に自動集計
・全員成功→連続記録UP
・誰か失敗→連続記録リセット

⚠️ 注意点
・起床報告は設定時間より前に必要
・同じ日の起床報告は1回まで
・起床時間未設定は集計対象外`

// nameSeparator соединяет имена проспавших.
const nameSeparator = "さん、"

// ─────────────────────────────────────────────────────────────────────────────
// PRESENTER
// ─────────────────────────────────────────────────────────────────────────────

// Presenter форматирует ответы. CutoffHour подставляется в текст об опоздании
// с освобождением.
type Presenter struct {
	CutoffHour int
}

// New создаёт презентер.
func New(cutoffHour int) *Presenter {
	if cutoffHour <= 0 {
		cutoffHour = attendance.DefaultCutoffHour
	}
	return &Presenter{CutoffHour: cutoffHour}
}

// userName возвращает имя или имя по умолчанию.
func userName(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultUserName
	}
	return name
}

// WakeupRecorded - ответ на принятую отметку.
func (p *Presenter) WakeupRecorded(res *command.ReportWakeupResult) string {
	return fmt.Sprintf(msgWakeupSuccess, userName(res.UserName))
}

// TimeSet - ответ на установку времени.
func (p *Presenter) TimeSet(res *command.SetWakeupTimeResult) string {
	return fmt.Sprintf(msgTimeSetSuccess, res.WakeupTime)
}

// TimeFormatError - время не распознано или вне диапазона.
func (p *Presenter) TimeFormatError() string {
	return msgTimeFormatError
}

// ExemptionDeclared - освобождение принято.
func (p *Presenter) ExemptionDeclared(res *command.ExemptionResult) string {
	return fmt.Sprintf(msgGoodSleepSuccess, userName(res.UserName))
}

// ExemptionRevoked - освобождение отменено.
func (p *Presenter) ExemptionRevoked(res *command.ExemptionResult) string {
	return fmt.Sprintf(msgGoodSleepCancelSuccess, userName(res.UserName))
}

// Record - текущая и лучшая серия группы.
func (p *Presenter) Record(dto *query.StreakDTO) string {
	return fmt.Sprintf(msgRecordStatus, dto.Current, dto.Best)
}

// Settings - обещанное время участника.
func (p *Presenter) Settings(dto *query.SettingsDTO) string {
	if !dto.HasPledge() {
		return msgNoTimeSet
	}
	return fmt.Sprintf(msgUserSettings, userName(dto.UserName), dto.WakeupTime)
}

// Help - справка.
func (p *Presenter) Help() string {
	return HelpText
}

// UnknownCommand - команда не распознана.
func (p *Presenter) UnknownCommand() string {
	return msgUnknownCommand
}

// GroupOnly - ответ в личном чате.
func (p *Presenter) GroupOnly() string {
	return msgGroupOnly + "\n\n" + HelpText
}

// SweepTriggered - ответ администратору после ручного запуска проверки.
func (p *Presenter) SweepTriggered(report *command.SweepReport) string {
	if report == nil {
		return msgTestAggregation
	}
	return fmt.Sprintf("%s（%d グループ / スキップ %d）", msgTestAggregation, report.Groups, report.Skipped)
}

// TestTimeSet - часы бота закреплены на времени w.
func (p *Presenter) TestTimeSet(w attendance.WakeupTime) string {
	return fmt.Sprintf(msgTestTimeSet, w)
}

// TestTimeReset - часы бота вернулись к реальному времени.
func (p *Presenter) TestTimeReset() string {
	return msgTestTimeReset
}

// ─────────────────────────────────────────────────────────────────────────────
// ERRORS
// ─────────────────────────────────────────────────────────────────────────────

// Error переводит ошибку команды в текст ответа.
func (p *Presenter) Error(err error) string {
	switch {
	case errors.Is(err, shared.ErrNoPledge):
		return msgNoTimeSet
	case errors.Is(err, shared.ErrDuplicateReport):
		return msgWakeupAlreadyReported
	case errors.Is(err, shared.ErrMalformedTime):
		return msgTimeFormatError
	case errors.Is(err, shared.ErrExemptionTooLate):
		return fmt.Sprintf(msgGoodSleepTimeLimit, p.CutoffHour)
	case errors.Is(err, shared.ErrQuotaExhausted):
		return msgGoodSleepWeeklyLimit
	case errors.Is(err, shared.ErrExemptionNotActive):
		return msgGoodSleepNotUsed
	case errors.Is(err, shared.ErrSweepInProgress):
		return msgSweepBusy
	case errors.Is(err, shared.ErrNotAdmin):
		return msgNotAdmin
	default:
		return msgInternalError
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GROUP NOTIFICATIONS
// ─────────────────────────────────────────────────────────────────────────────

// Notification - объявление группе по итогам проверки.
func (p *Presenter) Notification(n attendance.Notification) string {
	switch n.Kind {
	case attendance.NotificationAllSuccess:
		return fmt.Sprintf(msgAllSuccess, n.Streak)
	case attendance.NotificationSomeFailed:
		names := make([]string, len(n.FailedNames))
		for i, name := range n.FailedNames {
			names[i] = userName(name)
		}
		return fmt.Sprintf(msgSomeoneFailure, strings.Join(names, nameSeparator), n.PreviousStreak)
	default:
		return ""
	}
}
