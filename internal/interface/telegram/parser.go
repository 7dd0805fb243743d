package telegram

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND PARSER
// Maps free text and slash commands to intents. Free text follows the group
// chat grammar: "7時に起きる", "ぐっすり", "おはよう", etc.
// ══════════════════════════════════════════════════════════════════════════════

// IntentKind identifies what the user asked for.
type IntentKind int

const (
	// IntentNone means the message is ordinary chat and gets no reply.
	IntentNone IntentKind = iota
	IntentSetTime
	IntentReport
	IntentDeclareExemption
	IntentRevokeExemption
	IntentRecord
	IntentSettings
	IntentHelp
	IntentUnknownCommand

	// Admin intents.
	IntentSweep
	IntentTestTime
	IntentTestTimeReset
)

var intentNames = map[IntentKind]string{
	IntentNone:             "none",
	IntentSetTime:          "set_time",
	IntentReport:           "report",
	IntentDeclareExemption: "declare_exemption",
	IntentRevokeExemption:  "revoke_exemption",
	IntentRecord:           "record",
	IntentSettings:         "settings",
	IntentHelp:             "help",
	IntentUnknownCommand:   "unknown_command",
	IntentSweep:            "sweep",
	IntentTestTime:         "test_time",
	IntentTestTimeReset:    "test_time_reset",
}

// String returns the intent name used in logs.
func (k IntentKind) String() string {
	if s, ok := intentNames[k]; ok {
		return s
	}
	return "intent(" + strconv.Itoa(int(k)) + ")"
}

// Admin reports whether the intent is restricted to administrators.
func (k IntentKind) Admin() bool {
	return k == IntentSweep || k == IntentTestTime || k == IntentTestTimeReset
}

// Intent is a parsed message.
type Intent struct {
	Kind IntentKind

	// Hour and Minute are set for IntentSetTime and IntentTestTime.
	Hour   int
	Minute int

	// Malformed is true when a time was recognised but is out of range.
	Malformed bool

	// Command is the slash command name, if the message was one.
	Command string
}

var (
	setTimePattern  = regexp.MustCompile(`(\d{1,2})(?::|(時))(\d{0,2})に起きる`)
	testTimePattern = regexp.MustCompile(`^テスト時間(\d{1,2}):(\d{2})$`)
	slashTimeArgs   = regexp.MustCompile(`^(\d{1,2})(?::|時)?(\d{0,2})$`)
	mentionPrefix   = regexp.MustCompile(`^@\S+\s*`)

	exemptionWords = []string{"ぐっすり", "明日パス", "明日休み"}
	revokeWords    = []string{"ぐっすり取消", "ぐっすり取り消し", "ぐっすりキャンセル"}
	recordWords    = []string{"記録確認", "記録"}
	settingsWords  = []string{"設定確認", "設定"}
	helpWords      = []string{"使い方", "ヘルプ", "help"}
	wakeupWords    = []string{"起きた", "起床", "おはよう", "朝"}
)

const (
	sweepWord     = "テスト集計"
	testTimeReset = "reset"
)

// Normalize folds full-width digits and punctuation to their ASCII forms and
// applies NFC, so "７：３０に起きる" parses like "7:30に起きる".
func Normalize(text string) string {
	return norm.NFC.String(width.Fold.String(text))
}

// ParseText parses a free-text group message. A leading @mention is ignored.
func ParseText(text string) Intent {
	text = strings.TrimSpace(Normalize(text))
	text = strings.TrimSpace(mentionPrefix.ReplaceAllString(text, ""))
	if text == "" {
		return Intent{Kind: IntentNone}
	}

	if text == sweepWord {
		return Intent{Kind: IntentSweep}
	}
	if m := testTimePattern.FindStringSubmatch(text); m != nil {
		return timeIntent(IntentTestTime, m[1], m[2])
	}
	if m := setTimePattern.FindStringSubmatch(text); m != nil {
		return timeIntent(IntentSetTime, m[1], m[3])
	}

	switch {
	case oneOf(text, exemptionWords):
		return Intent{Kind: IntentDeclareExemption}
	case oneOf(text, revokeWords):
		return Intent{Kind: IntentRevokeExemption}
	case oneOf(text, recordWords):
		return Intent{Kind: IntentRecord}
	case oneOf(text, settingsWords):
		return Intent{Kind: IntentSettings}
	case oneOf(text, helpWords):
		return Intent{Kind: IntentHelp}
	}

	for _, w := range wakeupWords {
		if strings.Contains(text, w) {
			return Intent{Kind: IntentReport}
		}
	}
	return Intent{Kind: IntentNone}
}

// ParseCommand parses a slash command with its arguments.
func ParseCommand(cmd, args string) Intent {
	args = strings.TrimSpace(Normalize(args))
	intent := Intent{Command: cmd}

	switch strings.ToLower(cmd) {
	case "time":
		m := slashTimeArgs.FindStringSubmatch(args)
		if m == nil {
			intent.Kind = IntentSetTime
			intent.Malformed = true
			return intent
		}
		intent = timeIntent(IntentSetTime, m[1], m[2])
	case "wake":
		intent.Kind = IntentReport
	case "pass":
		intent.Kind = IntentDeclareExemption
	case "unpass":
		intent.Kind = IntentRevokeExemption
	case "record":
		intent.Kind = IntentRecord
	case "settings":
		intent.Kind = IntentSettings
	case "help", "start":
		intent.Kind = IntentHelp
	case "sweep":
		intent.Kind = IntentSweep
	case "testtime":
		if strings.EqualFold(args, testTimeReset) {
			intent.Kind = IntentTestTimeReset
			return intent
		}
		m := slashTimeArgs.FindStringSubmatch(args)
		if m == nil {
			intent.Kind = IntentTestTime
			intent.Malformed = true
			return intent
		}
		intent = timeIntent(IntentTestTime, m[1], m[2])
	default:
		intent.Kind = IntentUnknownCommand
	}
	intent.Command = cmd
	return intent
}

// timeIntent builds a time intent; an empty minute means :00.
func timeIntent(kind IntentKind, hourStr, minuteStr string) Intent {
	intent := Intent{Kind: kind}
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		intent.Malformed = true
		return intent
	}
	minute := 0
	if minuteStr != "" {
		if minute, err = strconv.Atoi(minuteStr); err != nil {
			intent.Malformed = true
			return intent
		}
	}
	intent.Hour, intent.Minute = hour, minute
	intent.Malformed = hour < 0 || hour > 23 || minute < 0 || minute > 59
	return intent
}

func oneOf(text string, words []string) bool {
	for _, w := range words {
		if text == w {
			return true
		}
	}
	return false
}
