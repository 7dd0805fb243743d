package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"hour only", "7時に起きる", Intent{Kind: IntentSetTime, Hour: 7}},
		{"hour and minute with kanji", "6時30に起きる", Intent{Kind: IntentSetTime, Hour: 6, Minute: 30}},
		{"colon form", "6:30に起きる", Intent{Kind: IntentSetTime, Hour: 6, Minute: 30}},
		{"full-width digits", "７：０５に起きる", Intent{Kind: IntentSetTime, Hour: 7, Minute: 5}},
		{"embedded in sentence", "明日は5:45に起きるよ", Intent{Kind: IntentSetTime, Hour: 5, Minute: 45}},
		{"hour out of range", "25時に起きる", Intent{Kind: IntentSetTime, Hour: 25, Malformed: true}},
		{"minute out of range", "7:75に起きる", Intent{Kind: IntentSetTime, Hour: 7, Minute: 75, Malformed: true}},
		{"report keyword", "おはようございます！", Intent{Kind: IntentReport}},
		{"report substring", "今起きた", Intent{Kind: IntentReport}},
		{"morning", "朝", Intent{Kind: IntentReport}},
		{"exemption", "ぐっすり", Intent{Kind: IntentDeclareExemption}},
		{"exemption alias", " 明日休み ", Intent{Kind: IntentDeclareExemption}},
		{"revoke", "ぐっすり取消", Intent{Kind: IntentRevokeExemption}},
		{"revoke alias", "ぐっすりキャンセル", Intent{Kind: IntentRevokeExemption}},
		{"record", "記録確認", Intent{Kind: IntentRecord}},
		{"record short", "記録", Intent{Kind: IntentRecord}},
		{"settings", "設定", Intent{Kind: IntentSettings}},
		{"help", "使い方", Intent{Kind: IntentHelp}},
		{"help latin", "help", Intent{Kind: IntentHelp}},
		{"mention stripped", "@okiru_bot 記録", Intent{Kind: IntentRecord}},
		{"sweep", "テスト集計", Intent{Kind: IntentSweep}},
		{"sweep with mention", "@Bot テスト集計", Intent{Kind: IntentSweep}},
		{"test time", "テスト時間6:45", Intent{Kind: IntentTestTime, Hour: 6, Minute: 45}},
		{"exact match only", "ぐっすり眠れた", Intent{Kind: IntentNone}},
		{"chatter", "こんにちは", Intent{Kind: IntentNone}},
		{"empty", "   ", Intent{Kind: IntentNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseText(tt.text))
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		cmd, args string
		want      Intent
	}{
		{"time", "7:30", Intent{Kind: IntentSetTime, Hour: 7, Minute: 30, Command: "time"}},
		{"time", "6", Intent{Kind: IntentSetTime, Hour: 6, Command: "time"}},
		{"time", "６時", Intent{Kind: IntentSetTime, Hour: 6, Command: "time"}},
		{"time", "soon", Intent{Kind: IntentSetTime, Malformed: true, Command: "time"}},
		{"time", "24:00", Intent{Kind: IntentSetTime, Hour: 24, Malformed: true, Command: "time"}},
		{"wake", "", Intent{Kind: IntentReport, Command: "wake"}},
		{"pass", "", Intent{Kind: IntentDeclareExemption, Command: "pass"}},
		{"unpass", "", Intent{Kind: IntentRevokeExemption, Command: "unpass"}},
		{"record", "", Intent{Kind: IntentRecord, Command: "record"}},
		{"settings", "", Intent{Kind: IntentSettings, Command: "settings"}},
		{"start", "", Intent{Kind: IntentHelp, Command: "start"}},
		{"sweep", "", Intent{Kind: IntentSweep, Command: "sweep"}},
		{"testtime", "5:59", Intent{Kind: IntentTestTime, Hour: 5, Minute: 59, Command: "testtime"}},
		{"testtime", "RESET", Intent{Kind: IntentTestTimeReset, Command: "testtime"}},
		{"nope", "", Intent{Kind: IntentUnknownCommand, Command: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd+"_"+tt.args, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.cmd, tt.args))
		})
	}
}

func TestIntentKind(t *testing.T) {
	assert.True(t, IntentSweep.Admin())
	assert.True(t, IntentTestTimeReset.Admin())
	assert.False(t, IntentReport.Admin())
	assert.Equal(t, "declare_exemption", IntentDeclareExemption.String())
	assert.Equal(t, "intent(99)", IntentKind(99).String())
}
