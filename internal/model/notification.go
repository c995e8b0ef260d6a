package model

import (
	"fmt"
	"time"
)

// NotificationRule は滞在中に一度だけ発火する通知ルールの種類を表します
type NotificationRule string

const (
	// RuleWelcome はチェックイン15分後の歓迎メッセージです
	RuleWelcome NotificationRule = "welcome"
	// RuleSunset はチェックイン当日18:30のパーゴラ収納のお願いです
	RuleSunset NotificationRule = "sunset"
	// RuleQuietHours はチェックイン当日21:45の静粛時間のお知らせです
	RuleQuietHours NotificationRule = "quiet_hours"
	// RuleLunch はチェックイン翌日11:30の昼食のおすすめです
	RuleLunch NotificationRule = "lunch"
	// RuleRainSafety は降雨リスクがあるときの安全のお知らせです
	RuleRainSafety NotificationRule = "rain_safety"
	// RuleCheckoutReminder はチェックアウト4時間前のリマインダーです
	RuleCheckoutReminder NotificationRule = "checkout_reminder"
)

// NotificationRules は評価順に並んだ全ルールです
var NotificationRules = []NotificationRule{
	RuleWelcome, RuleSunset, RuleQuietHours, RuleLunch, RuleRainSafety, RuleCheckoutReminder,
}

// NotifiedFlags はルールごとの発火済みラッチです
// 一度trueになったフラグはゲストが変わるまでfalseに戻りません
type NotifiedFlags struct {
	Welcome          bool
	Sunset           bool
	QuietHours       bool
	Lunch            bool
	RainSafety       bool
	CheckoutReminder bool
}

// Fired は指定したルールが発火済みかを返します
func (f NotifiedFlags) Fired(rule NotificationRule) bool {
	switch rule {
	case RuleWelcome:
		return f.Welcome
	case RuleSunset:
		return f.Sunset
	case RuleQuietHours:
		return f.QuietHours
	case RuleLunch:
		return f.Lunch
	case RuleRainSafety:
		return f.RainSafety
	case RuleCheckoutReminder:
		return f.CheckoutReminder
	}
	return false
}

// Latch は指定したルールを発火済みにします
func (f *NotifiedFlags) Latch(rule NotificationRule) error {
	switch rule {
	case RuleWelcome:
		f.Welcome = true
	case RuleSunset:
		f.Sunset = true
	case RuleQuietHours:
		f.QuietHours = true
	case RuleLunch:
		f.Lunch = true
	case RuleRainSafety:
		f.RainSafety = true
	case RuleCheckoutReminder:
		f.CheckoutReminder = true
	default:
		return fmt.Errorf("unknown notification rule %q", rule)
	}
	return nil
}

// NotificationRecord は発火した通知の履歴レコードです
type NotificationRecord struct {
	ID        int              `db:"id"`
	GuestName string           `db:"guest_name"`
	Rule      NotificationRule `db:"rule"`
	Message   string           `db:"message"`
	CreatedAt time.Time        `db:"created_at"`
}

// NewNotificationRecord は発火したルールから履歴レコードを作成します
func NewNotificationRecord(guestName string, rule NotificationRule, message string, firedAt time.Time) NotificationRecord {
	return NotificationRecord{
		GuestName: guestName,
		Rule:      rule,
		Message:   message,
		CreatedAt: firedAt,
	}
}
