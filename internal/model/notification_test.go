package model

import (
	"testing"
	"time"
)

func TestNotifiedFlags_Latch(t *testing.T) {
	for _, rule := range NotificationRules {
		t.Run(string(rule), func(t *testing.T) {
			var flags NotifiedFlags
			if flags.Fired(rule) {
				t.Fatalf("初期状態で %s が発火済みになっている", rule)
			}
			if err := flags.Latch(rule); err != nil {
				t.Fatalf("Latch() error = %v", err)
			}
			if !flags.Fired(rule) {
				t.Errorf("Latch() 後に %s が発火済みになっていない", rule)
			}
			// 他のルールには影響しない
			for _, other := range NotificationRules {
				if other != rule && flags.Fired(other) {
					t.Errorf("Latch(%s) が %s に影響した", rule, other)
				}
			}
		})
	}
}

func TestNotifiedFlags_LatchUnknown(t *testing.T) {
	var flags NotifiedFlags
	if err := flags.Latch("fireworks"); err == nil {
		t.Error("未知のルールはエラーになるべき")
	}
}

func TestNewNotificationRecord(t *testing.T) {
	now := time.Now()
	record := NewNotificationRecord("Manuela", RuleWelcome, "hola", now)

	if record.GuestName != "Manuela" {
		t.Errorf("NewNotificationRecord() guest_name = %v, want %v", record.GuestName, "Manuela")
	}
	if record.Rule != RuleWelcome {
		t.Errorf("NewNotificationRecord() rule = %v, want %v", record.Rule, RuleWelcome)
	}
	if !record.CreatedAt.Equal(now) {
		t.Errorf("NewNotificationRecord() created_at = %v, want %v", record.CreatedAt, now)
	}
}
