package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseChecklistItem(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "照明", id: "lights"},
		{name: "ゴミ出し", id: "trash"},
		{name: "存在しない項目", id: "pool", wantErr: ErrUnknownItem},
		{name: "空文字", id: "", wantErr: ErrUnknownItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChecklistItem(tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseChecklistItem() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && string(got) != tt.id {
				t.Errorf("ParseChecklistItem() = %v, want %v", got, tt.id)
			}
		})
	}
}

func TestChecklist_Complete(t *testing.T) {
	c := NewChecklist()
	for _, item := range ChecklistItems {
		if c.Complete() {
			t.Fatalf("項目 %s の前に完了扱いになっている", item)
		}
		c[item] = true
	}
	if !c.Complete() {
		t.Error("全項目チェック後は完了になるべき")
	}
	c[ItemUmbrella] = false
	if c.Complete() {
		t.Error("1項目戻したら未完了になるべき")
	}
}

func TestReservation_ResetStayScoped(t *testing.T) {
	now := time.Now()
	r := NewReservation()
	r.GuestName = "Manuela"
	r.DoorCode = "0008505#"
	r.CheckIn = now
	r.CheckOut = now.Add(48 * time.Hour)
	r.Feedback = "gracias"
	r.Issues = []Issue{{Text: "AC", Status: IssuePending}}
	r.Checklist[ItemLights] = true
	r.Notified = NotifiedFlags{Welcome: true, Sunset: true, QuietHours: true, Lunch: true, RainSafety: true, CheckoutReminder: true}
	r.CheckoutTime = &now

	r.ResetStayScoped()

	if r.Feedback != "" || len(r.Issues) != 0 || r.CheckoutTime != nil {
		t.Errorf("滞在スコープのフィールドが初期化されていない: %+v", r)
	}
	if r.Notified != (NotifiedFlags{}) {
		t.Errorf("Notified = %+v, want all false", r.Notified)
	}
	for _, item := range ChecklistItems {
		if r.Checklist[item] {
			t.Errorf("Checklist[%s] = true, want false", item)
		}
	}
	if r.GuestName != "Manuela" || r.DoorCode != "0008505#" || !r.CheckIn.Equal(now) {
		t.Error("予約情報のフィールドは保持されるべき")
	}
}

func TestReservation_Clone(t *testing.T) {
	r := NewReservation()
	r.Issues = []Issue{{Text: "a"}}
	c := r.Clone()
	c.Issues[0].Text = "b"
	c.Checklist[ItemTrash] = true

	if r.Issues[0].Text != "a" {
		t.Error("Cloneはissuesを共有してはいけない")
	}
	if r.Checklist[ItemTrash] {
		t.Error("Cloneはchecklistを共有してはいけない")
	}
}

func TestReservation_Validate(t *testing.T) {
	now := time.Now()
	valid := NewReservation()
	valid.GuestName = "Paola"
	valid.GuestPin = "1234"
	valid.CheckIn = now
	valid.CheckOut = now.Add(24 * time.Hour)
	valid.MaxGuests = 3

	tests := []struct {
		name    string
		mutate  func(r *Reservation)
		wantErr bool
	}{
		{name: "正常系", mutate: func(r *Reservation) {}},
		{name: "ゲスト名なし", mutate: func(r *Reservation) { r.GuestName = "" }, wantErr: true},
		{name: "PINが数字でない", mutate: func(r *Reservation) { r.GuestPin = "12a4" }, wantErr: true},
		{name: "PINが長すぎる", mutate: func(r *Reservation) { r.GuestPin = "12345678901" }, wantErr: true},
		{name: "チェックインなし", mutate: func(r *Reservation) { r.CheckIn = time.Time{} }, wantErr: true},
		{name: "人数が負", mutate: func(r *Reservation) { r.MaxGuests = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid.Clone()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidReservation) {
				t.Errorf("Validate() error = %v, want ErrInvalidReservation", err)
			}
		})
	}
}

func TestParsePetPolicy(t *testing.T) {
	tests := map[string]PetPolicy{
		"No":                  PetsNo,
		"":                    PetsNo,
		"Si (1, bajo reglas)": PetsOneUnderRules,
		"Si (2, bajo reglas)": PetsTwoUnderRules,
		"Sí (Bajo reglas)":    PetsOneUnderRules,
	}
	for in, want := range tests {
		if got := ParsePetPolicy(in); got != want {
			t.Errorf("ParsePetPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}
