package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// PetPolicy はペットの受け入れ条件を表します
type PetPolicy string

const (
	// PetsNo はペット不可を表します
	PetsNo PetPolicy = "No"
	// PetsOneUnderRules はルールに従えば1匹まで可を表します
	PetsOneUnderRules PetPolicy = "Si (1, bajo reglas)"
	// PetsTwoUnderRules はルールに従えば2匹まで可を表します
	PetsTwoUnderRules PetPolicy = "Si (2, bajo reglas)"
)

// ParsePetPolicy は保存値からペット条件を復元します
// 旧バージョンの "Sí (Bajo reglas)" は1匹として扱います
func ParsePetPolicy(v string) PetPolicy {
	s := strings.ToLower(strings.TrimSpace(v))
	switch {
	case s == "" || s == "no":
		return PetsNo
	case strings.Contains(s, "2"):
		return PetsTwoUnderRules
	default:
		return PetsOneUnderRules
	}
}

// IssueStatus は報告された問題の対応状況です
type IssueStatus string

const (
	IssuePending    IssueStatus = "Pendiente"
	IssueInProgress IssueStatus = "En proceso"
	IssueResolved   IssueStatus = "Resuelto"
)

// Issue はゲストが報告した問題です
type Issue struct {
	ID     string      `json:"id,omitempty"`
	Date   time.Time   `json:"date"`
	Text   string      `json:"text"`
	Status IssueStatus `json:"status"`
}

// ChecklistItem はチェックアウト時の確認項目IDです
type ChecklistItem string

const (
	ItemLights     ChecklistItem = "lights"
	ItemWindows    ChecklistItem = "windows"
	ItemPergolas   ChecklistItem = "pergolas"
	ItemUmbrella   ChecklistItem = "umbrella"
	ItemBelongings ChecklistItem = "belongings"
	ItemTrash      ChecklistItem = "trash"
)

// ChecklistItems は固定の確認項目一覧です（表示順）
var ChecklistItems = []ChecklistItem{
	ItemLights, ItemWindows, ItemPergolas, ItemUmbrella, ItemBelongings, ItemTrash,
}

// ParseChecklistItem は項目IDを検証します
func ParseChecklistItem(id string) (ChecklistItem, error) {
	for _, item := range ChecklistItems {
		if string(item) == id {
			return item, nil
		}
	}
	return "", fmt.Errorf("%q: %w", id, ErrUnknownItem)
}

// Checklist は項目IDごとの完了状態です
type Checklist map[ChecklistItem]bool

// NewChecklist は全項目が未完了のチェックリストを作成します
func NewChecklist() Checklist {
	c := make(Checklist, len(ChecklistItems))
	for _, item := range ChecklistItems {
		c[item] = false
	}
	return c
}

// Complete は全項目が完了しているかを返します
func (c Checklist) Complete() bool {
	for _, item := range ChecklistItems {
		if !c[item] {
			return false
		}
	}
	return true
}

// Reservation は唯一のアクティブな予約です
type Reservation struct {
	GuestName   string    `validate:"required"`
	DoorCode    string    `validate:"omitempty,max=32"`
	GuestPin    string    `validate:"required,numeric,max=10"`
	CheckIn     time.Time `validate:"required"`
	CheckOut    time.Time `validate:"required"`
	MaxGuests   int       `validate:"gte=0"`
	PetsAllowed PetPolicy

	Feedback     string
	Issues       []Issue
	Checklist    Checklist
	Notified     NotifiedFlags
	CheckoutTime *time.Time
}

// NewReservation は滞在スコープのフィールドが初期化された空の予約を作成します
// 日付が解釈できないデータを読み込んだときの安全な既定値としても使います
func NewReservation() Reservation {
	return Reservation{
		PetsAllowed: PetsNo,
		Issues:      []Issue{},
		Checklist:   NewChecklist(),
	}
}

// Clone はスライスとマップを複製した予約を返します
func (r Reservation) Clone() Reservation {
	out := r
	out.Issues = append([]Issue{}, r.Issues...)
	out.Checklist = make(Checklist, len(ChecklistItems))
	for _, item := range ChecklistItems {
		out.Checklist[item] = r.Checklist[item]
	}
	if r.CheckoutTime != nil {
		t := *r.CheckoutTime
		out.CheckoutTime = &t
	}
	return out
}

// ResetStayScoped は新しいゲストの滞在に向けて滞在スコープのフィールドを初期化します
func (r *Reservation) ResetStayScoped() {
	r.Feedback = ""
	r.Issues = []Issue{}
	r.Checklist = NewChecklist()
	r.Notified = NotifiedFlags{}
	r.CheckoutTime = nil
}

// WellFormed はPIN検索の結果として採用できる予約かを返します
func (r Reservation) WellFormed() bool {
	return strings.TrimSpace(r.GuestName) != "" && strings.TrimSpace(r.GuestPin) != ""
}

// Expired はチェックアウト日時を過ぎているかを返します
func (r Reservation) Expired(now time.Time) bool {
	return now.After(r.CheckOut)
}

var validate = validator.New()

// Validate は管理者が入力した予約データを検証します
func (r Reservation) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReservation, err)
	}
	return nil
}
