package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// 予約日時はタイムゾーンを持たない datetime-local 形式で保存されています
const (
	localDateTimeLayout = "2006-01-02T15:04"
	isoTimestampLayout  = "2006-01-02T15:04:05.000Z07:00"
)

var dateTimeLayouts = []string{
	localDateTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// flexString は数値として保存されたPINやコードも文字列として受け付けます
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(string(b))
	return nil
}

// flexInt は "3" のような文字列の人数も受け付けます
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	if raw == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("huespedesMax: %w", err)
	}
	*n = flexInt(v)
	return nil
}

type issueWire struct {
	ID     string `json:"id,omitempty"`
	Date   string `json:"date"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// reservationWire はリモートストアとローカルキャッシュで共通の保存形式です
type reservationWire struct {
	GuestName   flexString  `json:"huespedNombre"`
	DoorCode    flexString  `json:"codigoPuerta"`
	GuestPin    flexString  `json:"guestPin"`
	CheckIn     string      `json:"checkIn"`
	CheckOut    string      `json:"checkOut"`
	MaxGuests   flexInt     `json:"huespedesMax"`
	PetsAllowed string      `json:"mascotasPermitidas"`
	Feedback    string      `json:"feedback"`
	Issues      []issueWire `json:"issues"`

	Lights     bool `json:"lights"`
	Windows    bool `json:"windows"`
	Pergolas   bool `json:"pergolas"`
	Umbrella   bool `json:"umbrella"`
	Belongings bool `json:"belongings"`
	Trash      bool `json:"trash"`

	WelcomeNotified          bool `json:"welcomeNotified"`
	SunsetNotified           bool `json:"sunsetNotified"`
	QuietHoursNotified       bool `json:"quietHoursNotified"`
	LunchNotified            bool `json:"lunchNotified"`
	RainSafetyNotified       bool `json:"rainSafetyNotified"`
	CheckoutReminderNotified bool `json:"checkoutReminderNotified"`

	CheckOutTime string `json:"checkOutTime,omitempty"`
}

// Codec は予約と保存形式を相互に変換します
// 日時は物件のタイムゾーンで解釈されます
type Codec struct {
	Location *time.Location
}

// NewCodec は新しいCodecを作成します
func NewCodec(loc *time.Location) Codec {
	if loc == nil {
		loc = time.Local
	}
	return Codec{Location: loc}
}

// Encode は予約を保存形式のJSONに変換します
func (c Codec) Encode(r Reservation) ([]byte, error) {
	b, err := json.Marshal(c.toWire(r))
	if err != nil {
		return nil, fmt.Errorf("failed to encode reservation: %w", err)
	}
	return b, nil
}

// Decode は保存形式のJSONから予約を復元します
func (c Codec) Decode(raw []byte) (Reservation, error) {
	return c.Overlay(NewReservation(), raw)
}

// Overlay はJSONに含まれるフィールドだけをbaseに上書きします（フィールド単位でJSON側が優先）
// 日時が解釈できない場合はErrCorruptStateを返し、baseは変更しません
func (c Codec) Overlay(base Reservation, raw []byte) (Reservation, error) {
	w := c.toWire(base)
	// 既存の要素にフィールド単位で上書きされないよう、問題リストは丸ごと置き換える
	baseIssues := w.Issues
	w.Issues = nil
	if err := json.Unmarshal(raw, &w); err != nil {
		return base, fmt.Errorf("failed to decode reservation: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		w.Issues = baseIssues
	} else if _, ok := fields["issues"]; !ok {
		w.Issues = baseIssues
	}
	r, err := c.fromWire(w)
	if err != nil {
		return base, err
	}
	return r, nil
}

// IsEmptyMarker はリモートストアの {"empty": true} 応答かを判定します
func IsEmptyMarker(raw []byte) bool {
	var marker struct {
		Empty bool `json:"empty"`
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, &marker); err != nil {
		return false
	}
	return marker.Empty
}

func (c Codec) toWire(r Reservation) reservationWire {
	w := reservationWire{
		GuestName:   flexString(r.GuestName),
		DoorCode:    flexString(r.DoorCode),
		GuestPin:    flexString(r.GuestPin),
		CheckIn:     c.formatLocal(r.CheckIn),
		CheckOut:    c.formatLocal(r.CheckOut),
		MaxGuests:   flexInt(r.MaxGuests),
		PetsAllowed: string(r.PetsAllowed),
		Feedback:    r.Feedback,
		Issues:      make([]issueWire, 0, len(r.Issues)),

		Lights:     r.Checklist[ItemLights],
		Windows:    r.Checklist[ItemWindows],
		Pergolas:   r.Checklist[ItemPergolas],
		Umbrella:   r.Checklist[ItemUmbrella],
		Belongings: r.Checklist[ItemBelongings],
		Trash:      r.Checklist[ItemTrash],

		WelcomeNotified:          r.Notified.Welcome,
		SunsetNotified:           r.Notified.Sunset,
		QuietHoursNotified:       r.Notified.QuietHours,
		LunchNotified:            r.Notified.Lunch,
		RainSafetyNotified:       r.Notified.RainSafety,
		CheckoutReminderNotified: r.Notified.CheckoutReminder,
	}
	for _, issue := range r.Issues {
		w.Issues = append(w.Issues, issueWire{
			ID:     issue.ID,
			Date:   formatISO(issue.Date),
			Text:   issue.Text,
			Status: string(issue.Status),
		})
	}
	if r.CheckoutTime != nil {
		w.CheckOutTime = formatISO(*r.CheckoutTime)
	}
	return w
}

func (c Codec) fromWire(w reservationWire) (Reservation, error) {
	checkIn, err := c.parseDateTime(w.CheckIn)
	if err != nil {
		return Reservation{}, fmt.Errorf("checkIn %q: %w", w.CheckIn, ErrCorruptState)
	}
	checkOut, err := c.parseDateTime(w.CheckOut)
	if err != nil {
		return Reservation{}, fmt.Errorf("checkOut %q: %w", w.CheckOut, ErrCorruptState)
	}

	r := Reservation{
		GuestName:   string(w.GuestName),
		DoorCode:    string(w.DoorCode),
		GuestPin:    string(w.GuestPin),
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		MaxGuests:   int(w.MaxGuests),
		PetsAllowed: ParsePetPolicy(w.PetsAllowed),
		Feedback:    w.Feedback,
		Issues:      make([]Issue, 0, len(w.Issues)),
		Checklist: Checklist{
			ItemLights:     w.Lights,
			ItemWindows:    w.Windows,
			ItemPergolas:   w.Pergolas,
			ItemUmbrella:   w.Umbrella,
			ItemBelongings: w.Belongings,
			ItemTrash:      w.Trash,
		},
		Notified: NotifiedFlags{
			Welcome:          w.WelcomeNotified,
			Sunset:           w.SunsetNotified,
			QuietHours:       w.QuietHoursNotified,
			Lunch:            w.LunchNotified,
			RainSafety:       w.RainSafetyNotified,
			CheckoutReminder: w.CheckoutReminderNotified,
		},
	}
	for _, iw := range w.Issues {
		status := IssueStatus(iw.Status)
		if status == "" {
			status = IssuePending
		}
		// 問題の日時は表示用のため、解釈できなくてもゼロ値で読み込みます
		date, _ := c.parseDateTime(iw.Date)
		r.Issues = append(r.Issues, Issue{ID: iw.ID, Date: date, Text: iw.Text, Status: status})
	}
	if w.CheckOutTime != "" {
		t, err := c.parseDateTime(w.CheckOutTime)
		if err == nil && !t.IsZero() {
			r.CheckoutTime = &t
		}
	}
	return r, nil
}

// Stamp は保存形式で表せるミリ秒の精度に丸め、物件のタイムゾーンで返します
// 問題の報告日時やチェックアウト日時は保存前にこれを通します
func (c Codec) Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.Truncate(time.Millisecond).In(c.Location)
}

// StayTime はチェックイン・チェックアウト日時を保存形式と同じ分単位に丸めます
func (c Codec) StayTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	lt := t.In(c.Location)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), 0, 0, c.Location)
}

// ParseTime は datetime-local 形式またはRFC 3339の日時を物件のタイムゾーンで解釈します
// 解釈できない場合はErrCorruptStateを返します
func (c Codec) ParseTime(v string) (time.Time, error) {
	t, err := c.parseDateTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%v: %w", err, ErrCorruptState)
	}
	return t, nil
}

func (c Codec) parseDateTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.In(c.Location), nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, c.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format %q", v)
}

func (c Codec) formatLocal(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(c.Location).Format(localDateTimeLayout)
}

func formatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoTimestampLayout)
}
