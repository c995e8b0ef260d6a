package view

import (
	"time"

	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"github.com/uma-arai/casa25-portal/internal/service/auth"
	"github.com/uma-arai/casa25-portal/internal/service/notice"
)

// ReservationView は画面に渡す予約の表示用データです
// 到着前はドアコードを含めません
type ReservationView struct {
	GuestName    string          `json:"guest_name"`
	DoorCode     string          `json:"door_code,omitempty"`
	CheckIn      time.Time       `json:"check_in"`
	CheckOut     time.Time       `json:"check_out"`
	MaxGuests    int             `json:"max_guests"`
	PetsAllowed  model.PetPolicy `json:"pets_allowed"`
	Feedback     string          `json:"feedback"`
	Issues       []model.Issue   `json:"issues"`
	Checklist    map[string]bool `json:"checklist"`
	CheckoutTime *time.Time      `json:"checkout_time,omitempty"`
}

// AdminReservationView は管理画面用にPINと通知フラグも含めたデータです
type AdminReservationView struct {
	ReservationView
	DoorCode string              `json:"door_code"`
	GuestPin string              `json:"guest_pin"`
	Notified model.NotifiedFlags `json:"notified"`
}

// RenderRequest は画面の描画に必要な読み取り専用の状態です
type RenderRequest struct {
	View             View                       `json:"view"`
	Phase            model.PhaseInfo            `json:"phase"`
	Role             auth.Role                  `json:"role"`
	Authenticated    bool                       `json:"authenticated"`
	CheckoutEligible bool                       `json:"checkout_eligible"`
	Reservation      *ReservationView           `json:"reservation,omitempty"`
	Admin            *AdminReservationView      `json:"admin,omitempty"`
	Notices          []notice.Notice            `json:"notices"`
	Weather          *repository.CurrentWeather `json:"weather,omitempty"`
}

// Input は RenderRequest を組み立てるための入力です
type Input struct {
	Requested     View
	Reservation   model.Reservation
	Now           time.Time
	Role          auth.Role
	Authenticated bool
	Notices       []notice.Notice
	Weather       *repository.CurrentWeather
}

// Build は表示する画面を解決し、描画に必要な状態をまとめます
// 未認証の場合は予約の内容を含めません
func Build(in Input) RenderRequest {
	r := in.Reservation
	phase := model.ComputePhase(in.Now, r.CheckIn, r.CheckOut)
	admin := in.Role == auth.RoleAdmin

	resolved := Resolve(in.Requested, Access{
		Authenticated: in.Authenticated,
		Admin:         admin,
		Locked:        phase.Locked,
		CheckedOut:    r.CheckoutTime != nil,
	})

	req := RenderRequest{
		View:             resolved,
		Phase:            phase,
		Role:             in.Role,
		Authenticated:    in.Authenticated,
		CheckoutEligible: r.Checklist.Complete(),
		Notices:          in.Notices,
		Weather:          in.Weather,
	}
	if req.Notices == nil {
		req.Notices = []notice.Notice{}
	}
	if !in.Authenticated {
		return req
	}

	rv := newReservationView(r, phase.Locked)
	req.Reservation = &rv
	if resolved == ViewAdmin {
		req.Admin = &AdminReservationView{
			ReservationView: rv,
			DoorCode:        r.DoorCode,
			GuestPin:        r.GuestPin,
			Notified:        r.Notified,
		}
	}
	return req
}

func newReservationView(r model.Reservation, locked bool) ReservationView {
	rv := ReservationView{
		GuestName:    r.GuestName,
		CheckIn:      r.CheckIn,
		CheckOut:     r.CheckOut,
		MaxGuests:    r.MaxGuests,
		PetsAllowed:  r.PetsAllowed,
		Feedback:     r.Feedback,
		Issues:       r.Issues,
		Checklist:    make(map[string]bool, len(model.ChecklistItems)),
		CheckoutTime: r.CheckoutTime,
	}
	if !locked {
		rv.DoorCode = r.DoorCode
	}
	for _, item := range model.ChecklistItems {
		rv.Checklist[string(item)] = r.Checklist[item]
	}
	if rv.Issues == nil {
		rv.Issues = []model.Issue{}
	}
	return rv
}
