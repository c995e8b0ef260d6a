package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bogota = time.FixedZone("COT", -5*60*60)

func TestCodec_DecodeSpanishWireKeys(t *testing.T) {
	codec := NewCodec(bogota)
	raw := []byte(`{
		"huespedNombre": "Manuela",
		"codigoPuerta": "0008505#",
		"guestPin": 8505,
		"checkIn": "2026-01-30T15:00",
		"checkOut": "2026-02-01T13:00",
		"huespedesMax": "3",
		"mascotasPermitidas": "Sí (Bajo reglas)",
		"feedback": "",
		"issues": [{"date": "2026-01-30T20:10:00.000Z", "text": "AC not cooling", "status": "Pendiente"}],
		"lights": true,
		"welcomeNotified": true
	}`)

	r, err := codec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "Manuela", r.GuestName)
	assert.Equal(t, "8505", r.GuestPin)
	assert.Equal(t, 3, r.MaxGuests)
	assert.Equal(t, PetsOneUnderRules, r.PetsAllowed)
	assert.True(t, r.CheckIn.Equal(time.Date(2026, 1, 30, 15, 0, 0, 0, bogota)))
	assert.True(t, r.CheckOut.Equal(time.Date(2026, 2, 1, 13, 0, 0, 0, bogota)))
	require.Len(t, r.Issues, 1)
	assert.Equal(t, IssuePending, r.Issues[0].Status)
	assert.True(t, r.Checklist[ItemLights])
	assert.False(t, r.Checklist[ItemTrash])
	assert.True(t, r.Notified.Welcome)
	assert.Nil(t, r.CheckoutTime)
}

func TestCodec_Overlay(t *testing.T) {
	codec := NewCodec(bogota)
	base := NewReservation()
	base.GuestName = "Manuela"
	base.DoorCode = "1111#"
	base.Feedback = "todo bien"
	base.Checklist[ItemTrash] = true

	got, err := codec.Overlay(base, []byte(`{"codigoPuerta": "2222#", "checkIn": "2026-01-30T15:00"}`))
	require.NoError(t, err)

	assert.Equal(t, "2222#", got.DoorCode, "リモート側のフィールドが優先される")
	assert.Equal(t, "Manuela", got.GuestName, "含まれないフィールドは保持される")
	assert.Equal(t, "todo bien", got.Feedback)
	assert.True(t, got.Checklist[ItemTrash])
}

func TestCodec_OverlayCorruptDates(t *testing.T) {
	codec := NewCodec(bogota)
	base := NewReservation()
	base.GuestName = "Manuela"

	tests := []struct {
		name string
		raw  string
	}{
		{name: "チェックインが壊れている", raw: `{"checkIn": "30/01/2026 3pm"}`},
		{name: "チェックアウトが壊れている", raw: `{"checkOut": "mañana"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Overlay(base, []byte(tt.raw))
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("Overlay() error = %v, want ErrCorruptState", err)
			}
			assert.Equal(t, "Manuela", got.GuestName, "壊れたデータではbaseが返される")
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(bogota)
	checkoutAt := time.Date(2026, 2, 1, 12, 30, 0, 0, bogota)
	r := NewReservation()
	r.GuestName = "Hugo"
	r.GuestPin = "4321"
	r.DoorCode = "004321#"
	r.CheckIn = time.Date(2026, 1, 30, 15, 0, 0, 0, bogota)
	r.CheckOut = time.Date(2026, 2, 1, 13, 0, 0, 0, bogota)
	r.MaxGuests = 4
	r.PetsAllowed = PetsTwoUnderRules
	r.Issues = append(r.Issues, Issue{ID: "a", Date: time.Date(2026, 1, 31, 9, 0, 0, 0, bogota), Text: "sin agua", Status: IssuePending})
	r.Checklist[ItemWindows] = true
	r.Notified.Lunch = true
	r.CheckoutTime = &checkoutAt

	first, err := codec.Encode(r)
	require.NoError(t, err)
	decoded, err := codec.Decode(first)
	require.NoError(t, err)
	second, err := codec.Encode(decoded)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.True(t, decoded.CheckoutTime.Equal(checkoutAt))
}

func TestIsEmptyMarker(t *testing.T) {
	assert.True(t, IsEmptyMarker([]byte(`{"empty": true}`)))
	assert.True(t, IsEmptyMarker([]byte(``)))
	assert.False(t, IsEmptyMarker([]byte(`{"huespedNombre": "Manuela"}`)))
	assert.False(t, IsEmptyMarker([]byte(`<html>`)))
}

func TestCodec_ParseTime(t *testing.T) {
	codec := NewCodec(bogota)

	got, err := codec.ParseTime("2026-01-30T15:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 1, 30, 15, 0, 0, 0, bogota)))

	got, err = codec.ParseTime("2026-01-30T20:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 1, 30, 15, 0, 0, 0, bogota)))

	_, err = codec.ParseTime("30/01/2026")
	assert.True(t, errors.Is(err, ErrCorruptState))
}

func TestCodec_OverlayReplacesIssues(t *testing.T) {
	codec := NewCodec(bogota)
	base := NewReservation()
	base.GuestName = "Manuela"
	base.Issues = []Issue{{ID: "local-id", Date: time.Date(2026, 1, 30, 20, 0, 0, 0, bogota), Text: "AC not cooling", Status: IssueResolved}}

	tests := []struct {
		name string
		raw  string
		want []Issue
	}{
		{
			name: "リモートの問題リストで置き換える",
			raw:  `{"issues": [{"date": "2026-01-31T15:00:00.000Z", "text": "sin agua"}]}`,
			want: []Issue{{Date: time.Date(2026, 1, 31, 10, 0, 0, 0, bogota), Text: "sin agua", Status: IssuePending}},
		},
		{
			name: "空のリストで置き換える",
			raw:  `{"issues": []}`,
			want: []Issue{},
		},
		{
			name: "含まれない場合は保持する",
			raw:  `{"huespedNombre": "Manuela"}`,
			want: base.Issues,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Overlay(base, []byte(tt.raw))
			require.NoError(t, err)
			require.Len(t, got.Issues, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].ID, got.Issues[i].ID)
				assert.Equal(t, tt.want[i].Text, got.Issues[i].Text)
				assert.Equal(t, tt.want[i].Status, got.Issues[i].Status)
				assert.True(t, tt.want[i].Date.Equal(got.Issues[i].Date))
			}
			assert.Equal(t, "local-id", base.Issues[0].ID, "baseは変更されない")
		})
	}
}

func TestCodec_StampSurvivesRoundTrip(t *testing.T) {
	codec := NewCodec(bogota)
	now := time.Date(2026, 1, 31, 10, 0, 0, 123456789, time.UTC)
	checkoutAt := codec.Stamp(now)

	r := NewReservation()
	r.GuestName = "Manuela"
	r.GuestPin = "8505"
	r.CheckIn = codec.StayTime(time.Date(2026, 1, 30, 15, 0, 30, 0, bogota))
	r.CheckOut = codec.StayTime(time.Date(2026, 2, 1, 13, 0, 0, 0, bogota))
	r.Issues = []Issue{{ID: "a", Date: codec.Stamp(now), Text: "sin agua", Status: IssuePending}}
	r.CheckoutTime = &checkoutAt

	raw, err := codec.Encode(r)
	require.NoError(t, err)
	got, err := codec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, r, got)
	assert.Equal(t, 123000000, got.Issues[0].Date.Nanosecond())
	assert.Equal(t, 0, got.CheckIn.Second())
}
