package notification

import (
	"fmt"
	"time"

	"github.com/uma-arai/casa25-portal/internal/model"
)

const (
	welcomeFrom = 15 * time.Minute
	welcomeTo   = time.Hour

	reminderFrom = 3 * time.Hour
	reminderTo   = 4 * time.Hour

	rainFirstHour = 8
	rainLastHour  = 20
)

// RainCheck は降雨リスクの判定です。必要になったときにだけ呼ばれます
// 雨のお知らせは8時から20時台かつ滞在フェーズ中の場合にだけ判定されます
type RainCheck func() bool

// Due は now の時点で発火すべき未発火のルールを評価順に返します
// 時間枠を過ぎたルールを後から発火させることはありません
// 雨のお知らせは到着前や出発後には発火しません
func Due(r model.Reservation, now time.Time, loc *time.Location, rain RainCheck) []model.NotificationRule {
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var due []model.NotificationRule
	for _, rule := range model.NotificationRules {
		if r.Notified.Fired(rule) {
			continue
		}
		if inWindow(rule, r, now, loc, rain) {
			due = append(due, rule)
		}
	}
	return due
}

func inWindow(rule model.NotificationRule, r model.Reservation, now time.Time, loc *time.Location, rain RainCheck) bool {
	local := now.In(loc)
	hour, minute := local.Hour(), local.Minute()

	switch rule {
	case model.RuleWelcome:
		elapsed := now.Sub(r.CheckIn)
		return elapsed >= welcomeFrom && elapsed < welcomeTo
	case model.RuleSunset:
		return sameDate(local, r.CheckIn.In(loc)) && hour == 18 && minute >= 30
	case model.RuleQuietHours:
		return sameDate(local, r.CheckIn.In(loc)) && hour == 21 && minute >= 45
	case model.RuleLunch:
		return sameDate(local, nextDay(r.CheckIn.In(loc))) && hour == 11 && minute >= 30
	case model.RuleRainSafety:
		if hour < rainFirstHour || hour > rainLastHour {
			return false
		}
		if model.PhaseAt(now, r.CheckIn, r.CheckOut) != model.PhaseStay {
			return false
		}
		return rain != nil && rain()
	case model.RuleCheckoutReminder:
		remaining := r.CheckOut.Sub(now)
		return remaining > reminderFrom && remaining <= reminderTo
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Message はルールごとに表示する文言を返します
func Message(rule model.NotificationRule, r model.Reservation, loc *time.Location) string {
	switch rule {
	case model.RuleWelcome:
		return "¡Hola! Esperamos que ya estés disfrutando de la Casa 25. En el inicio tienes la clave WiFi y el código de la puerta."
	case model.RuleSunset:
		return "El sol se está ocultando. Para cuidar las cortinas y las pérgolas, te recomendamos recogerlas ahora."
	case model.RuleQuietHours:
		return "Te recordamos que a las 10:00 PM inician las horas de silencio."
	case model.RuleLunch:
		return "¿Hambre? Revisa la guía local para ver nuestros restaurantes recomendados."
	case model.RuleRainSafety:
		return "Aviso importante: se espera lluvia cercana. Por favor recoge las pérgolas eléctricas para evitar daños."
	case model.RuleCheckoutReminder:
		if loc == nil {
			loc = time.Local
		}
		return fmt.Sprintf("¡Buenos días! El check-out es a las %s. Revisa la lista de salida.", r.CheckOut.In(loc).Format("3:04 PM"))
	}
	return string(rule)
}
