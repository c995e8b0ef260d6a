package model

import "time"

// StayPhase は予約日時と現在時刻から導かれる滞在フェーズです
type StayPhase string

const (
	PhasePreArrival    StayPhase = "pre-arrival"
	PhaseStay          StayPhase = "stay"
	PhasePostDeparture StayPhase = "post-departure"
)

const (
	// AccessLeadTime はチェックイン前に機能が解放されるまでの時間です
	AccessLeadTime = 48 * time.Hour
	// CheckoutImminentWindow はチェックアウト間近とみなす残り時間です
	CheckoutImminentWindow = 4 * time.Hour
)

// PhaseInfo はフェーズと派生フラグをまとめたものです
type PhaseInfo struct {
	Phase            StayPhase `json:"phase"`
	Locked           bool      `json:"locked"`
	CheckoutImminent bool      `json:"checkout_imminent"`
}

// AccessThreshold はドアコードやガイドが解放される時刻を返します
func AccessThreshold(checkIn time.Time) time.Time {
	return checkIn.Add(-AccessLeadTime)
}

// PhaseAt は現在時刻における滞在フェーズを返します
func PhaseAt(now, checkIn, checkOut time.Time) StayPhase {
	threshold := AccessThreshold(checkIn)
	switch {
	case now.Before(threshold):
		return PhasePreArrival
	case !now.After(checkOut):
		return PhaseStay
	default:
		return PhasePostDeparture
	}
}

// ComputePhase はフェーズと派生フラグを計算します
func ComputePhase(now, checkIn, checkOut time.Time) PhaseInfo {
	phase := PhaseAt(now, checkIn, checkOut)
	remaining := checkOut.Sub(now)
	return PhaseInfo{
		Phase:            phase,
		Locked:           phase == PhasePreArrival,
		CheckoutImminent: phase == PhaseStay && remaining > 0 && remaining <= CheckoutImminentWindow,
	}
}
